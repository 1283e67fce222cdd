package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/continuum/internal/observability"
)

type Config struct {
	ListenAddr string                        `yaml:"listen_addr"`
	Store      StoreConfig                   `yaml:"store"`
	Lock       LockConfig                    `yaml:"lock"`
	Log        observability.LogConfig       `yaml:"log"`
	Telemetry  observability.TelemetryConfig `yaml:"telemetry"`
	PolicyPath string                        `yaml:"policy_path"`
	API        APIConfig                     `yaml:"api"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Dir    string `yaml:"dir"`
}

type LockConfig struct {
	Driver        string        `yaml:"driver"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Token        string  `yaml:"token"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	Burst        int     `yaml:"burst"`
}

// Default returns a config for a local memory-backed server.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Store:      StoreConfig{Driver: "memory"},
		Lock:       LockConfig{Driver: "local", TTL: 10 * time.Second},
		Log:        observability.LogConfig{Level: "info", Format: "text"},
		Telemetry:  observability.TelemetryConfig{ServiceName: "continuum"},
	}
}

// Load reads a YAML config on top of Default after expanding ${VAR} references.
func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays CONTINUUM_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"CONTINUUM_LISTEN_ADDR":       &c.ListenAddr,
		"CONTINUUM_STORE_DRIVER":      &c.Store.Driver,
		"CONTINUUM_STORE_DSN":         &c.Store.DSN,
		"CONTINUUM_STORE_DIR":         &c.Store.Dir,
		"CONTINUUM_LOCK_DRIVER":       &c.Lock.Driver,
		"CONTINUUM_REDIS_ADDR":        &c.Lock.RedisAddr,
		"CONTINUUM_REDIS_PASSWORD":    &c.Lock.RedisPassword,
		"CONTINUUM_LOG_LEVEL":         &c.Log.Level,
		"CONTINUUM_LOG_FORMAT":        &c.Log.Format,
		"CONTINUUM_POLICY_PATH":       &c.PolicyPath,
		"CONTINUUM_API_TOKEN":         &c.API.Token,
		"CONTINUUM_OTLP_ENDPOINT":     &c.Telemetry.OTLPEndpoint,
		"CONTINUUM_TELEMETRY_SERVICE": &c.Telemetry.ServiceName,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("CONTINUUM_TELEMETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONTINUUM_TELEMETRY_ENABLED: %w", err)
		}
		c.Telemetry.Enabled = b
	}
	if v := getenv("CONTINUUM_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CONTINUUM_RATE_LIMIT_RPS: %w", err)
		}
		c.API.RateLimitRPS = f
	}
	if v := getenv("CONTINUUM_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CONTINUUM_LOCK_TTL: %w", err)
		}
		c.Lock.TTL = d
	}
	return c.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.Store.Driver {
	case "", "memory":
	case "file":
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required when store.driver=file")
		}
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when store.driver=%s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case "", "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required when lock.driver=redis")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be positive")
		}
	default:
		return fmt.Errorf("unknown lock.driver %q", c.Lock.Driver)
	}

	if c.API.RateLimitRPS < 0 || c.API.Burst < 0 {
		return fmt.Errorf("api.rate_limit_rps and api.burst must not be negative")
	}
	return nil
}
