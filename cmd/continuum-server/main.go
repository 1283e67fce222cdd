package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidahmann/continuum/internal/api"
	"github.com/davidahmann/continuum/internal/auth"
	"github.com/davidahmann/continuum/internal/backend"
	"github.com/davidahmann/continuum/internal/config"
	"github.com/davidahmann/continuum/internal/observability"
	"github.com/davidahmann/continuum/internal/policy"
	"github.com/davidahmann/continuum/internal/service"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

// newServer wires store, lock, policy, telemetry and router from cfg. The
// returned func releases everything it opened.
func newServer(ctx context.Context, cfg config.Config) (*http.Server, func() error, error) {
	logger, err := observability.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	var cleanups []func() error
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*http.Server, func() error, error) {
		_ = cleanup()
		return nil, nil, err
	}

	store, closeStore, err := backend.OpenStore(ctx, cfg.Store)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeStore)

	locker, closeLocker, err := backend.OpenLocker(ctx, cfg.Lock)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeLocker)

	tel, err := observability.New(ctx, cfg.Telemetry)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return tel.Shutdown(shutdownCtx)
	})

	opts := []service.Option{
		service.WithLocker(locker),
		service.WithTelemetry(tel),
		service.WithLogger(logger),
	}
	if cfg.PolicyPath != "" {
		loaded, err := policy.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return fail(err)
		}
		logger.Info("policy loaded", "policy_id", loaded.Policy.PolicyID, "policy_hash", loaded.Hash)
		opts = append(opts, service.WithPolicy(loaded.Policy))
	}

	h := &api.Handler{
		Service: service.New(store, opts...),
		Auth:    auth.StaticToken{Token: cfg.API.Token},
		Logger:  logger,
	}
	if cfg.API.RateLimitRPS > 0 {
		h.RateLimiter = api.NewRateLimiter(cfg.API.RateLimitRPS, cfg.API.Burst)
	}

	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}, cleanup, nil
}

type envFn func(string) string
type listenFn func(context.Context, *http.Server) error
type serverFactory func(context.Context, config.Config) (*http.Server, func() error, error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("continuum-server", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to continuum config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("CONTINUUM_CONFIG_PATH")
	}

	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := factory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	slog.Info("continuum-server listening", "addr", cfg.ListenAddr, "store", cfg.Store.Driver, "lock", cfg.Lock.Driver)
	if err := listen(ctx, server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func listenAndServe(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
