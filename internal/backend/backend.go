// Package backend opens the configured store and binding lock.
package backend

import (
	"context"
	"fmt"

	"github.com/davidahmann/continuum/internal/config"
	"github.com/davidahmann/continuum/internal/gate"
	"github.com/davidahmann/continuum/internal/ledger"
	"github.com/davidahmann/continuum/internal/ledger/filestore"
	"github.com/davidahmann/continuum/internal/ledger/pgstore"
	"github.com/davidahmann/continuum/internal/ledger/sqlstore"
)

// DefaultDir is the file store location when none is configured.
const DefaultDir = ".continuum"

func nop() error { return nil }

// OpenStore returns the store for cfg and a func releasing it.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (ledger.Store, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return ledger.NewInMemoryStore(), nop, nil
	case "file":
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir
		}
		s, err := filestore.Open(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nop, nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := pgstore.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenLocker returns the binding lock for cfg. The local driver yields an
// in-process KeyedMutex; redis is pinged before use.
func OpenLocker(ctx context.Context, cfg config.LockConfig) (gate.Locker, func() error, error) {
	switch cfg.Driver {
	case "", "local":
		return gate.NewKeyedMutex(), nop, nil
	case "redis":
		l := gate.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL)
		if err := l.Ping(ctx); err != nil {
			_ = l.Close()
			return nil, nil, fmt.Errorf("redis lock: %w", err)
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock driver %q", cfg.Driver)
	}
}
