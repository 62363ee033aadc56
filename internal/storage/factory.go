package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-budget-must-balance/internal/config"
	"github.com/Veraticus/the-budget-must-balance/internal/service"
)

// Open creates the store selected by cfg.Backend. SQLite databases are
// migrated to the expected schema before they are returned.
func Open(ctx context.Context, cfg *config.Ledger) (service.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", ErrNilParameter)
	}

	slog.Debug("Opening ledger store", "backend", cfg.Backend)

	switch cfg.Backend {
	case config.BackendSQLite, "":
		store, err := NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil
	case config.BackendFile:
		return NewFileStore(cfg.FileDir)
	case config.BackendRedis:
		return DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
