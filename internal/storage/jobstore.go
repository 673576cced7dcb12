package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"vidhook/internal/adapters/jobstore/memory"
	"vidhook/internal/adapters/jobstore/postgres"
	"vidhook/internal/adapters/jobstore/redis"
	"vidhook/internal/adapters/jobstore/sqlite"
	"vidhook/internal/config"
	"vidhook/internal/ports"
)

// NewJobStore opens the job status store selected by cfg.Jobs.Store.
func NewJobStore(ctx context.Context, cfg config.Config) (ports.JobStore, error) {
	retention := cfg.Jobs.Retention.Duration

	switch cfg.Jobs.Store {
	case config.StoreMemory, "":
		return memory.New(retention), nil

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.Jobs.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return sqlite.Open(cfg.Jobs.SQLitePath)

	case config.StorePostgres:
		return postgres.Open(ctx, cfg.Jobs.DatabaseURL)

	case config.StoreRedis:
		return redis.Dial(ctx, cfg.Jobs.RedisAddr, retention)

	default:
		return nil, fmt.Errorf("unknown job store: %s", cfg.Jobs.Store)
	}
}
