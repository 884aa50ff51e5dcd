package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/repository"
	"github.com/goliatone/go-tenant-auth/storage"
)

// durableStorage is a Storage that must be released on shutdown.
type durableStorage interface {
	tenantauth.Storage
	Close() error
}

// openStorage returns redis storage when a URL is configured, sqlite otherwise.
func openStorage(ctx context.Context, cfg demoConfig, log *zap.SugaredLogger) (durableStorage, error) {
	if cfg.RedisURL != "" {
		r, err := storage.NewRedisFromURL(cfg.RedisURL, storage.WithRedisHash(cfg.RedisHash))
		if err != nil {
			return nil, err
		}
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Infow("redis storage ready", "hash", cfg.RedisHash)
		return r, nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())

	manager := repository.NewRepositoryManager(db)
	if err := manager.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Infow("sqlite storage ready", "dsn", cfg.DatabaseDSN)
	return &sqlStorage{StorageEntries: manager.StorageEntries(), db: db}, nil
}

type sqlStorage struct {
	*repository.StorageEntries
	db *bun.DB
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}

// sweeper is a periodic cleanup task; run returns how many items it removed.
type sweeper struct {
	name string
	run  func(context.Context) (int, error)
}

// runSweepers runs every sweeper on each tick until ctx is done.
func runSweepers(ctx context.Context, every time.Duration, log *zap.SugaredLogger, sweepers ...sweeper) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range sweepers {
				removed, err := s.run(ctx)
				if err != nil {
					log.Warnw("sweep failed", "sweep", s.name, "err", err)
					continue
				}
				if removed > 0 {
					log.Infow("sweep removed items", "sweep", s.name, "count", removed)
				}
			}
		}
	}
}
