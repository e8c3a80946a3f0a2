package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/handler"
	"github.com/aryan0dhankhar/farmorders/internal/infrastructure/filestore"
	"github.com/aryan0dhankhar/farmorders/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/farmorders/internal/reliability/retry"
	"github.com/aryan0dhankhar/farmorders/internal/repository"
	"github.com/aryan0dhankhar/farmorders/internal/security/revocation"
	"github.com/aryan0dhankhar/farmorders/pkg/config"
	"github.com/aryan0dhankhar/farmorders/pkg/database"
)

// stores is the persistence selected by STORE_BACKEND
type stores struct {
	users    domain.UserRepository
	orders   domain.OrderRepository
	absences domain.AbsenceRepository
	checks   map[string]handler.Pinger
	pubsub   events.PubSub // set only when instances share a Redis

	// revocations is nil without Redis; sign-outs then stay in process
	revocations revocation.Store
	close       func() error
}

func openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := retry.Do(ctx, retry.StartupPolicy(), log, "connect postgres", func(ctx context.Context) (*database.ConnectionPool, error) {
			return database.NewConnectionPool(ctx, &database.Config{URL: cfg.DatabaseURL, ConnMaxLifetime: 5 * time.Minute}, log)
		})
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db := pool.DB()
		s := &stores{
			users:    repository.NewPostgresUserRepository(db, log),
			orders:   repository.NewPostgresOrderRepository(db, log),
			absences: repository.NewPostgresAbsenceRepository(db, log),
			checks:   map[string]handler.Pinger{"postgres": pool.Ping},
			close:    pool.Close,
		}
		if cfg.RedisURL != "" {
			client, err := connectRedis(ctx, cfg.RedisURL, log)
			if err != nil {
				pool.Close()
				return nil, err
			}
			s.shareThrough(client)
			s.close = func() error { return errors.Join(client.Close(), pool.Close()) }
		}
		return s, nil

	case config.BackendRedis:
		client, err := connectRedis(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		s := blobStores(repository.NewBlobStore(client, cfg.BlobKeyPrefix, log))
		s.shareThrough(client)
		s.close = client.Close
		return s, nil

	case config.BackendFile:
		fs, err := filestore.New(cfg.DataDir, log)
		if err != nil {
			return nil, err
		}
		s := blobStores(repository.NewBlobStore(fs, cfg.BlobKeyPrefix, log))
		s.checks = map[string]handler.Pinger{"file": fs.Ping}
		return s, nil

	case config.BackendMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return blobStores(repository.NewBlobStore(repository.NewMemoryKV(), cfg.BlobKeyPrefix, log)), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func connectRedis(ctx context.Context, url string, log *slog.Logger) (*redis.Client, error) {
	return retry.Do(ctx, retry.StartupPolicy(), log, "connect redis", func(ctx context.Context) (*redis.Client, error) {
		c, err := redis.NewClient(ctx, url, log)
		if errors.Is(err, redis.ErrInvalidURL) {
			return nil, retry.Permanent(err)
		}
		return c, err
	})
}

// shareThrough routes change events and revocations through Redis
func (s *stores) shareThrough(client *redis.Client) {
	s.checks["redis"] = client.Ping
	s.pubsub = client
	s.revocations = client
}

func blobStores(store *repository.BlobStore) *stores {
	return &stores{
		users:    store.Users(),
		orders:   store.Orders(),
		absences: store.Absences(),
		checks:   map[string]handler.Pinger{},
		close:    func() error { return nil },
	}
}
