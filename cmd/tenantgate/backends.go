package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/tenantgate/pkg/config"
	"github.com/dmitrymomot/tenantgate/pkg/httpserver"
	"github.com/dmitrymomot/tenantgate/pkg/isolation"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
	"github.com/dmitrymomot/tenantgate/pkg/mongo"
	"github.com/dmitrymomot/tenantgate/pkg/opensearch"
	"github.com/dmitrymomot/tenantgate/pkg/pg"
	"github.com/dmitrymomot/tenantgate/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantgate/pkg/redis"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
	"github.com/dmitrymomot/tenantgate/pkg/tenantstore"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
)

// backends holds the connections opened for the configured store and sink.
// Each connection is opened at most once even when it serves both.
type backends struct {
	log     *slog.Logger
	checks  map[string]httpserver.Check
	closers []func(context.Context) error

	pgPool      *pgxpool.Pool
	mongoClient *mongodriver.Client
	mongoDB     string
	redisClient *goredis.Client
}

func newBackends(log *slog.Logger) *backends {
	return &backends{log: log, checks: map[string]httpserver.Check{}}
}

func (b *backends) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pgPool != nil {
		return b.pgPool, nil
	}

	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, cfg, b.log)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx, pool, cfg, b.log); err != nil {
		pool.Close()
		return nil, err
	}

	b.pgPool = pool
	b.checks["postgres"] = pg.Healthcheck(pool)
	b.closers = append(b.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	return pool, nil
}

func (b *backends) mongo(ctx context.Context) (*mongodriver.Database, error) {
	if b.mongoClient == nil {
		var cfg mongo.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := mongo.Connect(ctx, cfg, b.log)
		if err != nil {
			return nil, err
		}

		b.mongoClient = client
		b.mongoDB = cfg.Database
		b.checks["mongo"] = mongo.Healthcheck(client)
		b.closers = append(b.closers, client.Disconnect)
	}
	return b.mongoClient.Database(b.mongoDB), nil
}

func (b *backends) redis(ctx context.Context) (*goredis.Client, error) {
	if b.redisClient != nil {
		return b.redisClient, nil
	}

	var cfg redis.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, cfg, b.log)
	if err != nil {
		return nil, err
	}

	b.redisClient = client
	b.checks["redis"] = redis.Healthcheck(client)
	b.closers = append(b.closers, func(context.Context) error { return client.Close() })
	return client, nil
}

// close releases connections in reverse order of opening.
func (b *backends) close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// tenantStore is what the gateway needs from a store backend.
type tenantStore interface {
	tenant.Store
	tenant.Lister
	tenantstore.Adder
}

func (b *backends) openStore(ctx context.Context, cfg Config) (tenantStore, error) {
	var store tenantStore
	switch cfg.Store {
	case storeMemory:
		m, err := tenantstore.NewMemory()
		if err != nil {
			return nil, err
		}
		store = m
	case storePostgres:
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		store = tenantstore.NewPostgres(pool)
	case storeMongo:
		db, err := b.mongo(ctx)
		if err != nil {
			return nil, err
		}
		ms := tenantstore.NewMongo(db)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		store = ms
	default:
		return nil, fmt.Errorf("unknown tenant store %q", cfg.Store)
	}

	if cfg.SeedFile != "" {
		n, err := tenantstore.SeedFile(ctx, seedOnce{store}, cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		b.log.InfoContext(ctx, "tenant store seeded", slog.String("store", cfg.Store), slog.Int("tenants", n))
	}
	return store, nil
}

// seedOnce skips tenants whose domains are already registered, so durable
// stores can be seeded on every start.
type seedOnce struct {
	tenantstore.Adder
}

func (s seedOnce) Add(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	added, err := s.Adder.Add(ctx, t)
	if errors.Is(err, tenantstore.ErrDomainTaken) {
		return t, nil
	}
	return added, err
}

// openViolationWriter returns the batch writer for the configured sink, or
// nil when violations are only kept in memory.
func (b *backends) openViolationWriter(ctx context.Context, cfg Config) (isolation.BatchWriter, error) {
	switch cfg.ViolationSink {
	case sinkNone, "":
		return nil, nil
	case sinkRedis:
		client, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		return isolation.NewRedisStreamWriter(client, cfg.ViolationStream, cfg.ViolationStreamLen), nil
	case sinkPostgres:
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return isolation.NewPostgresWriter(pool), nil
	case sinkOpenSearch:
		var osCfg opensearch.Config
		if err := config.Load(&osCfg); err != nil {
			return nil, err
		}
		client, err := opensearch.New(ctx, osCfg)
		if err != nil {
			return nil, err
		}
		if err := opensearch.EnsureIndex(ctx, client, osCfg.Index, isolation.IndexMapping); err != nil {
			return nil, err
		}
		b.checks["opensearch"] = opensearch.Healthcheck(client)
		return isolation.NewOpenSearchWriter(client, osCfg.Index), nil
	default:
		return nil, fmt.Errorf("unknown violation sink %q", cfg.ViolationSink)
	}
}

// openProbeBucket returns the failure budget bucket, or nil when throttling
// is disabled.
func (b *backends) openProbeBucket(ctx context.Context, cfg Config) (*ratelimiter.Bucket, error) {
	if cfg.ProbeLimit <= 0 {
		return nil, nil
	}

	var store ratelimiter.Store
	switch cfg.ProbeStore {
	case probeStoreMemory, "":
		ms := ratelimiter.NewMemoryStore()
		b.closers = append(b.closers, func(context.Context) error {
			ms.Close()
			return nil
		})
		store = ms
	case probeStoreRedis:
		client, err := b.redis(ctx)
		if err != nil {
			return nil, err
		}
		store = ratelimiter.NewRedisStore(client, "")
	default:
		return nil, fmt.Errorf("unknown probe store %q", cfg.ProbeStore)
	}

	return ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       cfg.ProbeLimit,
		RefillRate:     1,
		RefillInterval: cfg.ProbeRefillInterval,
	})
}

func logStartupError(ctx context.Context, log *slog.Logger, what string, err error) error {
	log.ErrorContext(ctx, "startup failed", slog.String("step", what), logger.Error(err))
	return fmt.Errorf("%s: %w", what, err)
}
