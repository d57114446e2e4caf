package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/internal/infrastructure/reliability"
	"worldview/internal/infrastructure/repositories/memory"
	redisrepo "worldview/internal/infrastructure/repositories/redis"
	sqliterepo "worldview/internal/infrastructure/repositories/sqlite"
	"worldview/pkg/circuitbreaker"
	"worldview/pkg/config"
	"worldview/pkg/distributed"
	"worldview/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// RepositoryFactory opens the configured key-value backend, falling back to
// memory when it is unreachable, and hands out per-profile views of it.
type RepositoryFactory struct {
	backend   string
	namespace string
	store     ports.StoreBackend
	logger    *zap.SugaredLogger

	// leases is set only for Redis, the one backend shared across processes.
	leases   *redis.Client
	leaseTTL time.Duration
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		backend:   cfg.Storage.Backend,
		namespace: cfg.Storage.Namespace,
		logger:    logger,
	}

	var (
		store ports.StoreBackend
		err   error
	)
	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		store, err = sqliterepo.Open(ctx, cfg.Storage.Path, logger)
	case BackendRedis:
		client, cerr := redisrepo.NewRedisClient(ctx,
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if cerr == nil {
			store = redisrepo.NewKVStore(client)
			factory.leases = client
			factory.leaseTTL = cfg.Storage.LeaseTTL
		}
		err = cerr
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if err != nil {
		logger.Warnw("failed to open storage backend, falling back to memory store",
			"backend", cfg.Storage.Backend,
			"error", err,
		)
		store = nil
	}

	if store == nil {
		factory.backend = BackendMemory
		factory.store = memory.NewKVStore()
		logger.Infow("using memory store")
		return factory, nil
	}

	factory.store = reliability.NewStoreWrapper(store, factory.backend, retryConfig(cfg), breakerConfig(cfg), logger)
	logger.Infow("using persistent store", "backend", factory.backend)
	return factory, nil
}

// Backend names the backend actually in use.
func (f *RepositoryFactory) Backend() string {
	return f.backend
}

// Store returns the shared, unprefixed store.
func (f *RepositoryFactory) Store() ports.StoreBackend {
	return f.store
}

// ForProfile returns the storage partition of one device profile.
func (f *RepositoryFactory) ForProfile(profile string) ports.KeyValueStore {
	prefix := profile + ":"
	if f.namespace != "" {
		prefix = f.namespace + ":" + prefix
	}
	return WithPrefix(f.store, prefix)
}

// HealthCheck pings the backend
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	return f.store.Ping(ctx)
}

// Claim reserves profile for this process until the returned release is
// called. Backends private to the process have nothing to reserve.
func (f *RepositoryFactory) Claim(ctx context.Context, profile string) (func(), error) {
	if f.leases == nil {
		return func() {}, nil
	}

	key := "worldview:lease:" + profile
	if f.namespace != "" {
		key = "worldview:lease:" + f.namespace + ":" + profile
	}
	lease, err := distributed.Acquire(ctx, f.leases, key, f.leaseTTL, f.logger)
	if errors.Is(err, distributed.ErrLeaseHeld) {
		return nil, fmt.Errorf("profile %s: %w", profile, domain.ErrProfileInUse)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lease.Release(ctx); err != nil {
			f.logger.Warnw("failed to release profile", "profile", profile, "error", err)
		}
	}, nil
}

func (f *RepositoryFactory) Close() error {
	return f.store.Close()
}

func retryConfig(cfg *config.Config) retry.Config {
	r := cfg.Reliability.Retry
	return retry.Config{
		Enabled:      r.Enabled,
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		Jitter:       true,
	}
}

func breakerConfig(cfg *config.Config) circuitbreaker.Config {
	cb := cfg.Reliability.CircuitBreaker
	if !cb.Enabled {
		// a threshold no run of failures reaches
		return circuitbreaker.Config{FailureThreshold: int(^uint(0) >> 1)}
	}
	return circuitbreaker.Config{
		FailureThreshold:    cb.FailureThreshold,
		SuccessThreshold:    cb.SuccessThreshold,
		Timeout:             cb.Timeout,
		MaxRequestsHalfOpen: cb.MaxRequestsHalfOpen,
	}
}
