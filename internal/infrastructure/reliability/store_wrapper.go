package reliability

import (
	"context"
	"errors"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/pkg/circuitbreaker"
	"worldview/pkg/retry"
	"worldview/pkg/tracing"

	"go.uber.org/zap"
)

// StoreWrapper guards a store backend with retry around a circuit breaker.
// A missing key is an answer, not a failure: it is neither retried nor
// counted against the breaker.
type StoreWrapper struct {
	store   ports.StoreBackend
	backend string
	logger  *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

var _ ports.StoreBackend = (*StoreWrapper)(nil)

func NewStoreWrapper(
	store ports.StoreBackend,
	backend string,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *StoreWrapper {
	cbConfig.IsSuccessful = func(err error) bool {
		return errors.Is(err, domain.ErrKeyNotFound)
	}
	retryConfig.NonRetryableErrors = append(retryConfig.NonRetryableErrors,
		domain.ErrKeyNotFound,
		circuitbreaker.ErrOpen,
		context.Canceled,
		context.DeadlineExceeded,
	)

	w := &StoreWrapper{
		store:          store,
		backend:        backend,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
	}
	w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("store circuit breaker state changed",
			"backend", backend,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

func (w *StoreWrapper) GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error) {
	return call(ctx, w, "get_or_create", func() ([]byte, error) {
		return w.store.GetOrCreate(ctx, key, generate)
	})
}

func (w *StoreWrapper) Save(ctx context.Context, key string, value []byte) error {
	_, err := call(ctx, w, "save", func() (struct{}, error) {
		return struct{}{}, w.store.Save(ctx, key, value)
	})
	return err
}

func (w *StoreWrapper) Load(ctx context.Context, key string) ([]byte, error) {
	return call(ctx, w, "load", func() ([]byte, error) {
		return w.store.Load(ctx, key)
	})
}

func (w *StoreWrapper) Delete(ctx context.Context, key string) error {
	_, err := call(ctx, w, "delete", func() (struct{}, error) {
		return struct{}{}, w.store.Delete(ctx, key)
	})
	return err
}

// Ping bypasses retry and breaker so health checks see the raw backend.
func (w *StoreWrapper) Ping(ctx context.Context) error {
	return w.store.Ping(ctx)
}

func (w *StoreWrapper) Close() error {
	return w.store.Close()
}

// BreakerState reports the current circuit breaker state.
func (w *StoreWrapper) BreakerState() circuitbreaker.State {
	return w.circuitBreaker.GetState()
}

func call[T any](ctx context.Context, w *StoreWrapper, op string, fn func() (T, error)) (T, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, op, w.backend)
	defer span.End()

	result, err := retry.RetryWithResult(ctx, w.retryConfig, func() (T, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, fn)
	})
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		tracing.RecordError(ctx, err)
		w.logger.Warnw("store operation failed",
			"backend", w.backend,
			"operation", op,
			"error", err,
		)
	}
	return result, err
}
