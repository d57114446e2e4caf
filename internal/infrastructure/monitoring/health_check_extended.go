package monitoring

import (
	"context"
	"fmt"
	"time"
)

// Pinger is anything with a liveness check, such as a store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AddStoreCheck adds a storage backend health check. For the Redis backend
// this is a PING round trip.
func (h *HealthChecker) AddStoreCheck(backend string, store Pinger, interval, timeout time.Duration) {
	h.AddCheck("storage:"+backend, store.Ping, interval, timeout)
}

// AddStudioCheck fails while the studio refuses new devices.
func (h *HealthChecker) AddStudioCheck(accepting func() bool, interval, timeout time.Duration) {
	h.AddCheck("studio", func(ctx context.Context) error {
		if !accepting() {
			return fmt.Errorf("studio is shutting down")
		}
		return nil
	}, interval, timeout)
}

// GetReadinessStatus returns readiness status for load balancer
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
