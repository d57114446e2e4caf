package ports

import (
	"context"

	"worldview/internal/core/domain"
)

// Transport opens pub/sub scopes keyed by session id.
type Transport interface {
	Subscribe(ctx context.Context, sessionID domain.SessionID) (Subscription, error)
}

// Subscription is one device's membership in a scope. Publish reaches every
// other open subscription of the same session and never the publisher.
// Delivery is best-effort; Publish after Close is a no-op.
type Subscription interface {
	SessionID() domain.SessionID
	Messages() <-chan domain.Message
	Publish(ctx context.Context, msg domain.Message) error
	Close() error
}
