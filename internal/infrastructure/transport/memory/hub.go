// Package memory is the in-process transport: one fan-out scope per session
// id shared by every device hosted in the process.
//
// Delivery follows a drop-never-queue policy. Publish encodes the message
// once and hands every other subscriber its own decoded copy; a subscriber
// whose buffer is full loses the message. Nothing is replayed to
// subscribers that join later.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"

	"go.uber.org/zap"
)

const DefaultBufferSize = 64

// DropObserver is told about every message a full subscriber lost.
type DropObserver interface {
	MessageDropped(t domain.MessageType)
}

// Stats is a snapshot of hub counters.
type Stats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[domain.SessionID]int
}

type Hub struct {
	mu         sync.RWMutex
	scopes     map[domain.SessionID]map[uint64]*subscription
	closed     bool
	bufferSize int
	nextID     atomic.Uint64

	totalPublished atomic.Uint64
	totalSent      atomic.Uint64
	totalDropped   atomic.Uint64

	observer DropObserver
	logger   *zap.SugaredLogger
}

var _ ports.Transport = (*Hub)(nil)

func NewHub(bufferSize int, observer DropObserver, logger *zap.SugaredLogger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		scopes:     make(map[domain.SessionID]map[uint64]*subscription),
		bufferSize: bufferSize,
		observer:   observer,
		logger:     logger,
	}
}

// Subscribe opens a new subscription on the scope for sessionID.
func (h *Hub) Subscribe(ctx context.Context, sessionID domain.SessionID) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, domain.ErrTransportClosed
	}

	sub := &subscription{
		hub:       h,
		id:        h.nextID.Add(1),
		sessionID: sessionID,
		ch:        make(chan domain.Message, h.bufferSize),
	}
	scope, ok := h.scopes[sessionID]
	if !ok {
		scope = make(map[uint64]*subscription)
		h.scopes[sessionID] = scope
	}
	scope[sub.id] = sub

	h.logger.Debugw("Subscription opened", "session_id", sessionID, "subscription", sub.id, "subscribers", len(scope))
	return sub, nil
}

func (h *Hub) publish(ctx context.Context, from *subscription, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	scope := h.scopes[from.sessionID]
	if _, open := scope[from.id]; !open {
		return nil
	}
	h.totalPublished.Add(1)

	for id, sub := range scope {
		if id == from.id {
			continue
		}
		copyMsg, err := domain.DecodeMessage(frame)
		if err != nil {
			return err
		}
		select {
		case sub.ch <- copyMsg:
			h.totalSent.Add(1)
		default:
			h.totalDropped.Add(1)
			if h.observer != nil {
				h.observer.MessageDropped(msg.Type)
			}
			h.logger.Debugw("Message dropped, subscriber full",
				"session_id", from.sessionID,
				"type", msg.Type,
				"subscription", id,
			)
		}
	}
	return nil
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	scope, ok := h.scopes[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := scope[sub.id]; !ok {
		return
	}
	delete(scope, sub.id)
	close(sub.ch)
	if len(scope) == 0 {
		delete(h.scopes, sub.sessionID)
	}
	h.logger.Debugw("Subscription closed", "session_id", sub.sessionID, "subscription", sub.id)
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[domain.SessionID]int, len(h.scopes))
	for id, scope := range h.scopes {
		subs[id] = len(scope)
	}
	return Stats{
		TotalPublished: h.totalPublished.Load(),
		TotalSent:      h.totalSent.Load(),
		TotalDropped:   h.totalDropped.Load(),
		Subscribers:    subs,
	}
}

// Close closes every open subscription. Later Subscribe calls fail.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for id, scope := range h.scopes {
		for _, sub := range scope {
			close(sub.ch)
		}
		delete(h.scopes, id)
	}
	return nil
}

type subscription struct {
	hub       *Hub
	id        uint64
	sessionID domain.SessionID
	ch        chan domain.Message
	closeOnce sync.Once
}

func (s *subscription) SessionID() domain.SessionID {
	return s.sessionID
}

func (s *subscription) Messages() <-chan domain.Message {
	return s.ch
}

func (s *subscription) Publish(ctx context.Context, msg domain.Message) error {
	return s.hub.publish(ctx, s, msg)
}

func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
	})
	return nil
}
