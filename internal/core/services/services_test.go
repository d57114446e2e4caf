package services

import (
	"context"
	"testing"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	kv "worldview/internal/infrastructure/repositories/memory"
	transport "worldview/internal/infrastructure/transport/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const waitFor = 2 * time.Second

func testOptions(t *testing.T) DeviceOptions {
	return DeviceOptions{
		Platform:        "web",
		Battery:         100,
		StorageGB:       64,
		RetryDelays:     []time.Duration{5 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond},
		JoinTimeout:     150 * time.Millisecond,
		RecordingPolicy: domain.RecordingLocal,
		Logger:          zaptest.NewLogger(t).Sugar(),
	}
}

func newTestHub(t *testing.T) *transport.Hub {
	hub := transport.NewHub(64, nil, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { hub.Close() })
	return hub
}

func startDevice(t *testing.T, hub ports.Transport, store ports.KeyValueStore, opts DeviceOptions) *deviceService {
	t.Helper()
	if store == nil {
		store = kv.NewKVStore()
	}
	d, err := newDeviceService(context.Background(), "test", store, hub, opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// listen opens a raw subscription that plays no role in the protocol.
func listen(t *testing.T, hub ports.Transport, id domain.SessionID) ports.Subscription {
	t.Helper()
	sub, err := hub.Subscribe(context.Background(), id)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub
}

// nextOfType reads from sub until a message of type typ arrives.
func nextOfType(t *testing.T, sub ports.Subscription, typ domain.MessageType) domain.Message {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case msg, ok := <-sub.Messages():
			require.True(t, ok, "subscription closed")
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %s within %s", typ, waitFor)
		}
	}
}

// countOfType drains sub for d and counts messages of type typ.
func countOfType(sub ports.Subscription, typ domain.MessageType, d time.Duration) int {
	n := 0
	deadline := time.After(d)
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return n
			}
			if msg.Type == typ {
				n++
			}
		case <-deadline:
			return n
		}
	}
}

func sessionOf(t *testing.T, d ports.DeviceService) domain.Session {
	t.Helper()
	s, ok := d.Session()
	require.True(t, ok, "device has no session")
	return s
}

func deviceOf(t *testing.T, d ports.DeviceService) domain.Device {
	t.Helper()
	dev, ok := d.CurrentDevice()
	require.True(t, ok, "device has no identity")
	return dev
}

func deviceIDs(s domain.Session) []domain.DeviceID {
	ids := make([]domain.DeviceID, 0, len(s.Devices))
	for _, d := range s.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}
