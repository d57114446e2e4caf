package ports

import (
	"context"

	"worldview/internal/core/domain"
)

// DeviceService is one hosted device. All actions are serialized by the
// device's own event loop and return once it has applied them.
type DeviceService interface {
	Profile() string
	CurrentDevice() (domain.Device, bool)
	Session() (domain.Session, bool)
	JoinState() domain.JoinState

	// CreateSession returns the new session id, or "" when the device has
	// no identity.
	CreateSession(ctx context.Context) (domain.SessionID, error)
	JoinSession(ctx context.Context, id domain.SessionID) error
	AddDevice(ctx context.Context, device domain.Device) error
	UpdateDeviceStatus(ctx context.Context, id domain.DeviceID, status domain.DeviceStatus) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	AddRecording(ctx context.Context, rec domain.Recording) (domain.Recording, error)
	RequestSync(ctx context.Context) error

	// Watch streams every new session snapshot until ctx is done. Slow
	// watchers miss intermediate snapshots.
	Watch(ctx context.Context) <-chan domain.Session
	Close() error
}

// Studio hosts devices by profile.
type Studio interface {
	Start(ctx context.Context, profile, platform string) (DeviceService, error)
	Get(profile string) (DeviceService, error)
	List() []DeviceService
	Stop(profile string) error
	Close() error
}

type SyncMetrics interface {
	MessagePublished(t domain.MessageType)
	MessageReceived(t domain.MessageType)
	MessageDropped(t domain.MessageType)
	JoinAttempt()
	JoinOutcome(state domain.JoinState)
	Replication()
	Restore(outcome string)
	DevicesHosted(n int)
}
