package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"worldview/internal/core/domain"
	kv "worldview/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error) {
	args := m.Called(ctx, key)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockStore) Load(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func TestDevice_IdentityIsStable(t *testing.T) {
	hub := newTestHub(t)
	store := kv.NewKVStore()

	first := startDevice(t, hub, store, testOptions(t))
	dev := deviceOf(t, first)
	require.NoError(t, first.Close())

	second := startDevice(t, hub, store, testOptions(t))
	again := deviceOf(t, second)

	assert.Equal(t, dev.ID, again.ID)
	assert.Equal(t, "Web-"+string(dev.ID), again.Name)
	assert.Equal(t, domain.RoleDirector, again.Role)
	assert.Equal(t, domain.DeviceReady, again.Status)
	assert.Equal(t, 100, again.Battery)
	assert.Equal(t, 64.0, again.Storage)
}

func TestDevice_WithoutIdentityIgnoresActions(t *testing.T) {
	hub := newTestHub(t)
	store := &mockStore{}
	store.On("GetOrCreate", mock.Anything, DeviceIDKey).Return(nil, errors.New("disk I/O error"))

	d := startDevice(t, hub, store, testOptions(t))
	ctx := context.Background()

	id, err := d.CreateSession(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, d.JoinSession(ctx, "AB12CD"))
	require.NoError(t, d.StartRecording(ctx))
	_, err = d.AddRecording(ctx, domain.Recording{})
	require.NoError(t, err)

	_, ok := d.CurrentDevice()
	assert.False(t, ok)
	_, ok = d.Session()
	assert.False(t, ok)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestDirector_ActionsWithoutSessionAreNoops(t *testing.T) {
	hub := newTestHub(t)
	store := kv.NewKVStore()
	d := startDevice(t, hub, store, testOptions(t))
	ctx := context.Background()

	require.NoError(t, d.StartRecording(ctx))
	require.NoError(t, d.AddDevice(ctx, domain.Device{ID: "x"}))
	require.NoError(t, d.RequestSync(ctx))

	_, ok := d.Session()
	assert.False(t, ok)
	_, err := store.Load(ctx, ActiveSessionKey)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestDirector_CreateSession(t *testing.T) {
	hub := newTestHub(t)
	store := kv.NewKVStore()
	d := startDevice(t, hub, store, testOptions(t))

	id, err := d.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-Z]{6}$`, string(id))

	session := sessionOf(t, d)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, domain.SessionIdle, session.Status)
	require.Len(t, session.Devices, 1)
	assert.Equal(t, deviceOf(t, d).ID, session.Devices[0].ID)
	assert.Equal(t, domain.RoleDirector, session.Devices[0].Role)
	assert.Empty(t, session.Recordings)

	raw, err := store.Load(context.Background(), ActiveSessionKey)
	require.NoError(t, err)
	persisted, err := domain.DecodeSession(raw)
	require.NoError(t, err)
	assert.Equal(t, session.ID, persisted.ID)
}

func TestDirector_StartStopRoundTrip(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	ctx := context.Background()

	_, err := d.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, d.AddDevice(ctx, domain.Device{ID: "cam", Name: "Web-cam", Role: domain.RoleCamera, Status: domain.DeviceReady}))

	require.NoError(t, d.StartRecording(ctx))
	started := sessionOf(t, d)
	assert.Equal(t, domain.SessionActive, started.Status)
	require.NotNil(t, started.RecordingStartTime)
	for _, dev := range started.Devices {
		assert.Equal(t, domain.DeviceRecording, dev.Status)
	}
	assert.Equal(t, domain.DeviceRecording, deviceOf(t, d).Status)

	require.NoError(t, d.StopRecording(ctx))
	stopped := sessionOf(t, d)
	assert.Equal(t, domain.SessionIdle, stopped.Status)
	assert.Nil(t, stopped.RecordingStartTime)
	for _, dev := range stopped.Devices {
		assert.Equal(t, domain.DeviceReady, dev.Status)
	}
}

func TestDirector_JoinRequestIsIdempotent(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	id, err := d.CreateSession(context.Background())
	require.NoError(t, err)

	sender := listen(t, hub, id)
	observer := listen(t, hub, id)
	cam := domain.Device{ID: "cam", Name: "Web-cam", Role: domain.RoleCamera, Status: domain.DeviceReady}

	for i := 0; i < 3; i++ {
		require.NoError(t, sender.Publish(context.Background(), domain.JoinRequest(cam)))
		update := nextOfType(t, observer, domain.MessageSessionUpdate)
		require.NotNil(t, update.Session)
		assert.Equal(t, []domain.DeviceID{deviceOf(t, d).ID, "cam"}, deviceIDs(*update.Session))
	}

	assert.Len(t, sessionOf(t, d).Devices, 2)
}

func TestDirector_DropsJoinWithoutDeviceID(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	id, err := d.CreateSession(context.Background())
	require.NoError(t, err)

	sender := listen(t, hub, id)
	observer := listen(t, hub, id)

	require.NoError(t, sender.Publish(context.Background(), domain.JoinRequest(domain.Device{Name: "anon"})))
	assert.Zero(t, countOfType(observer, domain.MessageSessionUpdate, 100*time.Millisecond))
	assert.Len(t, sessionOf(t, d).Devices, 1)
}

func TestDirector_HeartbeatRebroadcasts(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	id, err := d.CreateSession(context.Background())
	require.NoError(t, err)

	sender := listen(t, hub, id)
	observer := listen(t, hub, id)

	require.NoError(t, sender.Publish(context.Background(), domain.HeartbeatRequest()))
	update := nextOfType(t, observer, domain.MessageSessionUpdate)
	assert.Equal(t, id, update.Session.ID)
}

func TestDirector_IgnoresSessionUpdates(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	id, err := d.CreateSession(context.Background())
	require.NoError(t, err)

	rogue := sessionOf(t, d).StartRecording(time.Now())
	sender := listen(t, hub, id)
	require.NoError(t, sender.Publish(context.Background(), domain.SessionUpdate(rogue)))

	observer := listen(t, hub, id)
	require.NoError(t, sender.Publish(context.Background(), domain.HeartbeatRequest()))
	nextOfType(t, observer, domain.MessageSessionUpdate)
	assert.Equal(t, domain.SessionIdle, sessionOf(t, d).Status)
}

func TestDirector_UpdateDeviceStatus(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	ctx := context.Background()
	_, err := d.CreateSession(ctx)
	require.NoError(t, err)
	self := deviceOf(t, d).ID

	err = d.UpdateDeviceStatus(ctx, self, "Sleeping")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	require.NoError(t, d.UpdateDeviceStatus(ctx, self, domain.DeviceUploading))
	dev, ok := sessionOf(t, d).Device(self)
	require.True(t, ok)
	assert.Equal(t, domain.DeviceUploading, dev.Status)
	assert.Equal(t, domain.DeviceUploading, deviceOf(t, d).Status)

	require.NoError(t, d.UpdateDeviceStatus(ctx, "missing", domain.DeviceError))
	assert.Len(t, sessionOf(t, d).Devices, 1)
}

func TestDirector_AddRecordingFillsDefaults(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	ctx := context.Background()
	_, err := d.CreateSession(ctx)
	require.NoError(t, err)

	rec, err := d.AddRecording(ctx, domain.Recording{Duration: 3.5})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())

	second, err := d.AddRecording(ctx, domain.Recording{ID: "r2", Timestamp: time.UnixMilli(1)})
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingID("r2"), second.ID)

	recs := sessionOf(t, d).Recordings
	require.Len(t, recs, 2)
	assert.Equal(t, domain.RecordingID("r2"), recs[0].ID)
	assert.Equal(t, rec.ID, recs[1].ID)
}

func TestDirector_RecordingTimestampMatchesReplicas(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	ctx := context.Background()
	id, err := d.CreateSession(ctx)
	require.NoError(t, err)
	observer := listen(t, hub, id)

	captured := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	rec, err := d.AddRecording(ctx, domain.Recording{ID: "r1", Timestamp: captured})
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(captured.Truncate(time.Millisecond)))

	local := sessionOf(t, d).Recordings[0].Timestamp
	update := nextOfType(t, observer, domain.MessageSessionUpdate)
	require.Len(t, update.Session.Recordings, 1)
	assert.True(t, local.Equal(update.Session.Recordings[0].Timestamp), "local %v, replica %v", local, update.Session.Recordings[0].Timestamp)
}

func TestDirector_SnapshotInvariantsHold(t *testing.T) {
	hub := newTestHub(t)
	store := kv.NewKVStore()
	d := startDevice(t, hub, store, testOptions(t))
	ctx := context.Background()
	sessionID, err := d.CreateSession(ctx)
	require.NoError(t, err)
	observer := listen(t, hub, sessionID)

	var added []domain.RecordingID
	// newestFirst is the order the first n recordings must appear in
	newestFirst := func(n int) []domain.RecordingID {
		out := make([]domain.RecordingID, 0, n)
		for i := n - 1; i >= 0; i-- {
			out = append(out, added[i])
		}
		return out
	}
	recordingIDs := func(s domain.Session) []domain.RecordingID {
		out := make([]domain.RecordingID, 0, len(s.Recordings))
		for _, r := range s.Recordings {
			out = append(out, r.ID)
		}
		return out
	}
	broadcasts := 0

	rng := rand.New(rand.NewSource(42))
	ids := []domain.DeviceID{"a", "b", "c"}
	statuses := []domain.DeviceStatus{domain.DeviceReady, domain.DeviceSyncing, domain.DeviceUploading, domain.DeviceError}

	for i := 0; i < 60; i++ {
		switch rng.Intn(5) {
		case 0:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, d.AddDevice(ctx, domain.Device{ID: id, Name: "Web-" + string(id), Role: domain.RoleCamera, Status: domain.DeviceReady}))
		case 1:
			id := ids[rng.Intn(len(ids))]
			require.NoError(t, d.UpdateDeviceStatus(ctx, id, statuses[rng.Intn(len(statuses))]))
		case 2:
			require.NoError(t, d.StartRecording(ctx))
		case 3:
			require.NoError(t, d.StopRecording(ctx))
		case 4:
			rec, err := d.AddRecording(ctx, domain.Recording{})
			require.NoError(t, err)
			added = append(added, rec.ID)
		}

		session := sessionOf(t, d)
		require.NoError(t, session.Validate())
		assert.Equal(t, newestFirst(len(added)), recordingIDs(session))

		// publishing is synchronous, so every broadcast of this step is
		// already buffered
		var last *domain.Session
	drain:
		for {
			select {
			case msg := <-observer.Messages():
				if msg.Type != domain.MessageSessionUpdate {
					continue
				}
				broadcasts++
				require.NoError(t, msg.Session.Validate())
				assert.Equal(t, newestFirst(len(msg.Session.Recordings)), recordingIDs(*msg.Session))
				last = msg.Session
			default:
				break drain
			}
		}
		if last != nil {
			got, err := json.Marshal(last)
			require.NoError(t, err)
			want, err := json.Marshal(session)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		}

		switch session.Status {
		case domain.SessionActive:
			assert.NotNil(t, session.RecordingStartTime)
		case domain.SessionIdle:
			assert.Nil(t, session.RecordingStartTime)
		default:
			t.Fatalf("unexpected status %s", session.Status)
		}

		raw, err := store.Load(ctx, ActiveSessionKey)
		require.NoError(t, err)
		expected, err := json.Marshal(session)
		require.NoError(t, err)
		assert.JSONEq(t, string(expected), string(raw))
	}
	assert.Positive(t, broadcasts)
}

func TestDirector_RestoresPersistedSession(t *testing.T) {
	hub := newTestHub(t)
	store := kv.NewKVStore()
	ctx := context.Background()

	first := startDevice(t, hub, store, testOptions(t))
	id, err := first.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, first.AddDevice(ctx, domain.Device{ID: "cam", Name: "Web-cam", Role: domain.RoleCamera, Status: domain.DeviceReady}))
	require.NoError(t, first.Close())

	observer := listen(t, hub, id)
	second := startDevice(t, hub, store, testOptions(t))

	update := nextOfType(t, observer, domain.MessageSessionUpdate)
	assert.Equal(t, id, update.Session.ID)
	assert.Len(t, update.Session.Devices, 2)

	restored := sessionOf(t, second)
	assert.Equal(t, id, restored.ID)
	assert.Equal(t, domain.RoleDirector, deviceOf(t, second).Role)
}

func TestDirector_DiscardsMalformedSnapshot(t *testing.T) {
	hub := newTestHub(t)
	store := kv.NewKVStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, ActiveSessionKey, []byte(`{"id":`)))

	d := startDevice(t, hub, store, testOptions(t))

	_, ok := d.Session()
	assert.False(t, ok)
	_, err := store.Load(ctx, ActiveSessionKey)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	// the device is still usable
	id, err := d.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestDirector_AppliesForwardedRecordingOnce(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	id, err := d.CreateSession(context.Background())
	require.NoError(t, err)

	sender := listen(t, hub, id)
	observer := listen(t, hub, id)
	rec := domain.Recording{ID: "take-1", Timestamp: time.UnixMilli(1_700_000_000_000), Duration: 2}

	require.NoError(t, sender.Publish(context.Background(), domain.RecordingAdded(rec)))
	update := nextOfType(t, observer, domain.MessageSessionUpdate)
	require.Len(t, update.Session.Recordings, 1)

	require.NoError(t, sender.Publish(context.Background(), domain.RecordingAdded(rec)))
	assert.Zero(t, countOfType(observer, domain.MessageSessionUpdate, 100*time.Millisecond))
	assert.Len(t, sessionOf(t, d).Recordings, 1)
}

func TestDevice_ClosedDeviceRejectsActions(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := d.CreateSession(ctx)
	require.NoError(t, err)
	watch := d.Watch(ctx)
	<-watch

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.StartRecording(ctx), domain.ErrDeviceClosed)
	_, err = d.CreateSession(ctx)
	assert.ErrorIs(t, err, domain.ErrDeviceClosed)

	select {
	case _, ok := <-watch:
		assert.False(t, ok)
	case <-time.After(waitFor):
		t.Fatal("watch not closed")
	}
}

func TestDevice_WatchStreamsSnapshots(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))
	ctx, cancel := context.WithCancel(context.Background())

	watch := d.Watch(ctx)
	_, err := d.CreateSession(ctx)
	require.NoError(t, err)

	first := <-watch
	assert.Equal(t, domain.SessionIdle, first.Status)

	require.NoError(t, d.StartRecording(ctx))
	select {
	case next := <-watch:
		assert.Equal(t, domain.SessionActive, next.Status)
	case <-time.After(waitFor):
		t.Fatal("no snapshot after start")
	}

	cancel()
	select {
	case _, ok := <-watch:
		assert.False(t, ok)
	case <-time.After(waitFor):
		t.Fatal("watch not closed after cancel")
	}
}

func TestDevice_CancelledContext(t *testing.T) {
	hub := newTestHub(t)
	d := startDevice(t, hub, nil, testOptions(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.CreateSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeviceOptionsWithDefaults(t *testing.T) {
	opts := DeviceOptions{}.withDefaults()
	assert.NotNil(t, opts.Metrics)
	assert.NotNil(t, opts.Logger)
	assert.Equal(t, domain.RecordingLocal, opts.RecordingPolicy)

	opts = DeviceOptions{Logger: zaptest.NewLogger(t).Sugar(), RecordingPolicy: domain.RecordingForward}.withDefaults()
	assert.Equal(t, domain.RecordingForward, opts.RecordingPolicy)
}
