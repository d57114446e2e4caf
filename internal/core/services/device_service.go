package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/pkg/config"
	"worldview/pkg/tracing"

	"go.uber.org/zap"
)

type DeviceOptions struct {
	Platform  string
	Battery   int
	StorageGB float64

	// RetryDelays are measured from the join call, not from each other.
	RetryDelays       []time.Duration
	JoinTimeout       time.Duration
	HeartbeatInterval time.Duration
	RecordingPolicy   domain.RecordingPolicy

	Metrics ports.SyncMetrics
	Logger  *zap.SugaredLogger
}

func DefaultDeviceOptions() DeviceOptions {
	return DeviceOptions{
		Platform:        "web",
		Battery:         100,
		StorageGB:       64,
		RetryDelays:     []time.Duration{100 * time.Millisecond, time.Second, 3 * time.Second},
		JoinTimeout:     5 * time.Second,
		RecordingPolicy: domain.RecordingLocal,
	}
}

// DeviceOptionsFromConfig maps the device, join, camera and session
// sections of cfg.
func DeviceOptionsFromConfig(cfg *config.Config, metrics ports.SyncMetrics, logger *zap.SugaredLogger) (DeviceOptions, error) {
	policy, err := domain.ParseRecordingPolicy(cfg.Session.RecordingPolicy)
	if err != nil {
		return DeviceOptions{}, err
	}
	delays := make([]time.Duration, len(cfg.Join.RetryDelays))
	copy(delays, cfg.Join.RetryDelays)

	return DeviceOptions{
		Platform:          cfg.Device.Platform,
		Battery:           cfg.Device.Battery,
		StorageGB:         cfg.Device.StorageGB,
		RetryDelays:       delays,
		JoinTimeout:       cfg.Join.Timeout,
		HeartbeatInterval: cfg.Camera.HeartbeatInterval,
		RecordingPolicy:   policy,
		Metrics:           metrics,
		Logger:            logger,
	}, nil
}

func (o DeviceOptions) withDefaults() DeviceOptions {
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.RecordingPolicy == "" {
		o.RecordingPolicy = domain.RecordingLocal
	}
	return o
}

// view is what readers see. It is rebuilt by the event loop after every
// event and never mutated once published.
type view struct {
	device  *domain.Device
	session *domain.Session
	join    domain.JoinState
}

// deviceService is one hosted device. Every field below the divider is
// owned by the run goroutine.
type deviceService struct {
	profile   string
	store     ports.KeyValueStore
	transport ports.Transport
	opts      DeviceOptions
	metrics   ports.SyncMetrics
	logger    *zap.SugaredLogger

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// ctx bounds the store and transport calls made from timers.
	ctx    context.Context
	cancel context.CancelFunc

	current atomic.Pointer[view]

	watchMu  sync.Mutex
	watchers map[uint64]chan domain.Session
	watchSeq uint64

	// ---- event loop state ----
	device     *domain.Device
	session    *domain.Session
	joinState  domain.JoinState
	sub        ports.Subscription
	generation uint64
	timers     []*time.Timer
	heartbeat  *time.Timer
}

var _ ports.DeviceService = (*deviceService)(nil)

// NewDeviceService starts the device's event loop, resolves its identity
// and restores a persisted Director session. A device whose identity can
// not be resolved is still returned; all its actions are no-ops.
func NewDeviceService(
	ctx context.Context,
	profile string,
	store ports.KeyValueStore,
	transport ports.Transport,
	opts DeviceOptions,
) (ports.DeviceService, error) {
	return newDeviceService(ctx, profile, store, transport, opts)
}

func newDeviceService(
	ctx context.Context,
	profile string,
	store ports.KeyValueStore,
	transport ports.Transport,
	opts DeviceOptions,
) (*deviceService, error) {
	opts = opts.withDefaults()

	s := &deviceService{
		profile:   profile,
		store:     store,
		transport: transport,
		opts:      opts,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("profile", profile),
		inbox:     make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		watchers:  make(map[uint64]chan domain.Session),
		joinState: domain.JoinNone,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.current.Store(&view{join: domain.JoinNone})

	go s.run()

	if err := s.do(ctx, "start", func(ctx context.Context) error {
		s.bootstrap(ctx)
		return nil
	}); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *deviceService) run() {
	defer close(s.done)
	defer s.cancel()

	for {
		var messages <-chan domain.Message
		if s.sub != nil {
			messages = s.sub.Messages()
		}

		select {
		case <-s.quit:
			s.teardownScope()
			return
		case fn := <-s.inbox:
			fn()
		case msg, ok := <-messages:
			if !ok {
				s.logger.Warnw("Subscription closed by transport", "session_id", s.sub.SessionID())
				s.sub = nil
				continue
			}
			s.handleMessage(msg)
		}
		s.publishView()
	}
}

// do runs fn on the event loop and waits for its result. fn gets a context
// that keeps the caller's values but not its cancellation, so an action the
// loop has started is always finished.
func (s *deviceService) do(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := tracing.TraceDeviceAction(ctx, action, s.profile)
	defer span.End()

	reply := make(chan error, 1)
	detached := context.WithoutCancel(ctx)
	task := func() { reply <- fn(detached) }

	select {
	case s.inbox <- task:
	case <-s.done:
		return domain.ErrDeviceClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		if err != nil {
			tracing.RecordError(ctx, err)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn from a timer goroutine. It is dropped once the loop exited.
func (s *deviceService) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

func (s *deviceService) bootstrap(ctx context.Context) {
	device, err := resolveIdentity(ctx, s.store, s.opts)
	if err != nil {
		s.logger.Errorw("Device has no identity, actions are disabled", "error", err)
		return
	}
	s.device = &device
	s.logger = s.logger.With("device_id", device.ID)
	s.logger.Infow("Device started", "name", device.Name)

	s.restore(ctx)
}

func (s *deviceService) handleMessage(msg domain.Message) {
	s.metrics.MessageReceived(msg.Type)
	if s.device == nil || s.session == nil {
		return
	}
	if s.device.IsDirector() {
		s.handleDirectorMessage(s.ctx, msg)
		return
	}
	s.handleCameraMessage(msg)
}

// apply swaps in next. Directors replicate changed snapshots; Cameras only
// keep them locally.
func (s *deviceService) apply(ctx context.Context, next domain.Session, changed bool) {
	s.session = &next
	if changed && s.device.IsDirector() {
		s.replicate(ctx)
	}
}

func (s *deviceService) ready() bool {
	return s.device != nil && s.session != nil
}

func (s *deviceService) publish(ctx context.Context, msg domain.Message) {
	if s.sub == nil {
		return
	}
	if err := s.sub.Publish(ctx, msg); err != nil {
		s.logger.Warnw("Failed to publish message", "type", msg.Type, "error", err)
		return
	}
	s.metrics.MessagePublished(msg.Type)
}

// openScope replaces the current subscription with one on id. Cameras also
// get their join attempts and heartbeat scheduled.
func (s *deviceService) openScope(ctx context.Context, id domain.SessionID) {
	s.teardownScope()

	sub, err := s.transport.Subscribe(ctx, id)
	if err != nil {
		s.logger.Warnw("Failed to open session scope", "session_id", id, "error", err)
		return
	}
	s.sub = sub

	if !s.device.IsDirector() {
		s.scheduleJoin(s.generation)
		s.scheduleHeartbeat(s.generation)
	}
}

// teardownScope closes the subscription and cancels every pending timer.
// Timer callbacks already queued are discarded by the generation check.
func (s *deviceService) teardownScope() {
	s.generation++
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
}

// after schedules fn on the loop unless the scope of gen is gone by then.
func (s *deviceService) after(d time.Duration, gen uint64, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		s.post(func() {
			if gen != s.generation {
				return
			}
			fn()
		})
	})
}

func (s *deviceService) publishView() {
	v := &view{join: s.joinState}
	if s.device != nil {
		d := *s.device
		v.device = &d
	}
	if s.session != nil {
		snapshot := s.session.Clone()
		v.session = &snapshot
	}

	prev := s.current.Swap(v)
	if v.session != nil && !sameSnapshot(prev.session, v.session) {
		s.notifyWatchers(*v.session)
	}
}

func sameSnapshot(a, b *domain.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Status != b.Status || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if (a.RecordingStartTime == nil) != (b.RecordingStartTime == nil) {
		return false
	}
	if a.RecordingStartTime != nil && !a.RecordingStartTime.Equal(*b.RecordingStartTime) {
		return false
	}
	if len(a.Devices) != len(b.Devices) || len(a.Recordings) != len(b.Recordings) {
		return false
	}
	for i := range a.Devices {
		if a.Devices[i] != b.Devices[i] {
			return false
		}
	}
	for i := range a.Recordings {
		ra, rb := a.Recordings[i], b.Recordings[i]
		if ra.ID != rb.ID || !ra.Timestamp.Equal(rb.Timestamp) || ra.Duration != rb.Duration || ra.ThumbnailURL != rb.ThumbnailURL {
			return false
		}
	}
	return true
}

// notifyWatchers hands snap to every watcher, replacing a snapshot the
// watcher has not read yet.
func (s *deviceService) notifyWatchers(snap domain.Session) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap.Clone()
	}
}

func (s *deviceService) Profile() string {
	return s.profile
}

func (s *deviceService) CurrentDevice() (domain.Device, bool) {
	v := s.current.Load()
	if v.device == nil {
		return domain.Device{}, false
	}
	return *v.device, true
}

func (s *deviceService) Session() (domain.Session, bool) {
	v := s.current.Load()
	if v.session == nil {
		return domain.Session{}, false
	}
	return v.session.Clone(), true
}

func (s *deviceService) JoinState() domain.JoinState {
	return s.current.Load().join
}

func (s *deviceService) Watch(ctx context.Context) <-chan domain.Session {
	ch := make(chan domain.Session, 1)

	s.watchMu.Lock()
	select {
	case <-s.done:
		s.watchMu.Unlock()
		close(ch)
		return ch
	default:
	}
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = ch
	if v := s.current.Load(); v.session != nil {
		ch <- v.session.Clone()
	}
	s.watchMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}()
	return ch
}

func (s *deviceService) RequestSync(ctx context.Context) error {
	return s.do(ctx, "request_sync", func(ctx context.Context) error {
		if !s.ready() {
			return nil
		}
		if s.device.IsDirector() {
			s.broadcast(ctx)
			return nil
		}
		s.publish(ctx, domain.HeartbeatRequest())
		return nil
	})
}

// Close stops the event loop, closes the subscription and ends every watch.
func (s *deviceService) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.logger.Infow("Device stopped")
	})
	return nil
}
