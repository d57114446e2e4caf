package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
	"worldview/pkg/validation"

	"go.uber.org/zap"
)

// ProfileStores hands out the storage partition of a profile.
type ProfileStores interface {
	ForProfile(profile string) ports.KeyValueStore
}

// ProfileClaimer is implemented by stores shared with other processes. A
// profile is claimed before its device starts and released after it closes.
type ProfileClaimer interface {
	Claim(ctx context.Context, profile string) (release func(), err error)
}

// Studio hosts devices in this process, one per profile, all sharing one
// transport.
type Studio struct {
	mu        sync.RWMutex
	devices   map[string]ports.DeviceService
	releases  map[string]func()
	starting  map[string]chan struct{}
	closed    bool
	stores    ProfileStores
	transport ports.Transport
	opts      DeviceOptions
	logger    *zap.SugaredLogger
}

var _ ports.Studio = (*Studio)(nil)

func NewStudio(stores ProfileStores, transport ports.Transport, opts DeviceOptions) *Studio {
	opts = opts.withDefaults()
	return &Studio{
		devices:   make(map[string]ports.DeviceService),
		releases:  make(map[string]func()),
		starting:  make(map[string]chan struct{}),
		stores:    stores,
		transport: transport,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Start returns the device hosted under profile, starting it first if
// needed. platform only applies to a device that is not running yet. The
// profile is reserved while its device starts so storage I/O never runs
// under the studio lock; concurrent starts of the same profile wait for the
// first one.
func (s *Studio) Start(ctx context.Context, profile, platform string) (ports.DeviceService, error) {
	if err := validation.ValidateProfile(profile); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, domain.ErrDeviceClosed
		}
		if device, ok := s.devices[profile]; ok {
			s.mu.Unlock()
			return device, nil
		}
		pending, busy := s.starting[profile]
		if !busy {
			s.starting[profile] = make(chan struct{})
			s.mu.Unlock()
			break
		}
		s.mu.Unlock()

		select {
		case <-pending:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	device, release, err := s.launch(ctx, profile, platform)

	s.mu.Lock()
	close(s.starting[profile])
	delete(s.starting, profile)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.closed {
		s.mu.Unlock()
		if cerr := device.Close(); cerr != nil {
			s.logger.Warnw("Failed to close device", "profile", profile, "error", cerr)
		}
		release()
		return nil, domain.ErrDeviceClosed
	}
	s.devices[profile] = device
	s.releases[profile] = release
	s.opts.Metrics.DevicesHosted(len(s.devices))
	s.mu.Unlock()
	return device, nil
}

// launch claims profile and starts its device. It runs without the lock.
func (s *Studio) launch(ctx context.Context, profile, platform string) (ports.DeviceService, func(), error) {
	opts := s.opts
	if platform != "" {
		opts.Platform = platform
	}

	release := func() {}
	if claimer, ok := s.stores.(ProfileClaimer); ok {
		r, err := claimer.Claim(ctx, profile)
		if err != nil {
			return nil, nil, err
		}
		release = r
	}

	device, err := NewDeviceService(ctx, profile, s.stores.ForProfile(profile), s.transport, opts)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to start device %s: %w", profile, err)
	}
	return device, release, nil
}

func (s *Studio) Get(profile string) (ports.DeviceService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[profile]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return device, nil
}

// List returns hosted devices ordered by profile.
func (s *Studio) List() []ports.DeviceService {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.DeviceService, 0, len(s.devices))
	for _, device := range s.devices {
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Profile() < out[j].Profile()
	})
	return out
}

// Stop closes the device and forgets it. Its persisted state is kept.
func (s *Studio) Stop(profile string) error {
	s.mu.Lock()
	device, ok := s.devices[profile]
	release := s.releases[profile]
	if ok {
		delete(s.devices, profile)
		delete(s.releases, profile)
		s.opts.Metrics.DevicesHosted(len(s.devices))
	}
	s.mu.Unlock()

	if !ok {
		return domain.ErrDeviceNotFound
	}
	err := device.Close()
	release()
	return err
}

// Accepting reports whether Start can still host new devices.
func (s *Studio) Accepting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

func (s *Studio) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	devices, releases := s.devices, s.releases
	s.devices = make(map[string]ports.DeviceService)
	s.releases = make(map[string]func())
	s.mu.Unlock()

	for profile, device := range devices {
		if err := device.Close(); err != nil {
			s.logger.Warnw("Failed to close device", "profile", profile, "error", err)
		}
		releases[profile]()
	}
	s.opts.Metrics.DevicesHosted(0)
	return nil
}
