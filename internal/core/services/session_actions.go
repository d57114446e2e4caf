package services

import (
	"context"
	"time"

	"worldview/internal/core/domain"
	"worldview/pkg/utils"
)

// The actions below are no-ops without an identity, and all but
// CreateSession and JoinSession are no-ops without a session.

func (s *deviceService) CreateSession(ctx context.Context) (domain.SessionID, error) {
	var id domain.SessionID
	err := s.do(ctx, "create_session", func(ctx context.Context) error {
		if s.device == nil {
			return nil
		}
		id = s.createSession(ctx)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *deviceService) JoinSession(ctx context.Context, id domain.SessionID) error {
	id = domain.SessionID(utils.NormalizeSessionCode(string(id)))
	return s.do(ctx, "join_session", func(ctx context.Context) error {
		if s.device == nil || id == "" {
			return nil
		}
		s.joinSession(ctx, id)
		return nil
	})
}

func (s *deviceService) AddDevice(ctx context.Context, device domain.Device) error {
	return s.do(ctx, "add_device", func(ctx context.Context) error {
		if !s.ready() || device.ID == "" {
			return nil
		}
		next, changed := s.session.WithDevice(device)
		s.apply(ctx, next, changed)
		return nil
	})
}

func (s *deviceService) UpdateDeviceStatus(ctx context.Context, id domain.DeviceID, status domain.DeviceStatus) error {
	if _, err := domain.ParseDeviceStatus(string(status)); err != nil {
		return err
	}
	return s.do(ctx, "update_device_status", func(ctx context.Context) error {
		if !s.ready() {
			return nil
		}
		next, changed := s.session.WithDeviceStatus(id, status)
		s.apply(ctx, next, changed)
		if changed && id == s.device.ID {
			s.device.Status = status
		}
		return nil
	})
}

func (s *deviceService) StartRecording(ctx context.Context) error {
	return s.do(ctx, "start_recording", func(ctx context.Context) error {
		if !s.ready() {
			return nil
		}
		s.apply(ctx, s.session.StartRecording(utils.Now()), true)
		s.device.Status = domain.DeviceRecording
		s.logger.Infow("Recording started", "session_id", s.session.ID, "role", s.device.Role)
		return nil
	})
}

func (s *deviceService) StopRecording(ctx context.Context) error {
	return s.do(ctx, "stop_recording", func(ctx context.Context) error {
		if !s.ready() {
			return nil
		}
		s.apply(ctx, s.session.StopRecording(), true)
		s.device.Status = domain.DeviceReady
		s.logger.Infow("Recording stopped", "session_id", s.session.ID, "role", s.device.Role)
		return nil
	})
}

// AddRecording prepends rec, filling in a missing id and timestamp. A
// Camera forwards it to the Director only under the forward policy.
func (s *deviceService) AddRecording(ctx context.Context, rec domain.Recording) (domain.Recording, error) {
	if rec.ID == "" {
		rec.ID = domain.RecordingID(utils.GenerateRecordingID())
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = utils.Now()
	}
	// snapshots carry milliseconds on the wire and in storage
	rec.Timestamp = rec.Timestamp.Truncate(time.Millisecond)

	err := s.do(ctx, "add_recording", func(ctx context.Context) error {
		if !s.ready() {
			return nil
		}
		s.apply(ctx, s.session.WithRecording(rec), true)
		if !s.device.IsDirector() && s.opts.RecordingPolicy == domain.RecordingForward {
			s.publish(ctx, domain.RecordingAdded(rec))
		}
		return nil
	})
	if err != nil {
		return domain.Recording{}, err
	}
	return rec, nil
}
