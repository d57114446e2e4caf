package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type SessionID string

type SessionStatus string

const (
	SessionIdle       SessionStatus = "Idle"
	SessionActive     SessionStatus = "Active"
	SessionProcessing SessionStatus = "Processing"
	SessionComplete   SessionStatus = "Complete"
)

// Session is the canonical state of one multi-camera recording session.
//
// A Session is treated as a value: every transition below returns a new
// snapshot and never writes through to the receiver's slices, so a snapshot
// handed to a watcher or to the transport can not change underneath it.
// Devices are kept in join order; Recordings are most-recent-first.
type Session struct {
	ID                 SessionID
	CreatedAt          time.Time
	Devices            []Device
	Status             SessionStatus
	RecordingStartTime *time.Time
	Recordings         []Recording
}

// NewSession builds an idle session whose only member is creator.
func NewSession(id SessionID, creator Device, now time.Time) Session {
	return Session{
		ID:         id,
		CreatedAt:  now,
		Devices:    []Device{creator},
		Status:     SessionIdle,
		Recordings: []Recording{},
	}
}

// Clone returns a deep copy with non-nil slices.
func (s Session) Clone() Session {
	out := s
	out.Devices = make([]Device, len(s.Devices))
	copy(out.Devices, s.Devices)
	out.Recordings = make([]Recording, len(s.Recordings))
	copy(out.Recordings, s.Recordings)
	if s.RecordingStartTime != nil {
		started := *s.RecordingStartTime
		out.RecordingStartTime = &started
	}
	return out
}

func (s Session) Device(id DeviceID) (Device, bool) {
	for _, d := range s.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

func (s Session) HasDevice(id DeviceID) bool {
	_, ok := s.Device(id)
	return ok
}

func (s Session) HasRecording(id RecordingID) bool {
	for _, r := range s.Recordings {
		if r.ID == id {
			return true
		}
	}
	return false
}

// WithDevice appends d unless a device with the same id is already a member.
// The bool reports whether membership changed.
func (s Session) WithDevice(d Device) (Session, bool) {
	if s.HasDevice(d.ID) {
		return s, false
	}
	next := s.Clone()
	next.Devices = append(next.Devices, d)
	return next, true
}

// WithDeviceStatus replaces the status of the matching device.
func (s Session) WithDeviceStatus(id DeviceID, status DeviceStatus) (Session, bool) {
	current, ok := s.Device(id)
	if !ok || current.Status == status {
		return s, false
	}
	next := s.Clone()
	for i := range next.Devices {
		if next.Devices[i].ID == id {
			next.Devices[i].Status = status
		}
	}
	return next, true
}

// StartRecording marks the session active and every member as recording.
func (s Session) StartRecording(now time.Time) Session {
	next := s.withAllDevices(DeviceRecording)
	next.Status = SessionActive
	next.RecordingStartTime = &now
	return next
}

// StopRecording returns the session to idle and every member to ready.
func (s Session) StopRecording() Session {
	next := s.withAllDevices(DeviceReady)
	next.Status = SessionIdle
	next.RecordingStartTime = nil
	return next
}

// WithRecording prepends rec.
func (s Session) WithRecording(rec Recording) Session {
	next := s.Clone()
	next.Recordings = make([]Recording, 0, len(s.Recordings)+1)
	next.Recordings = append(next.Recordings, rec)
	next.Recordings = append(next.Recordings, s.Recordings...)
	return next
}

func (s Session) withAllDevices(status DeviceStatus) Session {
	next := s.Clone()
	for i := range next.Devices {
		next.Devices[i].Status = status
	}
	return next
}

// Validate checks the structural invariants every broadcast snapshot must hold.
func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}
	seen := make(map[DeviceID]struct{}, len(s.Devices))
	for _, d := range s.Devices {
		if d.ID == "" {
			return fmt.Errorf("%w: device without id", ErrInvalidSession)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate device %s", ErrInvalidSession, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	switch s.Status {
	case SessionIdle, SessionActive, SessionProcessing, SessionComplete:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSession, s.Status)
	}
	return nil
}

type sessionJSON struct {
	ID                 SessionID     `json:"id"`
	CreatedAt          int64         `json:"createdAt"`
	Devices            []Device      `json:"devices"`
	Status             SessionStatus `json:"status"`
	RecordingStartTime *int64        `json:"recordingStartTime,omitempty"`
	Recordings         []Recording   `json:"recordings"`
}

func (s Session) MarshalJSON() ([]byte, error) {
	raw := sessionJSON{
		ID:         s.ID,
		CreatedAt:  toMillis(s.CreatedAt),
		Devices:    s.Devices,
		Status:     s.Status,
		Recordings: s.Recordings,
	}
	if raw.Devices == nil {
		raw.Devices = []Device{}
	}
	if raw.Recordings == nil {
		raw.Recordings = []Recording{}
	}
	if s.RecordingStartTime != nil {
		ms := toMillis(*s.RecordingStartTime)
		raw.RecordingStartTime = &ms
	}
	return json.Marshal(raw)
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Session{
		ID:         raw.ID,
		CreatedAt:  fromMillis(raw.CreatedAt),
		Devices:    raw.Devices,
		Status:     raw.Status,
		Recordings: raw.Recordings,
	}
	if s.Devices == nil {
		s.Devices = []Device{}
	}
	if s.Recordings == nil {
		s.Recordings = []Recording{}
	}
	if raw.RecordingStartTime != nil {
		started := fromMillis(*raw.RecordingStartTime)
		s.RecordingStartTime = &started
	}
	return nil
}

// DecodeSession parses and validates a persisted or received snapshot.
func DecodeSession(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}
