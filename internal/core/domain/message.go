package domain

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MessageJoinRequest      MessageType = "JOIN_REQUEST"
	MessageSessionUpdate    MessageType = "SESSION_UPDATE"
	MessageHeartbeatRequest MessageType = "HEARTBEAT_REQUEST"
	MessageRecordingAdded   MessageType = "RECORDING_ADDED"
)

// Message is the tagged union exchanged on a session scope. Exactly one
// payload field is set, matching Type; HEARTBEAT_REQUEST carries none.
type Message struct {
	Type      MessageType `json:"type"`
	Device    *Device     `json:"device,omitempty"`
	Session   *Session    `json:"session,omitempty"`
	Recording *Recording  `json:"recording,omitempty"`
}

func JoinRequest(d Device) Message {
	return Message{Type: MessageJoinRequest, Device: &d}
}

func SessionUpdate(s Session) Message {
	snapshot := s.Clone()
	return Message{Type: MessageSessionUpdate, Session: &snapshot}
}

func HeartbeatRequest() Message {
	return Message{Type: MessageHeartbeatRequest}
}

func RecordingAdded(r Recording) Message {
	return Message{Type: MessageRecordingAdded, Recording: &r}
}

// Validate rejects messages whose payload does not match their type.
func (m Message) Validate() error {
	switch m.Type {
	case MessageJoinRequest:
		if m.Device == nil {
			return fmt.Errorf("%w: %s without device", ErrInvalidMessage, m.Type)
		}
	case MessageSessionUpdate:
		if m.Session == nil {
			return fmt.Errorf("%w: %s without session", ErrInvalidMessage, m.Type)
		}
	case MessageRecordingAdded:
		if m.Recording == nil {
			return fmt.Errorf("%w: %s without recording", ErrInvalidMessage, m.Type)
		}
	case MessageHeartbeatRequest:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

func EncodeMessage(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
