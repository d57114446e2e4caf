package domain

import "fmt"

// JoinState tracks a Camera's handshake with its Director.
type JoinState string

const (
	JoinNone    JoinState = "none"
	JoinJoining JoinState = "joining"
	JoinJoined  JoinState = "joined"
	JoinFailed  JoinState = "failed"
)

// RecordingPolicy decides what happens to a recording a Camera finalizes.
type RecordingPolicy string

const (
	// RecordingLocal keeps it in the Camera's own snapshot only.
	RecordingLocal RecordingPolicy = "local"
	// RecordingForward also sends it to the Director as RECORDING_ADDED.
	RecordingForward RecordingPolicy = "forward"
)

func ParseRecordingPolicy(s string) (RecordingPolicy, error) {
	switch p := RecordingPolicy(s); p {
	case RecordingLocal, RecordingForward:
		return p, nil
	case "":
		return RecordingLocal, nil
	default:
		return "", fmt.Errorf("unknown recording policy %q", s)
	}
}
