package domain

import (
	"encoding/json"
	"time"
)

type RecordingID string

// Recording is a clip finalized by the capture pipeline of one device.
// Duration is in seconds; zero means it was not measured.
type Recording struct {
	ID           RecordingID
	Timestamp    time.Time
	Duration     float64
	ThumbnailURL string
}

type recordingJSON struct {
	ID           RecordingID `json:"id"`
	Timestamp    int64       `json:"timestamp"`
	Duration     float64     `json:"duration"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"`
}

func (r Recording) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordingJSON{
		ID:           r.ID,
		Timestamp:    toMillis(r.Timestamp),
		Duration:     r.Duration,
		ThumbnailURL: r.ThumbnailURL,
	})
}

func (r *Recording) UnmarshalJSON(data []byte) error {
	var raw recordingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Recording{
		ID:           raw.ID,
		Timestamp:    fromMillis(raw.Timestamp),
		Duration:     raw.Duration,
		ThumbnailURL: raw.ThumbnailURL,
	}
	return nil
}

// Timestamps travel as Unix milliseconds.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
