package realtime

import (
	"time"

	"github.com/google/uuid"
)

// VideoEventData is the payload of every video-scoped event. Quality,
// FailureKind and Error are set only on rendition events.
type VideoEventData struct {
	VideoID     uuid.UUID `json:"video_id"`
	Filename    string    `json:"filename,omitempty"`
	Status      string    `json:"status,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	Quality     string    `json:"quality,omitempty"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

func VideoEvent(event SSEEvent, data VideoEventData) SSEMessage {
	if data.At.IsZero() {
		data.At = time.Now().UTC()
	}
	return SSEMessage{
		Channel: data.VideoID.String(),
		Event:   event,
		Data:    data,
	}
}
