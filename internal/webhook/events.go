package webhook

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventUploadCompleted = "upload.completed"
	EventUploadFailed    = "upload.failed"
)

type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type UploadCompletedData struct {
	UploadID        string `json:"upload_id"`
	OwnerID         string `json:"owner_id"`
	TrackID         string `json:"track_id"`
	Title           string `json:"title"`
	AudioURL        string `json:"audio_url"`
	CoverURL        string `json:"cover_url,omitempty"`
	DurationSeconds int32  `json:"duration_seconds"`
	RetryCount      int32  `json:"retry_count"`
}

type UploadFailedData struct {
	UploadID     string `json:"upload_id"`
	OwnerID      string `json:"owner_id"`
	Error        string `json:"error"`
	RetryCount   int32  `json:"retry_count"`
	AttemptCount int32  `json:"attempt_count"`
}

func NewEvent(eventType string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        id.String(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Data:      raw,
	}, nil
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
