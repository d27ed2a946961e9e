package client

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// SubmitRequest describes one track submission. AudioPath is required.
type SubmitRequest struct {
	AudioPath string
	CoverPath string
	UploadID  string
	Title     string
	ArtistID  string
	AlbumID   string
	GenreID   string
	Status    string
	Duration  *int

	// Progress, when set, receives every byte of the audio and cover parts.
	Progress io.Writer
}

type SubmitResponse struct {
	UploadID       string `json:"uploadId"`
	Status         string `json:"status"`
	JobID          string `json:"jobId,omitempty"`
	CheckStatusURL string `json:"checkStatusUrl"`
	ResultEntityID string `json:"resultEntityId,omitempty"`
}

type UploadStatus struct {
	UploadID          string          `json:"uploadId"`
	Status            string          `json:"status"`
	Title             string          `json:"title"`
	ArtistID          string          `json:"artistId"`
	AlbumID           string          `json:"albumId,omitempty"`
	GenreID           string          `json:"genreId,omitempty"`
	RequestedStatus   string          `json:"requestedStatus"`
	DurationHint      *int            `json:"durationHint,omitempty"`
	ResultEntityID    string          `json:"resultEntityId,omitempty"`
	ExtractedMetadata json.RawMessage `json:"extractedMetadata,omitempty"`
	LastError         string          `json:"lastError,omitempty"`
	JobID             string          `json:"jobId,omitempty"`
	RetryCount        int             `json:"retryCount"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsTerminal reports whether the upload will not change without a resubmission.
func (s *UploadStatus) IsTerminal() bool {
	switch s.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

type Track struct {
	ID              string    `json:"id"`
	UploadID        string    `json:"uploadId"`
	Title           string    `json:"title"`
	ArtistID        string    `json:"artistId"`
	AlbumID         string    `json:"albumId,omitempty"`
	GenreID         string    `json:"genreId,omitempty"`
	Status          string    `json:"status"`
	AudioURL        string    `json:"audioUrl"`
	CoverURL        string    `json:"coverUrl,omitempty"`
	DurationSeconds int       `json:"durationSeconds"`
	PlayCount       int64     `json:"playCount"`
	LikeCount       int64     `json:"likeCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
