// Package upload implements idempotent asynchronous track uploads: intake,
// background processing into a catalog track, blob compensation and the
// owner-scoped status query.
package upload

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// JobTypeProcess is the queue job type handled by the background processor.
const JobTypeProcess = "upload:process"

var (
	// ErrReferenceNotFound means the artist, album or genre named by the
	// upload does not exist. Retrying without new input cannot succeed.
	ErrReferenceNotFound = errors.New("referenced entity not found")

	// ErrMissingBlob means a blob the upload record points to is gone.
	ErrMissingBlob = errors.New("upload blob is missing")

	// ErrZeroDuration is returned when zero-duration tracks are rejected and
	// neither the extractor nor the caller supplied a duration.
	ErrZeroDuration = errors.New("track duration could not be determined")

	// ErrTerminal wraps every processing error after which the upload was
	// marked failed. The queue must not redeliver the job.
	ErrTerminal = errors.New("upload failed permanently")

	// ErrAlreadyQueued is reported by an Enqueuer when the job id is already
	// known to the queue.
	ErrAlreadyQueued = errors.New("upload job already queued")

	ErrInvalidTransition = errors.New("invalid upload status transition")
)

// IsPermanent reports whether err cannot be fixed by retrying the same job.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrTerminal) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrMissingBlob) ||
		errors.Is(err, ErrZeroDuration)
}

// JobID is deterministic per attempt. A resubmission after failure bumps the
// retry count and therefore gets a fresh id.
func JobID(uploadID string, retryCount int32) string {
	return fmt.Sprintf("upload:%s:%d", uploadID, retryCount)
}

// NewUploadID returns a time-ordered, globally unique upload id.
func NewUploadID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Blobs names the blob keys owned by one upload attempt.
type Blobs struct {
	Audio string
	Cover string
}

// BlobsFor derives the keys an attempt writes to. Keys depend only on the
// owner, upload id and retry count, so they can be rebuilt after a crash.
func BlobsFor(ownerID uuid.UUID, uploadID string, retryCount int32, withCover bool) Blobs {
	prefix := fmt.Sprintf("uploads/%s/%s/%d/", ownerID, uploadID, retryCount)
	b := Blobs{Audio: prefix + "audio"}
	if withCover {
		b.Cover = prefix + "cover"
	}
	return b
}

func (b Blobs) Keys() []string {
	keys := make([]string, 0, 2)
	if b.Audio != "" {
		keys = append(keys, b.Audio)
	}
	if b.Cover != "" {
		keys = append(keys, b.Cover)
	}
	return keys
}

func (b Blobs) IsZero() bool {
	return b.Audio == "" && b.Cover == ""
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func parseOptionalUUID(s string) (pgtype.UUID, error) {
	if s == "" {
		return pgtype.UUID{}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgUUID(id), nil
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// errorText bounds the error persisted in last_error.
func errorText(err error) pgtype.Text {
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return text(msg)
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
