package worker

import (
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/google/uuid"
)

// ProcessUploadPayload is the body of an upload:process job. The upload row
// is the source of truth; the payload only names it.
type ProcessUploadPayload struct {
	UploadID   string               `json:"upload_id"`
	OwnerID    uuid.UUID            `json:"owner_id"`
	RetryCount int32                `json:"retry_count"`
	Trace      tracing.TraceCarrier `json:"trace,omitempty"`
}

func NewProcessUploadPayload(u db.Upload, trace tracing.TraceCarrier) ProcessUploadPayload {
	return ProcessUploadPayload{
		UploadID:   u.UploadID,
		OwnerID:    uuid.UUID(u.OwnerID.Bytes),
		RetryCount: u.RetryCount,
		Trace:      trace,
	}
}
