package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	GetUpload(ctx context.Context, uploadID string) (Upload, error)
	GetUploadForOwner(ctx context.Context, arg GetUploadForOwnerParams) (Upload, error)
	CreateUpload(ctx context.Context, arg CreateUploadParams) (Upload, error)
	ResetUploadForRetry(ctx context.Context, arg ResetUploadForRetryParams) (Upload, error)
	SetUploadBlobKeys(ctx context.Context, arg SetUploadBlobKeysParams) error
	MarkUploadEnqueued(ctx context.Context, arg MarkUploadEnqueuedParams) (Upload, error)
	BeginUploadAttempt(ctx context.Context, uploadID string) (Upload, error)
	RecordUploadAttemptError(ctx context.Context, arg RecordUploadAttemptErrorParams) error
	MarkUploadFailed(ctx context.Context, arg MarkUploadFailedParams) (int64, error)
	MarkUploadCompensated(ctx context.Context, uploadID string) error
	CompleteUpload(ctx context.Context, arg CompleteUploadParams) (int64, error)
	ListUncompensatedFailedUploads(ctx context.Context, limit int32) ([]Upload, error)
	ListStaleUploads(ctx context.Context, arg ListStaleUploadsParams) ([]Upload, error)
	TouchUpload(ctx context.Context, uploadID string) error

	ArtistExists(ctx context.Context, id pgtype.UUID) (bool, error)
	AlbumExists(ctx context.Context, id pgtype.UUID) (bool, error)
	GenreExists(ctx context.Context, id pgtype.UUID) (bool, error)
	CreateTrack(ctx context.Context, arg CreateTrackParams) (Track, error)
	GetTrack(ctx context.Context, id pgtype.UUID) (Track, error)
	GetTrackForOwner(ctx context.Context, arg GetTrackForOwnerParams) (Track, error)
}

var _ Querier = (*Queries)(nil)

// Repository is a Querier that can also run a unit of work atomically.
type Repository interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
}
