package db

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
	UploadStatusCancelled  UploadStatus = "cancelled"
)

func (e *UploadStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = UploadStatus(s)
	case string:
		*e = UploadStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for UploadStatus: %T", src)
	}
	return nil
}

func (e UploadStatus) Valid() bool {
	switch e {
	case UploadStatusPending,
		UploadStatusProcessing,
		UploadStatusCompleted,
		UploadStatusFailed,
		UploadStatusCancelled:
		return true
	}
	return false
}

type Artist struct {
	ID        pgtype.UUID
	Name      string
	CreatedAt pgtype.Timestamptz
}

type Album struct {
	ID        pgtype.UUID
	ArtistID  pgtype.UUID
	Title     string
	CreatedAt pgtype.Timestamptz
}

type Genre struct {
	ID        pgtype.UUID
	Name      string
	CreatedAt pgtype.Timestamptz
}

type Upload struct {
	UploadID             string
	OwnerID              pgtype.UUID
	Status               UploadStatus
	AudioBlobKey         pgtype.Text
	CoverBlobKey         pgtype.Text
	AudioContentType     string
	CoverContentType     pgtype.Text
	ResultTrackID        pgtype.UUID
	RequestedTitle       string
	RequestedArtistID    pgtype.UUID
	RequestedAlbumID     pgtype.UUID
	RequestedGenreID     pgtype.UUID
	RequestedTrackStatus string
	DurationHint         pgtype.Int4
	ExtractedMetadata    []byte
	LastError            pgtype.Text
	JobID                pgtype.Text
	RetryCount           int32
	AttemptCount         int32
	CompensationApplied  bool
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}

type Track struct {
	ID              pgtype.UUID
	UploadID        string
	OwnerID         pgtype.UUID
	Title           string
	ArtistID        pgtype.UUID
	AlbumID         pgtype.UUID
	GenreID         pgtype.UUID
	Status          string
	AudioURL        string
	CoverURL        pgtype.Text
	DurationSeconds int32
	PlayCount       int64
	LikeCount       int64
	CreatedAt       pgtype.Timestamptz
}
