package upload

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/apperror"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StatusView is the client-visible projection of an upload record. Blob
// keys, attempt counters and the compensation flag stay internal.
type StatusView struct {
	UploadID          string          `json:"uploadId"`
	Status            db.UploadStatus `json:"status"`
	Title             string          `json:"title"`
	ArtistID          string          `json:"artistId"`
	AlbumID           string          `json:"albumId,omitempty"`
	GenreID           string          `json:"genreId,omitempty"`
	RequestedStatus   string          `json:"requestedStatus"`
	DurationHint      *int32          `json:"durationHint,omitempty"`
	ResultEntityID    string          `json:"resultEntityId,omitempty"`
	ExtractedMetadata json.RawMessage `json:"extractedMetadata,omitempty"`
	LastError         string          `json:"lastError,omitempty"`
	JobID             string          `json:"jobId,omitempty"`
	RetryCount        int32           `json:"retryCount"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func NewStatusView(u db.Upload) StatusView {
	v := StatusView{
		UploadID:          u.UploadID,
		Status:            u.Status,
		Title:             u.RequestedTitle,
		ArtistID:          uuidString(u.RequestedArtistID),
		AlbumID:           uuidString(u.RequestedAlbumID),
		GenreID:           uuidString(u.RequestedGenreID),
		RequestedStatus:   u.RequestedTrackStatus,
		ResultEntityID:    uuidString(u.ResultTrackID),
		ExtractedMetadata: u.ExtractedMetadata,
		LastError:         u.LastError.String,
		JobID:             u.JobID.String,
		RetryCount:        u.RetryCount,
		CreatedAt:         u.CreatedAt.Time,
		UpdatedAt:         u.UpdatedAt.Time,
	}
	if u.DurationHint.Valid {
		d := u.DurationHint.Int32
		v.DurationHint = &d
	}
	return v
}

type TrackView struct {
	ID              string    `json:"id"`
	UploadID        string    `json:"uploadId"`
	Title           string    `json:"title"`
	ArtistID        string    `json:"artistId"`
	AlbumID         string    `json:"albumId,omitempty"`
	GenreID         string    `json:"genreId,omitempty"`
	Status          string    `json:"status"`
	AudioURL        string    `json:"audioUrl"`
	CoverURL        string    `json:"coverUrl,omitempty"`
	DurationSeconds int32     `json:"durationSeconds"`
	PlayCount       int64     `json:"playCount"`
	LikeCount       int64     `json:"likeCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

func NewTrackView(t db.Track) TrackView {
	return TrackView{
		ID:              uuidString(t.ID),
		UploadID:        t.UploadID,
		Title:           t.Title,
		ArtistID:        uuidString(t.ArtistID),
		AlbumID:         uuidString(t.AlbumID),
		GenreID:         uuidString(t.GenreID),
		Status:          t.Status,
		AudioURL:        t.AudioURL,
		CoverURL:        t.CoverURL.String,
		DurationSeconds: t.DurationSeconds,
		PlayCount:       t.PlayCount,
		LikeCount:       t.LikeCount,
		CreatedAt:       t.CreatedAt.Time,
	}
}

// StatusService answers owner-scoped status queries. A row owned by someone
// else is reported exactly like a missing one.
type StatusService struct {
	repo db.Querier
}

func NewStatusService(repo db.Querier) *StatusService {
	return &StatusService{repo: repo}
}

func (s *StatusService) GetStatus(ctx context.Context, uploadID string, ownerID uuid.UUID) (*db.Upload, error) {
	u, err := s.repo.GetUploadForOwner(ctx, db.GetUploadForOwnerParams{
		UploadID: uploadID,
		OwnerID:  pgUUID(ownerID),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrUploadNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrInternal)
	}
	return &u, nil
}

func (s *StatusService) GetTrack(ctx context.Context, trackID, ownerID uuid.UUID) (*db.Track, error) {
	t, err := s.repo.GetTrackForOwner(ctx, db.GetTrackForOwnerParams{
		ID:      pgUUID(trackID),
		OwnerID: pgUUID(ownerID),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.ErrTrackNotFound
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrInternal)
	}
	return &t, nil
}
