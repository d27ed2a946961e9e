package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const uploadColumns = `upload_id, owner_id, status, audio_blob_key, cover_blob_key, audio_content_type,
    cover_content_type, result_track_id, requested_title, requested_artist_id, requested_album_id,
    requested_genre_id, requested_track_status, duration_hint, extracted_metadata, last_error, job_id,
    retry_count, attempt_count, compensation_applied, created_at, updated_at`

func scanUpload(row pgx.Row) (Upload, error) {
	var i Upload
	err := row.Scan(
		&i.UploadID,
		&i.OwnerID,
		&i.Status,
		&i.AudioBlobKey,
		&i.CoverBlobKey,
		&i.AudioContentType,
		&i.CoverContentType,
		&i.ResultTrackID,
		&i.RequestedTitle,
		&i.RequestedArtistID,
		&i.RequestedAlbumID,
		&i.RequestedGenreID,
		&i.RequestedTrackStatus,
		&i.DurationHint,
		&i.ExtractedMetadata,
		&i.LastError,
		&i.JobID,
		&i.RetryCount,
		&i.AttemptCount,
		&i.CompensationApplied,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanUploads(rows pgx.Rows) ([]Upload, error) {
	defer rows.Close()
	var items []Upload
	for rows.Next() {
		i, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getUpload = `SELECT ` + uploadColumns + ` FROM uploads WHERE upload_id = $1`

func (q *Queries) GetUpload(ctx context.Context, uploadID string) (Upload, error) {
	return scanUpload(q.db.QueryRow(ctx, getUpload, uploadID))
}

const getUploadForOwner = `SELECT ` + uploadColumns + ` FROM uploads WHERE upload_id = $1 AND owner_id = $2`

type GetUploadForOwnerParams struct {
	UploadID string
	OwnerID  pgtype.UUID
}

func (q *Queries) GetUploadForOwner(ctx context.Context, arg GetUploadForOwnerParams) (Upload, error) {
	return scanUpload(q.db.QueryRow(ctx, getUploadForOwner, arg.UploadID, arg.OwnerID))
}

const createUpload = `INSERT INTO uploads (
    upload_id, owner_id, status, audio_content_type, cover_content_type, requested_title,
    requested_artist_id, requested_album_id, requested_genre_id, requested_track_status, duration_hint
) VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (upload_id) DO NOTHING
RETURNING ` + uploadColumns

type CreateUploadParams struct {
	UploadID             string
	OwnerID              pgtype.UUID
	AudioContentType     string
	CoverContentType     pgtype.Text
	RequestedTitle       string
	RequestedArtistID    pgtype.UUID
	RequestedAlbumID     pgtype.UUID
	RequestedGenreID     pgtype.UUID
	RequestedTrackStatus string
	DurationHint         pgtype.Int4
}

// CreateUpload returns pgx.ErrNoRows when a row with the same upload id exists.
func (q *Queries) CreateUpload(ctx context.Context, arg CreateUploadParams) (Upload, error) {
	row := q.db.QueryRow(ctx, createUpload,
		arg.UploadID,
		arg.OwnerID,
		arg.AudioContentType,
		arg.CoverContentType,
		arg.RequestedTitle,
		arg.RequestedArtistID,
		arg.RequestedAlbumID,
		arg.RequestedGenreID,
		arg.RequestedTrackStatus,
		arg.DurationHint,
	)
	return scanUpload(row)
}

const resetUploadForRetry = `UPDATE uploads SET
    status = 'pending',
    retry_count = retry_count + 1,
    attempt_count = 0,
    last_error = NULL,
    job_id = NULL,
    audio_blob_key = NULL,
    cover_blob_key = NULL,
    extracted_metadata = NULL,
    compensation_applied = false,
    audio_content_type = $2,
    cover_content_type = $3,
    requested_title = $4,
    requested_artist_id = $5,
    requested_album_id = $6,
    requested_genre_id = $7,
    requested_track_status = $8,
    duration_hint = $9,
    updated_at = now()
WHERE upload_id = $1 AND status = 'failed'
RETURNING ` + uploadColumns

type ResetUploadForRetryParams struct {
	UploadID             string
	AudioContentType     string
	CoverContentType     pgtype.Text
	RequestedTitle       string
	RequestedArtistID    pgtype.UUID
	RequestedAlbumID     pgtype.UUID
	RequestedGenreID     pgtype.UUID
	RequestedTrackStatus string
	DurationHint         pgtype.Int4
}

// ResetUploadForRetry moves a failed upload back to pending. It returns
// pgx.ErrNoRows when the row is no longer failed.
func (q *Queries) ResetUploadForRetry(ctx context.Context, arg ResetUploadForRetryParams) (Upload, error) {
	row := q.db.QueryRow(ctx, resetUploadForRetry,
		arg.UploadID,
		arg.AudioContentType,
		arg.CoverContentType,
		arg.RequestedTitle,
		arg.RequestedArtistID,
		arg.RequestedAlbumID,
		arg.RequestedGenreID,
		arg.RequestedTrackStatus,
		arg.DurationHint,
	)
	return scanUpload(row)
}

const setUploadBlobKeys = `UPDATE uploads SET audio_blob_key = $2, cover_blob_key = $3, updated_at = now()
WHERE upload_id = $1`

type SetUploadBlobKeysParams struct {
	UploadID     string
	AudioBlobKey pgtype.Text
	CoverBlobKey pgtype.Text
}

func (q *Queries) SetUploadBlobKeys(ctx context.Context, arg SetUploadBlobKeysParams) error {
	_, err := q.db.Exec(ctx, setUploadBlobKeys, arg.UploadID, arg.AudioBlobKey, arg.CoverBlobKey)
	return err
}

const markUploadEnqueued = `UPDATE uploads SET
    job_id = $2,
    status = CASE WHEN status = 'pending' THEN 'processing'::upload_status ELSE status END,
    updated_at = now()
WHERE upload_id = $1 AND status IN ('pending', 'processing')
RETURNING ` + uploadColumns

type MarkUploadEnqueuedParams struct {
	UploadID string
	JobID    pgtype.Text
}

// MarkUploadEnqueued records the job id and moves a pending upload to
// processing. It returns pgx.ErrNoRows when a worker already finished it.
func (q *Queries) MarkUploadEnqueued(ctx context.Context, arg MarkUploadEnqueuedParams) (Upload, error) {
	return scanUpload(q.db.QueryRow(ctx, markUploadEnqueued, arg.UploadID, arg.JobID))
}

const beginUploadAttempt = `UPDATE uploads SET
    attempt_count = attempt_count + 1,
    status = 'processing',
    updated_at = now()
WHERE upload_id = $1 AND status IN ('pending', 'processing')
RETURNING ` + uploadColumns

func (q *Queries) BeginUploadAttempt(ctx context.Context, uploadID string) (Upload, error) {
	return scanUpload(q.db.QueryRow(ctx, beginUploadAttempt, uploadID))
}

const recordUploadAttemptError = `UPDATE uploads SET last_error = $2, updated_at = now()
WHERE upload_id = $1 AND status IN ('pending', 'processing')`

type RecordUploadAttemptErrorParams struct {
	UploadID  string
	LastError pgtype.Text
}

func (q *Queries) RecordUploadAttemptError(ctx context.Context, arg RecordUploadAttemptErrorParams) error {
	_, err := q.db.Exec(ctx, recordUploadAttemptError, arg.UploadID, arg.LastError)
	return err
}

const markUploadFailed = `UPDATE uploads SET status = 'failed', last_error = $2, updated_at = now()
WHERE upload_id = $1 AND status IN ('pending', 'processing')`

type MarkUploadFailedParams struct {
	UploadID  string
	LastError pgtype.Text
}

func (q *Queries) MarkUploadFailed(ctx context.Context, arg MarkUploadFailedParams) (int64, error) {
	result, err := q.db.Exec(ctx, markUploadFailed, arg.UploadID, arg.LastError)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const markUploadCompensated = `UPDATE uploads SET compensation_applied = true, updated_at = now()
WHERE upload_id = $1`

func (q *Queries) MarkUploadCompensated(ctx context.Context, uploadID string) error {
	_, err := q.db.Exec(ctx, markUploadCompensated, uploadID)
	return err
}

const completeUpload = `UPDATE uploads SET
    status = 'completed',
    result_track_id = $2,
    extracted_metadata = $3,
    last_error = NULL,
    updated_at = now()
WHERE upload_id = $1 AND status IN ('pending', 'processing')`

type CompleteUploadParams struct {
	UploadID          string
	ResultTrackID     pgtype.UUID
	ExtractedMetadata []byte
}

func (q *Queries) CompleteUpload(ctx context.Context, arg CompleteUploadParams) (int64, error) {
	result, err := q.db.Exec(ctx, completeUpload, arg.UploadID, arg.ResultTrackID, arg.ExtractedMetadata)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listUncompensatedFailedUploads = `SELECT ` + uploadColumns + ` FROM uploads
WHERE status = 'failed' AND compensation_applied = false
ORDER BY updated_at
LIMIT $1`

func (q *Queries) ListUncompensatedFailedUploads(ctx context.Context, limit int32) ([]Upload, error) {
	rows, err := q.db.Query(ctx, listUncompensatedFailedUploads, limit)
	if err != nil {
		return nil, err
	}
	return scanUploads(rows)
}

const listStaleUploads = `SELECT ` + uploadColumns + ` FROM uploads
WHERE status = $1 AND updated_at < $2
ORDER BY updated_at
LIMIT $3`

type ListStaleUploadsParams struct {
	Status        UploadStatus
	UpdatedBefore pgtype.Timestamptz
	Limit         int32
}

func (q *Queries) ListStaleUploads(ctx context.Context, arg ListStaleUploadsParams) ([]Upload, error) {
	rows, err := q.db.Query(ctx, listStaleUploads, arg.Status, arg.UpdatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanUploads(rows)
}

const touchUpload = `UPDATE uploads SET updated_at = now() WHERE upload_id = $1`

func (q *Queries) TouchUpload(ctx context.Context, uploadID string) error {
	_, err := q.db.Exec(ctx, touchUpload, uploadID)
	return err
}
