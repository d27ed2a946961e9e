package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/apperror"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Enqueuer hands an upload attempt to the durable job queue.
type Enqueuer interface {
	// EnqueueProcessing returns the job id. It returns ErrAlreadyQueued
	// together with the id when the queue already holds the job.
	EnqueueProcessing(ctx context.Context, u db.Upload) (string, error)
}

type SubmitResult struct {
	UploadID      string
	Status        db.UploadStatus
	JobID         string
	ResultTrackID string
	// Replayed is true when the call returned an existing upload's state
	// instead of starting a new attempt.
	Replayed bool
}

// Orchestrator is the synchronous intake path. It never extracts metadata
// and never creates catalog records.
type Orchestrator struct {
	repo      db.Querier
	store     storage.Storage
	queue     Enqueuer
	comp      *Compensator
	validator *Validator
}

func NewOrchestrator(repo db.Querier, store storage.Storage, queue Enqueuer, comp *Compensator, validator *Validator) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		store:     store,
		queue:     queue,
		comp:      comp,
		validator: validator,
	}
}

func (o *Orchestrator) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	start := time.Now()
	res, err := o.submit(ctx, req)

	outcome := "accepted"
	switch {
	case err != nil:
		outcome = apperror.Code(err)
	case res.Replayed:
		outcome = "replayed"
	}
	var coverSize int64
	if req.Cover != nil {
		coverSize = req.Cover.Size
	}
	var audioSize int64
	if req.Audio != nil {
		audioSize = req.Audio.Size
	}
	metrics.RecordSubmission(outcome, audioSize, coverSize, time.Since(start).Seconds())
	return res, err
}

func (o *Orchestrator) submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if err := o.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.UploadID == "" {
		req.UploadID = NewUploadID()
	}

	ctx = logger.WithUploadID(ctx, req.UploadID)
	log := logger.FromContext(ctx)

	row, proceed, err := o.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !proceed {
		log.Info("upload already known, returning current state", "status", row.Status)
		return resultFrom(row, true), nil
	}

	blobs := BlobsFor(req.OwnerID, row.UploadID, row.RetryCount, req.Cover != nil)
	if err := o.storeBlobs(ctx, req, blobs); err != nil {
		return nil, err
	}

	if err := o.repo.SetUploadBlobKeys(ctx, db.SetUploadBlobKeysParams{
		UploadID:     row.UploadID,
		AudioBlobKey: text(blobs.Audio),
		CoverBlobKey: text(blobs.Cover),
	}); err != nil {
		o.abort(ctx, row.UploadID, blobs, fmt.Errorf("persist blob keys: %w", err))
		return nil, apperror.Wrap(err, apperror.ErrInternal)
	}
	row.AudioBlobKey = text(blobs.Audio)
	row.CoverBlobKey = text(blobs.Cover)

	jobID, err := o.queue.EnqueueProcessing(ctx, row)
	if err != nil && !errors.Is(err, ErrAlreadyQueued) {
		o.abort(ctx, row.UploadID, blobs, fmt.Errorf("enqueue processing job: %w", err))
		return nil, apperror.Wrap(err, apperror.ErrQueueUnavailable)
	}

	updated, err := o.repo.MarkUploadEnqueued(ctx, db.MarkUploadEnqueuedParams{
		UploadID: row.UploadID,
		JobID:    text(jobID),
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// the worker finished before intake recorded the job
		current, getErr := o.repo.GetUpload(ctx, row.UploadID)
		if getErr != nil {
			return nil, apperror.Wrap(getErr, apperror.ErrInternal)
		}
		return resultFrom(current, false), nil
	case err != nil:
		// the job is queued and will advance the row on its own
		log.Warn("failed to record enqueued job", "job_id", jobID, "error", err)
		return &SubmitResult{UploadID: row.UploadID, Status: db.UploadStatusProcessing, JobID: jobID}, nil
	}

	metrics.RecordTransition(string(db.UploadStatusProcessing))
	log.Info("upload accepted", "job_id", jobID, "retry_count", updated.RetryCount)
	return resultFrom(updated, false), nil
}

// resolve finds or creates the upload row. proceed is false when the
// caller should just report the row's current state.
func (o *Orchestrator) resolve(ctx context.Context, req *SubmitRequest) (db.Upload, bool, error) {
	log := logger.FromContext(ctx)

	artistID, _ := parseOptionalUUID(req.ArtistID)
	albumID, _ := parseOptionalUUID(req.AlbumID)
	genreID, _ := parseOptionalUUID(req.GenreID)
	trackStatus := req.Status
	if trackStatus == "" {
		trackStatus = "draft"
	}
	var durationHint pgtype.Int4
	if req.DurationHint != nil {
		durationHint = pgtype.Int4{Int32: int32(*req.DurationHint), Valid: true}
	}
	var coverType pgtype.Text
	if req.Cover != nil {
		coverType = text(metadata.NormalizeContentType(req.Cover.ContentType))
	}
	audioType := metadata.NormalizeContentType(req.Audio.ContentType)

	existing, err := o.repo.GetUpload(ctx, req.UploadID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		created, err := o.repo.CreateUpload(ctx, db.CreateUploadParams{
			UploadID:             req.UploadID,
			OwnerID:              pgUUID(req.OwnerID),
			AudioContentType:     audioType,
			CoverContentType:     coverType,
			RequestedTitle:       req.Title,
			RequestedArtistID:    artistID,
			RequestedAlbumID:     albumID,
			RequestedGenreID:     genreID,
			RequestedTrackStatus: trackStatus,
			DurationHint:         durationHint,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			// lost an insert race with a concurrent submission
			return o.current(ctx, req)
		}
		if err != nil {
			return db.Upload{}, false, apperror.Wrap(err, apperror.ErrInternal)
		}
		metrics.RecordTransition(string(db.UploadStatusPending))
		log.Info("upload created")
		return created, true, nil
	case err != nil:
		return db.Upload{}, false, apperror.Wrap(err, apperror.ErrInternal)
	}

	if existing.OwnerID != pgUUID(req.OwnerID) {
		return db.Upload{}, false, apperror.ErrUploadIDConflict
	}
	if existing.Status != db.UploadStatusFailed {
		return existing, false, nil
	}

	if err := checkTransition(existing.Status, db.UploadStatusPending); err != nil {
		return db.Upload{}, false, apperror.Wrap(err, apperror.ErrInternal)
	}
	// the reset forgets the previous attempt's keys, so its blobs must be gone first
	if !existing.CompensationApplied {
		if !o.comp.Cleanup(ctx, "intake", BlobsOf(existing)) {
			log.Warn("previous attempt still holds blobs, refusing retry", "retry_count", existing.RetryCount)
			return db.Upload{}, false, apperror.ErrStorageFailure
		}
		if err := o.repo.MarkUploadCompensated(ctx, existing.UploadID); err != nil {
			log.Warn("failed to mark upload compensated", "error", err)
		}
	}
	reset, err := o.repo.ResetUploadForRetry(ctx, db.ResetUploadForRetryParams{
		UploadID:             req.UploadID,
		AudioContentType:     audioType,
		CoverContentType:     coverType,
		RequestedTitle:       req.Title,
		RequestedArtistID:    artistID,
		RequestedAlbumID:     albumID,
		RequestedGenreID:     genreID,
		RequestedTrackStatus: trackStatus,
		DurationHint:         durationHint,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// a concurrent resubmission already reset it
		return o.current(ctx, req)
	}
	if err != nil {
		return db.Upload{}, false, apperror.Wrap(err, apperror.ErrInternal)
	}
	metrics.RecordTransition(string(db.UploadStatusPending))
	log.Info("retrying failed upload", "retry_count", reset.RetryCount)
	return reset, true, nil
}

func (o *Orchestrator) current(ctx context.Context, req *SubmitRequest) (db.Upload, bool, error) {
	row, err := o.repo.GetUpload(ctx, req.UploadID)
	if err != nil {
		return db.Upload{}, false, apperror.Wrap(err, apperror.ErrInternal)
	}
	if row.OwnerID != pgUUID(req.OwnerID) {
		return db.Upload{}, false, apperror.ErrUploadIDConflict
	}
	return row, false, nil
}

func (o *Orchestrator) storeBlobs(ctx context.Context, req *SubmitRequest, blobs Blobs) error {
	ctx, span := tracing.StartStageSpan(ctx, "intake.store")
	defer span.End()

	written := Blobs{Audio: blobs.Audio}
	if err := o.put(ctx, blobs.Audio, req.Audio); err != nil {
		tracing.RecordError(ctx, err)
		o.abort(ctx, req.UploadID, written, fmt.Errorf("store audio: %w", err))
		return apperror.Wrap(err, apperror.ErrStorageFailure)
	}

	if req.Cover != nil {
		written.Cover = blobs.Cover
		if err := o.put(ctx, blobs.Cover, req.Cover); err != nil {
			tracing.RecordError(ctx, err)
			o.abort(ctx, req.UploadID, written, fmt.Errorf("store cover: %w", err))
			return apperror.Wrap(err, apperror.ErrStorageFailure)
		}
	}
	return nil
}

func (o *Orchestrator) put(ctx context.Context, key string, f *File) error {
	if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", key, err)
	}
	return o.store.Put(ctx, key, f.Content, f.Size, metadata.NormalizeContentType(f.ContentType))
}

// abort marks the row failed and removes whatever the attempt stored. A key
// whose write failed part-way is included, since deleting a missing key is
// harmless.
func (o *Orchestrator) abort(ctx context.Context, uploadID string, blobs Blobs, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx)
	log.Error("intake failed", "error", cause)

	if _, err := o.repo.MarkUploadFailed(ctx, db.MarkUploadFailedParams{
		UploadID:  uploadID,
		LastError: errorText(cause),
	}); err != nil {
		log.Error("failed to mark upload failed", "error", err)
	} else {
		metrics.RecordTransition(string(db.UploadStatusFailed))
	}

	if o.comp.Cleanup(ctx, "intake", blobs) {
		if err := o.repo.MarkUploadCompensated(ctx, uploadID); err != nil {
			log.Warn("failed to mark upload compensated", "error", err)
		}
	}
}

func resultFrom(u db.Upload, replayed bool) *SubmitResult {
	res := &SubmitResult{
		UploadID: u.UploadID,
		Status:   u.Status,
		JobID:    u.JobID.String,
		Replayed: replayed,
	}
	if u.ResultTrackID.Valid {
		res.ResultTrackID = uuidString(u.ResultTrackID)
	}
	return res
}
