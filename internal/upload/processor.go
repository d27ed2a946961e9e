package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type ProcessorConfig struct {
	// MaxAttempts bounds deliveries per attempt; the last one that fails
	// turns the upload FAILED even for transient errors.
	MaxAttempts        int
	ExtractTimeout     time.Duration
	RejectZeroDuration bool
	TempDir            string
}

// Processor turns a queued upload into a catalog track.
type Processor struct {
	repo      db.Repository
	store     storage.Storage
	extractor metadata.Extractor
	comp      *Compensator
	notifier  Notifier
	cfg       ProcessorConfig
}

// Notifier hears about terminal transitions made by the processor. Calls are
// synchronous and must not fail the job.
type Notifier interface {
	UploadCompleted(ctx context.Context, row db.Upload, track db.Track)
	UploadFailed(ctx context.Context, row db.Upload, reason string)
}

type nopNotifier struct{}

func (nopNotifier) UploadCompleted(context.Context, db.Upload, db.Track) {}
func (nopNotifier) UploadFailed(context.Context, db.Upload, string)      {}

func NewProcessor(repo db.Repository, store storage.Storage, extractor metadata.Extractor, comp *Compensator, cfg ProcessorConfig) *Processor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 30 * time.Second
	}
	if extractor == nil {
		extractor = metadata.Noop{}
	}
	return &Processor{
		repo:      repo,
		store:     store,
		extractor: extractor,
		comp:      comp,
		notifier:  nopNotifier{},
		cfg:       cfg,
	}
}

func (p *Processor) WithNotifier(n Notifier) *Processor {
	if n != nil {
		p.notifier = n
	}
	return p
}

// Process handles one delivery of the processing job for uploadID.
//
// It returns the track when the upload is completed, by this delivery or an
// earlier one. It returns (nil, nil) when the upload is no longer active and
// the delivery should be acknowledged without work. Errors wrapping
// ErrTerminal mean the upload was marked failed; any other error asks the
// queue to redeliver.
func (p *Processor) Process(ctx context.Context, uploadID string) (*db.Track, error) {
	ctx = logger.WithUploadID(ctx, uploadID)
	log := logger.FromContext(ctx)

	row, err := p.repo.GetUpload(ctx, uploadID)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Warn("upload row not found, dropping job")
		return nil, fmt.Errorf("%w: upload %s does not exist", ErrTerminal, uploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("load upload: %w", err)
	}
	if !IsActive(row.Status) {
		return p.settled(ctx, row)
	}

	row, err = p.repo.BeginUploadAttempt(ctx, uploadID)
	if errors.Is(err, pgx.ErrNoRows) {
		// another delivery settled it between the read and the update
		return p.reload(ctx, uploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("begin attempt: %w", err)
	}
	tracing.UploadAttributes(ctx, uploadID, row.RetryCount)
	log = log.With("attempt", row.AttemptCount, "retry_count", row.RetryCount)

	track, err := p.run(ctx, row)
	if err == nil {
		metrics.RecordTransition(string(db.UploadStatusCompleted))
		log.Info("upload completed", "track_id", uuidString(track.ID), "duration_seconds", track.DurationSeconds)
		p.notifier.UploadCompleted(ctx, row, *track)
		return track, nil
	}
	if errors.Is(err, errSettled) {
		return p.reload(ctx, uploadID)
	}

	final := int(row.AttemptCount) >= p.cfg.MaxAttempts
	if !IsPermanent(err) && !final {
		log.Warn("processing attempt failed, will retry", "error", err)
		if recErr := p.repo.RecordUploadAttemptError(ctx, db.RecordUploadAttemptErrorParams{
			UploadID:  uploadID,
			LastError: errorText(err),
		}); recErr != nil {
			log.Warn("failed to record attempt error", "error", recErr)
		}
		return nil, err
	}

	return p.fail(ctx, row, err)
}

// fail marks the upload failed, compensates its blobs and returns the
// terminal error.
func (p *Processor) fail(ctx context.Context, row db.Upload, cause error) (*db.Track, error) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx)

	n, err := p.repo.MarkUploadFailed(ctx, db.MarkUploadFailedParams{
		UploadID:  row.UploadID,
		LastError: errorText(cause),
	})
	if err != nil {
		// leave it for redelivery or the sweeper
		return nil, fmt.Errorf("mark upload failed: %w (cause: %v)", err, cause)
	}
	if n == 0 {
		return p.reload(ctx, row.UploadID)
	}
	metrics.RecordTransition(string(db.UploadStatusFailed))
	log.Error("upload failed", "error", cause, "attempt", row.AttemptCount)
	p.notifier.UploadFailed(ctx, row, errorText(cause).String)

	if p.comp.Cleanup(ctx, "processor", BlobsOf(row)) {
		if err := p.repo.MarkUploadCompensated(ctx, row.UploadID); err != nil {
			log.Warn("failed to mark upload compensated", "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrTerminal, cause)
}

// settled resolves a delivery for an upload that is no longer active.
func (p *Processor) settled(ctx context.Context, row db.Upload) (*db.Track, error) {
	if row.Status == db.UploadStatusCompleted && row.ResultTrackID.Valid {
		track, err := p.repo.GetTrack(ctx, row.ResultTrackID)
		if err != nil {
			return nil, fmt.Errorf("load completed track: %w", err)
		}
		logger.FromContext(ctx).Info("upload already completed, returning existing track")
		return &track, nil
	}
	logger.FromContext(ctx).Info("upload no longer active, acknowledging job", "status", row.Status)
	return nil, nil
}

func (p *Processor) reload(ctx context.Context, uploadID string) (*db.Track, error) {
	row, err := p.repo.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("reload upload: %w", err)
	}
	if IsActive(row.Status) {
		return nil, fmt.Errorf("upload %s changed state concurrently", uploadID)
	}
	return p.settled(ctx, row)
}

// errSettled means the row left the active states while this delivery
// was working on it.
var errSettled = errors.New("upload settled concurrently")

func (p *Processor) run(ctx context.Context, row db.Upload) (*db.Track, error) {
	if !row.AudioBlobKey.Valid {
		return nil, fmt.Errorf("%w: upload has no audio key", ErrMissingBlob)
	}

	audio, size, err := p.fetch(ctx, row.AudioBlobKey.String)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer func() {
		audio.Close()
		os.Remove(audio.Name())
	}()

	md := p.extract(ctx, metadata.Source{
		File:        audio,
		Path:        audio.Name(),
		Size:        size,
		ContentType: row.AudioContentType,
	})

	if row.CoverBlobKey.Valid {
		cover, err := p.inspectCover(ctx, row.CoverBlobKey.String)
		if err != nil {
			return nil, err
		}
		md.Cover = cover
	}

	duration := ResolveDuration(md, row.DurationHint)
	if duration == 0 && p.cfg.RejectZeroDuration {
		return nil, ErrZeroDuration
	}

	extracted, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	track, err := p.commit(ctx, row, duration, extracted)
	if err == nil || errors.Is(err, ErrReferenceNotFound) || errors.Is(err, errSettled) {
		return track, err
	}

	// a duplicate delivery may have committed first; its track wins
	current, getErr := p.repo.GetUpload(ctx, row.UploadID)
	if getErr == nil && !IsActive(current.Status) {
		return nil, errSettled
	}
	return nil, err
}

// commit creates the track and completes the upload in one transaction.
func (p *Processor) commit(ctx context.Context, row db.Upload, duration int32, extracted []byte) (*db.Track, error) {
	ctx, span := tracing.StartStageSpan(ctx, "commit")
	defer span.End()

	var track db.Track
	err := p.repo.ExecTx(ctx, func(q db.Querier) error {
		if err := requireRef(ctx, "artist", row.RequestedArtistID, q.ArtistExists); err != nil {
			return err
		}
		if err := requireRef(ctx, "album", row.RequestedAlbumID, q.AlbumExists); err != nil {
			return err
		}
		if err := requireRef(ctx, "genre", row.RequestedGenreID, q.GenreExists); err != nil {
			return err
		}

		var coverURL pgtype.Text
		if row.CoverBlobKey.Valid {
			coverURL = text(p.store.PublicURL(row.CoverBlobKey.String))
		}
		created, err := q.CreateTrack(ctx, db.CreateTrackParams{
			ID:              pgUUID(uuid.New()),
			UploadID:        row.UploadID,
			OwnerID:         row.OwnerID,
			Title:           row.RequestedTitle,
			ArtistID:        row.RequestedArtistID,
			AlbumID:         row.RequestedAlbumID,
			GenreID:         row.RequestedGenreID,
			Status:          row.RequestedTrackStatus,
			AudioURL:        p.store.PublicURL(row.AudioBlobKey.String),
			CoverURL:        coverURL,
			DurationSeconds: duration,
		})
		if err != nil {
			return fmt.Errorf("create track: %w", err)
		}

		n, err := q.CompleteUpload(ctx, db.CompleteUploadParams{
			UploadID:          row.UploadID,
			ResultTrackID:     created.ID,
			ExtractedMetadata: extracted,
		})
		if err != nil {
			return fmt.Errorf("complete upload: %w", err)
		}
		if n == 0 {
			return errSettled
		}
		track = created
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return &track, nil
}

func requireRef(ctx context.Context, kind string, id pgtype.UUID, exists func(context.Context, pgtype.UUID) (bool, error)) error {
	if !id.Valid {
		return nil
	}
	ok, err := exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrReferenceNotFound, kind, uuidString(id))
	}
	return nil
}

// fetch spools a blob to a temp file so extractors can seek and ffprobe
// can read it by path.
func (p *Processor) fetch(ctx context.Context, key string) (*os.File, int64, error) {
	rc, err := p.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingBlob, key)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	f, err := os.CreateTemp(p.cfg.TempDir, "trackdrop-audio-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, rc)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, fmt.Errorf("download %s: %w", key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, err
	}
	return f, n, nil
}

func (p *Processor) extract(ctx context.Context, src metadata.Source) *metadata.Metadata {
	ctx, span := tracing.StartStageSpan(ctx, "extract")
	defer span.End()

	start := time.Now()
	md, err := metadata.Run(ctx, p.extractor, src, p.cfg.ExtractTimeout)
	metrics.RecordExtraction(p.extractor.Name(), err, time.Since(start).Seconds())
	if err != nil {
		logger.FromContext(ctx).Warn("metadata extraction failed, continuing without it",
			"extractor", p.extractor.Name(), "error", err)
	}
	return md
}

func (p *Processor) inspectCover(ctx context.Context, key string) (*metadata.CoverInfo, error) {
	rc, err := p.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMissingBlob, key)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}
	defer rc.Close()

	info, err := metadata.InspectCover(rc)
	if err != nil {
		// the header was checked at intake; a decode failure here is not fatal
		logger.FromContext(ctx).Warn("cover inspection failed", "key", key, "error", err)
		return nil, nil
	}
	return info, nil
}

// ResolveDuration prefers a positive extracted duration, then a positive
// caller hint, then zero.
func ResolveDuration(md *metadata.Metadata, hint pgtype.Int4) int32 {
	if s := md.Seconds(); s > 0 {
		return int32(s)
	}
	if hint.Valid && hint.Int32 > 0 {
		return hint.Int32
	}
	return 0
}

// BlobsOf returns the keys of the row's current attempt, preferring the keys
// intake persisted over the derived ones.
func BlobsOf(row db.Upload) Blobs {
	b := BlobsFor(uuid.UUID(row.OwnerID.Bytes), row.UploadID, row.RetryCount, row.CoverContentType.Valid)
	if row.AudioBlobKey.Valid {
		b.Audio = row.AudioBlobKey.String
	}
	if row.CoverBlobKey.Valid {
		b.Cover = row.CoverBlobKey.String
	}
	return b
}
