package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submit(t *testing.T, h *harness, req *SubmitRequest) {
	t.Helper()
	_, err := h.orch.Submit(context.Background(), req)
	require.NoError(t, err)
	h.broker.Drain()
}

func TestProcess_HappyPath(t *testing.T) {
	h := newHarness(t)
	req := h.request("up-happy", wavBytes(30))
	req.AlbumID = h.album.String()
	req.Status = "published"
	submit(t, h, req)

	track, err := h.proc.Process(context.Background(), "up-happy")
	require.NoError(t, err)
	require.NotNil(t, track)

	assert.Equal(t, "Test", track.Title)
	assert.Equal(t, "published", track.Status)
	assert.Equal(t, int32(30), track.DurationSeconds)
	assert.Equal(t, pgUUID(h.owner), track.OwnerID)
	assert.Equal(t, pgUUID(h.artist), track.ArtistID)
	assert.Equal(t, pgUUID(h.album), track.AlbumID)
	assert.Equal(t, "http://blobs.test/"+BlobsFor(h.owner, "up-happy", 0, false).Audio, track.AudioURL)
	assert.False(t, track.CoverURL.Valid)

	row := h.upload(t, "up-happy")
	assert.Equal(t, db.UploadStatusCompleted, row.Status)
	assert.Equal(t, track.ID, row.ResultTrackID)
	assert.Equal(t, int32(1), row.AttemptCount)
	assert.False(t, row.LastError.Valid)

	var md metadata.Metadata
	require.NoError(t, json.Unmarshal(row.ExtractedMetadata, &md))
	assert.InDelta(t, 30.0, md.Duration, 0.01)
	assert.Equal(t, "wav", md.Format)
	assert.Equal(t, 8000, md.SampleRate)

	// the audio blob stays, the track points at it
	assert.Equal(t, 1, h.store.Count())
}

func TestProcess_CoverIsInspected(t *testing.T) {
	h := newHarness(t)
	req := h.request("up-art", wavBytes(1))
	cover := pngBytes(t, 32, 16)
	req.Cover = &File{Content: bytes.NewReader(cover), Size: int64(len(cover)), ContentType: "image/png"}
	submit(t, h, req)

	track, err := h.proc.Process(context.Background(), "up-art")
	require.NoError(t, err)

	blobs := BlobsFor(h.owner, "up-art", 0, true)
	assert.Equal(t, "http://blobs.test/"+blobs.Cover, track.CoverURL.String)

	var md metadata.Metadata
	require.NoError(t, json.Unmarshal(h.upload(t, "up-art").ExtractedMetadata, &md))
	require.NotNil(t, md.Cover)
	assert.Equal(t, 32, md.Cover.Width)
	assert.Equal(t, 16, md.Cover.Height)
	assert.Equal(t, "png", md.Cover.Format)
}

func TestProcess_CorruptAudioStillCompletes(t *testing.T) {
	garbage := []byte("this is not an mp3 stream at all, just bytes")

	tests := []struct {
		name string
		hint *int
		want int32
	}{
		{name: "no hint", want: 0},
		{name: "hint used", hint: intPtr(180), want: 180},
		{name: "zero hint ignored", hint: intPtr(0), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := h.request("up-corrupt", garbage)
			req.Audio.ContentType = "audio/mpeg"
			req.DurationHint = tt.hint
			submit(t, h, req)

			track, err := h.proc.Process(context.Background(), "up-corrupt")
			require.NoError(t, err)
			assert.Equal(t, tt.want, track.DurationSeconds)

			row := h.upload(t, "up-corrupt")
			assert.Equal(t, db.UploadStatusCompleted, row.Status)

			var md metadata.Metadata
			require.NoError(t, json.Unmarshal(row.ExtractedMetadata, &md))
			assert.Zero(t, md.Duration)
			assert.True(t, md.Degraded)
		})
	}
}

func TestProcess_ExtractedDurationBeatsHint(t *testing.T) {
	h := newHarness(t)
	req := h.request("up-hint", wavBytes(3))
	req.DurationHint = intPtr(999)
	submit(t, h, req)

	track, err := h.proc.Process(context.Background(), "up-hint")
	require.NoError(t, err)
	assert.Equal(t, int32(3), track.DurationSeconds)
}

func TestProcess_RejectZeroDuration(t *testing.T) {
	h := newHarness(t, rejectZeroDuration())
	req := h.request("up-zero", []byte("garbage audio"))
	req.Audio.ContentType = "audio/mpeg"
	submit(t, h, req)

	track, err := h.proc.Process(context.Background(), "up-zero")
	assert.Nil(t, track)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.ErrorIs(t, err, ErrZeroDuration)

	row := h.upload(t, "up-zero")
	assert.Equal(t, db.UploadStatusFailed, row.Status)
	assert.True(t, row.CompensationApplied)
	assert.Empty(t, h.repo.Tracks())
	assert.Equal(t, 0, h.store.Count())
}

func TestProcess_MissingArtistFailsAndCompensates(t *testing.T) {
	h := newHarness(t)
	req := h.request("up-ghost", wavBytes(1))
	req.ArtistID = uuid.NewString()
	submit(t, h, req)

	track, err := h.proc.Process(context.Background(), "up-ghost")
	assert.Nil(t, track)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTerminal)
	assert.ErrorIs(t, err, ErrReferenceNotFound)

	row := h.upload(t, "up-ghost")
	assert.Equal(t, db.UploadStatusFailed, row.Status)
	assert.Contains(t, row.LastError.String, "artist")
	assert.True(t, row.CompensationApplied)
	assert.Equal(t, int32(1), row.AttemptCount, "permanent errors fail on the first attempt")

	assert.Contains(t, h.store.Deletes(), BlobsFor(h.owner, "up-ghost", 0, false).Audio)
	assert.Equal(t, 0, h.store.Count())
	assert.Empty(t, h.repo.Tracks())
}

func TestProcess_MissingAlbumFails(t *testing.T) {
	h := newHarness(t)
	req := h.request("up-album", wavBytes(1))
	req.AlbumID = uuid.NewString()
	submit(t, h, req)

	_, err := h.proc.Process(context.Background(), "up-album")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
	assert.Contains(t, h.upload(t, "up-album").LastError.String, "album")
}

func TestProcess_FailedCompensationLeavesFlagUnset(t *testing.T) {
	h := newHarness(t)
	req := h.request("up-stuck", wavBytes(1))
	req.ArtistID = uuid.NewString()
	submit(t, h, req)
	h.store.FailOn("delete", "", errors.New("permission denied"))

	_, err := h.proc.Process(context.Background(), "up-stuck")
	assert.ErrorIs(t, err, ErrTerminal)

	row := h.upload(t, "up-stuck")
	assert.Equal(t, db.UploadStatusFailed, row.Status)
	assert.False(t, row.CompensationApplied)
	assert.Equal(t, 1, h.store.Count())
}

func TestProcess_MissingBlob(t *testing.T) {
	h := newHarness(t)
	submit(t, h, h.request("up-lost", wavBytes(1)))
	require.NoError(t, h.store.Delete(context.Background(), BlobsFor(h.owner, "up-lost", 0, false).Audio))

	_, err := h.proc.Process(context.Background(), "up-lost")
	assert.ErrorIs(t, err, ErrTerminal)
	assert.ErrorIs(t, err, ErrMissingBlob)
	assert.Equal(t, db.UploadStatusFailed, h.upload(t, "up-lost").Status)
}

func TestProcess_UnknownUpload(t *testing.T) {
	h := newHarness(t)

	track, err := h.proc.Process(context.Background(), "nope")
	assert.Nil(t, track)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestProcess_Replay(t *testing.T) {
	h := newHarness(t)
	submit(t, h, h.request("up-twice", wavBytes(1)))
	ctx := context.Background()

	first, err := h.proc.Process(ctx, "up-twice")
	require.NoError(t, err)
	second, err := h.proc.Process(ctx, "up-twice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.repo.Tracks(), 1)
	assert.Equal(t, int32(1), h.upload(t, "up-twice").AttemptCount)
}

func TestProcess_ConcurrentDeliveries(t *testing.T) {
	h := newHarness(t)
	submit(t, h, h.request("up-parallel", wavBytes(1)))

	const n = 8
	tracks := make([]*db.Track, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracks[i], errs[i] = h.proc.Process(context.Background(), "up-parallel")
		}(i)
	}
	wg.Wait()

	require.Len(t, h.repo.Tracks(), 1)
	want := h.repo.Tracks()[0].ID
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, tracks[i])
		assert.Equal(t, want, tracks[i].ID)
	}
	assert.Equal(t, db.UploadStatusCompleted, h.upload(t, "up-parallel").Status)
}

func TestProcess_CommitIsAtomic(t *testing.T) {
	h := newHarness(t)
	submit(t, h, h.request("up-atomic", wavBytes(1)))
	h.repo.FailOn("CompleteUpload", errors.New("connection lost"))

	track, err := h.proc.Process(context.Background(), "up-atomic")
	assert.Nil(t, track)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTerminal, "a transient failure must be retried")

	assert.Empty(t, h.repo.Tracks(), "track insert must roll back with the failed status update")
	row := h.upload(t, "up-atomic")
	assert.Equal(t, db.UploadStatusProcessing, row.Status)
	assert.Contains(t, row.LastError.String, "connection lost")
	assert.Equal(t, 1, h.store.Count(), "blobs stay while retries remain")

	h.repo.FailOn("CompleteUpload", nil)
	track, err = h.proc.Process(context.Background(), "up-atomic")
	require.NoError(t, err)
	require.NotNil(t, track)

	row = h.upload(t, "up-atomic")
	assert.Equal(t, db.UploadStatusCompleted, row.Status)
	assert.False(t, row.LastError.Valid)
	assert.Equal(t, int32(2), row.AttemptCount)
	assert.Len(t, h.repo.Tracks(), 1)
}

func TestProcess_TransientErrorsExhaustAttempts(t *testing.T) {
	h := newHarness(t, withMaxAttempts(2))
	submit(t, h, h.request("up-flaky", wavBytes(1)))
	h.repo.FailOn("CreateTrack", errors.New("deadlock detected"))
	ctx := context.Background()

	_, err := h.proc.Process(ctx, "up-flaky")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTerminal)
	assert.Equal(t, db.UploadStatusProcessing, h.upload(t, "up-flaky").Status)

	_, err = h.proc.Process(ctx, "up-flaky")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTerminal)

	row := h.upload(t, "up-flaky")
	assert.Equal(t, db.UploadStatusFailed, row.Status)
	assert.Contains(t, row.LastError.String, "deadlock detected")
	assert.True(t, row.CompensationApplied)
	assert.Equal(t, 0, h.store.Count())

	// a late redelivery is acknowledged without work
	track, err := h.proc.Process(ctx, "up-flaky")
	assert.NoError(t, err)
	assert.Nil(t, track)
}

func TestProcess_CancelledUploadIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.repo.PutUpload(db.Upload{
		UploadID: "up-cancelled",
		OwnerID:  pgUUID(h.owner),
		Status:   db.UploadStatusCancelled,
	})

	track, err := h.proc.Process(context.Background(), "up-cancelled")
	assert.NoError(t, err)
	assert.Nil(t, track)
	assert.Empty(t, h.repo.Tracks())
}

func TestResolveDuration(t *testing.T) {
	tests := []struct {
		name string
		md   *metadata.Metadata
		hint pgtype.Int4
		want int32
	}{
		{name: "extracted", md: &metadata.Metadata{Duration: 61.6}, want: 62},
		{name: "extracted wins over hint", md: &metadata.Metadata{Duration: 10}, hint: pgtype.Int4{Int32: 99, Valid: true}, want: 10},
		{name: "hint when nothing extracted", md: &metadata.Metadata{}, hint: pgtype.Int4{Int32: 99, Valid: true}, want: 99},
		{name: "negative hint ignored", md: &metadata.Metadata{}, hint: pgtype.Int4{Int32: -5, Valid: true}, want: 0},
		{name: "nil metadata", md: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDuration(tt.md, tt.hint))
		})
	}
}

func TestBlobsOf(t *testing.T) {
	owner := uuid.New()
	row := db.Upload{
		UploadID:         "up-x",
		OwnerID:          pgUUID(owner),
		RetryCount:       2,
		CoverContentType: text("image/png"),
	}

	// keys are derivable before intake recorded them
	assert.Equal(t, BlobsFor(owner, "up-x", 2, true), BlobsOf(row))

	row.AudioBlobKey = text("legacy/audio")
	assert.Equal(t, "legacy/audio", BlobsOf(row).Audio)
}

func intPtr(v int) *int { return &v }
