package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func testUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func seedUpload(t *testing.T, m *MemoryStore, id string) Upload {
	t.Helper()
	u, err := m.CreateUpload(context.Background(), CreateUploadParams{
		UploadID:             id,
		OwnerID:              testUUID(),
		AudioContentType:     "audio/mpeg",
		RequestedTitle:       "Test",
		RequestedArtistID:    testUUID(),
		RequestedTrackStatus: "draft",
	})
	if err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}
	return u
}

func TestMemoryStore_CreateUploadIsUnique(t *testing.T) {
	m := NewMemoryStore()
	seedUpload(t, m, "up-1")

	_, err := m.CreateUpload(context.Background(), CreateUploadParams{UploadID: "up-1"})
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second CreateUpload() error = %v, want pgx.ErrNoRows", err)
	}
	if got := m.UploadCount(); got != 1 {
		t.Errorf("UploadCount() = %d, want 1", got)
	}
}

func TestMemoryStore_ResetOnlyFromFailed(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUpload(t, m, "up-1")

	if _, err := m.ResetUploadForRetry(ctx, ResetUploadForRetryParams{UploadID: "up-1"}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("reset of pending upload error = %v, want pgx.ErrNoRows", err)
	}

	if _, err := m.MarkUploadFailed(ctx, MarkUploadFailedParams{UploadID: "up-1", LastError: pgtype.Text{String: "boom", Valid: true}}); err != nil {
		t.Fatalf("MarkUploadFailed() error = %v", err)
	}

	u, err := m.ResetUploadForRetry(ctx, ResetUploadForRetryParams{UploadID: "up-1", RequestedTitle: "Fixed"})
	if err != nil {
		t.Fatalf("ResetUploadForRetry() error = %v", err)
	}
	if u.Status != UploadStatusPending || u.RetryCount != 1 || u.LastError.Valid {
		t.Errorf("reset upload = %+v", u)
	}
	if u.RequestedTitle != "Fixed" {
		t.Errorf("RequestedTitle = %q, want Fixed", u.RequestedTitle)
	}
}

func TestMemoryStore_TerminalRowsDoNotMove(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUpload(t, m, "up-1")

	n, err := m.CompleteUpload(ctx, CompleteUploadParams{UploadID: "up-1", ResultTrackID: testUUID()})
	if err != nil || n != 1 {
		t.Fatalf("CompleteUpload() = %d, %v", n, err)
	}

	if n, _ := m.MarkUploadFailed(ctx, MarkUploadFailedParams{UploadID: "up-1"}); n != 0 {
		t.Errorf("MarkUploadFailed on completed row affected %d rows", n)
	}
	if _, err := m.BeginUploadAttempt(ctx, "up-1"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("BeginUploadAttempt on completed row error = %v", err)
	}
	if n, _ := m.CompleteUpload(ctx, CompleteUploadParams{UploadID: "up-1", ResultTrackID: testUUID()}); n != 0 {
		t.Errorf("second CompleteUpload affected %d rows", n)
	}
}

func TestMemoryStore_ExecTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUpload(t, m, "up-1")
	errBoom := errors.New("boom")

	err := m.ExecTx(ctx, func(q Querier) error {
		if _, err := q.CreateTrack(ctx, CreateTrackParams{ID: testUUID(), UploadID: "up-1"}); err != nil {
			return err
		}
		if _, err := q.CompleteUpload(ctx, CompleteUploadParams{UploadID: "up-1", ResultTrackID: testUUID()}); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("ExecTx() error = %v, want boom", err)
	}

	if got := len(m.Tracks()); got != 0 {
		t.Errorf("tracks after rollback = %d, want 0", got)
	}
	u, _ := m.GetUpload(ctx, "up-1")
	if u.Status != UploadStatusPending {
		t.Errorf("status after rollback = %s, want pending", u.Status)
	}
}

func TestMemoryStore_ExecTxCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	seedUpload(t, m, "up-1")
	trackID := testUUID()

	err := m.ExecTx(ctx, func(q Querier) error {
		if _, err := q.CreateTrack(ctx, CreateTrackParams{ID: trackID, UploadID: "up-1"}); err != nil {
			return err
		}
		_, err := q.CompleteUpload(ctx, CompleteUploadParams{UploadID: "up-1", ResultTrackID: trackID})
		return err
	})
	if err != nil {
		t.Fatalf("ExecTx() error = %v", err)
	}

	u, _ := m.GetUpload(ctx, "up-1")
	if u.Status != UploadStatusCompleted || u.ResultTrackID != trackID {
		t.Errorf("upload after commit = %+v", u)
	}
	if _, err := m.GetTrack(ctx, trackID); err != nil {
		t.Errorf("GetTrack() error = %v", err)
	}
}

func TestMemoryStore_FailOn(t *testing.T) {
	m := NewMemoryStore()
	errDown := errors.New("connection refused")
	m.FailOn("GetUpload", errDown)

	if _, err := m.GetUpload(context.Background(), "x"); !errors.Is(err, errDown) {
		t.Fatalf("GetUpload() error = %v, want injected error", err)
	}

	m.FailOn("GetUpload", nil)
	if _, err := m.GetUpload(context.Background(), "x"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("GetUpload() error = %v, want pgx.ErrNoRows", err)
	}
}
