package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

// hiddenRelease exposes only Enqueue, like a broker without a dedup marker.
type hiddenRelease struct {
	queue.Broker
}

type fixture struct {
	repo   *db.MemoryStore
	store  *storage.MemoryStorage
	broker *queue.MemoryBroker
	owner  uuid.UUID
}

func newFixture() *fixture {
	return &fixture{
		repo:   db.NewMemoryStore(),
		store:  storage.NewMemoryStorage(),
		broker: queue.NewMemoryBroker(),
		owner:  uuid.New(),
	}
}

var longAgo = pgtype.Timestamptz{Time: time.Now().Add(-48 * time.Hour), Valid: true}

// putRow stores an upload last touched two days ago, with its blobs.
func (f *fixture) putRow(t *testing.T, id string, status db.UploadStatus, attempts int32) db.Upload {
	t.Helper()
	blobs := upload.BlobsFor(f.owner, id, 0, false)
	u := db.Upload{
		UploadID:             id,
		OwnerID:              pgtype.UUID{Bytes: f.owner, Valid: true},
		Status:               status,
		AudioContentType:     "audio/wav",
		RequestedTitle:       "Song",
		RequestedTrackStatus: "draft",
		AttemptCount:         attempts,
		AudioBlobKey:         pgtype.Text{String: blobs.Audio, Valid: true},
		CreatedAt:            longAgo,
		UpdatedAt:            longAgo,
	}
	f.repo.PutUpload(u)
	require.NoError(t, f.store.Put(context.Background(), blobs.Audio, strings.NewReader("audio"), 5, "audio/wav"))
	return u
}

func (f *fixture) row(t *testing.T, id string) db.Upload {
	t.Helper()
	u, err := f.repo.GetUpload(context.Background(), id)
	require.NoError(t, err)
	return u
}
