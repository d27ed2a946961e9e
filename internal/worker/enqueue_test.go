package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueuer_EnqueueProcessing(t *testing.T) {
	f := newFixture()
	e := NewEnqueuer(f.broker)
	u := f.putRow(t, "up-1", db.UploadStatusPending, 0)
	u.RetryCount = 2

	id, err := e.EnqueueProcessing(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "upload:up-1:2", id)

	jobs := f.broker.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, upload.JobTypeProcess, jobs[0].Type)
	assert.Equal(t, id, jobs[0].ID)

	var payload ProcessUploadPayload
	require.NoError(t, jobs[0].Unmarshal(&payload))
	assert.Equal(t, "up-1", payload.UploadID)
	assert.Equal(t, f.owner, payload.OwnerID)
	assert.Equal(t, int32(2), payload.RetryCount)
}

func TestEnqueuer_Duplicate(t *testing.T) {
	f := newFixture()
	e := NewEnqueuer(f.broker)
	u := f.putRow(t, "up-dup", db.UploadStatusPending, 0)

	_, err := e.EnqueueProcessing(context.Background(), u)
	require.NoError(t, err)

	id, err := e.EnqueueProcessing(context.Background(), u)
	assert.ErrorIs(t, err, upload.ErrAlreadyQueued)
	assert.Equal(t, "upload:up-dup:0", id, "the id is reported even for duplicates")
	assert.Len(t, f.broker.Jobs(), 1)
}

func TestEnqueuer_BrokerFailure(t *testing.T) {
	f := newFixture()
	f.broker.FailWith(errors.New("connection refused"))
	e := NewEnqueuer(f.broker)

	id, err := e.EnqueueProcessing(context.Background(), f.putRow(t, "up-err", db.UploadStatusPending, 0))
	require.Error(t, err)
	assert.Empty(t, id)
	assert.NotErrorIs(t, err, upload.ErrAlreadyQueued)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnqueuer_Requeue(t *testing.T) {
	ctx := context.Background()

	t.Run("broker with dedup marker", func(t *testing.T) {
		f := newFixture()
		e := NewEnqueuer(f.broker)
		u := f.putRow(t, "up-lost", db.UploadStatusProcessing, 1)

		_, err := e.EnqueueProcessing(ctx, u)
		require.NoError(t, err)
		f.broker.Drain()

		id, err := e.Requeue(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, "upload:up-lost:0", id)
		assert.Len(t, f.broker.Jobs(), 1)
	})

	t.Run("broker without dedup marker", func(t *testing.T) {
		f := newFixture()
		e := NewEnqueuer(hiddenRelease{f.broker})
		u := f.putRow(t, "up-held", db.UploadStatusProcessing, 1)

		_, err := e.EnqueueProcessing(ctx, u)
		require.NoError(t, err)

		_, err = e.Requeue(ctx, u)
		assert.ErrorIs(t, err, upload.ErrAlreadyQueued)
	})
}
