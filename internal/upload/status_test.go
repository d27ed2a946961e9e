package upload

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/abdul-hamid-achik/trackdrop/internal/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusService_OwnerScoping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submit(t, h, h.request("up-mine", wavBytes(1)))

	u, err := h.status.GetStatus(ctx, "up-mine", h.owner)
	require.NoError(t, err)
	assert.Equal(t, "up-mine", u.UploadID)

	_, err = h.status.GetStatus(ctx, "up-mine", uuid.New())
	assert.True(t, apperror.Is(err, apperror.ErrUploadNotFound), "foreign uploads look missing")

	_, err = h.status.GetStatus(ctx, "up-nothing", h.owner)
	assert.True(t, apperror.Is(err, apperror.ErrUploadNotFound))

	track, err := h.proc.Process(ctx, "up-mine")
	require.NoError(t, err)
	trackID := uuid.UUID(track.ID.Bytes)

	got, err := h.status.GetTrack(ctx, trackID, h.owner)
	require.NoError(t, err)
	assert.Equal(t, track.ID, got.ID)

	_, err = h.status.GetTrack(ctx, trackID, uuid.New())
	assert.True(t, apperror.Is(err, apperror.ErrTrackNotFound))
}

func TestNewStatusView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.request("up-view", wavBytes(2))
	req.DurationHint = intPtr(5)
	submit(t, h, req)

	u, err := h.status.GetStatus(ctx, "up-view", h.owner)
	require.NoError(t, err)
	view := NewStatusView(*u)
	assert.Equal(t, "processing", string(view.Status))
	assert.Equal(t, "upload:up-view:0", view.JobID)
	assert.Empty(t, view.ResultEntityID)

	track, err := h.proc.Process(ctx, "up-view")
	require.NoError(t, err)

	u, err = h.status.GetStatus(ctx, "up-view", h.owner)
	require.NoError(t, err)
	view = NewStatusView(*u)

	data, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "completed", decoded["status"])
	assert.Equal(t, uuidString(track.ID), decoded["resultEntityId"])
	assert.Equal(t, "Test", decoded["title"])
	assert.Contains(t, decoded, "extractedMetadata")

	md, ok := decoded["extractedMetadata"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2.0, md["duration"], 0.01)
}
