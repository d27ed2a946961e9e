package upload

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type jobPayload struct {
	UploadID string `json:"upload_id"`
}

// brokerEnqueuer adapts a queue.Broker the way the worker package does.
type brokerEnqueuer struct {
	broker queue.Broker
}

func (e brokerEnqueuer) EnqueueProcessing(ctx context.Context, u db.Upload) (string, error) {
	id := JobID(u.UploadID, u.RetryCount)
	_, err := e.broker.Enqueue(ctx, JobTypeProcess, id, jobPayload{UploadID: u.UploadID})
	if errors.Is(err, queue.ErrDuplicateJob) {
		return id, ErrAlreadyQueued
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

type harness struct {
	repo   *db.MemoryStore
	store  *storage.MemoryStorage
	broker *queue.MemoryBroker
	orch   *Orchestrator
	proc   *Processor
	status *StatusService

	owner  uuid.UUID
	artist uuid.UUID
	album  uuid.UUID
}

type harnessOption func(*ProcessorConfig)

func withMaxAttempts(n int) harnessOption {
	return func(c *ProcessorConfig) { c.MaxAttempts = n }
}

func rejectZeroDuration() harnessOption {
	return func(c *ProcessorConfig) { c.RejectZeroDuration = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		repo:   db.NewMemoryStore(),
		store:  storage.NewMemoryStorage(),
		broker: queue.NewMemoryBroker(),
		owner:  uuid.New(),
		artist: uuid.New(),
		album:  uuid.New(),
	}
	h.repo.AddArtist(pgUUID(h.artist))
	h.repo.AddAlbum(pgUUID(h.album))

	cfg := ProcessorConfig{MaxAttempts: 4, ExtractTimeout: 5 * time.Second, TempDir: t.TempDir()}
	for _, opt := range opts {
		opt(&cfg)
	}

	comp := NewCompensator(h.store)
	h.orch = NewOrchestrator(h.repo, h.store, brokerEnqueuer{broker: h.broker}, comp,
		NewValidator(Limits{MaxAudioSize: 8 << 20, MaxCoverSize: 1 << 20}))
	h.proc = NewProcessor(h.repo, h.store, metadata.NewNative(), comp, cfg)
	h.status = NewStatusService(h.repo)
	return h
}

func (h *harness) request(uploadID string, audio []byte) *SubmitRequest {
	return &SubmitRequest{
		UploadID: uploadID,
		OwnerID:  h.owner,
		Title:    "Test",
		ArtistID: h.artist.String(),
		Audio: &File{
			Content:     bytes.NewReader(audio),
			Size:        int64(len(audio)),
			ContentType: "audio/wav",
			Filename:    "test.wav",
		},
	}
}

// drain processes every queued job once and returns the errors by upload id.
func (h *harness) drain(t *testing.T) map[string]error {
	t.Helper()
	errs := make(map[string]error)
	for _, j := range h.broker.Drain() {
		var p jobPayload
		require.NoError(t, j.Unmarshal(&p))
		_, err := h.proc.Process(context.Background(), p.UploadID)
		errs[p.UploadID] = err
	}
	return errs
}

func (h *harness) upload(t *testing.T, uploadID string) db.Upload {
	t.Helper()
	u, err := h.repo.GetUpload(context.Background(), uploadID)
	require.NoError(t, err)
	return u
}

func wavBytes(seconds float64) []byte {
	const sampleRate, channels, bits = 8000, 1, 16
	byteRate := sampleRate * channels * bits / 8
	dataLen := int(float64(byteRate) * seconds)

	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bits))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
