package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/abdul-hamid-achik/trackdrop/internal/worker"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret = "test-secret-key-for-testing"
	testBaseURL   = "http://api.test"
)

type server struct {
	repo    *db.MemoryStore
	store   *storage.MemoryStorage
	broker  *queue.MemoryBroker
	proc    *upload.Processor
	handler http.Handler

	owner  uuid.UUID
	artist uuid.UUID
}

func newServer(t *testing.T, limiter Limiter) *server {
	t.Helper()

	s := &server{
		repo:   db.NewMemoryStore(),
		store:  storage.NewMemoryStorage(),
		broker: queue.NewMemoryBroker(),
		owner:  uuid.New(),
		artist: uuid.New(),
	}
	s.repo.AddArtist(pgtype.UUID{Bytes: s.artist, Valid: true})

	comp := upload.NewCompensator(s.store)
	orch := upload.NewOrchestrator(s.repo, s.store, worker.NewEnqueuer(s.broker), comp,
		upload.NewValidator(upload.Limits{MaxAudioSize: 64 << 10, MaxCoverSize: 16 << 10}))
	s.proc = upload.NewProcessor(s.repo, s.store, metadata.NewNative(), comp, upload.ProcessorConfig{
		MaxAttempts:    3,
		ExtractTimeout: 5 * time.Second,
		TempDir:        t.TempDir(),
	})

	s.handler = NewRouter(&Config{
		Orchestrator: orch,
		Status:       upload.NewStatusService(s.repo),
		Limiter:      limiter,
		JWTSecret:    testJWTSecret,
		BaseURL:      testBaseURL,
		MaxAudioSize: 64 << 10,
		MaxCoverSize: 16 << 10,
	})
	return s
}

// process runs every queued job through the processor.
func (s *server) process(t *testing.T) {
	t.Helper()
	for _, j := range s.broker.Drain() {
		var p worker.ProcessUploadPayload
		require.NoError(t, j.Unmarshal(&p))
		_, err := s.proc.Process(context.Background(), p.UploadID)
		require.NoError(t, err)
	}
}

func (s *server) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) fields(uploadID string) map[string]string {
	f := map[string]string{
		"title":    "Night Drive",
		"artistId": s.artist.String(),
	}
	if uploadID != "" {
		f["uploadId"] = uploadID
	}
	return f
}

type filePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func audioPart(data []byte) filePart {
	return filePart{field: "audio", filename: "track.wav", contentType: "audio/wav", data: data}
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func authorize(t *testing.T, req *http.Request, owner uuid.UUID) *http.Request {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+signToken(t, owner.String(), testJWTSecret, time.Hour))
	return req
}

func signToken(t *testing.T, sub, secret string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
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
