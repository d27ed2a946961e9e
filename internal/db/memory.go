package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// MemoryStore is an in-memory Repository for tests. Transactions see a
// private copy of the data and publish only the rows they touched on commit.
type MemoryStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	uploads map[string]Upload
	tracks  map[[16]byte]Track
	artists map[[16]byte]bool
	albums  map[[16]byte]bool
	genres  map[[16]byte]bool

	faults *faults

	dirtyUploads map[string]bool
	dirtyTracks  map[[16]byte]bool
}

type faults struct {
	mu   sync.Mutex
	errs map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		uploads: make(map[string]Upload),
		tracks:  make(map[[16]byte]Track),
		artists: make(map[[16]byte]bool),
		albums:  make(map[[16]byte]bool),
		genres:  make(map[[16]byte]bool),
		faults:  &faults{errs: make(map[string]error)},
	}
}

// FailOn makes every later call to the named method return err.
// Passing a nil err clears the fault.
func (m *MemoryStore) FailOn(method string, err error) {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	if err == nil {
		delete(m.faults.errs, method)
		return
	}
	m.faults.errs[method] = err
}

func (m *MemoryStore) fault(method string) error {
	m.faults.mu.Lock()
	defer m.faults.mu.Unlock()
	return m.faults.errs[method]
}

func (m *MemoryStore) AddArtist(id pgtype.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artists[id.Bytes] = true
}

func (m *MemoryStore) AddAlbum(id pgtype.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.albums[id.Bytes] = true
}

func (m *MemoryStore) AddGenre(id pgtype.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genres[id.Bytes] = true
}

// PutUpload stores u as-is, bypassing every state check.
func (m *MemoryStore) PutUpload(u Upload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[u.UploadID] = u
}

func (m *MemoryStore) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *MemoryStore) Tracks() []Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadID < out[j].UploadID })
	return out
}

func (m *MemoryStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	if err := m.fault("ExecTx"); err != nil {
		return err
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := m.snapshot()
	if err := fn(tx); err != nil {
		return err
	}
	if err := m.fault("Commit"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range tx.dirtyUploads {
		m.uploads[id] = tx.uploads[id]
	}
	for id := range tx.dirtyTracks {
		m.tracks[id] = tx.tracks[id]
	}
	return nil
}

func (m *MemoryStore) snapshot() *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &MemoryStore{
		uploads:      make(map[string]Upload, len(m.uploads)),
		tracks:       make(map[[16]byte]Track, len(m.tracks)),
		artists:      make(map[[16]byte]bool, len(m.artists)),
		albums:       make(map[[16]byte]bool, len(m.albums)),
		genres:       make(map[[16]byte]bool, len(m.genres)),
		faults:       m.faults,
		dirtyUploads: make(map[string]bool),
		dirtyTracks:  make(map[[16]byte]bool),
	}
	for k, v := range m.uploads {
		tx.uploads[k] = v
	}
	for k, v := range m.tracks {
		tx.tracks[k] = v
	}
	for k := range m.artists {
		tx.artists[k] = true
	}
	for k := range m.albums {
		tx.albums[k] = true
	}
	for k := range m.genres {
		tx.genres[k] = true
	}
	return tx
}

func (m *MemoryStore) putUpload(u Upload) {
	u.UpdatedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	m.uploads[u.UploadID] = u
	if m.dirtyUploads != nil {
		m.dirtyUploads[u.UploadID] = true
	}
}

func active(s UploadStatus) bool {
	return s == UploadStatusPending || s == UploadStatusProcessing
}

func (m *MemoryStore) GetUpload(ctx context.Context, uploadID string) (Upload, error) {
	if err := m.fault("GetUpload"); err != nil {
		return Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return Upload{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MemoryStore) GetUploadForOwner(ctx context.Context, arg GetUploadForOwnerParams) (Upload, error) {
	if err := m.fault("GetUploadForOwner"); err != nil {
		return Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok || u.OwnerID != arg.OwnerID {
		return Upload{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MemoryStore) CreateUpload(ctx context.Context, arg CreateUploadParams) (Upload, error) {
	if err := m.fault("CreateUpload"); err != nil {
		return Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.uploads[arg.UploadID]; exists {
		return Upload{}, pgx.ErrNoRows
	}
	now := pgtype.Timestamptz{Time: time.Now(), Valid: true}
	u := Upload{
		UploadID:             arg.UploadID,
		OwnerID:              arg.OwnerID,
		Status:               UploadStatusPending,
		AudioContentType:     arg.AudioContentType,
		CoverContentType:     arg.CoverContentType,
		RequestedTitle:       arg.RequestedTitle,
		RequestedArtistID:    arg.RequestedArtistID,
		RequestedAlbumID:     arg.RequestedAlbumID,
		RequestedGenreID:     arg.RequestedGenreID,
		RequestedTrackStatus: arg.RequestedTrackStatus,
		DurationHint:         arg.DurationHint,
		CreatedAt:            now,
	}
	m.putUpload(u)
	return m.uploads[arg.UploadID], nil
}

func (m *MemoryStore) ResetUploadForRetry(ctx context.Context, arg ResetUploadForRetryParams) (Upload, error) {
	if err := m.fault("ResetUploadForRetry"); err != nil {
		return Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok || u.Status != UploadStatusFailed {
		return Upload{}, pgx.ErrNoRows
	}
	u.Status = UploadStatusPending
	u.RetryCount++
	u.AttemptCount = 0
	u.LastError = pgtype.Text{}
	u.JobID = pgtype.Text{}
	u.AudioBlobKey = pgtype.Text{}
	u.CoverBlobKey = pgtype.Text{}
	u.ExtractedMetadata = nil
	u.CompensationApplied = false
	u.AudioContentType = arg.AudioContentType
	u.CoverContentType = arg.CoverContentType
	u.RequestedTitle = arg.RequestedTitle
	u.RequestedArtistID = arg.RequestedArtistID
	u.RequestedAlbumID = arg.RequestedAlbumID
	u.RequestedGenreID = arg.RequestedGenreID
	u.RequestedTrackStatus = arg.RequestedTrackStatus
	u.DurationHint = arg.DurationHint
	m.putUpload(u)
	return m.uploads[arg.UploadID], nil
}

func (m *MemoryStore) SetUploadBlobKeys(ctx context.Context, arg SetUploadBlobKeysParams) error {
	if err := m.fault("SetUploadBlobKeys"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok {
		return nil
	}
	u.AudioBlobKey = arg.AudioBlobKey
	u.CoverBlobKey = arg.CoverBlobKey
	m.putUpload(u)
	return nil
}

func (m *MemoryStore) MarkUploadEnqueued(ctx context.Context, arg MarkUploadEnqueuedParams) (Upload, error) {
	if err := m.fault("MarkUploadEnqueued"); err != nil {
		return Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok || !active(u.Status) {
		return Upload{}, pgx.ErrNoRows
	}
	u.JobID = arg.JobID
	u.Status = UploadStatusProcessing
	m.putUpload(u)
	return m.uploads[arg.UploadID], nil
}

func (m *MemoryStore) BeginUploadAttempt(ctx context.Context, uploadID string) (Upload, error) {
	if err := m.fault("BeginUploadAttempt"); err != nil {
		return Upload{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok || !active(u.Status) {
		return Upload{}, pgx.ErrNoRows
	}
	u.AttemptCount++
	u.Status = UploadStatusProcessing
	m.putUpload(u)
	return m.uploads[uploadID], nil
}

func (m *MemoryStore) RecordUploadAttemptError(ctx context.Context, arg RecordUploadAttemptErrorParams) error {
	if err := m.fault("RecordUploadAttemptError"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok || !active(u.Status) {
		return nil
	}
	u.LastError = arg.LastError
	m.putUpload(u)
	return nil
}

func (m *MemoryStore) MarkUploadFailed(ctx context.Context, arg MarkUploadFailedParams) (int64, error) {
	if err := m.fault("MarkUploadFailed"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok || !active(u.Status) {
		return 0, nil
	}
	u.Status = UploadStatusFailed
	u.LastError = arg.LastError
	m.putUpload(u)
	return 1, nil
}

func (m *MemoryStore) MarkUploadCompensated(ctx context.Context, uploadID string) error {
	if err := m.fault("MarkUploadCompensated"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return nil
	}
	u.CompensationApplied = true
	m.putUpload(u)
	return nil
}

func (m *MemoryStore) CompleteUpload(ctx context.Context, arg CompleteUploadParams) (int64, error) {
	if err := m.fault("CompleteUpload"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[arg.UploadID]
	if !ok || !active(u.Status) {
		return 0, nil
	}
	u.Status = UploadStatusCompleted
	u.ResultTrackID = arg.ResultTrackID
	u.ExtractedMetadata = arg.ExtractedMetadata
	u.LastError = pgtype.Text{}
	m.putUpload(u)
	return 1, nil
}

func (m *MemoryStore) ListUncompensatedFailedUploads(ctx context.Context, limit int32) ([]Upload, error) {
	if err := m.fault("ListUncompensatedFailedUploads"); err != nil {
		return nil, err
	}
	return m.filterUploads(func(u Upload) bool {
		return u.Status == UploadStatusFailed && !u.CompensationApplied
	}, limit), nil
}

func (m *MemoryStore) ListStaleUploads(ctx context.Context, arg ListStaleUploadsParams) ([]Upload, error) {
	if err := m.fault("ListStaleUploads"); err != nil {
		return nil, err
	}
	return m.filterUploads(func(u Upload) bool {
		return u.Status == arg.Status && u.UpdatedAt.Time.Before(arg.UpdatedBefore.Time)
	}, arg.Limit), nil
}

func (m *MemoryStore) filterUploads(keep func(Upload) bool, limit int32) []Upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Upload
	for _, u := range m.uploads {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Time.Before(out[j].UpdatedAt.Time) })
	if limit > 0 && int32(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) TouchUpload(ctx context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.uploads[uploadID]; ok {
		m.putUpload(u)
	}
	return nil
}

func (m *MemoryStore) ArtistExists(ctx context.Context, id pgtype.UUID) (bool, error) {
	if err := m.fault("ArtistExists"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artists[id.Bytes], nil
}

func (m *MemoryStore) AlbumExists(ctx context.Context, id pgtype.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.albums[id.Bytes], nil
}

func (m *MemoryStore) GenreExists(ctx context.Context, id pgtype.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.genres[id.Bytes], nil
}

func (m *MemoryStore) CreateTrack(ctx context.Context, arg CreateTrackParams) (Track, error) {
	if err := m.fault("CreateTrack"); err != nil {
		return Track{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		if t.UploadID == arg.UploadID {
			return Track{}, &pgconn.PgError{Code: "23505", ConstraintName: "tracks_upload_id_key"}
		}
	}
	t := Track{
		ID:              arg.ID,
		UploadID:        arg.UploadID,
		OwnerID:         arg.OwnerID,
		Title:           arg.Title,
		ArtistID:        arg.ArtistID,
		AlbumID:         arg.AlbumID,
		GenreID:         arg.GenreID,
		Status:          arg.Status,
		AudioURL:        arg.AudioURL,
		CoverURL:        arg.CoverURL,
		DurationSeconds: arg.DurationSeconds,
		CreatedAt:       pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	m.tracks[t.ID.Bytes] = t
	if m.dirtyTracks != nil {
		m.dirtyTracks[t.ID.Bytes] = true
	}
	return t, nil
}

func (m *MemoryStore) GetTrack(ctx context.Context, id pgtype.UUID) (Track, error) {
	if err := m.fault("GetTrack"); err != nil {
		return Track{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id.Bytes]
	if !ok {
		return Track{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *MemoryStore) GetTrackForOwner(ctx context.Context, arg GetTrackForOwnerParams) (Track, error) {
	t, err := m.GetTrack(ctx, arg.ID)
	if err != nil {
		return Track{}, err
	}
	if t.OwnerID != arg.OwnerID {
		return Track{}, pgx.ErrNoRows
	}
	return t, nil
}

var _ Repository = (*MemoryStore)(nil)
