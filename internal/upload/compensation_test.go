package upload

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putBlob(t *testing.T, store *storage.MemoryStorage, key string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader("x"), 1, "application/octet-stream"))
}

func TestCompensator_Cleanup(t *testing.T) {
	store := storage.NewMemoryStorage()
	b := Blobs{Audio: "uploads/o/u/0/audio", Cover: "uploads/o/u/0/cover"}
	putBlob(t, store, b.Audio)
	putBlob(t, store, b.Cover)

	ok := NewCompensator(store).Cleanup(context.Background(), "test", b)
	assert.True(t, ok)
	assert.Equal(t, 0, store.Count())
	assert.ElementsMatch(t, b.Keys(), store.Deletes())
}

func TestCompensator_PartialFailure(t *testing.T) {
	store := storage.NewMemoryStorage()
	b := Blobs{Audio: "uploads/o/u/0/audio", Cover: "uploads/o/u/0/cover"}
	putBlob(t, store, b.Audio)
	putBlob(t, store, b.Cover)
	store.FailOn("delete", "/cover", errors.New("access denied"))

	ok := NewCompensator(store).Cleanup(context.Background(), "test", b)
	assert.False(t, ok)

	// the other key is still attempted
	_, audioLeft := store.GetData(b.Audio)
	_, coverLeft := store.GetData(b.Cover)
	assert.False(t, audioLeft)
	assert.True(t, coverLeft)
}

func TestCompensator_MissingKeysAreFine(t *testing.T) {
	store := storage.NewMemoryStorage()

	ok := NewCompensator(store).Cleanup(context.Background(), "test", Blobs{Audio: "uploads/o/u/0/audio"})
	assert.True(t, ok)
}

func TestCompensator_EmptyBlobs(t *testing.T) {
	store := storage.NewMemoryStorage()

	assert.True(t, NewCompensator(store).Cleanup(context.Background(), "test", Blobs{}))
	assert.Empty(t, store.Deletes())
}

func TestCompensator_IgnoresCallerCancellation(t *testing.T) {
	store := storage.NewMemoryStorage()
	b := Blobs{Audio: "uploads/o/u/0/audio"}
	putBlob(t, store, b.Audio)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, NewCompensator(store).Cleanup(ctx, "test", b))
	assert.Equal(t, 0, store.Count())
}
