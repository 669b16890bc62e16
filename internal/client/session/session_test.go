package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	want := &Session{UserTag: "@alice", Username: "Alice", Token: "tok-123"}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_LoadMissingMeansLoggedOut(t *testing.T) {
	t.Parallel()

	got, err := newTestStore(t).Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_CorruptFileDiscarded(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	store := NewStore(path)
	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt session file should be removed")
}

func TestStore_IncompleteSessionDiscarded(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"username":"Alice"}`), 0600))

	got, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.Save(&Session{UserTag: "@a", Username: "a", Token: "t"}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clear is idempotent")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
