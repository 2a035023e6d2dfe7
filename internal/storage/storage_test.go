package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStorage runs the common contract against any driver.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()

	_, err := s.Get(KeyAuthToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(KeyAuthToken, "t1"))
	v, err := s.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "t1", v)

	require.NoError(t, s.Set(KeyAuthToken, "t2"))
	v, err = s.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "t2", v)

	require.NoError(t, s.Delete(KeyAuthToken))
	_, err = s.Get(KeyAuthToken)
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting a missing key is fine
	require.NoError(t, s.Delete("never-set"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFileStorage(path)
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestFileStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := NewFileStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAuthToken, "persisted"))
	require.NoError(t, s.Set(KeySession, `{"token":"persisted"}`))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewFileStorage(path)
	require.NoError(t, err)
	v, err := reopened.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "persisted", v)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStorage(path)
	assert.Error(t, err)
}

func TestBadgerStorage_InMemory(t *testing.T) {
	s, err := NewBadgerStorage("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStorage(t, s)
}

func TestBadgerStorage_OnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBadgerStorage(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAuthToken, "disk"))
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStorage(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	v, err := reopened.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "disk", v)
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	s, err = Open("", filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	_, err = Open("redis", "")
	assert.Error(t, err)
}

func TestGetOptional(t *testing.T) {
	s := NewMemoryStorage()

	v, err := GetOptional(s, KeyAuthToken)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set(KeyAuthToken, "x"))
	v, err = GetOptional(s, KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
