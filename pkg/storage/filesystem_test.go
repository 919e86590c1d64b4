package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("loans/a.csv", []byte("isbn,title\n")))

	f, err := s.Open("loans/a.csv")
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "isbn,title\n", string(body))

	require.NoError(t, s.Delete("loans/a.csv"))
	require.NoError(t, s.Delete("loans/a.csv"))

	_, err = s.Open("loans/a.csv")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Save("../outside.csv", nil), ErrOutsideRoot)
	assert.ErrorIs(t, s.Save("/etc/passwd", nil), ErrOutsideRoot)
	_, err = s.Open("a/../../b")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save("old.csv", []byte("x")))
	require.NoError(t, s.Save("fresh.csv", []byte("y")))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.csv"), old, old))

	removed, err := s.CleanupOlderThan(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old.csv"}, removed)

	_, err = os.Stat(filepath.Join(dir, "fresh.csv"))
	assert.NoError(t, err)
}
