package badger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/dossier/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
	assert.NoError(t, backend.Sync())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "index")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, backend.Sync())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	_, err := OpenBackend(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	// Closing twice is a no-op
	require.NoError(t, backend.Close())

	err = backend.WithTx(func(*badger.Txn) error { return nil }, false)
	require.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestKeys(t *testing.T) {
	key := makeEntryKey(258)
	seq, ok := seqFromEntryKey(key)
	require.True(t, ok)
	assert.Equal(t, uint64(258), seq)

	// Big-endian keys sort in sequence order
	assert.Less(t, string(makeEntryKey(255)), string(makeEntryKey(256)))

	_, ok = seqFromEntryKey([]byte("idxent:"))
	assert.False(t, ok)
}

func TestOpenBackend_LockedByAnotherHandle(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer first.Close()

	_, err = OpenBackend(dir, false)
	require.ErrorIs(t, err, storage.ErrLocked)
	assert.NotErrorIs(t, err, storage.ErrCorrupt)
}

func TestOpenBackend_CorruptManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MANIFEST"), []byte("definitely not badger"), 0644))

	_, err := OpenBackend(dir, false)
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"lock", `Cannot acquire directory lock on "/x".  Another process is using this Badger database. err: resource temporarily unavailable`, storage.ErrLocked},
		{"bad magic", "manifest has bad magic", storage.ErrCorrupt},
		{"checksum", "manifest has checksum mismatch", storage.ErrCorrupt},
		{"permission", "open /x/MANIFEST: permission denied", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyOpenError(errors.New(tt.msg))
			if tt.want == nil {
				assert.NotErrorIs(t, err, storage.ErrLocked)
				assert.NotErrorIs(t, err, storage.ErrCorrupt)
				assert.Equal(t, tt.msg, err.Error())
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
