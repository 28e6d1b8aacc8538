package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirBackupperCopiesTree(t *testing.T) {
	dataRoot := t.TempDir()
	backupDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, "alice", "files"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "alice", "files", "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "b.txt"), []byte("world!"), 0o644))

	target, err := NewDirBackupper(dataRoot, backupDir).Backup()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(target, "alice", "files", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = os.ReadFile(filepath.Join(target, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world!", string(data))
}

func TestDirBackupperFailsOnMissingSource(t *testing.T) {
	_, err := NewDirBackupper("/nonexistent/source", t.TempDir()).Backup()
	assert.Error(t, err)
}
