package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	paths, err := InitDirectories(filepath.Join(tmpDir, "nested", "..", "data"))
	require.NoError(t, err)
	assert.NotNil(t, paths)

	assert.Equal(t, filepath.Join(tmpDir, "data"), paths.BaseDir)
	assert.DirExists(t, paths.BaseDir)
	assert.DirExists(t, paths.SnapshotDir)
	assert.NoFileExists(t, filepath.Join(paths.SnapshotDir, ".write_test"))
}

func TestInitDirectories_FileInTheWay(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "data")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := InitDirectories(blocker)
	assert.Error(t, err)
}
