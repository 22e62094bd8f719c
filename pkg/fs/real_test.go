package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/vsdb/pkg/fs"
)

func TestReal_Exists_ReturnsFalse_WhenPathMissing(t *testing.T) {
	t.Parallel()

	real := fs.NewReal()
	dir := t.TempDir()

	exists, err := real.Exists(filepath.Join(dir, "no-such-journal"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestReal_Exists_ReturnsTrue_ForFile(t *testing.T) {
	t.Parallel()

	real := fs.NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")

	require.NoError(t, os.WriteFile(path, []byte("dead-prefixes"), 0o644))

	exists, err := real.Exists(path)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestReal_Exists_ReturnsTrue_ForDirectory(t *testing.T) {
	t.Parallel()

	real := fs.NewReal()
	dir := t.TempDir()
	subdir := filepath.Join(dir, "vsdb-base")

	require.NoError(t, os.MkdirAll(subdir, 0o755))

	exists, err := real.Exists(subdir)
	require.NoError(t, err)
	require.True(t, exists)
}
