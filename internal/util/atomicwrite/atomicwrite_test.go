package atomicwrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "audit.key")

	require.NoError(t, WriteFile(path, []byte("one"), 0o600))
	require.NoError(t, WriteFile(path, []byte("two"), 0o600))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteNew_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.pub")
	require.NoError(t, WriteNew(path, []byte("pub"), 0o644))

	err := WriteNew(path, []byte("other"), 0o644)
	require.ErrorIs(t, err, ErrExists)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pub", string(b))
}
