package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBuffer(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRegistryCommitDirSink(t *testing.T) {
	tmp := t.TempDir()
	outDir := t.TempDir()

	r := NewRegistry()
	r.Add(writeBuffer(t, tmp, "buf1", "first"), "one.pdf")
	r.Add(writeBuffer(t, tmp, "buf2", "second"), "two.pdf")
	require.Len(t, r.Entries(), 2)

	sink := &DirSink{Dir: outDir, Overwrite: false}
	require.NoError(t, r.Commit(context.Background(), sink))

	data, err := os.ReadFile(filepath.Join(outDir, "one.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, err = os.ReadFile(filepath.Join(outDir, "two.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// temp buffers removed after successful commit
	_, err = os.Stat(filepath.Join(tmp, "buf1"))
	assert.True(t, os.IsNotExist(err))
}

func TestDirSinkOverwritePolicy(t *testing.T) {
	tmp := t.TempDir()
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "one.pdf"), []byte("old"), 0o644))

	r := NewRegistry()
	buf := writeBuffer(t, tmp, "buf1", "new")
	r.Add(buf, "one.pdf")

	err := r.Commit(context.Background(), &DirSink{Dir: outDir, Overwrite: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overwrite is disabled")

	// buffers survive a failed commit
	_, statErr := os.Stat(buf)
	assert.NoError(t, statErr)

	require.NoError(t, r.Commit(context.Background(), &DirSink{Dir: outDir, Overwrite: true}))
	data, err := os.ReadFile(filepath.Join(outDir, "one.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
