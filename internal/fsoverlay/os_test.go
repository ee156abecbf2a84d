package fsoverlay

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMounted(t *testing.T) *OS {
	t.Helper()
	root := t.TempDir()
	o := New(root)
	require.NoError(t, o.Mount(root))
	return o
}

func TestMountRejectsWrongPoint(t *testing.T) {
	o := New(t.TempDir())
	err := o.Mount("/somewhere/else")
	assert.Error(t, err)
}

func TestWriteReadListRoundTrip(t *testing.T) {
	o := newMounted(t)

	w, err := o.OpenWrite("/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := o.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.EqualValues(t, 5, entries[0].Size)

	r, err := o.OpenRead("/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, r.Close())
}

func TestRenameWithinSameParent(t *testing.T) {
	o := newMounted(t)
	w, err := o.OpenWrite("/old.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, o.Rename("/old.txt", "/new.txt"))
	_, err = o.Stat("/new.txt")
	assert.NoError(t, err)
	_, err = o.Stat("/old.txt")
	assert.Error(t, err)
}

func TestMkdirAndUnlink(t *testing.T) {
	o := newMounted(t)
	require.NoError(t, o.Mkdir("/sub"))
	entries, err := o.ListDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir)

	w, err := o.OpenWrite("/f.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, o.Unlink("/f.txt"))
	_, err = os.Stat(filepath.Join(o.root, "f.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnmountBlocksAccess(t *testing.T) {
	o := newMounted(t)
	require.NoError(t, o.Unmount())
	_, err := o.ListDir("/")
	assert.Error(t, err)
}
