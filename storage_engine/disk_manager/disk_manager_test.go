package diskmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileReplacesContent(t *testing.T) {
	dm, err := NewDiskManager(filepath.Join(t.TempDir(), "metadata", "default"))
	require.NoError(t, err)

	require.NoError(t, dm.WriteFile("catalog.dat", []byte("v1")))
	require.NoError(t, dm.WriteFile("catalog.dat", []byte("v2")))

	data, err := dm.ReadFile("catalog.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	assert.False(t, dm.Exists("catalog.dat"+tempSuffix))
}

func TestListSkipsTempFiles(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dm.WriteFile("checkpoint_02.data", nil))
	require.NoError(t, dm.WriteFile("checkpoint_01.data", nil))
	require.NoError(t, os.WriteFile(dm.Path("checkpoint_03.data.tmp"), nil, 0644))
	require.NoError(t, dm.WriteFile("checkpoint.json", nil))

	names, err := dm.List("checkpoint_", ".data")
	require.NoError(t, err)
	assert.Equal(t, []string{"checkpoint_01.data", "checkpoint_02.data"}, names)
}

func TestRemove(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dm.Remove("missing.dat"))
	require.NoError(t, dm.WriteFile("a.dat", []byte("x")))
	require.NoError(t, dm.Remove("a.dat"))
	assert.False(t, dm.Exists("a.dat"))

	require.NoError(t, dm.RemoveAll())
	_, err = os.Stat(dm.Dir())
	assert.True(t, os.IsNotExist(err))
}
