package checkpoint

import (
	"os"
	"testing"

	diskmanager "PastureDB/storage_engine/disk_manager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*CheckpointManager, *diskmanager.DiskManager) {
	t.Helper()
	disk, err := diskmanager.NewDiskManager(t.TempDir())
	require.NoError(t, err)
	return NewCheckpointManager(disk, "default"), disk
}

func TestSaveAndLoadCheckpoint(t *testing.T) {
	cm, _ := newManager(t)

	ck, err := cm.LoadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, ck, "no pointer yet")

	require.NoError(t, cm.SaveCheckpoint(42, "checkpoint_000000000000002a.data"))
	require.NoError(t, cm.SaveCheckpoint(57, "checkpoint_0000000000000039.data"))

	ck, err = cm.LoadCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, ck)
	assert.Equal(t, uint64(57), ck.LSN)
	assert.Equal(t, "default", ck.TableSpace)
	assert.Equal(t, "checkpoint_0000000000000039.data", ck.DataFile)
}

func TestCorruptPointerIsIgnored(t *testing.T) {
	cm, disk := newManager(t)

	require.NoError(t, os.WriteFile(disk.Path(PointerFileName), []byte(`{"lsn": 4`), 0644))
	ck, err := cm.LoadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, ck)
}

func TestDeleteCheckpoint(t *testing.T) {
	cm, _ := newManager(t)

	require.NoError(t, cm.DeleteCheckpoint(), "deleting a missing pointer is fine")
	require.NoError(t, cm.SaveCheckpoint(1, "checkpoint_0000000000000001.data"))
	require.NoError(t, cm.DeleteCheckpoint())

	ck, err := cm.LoadCheckpoint()
	require.NoError(t, err)
	assert.Nil(t, ck)
}
