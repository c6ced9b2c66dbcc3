package checkpoint

import (
	"fmt"
	"os"
	"time"

	"PastureDB/logging"
	diskmanager "PastureDB/storage_engine/disk_manager"

	json "github.com/json-iterator/go"
)

/*
This file is the main file of the CheckpointManager
The pointer file checkpoint.json names the data file holding the latest checkpoint and the
LSN it covers. Recovery loads that data file and replays the log from LSN+1.

The pointer is only a shortcut: data files carry their own LSN and checksum, so a missing
or unreadable pointer makes the caller fall back to scanning the data directory.
*/

const PointerFileName = "checkpoint.json"

func NewCheckpointManager(disk *diskmanager.DiskManager, tableSpace string) *CheckpointManager {
	return &CheckpointManager{
		disk:       disk,
		tableSpace: tableSpace,
	}
}

// SaveCheckpoint atomically replaces the pointer
func (cm *CheckpointManager) SaveCheckpoint(lsn uint64, dataFile string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	checkpoint := Checkpoint{
		LSN:        lsn,
		Timestamp:  time.Now().Unix(),
		TableSpace: cm.tableSpace,
		DataFile:   dataFile,
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	if err := cm.disk.WriteFile(PointerFileName, data); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	logging.WithTableSpace(cm.tableSpace).Debug("checkpoint pointer saved", "lsn", lsn, "data_file", dataFile)
	return nil
}

// LoadCheckpoint returns the saved pointer, or nil when there is none or it cannot be parsed
func (cm *CheckpointManager) LoadCheckpoint() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	data, err := cm.disk.ReadFile(PointerFileName)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil || checkpoint.DataFile == "" {
		logging.WithTableSpace(cm.tableSpace).Warn("checkpoint pointer unreadable, ignoring it",
			"path", cm.disk.Path(PointerFileName))
		return nil, nil
	}

	logging.WithTableSpace(cm.tableSpace).Debug("checkpoint pointer loaded",
		"lsn", checkpoint.LSN, "timestamp", checkpoint.Timestamp)
	return &checkpoint, nil
}

// DeleteCheckpoint removes the pointer file
func (cm *CheckpointManager) DeleteCheckpoint() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := cm.disk.Remove(PointerFileName); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
