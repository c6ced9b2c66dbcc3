package checkpoint

import (
	"sync"

	diskmanager "PastureDB/storage_engine/disk_manager"
)

// CheckpointManager owns the checkpoint pointer of one table space
type CheckpointManager struct {
	disk       *diskmanager.DiskManager
	tableSpace string
	mu         sync.RWMutex
}

// Checkpoint points at the newest durable data file of a table space
type Checkpoint struct {
	LSN        uint64 `json:"lsn"`
	Timestamp  int64  `json:"timestamp"` // only for operators, not used for replaying
	TableSpace string `json:"tablespace"`
	DataFile   string `json:"data_file"`
}
