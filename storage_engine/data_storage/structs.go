package datastorage

import (
	"sync"

	checkpoint "PastureDB/storage_engine/checkpoint_manager"
	diskmanager "PastureDB/storage_engine/disk_manager"
	"PastureDB/types"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/treeset"
)

const (
	checkpointFilePrefix = "checkpoint_"
	checkpointFileSuffix = ".data"
	checkpointMagic      = 0x50415354434b5054 // "PASTCKPT"
	checkpointVersion    = 1
)

// TableSpaceData is the live row and index state of one table space
type TableSpaceData struct {
	name        string
	mu          sync.RWMutex
	catalog     *types.Catalog
	tables      map[string]*treemap.Map // table -> string(pk) -> encoded row
	indexes     map[string]hashIndex    // index name -> entries
	lastApplied uint64
}

// hashIndex maps an encoded index key to the primary keys holding it
type hashIndex map[string]*treeset.Set

// Snapshot is a copy of a TableSpaceData taken under its read lock
type Snapshot struct {
	TableSpace string
	LSN        uint64
	Catalog    *types.Catalog
	Tables     map[string][]KeyValue
	Indexes    map[string][]IndexEntry
}

type KeyValue struct {
	Key   []byte
	Value []byte
}

type IndexEntry struct {
	Key         []byte
	PrimaryKeys [][]byte
}

// DataStorageManager owns <base>/data/<tablespace>/ for every open table space
type DataStorageManager struct {
	dataRoot    string
	mu          sync.RWMutex
	tableSpaces map[string]*tableSpaceStorage
}

type tableSpaceStorage struct {
	data        *TableSpaceData
	disk        *diskmanager.DiskManager
	checkpoints *checkpoint.CheckpointManager
	ckMu        sync.Mutex // one checkpoint at a time per table space
}
