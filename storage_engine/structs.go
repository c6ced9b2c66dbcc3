package storageengine

import (
	"context"
	"sync"
	"sync/atomic"

	"PastureDB/config"
	"PastureDB/dberror"
	plancache "PastureDB/plan_cache"
	datastorage "PastureDB/storage_engine/data_storage"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"
)

// MetadataStore is the source of truth for which table spaces, tables and indexes exist
type MetadataStore interface {
	RegisterTableSpace(ts *types.TableSpace) error
	ListTableSpaces() ([]*types.TableSpace, error)
	DropTableSpace(name string) error
	Persist(tableSpace string, catalog *types.Catalog) error
	Load(tableSpace string) (*types.Catalog, error)
}

// DBManager owns every table space of the node
type DBManager struct {
	cfg         config.Config
	metadata    MetadataStore
	dataStorage *datastorage.DataStorageManager
	planCache   *plancache.PlanCache

	mu          sync.RWMutex
	tableSpaces map[string]*TableSpaceManager

	checkpointTrigger chan struct{}
	stopScheduler     context.CancelFunc
	schedulerDone     chan struct{}
	started           bool
}

// TableSpaceManager serializes the writes of one table space through its WAL
type TableSpaceManager struct {
	definition *types.TableSpace
	wal        *wal_manager.WALManager
	data       *datastorage.TableSpaceData
	metadata   MetadataStore

	writeMu     sync.Mutex
	unavailable atomic.Pointer[dberror.DBError]
}

// StatementResult is what a statement produced
type StatementResult struct {
	LSN         uint64      // 0 when nothing was logged
	UpdateCount int         // rows or definitions changed
	Columns     []string    // for reads, in table order
	Rows        []types.Row // for reads
	Found       bool        // for primary key reads
	UsedIndex   string      // index that served a scan, empty for full scans
}

type TableSpaceStatus struct {
	Name      string `json:"name"`
	UUID      string `json:"uuid"`
	Leader    string `json:"leader"`
	LastLSN   uint64 `json:"lastLsn"`
	LogSize   int64  `json:"logSize"`
	Tables    int    `json:"tables"`
	Indexes   int    `json:"indexes"`
	Available bool   `json:"available"`
}
