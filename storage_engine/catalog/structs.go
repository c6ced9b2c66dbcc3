package catalog

import (
	"sync"

	diskmanager "PastureDB/storage_engine/disk_manager"
	"PastureDB/types"
)

const (
	TableSpaceFileName = "tablespace.dat"
	CatalogFileName    = "catalog.dat"
)

// FileMetadataStorageManager keeps one directory per table space under <base>/metadata
type FileMetadataStorageManager struct {
	metadataRoot string
	mu           sync.RWMutex
	tableSpaces  map[string]*tableSpaceFiles
}

type tableSpaceFiles struct {
	definition *types.TableSpace
	disk       *diskmanager.DiskManager
	catalog    *types.Catalog // nil until loaded or persisted
}

// MemoryMetadataStorageManager keeps definitions in memory only
type MemoryMetadataStorageManager struct {
	mu          sync.RWMutex
	tableSpaces map[string]*types.TableSpace
	catalogs    map[string][]byte
}
