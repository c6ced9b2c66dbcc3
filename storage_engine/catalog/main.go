package catalog

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"PastureDB/dberror"
	"PastureDB/logging"
	diskmanager "PastureDB/storage_engine/disk_manager"
	"PastureDB/types"
)

/*
This file is the main access of the metadata storage manager
It is the source of truth for which table spaces, tables and indexes exist.

<base>/metadata/<tablespace>/tablespace.dat   table space definition
<base>/metadata/<tablespace>/catalog.dat      tables and indexes, replaced as a whole

Both files go through the disk manager so a reader never observes a partially written catalog.
Definitions are cached in memory after the first read.
*/

func NewFileMetadataStorageManager(baseDir string) (*FileMetadataStorageManager, error) {
	root := filepath.Join(baseDir, "metadata")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, dberror.Wrap(dberror.ErrMetadataIO, err, "creating %s", root)
	}

	m := &FileMetadataStorageManager{
		metadataRoot: root,
		tableSpaces:  make(map[string]*tableSpaceFiles),
	}
	if err := m.loadTableSpaces(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileMetadataStorageManager) loadTableSpaces() error {
	entries, err := os.ReadDir(m.metadataRoot)
	if err != nil {
		return dberror.Wrap(dberror.ErrMetadataIO, err, "listing %s", m.metadataRoot)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		disk, err := diskmanager.NewDiskManager(filepath.Join(m.metadataRoot, e.Name()))
		if err != nil {
			return dberror.Wrap(dberror.ErrMetadataIO, err, "opening table space directory").WithTableSpace(e.Name())
		}
		data, err := disk.ReadFile(TableSpaceFileName)
		if os.IsNotExist(err) {
			// crash between mkdir and the first write of a registration
			logging.WithTableSpace(e.Name()).Warn("ignoring metadata directory without definition", "dir", disk.Dir())
			continue
		}
		if err != nil {
			return dberror.Wrap(dberror.ErrMetadataIO, err, "reading table space definition").WithTableSpace(e.Name())
		}
		ts, err := types.DeserializeTableSpace(data)
		if err != nil {
			return dberror.Wrap(dberror.ErrMalformedStream, err, "reading table space definition").
				WithTableSpace(e.Name()).
				WithRecord(TableSpaceFileName)
		}
		m.tableSpaces[ts.Name()] = &tableSpaceFiles{definition: ts, disk: disk}
	}
	return nil
}

func (m *FileMetadataStorageManager) RegisterTableSpace(ts *types.TableSpace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tableSpaces[ts.Name()]; exists {
		return dberror.New(dberror.ErrTableSpaceExists, "table space %s", ts.Name()).WithTableSpace(ts.Name())
	}

	data, err := ts.Serialize()
	if err != nil {
		return err
	}
	disk, err := diskmanager.NewDiskManager(filepath.Join(m.metadataRoot, ts.Name()))
	if err != nil {
		return dberror.Wrap(dberror.ErrMetadataIO, err, "creating table space directory").WithTableSpace(ts.Name())
	}
	if err := disk.WriteFile(TableSpaceFileName, data); err != nil {
		return dberror.Wrap(dberror.ErrMetadataIO, err, "writing table space definition").WithTableSpace(ts.Name())
	}

	m.tableSpaces[ts.Name()] = &tableSpaceFiles{definition: ts, disk: disk}
	logging.WithTableSpace(ts.Name()).Info("table space registered", "uuid", ts.UUID(), "leader", ts.Leader())
	return nil
}

// ListTableSpaces returns the registered table spaces sorted by name
func (m *FileMetadataStorageManager) ListTableSpaces() ([]*types.TableSpace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.TableSpace, 0, len(m.tableSpaces))
	for _, files := range m.tableSpaces {
		out = append(out, files.definition)
	}
	slices.SortFunc(out, func(a, b *types.TableSpace) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

func (m *FileMetadataStorageManager) DropTableSpace(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.tableSpaces[name]
	if !ok {
		return dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", name).WithTableSpace(name)
	}
	if err := files.disk.RemoveAll(); err != nil {
		return dberror.Wrap(dberror.ErrMetadataIO, err, "dropping table space").WithTableSpace(name)
	}
	delete(m.tableSpaces, name)
	logging.WithTableSpace(name).Info("table space dropped")
	return nil
}

// Persist durably replaces the catalog of a table space
func (m *FileMetadataStorageManager) Persist(tableSpace string, catalog *types.Catalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.tableSpaces[tableSpace]
	if !ok {
		return dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", tableSpace).WithTableSpace(tableSpace)
	}

	data, err := catalog.Serialize()
	if err != nil {
		return err
	}
	if err := files.disk.WriteFile(CatalogFileName, data); err != nil {
		return dberror.Wrap(dberror.ErrMetadataIO, err, "writing catalog").WithTableSpace(tableSpace)
	}
	files.catalog = catalog
	return nil
}

// Load returns the last persisted catalog, or an empty one if nothing was persisted yet
func (m *FileMetadataStorageManager) Load(tableSpace string) (*types.Catalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.tableSpaces[tableSpace]
	if !ok {
		return nil, dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", tableSpace).WithTableSpace(tableSpace)
	}
	if files.catalog != nil {
		return files.catalog, nil
	}

	data, err := files.disk.ReadFile(CatalogFileName)
	if os.IsNotExist(err) {
		files.catalog = types.NewCatalog(tableSpace)
		return files.catalog, nil
	}
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrMetadataIO, err, "reading catalog").WithTableSpace(tableSpace)
	}

	catalog, err := types.DeserializeCatalog(data)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "reading catalog").
			WithTableSpace(tableSpace).
			WithRecord(CatalogFileName)
	}
	if catalog.TableSpace() != tableSpace {
		return nil, dberror.New(dberror.ErrMalformedStream, "catalog belongs to table space %s", catalog.TableSpace()).
			WithTableSpace(tableSpace).
			WithRecord(CatalogFileName)
	}
	files.catalog = catalog
	return catalog, nil
}
