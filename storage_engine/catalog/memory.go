package catalog

import (
	"slices"
	"strings"

	"PastureDB/dberror"
	"PastureDB/types"
)

// catalogs are kept serialized so Load hands out a fresh copy, like the file store

func NewMemoryMetadataStorageManager() *MemoryMetadataStorageManager {
	return &MemoryMetadataStorageManager{
		tableSpaces: make(map[string]*types.TableSpace),
		catalogs:    make(map[string][]byte),
	}
}

func (m *MemoryMetadataStorageManager) RegisterTableSpace(ts *types.TableSpace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tableSpaces[ts.Name()]; exists {
		return dberror.New(dberror.ErrTableSpaceExists, "table space %s", ts.Name()).WithTableSpace(ts.Name())
	}
	m.tableSpaces[ts.Name()] = ts
	return nil
}

func (m *MemoryMetadataStorageManager) ListTableSpaces() ([]*types.TableSpace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.TableSpace, 0, len(m.tableSpaces))
	for _, ts := range m.tableSpaces {
		out = append(out, ts)
	}
	slices.SortFunc(out, func(a, b *types.TableSpace) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

func (m *MemoryMetadataStorageManager) DropTableSpace(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tableSpaces[name]; !ok {
		return dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", name).WithTableSpace(name)
	}
	delete(m.tableSpaces, name)
	delete(m.catalogs, name)
	return nil
}

func (m *MemoryMetadataStorageManager) Persist(tableSpace string, catalog *types.Catalog) error {
	data, err := catalog.Serialize()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tableSpaces[tableSpace]; !ok {
		return dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", tableSpace).WithTableSpace(tableSpace)
	}
	m.catalogs[tableSpace] = data
	return nil
}

func (m *MemoryMetadataStorageManager) Load(tableSpace string) (*types.Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tableSpaces[tableSpace]; !ok {
		return nil, dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", tableSpace).WithTableSpace(tableSpace)
	}
	data, ok := m.catalogs[tableSpace]
	if !ok {
		return types.NewCatalog(tableSpace), nil
	}
	return types.DeserializeCatalog(data)
}
