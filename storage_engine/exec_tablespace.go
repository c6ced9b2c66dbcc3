package storageengine

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"PastureDB/dberror"
	"PastureDB/logging"
	"PastureDB/types"
)

/*
This file contains the table space commands
Creating a table space registers its definition in the metadata store first, then opens an
empty WAL and data directory for it. Dropping does the reverse: the definition goes last,
so a crash halfway through leaves a table space that is still listed and can be dropped again.
*/

func (m *DBManager) CreateTableSpace(name string) (*types.TableSpace, error) {
	if err := types.ValidateTableSpaceName(name); err != nil {
		return nil, err
	}
	if m.HasTableSpace(name) {
		return nil, dberror.New(dberror.ErrTableSpaceExists, "table space %s", name).WithTableSpace(name)
	}

	def, err := types.NewTableSpaceBuilder().Name(name).Leader(m.cfg.NodeID).Build()
	if err != nil {
		return nil, err
	}
	if err := m.metadata.RegisterTableSpace(def); err != nil {
		return nil, err
	}

	tm, err := m.openTableSpace(def)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tableSpaces[name] = tm
	m.mu.Unlock()

	logging.WithTableSpace(name).Info("table space created", "uuid", def.UUID())
	return def, nil
}

func (m *DBManager) DropTableSpace(name string) error {
	m.mu.Lock()
	tm, ok := m.tableSpaces[name]
	delete(m.tableSpaces, name)
	m.mu.Unlock()
	if !ok {
		return dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", name).WithTableSpace(name)
	}

	// wait for the statement in flight, if any
	tm.writeMu.Lock()
	defer tm.writeMu.Unlock()
	tm.markUnavailable(dberror.New(dberror.ErrTableSpaceNotFound, "table space dropped").WithTableSpace(name))

	if err := tm.wal.Close(); err != nil {
		return dberror.Wrap(dberror.ErrCommitLogWrite, err, "closing log").WithTableSpace(name)
	}
	if err := os.RemoveAll(m.walDir(name)); err != nil {
		return dberror.Wrap(dberror.ErrCommitLogWrite, err, "removing log").WithTableSpace(name)
	}
	if err := m.dataStorage.Drop(name); err != nil {
		return err
	}
	if err := m.metadata.DropTableSpace(name); err != nil {
		return err
	}

	m.planCache.Clear()
	logging.WithTableSpace(name).Info("table space dropped")
	return nil
}

func (m *DBManager) walDir(name string) string {
	return filepath.Join(m.cfg.BaseDir, "txlog", name)
}

func sortStatus(s []TableSpaceStatus) {
	slices.SortFunc(s, func(a, b TableSpaceStatus) int { return strings.Compare(a.Name, b.Name) })
}
