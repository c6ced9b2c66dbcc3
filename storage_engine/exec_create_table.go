package storageengine

import (
	"context"

	"PastureDB/dberror"
	"PastureDB/logging"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"
)

/*
This file contains the table DDL
Every entry carries the whole definition after the change, never a delta, so the catalog
built by replay matches the one persisted to the metadata store byte for byte.
*/

func (tm *TableSpaceManager) executeCreateTable(ctx context.Context, s *types.CreateTableStatement) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	catalog := tm.data.Catalog()
	if _, exists := catalog.Table(s.Table.Name()); exists && s.IfNotExists {
		return &StatementResult{}, nil
	}
	if err := catalog.ValidateNewTable(s.Table); err != nil {
		return nil, err
	}

	payload, err := s.Table.Serialize()
	if err != nil {
		return nil, err
	}
	entry := wal_manager.NewEntry(tm.Name(), types.OpCreateTable, s.Table.Name())
	entry.Payload = payload

	lsn, err := tm.commit(entry, catalog.WithTable(s.Table))
	if err != nil {
		return nil, err
	}
	logging.WithTable(tm.Name(), s.Table.Name()).Info("table created", "lsn", lsn, "columns", len(s.Table.Columns()))
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}

func (tm *TableSpaceManager) executeAlterTable(ctx context.Context, s *types.AlterTableStatement) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	catalog := tm.data.Catalog()
	table, ok := catalog.Table(s.Table)
	if !ok {
		return nil, dberror.New(dberror.ErrTableDefinition, "table %s does not exist", s.Table).WithTableSpace(tm.Name())
	}
	if len(s.AddColumns) == 0 && len(s.DropColumns) == 0 {
		return nil, dberror.New(dberror.ErrStatementValidation, "alter table %s changes nothing", s.Table).WithTableSpace(tm.Name())
	}

	for _, c := range s.AddColumns {
		if table, err = table.WithColumnAdded(c.Name, c.Type); err != nil {
			return nil, err
		}
	}
	for _, name := range s.DropColumns {
		for _, idx := range catalog.IndexesOf(s.Table) {
			if _, indexed := idx.Column(name); indexed {
				return nil, dberror.New(dberror.ErrTableDefinition, "column %s is used by index %s", name, idx.Name()).WithTableSpace(tm.Name())
			}
		}
		if table, err = table.WithColumnDropped(name); err != nil {
			return nil, err
		}
	}

	payload, err := table.Serialize()
	if err != nil {
		return nil, err
	}
	entry := wal_manager.NewEntry(tm.Name(), types.OpAlterTable, s.Table)
	entry.Payload = payload

	lsn, err := tm.commit(entry, catalog.WithTable(table))
	if err != nil {
		return nil, err
	}
	logging.WithTable(tm.Name(), s.Table).Info("table altered", "lsn", lsn,
		"added", len(s.AddColumns), "dropped", len(s.DropColumns))
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}

func (tm *TableSpaceManager) executeDropTable(ctx context.Context, s *types.DropTableStatement) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	catalog := tm.data.Catalog()
	if _, ok := catalog.Table(s.Table); !ok {
		if s.IfExists {
			return &StatementResult{}, nil
		}
		return nil, dberror.New(dberror.ErrTableDefinition, "table %s does not exist", s.Table).WithTableSpace(tm.Name())
	}

	next := catalog.WithoutTable(s.Table)
	lsn, err := tm.commit(wal_manager.NewEntry(tm.Name(), types.OpDropTable, s.Table), next)
	if err != nil {
		return nil, err
	}
	logging.WithTable(tm.Name(), s.Table).Info("table dropped", "lsn", lsn)
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}
