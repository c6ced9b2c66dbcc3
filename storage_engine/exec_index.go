package storageengine

import (
	"context"

	"PastureDB/dberror"
	"PastureDB/logging"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"
)

// executeCreateIndex logs the definition only, the entries are built from the rows when it is applied
func (tm *TableSpaceManager) executeCreateIndex(ctx context.Context, s *types.CreateIndexStatement) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	catalog := tm.data.Catalog()
	if err := catalog.ValidateNewIndex(s.Index); err != nil {
		return nil, err
	}

	payload, err := s.Index.Serialize()
	if err != nil {
		return nil, err
	}
	entry := wal_manager.NewEntry(tm.Name(), types.OpCreateIndex, s.Index.Table())
	entry.Index = s.Index.Name()
	entry.Payload = payload

	lsn, err := tm.commit(entry, catalog.WithIndex(s.Index))
	if err != nil {
		return nil, err
	}
	logging.WithTable(tm.Name(), s.Index.Table()).Info("index created",
		"index", s.Index.Name(), "type", s.Index.Type(), "columns", s.Index.ColumnNames(), "lsn", lsn)
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}

func (tm *TableSpaceManager) executeDropIndex(ctx context.Context, s *types.DropIndexStatement) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	catalog := tm.data.Catalog()
	idx, ok := catalog.Index(s.Name)
	if !ok {
		if s.IfExists {
			return &StatementResult{}, nil
		}
		return nil, dberror.New(dberror.ErrIndexDefinition, "index %s does not exist", s.Name).WithTableSpace(tm.Name())
	}

	entry := wal_manager.NewEntry(tm.Name(), types.OpDropIndex, idx.Table())
	entry.Index = idx.Name()

	lsn, err := tm.commit(entry, catalog.WithoutIndex(idx.Name()))
	if err != nil {
		return nil, err
	}
	logging.WithTable(tm.Name(), idx.Table()).Info("index dropped", "index", idx.Name(), "lsn", lsn)
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}
