package storageengine

import (
	"context"

	"PastureDB/dberror"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"
)

func (tm *TableSpaceManager) executeInsert(ctx context.Context, s *types.InsertStatement, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := tm.table(s.Table)
	if err != nil {
		return nil, err
	}

	row := types.NewRow()
	for i, name := range s.Columns {
		if _, dup := row.Get(name); dup {
			return nil, dberror.New(dberror.ErrStatementValidation, "column %s listed twice", name).WithTableSpace(tm.Name())
		}
		v, err := s.Values[i].Resolve(evalCtx)
		if err != nil {
			return nil, err
		}
		_, coerced, err := tm.coerceColumn(t, name, v)
		if err != nil {
			return nil, err
		}
		row.Set(name, coerced)
	}
	for _, pk := range t.PrimaryKey() {
		if v, _ := row.Get(pk); v == nil {
			return nil, dberror.New(dberror.ErrStatementValidation, "primary key column %s cannot be null", pk).WithTableSpace(tm.Name())
		}
	}

	key, err := types.KeyOf(t.PrimaryKeyColumns(), row)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrStatementValidation, err, "primary key").WithTableSpace(tm.Name())
	}
	if tm.data.Contains(t.Name(), key) {
		return nil, dberror.New(dberror.ErrDuplicatePrimaryKey, "table %s already has a row with this primary key", t.Name()).
			WithTableSpace(tm.Name())
	}
	value, err := types.EncodeRow(t, row)
	if err != nil {
		return nil, err
	}

	entry := wal_manager.NewEntry(tm.Name(), types.OpInsert, t.Name())
	entry.Key = key
	entry.Value = value
	lsn, err := tm.commit(entry, nil)
	if err != nil {
		return nil, err
	}
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}
