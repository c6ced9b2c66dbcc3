package storageengine

import (
	"context"

	"PastureDB/dberror"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"
)

/*
UPDATE and DELETE address a single row by primary key.
The entry of an update is the full row image after the change, so the stored row is read
and merged under the write lock. A key that matches nothing logs nothing.
*/

func (tm *TableSpaceManager) executeUpdate(ctx context.Context, s *types.UpdateStatement, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := tm.table(s.Table)
	if err != nil {
		return nil, err
	}
	key, err := tm.primaryKeyFrom(t, s.Where, evalCtx)
	if err != nil {
		return nil, err
	}

	names, values, err := types.ResolveAssignments(evalCtx, s.Set)
	if err != nil {
		return nil, err
	}
	changes := make(map[string]any, len(names))
	for i, name := range names {
		if t.IsPrimaryKeyColumn(name) {
			return nil, dberror.New(dberror.ErrStatementValidation, "primary key column %s cannot be updated", name).WithTableSpace(tm.Name())
		}
		_, coerced, err := tm.coerceColumn(t, name, values[i])
		if err != nil {
			return nil, err
		}
		changes[name] = coerced
	}

	current, found, err := tm.data.Get(t.Name(), key)
	if err != nil {
		return nil, err
	}
	if !found {
		return &StatementResult{}, nil
	}

	row := current.Clone()
	for name, v := range changes {
		row.Set(name, v)
	}
	value, err := types.EncodeRow(t, row)
	if err != nil {
		return nil, err
	}

	entry := wal_manager.NewEntry(tm.Name(), types.OpUpdate, t.Name())
	entry.Key = key
	entry.Value = value
	lsn, err := tm.commit(entry, nil)
	if err != nil {
		return nil, err
	}
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}

func (tm *TableSpaceManager) executeDelete(ctx context.Context, s *types.DeleteStatement, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	unlock, err := tm.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := tm.table(s.Table)
	if err != nil {
		return nil, err
	}
	key, err := tm.primaryKeyFrom(t, s.Where, evalCtx)
	if err != nil {
		return nil, err
	}
	if !tm.data.Contains(t.Name(), key) {
		return &StatementResult{}, nil
	}

	entry := wal_manager.NewEntry(tm.Name(), types.OpDelete, t.Name())
	entry.Key = key
	lsn, err := tm.commit(entry, nil)
	if err != nil {
		return nil, err
	}
	return &StatementResult{LSN: lsn, UpdateCount: 1}, nil
}
