package storageengine

import (
	"PastureDB/dberror"
	"PastureDB/types"
)

/*
This file contains the read path
Reads never take the write lock of the table space: each read sees the storage under its
read lock, so it observes every statement that returned before it and no half-applied one.

A scan whose equality columns are exactly the columns of a hash index is served by the
index, any other scan walks the table in primary key order and filters.
*/

func (tm *TableSpaceManager) executeGet(s *types.GetStatement, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	t, err := tm.table(s.Table)
	if err != nil {
		return nil, err
	}
	key, err := tm.primaryKeyFrom(t, s.Where, evalCtx)
	if err != nil {
		return nil, err
	}

	row, found, err := tm.data.Get(t.Name(), key)
	if err != nil {
		return nil, err
	}
	result := &StatementResult{Columns: t.ColumnNames(), Found: found}
	if found {
		result.Rows = []types.Row{row}
	}
	return result, nil
}

func (tm *TableSpaceManager) executeScan(s *types.ScanStatement, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	t, err := tm.table(s.Table)
	if err != nil {
		return nil, err
	}

	names, values, err := types.ResolveAssignments(evalCtx, s.Where)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		if _, values[i], err = tm.coerceColumn(t, name, values[i]); err != nil {
			return nil, err
		}
	}

	result := &StatementResult{Columns: t.ColumnNames()}
	if idx := indexFor(tm.data.Catalog(), t.Name(), names); idx != nil {
		rows, err := tm.indexScan(idx, names, values)
		if err != nil {
			return nil, err
		}
		result.Rows = limitRows(rows, s.Limit)
		result.UsedIndex = idx.Name()
		return result, nil
	}

	err = tm.data.Scan(t.Name(), func(_ []byte, row types.Row) bool {
		for i, name := range names {
			v, _ := row.Get(name)
			if !types.ValuesEqual(v, values[i]) {
				return true
			}
		}
		result.Rows = append(result.Rows, row)
		return s.Limit <= 0 || len(result.Rows) < s.Limit
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// indexScan encodes the predicate in index column order and looks it up
func (tm *TableSpaceManager) indexScan(idx *types.Index, names []string, values []any) ([]types.Row, error) {
	byName := make(map[string]any, len(names))
	for i, name := range names {
		byName[name] = values[i]
	}
	keyValues := make([]any, 0, len(names))
	for _, c := range idx.Columns() {
		keyValues = append(keyValues, byName[c.Name])
	}
	key, err := types.EncodeKey(idx.Columns(), keyValues)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrStatementValidation, err, "index key").WithTableSpace(tm.Name())
	}
	return tm.data.IndexLookup(idx.Name(), key)
}

func limitRows(rows []types.Row, limit int) []types.Row {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
