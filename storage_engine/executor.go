package storageengine

import (
	"context"
	"fmt"

	"PastureDB/dberror"
	"PastureDB/plan"
	"PastureDB/types"
)

/*
Statement execution:

	ExecutePlan
	  ├── plan.ValidateContext          every placeholder has a parameter
	  ├── table space available?
	  ├── validate against the catalog  StatementValidationError, nothing logged
	  ├── build the log entry           full row image or full definition
	  ├── WAL append + fsync            the commit point
	  ├── metadata persist              DDL only
	  └── apply to rows and indexes

Writes of a table space run under its write lock, reads only take the storage read lock.
Cancelling ctx is honoured until the append, never after it.
*/

// ExecuteStatement runs a statement through a one-off plan that is not cached
func (m *DBManager) ExecuteStatement(ctx context.Context, stmt types.Statement, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	return m.ExecutePlan(ctx, plan.Simple(m.planCache.NextID(), stmt), evalCtx)
}

// Prepare returns the cached plan of stmt, building it once per fingerprint
func (m *DBManager) Prepare(ctx context.Context, stmt types.Statement) (*plan.ExecutionPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := stmt.TableSpace() + ":" + stmt.Fingerprint()
	return m.planCache.GetOrCompute(key, func(id uint64) (*plan.ExecutionPlan, error) {
		return plan.SimpleWithRoot(id, stmt, m.planRoot(stmt)), nil
	})
}

func (m *DBManager) ExecutePlan(ctx context.Context, p *plan.ExecutionPlan, evalCtx *types.EvaluationContext) (*StatementResult, error) {
	if evalCtx == nil {
		evalCtx = types.NewEvaluationContext()
	}
	if err := p.ValidateContext(evalCtx); err != nil {
		return nil, err
	}

	stmt := p.MainStatement()
	tm, err := m.tableSpace(stmt.TableSpace())
	if err != nil {
		return nil, err
	}
	if err := tm.available(); err != nil {
		return nil, err
	}

	var result *StatementResult
	switch s := stmt.(type) {
	case *types.CreateTableStatement:
		result, err = tm.executeCreateTable(ctx, s)
	case *types.AlterTableStatement:
		result, err = tm.executeAlterTable(ctx, s)
	case *types.DropTableStatement:
		result, err = tm.executeDropTable(ctx, s)
	case *types.CreateIndexStatement:
		result, err = tm.executeCreateIndex(ctx, s)
	case *types.DropIndexStatement:
		result, err = tm.executeDropIndex(ctx, s)
	case *types.InsertStatement:
		result, err = tm.executeInsert(ctx, s, evalCtx)
	case *types.UpdateStatement:
		result, err = tm.executeUpdate(ctx, s, evalCtx)
	case *types.DeleteStatement:
		result, err = tm.executeDelete(ctx, s, evalCtx)
	case *types.GetStatement:
		return tm.executeGet(s, evalCtx)
	case *types.ScanStatement:
		return tm.executeScan(s, evalCtx)
	default:
		return nil, dberror.New(dberror.ErrStatementValidation, "unsupported statement %T", stmt).WithTableSpace(stmt.TableSpace())
	}
	if err != nil {
		return nil, err
	}

	if isDDL(stmt) && result.LSN != 0 {
		m.planCache.Clear()
	}
	if result.LSN != 0 {
		m.maybeTriggerCheckpoint(tm)
	}
	return result, nil
}

func isDDL(stmt types.Statement) bool {
	switch stmt.(type) {
	case *types.CreateTableStatement, *types.AlterTableStatement, *types.DropTableStatement,
		*types.CreateIndexStatement, *types.DropIndexStatement:
		return true
	}
	return false
}

// planRoot describes how the statement will be served, for diagnostics
func (m *DBManager) planRoot(stmt types.Statement) plan.PlannerOp {
	switch s := stmt.(type) {
	case *types.GetStatement:
		return &plan.PrimaryKeyOp{TableSpace: s.TableSpaceName, Table: s.Table}
	case *types.UpdateStatement:
		return &plan.PrimaryKeyOp{TableSpace: s.TableSpaceName, Table: s.Table}
	case *types.DeleteStatement:
		return &plan.PrimaryKeyOp{TableSpace: s.TableSpaceName, Table: s.Table}
	case *types.ScanStatement:
		var root plan.PlannerOp = &plan.TableScanOp{TableSpace: s.TableSpaceName, Table: s.Table, Predicate: s.WhereColumns()}
		if catalog, err := m.Catalog(s.TableSpaceName); err == nil {
			if idx := indexFor(catalog, s.Table, s.WhereColumns()); idx != nil {
				root = &plan.IndexLookupOp{TableSpace: s.TableSpaceName, Table: s.Table, Index: idx.Name()}
			}
		}
		if s.Limit > 0 {
			root = &plan.LimitOp{Input: root, Limit: s.Limit}
		}
		return root
	}
	return nil
}

// indexFor picks the first index, by name, whose columns are exactly the predicate columns
func indexFor(catalog *types.Catalog, table string, columns []string) *types.Index {
	if len(columns) == 0 {
		return nil
	}
	for _, idx := range catalog.IndexesOf(table) {
		if idx.CoversExactly(columns) {
			return idx
		}
	}
	return nil
}

func (tm *TableSpaceManager) table(name string) (*types.Table, error) {
	t, ok := tm.data.Catalog().Table(name)
	if !ok {
		return nil, dberror.New(dberror.ErrStatementValidation, "table %s does not exist", name).WithTableSpace(tm.Name())
	}
	return t, nil
}

// coerceColumn converts a statement value to the stored type of column
func (tm *TableSpaceManager) coerceColumn(t *types.Table, column string, v any) (types.Column, any, error) {
	c, ok := t.Column(column)
	if !ok {
		return types.Column{}, nil, dberror.New(dberror.ErrStatementValidation, "column %s does not exist in table %s", column, t.Name()).WithTableSpace(tm.Name())
	}
	if v == nil {
		return c, nil, nil
	}
	coerced, err := types.Coerce(v, c.Type)
	if err != nil {
		return c, nil, dberror.Wrap(dberror.ErrStatementValidation, err, "column %s", column).WithTableSpace(tm.Name())
	}
	return c, coerced, nil
}

// primaryKeyFrom resolves a WHERE made of one equality per primary key column
func (tm *TableSpaceManager) primaryKeyFrom(t *types.Table, where []types.Assignment, evalCtx *types.EvaluationContext) ([]byte, error) {
	names, values, err := types.ResolveAssignments(evalCtx, where)
	if err != nil {
		return nil, err
	}
	if len(names) != len(t.PrimaryKey()) {
		return nil, dberror.New(dberror.ErrStatementValidation, "WHERE must name exactly the primary key %v of %s", t.PrimaryKey(), t.Name()).WithTableSpace(tm.Name())
	}

	byName := make(map[string]any, len(names))
	for i, name := range names {
		byName[name] = values[i]
	}
	pkColumns := t.PrimaryKeyColumns()
	pk := make([]any, len(pkColumns))
	for i, c := range pkColumns {
		v, ok := byName[c.Name]
		if !ok || v == nil {
			return nil, dberror.New(dberror.ErrStatementValidation, "missing value for primary key column %s", c.Name).WithTableSpace(tm.Name())
		}
		if _, pk[i], err = tm.coerceColumn(t, c.Name, v); err != nil {
			return nil, err
		}
	}
	key, err := types.EncodeKey(pkColumns, pk)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrStatementValidation, err, "primary key").WithTableSpace(tm.Name())
	}
	return key, nil
}

// beginWrite takes the write lock once ctx is still live and the table space still serves
func (tm *TableSpaceManager) beginWrite(ctx context.Context) (func(), error) {
	tm.writeMu.Lock()
	if err := ctx.Err(); err != nil {
		tm.writeMu.Unlock()
		return nil, fmt.Errorf("statement cancelled before commit: %w", err)
	}
	if err := tm.available(); err != nil {
		tm.writeMu.Unlock()
		return nil, err
	}
	return tm.writeMu.Unlock, nil
}
