package plan

import (
	"fmt"
	"strings"
)

// TableScanOp reads every row of a table and filters it
type TableScanOp struct {
	TableSpace string
	Table      string
	Predicate  []string
}

func (op *TableScanOp) String() string {
	if len(op.Predicate) == 0 {
		return fmt.Sprintf("TableScan(%s.%s)", op.TableSpace, op.Table)
	}
	return fmt.Sprintf("TableScan(%s.%s filter=%s)", op.TableSpace, op.Table, strings.Join(op.Predicate, ","))
}

// IndexLookupOp resolves an equality predicate through a hash index
type IndexLookupOp struct {
	TableSpace string
	Table      string
	Index      string
}

func (op *IndexLookupOp) String() string {
	return fmt.Sprintf("IndexLookup(%s.%s via %s)", op.TableSpace, op.Table, op.Index)
}

// PrimaryKeyOp addresses a single row by primary key
type PrimaryKeyOp struct {
	TableSpace string
	Table      string
}

func (op *PrimaryKeyOp) String() string {
	return fmt.Sprintf("PrimaryKey(%s.%s)", op.TableSpace, op.Table)
}

// LimitOp caps the rows produced by its input
type LimitOp struct {
	Input PlannerOp
	Limit int
}

func (op *LimitOp) String() string {
	return fmt.Sprintf("Limit(%d, %s)", op.Limit, op.Input)
}
