package plan

import (
	"fmt"
	"sync/atomic"

	"PastureDB/types"
)

/*
This file contains the ExecutionPlan, the immutable unit stored in the plan cache

A plan owns its statement. The optional root is the operator tree chosen when the plan was
prepared, it is kept for diagnostics only and never consulted during execution.
*/

// PlannerOp is a node of a prepared operator tree
type PlannerOp interface {
	fmt.Stringer
}

type ExecutionPlan struct {
	id            uint64
	mainStatement types.Statement
	originalRoot  PlannerOp
}

func Simple(id uint64, stmt types.Statement) *ExecutionPlan {
	return &ExecutionPlan{id: id, mainStatement: stmt}
}

func SimpleWithRoot(id uint64, stmt types.Statement, root PlannerOp) *ExecutionPlan {
	return &ExecutionPlan{id: id, mainStatement: stmt, originalRoot: root}
}

func (p *ExecutionPlan) ID() uint64                     { return p.id }
func (p *ExecutionPlan) MainStatement() types.Statement { return p.mainStatement }
func (p *ExecutionPlan) OriginalRoot() PlannerOp        { return p.originalRoot }

func (p *ExecutionPlan) ValidateContext(ctx *types.EvaluationContext) error {
	return p.mainStatement.ValidateContext(ctx)
}

// EstimateObjectSizeForCache ignores the operator tree, its lifetime is not tied to the plan
func (p *ExecutionPlan) EstimateObjectSizeForCache() int64 {
	return p.mainStatement.EstimateObjectSizeForCache()
}

func (p *ExecutionPlan) String() string {
	return fmt.Sprintf("Plan%d", p.id)
}

// IDGenerator hands out plan identifiers, unique and increasing for its lifetime
type IDGenerator interface {
	Next() uint64
}

type Counter struct {
	last atomic.Uint64
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) Next() uint64 {
	return c.last.Add(1)
}
