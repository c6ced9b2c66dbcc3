package types

import (
	"fmt"
	"strings"
	"time"

	"PastureDB/dberror"
)

/*
Statements are the structured, already parsed form of a request.

A statement is immutable once built. Its Fingerprint is a deterministic rendering of its
structure (literals included, parameters rendered as ?N) and is the plan cache key.
Parameter values are not part of the statement: they arrive with each execution in an
EvaluationContext.
*/

type Statement interface {
	TableSpace() string
	Fingerprint() string
	ValidateContext(ctx *EvaluationContext) error
	EstimateObjectSizeForCache() int64
}

// EvaluationContext carries the per-execution parameter values
type EvaluationContext struct {
	Parameters []any
}

func NewEvaluationContext(params ...any) *EvaluationContext {
	return &EvaluationContext{Parameters: params}
}

func (ctx *EvaluationContext) parameter(i int) (any, bool) {
	if ctx == nil || i < 0 || i >= len(ctx.Parameters) {
		return nil, false
	}
	return ctx.Parameters[i], true
}

// Expr is a statement operand, either a literal or a positional parameter
type Expr interface {
	Resolve(ctx *EvaluationContext) (any, error)
	Fingerprint() string
	estimateSize() int64
}

type Literal struct {
	Value any
}

func Lit(v any) Literal { return Literal{Value: v} }

func (l Literal) Resolve(*EvaluationContext) (any, error) { return l.Value, nil }
func (l Literal) Fingerprint() string                     { return FormatValue(l.Value) }

func (l Literal) estimateSize() int64 {
	switch x := l.Value.(type) {
	case string:
		return 32 + int64(len(x))
	case []byte:
		return 32 + int64(len(x))
	case time.Time:
		return 40
	}
	return 24
}

// Param is a zero-based positional parameter
type Param int

func (p Param) Resolve(ctx *EvaluationContext) (any, error) {
	v, ok := ctx.parameter(int(p))
	if !ok {
		return nil, dberror.New(dberror.ErrStatementValidation, "missing value for parameter ?%d", int(p))
	}
	return v, nil
}

func (p Param) Fingerprint() string { return fmt.Sprintf("?%d", int(p)) }
func (p Param) estimateSize() int64 { return 16 }

// Assignment binds a column to an operand, used for SET lists and equality predicates
type Assignment struct {
	Column string
	Value  Expr
}

func Eq(column string, value Expr) Assignment {
	return Assignment{Column: column, Value: value}
}

func validateExprs(ctx *EvaluationContext, exprs ...Expr) error {
	for _, e := range exprs {
		if p, ok := e.(Param); ok {
			if _, err := p.Resolve(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func assignmentExprs(assignments []Assignment) []Expr {
	out := make([]Expr, len(assignments))
	for i, a := range assignments {
		out[i] = a.Value
	}
	return out
}

func fingerprintAssignments(sb *strings.Builder, sep string, assignments []Assignment) {
	for i, a := range assignments {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(a.Column)
		sb.WriteByte('=')
		sb.WriteString(a.Value.Fingerprint())
	}
}

func estimateAssignments(assignments []Assignment) int64 {
	var size int64
	for _, a := range assignments {
		size += 16 + int64(len(a.Column)) + a.Value.estimateSize()
	}
	return size
}

// ResolveAssignments evaluates every operand, keeping the declaration order
func ResolveAssignments(ctx *EvaluationContext, assignments []Assignment) ([]string, []any, error) {
	names := make([]string, len(assignments))
	values := make([]any, len(assignments))
	for i, a := range assignments {
		v, err := a.Value.Resolve(ctx)
		if err != nil {
			return nil, nil, err
		}
		names[i] = a.Column
		values[i] = v
	}
	return names, values, nil
}

const statementBaseSize = 64
