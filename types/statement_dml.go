package types

import (
	"strings"

	"PastureDB/dberror"
)

type InsertStatement struct {
	TableSpaceName string
	Table          string
	Columns        []string
	Values         []Expr
}

func (s *InsertStatement) TableSpace() string { return s.TableSpaceName }

func (s *InsertStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO " + s.TableSpaceName + "." + s.Table + "(" + strings.Join(s.Columns, ",") + ") VALUES(")
	for i, v := range s.Values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(v.Fingerprint())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (s *InsertStatement) ValidateContext(ctx *EvaluationContext) error {
	if len(s.Columns) != len(s.Values) {
		return dberror.New(dberror.ErrStatementValidation, "%d columns but %d values", len(s.Columns), len(s.Values)).WithTableSpace(s.TableSpaceName)
	}
	return validateExprs(ctx, s.Values...)
}

func (s *InsertStatement) EstimateObjectSizeForCache() int64 {
	size := int64(statementBaseSize + len(s.Table))
	for i, v := range s.Values {
		size += v.estimateSize()
		if i < len(s.Columns) {
			size += 16 + int64(len(s.Columns[i]))
		}
	}
	return size
}

// UpdateStatement rewrites the SET columns of the row matching the primary key
type UpdateStatement struct {
	TableSpaceName string
	Table          string
	Set            []Assignment
	Where          []Assignment
}

func (s *UpdateStatement) TableSpace() string { return s.TableSpaceName }

func (s *UpdateStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("UPDATE " + s.TableSpaceName + "." + s.Table + " SET ")
	fingerprintAssignments(&sb, ",", s.Set)
	sb.WriteString(" WHERE ")
	fingerprintAssignments(&sb, " AND ", s.Where)
	return sb.String()
}

func (s *UpdateStatement) ValidateContext(ctx *EvaluationContext) error {
	if len(s.Set) == 0 {
		return dberror.New(dberror.ErrStatementValidation, "update without SET columns").WithTableSpace(s.TableSpaceName)
	}
	if err := validateExprs(ctx, assignmentExprs(s.Set)...); err != nil {
		return err
	}
	return validateExprs(ctx, assignmentExprs(s.Where)...)
}

func (s *UpdateStatement) EstimateObjectSizeForCache() int64 {
	return int64(statementBaseSize+len(s.Table)) + estimateAssignments(s.Set) + estimateAssignments(s.Where)
}

// DeleteStatement removes the row matching the primary key
type DeleteStatement struct {
	TableSpaceName string
	Table          string
	Where          []Assignment
}

func (s *DeleteStatement) TableSpace() string { return s.TableSpaceName }

func (s *DeleteStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("DELETE FROM " + s.TableSpaceName + "." + s.Table + " WHERE ")
	fingerprintAssignments(&sb, " AND ", s.Where)
	return sb.String()
}

func (s *DeleteStatement) ValidateContext(ctx *EvaluationContext) error {
	return validateExprs(ctx, assignmentExprs(s.Where)...)
}

func (s *DeleteStatement) EstimateObjectSizeForCache() int64 {
	return int64(statementBaseSize+len(s.Table)) + estimateAssignments(s.Where)
}

// GetStatement reads the row matching the primary key
type GetStatement struct {
	TableSpaceName string
	Table          string
	Where          []Assignment
}

func (s *GetStatement) TableSpace() string { return s.TableSpaceName }

func (s *GetStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("GET " + s.TableSpaceName + "." + s.Table + " WHERE ")
	fingerprintAssignments(&sb, " AND ", s.Where)
	return sb.String()
}

func (s *GetStatement) ValidateContext(ctx *EvaluationContext) error {
	return validateExprs(ctx, assignmentExprs(s.Where)...)
}

func (s *GetStatement) EstimateObjectSizeForCache() int64 {
	return int64(statementBaseSize+len(s.Table)) + estimateAssignments(s.Where)
}

// ScanStatement returns the rows matching every equality in Where, all rows when Where is empty.
// Limit <= 0 means no limit.
type ScanStatement struct {
	TableSpaceName string
	Table          string
	Where          []Assignment
	Limit          int
}

func (s *ScanStatement) TableSpace() string { return s.TableSpaceName }

func (s *ScanStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + s.TableSpaceName + "." + s.Table)
	if len(s.Where) > 0 {
		sb.WriteString(" WHERE ")
		fingerprintAssignments(&sb, " AND ", s.Where)
	}
	sb.WriteString(limitClause(s.Limit))
	return sb.String()
}

func (s *ScanStatement) ValidateContext(ctx *EvaluationContext) error {
	return validateExprs(ctx, assignmentExprs(s.Where)...)
}

func (s *ScanStatement) EstimateObjectSizeForCache() int64 {
	return int64(statementBaseSize+len(s.Table)) + estimateAssignments(s.Where)
}

// WhereColumns lists the predicate columns in declaration order
func (s *ScanStatement) WhereColumns() []string {
	names := make([]string, len(s.Where))
	for i, a := range s.Where {
		names[i] = a.Column
	}
	return names
}
