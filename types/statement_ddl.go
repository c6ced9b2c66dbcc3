package types

import (
	"strconv"
	"strings"
)

type CreateTableStatement struct {
	Table       *Table
	IfNotExists bool
}

func (s *CreateTableStatement) TableSpace() string { return s.Table.TableSpace() }

func (s *CreateTableStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.Table.TableSpace() + "." + s.Table.Name() + "(")
	for i, c := range s.Table.Columns() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.Name + " " + c.Type.String())
	}
	sb.WriteString(") PK(" + strings.Join(s.Table.PrimaryKey(), ",") + ")")
	return sb.String()
}

func (s *CreateTableStatement) ValidateContext(*EvaluationContext) error { return nil }

func (s *CreateTableStatement) EstimateObjectSizeForCache() int64 {
	size := int64(statementBaseSize + len(s.Table.Name()))
	for _, c := range s.Table.Columns() {
		size += 32 + int64(len(c.Name))
	}
	return size
}

// AlterTableStatement adds and then drops columns in a single catalog change
type AlterTableStatement struct {
	TableSpaceName string
	Table          string
	AddColumns     []Column
	DropColumns    []string
}

func (s *AlterTableStatement) TableSpace() string { return s.TableSpaceName }

func (s *AlterTableStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("ALTER TABLE " + s.TableSpaceName + "." + s.Table)
	for _, c := range s.AddColumns {
		sb.WriteString(" ADD " + c.Name + " " + c.Type.String())
	}
	for _, name := range s.DropColumns {
		sb.WriteString(" DROP " + name)
	}
	return sb.String()
}

func (s *AlterTableStatement) ValidateContext(*EvaluationContext) error { return nil }

func (s *AlterTableStatement) EstimateObjectSizeForCache() int64 {
	size := int64(statementBaseSize + len(s.Table))
	for _, c := range s.AddColumns {
		size += 32 + int64(len(c.Name))
	}
	for _, name := range s.DropColumns {
		size += 16 + int64(len(name))
	}
	return size
}

type DropTableStatement struct {
	TableSpaceName string
	Table          string
	IfExists       bool
}

func (s *DropTableStatement) TableSpace() string { return s.TableSpaceName }

func (s *DropTableStatement) Fingerprint() string {
	return "DROP TABLE " + ifExists(s.IfExists) + s.TableSpaceName + "." + s.Table
}

func (s *DropTableStatement) ValidateContext(*EvaluationContext) error { return nil }

func (s *DropTableStatement) EstimateObjectSizeForCache() int64 {
	return int64(statementBaseSize + len(s.Table))
}

type CreateIndexStatement struct {
	Index *Index
}

func (s *CreateIndexStatement) TableSpace() string { return s.Index.TableSpace() }

func (s *CreateIndexStatement) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString("CREATE " + strings.ToUpper(string(s.Index.Type())) + " INDEX ")
	sb.WriteString(s.Index.TableSpace() + "." + s.Index.Name() + " ON " + s.Index.Table() + "(")
	for i, c := range s.Index.Columns() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.Name + " " + c.Type.String())
	}
	sb.WriteString(")")
	return sb.String()
}

func (s *CreateIndexStatement) ValidateContext(*EvaluationContext) error { return nil }

func (s *CreateIndexStatement) EstimateObjectSizeForCache() int64 {
	size := int64(statementBaseSize + len(s.Index.Name()) + len(s.Index.Table()))
	for _, name := range s.Index.ColumnNames() {
		size += 32 + int64(len(name))
	}
	return size
}

type DropIndexStatement struct {
	TableSpaceName string
	Name           string
	IfExists       bool
}

func (s *DropIndexStatement) TableSpace() string { return s.TableSpaceName }

func (s *DropIndexStatement) Fingerprint() string {
	return "DROP INDEX " + ifExists(s.IfExists) + s.TableSpaceName + "." + s.Name
}

func (s *DropIndexStatement) ValidateContext(*EvaluationContext) error { return nil }

func (s *DropIndexStatement) EstimateObjectSizeForCache() int64 {
	return int64(statementBaseSize + len(s.Name))
}

func ifExists(b bool) string {
	if b {
		return "IF EXISTS "
	}
	return ""
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(limit)
}
