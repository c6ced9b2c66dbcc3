package types

import (
	"bytes"
	"slices"
	"strings"

	"PastureDB/codec"
	"PastureDB/dberror"
)

/*
This file contains the Table catalog object

Columns keep their serial position for the whole life of the table: adding a column
takes maxSerialPosition and bumps it, dropping a column never frees its slot.
Stored rows are keyed by serial position, so neither operation rewrites data.

Persisted layout:

	tablespace | name | flags | maxSerialPosition | ncols | { column } * ncols | npk | { pk name } * npk
*/

type Table struct {
	name              string
	tableSpace        string
	columns           []Column
	columnByName      map[string]Column
	primaryKey        []string
	maxSerialPosition int
}

func newTable(name, tableSpace string, columns []Column, primaryKey []string, maxSerialPosition int) *Table {
	t := &Table{
		name:              name,
		tableSpace:        tableSpace,
		columns:           slices.Clone(columns),
		columnByName:      make(map[string]Column, len(columns)),
		primaryKey:        slices.Clone(primaryKey),
		maxSerialPosition: maxSerialPosition,
	}
	for _, c := range columns {
		t.columnByName[c.Name] = c
	}
	return t
}

func (t *Table) Name() string           { return t.name }
func (t *Table) TableSpace() string     { return t.tableSpace }
func (t *Table) MaxSerialPosition() int { return t.maxSerialPosition }

func (t *Table) Columns() []Column {
	return slices.Clone(t.columns)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.columnByName[name]
	return c, ok
}

func (t *Table) PrimaryKey() []string {
	return slices.Clone(t.primaryKey)
}

func (t *Table) PrimaryKeyColumns() []Column {
	cols := make([]Column, len(t.primaryKey))
	for i, n := range t.primaryKey {
		cols[i] = t.columnByName[n]
	}
	return cols
}

func (t *Table) IsPrimaryKeyColumn(name string) bool {
	return slices.Contains(t.primaryKey, name)
}

// columnBySerialPosition is used when decoding rows
func (t *Table) columnBySerialPosition(pos int) (Column, bool) {
	for _, c := range t.columns {
		if c.SerialPosition == pos {
			return c, true
		}
	}
	return Column{}, false
}

// WithColumnAdded returns a copy of the table with one more column at the next free serial position
func (t *Table) WithColumnAdded(name string, typ ColumnType) (*Table, error) {
	if name == "" {
		return nil, dberror.New(dberror.ErrTableDefinition, "empty column name").WithTableSpace(t.tableSpace)
	}
	if _, exists := t.columnByName[name]; exists {
		return nil, dberror.New(dberror.ErrDuplicateColumn, "column %s already exists in table %s", name, t.name).WithTableSpace(t.tableSpace)
	}
	if !typ.Valid() {
		return nil, dberror.New(dberror.ErrTableDefinition, "column %s has invalid type %s", name, typ).WithTableSpace(t.tableSpace)
	}
	columns := append(slices.Clone(t.columns), Column{Name: name, Type: typ, SerialPosition: t.maxSerialPosition})
	return newTable(t.name, t.tableSpace, columns, t.primaryKey, t.maxSerialPosition+1), nil
}

// WithColumnDropped returns a copy of the table without the column, primary key columns cannot be dropped
func (t *Table) WithColumnDropped(name string) (*Table, error) {
	if _, exists := t.columnByName[name]; !exists {
		return nil, dberror.New(dberror.ErrTableDefinition, "column %s not found in table %s", name, t.name).WithTableSpace(t.tableSpace)
	}
	if t.IsPrimaryKeyColumn(name) {
		return nil, dberror.New(dberror.ErrTableDefinition, "cannot drop primary key column %s", name).WithTableSpace(t.tableSpace)
	}
	if len(t.columns) == 1 {
		return nil, dberror.New(dberror.ErrTableDefinition, "cannot drop the last column of %s", t.name).WithTableSpace(t.tableSpace)
	}
	columns := slices.DeleteFunc(slices.Clone(t.columns), func(c Column) bool { return c.Name == name })
	return newTable(t.name, t.tableSpace, columns, t.primaryKey, t.maxSerialPosition), nil
}

func (t *Table) Equal(other *Table) bool {
	if other == nil {
		return false
	}
	return t.name == other.name &&
		t.tableSpace == other.tableSpace &&
		t.maxSerialPosition == other.maxSerialPosition &&
		slices.Equal(t.columns, other.columns) &&
		slices.Equal(t.primaryKey, other.primaryKey)
}

func (t *Table) String() string {
	return "Table{" + t.tableSpace + "." + t.name + "(" + strings.Join(t.ColumnNames(), ",") +
		") pk(" + strings.Join(t.primaryKey, ",") + ")}"
}

func (t *Table) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)

	err := writeAll(
		func() error { return w.WriteUTF(t.tableSpace) },
		func() error { return w.WriteUTF(t.name) },
		w.WriteFlags,
		func() error { return w.WriteVInt(t.maxSerialPosition) },
		func() error { return w.WriteVInt(len(t.columns)) },
	)
	for _, c := range t.columns {
		if err != nil {
			break
		}
		err = writeColumn(w, c)
	}
	if err == nil {
		err = w.WriteVInt(len(t.primaryKey))
	}
	for _, pk := range t.primaryKey {
		if err != nil {
			break
		}
		err = w.WriteUTF(pk)
	}
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "serializing table %s", t.name).WithTableSpace(t.tableSpace)
	}
	return buf.Bytes(), nil
}

func DeserializeTable(data []byte) (*Table, error) {
	t, err := readTable(codec.NewBytesReader(data))
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "cannot read table definition")
	}
	return t, nil
}

func readTable(r *codec.Reader) (*Table, error) {
	tableSpace, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	if err := r.SkipFlags(); err != nil {
		return nil, err
	}
	maxSerialPosition, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	columns := make([]Column, 0, n)
	for range n {
		c, err := readColumn(r)
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	npk, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}
	pk := make([]string, 0, npk)
	for range npk {
		s, err := r.ReadUTF()
		if err != nil {
			return nil, err
		}
		pk = append(pk, s)
	}

	if err := validateTable(name, columns, pk, maxSerialPosition); err != nil {
		return nil, err
	}
	return newTable(name, tableSpace, columns, pk, maxSerialPosition), nil
}

func validateTable(name string, columns []Column, primaryKey []string, maxSerialPosition int) *dberror.DBError {
	if name == "" {
		return dberror.New(dberror.ErrTableDefinition, "table name not defined")
	}
	if len(columns) == 0 {
		return dberror.New(dberror.ErrTableDefinition, "table %s has no columns", name)
	}
	if len(primaryKey) == 0 {
		return dberror.New(dberror.ErrTableDefinition, "table %s has no primary key", name)
	}
	byName := make(map[string]struct{}, len(columns))
	positions := make(map[int]struct{}, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			return dberror.New(dberror.ErrTableDefinition, "table %s has a column without name", name)
		}
		if _, dup := byName[c.Name]; dup {
			return dberror.New(dberror.ErrDuplicateColumn, "column %s already exists in table %s", c.Name, name)
		}
		if _, dup := positions[c.SerialPosition]; dup || c.SerialPosition >= maxSerialPosition {
			return dberror.New(dberror.ErrTableDefinition, "column %s has invalid serial position %d", c.Name, c.SerialPosition)
		}
		if !c.Type.Valid() {
			return dberror.New(dberror.ErrTableDefinition, "column %s has invalid type %s", c.Name, c.Type)
		}
		byName[c.Name] = struct{}{}
		positions[c.SerialPosition] = struct{}{}
	}
	seenPk := make(map[string]struct{}, len(primaryKey))
	for _, pk := range primaryKey {
		if _, ok := byName[pk]; !ok {
			return dberror.New(dberror.ErrTableDefinition, "primary key column %s not found in table %s", pk, name)
		}
		if _, dup := seenPk[pk]; dup {
			return dberror.New(dberror.ErrDuplicateColumn, "primary key column %s listed twice", pk)
		}
		seenPk[pk] = struct{}{}
	}
	return nil
}

// TableBuilder accumulates a table definition, serial positions follow declaration order
type TableBuilder struct {
	name       string
	tableSpace string
	columns    []Column
	primaryKey []string
}

func NewTableBuilder() *TableBuilder {
	return &TableBuilder{tableSpace: DefaultTableSpace}
}

func (b *TableBuilder) Name(name string) *TableBuilder {
	b.name = name
	return b
}

func (b *TableBuilder) TableSpace(tableSpace string) *TableBuilder {
	b.tableSpace = tableSpace
	return b
}

func (b *TableBuilder) Column(name string, t ColumnType) *TableBuilder {
	b.columns = append(b.columns, Column{Name: name, Type: t, SerialPosition: len(b.columns)})
	return b
}

func (b *TableBuilder) PrimaryKey(names ...string) *TableBuilder {
	b.primaryKey = append(b.primaryKey, names...)
	return b
}

func (b *TableBuilder) Build() (*Table, error) {
	if b.tableSpace == "" {
		b.tableSpace = DefaultTableSpace
	}
	if err := validateTable(b.name, b.columns, b.primaryKey, len(b.columns)); err != nil {
		return nil, err.WithTableSpace(b.tableSpace)
	}
	return newTable(b.name, b.tableSpace, b.columns, b.primaryKey, len(b.columns)), nil
}
