package types

import (
	"bytes"
	"slices"
	"strings"

	"PastureDB/codec"
	"PastureDB/dberror"
)

/*
This file contains the Index catalog object

An Index is built once through IndexBuilder and never mutated afterwards.
Persisted layout (every field written with the codec):

	tablespace | name | table | flags | type | ncols | { name | type | serialPosition | flags } * ncols
*/

// IndexType is an open tag, new kinds can be registered without a format change
type IndexType string

const IndexTypeHash IndexType = "hash"

var supportedIndexTypes = map[IndexType]struct{}{
	IndexTypeHash: {},
}

func (t IndexType) Supported() bool {
	_, ok := supportedIndexTypes[t]
	return ok
}

type Index struct {
	name       string
	table      string
	tableSpace string
	indexType  IndexType

	columns      []Column
	columnNames  []string
	columnByName map[string]Column
}

func newIndex(name, table, tableSpace string, indexType IndexType, columns []Column) *Index {
	idx := &Index{
		name:         name,
		table:        table,
		tableSpace:   tableSpace,
		indexType:    indexType,
		columns:      slices.Clone(columns),
		columnNames:  make([]string, len(columns)),
		columnByName: make(map[string]Column, len(columns)),
	}
	for i, c := range columns {
		idx.columnNames[i] = c.Name
		idx.columnByName[c.Name] = c
	}
	return idx
}

func (idx *Index) Name() string       { return idx.name }
func (idx *Index) Table() string      { return idx.table }
func (idx *Index) TableSpace() string { return idx.tableSpace }
func (idx *Index) Type() IndexType    { return idx.indexType }

func (idx *Index) Columns() []Column {
	return slices.Clone(idx.columns)
}

func (idx *Index) ColumnNames() []string {
	return slices.Clone(idx.columnNames)
}

func (idx *Index) Column(name string) (Column, bool) {
	c, ok := idx.columnByName[name]
	return c, ok
}

// CoversExactly reports whether names is the index column set, in any order
func (idx *Index) CoversExactly(names []string) bool {
	if len(names) != len(idx.columns) {
		return false
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := idx.columnByName[n]; !ok {
			return false
		}
		seen[n] = struct{}{}
	}
	return len(seen) == len(idx.columns)
}

func (idx *Index) Equal(other *Index) bool {
	if other == nil {
		return false
	}
	return idx.name == other.name &&
		idx.table == other.table &&
		idx.tableSpace == other.tableSpace &&
		idx.indexType == other.indexType &&
		slices.Equal(idx.columns, other.columns)
}

func (idx *Index) String() string {
	return "Index{" + idx.tableSpace + "." + idx.name + " on " + idx.table +
		"(" + strings.Join(idx.columnNames, ",") + ") " + string(idx.indexType) + "}"
}

func (idx *Index) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)

	if err := writeAll(
		func() error { return w.WriteUTF(idx.tableSpace) },
		func() error { return w.WriteUTF(idx.name) },
		func() error { return w.WriteUTF(idx.table) },
		w.WriteFlags,
		func() error { return w.WriteUTF(string(idx.indexType)) },
		func() error { return w.WriteVInt(len(idx.columns)) },
	); err != nil {
		return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "serializing index %s", idx.name).WithTableSpace(idx.tableSpace)
	}

	for _, c := range idx.columns {
		if err := writeColumn(w, c); err != nil {
			return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "serializing index %s", idx.name).WithTableSpace(idx.tableSpace)
		}
	}
	return buf.Bytes(), nil
}

// DeserializeIndex rebuilds an index, any failure is an invalid definition
func DeserializeIndex(data []byte) (*Index, error) {
	idx, err := readIndex(codec.NewBytesReader(data))
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrInvalidIndexDefinition, err, "cannot read index definition")
	}
	return idx, nil
}

func readIndex(r *codec.Reader) (*Index, error) {
	tableSpace, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	table, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	if err := r.SkipFlags(); err != nil {
		return nil, err
	}
	typ, err := r.ReadUTF()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadVInt()
	if err != nil {
		return nil, err
	}

	b := NewIndexBuilder().TableSpace(tableSpace).Name(name).Table(table).Type(IndexType(typ))
	for range n {
		c, err := readColumn(r)
		if err != nil {
			return nil, err
		}
		b.column(c)
	}
	return b.Build()
}

// IndexBuilder accumulates an index definition.
// The first invalid call is remembered and returned by Build.
type IndexBuilder struct {
	name       string
	table      string
	tableSpace string
	indexType  IndexType
	columns    []Column
	seen       map[string]struct{}
	err        error
}

func NewIndexBuilder() *IndexBuilder {
	return &IndexBuilder{
		tableSpace: DefaultTableSpace,
		indexType:  IndexTypeHash,
		seen:       make(map[string]struct{}),
	}
}

func (b *IndexBuilder) Name(name string) *IndexBuilder {
	b.name = name
	return b
}

func (b *IndexBuilder) Table(table string) *IndexBuilder {
	b.table = table
	return b
}

func (b *IndexBuilder) TableSpace(tableSpace string) *IndexBuilder {
	b.tableSpace = tableSpace
	return b
}

func (b *IndexBuilder) Type(t IndexType) *IndexBuilder {
	b.indexType = t
	return b
}

// Column appends a column, its serial position is its slot inside the index
func (b *IndexBuilder) Column(name string, t ColumnType) *IndexBuilder {
	return b.column(Column{Name: name, Type: t, SerialPosition: len(b.columns)})
}

// TableColumn appends a column of a table, keeping the table serial position
func (b *IndexBuilder) TableColumn(c Column) *IndexBuilder {
	return b.column(c)
}

func (b *IndexBuilder) column(c Column) *IndexBuilder {
	if b.err != nil {
		return b
	}
	if c.Name == "" {
		b.err = dberror.New(dberror.ErrDuplicateColumn, "empty column name")
		return b
	}
	if _, dup := b.seen[c.Name]; dup {
		b.err = dberror.New(dberror.ErrDuplicateColumn, "column %s already added", c.Name)
		return b
	}
	b.seen[c.Name] = struct{}{}
	b.columns = append(b.columns, c)
	return b
}

// Err reports the first error recorded by the builder
func (b *IndexBuilder) Err() error {
	return b.err
}

func (b *IndexBuilder) Build() (*Index, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.table == "" {
		return nil, dberror.New(dberror.ErrIndexDefinition, "table not defined")
	}
	if !b.indexType.Supported() {
		return nil, dberror.New(dberror.ErrIndexDefinition, "unsupported index type %q", b.indexType)
	}
	if len(b.columns) == 0 {
		return nil, dberror.New(dberror.ErrIndexDefinition, "specify at least one column to index")
	}
	for _, c := range b.columns {
		if !c.Type.Valid() {
			return nil, dberror.New(dberror.ErrIndexDefinition, "column %s has invalid type %s", c.Name, c.Type)
		}
	}
	if b.tableSpace == "" {
		b.tableSpace = DefaultTableSpace
	}

	name := b.name
	if name == "" {
		name = DefaultIndexName(b.table, b.columns)
	}
	return newIndex(name, b.table, b.tableSpace, b.indexType, b.columns), nil
}

// DefaultIndexName is table_col1_col2..., column names lower-cased
func DefaultIndexName(table string, columns []Column) string {
	var sb strings.Builder
	sb.WriteString(table)
	for _, c := range columns {
		sb.WriteByte('_')
		sb.WriteString(strings.ToLower(c.Name))
	}
	return sb.String()
}

func writeColumn(w *codec.Writer, c Column) error {
	return writeAll(
		func() error { return w.WriteUTF(c.Name) },
		func() error { return w.WriteVInt(int(c.Type)) },
		func() error { return w.WriteVInt(c.SerialPosition) },
		w.WriteFlags,
	)
}

func readColumn(r *codec.Reader) (Column, error) {
	name, err := r.ReadUTF()
	if err != nil {
		return Column{}, err
	}
	typ, err := r.ReadVInt()
	if err != nil {
		return Column{}, err
	}
	pos, err := r.ReadVInt()
	if err != nil {
		return Column{}, err
	}
	if err := r.SkipFlags(); err != nil {
		return Column{}, err
	}
	return Column{Name: name, Type: ColumnType(typ), SerialPosition: pos}, nil
}

func writeAll(steps ...func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
