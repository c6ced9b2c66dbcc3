package types

import (
	"bytes"
	"maps"
	"slices"

	"PastureDB/codec"
	"PastureDB/dberror"
)

/*
This file contains the Catalog, the set of table and index definitions of one table space

A Catalog value is never modified: every With/Without call returns a new Catalog sharing
the untouched definitions, so readers can hold a snapshot while DDL replaces it.

Persisted layout:

	version | flags | tablespace | ntables | { table bytes } * ntables | nindexes | { index bytes } * nindexes
*/

const catalogFormatVersion = 1

type Catalog struct {
	tableSpace string
	tables     map[string]*Table
	indexes    map[string]*Index
}

func NewCatalog(tableSpace string) *Catalog {
	return &Catalog{
		tableSpace: tableSpace,
		tables:     map[string]*Table{},
		indexes:    map[string]*Index{},
	}
}

func (c *Catalog) TableSpace() string { return c.tableSpace }

func (c *Catalog) Empty() bool {
	return len(c.tables) == 0 && len(c.indexes) == 0
}

func (c *Catalog) Table(name string) (*Table, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables are returned sorted by name
func (c *Catalog) Tables() []*Table {
	out := make([]*Table, 0, len(c.tables))
	for _, name := range slices.Sorted(maps.Keys(c.tables)) {
		out = append(out, c.tables[name])
	}
	return out
}

func (c *Catalog) Index(name string) (*Index, bool) {
	idx, ok := c.indexes[name]
	return idx, ok
}

// Indexes are returned sorted by name
func (c *Catalog) Indexes() []*Index {
	out := make([]*Index, 0, len(c.indexes))
	for _, name := range slices.Sorted(maps.Keys(c.indexes)) {
		out = append(out, c.indexes[name])
	}
	return out
}

func (c *Catalog) IndexesOf(table string) []*Index {
	var out []*Index
	for _, idx := range c.Indexes() {
		if idx.Table() == table {
			out = append(out, idx)
		}
	}
	return out
}

func (c *Catalog) clone() *Catalog {
	return &Catalog{
		tableSpace: c.tableSpace,
		tables:     maps.Clone(c.tables),
		indexes:    maps.Clone(c.indexes),
	}
}

// WithTable adds or replaces a table definition
func (c *Catalog) WithTable(t *Table) *Catalog {
	next := c.clone()
	next.tables[t.Name()] = t
	return next
}

// WithoutTable removes a table and every index defined on it
func (c *Catalog) WithoutTable(name string) *Catalog {
	next := c.clone()
	delete(next.tables, name)
	for idxName, idx := range next.indexes {
		if idx.Table() == name {
			delete(next.indexes, idxName)
		}
	}
	return next
}

func (c *Catalog) WithIndex(idx *Index) *Catalog {
	next := c.clone()
	next.indexes[idx.Name()] = idx
	return next
}

func (c *Catalog) WithoutIndex(name string) *Catalog {
	next := c.clone()
	delete(next.indexes, name)
	return next
}

func (c *Catalog) ValidateNewTable(t *Table) error {
	if t.TableSpace() != c.tableSpace {
		return dberror.New(dberror.ErrTableDefinition, "table %s belongs to table space %s", t.Name(), t.TableSpace()).WithTableSpace(c.tableSpace)
	}
	if _, exists := c.tables[t.Name()]; exists {
		return dberror.New(dberror.ErrTableDefinition, "table %s already exists", t.Name()).WithTableSpace(c.tableSpace)
	}
	return nil
}

// ValidateNewIndex checks name uniqueness and that every column exists on the table with the same type
func (c *Catalog) ValidateNewIndex(idx *Index) error {
	if idx.TableSpace() != c.tableSpace {
		return dberror.New(dberror.ErrIndexDefinition, "index %s belongs to table space %s", idx.Name(), idx.TableSpace()).WithTableSpace(c.tableSpace)
	}
	if _, exists := c.indexes[idx.Name()]; exists {
		return dberror.New(dberror.ErrIndexDefinition, "index %s already exists", idx.Name()).WithTableSpace(c.tableSpace)
	}
	t, ok := c.tables[idx.Table()]
	if !ok {
		return dberror.New(dberror.ErrIndexDefinition, "table %s does not exist", idx.Table()).WithTableSpace(c.tableSpace)
	}
	for _, ic := range idx.Columns() {
		tc, ok := t.Column(ic.Name)
		if !ok {
			return dberror.New(dberror.ErrIndexDefinition, "column %s not found in table %s", ic.Name, t.Name()).WithTableSpace(c.tableSpace)
		}
		if tc.Type != ic.Type {
			return dberror.New(dberror.ErrIndexDefinition, "column %s is %s in table %s, not %s", ic.Name, tc.Type, t.Name(), ic.Type).WithTableSpace(c.tableSpace)
		}
	}
	return nil
}

// Equal compares the serialized forms, which are deterministic
func (c *Catalog) Equal(other *Catalog) bool {
	if other == nil {
		return false
	}
	a, errA := c.Serialize()
	b, errB := other.Serialize()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func (c *Catalog) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)

	fail := func(err error) ([]byte, error) {
		return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "serializing catalog").WithTableSpace(c.tableSpace)
	}

	if err := writeAll(
		func() error { return w.WriteVInt(catalogFormatVersion) },
		w.WriteFlags,
		func() error { return w.WriteUTF(c.tableSpace) },
		func() error { return w.WriteVInt(len(c.tables)) },
	); err != nil {
		return fail(err)
	}
	for _, t := range c.Tables() {
		data, err := t.Serialize()
		if err != nil {
			return nil, err
		}
		if err := w.WriteBytes(data); err != nil {
			return fail(err)
		}
	}
	if err := w.WriteVInt(len(c.indexes)); err != nil {
		return fail(err)
	}
	for _, idx := range c.Indexes() {
		data, err := idx.Serialize()
		if err != nil {
			return nil, err
		}
		if err := w.WriteBytes(data); err != nil {
			return fail(err)
		}
	}
	return buf.Bytes(), nil
}

func DeserializeCatalog(data []byte) (*Catalog, error) {
	r := codec.NewBytesReader(data)
	malformed := func(err error) (*Catalog, error) {
		return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "cannot read catalog")
	}

	version, err := r.ReadVInt()
	if err != nil {
		return malformed(err)
	}
	if version != catalogFormatVersion {
		return nil, dberror.New(dberror.ErrMalformedStream, "unsupported catalog format version %d", version)
	}
	if err := r.SkipFlags(); err != nil {
		return malformed(err)
	}
	tableSpace, err := r.ReadUTF()
	if err != nil {
		return malformed(err)
	}

	c := NewCatalog(tableSpace)
	ntables, err := r.ReadVInt()
	if err != nil {
		return malformed(err)
	}
	for range ntables {
		raw, err := r.ReadBytes()
		if err != nil {
			return malformed(err)
		}
		t, err := DeserializeTable(raw)
		if err != nil {
			return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "cannot read catalog").WithTableSpace(tableSpace)
		}
		c.tables[t.Name()] = t
	}
	nindexes, err := r.ReadVInt()
	if err != nil {
		return malformed(err)
	}
	for range nindexes {
		raw, err := r.ReadBytes()
		if err != nil {
			return malformed(err)
		}
		idx, err := DeserializeIndex(raw)
		if err != nil {
			return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "cannot read catalog").WithTableSpace(tableSpace)
		}
		c.indexes[idx.Name()] = idx
	}
	return c, nil
}
