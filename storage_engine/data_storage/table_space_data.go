package datastorage

import (
	"fmt"

	"PastureDB/dberror"
	"PastureDB/types"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/treeset"
)

/*
This file contains the in-memory state of a table space and the apply step of recovery.

Every log entry carries a target state (a full row image, a full definition, or a key to
remove), so applying an entry twice leaves the same state as applying it once. Entries at or
below lastApplied are skipped anyway, which keeps replay after a checkpoint cheap.

Index entries are derived from the row images while the table is being changed, under the
same write lock, so a reader never sees a row without its index entries.
*/

func NewTableSpaceData(name string, catalog *types.Catalog) *TableSpaceData {
	if catalog == nil {
		catalog = types.NewCatalog(name)
	}
	d := &TableSpaceData{
		name:    name,
		catalog: catalog,
		tables:  make(map[string]*treemap.Map),
		indexes: make(map[string]hashIndex),
	}
	for _, t := range catalog.Tables() {
		d.tables[t.Name()] = treemap.NewWithStringComparator()
	}
	for _, idx := range catalog.Indexes() {
		d.indexes[idx.Name()] = make(hashIndex)
	}
	return d
}

func (d *TableSpaceData) Name() string { return d.name }

func (d *TableSpaceData) Catalog() *types.Catalog {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.catalog
}

func (d *TableSpaceData) LastAppliedLSN() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastApplied
}

// Empty is true when the table space has no definitions and no applied entries
func (d *TableSpaceData) Empty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastApplied == 0 && d.catalog.Empty()
}

// SeedCatalog installs definitions known only to the metadata store.
// Only valid on an empty table space.
func (d *TableSpaceData) SeedCatalog(catalog *types.Catalog) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastApplied != 0 || !d.catalog.Empty() {
		return dberror.New(dberror.ErrTableDefinition, "cannot seed a catalog over existing data").WithTableSpace(d.name)
	}
	d.catalog = catalog
	for _, t := range catalog.Tables() {
		d.tables[t.Name()] = treemap.NewWithStringComparator()
	}
	for _, idx := range catalog.Indexes() {
		d.indexes[idx.Name()] = make(hashIndex)
	}
	return nil
}

// ApplyMutation applies one durable log entry
func (d *TableSpaceData) ApplyMutation(entry *types.LogEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry.LSN != 0 && entry.LSN <= d.lastApplied {
		return nil
	}

	var err error
	switch entry.Type {
	case types.OpCreateTable, types.OpAlterTable:
		err = d.putTable(entry)
	case types.OpDropTable:
		d.dropTable(entry.Table)
	case types.OpCreateIndex:
		err = d.createIndex(entry)
	case types.OpDropIndex:
		d.catalog = d.catalog.WithoutIndex(entry.Index)
		delete(d.indexes, entry.Index)
	case types.OpInsert, types.OpUpdate:
		err = d.putRow(entry)
	case types.OpDelete:
		err = d.deleteRow(entry)
	default:
		err = fmt.Errorf("unknown operation %s", entry.Type)
	}
	if err != nil {
		return dberror.Wrap(dberror.ErrMalformedStream, err, "applying %s on %s", entry.Type, entry.Table).
			WithTableSpace(d.name).
			WithRecord(fmt.Sprintf("lsn=%d", entry.LSN))
	}

	if entry.LSN > d.lastApplied {
		d.lastApplied = entry.LSN
	}
	return nil
}

func (d *TableSpaceData) putTable(entry *types.LogEntry) error {
	table, err := types.DeserializeTable(entry.Payload)
	if err != nil {
		return err
	}
	d.catalog = d.catalog.WithTable(table)
	if _, ok := d.tables[table.Name()]; !ok {
		d.tables[table.Name()] = treemap.NewWithStringComparator()
	}
	return nil
}

func (d *TableSpaceData) dropTable(name string) {
	for _, idx := range d.catalog.IndexesOf(name) {
		delete(d.indexes, idx.Name())
	}
	d.catalog = d.catalog.WithoutTable(name)
	delete(d.tables, name)
}

func (d *TableSpaceData) createIndex(entry *types.LogEntry) error {
	idx, err := types.DeserializeIndex(entry.Payload)
	if err != nil {
		return err
	}
	table, ok := d.catalog.Table(idx.Table())
	if !ok {
		return fmt.Errorf("index %s on unknown table %s", idx.Name(), idx.Table())
	}

	entries := make(hashIndex)
	rows := d.tables[table.Name()]
	it := rows.Iterator()
	for it.Next() {
		row, err := types.DecodeRow(table, it.Value().([]byte))
		if err != nil {
			return err
		}
		if err := entries.add(idx, row, it.Key().(string)); err != nil {
			return err
		}
	}

	d.catalog = d.catalog.WithIndex(idx)
	d.indexes[idx.Name()] = entries
	return nil
}

func (d *TableSpaceData) putRow(entry *types.LogEntry) error {
	table, rows, err := d.tableFor(entry.Table)
	if err != nil {
		return err
	}
	pk := string(entry.Key)

	if err := d.unindexRow(table, rows, pk); err != nil {
		return err
	}
	row, err := types.DecodeRow(table, entry.Value)
	if err != nil {
		return err
	}
	rows.Put(pk, entry.Value)
	for _, idx := range d.catalog.IndexesOf(table.Name()) {
		if err := d.indexes[idx.Name()].add(idx, row, pk); err != nil {
			return err
		}
	}
	return nil
}

func (d *TableSpaceData) deleteRow(entry *types.LogEntry) error {
	table, rows, err := d.tableFor(entry.Table)
	if err != nil {
		return err
	}
	pk := string(entry.Key)
	if err := d.unindexRow(table, rows, pk); err != nil {
		return err
	}
	rows.Remove(pk)
	return nil
}

// unindexRow removes the index entries of the row currently stored under pk
func (d *TableSpaceData) unindexRow(table *types.Table, rows *treemap.Map, pk string) error {
	old, found := rows.Get(pk)
	if !found {
		return nil
	}
	row, err := types.DecodeRow(table, old.([]byte))
	if err != nil {
		return err
	}
	for _, idx := range d.catalog.IndexesOf(table.Name()) {
		if err := d.indexes[idx.Name()].remove(idx, row, pk); err != nil {
			return err
		}
	}
	return nil
}

func (d *TableSpaceData) tableFor(name string) (*types.Table, *treemap.Map, error) {
	table, ok := d.catalog.Table(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown table %s", name)
	}
	return table, d.tables[name], nil
}

func (h hashIndex) add(idx *types.Index, row types.Row, pk string) error {
	key, err := types.KeyOf(idx.Columns(), row)
	if err != nil {
		return err
	}
	set, ok := h[string(key)]
	if !ok {
		set = treeset.NewWithStringComparator()
		h[string(key)] = set
	}
	set.Add(pk)
	return nil
}

func (h hashIndex) remove(idx *types.Index, row types.Row, pk string) error {
	key, err := types.KeyOf(idx.Columns(), row)
	if err != nil {
		return err
	}
	if set, ok := h[string(key)]; ok {
		set.Remove(pk)
		if set.Empty() {
			delete(h, string(key))
		}
	}
	return nil
}

// Get returns the row stored under the encoded primary key
func (d *TableSpaceData) Get(table string, key []byte) (types.Row, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, rows, err := d.tableFor(table)
	if err != nil {
		return types.Row{}, false, dberror.Wrap(dberror.ErrStatementValidation, err, "get").WithTableSpace(d.name)
	}
	raw, found := rows.Get(string(key))
	if !found {
		return types.Row{}, false, nil
	}
	row, err := types.DecodeRow(t, raw.([]byte))
	if err != nil {
		return types.Row{}, false, err
	}
	return row, true, nil
}

// Contains reports whether a row exists under the encoded primary key
func (d *TableSpaceData) Contains(table string, key []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, ok := d.tables[table]
	if !ok {
		return false
	}
	_, found := rows.Get(string(key))
	return found
}

// Scan calls fn for every row in primary key order until fn returns false
func (d *TableSpaceData) Scan(table string, fn func(key []byte, row types.Row) bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, rows, err := d.tableFor(table)
	if err != nil {
		return dberror.Wrap(dberror.ErrStatementValidation, err, "scan").WithTableSpace(d.name)
	}
	it := rows.Iterator()
	for it.Next() {
		row, err := types.DecodeRow(t, it.Value().([]byte))
		if err != nil {
			return err
		}
		if !fn([]byte(it.Key().(string)), row) {
			return nil
		}
	}
	return nil
}

// IndexLookup returns the rows whose indexed columns encode to key, in primary key order
func (d *TableSpaceData) IndexLookup(index string, key []byte) ([]types.Row, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, ok := d.catalog.Index(index)
	if !ok {
		return nil, dberror.New(dberror.ErrStatementValidation, "unknown index %s", index).WithTableSpace(d.name)
	}
	set, ok := d.indexes[index][string(key)]
	if !ok {
		return nil, nil
	}

	table, rows, err := d.tableFor(idx.Table())
	if err != nil {
		return nil, err
	}
	out := make([]types.Row, 0, set.Size())
	for _, pk := range set.Values() {
		raw, found := rows.Get(pk)
		if !found {
			return nil, fmt.Errorf("index %s points at missing row", index)
		}
		row, err := types.DecodeRow(table, raw.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (d *TableSpaceData) RowCount(table string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if rows, ok := d.tables[table]; ok {
		return rows.Size()
	}
	return 0
}

// Snapshot copies the state under the read lock.
// Row images are never modified in place, so the byte slices are shared.
func (d *TableSpaceData) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := &Snapshot{
		TableSpace: d.name,
		LSN:        d.lastApplied,
		Catalog:    d.catalog,
		Tables:     make(map[string][]KeyValue, len(d.tables)),
		Indexes:    make(map[string][]IndexEntry, len(d.indexes)),
	}
	for name, rows := range d.tables {
		kvs := make([]KeyValue, 0, rows.Size())
		it := rows.Iterator()
		for it.Next() {
			kvs = append(kvs, KeyValue{Key: []byte(it.Key().(string)), Value: it.Value().([]byte)})
		}
		snap.Tables[name] = kvs
	}
	for name, entries := range d.indexes {
		out := make([]IndexEntry, 0, len(entries))
		for key, set := range entries {
			pks := make([][]byte, 0, set.Size())
			for _, pk := range set.Values() {
				pks = append(pks, []byte(pk.(string)))
			}
			out = append(out, IndexEntry{Key: []byte(key), PrimaryKeys: pks})
		}
		snap.Indexes[name] = out
	}
	return snap
}

// restore builds a TableSpaceData from a decoded checkpoint
func restore(snap *Snapshot) (*TableSpaceData, error) {
	d := NewTableSpaceData(snap.TableSpace, snap.Catalog)
	d.lastApplied = snap.LSN

	for name, kvs := range snap.Tables {
		rows, ok := d.tables[name]
		if !ok {
			return nil, fmt.Errorf("checkpoint holds rows of unknown table %s", name)
		}
		for _, kv := range kvs {
			rows.Put(string(kv.Key), kv.Value)
		}
	}
	for name, entries := range snap.Indexes {
		h, ok := d.indexes[name]
		if !ok {
			return nil, fmt.Errorf("checkpoint holds entries of unknown index %s", name)
		}
		for _, e := range entries {
			set := treeset.NewWithStringComparator()
			for _, pk := range e.PrimaryKeys {
				set.Add(string(pk))
			}
			h[string(e.Key)] = set
		}
	}
	return d, nil
}
