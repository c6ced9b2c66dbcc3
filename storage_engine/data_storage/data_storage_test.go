package datastorage

import (
	"os"
	"path/filepath"
	"testing"

	"PastureDB/dberror"
	checkpoint "PastureDB/storage_engine/checkpoint_manager"
	"PastureDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ts = types.DefaultTableSpace

type entryLog struct {
	t       *testing.T
	table   *types.Table
	index   *types.Index
	entries []*types.LogEntry
	nextLSN uint64
}

func newEntryLog(t *testing.T) *entryLog {
	t.Helper()
	table, err := types.NewTableBuilder().
		Name("t").
		Column("id", types.ColumnTypeInteger).
		Column("name", types.ColumnTypeString).
		PrimaryKey("id").
		Build()
	require.NoError(t, err)
	idx, err := types.NewIndexBuilder().Table("t").Column("name", types.ColumnTypeString).Build()
	require.NoError(t, err)
	return &entryLog{t: t, table: table, index: idx, nextLSN: 1}
}

func (l *entryLog) add(e *types.LogEntry) *types.LogEntry {
	e.TableSpace = ts
	e.LSN = l.nextLSN
	l.nextLSN++
	l.entries = append(l.entries, e)
	return e
}

func (l *entryLog) createTable() *types.LogEntry {
	payload, err := l.table.Serialize()
	require.NoError(l.t, err)
	return l.add(&types.LogEntry{Type: types.OpCreateTable, Table: "t", Payload: payload})
}

func (l *entryLog) createIndex() *types.LogEntry {
	payload, err := l.index.Serialize()
	require.NoError(l.t, err)
	return l.add(&types.LogEntry{Type: types.OpCreateIndex, Table: "t", Index: l.index.Name(), Payload: payload})
}

func (l *entryLog) put(op types.OperationType, id int32, name string) *types.LogEntry {
	row := types.NewRow()
	row.Set("id", id)
	row.Set("name", name)
	key, err := types.KeyOf(l.table.PrimaryKeyColumns(), row)
	require.NoError(l.t, err)
	value, err := types.EncodeRow(l.table, row)
	require.NoError(l.t, err)
	return l.add(&types.LogEntry{Type: op, Table: "t", Key: key, Value: value})
}

func (l *entryLog) delete(id int32) *types.LogEntry {
	key, err := types.EncodeKey(l.table.PrimaryKeyColumns(), []any{id})
	require.NoError(l.t, err)
	return l.add(&types.LogEntry{Type: types.OpDelete, Table: "t", Key: key})
}

func nameKey(t *testing.T, idx *types.Index, name string) []byte {
	t.Helper()
	key, err := types.EncodeKey(idx.Columns(), []any{name})
	require.NoError(t, err)
	return key
}

func idsOf(rows []types.Row) []int32 {
	var ids []int32
	for _, r := range rows {
		v, _ := r.Get("id")
		ids = append(ids, v.(int32))
	}
	return ids
}

func applyAll(t *testing.T, d *TableSpaceData, entries []*types.LogEntry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, d.ApplyMutation(e))
	}
}

func TestIndexFollowsRowChanges(t *testing.T) {
	l := newEntryLog(t)
	l.createTable()
	l.createIndex()
	l.put(types.OpInsert, 1, "a")
	l.put(types.OpInsert, 2, "b")
	l.put(types.OpInsert, 3, "a")

	d := NewTableSpaceData(ts, nil)
	applyAll(t, d, l.entries)

	rows, err := d.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 3}, idsOf(rows))

	require.NoError(t, d.ApplyMutation(l.put(types.OpUpdate, 3, "c")))
	rows, err = d.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, idsOf(rows))

	require.NoError(t, d.ApplyMutation(l.delete(1)))
	rows, err = d.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = d.IndexLookup(l.index.Name(), nameKey(t, l.index, "c"))
	require.NoError(t, err)
	assert.Equal(t, []int32{3}, idsOf(rows))
	assert.Equal(t, 2, d.RowCount("t"))
	assert.Equal(t, uint64(7), d.LastAppliedLSN())
}

func TestCreateIndexOverExistingRows(t *testing.T) {
	l := newEntryLog(t)
	l.createTable()
	l.put(types.OpInsert, 1, "a")
	l.put(types.OpInsert, 2, "a")
	l.createIndex()

	d := NewTableSpaceData(ts, nil)
	applyAll(t, d, l.entries)

	rows, err := d.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, idsOf(rows))
}

func TestReplayIsIdempotent(t *testing.T) {
	l := newEntryLog(t)
	l.createTable()
	l.createIndex()
	l.put(types.OpInsert, 1, "a")
	l.put(types.OpInsert, 2, "b")
	l.put(types.OpUpdate, 2, "a")
	l.delete(1)

	d := NewTableSpaceData(ts, nil)
	applyAll(t, d, l.entries)
	before, err := encodeSnapshot(d.Snapshot())
	require.NoError(t, err)

	applyAll(t, d, l.entries)
	after, err := encodeSnapshot(d.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// target-state entries also converge without the LSN guard
	for _, e := range l.entries[2:] {
		unstamped := *e
		unstamped.LSN = 0
		require.NoError(t, d.ApplyMutation(&unstamped))
	}
	again, err := encodeSnapshot(d.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, before, again)
}

func TestDropTableDropsItsIndexes(t *testing.T) {
	l := newEntryLog(t)
	l.createTable()
	l.createIndex()
	l.put(types.OpInsert, 1, "a")
	l.add(&types.LogEntry{Type: types.OpDropTable, Table: "t"})

	d := NewTableSpaceData(ts, nil)
	applyAll(t, d, l.entries)

	assert.True(t, d.Catalog().Empty())
	_, err := d.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	assert.ErrorIs(t, err, dberror.ErrStatementValidation)
	assert.ErrorIs(t, d.Scan("t", func([]byte, types.Row) bool { return true }), dberror.ErrStatementValidation)
}

func TestApplyToUnknownTableFails(t *testing.T) {
	l := newEntryLog(t)
	e := l.put(types.OpInsert, 1, "a")

	err := NewTableSpaceData(ts, nil).ApplyMutation(e)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
	assert.Equal(t, "lsn=1", err.(*dberror.DBError).Record)
}

func TestCheckpointAndLoad(t *testing.T) {
	base := t.TempDir()
	m, err := NewDataStorageManager(base)
	require.NoError(t, err)

	d, lsn, err := m.LoadLatestCheckpoint(ts)
	require.NoError(t, err)
	assert.Zero(t, lsn)

	l := newEntryLog(t)
	l.createTable()
	l.createIndex()
	l.put(types.OpInsert, 1, "a")
	for _, e := range l.entries {
		require.NoError(t, m.ApplyMutation(e))
	}

	ckLSN, err := m.Checkpoint(ts)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ckLSN)

	require.NoError(t, d.ApplyMutation(l.put(types.OpInsert, 2, "b")))
	ckLSN, err = m.Checkpoint(ts)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ckLSN)

	files, err := filepath.Glob(filepath.Join(base, "data", ts, "checkpoint_*.data"))
	require.NoError(t, err)
	assert.Len(t, files, 1, "older data files are removed")

	reopened, err := NewDataStorageManager(base)
	require.NoError(t, err)
	loaded, lsn, err := reopened.LoadLatestCheckpoint(ts)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), lsn)
	assert.Equal(t, 2, loaded.RowCount("t"))
	rows, err := loaded.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, idsOf(rows))

	key, err := types.EncodeKey(l.table.PrimaryKeyColumns(), []any{int32(2)})
	require.NoError(t, err)
	row, found, err := loaded.Get("t", key)
	require.NoError(t, err)
	require.True(t, found)
	name, _ := row.Get("name")
	assert.Equal(t, "b", name)
}

func TestLoadWithoutPointerUsesNewestFile(t *testing.T) {
	base := t.TempDir()
	m, err := NewDataStorageManager(base)
	require.NoError(t, err)
	_, _, err = m.LoadLatestCheckpoint(ts)
	require.NoError(t, err)

	l := newEntryLog(t)
	l.createTable()
	l.put(types.OpInsert, 1, "a")
	for _, e := range l.entries {
		require.NoError(t, m.ApplyMutation(e))
	}
	_, err = m.Checkpoint(ts)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(base, "data", ts, checkpoint.PointerFileName)))

	_, lsn, err := m.LoadLatestCheckpoint(ts)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lsn)
}

func TestCorruptCheckpointIsFatal(t *testing.T) {
	base := t.TempDir()
	m, err := NewDataStorageManager(base)
	require.NoError(t, err)
	_, _, err = m.LoadLatestCheckpoint(ts)
	require.NoError(t, err)

	l := newEntryLog(t)
	require.NoError(t, m.ApplyMutation(l.createTable()))
	_, err = m.Checkpoint(ts)
	require.NoError(t, err)

	path := filepath.Join(base, "data", ts, checkpointFileName(1))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[10] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, _, err = m.LoadLatestCheckpoint(ts)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
}

func TestSeedCatalog(t *testing.T) {
	l := newEntryLog(t)
	catalog := types.NewCatalog(ts).WithTable(l.table).WithIndex(l.index)

	d := NewTableSpaceData(ts, nil)
	require.NoError(t, d.SeedCatalog(catalog))
	require.NoError(t, d.ApplyMutation(l.put(types.OpInsert, 1, "a")))

	rows, err := d.IndexLookup(l.index.Name(), nameKey(t, l.index, "a"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, idsOf(rows))

	assert.Error(t, d.SeedCatalog(catalog), "seeding over data is refused")
}

func TestDrop(t *testing.T) {
	base := t.TempDir()
	m, err := NewDataStorageManager(base)
	require.NoError(t, err)
	_, _, err = m.LoadLatestCheckpoint(ts)
	require.NoError(t, err)
	_, err = m.Checkpoint(ts)
	require.NoError(t, err)

	require.NoError(t, m.Drop(ts))
	_, err = os.Stat(filepath.Join(base, "data", ts))
	assert.True(t, os.IsNotExist(err))
	_, err = m.Data(ts)
	assert.ErrorIs(t, err, dberror.ErrTableSpaceNotFound)
}
