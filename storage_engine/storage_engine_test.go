package storageengine

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"PastureDB/config"
	"PastureDB/dberror"
	"PastureDB/plan"
	plancache "PastureDB/plan_cache"
	"PastureDB/storage_engine/catalog"
	datastorage "PastureDB/storage_engine/data_storage"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const ts = types.DefaultTableSpace

func testConfig(base string) config.Config {
	return config.Config{
		NodeID:           "node-1",
		BaseDir:          base,
		CheckpointPeriod: time.Hour,
	}
}

func startManager(t *testing.T, cfg config.Config, metadata MetadataStore) *DBManager {
	t.Helper()
	data, err := datastorage.NewDataStorageManager(cfg.BaseDir)
	require.NoError(t, err)
	cache, err := plancache.NewPlanCache(1<<20, plan.NewCounter())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	m := NewDBManager(cfg, metadata, data, cache)
	require.NoError(t, m.Start(context.Background()))
	return m
}

func fileMetadata(t *testing.T, base string) *catalog.FileMetadataStorageManager {
	t.Helper()
	metadata, err := catalog.NewFileMetadataStorageManager(base)
	require.NoError(t, err)
	return metadata
}

// crash drops the manager without the final checkpoint
func crash(t *testing.T, m *DBManager) {
	t.Helper()
	if m.stopScheduler != nil {
		m.stopScheduler()
		<-m.schedulerDone
		m.stopScheduler = nil
	}
	require.NoError(t, m.closeTableSpaces())
}

func exec(t *testing.T, m *DBManager, stmt types.Statement, params ...any) *StatementResult {
	t.Helper()
	res, err := m.ExecuteStatement(context.Background(), stmt, types.NewEvaluationContext(params...))
	require.NoError(t, err)
	return res
}

func peopleTable(t *testing.T) *types.Table {
	t.Helper()
	table, err := types.NewTableBuilder().
		Name("t").
		TableSpace(ts).
		Column("id", types.ColumnTypeInteger).
		Column("name", types.ColumnTypeString).
		PrimaryKey("id").
		Build()
	require.NoError(t, err)
	return table
}

func nameIndex(t *testing.T) *types.Index {
	t.Helper()
	idx, err := types.NewIndexBuilder().Table("t").TableSpace(ts).Column("name", types.ColumnTypeString).Build()
	require.NoError(t, err)
	return idx
}

func insert(id int, name string) *types.InsertStatement {
	return &types.InsertStatement{
		TableSpaceName: ts,
		Table:          "t",
		Columns:        []string{"id", "name"},
		Values:         []types.Expr{types.Lit(id), types.Lit(name)},
	}
}

func byName(name string) *types.ScanStatement {
	return &types.ScanStatement{
		TableSpaceName: ts,
		Table:          "t",
		Where:          []types.Assignment{types.Eq("name", types.Lit(name))},
	}
}

func byID(id int) *types.GetStatement {
	return &types.GetStatement{
		TableSpaceName: ts,
		Table:          "t",
		Where:          []types.Assignment{types.Eq("id", types.Lit(id))},
	}
}

func ids(rows []types.Row) []int32 {
	out := []int32{}
	for _, r := range rows {
		v, _ := r.Get("id")
		out = append(out, v.(int32))
	}
	return out
}

func setup(t *testing.T, m *DBManager) {
	t.Helper()
	_, err := m.CreateTableSpace(ts)
	require.NoError(t, err)
	exec(t, m, &types.CreateTableStatement{Table: peopleTable(t)})
	exec(t, m, &types.CreateIndexStatement{Index: nameIndex(t)})
}

func TestRecoveredIndexServesScan(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)

	res := exec(t, m, insert(1, "a"))
	assert.Equal(t, uint64(3), res.LSN)
	crash(t, m)

	m = startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()

	res = exec(t, m, byName("a"))
	assert.Equal(t, "t_name", res.UsedIndex)
	assert.Equal(t, []int32{1}, ids(res.Rows))
	assert.Equal(t, []string{"id", "name"}, res.Columns)
}

func TestCrashRecoveryReplaysEveryStatement(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)

	for i, name := range []string{"a", "b", "c", "d"} {
		exec(t, m, insert(i+1, name))
	}
	exec(t, m, &types.UpdateStatement{
		TableSpaceName: ts,
		Table:          "t",
		Set:            []types.Assignment{types.Eq("name", types.Param(0))},
		Where:          []types.Assignment{types.Eq("id", types.Param(1))},
	}, "a", 2)
	exec(t, m, &types.DeleteStatement{
		TableSpaceName: ts,
		Table:          "t",
		Where:          []types.Assignment{types.Eq("id", types.Lit(3))},
	})
	exec(t, m, &types.AlterTableStatement{
		TableSpaceName: ts,
		Table:          "t",
		AddColumns:     []types.Column{{Name: "age", Type: types.ColumnTypeLong}},
	})
	crash(t, m)

	m = startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()

	res := exec(t, m, byName("a"))
	assert.Equal(t, []int32{1, 2}, ids(res.Rows))

	res = exec(t, m, byID(3))
	assert.False(t, res.Found)

	c, err := m.Catalog(ts)
	require.NoError(t, err)
	table, ok := c.Table("t")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "age"}, table.ColumnNames())

	stored, err := fileMetadata(t, base).Load(ts)
	require.NoError(t, err)
	assert.True(t, stored.Equal(c))
}

func TestCheckpointTruncatesLog(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)
	cfg.WALSegmentSize = 1
	m := startManager(t, cfg, fileMetadata(t, base))
	setup(t, m)
	for i := 1; i <= 5; i++ {
		exec(t, m, insert(i, "n"))
	}

	tm, err := m.tableSpace(ts)
	require.NoError(t, err)
	assert.Equal(t, 7, tm.wal.SegmentCount())

	lsn, err := m.Checkpoint(ts)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), lsn)
	assert.LessOrEqual(t, tm.wal.SegmentCount(), 1)

	exec(t, m, insert(6, "n"))
	crash(t, m)

	m = startManager(t, cfg, fileMetadata(t, base))
	defer m.Close()
	res := exec(t, m, byName("n"))
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, ids(res.Rows))
	res = exec(t, m, insert(7, "n"))
	assert.Equal(t, uint64(9), res.LSN)
}

func TestCloseTakesFinalCheckpoint(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)
	exec(t, m, insert(1, "a"))
	require.NoError(t, m.Close())

	data, err := datastorage.NewDataStorageManager(base)
	require.NoError(t, err)
	loaded, lsn, err := data.LoadLatestCheckpoint(ts)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn)
	assert.Equal(t, 1, loaded.RowCount("t"))
}

type flakyMetadata struct {
	*catalog.MemoryMetadataStorageManager
	failPersist atomic.Bool
}

func (f *flakyMetadata) Persist(tableSpace string, c *types.Catalog) error {
	if f.failPersist.Load() {
		return errors.New("no space left on device")
	}
	return f.MemoryMetadataStorageManager.Persist(tableSpace, c)
}

func TestMetadataFailureMakesTableSpaceUnavailable(t *testing.T) {
	base := t.TempDir()
	metadata := &flakyMetadata{MemoryMetadataStorageManager: catalog.NewMemoryMetadataStorageManager()}
	m := startManager(t, testConfig(base), metadata)

	_, err := m.CreateTableSpace(ts)
	require.NoError(t, err)
	exec(t, m, &types.CreateTableStatement{Table: peopleTable(t)})

	metadata.failPersist.Store(true)
	_, err = m.ExecuteStatement(context.Background(), &types.CreateIndexStatement{Index: nameIndex(t)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrMetadataIO)

	_, err = m.ExecuteStatement(context.Background(), insert(1, "a"), nil)
	assert.ErrorIs(t, err, dberror.ErrTableSpaceUnavailable)
	_, err = m.ExecuteStatement(context.Background(), byID(1), nil)
	assert.ErrorIs(t, err, dberror.ErrTableSpaceUnavailable)
	assert.False(t, m.Status()[0].Available)

	// the index entry is in the log, recovery writes it back to the metadata store
	crash(t, m)
	metadata.failPersist.Store(false)
	m = startManager(t, testConfig(base), metadata)
	defer m.Close()

	stored, err := metadata.Load(ts)
	require.NoError(t, err)
	_, ok := stored.Index("t_name")
	assert.True(t, ok)

	exec(t, m, insert(1, "a"))
	res := exec(t, m, byName("a"))
	assert.Equal(t, "t_name", res.UsedIndex)
}

func TestRejectedStatementsLogNothing(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	setup(t, m)
	exec(t, m, insert(1, "a"))

	tm, err := m.tableSpace(ts)
	require.NoError(t, err)
	last := tm.wal.LastLSN()

	ctx := context.Background()
	cases := []struct {
		name string
		stmt types.Statement
		want error
	}{
		{"duplicate key", insert(1, "b"), dberror.ErrDuplicatePrimaryKey},
		{"unknown table", &types.InsertStatement{TableSpaceName: ts, Table: "nope", Columns: []string{"id"}, Values: []types.Expr{types.Lit(1)}}, dberror.ErrStatementValidation},
		{"unknown column", &types.InsertStatement{TableSpaceName: ts, Table: "t", Columns: []string{"id", "x"}, Values: []types.Expr{types.Lit(2), types.Lit(1)}}, dberror.ErrStatementValidation},
		{"null primary key", &types.InsertStatement{TableSpaceName: ts, Table: "t", Columns: []string{"name"}, Values: []types.Expr{types.Lit("x")}}, dberror.ErrStatementValidation},
		{"bad value", &types.InsertStatement{TableSpaceName: ts, Table: "t", Columns: []string{"id"}, Values: []types.Expr{types.Lit("abc")}}, dberror.ErrStatementValidation},
		{"missing parameter", &types.InsertStatement{TableSpaceName: ts, Table: "t", Columns: []string{"id"}, Values: []types.Expr{types.Param(0)}}, dberror.ErrStatementValidation},
		{"primary key update", &types.UpdateStatement{TableSpaceName: ts, Table: "t", Set: []types.Assignment{types.Eq("id", types.Lit(5))}, Where: []types.Assignment{types.Eq("id", types.Lit(1))}}, dberror.ErrStatementValidation},
		{"update without key", &types.UpdateStatement{TableSpaceName: ts, Table: "t", Set: []types.Assignment{types.Eq("name", types.Lit("z"))}, Where: []types.Assignment{types.Eq("name", types.Lit("a"))}}, dberror.ErrStatementValidation},
		{"duplicate table", &types.CreateTableStatement{Table: peopleTable(t)}, dberror.ErrTableDefinition},
		{"duplicate index", &types.CreateIndexStatement{Index: nameIndex(t)}, dberror.ErrIndexDefinition},
		{"drop indexed column", &types.AlterTableStatement{TableSpaceName: ts, Table: "t", DropColumns: []string{"name"}}, dberror.ErrTableDefinition},
		{"drop primary key column", &types.AlterTableStatement{TableSpaceName: ts, Table: "t", DropColumns: []string{"id"}}, dberror.ErrTableDefinition},
		{"unknown index", &types.DropIndexStatement{TableSpaceName: ts, Name: "nope"}, dberror.ErrIndexDefinition},
		{"unknown table space", &types.DropTableStatement{TableSpaceName: "other", Table: "t"}, dberror.ErrTableSpaceNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.ExecuteStatement(ctx, tc.stmt, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, last, tm.wal.LastLSN())
}

func TestIfExistsVariantsAreNoops(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	setup(t, m)

	res := exec(t, m, &types.CreateTableStatement{Table: peopleTable(t), IfNotExists: true})
	assert.Zero(t, res.LSN)
	res = exec(t, m, &types.DropTableStatement{TableSpaceName: ts, Table: "nope", IfExists: true})
	assert.Zero(t, res.LSN)
	res = exec(t, m, &types.DropIndexStatement{TableSpaceName: ts, Name: "nope", IfExists: true})
	assert.Zero(t, res.LSN)

	res = exec(t, m, &types.DeleteStatement{TableSpaceName: ts, Table: "t", Where: []types.Assignment{types.Eq("id", types.Lit(9))}})
	assert.Zero(t, res.UpdateCount)
	assert.Zero(t, res.LSN)
}

func TestScanWithoutIndex(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	setup(t, m)
	exec(t, m, &types.DropIndexStatement{TableSpaceName: ts, Name: "t_name"})

	for i, name := range []string{"x", "y", "x", "x"} {
		exec(t, m, insert(i+1, name))
	}

	res := exec(t, m, byName("x"))
	assert.Empty(t, res.UsedIndex)
	assert.Equal(t, []int32{1, 3, 4}, ids(res.Rows))

	limited := byName("x")
	limited.Limit = 2
	res = exec(t, m, limited)
	assert.Equal(t, []int32{1, 3}, ids(res.Rows))

	res = exec(t, m, &types.ScanStatement{TableSpaceName: ts, Table: "t"})
	assert.Equal(t, []int32{1, 2, 3, 4}, ids(res.Rows))
}

func TestPrepareCachesOnePlanPerFingerprint(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	setup(t, m)
	ctx := context.Background()

	stmt := &types.ScanStatement{TableSpaceName: ts, Table: "t", Where: []types.Assignment{types.Eq("name", types.Param(0))}}
	first, err := m.Prepare(ctx, stmt)
	require.NoError(t, err)
	second, err := m.Prepare(ctx, stmt)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, "IndexLookup(default.t via t_name)", first.OriginalRoot().String())

	exec(t, m, insert(1, "a"))
	res, err := m.ExecutePlan(ctx, first, types.NewEvaluationContext("a"))
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, ids(res.Rows))

	_, err = m.ExecutePlan(ctx, first, nil)
	assert.ErrorIs(t, err, dberror.ErrStatementValidation)

	// DDL invalidates every cached plan
	exec(t, m, &types.DropIndexStatement{TableSpaceName: ts, Name: "t_name"})
	third, err := m.Prepare(ctx, stmt)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), third.ID())
	assert.Equal(t, "TableScan(default.t filter=name)", third.OriginalRoot().String())
}

func TestCancelledStatementIsNotCommitted(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	setup(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ExecuteStatement(ctx, insert(1, "a"), nil)
	require.ErrorIs(t, err, context.Canceled)

	res := exec(t, m, byID(1))
	assert.False(t, res.Found)
}

func TestDropTableSpace(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)
	exec(t, m, insert(1, "a"))

	require.NoError(t, m.DropTableSpace(ts))
	_, err := m.ExecuteStatement(context.Background(), byID(1), nil)
	assert.ErrorIs(t, err, dberror.ErrTableSpaceNotFound)
	assert.ErrorIs(t, m.DropTableSpace(ts), dberror.ErrTableSpaceNotFound)
	require.NoError(t, m.Close())

	m = startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	assert.Empty(t, m.Status())

	_, err = m.CreateTableSpace(ts)
	require.NoError(t, err)
	_, err = m.CreateTableSpace(ts)
	assert.ErrorIs(t, err, dberror.ErrTableSpaceExists)
	c, err := m.Catalog(ts)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestStartTwiceFails(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()
	assert.Error(t, m.Start(context.Background()))
}

func TestFailedAppendLeavesStateUnchanged(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)
	exec(t, m, insert(1, "a"))

	tm, err := m.tableSpace(ts)
	require.NoError(t, err)
	applied := tm.data.LastAppliedLSN()
	require.NoError(t, tm.wal.Close())

	_, err = m.ExecuteStatement(context.Background(), insert(2, "b"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrCommitLogWrite)

	assert.Equal(t, applied, tm.data.LastAppliedLSN())
	assert.Equal(t, 1, tm.data.RowCount("t"))
	res := exec(t, m, byName("b"))
	assert.Equal(t, "t_name", res.UsedIndex)
	assert.Empty(t, res.Rows)
	assert.False(t, exec(t, m, byID(2)).Found)

	crash(t, m)
}

func TestCorruptLogFailsStart(t *testing.T) {
	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)
	exec(t, m, insert(1, "a"))
	exec(t, m, insert(2, "b"))
	crash(t, m)

	segments, err := wal_manager.SegmentFiles(m.walDir(ts))
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	data, err := os.ReadFile(segments[0])
	require.NoError(t, err)
	data[wal_manager.RecordHeaderSize+2] ^= 0xFF
	require.NoError(t, os.WriteFile(segments[0], data, 0644))

	storage, err := datastorage.NewDataStorageManager(base)
	require.NoError(t, err)
	cache, err := plancache.NewPlanCache(1<<20, plan.NewCounter())
	require.NoError(t, err)
	defer cache.Close()

	m = NewDBManager(testConfig(base), fileMetadata(t, base), storage, cache)
	err = m.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrCorruptedLogFile)
	assert.False(t, m.HasTableSpace(ts))
	assert.Empty(t, m.Status())
}

func TestCheckpointsDuringWritesRecoverEveryRow(t *testing.T) {
	const writers, perWriter = 4, 50

	base := t.TempDir()
	m := startManager(t, testConfig(base), fileMetadata(t, base))
	setup(t, m)

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				id := w*perWriter + i + 1
				if _, err := m.ExecuteStatement(context.Background(), insert(id, "n"), nil); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < 30; i++ {
			if _, err := m.Checkpoint(ts); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	crash(t, m)

	m = startManager(t, testConfig(base), fileMetadata(t, base))
	defer m.Close()

	res := exec(t, m, byName("n"))
	assert.Equal(t, "t_name", res.UsedIndex)
	assert.Len(t, res.Rows, writers*perWriter)
	res = exec(t, m, byID(writers*perWriter))
	assert.True(t, res.Found)
}
