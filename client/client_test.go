package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"PastureDB/config"
	"PastureDB/dberror"
	"PastureDB/plan"
	plancache "PastureDB/plan_cache"
	"PastureDB/server"
	storageengine "PastureDB/storage_engine"
	"PastureDB/storage_engine/catalog"
	datastorage "PastureDB/storage_engine/data_storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	base := t.TempDir()
	cfg := config.Config{NodeID: "node-1", BaseDir: base}

	metadata, err := catalog.NewFileMetadataStorageManager(base)
	require.NoError(t, err)
	data, err := datastorage.NewDataStorageManager(base)
	require.NoError(t, err)
	cache, err := plancache.NewPlanCache(1<<20, plan.NewCounter())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	s := server.NewServer(cfg, storageengine.NewDBManager(cfg, metadata, data, cache))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return New(ts.URL, Options{})
}

func p(i int) *int { return &i }

func TestClientEndToEnd(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health["status"])

	conn, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ID())

	_, err = conn.Execute(ctx, "", &server.StatementDTO{
		Kind:       server.KindCreateTable,
		Table:      "t",
		Columns:    []server.ColumnDTO{{Name: "id", Type: "int"}, {Name: "name", Type: "string"}},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "", &server.StatementDTO{Kind: server.KindCreateIndex, Table: "t", Columns: []server.ColumnDTO{{Name: "name"}}})
	require.NoError(t, err)

	insert, err := conn.Prepare(ctx, "", &server.StatementDTO{
		Kind:   server.KindInsert,
		Table:  "t",
		Values: []server.AssignmentDTO{{Column: "id", Param: p(0)}, {Column: "name", Param: p(1)}},
	})
	require.NoError(t, err)
	for i, name := range []string{"a", "b", "a"} {
		res, err := conn.ExecutePrepared(ctx, "", insert, i+1, name)
		require.NoError(t, err)
		assert.Equal(t, 1, res.UpdateCount)
	}

	_, err = conn.ExecutePrepared(ctx, "", insert, 1, "z")
	assert.ErrorIs(t, err, dberror.ErrDuplicatePrimaryKey)

	res, err := conn.Execute(ctx, "", &server.StatementDTO{
		Kind:  server.KindScan,
		Table: "t",
		Where: []server.AssignmentDTO{{Column: "name", Value: "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "t_name", res.UsedIndex)
	assert.Len(t, res.Rows, 2)

	lsn, err := c.Checkpoint(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), lsn)

	statuses, err := c.TableSpaces(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, uint64(5), statuses[0].LastLSN)
	assert.True(t, statuses[0].Available)

	require.NoError(t, conn.Close(ctx))
	_, err = conn.Execute(ctx, "", &server.StatementDTO{Kind: server.KindScan, Table: "t"})
	assert.Error(t, err)
}

func TestClientTableSpaces(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	require.NoError(t, c.CreateTableSpace(ctx, "sales"))
	assert.ErrorIs(t, c.CreateTableSpace(ctx, "sales"), dberror.ErrTableSpaceExists)

	statuses, err := c.TableSpaces(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	require.NoError(t, c.DropTableSpace(ctx, "sales"))
	assert.ErrorIs(t, c.DropTableSpace(ctx, "sales"), dberror.ErrTableSpaceNotFound)

	_, err = c.Checkpoint(ctx, "sales")
	assert.ErrorIs(t, err, dberror.ErrTableSpaceNotFound)
}
