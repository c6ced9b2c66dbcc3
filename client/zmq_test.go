package client

import (
	"context"
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

func startZMQServer(t *testing.T) string {
	t.Helper()
	cfg := config.Config{NodeID: "node-1", BaseDir: t.TempDir()}
	cache, err := plancache.NewPlanCache(1<<20, plan.NewCounter())
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	data, err := datastorage.NewDataStorageManager(cfg.BaseDir)
	require.NoError(t, err)

	s := server.NewServer(cfg, storageengine.NewDBManager(cfg, catalog.NewMemoryMetadataStorageManager(), data, cache))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	front, err := s.ListenZMQ(ctx, "tcp://127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- front.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "tcp://" + front.Addr().String()
}

func TestZMQConn(t *testing.T) {
	endpoint := startZMQServer(t)
	conn, err := DialZMQ(context.Background(), endpoint)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Execute("", &server.StatementDTO{
		Kind:       server.KindCreateTable,
		Table:      "t",
		Columns:    []server.ColumnDTO{{Name: "id", Type: "long"}, {Name: "name", Type: "string"}},
		PrimaryKey: []string{"id"},
	})
	require.NoError(t, err)

	res, err := conn.Execute("", &server.StatementDTO{
		Kind:   server.KindInsert,
		Table:  "t",
		Values: []server.AssignmentDTO{{Column: "id", Value: 7}, {Column: "name", Value: "g"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdateCount)

	_, err = conn.Execute("", &server.StatementDTO{
		Kind:   server.KindInsert,
		Table:  "t",
		Values: []server.AssignmentDTO{{Column: "id", Value: 7}, {Column: "name", Value: "h"}},
	})
	assert.ErrorIs(t, err, dberror.ErrDuplicatePrimaryKey)

	res, err = conn.Execute("", &server.StatementDTO{
		Kind:  server.KindGet,
		Table: "t",
		Where: []server.AssignmentDTO{{Column: "id", Value: 7}},
	})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "g", res.Rows[0]["name"])
}
