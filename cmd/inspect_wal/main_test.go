package main

import (
	"bytes"
	"strings"
	"testing"

	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectPrintsEveryRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := wal_manager.OpenWAL(dir, "default", 1)
	require.NoError(t, err)
	for _, table := range []string{"students", "courses"} {
		entry := wal_manager.NewEntry("default", types.OpInsert, table)
		entry.Key, entry.Value = []byte("k"), []byte("v")
		_, err := w.Append(entry)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	var out bytes.Buffer
	require.NoError(t, inspect(&out, dir, options{verbose: true}))
	assert.Contains(t, out.String(), "students")
	assert.Contains(t, out.String(), "courses")
	assert.Contains(t, strings.ToLower(out.String()), "2 records")
	assert.Contains(t, out.String(), "LogEntry")

	out.Reset()
	require.NoError(t, inspect(&out, dir, options{from: 2}))
	assert.NotContains(t, out.String(), "students")
	assert.Contains(t, strings.ToLower(out.String()), "1 records")
}

func TestInspectEmptyDirectory(t *testing.T) {
	assert.Error(t, inspect(&bytes.Buffer{}, t.TempDir(), options{}))
}
