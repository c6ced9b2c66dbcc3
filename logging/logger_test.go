package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pasture.log")
	require.NoError(t, Init(Config{Level: LevelDebug, OutputPath: path, Format: "json"}))
	t.Cleanup(func() { _ = Close() })

	assert.Error(t, Init(Config{}), "second Init must fail")

	WithTableSpace("default").Debug("replayed", "lsn", 3)
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tablespace":"default"`)
	assert.Contains(t, string(data), `"lsn":3`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestGetLoggerWithoutInit(t *testing.T) {
	require.NoError(t, Close())
	assert.NotNil(t, GetLogger())
}
