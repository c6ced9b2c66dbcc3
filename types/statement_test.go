package types

import (
	"testing"

	"PastureDB/dberror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintRendersLiteralsAndParams(t *testing.T) {
	stmt := &InsertStatement{
		TableSpaceName: "default",
		Table:          "t",
		Columns:        []string{"id", "name"},
		Values:         []Expr{Param(0), Lit("a")},
	}
	assert.Equal(t, `INSERT INTO default.t(id,name) VALUES(?0,"a")`, stmt.Fingerprint())

	other := &InsertStatement{
		TableSpaceName: "default",
		Table:          "t",
		Columns:        []string{"id", "name"},
		Values:         []Expr{Param(0), Lit("b")},
	}
	assert.NotEqual(t, stmt.Fingerprint(), other.Fingerprint())
}

func TestScanFingerprint(t *testing.T) {
	stmt := &ScanStatement{
		TableSpaceName: "default",
		Table:          "t",
		Where:          []Assignment{Eq("name", Param(0)), Eq("id", Lit(int64(4)))},
		Limit:          10,
	}
	assert.Equal(t, "SELECT * FROM default.t WHERE name=?0 AND id=4 LIMIT 10", stmt.Fingerprint())
	assert.Equal(t, []string{"name", "id"}, stmt.WhereColumns())
}

func TestValidateContextRequiresParameters(t *testing.T) {
	stmt := &UpdateStatement{
		TableSpaceName: "default",
		Table:          "t",
		Set:            []Assignment{Eq("name", Param(1))},
		Where:          []Assignment{Eq("id", Param(0))},
	}

	err := stmt.ValidateContext(NewEvaluationContext(int64(1)))
	assert.ErrorIs(t, err, dberror.ErrStatementValidation)
	assert.Equal(t, dberror.KindValidation, dberror.KindOf(err))

	require.NoError(t, stmt.ValidateContext(NewEvaluationContext(int64(1), "x")))
	assert.ErrorIs(t, stmt.ValidateContext(nil), dberror.ErrStatementValidation)
}

func TestInsertValidateContextCountsValues(t *testing.T) {
	stmt := &InsertStatement{TableSpaceName: "default", Table: "t", Columns: []string{"id"}}
	assert.ErrorIs(t, stmt.ValidateContext(nil), dberror.ErrStatementValidation)
}

func TestEstimateGrowsWithLiterals(t *testing.T) {
	small := &GetStatement{TableSpaceName: "default", Table: "t", Where: []Assignment{Eq("id", Lit("a"))}}
	big := &GetStatement{TableSpaceName: "default", Table: "t", Where: []Assignment{Eq("id", Lit(string(make([]byte, 1000))))}}
	assert.Greater(t, big.EstimateObjectSizeForCache(), small.EstimateObjectSizeForCache())
	assert.Positive(t, small.EstimateObjectSizeForCache())
}

func TestLogEntryRoundTrip(t *testing.T) {
	entry := &LogEntry{
		TableSpace: "default",
		Timestamp:  1700000000000,
		Type:       OpInsert,
		Table:      "t",
		Key:        []byte{1, 2},
		Value:      []byte{3, 4, 5},
	}
	data, err := entry.Encode()
	require.NoError(t, err)

	back, err := DecodeLogEntry(42, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), back.LSN)
	assert.Equal(t, entry.Table, back.Table)
	assert.Equal(t, entry.Key, back.Key)
	assert.Equal(t, entry.Value, back.Value)
	assert.Equal(t, OpInsert, back.Type)

	_, err = DecodeLogEntry(42, data[:len(data)-1])
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
	assert.Contains(t, err.Error(), "lsn=42")
}

func TestCreateIndexFingerprintIncludesColumnTypes(t *testing.T) {
	byString, err := NewIndexBuilder().Table("t").TableSpace("default").Column("name", ColumnTypeString).Build()
	require.NoError(t, err)
	byLong, err := NewIndexBuilder().Table("t").TableSpace("default").Column("name", ColumnTypeLong).Build()
	require.NoError(t, err)

	first := &CreateIndexStatement{Index: byString}
	assert.Equal(t, "CREATE HASH INDEX default.t_name ON t(name string)", first.Fingerprint())
	assert.NotEqual(t, first.Fingerprint(), (&CreateIndexStatement{Index: byLong}).Fingerprint())
}
