package types

import (
	"testing"

	"PastureDB/dberror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCopyOnWrite(t *testing.T) {
	empty := NewCatalog(DefaultTableSpace)
	table := newPeopleTable(t)

	withTable := empty.WithTable(table)
	assert.True(t, empty.Empty())
	_, ok := withTable.Table("people")
	assert.True(t, ok)

	idx, err := NewIndexBuilder().Table("people").Column("name", ColumnTypeString).Build()
	require.NoError(t, err)
	require.NoError(t, withTable.ValidateNewIndex(idx))

	withIndex := withTable.WithIndex(idx)
	assert.Len(t, withIndex.IndexesOf("people"), 1)
	assert.Empty(t, withTable.Indexes())

	dropped := withIndex.WithoutTable("people")
	assert.True(t, dropped.Empty())
	assert.Len(t, withIndex.Indexes(), 1)
}

func TestCatalogValidateNewIndex(t *testing.T) {
	c := NewCatalog(DefaultTableSpace).WithTable(newPeopleTable(t))

	missingTable, err := NewIndexBuilder().Table("nope").Column("a", ColumnTypeString).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, c.ValidateNewIndex(missingTable), dberror.ErrIndexDefinition)

	missingColumn, err := NewIndexBuilder().Table("people").Column("age", ColumnTypeLong).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, c.ValidateNewIndex(missingColumn), dberror.ErrIndexDefinition)

	wrongType, err := NewIndexBuilder().Table("people").Column("name", ColumnTypeLong).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, c.ValidateNewIndex(wrongType), dberror.ErrIndexDefinition)

	otherSpace, err := NewIndexBuilder().TableSpace("other").Table("people").Column("name", ColumnTypeString).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, c.ValidateNewIndex(otherSpace), dberror.ErrIndexDefinition)

	ok, err := NewIndexBuilder().Table("people").Column("name", ColumnTypeString).Build()
	require.NoError(t, err)
	c = c.WithIndex(ok)
	assert.ErrorIs(t, c.ValidateNewIndex(ok), dberror.ErrIndexDefinition)
}

func TestCatalogValidateNewTable(t *testing.T) {
	c := NewCatalog(DefaultTableSpace).WithTable(newPeopleTable(t))
	assert.ErrorIs(t, c.ValidateNewTable(newPeopleTable(t)), dberror.ErrTableDefinition)

	other, err := NewTableBuilder().TableSpace("other").Name("x").Column("id", ColumnTypeLong).PrimaryKey("id").Build()
	require.NoError(t, err)
	assert.ErrorIs(t, c.ValidateNewTable(other), dberror.ErrTableDefinition)
}

func TestCatalogSerializeRoundTrip(t *testing.T) {
	idx, err := NewIndexBuilder().Table("people").Column("name", ColumnTypeString).Build()
	require.NoError(t, err)
	orders, err := NewTableBuilder().Name("orders").Column("id", ColumnTypeLong).Column("who", ColumnTypeLong).PrimaryKey("id").Build()
	require.NoError(t, err)

	c := NewCatalog(DefaultTableSpace).WithTable(newPeopleTable(t)).WithTable(orders).WithIndex(idx)

	data, err := c.Serialize()
	require.NoError(t, err)
	back, err := DeserializeCatalog(data)
	require.NoError(t, err)

	assert.True(t, c.Equal(back))
	assert.Equal(t, DefaultTableSpace, back.TableSpace())
	require.Len(t, back.Tables(), 2)
	assert.Equal(t, "orders", back.Tables()[0].Name())
	assert.Equal(t, "people", back.Tables()[1].Name())

	_, err = DeserializeCatalog(data[:len(data)-3])
	assert.ErrorIs(t, err, dberror.ErrMalformedStream)
}

func TestTableSpaceBuilder(t *testing.T) {
	ts, err := NewTableSpaceBuilder().Name("default").Leader("node-1").Build()
	require.NoError(t, err)
	assert.NotEmpty(t, ts.UUID())
	assert.Equal(t, []string{"node-1"}, ts.Replicas())
	assert.Equal(t, 1, ts.ExpectedReplicaCount())

	data, err := ts.Serialize()
	require.NoError(t, err)
	back, err := DeserializeTableSpace(data)
	require.NoError(t, err)
	assert.True(t, ts.Equal(back))

	_, err = NewTableSpaceBuilder().Name("../etc").Leader("n").Build()
	assert.ErrorIs(t, err, dberror.ErrTableSpaceDefinition)
	_, err = NewTableSpaceBuilder().Name("ok").Build()
	assert.ErrorIs(t, err, dberror.ErrTableSpaceDefinition)
}
