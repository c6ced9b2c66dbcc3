package dberror

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapMatchesCodeAndCause(t *testing.T) {
	err := Wrap(ErrCommitLogWrite, io.ErrShortWrite, "append").WithTableSpace("default").WithRecord("lsn=4")

	assert.ErrorIs(t, err, ErrCommitLogWrite)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, KindDurability, KindOf(err))
	assert.Contains(t, err.Error(), "tablespace=default")
	assert.Contains(t, err.Error(), "record=lsn=4")
}

func TestKindSurvivesFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrDuplicateColumn, "column %s already exists", "a"))

	assert.ErrorIs(t, err, ErrDuplicateColumn)
	assert.Equal(t, KindDefinition, KindOf(err))
	assert.Equal(t, ErrDuplicateColumn, CodeOf(err))
	assert.Nil(t, CodeOf(errors.New("plain")))
}

func TestCodeFromString(t *testing.T) {
	assert.Equal(t, ErrDuplicatePrimaryKey, CodeFromString(ErrDuplicatePrimaryKey.Error()))
	assert.Nil(t, CodeFromString("no such code"))
}
