package dberror

import (
	"errors"
	"fmt"
	"strings"
)

/*
This file contains the error taxonomy of the engine

Every failure that crosses a component boundary is a *DBError carrying
  - Kind: definition, encoding, durability or validation
  - Code: one of the sentinel errors below (match it with errors.Is)
  - TableSpace / Record: where it happened, so it can be diagnosed without reading logs

DBError unwraps to both its Code and its Cause, so errors.Is works for either
*/

type Kind uint8

const (
	KindDefinition Kind = iota + 1
	KindEncoding
	KindDurability
	KindValidation
	KindAvailability
)

func (k Kind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindEncoding:
		return "encoding"
	case KindDurability:
		return "durability"
	case KindValidation:
		return "validation"
	case KindAvailability:
		return "availability"
	}
	return "unknown"
}

// definition errors: rejected at build time, never persisted
var (
	ErrIndexDefinition        = errors.New("index definition error")
	ErrDuplicateColumn        = errors.New("duplicate column")
	ErrInvalidIndexDefinition = errors.New("invalid index definition")
	ErrTableDefinition        = errors.New("table definition error")
	ErrTableSpaceDefinition   = errors.New("table space definition error")
)

// encoding errors: corrupt or truncated binary data
var (
	ErrMalformedStream  = errors.New("malformed stream")
	ErrStorageEncoding  = errors.New("storage encoding error")
	ErrCorruptedLogFile = errors.New("corrupted commit log")
)

// durability errors: the in-flight statement is aborted
var (
	ErrCommitLogWrite = errors.New("commit log write failed")
	ErrMetadataIO     = errors.New("metadata i/o error")
	ErrDataStorageIO  = errors.New("data storage i/o error")
)

// validation errors: rejected before any log append
var (
	ErrStatementValidation = errors.New("statement validation failed")
	ErrDuplicatePrimaryKey = errors.New("duplicate primary key")
)

var (
	ErrTableSpaceNotFound    = errors.New("table space not found")
	ErrTableSpaceExists      = errors.New("table space already exists")
	ErrTableSpaceUnavailable = errors.New("table space unavailable")
)

var kindOf = map[error]Kind{
	ErrIndexDefinition:        KindDefinition,
	ErrDuplicateColumn:        KindDefinition,
	ErrInvalidIndexDefinition: KindDefinition,
	ErrTableDefinition:        KindDefinition,
	ErrTableSpaceDefinition:   KindDefinition,
	ErrMalformedStream:        KindEncoding,
	ErrStorageEncoding:        KindEncoding,
	ErrCorruptedLogFile:       KindEncoding,
	ErrCommitLogWrite:         KindDurability,
	ErrMetadataIO:             KindDurability,
	ErrDataStorageIO:          KindDurability,
	ErrStatementValidation:    KindValidation,
	ErrDuplicatePrimaryKey:    KindValidation,
	ErrTableSpaceNotFound:     KindAvailability,
	ErrTableSpaceExists:       KindValidation,
	ErrTableSpaceUnavailable:  KindAvailability,
}

// DBError is a typed failure with enough context to diagnose it
type DBError struct {
	Kind       Kind
	Code       error
	TableSpace string
	Record     string
	Op         string
	Message    string
	Cause      error
}

func (e *DBError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.Error())
	if e.TableSpace != "" {
		fmt.Fprintf(&sb, " [tablespace=%s", e.TableSpace)
		if e.Record != "" {
			fmt.Fprintf(&sb, " record=%s", e.Record)
		}
		sb.WriteString("]")
	} else if e.Record != "" {
		fmt.Fprintf(&sb, " [record=%s]", e.Record)
	}
	if e.Op != "" {
		fmt.Fprintf(&sb, " during %s", e.Op)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *DBError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Cause}
}

// New builds a DBError for the given sentinel code
func New(code error, format string, args ...any) *DBError {
	return &DBError{
		Kind:    kindOf[code],
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap builds a DBError for the given sentinel code around an underlying cause
func Wrap(code error, cause error, format string, args ...any) *DBError {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

func (e *DBError) WithTableSpace(tableSpace string) *DBError {
	e.TableSpace = tableSpace
	return e
}

func (e *DBError) WithRecord(record string) *DBError {
	e.Record = record
	return e
}

func (e *DBError) WithOp(op string) *DBError {
	e.Op = op
	return e
}

// KindOf reports the kind of the first DBError found in err's chain
func KindOf(err error) Kind {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}
	return 0
}

// CodeOf reports the sentinel code of the first DBError found in err's chain
func CodeOf(err error) error {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Code
	}
	return nil
}

// CodeFromString returns the sentinel whose message is s, it reverses Code.Error() on the wire
func CodeFromString(s string) error {
	for code := range kindOf {
		if code.Error() == s {
			return code
		}
	}
	return nil
}

// KindOfCode reports the kind a sentinel code belongs to
func KindOfCode(code error) Kind {
	return kindOf[code]
}
