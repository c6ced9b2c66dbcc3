package types

import (
	"bytes"
	"fmt"

	"PastureDB/codec"
	"PastureDB/dberror"
)

type OperationType byte

const (
	OpInsert      OperationType = 1
	OpUpdate      OperationType = 2
	OpDelete      OperationType = 3
	OpCreateTable OperationType = 4

	// 5..7 were transaction markers, never reuse them
	OpDropTable   OperationType = 8
	OpAlterTable  OperationType = 9
	OpCreateIndex OperationType = 10
	OpDropIndex   OperationType = 11
)

var operationNames = map[OperationType]string{
	OpInsert:      "INSERT",
	OpUpdate:      "UPDATE",
	OpDelete:      "DELETE",
	OpCreateTable: "CREATE_TABLE",
	OpDropTable:   "DROP_TABLE",
	OpAlterTable:  "ALTER_TABLE",
	OpCreateIndex: "CREATE_INDEX",
	OpDropIndex:   "DROP_INDEX",
}

func (op OperationType) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}

// IsDDL reports whether the operation changes the catalog
func (op OperationType) IsDDL() bool {
	switch op {
	case OpCreateTable, OpDropTable, OpAlterTable, OpCreateIndex, OpDropIndex:
		return true
	}
	return false
}

/*
LogEntry is one committed mutation of a table space.

Every entry carries the target state, never a delta:

	INSERT/UPDATE : Key = encoded primary key, Value = full row image
	DELETE        : Key = encoded primary key
	CREATE_TABLE  : Payload = serialized table
	ALTER_TABLE   : Payload = serialized table after the change
	DROP_TABLE    : Table
	CREATE_INDEX  : Payload = serialized index
	DROP_INDEX    : Index

Index entries are derived from the row image when the entry is applied, so a row and
its index entries are covered by the same durability barrier.
The LSN is assigned by the log and lives in the record header, not in the encoded data.
*/
type LogEntry struct {
	LSN        uint64
	TableSpace string
	Timestamp  int64
	Type       OperationType
	Table      string
	Index      string
	Key        []byte
	Value      []byte
	Payload    []byte
}

func (e *LogEntry) String() string {
	return fmt.Sprintf("LogEntry{lsn=%d ts=%s op=%s table=%s}", e.LSN, e.TableSpace, e.Type, e.Table)
}

func (e *LogEntry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	err := writeAll(
		func() error { return w.WriteUTF(e.TableSpace) },
		w.WriteFlags,
		func() error { return w.WriteLong(e.Timestamp) },
		func() error { return w.WriteByte(byte(e.Type)) },
		func() error { return w.WriteUTF(e.Table) },
		func() error { return w.WriteUTF(e.Index) },
		func() error { return w.WriteBytes(e.Key) },
		func() error { return w.WriteBytes(e.Value) },
		func() error { return w.WriteBytes(e.Payload) },
	)
	if err != nil {
		return nil, dberror.Wrap(dberror.ErrStorageEncoding, err, "encoding log entry").WithTableSpace(e.TableSpace)
	}
	return buf.Bytes(), nil
}

func DecodeLogEntry(lsn uint64, data []byte) (*LogEntry, error) {
	r := codec.NewBytesReader(data)
	e := &LogEntry{LSN: lsn}
	fail := func(err error) (*LogEntry, error) {
		return nil, dberror.Wrap(dberror.ErrMalformedStream, err, "decoding log entry").
			WithTableSpace(e.TableSpace).
			WithRecord(fmt.Sprintf("lsn=%d", lsn))
	}

	var err error
	if e.TableSpace, err = r.ReadUTF(); err != nil {
		return fail(err)
	}
	if err = r.SkipFlags(); err != nil {
		return fail(err)
	}
	if e.Timestamp, err = r.ReadLong(); err != nil {
		return fail(err)
	}
	op, err := r.ReadByte()
	if err != nil {
		return fail(err)
	}
	e.Type = OperationType(op)
	if _, known := operationNames[e.Type]; !known {
		return fail(fmt.Errorf("unknown operation %d", op))
	}
	if e.Table, err = r.ReadUTF(); err != nil {
		return fail(err)
	}
	if e.Index, err = r.ReadUTF(); err != nil {
		return fail(err)
	}
	if e.Key, err = r.ReadBytes(); err != nil {
		return fail(err)
	}
	if e.Value, err = r.ReadBytes(); err != nil {
		return fail(err)
	}
	if e.Payload, err = r.ReadBytes(); err != nil {
		return fail(err)
	}
	return e, nil
}
