package types

import (
	"bytes"
	"maps"
	"time"

	"PastureDB/codec"
	"PastureDB/dberror"
)

/*
Row images are stored by serial position, never by declaration order:

	nfields | { serialPosition | typeCode | value } * nfields

Each field carries its own type code so a reader can skip positions it does not know
(a dropped column) without consulting the catalog that wrote the row.
Primary and index keys use the same value encoding without the position prefix.
*/

type Row struct {
	Values map[string]any
}

func NewRow() Row {
	return Row{Values: make(map[string]any)}
}

func (r *Row) Set(column string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[column] = value
}

func (r Row) Get(column string) (any, bool) {
	v, ok := r.Values[column]
	return v, ok
}

func (r *Row) ToMap() map[string]any {
	return r.Values
}

func (r *Row) Clone() Row {
	return Row{Values: maps.Clone(r.Values)}
}

// EncodeRow serializes the non-nil fields of row that are columns of table
func EncodeRow(table *Table, row Row) ([]byte, error) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)

	fields := make([]Column, 0, len(table.columns))
	for _, c := range table.columns {
		if v, ok := row.Values[c.Name]; ok && v != nil {
			fields = append(fields, c)
		}
	}

	if err := w.WriteVInt(len(fields)); err != nil {
		return nil, err
	}
	for _, c := range fields {
		if err := w.WriteVInt(c.SerialPosition); err != nil {
			return nil, err
		}
		if err := writeValue(w, c, row.Values[c.Name]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeRow rebuilds a row using the current definition of table
func DecodeRow(table *Table, data []byte) (Row, error) {
	r := codec.NewBytesReader(data)
	n, err := r.ReadVInt()
	if err != nil {
		return Row{}, err
	}
	row := Row{Values: make(map[string]any, n)}
	for range n {
		pos, err := r.ReadVInt()
		if err != nil {
			return Row{}, err
		}
		typ, v, err := readValue(r)
		if err != nil {
			return Row{}, err
		}
		c, known := table.columnBySerialPosition(pos)
		if !known || c.Type != typ {
			continue
		}
		row.Values[c.Name] = v
	}
	return row, nil
}

// EncodeKey serializes the values of columns, in order, into a comparable key
func EncodeKey(columns []Column, values []any) ([]byte, error) {
	if len(columns) != len(values) {
		return nil, dberror.New(dberror.ErrStatementValidation, "expected %d key values, got %d", len(columns), len(values))
	}
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	for i, c := range columns {
		if err := writeValue(w, c, values[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// KeyOf extracts and encodes the values of columns from row
func KeyOf(columns []Column, row Row) ([]byte, error) {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = row.Values[c.Name]
	}
	return EncodeKey(columns, values)
}

func writeValue(w *codec.Writer, c Column, v any) error {
	if v == nil {
		return w.WriteByte(byte(ColumnTypeNull))
	}
	v, err := Coerce(v, c.Type)
	if err != nil {
		return dberror.Wrap(dberror.ErrStorageEncoding, err, "column %s", c.Name)
	}
	if err := w.WriteByte(byte(c.Type)); err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		return w.WriteBytes([]byte(x))
	case []byte:
		return w.WriteBytes(x)
	case int64:
		return w.WriteLong(x)
	case int32:
		return w.WriteLong(int64(x))
	case time.Time:
		return w.WriteLong(x.UnixMilli())
	case float64:
		return w.WriteDouble(x)
	case bool:
		if x {
			return w.WriteByte(1)
		}
		return w.WriteByte(0)
	}
	return dberror.New(dberror.ErrStorageEncoding, "column %s: unsupported value %T", c.Name, v)
}

func readValue(r *codec.Reader) (ColumnType, any, error) {
	code, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	typ := ColumnType(code)
	switch typ {
	case ColumnTypeNull:
		return typ, nil, nil
	case ColumnTypeString:
		b, err := r.ReadBytes()
		return typ, string(b), err
	case ColumnTypeBytes:
		b, err := r.ReadBytes()
		return typ, b, err
	case ColumnTypeLong:
		v, err := r.ReadLong()
		return typ, v, err
	case ColumnTypeInteger:
		v, err := r.ReadLong()
		return typ, int32(v), err
	case ColumnTypeTimestamp:
		v, err := r.ReadLong()
		return typ, time.UnixMilli(v).UTC(), err
	case ColumnTypeDouble:
		v, err := r.ReadDouble()
		return typ, v, err
	case ColumnTypeBoolean:
		b, err := r.ReadByte()
		return typ, b != 0, err
	}
	return 0, nil, dberror.New(dberror.ErrMalformedStream, "unknown value type code %d", code)
}
