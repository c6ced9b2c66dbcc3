package types

import (
	"fmt"
	"strings"
)

// ColumnType is the persisted type code of a column.
// Codes are part of the on-disk format and must never be renumbered.
type ColumnType int

const (
	ColumnTypeString    ColumnType = 0
	ColumnTypeLong      ColumnType = 1
	ColumnTypeInteger   ColumnType = 2
	ColumnTypeBytes     ColumnType = 3
	ColumnTypeTimestamp ColumnType = 4
	ColumnTypeNull      ColumnType = 5
	ColumnTypeDouble    ColumnType = 6
	ColumnTypeBoolean   ColumnType = 7
)

var columnTypeNames = map[ColumnType]string{
	ColumnTypeString:    "string",
	ColumnTypeLong:      "long",
	ColumnTypeInteger:   "integer",
	ColumnTypeBytes:     "bytes",
	ColumnTypeTimestamp: "timestamp",
	ColumnTypeNull:      "null",
	ColumnTypeDouble:    "double",
	ColumnTypeBoolean:   "boolean",
}

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Valid reports whether t can be used for a column definition
func (t ColumnType) Valid() bool {
	_, ok := columnTypeNames[t]
	return ok && t != ColumnTypeNull
}

// ParseColumnType accepts the canonical names plus the usual SQL aliases
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "varchar", "text", "char":
		return ColumnTypeString, nil
	case "long", "bigint":
		return ColumnTypeLong, nil
	case "integer", "int":
		return ColumnTypeInteger, nil
	case "bytes", "blob", "varbinary":
		return ColumnTypeBytes, nil
	case "timestamp", "datetime":
		return ColumnTypeTimestamp, nil
	case "double", "float", "real":
		return ColumnTypeDouble, nil
	case "boolean", "bool":
		return ColumnTypeBoolean, nil
	}
	return 0, fmt.Errorf("unknown column type %q", s)
}

// Column is an immutable column definition.
// SerialPosition fixes the on-disk field slot of the column.
type Column struct {
	Name           string
	Type           ColumnType
	SerialPosition int
}

func (c Column) String() string {
	return fmt.Sprintf("%s %s #%d", c.Name, c.Type, c.SerialPosition)
}
