package types

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

/*
This file converts loosely typed values (literals, JSON decoded parameters) into the Go
representation stored for each column type:

	string    -> string
	long      -> int64
	integer   -> int32
	bytes     -> []byte
	timestamp -> time.Time (UTC, millisecond precision)
	double    -> float64
	boolean   -> bool

nil is accepted for every type and stored as a missing field.
*/

// number is satisfied by json.Number, produced when decoding with UseNumber
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

func Coerce(v any, t ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case ColumnTypeString:
		return toString(v)
	case ColumnTypeLong:
		return toLong(v)
	case ColumnTypeInteger:
		return toInt(v)
	case ColumnTypeBytes:
		return toBytes(v)
	case ColumnTypeTimestamp:
		return toTimestamp(v)
	case ColumnTypeDouble:
		return toDouble(v)
	case ColumnTypeBoolean:
		return toBool(v)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}

func toLong(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("cannot convert %v to long", x)
		}
		return int64(x), nil
	case number:
		return x.Int64()
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to long", x)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("expected long, got %T", v)
	}
}

func toInt(v any) (int32, error) {
	i, err := toLong(v)
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, fmt.Errorf("value %d overflows integer", i)
	}
	return int32(i), nil
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int, int32, int64:
		return fmt.Sprintf("%d", x), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func toDouble(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to double", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected double, got %T", v)
	}
}

// toBytes accepts raw bytes or a base64 string, which is how bytes travel in JSON
func toBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, fmt.Errorf("cannot decode bytes: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected bytes, got %T", v)
	}
}

func toTimestamp(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Truncate(time.Millisecond), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot convert %q to timestamp", x)
		}
		return t.UTC().Truncate(time.Millisecond), nil
	default:
		ms, err := toLong(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("cannot convert %q to boolean", x)
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

// ValuesEqual compares two values already coerced to the same column type
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case []byte:
		y, ok := b.([]byte)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	return a == b
}

// FormatValue renders a literal deterministically, it is part of statement fingerprints
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strconv.Quote(x)
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'"
	case time.Time:
		return "TS'" + x.UTC().Format(time.RFC3339Nano) + "'"
	case number:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
