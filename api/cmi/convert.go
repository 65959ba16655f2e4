package cmi

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/machbase/neo-append/api"
)

// ConvertValue maps a loosely typed Go value to the Param kind of col.
// Integers and strings given for datetime columns are read with timeformat.
func ConvertValue(col ColumnMeta, value any, timeformat string, tz *time.Location) (Param, error) {
	switch v := value.(type) {
	case nil:
		return Null(), nil
	case Param:
		return v, nil
	case *int:
		if v == nil {
			return Null(), nil
		}
		value = *v
	case *int64:
		if v == nil {
			return Null(), nil
		}
		value = *v
	case *float64:
		if v == nil {
			return Null(), nil
		}
		value = *v
	case *string:
		if v == nil {
			return Null(), nil
		}
		value = *v
	case *time.Time:
		if v == nil {
			return Null(), nil
		}
		value = *v
	}
	switch col.Type {
	case api.ColumnTypeShort:
		n, err := toInt64(value)
		if err != nil || n < math.MinInt16 || n > math.MaxInt16 {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Int16(int16(n)), nil
	case api.ColumnTypeUShort:
		n, err := toInt64(value)
		if err != nil || n < 0 || n > math.MaxUint16 {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Uint16(uint16(n)), nil
	case api.ColumnTypeInteger:
		n, err := toInt64(value)
		if err != nil || n < math.MinInt32 || n > math.MaxInt32 {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Int32(int32(n)), nil
	case api.ColumnTypeUInteger:
		n, err := toInt64(value)
		if err != nil || n < 0 || n > math.MaxUint32 {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Uint32(uint32(n)), nil
	case api.ColumnTypeLong:
		n, err := toInt64(value)
		if err != nil {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Int64(n), nil
	case api.ColumnTypeULong:
		if u, ok := value.(uint64); ok {
			return Uint64(u), nil
		}
		n, err := toInt64(value)
		if err != nil || n < 0 {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Uint64(uint64(n)), nil
	case api.ColumnTypeFloat:
		f, err := toFloat64(value)
		if err != nil {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Float32(float32(f)), nil
	case api.ColumnTypeDouble:
		f, err := toFloat64(value)
		if err != nil {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		return Float64(f), nil
	case api.ColumnTypeDatetime:
		return toDateTime(col, value, timeformat, tz)
	case api.ColumnTypeIPv4, api.ColumnTypeIPv6:
		switch v := value.(type) {
		case net.IP:
			if v.To4() != nil {
				return IPv4(v), nil
			}
			return IPv6(v), nil
		case string:
			return IPString(strings.TrimSpace(v)), nil
		case []byte:
			if len(v) == net.IPv4len {
				return IPv4(net.IP(v)), nil
			} else if len(v) == net.IPv6len {
				return IPv6(net.IP(v)), nil
			}
			return IPString(string(v)), nil
		default:
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
	case api.ColumnTypeBinary, api.ColumnTypeBlob:
		switch v := value.(type) {
		case []byte:
			return Binary(v), nil
		case string:
			return Binary([]byte(v)), nil
		default:
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
	case api.ColumnTypeJSON:
		switch v := value.(type) {
		case string:
			return JSON(v), nil
		case []byte:
			return Bytes(v), nil
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return Param{}, api.ErrColumnType(col.Name, col.Type, value)
			}
			return Bytes(b), nil
		}
	case api.ColumnTypeVarchar, api.ColumnTypeText, api.ColumnTypeClob:
		switch v := value.(type) {
		case string:
			return Varchar(v), nil
		case []byte:
			return Bytes(v), nil
		case net.IP:
			return Varchar(v.String()), nil
		case time.Time:
			return Varchar(v.Format(GetTimeformat(timeformat))), nil
		default:
			return Varchar(fmt.Sprint(v)), nil
		}
	default:
		return Param{}, api.ErrColumnType(col.Name, col.Type, value)
	}
}

func toDateTime(col ColumnMeta, value any, timeformat string, tz *time.Location) (Param, error) {
	unit, isEpoch := EpochUnit(timeformat)
	if !isEpoch {
		unit = 1
	}
	var ns int64
	var err error
	switch v := value.(type) {
	case time.Time:
		return DateTimeOf(v), nil
	case string:
		if strings.EqualFold(v, "now") {
			return DateTimeNow(), nil
		}
		if isEpoch || timeformat == "" {
			if n, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64); perr == nil {
				ns, err = EpochNanos(n, unit)
				break
			}
		}
		return DateTimeString(v, timeformat), nil
	case float32:
		ns, err = EpochFloatNanos(float64(v), unit)
	case float64:
		ns, err = EpochFloatNanos(v, unit)
	default:
		n, cerr := toInt64(value)
		if cerr != nil {
			return Param{}, api.ErrColumnType(col.Name, col.Type, value)
		}
		ns, err = EpochNanos(n, unit)
	}
	if err != nil {
		return Param{}, api.ErrDateTime(col.Name, err)
	}
	return DateTime(ns), nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("out of int64 range: %d", x)
		}
		return int64(x), nil
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported integer type %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported float type %T", v)
		}
		return float64(n), nil
	}
}
