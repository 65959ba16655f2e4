package cmi

import (
	"math"
	"net"
	"time"

	"github.com/machbase/neo-append/api"
)

const (
	shortNull    = uint16(0x8000)
	ushortNull   = uint16(0xffff)
	intNull      = uint32(0x80000000)
	uintNull     = uint32(0xffffffff)
	longNull     = uint64(0x8000000000000000)
	ulongNull    = uint64(0xffffffffffffffff)
	floatNull    = float32(3.402823466e+38)
	doubleNull   = float64(1.7976931348623158e+308)
	datetimeNull = uint64(0xffffffffffffffff)
)

type EncodeOptions struct {
	Endian Endian
	// Location resolves calendar fields and zone-less layouts, UTC if nil.
	Location *time.Location
}

// EncodedRow is a row in wire form. NowOffsets are the positions of
// datetime fields that take the send-time clock.
type EncodedRow struct {
	Data       []byte
	NowOffsets []int
}

// Stamp writes now into every deferred datetime field.
func (r EncodedRow) Stamp(now time.Time, endian Endian) {
	order := endian.Order()
	for _, off := range r.NowOffsets {
		order.PutUint64(r.Data[off:off+8], uint64(now.UnixNano()))
	}
}

func NullBitmapLen(ncolumns int) int {
	if ncolumns == 0 {
		return 0
	}
	return (ncolumns / 8) + 1
}

// setNullBit marks ordinal in an MSB-first bitmap.
func setNullBit(bits []byte, ordinal int) {
	bytePos := ordinal / 8
	if bytePos >= len(bits) {
		return
	}
	bits[bytePos] |= 1 << (7 - ordinal%8)
}

func isNullBit(bits []byte, ordinal int) bool {
	bytePos := ordinal / 8
	if bytePos >= len(bits) {
		return false
	}
	return bits[bytePos]&(1<<(7-ordinal%8)) != 0
}

// EncodeRow serializes params against the column list. Every column
// writes a field. NULL writes the type's sentinel, or an empty value for
// variable-length columns, and sets the column's null bit.
func EncodeRow(columns []ColumnMeta, params []Param, opts EncodeOptions) (EncodedRow, error) {
	if len(columns) != len(params) {
		return EncodedRow{}, api.NewAppendError(api.ErrorCodeSchemaMismatch,
			"value count %d, table requires %d columns to append", len(params), len(columns))
	}
	order := opts.Endian.Order()
	nullBytes := NullBitmapLen(len(columns))
	size := 1 + 4 + nullBytes
	for i, col := range columns {
		if w := FieldWidth(col.Type); w > 0 {
			size += w
		} else {
			size += 4 + len(params[i].b)
		}
	}
	row := make([]byte, 5+nullBytes, size)
	row[0] = 0 // not compressed
	order.PutUint32(row[1:5], uint32(nullBytes))
	nullOffset := 5

	var ret EncodedRow
	for idx, col := range columns {
		p := params[idx]
		if p.IsNull() {
			setNullBit(row[nullOffset:nullOffset+nullBytes], idx)
			row = appendNullField(row, col.Type, order)
			continue
		}
		var err error
		switch col.Type {
		case api.ColumnTypeShort:
			if p.kind != KindInt16 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint16(row, uint16(int16(p.i)))
		case api.ColumnTypeUShort:
			if p.kind != KindUint16 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint16(row, uint16(p.u))
		case api.ColumnTypeInteger:
			if p.kind != KindInt32 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint32(row, uint32(int32(p.i)))
		case api.ColumnTypeUInteger:
			if p.kind != KindUint32 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint32(row, uint32(p.u))
		case api.ColumnTypeLong:
			if p.kind != KindInt64 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint64(row, uint64(p.i))
		case api.ColumnTypeULong:
			if p.kind != KindUint64 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint64(row, p.u)
		case api.ColumnTypeFloat:
			if p.kind != KindFloat32 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint32(row, math.Float32bits(float32(p.f)))
		case api.ColumnTypeDouble:
			if p.kind != KindFloat64 {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			row = order.AppendUint64(row, math.Float64bits(p.f))
		case api.ColumnTypeDatetime:
			if p.kind != KindDateTime {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			if p.dtForm == DateTimeFormNow {
				ret.NowOffsets = append(ret.NowOffsets, len(row))
				row = order.AppendUint64(row, 0)
				continue
			}
			var ns int64
			if ns, err = resolveDateTime(p, opts.Location); err != nil {
				return EncodedRow{}, api.ErrDateTime(col.Name, err)
			}
			row = order.AppendUint64(row, uint64(ns))
		case api.ColumnTypeIPv4:
			if p.kind != KindIP {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			ip, err := resolveIP(p)
			if err != nil {
				return EncodedRow{}, api.ErrAddress(col.Name, p.str)
			}
			ip4 := ip.To4()
			if ip4 == nil {
				return EncodedRow{}, api.ErrAddress(col.Name, ip.String())
			}
			row = append(row, byte(IPFormV4))
			row = append(row, ip4...)
		case api.ColumnTypeIPv6:
			if p.kind != KindIP {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			ip, err := resolveIP(p)
			if err != nil {
				return EncodedRow{}, api.ErrAddress(col.Name, p.str)
			}
			ip16 := ip.To16()
			if ip16 == nil {
				return EncodedRow{}, api.ErrAddress(col.Name, ip.String())
			}
			row = append(row, byte(IPFormV6))
			row = append(row, ip16...)
		default:
			if !col.Type.IsVariable() {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			if p.kind != KindBytes {
				return EncodedRow{}, api.ErrColumnType(col.Name, col.Type, p)
			}
			if col.Length > 0 && len(p.b) > col.Length {
				return EncodedRow{}, api.ErrColumnLength(col.Name, len(p.b), col.Length)
			}
			row = order.AppendUint32(row, uint32(len(p.b)))
			row = append(row, p.b...)
		}
	}
	ret.Data = row
	return ret, nil
}

func appendNullField(row []byte, typ api.ColumnType, order ByteOrder) []byte {
	switch typ {
	case api.ColumnTypeShort:
		return order.AppendUint16(row, shortNull)
	case api.ColumnTypeUShort:
		return order.AppendUint16(row, ushortNull)
	case api.ColumnTypeInteger:
		return order.AppendUint32(row, intNull)
	case api.ColumnTypeUInteger:
		return order.AppendUint32(row, uintNull)
	case api.ColumnTypeLong:
		return order.AppendUint64(row, longNull)
	case api.ColumnTypeULong:
		return order.AppendUint64(row, ulongNull)
	case api.ColumnTypeFloat:
		return order.AppendUint32(row, math.Float32bits(floatNull))
	case api.ColumnTypeDouble:
		return order.AppendUint64(row, math.Float64bits(doubleNull))
	case api.ColumnTypeDatetime:
		return order.AppendUint64(row, datetimeNull)
	case api.ColumnTypeIPv4:
		return append(row, make([]byte, 5)...)
	case api.ColumnTypeIPv6:
		return append(row, make([]byte, 17)...)
	default:
		return order.AppendUint32(row, 0)
	}
}

func resolveDateTime(p Param, loc *time.Location) (int64, error) {
	switch p.dtForm {
	case DateTimeFormString:
		return ParseDateTime(p.str, p.layout, loc)
	case DateTimeFormFields:
		return p.fields.Nanos(loc)
	case DateTimeFormTime:
		return unixNano(p.tm)
	default:
		return p.i, nil
	}
}

func resolveIP(p Param) (net.IP, error) {
	if p.form == IPFormString {
		ip := net.ParseIP(p.str)
		if ip == nil {
			return nil, api.ErrInvalidAddress
		}
		return ip, nil
	}
	if p.ip == nil {
		return nil, api.ErrInvalidAddress
	}
	return p.ip, nil
}
