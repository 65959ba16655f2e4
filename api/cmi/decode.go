package cmi

import (
	"fmt"
	"math"
	"net"

	"github.com/machbase/neo-append/api"
)

// DecodeRow is the inverse of EncodeRow. Columns with the null bit set
// decode to Null(), deferred datetime fields decode to what was stamped.
func DecodeRow(columns []ColumnMeta, data []byte, endian Endian) ([]Param, error) {
	order := endian.Order()
	if len(data) < 5 {
		return nil, fmt.Errorf("malformed row header")
	}
	if data[0] != 0 {
		return nil, fmt.Errorf("compressed row not supported")
	}
	nullBytes := int(order.Uint32(data[1:5]))
	if nullBytes != NullBitmapLen(len(columns)) || 5+nullBytes > len(data) {
		return nil, fmt.Errorf("malformed row null bitmap length %d", nullBytes)
	}
	bits := data[5 : 5+nullBytes]
	off := 5 + nullBytes

	ret := make([]Param, len(columns))
	for i, col := range columns {
		var field []byte
		if w := FieldWidth(col.Type); w > 0 {
			if off+w > len(data) {
				return nil, fmt.Errorf("malformed row, column %s fixed overrun", col.Name)
			}
			field = data[off : off+w]
			off += w
		} else {
			if off+4 > len(data) {
				return nil, fmt.Errorf("malformed row, column %s variable length", col.Name)
			}
			l := int(order.Uint32(data[off : off+4]))
			off += 4
			if l < 0 || off+l > len(data) {
				return nil, fmt.Errorf("malformed row, column %s variable overrun", col.Name)
			}
			field = data[off : off+l]
			off += l
		}
		if isNullBit(bits, i) {
			ret[i] = Null()
			continue
		}
		switch col.Type {
		case api.ColumnTypeShort:
			ret[i] = Int16(int16(order.Uint16(field)))
		case api.ColumnTypeUShort:
			ret[i] = Uint16(order.Uint16(field))
		case api.ColumnTypeInteger:
			ret[i] = Int32(int32(order.Uint32(field)))
		case api.ColumnTypeUInteger:
			ret[i] = Uint32(order.Uint32(field))
		case api.ColumnTypeLong:
			ret[i] = Int64(int64(order.Uint64(field)))
		case api.ColumnTypeULong:
			ret[i] = Uint64(order.Uint64(field))
		case api.ColumnTypeFloat:
			ret[i] = Float32(math.Float32frombits(order.Uint32(field)))
		case api.ColumnTypeDouble:
			ret[i] = Float64(math.Float64frombits(order.Uint64(field)))
		case api.ColumnTypeDatetime:
			ret[i] = DateTime(int64(order.Uint64(field)))
		case api.ColumnTypeIPv4:
			if field[0] != byte(IPFormV4) {
				ret[i] = IPNull()
				continue
			}
			ret[i] = IPv4(net.IP(append([]byte(nil), field[1:5]...)))
		case api.ColumnTypeIPv6:
			if field[0] != byte(IPFormV6) {
				ret[i] = IPNull()
				continue
			}
			ret[i] = IPv6(net.IP(append([]byte(nil), field[1:17]...)))
		default:
			ret[i] = Bytes(append([]byte{}, field...))
		}
	}
	if off != len(data) {
		return nil, fmt.Errorf("malformed row, %d trailing bytes", len(data)-off)
	}
	return ret, nil
}
