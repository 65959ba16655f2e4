package cmi

import (
	"fmt"

	"github.com/machbase/neo-append/api"
)

// spiner types, the engine's on-wire column type codes
const (
	cmdFixFlag  = 0x0000
	cmdVarFlag  = 0x0001
	cmdTimeFlag = 0x0002

	cmdVarcharType = (0x0001 << 2) | cmdVarFlag
	cmdDateType    = (0x0001 << 2) | cmdTimeFlag
	cmdInt16Type   = (0x0001 << 2) | cmdFixFlag
	cmdInt32Type   = (0x0002 << 2) | cmdFixFlag
	cmdInt64Type   = (0x0003 << 2) | cmdFixFlag
	cmdFlt32Type   = (0x0004 << 2) | cmdFixFlag
	cmdFlt64Type   = (0x0005 << 2) | cmdFixFlag
	cmdIpv4Type    = (0x0008 << 2) | cmdFixFlag
	cmdIpv6Type    = (0x0009 << 2) | cmdFixFlag
	cmdTextType    = (0x000c << 2) | cmdVarFlag
	cmdClobType    = (0x000d << 2) | cmdVarFlag
	cmdBlobType    = (0x000e << 2) | cmdVarFlag
	cmdJSONType    = (0x000f << 2) | cmdVarFlag
	cmdBinaryType  = (0x0018 << 2) | cmdVarFlag
	cmdUInt16Type  = (0x001a << 2) | cmdFixFlag
	cmdUInt32Type  = (0x001b << 2) | cmdFixFlag
	cmdUInt64Type  = (0x001c << 2) | cmdFixFlag
)

var spinerTypes = map[api.ColumnType]int{
	api.ColumnTypeShort:    cmdInt16Type,
	api.ColumnTypeUShort:   cmdUInt16Type,
	api.ColumnTypeInteger:  cmdInt32Type,
	api.ColumnTypeUInteger: cmdUInt32Type,
	api.ColumnTypeLong:     cmdInt64Type,
	api.ColumnTypeULong:    cmdUInt64Type,
	api.ColumnTypeFloat:    cmdFlt32Type,
	api.ColumnTypeDouble:   cmdFlt64Type,
	api.ColumnTypeDatetime: cmdDateType,
	api.ColumnTypeIPv4:     cmdIpv4Type,
	api.ColumnTypeIPv6:     cmdIpv6Type,
	api.ColumnTypeVarchar:  cmdVarcharType,
	api.ColumnTypeText:     cmdTextType,
	api.ColumnTypeClob:     cmdClobType,
	api.ColumnTypeBlob:     cmdBlobType,
	api.ColumnTypeBinary:   cmdBinaryType,
	api.ColumnTypeJSON:     cmdJSONType,
}

var columnTypes = func() map[int]api.ColumnType {
	ret := make(map[int]api.ColumnType, len(spinerTypes))
	for k, v := range spinerTypes {
		ret[v] = k
	}
	return ret
}()

// ColumnMeta describes one column of an append target as the
// engine reports it at append open.
type ColumnMeta struct {
	Name string
	Type api.ColumnType
	// Length is the precision of variable-length columns, 0 means unbounded.
	Length int
	Flag   api.ColumnFlag
}

func (c ColumnMeta) NotNull() bool {
	return c.Flag&api.ColumnFlagNotNull > 0
}

func (c ColumnMeta) Column() *api.Column {
	return &api.Column{Name: c.Name, Type: c.Type, Length: c.Length, Flag: c.Flag}
}

// WireType packs the column type as spiner<<56 | precision<<28 | scale.
func (c ColumnMeta) WireType() uint64 {
	spiner := spinerTypes[c.Type]
	return (uint64(spiner&0xff) << 56) | (uint64(c.Length&0x0fffffff) << 28)
}

func ColumnMetaFromWire(name string, cmType uint64, flag uint64) (ColumnMeta, error) {
	spiner := int((cmType >> 56) & 0xff)
	typ, ok := columnTypes[spiner]
	if !ok {
		return ColumnMeta{}, fmt.Errorf("column %s unsupported spiner type %d", name, spiner)
	}
	return ColumnMeta{
		Name:   name,
		Type:   typ,
		Length: int((cmType >> 28) & 0x0fffffff),
		Flag:   api.ColumnFlag(flag),
	}, nil
}

// FieldWidth is the encoded size of a fixed-width column field,
// 0 for variable-length columns.
func FieldWidth(typ api.ColumnType) int {
	switch typ {
	case api.ColumnTypeShort, api.ColumnTypeUShort:
		return 2
	case api.ColumnTypeInteger, api.ColumnTypeUInteger, api.ColumnTypeFloat:
		return 4
	case api.ColumnTypeLong, api.ColumnTypeULong, api.ColumnTypeDouble, api.ColumnTypeDatetime:
		return 8
	case api.ColumnTypeIPv4:
		return 5
	case api.ColumnTypeIPv6:
		return 17
	default:
		return 0
	}
}

func MetaColumns(metas []ColumnMeta) api.Columns {
	ret := make(api.Columns, len(metas))
	for i, m := range metas {
		ret[i] = m.Column()
	}
	return ret
}
