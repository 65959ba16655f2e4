package api

import (
	"fmt"
	"strings"
)

type Column struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Length int        `json:"length,omitempty"`
	Flag   ColumnFlag `json:"flag,omitempty"`
}

func (col *Column) IsBaseTime() bool {
	return col.Flag&ColumnFlagBasetime > 0
}

func (col *Column) IsTagName() bool {
	return col.Flag&ColumnFlagTagName > 0
}

func (col *Column) IsArrivalTime() bool {
	return col.Flag&ColumnFlagArrivalTime > 0
}

func (col *Column) IsNotNull() bool {
	return col.Flag&ColumnFlagNotNull > 0
}

type Columns []*Column

func (cols Columns) Names() []string {
	names := make([]string, len(cols))
	for i := range cols {
		names[i] = cols[i].Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (cols Columns) Index(name string) int {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, c := range cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

type ColumnType int

const (
	ColumnTypeShort    ColumnType = iota + 4
	ColumnTypeUShort   ColumnType = 104
	ColumnTypeInteger  ColumnType = 8
	ColumnTypeUInteger ColumnType = 108
	ColumnTypeLong     ColumnType = 12
	ColumnTypeULong    ColumnType = 112
	ColumnTypeFloat    ColumnType = 16
	ColumnTypeDouble   ColumnType = 20
	ColumnTypeVarchar  ColumnType = 5
	ColumnTypeText     ColumnType = 49
	ColumnTypeClob     ColumnType = 53
	ColumnTypeBlob     ColumnType = 57
	ColumnTypeBinary   ColumnType = 97
	ColumnTypeDatetime ColumnType = 6
	ColumnTypeIPv4     ColumnType = 32
	ColumnTypeIPv6     ColumnType = 36
	ColumnTypeJSON     ColumnType = 61
	ColumnTypeUnknown  ColumnType = 0
)

const (
	COLUMN_TYPE_SHORT    = "short"
	COLUMN_TYPE_USHORT   = "ushort"
	COLUMN_TYPE_INTEGER  = "integer"
	COLUMN_TYPE_UINTEGER = "uinteger"
	COLUMN_TYPE_LONG     = "long"
	COLUMN_TYPE_ULONG    = "ulong"
	COLUMN_TYPE_FLOAT    = "float"
	COLUMN_TYPE_DOUBLE   = "double"
	COLUMN_TYPE_DATETIME = "datetime"
	COLUMN_TYPE_VARCHAR  = "varchar"
	COLUMN_TYPE_IPV4     = "ipv4"
	COLUMN_TYPE_IPV6     = "ipv6"
	COLUMN_TYPE_TEXT     = "text"
	COLUMN_TYPE_CLOB     = "clob"
	COLUMN_TYPE_BLOB     = "blob"
	COLUMN_TYPE_BINARY   = "binary"
	COLUMN_TYPE_JSON     = "json"
)

var columnTypeNames = map[string]ColumnType{
	COLUMN_TYPE_SHORT:    ColumnTypeShort,
	"int16":              ColumnTypeShort,
	COLUMN_TYPE_USHORT:   ColumnTypeUShort,
	"uint16":             ColumnTypeUShort,
	COLUMN_TYPE_INTEGER:  ColumnTypeInteger,
	"int":                ColumnTypeInteger,
	"int32":              ColumnTypeInteger,
	COLUMN_TYPE_UINTEGER: ColumnTypeUInteger,
	"uint32":             ColumnTypeUInteger,
	COLUMN_TYPE_LONG:     ColumnTypeLong,
	"int64":              ColumnTypeLong,
	COLUMN_TYPE_ULONG:    ColumnTypeULong,
	"uint64":             ColumnTypeULong,
	COLUMN_TYPE_FLOAT:    ColumnTypeFloat,
	COLUMN_TYPE_DOUBLE:   ColumnTypeDouble,
	COLUMN_TYPE_DATETIME: ColumnTypeDatetime,
	COLUMN_TYPE_VARCHAR:  ColumnTypeVarchar,
	COLUMN_TYPE_IPV4:     ColumnTypeIPv4,
	COLUMN_TYPE_IPV6:     ColumnTypeIPv6,
	COLUMN_TYPE_TEXT:     ColumnTypeText,
	COLUMN_TYPE_CLOB:     ColumnTypeClob,
	COLUMN_TYPE_BLOB:     ColumnTypeBlob,
	COLUMN_TYPE_BINARY:   ColumnTypeBinary,
	COLUMN_TYPE_JSON:     ColumnTypeJSON,
}

// ParseColumnType returns the column type of the given SQL type name.
func ParseColumnType(name string) (ColumnType, error) {
	if typ, ok := columnTypeNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return typ, nil
	}
	return ColumnTypeUnknown, fmt.Errorf("unknown column type %q", name)
}

func (typ ColumnType) String() string {
	switch typ {
	case ColumnTypeShort:
		return COLUMN_TYPE_SHORT
	case ColumnTypeUShort:
		return COLUMN_TYPE_USHORT
	case ColumnTypeInteger:
		return COLUMN_TYPE_INTEGER
	case ColumnTypeUInteger:
		return COLUMN_TYPE_UINTEGER
	case ColumnTypeLong:
		return COLUMN_TYPE_LONG
	case ColumnTypeULong:
		return COLUMN_TYPE_ULONG
	case ColumnTypeFloat:
		return COLUMN_TYPE_FLOAT
	case ColumnTypeDouble:
		return COLUMN_TYPE_DOUBLE
	case ColumnTypeVarchar:
		return COLUMN_TYPE_VARCHAR
	case ColumnTypeText:
		return COLUMN_TYPE_TEXT
	case ColumnTypeClob:
		return COLUMN_TYPE_CLOB
	case ColumnTypeBlob:
		return COLUMN_TYPE_BLOB
	case ColumnTypeBinary:
		return COLUMN_TYPE_BINARY
	case ColumnTypeDatetime:
		return COLUMN_TYPE_DATETIME
	case ColumnTypeIPv4:
		return COLUMN_TYPE_IPV4
	case ColumnTypeIPv6:
		return COLUMN_TYPE_IPV6
	case ColumnTypeJSON:
		return COLUMN_TYPE_JSON
	default:
		return fmt.Sprintf("UndefinedColumnType-%d", typ)
	}
}

func (typ ColumnType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, typ.String())), nil
}

// IsVariable reports whether values of the type are length-prefixed on the wire.
func (typ ColumnType) IsVariable() bool {
	switch typ {
	case ColumnTypeVarchar, ColumnTypeText, ColumnTypeClob, ColumnTypeBlob, ColumnTypeBinary, ColumnTypeJSON:
		return true
	default:
		return false
	}
}

type ColumnFlag int

const (
	ColumnFlagTagName     ColumnFlag = 0x08000000
	ColumnFlagBasetime    ColumnFlag = 0x01000000
	ColumnFlagSummarized  ColumnFlag = 0x02000000
	ColumnFlagMetaColumn  ColumnFlag = 0x04000000
	ColumnFlagArrivalTime ColumnFlag = 0x00100000
	ColumnFlagNotNull     ColumnFlag = 0x00010000
)

func (flag ColumnFlag) String() string {
	var names []string
	if flag&ColumnFlagTagName > 0 {
		names = append(names, "tag name")
	}
	if flag&ColumnFlagBasetime > 0 {
		names = append(names, "basetime")
	}
	if flag&ColumnFlagSummarized > 0 {
		names = append(names, "summarized")
	}
	if flag&ColumnFlagMetaColumn > 0 {
		names = append(names, "meta")
	}
	if flag&ColumnFlagArrivalTime > 0 {
		names = append(names, "arrival time")
	}
	if flag&ColumnFlagNotNull > 0 {
		names = append(names, "not null")
	}
	return strings.Join(names, ",")
}
