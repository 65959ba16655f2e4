package api

import (
	"fmt"
	"strings"
	"time"
)

type Appender interface {
	// TableName returns the name of the table to which the Appender is appending data.
	TableName() string

	// Append adds a new row with the specified values to the table.
	// The number of values must match the number of columns in the table,
	// or the number of input columns when WithInputColumns was used.
	//
	// Example:
	//	appender.Append("name", time.Now(), 3.14)
	Append(values ...any) error

	// AppendLogTime adds a new row with the specified timestamp and values to the table.
	// For log tables the timestamp is applied to _ARRIVAL_TIME instead of the current system time.
	// For tag tables the timestamp is applied to the basetime column.
	//
	// Example:
	//	appender.AppendLogTime(time.Now(), "name", 3.14)
	AppendLogTime(ts time.Time, values ...any) error

	// Close finalizes the appending process and releases any resources associated with the Appender.
	// It returns the number of rows successfully appended and the number of rows that failed to append.
	//
	// Example:
	//	rowsAppended, rowsFailed, err := appender.Close()
	Close() (int64, int64, error)

	// Columns returns a list of column information for the table.
	Columns() (Columns, error)

	// TableType returns the type of the table to which the Appender is appending data.
	TableType() TableType

	// WithInputColumns sets the input column names for the Appender.
	WithInputColumns(columns ...string) Appender
}

type Flusher interface {
	Flush() error
}

// AppenderInputColumn maps an input position to the table column index.
type AppenderInputColumn struct {
	Name string
	Idx  int
}

// 0: Log Table, 1: Fixed Table, 3: Volatile Table,
// 4: Lookup Table, 5: KeyValue Table, 6: Tag Table
type TableType int

const (
	TableTypeLog      TableType = iota + 0
	TableTypeFixed    TableType = 1
	TableTypeVolatile TableType = 3
	TableTypeLookup   TableType = 4
	TableTypeKeyValue TableType = 5
	TableTypeTag      TableType = 6
)

func ParseTableType(name string) (TableType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "log", "logtable":
		return TableTypeLog, nil
	case "fixed", "fixedtable":
		return TableTypeFixed, nil
	case "volatile", "volatiletable":
		return TableTypeVolatile, nil
	case "lookup", "lookuptable":
		return TableTypeLookup, nil
	case "keyvalue", "keyvaluetable":
		return TableTypeKeyValue, nil
	case "tag", "tagtable":
		return TableTypeTag, nil
	default:
		return TableTypeLog, fmt.Errorf("unknown table type %q", name)
	}
}

func (typ TableType) String() string {
	switch typ {
	case TableTypeLog:
		return "LogTable"
	case TableTypeFixed:
		return "FixedTable"
	case TableTypeVolatile:
		return "VolatileTable"
	case TableTypeLookup:
		return "LookupTable"
	case TableTypeKeyValue:
		return "KeyValueTable"
	case TableTypeTag:
		return "TagTable"
	default:
		return fmt.Sprintf("UndefinedTable-%d", typ)
	}
}

func (typ TableType) ShortString() string {
	switch typ {
	case TableTypeLog:
		return "Log"
	case TableTypeFixed:
		return "Fixed"
	case TableTypeVolatile:
		return "Volatile"
	case TableTypeLookup:
		return "Lookup"
	case TableTypeKeyValue:
		return "KeyValue"
	case TableTypeTag:
		return "Tag"
	default:
		return fmt.Sprintf("UndefinedTable-%d", typ)
	}
}

func (typ TableType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, typ.String())), nil
}
