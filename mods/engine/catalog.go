package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/tidwall/gjson"
)

type TableConfig struct {
	Name string
	// Type is LOG or TAG.
	Type    string
	Columns []ColumnConfig
}

type ColumnConfig struct {
	Name    string
	Type    string
	Length  int
	NotNull bool
}

const ArrivalTimeColumn = "_ARRIVAL_TIME"

// Table is an append target of the catalog.
type Table struct {
	Name    string
	Type    api.TableType
	Columns []cmi.ColumnMeta

	success atomic.Int64
	failure atomic.Int64
}

// NewTable builds the column list of the table. Log tables get a leading
// _ARRIVAL_TIME column. Tag tables without columns get NAME, TIME and VALUE,
// otherwise the first varchar is the tag name and the first datetime the
// basetime.
func NewTable(tc TableConfig) (*Table, error) {
	name := strings.ToUpper(strings.TrimSpace(tc.Name))
	if name == "" {
		return nil, fmt.Errorf("table name is empty")
	}
	typ := api.TableTypeLog
	if tc.Type != "" {
		t, err := api.ParseTableType(tc.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s, %s", name, err.Error())
		}
		typ = t
	}
	ret := &Table{Name: name, Type: typ}
	switch typ {
	case api.TableTypeLog:
		ret.Columns = append(ret.Columns, cmi.ColumnMeta{
			Name: ArrivalTimeColumn,
			Type: api.ColumnTypeDatetime,
			Flag: api.ColumnFlagArrivalTime,
		})
	case api.TableTypeTag:
		if len(tc.Columns) == 0 {
			ret.Columns = []cmi.ColumnMeta{
				{Name: "NAME", Type: api.ColumnTypeVarchar, Length: 100, Flag: api.ColumnFlagTagName | api.ColumnFlagNotNull},
				{Name: "TIME", Type: api.ColumnTypeDatetime, Flag: api.ColumnFlagBasetime | api.ColumnFlagNotNull},
				{Name: "VALUE", Type: api.ColumnTypeDouble, Flag: api.ColumnFlagSummarized},
			}
			return ret, nil
		}
	default:
		return nil, fmt.Errorf("table %s, %s is not supported", name, typ)
	}

	seen := map[string]bool{}
	for _, cc := range tc.Columns {
		colName := strings.ToUpper(strings.TrimSpace(cc.Name))
		if colName == "" || colName == ArrivalTimeColumn {
			return nil, fmt.Errorf("table %s, invalid column name %q", name, cc.Name)
		}
		if seen[colName] {
			return nil, fmt.Errorf("table %s, duplicate column %s", name, colName)
		}
		seen[colName] = true
		colType, err := api.ParseColumnType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("table %s column %s, %s", name, colName, err.Error())
		}
		meta := cmi.ColumnMeta{Name: colName, Type: colType}
		if cmi.FieldWidth(colType) == 0 {
			meta.Length = cc.Length
		}
		if cc.NotNull {
			meta.Flag |= api.ColumnFlagNotNull
		}
		ret.Columns = append(ret.Columns, meta)
	}
	if typ == api.TableTypeTag {
		tagName, basetime := -1, -1
		for i, c := range ret.Columns {
			if tagName < 0 && c.Type == api.ColumnTypeVarchar {
				tagName = i
				ret.Columns[i].Flag |= api.ColumnFlagTagName | api.ColumnFlagNotNull
			}
			if basetime < 0 && c.Type == api.ColumnTypeDatetime {
				basetime = i
				ret.Columns[i].Flag |= api.ColumnFlagBasetime | api.ColumnFlagNotNull
			}
		}
		if tagName < 0 || basetime < 0 {
			return nil, fmt.Errorf("tag table %s requires a varchar name and a datetime column", name)
		}
	}
	if len(ret.Columns) == 0 || (typ == api.TableTypeLog && len(ret.Columns) == 1) {
		return nil, fmt.Errorf("table %s has no columns", name)
	}
	return ret, nil
}

// Totals are the rows accepted and rejected since the engine started.
func (t *Table) Totals() (int64, int64) {
	return t.success.Load(), t.failure.Load()
}

// validate decodes the row and checks the column constraints.
// A zero code means the row is accepted.
func (t *Table) validate(row []byte, endian cmi.Endian) ([]cmi.Param, int, string) {
	values, err := cmi.DecodeRow(t.Columns, row, endian)
	if err != nil {
		return nil, cmi.ErrnoMalformedRow, err.Error()
	}
	for i, col := range t.Columns {
		v := values[i]
		if v.IsNull() {
			if col.NotNull() {
				return nil, cmi.ErrnoNotNull, fmt.Sprintf("column %s is NOT NULL", col.Name)
			}
			continue
		}
		if cmi.FieldWidth(col.Type) > 0 {
			continue
		}
		if col.Length > 0 && len(v.Bytes()) > col.Length {
			return nil, cmi.ErrnoTooLong, fmt.Sprintf("column %s value length %d exceeds %d", col.Name, len(v.Bytes()), col.Length)
		}
		if col.Type == api.ColumnTypeJSON && !gjson.ValidBytes(v.Bytes()) {
			return nil, cmi.ErrnoInvalidJSON, fmt.Sprintf("column %s is not a valid json", col.Name)
		}
	}
	return values, 0, ""
}

type Catalog struct {
	tables map[string]*Table
}

func NewCatalog(configs []TableConfig) (*Catalog, error) {
	ret := &Catalog{tables: map[string]*Table{}}
	for _, tc := range configs {
		t, err := NewTable(tc)
		if err != nil {
			return nil, err
		}
		if _, ok := ret.tables[t.Name]; ok {
			return nil, fmt.Errorf("duplicate table %s", t.Name)
		}
		ret.tables[t.Name] = t
	}
	return ret, nil
}

func (c *Catalog) Lookup(name string) (*Table, bool) {
	t, ok := c.tables[strings.ToUpper(name)]
	return t, ok
}

func (c *Catalog) Names() []string {
	ret := make([]string, 0, len(c.tables))
	for n := range c.tables {
		ret = append(ret, n)
	}
	sort.Strings(ret)
	return ret
}
