package engine

import (
	"testing"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/stretchr/testify/require"
)

var exampleTable = TableConfig{
	Name: "example",
	Type: "log",
	Columns: []ColumnConfig{
		{Name: "id", Type: "long"},
		{Name: "name", Type: "varchar", Length: 10, NotNull: true},
		{Name: "doc", Type: "json"},
	},
}

func TestNewTable(t *testing.T) {
	tbl, err := NewTable(exampleTable)
	require.NoError(t, err)
	require.Equal(t, "EXAMPLE", tbl.Name)
	require.Equal(t, api.TableTypeLog, tbl.Type)
	require.Equal(t, []cmi.ColumnMeta{
		{Name: ArrivalTimeColumn, Type: api.ColumnTypeDatetime, Flag: api.ColumnFlagArrivalTime},
		{Name: "ID", Type: api.ColumnTypeLong},
		{Name: "NAME", Type: api.ColumnTypeVarchar, Length: 10, Flag: api.ColumnFlagNotNull},
		{Name: "DOC", Type: api.ColumnTypeJSON},
	}, tbl.Columns)

	tag, err := NewTable(TableConfig{Name: "tag", Type: "tag"})
	require.NoError(t, err)
	require.Equal(t, api.TableTypeTag, tag.Type)
	require.Len(t, tag.Columns, 3)
	require.True(t, tag.Columns[0].Column().IsTagName())
	require.True(t, tag.Columns[1].Column().IsBaseTime())

	tag, err = NewTable(TableConfig{Name: "tag2", Type: "tag", Columns: []ColumnConfig{
		{Name: "sensor", Type: "varchar", Length: 40},
		{Name: "ts", Type: "datetime"},
		{Name: "value", Type: "double"},
		{Name: "addr", Type: "ipv4"},
	}})
	require.NoError(t, err)
	require.Equal(t, api.ColumnFlagTagName|api.ColumnFlagNotNull, tag.Columns[0].Flag)
	require.Equal(t, api.ColumnFlagBasetime|api.ColumnFlagNotNull, tag.Columns[1].Flag)

	for _, tc := range []TableConfig{
		{Name: ""},
		{Name: "t", Type: "fixed", Columns: []ColumnConfig{{Name: "a", Type: "long"}}},
		{Name: "t", Type: "nope"},
		{Name: "t"},
		{Name: "t", Columns: []ColumnConfig{{Name: "a", Type: "long"}, {Name: "A", Type: "long"}}},
		{Name: "t", Columns: []ColumnConfig{{Name: "a", Type: "decimal"}}},
		{Name: "t", Columns: []ColumnConfig{{Name: "_arrival_time", Type: "datetime"}}},
		{Name: "t", Type: "tag", Columns: []ColumnConfig{{Name: "v", Type: "double"}}},
	} {
		_, err := NewTable(tc)
		require.Error(t, err, "%+v", tc)
	}
}

func TestCatalog(t *testing.T) {
	cat, err := NewCatalog([]TableConfig{exampleTable, {Name: "tag", Type: "tag"}})
	require.NoError(t, err)
	require.Equal(t, []string{"EXAMPLE", "TAG"}, cat.Names())
	tbl, ok := cat.Lookup("Example")
	require.True(t, ok)
	require.Equal(t, "EXAMPLE", tbl.Name)
	_, ok = cat.Lookup("none")
	require.False(t, ok)

	_, err = NewCatalog([]TableConfig{exampleTable, exampleTable})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tbl, err := NewTable(exampleTable)
	require.NoError(t, err)

	// encoded without the precision so the engine sees the long value
	loose := append([]cmi.ColumnMeta(nil), tbl.Columns...)
	loose[2].Length = 0
	encode := func(params ...cmi.Param) []byte {
		row, err := cmi.EncodeRow(loose, params, cmi.EncodeOptions{Endian: cmi.BigEndian})
		require.NoError(t, err)
		return row.Data
	}
	now := cmi.DateTime(1700000000000000000)

	values, code, _ := tbl.validate(encode(now, cmi.Int64(1), cmi.Varchar("a"), cmi.JSON(`{"k":1}`)), cmi.BigEndian)
	require.Zero(t, code)
	require.Equal(t, int64(1), values[1].Int())

	_, code, _ = tbl.validate(encode(now, cmi.Int64(1), cmi.Varchar("a"), cmi.Null()), cmi.BigEndian)
	require.Zero(t, code)

	_, code, msg := tbl.validate(encode(now, cmi.Int64(1), cmi.Null(), cmi.Null()), cmi.BigEndian)
	require.Equal(t, cmi.ErrnoNotNull, code)
	require.Contains(t, msg, "NAME")

	_, code, _ = tbl.validate(encode(now, cmi.Int64(1), cmi.Varchar("0123456789A"), cmi.Null()), cmi.BigEndian)
	require.Equal(t, cmi.ErrnoTooLong, code)

	_, code, _ = tbl.validate(encode(now, cmi.Int64(1), cmi.Varchar("a"), cmi.JSON(`{"k":`)), cmi.BigEndian)
	require.Equal(t, cmi.ErrnoInvalidJSON, code)

	_, code, _ = tbl.validate([]byte{0, 0, 0}, cmi.BigEndian)
	require.Equal(t, cmi.ErrnoMalformedRow, code)
}
