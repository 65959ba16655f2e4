package cmi

import (
	"net"
	"testing"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/stretchr/testify/require"
)

func TestEncodeRowLayout(t *testing.T) {
	columns := []ColumnMeta{
		{Name: "ID", Type: api.ColumnTypeShort},
		{Name: "NAME", Type: api.ColumnTypeVarchar, Length: 10},
		{Name: "VALUE", Type: api.ColumnTypeDouble},
	}
	row, err := EncodeRow(columns, []Param{Int16(7), Varchar("ab"), Null()}, EncodeOptions{Endian: LittleEndian})
	require.NoError(t, err)
	require.Empty(t, row.NowOffsets)
	require.Equal(t, []byte{
		0x00,                   // not compressed
		0x01, 0x00, 0x00, 0x00, // null bitmap length
		0x20,       // third column is null
		0x07, 0x00, // ID
		0x02, 0x00, 0x00, 0x00, 'a', 'b', // NAME
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xef, 0x7f, // DBL_MAX
	}, row.Data)

	row, err = EncodeRow(columns, []Param{Int16(7), Varchar("ab"), Float64(1)}, EncodeOptions{Endian: BigEndian})
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x00,
		0x00, 0x00, 0x00, 0x01,
		0x00,
		0x00, 0x07,
		0x00, 0x00, 0x00, 0x02, 'a', 'b',
		0x3f, 0xf0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}, row.Data)
}

func TestEncodeRowNullSentinels(t *testing.T) {
	tests := []struct {
		typ    api.ColumnType
		expect []byte
	}{
		{api.ColumnTypeShort, []byte{0x80, 0x00}},
		{api.ColumnTypeUShort, []byte{0xff, 0xff}},
		{api.ColumnTypeInteger, []byte{0x80, 0x00, 0x00, 0x00}},
		{api.ColumnTypeUInteger, []byte{0xff, 0xff, 0xff, 0xff}},
		{api.ColumnTypeLong, []byte{0x80, 0, 0, 0, 0, 0, 0, 0}},
		{api.ColumnTypeULong, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{api.ColumnTypeFloat, []byte{0x7f, 0x7f, 0xff, 0xff}},
		{api.ColumnTypeDouble, []byte{0x7f, 0xef, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{api.ColumnTypeDatetime, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{api.ColumnTypeIPv4, []byte{0, 0, 0, 0, 0}},
		{api.ColumnTypeIPv6, make([]byte, 17)},
		{api.ColumnTypeVarchar, []byte{0, 0, 0, 0}},
		{api.ColumnTypeJSON, []byte{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		row, err := EncodeRow([]ColumnMeta{{Name: "C", Type: tt.typ}}, []Param{Null()}, EncodeOptions{Endian: BigEndian})
		require.NoError(t, err, tt.typ.String())
		require.Equal(t, byte(0x80), row.Data[5], tt.typ.String())
		require.Equal(t, tt.expect, row.Data[6:], tt.typ.String())
	}
}

func TestEncodeRowNullBitmap(t *testing.T) {
	columns := make([]ColumnMeta, 9)
	params := make([]Param, 9)
	for i := range columns {
		columns[i] = ColumnMeta{Name: "C", Type: api.ColumnTypeInteger}
		params[i] = Int32(int32(i))
	}
	params[0] = Null()
	params[8] = Null()
	row, err := EncodeRow(columns, params, EncodeOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x00, 0x00, 0x00}, row.Data[1:5])
	require.Equal(t, []byte{0x80, 0x80}, row.Data[5:7])
	require.Equal(t, 7+9*4, len(row.Data))
}

func TestEncodeRowEmptyVariable(t *testing.T) {
	columns := []ColumnMeta{{Name: "S", Type: api.ColumnTypeVarchar}}
	row, err := EncodeRow(columns, []Param{Varchar("")}, EncodeOptions{})
	require.NoError(t, err)
	require.Equal(t, byte(0x00), row.Data[5])
	require.Equal(t, []byte{0, 0, 0, 0}, row.Data[6:])

	decoded, err := DecodeRow(columns, row.Data, LittleEndian)
	require.NoError(t, err)
	require.False(t, decoded[0].IsNull())
	require.Empty(t, decoded[0].Bytes())
}

func TestEncodeRowAddress(t *testing.T) {
	columns := []ColumnMeta{
		{Name: "V4", Type: api.ColumnTypeIPv4},
		{Name: "V6", Type: api.ColumnTypeIPv6},
	}
	row, err := EncodeRow(columns, []Param{IPString("192.168.1.10"), IPv4(net.ParseIP("10.0.0.1"))}, EncodeOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte{4, 192, 168, 1, 10}, row.Data[6:11])
	require.Equal(t, byte(6), row.Data[11])
	require.Equal(t, net.ParseIP("10.0.0.1").To16(), net.IP(row.Data[12:28]))

	row, err = EncodeRow(columns, []Param{IPNull(), IPString("::1")}, EncodeOptions{})
	require.NoError(t, err)
	require.Equal(t, byte(0x80), row.Data[5])
	require.Equal(t, []byte{0, 0, 0, 0, 0}, row.Data[6:11])

	_, err = EncodeRow(columns, []Param{IPString("not-an-address"), IPNull()}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrInvalidAddress)

	_, err = EncodeRow(columns, []Param{IPString("::1"), IPNull()}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrInvalidAddress)
}

func TestEncodeRowErrors(t *testing.T) {
	columns := []ColumnMeta{
		{Name: "NAME", Type: api.ColumnTypeVarchar, Length: 4},
		{Name: "TIME", Type: api.ColumnTypeDatetime},
	}
	_, err := EncodeRow(columns, []Param{Varchar("a")}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrSchemaMismatch)

	_, err = EncodeRow(columns, []Param{Int32(1), DateTime(0)}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrTypeMismatch)

	_, err = EncodeRow(columns, []Param{Varchar("abcde"), DateTime(0)}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrInvalidLength)

	_, err = EncodeRow(columns, []Param{Varchar("abcd"), DateTimeFields(DateTimeStruct{Year: 2024, Month: 13, Day: 1})}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrMalformedDateTime)

	_, err = EncodeRow(columns, []Param{Varchar("abcd"), DateTimeFields(DateTimeStruct{Year: 2023, Month: 2, Day: 29})}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrMalformedDateTime)

	_, err = EncodeRow(columns, []Param{Varchar("abcd"), DateTimeString("yesterday", "DEFAULT")}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrMalformedDateTime)

	_, err = EncodeRow(columns, []Param{Varchar("abcd"), Int64(0)}, EncodeOptions{})
	require.ErrorIs(t, err, api.ErrTypeMismatch)
}

func TestEncodeRowDateTime(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	columns := []ColumnMeta{
		{Name: "A", Type: api.ColumnTypeDatetime},
		{Name: "B", Type: api.ColumnTypeDatetime},
		{Name: "C", Type: api.ColumnTypeDatetime},
		{Name: "D", Type: api.ColumnTypeDatetime},
	}
	expect := time.Date(2024, 3, 1, 9, 30, 0, 0, seoul)
	row, err := EncodeRow(columns, []Param{
		DateTimeOf(expect),
		DateTimeString("2024-03-01 09:30:00", "DEFAULT"),
		DateTimeFields(DateTimeStruct{Year: 2024, Month: 3, Day: 1, Hour: 9, Minute: 30}),
		DateTimeNow(),
	}, EncodeOptions{Endian: BigEndian, Location: seoul})
	require.NoError(t, err)
	require.Equal(t, []int{6 + 3*8}, row.NowOffsets)

	now := time.Now()
	row.Stamp(now, BigEndian)

	decoded, err := DecodeRow(columns, row.Data, BigEndian)
	require.NoError(t, err)
	require.Equal(t, expect.UnixNano(), decoded[0].Nanos())
	require.Equal(t, expect.UnixNano(), decoded[1].Nanos())
	require.Equal(t, expect.UnixNano(), decoded[2].Nanos())
	require.Equal(t, now.UnixNano(), decoded[3].Nanos())
}

func TestEncodeRowCopiesCallerData(t *testing.T) {
	columns := []ColumnMeta{{Name: "B", Type: api.ColumnTypeBinary}}
	buf := []byte{1, 2, 3}
	row, err := EncodeRow(columns, []Param{Binary(buf)}, EncodeOptions{})
	require.NoError(t, err)
	buf[0] = 9
	require.Equal(t, []byte{3, 0, 0, 0, 1, 2, 3}, row.Data[6:])
}
