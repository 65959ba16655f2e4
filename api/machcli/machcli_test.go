package machcli

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/machbase/neo-append/api/machnet"
	"github.com/machbase/neo-append/mods/engine"
	"github.com/stretchr/testify/require"
)

var testTables = []engine.TableConfig{
	{
		Name: "EXAMPLE",
		Columns: []engine.ColumnConfig{
			{Name: "ID", Type: "long"},
			{Name: "NAME", Type: "varchar", Length: 20, NotNull: true},
			{Name: "DOC", Type: "json"},
		},
	},
	{Name: "TAG", Type: "tag"},
}

func newEngine(t *testing.T) (*engine.Server, *Database) {
	t.Helper()
	svr, err := engine.NewServer(&engine.Config{ListenAddress: "127.0.0.1:0", Tables: testTables})
	require.NoError(t, err)
	require.NoError(t, svr.Start())
	t.Cleanup(svr.Stop)

	db, err := NewDatabase(&Config{
		Port:           svr.Addr().(*net.TCPAddr).Port,
		User:           "sys",
		Password:       "manager",
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return svr, db
}

func TestAppender(t *testing.T) {
	svr, db := newEngine(t)
	ctx := context.Background()
	conn, err := db.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	var mu sync.Mutex
	rejected := []int{}
	appender, err := conn.Appender(ctx, "example",
		api.WithAppenderBuffer(10, 0),
		api.WithAppenderRejectHandler(func(code int, msg string, row []byte) {
			mu.Lock()
			rejected = append(rejected, code)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)
	require.Equal(t, "EXAMPLE", appender.TableName())
	require.Equal(t, api.TableTypeLog, appender.TableType())
	cols, err := appender.Columns()
	require.NoError(t, err)
	require.Equal(t, []string{"ID", "NAME", "DOC"}, cols.Names())

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, appender.Append(1, "a", map[string]any{"x": 1}))
	require.NoError(t, appender.Append(ts, 2, "b", nil))
	require.NoError(t, appender.AppendLogTime(ts, 3, "c", `{"y":true}`))
	require.NoError(t, appender.Append(4, nil, nil))
	err = appender.Append(5, "e")
	require.ErrorIs(t, err, api.ErrSchemaMismatch)

	success, fail, err := appender.Close()
	require.NoError(t, err)
	require.Equal(t, int64(3), success)
	require.Equal(t, int64(1), fail)
	require.Equal(t, []int{cmi.ErrnoNotNull}, rejected)
	s2, f2, err := appender.Close()
	require.NoError(t, err)
	require.Equal(t, success, s2)
	require.Equal(t, fail, f2)

	rows, err := svr.Rows("EXAMPLE")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, `{"x":1}`, string(rows[0][3].Bytes()))
	require.Equal(t, ts.UnixNano(), rows[1][0].Nanos())
	require.Equal(t, ts.UnixNano(), rows[2][0].Nanos())
	require.True(t, rows[1][3].IsNull())
}

func TestAppenderTimeformat(t *testing.T) {
	svr, db := newEngine(t)
	ctx := context.Background()
	conn, err := db.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	appender, err := conn.Appender(ctx, "tag", api.WithAppenderTimeformat("ms", time.UTC))
	require.NoError(t, err)
	require.Equal(t, api.TableTypeTag, appender.TableType())
	require.NoError(t, appender.Append("sensor.1", int64(1714557600000), 1.5))
	require.NoError(t, appender.Append("sensor.1", "1714557601000", 2.5))
	require.NoError(t, appender.AppendLogTime(time.UnixMilli(1714557602000), "sensor.1", 3.5))
	require.Error(t, appender.Append("sensor.1", "yesterday", 1.0))
	success, fail, err := appender.Close()
	require.NoError(t, err)
	require.Equal(t, int64(3), success)
	require.Zero(t, fail)

	rows, err := svr.Rows("TAG")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		require.Equal(t, (1714557600000+int64(i)*1000)*int64(time.Millisecond), r[1].Nanos())
		require.Equal(t, 1.5+float64(i), r[2].Float())
	}
}

func TestAppenderInputColumns(t *testing.T) {
	svr, db := newEngine(t)
	ctx := context.Background()
	conn, err := db.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	appender, err := conn.Appender(ctx, "example")
	require.NoError(t, err)
	in := appender.WithInputColumns("name", "id")
	require.NoError(t, in.Append("x", 9))
	require.NoError(t, in.AppendLogTime(time.Unix(0, 100), "y", 10))
	require.ErrorIs(t, in.Append("x"), api.ErrSchemaMismatch)
	require.ErrorIs(t, appender.WithInputColumns("nope").Append(1), api.ErrSchemaMismatch)

	success, _, err := appender.Close()
	require.NoError(t, err)
	require.Equal(t, int64(2), success)
	rows, err := svr.Rows("EXAMPLE")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(9), rows[0][1].Int())
	require.Equal(t, "x", string(rows[0][2].Bytes()))
	require.True(t, rows[0][3].IsNull())
	require.Equal(t, int64(100), rows[1][0].Nanos())
}

func TestAppenderUnknownOptionAndTable(t *testing.T) {
	_, db := newEngine(t)
	ctx := context.Background()
	conn, err := db.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Appender(ctx, "not_exists")
	require.ErrorIs(t, err, api.ErrUnknownTable)
	require.Contains(t, err.Error(), "MACHCLI-ERR-2001")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = conn.Appender(canceled, "example")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBrokenConnection(t *testing.T) {
	svr, db := newEngine(t)
	ctx := context.Background()
	conn, err := db.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	appender, err := conn.Appender(ctx, "example")
	require.NoError(t, err)
	require.NoError(t, appender.Append(1, "a", nil))
	require.False(t, conn.ShouldEvict())

	svr.Stop()
	err = appender.(api.Flusher).Flush()
	require.ErrorIs(t, err, api.ErrTransportFailure)
	require.True(t, conn.ShouldEvict())
	_, fail, err := appender.Close()
	require.Error(t, err)
	require.Equal(t, int64(1), fail)
}

func TestConnectFailure(t *testing.T) {
	db, err := NewDatabase(&Config{Port: 1, ConnectTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, "127.0.0.1", db.Host)

	_, err = db.Connect(context.Background())
	require.ErrorIs(t, err, api.ErrTransportFailure)
	require.Contains(t, err.Error(), "MACHCLI-ERR-")
}

func TestConnectionString(t *testing.T) {
	db := &Database{Config: Config{
		Host:           "10.0.0.1",
		Port:           5656,
		User:           "sys",
		Password:       "manager",
		ConnectTimeout: 1500 * time.Millisecond,
		Alternatives:   []string{"10.0.0.2:5656", "10.0.0.3:5656"},
	}}
	require.Equal(t,
		"SERVER=10.0.0.1;PORT_NO=5656;UID=sys;PWD=manager;CONNECTION_TIMEOUT=1500;ALTERNATIVE_SERVERS=10.0.0.2:5656,10.0.0.3:5656",
		db.connectionString())
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr string
		host string
		port int
		err  bool
	}{
		{addr: "tcp://10.0.0.1:5656", host: "10.0.0.1", port: 5656},
		{addr: "localhost:5657", host: "localhost", port: 5657},
		{addr: ":5658", host: "127.0.0.1", port: 5658},
		{addr: "5659", host: "127.0.0.1", port: 5659},
		{addr: "host:0", err: true},
		{addr: "host:abc", err: true},
	}
	for _, tt := range tests {
		host, port, err := ParseAddress(tt.addr)
		if tt.err {
			require.Error(t, err, tt.addr)
			continue
		}
		require.NoError(t, err, tt.addr)
		require.Equal(t, tt.host, host, tt.addr)
		require.Equal(t, tt.port, port, tt.addr)
	}
}

func TestErrorWithCause(t *testing.T) {
	require.Nil(t, errorWithCause(machnet.Handle{}, nil))
	cause := errors.New("plain")
	require.Same(t, cause, errorWithCause(machnet.Handle{}, cause))
}
