package machnet

import (
	"bytes"
	"testing"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/stretchr/testify/require"
)

func TestHandleRegistry(t *testing.T) {
	tr := newMemTransport()
	tr.addTable("EXAMPLE", api.TableTypeLog, exampleColumns...)
	env, err := Initialize()
	require.NoError(t, err)
	conn, err := env.ConnectWith(tr)
	require.NoError(t, err)
	stmt, err := conn.AllocStmt()
	require.NoError(t, err)

	require.Equal(t, HandleEnv, env.Handle().Type)
	require.Equal(t, HandleConn, conn.Handle().Type)
	require.Equal(t, HandleStmt, stmt.Handle().Type)

	obj, err := Lookup(stmt.Handle())
	require.NoError(t, err)
	require.Same(t, stmt, obj)
	found, err := LookupStmt(stmt.Handle())
	require.NoError(t, err)
	require.Same(t, stmt, found)
	foundConn, err := LookupConn(conn.Handle())
	require.NoError(t, err)
	require.Same(t, conn, foundConn)

	_, err = LookupStmt(conn.Handle())
	require.ErrorIs(t, err, ErrInvalidHandle)

	// the last error is kept per handle
	require.ErrorIs(t, stmt.AppendOpen("NOT_EXISTS", 0), api.ErrUnknownTable)
	code, msg, err := Error(stmt.Handle())
	require.NoError(t, err)
	require.Equal(t, int(cmi.ErrnoUnknownTable), code)
	require.Contains(t, msg, "NOT_EXISTS")
	code, _, err = Error(conn.Handle())
	require.NoError(t, err)
	require.Equal(t, int(cmi.ErrnoUnknownTable), code)

	require.NoError(t, stmt.Free())
	_, err = Lookup(stmt.Handle())
	require.ErrorIs(t, err, ErrInvalidHandle)
	_, _, err = Error(stmt.Handle())
	require.ErrorIs(t, err, ErrInvalidHandle)
	require.Equal(t, []uint32{stmt.ID()}, tr.freed)

	// freed statements reject further use
	require.ErrorIs(t, stmt.AppendOpen("EXAMPLE", 0), api.ErrSessionClosed)
	require.NoError(t, stmt.Free())

	require.NoError(t, env.Finalize())
	_, err = Lookup(conn.Handle())
	require.ErrorIs(t, err, ErrInvalidHandle)
	_, err = Lookup(env.Handle())
	require.ErrorIs(t, err, ErrInvalidHandle)
	require.True(t, tr.closed)
}

func TestDisconnectFreesStatements(t *testing.T) {
	tr := newMemTransport()
	tr.addTable("EXAMPLE", api.TableTypeLog, exampleColumns...)
	env, err := Initialize()
	require.NoError(t, err)
	defer env.Finalize()
	conn, err := env.ConnectWith(tr)
	require.NoError(t, err)

	stmt1, err := conn.AllocStmt()
	require.NoError(t, err)
	stmt2, err := conn.AllocStmt()
	require.NoError(t, err)
	require.NotEqual(t, stmt1.ID(), stmt2.ID())

	require.NoError(t, stmt1.AppendOpen("EXAMPLE", 0))
	require.NoError(t, stmt1.AppendData(exampleRow(1)))

	require.NoError(t, conn.Disconnect())
	require.Equal(t, []int{1}, tr.batchSizes())
	require.ElementsMatch(t, []uint32{stmt1.ID(), stmt2.ID()}, tr.freed)
	require.True(t, tr.closed)

	_, err = conn.AllocStmt()
	require.ErrorIs(t, err, api.ErrSessionClosed)
	require.ErrorIs(t, conn.SetAppendFlush(true), api.ErrSessionClosed)
	require.NoError(t, conn.Disconnect())
}

func TestHandleString(t *testing.T) {
	require.Equal(t, "STMT#12", Handle{Type: HandleStmt, ID: 12}.String())
	require.Equal(t, "HANDLE-9#1", Handle{Type: HandleType(9), ID: 1}.String())
}

func TestStmtIDPool(t *testing.T) {
	pool := stmtIDPool{}
	for i := 0; i < stmtIDLimit; i++ {
		id, err := pool.next()
		require.NoError(t, err)
		require.Equal(t, uint32(i), id)
	}
	_, err := pool.next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "overflow")

	pool.release(5)
	pool.release(5)
	pool.release(stmtIDLimit + 1)
	id, err := pool.next()
	require.NoError(t, err)
	require.Equal(t, uint32(5), id)
	_, err = pool.next()
	require.Error(t, err)
}

func TestParseConnString(t *testing.T) {
	cfg, err := ParseConnString("SERVER=10.0.0.1; PORT_NO=5657;UID=sys;PWD=manager;CONNECTION_TIMEOUT=1500;ALTERNATIVE_SERVERS=10.0.0.2:5656,bad,10.0.0.3:5658")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", cfg.Host)
	require.Equal(t, 5657, cfg.Port)
	require.Equal(t, "sys", cfg.User)
	require.Equal(t, "manager", cfg.Password)
	require.Equal(t, 1500*time.Millisecond, cfg.Timeout)
	require.Equal(t, []string{"10.0.0.1:5657", "10.0.0.2:5656", "10.0.0.3:5658"}, cfg.endpoints())

	cfg, err = ParseConnString("uid=sys")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, defaultPort, cfg.Port)
	require.Equal(t, defaultConnectTimeout, cfg.Timeout)

	_, err = ParseConnString("PORT_NO=abc")
	require.Error(t, err)
	_, err = ParseConnString("PORT_NO=70000")
	require.Error(t, err)
	_, err = ParseConnString("CONNECTION_TIMEOUT=-1")
	require.Error(t, err)
}

func TestConnectUnreachable(t *testing.T) {
	env, err := Initialize()
	require.NoError(t, err)
	defer env.Finalize()

	_, err = env.Connect("SERVER=127.0.0.1;PORT_NO=1;CONNECTION_TIMEOUT=200")
	require.ErrorIs(t, err, api.ErrTransportFailure)
	code, _ := env.Error()
	require.Equal(t, int(api.ErrorCodeTransportFailure), code)
}

func messageUnits(t *testing.T, w *cmi.Writer) cmi.Units {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, cmi.WritePackets(buf, w.Packets()))
	msg, err := cmi.ReadMessage(buf)
	require.NoError(t, err)
	units, err := cmi.CollectUnits(msg.Body)
	require.NoError(t, err)
	return units
}

func TestParseAppendOpen(t *testing.T) {
	cols := []cmi.ColumnMeta{
		{Name: "_ARRIVAL_TIME", Type: api.ColumnTypeDatetime, Flag: api.ColumnFlagArrivalTime},
		{Name: "NAME", Type: api.ColumnTypeVarchar, Length: 100, Flag: api.ColumnFlagNotNull},
		{Name: "ADDR", Type: api.ColumnTypeIPv4},
	}
	w := cmi.NewWriter(cmi.AppendOpenProtocol, 3, 0)
	w.AddUInt64(cmi.RResultID, cmi.OKResult)
	w.AddUInt64(cmi.PTableTypeID, uint64(api.TableTypeLog))
	for _, c := range cols {
		w.AddString(cmi.PColNameID, c.Name)
		w.AddUInt64(cmi.PColTypeID, c.WireType())
		w.AddUInt64(cmi.PColFlagID, uint64(c.Flag))
	}
	units := messageUnits(t, w)
	require.NoError(t, cmi.ResultError(units))
	res, err := parseAppendOpen(units)
	require.NoError(t, err)
	require.Equal(t, api.TableTypeLog, res.TableType)
	require.Equal(t, cols, res.Columns)

	w = cmi.NewWriter(cmi.AppendOpenProtocol, 3, 0)
	w.AddString(cmi.PColNameID, "A")
	_, err = parseAppendOpen(messageUnits(t, w))
	require.Error(t, err)
}

func TestParseAppendData(t *testing.T) {
	w := cmi.NewWriter(cmi.AppendDataProtocol, 3, 0)
	w.AddUInt64(cmi.RResultID, cmi.OKResult)
	w.AddUInt64(cmi.XRowIndexID, 1)
	w.AddUInt64(cmi.XRowCodeID, cmi.ErrnoNotNull)
	w.AddString(cmi.XRowMessageID, "NAME is null")
	w.AddUInt64(cmi.XRowIndexID, 4)
	w.AddUInt64(cmi.XRowCodeID, cmi.ErrnoBatchAborted)
	w.AddString(cmi.XRowMessageID, "aborted")
	w.AddUInt64(cmi.XRowCountID, 5)

	res, err := parseAppendData(messageUnits(t, w), 8)
	require.NoError(t, err)
	require.Equal(t, 5, res.Processed)
	require.Equal(t, []RowOutcome{
		{Index: 1, Code: cmi.ErrnoNotNull, Msg: "NAME is null"},
		{Index: 4, Code: cmi.ErrnoBatchAborted, Msg: "aborted"},
	}, res.Rejected)

	w = cmi.NewWriter(cmi.AppendDataProtocol, 3, 0)
	w.AddUInt64(cmi.RResultID, cmi.OKResult)
	res, err = parseAppendData(messageUnits(t, w), 8)
	require.NoError(t, err)
	require.Equal(t, 8, res.Processed)
	require.Empty(t, res.Rejected)

	w = cmi.NewWriter(cmi.AppendDataProtocol, 3, 0)
	w.AddUInt64(cmi.XRowIndexID, 1)
	_, err = parseAppendData(messageUnits(t, w), 8)
	require.Error(t, err)
}
