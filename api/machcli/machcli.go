package machcli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/machbase/neo-append/api/machnet"
)

func errorWithCause(h machnet.Handle, cause error) error {
	if cause == nil {
		return nil
	}
	code, msg, err := machnet.Error(h)
	if err != nil || code == 0 || msg == "" {
		return cause
	}
	return fmt.Errorf("MACHCLI-ERR-%d, %w", code, cause)
}

type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Alternatives   []string
	ConnectTimeout time.Duration
	// AutoFlush flushes every appender of the connection each 100ms.
	AutoFlush bool
}

type Database struct {
	Config
	env *machnet.EnvHandle
}

func NewDatabase(conf *Config) (*Database, error) {
	env, err := machnet.Initialize()
	if err != nil {
		return nil, err
	}
	ret := &Database{Config: *conf, env: env}
	if ret.Host == "" {
		ret.Host = "127.0.0.1"
	}
	if ret.Port == 0 {
		ret.Port = 5656
	}
	return ret, nil
}

func (db *Database) Close() error {
	return db.env.Finalize()
}

func (db *Database) connectionString() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "SERVER=%s;PORT_NO=%d;UID=%s;PWD=%s", db.Host, db.Port, db.User, db.Password)
	if db.ConnectTimeout > 0 {
		fmt.Fprintf(sb, ";CONNECTION_TIMEOUT=%d", db.ConnectTimeout.Milliseconds())
	}
	if len(db.Alternatives) > 0 {
		fmt.Fprintf(sb, ";ALTERNATIVE_SERVERS=%s", strings.Join(db.Alternatives, ","))
	}
	return sb.String()
}

func (db *Database) Connect(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := db.env.Connect(db.connectionString())
	if err != nil {
		return nil, errorWithCause(db.env.Handle(), err)
	}
	return db.wrap(conn)
}

// ConnectWith makes a connection over tr instead of dialing.
func (db *Database) ConnectWith(tr machnet.Transport) (*Conn, error) {
	conn, err := db.env.ConnectWith(tr)
	if err != nil {
		return nil, err
	}
	return db.wrap(conn)
}

func (db *Database) wrap(conn *machnet.ConnHandle) (*Conn, error) {
	if db.AutoFlush {
		if err := conn.SetAppendFlush(true); err != nil {
			_ = conn.Disconnect()
			return nil, err
		}
	}
	return &Conn{db: db, handle: conn}, nil
}

type Conn struct {
	db     *Database
	handle *machnet.ConnHandle
	broken atomic.Bool
}

func (c *Conn) Close() error {
	return c.handle.Disconnect()
}

// ShouldEvict reports a connection that saw a transport failure.
func (c *Conn) ShouldEvict() bool {
	return c.broken.Load()
}

func (c *Conn) Appender(ctx context.Context, tableName string, opts ...api.AppenderOption) (api.Appender, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := &Appender{
		conn:       c,
		tableName:  strings.ToUpper(tableName),
		timeformat: "",
		tz:         time.UTC,
	}
	stmt, err := c.handle.AllocStmt()
	if err != nil {
		return nil, errorWithCause(c.handle.Handle(), err)
	}
	ret.stmt = stmt

	errCheckCount := 0
	for _, opt := range opts {
		switch o := opt.(type) {
		case *api.AppenderOptionBuffer:
			err = stmt.SetAppendBuffer(o.MaxRows, o.MaxBytes)
		case *api.AppenderOptionInterval:
			err = stmt.SetFlushInterval(int(o.Interval.Milliseconds()))
		case *api.AppenderOptionErrorCheck:
			errCheckCount = o.Count
		case *api.AppenderOptionTimeformat:
			ret.timeformat = cmi.GetTimeformat(o.Format)
			if o.Location != nil {
				ret.tz = o.Location
			}
			stmt.SetTimeLocation(ret.tz)
		case *api.AppenderOptionRejectHandler:
			fn := o.Handler
			err = stmt.SetErrorCallback(func(_ *machnet.StmtHandle, code int, msg string, row []byte) {
				fn(code, msg, row)
			})
		default:
			err = fmt.Errorf("unknown option type-%T", o)
		}
		if err != nil {
			_ = stmt.Free()
			return nil, err
		}
	}

	if err := stmt.AppendOpen(ret.tableName, errCheckCount); err != nil {
		err = errorWithCause(stmt.Handle(), err)
		_ = stmt.Free()
		return nil, err
	}
	metas, tableType, err := stmt.AppendColumns()
	if err != nil {
		_ = stmt.Free()
		return nil, err
	}
	timeIdx, err := stmt.AppendTimeIndex()
	if err != nil {
		_ = stmt.Free()
		return nil, err
	}
	ret.tableType = tableType
	ret.metas = metas
	ret.timeIdx = timeIdx
	for i, m := range metas {
		if tableType == api.TableTypeLog && m.Flag&api.ColumnFlagArrivalTime != 0 {
			continue
		}
		ret.visible = append(ret.visible, i)
	}
	for i := range metas {
		if i != timeIdx {
			ret.untimed = append(ret.untimed, i)
		}
	}
	return ret, nil
}

// Appender appends rows of loosely typed values to one table.
// For log tables the _ARRIVAL_TIME column is hidden: Append takes
// the other columns and the arrival time is the moment of send.
type Appender struct {
	conn      *Conn
	stmt      *machnet.StmtHandle
	tableName string
	tableType api.TableType
	metas     []cmi.ColumnMeta
	visible   []int
	untimed   []int
	timeIdx   int

	timeformat string
	tz         *time.Location

	closeOnce sync.Once
	success   int64
	fail      int64
	closeErr  error
}

var _ api.Appender = (*Appender)(nil)
var _ api.Flusher = (*Appender)(nil)

func (a *Appender) TableName() string {
	return a.tableName
}

func (a *Appender) TableType() api.TableType {
	return a.tableType
}

func (a *Appender) Columns() (api.Columns, error) {
	ret := make(api.Columns, 0, len(a.visible))
	for _, idx := range a.visible {
		ret = append(ret, a.metas[idx].Column())
	}
	return ret, nil
}

func (a *Appender) convert(indexes []int, values []any) ([]cmi.Param, error) {
	params := make([]cmi.Param, len(values))
	for i, v := range values {
		p, err := cmi.ConvertValue(a.metas[indexes[i]], v, a.timeformat, a.tz)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	return params, nil
}

func (a *Appender) allIndexes() []int {
	ret := make([]int, len(a.metas))
	for i := range ret {
		ret[i] = i
	}
	return ret
}

// Append takes a value per visible column, or a value per table
// column including _ARRIVAL_TIME.
func (a *Appender) Append(values ...any) error {
	var indexes []int
	switch len(values) {
	case len(a.visible):
		indexes = a.visible
	case len(a.metas):
		indexes = a.allIndexes()
	default:
		return api.ErrColumnCount(a.tableName, len(a.visible), len(values))
	}
	params, err := a.convert(indexes, values)
	if err != nil {
		return err
	}
	return a.observe(a.stmt.AppendData(params))
}

// AppendLogTime appends a row whose _ARRIVAL_TIME, or basetime of a tag
// table, is ts.
func (a *Appender) AppendLogTime(ts time.Time, values ...any) error {
	if a.timeIdx < 0 {
		return api.ErrNotLogTable(a.tableName)
	}
	if len(values) != len(a.untimed) {
		return api.ErrColumnCount(a.tableName, len(a.untimed), len(values))
	}
	params, err := a.convert(a.untimed, values)
	if err != nil {
		return err
	}
	return a.observe(a.stmt.AppendDataByTime(ts, params))
}

func (a *Appender) Flush() error {
	return a.observe(a.stmt.AppendFlush())
}

// Close flushes the pending rows and returns the number of success
// and fail rows. Later calls return the same result.
func (a *Appender) Close() (int64, int64, error) {
	a.closeOnce.Do(func() {
		a.success, a.fail, a.closeErr = a.stmt.AppendClose()
		_ = a.observe(a.closeErr)
		if err := a.stmt.Free(); err != nil && a.closeErr == nil {
			a.closeErr = errorWithCause(a.conn.handle.Handle(), err)
		}
	})
	return a.success, a.fail, a.closeErr
}

func (a *Appender) observe(err error) error {
	if err != nil && api.CodeOf(err) == api.ErrorCodeTransportFailure {
		a.conn.broken.Store(true)
	}
	return err
}

// WithInputColumns returns an appender taking values for the named
// columns only, in that order. Other columns are appended as NULL.
func (a *Appender) WithInputColumns(columns ...string) api.Appender {
	ret := &AppenderWithInputs{Appender: a}
	for _, col := range columns {
		in := api.AppenderInputColumn{Name: strings.ToUpper(col), Idx: -1}
		for vi, idx := range a.visible {
			if a.metas[idx].Name == in.Name {
				in.Idx = vi
				break
			}
		}
		ret.inputColumns = append(ret.inputColumns, in)
	}
	return ret
}

type AppenderWithInputs struct {
	*Appender
	inputColumns []api.AppenderInputColumn
}

var _ api.Appender = (*AppenderWithInputs)(nil)

func (ap *AppenderWithInputs) arrange(values []any) ([]any, error) {
	if len(ap.inputColumns) == 0 {
		return values, nil
	}
	if len(values) != len(ap.inputColumns) {
		return nil, api.ErrColumnCount(ap.tableName, len(ap.inputColumns), len(values))
	}
	ret := make([]any, len(ap.visible))
	for i, in := range ap.inputColumns {
		if in.Idx < 0 {
			return nil, api.NewAppendError(api.ErrorCodeSchemaMismatch, "column %s not found in %s", in.Name, ap.tableName)
		}
		ret[in.Idx] = values[i]
	}
	return ret, nil
}

func (ap *AppenderWithInputs) Append(values ...any) error {
	vals, err := ap.arrange(values)
	if err != nil {
		return err
	}
	return ap.Appender.Append(vals...)
}

// AppendLogTime places the values like Append does, the time column
// of the table is not an input column.
func (ap *AppenderWithInputs) AppendLogTime(ts time.Time, values ...any) error {
	vals, err := ap.arrange(values)
	if err != nil {
		return err
	}
	if ap.timeIdx < 0 {
		return api.ErrNotLogTable(ap.tableName)
	}
	untimed := make([]any, 0, len(ap.untimed))
	for vi, idx := range ap.visible {
		if idx != ap.timeIdx {
			untimed = append(untimed, vals[vi])
		}
	}
	return ap.Appender.AppendLogTime(ts, untimed...)
}

func (ap *AppenderWithInputs) WithInputColumns(columns ...string) api.Appender {
	return ap.Appender.WithInputColumns(columns...)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// ParseAddress reads "host:port", "tcp://host:port" or a bare port.
func ParseAddress(addr string) (string, int, error) {
	addr = strings.TrimPrefix(addr, "tcp://")
	if !strings.Contains(addr, ":") {
		port, err := parsePort(addr)
		return "127.0.0.1", port, err
	}
	idx := strings.LastIndex(addr, ":")
	host := addr[:idx]
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := parsePort(addr[idx+1:])
	return host, port, err
}
