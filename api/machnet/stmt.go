package machnet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
)

type StmtHandle struct {
	handle  Handle
	mu      sync.Mutex
	conn    *ConnHandle
	id      uint32
	closed  bool
	lastErr lastError
	app     *appendSession

	// settings applied to the sessions opened on this statement
	interval    time.Duration
	callback    ErrorCallback
	bufferRows  int
	bufferBytes int
	location    *time.Location
}

func (stmt *StmtHandle) Handle() Handle { return stmt.handle }

// Error returns the last error code and message of the statement.
func (stmt *StmtHandle) Error() (int, string) { return stmt.lastErr.get() }

func (stmt *StmtHandle) ID() uint32 { return stmt.id }

func (stmt *StmtHandle) setErr(err error) error {
	stmt.lastErr.set(err)
	if err != nil {
		stmt.conn.lastErr.set(err)
	}
	return err
}

var errStmtFreed = api.NewAppendError(api.ErrorCodeSessionClosed, "statement freed")

// Free closes an open append session, then releases the statement.
func (stmt *StmtHandle) Free() error {
	stmt.mu.Lock()
	if stmt.closed {
		stmt.mu.Unlock()
		return nil
	}
	stmt.closed = true
	app := stmt.app
	stmt.app = nil
	stmt.mu.Unlock()

	var err error
	if app != nil {
		_, _, err = app.close()
	}
	if ferr := stmt.conn.transport.FreeStmt(stmt.id); ferr != nil && err == nil {
		err = ferr
	}
	stmt.conn.stmtIDs.release(stmt.id)
	stmt.conn.mu.Lock()
	delete(stmt.conn.stmts, stmt)
	stmt.conn.mu.Unlock()
	releaseHandle(stmt.handle)
	stmt.lastErr.set(err)
	return err
}

// SetAppendBuffer sets the row count and byte size that make an append
// flush inline. Zero keeps the current value.
func (stmt *StmtHandle) SetAppendBuffer(maxRows int, maxBytes int) error {
	if maxRows < 0 || maxBytes < 0 {
		return stmt.setErr(fmt.Errorf("invalid append buffer rows=%d bytes=%d", maxRows, maxBytes))
	}
	stmt.mu.Lock()
	defer stmt.mu.Unlock()
	if maxRows > 0 {
		stmt.bufferRows = maxRows
	}
	if maxBytes > 0 {
		stmt.bufferBytes = maxBytes
	}
	if stmt.app != nil {
		stmt.app.setThresholds(stmt.bufferRows, stmt.bufferBytes)
	}
	return nil
}

// SetFlushInterval flushes pending rows every ms milliseconds, 0 disables.
// It applies to the open session, if any, and to later ones.
func (stmt *StmtHandle) SetFlushInterval(ms int) error {
	if ms < 0 {
		return stmt.setErr(fmt.Errorf("invalid flush interval %d", ms))
	}
	stmt.mu.Lock()
	stmt.interval = time.Duration(ms) * time.Millisecond
	app := stmt.app
	stmt.mu.Unlock()
	if app != nil {
		app.setInterval(time.Duration(ms) * time.Millisecond)
	}
	return nil
}

// SetErrorCallback registers cb to receive every row that was not stored.
func (stmt *StmtHandle) SetErrorCallback(cb ErrorCallback) error {
	stmt.mu.Lock()
	defer stmt.mu.Unlock()
	stmt.callback = cb
	if stmt.app != nil {
		stmt.app.setCallback(cb)
	}
	return nil
}

// SetTimeLocation sets the zone of calendar datetime fields and zone-less layouts.
func (stmt *StmtHandle) SetTimeLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	stmt.mu.Lock()
	stmt.location = loc
	stmt.mu.Unlock()
}

func (stmt *StmtHandle) AppendOpen(table string, errCheckCount int) error {
	stmt.mu.Lock()
	defer stmt.mu.Unlock()
	if stmt.closed {
		return stmt.setErr(errStmtFreed)
	}
	if stmt.app != nil {
		return stmt.setErr(api.ErrAlreadyOpen)
	}
	if errCheckCount < 0 {
		errCheckCount = 0
	}
	res, err := stmt.conn.transport.AppendOpen(stmt.id, table, errCheckCount)
	if err != nil {
		err = cmi.AppendErrorOf(err)
		var se *cmi.StatusError
		if !api.IsAppendError(err) && !errors.As(err, &se) {
			err = api.ErrTransport("append open", err)
		}
		return stmt.setErr(err)
	}
	if len(res.Columns) == 0 {
		return stmt.setErr(api.NewAppendError(api.ErrorCodeSchemaMismatch, "table '%s' has no columns", table))
	}
	stmt.app = newAppendSession(stmt, table, res, sessionConfig{
		errCheckCount: errCheckCount,
		maxRows:       stmt.bufferRows,
		maxBytes:      stmt.bufferBytes,
		interval:      stmt.interval,
		callback:      stmt.callback,
		location:      stmt.location,
	})
	return stmt.setErr(nil)
}

func (stmt *StmtHandle) session() (*appendSession, error) {
	stmt.mu.Lock()
	defer stmt.mu.Unlock()
	if stmt.closed {
		return nil, errStmtFreed
	}
	if stmt.app == nil {
		return nil, api.ErrSessionClosed
	}
	return stmt.app, nil
}

// AppendColumns returns the columns and type of the open session's table.
func (stmt *StmtHandle) AppendColumns() ([]cmi.ColumnMeta, api.TableType, error) {
	app, err := stmt.session()
	if err != nil {
		return nil, 0, stmt.setErr(err)
	}
	return append([]cmi.ColumnMeta(nil), app.columns...), app.tableType, nil
}

// AppendTimeIndex returns the column AppendDataByTime fills, -1 if the
// table has none.
func (stmt *StmtHandle) AppendTimeIndex() (int, error) {
	app, err := stmt.session()
	if err != nil {
		return -1, stmt.setErr(err)
	}
	return app.timeIdx, nil
}

// AppendData encodes and buffers one row. For log tables the
// _ARRIVAL_TIME column may be omitted and is set when the row is sent.
func (stmt *StmtHandle) AppendData(params []cmi.Param) error {
	app, err := stmt.session()
	if err != nil {
		return stmt.setErr(err)
	}
	return stmt.setErr(app.appendData(params))
}

// AppendDataByTime buffers a row whose time is ts: the _ARRIVAL_TIME of a
// log table or the basetime column of a tag table.
func (stmt *StmtHandle) AppendDataByTime(ts time.Time, params []cmi.Param) error {
	app, err := stmt.session()
	if err != nil {
		return stmt.setErr(err)
	}
	return stmt.setErr(app.appendDataByTime(ts, params))
}

// AppendFlush sends the rows buffered so far and waits for their outcomes.
func (stmt *StmtHandle) AppendFlush() error {
	app, err := stmt.session()
	if err != nil {
		return stmt.setErr(err)
	}
	return stmt.setErr(app.flush())
}

// AppendClose flushes, ends the session and returns the cumulative
// success and failure counts.
func (stmt *StmtHandle) AppendClose() (int64, int64, error) {
	stmt.mu.Lock()
	if stmt.closed {
		stmt.mu.Unlock()
		return 0, 0, stmt.setErr(errStmtFreed)
	}
	app := stmt.app
	stmt.app = nil
	stmt.mu.Unlock()
	if app == nil {
		return 0, 0, stmt.setErr(api.ErrSessionClosed)
	}
	success, failure, err := app.close()
	return success, failure, stmt.setErr(err)
}
