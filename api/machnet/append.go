package machnet

import (
	"sync"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/machbase/neo-append/mods/logging"
)

type sessionConfig struct {
	errCheckCount int
	maxRows       int
	maxBytes      int
	interval      time.Duration
	callback      ErrorCallback
	location      *time.Location
}

// appendSession buffers encoded rows of one table and sends them in
// enqueue order. mu guards the buffer, state and counters; sendMu is held
// for the whole of a send so batches never overlap or reorder.
type appendSession struct {
	stmt      *StmtHandle
	tr        Transport
	table     string
	tableType api.TableType
	columns   []cmi.ColumnMeta
	timeIdx   int
	encOpts   cmi.EncodeOptions
	log       logging.Log
	metrics   *appendMetrics

	mu           sync.Mutex
	open         bool
	fatal        error
	pending      []cmi.EncodedRow
	pendingBytes int
	policy       flushPolicy
	callback     ErrorCallback
	success      int64
	failure      int64

	sendMu sync.Mutex

	tickerMu sync.Mutex
	ticker   *intervalFlusher
}

func newAppendSession(stmt *StmtHandle, table string, res *AppendOpenResult, cfg sessionConfig) *appendSession {
	s := &appendSession{
		stmt:      stmt,
		tr:        stmt.conn.transport,
		table:     table,
		tableType: res.TableType,
		columns:   res.Columns,
		timeIdx:   -1,
		encOpts:   cmi.EncodeOptions{Endian: stmt.conn.transport.Endian(), Location: cfg.location},
		log:       logging.GetLog("append-" + table),
		metrics:   newAppendMetrics(table),
		open:      true,
		callback:  cfg.callback,
		policy:    flushPolicy{maxRows: cfg.maxRows, maxBytes: cfg.maxBytes},
	}
	for i, c := range s.columns {
		if c.Flag&api.ColumnFlagArrivalTime != 0 {
			s.timeIdx = i
			break
		}
	}
	if s.timeIdx < 0 && s.tableType == api.TableTypeTag {
		s.timeIdx = 1
		for i, c := range s.columns {
			if c.Flag&api.ColumnFlagBasetime != 0 {
				s.timeIdx = i
				break
			}
		}
	}
	s.policy = s.policy.withDefaults()
	if cfg.interval > 0 {
		s.setInterval(cfg.interval)
	}
	s.log.Debugf("append open stmt=%d type=%s columns=%d check=%d", stmt.id, s.tableType, len(s.columns), cfg.errCheckCount)
	return s
}

func (s *appendSession) setCallback(cb ErrorCallback) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

func (s *appendSession) setThresholds(maxRows int, maxBytes int) {
	s.mu.Lock()
	s.policy.maxRows, s.policy.maxBytes = maxRows, maxBytes
	s.policy = s.policy.withDefaults()
	s.mu.Unlock()
}

func (s *appendSession) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *appendSession) appendData(params []cmi.Param) error {
	if s.timeIdx >= 0 && s.tableType == api.TableTypeLog && len(params) == len(s.columns)-1 {
		params = insertParam(params, s.timeIdx, cmi.DateTimeNow())
	}
	return s.append(params)
}

func (s *appendSession) appendDataByTime(ts time.Time, params []cmi.Param) error {
	if !s.isOpen() {
		return api.ErrSessionClosed
	}
	if s.timeIdx < 0 {
		return api.ErrNotLogTable(s.table)
	}
	if len(params) != len(s.columns)-1 {
		return api.ErrColumnCount(s.table, len(s.columns)-1, len(params))
	}
	return s.append(insertParam(params, s.timeIdx, cmi.DateTimeOf(ts)))
}

func insertParam(params []cmi.Param, idx int, p cmi.Param) []cmi.Param {
	ret := make([]cmi.Param, 0, len(params)+1)
	ret = append(ret, params[:idx]...)
	ret = append(ret, p)
	return append(ret, params[idx:]...)
}

// append encodes params and buffers the row. Reaching a threshold
// flushes inline before returning.
func (s *appendSession) append(params []cmi.Param) error {
	if !s.isOpen() {
		return api.ErrSessionClosed
	}
	row, err := cmi.EncodeRow(s.columns, params, s.encOpts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return api.ErrSessionClosed
	}
	if s.fatal != nil {
		err := s.fatal
		s.mu.Unlock()
		return err
	}
	s.pending = append(s.pending, row)
	s.pendingBytes += len(row.Data)
	full := s.policy.reached(len(s.pending), s.pendingBytes)
	s.mu.Unlock()
	s.metrics.enqueued.Inc(1)

	if full {
		return s.flush()
	}
	return nil
}

// flush sends what is buffered when the send lock is acquired.
func (s *appendSession) flush() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.pendingBytes = 0
	fatal := s.fatal
	cb := s.callback
	s.mu.Unlock()

	if fatal != nil {
		return fatal
	}
	if len(batch) == 0 {
		return nil
	}

	rows := stampRows(batch, s.encOpts.Endian)
	started := time.Now()
	result, err := s.tr.AppendData(s.stmt.id, rows)
	s.metrics.flushes.Inc(1)
	s.metrics.latency.UpdateSince(started)
	if err != nil {
		return s.failTransport(rows, err, cb)
	}
	s.record(rows, result, cb)
	return nil
}

func stampRows(batch []cmi.EncodedRow, endian cmi.Endian) [][]byte {
	now := time.Now()
	rows := make([][]byte, len(batch))
	for i, r := range batch {
		r.Stamp(now, endian)
		rows[i] = r.Data
	}
	return rows
}

// failTransport makes the session fail permanently. The rows of the batch
// and anything still buffered are counted and reported as failures.
func (s *appendSession) failTransport(rows [][]byte, cause error, cb ErrorCallback) error {
	terr := api.ErrTransport("append data", cause)
	s.mu.Lock()
	s.fatal = terr
	rest := s.pending
	s.pending = nil
	s.pendingBytes = 0
	s.mu.Unlock()

	rows = append(rows, stampRows(rest, s.encOpts.Endian)...)
	s.log.Errorf("append data stmt=%d failed, %d rows dropped, %s", s.stmt.id, len(rows), cause.Error())
	msg := terr.Error()
	for _, row := range rows {
		s.reportRow(cb, cmi.ErrnoTransport, msg, row)
	}
	s.mu.Lock()
	s.failure += int64(len(rows))
	s.mu.Unlock()
	s.metrics.failure.Inc(int64(len(rows)))
	return terr
}

func (s *appendSession) counts() (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success, s.failure, s.fatal
}

// close stops the interval flusher, waiting for a running tick, sends the
// remaining rows and ends the session on the engine.
func (s *appendSession) close() (int64, int64, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return 0, 0, api.ErrSessionClosed
	}
	s.open = false
	s.mu.Unlock()

	s.stopInterval()
	_ = s.flush()

	success, failure, fatal := s.counts()
	if fatal != nil {
		s.log.Warnf("append close stmt=%d after failure success=%d fail=%d", s.stmt.id, success, failure)
		return success, failure, fatal
	}
	engSuccess, engFailure, err := s.tr.AppendClose(s.stmt.id)
	if err != nil {
		err = cmi.AppendErrorOf(err)
		if !api.IsAppendError(err) {
			err = api.ErrTransport("append close", err)
		}
		s.log.Errorf("append close stmt=%d, %s", s.stmt.id, err.Error())
		return success, failure, err
	}
	if engSuccess != success || engFailure != failure {
		s.log.Warnf("append close stmt=%d engine reports success=%d fail=%d, client success=%d fail=%d",
			s.stmt.id, engSuccess, engFailure, success, failure)
	}
	s.log.Debugf("append close stmt=%d success=%d fail=%d", s.stmt.id, success, failure)
	return success, failure, nil
}
