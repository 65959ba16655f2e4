package machnet

import (
	"fmt"
	"sort"

	"github.com/machbase/neo-append/api/cmi"
)

// ErrorCallback receives a row that was not stored, as the exact bytes
// that were sent. It runs on the flushing goroutine, in send order, and
// must not call append methods of the same statement.
type ErrorCallback func(stmt *StmtHandle, code int, msg string, row []byte)

// record applies the engine's outcome of a batch to the counters.
// Rows past result.Processed were never looked at and count as failures.
func (s *appendSession) record(rows [][]byte, result *AppendResult, cb ErrorCallback) {
	processed := len(rows)
	var rejected []RowOutcome
	if result != nil {
		processed = min(max(result.Processed, 0), len(rows))
		rejected = append(rejected, result.Rejected...)
		sort.SliceStable(rejected, func(i, j int) bool { return rejected[i].Index < rejected[j].Index })
	}

	var success, failure int64
	next := 0
	for i, row := range rows {
		for next < len(rejected) && rejected[next].Index < i {
			next++
		}
		switch {
		case i >= processed:
			failure++
			s.reportRow(cb, cmi.ErrnoTransport, fmt.Sprintf("row %d not processed, engine stopped at %d", i, processed), row)
		case next < len(rejected) && rejected[next].Index == i:
			failure++
			s.reportRow(cb, rejected[next].Code, rejected[next].Msg, row)
			next++
		default:
			success++
		}
	}

	s.mu.Lock()
	s.success += success
	s.failure += failure
	s.mu.Unlock()
	s.metrics.success.Inc(success)
	s.metrics.failure.Inc(failure)
	if failure > 0 {
		s.log.Debugf("append data stmt=%d rows=%d fail=%d", s.stmt.id, len(rows), failure)
	}
}

func (s *appendSession) reportRow(cb ErrorCallback, code int, msg string, row []byte) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("append error callback panic, %v", r)
		}
	}()
	cb(s.stmt, code, msg, row)
}
