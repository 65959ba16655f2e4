package machnet

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
)

// memTransport is an in-memory engine. Rows are accepted unless reject
// says otherwise.
type memTransport struct {
	mu         sync.Mutex
	endian     cmi.Endian
	tables     map[string]*AppendOpenResult
	open       map[uint32]string
	batches    [][][]byte
	freed      []uint32
	closed     bool
	closeCalls int
	success    int64
	failure    int64

	reject    func(row []byte) (int, string, bool)
	processed int
	dataErr   error
	sendDelay time.Duration

	inflight atomic.Int32
	overlap  atomic.Bool
}

var _ Transport = (*memTransport)(nil)

func newMemTransport() *memTransport {
	return &memTransport{
		tables: map[string]*AppendOpenResult{},
		open:   map[uint32]string{},
	}
}

func (m *memTransport) addTable(name string, typ api.TableType, cols ...cmi.ColumnMeta) {
	m.mu.Lock()
	m.tables[name] = &AppendOpenResult{TableType: typ, Columns: cols}
	m.mu.Unlock()
}

func (m *memTransport) Endian() cmi.Endian { return m.endian }

func (m *memTransport) AppendOpen(stmtID uint32, table string, errCheckCount int) (*AppendOpenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.tables[table]
	if !ok {
		return nil, cmi.MakeServerErr(cmi.ErrnoUnknownTable, fmt.Sprintf("table '%s' does not exist", table))
	}
	if _, ok := m.open[stmtID]; ok {
		return nil, cmi.MakeServerErr(cmi.ErrnoAlreadyOpen, "append already open")
	}
	m.open[stmtID] = table
	cols := append([]cmi.ColumnMeta(nil), res.Columns...)
	return &AppendOpenResult{TableType: res.TableType, Columns: cols}, nil
}

func (m *memTransport) AppendData(stmtID uint32, rows [][]byte) (*AppendResult, error) {
	if m.inflight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inflight.Add(-1)
	if m.sendDelay > 0 {
		time.Sleep(m.sendDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dataErr != nil {
		return nil, m.dataErr
	}
	batch := make([][]byte, len(rows))
	for i, r := range rows {
		batch[i] = append([]byte(nil), r...)
	}
	m.batches = append(m.batches, batch)

	ret := &AppendResult{Processed: len(rows)}
	if m.processed > 0 && m.processed < len(rows) {
		ret.Processed = m.processed
	}
	for i := 0; i < ret.Processed; i++ {
		if m.reject != nil {
			if code, msg, bad := m.reject(rows[i]); bad {
				ret.Rejected = append(ret.Rejected, RowOutcome{Index: i, Code: code, Msg: msg})
				m.failure++
				continue
			}
		}
		m.success++
	}
	return ret, nil
}

func (m *memTransport) AppendClose(stmtID uint32) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if _, ok := m.open[stmtID]; !ok {
		return 0, 0, cmi.MakeServerErr(cmi.ErrnoNotOpen, "append not open")
	}
	delete(m.open, stmtID)
	return m.success, m.failure, nil
}

func (m *memTransport) FreeStmt(stmtID uint32) error {
	m.mu.Lock()
	m.freed = append(m.freed, stmtID)
	m.mu.Unlock()
	return nil
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memTransport) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]int, len(m.batches))
	for i, b := range m.batches {
		ret[i] = len(b)
	}
	return ret
}

func (m *memTransport) sentRows() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret [][]byte
	for _, b := range m.batches {
		ret = append(ret, b...)
	}
	return ret
}
