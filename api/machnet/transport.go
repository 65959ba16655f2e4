package machnet

import (
	"fmt"
	"sync"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
)

// Transport is the boundary between an append session and the engine
// that stores its rows. NativeConn implements it over TCP.
//
// AppendData returns a non-nil error only when the connection itself
// failed; row level rejections are reported in AppendResult.
type Transport interface {
	Endian() cmi.Endian
	AppendOpen(stmtID uint32, table string, errCheckCount int) (*AppendOpenResult, error)
	AppendData(stmtID uint32, rows [][]byte) (*AppendResult, error)
	AppendClose(stmtID uint32) (success int64, failure int64, err error)
	FreeStmt(stmtID uint32) error
	Close() error
}

type AppendOpenResult struct {
	TableType api.TableType
	Columns   []cmi.ColumnMeta
}

// RowOutcome is the engine's verdict on one rejected row.
// Index is the position of the row in the batch.
type RowOutcome struct {
	Index int
	Code  int
	Msg   string
}

// AppendResult lists rejected rows in batch order. Processed is the number
// of leading rows the engine looked at; rows past it were never stored.
type AppendResult struct {
	Processed int
	Rejected  []RowOutcome
}

const stmtIDLimit = 1024

// stmtIDPool hands out statement ids in [0, stmtIDLimit) round robin.
type stmtIDPool struct {
	mu      sync.Mutex
	cursor  uint32
	used    [stmtIDLimit]bool
	usedCnt int
}

func (p *stmtIDPool) next() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usedCnt >= stmtIDLimit {
		return 0, fmt.Errorf("statement id overflow (limit = %d, curr = %d)", stmtIDLimit, p.usedCnt)
	}
	for i := uint32(0); i < stmtIDLimit; i++ {
		candidate := (p.cursor + i) % stmtIDLimit
		if !p.used[candidate] {
			p.used[candidate] = true
			p.usedCnt++
			p.cursor = (candidate + 1) % stmtIDLimit
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("statement id overflow (limit = %d, curr = %d)", stmtIDLimit, p.usedCnt)
}

func (p *stmtIDPool) release(id uint32) {
	if id >= stmtIDLimit {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used[id] {
		p.used[id] = false
		p.usedCnt--
	}
}
