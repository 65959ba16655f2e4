package machnet

import (
	"errors"
	"fmt"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type HandleType int

const (
	HandleEnv HandleType = iota + 1
	HandleConn
	HandleStmt
)

func (typ HandleType) String() string {
	switch typ {
	case HandleEnv:
		return "ENV"
	case HandleConn:
		return "CONN"
	case HandleStmt:
		return "STMT"
	default:
		return fmt.Sprintf("HANDLE-%d", int(typ))
	}
}

// Handle is a type-tagged reference to an environment, connection or
// statement. A handle stays valid until its owner is released.
type Handle struct {
	Type HandleType
	ID   uint64
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.Type, h.ID)
}

var ErrInvalidHandle = errors.New("invalid handle")

// handleOwner is what the registry keeps for each live handle.
type handleOwner interface {
	Handle() Handle
	Error() (int, string)
}

var (
	handleSeq      atomic.Uint64
	handleRegistry = cmap.New[handleOwner]()
)

func newHandle(typ HandleType) Handle {
	return Handle{Type: typ, ID: handleSeq.Add(1)}
}

func registerHandle(owner handleOwner) {
	handleRegistry.Set(owner.Handle().String(), owner)
}

func releaseHandle(h Handle) {
	handleRegistry.Remove(h.String())
}

// Lookup returns the live object behind h: *EnvHandle, *ConnHandle or *StmtHandle.
func Lookup(h Handle) (any, error) {
	owner, ok := handleRegistry.Get(h.String())
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrInvalidHandle, h)
	}
	return owner, nil
}

func LookupStmt(h Handle) (*StmtHandle, error) {
	if h.Type != HandleStmt {
		return nil, fmt.Errorf("%w %s, statement required", ErrInvalidHandle, h)
	}
	obj, err := Lookup(h)
	if err != nil {
		return nil, err
	}
	return obj.(*StmtHandle), nil
}

func LookupConn(h Handle) (*ConnHandle, error) {
	if h.Type != HandleConn {
		return nil, fmt.Errorf("%w %s, connection required", ErrInvalidHandle, h)
	}
	obj, err := Lookup(h)
	if err != nil {
		return nil, err
	}
	return obj.(*ConnHandle), nil
}

// Error returns the last error code and message recorded on the handle.
func Error(h Handle) (int, string, error) {
	owner, ok := handleRegistry.Get(h.String())
	if !ok {
		return 0, "", fmt.Errorf("%w %s", ErrInvalidHandle, h)
	}
	code, msg := owner.Error()
	return code, msg, nil
}

// HandleCount reports the number of live handles of the type.
func HandleCount(typ HandleType) int {
	n := 0
	for _, owner := range handleRegistry.Items() {
		if owner.Handle().Type == typ {
			n++
		}
	}
	return n
}
