package engine

import (
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gofrs/uuid/v5"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/machbase/neo-append/mods"
	"github.com/machbase/neo-append/mods/logging"
	"github.com/pkg/errors"
	"github.com/sony/sonyflake"
)

type Config struct {
	ListenAddress string
	// DataDir of the row store, empty keeps rows in memory.
	DataDir string
	// Endian of row fields announced at connect, "little" or "big".
	Endian string
	// MaxConns limits concurrent sessions, 0 is unlimited.
	MaxConns int
	// IdleTimeout closes a session that sent nothing for the duration.
	IdleTimeout time.Duration
	// ClientVersion is the semver constraint on the client protocol version.
	ClientVersion string
	Tables        []TableConfig
}

// Server is an append engine speaking CMI over TCP.
type Server struct {
	conf    Config
	log     logging.Log
	catalog *Catalog
	store   *Store
	endian  cmi.Endian
	idGen   *sonyflake.Sonyflake
	tokens  uuid.Generator
	clients *semver.Constraints

	mu       sync.Mutex
	listener net.Listener
	sessions map[uint64]*session
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(conf *Config) (*Server, error) {
	catalog, err := NewCatalog(conf.Tables)
	if err != nil {
		return nil, err
	}
	ret := &Server{
		conf:     *conf,
		log:      logging.GetLog("engine"),
		catalog:  catalog,
		sessions: map[uint64]*session{},
		tokens:   uuid.NewGen(),
	}
	switch strings.ToLower(conf.Endian) {
	case "", "little":
		ret.endian = cmi.LittleEndian
	case "big":
		ret.endian = cmi.BigEndian
	default:
		return nil, fmt.Errorf("unknown endian %q", conf.Endian)
	}
	ret.idGen = sonyflake.NewSonyflake(sonyflake.Settings{
		MachineID: func() (uint16, error) { return uint16(os.Getpid()), nil },
	})
	if ret.idGen == nil {
		return nil, errors.New("session id generator unavailable")
	}
	if ret.conf.ClientVersion == "" {
		ret.conf.ClientVersion = fmt.Sprintf("^%d.%d", cmi.ProtocolMajor, cmi.ProtocolMinor)
	}
	if ret.clients, err = semver.NewConstraint(ret.conf.ClientVersion); err != nil {
		return nil, errors.Wrapf(err, "client version %q", ret.conf.ClientVersion)
	}
	if ret.conf.ListenAddress == "" {
		ret.conf.ListenAddress = "127.0.0.1:5656"
	}
	return ret, nil
}

func (s *Server) Start() error {
	store, err := OpenStore(s.conf.DataDir)
	if err != nil {
		return err
	}
	lsnr, err := net.Listen("tcp", strings.TrimPrefix(s.conf.ListenAddress, "tcp://"))
	if err != nil {
		_ = store.Close()
		return errors.Wrapf(err, "listen %s", s.conf.ListenAddress)
	}
	s.mu.Lock()
	s.store = store
	s.listener = lsnr
	s.mu.Unlock()
	s.log.Infof("engine %s listen tcp://%s tables=%v endian=%s", mods.VersionString(), lsnr.Addr().String(), s.catalog.Names(), s.endian)

	s.wg.Add(1)
	go s.acceptLoop(lsnr)
	return nil
}

// Addr is the listening address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warnf("close store, %s", err.Error())
		}
	}
	s.log.Info("stopped")
}

func (s *Server) acceptLoop(lsnr net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := lsnr.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.Warnf("accept, %s", err.Error())
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		id, err := s.idGen.NextID()
		if err != nil {
			s.log.Errorf("session id, %s", err.Error())
			_ = conn.Close()
			continue
		}
		sess := newSession(s, conn, id)

		s.mu.Lock()
		if s.closed || (s.conf.MaxConns > 0 && len(s.sessions) >= s.conf.MaxConns) {
			s.mu.Unlock()
			s.log.Warnf("session %d from %s refused", id, conn.RemoteAddr())
			_ = conn.Close()
			continue
		}
		s.sessions[id] = sess
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			sess.run()
			s.mu.Lock()
			delete(s.sessions, id)
			s.mu.Unlock()
		}()
	}
}

// Sessions is the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Table(name string) (*Table, bool) {
	return s.catalog.Lookup(name)
}

// Rows decodes the stored rows of the table.
func (s *Server) Rows(name string) ([][]cmi.Param, error) {
	t, ok := s.catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("table '%s' does not exist", name)
	}
	var ret [][]cmi.Param
	var decodeErr error
	err := s.store.Scan(t.Name, func(row []byte, endian cmi.Endian) bool {
		values, err := cmi.DecodeRow(t.Columns, row, endian)
		if err != nil {
			decodeErr = err
			return false
		}
		ret = append(ret, values)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ret, decodeErr
}

// RowCount is the number of stored rows of the table.
func (s *Server) RowCount(name string) (int, error) {
	t, ok := s.catalog.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("table '%s' does not exist", name)
	}
	return s.store.Count(t.Name)
}
