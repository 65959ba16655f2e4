package machnet

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
)

const (
	defaultPort           = 5656
	defaultAutoFlush      = 100 * time.Millisecond
	defaultAppendRows     = 512
	defaultAppendBytes    = 512 * 1024
	defaultConnectTimeout = 5 * time.Second
)

// lastError keeps the most recent error of a handle.
type lastError struct {
	mu sync.Mutex
	st cmi.StatusError
}

func (le *lastError) set(err error) {
	le.mu.Lock()
	le.st.Set(err)
	le.mu.Unlock()
}

func (le *lastError) get() (int, string) {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.st.Code, le.st.Msg
}

type EnvHandle struct {
	handle  Handle
	mu      sync.Mutex
	closed  bool
	lastErr lastError
	conns   map[*ConnHandle]struct{}
}

func Initialize() (*EnvHandle, error) {
	env := &EnvHandle{
		handle: newHandle(HandleEnv),
		conns:  map[*ConnHandle]struct{}{},
	}
	registerHandle(env)
	return env, nil
}

func (env *EnvHandle) Handle() Handle { return env.handle }

// Error returns the last error code and message of the environment.
func (env *EnvHandle) Error() (int, string) { return env.lastErr.get() }

// Finalize disconnects every connection made from env.
func (env *EnvHandle) Finalize() error {
	env.mu.Lock()
	if env.closed {
		env.mu.Unlock()
		return nil
	}
	env.closed = true
	conns := make([]*ConnHandle, 0, len(env.conns))
	for c := range env.conns {
		conns = append(conns, c)
	}
	env.mu.Unlock()
	for _, c := range conns {
		_ = c.Disconnect()
	}
	releaseHandle(env.handle)
	return nil
}

// Connect dials the engine described by connStr,
// e.g. "SERVER=127.0.0.1;PORT_NO=5656;UID=sys;PWD=manager".
func (env *EnvHandle) Connect(connStr string) (*ConnHandle, error) {
	cfg, err := ParseConnString(connStr)
	if err != nil {
		env.lastErr.set(err)
		return nil, err
	}
	nc, err := DialNative(cfg)
	if err != nil {
		env.lastErr.set(err)
		return nil, err
	}
	conn, err := env.ConnectWith(nc)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return conn, nil
}

// ConnectWith makes a connection over an already established transport.
func (env *EnvHandle) ConnectWith(tr Transport) (*ConnHandle, error) {
	conn := &ConnHandle{
		handle:    newHandle(HandleConn),
		env:       env,
		transport: tr,
		stmts:     map[*StmtHandle]struct{}{},
	}
	env.mu.Lock()
	if env.closed {
		env.mu.Unlock()
		err := api.NewAppendError(api.ErrorCodeSessionClosed, "environment closed")
		env.lastErr.set(err)
		return nil, err
	}
	env.conns[conn] = struct{}{}
	env.mu.Unlock()
	registerHandle(conn)
	env.lastErr.set(nil)
	return conn, nil
}

type ConnHandle struct {
	handle    Handle
	mu        sync.Mutex
	env       *EnvHandle
	transport Transport
	closed    bool
	lastErr   lastError
	stmtIDs   stmtIDPool
	stmts     map[*StmtHandle]struct{}
	autoFlush bool
}

func (conn *ConnHandle) Handle() Handle { return conn.handle }

// Error returns the last error code and message of the connection.
func (conn *ConnHandle) Error() (int, string) { return conn.lastErr.get() }

// SetAppendFlush makes append sessions opened afterwards on this
// connection flush pending rows every 100ms.
func (conn *ConnHandle) SetAppendFlush(on bool) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		err := api.NewAppendError(api.ErrorCodeSessionClosed, "connection closed")
		conn.lastErr.set(err)
		return err
	}
	conn.autoFlush = on
	return nil
}

// Disconnect frees every statement of the connection, then closes the transport.
func (conn *ConnHandle) Disconnect() error {
	conn.mu.Lock()
	if conn.closed {
		conn.mu.Unlock()
		return nil
	}
	conn.closed = true
	stmts := make([]*StmtHandle, 0, len(conn.stmts))
	for s := range conn.stmts {
		stmts = append(stmts, s)
	}
	conn.mu.Unlock()

	for _, s := range stmts {
		_ = s.Free()
	}
	err := conn.transport.Close()
	conn.lastErr.set(err)
	conn.env.mu.Lock()
	delete(conn.env.conns, conn)
	conn.env.mu.Unlock()
	releaseHandle(conn.handle)
	return err
}

func (conn *ConnHandle) AllocStmt() (*StmtHandle, error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.closed {
		err := api.NewAppendError(api.ErrorCodeSessionClosed, "connection closed")
		conn.lastErr.set(err)
		return nil, err
	}
	id, err := conn.stmtIDs.next()
	if err != nil {
		conn.lastErr.set(err)
		return nil, err
	}
	stmt := &StmtHandle{
		handle:      newHandle(HandleStmt),
		conn:        conn,
		id:          id,
		bufferRows:  defaultAppendRows,
		bufferBytes: defaultAppendBytes,
		location:    time.UTC,
	}
	if conn.autoFlush {
		stmt.interval = defaultAutoFlush
	}
	conn.stmts[stmt] = struct{}{}
	registerHandle(stmt)
	conn.lastErr.set(nil)
	return stmt, nil
}

type ConnConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Alternatives []string
	Timeout      time.Duration
}

// ParseConnString reads SERVER, PORT_NO, UID, PWD, CONNECTION_TIMEOUT (ms)
// and ALTERNATIVE_SERVERS (host:port,...) from a ';' separated string.
func ParseConnString(connStr string) (*ConnConfig, error) {
	m := map[string]string{}
	for _, entry := range strings.Split(connStr, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			continue
		}
		m[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	cfg := &ConnConfig{
		Host:     m["SERVER"],
		Port:     defaultPort,
		User:     m["UID"],
		Password: m["PWD"],
		Timeout:  defaultConnectTimeout,
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if p := m["PORT_NO"]; p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT_NO: %q", p)
		}
		cfg.Port = port
	}
	if t := m["CONNECTION_TIMEOUT"]; t != "" {
		ms, err := strconv.Atoi(t)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid CONNECTION_TIMEOUT: %q", t)
		}
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if alts := m["ALTERNATIVE_SERVERS"]; alts != "" {
		for _, token := range strings.Split(alts, ",") {
			token = strings.TrimSpace(token)
			if _, _, err := net.SplitHostPort(token); err != nil {
				continue
			}
			cfg.Alternatives = append(cfg.Alternatives, token)
		}
	}
	return cfg, nil
}

func (cfg *ConnConfig) endpoints() []string {
	ret := []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}
	return append(ret, cfg.Alternatives...)
}
