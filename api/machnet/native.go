package machnet

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/pkg/errors"
)

const (
	defaultReadBufferSize  = 64 * 1024
	defaultWriteBufferSize = 64 * 1024
	defaultRequestTimeout  = 30 * time.Second
)

// NativeConn is a Transport speaking the CMI append protocol over TCP.
// Requests are serialized: one request and its response at a time.
type NativeConn struct {
	mu      sync.Mutex
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	closed  bool
	broken  error
	timeout time.Duration

	sessionID uint64
	endian    cmi.Endian
}

var _ Transport = (*NativeConn)(nil)

// DialNative tries the primary endpoint, then the alternatives in order.
func DialNative(cfg *ConnConfig) (*NativeConn, error) {
	var lastErr error
	for _, ep := range cfg.endpoints() {
		c, err := net.DialTimeout("tcp", ep, cfg.Timeout)
		if err != nil {
			lastErr = err
			continue
		}
		nc := &NativeConn{
			netConn: c,
			br:      bufio.NewReaderSize(c, defaultReadBufferSize),
			bw:      bufio.NewWriterSize(c, defaultWriteBufferSize),
			timeout: defaultRequestTimeout,
		}
		if err := nc.handshake(cfg.Timeout); err != nil {
			_ = c.Close()
			lastErr = errors.Wrapf(err, "handshake %s", ep)
			continue
		}
		if err := nc.connect(cfg); err != nil {
			_ = c.Close()
			lastErr = err
			continue
		}
		return nc, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoint to connect")
	}
	return nil, api.ErrTransport("connect", lastErr)
}

func (c *NativeConn) SessionID() uint64 { return c.sessionID }

func (c *NativeConn) Endian() cmi.Endian { return c.endian }

func (c *NativeConn) handshake(timeout time.Duration) error {
	if timeout > 0 {
		_ = c.netConn.SetDeadline(time.Now().Add(timeout))
		defer c.netConn.SetDeadline(time.Time{})
	}
	if _, err := c.bw.WriteString(cmi.HandshakeRequest); err != nil {
		return err
	}
	if err := c.bw.Flush(); err != nil {
		return err
	}
	resp := make([]byte, cmi.HandshakeSize)
	if _, err := io.ReadFull(c.br, resp); err != nil {
		return err
	}
	if string(resp) != cmi.HandshakeReady {
		return fmt.Errorf("handshake failed: %q", string(resp))
	}
	return nil
}

func (c *NativeConn) connect(cfg *ConnConfig) error {
	w := cmi.NewWriter(cmi.ConnectProtocol, 0, 0)
	w.AddUInt64(cmi.CVersionID, cmi.ProtocolVersion())
	w.AddString(cmi.CClientID, "CLI")
	w.AddString(cmi.CDatabaseID, "data")
	w.AddString(cmi.CUserID, cfg.User)
	w.AddString(cmi.CPasswordID, cfg.Password)
	w.AddUInt64(cmi.CTimeoutID, uint64(c.timeout.Seconds()))
	if la, ok := c.netConn.LocalAddr().(*net.TCPAddr); ok && la.IP != nil {
		w.AddString(cmi.CIPID, la.IP.String())
	} else {
		w.AddString(cmi.CIPID, "127.0.0.1")
	}
	units, err := c.exchange(w.Packets(), cmi.ConnectProtocol, cfg.Timeout)
	if err != nil {
		return err
	}
	if err := cmi.ResultError(units); err != nil {
		return err
	}
	if sid, ok := units.Uint64(cmi.CSIDID); ok {
		c.sessionID = sid
	}
	if e, ok := units.Uint64(cmi.CEndianID); ok {
		c.endian = cmi.Endian(e)
	}
	return nil
}

// exchange writes a request and reads the one response message.
// Any failure leaves the response stream out of step with the requests,
// so the connection is closed and stays unusable.
func (c *NativeConn) exchange(packets [][]byte, expected byte, timeout time.Duration) (cmi.Units, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if c.broken != nil {
			return nil, errors.Wrap(c.broken, "connection closed")
		}
		return nil, errors.New("connection closed")
	}
	if timeout > 0 {
		_ = c.netConn.SetDeadline(time.Now().Add(timeout))
		defer c.netConn.SetDeadline(time.Time{})
	}
	if err := cmi.WritePackets(c.bw, packets); err != nil {
		return nil, c.breakConn(errors.Wrap(err, "write request"))
	}
	if err := c.bw.Flush(); err != nil {
		return nil, c.breakConn(errors.Wrap(err, "write request"))
	}
	msg, err := cmi.ReadMessage(c.br)
	if err != nil {
		return nil, c.breakConn(errors.Wrap(err, "read response"))
	}
	if msg.Protocol != expected {
		return nil, c.breakConn(fmt.Errorf("unexpected protocol %d expected %d", msg.Protocol, expected))
	}
	units, err := cmi.CollectUnits(msg.Body)
	if err != nil {
		return nil, c.breakConn(errors.Wrap(err, "read response"))
	}
	return units, nil
}

// breakConn closes the connection after err. c.mu must be held.
func (c *NativeConn) breakConn(err error) error {
	c.closed = true
	c.broken = err
	_ = c.netConn.Close()
	return err
}

func (c *NativeConn) AppendOpen(stmtID uint32, table string, errCheckCount int) (*AppendOpenResult, error) {
	w := cmi.NewWriter(cmi.AppendOpenProtocol, stmtID, 0)
	w.AddUInt64(cmi.PIDID, uint64(stmtID))
	w.AddString(cmi.PTableID, table)
	w.AddUInt64(cmi.EEndianID, uint64(c.endian))
	w.AddUInt64(cmi.ECheckCountID, uint64(errCheckCount))
	units, err := c.exchange(w.Packets(), cmi.AppendOpenProtocol, c.timeout)
	if err != nil {
		return nil, err
	}
	if err := cmi.ResultError(units); err != nil {
		return nil, err
	}
	return parseAppendOpen(units)
}

func parseAppendOpen(units cmi.Units) (*AppendOpenResult, error) {
	ret := &AppendOpenResult{}
	if tt, ok := units.Uint64(cmi.PTableTypeID); ok {
		ret.TableType = api.TableType(tt)
	}
	names := units[cmi.PColNameID]
	types := units[cmi.PColTypeID]
	flags := units[cmi.PColFlagID]
	if len(names) != len(types) {
		return nil, fmt.Errorf("append open response has %d column names and %d types", len(names), len(types))
	}
	for i := range names {
		var flag uint64
		if i < len(flags) {
			flag = flags[i].Uint64()
		}
		col, err := cmi.ColumnMetaFromWire(string(names[i].Data), types[i].Uint64(), flag)
		if err != nil {
			return nil, err
		}
		ret.Columns = append(ret.Columns, col)
	}
	return ret, nil
}

func (c *NativeConn) AppendData(stmtID uint32, rows [][]byte) (*AppendResult, error) {
	w := cmi.NewWriter(cmi.AppendDataProtocol, stmtID, uint16(stmtID&0xffff))
	for _, row := range rows {
		w.AddBinary(cmi.PRowsID, row)
	}
	units, err := c.exchange(w.Packets(), cmi.AppendDataProtocol, c.timeout)
	if err != nil {
		return nil, err
	}
	if err := cmi.ResultError(units); err != nil {
		return nil, err
	}
	return parseAppendData(units, len(rows))
}

// parseAppendData reads one (index, code, message) triple per rejected row.
func parseAppendData(units cmi.Units, sent int) (*AppendResult, error) {
	ret := &AppendResult{Processed: sent}
	if n, ok := units.Uint64(cmi.XRowCountID); ok {
		ret.Processed = int(n)
	}
	idx := units[cmi.XRowIndexID]
	codes := units[cmi.XRowCodeID]
	msgs := units[cmi.XRowMessageID]
	if len(idx) != len(codes) || len(idx) != len(msgs) {
		return nil, fmt.Errorf("append data response has %d indexes, %d codes, %d messages", len(idx), len(codes), len(msgs))
	}
	for i := range idx {
		ret.Rejected = append(ret.Rejected, RowOutcome{
			Index: int(idx[i].Uint64()),
			Code:  int(codes[i].Uint64()),
			Msg:   string(msgs[i].Data),
		})
	}
	return ret, nil
}

func (c *NativeConn) AppendClose(stmtID uint32) (int64, int64, error) {
	w := cmi.NewWriter(cmi.AppendCloseProtocol, stmtID, 0)
	w.AddUInt64(cmi.PIDID, uint64(stmtID))
	units, err := c.exchange(w.Packets(), cmi.AppendCloseProtocol, c.timeout)
	if err != nil {
		return 0, 0, err
	}
	if err := cmi.ResultError(units); err != nil {
		return 0, 0, err
	}
	success, _ := units.Uint64(cmi.XAppendSuccessID)
	failure, _ := units.Uint64(cmi.XAppendFailureID)
	return int64(success), int64(failure), nil
}

func (c *NativeConn) FreeStmt(stmtID uint32) error {
	w := cmi.NewWriter(cmi.FreeProtocol, stmtID, 0)
	w.AddUInt64(cmi.XIDID, uint64(stmtID))
	units, err := c.exchange(w.Packets(), cmi.FreeProtocol, c.timeout)
	if err != nil {
		return err
	}
	return cmi.ResultError(units)
}

// Close says goodbye to the engine without waiting for a reply.
func (c *NativeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	w := cmi.NewWriter(cmi.DisconnectProtocol, 0, 0)
	_ = c.netConn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := cmi.WritePackets(c.bw, w.Packets()); err == nil {
		_ = c.bw.Flush()
	}
	return c.netConn.Close()
}
