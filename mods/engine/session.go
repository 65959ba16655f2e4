package engine

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gofrs/uuid/v5"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/machbase/neo-append/mods/logging"
	"github.com/pkg/errors"
)

type session struct {
	svr  *Server
	id   uint64
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
	log  logging.Log

	connected bool
	appends   map[uint32]*appendState
}

// appendState is an open append of one statement.
type appendState struct {
	token      uuid.UUID
	table      *Table
	endian     cmi.Endian
	checkCount int
	success    int64
	failure    int64
}

func newSession(svr *Server, conn net.Conn, id uint64) *session {
	return &session{
		svr:     svr,
		id:      id,
		conn:    conn,
		br:      bufio.NewReaderSize(conn, 64*1024),
		bw:      bufio.NewWriterSize(conn, 64*1024),
		log:     logging.GetLog("engine-session"),
		appends: map[uint32]*appendState{},
	}
}

func (sess *session) run() {
	defer func() {
		for stmtID := range sess.appends {
			sess.closeAppend(stmtID)
		}
		_ = sess.conn.Close()
		sess.log.Debugf("session %d closed", sess.id)
	}()
	if err := sess.handshake(); err != nil {
		sess.log.Warnf("session %d handshake %s, %s", sess.id, sess.conn.RemoteAddr(), err.Error())
		return
	}
	for {
		if d := sess.svr.conf.IdleTimeout; d > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(d))
		}
		msg, err := cmi.ReadMessage(sess.br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				sess.log.Debugf("session %d read, %s", sess.id, err.Error())
			}
			return
		}
		if msg.Protocol == cmi.DisconnectProtocol {
			return
		}
		resp := sess.handle(msg)
		if err := cmi.WritePackets(sess.bw, resp.Packets()); err != nil {
			sess.log.Debugf("session %d write, %s", sess.id, err.Error())
			return
		}
		if err := sess.bw.Flush(); err != nil {
			sess.log.Debugf("session %d write, %s", sess.id, err.Error())
			return
		}
	}
}

func (sess *session) handshake() error {
	_ = sess.conn.SetDeadline(time.Now().Add(10 * time.Second))
	defer sess.conn.SetDeadline(time.Time{})
	buf := make([]byte, cmi.HandshakeSize)
	if _, err := io.ReadFull(sess.br, buf); err != nil {
		return err
	}
	if !strings.HasPrefix(string(buf), cmi.HandshakePrefix) {
		return fmt.Errorf("invalid handshake %q", string(buf))
	}
	if _, err := sess.bw.WriteString(cmi.HandshakeReady); err != nil {
		return err
	}
	return sess.bw.Flush()
}

func errorResponse(protocol byte, stmtID uint32, errno int, msg string) *cmi.Writer {
	w := cmi.NewWriter(protocol, stmtID, 0)
	w.AddUInt64(cmi.RResultID, cmi.MakeStatus(cmi.CMErrorResult, errno))
	w.AddString(cmi.RMessageID, msg)
	return w
}

func okResponse(protocol byte, stmtID uint32) *cmi.Writer {
	w := cmi.NewWriter(protocol, stmtID, 0)
	w.AddUInt64(cmi.RResultID, cmi.OKResult)
	return w
}

func (sess *session) handle(msg cmi.Packet) *cmi.Writer {
	units, err := cmi.CollectUnits(msg.Body)
	if err != nil {
		return errorResponse(msg.Protocol, msg.StmtID, cmi.ErrnoProtocol, err.Error())
	}
	if !sess.connected && msg.Protocol != cmi.ConnectProtocol {
		return errorResponse(msg.Protocol, msg.StmtID, cmi.ErrnoProtocol, "not connected")
	}
	switch msg.Protocol {
	case cmi.ConnectProtocol:
		return sess.doConnect(msg, units)
	case cmi.AppendOpenProtocol:
		return sess.doAppendOpen(msg, units)
	case cmi.AppendDataProtocol:
		return sess.doAppendData(msg, units)
	case cmi.AppendCloseProtocol:
		return sess.doAppendClose(msg, units)
	case cmi.FreeProtocol:
		return sess.doFree(msg, units)
	default:
		return errorResponse(msg.Protocol, msg.StmtID, cmi.ErrnoProtocol, fmt.Sprintf("unsupported protocol %d", msg.Protocol))
	}
}

func (sess *session) doConnect(msg cmi.Packet, units cmi.Units) *cmi.Writer {
	version, _ := units.Uint64(cmi.CVersionID)
	ver := semver.New((version>>48)&0xffff, (version>>32)&0xffff, version&0xffffffff, "", "")
	if !sess.svr.clients.Check(ver) {
		return errorResponse(msg.Protocol, 0, cmi.ErrnoProtocol, fmt.Sprintf("protocol version %s is not supported", ver))
	}
	sess.connected = true
	sess.log.Infof("session %d connect user=%s client=%s ip=%s",
		sess.id, units.String(cmi.CUserID), units.String(cmi.CClientID), units.String(cmi.CIPID))
	w := okResponse(msg.Protocol, 0)
	w.AddUInt64(cmi.CSIDID, sess.id)
	w.AddUInt64(cmi.CEndianID, uint64(sess.svr.endian))
	return w
}

func stmtIDOf(msg cmi.Packet, units cmi.Units, id uint32) uint32 {
	if v, ok := units.Uint64(id); ok {
		return uint32(v)
	}
	return msg.StmtID
}

func (sess *session) doAppendOpen(msg cmi.Packet, units cmi.Units) *cmi.Writer {
	stmtID := stmtIDOf(msg, units, cmi.PIDID)
	if _, ok := sess.appends[stmtID]; ok {
		return errorResponse(msg.Protocol, stmtID, cmi.ErrnoAlreadyOpen, fmt.Sprintf("statement %d append already open", stmtID))
	}
	name := units.String(cmi.PTableID)
	table, ok := sess.svr.catalog.Lookup(name)
	if !ok {
		return errorResponse(msg.Protocol, stmtID, cmi.ErrnoUnknownTable, fmt.Sprintf("table '%s' does not exist", strings.ToUpper(name)))
	}
	st := &appendState{table: table, endian: sess.svr.endian}
	if e, ok := units.Uint64(cmi.EEndianID); ok {
		st.endian = cmi.Endian(e)
	}
	if n, ok := units.Uint64(cmi.ECheckCountID); ok {
		st.checkCount = int(n)
	}
	token, err := sess.svr.tokens.NewV7()
	if err != nil {
		return errorResponse(msg.Protocol, stmtID, cmi.ErrnoStorage, err.Error())
	}
	st.token = token
	sess.appends[stmtID] = st
	sess.log.Debugf("session %d append open %s stmt=%d table=%s check=%d", sess.id, token, stmtID, table.Name, st.checkCount)

	w := okResponse(msg.Protocol, stmtID)
	w.AddUInt64(cmi.PTableTypeID, uint64(table.Type))
	for _, c := range table.Columns {
		w.AddString(cmi.PColNameID, c.Name)
		w.AddUInt64(cmi.PColTypeID, c.WireType())
		w.AddUInt64(cmi.PColFlagID, uint64(c.Flag))
	}
	return w
}

// doAppendData validates and stores a batch. Once checkCount consecutive
// rows of the batch are rejected the rest of it is aborted.
func (sess *session) doAppendData(msg cmi.Packet, units cmi.Units) *cmi.Writer {
	st, ok := sess.appends[msg.StmtID]
	if !ok {
		return errorResponse(msg.Protocol, msg.StmtID, cmi.ErrnoNotOpen, fmt.Sprintf("statement %d append not open", msg.StmtID))
	}
	rows := units[cmi.PRowsID]
	w := okResponse(msg.Protocol, msg.StmtID)
	accepted := make([][]byte, 0, len(rows))
	rejected, streak := 0, 0
	for i, u := range rows {
		code, reason := cmi.ErrnoBatchAborted, "batch aborted by error check count"
		if st.checkCount <= 0 || streak < st.checkCount {
			_, code, reason = st.table.validate(u.Data, st.endian)
		}
		if code == 0 {
			accepted = append(accepted, u.Data)
			streak = 0
			continue
		}
		rejected++
		streak++
		w.AddUInt64(cmi.XRowIndexID, uint64(i))
		w.AddUInt64(cmi.XRowCodeID, uint64(code))
		w.AddString(cmi.XRowMessageID, reason)
	}
	if err := sess.svr.store.Write(st.table.Name, st.endian, accepted); err != nil {
		sess.log.Errorf("session %d append %s, %s", sess.id, st.token, err.Error())
		return errorResponse(msg.Protocol, msg.StmtID, cmi.ErrnoStorage, err.Error())
	}
	w.AddUInt64(cmi.XRowCountID, uint64(len(rows)))
	st.success += int64(len(accepted))
	st.failure += int64(rejected)
	st.table.success.Add(int64(len(accepted)))
	st.table.failure.Add(int64(rejected))
	if rejected > 0 {
		sess.log.Debugf("session %d append %s rejected %d of %d", sess.id, st.token, rejected, len(rows))
	}
	return w
}

func (sess *session) closeAppend(stmtID uint32) (*appendState, bool) {
	st, ok := sess.appends[stmtID]
	if !ok {
		return nil, false
	}
	delete(sess.appends, stmtID)
	sess.log.Debugf("session %d append close %s table=%s success=%d fail=%d", sess.id, st.token, st.table.Name, st.success, st.failure)
	return st, true
}

func (sess *session) doAppendClose(msg cmi.Packet, units cmi.Units) *cmi.Writer {
	stmtID := stmtIDOf(msg, units, cmi.PIDID)
	st, ok := sess.closeAppend(stmtID)
	if !ok {
		return errorResponse(msg.Protocol, stmtID, cmi.ErrnoNotOpen, fmt.Sprintf("statement %d append not open", stmtID))
	}
	w := okResponse(msg.Protocol, stmtID)
	w.AddUInt64(cmi.XAppendSuccessID, uint64(st.success))
	w.AddUInt64(cmi.XAppendFailureID, uint64(st.failure))
	return w
}

// doFree drops the statement, an append left open is closed.
func (sess *session) doFree(msg cmi.Packet, units cmi.Units) *cmi.Writer {
	stmtID := stmtIDOf(msg, units, cmi.XIDID)
	sess.closeAppend(stmtID)
	return okResponse(msg.Protocol, stmtID)
}
