package machnet

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/stretchr/testify/require"
)

// slowEngine accepts one connection, answers the handshake and connect,
// then replies to the first request only after delay. Whatever the client
// sends after that is reported on received.
func slowEngine(t *testing.T, delay time.Duration) (net.Listener, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan []byte, 8)
	go func() {
		defer close(received)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		br := bufio.NewReader(c)
		hs := make([]byte, cmi.HandshakeSize)
		if _, err := io.ReadFull(br, hs); err != nil {
			return
		}
		if _, err := c.Write([]byte(cmi.HandshakeReady)); err != nil {
			return
		}
		if _, err := cmi.ReadMessage(br); err != nil {
			return
		}
		w := cmi.NewWriter(cmi.ConnectProtocol, 0, 0)
		w.AddUInt64(cmi.RResultID, cmi.OKResult)
		w.AddUInt64(cmi.CSIDID, 7)
		if err := cmi.WritePackets(c, w.Packets()); err != nil {
			return
		}

		msg, err := cmi.ReadMessage(br)
		if err != nil {
			return
		}
		time.Sleep(delay)
		w = cmi.NewWriter(msg.Protocol, msg.StmtID, 0)
		w.AddUInt64(cmi.RResultID, cmi.OKResult)
		w.AddUInt64(cmi.PTableTypeID, uint64(api.TableTypeLog))
		w.AddString(cmi.PColNameID, "A_COL")
		w.AddUInt64(cmi.PColTypeID, 0)
		_ = cmi.WritePackets(c, w.Packets())

		for {
			msg, err := cmi.ReadMessage(br)
			if err != nil {
				return
			}
			received <- []byte{msg.Protocol}
		}
	}()
	return ln, received
}

func TestNativeConnTimeoutClosesConnection(t *testing.T) {
	ln, received := slowEngine(t, 200*time.Millisecond)
	addr := ln.Addr().(*net.TCPAddr)

	nc, err := DialNative(&ConnConfig{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, uint64(7), nc.SessionID())
	nc.timeout = 50 * time.Millisecond

	env, err := Initialize()
	require.NoError(t, err)
	defer env.Finalize()
	conn, err := env.ConnectWith(nc)
	require.NoError(t, err)
	first, err := conn.AllocStmt()
	require.NoError(t, err)
	second, err := conn.AllocStmt()
	require.NoError(t, err)

	err = first.AppendOpen("A", 0)
	require.ErrorIs(t, err, api.ErrTransportFailure)

	// the late reply to the first request must not answer the second one
	time.Sleep(300 * time.Millisecond)
	err = second.AppendOpen("B", 0)
	require.ErrorIs(t, err, api.ErrTransportFailure)
	require.Contains(t, err.Error(), "connection closed")
	require.NotContains(t, err.Error(), "A_COL")

	_, _, err = nc.AppendClose(second.ID())
	require.Error(t, err)
	require.NoError(t, nc.Close())

	for msg := range received {
		t.Fatalf("engine received a request on a closed connection, protocol %d", msg[0])
	}
}

func TestNativeConnUnexpectedProtocol(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		br := bufio.NewReader(c)
		hs := make([]byte, cmi.HandshakeSize)
		if _, err := io.ReadFull(br, hs); err != nil {
			return
		}
		_, _ = c.Write([]byte(cmi.HandshakeReady))
		if _, err := cmi.ReadMessage(br); err != nil {
			return
		}
		w := cmi.NewWriter(cmi.ConnectProtocol, 0, 0)
		w.AddUInt64(cmi.RResultID, cmi.OKResult)
		_ = cmi.WritePackets(c, w.Packets())
		if _, err := cmi.ReadMessage(br); err != nil {
			return
		}
		// answers a free request with an append close reply
		w = cmi.NewWriter(cmi.AppendCloseProtocol, 0, 0)
		w.AddUInt64(cmi.RResultID, cmi.OKResult)
		_ = cmi.WritePackets(c, w.Packets())
		_, _ = io.Copy(io.Discard, br)
	}()

	nc, err := DialNative(&ConnConfig{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Timeout: time.Second})
	require.NoError(t, err)
	err = nc.FreeStmt(1)
	require.ErrorContains(t, err, "unexpected protocol")
	err = nc.FreeStmt(2)
	require.ErrorContains(t, err, "connection closed")
	require.ErrorContains(t, err, "unexpected protocol")
}
