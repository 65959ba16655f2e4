package cmi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildFragmentedProtocolStream(protocol byte, bodySize int, chunkSize int) ([]byte, []byte) {
	body := bytes.Repeat([]byte{0x7a}, bodySize)
	if bodySize == 0 {
		return BuildPacket(protocol, 42, 0, 0, nil), body
	}
	if chunkSize <= 0 {
		chunkSize = bodySize
	}
	stream := make([]byte, 0, bodySize+((bodySize/chunkSize)+1)*PacketHeaderSize)
	for offset := 0; offset < bodySize; offset += chunkSize {
		end := offset + chunkSize
		if end > bodySize {
			end = bodySize
		}
		flag := byte(2)
		switch {
		case offset == 0 && end == bodySize:
			flag = 0
		case offset == 0:
			flag = 1
		case end == bodySize:
			flag = 3
		}
		stream = append(stream, BuildPacket(protocol, 42, 0, flag, body[offset:end])...)
	}
	return stream, body
}

func TestBuildPacket(t *testing.T) {
	pkt := BuildPacket(AppendDataProtocol, 7, 0x0102, 3, []byte{1, 2, 3})
	require.Equal(t, PacketHeaderSize+3, len(pkt))
	require.Equal(t, []byte{0x00, 0x01, 0x02, AppendDataProtocol, 0xc0, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x07}, pkt[:12])

	decoded, err := ReadPacket(bytes.NewReader(pkt))
	require.NoError(t, err)
	require.Equal(t, AppendDataProtocol, decoded.Protocol)
	require.Equal(t, byte(3), decoded.Flag)
	require.Equal(t, uint16(0x0102), decoded.Adds)
	require.Equal(t, uint32(7), decoded.StmtID)
	require.Equal(t, []byte{1, 2, 3}, decoded.Body)
}

func TestReadMessageFragmented(t *testing.T) {
	for _, tc := range []struct{ size, chunk int }{{0, 0}, {128, 0}, {4096, 256}, {64 * 1024, 1024}} {
		stream, body := buildFragmentedProtocolStream(AppendOpenProtocol, tc.size, tc.chunk)
		msg, err := ReadMessage(bytes.NewReader(stream))
		require.NoError(t, err)
		require.Equal(t, AppendOpenProtocol, msg.Protocol)
		require.Equal(t, uint32(42), msg.StmtID)
		require.Equal(t, len(body), len(msg.Body))
		require.Equal(t, body, msg.Body)
	}
}

func TestReadMessageProtocolSwitch(t *testing.T) {
	stream := BuildPacket(AppendDataProtocol, 1, 0, 1, []byte{1})
	stream = append(stream, BuildPacket(AppendCloseProtocol, 1, 0, 3, []byte{2})...)
	_, err := ReadMessage(bytes.NewReader(stream))
	require.Error(t, err)
}

func benchmarkReadMessageFragmented(b *testing.B, bodySize int, chunkSize int) {
	stream, _ := buildFragmentedProtocolStream(AppendDataProtocol, bodySize, chunkSize)
	var reader bytes.Reader
	b.ReportAllocs()
	b.SetBytes(int64(len(stream)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reader.Reset(stream)
		msg, err := ReadMessage(&reader)
		if err != nil {
			b.Fatalf("ReadMessage failed: %v", err)
		}
		if len(msg.Body) != bodySize {
			b.Fatalf("unexpected body length: got %d, want %d", len(msg.Body), bodySize)
		}
	}
}

func BenchmarkReadMessageFragmented4K_256(b *testing.B) {
	benchmarkReadMessageFragmented(b, 4*1024, 256)
}

func BenchmarkReadMessageFragmented64K_1K(b *testing.B) {
	benchmarkReadMessageFragmented(b, 64*1024, 1024)
}
