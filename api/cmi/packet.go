package cmi

import (
	"encoding/binary"
	"fmt"
	"io"
)

const PacketHeaderSize = 16

type Packet struct {
	Protocol byte
	Flag     byte
	Adds     uint16
	StmtID   uint32
	Body     []byte
}

// BuildPacket frames body. flag is 0 for a single packet,
// otherwise 1 first, 2 middle, 3 last.
func BuildPacket(protocolID byte, stmtID uint32, adds uint16, flag byte, body []byte) []byte {
	ret := make([]byte, PacketHeaderSize+len(body))
	ret[0] = 0
	binary.BigEndian.PutUint16(ret[1:3], adds)
	ret[3] = protocolID
	lenWithFlag := (uint32(flag&0x3) << 30) | (uint32(len(body)) & 0x3fffffff)
	binary.BigEndian.PutUint32(ret[4:8], lenWithFlag)
	binary.BigEndian.PutUint32(ret[8:12], stmtID)
	copy(ret[PacketHeaderSize:], body)
	return ret
}

func ReadPacket(reader io.Reader) (Packet, error) {
	var h [PacketHeaderSize]byte
	if _, err := io.ReadFull(reader, h[:]); err != nil {
		return Packet{}, err
	}
	lenField := binary.BigEndian.Uint32(h[4:8])
	bodyLen := int(lenField & 0x3fffffff)
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(reader, body); err != nil {
			return Packet{}, err
		}
	}
	return Packet{
		Protocol: h[3],
		Flag:     byte((lenField >> 30) & 0x3),
		Adds:     binary.BigEndian.Uint16(h[1:3]),
		StmtID:   binary.BigEndian.Uint32(h[8:12]),
		Body:     body,
	}, nil
}

// ReadMessage reads packets until the last fragment of a message
// and returns the assembled body.
func ReadMessage(reader io.Reader) (Packet, error) {
	first, err := ReadPacket(reader)
	if err != nil {
		return Packet{}, err
	}
	if first.Flag == 0 || first.Flag == 3 {
		return first, nil
	}
	chunks := [][]byte{first.Body}
	total := len(first.Body)
	flag := first.Flag
	for flag != 0 && flag != 3 {
		pkt, err := ReadPacket(reader)
		if err != nil {
			return Packet{}, err
		}
		if pkt.Protocol != first.Protocol {
			return Packet{}, fmt.Errorf("unexpected protocol %d expected %d", pkt.Protocol, first.Protocol)
		}
		chunks = append(chunks, pkt.Body)
		total += len(pkt.Body)
		flag = pkt.Flag
	}
	out := make([]byte, total)
	off := 0
	for _, c := range chunks {
		copy(out[off:], c)
		off += len(c)
	}
	first.Flag = 0
	first.Body = out
	return first, nil
}

func WritePackets(writer io.Writer, packets [][]byte) error {
	for _, p := range packets {
		for len(p) > 0 {
			n, err := writer.Write(p)
			if err != nil {
				return err
			}
			p = p[n:]
		}
	}
	return nil
}
