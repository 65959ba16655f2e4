package cmi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const marshalHeaderSize = 16

func align8(v int) int {
	return (v + 7) &^ 7
}

type Unit struct {
	ID   uint32
	Type uint32
	Data []byte
}

func (u Unit) Uint64() uint64 {
	switch {
	case len(u.Data) >= 8:
		return binary.LittleEndian.Uint64(u.Data[:8])
	case len(u.Data) >= 4:
		return uint64(binary.LittleEndian.Uint32(u.Data[:4]))
	case len(u.Data) >= 2:
		return uint64(binary.LittleEndian.Uint16(u.Data[:2]))
	case len(u.Data) >= 1:
		return uint64(u.Data[0])
	default:
		return 0
	}
}

// Writer serializes marshal units and splits them into packets
// no larger than PacketMaxBody.
type Writer struct {
	protocolID byte
	stmtID     uint32
	adds       uint16

	current bytes.Buffer
	bodies  [][]byte
}

func NewWriter(protocolID byte, stmtID uint32, adds uint16) *Writer {
	return &Writer{protocolID: protocolID, stmtID: stmtID, adds: adds}
}

func (w *Writer) AddString(id uint32, value string) {
	w.AddVariable(id, StringType, []byte(value))
}

func (w *Writer) AddBinary(id uint32, value []byte) {
	w.AddVariable(id, BinaryType, value)
}

func (w *Writer) AddUInt32(id uint32, value uint32) {
	var unit [marshalHeaderSize]byte
	binary.LittleEndian.PutUint32(unit[0:4], id)
	binary.LittleEndian.PutUint32(unit[4:8], UIntType)
	binary.LittleEndian.PutUint32(unit[8:12], value)
	w.enqueue(unit[:])
}

func (w *Writer) AddUInt64(id uint32, value uint64) {
	var unit [marshalHeaderSize]byte
	binary.LittleEndian.PutUint32(unit[0:4], id)
	binary.LittleEndian.PutUint32(unit[4:8], ULongType)
	binary.LittleEndian.PutUint64(unit[8:16], value)
	w.enqueue(unit[:])
}

func (w *Writer) AddSInt64(id uint32, value int64) {
	var unit [marshalHeaderSize]byte
	binary.LittleEndian.PutUint32(unit[0:4], id)
	binary.LittleEndian.PutUint32(unit[4:8], SLongType)
	binary.LittleEndian.PutUint64(unit[8:16], uint64(value))
	w.enqueue(unit[:])
}

func (w *Writer) AddVariable(id uint32, typ uint32, payload []byte) {
	length := len(payload)
	unit := make([]byte, marshalHeaderSize+align8(length))
	binary.LittleEndian.PutUint32(unit[0:4], id)
	binary.LittleEndian.PutUint32(unit[4:8], typ)
	binary.LittleEndian.PutUint64(unit[8:16], uint64(length))
	copy(unit[marshalHeaderSize:], payload)
	w.enqueue(unit)
}

func (w *Writer) enqueue(unit []byte) {
	if len(unit) > PacketMaxBody {
		w.flushCurrent()
		w.bodies = append(w.bodies, unit)
		return
	}
	if w.current.Len()+len(unit) > PacketMaxBody {
		w.flushCurrent()
	}
	_, _ = w.current.Write(unit)
}

func (w *Writer) flushCurrent() {
	if w.current.Len() == 0 {
		return
	}
	w.bodies = append(w.bodies, append([]byte(nil), w.current.Bytes()...))
	w.current.Reset()
}

// Packets returns the framed packets of everything added so far.
func (w *Writer) Packets() [][]byte {
	w.flushCurrent()
	if len(w.bodies) == 0 {
		w.bodies = [][]byte{{}}
	}
	total := len(w.bodies)
	ret := make([][]byte, 0, total)
	for idx, body := range w.bodies {
		flag := byte(0)
		if total > 1 {
			switch idx {
			case 0:
				flag = 1
			case total - 1:
				flag = 3
			default:
				flag = 2
			}
		}
		ret = append(ret, BuildPacket(w.protocolID, w.stmtID, w.adds, flag, body))
	}
	return ret
}

type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Next() (Unit, bool, error) {
	if r.off >= len(r.buf) {
		return Unit{}, false, nil
	}
	if r.off+marshalHeaderSize > len(r.buf) {
		return Unit{}, false, fmt.Errorf("incomplete marshal header")
	}
	id := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	typ := binary.LittleEndian.Uint32(r.buf[r.off+4 : r.off+8])
	unitOff := r.off + marshalHeaderSize
	switch typ {
	case StringType, BinaryType, DateType, RowsType:
		length := int(binary.LittleEndian.Uint64(r.buf[r.off+8 : r.off+16]))
		end := unitOff + align8(length)
		if length < 0 || end > len(r.buf) {
			return Unit{}, false, fmt.Errorf("marshal overflow type=%d off=%d len=%d buf=%d", typ, r.off, length, len(r.buf))
		}
		data := r.buf[unitOff : unitOff+length]
		r.off = end
		return Unit{ID: id, Type: typ, Data: data}, true, nil
	case SCharType, UCharType:
		data := r.buf[r.off+8 : r.off+9]
		r.off += marshalHeaderSize
		return Unit{ID: id, Type: typ, Data: data}, true, nil
	case SShortType, UShortType:
		data := r.buf[r.off+8 : r.off+10]
		r.off += marshalHeaderSize
		return Unit{ID: id, Type: typ, Data: data}, true, nil
	case SIntType, UIntType:
		data := r.buf[r.off+8 : r.off+12]
		r.off += marshalHeaderSize
		return Unit{ID: id, Type: typ, Data: data}, true, nil
	default:
		data := r.buf[r.off+8 : r.off+16]
		r.off += marshalHeaderSize
		return Unit{ID: id, Type: typ, Data: data}, true, nil
	}
}

// Units groups the units of a message by id, in arrival order.
type Units map[uint32][]Unit

func CollectUnits(body []byte) (Units, error) {
	ret := Units{}
	r := NewReader(body)
	for {
		u, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		ret[u.ID] = append(ret[u.ID], u)
	}
	return ret, nil
}

func (m Units) First(id uint32) (Unit, bool) {
	v := m[id]
	if len(v) == 0 {
		return Unit{}, false
	}
	return v[0], true
}

func (m Units) Uint64(id uint32) (uint64, bool) {
	u, ok := m.First(id)
	if !ok {
		return 0, false
	}
	return u.Uint64(), true
}

func (m Units) String(id uint32) string {
	if u, ok := m.First(id); ok {
		return string(u.Data)
	}
	return ""
}
