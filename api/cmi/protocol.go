package cmi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/machbase/neo-append/api"
)

// cmi protocol version: 4.0.2
const (
	ProtocolMajor = 4
	ProtocolMinor = 0
	ProtocolFix   = 2
)

func ProtocolVersion() uint64 {
	return (uint64(ProtocolMajor&0xffff) << 48) |
		(uint64(ProtocolMinor&0xffff) << 32) |
		uint64(ProtocolFix&0xffffffff)
}

const (
	PacketMaxBody = 64 * 1024

	HandshakeSize    = 9
	HandshakePrefix  = "CMI_INET"
	HandshakeRequest = HandshakePrefix + "0"
	HandshakeReady   = "CMI_READY"
)

const (
	ConnectProtocol     byte = 0
	DisconnectProtocol  byte = 1
	FreeProtocol        byte = 10
	AppendOpenProtocol  byte = 11
	AppendDataProtocol  byte = 12
	AppendCloseProtocol byte = 13
)

// marshal unit ids
const (
	CVersionID  = 0x00000001
	CClientID   = 0x00000002
	CDatabaseID = 0x00000004
	CEndianID   = 0x00000005
	CUserID     = 0x00000006
	CPasswordID = 0x00000007
	CTimeoutID  = 0x00000008
	CSIDID      = 0x00000040
	CIPID       = 0x00000042

	RResultID   = 0x00000010
	RMessageID  = 0x00000011
	REMessageID = 0x00000012

	PIDID        = 0x00000022
	PRowsID      = 0x00000023
	PColumnsID   = 0x00000024
	PTableID     = 0x00000025
	PColNameID   = 0x00000026
	PColTypeID   = 0x00000027
	PTableTypeID = 0x00000028
	PColFlagID   = 0x0000002a

	EEndianID     = 0x00000034
	ECheckCountID = 0x00000035

	XIDID            = 0x00000060
	XAppendSuccessID = 0x00000061
	XAppendFailureID = 0x00000062
	XRowIndexID      = 0x00000063
	XRowCodeID       = 0x00000064
	XRowMessageID    = 0x00000065
	XRowCountID      = 0x00000066
)

// marshal unit types
const (
	StringType = 0x00000002
	BinaryType = 0x00000003
	SCharType  = 0x00000004
	UCharType  = 0x00000005
	SShortType = 0x00000006
	UShortType = 0x00000007
	SIntType   = 0x00000008
	UIntType   = 0x00000009
	SLongType  = 0x0000000a
	ULongType  = 0x0000000b
	DateType   = 0x0000000c
	RowsType   = 0x0000000d
)

const (
	OKResult      uint64 = 0x724f4b5f00000000
	CMErrorResult uint64 = 0x72434d5f00000000
	LastResult    uint64 = 0x724c535400000000
)

func StatusCode(v uint64) uint64 {
	return v & 0xffffffff00000000
}

func StatusErrNo(v uint64) int {
	return int(v & 0xffffffff)
}

func MakeStatus(code uint64, errno int) uint64 {
	return StatusCode(code) | uint64(uint32(errno))
}

// engine error numbers carried in results and row outcomes
const (
	ErrnoUnknownTable   = 2001
	ErrnoSchemaMismatch = 2002
	ErrnoNotOpen        = 2003
	ErrnoAlreadyOpen    = 2004
	ErrnoProtocol       = 2005
	ErrnoNotNull        = 2101
	ErrnoInvalidJSON    = 2102
	ErrnoMalformedRow   = 2103
	ErrnoBatchAborted   = 2104
	ErrnoTooLong        = 2105
	ErrnoStorage        = 2106
	ErrnoTransport      = 2201
)

// Endian is the byte order of row fields, chosen by the server at connect.
type Endian uint32

const (
	LittleEndian Endian = 0
	BigEndian    Endian = 1
)

type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (e Endian) Order() ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (e Endian) String() string {
	if e == LittleEndian {
		return "little"
	}
	return "big"
}

type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("server error code=%d", e.Code)
	}
	if e.Code > 0 {
		return fmt.Sprintf("server error code=%d message=%s", e.Code, e.Msg)
	}
	return e.Msg
}

// Set records err as the last error, nil clears it.
func (st *StatusError) Set(err error) {
	if st == nil {
		return
	}
	if err == nil {
		st.Code = 0
		st.Msg = ""
		return
	}
	var se *StatusError
	if errors.As(err, &se) {
		st.Code = se.Code
		st.Msg = se.Msg
		if st.Msg == "" {
			st.Msg = err.Error()
		}
		return
	}
	st.Code = int(api.CodeOf(err))
	st.Msg = err.Error()
}

func MakeServerErr(code int, msg string) error {
	return &StatusError{Code: code, Msg: msg}
}

// ResultError returns the error carried by the result unit, if any.
func ResultError(units Units) error {
	result, ok := units.First(RResultID)
	if !ok || len(result.Data) < 8 {
		return errors.New("response missing result")
	}
	statusVal := binary.LittleEndian.Uint64(result.Data)
	st := StatusCode(statusVal)
	if st == OKResult || st == LastResult {
		return nil
	}
	msg := units.String(RMessageID)
	if em := units.String(REMessageID); em != "" {
		if msg == "" {
			msg = em
		} else {
			msg += "; " + em
		}
	}
	return MakeServerErr(StatusErrNo(statusVal), msg)
}

// AppendErrorOf maps an engine status error to the append taxonomy.
func AppendErrorOf(err error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case ErrnoUnknownTable:
		return api.WrapAppendError(api.ErrorCodeUnknownTable, err, "")
	case ErrnoSchemaMismatch:
		return api.WrapAppendError(api.ErrorCodeSchemaMismatch, err, "")
	case ErrnoAlreadyOpen:
		return api.WrapAppendError(api.ErrorCodeAlreadyOpen, err, "")
	case ErrnoNotOpen:
		return api.WrapAppendError(api.ErrorCodeSessionClosed, err, "")
	default:
		return err
	}
}
