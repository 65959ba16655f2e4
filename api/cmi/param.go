package cmi

import (
	"bytes"
	"fmt"
	"net"
	"time"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindIP
	KindDateTime
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindIP:
		return "ip"
	case KindDateTime:
		return "datetime"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind-%d", k)
	}
}

// IPForm is the address discriminant, the same byte that leads an ip field.
type IPForm uint8

const (
	IPFormNull   IPForm = 0
	IPFormV4     IPForm = 4
	IPFormV6     IPForm = 6
	IPFormString IPForm = 255
)

type DateTimeForm uint8

const (
	DateTimeFormNanos DateTimeForm = iota
	DateTimeFormNow
	DateTimeFormString
	DateTimeFormFields
	DateTimeFormTime
)

// DateTimeStruct is a calendar time. Month is 1-12 and Day is 1-31.
type DateTimeStruct struct {
	Year       int
	Month      int
	Day        int
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// Param is one column value of an append row. The zero value is NULL.
type Param struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
	b    []byte
	ip   net.IP
	form IPForm
	str  string

	dtForm DateTimeForm
	layout string
	fields DateTimeStruct
	tm     time.Time
}

func Null() Param { return Param{kind: KindNull} }
func Int16(v int16) Param { return Param{kind: KindInt16, i: int64(v)} }
func Uint16(v uint16) Param { return Param{kind: KindUint16, u: uint64(v)} }
func Int32(v int32) Param { return Param{kind: KindInt32, i: int64(v)} }
func Uint32(v uint32) Param { return Param{kind: KindUint32, u: uint64(v)} }
func Int64(v int64) Param { return Param{kind: KindInt64, i: v} }
func Uint64(v uint64) Param { return Param{kind: KindUint64, u: v} }
func Float32(v float32) Param { return Param{kind: KindFloat32, f: float64(v)} }
func Float64(v float64) Param { return Param{kind: KindFloat64, f: v} }
func IPNull() Param { return Param{kind: KindIP, form: IPFormNull} }
func IPString(addr string) Param { return Param{kind: KindIP, form: IPFormString, str: addr} }

func IPv4(ip net.IP) Param {
	return Param{kind: KindIP, form: IPFormV4, ip: ip}
}

func IPv6(ip net.IP) Param {
	return Param{kind: KindIP, form: IPFormV6, ip: ip}
}

// DateTime is nanoseconds since the unix epoch.
func DateTime(ns int64) Param {
	return Param{kind: KindDateTime, dtForm: DateTimeFormNanos, i: ns}
}

// DateTimeOf keeps t as is when it falls outside the nanosecond range,
// so that encoding the row fails instead of storing a wrapped value.
func DateTimeOf(t time.Time) Param {
	if ns, err := unixNano(t); err == nil {
		return DateTime(ns)
	}
	return Param{kind: KindDateTime, dtForm: DateTimeFormTime, tm: t}
}

// DateTimeNow resolves to the clock at the moment the row is sent.
func DateTimeNow() Param {
	return Param{kind: KindDateTime, dtForm: DateTimeFormNow}
}

// DateTimeString is parsed with format when the row is encoded.
// format is a named layout (DEFAULT, RFC3339, ...), a Go layout,
// or one of the epoch units s, ms, us, ns.
func DateTimeString(value string, format string) Param {
	return Param{kind: KindDateTime, dtForm: DateTimeFormString, str: value, layout: format}
}

func DateTimeFields(v DateTimeStruct) Param {
	return Param{kind: KindDateTime, dtForm: DateTimeFormFields, fields: v}
}

func Bytes(v []byte) Param { return Param{kind: KindBytes, b: v} }
func Varchar(v string) Param { return Param{kind: KindBytes, b: []byte(v)} }
func Text(v string) Param { return Varchar(v) }
func JSON(v string) Param { return Varchar(v) }
func Clob(v string) Param { return Varchar(v) }
func Binary(v []byte) Param { return Bytes(v) }
func Blob(v []byte) Param { return Bytes(v) }

func (p Param) Kind() Kind { return p.kind }

// IsNull reports NULL in any of its forms.
func (p Param) IsNull() bool {
	return p.kind == KindNull || (p.kind == KindIP && p.form == IPFormNull)
}

func (p Param) Int() int64 { return p.i }
func (p Param) Uint() uint64 { return p.u }
func (p Param) Float() float64 { return p.f }
func (p Param) Bytes() []byte { return p.b }
func (p Param) IP() net.IP { return p.ip }
func (p Param) IPForm() IPForm { return p.form }
func (p Param) DateTimeForm() DateTimeForm { return p.dtForm }
func (p Param) DateTimeFields() DateTimeStruct { return p.fields }

// Nanos returns the datetime value of an explicit nanosecond param.
func (p Param) Nanos() int64 { return p.i }

func (p Param) Equal(o Param) bool {
	if p.IsNull() || o.IsNull() {
		return p.IsNull() && o.IsNull()
	}
	if p.kind != o.kind {
		return false
	}
	switch p.kind {
	case KindInt16, KindInt32, KindInt64:
		return p.i == o.i
	case KindUint16, KindUint32, KindUint64:
		return p.u == o.u
	case KindFloat32, KindFloat64:
		return p.f == o.f
	case KindBytes:
		return bytes.Equal(p.b, o.b)
	case KindIP:
		if p.form != o.form {
			return false
		}
		if p.form == IPFormString {
			return p.str == o.str
		}
		return p.ip.Equal(o.ip)
	case KindDateTime:
		if p.dtForm != o.dtForm {
			return false
		}
		switch p.dtForm {
		case DateTimeFormNanos:
			return p.i == o.i
		case DateTimeFormString:
			return p.str == o.str && p.layout == o.layout
		case DateTimeFormFields:
			return p.fields == o.fields
		case DateTimeFormTime:
			return p.tm.Equal(o.tm)
		default:
			return true
		}
	}
	return false
}

func (p Param) String() string {
	switch p.kind {
	case KindNull:
		return "NULL"
	case KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%s(%d)", p.kind, p.i)
	case KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%s(%d)", p.kind, p.u)
	case KindFloat32, KindFloat64:
		return fmt.Sprintf("%s(%v)", p.kind, p.f)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(p.b))
	case KindIP:
		switch p.form {
		case IPFormNull:
			return "ip(NULL)"
		case IPFormString:
			return fmt.Sprintf("ip(%q)", p.str)
		default:
			return fmt.Sprintf("ip(%s)", p.ip)
		}
	case KindDateTime:
		switch p.dtForm {
		case DateTimeFormNow:
			return "datetime(now)"
		case DateTimeFormString:
			return fmt.Sprintf("datetime(%q,%q)", p.str, p.layout)
		case DateTimeFormFields:
			return fmt.Sprintf("datetime(%+v)", p.fields)
		case DateTimeFormTime:
			return fmt.Sprintf("datetime(%s)", p.tm.Format(time.RFC3339Nano))
		default:
			return fmt.Sprintf("datetime(%d)", p.i)
		}
	}
	return p.kind.String()
}
