package api

import (
	"errors"
	"fmt"
)

// ErrorCode classifies append failures.
type ErrorCode int

const (
	ErrorCodeNone ErrorCode = iota
	ErrorCodeAlreadyOpen
	ErrorCodeSessionClosed
	ErrorCodeUnknownTable
	ErrorCodeSchemaMismatch
	ErrorCodeTypeMismatch
	ErrorCodeInvalidLength
	ErrorCodeInvalidAddress
	ErrorCodeMalformedDateTime
	ErrorCodeTransportFailure
	ErrorCodeRowRejected
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNone:
		return "None"
	case ErrorCodeAlreadyOpen:
		return "AlreadyOpen"
	case ErrorCodeSessionClosed:
		return "SessionClosed"
	case ErrorCodeUnknownTable:
		return "UnknownTable"
	case ErrorCodeSchemaMismatch:
		return "SchemaMismatch"
	case ErrorCodeTypeMismatch:
		return "TypeMismatch"
	case ErrorCodeInvalidLength:
		return "InvalidLength"
	case ErrorCodeInvalidAddress:
		return "InvalidAddress"
	case ErrorCodeMalformedDateTime:
		return "MalformedDateTime"
	case ErrorCodeTransportFailure:
		return "TransportFailure"
	case ErrorCodeRowRejected:
		return "RowRejected"
	default:
		return fmt.Sprintf("ErrorCode-%d", int(c))
	}
}

// AppendError is returned by the append path. Two AppendErrors
// match with errors.Is when their codes are equal.
type AppendError struct {
	Code  ErrorCode
	Msg   string
	Cause error
}

func (e *AppendError) Error() string {
	switch {
	case e.Msg == "" && e.Cause == nil:
		return e.Code.String()
	case e.Cause == nil:
		return e.Msg
	case e.Msg == "":
		return e.Cause.Error()
	default:
		return e.Msg + ", " + e.Cause.Error()
	}
}

func (e *AppendError) Unwrap() error {
	return e.Cause
}

func (e *AppendError) Is(target error) bool {
	var o *AppendError
	if errors.As(target, &o) {
		return o.Code == e.Code
	}
	return false
}

func NewAppendError(code ErrorCode, format string, args ...any) error {
	return &AppendError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func WrapAppendError(code ErrorCode, cause error, format string, args ...any) error {
	return &AppendError{Code: code, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf returns the ErrorCode carried by err, or ErrorCodeNone.
func CodeOf(err error) ErrorCode {
	var ae *AppendError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrorCodeNone
}

func IsAppendError(err error) bool {
	var ae *AppendError
	return errors.As(err, &ae)
}

var (
	ErrAlreadyOpen       = &AppendError{Code: ErrorCodeAlreadyOpen, Msg: "append session already open"}
	ErrSessionClosed     = &AppendError{Code: ErrorCodeSessionClosed, Msg: "append session closed"}
	ErrUnknownTable      = &AppendError{Code: ErrorCodeUnknownTable, Msg: "unknown table"}
	ErrSchemaMismatch    = &AppendError{Code: ErrorCodeSchemaMismatch, Msg: "schema mismatch"}
	ErrTypeMismatch      = &AppendError{Code: ErrorCodeTypeMismatch, Msg: "type mismatch"}
	ErrInvalidLength     = &AppendError{Code: ErrorCodeInvalidLength, Msg: "invalid length"}
	ErrInvalidAddress    = &AppendError{Code: ErrorCodeInvalidAddress, Msg: "invalid address"}
	ErrMalformedDateTime = &AppendError{Code: ErrorCodeMalformedDateTime, Msg: "malformed datetime"}
	ErrTransportFailure  = &AppendError{Code: ErrorCodeTransportFailure, Msg: "transport failure"}
	ErrRowRejected       = &AppendError{Code: ErrorCodeRowRejected, Msg: "row rejected"}
)

var ErrUnknownTableName = func(table string) error {
	return NewAppendError(ErrorCodeUnknownTable, "table '%s' does not exist", table)
}

var ErrColumnCount = func(table string, expect int, actual int) error {
	return NewAppendError(ErrorCodeSchemaMismatch, "value count %d, table '%s' requires %d columns to append", actual, table, expect)
}

var ErrColumnType = func(col string, typ ColumnType, value any) error {
	return NewAppendError(ErrorCodeTypeMismatch, "column %s (%s) does not accept %v", col, typ, value)
}

var ErrColumnLength = func(col string, length int, limit int) error {
	return NewAppendError(ErrorCodeInvalidLength, "column %s value length %d exceeds %d", col, length, limit)
}

var ErrAddress = func(col string, value string) error {
	return NewAppendError(ErrorCodeInvalidAddress, "column %s invalid address %q", col, value)
}

var ErrDateTime = func(col string, cause error) error {
	return WrapAppendError(ErrorCodeMalformedDateTime, cause, "column %s malformed datetime", col)
}

var ErrTransport = func(op string, cause error) error {
	return WrapAppendError(ErrorCodeTransportFailure, cause, "%s", op)
}

var ErrNotLogTable = func(table string) error {
	return NewAppendError(ErrorCodeSchemaMismatch, "%s is not a log table, use Append() instead", table)
}
