package api

import "time"

type AppenderOption interface {
	appenderOption()
}

// AppenderOptionBuffer sets the flush thresholds of the append session.
// Zero keeps the default.
type AppenderOptionBuffer struct {
	MaxRows  int
	MaxBytes int
}

func (AppenderOptionBuffer) appenderOption() {}

func WithAppenderBuffer(maxRows int, maxBytes int) *AppenderOptionBuffer {
	return &AppenderOptionBuffer{MaxRows: maxRows, MaxBytes: maxBytes}
}

// AppenderOptionInterval flushes pending rows periodically, 0 disables.
type AppenderOptionInterval struct {
	Interval time.Duration
}

func (AppenderOptionInterval) appenderOption() {}

func WithAppenderInterval(d time.Duration) *AppenderOptionInterval {
	return &AppenderOptionInterval{Interval: d}
}

// AppenderOptionErrorCheck sets how many consecutive rejected rows
// make the engine abandon the rest of a batch, 0 means never.
type AppenderOptionErrorCheck struct {
	Count int
}

func (AppenderOptionErrorCheck) appenderOption() {}

func WithAppenderErrorCheck(count int) *AppenderOptionErrorCheck {
	return &AppenderOptionErrorCheck{Count: count}
}

// AppenderOptionTimeformat sets how integer and string values are
// converted for datetime columns: "s", "ms", "us", "ns" or a named layout.
type AppenderOptionTimeformat struct {
	Format   string
	Location *time.Location
}

func (AppenderOptionTimeformat) appenderOption() {}

func WithAppenderTimeformat(format string, tz *time.Location) *AppenderOptionTimeformat {
	return &AppenderOptionTimeformat{Format: format, Location: tz}
}

// AppenderOptionRejectHandler receives every row the engine did not store.
type AppenderOptionRejectHandler struct {
	Handler func(code int, msg string, row []byte)
}

func (AppenderOptionRejectHandler) appenderOption() {}

func WithAppenderRejectHandler(fn func(code int, msg string, row []byte)) *AppenderOptionRejectHandler {
	return &AppenderOptionRejectHandler{Handler: fn}
}
