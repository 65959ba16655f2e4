package logging

import (
	"strings"
)

type Level int

const (
	LevelAll Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var logLevelNames = []string{"ALL", "TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

// ParseLogLevel returns LevelAll for unknown names.
func ParseLogLevel(name string) Level {
	lvl, _ := ParseLogLevelP(name)
	return lvl
}

func ParseLogLevelP(name string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	default:
		return LevelAll, false
	case "ALL":
		return LevelAll, true
	case "TRACE":
		return LevelTrace, true
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "NONE":
		return LevelError + 1, true
	}
}

func (lvl Level) String() string {
	if lvl >= 0 && int(lvl) < len(logLevelNames) {
		return logLevelNames[lvl]
	}
	if lvl == LevelError+1 {
		return "NONE"
	}
	return "UNKNOWN"
}

func (lvl *Level) UnmarshalJSON(b []byte) error {
	*lvl = ParseLogLevel(strings.Trim(string(b), `"`))
	return nil
}

type Log interface {
	TraceEnabled() bool
	Trace(...any)
	Tracef(format string, args ...any)
	DebugEnabled() bool
	Debug(...any)
	Debugf(format string, args ...any)
	InfoEnabled() bool
	Info(...any)
	Infof(format string, args ...any)
	WarnEnabled() bool
	Warn(...any)
	Warnf(format string, args ...any)
	ErrorEnabled() bool
	Error(...any)
	Errorf(format string, args ...any)

	LogEnabled(level Level) bool
	Log(level Level, m ...any)
	Logf(level Level, format string, args ...any)

	SetLevel(level Level)
	Level() Level
}

type levelLogger struct {
	name        string
	level       Level
	underlying  []*logWriter
	prefixWidth int
}

func (l *levelLogger) SetLevel(level Level) { l.level = level }
func (l *levelLogger) Level() Level         { return l.level }

func (l *levelLogger) TraceEnabled() bool { return l.level <= LevelTrace }
func (l *levelLogger) DebugEnabled() bool { return l.level <= LevelDebug }
func (l *levelLogger) InfoEnabled() bool  { return l.level <= LevelInfo }
func (l *levelLogger) WarnEnabled() bool  { return l.level <= LevelWarn }
func (l *levelLogger) ErrorEnabled() bool { return l.level <= LevelError }

func (l *levelLogger) LogEnabled(lvl Level) bool { return l.level <= lvl }

func (l *levelLogger) Trace(m ...any) { l.write(LevelTrace, "", m) }
func (l *levelLogger) Debug(m ...any) { l.write(LevelDebug, "", m) }
func (l *levelLogger) Info(m ...any)  { l.write(LevelInfo, "", m) }
func (l *levelLogger) Warn(m ...any)  { l.write(LevelWarn, "", m) }
func (l *levelLogger) Error(m ...any) { l.write(LevelError, "", m) }

func (l *levelLogger) Log(lvl Level, m ...any) { l.write(lvl, "", m) }

func (l *levelLogger) Tracef(format string, args ...any)          { l.write(LevelTrace, format, args) }
func (l *levelLogger) Debugf(format string, args ...any)          { l.write(LevelDebug, format, args) }
func (l *levelLogger) Infof(format string, args ...any)           { l.write(LevelInfo, format, args) }
func (l *levelLogger) Warnf(format string, args ...any)           { l.write(LevelWarn, format, args) }
func (l *levelLogger) Errorf(format string, args ...any)          { l.write(LevelError, format, args) }
func (l *levelLogger) Logf(lvl Level, format string, args ...any) { l.write(lvl, format, args) }
