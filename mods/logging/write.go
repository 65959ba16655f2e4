package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

const (
	yellow = "\033[90;43m"
	red    = "\033[97;41m"
	reset  = "\033[0m"
)

var (
	totalCounter = gometrics.NewRegisteredCounter("log.total", gometrics.DefaultRegistry)
	warnCounter  = gometrics.NewRegisteredCounter("log.warns", gometrics.DefaultRegistry)
	errorCounter = gometrics.NewRegisteredCounter("log.errors", gometrics.DefaultRegistry)
)

type logWriter struct {
	sync.Mutex
	io.Writer
	isTerm bool
}

func (w *logWriter) writeLine(line string) {
	w.Lock()
	_, _ = io.WriteString(w.Writer, line)
	w.Unlock()
}

func (l *levelLogger) write(lvl Level, format string, args []any) {
	if lvl < l.level {
		return
	}
	totalCounter.Inc(1)
	if lvl == LevelWarn {
		warnCounter.Inc(1)
	} else if lvl == LevelError {
		errorCounter.Inc(1)
	}
	if len(l.underlying) == 0 {
		return
	}

	var msg string
	if format == "" {
		toks := make([]string, len(args))
		for i, a := range args {
			if s, ok := a.(string); ok {
				toks[i] = s
			} else {
				toks[i] = fmt.Sprintf("%v", a)
			}
		}
		msg = strings.Join(toks, " ")
	} else {
		msg = fmt.Sprintf(format, args...)
	}

	timestamp := time.Now().Format("2006/01/02 15:04:05.000")
	levelName := fmt.Sprintf("%-5s", lvl.String())
	name := fmt.Sprintf("%-*s", l.prefixWidth, l.name)

	for _, w := range l.underlying {
		if w.isTerm {
			colorBegin, colorEnd := "", ""
			if lvl == LevelWarn {
				colorBegin, colorEnd = yellow, reset
			} else if lvl == LevelError {
				colorBegin, colorEnd = red, reset
			}
			w.writeLine(fmt.Sprintf("%s %s%s%s %s %s\n", timestamp, colorBegin, levelName, colorEnd, name, msg))
		} else {
			w.writeLine(fmt.Sprintf("%s %s %s %s\n", timestamp, levelName, name, msg))
		}
	}
}
