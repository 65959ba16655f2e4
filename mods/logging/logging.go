package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

/*
	Log rotation schedule

	"0 30 * * * *"             Every hour on the half hour
	"@hourly"                  Every hour
	"@every 1h30m"             Every hour thirty
	@daily, @midnight
*/

type Config struct {
	Console            bool          `json:"console"`
	Filename           string        `json:"filename"`
	Append             bool          `json:"append"`
	RotateSchedule     string        `json:"rotateSchedule"`
	MaxSize            int           `json:"maxSize"`
	MaxBackups         int           `json:"maxBackups"`
	MaxAge             int           `json:"maxAge"`
	Compress           bool          `json:"compress"`
	UTC                bool          `json:"utc"`
	Levels             []LevelConfig `json:"levels"`
	DefaultPrefixWidth int           `json:"defaultPrefixWidth"`
	DefaultLevel       string        `json:"defaultLevel"`
}

type LevelConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

// PresetConfigStdout writes everything to stdout, tests use it.
var PresetConfigStdout = Config{
	Filename:           "-",
	Append:             true,
	DefaultPrefixWidth: 20,
	DefaultLevel:       "TRACE",
}

var (
	mu                 sync.RWMutex
	levelConfig        = map[string]Level{}
	levelDefault       = LevelInfo
	prefixWidthDefault = 18
	defaultWriter      = []*logWriter{{Writer: os.Stdout, isTerm: true}}
	rotateCron         *cron.Cron
)

func Configure(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	levelConfig = map[string]Level{}
	for _, c := range cfg.Levels {
		levelConfig[c.Pattern] = ParseLogLevel(c.Level)
	}
	if cfg.DefaultPrefixWidth > 0 {
		prefixWidthDefault = cfg.DefaultPrefixWidth
	}
	if lvl, ok := ParseLogLevelP(cfg.DefaultLevel); ok {
		levelDefault = lvl
	}
	if rotateCron != nil {
		rotateCron.Stop()
		rotateCron = nil
	}

	switch cfg.Filename {
	case "", ".":
		defaultWriter = []*logWriter{}
	case "-":
		defaultWriter = []*logWriter{{Writer: os.Stdout, isTerm: true}}
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  !cfg.UTC,
		}
		if !cfg.Append {
			lj.Rotate()
		}
		if len(cfg.RotateSchedule) > 0 {
			rotateCron = cron.New()
			if _, err := rotateCron.AddFunc(cfg.RotateSchedule, func() { lj.Rotate() }); err != nil {
				fmt.Fprintf(os.Stderr, "ERR logger rotate schedule %s\n", err.Error())
				rotateCron = nil
			} else {
				rotateCron.Start()
			}
		}
		defaultWriter = []*logWriter{{Writer: lj}}
		if cfg.Console {
			defaultWriter = append(defaultWriter, &logWriter{Writer: os.Stdout, isTerm: true})
		}
	}
}

// Shutdown stops the rotation schedule.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if rotateCron != nil {
		rotateCron.Stop()
		rotateCron = nil
	}
}

func SetLevel(pattern string, lvl Level) {
	mu.Lock()
	levelConfig[pattern] = lvl
	mu.Unlock()
}

func SetDefaultLevel(lvl Level) {
	mu.Lock()
	levelDefault = lvl
	mu.Unlock()
}

// GetLevel returns the level of the longest pattern matching name.
func GetLevel(name string) Level {
	mu.RLock()
	defer mu.RUnlock()
	return getLevel(name)
}

func getLevel(name string) Level {
	var matchedPattern string
	var matchedLevel Level
	for pattern, level := range levelConfig {
		if match, err := path.Match(pattern, name); match && err == nil {
			if len(matchedPattern) < len(pattern) {
				matchedPattern = pattern
				matchedLevel = level
			}
		}
	}
	if matchedPattern != "" {
		return matchedLevel
	}
	return levelDefault
}

func GetLog(name string) Log {
	mu.RLock()
	defer mu.RUnlock()
	return &levelLogger{
		name:        name,
		level:       getLevel(name),
		underlying:  defaultWriter,
		prefixWidth: prefixWidthDefault,
	}
}

func NewLog(name string, writer io.Writer) Log {
	mu.RLock()
	defer mu.RUnlock()
	return &levelLogger{
		name:        name,
		level:       getLevel(name),
		underlying:  []*logWriter{{Writer: writer}},
		prefixWidth: prefixWidthDefault,
	}
}
