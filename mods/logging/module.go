package logging

import (
	"fmt"

	"github.com/machbase/neo-append/booter"
	"github.com/robfig/cron/v3"
)

const ModuleId = "neo-append/logging"

// DefaultConfig writes INFO and above to stdout. A file target is rotated
// at midnight and by size.
var DefaultConfig = Config{
	Filename:           "-",
	Append:             true,
	RotateSchedule:     "@midnight",
	MaxSize:            10,
	MaxBackups:         1,
	MaxAge:             7,
	DefaultPrefixWidth: 16,
	DefaultLevel:       "INFO",
}

// module configures logging when it is instantiated, so modules booted
// after it get loggers at the configured levels.
type module struct {
	conf *Config
	log  Log
}

func init() {
	booter.Register(ModuleId,
		func() *Config {
			conf := DefaultConfig
			return &conf
		},
		newModule,
	)
}

func newModule(conf *Config) (booter.Boot, error) {
	if err := checkConfig(conf); err != nil {
		return nil, err
	}
	Configure(conf)
	return &module{conf: conf, log: GetLog("logging")}, nil
}

func checkConfig(conf *Config) error {
	if conf.DefaultLevel != "" {
		if _, ok := ParseLogLevelP(conf.DefaultLevel); !ok {
			return fmt.Errorf("unknown default level %q", conf.DefaultLevel)
		}
	}
	for _, lc := range conf.Levels {
		if _, ok := ParseLogLevelP(lc.Level); !ok {
			return fmt.Errorf("unknown level %q for %q", lc.Level, lc.Pattern)
		}
	}
	switch conf.Filename {
	case "", ".", "-":
	default:
		if conf.RotateSchedule != "" {
			if _, err := cron.ParseStandard(conf.RotateSchedule); err != nil {
				return fmt.Errorf("rotate schedule %q, %s", conf.RotateSchedule, err.Error())
			}
		}
	}
	return nil
}

func (m *module) Start() error {
	target := m.conf.Filename
	switch target {
	case "", ".":
		target = "discard"
	case "-":
		target = "stdout"
	}
	mu.RLock()
	lvl := levelDefault
	mu.RUnlock()
	m.log.Infof("logging to %s, default level %s", target, lvl)
	return nil
}

func (m *module) Stop() {
	m.log.Infof("log lines total=%d warn=%d error=%d",
		totalCounter.Count(), warnCounter.Count(), errorCounter.Count())
	Shutdown()
}
