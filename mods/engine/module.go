package engine

import (
	"github.com/machbase/neo-append/booter"
)

const ModuleId = "neo-append/engine"

func init() {
	RegisterBootFactory()
}

func RegisterBootFactory() {
	defaultConf := Config{
		ListenAddress: "127.0.0.1:5656",
		Endian:        "little",
	}
	booter.Register(ModuleId,
		func() *Config {
			clone := defaultConf
			return &clone
		},
		func(conf *Config) (booter.Boot, error) {
			svr, err := NewServer(conf)
			if err != nil {
				return nil, err
			}
			return svr, nil
		},
	)
}
