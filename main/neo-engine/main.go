package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/machbase/neo-append/booter"
	"github.com/machbase/neo-append/mods"
	_ "github.com/machbase/neo-append/mods/engine"
	"github.com/machbase/neo-append/mods/logging"
)

// DefaultConfig boots an in-memory engine with an EXAMPLE log table
// and a TAG table. LISTEN, DATA_DIR, LOG_LEVEL and LOG_FILE come from the
// command line flags and are visible to --config files as well.
const DefaultConfig = `
module "neo-append/logging" {
  config {
    Console      = false
    Filename     = LOG_FILE
    DefaultLevel = LOG_LEVEL
    Levels {
      Pattern = "engine-store"
      Level   = "WARN"
    }
  }
}

module "neo-append/engine" {
  config {
    ListenAddress = LISTEN
    DataDir       = DATA_DIR
    Endian        = "little"
    IdleTimeout   = "10m"
    Tables {
      Name = "EXAMPLE"
      Type = "log"
      Columns {
        Name    = "NAME"
        Type    = "varchar"
        Length  = 100
        NotNull = true
      }
      Columns {
        Name = "TIME"
        Type = "datetime"
      }
      Columns {
        Name = "VALUE"
        Type = "double"
      }
    }
    Tables {
      Name = "TAG"
      Type = "tag"
    }
  }
}
`

type EngineCmd struct {
	Config      string `name:"config" short:"c" help:"directory or file of *.hcl module definitions" placeholder:"PATH"`
	GenConfig   bool   `name:"gen-config" help:"print the default configuration and exit"`
	Listen      string `name:"listen" default:"127.0.0.1:5656" help:"listen address"`
	Data        string `name:"data" help:"data directory, empty keeps rows in memory"`
	LogLevel    string `name:"log-level" default:"INFO" enum:"TRACE,DEBUG,INFO,WARN,ERROR" help:"default log level"`
	LogFilename string `name:"log-filename" default:"-" help:"log file, - for stdout"`
	Version     bool   `name:"version" help:"show version"`
}

func main() {
	var cli EngineCmd
	_ = kong.Parse(&cli,
		kong.Name("neo-engine"),
		kong.Description("append engine speaking the CMI protocol"),
		kong.HelpOptions{NoAppSummary: false, Compact: true, FlagsLast: true},
		kong.UsageOnError(),
	)
	if cli.Version {
		fmt.Println("neo-engine", mods.VersionString())
		return
	}
	if cli.GenConfig {
		fmt.Print(DefaultConfig, "\n")
		return
	}
	os.Exit(run(&cli))
}

func run(cli *EngineCmd) int {
	bld := booter.NewBuilder()
	for name, value := range map[string]string{
		"LISTEN":    cli.Listen,
		"DATA_DIR":  cli.Data,
		"LOG_LEVEL": cli.LogLevel,
		"LOG_FILE":  cli.LogFilename,
	} {
		if err := bld.SetVariable(name, value); err != nil {
			fmt.Fprintln(os.Stderr, "config:", err.Error())
			return 1
		}
	}
	var b booter.Booter
	var err error
	if cli.Config == "" {
		b, err = bld.BuildWithContent([]byte(DefaultConfig))
	} else if st, statErr := os.Stat(cli.Config); statErr == nil && st.IsDir() {
		b, err = bld.BuildWithDir(cli.Config)
	} else {
		b, err = bld.BuildWithFiles([]string{cli.Config})
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err.Error())
		return 1
	}
	b.AddShutdownHook(func() {
		logging.GetLog("neo-engine").Info("shutdown", mods.VersionString())
	})
	if err := b.Startup(); err != nil {
		fmt.Fprintln(os.Stderr, "startup:", err.Error())
		return 1
	}
	b.WaitSignal()
	b.Shutdown()
	return 0
}
