package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/machcli"
	"github.com/machbase/neo-append/mods"
	"github.com/machbase/neo-append/mods/logging"
)

type ServerFlags struct {
	Server   string        `name:"server" short:"s" default:"tcp://127.0.0.1:5656" help:"engine address"`
	User     string        `name:"user" short:"u" default:"sys" help:"user name"`
	Password string        `name:"password" short:"p" default:"manager" help:"password"`
	Timeout  time.Duration `name:"timeout" default:"5s" help:"connect timeout"`
}

type AppendFlags struct {
	Table      string        `arg:"" name:"TABLE" help:"table to append"`
	MaxRows    int           `name:"buffer-rows" help:"rows that make an append flush"`
	MaxBytes   int           `name:"buffer-bytes" help:"bytes that make an append flush"`
	Interval   time.Duration `name:"interval" help:"periodic flush interval, 0 disables"`
	ErrorCheck int           `name:"error-check" help:"rejected rows that abort the rest of a batch, 0 never"`
	Timeformat string        `name:"timeformat" default:"" help:"s, ms, us, ns or a time layout name"`
	Tz         string        `name:"tz" default:"UTC" help:"time zone of time strings"`
	Quiet      bool          `name:"quiet" short:"q" help:"do not print rejected rows"`
}

func (af *AppendFlags) options() ([]api.AppenderOption, error) {
	loc, err := time.LoadLocation(af.Tz)
	if err != nil {
		return nil, err
	}
	opts := []api.AppenderOption{
		api.WithAppenderBuffer(af.MaxRows, af.MaxBytes),
		api.WithAppenderTimeformat(af.Timeformat, loc),
	}
	if af.Interval > 0 {
		opts = append(opts, api.WithAppenderInterval(af.Interval))
	}
	if af.ErrorCheck > 0 {
		opts = append(opts, api.WithAppenderErrorCheck(af.ErrorCheck))
	}
	if !af.Quiet {
		opts = append(opts, api.WithAppenderRejectHandler(func(code int, msg string, row []byte) {
			fmt.Fprintf(os.Stderr, "REJECT %d %s\n", code, msg)
		}))
	}
	return opts, nil
}

type Cli struct {
	ServerFlags `embed:""`
	LogLevel string `name:"log-level" default:"WARN" enum:"TRACE,DEBUG,INFO,WARN,ERROR" help:"log level"`

	Import  ImportCmd  `cmd:"" name:"import" help:"append rows of a csv file"`
	Bench   BenchCmd   `cmd:"" name:"bench" help:"append generated rows from concurrent writers"`
	Version VersionCmd `cmd:"" name:"version" help:"show version"`
}

type VersionCmd struct{}

func (v *VersionCmd) Run(cli *Cli) error {
	fmt.Println("neo-append", mods.VersionString())
	return nil
}

func (sf *ServerFlags) database() (*machcli.Database, error) {
	host, port, err := machcli.ParseAddress(sf.Server)
	if err != nil {
		return nil, err
	}
	return machcli.NewDatabase(&machcli.Config{
		Host:           host,
		Port:           port,
		User:           sf.User,
		Password:       sf.Password,
		ConnectTimeout: sf.Timeout,
	})
}

func main() {
	var cli Cli
	ctx := kong.Parse(&cli,
		kong.Name("neo-append"),
		kong.Description("bulk append client"),
		kong.HelpOptions{NoAppSummary: false, Compact: true, FlagsLast: true},
		kong.UsageOnError(),
	)
	conf := logging.PresetConfigStdout
	conf.DefaultLevel = cli.LogLevel
	logging.Configure(&conf)
	err := ctx.Run(&cli)
	logging.Shutdown()
	ctx.FatalIfErrorf(err)
}
