package logging_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/machbase/neo-append/booter"
	"github.com/machbase/neo-append/mods/logging"
	"github.com/stretchr/testify/require"
)

func TestLoggingModule(t *testing.T) {
	booter.SetBootLog(io.Discard)
	defer logging.Configure(&logging.PresetConfigStdout)

	logFile := filepath.Join(t.TempDir(), "engine.log")
	bld := booter.NewBuilder()
	require.NoError(t, bld.SetVariable("LOG_FILE", logFile))
	b, err := bld.BuildWithContent([]byte(`
		module "neo-append/logging" {
			config {
				Filename     = LOG_FILE
				DefaultLevel = "WARN"
				Levels {
					Pattern = "engine*"
					Level   = "DEBUG"
				}
			}
		}
	`))
	require.NoError(t, err)
	require.NoError(t, b.Startup())

	conf := b.GetConfig(logging.ModuleId).(*logging.Config)
	require.Equal(t, "@midnight", conf.RotateSchedule)
	require.Equal(t, logging.LevelDebug, logging.GetLevel("engine-session"))
	require.Equal(t, logging.LevelWarn, logging.GetLevel("append-example"))

	logging.GetLog("engine-session").Debug("visible")
	logging.GetLog("append-example").Info("hidden")
	b.Shutdown()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(content), "visible")
	require.NotContains(t, string(content), "hidden")
}

func TestLoggingModuleConfigErrors(t *testing.T) {
	booter.SetBootLog(io.Discard)
	defer logging.Configure(&logging.PresetConfigStdout)

	for _, tt := range []struct {
		config string
		errMsg string
	}{
		{`DefaultLevel = "LOUD"`, `unknown default level "LOUD"`},
		{`Levels {
			Pattern = "engine"
			Level   = "VERBOSE"
		}`, `unknown level "VERBOSE" for "engine"`},
		{`Filename = "` + filepath.Join(t.TempDir(), "x.log") + `"
		  RotateSchedule = "every tuesday"`, `rotate schedule "every tuesday"`},
	} {
		b, err := booter.NewBuilder().BuildWithContent([]byte(`
			module "neo-append/logging" {
				config {
					` + tt.config + `
				}
			}
		`))
		require.NoError(t, err)
		err = b.Startup()
		require.ErrorContains(t, err, tt.errMsg)
	}
}
