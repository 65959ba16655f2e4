package logging

import (
	"bytes"
	"strings"
	"testing"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/require"
)

func TestLevelPattern(t *testing.T) {
	Configure(&Config{
		Filename:     ".",
		DefaultLevel: "WARN",
		Levels: []LevelConfig{
			{Pattern: "append-*", Level: "DEBUG"},
			{Pattern: "append-metrics*", Level: "ERROR"},
		},
	})
	defer Configure(&PresetConfigStdout)

	require.Equal(t, LevelWarn, GetLevel("engine"))
	require.Equal(t, LevelDebug, GetLevel("append-example"))
	require.Equal(t, LevelError, GetLevel("append-metrics-x"))
}

func TestLogOutput(t *testing.T) {
	Configure(&Config{Filename: ".", DefaultLevel: "INFO", DefaultPrefixWidth: 8})
	defer Configure(&PresetConfigStdout)

	buf := &bytes.Buffer{}
	log := NewLog("test", buf)
	total := gometrics.DefaultRegistry.Get("log.total").(gometrics.Counter).Count()
	warns := gometrics.DefaultRegistry.Get("log.warns").(gometrics.Counter).Count()

	log.Debug("hidden")
	log.Info("open", "rows:", 10)
	log.Warnf("flush %d rows failed", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "INFO  test     open rows: 10"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], "WARN  test     flush 3 rows failed"), lines[1])
	require.Equal(t, total+2, gometrics.DefaultRegistry.Get("log.total").(gometrics.Counter).Count())
	require.Equal(t, warns+1, gometrics.DefaultRegistry.Get("log.warns").(gometrics.Counter).Count())
}

func TestParseLogLevel(t *testing.T) {
	for _, name := range []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"} {
		lvl, ok := ParseLogLevelP(strings.ToLower(name))
		require.True(t, ok)
		require.Equal(t, name, lvl.String())
	}
	_, ok := ParseLogLevelP("verbose")
	require.False(t, ok)
	require.Equal(t, "NONE", ParseLogLevel("none").String())
}
