package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/machbase/neo-append/api/machnet"
)

type summaryRow struct {
	Table   string
	Lines   int
	Invalid int
	Success int64
	Fail    int64
	Elapsed time.Duration
}

func printSummary(w io.Writer, rows []summaryRow) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	style := table.StyleLight
	style.Options.SeparateColumns = true
	style.Options.DrawBorder = true
	tw.SetStyle(style)
	tw.AppendHeader(table.Row{"TABLE", "INPUT", "INVALID", "SUCCESS", "FAIL", "FLUSHES", "FLUSH AVG", "ELAPSED", "ROWS/SEC"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	for _, r := range rows {
		stats := machnet.TableAppendStats(r.Table)
		rate := 0.0
		if secs := r.Elapsed.Seconds(); secs > 0 {
			rate = float64(r.Success) / secs
		}
		tw.AppendRow(table.Row{
			strings.ToUpper(r.Table),
			r.Lines,
			r.Invalid,
			r.Success,
			r.Fail,
			stats.Flushes,
			time.Duration(stats.FlushMeanNano).Round(time.Microsecond).String(),
			r.Elapsed.Round(time.Millisecond).String(),
			fmt.Sprintf("%.0f", rate),
		})
	}
	tw.Render()
}
