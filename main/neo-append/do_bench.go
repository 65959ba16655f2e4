package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/api/machcli"
)

type BenchCmd struct {
	AppendFlags `embed:""`
	Rows        int `name:"rows" short:"n" default:"10000" help:"rows per writer"`
	Writers     int `name:"writers" short:"w" default:"4" help:"concurrent writers"`
	MaxConns    int `name:"max-conns" default:"2" help:"connections shared by the writers"`
}

func (cmd *BenchCmd) Run(cli *Cli) error {
	opts, err := cmd.options()
	if err != nil {
		return err
	}
	db, err := cli.database()
	if err != nil {
		return err
	}
	defer db.Close()

	workers := machcli.NewAppendWorkers(db, machcli.WorkerPoolConfig{
		MaxConns:  cmd.MaxConns,
		QueueSize: cmd.Writers * 100,
		Options:   opts,
	})
	ctx := context.Background()
	// the first Get opens the appender, writers share it
	probe, err := workers.Get(ctx, cmd.Table)
	if err != nil {
		workers.Stop()
		return err
	}
	columns, err := probe.Columns()
	if err != nil {
		_, _, _ = probe.Close()
		workers.Stop()
		return err
	}

	started := time.Now()
	var invalid atomic.Int64
	wg := sync.WaitGroup{}
	for w := 0; w < cmd.Writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			aw, err := workers.Get(ctx, cmd.Table)
			if err != nil {
				fmt.Fprintf(os.Stderr, "writer %d, %s\n", w, err.Error())
				return
			}
			defer aw.Close()
			for i := 0; i < cmd.Rows; i++ {
				if err := aw.Append(generateRow(columns, w, i)...); err != nil {
					invalid.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	workers.Flush(cmd.Table)
	success, fail, _ := probe.Close()
	workers.Stop()

	printSummary(os.Stdout, []summaryRow{{
		Table:   probe.TableName(),
		Lines:   cmd.Rows * cmd.Writers,
		Invalid: int(invalid.Load()),
		Success: success,
		Fail:    fail,
		Elapsed: time.Since(started),
	}})
	return nil
}

func generateRow(columns api.Columns, writer int, seq int) []any {
	ret := make([]any, len(columns))
	now := time.Now()
	for i, c := range columns {
		switch c.Type {
		case api.ColumnTypeShort, api.ColumnTypeUShort:
			ret[i] = seq % 32768
		case api.ColumnTypeInteger, api.ColumnTypeUInteger, api.ColumnTypeLong, api.ColumnTypeULong:
			ret[i] = writer*1_000_000 + seq
		case api.ColumnTypeFloat, api.ColumnTypeDouble:
			ret[i] = float64(seq) * 0.5
		case api.ColumnTypeDatetime:
			ret[i] = now
		case api.ColumnTypeIPv4:
			ret[i] = fmt.Sprintf("10.0.%d.%d", writer%256, seq%256)
		case api.ColumnTypeIPv6:
			ret[i] = "::1"
		case api.ColumnTypeJSON:
			ret[i] = map[string]any{"writer": writer, "seq": seq}
		case api.ColumnTypeBinary, api.ColumnTypeBlob:
			ret[i] = []byte{byte(writer), byte(seq)}
		default:
			if c.IsTagName() {
				ret[i] = fmt.Sprintf("bench.%d", writer)
			} else {
				ret[i] = fmt.Sprintf("w%d-%d", writer, seq)
			}
		}
	}
	return ret
}
