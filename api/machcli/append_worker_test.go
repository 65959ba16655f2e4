package machcli

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/machbase/neo-append/api"
	"github.com/stretchr/testify/require"
)

func TestAppendWorkers(t *testing.T) {
	svr, db := newEngine(t)
	aws := NewAppendWorkers(db, WorkerPoolConfig{IdleTimeout: time.Minute, MaxConns: 2})
	defer aws.Stop()
	ctx := context.Background()

	wg := sync.WaitGroup{}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			aw, err := aws.Get(ctx, "example")
			if err != nil {
				t.Errorf("get %s", err.Error())
				return
			}
			defer aw.Close()
			for i := 0; i < 25; i++ {
				if err := aw.Append(g*100+i, fmt.Sprintf("name-%d", i), nil); err != nil {
					t.Errorf("append %s", err.Error())
					return
				}
			}
		}(g)
	}
	wg.Wait()
	require.Equal(t, 1, aws.Len())

	aw, err := aws.Get(ctx, "EXAMPLE")
	require.NoError(t, err)
	require.Equal(t, "EXAMPLE", aw.TableName())
	require.Equal(t, api.TableTypeLog, aw.TableType())
	cols, err := aw.Columns()
	require.NoError(t, err)
	require.Equal(t, []string{"ID", "NAME", "DOC"}, cols.Names())
	require.NoError(t, aw.WithInputColumns("id", "name").Append(1000, "last"))

	// held by a writer, the worker outlives the flush
	aws.Flush("example")
	require.Equal(t, 0, aws.Len())
	require.NoError(t, aw.AppendLogTime(time.Unix(0, 1), 1001, "late", nil))
	success, fail, err := aw.Close()
	require.NoError(t, err)
	require.Equal(t, int64(102), success)
	require.Zero(t, fail)

	require.ErrorIs(t, aw.Append(1002, "closed", nil), errWorkerStopped)
	count, err := svr.RowCount("EXAMPLE")
	require.NoError(t, err)
	require.Equal(t, 102, count)
	require.Equal(t, 2, aws.conns.Remains())
}

func TestAppendWorkerIdle(t *testing.T) {
	svr, db := newEngine(t)
	aws := NewAppendWorkers(db, WorkerPoolConfig{IdleTimeout: 100 * time.Millisecond})
	defer aws.Stop()

	aw, err := aws.Get(context.Background(), "tag")
	require.NoError(t, err)
	require.NoError(t, aw.Append("sensor.1", time.Now(), 1.0))
	_, _, err = aw.Close()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := svr.RowCount("TAG")
		return err == nil && n == 1 && aws.Len() == 0
	}, 3*time.Second, 20*time.Millisecond)

	// a new worker starts on demand
	aw, err = aws.Get(context.Background(), "tag")
	require.NoError(t, err)
	require.Equal(t, 1, aws.Len())
	require.NoError(t, aw.AppendLogTime(time.Now(), "sensor.2", 2.0))
	_, _, err = aw.Close()
	require.NoError(t, err)
	aws.Flush()
	n, err := svr.RowCount("TAG")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestAppendWorkersUnknownTable(t *testing.T) {
	_, db := newEngine(t)
	aws := NewAppendWorkers(db, WorkerPoolConfig{MaxConns: 1})
	defer aws.Stop()

	_, err := aws.Get(context.Background(), "not_exists")
	require.ErrorIs(t, err, api.ErrUnknownTable)
	require.Equal(t, 0, aws.Len())
	require.Equal(t, 1, aws.conns.Remains())

	aw, err := aws.Get(context.Background(), "example")
	require.NoError(t, err)
	_, _, err = aw.Close()
	require.NoError(t, err)
}
