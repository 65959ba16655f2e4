package machnet

import (
	"strings"

	"github.com/rcrowley/go-metrics"
)

type appendMetrics struct {
	enqueued metrics.Counter
	success  metrics.Counter
	failure  metrics.Counter
	flushes  metrics.Counter
	latency  metrics.Timer
}

func metricName(table string, name string) string {
	return "append." + strings.ToLower(table) + "." + name
}

func newAppendMetrics(table string) *appendMetrics {
	return &appendMetrics{
		enqueued: metrics.GetOrRegisterCounter(metricName(table, "enqueued"), metrics.DefaultRegistry),
		success:  metrics.GetOrRegisterCounter(metricName(table, "success"), metrics.DefaultRegistry),
		failure:  metrics.GetOrRegisterCounter(metricName(table, "fail"), metrics.DefaultRegistry),
		flushes:  metrics.GetOrRegisterCounter(metricName(table, "flush"), metrics.DefaultRegistry),
		latency:  metrics.GetOrRegisterTimer(metricName(table, "flush.latency"), metrics.DefaultRegistry),
	}
}

// AppendStats is a process-wide snapshot of the appends to one table.
type AppendStats struct {
	Enqueued      int64
	Success       int64
	Fail          int64
	Flushes       int64
	FlushMeanNano float64
	FlushP99Nano  float64
}

func TableAppendStats(table string) AppendStats {
	m := newAppendMetrics(table)
	lat := m.latency.Snapshot()
	return AppendStats{
		Enqueued:      m.enqueued.Count(),
		Success:       m.success.Count(),
		Fail:          m.failure.Count(),
		Flushes:       m.flushes.Count(),
		FlushMeanNano: lat.Mean(),
		FlushP99Nano:  lat.Percentile(0.99),
	}
}
