package machcli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/machbase/neo-append/api"
	"github.com/machbase/neo-append/mods/logging"
)

type WorkerPoolConfig struct {
	// IdleTimeout stops a worker that had no appends for the duration.
	IdleTimeout time.Duration
	// QueueSize is the number of rows a worker buffers before Append blocks.
	QueueSize int
	// MaxConns limits the connections held by workers.
	MaxConns int
	Options  []api.AppenderOption
}

// AppendWorkers shares one appender per table among many writers.
// A worker nobody appended to within IdleTimeout is closed.
type AppendWorkers struct {
	db    *Database
	conf  WorkerPoolConfig
	conns *Pool[*Conn]
	cache *ttlcache.Cache[string, *AppendWorker]
	mu    sync.Mutex
	log   logging.Log
}

func NewAppendWorkers(db *Database, conf WorkerPoolConfig) *AppendWorkers {
	if conf.IdleTimeout <= 0 {
		conf.IdleTimeout = 30 * time.Second
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = 1000
	}
	if conf.MaxConns <= 0 {
		conf.MaxConns = 4
	}
	ret := &AppendWorkers{
		db:   db,
		conf: conf,
		log:  logging.GetLog("append-workers"),
	}
	ret.conns = NewPool(PoolConfig[*Conn]{
		Capacity:   conf.MaxConns,
		Creator:    db.Connect,
		Destructor: func(c *Conn) error { return c.Close() },
	})
	ret.cache = ttlcache.New(
		ttlcache.WithTTL[string, *AppendWorker](conf.IdleTimeout),
	)
	ret.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *AppendWorker]) {
		// eviction runs under the cache lock
		go ret.evicted(item.Value(), reason)
	})
	go ret.cache.Start()
	return ret
}

// Get returns the worker of the table, starting one if needed.
// Every Get must be paired with a Close of the returned worker.
func (aws *AppendWorkers) Get(ctx context.Context, tableName string) (*AppendWorker, error) {
	tableName = strings.ToUpper(tableName)
	if aw := aws.acquire(tableName); aw != nil {
		return aw, nil
	}

	// the connection wait happens outside the lock, releases need it
	conn, err := aws.conns.Get(ctx)
	if err != nil {
		return nil, err
	}
	appender, err := conn.Appender(ctx, tableName, aws.conf.Options...)
	if err != nil {
		_ = aws.conns.Put(conn)
		return nil, err
	}

	aws.mu.Lock()
	defer aws.mu.Unlock()
	if item := aws.cache.Get(tableName); item != nil {
		_, _, _ = appender.Close()
		_ = aws.conns.Put(conn)
		aw := item.Value()
		aw.refCount++
		return aw, nil
	}
	aw := &AppendWorker{
		owner:    aws,
		conn:     conn,
		appender: appender.(*Appender),
		refCount: 1,
		appendC:  make(chan appendReq, aws.conf.QueueSize),
		stopC:    make(chan struct{}),
		log:      logging.GetLog(fmt.Sprintf("appender-%s", strings.ToLower(tableName))),
	}
	aw.start()
	aws.cache.Set(tableName, aw, ttlcache.DefaultTTL)
	return aw, nil
}

func (aws *AppendWorkers) acquire(tableName string) *AppendWorker {
	aws.mu.Lock()
	defer aws.mu.Unlock()
	if item := aws.cache.Get(tableName); item != nil {
		aw := item.Value()
		aw.refCount++
		return aw
	}
	return nil
}

// Len is the number of running workers that accept new writers.
func (aws *AppendWorkers) Len() int {
	return aws.cache.Len()
}

func (aws *AppendWorkers) evicted(aw *AppendWorker, reason ttlcache.EvictionReason) {
	aws.mu.Lock()
	aw.detached = true
	refs := aw.refCount
	aws.mu.Unlock()
	aw.log.Debugf("evicted reason=%d refs=%d", reason, refs)
	stop := refs <= 0
	if stop {
		aw.stop()
	}
}

func (aws *AppendWorkers) release(aw *AppendWorker) {
	aws.mu.Lock()
	aw.refCount--
	stop := aw.detached && aw.refCount <= 0
	aws.mu.Unlock()
	if stop {
		aw.stop()
	}
}

// Flush closes the workers of the tables, or all workers when no table
// is given. Rows queued so far are appended first.
func (aws *AppendWorkers) Flush(tables ...string) {
	var workers []*AppendWorker
	if len(tables) == 0 {
		for _, item := range aws.cache.Items() {
			workers = append(workers, item.Value())
		}
		aws.cache.DeleteAll()
	} else {
		for _, t := range tables {
			if item := aws.cache.Get(strings.ToUpper(t), ttlcache.WithDisableTouchOnHit[string, *AppendWorker]()); item != nil {
				workers = append(workers, item.Value())
				aws.cache.Delete(item.Key())
			}
		}
	}
	for _, aw := range workers {
		aws.evicted(aw, ttlcache.EvictionReasonDeleted)
	}
}

// Stop closes every worker, then the pooled connections.
func (aws *AppendWorkers) Stop() {
	aws.cache.Stop()
	workers := []*AppendWorker{}
	for _, item := range aws.cache.Items() {
		workers = append(workers, item.Value())
	}
	aws.cache.DeleteAll()
	for _, aw := range workers {
		aw.stop()
	}
	if err := aws.conns.Close(); err != nil {
		aws.log.Warnf("close connections, %s", err.Error())
	}
}

type appendReq struct {
	ts     time.Time
	byTime bool
	values []any
}

// AppendWorker queues rows and appends them from its own goroutine.
// Errors of queued rows are logged, rejected rows reach the reject
// handler of the pool options.
type AppendWorker struct {
	owner    *AppendWorkers
	conn     *Conn
	appender *Appender
	refCount int
	detached bool

	mu       sync.RWMutex
	stopped  bool
	appendC  chan appendReq
	stopC    chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	log      logging.Log

	success int64
	fail    int64
}

var _ api.Appender = (*AppendWorker)(nil)

var errWorkerStopped = errors.New("append worker stopped")

func (aw *AppendWorker) start() {
	aw.wg.Add(1)
	go func() {
		defer aw.wg.Done()
		aw.log.Info("open")
	loop:
		for {
			select {
			case <-aw.stopC:
				break loop
			case req := <-aw.appendC:
				aw.do(req)
			}
		}
		for {
			select {
			case req := <-aw.appendC:
				aw.do(req)
			default:
				return
			}
		}
	}()
}

func (aw *AppendWorker) do(req appendReq) {
	var err error
	if req.byTime {
		err = aw.appender.AppendLogTime(req.ts, req.values...)
	} else {
		err = aw.appender.Append(req.values...)
	}
	if err != nil {
		aw.log.Error("error:", err)
	}
}

func (aw *AppendWorker) stop() {
	aw.stopOnce.Do(func() {
		aw.mu.Lock()
		aw.stopped = true
		aw.mu.Unlock()
		close(aw.stopC)
		aw.wg.Wait()

		success, fail, err := aw.appender.Close()
		if err != nil {
			aw.log.Error("close error:", err)
		} else {
			aw.log.Info("close, success:", success, "fail:", fail)
		}
		aw.mu.Lock()
		aw.success, aw.fail = success, fail
		aw.mu.Unlock()
		if err := aw.owner.conns.Put(aw.conn); err != nil {
			aw.log.Warnf("release connection, %s", err.Error())
		}
	})
}

func (aw *AppendWorker) enqueue(req appendReq) error {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	if aw.stopped {
		return errWorkerStopped
	}
	aw.owner.cache.Touch(aw.appender.tableName)
	aw.appendC <- req
	return nil
}

func (aw *AppendWorker) Append(values ...any) error {
	return aw.enqueue(appendReq{values: values})
}

func (aw *AppendWorker) AppendLogTime(ts time.Time, values ...any) error {
	if aw.appender.timeIdx < 0 {
		return api.ErrNotLogTable(aw.appender.tableName)
	}
	return aw.enqueue(appendReq{ts: ts, byTime: true, values: values})
}

// Close releases the caller's reference. The worker keeps running for
// other writers until it is idle. The counts are those of the underlying
// appender once the worker has stopped.
func (aw *AppendWorker) Close() (int64, int64, error) {
	aw.owner.release(aw)
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	return aw.success, aw.fail, nil
}

func (aw *AppendWorker) Columns() (api.Columns, error) {
	return aw.appender.Columns()
}

func (aw *AppendWorker) TableType() api.TableType {
	return aw.appender.TableType()
}

func (aw *AppendWorker) TableName() string {
	return aw.appender.TableName()
}

func (aw *AppendWorker) WithInputColumns(columns ...string) api.Appender {
	in := aw.appender.WithInputColumns(columns...).(*AppenderWithInputs)
	return &AppenderWithWorker{AppendWorker: aw, inputs: in}
}

// AppenderWithWorker arranges input columns before queueing.
type AppenderWithWorker struct {
	*AppendWorker
	inputs *AppenderWithInputs
}

var _ api.Appender = (*AppenderWithWorker)(nil)

func (ap *AppenderWithWorker) Append(values ...any) error {
	vals, err := ap.inputs.arrange(values)
	if err != nil {
		return err
	}
	return ap.AppendWorker.Append(vals...)
}

func (ap *AppenderWithWorker) AppendLogTime(ts time.Time, values ...any) error {
	vals, err := ap.inputs.arrange(values)
	if err != nil {
		return err
	}
	if ap.appender.timeIdx < 0 {
		return api.ErrNotLogTable(ap.appender.tableName)
	}
	untimed := make([]any, 0, len(ap.appender.untimed))
	for vi, idx := range ap.appender.visible {
		if idx != ap.appender.timeIdx {
			untimed = append(untimed, vals[vi])
		}
	}
	return ap.AppendWorker.AppendLogTime(ts, untimed...)
}
