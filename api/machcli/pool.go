package machcli

import (
	"context"
	"errors"
	"sync"
)

type PoolItem interface {
	ShouldEvict() bool
}

var ErrPoolClosed = errors.New("pool closed")

// Pool leases at most Capacity items at a time. Items put back are kept
// for reuse unless they report ShouldEvict.
type Pool[T any] struct {
	PoolConfig[T]
	mu     sync.Mutex
	items  []T
	openCh chan struct{}
	closed bool
}

type PoolConfig[T any] struct {
	Capacity   int                              // default 1
	Creator    func(context.Context) (T, error) // mandatory creator
	Destructor func(T) error                    // mandatory destructor
}

func NewPool[T any](conf PoolConfig[T]) *Pool[T] {
	if conf.Capacity <= 0 {
		conf.Capacity = 1
	}
	openCh := make(chan struct{}, conf.Capacity)
	for i := 0; i < conf.Capacity; i++ {
		openCh <- struct{}{}
	}
	return &Pool[T]{
		PoolConfig: conf,
		items:      make([]T, 0, conf.Capacity),
		openCh:     openCh,
	}
}

// Remains is the number of items that can be leased without waiting.
func (p *Pool[T]) Remains() int {
	return len(p.openCh)
}

// Get waits for a free slot, then reuses an idle item or creates one.
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.openCh:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.openCh <- struct{}{}
		return zero, ErrPoolClosed
	}
	if n := len(p.items); n > 0 {
		ret := p.items[n-1]
		p.items = p.items[:n-1]
		p.mu.Unlock()
		return ret, nil
	}
	p.mu.Unlock()

	ret, err := p.Creator(ctx)
	if err != nil {
		p.openCh <- struct{}{}
		return zero, err
	}
	return ret, nil
}

// Put returns a leased item.
func (p *Pool[T]) Put(item T) error {
	defer func() { p.openCh <- struct{}{} }()

	p.mu.Lock()
	keep := !p.closed && len(p.items) < p.Capacity
	if pi, ok := any(item).(PoolItem); ok && pi.ShouldEvict() {
		keep = false
	}
	if keep {
		p.items = append(p.items, item)
	}
	p.mu.Unlock()

	if !keep {
		return p.Destructor(item)
	}
	return nil
}

// Drain destroys the idle items.
func (p *Pool[T]) Drain() error {
	p.mu.Lock()
	items := p.items
	p.items = nil
	p.mu.Unlock()
	var errs []error
	for _, item := range items {
		if err := p.Destructor(item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close drains the pool. Leased items are destroyed when put back.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Drain()
}
