package machcli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Item struct {
	Name  string
	count int
	bad   bool
}

func (i *Item) ShouldEvict() bool {
	return i.bad
}

type itemFactory struct {
	serial    atomic.Int32
	destroyed atomic.Int32
	failNext  atomic.Bool
}

func (f *itemFactory) config(capacity int) PoolConfig[*Item] {
	return PoolConfig[*Item]{
		Capacity: capacity,
		Creator: func(ctx context.Context) (*Item, error) {
			if f.failNext.CompareAndSwap(true, false) {
				return nil, errors.New("create failure")
			}
			n := f.serial.Add(1)
			return &Item{Name: fmt.Sprintf("item_%d", n-1)}, nil
		},
		Destructor: func(i *Item) error {
			f.destroyed.Add(1)
			i.Name = ""
			return nil
		},
	}
}

func TestPool(t *testing.T) {
	f := &itemFactory{}
	p := NewPool(f.config(2))

	wg := sync.WaitGroup{}
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item, err := p.Get(context.Background())
			if err != nil || item.Name == "" {
				t.Errorf("get %v %v", item, err)
				return
			}
			item.count++
			time.Sleep(time.Millisecond)
			_ = p.Put(item)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, f.serial.Load(), int32(2))
	require.Equal(t, 2, p.Remains())

	require.NoError(t, p.Close())
	require.Equal(t, f.serial.Load(), f.destroyed.Load())
	_, err := p.Get(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
	require.Equal(t, 2, p.Remains())
}

func TestPoolEvict(t *testing.T) {
	f := &itemFactory{}
	p := NewPool(f.config(1))

	item, err := p.Get(context.Background())
	require.NoError(t, err)
	item.bad = true
	require.NoError(t, p.Put(item))
	require.Equal(t, int32(1), f.destroyed.Load())

	next, err := p.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "item_1", next.Name)
	require.NoError(t, p.Put(next))
}

func TestPoolCreateFailure(t *testing.T) {
	f := &itemFactory{}
	p := NewPool(f.config(1))
	f.failNext.Store(true)
	_, err := p.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, p.Remains())

	item, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestPoolTimeout(t *testing.T) {
	f := &itemFactory{}
	p := NewPool(f.config(2))
	ctx, cancel := context.WithCancel(context.Background())
	o1, _ := p.Get(ctx)
	require.NotNil(t, o1)
	o2, _ := p.Get(ctx)
	require.NotNil(t, o2)
	require.Equal(t, 0, p.Remains())

	cancel()
	o3, err := p.Get(ctx)
	require.Nil(t, o3)
	require.ErrorIs(t, err, context.Canceled)
}
