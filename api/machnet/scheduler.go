package machnet

import (
	"sync"
	"time"
)

// flushPolicy is the threshold trigger: a buffer holding maxRows rows or
// maxBytes bytes is flushed by the append that filled it.
type flushPolicy struct {
	maxRows  int
	maxBytes int
}

func (p flushPolicy) withDefaults() flushPolicy {
	if p.maxRows <= 0 {
		p.maxRows = defaultAppendRows
	}
	if p.maxBytes <= 0 {
		p.maxBytes = defaultAppendBytes
	}
	return p
}

func (p flushPolicy) reached(rows int, bytes int) bool {
	return rows >= p.maxRows || bytes >= p.maxBytes
}

// intervalFlusher calls fn on every tick until stopped.
type intervalFlusher struct {
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

func startIntervalFlusher(interval time.Duration, fn func()) *intervalFlusher {
	f := &intervalFlusher{interval: interval, stop: make(chan struct{})}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-f.stop:
				return
			case <-ticker.C:
				select {
				case <-f.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return f
}

// Stop returns after a tick in progress has completed.
func (f *intervalFlusher) Stop() {
	close(f.stop)
	f.wg.Wait()
}

// setInterval replaces the running interval flusher, 0 stops it.
func (s *appendSession) setInterval(d time.Duration) {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	if s.ticker != nil {
		if s.ticker.interval == d {
			return
		}
		s.ticker.Stop()
		s.ticker = nil
	}
	if d <= 0 || !s.isOpen() {
		return
	}
	s.ticker = startIntervalFlusher(d, s.tick)
}

func (s *appendSession) stopInterval() {
	s.tickerMu.Lock()
	defer s.tickerMu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *appendSession) tick() {
	if _, _, fatal := s.counts(); fatal != nil {
		return
	}
	if err := s.flush(); err != nil {
		s.log.Warnf("interval flush stmt=%d, %s", s.stmt.id, err.Error())
	}
}
