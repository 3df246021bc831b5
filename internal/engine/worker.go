package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolShutdown is returned when a run is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("run pool is shut down")

// PoolMetrics is a snapshot of run pool counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// runPool caps the number of workflow runs executing at once. A run beyond
// the cap blocks in Submit until a slot frees up (backpressure) or its
// context is cancelled.
type runPool struct {
	slots chan struct{}
	quit  chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

func newRunPool(size int) *runPool {
	if size <= 0 {
		size = 1
	}
	return &runPool{
		slots: make(chan struct{}, size),
		quit:  make(chan struct{}),
	}
}

// Submit blocks until a slot is free, then executes fn on its own goroutine.
// A panic inside fn is recovered and counted, never crashing the pool.
func (p *runPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolShutdown
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolShutdown
	}

	// Shutdown may have raced the slot acquisition. The wg.Add must happen
	// under the lock or Shutdown's wg.Wait can miss this run.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.active.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
			}
			p.active.Add(-1)
			<-p.slots
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()

	return nil
}

// Wait blocks until every submitted run has finished.
func (p *runPool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects further submissions and waits for in-flight runs.
// Idempotent.
func (p *runPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a consistent-enough snapshot of the pool counters.
func (p *runPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
