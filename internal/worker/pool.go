package worker

import "sync"

// Pool is a bounded task executor. Concurrency is capped at the pool
// size and Drain blocks until every submitted task has finished, so
// shutdown never strands in-flight work.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit schedules fn on the pool. It returns false once the pool has
// been drained and accepts no further work.
func (p *Pool) Submit(fn func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		p.sem <- struct{}{}
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return true
}

// Drain stops accepting work and waits for outstanding tasks.
func (p *Pool) Drain() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
