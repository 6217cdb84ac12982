package worker

import (
	"log/slog"
	"sync"

	"github.com/baharkarakas/ledger-backend/internal/metrics"
)

type task func()

// Pool runs fire-and-forget jobs on a fixed set of goroutines.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	jobs   chan task
}

func NewPool(n, queue int) *Pool {
	if n <= 0 {
		n = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	p := &Pool{jobs: make(chan task, queue)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
				run(job)
			}
		}()
	}
	return p
}

func run(job task) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("worker job panic", "err", rec)
		}
	}()
	job()
}

// Submit enqueues f without blocking. It reports false when the queue is
// full or the pool is stopped; the job is then dropped.
func (p *Pool) Submit(f task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		return false
	}
}

// Stop drains queued jobs and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
