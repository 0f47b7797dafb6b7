package jobs

import (
	"context"
	"log/slog"
	"sync"
)

// task is a unit of work handed to the pool.
type task struct {
	id  string
	job Job
}

// PoolStatus reports the pool's current state.
type PoolStatus struct {
	Workers    int `json:"workers"`
	InFlight   int `json:"in_flight"`
	QueueDepth int `json:"queue_depth"`
}

// pool runs tasks on a fixed number of worker goroutines fed from a shared
// bounded queue.
type pool struct {
	workers int
	queue   chan *task
	handle  func(context.Context, *task)
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight int
	wg       sync.WaitGroup
}

func newPool(workers, queueSize int, handle func(context.Context, *task), logger *slog.Logger) *pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &pool{
		workers: workers,
		queue:   make(chan *task, queueSize),
		handle:  handle,
		logger:  logger,
	}
}

func (p *pool) start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.logger.Debug("worker pool started", "workers", p.workers)
}

func (p *pool) work(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("worker stopped", "worker", n)
			return
		case t := <-p.queue:
			p.mu.Lock()
			p.inFlight++
			p.mu.Unlock()

			p.handle(ctx, t)

			p.mu.Lock()
			p.inFlight--
			p.mu.Unlock()
		}
	}
}

func (p *pool) submit(t *task) error {
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *pool) wait() {
	p.wg.Wait()
}

func (p *pool) status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStatus{
		Workers:    p.workers,
		InFlight:   p.inFlight,
		QueueDepth: len(p.queue),
	}
}

// PoolStatus returns the worker pool's current load.
func (m *Manager) PoolStatus() PoolStatus {
	return m.pool.status()
}
