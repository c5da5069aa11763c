package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

// ErrPoolStopped is returned by Stop when called twice.
var ErrPoolStopped = errors.New("worker pool is stopped")

// TaskObserver receives one call per finished or dropped task.
type TaskObserver interface {
	ObserveTask(task, outcome string, duration time.Duration)
}

type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

func (c Config) normalize() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	return c
}

type task struct {
	name string
	fn   func(context.Context) error
}

// Pool runs fire-and-forget tasks on a fixed set of workers fed by a bounded
// queue. Submit never blocks.
type Pool struct {
	cfg      Config
	observer TaskObserver
	tasks    chan task
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func New(cfg Config, observer TaskObserver) *Pool {
	cfg = cfg.normalize()
	p := &Pool{
		cfg:      cfg,
		observer: observer,
		tasks:    make(chan task, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	slog.Info("worker_pool_started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return p
}

// Submit enqueues fn and reports false when the queue is full or the pool is
// stopped.
func (p *Pool) Submit(name string, fn func(context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.drop(name, "stopped")
		return false
	}
	select {
	case p.tasks <- task{name: name, fn: fn}:
		return true
	default:
		p.drop(name, "queue_full")
		return false
	}
}

func (p *Pool) drop(name, reason string) {
	slog.Warn("background_task_dropped", "task", name, "reason", reason)
	p.observe(name, OutcomeDropped, 0)
}

// Stop stops accepting tasks and waits for queued ones to finish or for ctx
// to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("worker_pool_drained")
		return nil
	case <-ctx.Done():
		slog.Warn("worker_pool_drain_timeout", "pending", len(p.tasks))
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := safeCall(ctx, t.fn)
	elapsed := time.Since(start)

	if err != nil {
		slog.Error("background_task_failed", "task", t.name, "error", err, "duration_ms", float64(elapsed.Microseconds())/1000)
		p.observe(t.name, OutcomeError, elapsed)
		return
	}
	p.observe(t.name, OutcomeSuccess, elapsed)
}

func (p *Pool) observe(name, outcome string, elapsed time.Duration) {
	if p.observer != nil {
		p.observer.ObserveTask(name, outcome, elapsed)
	}
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

var _ ports.BackgroundRunner = (*Pool)(nil)
