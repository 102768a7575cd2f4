package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolShutDown is returned when submitting to a pool that has been shut down
var ErrPoolShutDown = fmt.Errorf("worker pool shut down")

// Task is a unit of work run by the pool
type Task func(context.Context) error

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown and error collection. A pool of one worker runs
// tasks strictly in submission order.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	log          *logrus.Entry
	mu           sync.RWMutex
	closed       bool
	workCh       chan Task
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool creates a new worker pool.
//
//	pool := NewWorkerPool(ctx, 1, "module install", time.Minute, logger)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return reg.InstallModule(ctx, name, registry.InstallOptions{})
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, logger *logrus.Logger) *WorkerPool {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		log:      logger.WithField("pool", taskName),
		workCh:   make(chan Task, workers*16),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit adds a task to the worker pool.
// Returns ErrPoolShutDown if the pool is shut down.
func (p *WorkerPool) Submit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolShutDown
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolShutDown
	}
}

// Shutdown stops accepting tasks and waits up to timeout for queued tasks to finish
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives task errors.
// Errors are dropped, with a log line, when nobody drains it.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	log := p.log.WithField("worker", id)

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(log, fn)
		}
	}
}

func (p *WorkerPool) run(log *logrus.Entry, fn Task) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("PANIC in task: %v", r)
			p.report(log, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(log, err)
	}
}

func (p *WorkerPool) report(log *logrus.Entry, err error) {
	select {
	case p.errCh <- err:
	default:
		log.WithError(err).Warn("Error channel full, dropping error")
	}
}
