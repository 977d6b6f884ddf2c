// Package workerpool provides a small bounded goroutine pool used to
// flush multiple track buffers concurrently on Session.Close. Adapted
// from the teacher's internal/util/workerpool/pool.go: the task queue,
// worker loop, panic recovery, and Stop-with-timeout shape carry over
// unchanged; the rejected/queued dashboards storage-node needed for
// its admission-control metrics are dropped since nothing here
// consumes them.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work submitted to the pool.
type Task struct {
	ID string
	Fn func(context.Context) error
}

// Pool manages a bounded set of goroutines draining a task queue.
type Pool struct {
	name       string
	maxWorkers int
	taskQueue  chan Task
	results    chan error
	logger     *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopChan   chan struct{}
}

// Config configures a Pool.
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// New creates and starts a Pool.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxWorkers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		taskQueue:  make(chan Task, cfg.QueueSize),
		results:    make(chan error, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.results <- p.safeExecute(task)
		}
	}
}

func (p *Pool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerpool: task %q panicked: %v", task.ID, r)
			p.logger.Error("task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()
	return task.Fn(context.Background())
}

// Run submits all tasks and blocks until every one has completed,
// returning every non-nil error in the order the tasks finished, which
// with more than one worker need not be submission order. Submission
// happens on its own goroutine so a tasks slice larger than the
// queue's capacity can't deadlock against workers blocked pushing to
// a full, still-undrained results channel.
func (p *Pool) Run(tasks []Task) []error {
	go func() {
		for _, t := range tasks {
			p.taskQueue <- t
		}
	}()

	errs := make([]error, 0)
	for i := 0; i < len(tasks); i++ {
		if err := <-p.results; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Stop shuts the pool down, waiting up to timeout for in-flight tasks.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("workerpool %q: stop timed out after %v", p.name, timeout)
		}
	})
	return err
}
