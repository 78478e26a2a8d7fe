package prober

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers is the default number of concurrent probe workers.
	DefaultWorkers = 5

	// DefaultDelay is the default wait between scheduling and queueing a task.
	DefaultDelay = time.Second

	// DefaultQueueSize is the default capacity of the task queue.
	DefaultQueueSize = 256
)

// Task is a unit of work run by the Pool.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

// Pool runs delayed tasks on a fixed number of workers.
type Pool struct {
	workers int
	delay   time.Duration
	logger  *slog.Logger

	queue chan job
	done  chan struct{}

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of workers. Values below 1 are ignored.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithDelay sets the scheduling delay. Negative values are ignored.
func WithDelay(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.delay = d
		}
	}
}

// WithQueueSize sets the queue capacity. Values below 1 are ignored.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.queue = make(chan job, n)
		}
	}
}

// WithPoolLogger sets the logger for task failures.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a Pool. Tasks may be scheduled before Start; they run
// once workers are started.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workers: DefaultWorkers,
		delay:   DefaultDelay,
		queue:   make(chan job, DefaultQueueSize),
		done:    make(chan struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Start launches the workers. Workers stop when ctx is cancelled or Stop is called.
// Calling Start more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil || p.stopped {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.group = new(errgroup.Group)
	for range p.workers {
		p.group.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
}

// Schedule queues task to run after the pool's delay.
func (p *Pool) Schedule(name string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}

	var timer *time.Timer
	timer = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		delete(p.timers, timer)
		p.mu.Unlock()

		select {
		case p.queue <- job{name: name, task: task}:
		case <-p.done:
		}
	})
	p.timers[timer] = struct{}{}
	return nil
}

// Stop drops pending timers and queued tasks, and waits for running tasks
// to return. It is safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for timer := range p.timers {
		timer.Stop()
	}
	clear(p.timers)
	close(p.done)
	cancel, group := p.cancel, p.group
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait() //nolint:errcheck // workers never return errors
	}
}

// Pending returns the number of tasks waiting for their delay or in the queue.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers) + len(p.queue)
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case j := <-p.queue:
			p.run(ctx, j)
		}
	}
}

// run executes one task, converting panics into logged errors.
func (p *Pool) run(ctx context.Context, j job) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		return j.task(ctx)
	}()

	if err != nil {
		p.logger.Warn("probe task failed",
			"task", j.name,
			"error", err,
			"duration", time.Since(start),
		)
		return
	}
	p.logger.Debug("probe task completed",
		"task", j.name,
		"duration", time.Since(start),
	)
}
