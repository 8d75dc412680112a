// Package threadpool is the built-in execution substrate for the helper
// coordinator: a fixed set of worker goroutines, each woken once per dispatch
// to run exactly one unit of coordinator work.
package threadpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/helperpool/internal/cpu"
)

// ErrShutdown is returned by Dispatch after Shutdown.
var ErrShutdown = errors.New("threadpool: shut down")

// Option configures a Pool.
type Option func(*Pool)

// WithAffinity pins each worker goroutine to its own CPU core.
func WithAffinity(enabled bool) Option {
	return func(p *Pool) { p.pin = enabled }
}

// WithLogger sets the logger used for worker lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// Pool runs a fixed number of workers. Each call to Dispatch wakes one idle
// worker, which calls the run function once and goes back to sleep.
type Pool struct {
	mu      sync.Mutex
	wake    *sync.Cond
	wakeups int
	closed  bool

	threads int
	run     func()
	pin     bool
	log     zerolog.Logger
	group   errgroup.Group
}

// New starts threads workers that call run once per dispatch.
func New(threads int, run func(), opts ...Option) (*Pool, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("threadpool: thread count must be positive, got %d", threads)
	}
	if run == nil {
		return nil, errors.New("threadpool: nil run function")
	}

	p := &Pool{threads: threads, run: run, log: zerolog.Nop()}
	p.wake = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	for id := range threads {
		p.group.Go(func() error {
			return p.worker(id)
		})
	}

	p.log.Debug().Int("threads", threads).Bool("pinned", p.pin).Msg("thread pool started")
	return p, nil
}

// Threads returns the number of workers.
func (p *Pool) Threads() int { return p.threads }

// Dispatch wakes one worker. Wakeups are counted, so a dispatch issued while
// every worker is busy is served as soon as one becomes free.
func (p *Pool) Dispatch() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrShutdown
	}
	p.wakeups++
	p.wake.Signal()
	return nil
}

// Shutdown stops all workers after their current unit of work and waits for
// them to exit. Pending wakeups are discarded.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.wakeups = 0
	p.wake.Broadcast()
	p.mu.Unlock()

	err := p.group.Wait()
	p.log.Debug().Msg("thread pool stopped")
	return err
}

func (p *Pool) worker(id int) (err error) {
	if p.pin {
		defer cpu.SetupWorkerAffinity(id)()
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("threadpool: worker %d panic: %v\nstack trace:\n%s", id, r, buf[:n])
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker crashed")
		}
	}()

	for {
		p.mu.Lock()
		for p.wakeups == 0 && !p.closed {
			p.wake.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return nil
		}
		p.wakeups--
		p.mu.Unlock()

		p.run()
	}
}
