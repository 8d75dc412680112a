package helper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/helperpool/internal/arena"
)

// newPooledCoordinator returns an initialized coordinator running on the
// internal pool. It is cancelled and finished when the test ends.
func newPooledCoordinator(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()

	base := []Option{WithCPUCount(4), WithInvariantChecks(true)}
	c := New(append(base, opts...)...)
	require.NoError(t, c.EnsureInitialized())

	t.Cleanup(func() {
		c.Cancel(SelectAll())
		assert.NoError(t, c.Finish())
	})
	return c
}

// manualCoordinator runs on an external substrate driven by the test:
// dispatches are only recorded, and tasks run when the test calls
// RunOneTask.
type manualCoordinator struct {
	*Coordinator

	mu      sync.Mutex
	reasons []DispatchReason
}

func newManualCoordinator(t *testing.T, threads int, opts ...Option) *manualCoordinator {
	t.Helper()

	m := &manualCoordinator{}
	base := []Option{WithCPUCount(threads), WithInvariantChecks(true)}
	m.Coordinator = New(append(base, opts...)...)
	m.SetDispatchCallback(func(r DispatchReason) {
		m.mu.Lock()
		m.reasons = append(m.reasons, r)
		m.mu.Unlock()
	}, threads, DefaultStackSize)
	require.NoError(t, m.EnsureInitialized())

	t.Cleanup(func() {
		m.drain()
		assert.NoError(t, m.Finish())
	})
	return m
}

// drain runs tasks on the calling goroutine until no dispatch is
// outstanding and nothing more can start.
func (m *manualCoordinator) drain() {
	for {
		m.lock()
		if m.tasksPending == 0 {
			m.dispatchLocked(DispatchNewTask)
		}
		idle := m.tasksPending == 0
		m.unlock()

		if idle {
			return
		}
		m.RunOneTask()
	}
}

// runInBackground calls RunOneTask on a new goroutine and returns a channel
// closed when it returns.
func (m *manualCoordinator) runInBackground() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.RunOneTask()
	}()
	return done
}

func (m *manualCoordinator) dispatches() []DispatchReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DispatchReason(nil), m.reasons...)
}

func (m *manualCoordinator) runningOf(kind ThreadKind) int {
	m.lock()
	defer m.unlock()
	return m.runningCount[kind]
}

// recorder collects the order in which task bodies ran.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) body(name string) func(context.Context) error {
	return func(context.Context) error {
		r.mu.Lock()
		r.log = append(r.log, name)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

// gate is a task body that blocks until opened or aborted.
type gate struct {
	started chan struct{}
	open    chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 1), open: make(chan struct{})}
}

func (g *gate) body(ctx context.Context) error {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() { g.once.Do(func() { close(g.open) }) }

func (g *gate) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatal("task body did not start")
	}
}

func newTestArena(t *testing.T) *arena.Arena {
	t.Helper()
	a, err := arena.New(4096)
	require.NoError(t, err)
	return a
}

func newTestUnit(rt *Runtime, name string, length int, warmUp int64) *CodeUnit {
	u := rt.NewPartition(name + "-zone").NewCodeUnit(name, length)
	u.AddWarmUp(warmUp)
	return u
}
