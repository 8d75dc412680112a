package helper

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/helperpool/internal/arena"
	"github.com/utkarsh5026/helperpool/internal/backoff"
)

func TestSetDispatchCallbackPanics(t *testing.T) {
	cb := func(DispatchReason) {}

	t.Run("after initialization", func(t *testing.T) {
		c := New(WithCPUCount(2))
		require.NoError(t, c.EnsureInitialized())
		defer c.Finish()
		assert.Panics(t, func() { c.SetDispatchCallback(cb, 2, DefaultStackSize) })
	})

	t.Run("twice", func(t *testing.T) {
		c := New(WithCPUCount(2))
		c.SetDispatchCallback(cb, 2, DefaultStackSize)
		assert.Panics(t, func() { c.SetDispatchCallback(cb, 2, DefaultStackSize) })
	})

	t.Run("zero threads", func(t *testing.T) {
		c := New(WithCPUCount(2))
		assert.Panics(t, func() { c.SetDispatchCallback(cb, 0, DefaultStackSize) })
	})

	t.Run("stack too small", func(t *testing.T) {
		c := New(WithCPUCount(2))
		assert.Panics(t, func() { c.SetDispatchCallback(cb, 2, MinDispatchStackSize-1) })
	})

	t.Run("sets thread count and quota", func(t *testing.T) {
		c := New(WithCPUCount(2))
		c.SetDispatchCallback(cb, 7, 100*1024)
		assert.Equal(t, 7, c.ThreadCount())
		assert.Equal(t, StackQuotaForSize(100*1024), c.StackQuota())
	})
}

func TestSetCPUCountPanics(t *testing.T) {
	t.Run("after initialization", func(t *testing.T) {
		c := New(WithCPUCount(2))
		require.NoError(t, c.EnsureInitialized())
		defer c.Finish()
		assert.Panics(t, func() { c.SetCPUCount(4) })
	})

	t.Run("with dispatch callback", func(t *testing.T) {
		c := New(WithCPUCount(2))
		c.SetDispatchCallback(func(DispatchReason) {}, 2, DefaultStackSize)
		assert.Panics(t, func() { c.SetCPUCount(4) })
	})

	t.Run("derives thread count", func(t *testing.T) {
		c := New(WithCPUCount(2))
		c.SetCPUCount(1)
		assert.Equal(t, 1, c.CPUCount())
		assert.Equal(t, 2, c.ThreadCount())
	})
}

func TestLifecycle(t *testing.T) {
	c := New(WithCPUCount(2))
	rt := NewRuntime("rt")

	err := c.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil))
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, c.EnsureInitialized())
	require.NoError(t, c.EnsureInitialized(), "initialization is idempotent")
	assert.True(t, c.Initialized())

	require.NoError(t, c.Finish())
	require.NoError(t, c.Finish(), "finishing twice is a no-op")

	err = c.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil))
	assert.ErrorIs(t, err, ErrTerminating)
	assert.ErrorIs(t, c.EnsureInitialized(), ErrTerminating)

	assert.NotPanics(t, c.RunOneTask, "RunOneTask returns immediately once terminating")
}

func TestWithoutExtraThreads(t *testing.T) {
	c := New(WithoutExtraThreads())
	assert.ErrorIs(t, c.EnsureInitialized(), ErrNoExtraThreads)

	task := NewDelazifyTask(Owner{}, 1, nil, nil)
	require.NoError(t, c.SubmitDelazify(task))
	assert.Equal(t, TaskIdle, task.State(), "delazification is dropped")
}

func TestDoubleSubmitPanics(t *testing.T) {
	m := newManualCoordinator(t, 2)
	rt := NewRuntime("rt")

	task := NewGCParallelTask(rt.Owner(), nil)
	require.NoError(t, m.SubmitGCParallel(task))
	assert.Panics(t, func() { _ = m.SubmitGCParallel(task) })
}

func TestInvariantChecksRunOnUnlock(t *testing.T) {
	c := New(WithCPUCount(2), WithInvariantChecks(true))

	c.lock()
	c.totalRunning++
	assert.Panics(t, c.unlock, "a running count without a registered task is caught")

	// The mutex is still held after the failed check.
	c.totalRunning--
	assert.NotPanics(t, c.unlock)

	c.lock()
	c.tasksPending = c.threadCount + 1
	assert.Panics(t, func() { c.wakeup.Wait() }, "waiting releases the lock and checks too")
	c.tasksPending = 0
	c.unlock()
}

func TestWorklistCapacity(t *testing.T) {
	m := newManualCoordinator(t, 2, WithWorklistCapacity(1))
	rt := NewRuntime("rt")

	first := NewParseTask(rt.Owner(), ParseScript, 1, nil, nil)
	second := NewParseTask(rt.Owner(), ParseScript, 1, nil, nil)
	require.NoError(t, m.SubmitParse(first))

	err := m.SubmitParse(second)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, TaskIdle, second.State(), "rejected task stays with the caller")
	assert.Equal(t, 1, m.Stats().Kind(ThreadKindParse).Queued)

	for range 4 {
		require.NoError(t, m.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil)), "the GC worklist is unbounded")
	}
}

func TestSubmitWithRetry(t *testing.T) {
	c := New(WithCPUCount(2), WithSubmitRetry(3, backoff.Exponential, time.Microsecond, time.Microsecond, 0))

	t.Run("gives up after the configured attempts", func(t *testing.T) {
		attempts := 0
		err := c.SubmitWithRetry(context.Background(), func() error {
			attempts++
			return ErrOutOfMemory
		})
		assert.ErrorIs(t, err, ErrOutOfMemory)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns other errors at once", func(t *testing.T) {
		attempts := 0
		err := c.SubmitWithRetry(context.Background(), func() error {
			attempts++
			return ErrTerminating
		})
		assert.ErrorIs(t, err, ErrTerminating)
		assert.Equal(t, 1, attempts)
	})

	t.Run("succeeds once capacity frees up", func(t *testing.T) {
		attempts := 0
		err := c.SubmitWithRetry(context.Background(), func() error {
			attempts++
			if attempts < 2 {
				return ErrOutOfMemory
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		slow := New(WithSubmitRetry(5, backoff.Exponential, time.Hour, time.Hour, 0))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := slow.SubmitWithRetry(ctx, func() error { return ErrOutOfMemory })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestInternalPoolRunsEverything(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	var ran atomic.Int64
	const n = 200
	for range n {
		task := NewGCParallelTask(rt.Owner(), func(context.Context) error {
			ran.Add(1)
			return nil
		})
		require.NoError(t, c.SubmitGCParallel(task))
	}

	c.WaitForAllTasks()
	assert.Equal(t, int64(n), ran.Load())

	stats := c.Stats()
	assert.Equal(t, uint64(n), stats.Kind(ThreadKindGCParallel).Completed)
	assert.Zero(t, stats.ActiveThreads)
	assert.Equal(t, stats.ThreadCount, stats.IdleThreads)
	assert.Zero(t, stats.TasksPending)
}

func TestConcurrentProducers(t *testing.T) {
	c := newPooledCoordinator(t)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt := NewRuntime("producer")
			for i := range 50 {
				body := func(context.Context) error { ran.Add(1); return nil }
				var err error
				switch (p + i) % 3 {
				case 0:
					err = c.SubmitGCParallel(NewGCParallelTask(rt.Owner(), body))
				case 1:
					err = c.SubmitPromiseHelper(NewPromiseHelperTask(rt.Owner(), body, nil))
				default:
					err = c.SubmitCompile(NewCompileTask(rt.Owner(), NewCompileTaskState(), Tier1, 1, body))
				}
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	c.WaitForAllTasks()
	assert.Equal(t, int64(400), ran.Load())
}

func TestTaskPanicIsRecovered(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	g := newGate()
	defer g.release()
	blocker := NewGCParallelTask(rt.Owner(), g.body)
	require.NoError(t, c.SubmitGCParallel(blocker))
	g.waitStarted(t)

	task := NewGCParallelTask(rt.Owner(), func(context.Context) error { panic("boom") })
	require.NoError(t, c.SubmitGCParallel(task))

	var pe *PanicError
	require.ErrorAs(t, c.JoinGCParallel(task), &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	g.release()
	assert.NoError(t, c.JoinGCParallel(blocker))
}

func TestDispatchReasons(t *testing.T) {
	m := newManualCoordinator(t, 2)
	rt := NewRuntime("rt")

	require.NoError(t, m.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil)))
	require.NoError(t, m.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil)))
	require.NoError(t, m.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil)))

	assert.Equal(t, []DispatchReason{DispatchNewTask, DispatchNewTask}, m.dispatches(),
		"no more dispatches outstanding than threads")

	m.RunOneTask()
	assert.Equal(t, DispatchFinishedTask, m.dispatches()[2], "a finished task re-dispatches while work remains")

	m.drain()
	assert.Zero(t, m.Stats().Kind(ThreadKindGCParallel).Queued)
}

func TestDispatchRateLimit(t *testing.T) {
	var calls atomic.Int64
	c := New(WithCPUCount(2), WithInvariantChecks(true), WithDispatchRateLimit(1000, 1))
	c.SetDispatchCallback(func(DispatchReason) {
		calls.Add(1)
		go c.RunOneTask()
	}, 2, DefaultStackSize)
	require.NoError(t, c.EnsureInitialized())
	defer c.Finish()

	rt := NewRuntime("rt")
	var ran atomic.Int64
	for range 10 {
		require.NoError(t, c.SubmitGCParallel(NewGCParallelTask(rt.Owner(), func(context.Context) error {
			ran.Add(1)
			return nil
		})))
	}

	c.WaitForAllTasks()
	assert.Equal(t, int64(10), ran.Load(), "throttled dispatches are delayed, not dropped")
	assert.Positive(t, calls.Load())
}

func TestJitFreeFallsBackInline(t *testing.T) {
	c := New(WithCPUCount(2))
	require.NoError(t, c.EnsureInitialized())
	require.NoError(t, c.Finish())

	a := newTestArena(t)
	f := NewJitFreeTask(NewJitCompileTask(newTestUnit(NewRuntime("rt"), "f", 1, 0), a, nil))
	require.NoError(t, c.SubmitJitFree(f))

	assert.Equal(t, TaskFinished, f.State())
	_, err := a.Alloc(1)
	assert.ErrorIs(t, err, arena.ErrReleased)
}
