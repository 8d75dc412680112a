package helper

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/helperpool/internal/cpu"
	"github.com/utkarsh5026/helperpool/internal/logging"
	"github.com/utkarsh5026/helperpool/internal/threadpool"
)

// DispatchCallback asks the host to arrange for RunOneTask to be called once
// on some thread. It is invoked with the coordinator lock held, so it must
// hand the work off rather than call RunOneTask itself.
type DispatchCallback func(reason DispatchReason)

// Coordinator owns every worklist, the running registry and the admission
// policy. One mutex and one condition variable synchronise all of it: task
// bodies run with the lock released, everything else runs with it held.
//
// Lifecycle:
//
//	c := helper.New(opts...)
//	c.SetCPUCount(n)                  // optional, before initialization
//	c.SetDispatchCallback(cb, n, sz)  // optional, before initialization
//	if err := c.EnsureInitialized(); err != nil { ... }
//	... submit, cancel, wait ...
//	c.Finish()
type Coordinator struct {
	id      uuid.UUID
	cfg     config
	log     zerolog.Logger
	metrics Metrics

	mu     syncutil.InvariantMutex
	wakeup *sync.Cond

	// Thread-count policy. Fixed once initialized.
	cpuCount              int
	threadCount           int
	gcParallelThreadCount int
	stackQuota            int

	dispatchCallback DispatchCallback
	dispatchLimiter  *rate.Limiter
	pool             *threadpool.Pool
	useInternalPool  bool

	initialized  bool
	terminating  bool
	tasksPending int

	wasmTier1        worklist[*CompileTask]
	wasmTier2        worklist[*CompileTask]
	wasmFinished     worklist[*CompileTask]
	tier2Generators  worklist[*Tier2GeneratorTask]
	jitCompiles      worklist[*JitCompileTask]
	jitFinished      worklist[*JitCompileTask]
	jitFree          worklist[*JitFreeTask]
	parses           worklist[*ParseTask]
	parseFinished    worklist[*ParseTask]
	delazifies       worklist[*DelazifyTask]
	freeDelazifies   worklist[*FreeDelazifyTask]
	compressPending  worklist[*CompressionTask]
	compressions     worklist[*CompressionTask]
	compressFinished worklist[*CompressionTask]
	promises         worklist[*PromiseHelperTask]
	gcParallel       worklist[*GCParallelTask]

	running                 []Task
	runningCount            [threadKindLimit]int
	totalRunning            int
	completed               [threadKindLimit]uint64
	tier2GeneratorsFinished uint64

	// Runtimes with a non-empty lazy-link list.
	lazyRuntimes map[*Runtime]struct{}
}

// New builds a coordinator. The CPU count is probed once here and clamped
// to the configured ceiling unless WithCPUCount overrides it.
func New(opts ...Option) *Coordinator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cpus := cfg.cpuCount
	if cpus == 0 {
		cpus = ClampCPUCount(cpu.Count(), cfg.cpuCeiling)
	}
	assertf(cpus > 0, "CPU probe returned %d", cpus)

	c := &Coordinator{
		id:           uuid.New(),
		cfg:          cfg,
		metrics:      cfg.metrics,
		cpuCount:     cpus,
		threadCount:  ThreadCountForCPUCount(cpus),
		stackQuota:   StackQuotaForSize(DefaultStackSize),
		lazyRuntimes: make(map[*Runtime]struct{}),
	}
	c.gcParallelThreadCount = c.threadCount
	c.log = logging.Component(cfg.log, "helper").With().Str("coordinator", c.id.String()[:8]).Logger()
	c.mu = syncutil.NewInvariantMutex(c.checkInvariantsLocked)
	c.wakeup = sync.NewCond(&c.mu)

	n := cfg.worklistCapacity
	c.wasmTier1 = newWorklist[*CompileTask](fifo, n)
	c.wasmTier2 = newWorklist[*CompileTask](fifo, n)
	c.wasmFinished = newWorklist[*CompileTask](fifo, 0)
	c.tier2Generators = newWorklist[*Tier2GeneratorTask](lifo, n)
	c.jitCompiles = newWorklist[*JitCompileTask](lifo, n)
	c.jitFinished = newWorklist[*JitCompileTask](fifo, 0)
	c.jitFree = newWorklist[*JitFreeTask](lifo, n)
	c.parses = newWorklist[*ParseTask](lifo, n)
	c.parseFinished = newWorklist[*ParseTask](fifo, 0)
	c.delazifies = newWorklist[*DelazifyTask](fifo, n)
	c.freeDelazifies = newWorklist[*FreeDelazifyTask](lifo, n)
	c.compressPending = newWorklist[*CompressionTask](fifo, n)
	c.compressions = newWorklist[*CompressionTask](lifo, n)
	c.compressFinished = newWorklist[*CompressionTask](fifo, 0)
	c.promises = newWorklist[*PromiseHelperTask](lifo, n)
	c.gcParallel = newWorklist[*GCParallelTask](fifo, 0)

	return c
}

// ID returns the coordinator's instance identifier.
func (c *Coordinator) ID() uuid.UUID { return c.id }

// SetCPUCount replaces the probed CPU count and derives the worker count
// from it. It must be called before initialization and is incompatible
// with an external dispatch callback.
func (c *Coordinator) SetCPUCount(n int) {
	c.lock()
	defer c.unlock()

	assertf(!c.initialized, "SetCPUCount after initialization")
	assertf(c.dispatchCallback == nil, "SetCPUCount with an external dispatch callback")
	assertf(n > 0, "SetCPUCount(%d)", n)

	c.cpuCount = n
	c.threadCount = ThreadCountForCPUCount(n)
	c.gcParallelThreadCount = c.threadCount
}

// SetGCParallelThreadCount limits how many GC-parallel tasks run at once.
// The value is capped at the worker count.
func (c *Coordinator) SetGCParallelThreadCount(n int) {
	c.lock()
	defer c.unlock()

	assertf(n > 0, "SetGCParallelThreadCount(%d)", n)
	c.gcParallelThreadCount = min(n, c.threadCount)
}

// SetDispatchCallback replaces the internal pool with a host-provided
// execution substrate running threadCount threads of stackSize bytes. It
// must be called at most once, before initialization.
func (c *Coordinator) SetDispatchCallback(cb DispatchCallback, threadCount, stackSize int) {
	c.lock()
	defer c.unlock()

	assertf(!c.initialized, "SetDispatchCallback after initialization")
	assertf(c.dispatchCallback == nil, "SetDispatchCallback called twice")
	assertf(cb != nil, "SetDispatchCallback with nil callback")
	assertf(threadCount > 0, "SetDispatchCallback with thread count %d", threadCount)
	assertf(stackSize >= MinDispatchStackSize, "SetDispatchCallback with stack size %d below %d", stackSize, MinDispatchStackSize)

	c.dispatchCallback = cb
	c.threadCount = threadCount
	c.gcParallelThreadCount = threadCount
	c.stackQuota = StackQuotaForSize(stackSize)
}

// EnsureInitialized starts the execution substrate. It is idempotent.
func (c *Coordinator) EnsureInitialized() error {
	if !c.cfg.extraThreads {
		return ErrNoExtraThreads
	}

	c.lock()
	defer c.unlock()

	if c.terminating {
		return ErrTerminating
	}
	if c.initialized {
		return nil
	}

	c.runningCount = [threadKindLimit]int{}
	c.totalRunning = 0

	c.useInternalPool = c.dispatchCallback == nil
	if c.useInternalPool {
		pool, err := threadpool.New(c.threadCount, c.RunOneTask,
			threadpool.WithAffinity(c.cfg.affinity),
			threadpool.WithLogger(c.log),
		)
		if err != nil {
			return fmt.Errorf("helper: start internal pool: %w", err)
		}
		c.pool = pool
	} else if c.cfg.dispatchRate > 0 {
		c.dispatchLimiter = rate.NewLimiter(c.cfg.dispatchRate, c.cfg.dispatchBurst)
	}

	c.initialized = true
	c.log.Info().
		Int("cpus", c.cpuCount).
		Int("threads", c.threadCount).
		Int("stack_quota", c.stackQuota).
		Bool("internal_pool", c.useInternalPool).
		Msg("helper threads initialized")
	return nil
}

// Finish waits for all work to complete, stops the workers and frees any
// leftover JIT free tasks on the calling goroutine. Submissions fail with
// ErrTerminating afterwards.
func (c *Coordinator) Finish() error {
	c.lock()
	if !c.initialized || c.terminating {
		c.unlock()
		return nil
	}

	c.waitForAllTasksLocked()
	c.terminating = true

	// Nothing else blocks on these before shutdown.
	frees := c.jitFree.drain()
	pool := c.pool
	c.pool = nil
	c.notifyAllLocked()
	c.unlock()

	var err error
	if pool != nil {
		err = pool.Shutdown()
	}
	for _, f := range frees {
		f.release()
		f.setState(TaskFinished)
	}

	c.log.Info().Int("freed", len(frees)).Msg("helper threads finished")
	return err
}

// Initialized reports whether EnsureInitialized has succeeded.
func (c *Coordinator) Initialized() bool {
	c.lock()
	defer c.unlock()
	return c.initialized
}

// CPUCount returns the CPU count the policy is derived from.
func (c *Coordinator) CPUCount() int {
	c.lock()
	defer c.unlock()
	return c.cpuCount
}

// ThreadCount returns the number of workers.
func (c *Coordinator) ThreadCount() int {
	c.lock()
	defer c.unlock()
	return c.threadCount
}

// StackQuota returns the stack budget task bodies should stay within.
func (c *Coordinator) StackQuota() int {
	c.lock()
	defer c.unlock()
	return c.stackQuota
}

// MaxWasmCompilationThreads returns the wasm compilation budget.
func (c *Coordinator) MaxWasmCompilationThreads() int {
	c.lock()
	defer c.unlock()
	return c.maxWasmCompilationThreads()
}

// RunOneTask is the entry point of the execution substrate. It consumes one
// pending dispatch, runs the highest-priority admissible task if there is
// one, and dispatches again if more work can start.
func (c *Coordinator) RunOneTask() {
	c.lock()
	defer c.unlock()

	if !c.initialized || c.terminating {
		return
	}
	c.runOneTaskLocked()
}

func (c *Coordinator) runOneTaskLocked() {
	assertf(c.tasksPending > 0, "RunOneTask without a pending dispatch")
	c.tasksPending--

	// Selection and execution happen under one lock hold; the selectors
	// assume the worklists do not change in between.
	if t := c.selectNextTaskLocked(); t != nil {
		c.runTaskLocked(t)
		c.dispatchLocked(DispatchFinishedTask)
	}

	c.notifyAllLocked()
}

// runTaskLocked moves t through the running registry and then hands it to
// its next owner.
func (c *Coordinator) runTaskLocked(t Task) {
	b := t.base()
	kind := t.Kind()

	b.where = inRunning
	b.setState(TaskRunning)
	c.running = append(c.running, t)
	c.runningCount[kind]++
	c.totalRunning++
	c.metrics.TaskStarted(kind, time.Since(b.queuedAt))

	t.run(c)

	c.removeRunningLocked(t)
	c.runningCount[kind]--
	c.totalRunning--
	c.completed[kind]++
	b.where = inNone

	t.retire(c)
}

func (c *Coordinator) removeRunningLocked(t Task) {
	for i, r := range c.running {
		if r == t {
			last := len(c.running) - 1
			c.running[i] = c.running[last]
			c.running[last] = nil
			c.running = c.running[:last]
			return
		}
	}
	assertf(false, "task %d missing from running registry", t.ID())
}

// execute runs body with the coordinator lock released. A panic in body is
// recovered and returned as a *PanicError.
func (c *Coordinator) execute(t Task, body func(ctx context.Context) error) (err error) {
	b := t.base()
	kind := t.Kind()

	c.unlock()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = &PanicError{Value: r, Stack: buf[:n]}
			c.log.Error().Stringer("kind", kind).Uint64("task", uint64(b.id)).Interface("panic", r).Msg("task panicked")
		}

		ran := time.Since(start)
		c.metrics.TaskFinished(kind, ran, err)
		switch {
		case err == nil:
			c.log.Debug().Stringer("kind", kind).Uint64("task", uint64(b.id)).Dur("ran", ran).Msg("task finished")
		case errors.Is(err, context.Canceled):
			c.log.Debug().Stringer("kind", kind).Uint64("task", uint64(b.id)).Msg("task aborted")
		default:
			c.log.Warn().Stringer("kind", kind).Uint64("task", uint64(b.id)).Err(err).Msg("task failed")
		}

		c.lock()
	}()

	if body == nil {
		return nil
	}
	return body(b.ctx)
}

func (c *Coordinator) lock() {
	c.mu.Lock()
}

func (c *Coordinator) unlock() {
	c.mu.Unlock()
}

// waitLocked blocks until another goroutine calls notifyAllLocked. The
// caller must re-check its condition afterwards.
func (c *Coordinator) waitLocked() {
	c.wakeup.Wait()
}

func (c *Coordinator) notifyAllLocked() {
	c.wakeup.Broadcast()
}

// checkSubmitLocked returns the error a submission should fail with, if any.
func (c *Coordinator) checkSubmitLocked() error {
	switch {
	case c.terminating:
		return ErrTerminating
	case !c.initialized:
		return ErrNotInitialized
	}
	return nil
}

// enqueueLocked pushes t onto w and dispatches. A full worklist leaves the
// task untouched and reports ErrOutOfMemory.
func enqueueLocked[T Task](c *Coordinator, w *worklist[T], t T) error {
	if err := c.checkSubmitLocked(); err != nil {
		return err
	}
	if !w.push(t, inWorklist) {
		c.metrics.SubmitRejected(t.Kind())
		return fmt.Errorf("%w: %s worklist full (%d)", ErrOutOfMemory, t.Kind(), w.len())
	}
	t.base().rearm()
	c.metrics.TaskSubmitted(t.Kind())
	c.log.Debug().Stringer("kind", t.Kind()).Uint64("task", uint64(t.ID())).Msg("task submitted")
	c.dispatchLocked(DispatchNewTask)
	return nil
}

// requeueLocked pushes t back without a capacity check. Used for tasks the
// coordinator already owns, which must not be dropped.
func requeueLocked[T Task](c *Coordinator, w *worklist[T], t T) {
	w.pushUnbounded(t, inWorklist)
	c.dispatchLocked(DispatchNewTask)
}

// cancelQueuedLocked marks a task removed from a worklist as cancelled.
func (c *Coordinator) cancelQueuedLocked(t Task) {
	b := t.base()
	b.err = ErrTaskCancelled
	b.setState(TaskCancelled)
	b.abort()
	c.metrics.TaskCancelled(t.Kind())
}
