package helper

import (
	"context"
	"sync/atomic"
)

// CompileTier is the wasm compilation tier.
type CompileTier int

const (
	// Tier1 is the fast baseline tier.
	Tier1 CompileTier = iota
	// Tier2 is the optimizing tier, compiled in the background.
	Tier2
)

func (t CompileTier) String() string {
	if t == Tier2 {
		return "tier2"
	}
	return "tier1"
}

func (t CompileTier) threadKind() ThreadKind {
	if t == Tier2 {
		return ThreadKindWasmCompileTier2
	}
	return ThreadKindWasmCompileTier1
}

// CompileTaskState groups the compile tasks of one module. Finished tasks
// are counted here and collected with TakeFinishedCompiles.
type CompileTaskState struct {
	finished atomic.Int64
	failed   atomic.Int64
}

// NewCompileTaskState returns an empty group.
func NewCompileTaskState() *CompileTaskState { return &CompileTaskState{} }

// Finished returns the number of tasks of the group that succeeded.
func (s *CompileTaskState) Finished() int64 { return s.finished.Load() }

// Failed returns the number of tasks of the group that failed or were
// aborted.
func (s *CompileTaskState) Failed() int64 { return s.failed.Load() }

// CompileFunc compiles one batch of functions. It should return promptly
// with ctx.Err() once ctx is done.
type CompileFunc func(ctx context.Context) error

// CompileTask compiles a batch of wasm functions at one tier.
type CompileTask struct {
	taskBase
	tier  CompileTier
	group *CompileTaskState
	size  int
	body  CompileFunc
}

// NewCompileTask returns a task compiling size bytes of code for group.
func NewCompileTask(owner Owner, group *CompileTaskState, tier CompileTier, size int, body CompileFunc) *CompileTask {
	assertf(group != nil, "compile task without a group")
	t := &CompileTask{tier: tier, group: group, size: size, body: body}
	t.init(owner)
	return t
}

// Kind returns the tier's thread kind.
func (t *CompileTask) Kind() ThreadKind { return t.tier.threadKind() }

// Tier returns the compilation tier.
func (t *CompileTask) Tier() CompileTier { return t.tier }

// Group returns the state shared by the task's module.
func (t *CompileTask) Group() *CompileTaskState { return t.group }

func (t *CompileTask) run(c *Coordinator) {
	t.err = c.execute(t, t.body)
}

func (t *CompileTask) retire(c *Coordinator) {
	if t.err != nil {
		t.group.failed.Add(1)
	} else {
		t.group.finished.Add(1)
	}
	t.setState(finishedOrCancelled(&t.taskBase))
	requeueFinished(&c.wasmFinished, t)
}

func (t *CompileTask) sizeOf() int { return t.size }

// SubmitCompile queues t at its tier. Parallel wasm compilation is never
// enabled on single-core machines, so submitting with one CPU panics and
// leaves t with the caller.
func (c *Coordinator) SubmitCompile(t *CompileTask) error {
	c.lock()
	defer c.unlock()

	assertf(c.cpuCount > 1, "wasm compilation submitted with %d CPU", c.cpuCount)
	return enqueueLocked(c, c.wasmWorklist(t.tier), t)
}

// RemovePendingCompileTasks drops the queued tasks of group at tier and
// returns how many were removed.
func (c *Coordinator) RemovePendingCompileTasks(group *CompileTaskState, tier CompileTier) int {
	c.lock()
	defer c.unlock()

	removed := c.wasmWorklist(tier).removeIf(func(t *CompileTask) bool { return t.group == group })
	for _, t := range removed {
		c.cancelQueuedLocked(t)
	}
	return len(removed)
}

// TakeFinishedCompiles removes and returns the finished tasks of group.
func (c *Coordinator) TakeFinishedCompiles(group *CompileTaskState) []*CompileTask {
	c.lock()
	defer c.unlock()
	return c.wasmFinished.removeIf(func(t *CompileTask) bool { return t.group == group })
}

// WaitForCompileTasks blocks until n tasks of group have finished or
// failed, or ctx is done.
func (c *Coordinator) WaitForCompileTasks(ctx context.Context, group *CompileTaskState, n int64) error {
	stop := c.wakeOnDone(ctx)
	defer stop()

	c.lock()
	defer c.unlock()
	for group.Finished()+group.Failed() < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.waitLocked()
	}
	return nil
}

// GeneratorFunc drives a module's tier-2 compilation. It typically submits
// Tier2 CompileTasks and waits for them, which is why it is a master task.
type GeneratorFunc func(ctx context.Context) error

// Tier2GeneratorTask produces the tier-2 compile tasks of one module.
type Tier2GeneratorTask struct {
	taskBase
	body GeneratorFunc
}

// NewTier2GeneratorTask returns a generator task.
func NewTier2GeneratorTask(owner Owner, body GeneratorFunc) *Tier2GeneratorTask {
	t := &Tier2GeneratorTask{body: body}
	t.init(owner)
	return t
}

// Kind returns ThreadKindWasmGeneratorTier2.
func (t *Tier2GeneratorTask) Kind() ThreadKind { return ThreadKindWasmGeneratorTier2 }

func (t *Tier2GeneratorTask) run(c *Coordinator) {
	t.err = c.execute(t, t.body)
}

func (t *Tier2GeneratorTask) retire(c *Coordinator) {
	c.tier2GeneratorsFinished++
	t.setState(finishedOrCancelled(&t.taskBase))
}

func (t *Tier2GeneratorTask) sizeOf() int { return 0 }

// SubmitTier2Generator queues a tier-2 generator.
func (c *Coordinator) SubmitTier2Generator(t *Tier2GeneratorTask) error {
	c.lock()
	defer c.unlock()
	return enqueueLocked(c, &c.tier2Generators, t)
}

// CancelWasmTier2Generator drops queued generators and stops the running
// one, waiting until it has exited.
func (c *Coordinator) CancelWasmTier2Generator() {
	c.lock()
	defer c.unlock()
	c.cancelTier2GeneratorLocked()
}

func (c *Coordinator) cancelTier2GeneratorLocked() {
	if !c.initialized {
		return
	}

	for _, t := range c.tier2Generators.drain() {
		c.cancelQueuedLocked(t)
	}

	// At most one generator runs at a time.
	for _, r := range c.running {
		g, ok := r.(*Tier2GeneratorTask)
		if !ok {
			continue
		}
		g.abort()
		c.log.Info().Uint64("task", uint64(g.id)).Msg("waiting for tier-2 generator to stop")

		// Wait on the finished counter rather than the registry: the
		// generator may need other workers to wind down.
		before := c.tier2GeneratorsFinished
		for c.tier2GeneratorsFinished == before {
			c.waitLocked()
		}
		break
	}
}

// finishedOrCancelled picks the terminal state of a task whose body
// returned.
func finishedOrCancelled(b *taskBase) TaskState {
	if b.aborted() {
		return TaskCancelled
	}
	return TaskFinished
}

// requeueFinished appends t to an unbounded finished list.
func requeueFinished[T Task](w *worklist[T], t T) {
	w.pushUnbounded(t, inFinished)
}

// wakeOnDone wakes every waiter when ctx is done, so cond-based waits can
// observe cancellation. The returned function releases the hook.
func (c *Coordinator) wakeOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		c.lock()
		c.notifyAllLocked()
		c.unlock()
	})
}
