package helper

import (
	"context"

	"github.com/utkarsh5026/helperpool/internal/arena"
)

// JitCompileFunc compiles one code unit, allocating its intermediate state
// from a. The arena is writable while the function runs.
type JitCompileFunc func(ctx context.Context, a *arena.Arena) error

// JitCompileTask is an optimizing compilation of one code unit. The task
// owns its arena until it is handed to a JitFreeTask.
type JitCompileTask struct {
	taskBase
	unit  *CodeUnit
	arena *arena.Arena
	body  JitCompileFunc
}

// NewJitCompileTask returns a compilation of unit using a for allocation.
func NewJitCompileTask(unit *CodeUnit, a *arena.Arena, body JitCompileFunc) *JitCompileTask {
	assertf(unit != nil, "JIT compile task without a code unit")
	assertf(a != nil, "JIT compile task without an arena")
	t := &JitCompileTask{unit: unit, arena: a, body: body}
	t.init(unit.Owner())
	return t
}

// Kind returns ThreadKindJitCompile.
func (t *JitCompileTask) Kind() ThreadKind { return ThreadKindJitCompile }

// Unit returns the code unit being compiled.
func (t *JitCompileTask) Unit() *CodeUnit { return t.unit }

// Arena returns the task's allocation arena.
func (t *JitCompileTask) Arena() *arena.Arena { return t.arena }

func (t *JitCompileTask) run(c *Coordinator) {
	t.arena.SetReadWrite()
	t.err = c.execute(t, func(ctx context.Context) error {
		if t.body == nil {
			return nil
		}
		return t.body(ctx, t.arena)
	})
}

func (t *JitCompileTask) retire(c *Coordinator) {
	t.setState(finishedOrCancelled(&t.taskBase))
	requeueFinished(&c.jitFinished, t)
	t.unit.Runtime().finishedJit.Add(1)
}

func (t *JitCompileTask) sizeOf() int { return t.arena.Cap() }

func (t *JitCompileTask) release() error {
	return t.arena.Release()
}

// SubmitJitCompile freezes the task's arena and queues the task.
func (c *Coordinator) SubmitJitCompile(t *JitCompileTask) error {
	c.lock()
	defer c.unlock()

	t.arena.SetReadOnly()
	if err := enqueueLocked(c, &c.jitCompiles, t); err != nil {
		t.arena.SetReadWrite()
		return err
	}
	return nil
}

// TakeFinishedJitCompiles removes the finished compilations matching sel
// and returns them in completion order. The caller links each one and then
// either keeps it on the lazy-link list or passes it to
// FinishJitCompileTask.
func (c *Coordinator) TakeFinishedJitCompiles(sel Selector) []*JitCompileTask {
	c.lock()
	defer c.unlock()

	taken := c.jitFinished.removeIf(matching[*JitCompileTask](sel))
	for _, t := range taken {
		t.unit.Runtime().finishedJit.Add(-1)
	}
	return taken
}

// AddLazyLink parks a finished compilation on its runtime's lazy-link list
// until the code is first run.
func (c *Coordinator) AddLazyLink(t *JitCompileTask) {
	c.lock()
	defer c.unlock()

	assertf(t.where == inNone, "lazy-linking task %d held by %s", t.id, t.where)
	rt := t.unit.Runtime()
	t.where = inLazyLink
	rt.lazyLinks = append(rt.lazyLinks, t)
	c.lazyRuntimes[rt] = struct{}{}
}

// RemoveLazyLink takes t off its runtime's lazy-link list. It reports
// whether t was there.
func (c *Coordinator) RemoveLazyLink(t *JitCompileTask) bool {
	c.lock()
	defer c.unlock()
	return c.removeLazyLinkLocked(t)
}

func (c *Coordinator) removeLazyLinkLocked(t *JitCompileTask) bool {
	rt := t.unit.Runtime()
	for i, l := range rt.lazyLinks {
		if l != t {
			continue
		}
		rt.lazyLinks = append(rt.lazyLinks[:i], rt.lazyLinks[i+1:]...)
		if len(rt.lazyLinks) == 0 {
			delete(c.lazyRuntimes, rt)
		}
		t.where = inNone
		return true
	}
	return false
}

// FinishJitCompileTask releases a compilation the producer no longer needs.
// The arena is freed by a JitFreeTask when workers are available, inline
// otherwise.
func (c *Coordinator) FinishJitCompileTask(t *JitCompileTask) {
	c.lock()
	defer c.unlock()

	assertf(t.where == inNone, "finishing task %d still held by %s", t.id, t.where)
	c.freeJitCompileLocked(t)
}

func (c *Coordinator) freeJitCompileLocked(t *JitCompileTask) {
	f := NewJitFreeTask(t)
	if c.checkSubmitLocked() == nil && c.jitFree.push(f, inWorklist) {
		c.metrics.TaskSubmitted(ThreadKindJitFree)
		c.dispatchLocked(DispatchNewTask)
		return
	}
	if err := f.release(); err != nil {
		c.log.Warn().Err(err).Uint64("task", uint64(t.id)).Msg("releasing JIT arena")
	}
	f.setState(TaskFinished)
}

// CancelJitCompile cancels every compilation matching sel and blocks until
// none is queued, running or finished. Cancelled compilations are freed.
func (c *Coordinator) CancelJitCompile(sel Selector) {
	c.lock()
	defer c.unlock()
	c.cancelJitCompileLocked(sel)
}

func (c *Coordinator) cancelJitCompileLocked(sel Selector) {
	if !c.initialized {
		return
	}
	match := matching[*JitCompileTask](sel)

	for _, t := range c.jitCompiles.removeIf(match) {
		t.arena.SetReadWrite()
		c.cancelQueuedLocked(t)
		requeueFinished(&c.jitFinished, t)
		t.unit.Runtime().finishedJit.Add(1)
	}

	for c.abortRunningLocked(ThreadKindJitCompile, sel) {
		c.waitLocked()
	}

	for _, t := range c.jitFinished.removeIf(match) {
		t.unit.Runtime().finishedJit.Add(-1)
		c.freeJitCompileLocked(t)
	}

	for rt := range c.lazyRuntimes {
		for _, t := range append([]*JitCompileTask(nil), rt.lazyLinks...) {
			if sel.Matches(t) {
				c.removeLazyLinkLocked(t)
				c.freeJitCompileLocked(t)
			}
		}
	}
}

// JitFreeTask releases the arena of a compilation that is no longer needed.
type JitFreeTask struct {
	taskBase
	compile *JitCompileTask
}

// NewJitFreeTask returns a task freeing t. Free tasks carry no owner, so
// selectors never match them.
func NewJitFreeTask(t *JitCompileTask) *JitFreeTask {
	f := &JitFreeTask{compile: t}
	f.init(Owner{})
	return f
}

// Kind returns ThreadKindJitFree.
func (t *JitFreeTask) Kind() ThreadKind { return ThreadKindJitFree }

func (t *JitFreeTask) run(c *Coordinator) {
	t.err = c.execute(t, func(context.Context) error { return t.release() })
}

func (t *JitFreeTask) retire(*Coordinator) { t.setState(TaskFinished) }

func (t *JitFreeTask) sizeOf() int { return t.compile.sizeOf() }

func (t *JitFreeTask) release() error { return t.compile.release() }

// SubmitJitFree queues a free task. Freeing falls back to the calling
// goroutine when workers are unavailable, so this only fails when the
// worklist is full.
func (c *Coordinator) SubmitJitFree(t *JitFreeTask) error {
	c.lock()
	defer c.unlock()

	if c.checkSubmitLocked() != nil {
		if err := t.release(); err != nil {
			return err
		}
		t.setState(TaskFinished)
		return nil
	}
	return enqueueLocked(c, &c.jitFree, t)
}
