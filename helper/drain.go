package helper

import (
	"context"
	"errors"
	"time"
)

// matching adapts a selector to a typed worklist predicate.
func matching[T Task](sel Selector) func(T) bool {
	return func(t T) bool { return sel.Matches(t) }
}

// queuedLists returns every worklist a worker may pop from.
func (c *Coordinator) queuedLists() []taskList {
	return []taskList{
		&c.gcParallel,
		&c.jitCompiles,
		&c.wasmTier1,
		&c.promises,
		&c.parses,
		&c.freeDelazifies,
		&c.delazifies,
		&c.compressions,
		&c.jitFree,
		&c.wasmTier2,
		&c.tier2Generators,
	}
}

// finishedLists returns every list holding tasks waiting for their
// producer.
func (c *Coordinator) finishedLists() []taskList {
	return []taskList{&c.wasmFinished, &c.jitFinished, &c.parseFinished, &c.compressFinished}
}

func (c *Coordinator) isRunningLocked(id TaskID) bool {
	for _, t := range c.running {
		if t.ID() == id {
			return true
		}
	}
	return false
}

// anyRunningLocked reports whether a running task of kind matches sel.
// ThreadKindNone matches every kind.
func (c *Coordinator) anyRunningLocked(kind ThreadKind, sel Selector) bool {
	for _, t := range c.running {
		if (kind == ThreadKindNone || t.Kind() == kind) && sel.Matches(t) {
			return true
		}
	}
	return false
}

// abortRunningLocked aborts the running tasks of kind matching sel and
// reports whether there were any. ThreadKindNone aborts every abortable
// kind.
func (c *Coordinator) abortRunningLocked(kind ThreadKind, sel Selector) bool {
	found := false
	for _, t := range c.running {
		if kind != ThreadKindNone && t.Kind() != kind {
			continue
		}
		if !sel.Matches(t) {
			continue
		}
		if t.Kind().abortable() {
			t.base().abort()
		}
		found = true
	}
	return found
}

func (c *Coordinator) queuedMatchLocked(sel Selector) bool {
	for _, w := range c.queuedLists() {
		if w.anyTask(sel.Matches) {
			return true
		}
	}
	return false
}

// HasPendingWork reports whether a task matching sel is queued, pending
// compression, running, finished but not yet taken, or waiting to be lazily
// linked.
func (c *Coordinator) HasPendingWork(sel Selector) bool {
	c.lock()
	defer c.unlock()
	return c.hasPendingWorkLocked(sel)
}

func (c *Coordinator) hasPendingWorkLocked(sel Selector) bool {
	if c.queuedMatchLocked(sel) || c.compressPending.anyTask(sel.Matches) {
		return true
	}
	if c.anyRunningLocked(ThreadKindNone, sel) {
		return true
	}
	for _, w := range c.finishedLists() {
		if w.anyTask(sel.Matches) {
			return true
		}
	}
	for rt := range c.lazyRuntimes {
		for _, t := range rt.lazyLinks {
			if sel.Matches(t) {
				return true
			}
		}
	}
	return false
}

// WaitIdle blocks until no task matching sel is queued or running. Tasks
// submitted concurrently that do not match sel do not delay it. The
// compression pending list is not considered.
func (c *Coordinator) WaitIdle(sel Selector) {
	_ = c.WaitIdleContext(context.Background(), sel)
}

// WaitIdleTimeout is WaitIdle bounded by d. It returns ErrWaitTimeout if
// matching work remains when d expires.
func (c *Coordinator) WaitIdleTimeout(sel Selector, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	err := c.WaitIdleContext(ctx, sel)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrWaitTimeout
	}
	return err
}

// WaitIdleContext is WaitIdle that gives up when ctx is done.
func (c *Coordinator) WaitIdleContext(ctx context.Context, sel Selector) error {
	stop := c.wakeOnDone(ctx)
	defer stop()

	c.lock()
	defer c.unlock()

	if !c.initialized {
		return nil
	}
	for c.queuedMatchLocked(sel) || c.anyRunningLocked(ThreadKindNone, sel) {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.waitLocked()
	}
	return nil
}

// Cancel removes every queued task matching sel, aborts the matching running
// tasks that support it, waits for all matching tasks to stop and reclaims
// their finished results. Parse and promise helper tasks cannot be
// interrupted and are waited for instead. Cancel repeats until a full pass
// finds no matching work, so it converges even when tasks re-queue
// themselves.
func (c *Coordinator) Cancel(sel Selector) {
	c.lock()
	defer c.unlock()

	c.log.Info().Stringer("selector", sel).Msg("cancelling tasks")
	if !c.initialized {
		c.cancelCompressionsLocked(sel)
		return
	}

	for pass := 1; ; pass++ {
		c.cancelJitCompileLocked(sel)

		for _, t := range c.tier2Generators.removeIf(matching[*Tier2GeneratorTask](sel)) {
			c.cancelQueuedLocked(t)
		}
		for _, w := range []*worklist[*CompileTask]{&c.wasmTier1, &c.wasmTier2} {
			for _, t := range w.removeIf(matching[*CompileTask](sel)) {
				c.cancelQueuedLocked(t)
			}
		}
		for _, t := range c.gcParallel.removeIf(matching[*GCParallelTask](sel)) {
			c.cancelQueuedLocked(t)
		}

		c.cancelDelazifyLocked(sel)
		c.cancelCompressionsLocked(sel)

		for c.abortRunningLocked(ThreadKindNone, sel) || c.promises.any(matching[*PromiseHelperTask](sel)) {
			c.waitLocked()
		}
		c.cancelParsesLocked(sel)

		c.wasmFinished.removeIf(matching[*CompileTask](sel))

		if !c.hasPendingWorkLocked(sel) {
			c.log.Debug().Stringer("selector", sel).Int("passes", pass).Msg("cancel complete")
			return
		}

		// What remains is cleanup work the workers still have to pick up.
		c.waitLocked()
	}
}
