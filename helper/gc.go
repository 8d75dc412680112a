package helper

import (
	"context"
	"time"
)

// GCParallelTask is a chunk of collector work, such as sweeping an arena
// list or decommitting memory, run alongside the main thread.
type GCParallelTask struct {
	taskBase
	body     func(ctx context.Context) error
	duration time.Duration
}

// NewGCParallelTask returns a GC task. Unlike other tasks it may be
// submitted again once it has finished or been cancelled.
func NewGCParallelTask(owner Owner, body func(ctx context.Context) error) *GCParallelTask {
	t := &GCParallelTask{body: body}
	t.init(owner)
	return t
}

// Kind returns ThreadKindGCParallel.
func (t *GCParallelTask) Kind() ThreadKind { return ThreadKindGCParallel }

// Duration returns how long the last run took.
func (t *GCParallelTask) Duration() time.Duration { return t.duration }

func (t *GCParallelTask) run(c *Coordinator) {
	start := time.Now()
	t.err = c.execute(t, t.body)
	t.duration = time.Since(start)
}

func (t *GCParallelTask) retire(*Coordinator) {
	t.setState(finishedOrCancelled(&t.taskBase))
}

func (t *GCParallelTask) sizeOf() int { return 0 }

// SubmitGCParallel queues t. The GC worklist is unbounded.
func (c *Coordinator) SubmitGCParallel(t *GCParallelTask) error {
	c.lock()
	defer c.unlock()
	return enqueueLocked(c, &c.gcParallel, t)
}

// JoinGCParallel waits for t and returns its error. A task that has not
// started yet is taken off the worklist and run on the calling goroutine.
func (c *Coordinator) JoinGCParallel(t *GCParallelTask) error {
	c.lock()

	if c.gcParallel.remove(t) {
		c.unlock()
		start := time.Now()
		c.runInline(t, t.body)
		t.duration = time.Since(start)

		c.lock()
		t.retire(c)
		c.completed[ThreadKindGCParallel]++
		c.notifyAllLocked()
		c.unlock()
		return t.err
	}

	defer c.unlock()
	for t.where == inRunning {
		c.waitLocked()
	}
	return t.err
}

// CancelGCParallel removes t if it has not started, or aborts it and waits
// if it has.
func (c *Coordinator) CancelGCParallel(t *GCParallelTask) {
	c.lock()
	defer c.unlock()

	if c.gcParallel.remove(t) {
		c.cancelQueuedLocked(t)
		return
	}
	if t.where == inRunning {
		t.abort()
		for t.where == inRunning {
			c.waitLocked()
		}
	}
}
