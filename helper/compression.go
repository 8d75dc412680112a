package helper

import "context"

// CompressFunc compresses src and returns the compressed bytes.
type CompressFunc func(ctx context.Context, src []byte) ([]byte, error)

// CompressionHooks are optional producer callbacks of a CompressionTask.
type CompressionHooks struct {
	// ShouldCancel reports whether the source is no longer worth
	// compressing, for example because it was collected. Pending tasks for
	// which it returns true are dropped by SweepPendingCompressions.
	ShouldCancel func() bool

	// OnComplete is called by AttachFinishedCompressions on the producer's
	// goroutine.
	OnComplete func(t *CompressionTask)
}

// CompressionTask compresses one script source. It waits in the pending
// list until a major collection has happened since it was submitted, so
// short-lived sources are never compressed.
type CompressionTask struct {
	taskBase
	source     []byte
	compressed []byte
	body       CompressFunc
	hooks      CompressionHooks
	enqueuedGC uint64
}

// NewCompressionTask returns a compression of source. The owner must name a
// runtime.
func NewCompressionTask(owner Owner, source []byte, body CompressFunc, hooks CompressionHooks) *CompressionTask {
	assertf(owner.Runtime != nil, "compression task without a runtime")
	t := &CompressionTask{source: source, body: body, hooks: hooks}
	t.init(owner)
	return t
}

// Kind returns ThreadKindCompress.
func (t *CompressionTask) Kind() ThreadKind { return ThreadKindCompress }

// Source returns the uncompressed input.
func (t *CompressionTask) Source() []byte { return t.source }

// Compressed returns the output. It is nil until the task has run.
func (t *CompressionTask) Compressed() []byte { return t.compressed }

func (t *CompressionTask) shouldStart() bool {
	return t.owner.Runtime.MajorGCCount() > t.enqueuedGC
}

func (t *CompressionTask) shouldCancel() bool {
	return t.hooks.ShouldCancel != nil && t.hooks.ShouldCancel()
}

func (t *CompressionTask) run(c *Coordinator) {
	t.err = c.execute(t, func(ctx context.Context) error {
		if t.body == nil {
			return nil
		}
		out, err := t.body(ctx, t.source)
		t.compressed = out
		return err
	})
}

func (t *CompressionTask) retire(c *Coordinator) {
	t.setState(finishedOrCancelled(&t.taskBase))
	requeueFinished(&c.compressFinished, t)
}

func (t *CompressionTask) sizeOf() int { return len(t.source) + len(t.compressed) }

// SubmitCompression adds t to the pending list. It may be called before
// initialization; the task starts once StartHandlingCompressionsOnGC finds
// a major collection has happened since this call.
func (c *Coordinator) SubmitCompression(t *CompressionTask) error {
	c.lock()
	defer c.unlock()

	if c.terminating {
		return ErrTerminating
	}
	t.enqueuedGC = t.owner.Runtime.MajorGCCount()
	if !c.compressPending.push(t, inPending) {
		c.metrics.SubmitRejected(ThreadKindCompress)
		return ErrOutOfMemory
	}
	c.metrics.TaskSubmitted(ThreadKindCompress)
	return nil
}

// StartHandlingCompressionsOnGC moves the pending compressions of rt that
// have survived a major collection to the worklist. Call it at the end of
// every major collection.
func (c *Coordinator) StartHandlingCompressionsOnGC(rt *Runtime) {
	c.lock()
	defer c.unlock()
	c.startHandlingCompressionsLocked(rt, false)
}

func (c *Coordinator) startHandlingCompressionsLocked(rt *Runtime, all bool) {
	if !c.initialized || c.terminating {
		return
	}

	ready := c.compressPending.removeIf(func(t *CompressionTask) bool {
		return t.owner.Runtime == rt && (all || t.shouldStart())
	})
	started := 0
	for _, t := range ready {
		if c.compressions.push(t, inWorklist) {
			started++
			continue
		}
		c.compressPending.pushUnbounded(t, inPending)
	}
	if started > 0 {
		c.log.Debug().Stringer("runtime", rt).Int("started", started).Msg("started pending compressions")
		c.dispatchLocked(DispatchNewTask)
	}
}

// RunPendingSourceCompressions starts every pending compression of rt
// regardless of collections, waits for all work to finish and attaches the
// results.
func (c *Coordinator) RunPendingSourceCompressions(rt *Runtime) {
	c.lock()
	defer c.unlock()

	if !c.initialized {
		return
	}

	c.startHandlingCompressionsLocked(rt, true)

	match := func(t *CompressionTask) bool { return t.owner.Runtime == rt }
	for c.compressions.any(match) {
		c.waitLocked()
	}
	c.waitForAllTasksLocked()

	c.attachFinishedCompressionsLocked(rt)
}

// SweepPendingCompressions drops pending compressions whose ShouldCancel
// hook returns true.
func (c *Coordinator) SweepPendingCompressions() {
	c.lock()
	defer c.unlock()

	for _, t := range c.compressPending.removeIf((*CompressionTask).shouldCancel) {
		c.cancelQueuedLocked(t)
	}
}

// AttachFinishedCompressions removes the finished compressions of rt and
// calls their OnComplete hooks on the calling goroutine.
func (c *Coordinator) AttachFinishedCompressions(rt *Runtime) {
	c.lock()
	defer c.unlock()
	c.attachFinishedCompressionsLocked(rt)
}

func (c *Coordinator) attachFinishedCompressionsLocked(rt *Runtime) {
	done := c.compressFinished.removeIf(func(t *CompressionTask) bool { return t.owner.Runtime == rt })
	if len(done) == 0 {
		return
	}

	// Hooks may be slow and must be free to call back in.
	c.unlock()
	for _, t := range done {
		if t.hooks.OnComplete != nil && t.err == nil {
			t.hooks.OnComplete(t)
		}
	}
	c.lock()
}

// CancelCompressions drops every compression of rt, pending, queued or
// finished, and waits for running ones to stop.
func (c *Coordinator) CancelCompressions(rt *Runtime) {
	c.lock()
	defer c.unlock()
	c.cancelCompressionsLocked(SelectRuntime(rt))
}

func (c *Coordinator) cancelCompressionsLocked(sel Selector) {
	match := matching[*CompressionTask](sel)
	for _, t := range c.compressPending.removeIf(match) {
		c.cancelQueuedLocked(t)
	}

	if !c.initialized {
		return
	}

	for _, t := range c.compressions.removeIf(match) {
		c.cancelQueuedLocked(t)
	}
	for c.abortRunningLocked(ThreadKindCompress, sel) {
		c.waitLocked()
	}
	c.compressFinished.removeIf(match)
}
