package helper

import (
	"context"
	"runtime"
)

// PromiseResolveFunc settles the promise attached to a PromiseHelperTask.
// It is called with the coordinator lock held and must not call back into
// the Coordinator.
type PromiseResolveFunc func(t *PromiseHelperTask)

// PromiseHelperTask runs the off-thread half of a promise-returning API and
// then hands the result back through its resolve hook.
type PromiseHelperTask struct {
	taskBase
	body    func(ctx context.Context) error
	resolve PromiseResolveFunc
}

// NewPromiseHelperTask returns a promise helper task.
func NewPromiseHelperTask(owner Owner, body func(ctx context.Context) error, resolve PromiseResolveFunc) *PromiseHelperTask {
	t := &PromiseHelperTask{body: body, resolve: resolve}
	t.init(owner)
	return t
}

// Kind returns ThreadKindPromiseTask.
func (t *PromiseHelperTask) Kind() ThreadKind { return ThreadKindPromiseTask }

func (t *PromiseHelperTask) run(c *Coordinator) {
	t.err = c.execute(t, t.body)
}

// Resolving and destroying happen under one lock hold so the task cannot
// be observed half-settled.
func (t *PromiseHelperTask) retire(*Coordinator) {
	t.setState(finishedOrCancelled(&t.taskBase))
	if t.resolve != nil {
		t.resolve(t)
	}
}

func (t *PromiseHelperTask) sizeOf() int { return 0 }

// SubmitPromiseHelper queues t. When the coordinator was built without
// extra threads, t runs to completion on the calling goroutine instead.
func (c *Coordinator) SubmitPromiseHelper(t *PromiseHelperTask) error {
	if !c.cfg.extraThreads {
		c.runInline(t, t.body)
		c.lock()
		t.retire(c)
		c.unlock()
		return nil
	}

	c.lock()
	defer c.unlock()
	return enqueueLocked(c, &c.promises, t)
}

// runInline executes body on the calling goroutine, recording its error or
// panic on t.
func (c *Coordinator) runInline(t Task, body func(ctx context.Context) error) {
	b := t.base()
	b.setState(TaskRunning)

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			b.err = &PanicError{Value: r, Stack: buf[:n]}
			c.log.Error().Stringer("kind", t.Kind()).Uint64("task", uint64(b.id)).Interface("panic", r).Msg("inline task panicked")
		}
	}()

	if body != nil {
		b.err = body(b.ctx)
	}
}
