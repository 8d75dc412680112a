package helper

import "context"

// DelazifyStepFunc compiles the next batch of lazy functions. It reports
// done once nothing is left to compile.
type DelazifyStepFunc func(ctx context.Context) (done bool, err error)

// DelazifyTask eagerly compiles the lazy functions of a source in bounded
// steps. After each step it goes back to the end of the worklist so other
// work can interleave, until the step reports done. It is then handed to a
// FreeDelazifyTask.
type DelazifyTask struct {
	taskBase
	size    int
	step    DelazifyStepFunc
	release func()
	steps   int
	done    bool
}

// NewDelazifyTask returns a delazification of a source retaining size
// bytes. release, if not nil, runs on a worker once the task is done.
// An owner without a runtime is matched by every runtime selector.
func NewDelazifyTask(owner Owner, size int, step DelazifyStepFunc, release func()) *DelazifyTask {
	t := &DelazifyTask{size: size, step: step, release: release}
	t.init(owner)
	return t
}

// Kind returns ThreadKindDelazify.
func (t *DelazifyTask) Kind() ThreadKind { return ThreadKindDelazify }

// Steps returns how many steps have run.
func (t *DelazifyTask) Steps() int { return t.steps }

// Done reports whether the last step finished the work.
func (t *DelazifyTask) Done() bool { return t.done }

func (t *DelazifyTask) run(c *Coordinator) {
	t.err = c.execute(t, func(ctx context.Context) error {
		if t.step == nil {
			t.done = true
			return nil
		}
		done, err := t.step(ctx)
		t.done = done
		return err
	})
	t.steps++
}

func (t *DelazifyTask) retire(c *Coordinator) {
	if !t.done && t.err == nil && !t.aborted() {
		requeueLocked(c, &c.delazifies, t)
		return
	}

	t.setState(finishedOrCancelled(&t.taskBase))
	c.freeDelazifyLocked(t)
}

func (t *DelazifyTask) sizeOf() int { return t.size }

func (t *DelazifyTask) releaseNow() {
	if t.release != nil {
		t.release()
		t.release = nil
	}
}

// SubmitDelazify queues t. Without extra threads the request is dropped and
// t stays idle.
func (c *Coordinator) SubmitDelazify(t *DelazifyTask) error {
	if !c.cfg.extraThreads {
		return nil
	}

	c.lock()
	defer c.unlock()
	return enqueueLocked(c, &c.delazifies, t)
}

func (c *Coordinator) freeDelazifyLocked(t *DelazifyTask) {
	f := newFreeDelazifyTask(t)
	if !c.terminating && c.freeDelazifies.push(f, inWorklist) {
		c.metrics.TaskSubmitted(ThreadKindDelazifyFree)
		c.dispatchLocked(DispatchNewTask)
		return
	}
	t.releaseNow()
	f.setState(TaskFinished)
}

// CancelDelazify drops every delazification of rt and waits for running
// ones to stop. A task without a runtime is cancelled by any call. It then
// waits until all free tasks have run.
func (c *Coordinator) CancelDelazify(rt *Runtime) {
	c.lock()
	defer c.unlock()
	c.cancelDelazifyLocked(SelectRuntime(rt))
}

func (c *Coordinator) cancelDelazifyLocked(sel Selector) {
	if !c.initialized {
		return
	}

	match := matching[*DelazifyTask](sel)
	for {
		for _, t := range c.delazifies.removeIf(match) {
			c.cancelQueuedLocked(t)
			t.releaseNow()
		}
		if !c.abortRunningLocked(ThreadKindDelazify, sel) {
			break
		}
		c.waitLocked()
	}

	for !c.freeDelazifies.empty() || c.runningCount[ThreadKindDelazifyFree] > 0 {
		c.waitLocked()
	}
}

// WaitForAllDelazifyTasks blocks until rt has no delazification queued or
// running and every free task has run.
func (c *Coordinator) WaitForAllDelazifyTasks(rt *Runtime) {
	c.lock()
	defer c.unlock()

	if !c.initialized {
		return
	}

	sel := SelectRuntime(rt)
	for c.delazifies.any(matching[*DelazifyTask](sel)) ||
		c.anyRunningLocked(ThreadKindDelazify, sel) ||
		!c.freeDelazifies.empty() ||
		c.runningCount[ThreadKindDelazifyFree] > 0 {
		c.waitLocked()
	}
}

// FreeDelazifyTask runs the release hook of a finished DelazifyTask.
type FreeDelazifyTask struct {
	taskBase
	task *DelazifyTask
}

func newFreeDelazifyTask(t *DelazifyTask) *FreeDelazifyTask {
	f := &FreeDelazifyTask{task: t}
	f.init(Owner{})
	return f
}

// Kind returns ThreadKindDelazifyFree.
func (t *FreeDelazifyTask) Kind() ThreadKind { return ThreadKindDelazifyFree }

func (t *FreeDelazifyTask) run(c *Coordinator) {
	t.err = c.execute(t, func(context.Context) error {
		t.task.releaseNow()
		return nil
	})
}

func (t *FreeDelazifyTask) retire(*Coordinator) { t.setState(TaskFinished) }

func (t *FreeDelazifyTask) sizeOf() int { return t.task.sizeOf() }
