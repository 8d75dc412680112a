package helper

import (
	"context"
	"fmt"
)

// ParseKind distinguishes the off-thread parse variants.
type ParseKind int

const (
	ParseScript ParseKind = iota
	ParseModule
	ParseDecode
)

func (k ParseKind) String() string {
	switch k {
	case ParseModule:
		return "module"
	case ParseDecode:
		return "decode"
	default:
		return "script"
	}
}

// ParseFunc parses or decodes one source and returns the result.
type ParseFunc func(ctx context.Context) (any, error)

// ParseCallback is called on the worker once the parse body returns,
// with the coordinator lock released. It usually notifies the producer,
// which then calls FinishParseTask.
type ParseCallback func(t *ParseTask)

// ParseTask parses a script or module, or decodes bytecode, off the main
// thread.
type ParseTask struct {
	taskBase
	kind     ParseKind
	size     int
	body     ParseFunc
	callback ParseCallback
	result   any
}

// NewParseTask returns a parse task of size source bytes. The owner must
// name a runtime.
func NewParseTask(owner Owner, kind ParseKind, size int, body ParseFunc, cb ParseCallback) *ParseTask {
	assertf(owner.Runtime != nil, "parse task without a runtime")
	t := &ParseTask{kind: kind, size: size, body: body, callback: cb}
	t.init(owner)
	return t
}

// Kind returns ThreadKindParse.
func (t *ParseTask) Kind() ThreadKind { return ThreadKindParse }

// ParseKind returns the parse variant.
func (t *ParseTask) ParseKind() ParseKind { return t.kind }

// Result returns what the parse body produced. It is only meaningful once
// the task is finished.
func (t *ParseTask) Result() any { return t.result }

func (t *ParseTask) run(c *Coordinator) {
	t.err = c.execute(t, func(ctx context.Context) error {
		if t.body != nil {
			t.result, t.err = t.body(ctx)
		}
		if t.callback != nil {
			t.callback(t)
		}
		return t.err
	})
}

func (t *ParseTask) retire(c *Coordinator) {
	t.setState(finishedOrCancelled(&t.taskBase))
	requeueFinished(&c.parseFinished, t)
}

func (t *ParseTask) sizeOf() int { return t.size }

// SubmitParse queues a parse task.
func (c *Coordinator) SubmitParse(t *ParseTask) error {
	c.lock()
	defer c.unlock()
	return enqueueLocked(c, &c.parses, t)
}

// FinishParseTask blocks until the parse task id of rt has run, removes it
// from the finished list and returns it along with the error its body
// recorded.
func (c *Coordinator) FinishParseTask(rt *Runtime, id TaskID) (*ParseTask, error) {
	c.lock()
	defer c.unlock()

	isTask := func(t *ParseTask) bool { return t.id == id && t.owner.Runtime == rt }
	for c.parses.any(isTask) || c.isRunningLocked(id) {
		c.waitLocked()
	}

	taken := c.parseFinished.removeIf(isTask)
	if len(taken) == 0 {
		return nil, fmt.Errorf("%w: parse task %d of %s", ErrTaskNotFound, id, rt)
	}
	t := taken[0]
	return t, t.err
}

// CancelParseTask removes the parse task id of rt if it is still queued.
// Otherwise it waits for the task to finish and destroys it.
func (c *Coordinator) CancelParseTask(rt *Runtime, id TaskID) {
	c.lock()
	defer c.unlock()

	isTask := func(t *ParseTask) bool { return t.id == id && t.owner.Runtime == rt }
	if removed := c.parses.removeIf(isTask); len(removed) > 0 {
		c.cancelQueuedLocked(removed[0])
		return
	}

	for c.isRunningLocked(id) {
		c.waitLocked()
	}
	c.parseFinished.removeIf(isTask)
}

// CancelParses waits until rt has no queued or running parse task and then
// destroys its finished ones. Queued tasks are left to run; parses are not
// interruptible.
func (c *Coordinator) CancelParses(rt *Runtime) {
	c.lock()
	defer c.unlock()
	c.cancelParsesLocked(SelectRuntime(rt))
}

func (c *Coordinator) cancelParsesLocked(sel Selector) {
	if !c.initialized {
		return
	}

	match := matching[*ParseTask](sel)
	for c.parses.any(match) || c.anyRunningLocked(ThreadKindParse, sel) {
		c.waitLocked()
	}

	if n := len(c.parseFinished.removeIf(match)); n > 0 {
		c.log.Info().Stringer("selector", sel).Int("destroyed", n).Msg("cancelled finished parse tasks")
	}
}
