package helper

import (
	"context"
	"sync/atomic"
	"time"
)

// TaskID uniquely identifies a task within the process.
type TaskID uint64

var lastTaskID atomic.Uint64

// TaskState is the lifecycle position of a task.
//
//	Idle -> Queued -> Running -> Finished
//	          |          |
//	          +----------+-----> Cancelled
type TaskState int32

const (
	TaskIdle TaskState = iota
	TaskQueued
	TaskRunning
	TaskFinished
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	case TaskCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// container records which coordinator structure holds a task. A task is in
// at most one container at any time.
type container uint8

const (
	inNone container = iota
	inWorklist
	inPending
	inRunning
	inFinished
	inLazyLink
	inCleanup
)

func (c container) String() string {
	return [...]string{"none", "worklist", "pending", "running", "finished", "lazy-link", "cleanup"}[c]
}

// Task is a unit of background work. The set of implementations is closed:
// CompileTask, Tier2GeneratorTask, JitCompileTask, JitFreeTask, ParseTask,
// DelazifyTask, FreeDelazifyTask, CompressionTask, PromiseHelperTask and
// GCParallelTask.
type Task interface {
	// ID returns the task's unique identifier.
	ID() TaskID
	// Kind returns the worklist the task belongs to.
	Kind() ThreadKind
	// Owner returns the producer metadata selectors match against.
	Owner() Owner
	// State returns the current lifecycle state. It may be read at any time.
	State() TaskState
	// Err returns the failure recorded by the task body. It is only
	// meaningful once the task is finished.
	Err() error

	base() *taskBase

	// run executes the task body. It is called with the coordinator lock
	// held and releases it around the body.
	run(c *Coordinator)

	// retire hands the task to its next owner once it has left the running
	// registry. It is called with the coordinator lock held.
	retire(c *Coordinator)

	// sizeOf estimates the memory retained by the task in bytes.
	sizeOf() int
}

// taskBase carries the bookkeeping shared by every task variant.
type taskBase struct {
	id    TaskID
	owner Owner
	state atomic.Int32

	// Guarded by the coordinator lock.
	where    container
	queuedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	err    error
}

func (b *taskBase) init(owner Owner) {
	b.id = TaskID(lastTaskID.Add(1))
	b.owner = owner
	b.ctx, b.cancel = context.WithCancel(context.Background())
}

func (b *taskBase) ID() TaskID { return b.id }
func (b *taskBase) Owner() Owner { return b.owner }
func (b *taskBase) State() TaskState { return TaskState(b.state.Load()) }
func (b *taskBase) Err() error { return b.err }
func (b *taskBase) base() *taskBase { return b }
func (b *taskBase) setState(s TaskState) { b.state.Store(int32(s)) }

// abort asks a running body to stop at its next cancellation check.
func (b *taskBase) abort() { b.cancel() }

// aborted reports whether abort was called.
func (b *taskBase) aborted() bool { return b.ctx.Err() != nil }

// rearm clears the outcome of a previous run so the task can be queued
// again.
func (b *taskBase) rearm() {
	if b.aborted() {
		b.ctx, b.cancel = context.WithCancel(context.Background())
	}
	b.err = nil
}

// Visitor is called by TraceReachable for every JIT compilation the
// coordinator holds. The task's arena is writable for the duration of the
// call.
type Visitor interface {
	VisitJitCompile(t *JitCompileTask)
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(t *JitCompileTask)

// VisitJitCompile calls f(t).
func (f VisitorFunc) VisitJitCompile(t *JitCompileTask) { f(t) }
