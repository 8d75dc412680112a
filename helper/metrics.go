package helper

import "time"

// Metrics receives coordinator events. Implementations must be safe for
// concurrent use and must not call back into the Coordinator; some events
// are reported with the coordinator lock held.
type Metrics interface {
	// TaskSubmitted is called when a task enters a worklist.
	TaskSubmitted(kind ThreadKind)
	// TaskStarted is called when a worker picks a task, with its queue time.
	TaskStarted(kind ThreadKind, queued time.Duration)
	// TaskFinished is called when a task body returns.
	TaskFinished(kind ThreadKind, ran time.Duration, err error)
	// TaskCancelled is called for every task removed before it ran.
	TaskCancelled(kind ThreadKind)
	// SubmitRejected is called when a full worklist refuses a task.
	SubmitRejected(kind ThreadKind)
	// Dispatched is called for every wakeup sent to the execution substrate.
	Dispatched(reason DispatchReason)
}

// NilMetrics discards every event.
type NilMetrics struct{}

func (NilMetrics) TaskSubmitted(ThreadKind) {}
func (NilMetrics) TaskStarted(ThreadKind, time.Duration) {}
func (NilMetrics) TaskFinished(ThreadKind, time.Duration, error) {}
func (NilMetrics) TaskCancelled(ThreadKind) {}
func (NilMetrics) SubmitRejected(ThreadKind) {}
func (NilMetrics) Dispatched(DispatchReason) {}
