package helper

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when a worklist cannot accept a task. The
	// task was not enqueued and still belongs to the caller.
	ErrOutOfMemory = errors.New("helper: out of memory")

	// ErrNotInitialized is returned by operations that need running workers
	// before EnsureInitialized has succeeded.
	ErrNotInitialized = errors.New("helper: coordinator not initialized")

	// ErrTerminating is returned once Finish has started.
	ErrTerminating = errors.New("helper: coordinator is terminating")

	// ErrNoExtraThreads is returned by EnsureInitialized when the
	// coordinator was built WithoutExtraThreads.
	ErrNoExtraThreads = errors.New("helper: extra threads are disabled")

	// ErrTaskCancelled is recorded on a task that was removed before it ran.
	ErrTaskCancelled = errors.New("helper: task cancelled")

	// ErrTaskNotFound is returned when a producer asks for a task that is
	// not in the expected finished list.
	ErrTaskNotFound = errors.New("helper: task not found")

	// ErrWaitTimeout is returned by bounded waits that expire.
	ErrWaitTimeout = errors.New("helper: wait timed out")
)

// PanicError wraps a panic recovered from a task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panic: %v\nstack trace:\n%s", e.Value, e.Stack)
}

// assertf panics when cond is false. It guards invariants whose violation
// means the caller misused the coordinator.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("helper: "+format, args...))
	}
}
