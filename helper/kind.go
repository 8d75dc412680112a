package helper

// ThreadKind identifies the kind of work a task performs. Each kind has its
// own worklist, its own concurrency limit and a fixed pop order.
type ThreadKind int

const (
	ThreadKindNone ThreadKind = iota
	ThreadKindWasmCompileTier1
	ThreadKindWasmCompileTier2
	ThreadKindWasmGeneratorTier2
	ThreadKindPromiseTask
	ThreadKindJitCompile
	ThreadKindJitFree
	ThreadKindParse
	ThreadKindCompress
	ThreadKindGCParallel
	ThreadKindDelazify
	ThreadKindDelazifyFree

	threadKindLimit
)

var threadKindNames = [threadKindLimit]string{
	ThreadKindNone:               "none",
	ThreadKindWasmCompileTier1:   "wasm-tier1",
	ThreadKindWasmCompileTier2:   "wasm-tier2",
	ThreadKindWasmGeneratorTier2: "wasm-tier2-generator",
	ThreadKindPromiseTask:        "promise-helper",
	ThreadKindJitCompile:         "jit-compile",
	ThreadKindJitFree:            "jit-free",
	ThreadKindParse:              "parse",
	ThreadKindCompress:           "compress",
	ThreadKindGCParallel:         "gc-parallel",
	ThreadKindDelazify:           "delazify",
	ThreadKindDelazifyFree:       "delazify-free",
}

// String returns the kind's stable name, suitable for metric labels.
func (k ThreadKind) String() string {
	if k < 0 || k >= threadKindLimit {
		return "unknown"
	}
	return threadKindNames[k]
}

// ThreadKinds returns every schedulable kind in declaration order.
func ThreadKinds() []ThreadKind {
	kinds := make([]ThreadKind, 0, threadKindLimit-1)
	for k := ThreadKindNone + 1; k < threadKindLimit; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// IsMaster reports whether tasks of this kind may block waiting on other
// workers. A master task is never allowed to take the last idle thread.
func (k ThreadKind) IsMaster() bool {
	switch k {
	case ThreadKindWasmGeneratorTier2, ThreadKindPromiseTask, ThreadKindParse,
		ThreadKindDelazify, ThreadKindDelazifyFree:
		return true
	default:
		return false
	}
}

// abortable reports whether a running task of this kind is told to stop
// early when it is cancelled. Other kinds are waited for.
func (k ThreadKind) abortable() bool {
	switch k {
	case ThreadKindWasmCompileTier1, ThreadKindWasmCompileTier2, ThreadKindWasmGeneratorTier2,
		ThreadKindJitCompile, ThreadKindGCParallel, ThreadKindDelazify, ThreadKindCompress:
		return true
	default:
		return false
	}
}

// cleanup reports whether the kind only releases memory on behalf of
// another task. Cleanup tasks are detached from any owner.
func (k ThreadKind) cleanup() bool {
	return k == ThreadKindJitFree || k == ThreadKindDelazifyFree
}

// DispatchReason tells an external dispatch callback why it was invoked.
type DispatchReason int

const (
	// DispatchNewTask means a task was just submitted.
	DispatchNewTask DispatchReason = iota
	// DispatchFinishedTask means a task finished and freed capacity.
	DispatchFinishedTask
)

func (r DispatchReason) String() string {
	if r == DispatchFinishedTask {
		return "finished-task"
	}
	return "new-task"
}
