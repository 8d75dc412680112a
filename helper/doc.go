// Package helper coordinates background work for a script engine: JIT and
// wasm compilation, off-thread parsing, delazification, source compression,
// promise helpers and parallel GC chores, all sharing one fixed set of
// worker threads.
//
// The primary type is Coordinator. It owns one worklist per kind of task, a
// registry of running tasks, the finished lists producers collect results
// from, and the admission policy that decides which task a free worker runs
// next. Every piece of coordinator state is guarded by a single mutex; task
// bodies run with it released.
//
// # Basic Usage
//
//	c := helper.New(helper.WithLogger(logger))
//	if err := c.EnsureInitialized(); err != nil {
//	    return err
//	}
//	defer c.Finish()
//
//	rt := helper.NewRuntime("main")
//	task := helper.NewGCParallelTask(rt.Owner(), func(ctx context.Context) error {
//	    return sweepArenas(ctx)
//	})
//	if err := c.SubmitGCParallel(task); err != nil {
//	    return err
//	}
//	err := c.JoinGCParallel(task)
//
// # Scheduling
//
// Each time a worker becomes available the coordinator walks the kinds in a
// fixed priority order and runs the first task whose kind is under its
// concurrency limit:
//
//   - GC parallel work
//   - JIT compilations of code whose runtime is running script
//   - tier-1 wasm compilation
//   - promise helpers, parses and delazification
//   - source compression
//   - remaining JIT compilations and JIT frees
//   - tier-2 wasm compilation and generators
//
// Master kinds (parse, delazify, promise helpers, tier-2 generators) may
// block waiting on other workers, so they are never given the last idle
// worker.
//
// # Execution Substrates
//
// By default EnsureInitialized starts an internal pool of worker goroutines.
// A host with its own thread pool installs a DispatchCallback instead:
//
//	c := helper.New()
//	c.SetDispatchCallback(func(helper.DispatchReason) {
//	    hostPool.Post(c.RunOneTask)
//	}, 8, 1<<20)
//
// Each callback invocation must lead to exactly one call to RunOneTask.
//
// # Cancellation
//
// Tasks record their producer in an Owner. Selectors (SelectRuntime,
// SelectPartition, SelectUnit, SelectKind, ...) name a set of tasks for
// Cancel, WaitIdle and HasPendingWork:
//
//	c.Cancel(helper.SelectRuntime(rt))
//
// Cancel removes queued matches, aborts running matches through their
// context, waits, and reclaims finished results. Per-kind protocols such as
// CancelJitCompile and CancelParses implement the exact drain semantics
// each producer expects.
//
// # Errors
//
// Submissions fail with ErrOutOfMemory when a bounded worklist is full (see
// WithWorklistCapacity); the task is left untouched. SubmitWithRetry retries
// such failures with backoff. Misuse, such as submitting a task twice,
// panics.
package helper
