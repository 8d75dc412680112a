package helper

// taskSelectors lists the per-kind selectors in priority order. The first
// one that yields a task wins; lower entries only run when every entry
// above has nothing admissible.
var taskSelectors = [...]func(*Coordinator) Task{
	(*Coordinator).maybeGetGCParallelTask,
	(*Coordinator).maybeGetJitCompileTask,
	(*Coordinator).maybeGetWasmTier1CompileTask,
	(*Coordinator).maybeGetPromiseHelperTask,
	(*Coordinator).maybeGetParseTask,
	(*Coordinator).maybeGetFreeDelazifyTask,
	(*Coordinator).maybeGetDelazifyTask,
	(*Coordinator).maybeGetCompressionTask,
	(*Coordinator).maybeGetLowPriorityJitCompileTask,
	(*Coordinator).maybeGetJitFreeTask,
	(*Coordinator).maybeGetWasmTier2CompileTask,
	(*Coordinator).maybeGetWasmTier2GeneratorTask,
}

// selectNextTaskLocked pops the highest-priority admissible task, or
// returns nil.
func (c *Coordinator) selectNextTaskLocked() Task {
	for _, sel := range taskSelectors {
		if t := sel(c); t != nil {
			return t
		}
	}
	return nil
}

// NextTaskKind reports the kind of task RunOneTask would pick right now, or
// ThreadKindNone if nothing can start. Nothing is removed.
func (c *Coordinator) NextTaskKind() ThreadKind {
	c.lock()
	defer c.unlock()

	hotJit := func(t *JitCompileTask) bool { return t.unit.Runtime().RunningJS() }
	switch {
	case c.canStartGCParallelTask():
		return ThreadKindGCParallel
	case c.canStartJitCompileTask() && c.jitCompiles.any(hotJit):
		return ThreadKindJitCompile
	case c.canStartWasmCompile(Tier1):
		return ThreadKindWasmCompileTier1
	case c.canStartPromiseHelperTask():
		return ThreadKindPromiseTask
	case c.canStartParseTask():
		return ThreadKindParse
	case c.canStartFreeDelazifyTask():
		return ThreadKindDelazifyFree
	case c.canStartDelazifyTask():
		return ThreadKindDelazify
	case c.canStartCompressionTask():
		return ThreadKindCompress
	case c.canStartJitCompileTask():
		return ThreadKindJitCompile
	case c.canStartJitFreeTask():
		return ThreadKindJitFree
	case c.canStartWasmCompile(Tier2):
		return ThreadKindWasmCompileTier2
	case c.canStartWasmTier2GeneratorTask():
		return ThreadKindWasmGeneratorTier2
	}
	return ThreadKindNone
}

// CanStart reports whether a task of the given kind could start right now.
func (c *Coordinator) CanStart(kind ThreadKind) bool {
	c.lock()
	defer c.unlock()
	return c.canStartLocked(kind)
}

// CanStartTasks reports whether any task could start right now.
func (c *Coordinator) CanStartTasks() bool {
	c.lock()
	defer c.unlock()
	return c.canStartTasksLocked()
}

func (c *Coordinator) canStartLocked(kind ThreadKind) bool {
	switch kind {
	case ThreadKindGCParallel:
		return c.canStartGCParallelTask()
	case ThreadKindJitCompile:
		return c.canStartJitCompileTask()
	case ThreadKindWasmCompileTier1:
		return c.canStartWasmCompile(Tier1)
	case ThreadKindWasmCompileTier2:
		return c.canStartWasmCompile(Tier2)
	case ThreadKindWasmGeneratorTier2:
		return c.canStartWasmTier2GeneratorTask()
	case ThreadKindPromiseTask:
		return c.canStartPromiseHelperTask()
	case ThreadKindParse:
		return c.canStartParseTask()
	case ThreadKindDelazify:
		return c.canStartDelazifyTask()
	case ThreadKindDelazifyFree:
		return c.canStartFreeDelazifyTask()
	case ThreadKindCompress:
		return c.canStartCompressionTask()
	case ThreadKindJitFree:
		return c.canStartJitFreeTask()
	default:
		return false
	}
}

func (c *Coordinator) canStartTasksLocked() bool {
	return c.canStartGCParallelTask() ||
		c.canStartJitCompileTask() ||
		c.canStartWasmCompile(Tier1) ||
		c.canStartPromiseHelperTask() ||
		c.canStartParseTask() ||
		c.canStartFreeDelazifyTask() ||
		c.canStartDelazifyTask() ||
		c.canStartCompressionTask() ||
		c.canStartJitFreeTask() ||
		c.canStartWasmCompile(Tier2) ||
		c.canStartWasmTier2GeneratorTask()
}

// checkTaskThreadLimit decides whether one more task of kind may start
// given its maximum concurrency.
//
// A master task blocks on other workers while it runs, so it must never
// take the last idle thread or the system can deadlock.
func (c *Coordinator) checkTaskThreadLimit(kind ThreadKind, maxThreads int, isMaster bool) bool {
	assertf(maxThreads > 0, "zero thread limit for %s", kind)

	if !isMaster && maxThreads >= c.threadCount {
		return true
	}

	if c.runningCount[kind] >= maxThreads {
		return false
	}

	// Idle can be zero here: producers evaluate admission from outside the
	// pool, and an external substrate may run more threads than it declared.
	idle := c.threadCount - c.totalRunning
	if idle <= 0 {
		return false
	}

	if isMaster && idle == 1 {
		return false
	}
	return true
}

func (c *Coordinator) maxJitCompilationThreads() int { return c.threadCount }

func (c *Coordinator) maxWasmCompilationThreads() int { return min(c.cpuCount, c.threadCount) }

func (c *Coordinator) maxPromiseHelperThreads() int { return min(c.cpuCount, c.threadCount) }

func (c *Coordinator) maxParseThreads() int { return min(c.cpuCount, c.threadCount) }

func (c *Coordinator) maxGCParallelThreads() int { return c.gcParallelThreadCount }

// maxThreadsLocked returns the concurrency limit reported for kind.
func (c *Coordinator) maxThreadsLocked(kind ThreadKind) int {
	switch kind {
	case ThreadKindGCParallel:
		return c.maxGCParallelThreads()
	case ThreadKindJitCompile, ThreadKindJitFree:
		return c.maxJitCompilationThreads()
	case ThreadKindWasmCompileTier1:
		return c.wasmTierBudget(Tier1)
	case ThreadKindWasmCompileTier2:
		return c.wasmTierBudget(Tier2)
	case ThreadKindWasmGeneratorTier2:
		return MaxTier2GeneratorTasks
	case ThreadKindPromiseTask:
		return c.maxPromiseHelperThreads()
	case ThreadKindParse, ThreadKindDelazify, ThreadKindDelazifyFree:
		return c.maxParseThreads()
	case ThreadKindCompress:
		return maxCompressionThreads
	default:
		return 0
	}
}

func (c *Coordinator) canStartGCParallelTask() bool {
	return !c.gcParallel.empty() &&
		c.checkTaskThreadLimit(ThreadKindGCParallel, c.maxGCParallelThreads(), false)
}

func (c *Coordinator) maybeGetGCParallelTask() Task {
	if !c.canStartGCParallelTask() {
		return nil
	}
	return c.gcParallel.pop()
}

func (c *Coordinator) canStartJitCompileTask() bool {
	return !c.jitCompiles.empty() &&
		c.checkTaskThreadLimit(ThreadKindJitCompile, c.maxJitCompilationThreads(), false)
}

func (c *Coordinator) maybeGetJitCompileTask() Task {
	if !c.canStartJitCompileTask() {
		return nil
	}
	if t := c.highestPriorityPendingJitCompile(true); t != nil {
		return t
	}
	return nil
}

func (c *Coordinator) maybeGetLowPriorityJitCompileTask() Task {
	if !c.canStartJitCompileTask() {
		return nil
	}
	if t := c.highestPriorityPendingJitCompile(false); t != nil {
		return t
	}
	return nil
}

// jitCompileHasHigherPriority reports whether a is hotter per unit of code
// than b. Warm-up counters change concurrently, so the order may shift
// between calls.
func jitCompileHasHigherPriority(a, b *JitCompileTask) bool {
	return a.unit.WarmUp()/int64(a.unit.Length()) > b.unit.WarmUp()/int64(b.unit.Length())
}

// highestPriorityPendingJitCompile pops the hottest queued compilation.
// With onlyRunningJS it only considers units whose runtime is executing
// script.
func (c *Coordinator) highestPriorityPendingJitCompile(onlyRunningJS bool) *JitCompileTask {
	w := &c.jitCompiles
	best := -1
	for i := 0; i < w.len(); i++ {
		t := w.at(i)
		if onlyRunningJS && !t.unit.Runtime().RunningJS() {
			continue
		}
		if best < 0 || jitCompileHasHigherPriority(t, w.at(best)) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	return w.removeAt(best)
}

func (c *Coordinator) canStartJitFreeTask() bool {
	return !c.jitFree.empty()
}

func (c *Coordinator) maybeGetJitFreeTask() Task {
	if !c.canStartJitFreeTask() {
		return nil
	}
	return c.jitFree.pop()
}

// wasmTier2Backlogged reports whether the tier-2 generator queue is deep
// enough to favour tier-2 over tier-1 compilation.
func (c *Coordinator) wasmTier2Backlogged() bool {
	return c.tier2Generators.len() > c.cfg.tier2BacklogThreshold
}

// wasmTierBudget returns the concurrency budget for a wasm tier.
//
// Tier-2 work runs in the background, so it only gets an estimate of the
// physical cores. When the tier-2 queue is backlogged it gets the full wasm
// budget instead and tier-1 gets nothing, since queued tier-2 work holds on
// to finished tier-1 code.
func (c *Coordinator) wasmTierBudget(tier CompileTier) int {
	backlogged := c.wasmTier2Backlogged()
	if tier == Tier2 {
		if backlogged {
			return c.maxWasmCompilationThreads()
		}
		return backgroundCores(c.cpuCount, c.cfg.backgroundCoreDivisor)
	}
	if backlogged {
		return 0
	}
	return c.maxWasmCompilationThreads()
}

func (c *Coordinator) wasmWorklist(tier CompileTier) *worklist[*CompileTask] {
	if tier == Tier2 {
		return &c.wasmTier2
	}
	return &c.wasmTier1
}

func (c *Coordinator) canStartWasmCompile(tier CompileTier) bool {
	if c.wasmWorklist(tier).empty() {
		return false
	}

	threads := c.wasmTierBudget(tier)
	return threads != 0 && c.checkTaskThreadLimit(tier.threadKind(), threads, false)
}

func (c *Coordinator) maybeGetWasmTier1CompileTask() Task {
	if !c.canStartWasmCompile(Tier1) {
		return nil
	}
	return c.wasmTier1.pop()
}

func (c *Coordinator) maybeGetWasmTier2CompileTask() Task {
	if !c.canStartWasmCompile(Tier2) {
		return nil
	}
	return c.wasmTier2.pop()
}

func (c *Coordinator) canStartWasmTier2GeneratorTask() bool {
	return !c.tier2Generators.empty() &&
		c.checkTaskThreadLimit(ThreadKindWasmGeneratorTier2, MaxTier2GeneratorTasks, true)
}

func (c *Coordinator) maybeGetWasmTier2GeneratorTask() Task {
	if !c.canStartWasmTier2GeneratorTask() {
		return nil
	}
	return c.tier2Generators.pop()
}

// Promise helper tasks may themselves wait on wasm compilation.
func (c *Coordinator) canStartPromiseHelperTask() bool {
	return !c.promises.empty() &&
		c.checkTaskThreadLimit(ThreadKindPromiseTask, c.maxPromiseHelperThreads(), true)
}

func (c *Coordinator) maybeGetPromiseHelperTask() Task {
	if !c.canStartPromiseHelperTask() {
		return nil
	}
	return c.promises.pop()
}

// Any parse may turn out to need wasm workers, so every parse is a master.
func (c *Coordinator) canStartParseTask() bool {
	return !c.parses.empty() &&
		c.checkTaskThreadLimit(ThreadKindParse, c.maxParseThreads(), true)
}

func (c *Coordinator) maybeGetParseTask() Task {
	if !c.canStartParseTask() {
		return nil
	}
	return c.parses.pop()
}

func (c *Coordinator) canStartFreeDelazifyTask() bool {
	return !c.freeDelazifies.empty() &&
		c.checkTaskThreadLimit(ThreadKindDelazifyFree, c.maxParseThreads(), true)
}

func (c *Coordinator) maybeGetFreeDelazifyTask() Task {
	if !c.canStartFreeDelazifyTask() {
		return nil
	}
	return c.freeDelazifies.pop()
}

func (c *Coordinator) canStartDelazifyTask() bool {
	return !c.delazifies.empty() &&
		c.checkTaskThreadLimit(ThreadKindDelazify, c.maxParseThreads(), true)
}

func (c *Coordinator) maybeGetDelazifyTask() Task {
	if !c.canStartDelazifyTask() {
		return nil
	}
	return c.delazifies.pop()
}

func (c *Coordinator) canStartCompressionTask() bool {
	return !c.compressions.empty() &&
		c.checkTaskThreadLimit(ThreadKindCompress, maxCompressionThreads, false)
}

func (c *Coordinator) maybeGetCompressionTask() Task {
	if !c.canStartCompressionTask() {
		return nil
	}
	return c.compressions.pop()
}
