package helper

// checkInvariantsLocked verifies that every task sits in exactly the
// container it claims and that the running counters agree with the
// registry. It is the check function of the coordinator's InvariantMutex,
// so it runs on every lock and unlock once WithInvariantChecks has enabled
// checking, and panics on the first violation.
func (c *Coordinator) checkInvariantsLocked() {
	seen := make(map[Task]container)
	note := func(t Task, where container) {
		if prev, ok := seen[t]; ok {
			assertf(false, "task %d (%s) in %s and %s", t.ID(), t.Kind(), prev, where)
		}
		seen[t] = where
		assertf(t.base().where == where, "task %d (%s) found in %s but marked %s", t.ID(), t.Kind(), where, t.base().where)
		if t.Kind().cleanup() {
			assertf(t.Owner() == Owner{}, "cleanup task %d has an owner", t.ID())
		}
	}

	var counts [threadKindLimit]int
	for _, t := range c.running {
		note(t, inRunning)
		counts[t.Kind()]++
	}
	assertf(counts == c.runningCount, "running counts %v, registry holds %v", c.runningCount, counts)
	assertf(len(c.running) == c.totalRunning, "total running %d, registry holds %d", c.totalRunning, len(c.running))
	assertf(c.tasksPending >= 0 && c.tasksPending <= c.threadCount, "%d dispatches pending for %d threads", c.tasksPending, c.threadCount)
	if c.useInternalPool {
		assertf(c.totalRunning <= c.threadCount, "%d tasks running on %d threads", c.totalRunning, c.threadCount)
	}

	checkList := func(w taskList, where container, kinds ...ThreadKind) {
		w.eachTask(func(t Task) {
			note(t, where)
			for _, k := range kinds {
				if t.Kind() == k {
					return
				}
			}
			assertf(false, "task %d of kind %s in the %v list", t.ID(), t.Kind(), kinds)
		})
	}

	checkList(&c.wasmTier1, inWorklist, ThreadKindWasmCompileTier1)
	checkList(&c.wasmTier2, inWorklist, ThreadKindWasmCompileTier2)
	checkList(&c.tier2Generators, inWorklist, ThreadKindWasmGeneratorTier2)
	checkList(&c.jitCompiles, inWorklist, ThreadKindJitCompile)
	checkList(&c.jitFree, inWorklist, ThreadKindJitFree)
	checkList(&c.parses, inWorklist, ThreadKindParse)
	checkList(&c.delazifies, inWorklist, ThreadKindDelazify)
	checkList(&c.freeDelazifies, inWorklist, ThreadKindDelazifyFree)
	checkList(&c.compressions, inWorklist, ThreadKindCompress)
	checkList(&c.promises, inWorklist, ThreadKindPromiseTask)
	checkList(&c.gcParallel, inWorklist, ThreadKindGCParallel)
	checkList(&c.compressPending, inPending, ThreadKindCompress)

	checkList(&c.wasmFinished, inFinished, ThreadKindWasmCompileTier1, ThreadKindWasmCompileTier2)
	checkList(&c.jitFinished, inFinished, ThreadKindJitCompile)
	checkList(&c.parseFinished, inFinished, ThreadKindParse)
	checkList(&c.compressFinished, inFinished, ThreadKindCompress)

	for rt := range c.lazyRuntimes {
		assertf(len(rt.lazyLinks) > 0, "runtime %s tracked with an empty lazy-link list", rt)
		for _, t := range rt.lazyLinks {
			note(t, inLazyLink)
		}
	}
}
