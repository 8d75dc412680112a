package helper

import "unsafe"

// TraceReachable visits every JIT compilation the coordinator holds: queued,
// finished, running and lazily linked ones. Queued arenas are thawed for the
// duration of the visit and frozen again afterwards.
//
// The visitor runs with the coordinator lock held. Running compilations are
// being mutated by their worker, so the visitor must only read state that
// was fixed before submission.
func (c *Coordinator) TraceReachable(v Visitor) {
	c.lock()
	defer c.unlock()

	c.jitCompiles.each(func(t *JitCompileTask) {
		t.arena.SetReadWrite()
		v.VisitJitCompile(t)
		t.arena.SetReadOnly()
	})

	c.jitFinished.each(v.VisitJitCompile)

	for _, t := range c.running {
		if jt, ok := t.(*JitCompileTask); ok {
			v.VisitJitCompile(jt)
		}
	}

	for rt := range c.lazyRuntimes {
		for _, t := range rt.lazyLinks {
			v.VisitJitCompile(t)
		}
	}
}

// MemoryReport estimates the memory retained by the coordinator.
type MemoryReport struct {
	// Queued holds the bytes retained by each kind's worklist.
	Queued map[ThreadKind]int
	// Finished holds the bytes retained by each kind's finished list.
	Finished map[ThreadKind]int
	// PendingCompressions is the size of the compression pending list.
	PendingCompressions int
	// LazyLinks is the size of all lazy-link lists.
	LazyLinks int
	// StateData is the coordinator's own bookkeeping.
	StateData int

	ActiveThreads int
	IdleThreads   int
}

// Total sums every byte count in the report.
func (r MemoryReport) Total() int {
	n := r.PendingCompressions + r.LazyLinks + r.StateData
	for _, b := range r.Queued {
		n += b
	}
	for _, b := range r.Finished {
		n += b
	}
	return n
}

// ReportMemoryUsage returns a snapshot of the memory retained by queued,
// finished and parked tasks.
func (c *Coordinator) ReportMemoryUsage() MemoryReport {
	c.lock()
	defer c.unlock()

	r := MemoryReport{
		Queued:              make(map[ThreadKind]int),
		Finished:            make(map[ThreadKind]int),
		PendingCompressions: c.compressPending.bytes(),
		ActiveThreads:       c.totalRunning,
		IdleThreads:         max(c.threadCount-c.totalRunning, 0),
	}

	for _, w := range c.queuedLists() {
		w.eachTask(func(t Task) { r.Queued[t.Kind()] += t.sizeOf() })
	}
	for _, w := range c.finishedLists() {
		w.eachTask(func(t Task) { r.Finished[t.Kind()] += t.sizeOf() })
	}

	ptr := int(unsafe.Sizeof(uintptr(0)))
	r.StateData = int(unsafe.Sizeof(*c)) + cap(c.running)*2*ptr + len(c.lazyRuntimes)*ptr
	for rt := range c.lazyRuntimes {
		for _, t := range rt.lazyLinks {
			r.LazyLinks += t.sizeOf()
		}
		r.StateData += cap(rt.lazyLinks) * ptr
	}
	for _, w := range append(c.queuedLists(), c.finishedLists()...) {
		r.StateData += w.len() * 2 * ptr
	}
	return r
}
