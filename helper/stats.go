package helper

// KindStats is the per-kind part of Stats.
type KindStats struct {
	Kind       ThreadKind
	Queued     int
	Running    int
	Finished   int
	Completed  uint64
	MaxThreads int
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	CPUCount      int
	ThreadCount   int
	ActiveThreads int
	IdleThreads   int
	TasksPending  int

	PendingCompressions int
	LazyLinks           int
	Tier2Backlogged     bool

	Kinds []KindStats
}

// Kind returns the entry for k.
func (s Stats) Kind(k ThreadKind) KindStats {
	for _, ks := range s.Kinds {
		if ks.Kind == k {
			return ks
		}
	}
	return KindStats{Kind: k}
}

// Stats returns per-kind queue depths and thread usage.
func (c *Coordinator) Stats() Stats {
	c.lock()
	defer c.unlock()

	s := Stats{
		CPUCount:            c.cpuCount,
		ThreadCount:         c.threadCount,
		ActiveThreads:       c.totalRunning,
		IdleThreads:         max(c.threadCount-c.totalRunning, 0),
		TasksPending:        c.tasksPending,
		PendingCompressions: c.compressPending.len(),
		Tier2Backlogged:     c.wasmTier2Backlogged(),
	}
	for rt := range c.lazyRuntimes {
		s.LazyLinks += len(rt.lazyLinks)
	}

	var queued, finished [threadKindLimit]int
	for _, w := range c.queuedLists() {
		w.eachTask(func(t Task) { queued[t.Kind()]++ })
	}
	for _, w := range c.finishedLists() {
		w.eachTask(func(t Task) { finished[t.Kind()]++ })
	}

	for _, k := range ThreadKinds() {
		s.Kinds = append(s.Kinds, KindStats{
			Kind:       k,
			Queued:     queued[k],
			Running:    c.runningCount[k],
			Finished:   finished[k],
			Completed:  c.completed[k],
			MaxThreads: c.maxThreadsLocked(k),
		})
	}
	return s
}
