package helper

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// CollectionState is the garbage-collection phase a partition is in.
type CollectionState int32

const (
	StateNoGC CollectionState = iota
	StateMarking
	StateSweeping
	StateCompacting
)

func (s CollectionState) String() string {
	switch s {
	case StateMarking:
		return "marking"
	case StateSweeping:
		return "sweeping"
	case StateCompacting:
		return "compacting"
	default:
		return "no-gc"
	}
}

// Runtime is the producer that owns tasks. All tasks it submits carry it in
// their Owner so they can be drained when it shuts down.
type Runtime struct {
	id   uuid.UUID
	name string

	runningJS    atomic.Bool
	majorGCCount atomic.Uint64
	finishedJit  atomic.Int64

	// Guarded by the coordinator lock.
	lazyLinks []*JitCompileTask
}

// NewRuntime returns a runtime with a fresh identity.
func NewRuntime(name string) *Runtime {
	return &Runtime{id: uuid.New(), name: name}
}

// ID returns the runtime's unique identifier.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// Name returns the label given at construction.
func (rt *Runtime) Name() string { return rt.name }

func (rt *Runtime) String() string {
	return fmt.Sprintf("%s(%s)", rt.name, rt.id.String()[:8])
}

// SetRunningJS records whether the runtime's main thread is executing
// script. JIT compilations are preferred while it is.
func (rt *Runtime) SetRunningJS(running bool) { rt.runningJS.Store(running) }

// RunningJS reports the last value passed to SetRunningJS.
func (rt *Runtime) RunningJS() bool { return rt.runningJS.Load() }

// NoteMajorGC advances the major collection counter. Compression tasks
// enqueued before the call become eligible to start.
func (rt *Runtime) NoteMajorGC() uint64 { return rt.majorGCCount.Add(1) }

// MajorGCCount returns the number of major collections noted so far.
func (rt *Runtime) MajorGCCount() uint64 { return rt.majorGCCount.Load() }

// FinishedJitCompiles returns how many of the runtime's JIT compilations
// sit in the finished list. It may be read without the coordinator lock as
// a cheap hint before calling TakeFinishedJitCompiles.
func (rt *Runtime) FinishedJitCompiles() int64 { return rt.finishedJit.Load() }

// NewPartition creates a partition of the runtime's heap.
func (rt *Runtime) NewPartition(name string) *Partition {
	return &Partition{name: name, rt: rt}
}

// Owner returns the runtime-wide owner.
func (rt *Runtime) Owner() Owner { return Owner{Runtime: rt} }

// Partition is a region of a runtime's heap that is collected as a unit.
type Partition struct {
	name  string
	rt    *Runtime
	state atomic.Int32
}

// Name returns the label given at construction.
func (p *Partition) Name() string { return p.name }

// Runtime returns the owning runtime.
func (p *Partition) Runtime() *Runtime { return p.rt }

// SetState records the partition's collection phase.
func (p *Partition) SetState(s CollectionState) { p.state.Store(int32(s)) }

// State returns the partition's collection phase.
func (p *Partition) State() CollectionState { return CollectionState(p.state.Load()) }

// NewCodeUnit creates a unit of code of the given length living in p.
// Lengths below one are treated as one.
func (p *Partition) NewCodeUnit(name string, length int) *CodeUnit {
	return &CodeUnit{name: name, partition: p, length: max(length, 1)}
}

// Owner returns the partition-wide owner.
func (p *Partition) Owner() Owner { return Owner{Runtime: p.rt, Partition: p} }

// CodeUnit is a compilable unit of code. Its warm-up counter drives JIT
// compile priority.
type CodeUnit struct {
	name      string
	partition *Partition
	length    int
	warmUp    atomic.Int64
}

// Name returns the label given at construction.
func (u *CodeUnit) Name() string { return u.name }

// Length returns the unit's size used to normalise its warm-up count.
func (u *CodeUnit) Length() int { return u.length }

// Partition returns the partition the unit lives in.
func (u *CodeUnit) Partition() *Partition { return u.partition }

// Runtime returns the runtime the unit belongs to.
func (u *CodeUnit) Runtime() *Runtime { return u.partition.rt }

// AddWarmUp bumps the warm-up counter by n.
func (u *CodeUnit) AddWarmUp(n int64) int64 { return u.warmUp.Add(n) }

// WarmUp returns the warm-up counter.
func (u *CodeUnit) WarmUp() int64 { return u.warmUp.Load() }

// Owner returns the fully qualified owner of the unit.
func (u *CodeUnit) Owner() Owner {
	return Owner{Runtime: u.partition.rt, Partition: u.partition, Unit: u}
}

// Owner records who submitted a task. Any field may be nil; a task with no
// runtime is not tied to any producer.
type Owner struct {
	Runtime   *Runtime
	Partition *Partition
	Unit      *CodeUnit
}
