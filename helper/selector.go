package helper

import "fmt"

// Selector picks the tasks targeted by Cancel, WaitIdle and HasPendingWork.
// Matching is a pure function of the task's kind and owner.
type Selector interface {
	fmt.Stringer

	// Matches reports whether t is targeted.
	Matches(t Task) bool

	isSelector()
}

type allSelector struct{}

// SelectAll matches every task.
func SelectAll() Selector { return allSelector{} }

func (allSelector) Matches(Task) bool { return true }
func (allSelector) String() string { return "all" }
func (allSelector) isSelector() {}

type runtimeSelector struct{ rt *Runtime }

// SelectRuntime matches tasks owned by rt. A nil rt matches every task.
// Delazify tasks that were submitted without a runtime match any runtime.
func SelectRuntime(rt *Runtime) Selector { return runtimeSelector{rt: rt} }

func (s runtimeSelector) Matches(t Task) bool {
	o := t.Owner()
	if s.rt == nil || o.Runtime == s.rt {
		return true
	}
	return o.Runtime == nil && t.Kind() == ThreadKindDelazify
}

func (s runtimeSelector) String() string {
	if s.rt == nil {
		return "runtime(any)"
	}
	return "runtime(" + s.rt.String() + ")"
}

func (runtimeSelector) isSelector() {}

type partitionSelector struct{ p *Partition }

// SelectPartition matches tasks owned by p.
func SelectPartition(p *Partition) Selector { return partitionSelector{p: p} }

func (s partitionSelector) Matches(t Task) bool { return t.Owner().Partition == s.p }
func (s partitionSelector) String() string {
	if s.p == nil {
		return "partition(nil)"
	}
	return "partition(" + s.p.name + ")"
}
func (partitionSelector) isSelector() {}

type partitionStateSelector struct {
	rt    *Runtime
	state CollectionState
}

// SelectPartitionsInState matches tasks of rt whose partition is currently
// in the given collection state. The state is read at match time.
func SelectPartitionsInState(rt *Runtime, state CollectionState) Selector {
	return partitionStateSelector{rt: rt, state: state}
}

func (s partitionStateSelector) Matches(t Task) bool {
	o := t.Owner()
	return o.Runtime == s.rt && o.Partition != nil && o.Partition.State() == s.state
}

func (s partitionStateSelector) String() string {
	return fmt.Sprintf("partitions(%s, %s)", s.rt, s.state)
}

func (partitionStateSelector) isSelector() {}

type unitSelector struct{ u *CodeUnit }

// SelectUnit matches tasks compiling u.
func SelectUnit(u *CodeUnit) Selector { return unitSelector{u: u} }

func (s unitSelector) Matches(t Task) bool { return t.Owner().Unit == s.u }
func (s unitSelector) String() string {
	if s.u == nil {
		return "unit(nil)"
	}
	return "unit(" + s.u.name + ")"
}
func (unitSelector) isSelector() {}

type taskSelector struct{ t Task }

// SelectTask matches exactly t.
func SelectTask(t Task) Selector { return taskSelector{t: t} }

func (s taskSelector) Matches(t Task) bool { return t == s.t }
func (s taskSelector) String() string { return fmt.Sprintf("task(%d)", s.t.ID()) }
func (taskSelector) isSelector() {}

type kindSelector struct {
	kind  ThreadKind
	inner Selector
}

// SelectKind narrows sel to tasks of one kind. A nil sel means all tasks.
func SelectKind(kind ThreadKind, sel Selector) Selector {
	if sel == nil {
		sel = SelectAll()
	}
	return kindSelector{kind: kind, inner: sel}
}

func (s kindSelector) Matches(t Task) bool { return t.Kind() == s.kind && s.inner.Matches(t) }
func (s kindSelector) String() string { return s.kind.String() + "/" + s.inner.String() }
func (kindSelector) isSelector() {}
