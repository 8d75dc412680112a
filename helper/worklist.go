package helper

import "time"

// order is the pop discipline of a worklist.
type order uint8

const (
	lifo order = iota
	fifo
)

// worklist is the pending queue of one task kind. Capacity zero means
// unbounded; a full worklist refuses pushes so the caller keeps the task.
type worklist[T Task] struct {
	order    order
	capacity int
	items    []T
}

func newWorklist[T Task](o order, capacity int) worklist[T] {
	return worklist[T]{order: o, capacity: capacity}
}

func (w *worklist[T]) len() int    { return len(w.items) }
func (w *worklist[T]) empty() bool { return len(w.items) == 0 }

// push appends t and marks it as held by where. It returns false when the
// worklist is full. Pushing a task that is already held elsewhere panics.
func (w *worklist[T]) push(t T, where container) bool {
	b := t.base()
	assertf(b.where == inNone, "task %d (%s) submitted while already in %s", b.id, t.Kind(), b.where)
	if w.capacity > 0 && len(w.items) >= w.capacity {
		return false
	}
	w.items = append(w.items, t)
	b.where = where
	if where == inWorklist || where == inPending {
		b.queuedAt = time.Now()
		b.setState(TaskQueued)
	}
	return true
}

// pushUnbounded is push without the capacity check.
func (w *worklist[T]) pushUnbounded(t T, where container) {
	saved := w.capacity
	w.capacity = 0
	w.push(t, where)
	w.capacity = saved
}

// pop removes the next task according to the worklist's order.
func (w *worklist[T]) pop() T {
	assertf(len(w.items) > 0, "pop from empty worklist")
	if w.order == fifo {
		return w.removeAt(0)
	}
	return w.removeAt(len(w.items) - 1)
}

func (w *worklist[T]) at(i int) T { return w.items[i] }

// removeAt removes and returns the task at index i, keeping the order of
// the remaining tasks.
func (w *worklist[T]) removeAt(i int) T {
	t := w.items[i]
	var zero T
	copy(w.items[i:], w.items[i+1:])
	w.items[len(w.items)-1] = zero
	w.items = w.items[:len(w.items)-1]
	t.base().where = inNone
	return t
}

// remove removes t if present.
func (w *worklist[T]) remove(t T) bool {
	for i := range w.items {
		if Task(w.items[i]) == Task(t) {
			w.removeAt(i)
			return true
		}
	}
	return false
}

// removeIf removes every task matching pred and returns them in list order.
func (w *worklist[T]) removeIf(pred func(T) bool) []T {
	var removed []T
	kept := w.items[:0]
	for _, t := range w.items {
		if pred(t) {
			t.base().where = inNone
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	var zero T
	for i := len(kept); i < len(w.items); i++ {
		w.items[i] = zero
	}
	w.items = kept
	return removed
}

// any reports whether some task matches pred.
func (w *worklist[T]) any(pred func(T) bool) bool {
	for _, t := range w.items {
		if pred(t) {
			return true
		}
	}
	return false
}

// each calls fn for every task in list order.
func (w *worklist[T]) each(fn func(T)) {
	for _, t := range w.items {
		fn(t)
	}
}

// drain removes every task.
func (w *worklist[T]) drain() []T {
	return w.removeIf(func(T) bool { return true })
}

// bytes sums sizeOf over the worklist.
func (w *worklist[T]) bytes() int {
	n := 0
	for _, t := range w.items {
		n += t.sizeOf()
	}
	return n
}

// taskList is the kind-erased view of a worklist used by scans that span
// every kind.
type taskList interface {
	len() int
	bytes() int
	anyTask(pred func(Task) bool) bool
	eachTask(fn func(Task))
}

func (w *worklist[T]) anyTask(pred func(Task) bool) bool {
	for _, t := range w.items {
		if pred(t) {
			return true
		}
	}
	return false
}

func (w *worklist[T]) eachTask(fn func(Task)) {
	for _, t := range w.items {
		fn(t)
	}
}
