package workload

import (
	"context"
	"sync/atomic"
)

// Cell is one slot of a synthetic heap.
type Cell struct {
	Marked bool
	Size   int
}

// Heap is a synthetic heap split into arenas that GC-parallel tasks sweep
// independently.
type Heap struct {
	arenas [][]Cell
	freed  atomic.Int64
}

// NewHeap builds a heap of arenas cells each. Every markEvery-th cell is
// marked live; the rest are garbage.
func NewHeap(arenas, cells, markEvery int) *Heap {
	h := &Heap{arenas: make([][]Cell, arenas)}
	for a := range h.arenas {
		h.arenas[a] = make([]Cell, cells)
		for i := range h.arenas[a] {
			h.arenas[a][i] = Cell{
				Marked: markEvery > 0 && i%markEvery == 0,
				Size:   16 << (i % 4),
			}
		}
	}
	return h
}

// Arenas returns the number of arenas.
func (h *Heap) Arenas() int { return len(h.arenas) }

// Freed returns the bytes released by sweeps so far.
func (h *Heap) Freed() int64 { return h.freed.Load() }

// SweepArena returns a GC task body that frees the unmarked cells of arena
// a and clears the mark bits of the rest. Each body touches only its own
// arena, so bodies for different arenas can run in parallel.
func (h *Heap) SweepArena(a int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cells := h.arenas[a]
		var freed int64
		for i := range cells {
			if i%scanCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					h.freed.Add(freed)
					return err
				}
			}
			if cells[i].Marked {
				cells[i].Marked = false
				continue
			}
			freed += int64(cells[i].Size)
			cells[i].Size = 0
		}
		h.freed.Add(freed)
		return nil
	}
}
