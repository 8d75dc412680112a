package workload

import (
	"context"
	"hash/fnv"
	"sync/atomic"
)

// Delazifier compiles the lazy functions of a Script a batch at a time.
// Its Step method matches helper.DelazifyStepFunc.
type Delazifier struct {
	script *Script
	batch  int
	next   int

	compiled atomic.Int64
	digest   uint64
}

// NewDelazifier returns a delazifier compiling batch functions per step.
// A batch below one is treated as one.
func NewDelazifier(s *Script, batch int) *Delazifier {
	return &Delazifier{script: s, batch: max(batch, 1)}
}

// Step compiles the next batch and reports whether every function is done.
func (d *Delazifier) Step(ctx context.Context) (bool, error) {
	end := min(d.next+d.batch, len(d.script.Functions))
	for ; d.next < end; d.next++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		d.digest ^= compileFunction(d.script.Functions[d.next])
		d.compiled.Add(1)
	}
	return d.next >= len(d.script.Functions), nil
}

// Compiled returns the number of functions compiled so far. It may be
// called while Step runs.
func (d *Delazifier) Compiled() int64 { return d.compiled.Load() }

// Digest returns a checksum over the compiled functions. It is only stable
// once Step has reported done.
func (d *Delazifier) Digest() uint64 { return d.digest }

// compileFunction stands in for code generation: it hashes the function so
// the work scales with its size.
func compileFunction(f Function) uint64 {
	h := fnv.New64a()
	h.Write([]byte(f.Name))
	h.Write(f.Code)
	return h.Sum64()
}
