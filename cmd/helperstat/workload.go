package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/utkarsh5026/helperpool/helper"
	"github.com/utkarsh5026/helperpool/internal/arena"
	"github.com/utkarsh5026/helperpool/internal/workload"
)

// mix is the rotation of task kinds the driver submits.
var mix = []string{"gc", "jit", "parse", "decode", "delazify", "compress", "promise", "wasm"}

const (
	irNodes          = 256
	heapCellsPerTask = 1024
	tier2Compiles    = 4
)

type workloadResult struct {
	units   int
	failed  int64
	elapsed time.Duration
}

// driver submits one synthetic workload to a coordinator and collects the
// results.
type driver struct {
	c    *helper.Coordinator
	rt   *helper.Runtime
	zone *helper.Partition

	source   []byte
	module   []byte
	bytecode []byte
	script   *workload.Script
	heap     *workload.Heap

	tier1 *helper.CompileTaskState
	tier2 *helper.CompileTaskState

	parses []helper.TaskID
	units  int
	done   atomic.Int64
	failed atomic.Int64
}

func newDriver(c *helper.Coordinator, tasks int) *driver {
	rt := helper.NewRuntime("helperstat")
	rt.SetRunningJS(true)

	script := sampleScript(64)
	return &driver{
		c:        c,
		rt:       rt,
		zone:     rt.NewPartition("main"),
		source:   []byte(sampleSource(200)),
		module:   []byte("import { f } from './lib.js';\n" + sampleSource(50) + "export default f;\n"),
		bytecode: workload.EncodeBytecode(script),
		script:   script,
		heap:     workload.NewHeap(tasks, heapCellsPerTask, 3),
		tier1:    helper.NewCompileTaskState(),
		tier2:    helper.NewCompileTaskState(),
	}
}

// runWorkload submits tasks tasks spread over every kind, waits for them
// to drain while advancing bar, and hands finished results back to the
// coordinator.
func runWorkload(ctx context.Context, c *helper.Coordinator, tasks int, bar progressSink) (workloadResult, error) {
	d := newDriver(c, tasks)
	start := time.Now()

	// Wasm compilation needs more than one core.
	wasm := c.CPUCount() > 1
	if wasm {
		if err := d.submitTier2Generator(ctx); err != nil {
			return workloadResult{}, err
		}
	}

	for i := range tasks {
		kind := mix[i%len(mix)]
		if kind == "wasm" && !wasm {
			kind = "gc"
		}
		if err := d.submit(ctx, i, kind); err != nil {
			return workloadResult{}, fmt.Errorf("task %d (%s): %w", i, kind, err)
		}
	}
	bar.ChangeMax(d.units)

	// Every compression was submitted before this collection.
	d.rt.NoteMajorGC()
	c.StartHandlingCompressionsOnGC(d.rt)

	if err := d.drain(ctx, bar); err != nil {
		c.Cancel(helper.SelectRuntime(d.rt))
		return workloadResult{}, err
	}
	_ = bar.Finish()

	if err := d.collect(); err != nil {
		return workloadResult{}, err
	}

	return workloadResult{
		units:   d.units,
		failed:  d.failed.Load(),
		elapsed: time.Since(start),
	}, nil
}

func (d *driver) submit(ctx context.Context, i int, kind string) error {
	c := d.c
	retry := func(submit func() error) error {
		d.units++
		return c.SubmitWithRetry(ctx, submit)
	}

	switch kind {
	case "gc":
		t := helper.NewGCParallelTask(d.zone.Owner(), d.count(d.heap.SweepArena(i)))
		return retry(func() error { return c.SubmitGCParallel(t) })

	case "jit":
		a, err := arena.New(workload.ArenaSizeFor(irNodes))
		if err != nil {
			return err
		}
		unit := d.zone.NewCodeUnit(fmt.Sprintf("fn%d", i), irNodes)
		unit.AddWarmUp(int64(i % 97))
		body := workload.CompileIR(irNodes)
		t := helper.NewJitCompileTask(unit, a, func(ctx context.Context, a *arena.Arena) error {
			return d.finish(body(ctx, a))
		})
		return retry(func() error { return c.SubmitJitCompile(t) })

	case "parse", "decode":
		pk, body := helper.ParseScript, func(ctx context.Context) (any, error) {
			return workload.Scan(ctx, d.source, false)
		}
		if kind == "decode" {
			pk, body = helper.ParseDecode, func(ctx context.Context) (any, error) {
				return workload.DecodeBytecode(ctx, d.bytecode)
			}
		}
		t := helper.NewParseTask(d.rt.Owner(), pk, len(d.source), func(ctx context.Context) (any, error) {
			res, err := body(ctx)
			return res, d.finish(err)
		}, nil)
		if err := retry(func() error { return c.SubmitParse(t) }); err != nil {
			return err
		}
		d.parses = append(d.parses, t.ID())
		return nil

	case "delazify":
		dz := workload.NewDelazifier(d.script, 8)
		t := helper.NewDelazifyTask(d.rt.Owner(), d.script.CodeSize(), func(ctx context.Context) (bool, error) {
			done, err := dz.Step(ctx)
			if done || err != nil {
				_ = d.finish(err)
			}
			return done, err
		}, nil)
		return retry(func() error { return c.SubmitDelazify(t) })

	case "compress":
		t := helper.NewCompressionTask(d.rt.Owner(), d.source, func(ctx context.Context, src []byte) ([]byte, error) {
			out, err := workload.Compress(ctx, src)
			return out, d.finish(err)
		}, helper.CompressionHooks{})
		return retry(func() error { return c.SubmitCompression(t) })

	case "promise":
		t := helper.NewPromiseHelperTask(d.rt.Owner(), d.count(func(ctx context.Context) error {
			_, err := workload.Scan(ctx, d.module, true)
			return err
		}), nil)
		return retry(func() error { return c.SubmitPromiseHelper(t) })

	case "wasm":
		t := helper.NewCompileTask(d.rt.Owner(), d.tier1, helper.Tier1, len(d.bytecode), d.count(d.validate))
		return retry(func() error { return c.SubmitCompile(t) })
	}
	return fmt.Errorf("unknown task kind %q", kind)
}

// submitTier2Generator queues a generator that fans out tier-2 compiles and
// waits for them, the way a module's background tier-up does.
func (d *driver) submitTier2Generator(ctx context.Context) error {
	c := d.c
	gen := helper.NewTier2GeneratorTask(d.rt.Owner(), d.count(func(ctx context.Context) error {
		for range tier2Compiles {
			t := helper.NewCompileTask(d.rt.Owner(), d.tier2, helper.Tier2, len(d.bytecode), d.validate)
			if err := c.SubmitWithRetry(ctx, func() error { return c.SubmitCompile(t) }); err != nil {
				return err
			}
		}
		return c.WaitForCompileTasks(ctx, d.tier2, tier2Compiles)
	}))
	d.units++
	return c.SubmitWithRetry(ctx, func() error { return c.SubmitTier2Generator(gen) })
}

// drain waits until no task of the run is queued or running, updating bar
// as work completes.
func (d *driver) drain(ctx context.Context, bar progressSink) error {
	for {
		err := d.c.WaitIdleTimeout(helper.SelectRuntime(d.rt), 50*time.Millisecond)
		_ = bar.Set(int(d.done.Load()))
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, helper.ErrWaitTimeout):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}
	}
}

// collect takes every finished result back from the coordinator.
func (d *driver) collect() error {
	c := d.c

	var errs []error
	for _, id := range d.parses {
		// Body errors were already counted by finish.
		if _, err := c.FinishParseTask(d.rt, id); errors.Is(err, helper.ErrTaskNotFound) {
			errs = append(errs, err)
		}
	}
	for _, t := range c.TakeFinishedJitCompiles(helper.SelectRuntime(d.rt)) {
		c.FinishJitCompileTask(t)
	}
	c.TakeFinishedCompiles(d.tier1)
	c.TakeFinishedCompiles(d.tier2)
	c.AttachFinishedCompressions(d.rt)

	// JIT frees and delazify frees were queued by the calls above.
	c.WaitForAllTasks()

	if c.HasPendingWork(helper.SelectRuntime(d.rt)) {
		errs = append(errs, errors.New("work left behind after collection"))
	}
	return errors.Join(errs...)
}

func (d *driver) validate(ctx context.Context) error {
	_, err := workload.DecodeBytecode(ctx, d.bytecode)
	return err
}

func (d *driver) count(body func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return d.finish(body(ctx))
	}
}

// finish records one completed work unit and passes err through.
func (d *driver) finish(err error) error {
	d.done.Add(1)
	if err != nil {
		d.failed.Add(1)
	}
	return err
}

func sampleSource(functions int) string {
	var b strings.Builder
	for i := range functions {
		fmt.Fprintf(&b, "function f%d(a, b) {\n  // step %d\n  return `${a}:${b}` + \"%d\";\n}\n", i, i, i)
	}
	return b.String()
}

func sampleScript(functions int) *workload.Script {
	s := &workload.Script{}
	for i := range functions {
		code := make([]byte, 64+i%64)
		for j := range code {
			code[j] = byte(i + j)
		}
		s.Functions = append(s.Functions, workload.Function{Name: fmt.Sprintf("f%d", i), Code: code})
	}
	return s
}
