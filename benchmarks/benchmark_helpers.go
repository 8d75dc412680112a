package benchmarks

import (
	"context"
	"testing"

	"github.com/utkarsh5026/helperpool/helper"
)

// substrateConfig defines a benchmark configuration for an execution
// substrate.
type substrateConfig struct {
	name     string
	opts     []helper.Option
	external bool
}

// getAllSubstrates returns every way of running coordinator work for
// benchmarking.
func getAllSubstrates(cpus int) []substrateConfig {
	return []substrateConfig{
		{
			name: "InternalPool",
			opts: []helper.Option{helper.WithCPUCount(cpus)},
		},
		{
			name:     "ExternalDispatch",
			opts:     []helper.Option{helper.WithCPUCount(cpus)},
			external: true,
		},
		{
			name:     "ExternalRateLimited",
			opts:     []helper.Option{helper.WithCPUCount(cpus), helper.WithDispatchRateLimit(1e6, 64)},
			external: true,
		},
	}
}

// newCoordinator builds and initializes a coordinator for cfg. It is
// finished when the benchmark ends.
func newCoordinator(b *testing.B, cfg substrateConfig) *helper.Coordinator {
	b.Helper()

	c := helper.New(cfg.opts...)
	if cfg.external {
		c.SetDispatchCallback(func(helper.DispatchReason) {
			go c.RunOneTask()
		}, helper.ThreadCountForCPUCount(c.CPUCount()), helper.DefaultStackSize)
	}
	if err := c.EnsureInitialized(); err != nil {
		b.Fatalf("initializing coordinator: %v", err)
	}

	b.Cleanup(func() {
		c.Cancel(helper.SelectAll())
		if err := c.Finish(); err != nil {
			b.Errorf("finishing coordinator: %v", err)
		}
	})
	return c
}

// runGCBatch submits n GC tasks running work and waits for all of them.
func runGCBatch(b *testing.B, c *helper.Coordinator, rt *helper.Runtime, n int, work func(ctx context.Context) error) {
	b.Helper()

	ctx := context.Background()
	for range n {
		t := helper.NewGCParallelTask(rt.Owner(), work)
		if err := c.SubmitWithRetry(ctx, func() error { return c.SubmitGCParallel(t) }); err != nil {
			b.Fatalf("submit: %v", err)
		}
	}
	c.WaitIdle(helper.SelectRuntime(rt))
}

// runParseBatch submits n parse tasks and takes every result back.
func runParseBatch(b *testing.B, c *helper.Coordinator, rt *helper.Runtime, n int, body helper.ParseFunc) {
	b.Helper()

	ctx := context.Background()
	ids := make([]helper.TaskID, 0, n)
	for range n {
		t := helper.NewParseTask(rt.Owner(), helper.ParseScript, 0, body, nil)
		if err := c.SubmitWithRetry(ctx, func() error { return c.SubmitParse(t) }); err != nil {
			b.Fatalf("submit: %v", err)
		}
		ids = append(ids, t.ID())
	}
	for _, id := range ids {
		if _, err := c.FinishParseTask(rt, id); err != nil {
			b.Fatalf("finish parse: %v", err)
		}
	}
}
