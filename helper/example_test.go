package helper_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/utkarsh5026/helperpool/helper"
)

// ExampleCoordinator_JoinGCParallel runs a parallel GC chore and waits for
// it.
func ExampleCoordinator_JoinGCParallel() {
	c := helper.New(helper.WithCPUCount(2))
	if err := c.EnsureInitialized(); err != nil {
		panic(err)
	}
	defer c.Finish()

	rt := helper.NewRuntime("main")
	task := helper.NewGCParallelTask(rt.Owner(), func(ctx context.Context) error {
		fmt.Println("sweeping")
		return nil
	})
	if err := c.SubmitGCParallel(task); err != nil {
		panic(err)
	}

	err := c.JoinGCParallel(task)
	fmt.Println("joined:", err, task.State())

	// Output:
	// sweeping
	// joined: <nil> finished
}

// ExampleCoordinator_FinishParseTask parses off-thread and collects the
// result on the producer.
func ExampleCoordinator_FinishParseTask() {
	c := helper.New(helper.WithCPUCount(2))
	if err := c.EnsureInitialized(); err != nil {
		panic(err)
	}
	defer c.Finish()

	rt := helper.NewRuntime("main")
	src := "let answer = 42"
	task := helper.NewParseTask(rt.Owner(), helper.ParseScript, len(src), func(ctx context.Context) (any, error) {
		return strings.Fields(src), nil
	}, nil)
	if err := c.SubmitParse(task); err != nil {
		panic(err)
	}

	done, err := c.FinishParseTask(rt, task.ID())
	if err != nil {
		panic(err)
	}
	fmt.Println(done.Result())

	// Output:
	// [let answer = 42]
}

// ExampleThreadCountForCPUCount shows the worker count derived for a few
// machine sizes.
func ExampleThreadCountForCPUCount() {
	for _, cpus := range []int{1, 4, 16} {
		clamped := helper.ClampCPUCount(cpus, helper.DefaultCPUCeiling)
		fmt.Printf("%d cpus -> %d threads\n", cpus, helper.ThreadCountForCPUCount(clamped))
	}

	// Output:
	// 1 cpus -> 2 threads
	// 4 cpus -> 4 threads
	// 16 cpus -> 8 threads
}
