package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsOncePerWakeup(t *testing.T) {
	var runs atomic.Int64
	p, err := New(4, func() { runs.Add(1) })
	require.NoError(t, err)

	for range 100 {
		require.NoError(t, p.Dispatch())
	}

	assert.Eventually(t, func() bool { return runs.Load() == 100 }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Shutdown())
	assert.Equal(t, int64(100), runs.Load())
}

func TestWorkersRunInParallel(t *testing.T) {
	const threads = 3
	var (
		started sync.WaitGroup
		release = make(chan struct{})
	)
	started.Add(threads)

	p, err := New(threads, func() {
		started.Done()
		<-release
	})
	require.NoError(t, err)

	for range threads {
		require.NoError(t, p.Dispatch())
	}

	done := make(chan struct{})
	go func() {
		started.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not start concurrently")
	}

	close(release)
	require.NoError(t, p.Shutdown())
}

func TestShutdown(t *testing.T) {
	p, err := New(2, func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Threads())

	require.NoError(t, p.Shutdown())
	require.NoError(t, p.Shutdown())
	assert.ErrorIs(t, p.Dispatch(), ErrShutdown)
}

func TestWorkerPanicIsReported(t *testing.T) {
	var ran atomic.Bool
	p, err := New(1, func() {
		ran.Store(true)
		panic("boom")
	})
	require.NoError(t, err)
	require.NoError(t, p.Dispatch())
	assert.Eventually(t, ran.Load, 2*time.Second, time.Millisecond)

	err = p.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestNewValidation(t *testing.T) {
	_, err := New(0, func() {})
	assert.Error(t, err)

	_, err = New(1, nil)
	assert.Error(t, err)
}

func TestAffinityOption(t *testing.T) {
	var runs atomic.Int64
	p, err := New(2, func() { runs.Add(1) }, WithAffinity(true))
	require.NoError(t, err)

	require.NoError(t, p.Dispatch())
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, p.Shutdown())
}
