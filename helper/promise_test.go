package helper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromiseHelperResolves(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	settled := make(chan *PromiseHelperTask, 2)
	resolve := func(pt *PromiseHelperTask) { settled <- pt }

	ok := NewPromiseHelperTask(rt.Owner(), func(context.Context) error { return nil }, resolve)
	rejected := errors.New("rejected")
	bad := NewPromiseHelperTask(rt.Owner(), func(context.Context) error { return rejected }, resolve)
	require.NoError(t, c.SubmitPromiseHelper(ok))
	require.NoError(t, c.SubmitPromiseHelper(bad))

	got := map[*PromiseHelperTask]bool{}
	for range 2 {
		pt := <-settled
		got[pt] = true
		assert.Equal(t, TaskFinished, pt.State(), "state is set before resolving")
	}
	assert.True(t, got[ok])
	assert.True(t, got[bad])
	assert.NoError(t, ok.Err())
	assert.ErrorIs(t, bad.Err(), rejected)
	assert.False(t, c.HasPendingWork(SelectRuntime(rt)), "promise tasks are destroyed after resolving")
}

func TestPromiseHelperWithoutExtraThreads(t *testing.T) {
	c := New(WithoutExtraThreads())
	rt := NewRuntime("rt")

	var resolved bool
	ran := false
	task := NewPromiseHelperTask(rt.Owner(), func(context.Context) error {
		ran = true
		return nil
	}, func(*PromiseHelperTask) { resolved = true })

	require.NoError(t, c.SubmitPromiseHelper(task))
	assert.True(t, ran, "runs on the caller")
	assert.True(t, resolved)
	assert.Equal(t, TaskFinished, task.State())

	boom := NewPromiseHelperTask(rt.Owner(), func(context.Context) error { panic("inline") }, nil)
	require.NoError(t, c.SubmitPromiseHelper(boom))
	var pe *PanicError
	require.ErrorAs(t, boom.Err(), &pe)
	assert.Equal(t, "inline", pe.Value)
}
