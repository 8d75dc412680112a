package helper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinishParseTask(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	notified := make(chan TaskID, 1)
	task := NewParseTask(rt.Owner(), ParseModule, 128, func(context.Context) (any, error) {
		return "ast", nil
	}, func(pt *ParseTask) {
		notified <- pt.ID()
	})
	require.NoError(t, c.SubmitParse(task))

	id := <-notified
	got, err := c.FinishParseTask(rt, id)
	require.NoError(t, err)
	assert.Same(t, task, got)
	assert.Equal(t, "ast", got.Result())
	assert.Equal(t, ParseModule, got.ParseKind())
	assert.Equal(t, TaskFinished, got.State())

	_, err = c.FinishParseTask(rt, id)
	assert.ErrorIs(t, err, ErrTaskNotFound, "a parse task can only be finished once")
}

func TestFinishParseTaskReportsError(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	syntaxErr := errors.New("unexpected token")
	task := NewParseTask(rt.Owner(), ParseScript, 1, func(context.Context) (any, error) {
		return nil, syntaxErr
	}, nil)
	require.NoError(t, c.SubmitParse(task))

	got, err := c.FinishParseTask(rt, task.ID())
	assert.ErrorIs(t, err, syntaxErr)
	assert.Same(t, task, got)
}

func TestFinishParseTaskWrongRuntime(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	task := NewParseTask(rt.Owner(), ParseDecode, 1, nil, nil)
	require.NoError(t, c.SubmitParse(task))
	c.WaitIdle(SelectTask(task))

	_, err := c.FinishParseTask(NewRuntime("other"), task.ID())
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.True(t, c.HasPendingWork(SelectTask(task)), "still waiting for its own runtime")
}

func TestCancelParseTask(t *testing.T) {
	m := newManualCoordinator(t, 4)
	rt := NewRuntime("rt")

	var ran atomic.Int64
	queued := NewParseTask(rt.Owner(), ParseScript, 1, func(context.Context) (any, error) {
		ran.Add(1)
		return nil, nil
	}, nil)
	require.NoError(t, m.SubmitParse(queued))

	m.CancelParseTask(rt, queued.ID())
	assert.Equal(t, TaskCancelled, queued.State())

	finished := NewParseTask(rt.Owner(), ParseScript, 1, nil, nil)
	require.NoError(t, m.SubmitParse(finished))
	m.drain()
	require.True(t, m.HasPendingWork(SelectTask(finished)))

	m.CancelParseTask(rt, finished.ID())
	assert.False(t, m.HasPendingWork(SelectTask(finished)), "finished tasks are destroyed")
	assert.Zero(t, ran.Load())
}

func TestCancelParsesWaitsForQueuedWork(t *testing.T) {
	c := newPooledCoordinator(t)
	rt := NewRuntime("rt")

	var ran atomic.Int64
	for range 10 {
		require.NoError(t, c.SubmitParse(NewParseTask(rt.Owner(), ParseScript, 1, func(context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		}, nil)))
	}

	c.CancelParses(rt)

	assert.Equal(t, int64(10), ran.Load(), "parses are drained, not dropped")
	assert.False(t, c.HasPendingWork(SelectRuntime(rt)))
	assert.Zero(t, c.Stats().Kind(ThreadKindParse).Finished)
}
