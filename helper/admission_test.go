package helper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/helperpool/internal/arena"
)

func TestCheckTaskThreadLimit(t *testing.T) {
	tests := []struct {
		name         string
		maxThreads   int
		isMaster     bool
		runningKind  int
		totalRunning int
		want         bool
	}{
		{"non-master with full budget ignores idle count", 4, false, 3, 4, true},
		{"kind at its limit", 2, false, 2, 2, false},
		{"no idle thread", 2, false, 1, 4, false},
		{"under limit with idle thread", 2, false, 1, 3, true},
		{"master refused the last idle thread", 4, true, 0, 3, false},
		{"master with two idle threads", 4, true, 0, 2, true},
		{"master at its limit", 1, true, 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithCPUCount(4))
			c.runningCount[ThreadKindParse] = tt.runningKind
			c.totalRunning = tt.totalRunning

			assert.Equal(t, tt.want, c.checkTaskThreadLimit(ThreadKindParse, tt.maxThreads, tt.isMaster))
		})
	}
}

func TestSelectionPriorityOrder(t *testing.T) {
	m := newManualCoordinator(t, 4)
	rec := &recorder{}

	hot := NewRuntime("hot")
	hot.SetRunningJS(true)
	cold := NewRuntime("cold")

	jitBody := func(name string) JitCompileFunc {
		body := rec.body(name)
		return func(ctx context.Context, _ *arena.Arena) error { return body(ctx) }
	}
	delazifyStep := func(ctx context.Context) (bool, error) { return true, rec.body("delazify")(ctx) }
	parseBody := func(ctx context.Context) (any, error) { return nil, rec.body("parse")(ctx) }
	group := NewCompileTaskState()

	// Submit in reverse priority order.
	require.NoError(t, m.SubmitTier2Generator(NewTier2GeneratorTask(hot.Owner(), rec.body("generator"))))
	require.NoError(t, m.SubmitCompile(NewCompileTask(hot.Owner(), group, Tier2, 10, rec.body("tier2"))))
	require.NoError(t, m.SubmitJitCompile(NewJitCompileTask(newTestUnit(cold, "f", 1, 100), newTestArena(t), jitBody("jit-cold"))))
	require.NoError(t, m.SubmitDelazify(NewDelazifyTask(hot.Owner(), 10, delazifyStep, nil)))
	require.NoError(t, m.SubmitParse(NewParseTask(hot.Owner(), ParseScript, 10, parseBody, nil)))
	require.NoError(t, m.SubmitPromiseHelper(NewPromiseHelperTask(hot.Owner(), rec.body("promise"), nil)))
	require.NoError(t, m.SubmitCompile(NewCompileTask(hot.Owner(), group, Tier1, 10, rec.body("tier1"))))
	require.NoError(t, m.SubmitJitCompile(NewJitCompileTask(newTestUnit(hot, "g", 1, 1), newTestArena(t), jitBody("jit-hot"))))
	require.NoError(t, m.SubmitGCParallel(NewGCParallelTask(hot.Owner(), rec.body("gc"))))

	m.drain()

	assert.Equal(t, []string{
		"gc", "jit-hot", "tier1", "promise", "parse", "delazify", "jit-cold", "tier2", "generator",
	}, rec.order())

	for _, jt := range m.TakeFinishedJitCompiles(SelectAll()) {
		m.FinishJitCompileTask(jt)
	}
}

func TestWorklistDisciplines(t *testing.T) {
	rt := NewRuntime("rt")

	tests := []struct {
		name   string
		submit func(m *manualCoordinator, rec *recorder, name string) error
		want   []string
	}{
		{
			name: "parse is LIFO",
			submit: func(m *manualCoordinator, rec *recorder, name string) error {
				body := rec.body(name)
				return m.SubmitParse(NewParseTask(rt.Owner(), ParseModule, 1, func(ctx context.Context) (any, error) {
					return nil, body(ctx)
				}, nil))
			},
			want: []string{"c", "b", "a"},
		},
		{
			name: "promise helpers are LIFO",
			submit: func(m *manualCoordinator, rec *recorder, name string) error {
				return m.SubmitPromiseHelper(NewPromiseHelperTask(rt.Owner(), rec.body(name), nil))
			},
			want: []string{"c", "b", "a"},
		},
		{
			name: "GC parallel is FIFO",
			submit: func(m *manualCoordinator, rec *recorder, name string) error {
				return m.SubmitGCParallel(NewGCParallelTask(rt.Owner(), rec.body(name)))
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "wasm tier-1 is FIFO",
			submit: func(m *manualCoordinator, rec *recorder, name string) error {
				return m.SubmitCompile(NewCompileTask(rt.Owner(), NewCompileTaskState(), Tier1, 1, rec.body(name)))
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "delazify is FIFO",
			submit: func(m *manualCoordinator, rec *recorder, name string) error {
				body := rec.body(name)
				return m.SubmitDelazify(NewDelazifyTask(rt.Owner(), 1, func(ctx context.Context) (bool, error) {
					return true, body(ctx)
				}, nil))
			},
			want: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManualCoordinator(t, 4)
			rec := &recorder{}
			for _, name := range []string{"a", "b", "c"} {
				require.NoError(t, tt.submit(m, rec, name))
			}
			m.drain()
			assert.Equal(t, tt.want, rec.order())
		})
	}
}

func TestDelazifyStepsInterleave(t *testing.T) {
	m := newManualCoordinator(t, 4)
	rec := &recorder{}
	rt := NewRuntime("rt")

	released := map[string]int{}
	newTask := func(name string) *DelazifyTask {
		step := 0
		return NewDelazifyTask(rt.Owner(), 1, func(ctx context.Context) (bool, error) {
			step++
			_ = rec.body(name + string(rune('0'+step)))(ctx)
			return step == 2, nil
		}, func() { released[name]++ })
	}

	a, b := newTask("a"), newTask("b")
	require.NoError(t, m.SubmitDelazify(a))
	require.NoError(t, m.SubmitDelazify(b))
	m.drain()

	assert.Equal(t, []string{"a1", "b1", "a2", "b2"}, rec.order())
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, released)
	assert.Equal(t, 2, a.Steps())
	assert.True(t, a.Done())
	assert.Equal(t, TaskFinished, b.State())
}

func TestJitCompilePriority(t *testing.T) {
	m := newManualCoordinator(t, 4)
	rt := NewRuntime("rt")
	rt.SetRunningJS(true)

	// warmUp/length: 5, 3 and 5. Ties keep the earlier entry.
	first := NewJitCompileTask(newTestUnit(rt, "first", 10, 50), newTestArena(t), nil)
	slow := NewJitCompileTask(newTestUnit(rt, "slow", 1, 3), newTestArena(t), nil)
	tied := NewJitCompileTask(newTestUnit(rt, "tied", 2, 10), newTestArena(t), nil)
	for _, jt := range []*JitCompileTask{first, slow, tied} {
		require.NoError(t, m.SubmitJitCompile(jt))
	}

	m.lock()
	got := []Task{m.selectNextTaskLocked(), m.selectNextTaskLocked(), m.selectNextTaskLocked()}
	m.unlock()

	assert.Equal(t, []Task{first, tied, slow}, got)
}

func TestJitCompilePrefersRunningRuntime(t *testing.T) {
	m := newManualCoordinator(t, 4)

	idle := NewRuntime("idle")
	busy := NewRuntime("busy")
	busy.SetRunningJS(true)

	hotter := NewJitCompileTask(newTestUnit(idle, "hotter", 1, 1000), newTestArena(t), nil)
	running := NewJitCompileTask(newTestUnit(busy, "running", 1, 1), newTestArena(t), nil)
	require.NoError(t, m.SubmitJitCompile(hotter))
	require.NoError(t, m.SubmitJitCompile(running))

	assert.Equal(t, ThreadKindJitCompile, m.NextTaskKind())

	m.lock()
	defer m.unlock()
	assert.Same(t, running, m.selectNextTaskLocked())
	assert.Same(t, hotter, m.selectNextTaskLocked())
	assert.Nil(t, m.selectNextTaskLocked())
}

func TestWasmTier2Backlog(t *testing.T) {
	m := newManualCoordinator(t, 4, WithTier2BacklogThreshold(1))
	rt := NewRuntime("rt")

	m.lock()
	assert.False(t, m.wasmTier2Backlogged())
	assert.Equal(t, 4, m.wasmTierBudget(Tier1))
	assert.Equal(t, 2, m.wasmTierBudget(Tier2), "ceil(4/3) background cores")
	m.unlock()

	require.NoError(t, m.SubmitTier2Generator(NewTier2GeneratorTask(rt.Owner(), nil)))
	require.NoError(t, m.SubmitTier2Generator(NewTier2GeneratorTask(rt.Owner(), nil)))
	require.NoError(t, m.SubmitCompile(NewCompileTask(rt.Owner(), NewCompileTaskState(), Tier1, 1, nil)))

	m.lock()
	assert.True(t, m.wasmTier2Backlogged())
	assert.Equal(t, 0, m.wasmTierBudget(Tier1))
	assert.Equal(t, 4, m.wasmTierBudget(Tier2))
	m.unlock()

	assert.False(t, m.CanStart(ThreadKindWasmCompileTier1), "tier-1 pauses while tier-2 is backlogged")
	assert.True(t, m.CanStart(ThreadKindWasmGeneratorTier2))
	assert.True(t, m.Stats().Tier2Backlogged)
}

func TestMasterTaskNeverTakesLastThread(t *testing.T) {
	m := newManualCoordinator(t, 2)
	rt := NewRuntime("rt")

	g := newGate()
	defer g.release()
	blocking := NewParseTask(rt.Owner(), ParseScript, 1, func(ctx context.Context) (any, error) {
		return nil, g.body(ctx)
	}, nil)
	require.NoError(t, m.SubmitParse(blocking))

	done := m.runInBackground()
	g.waitStarted(t)
	assert.Equal(t, 1, m.runningOf(ThreadKindParse))

	require.NoError(t, m.SubmitParse(NewParseTask(rt.Owner(), ParseScript, 1, nil, nil)))
	assert.False(t, m.CanStart(ThreadKindParse), "one idle thread left")
	assert.Equal(t, ThreadKindNone, m.NextTaskKind())

	require.NoError(t, m.SubmitGCParallel(NewGCParallelTask(rt.Owner(), nil)))
	assert.True(t, m.CanStart(ThreadKindGCParallel), "non-master work may use the last thread")
	assert.Equal(t, ThreadKindGCParallel, m.NextTaskKind())

	g.release()
	<-done
	assert.True(t, m.CanStart(ThreadKindParse))
}

func TestSingleInstanceKinds(t *testing.T) {
	m := newManualCoordinator(t, 4)
	rt := NewRuntime("rt")

	g := newGate()
	defer g.release()
	require.NoError(t, m.SubmitTier2Generator(NewTier2GeneratorTask(rt.Owner(), nil)))
	require.NoError(t, m.SubmitTier2Generator(NewTier2GeneratorTask(rt.Owner(), g.body)))

	done := m.runInBackground()
	g.waitStarted(t)

	assert.False(t, m.CanStart(ThreadKindWasmGeneratorTier2), "only one generator runs at a time")
	assert.Equal(t, MaxTier2GeneratorTasks, m.Stats().Kind(ThreadKindWasmGeneratorTier2).MaxThreads)
	assert.Equal(t, 1, m.Stats().Kind(ThreadKindCompress).MaxThreads)

	g.release()
	<-done
}
