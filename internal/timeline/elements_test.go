package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunction_Result(t *testing.T) {
	tl := New()

	ok := tl.Schedule(Function(func() bool { return true }))
	fail := tl.Schedule(Function(func() bool { return false }))
	called := false
	do := tl.Schedule(Do(func() { called = true }))

	require.NoError(t, tl.Simulate(0))

	r, _ := ok.Result()
	assert.True(t, r)
	r, _ = fail.Result()
	assert.False(t, r)
	r, _ = do.Result()
	assert.True(t, r)
	assert.True(t, called)
}

func TestSleep_SoftStopObservedAtWake(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.Schedule(Named("nap", Sleep(10)))
	require.NoError(t, tl.Simulate(0))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(5))
	assert.False(t, h.Done())

	require.NoError(t, tl.Simulate(10))
	ev, ok := rec.find(EventFinished, "nap")
	require.True(t, ok)
	assert.EqualValues(t, 10, ev.At)
	assert.False(t, ev.Result)
}

func TestSleep_ZeroDelay(t *testing.T) {
	tl := New()
	h := tl.Schedule(Sleep(0))
	require.NoError(t, tl.Simulate(0))

	r, done := h.Result()
	assert.True(t, done)
	assert.True(t, r)
}

func TestSoftSleep_SoftStopWakesImmediately(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.Schedule(Named("nap", SoftSleep(100)))
	require.NoError(t, tl.Simulate(2))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(3))

	ev, ok := rec.find(EventFinished, "nap")
	require.True(t, ok)
	assert.EqualValues(t, 2, ev.At)
	assert.False(t, ev.Result)
	assert.Equal(t, 0, tl.Pending())
}

func TestSoftSleep_SoftStopBeforeEntry(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.ScheduleAt(Named("nap", SoftSleep(100)), 5)

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(200))

	ev, ok := rec.find(EventFinished, "nap")
	require.True(t, ok)
	assert.EqualValues(t, 5, ev.At)
	assert.False(t, ev.Result)
	assert.Equal(t, 0, tl.Pending())
}

func TestSequence_AllSucceed(t *testing.T) {
	tl := New()
	tr := &tracker{}

	h := tl.Schedule(Sequence(tr.fn("a", true), tr.fn("b", true), tr.fn("c", true)))
	require.NoError(t, tl.Simulate(0))

	assert.Equal(t, []string{"a", "b", "c"}, tr.entered)
	r, done := h.Result()
	assert.True(t, done)
	assert.True(t, r)
}

func TestSequence_FailureSkipsRemaining(t *testing.T) {
	tl := New()
	tr := &tracker{}

	h := tl.Schedule(Sequence(tr.fn("a", true), tr.fn("b", false), tr.fn("c", true), tr.fn("d", true)))
	require.NoError(t, tl.Simulate(0))

	assert.Equal(t, []string{"a", "b"}, tr.entered)
	r, _ := h.Result()
	assert.False(t, r)
}

func TestSequence_MustRunAfterFailure(t *testing.T) {
	tl := New()
	tr := &tracker{}

	h := tl.Schedule(Sequence(
		tr.fn("a", false),
		tr.fn("b", true),
		MustRun(tr.fn("c", true)),
		tr.fn("d", true),
	))
	require.NoError(t, tl.Simulate(0))

	assert.Equal(t, []string{"a", "c"}, tr.entered)
	r, _ := h.Result()
	assert.False(t, r)
}

// Sequence([Function(true), Sleep(5), Function(false), MustRun(Function(true))])
func TestSequence_ExampleScenario(t *testing.T) {
	tl, rec := newTestTimeline(t)
	tr := &tracker{}

	res := Result(Sequence(
		tr.fn("f0", true),
		Named("sleep", Sleep(5)),
		tr.fn("f2", false),
		MustRun(tr.fn("f3", true)),
	))
	tl.Schedule(res)

	require.NoError(t, tl.Simulate(0))
	assert.Equal(t, []string{"f0"}, tr.entered)
	_, ok := res.Result()
	assert.False(t, ok)

	require.NoError(t, tl.Simulate(4))
	assert.Equal(t, []string{"f0"}, tr.entered)

	require.NoError(t, tl.Simulate(5))
	assert.Equal(t, []string{"f0", "f2", "f3"}, tr.entered)

	ev, found := rec.find(EventFinished, "sleep")
	require.True(t, found)
	assert.EqualValues(t, 5, ev.At)
	assert.True(t, ev.Result)

	ev, found = rec.find(EventFinished, "f3")
	require.True(t, found)
	assert.True(t, ev.Result)

	result, ok := res.Result()
	assert.True(t, ok)
	assert.False(t, result)
}

func TestSequence_SoftStopSkipsRemaining(t *testing.T) {
	tl := New()
	tr := &tracker{}

	h := tl.Schedule(Sequence(
		SoftSleep(10),
		tr.fn("skipped", true),
		MustRun(tr.fn("kept", true)),
	))
	require.NoError(t, tl.Simulate(1))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(1))

	assert.Equal(t, []string{"kept"}, tr.entered)
	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
}

func TestMustRun_DeclinesSoftStop(t *testing.T) {
	tl := New()
	s := Sleep(5)
	h := tl.Schedule(MustRun(s))
	require.NoError(t, tl.Simulate(0))

	assert.False(t, h.SoftStop())
	assert.False(t, s.SoftStopRequested())

	require.NoError(t, tl.Simulate(5))
	r, _ := h.Result()
	assert.True(t, r)
}

func TestSoftStop_Idempotent(t *testing.T) {
	run := func(requests int) ([]TraceEvent, bool, []bool) {
		rec := &recorder{}
		tl := New(WithObserver(rec))
		h := tl.Schedule(Named("seq", Sequence(
			Named("a", Sleep(10)),
			Named("b", Function(func() bool { return true })),
		)))
		require.NoError(t, tl.Simulate(2))

		var accepted []bool
		for i := 0; i < requests; i++ {
			accepted = append(accepted, h.SoftStop())
		}
		require.NoError(t, tl.Simulate(20))

		r, _ := h.Result()
		return rec.events, r, accepted
	}

	once, onceResult, onceAccepted := run(1)
	twice, twiceResult, twiceAccepted := run(2)

	assert.Equal(t, once, twice)
	assert.Equal(t, onceResult, twiceResult)
	assert.Equal(t, []bool{true}, onceAccepted)
	assert.Equal(t, []bool{true, true}, twiceAccepted)
}

func TestSoftStop_FinishedHandle(t *testing.T) {
	tl := New()
	h := tl.Schedule(Function(func() bool { return true }))
	require.NoError(t, tl.Simulate(0))

	assert.False(t, h.SoftStop())
}

func TestHardStop_ChildTornDownBeforeParent(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.Schedule(Named("parent", RunChild(Named("child", Sleep(10)))))
	require.NoError(t, tl.Simulate(0))

	h.HardStop()

	child := rec.index(EventTeardown, "child")
	parent := rec.index(EventTeardown, "parent")
	require.GreaterOrEqual(t, child, 0)
	require.GreaterOrEqual(t, parent, 0)
	assert.Less(t, child, parent)
	assert.Less(t, rec.index(EventHardStop, "parent"), rec.index(EventHardStop, "child"))

	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)

	// No further entry into the stopped subtree.
	require.NoError(t, tl.Simulate(20))
	assert.Equal(t, 1, rec.count(EventRun, "child"))
	assert.Equal(t, 0, rec.count(EventFinished, "child"))
	assert.Equal(t, 0, tl.Pending())
}

func TestHardStop_Idempotent(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.Schedule(Named("nap", Sleep(10)))
	require.NoError(t, tl.Simulate(0))

	h.HardStop()
	h.HardStop()

	assert.Equal(t, 1, rec.count(EventHardStop, "nap"))
	assert.Equal(t, 1, rec.count(EventTeardown, "nap"))
}

func TestHardStop_ChildResumesParentWithFalse(t *testing.T) {
	tl := New()
	tr := &tracker{}
	a := Named("a", Sleep(10))

	h := tl.Schedule(Sequence(a, tr.fn("b", true)))
	require.NoError(t, tl.Simulate(1))

	a.Handle().HardStop()

	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
	assert.Empty(t, tr.entered)
}

func TestRunChild_ForwardsResult(t *testing.T) {
	tl := New()
	h := tl.Schedule(RunChild(Function(func() bool { return false })))
	require.NoError(t, tl.Simulate(0))

	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
}

func TestMinimumTime_PadsShortChild(t *testing.T) {
	tests := []struct {
		name   string
		child  func() Element
		result bool
	}{
		{"succeeding child", func() Element { return Sleep(2) }, true},
		{"failing child", func() Element { return Function(func() bool { return false }) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, rec := newTestTimeline(t)
			h := tl.Schedule(Named("min", MinimumTime(tt.child(), 10)))

			require.NoError(t, tl.Simulate(9))
			assert.False(t, h.Done())

			require.NoError(t, tl.Simulate(10))
			ev, ok := rec.find(EventFinished, "min")
			require.True(t, ok)
			assert.GreaterOrEqual(t, int64(ev.At), int64(10))
			assert.Equal(t, tt.result, ev.Result)
		})
	}
}

func TestMinimumTime_LongChildNotPadded(t *testing.T) {
	tl, rec := newTestTimeline(t)
	tl.Schedule(Named("min", MinimumTime(Sleep(15), 10)))

	require.NoError(t, tl.Simulate(15))
	ev, ok := rec.find(EventFinished, "min")
	require.True(t, ok)
	assert.EqualValues(t, 15, ev.At)
	assert.Equal(t, 0, rec.count(EventScheduled, "min/pad"))
}

func TestMinimumTime_SoftStopCutsPadding(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.Schedule(Named("min", MinimumTime(Sleep(2), 10)))

	require.NoError(t, tl.Simulate(2))
	assert.Equal(t, 1, rec.count(EventScheduled, "min/pad"))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(3))

	ev, ok := rec.find(EventFinished, "min")
	require.True(t, ok)
	assert.EqualValues(t, 2, ev.At)
	assert.True(t, ev.Result)
}

func TestRepeat_StopsOnFailure(t *testing.T) {
	tl := New()
	entered := 0
	const n = 3

	r := Repeat(func() Element {
		return Function(func() bool {
			entered++
			return entered <= n
		})
	})
	h := tl.Schedule(r)
	require.NoError(t, tl.Simulate(0))

	assert.Equal(t, n+1, entered)
	assert.Equal(t, n+1, r.Iterations())
	res, done := h.Result()
	assert.True(t, done)
	assert.False(t, res)
}

func TestRepeat_SoftStopPreventsNextIteration(t *testing.T) {
	tl := New()
	entered := 0

	h := tl.Schedule(Repeat(func() Element {
		return Sequence(Do(func() { entered++ }), Sleep(1))
	}))

	// Iterations complete at 1 and 2; the third is running.
	require.NoError(t, tl.Simulate(2))
	assert.Equal(t, 3, entered)

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(10))

	assert.Equal(t, 3, entered)
	res, done := h.Result()
	assert.True(t, done)
	assert.False(t, res)
}

func TestRepeat_NilFactoryResult(t *testing.T) {
	tl := New()
	tl.Schedule(Repeat(func() Element { return nil }))

	err := catch(func() { _ = tl.Simulate(0) })
	assert.True(t, IsContractError(err, ErrCodeInvalidChild))
}

func TestAll_ResultIsAnd(t *testing.T) {
	tests := []struct {
		name   string
		last   bool
		result bool
	}{
		{"all succeed", true, true},
		{"one fails", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, rec := newTestTimeline(t)
			last := tt.last
			res := Result(Named("all", All(
				Sleep(3),
				Sleep(5),
				Function(func() bool { return last }),
			)))
			tl.Schedule(res)

			require.NoError(t, tl.Simulate(4))
			_, ok := res.Result()
			assert.False(t, ok)

			require.NoError(t, tl.Simulate(5))
			result, ok := res.Result()
			assert.True(t, ok)
			assert.Equal(t, tt.result, result)

			ev, found := rec.find(EventFinished, "all")
			require.True(t, found)
			assert.EqualValues(t, 5, ev.At)
		})
	}
}

func TestAll_Empty(t *testing.T) {
	tl := New()
	h := tl.Schedule(All())
	require.NoError(t, tl.Simulate(0))

	r, done := h.Result()
	assert.True(t, done)
	assert.True(t, r)
}

func TestAll_HardStoppedChildCountsAsFalse(t *testing.T) {
	tl := New()
	a := Sleep(3)
	all := All(a, Sleep(5))
	h := tl.Schedule(all)
	require.NoError(t, tl.Simulate(0))
	assert.Equal(t, 2, all.Running())

	a.Handle().HardStop()
	assert.Equal(t, 1, all.Running())
	assert.False(t, h.Done())

	require.NoError(t, tl.Simulate(5))
	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
}

func TestAll_AddWhileRunning(t *testing.T) {
	tl, rec := newTestTimeline(t)
	all := Named("all", All(Sleep(2)))
	tl.Schedule(all)
	require.NoError(t, tl.Simulate(0))

	all.Add(Named("late", Sleep(5)))
	require.NoError(t, tl.Simulate(2))
	assert.Equal(t, 0, rec.count(EventFinished, "all"))

	require.NoError(t, tl.Simulate(5))
	ev, ok := rec.find(EventFinished, "all")
	require.True(t, ok)
	assert.EqualValues(t, 5, ev.At)
	assert.True(t, ev.Result)

	err := catch(func() { all.Add(Sleep(1)) })
	assert.True(t, IsContractError(err, ErrCodeTornDown))
}

func TestAll_SoftStopReachesEveryChild(t *testing.T) {
	tl := New()
	a, b := SoftSleep(10), SoftSleep(20)
	h := tl.Schedule(All(a, b))
	require.NoError(t, tl.Simulate(0))

	assert.True(t, h.SoftStop())
	assert.True(t, a.SoftStopRequested())
	assert.True(t, b.SoftStopRequested())

	require.NoError(t, tl.Simulate(0))
	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
}

func TestAll_SoftStopBeforeEntry(t *testing.T) {
	tl, rec := newTestTimeline(t)
	a, b := Named("a", SoftSleep(100)), Named("b", SoftSleep(200))
	h := tl.Schedule(Named("all", All(a, b)))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(300))

	assert.True(t, a.SoftStopRequested())
	assert.True(t, b.SoftStopRequested())
	ev, ok := rec.find(EventFinished, "all")
	require.True(t, ok)
	assert.EqualValues(t, 0, ev.At)
	assert.False(t, ev.Result)
}

func TestAll_AddAfterSoftStop(t *testing.T) {
	tl, rec := newTestTimeline(t)
	all := Named("all", All(SoftSleep(10)))
	h := tl.Schedule(all)
	require.NoError(t, tl.Simulate(0))

	assert.True(t, h.SoftStop())
	late := Named("late", SoftSleep(50))
	all.Add(late)

	require.NoError(t, tl.Simulate(100))
	assert.True(t, late.SoftStopRequested())
	ev, ok := rec.find(EventFinished, "late")
	require.True(t, ok)
	assert.EqualValues(t, 0, ev.At)
	assert.False(t, ev.Result)

	ev, ok = rec.find(EventFinished, "all")
	require.True(t, ok)
	assert.EqualValues(t, 0, ev.At)
	assert.False(t, ev.Result)
}

func TestAll_HardStopTearsDownEveryChild(t *testing.T) {
	tl, rec := newTestTimeline(t)
	h := tl.Schedule(Named("all", All(Named("a", Sleep(3)), Named("b", Sleep(5)))))
	require.NoError(t, tl.Simulate(0))

	h.HardStop()

	all := rec.index(EventTeardown, "all")
	assert.Less(t, rec.index(EventTeardown, "a"), all)
	assert.Less(t, rec.index(EventTeardown, "b"), all)

	require.NoError(t, tl.Simulate(10))
	assert.Equal(t, 0, rec.count(EventFinished, "a"))
	assert.Equal(t, 0, rec.count(EventFinished, "b"))
}

func TestConditional_Branches(t *testing.T) {
	tests := []struct {
		name    string
		test    bool
		ifFalse Element
		entered []string
		result  bool
	}{
		{"true branch", true, nil, []string{"yes"}, true},
		{"false branch", false, Function(func() bool { return false }), nil, false},
		{"no branch", false, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := New()
			tr := &tracker{}
			test := tt.test

			c := Conditional(func() bool { return test }, tr.fn("yes", true), tt.ifFalse)
			h := tl.Schedule(c)
			require.NoError(t, tl.Simulate(0))

			assert.Equal(t, tt.entered, tr.entered)
			r, _ := h.Result()
			assert.Equal(t, tt.result, r)

			branch, evaluated := c.Taken()
			assert.True(t, evaluated)
			assert.Equal(t, tt.test, branch)
		})
	}
}

// CriticalSection(work=Sleep(10), cleanup=Function(true)) hard stopped at 3.
func TestCriticalSection_HardStopRunsCleanup(t *testing.T) {
	tl, rec := newTestTimeline(t)
	tr := &tracker{}

	h := tl.Schedule(Named("cs", CriticalSection(Named("work", Sleep(10)), tr.fn("cleanup", true))))
	require.NoError(t, tl.Simulate(3))

	h.HardStop()

	assert.Equal(t, []string{"cleanup"}, tr.entered)

	workDown := rec.index(EventTeardown, "work")
	cleanupRun := rec.index(EventRun, "cleanup")
	cleanupDone := rec.index(EventFinished, "cleanup")
	csDown := rec.index(EventTeardown, "cs")

	require.GreaterOrEqual(t, workDown, 0)
	assert.Less(t, workDown, cleanupRun)
	assert.Less(t, cleanupRun, cleanupDone)
	assert.Less(t, cleanupDone, csDown)

	ev := rec.events[cleanupDone]
	assert.EqualValues(t, 3, ev.At)

	require.NoError(t, tl.Simulate(20))
	assert.Equal(t, 0, rec.count(EventFinished, "work"))
	assert.Len(t, tr.entered, 1)
}

func TestCriticalSection_Results(t *testing.T) {
	tests := []struct {
		name    string
		work    Element
		cleanup bool
		result  bool
	}{
		{"both succeed", Function(func() bool { return true }), true, true},
		{"work fails", Function(func() bool { return false }), true, false},
		{"cleanup fails", Function(func() bool { return true }), false, false},
		{"no work", nil, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := New()
			tr := &tracker{}
			h := tl.Schedule(CriticalSection(tt.work, tr.fn("cleanup", tt.cleanup)))
			require.NoError(t, tl.Simulate(0))

			assert.Equal(t, []string{"cleanup"}, tr.entered)
			r, _ := h.Result()
			assert.Equal(t, tt.result, r)
		})
	}
}

func TestCriticalSection_SoftStopReachesWorkOnly(t *testing.T) {
	tl := New()
	work, cleanup := Sleep(5), Sleep(5)
	h := tl.Schedule(CriticalSection(work, cleanup))
	require.NoError(t, tl.Simulate(0))

	assert.True(t, h.SoftStop())
	assert.True(t, work.SoftStopRequested())

	require.NoError(t, tl.Simulate(5))
	assert.True(t, cleanup.Attached())

	assert.True(t, h.SoftStop())
	assert.False(t, cleanup.SoftStopRequested())

	require.NoError(t, tl.Simulate(10))
	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
}

func TestCriticalSection_CleanupSurvivesHardStop(t *testing.T) {
	tl, rec := newTestTimeline(t)
	cleanup := Named("cleanup", Sleep(5))
	h := tl.Schedule(Named("cs", CriticalSection(Function(func() bool { return true }), cleanup)))
	require.NoError(t, tl.Simulate(0))

	h.HardStop()
	assert.Equal(t, 1, rec.count(EventTeardown, "cs"))
	assert.True(t, cleanup.Attached())
	assert.Nil(t, cleanup.Handle().Parent())

	require.NoError(t, tl.Simulate(5))
	ev, ok := rec.find(EventFinished, "cleanup")
	require.True(t, ok)
	assert.True(t, ev.Result)
}

func TestWithFinally_FiresOnce(t *testing.T) {
	t.Run("natural completion", func(t *testing.T) {
		tl := New()
		calls := 0
		h := tl.Schedule(WithFinally(Sleep(2), func() { calls++ }))

		require.NoError(t, tl.Simulate(5))
		assert.Equal(t, 1, calls)
		r, _ := h.Result()
		assert.True(t, r)
	})

	t.Run("hard stop", func(t *testing.T) {
		tl := New()
		calls := 0
		h := tl.Schedule(WithFinally(Sleep(2), func() { calls++ }))
		require.NoError(t, tl.Simulate(1))

		h.HardStop()
		h.HardStop()
		assert.Equal(t, 1, calls)

		require.NoError(t, tl.Simulate(5))
		assert.Equal(t, 1, calls)
	})
}

func TestCallback_Hooks(t *testing.T) {
	type counts struct {
		complete, hardStop, teardown int
		result                       bool
	}

	hooks := func(c *counts) CallbackHooks {
		return CallbackHooks{
			OnComplete: func(r bool) { c.complete++; c.result = r },
			OnHardStop: func() { c.hardStop++ },
			OnTeardown: func() { c.teardown++ },
		}
	}

	t.Run("completion", func(t *testing.T) {
		tl := New()
		c := &counts{}
		tl.Schedule(Callback(Sleep(1), hooks(c)))
		require.NoError(t, tl.Simulate(1))

		assert.Equal(t, counts{complete: 1, teardown: 1, result: true}, *c)
	})

	t.Run("hard stop", func(t *testing.T) {
		tl := New()
		c := &counts{}
		h := tl.Schedule(Callback(Sleep(1), hooks(c)))
		require.NoError(t, tl.Simulate(0))

		h.HardStop()
		require.NoError(t, tl.Simulate(1))

		assert.Equal(t, counts{hardStop: 1, teardown: 1}, *c)
	})
}

func TestResult_RecordsChildResult(t *testing.T) {
	tl := New()
	res := Result(Function(func() bool { return false }))

	_, ok := res.Result()
	assert.False(t, ok)

	h := tl.Schedule(res)
	require.NoError(t, tl.Simulate(0))

	r, ok := res.Result()
	assert.True(t, ok)
	assert.False(t, r)

	hr, _ := h.Result()
	assert.False(t, hr)
}

func TestOverrideResult(t *testing.T) {
	tl := New()
	h := tl.Schedule(OverrideResult(Function(func() bool { return false }), true))
	require.NoError(t, tl.Simulate(0))

	r, _ := h.Result()
	assert.True(t, r)
}

func TestRememberSoftStop_LatchesStop(t *testing.T) {
	tl := New()
	inner := Sleep(5)
	h := tl.Schedule(RememberSoftStop(OverrideResult(inner, true)))
	require.NoError(t, tl.Simulate(0))

	assert.True(t, h.SoftStop())
	assert.True(t, inner.SoftStopRequested())

	require.NoError(t, tl.Simulate(5))
	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
}

func TestRememberSoftStop_PassesResultWhenNotStopped(t *testing.T) {
	tl := New()
	h := tl.Schedule(RememberSoftStop(Sleep(5)))
	require.NoError(t, tl.Simulate(5))

	r, _ := h.Result()
	assert.True(t, r)
}

func TestGenerator_FeedsResultsBack(t *testing.T) {
	tl := New()
	var seen []bool
	produced := 0

	g := Generator(GeneratorFunc(func(t *Timeline, last bool) Step {
		seen = append(seen, last)
		if produced == 3 {
			return Return(last)
		}
		produced++
		ok := produced != 2
		return Yield(Sequence(Sleep(1), Function(func() bool { return ok })))
	}))
	h := tl.Schedule(g)

	require.NoError(t, tl.Simulate(10))
	assert.Equal(t, []bool{true, true, false, true}, seen)

	r, done := h.Result()
	assert.True(t, done)
	assert.True(t, r)
}

func TestGenerator_DoneIsTrue(t *testing.T) {
	tl := New()
	h := tl.Schedule(Generator(GeneratorFunc(func(*Timeline, bool) Step { return Done() })))
	require.NoError(t, tl.Simulate(0))

	r, done := h.Result()
	assert.True(t, done)
	assert.True(t, r)
}

func TestGenerator_NilYieldIsContractError(t *testing.T) {
	tl := New()
	tl.Schedule(Generator(GeneratorFunc(func(*Timeline, bool) Step { return Yield(nil) })))

	err := catch(func() { _ = tl.Simulate(0) })
	assert.True(t, IsContractError(err, ErrCodeInvalidChild))
}

// countdown yields sleeps until it is stopped or runs out.
type countdown struct {
	StepperBase
	left int
}

func (c *countdown) Advance(t *Timeline, last bool) Step {
	if c.StopRequested() || c.left == 0 {
		return Return(!c.StopRequested())
	}
	c.left--
	return Yield(SoftSleep(3))
}

func TestGenerator_EmbeddedStepper(t *testing.T) {
	tl := New()
	c := &countdown{left: 5}
	h := tl.Schedule(Generator(c))

	require.NoError(t, tl.Simulate(6))
	assert.Equal(t, 3, c.Yielded())

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(7))

	assert.Equal(t, 3, c.Yielded())
	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
	assert.False(t, c.StopRequested())
}

func TestGenerator_Elements(t *testing.T) {
	tl := New()
	tr := &tracker{}
	h := tl.Schedule(Generator(Elements(tr.fn("a", true), tr.fn("b", false), tr.fn("c", true))))
	require.NoError(t, tl.Simulate(0))

	assert.Equal(t, []string{"a", "b"}, tr.entered)
	r, _ := h.Result()
	assert.False(t, r)
}

func TestBusyWait_CompletesWhenPredicateHolds(t *testing.T) {
	tl := New()
	ready := false
	res := Result(BusyWait(func() bool { return ready }))
	tl.Schedule(res)

	require.NoError(t, tl.Simulate(0))
	assert.Equal(t, 1, tl.TickCallbacks())

	require.NoError(t, tl.Simulate(5))
	_, ok := res.Result()
	assert.False(t, ok)

	ready = true
	require.NoError(t, tl.Simulate(6))

	r, ok := res.Result()
	assert.True(t, ok)
	assert.True(t, r)
	assert.Equal(t, 0, tl.TickCallbacks())
	assert.Equal(t, 0, tl.Pending())
}

func TestBusyWait_ImmediatelyTrue(t *testing.T) {
	tl := New()
	h := tl.Schedule(BusyWait(func() bool { return true }))
	require.NoError(t, tl.Simulate(0))

	r, done := h.Result()
	assert.True(t, done)
	assert.True(t, r)
	assert.Equal(t, 0, tl.TickCallbacks())
}

func TestBusyWait_TeardownUnregisters(t *testing.T) {
	tl := New()
	h := tl.Schedule(BusyWait(func() bool { return false }))
	require.NoError(t, tl.Simulate(0))
	require.Equal(t, 1, tl.TickCallbacks())

	h.HardStop()
	assert.Equal(t, 0, tl.TickCallbacks())
	assert.Equal(t, 0, tl.Pending())
}

func TestBusyWait_SoftStopWithoutPredicate(t *testing.T) {
	tl := New()
	h := tl.Schedule(BusyWait(func() bool { return false }))
	require.NoError(t, tl.Simulate(0))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(1))

	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
	assert.Equal(t, 0, tl.TickCallbacks())
}

func TestBusyWait_SoftStopBeforeEntry(t *testing.T) {
	tl := New()
	h := tl.Schedule(BusyWait(func() bool { return false }))

	assert.True(t, h.SoftStop())
	require.NoError(t, tl.Simulate(0))

	r, done := h.Result()
	assert.True(t, done)
	assert.False(t, r)
	assert.Equal(t, 0, tl.TickCallbacks())
	assert.Equal(t, 0, tl.Pending())
}

func TestSoftStop_BeforeFirstTick(t *testing.T) {
	never := func() bool { return false }

	tests := []struct {
		name   string
		build  func() Element
		result bool
		at     time.Duration
	}{
		{
			name:   "soft_sleep",
			build:  func() Element { return SoftSleep(100) },
			result: false,
		},
		{
			name:   "all",
			build:  func() Element { return All(SoftSleep(100), SoftSleep(200)) },
			result: false,
		},
		{
			name:   "busy_wait",
			build:  func() Element { return BusyWait(never) },
			result: false,
		},
		{
			name:   "sequence skips to must_run",
			build:  func() Element { return Sequence(SoftSleep(100), Function(never), MustRun(Sleep(30))) },
			result: true,
			at:     30,
		},
		{
			name:   "repeat",
			build:  func() Element { return Repeat(func() Element { return SoftSleep(10) }) },
			result: false,
		},
		{
			name:   "minimum_time",
			build:  func() Element { return MinimumTime(Function(func() bool { return true }), 50) },
			result: true,
		},
		{
			name:   "remember_soft_stop",
			build:  func() Element { return RememberSoftStop(SoftSleep(100)) },
			result: false,
		},
		{
			name:   "run_child",
			build:  func() Element { return RunChild(SoftSleep(100)) },
			result: false,
		},
		{
			name:   "result",
			build:  func() Element { return Result(SoftSleep(100)) },
			result: false,
		},
		{
			name:   "callback",
			build:  func() Element { return Callback(SoftSleep(100), CallbackHooks{}) },
			result: false,
		},
		{
			name:   "with_finally",
			build:  func() Element { return WithFinally(SoftSleep(100), func() {}) },
			result: false,
		},
		{
			name:   "conditional",
			build:  func() Element { return Conditional(nil, SoftSleep(100), nil) },
			result: false,
		},
		{
			name:   "critical_section stops work but not cleanup",
			build:  func() Element { return CriticalSection(SoftSleep(100), SoftSleep(5)) },
			result: false,
			at:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, rec := newTestTimeline(t)
			h := tl.Schedule(Named("root", tt.build()))

			assert.True(t, h.SoftStop())
			require.NoError(t, tl.Simulate(1000))

			ev, ok := rec.find(EventFinished, "root")
			require.True(t, ok)
			assert.Equal(t, tt.at, ev.At)
			assert.Equal(t, tt.result, ev.Result)
			assert.Equal(t, 0, tl.Pending())
			assert.Equal(t, 0, tl.TickCallbacks())
		})
	}
}
