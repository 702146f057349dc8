package fsm

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// fakeScheduler 手动触发的调度器
type fakeScheduler struct {
	jobs []*fakeJob
}

type fakeJob struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	job := &fakeJob{delay: d, fn: fn}
	s.jobs = append(s.jobs, job)
	return func() bool {
		if job.cancelled || job.fired {
			return false
		}
		job.cancelled = true
		return true
	}
}

func (s *fakeScheduler) fireAll() {
	for _, job := range s.jobs {
		if !job.cancelled && !job.fired {
			job.fired = true
			job.fn()
		}
	}
}

func newLight(s Scheduler) *Machine {
	m := New(s, "off", WithHistory(4))
	m.Define("off", To("on"))
	m.Define("on", To("off", "broken"))
	m.Define("broken")
	return m
}

func TestTransition(t *testing.T) {
	m := newLight(&fakeScheduler{})

	assert.Equal(t, State("off"), m.State())
	require.NoError(t, m.Transition("on"))
	assert.Equal(t, State("on"), m.State())
	require.NoError(t, m.Transition("off"))
	assert.Equal(t, []State{"on", "off"}, m.History())
	assert.Equal(t, []State{"broken", "off", "on"}, m.States())
}

func TestTransitionRules(t *testing.T) {
	m := newLight(&fakeScheduler{})

	err := m.Transition("broken")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, State("off"), terr.From)
	assert.Equal(t, State("broken"), terr.To)
	assert.False(t, m.Can("broken"))

	assert.ErrorIs(t, m.Transition("missing"), ErrUnknownState)

	// 没有限制的状态可以转换到任意已定义的状态
	require.NoError(t, m.Transition("on"))
	require.NoError(t, m.Transition("broken"))
	assert.True(t, m.Can("off"))
}

func TestTransitionToSameStateIsNoop(t *testing.T) {
	m := newLight(&fakeScheduler{})
	entered := 0
	m.Define("off", OnEnter(func(State, State) { entered++ }))

	require.NoError(t, m.Transition("off"))
	assert.Equal(t, 0, entered)
	assert.Empty(t, m.History())
}

func TestOnEnterAndObserve(t *testing.T) {
	m := newLight(&fakeScheduler{})
	var entered, observed []string
	m.Define("on", OnEnter(func(from, to State) {
		entered = append(entered, string(from)+"->"+string(to))
	}))
	m.Observe(func(from, to State) {
		observed = append(observed, string(to))
	})

	require.NoError(t, m.Transition("on"))
	require.NoError(t, m.Transition("off"))
	assert.Equal(t, []string{"off->on"}, entered)
	assert.Equal(t, []string{"on", "off"}, observed)
}

func TestTransitionAfter(t *testing.T) {
	s := &fakeScheduler{}
	m := newLight(s)

	require.NoError(t, m.TransitionAfter("on", time.Second))
	to, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, State("on"), to)
	assert.Equal(t, State("off"), m.State())

	s.fireAll()
	assert.Equal(t, State("on"), m.State())
	_, ok = m.Pending()
	assert.False(t, ok)
}

func TestTransitionAfterReplacesPending(t *testing.T) {
	s := &fakeScheduler{}
	m := newLight(s)
	require.NoError(t, m.Transition("on"))

	require.NoError(t, m.TransitionAfter("broken", time.Second))
	require.NoError(t, m.TransitionAfter("off", time.Second))
	require.Len(t, s.jobs, 2)
	assert.True(t, s.jobs[0].cancelled)

	s.fireAll()
	assert.Equal(t, State("off"), m.State())
}

func TestImmediateTransitionCancelsPending(t *testing.T) {
	s := &fakeScheduler{}
	m := newLight(s)

	require.NoError(t, m.TransitionAfter("on", time.Second))
	require.NoError(t, m.Transition("on"))
	require.NoError(t, m.Transition("off"))
	s.fireAll()

	assert.Equal(t, State("off"), m.State())
}

func TestTransitionAfterValidates(t *testing.T) {
	m := newLight(&fakeScheduler{})

	assert.ErrorIs(t, m.TransitionAfter("missing", time.Second), ErrUnknownState)
	var terr *TransitionError
	assert.ErrorAs(t, m.TransitionAfter("broken", time.Second), &terr)

	noScheduler := New(nil, "idle")
	noScheduler.Define("busy")
	assert.Error(t, noScheduler.TransitionAfter("busy", time.Second))
}

func TestReset(t *testing.T) {
	s := &fakeScheduler{}
	m := newLight(s)
	require.NoError(t, m.Transition("on"))
	require.NoError(t, m.TransitionAfter("off", time.Second))

	m.Reset()
	assert.Equal(t, State("off"), m.State())
	assert.Empty(t, m.History())
	assert.False(t, m.Cancel())
}

// ============== 嵌入 Actor ==============

type light struct {
	machine *Machine
	flips   int
}

func (l *light) Init(ctx *actor.Context) error {
	l.machine = newLight(ctx)
	l.machine.Observe(func(State, State) { l.flips++ })
	return nil
}

func (l *light) Switch(to string) error {
	return l.machine.Transition(State(to))
}

func (l *light) SwitchAfter(to string, d time.Duration) error {
	return l.machine.TransitionAfter(State(to), d)
}

func (l *light) Current() string {
	return string(l.machine.State())
}

func (l *light) Flips() int {
	return l.flips
}

func TestMachineInActor(t *testing.T) {
	cfg := actor.DefaultSystemConfig()
	cfg.Logger = actor.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sys := actor.NewSystemWithConfig("fsm", cfg)
	defer sys.Shutdown()

	ref, err := sys.Spawn(&light{})
	require.NoError(t, err)

	_, err = ref.Call("Switch", "on")
	require.NoError(t, err)
	_, err = ref.Call("SwitchAfter", "off", 20*time.Millisecond)
	require.NoError(t, err)

	cur, err := actor.As[string](ref.Call("Current"))
	require.NoError(t, err)
	assert.Equal(t, "on", cur)

	require.Eventually(t, func() bool {
		cur, err := actor.As[string](ref.Call("Current"))
		return err == nil && cur == "off"
	}, time.Second, 5*time.Millisecond)

	flips, err := actor.As[int](ref.Call("Flips"))
	require.NoError(t, err)
	assert.Equal(t, 2, flips)

	_, err = ref.Call("Switch", "broken")
	var terr *TransitionError
	assert.ErrorAs(t, err, &terr)
}
