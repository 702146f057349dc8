package incident

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// ============== 测试 Actor ==============

type fragile struct{}

func (f *fragile) Ping() string { return "pong" }

func (f *fragile) Boom() { panic("boom") }

func newReportedSystem(t *testing.T, opts ...Option) (*actor.System, *Reporter) {
	t.Helper()
	rep := New(opts...)
	cfg := actor.DefaultSystemConfig()
	cfg.Logger = rep
	cfg.ShutdownTimeout = 2 * time.Second
	sys := actor.NewSystemWithConfig("incident", cfg)
	t.Cleanup(func() { _ = sys.Shutdown() })
	return sys, rep
}

// ============== 记录 ==============

func TestErrorIsRecorded(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rep := New(WithClock(func() time.Time { return fixed }))

	rep.Debug("ignored", "k", 1)
	rep.Warn("ignored too")
	rep.Error("restart member failed", "actor", "worker#1", "error", errors.New("no constructor"), "attempt", 3)

	incs := rep.Incidents()
	require.Len(t, incs, 1)
	inc := incs[0]
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, fixed, inc.Time)
	assert.Equal(t, LevelError, inc.Level)
	assert.Equal(t, KindNone, inc.Kind)
	assert.Equal(t, "worker#1", inc.Actor)
	assert.Equal(t, "no constructor", inc.Error)
	assert.EqualError(t, inc.Err(), "no constructor")
	assert.Equal(t, map[string]any{"attempt": 3}, inc.Attrs)
}

func TestWarningsOptIn(t *testing.T) {
	rep := New(WithWarnings())
	rep.Warn("exit handler returned error", "error", "plain string")

	incs := rep.Incidents()
	require.Len(t, incs, 1)
	assert.Equal(t, LevelWarn, incs[0].Level)
	assert.Equal(t, "plain string", incs[0].Error)
	assert.Nil(t, incs[0].Err())
}

func TestOddArgs(t *testing.T) {
	rep := New()
	rep.Error("odd", "dangling")

	incs := rep.Incidents()
	require.Len(t, incs, 1)
	assert.Equal(t, map[string]any{"!BADKEY": "dangling"}, incs[0].Attrs)
}

func TestRingKeepsMostRecent(t *testing.T) {
	rep := New(WithCapacity(3))
	for i := range 5 {
		rep.Error(fmt.Sprintf("e%d", i))
	}

	incs := rep.Incidents()
	require.Len(t, incs, 3)
	assert.Equal(t, "e2", incs[0].Message)
	assert.Equal(t, "e4", incs[2].Message)

	s := rep.Summary()
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 5, s.Errors)
	assert.Equal(t, 2, s.Dropped)
	assert.Len(t, s.Recent, 3)

	rep.Reset()
	assert.Empty(t, rep.Incidents())
	assert.Equal(t, 0, rep.Summary().Total)
}

type recordingLogger struct {
	debug, warn, errs, crash atomic.Int32
}

func (l *recordingLogger) Debug(string, ...any)        { l.debug.Add(1) }
func (l *recordingLogger) Warn(string, ...any)         { l.warn.Add(1) }
func (l *recordingLogger) Error(string, ...any)        { l.errs.Add(1) }
func (l *recordingLogger) Crash(string, error, ...any) { l.crash.Add(1) }

func TestForwardsToNext(t *testing.T) {
	next := &recordingLogger{}
	rep := New(WithNext(next))

	rep.Debug("d")
	rep.Warn("w")
	rep.Error("e")
	rep.Crash("c", errors.New("x"))

	assert.Equal(t, int32(1), next.debug.Load())
	assert.Equal(t, int32(1), next.warn.Load())
	assert.Equal(t, int32(1), next.errs.Load())
	assert.Equal(t, int32(1), next.crash.Load())
	assert.Len(t, rep.Incidents(), 2)
}

func TestClassify(t *testing.T) {
	perr := &actor.PanicError{Value: "boom"}
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"panic", perr, KindPanic},
		{"linked", &actor.LinkedExitError{Reason: perr}, KindLinked},
		{"escalation", &actor.EscalationError{Supervisor: "s", Member: "m", Reason: perr}, KindEscalation},
		{"killed", fmt.Errorf("shutdown: %w", actor.ErrKilled), KindKilled},
		{"other", errors.New("x"), KindError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

// ============== 接入 System ==============

func TestCrashIsRecorded(t *testing.T) {
	var seen atomic.Int32
	sys, rep := newReportedSystem(t, OnIncident(func(inc Incident) {
		if inc.Level == LevelCrash {
			seen.Add(1)
		}
	}))
	ref := actor.MustSpawn(sys, &fragile{})

	_, err := ref.Call("Boom")
	var perr *actor.PanicError
	require.ErrorAs(t, err, &perr)
	require.True(t, ref.Wait(time.Second))

	require.Eventually(t, func() bool { return len(rep.ForActor(ref.String())) == 1 }, time.Second, 5*time.Millisecond)
	inc := rep.ForActor(ref.String())[0]
	assert.Equal(t, LevelCrash, inc.Level)
	assert.Equal(t, KindPanic, inc.Kind)
	assert.Equal(t, "panic: boom", inc.Error)
	assert.NotEmpty(t, inc.Stack)
	assert.Equal(t, int32(1), seen.Load())

	s := rep.Summary()
	assert.Equal(t, 1, s.Crashes)
	assert.Equal(t, 1, s.ByKind[KindPanic])
	assert.Equal(t, 1, s.ByActor[ref.String()])
}

func TestLinkedCrashIsClassified(t *testing.T) {
	sys, rep := newReportedSystem(t)
	a := actor.MustSpawn(sys, &fragile{})
	b := actor.MustSpawn(sys, &fragile{})
	require.NoError(t, a.Link(b))

	_, _ = a.Call("Boom")
	require.True(t, b.Wait(time.Second))

	require.Eventually(t, func() bool { return len(rep.ForActor(b.String())) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, KindLinked, rep.ForActor(b.String())[0].Kind)
	assert.Equal(t, KindPanic, rep.ForActor(a.String())[0].Kind)
}

func TestCleanExitIsNotAnIncident(t *testing.T) {
	sys, rep := newReportedSystem(t)
	ref := actor.MustSpawn(sys, &fragile{})

	v, err := actor.As[string](ref.Call("Ping"))
	require.NoError(t, err)
	assert.Equal(t, "pong", v)
	require.NoError(t, ref.Terminate())

	assert.Empty(t, rep.Incidents())
}
