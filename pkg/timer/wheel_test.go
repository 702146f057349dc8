package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFake() (*Wheel, *fakeClock) {
	c := &fakeClock{now: time.Unix(1700000000, 0)}
	return New(WithClock(c.Now)), c
}

func TestAfterFiresOnce(t *testing.T) {
	w, clock := newFake()
	fired := 0
	w.After(time.Second, func() { fired++ })

	d, ok := w.WaitInterval()
	require.True(t, ok)
	assert.Equal(t, time.Second, d)

	assert.Equal(t, 0, w.Fire())
	clock.Advance(time.Second)
	assert.Equal(t, 1, w.Fire())
	assert.Equal(t, 0, w.Fire())
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, w.Len())

	_, ok = w.WaitInterval()
	assert.False(t, ok)
}

func TestFireOrder(t *testing.T) {
	w, clock := newFake()
	var order []string
	w.After(3*time.Second, func() { order = append(order, "c") })
	w.After(time.Second, func() { order = append(order, "a") })
	w.After(2*time.Second, func() { order = append(order, "b") })

	clock.Advance(5 * time.Second)
	assert.Equal(t, 3, w.Fire())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestEvery(t *testing.T) {
	w, clock := newFake()
	fired := 0
	tm := w.Every(time.Second, func() { fired++ })
	assert.True(t, tm.Recurring())

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		w.Fire()
	}
	assert.Equal(t, 3, fired)
	assert.Equal(t, 1, w.Len())

	// 落后多个间隔时只补触发一次，从现在起重新计时
	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, w.Fire())
	d, _ := w.WaitInterval()
	assert.Equal(t, time.Second, d)

	assert.True(t, tm.Cancel())
	assert.False(t, tm.Cancel())
	assert.Equal(t, 0, w.Len())
}

func TestCancelBeforeFire(t *testing.T) {
	w, clock := newFake()
	fired := false
	tm := w.After(time.Second, func() { fired = true })
	assert.True(t, tm.Cancel())

	clock.Advance(time.Minute)
	assert.Equal(t, 0, w.Fire())
	assert.False(t, fired)
}

func TestResetPushesDeadline(t *testing.T) {
	w, clock := newFake()
	fired := 0
	tm := w.After(2*time.Second, func() { fired++ })

	clock.Advance(time.Second)
	tm.Reset()
	clock.Advance(time.Second)
	assert.Equal(t, 0, w.Fire())
	clock.Advance(time.Second)
	assert.Equal(t, 1, w.Fire())

	// 已触发的一次性定时器 Reset 后重新登记
	tm.Reset()
	assert.Equal(t, 1, w.Len())
}

func TestCallbackMayScheduleAndCancel(t *testing.T) {
	w, clock := newFake()
	var second *Timer
	fired := 0
	w.After(time.Second, func() {
		fired++
		second = w.After(time.Second, func() { fired++ })
	})
	clock.Advance(time.Second)
	w.Fire()
	require.NotNil(t, second)
	assert.Equal(t, 1, w.Len())

	tm := w.Every(time.Second, func() {})
	tm2 := w.After(time.Second, func() { tm.Cancel() })
	_ = tm2
	clock.Advance(time.Second)
	w.Fire()
	assert.Equal(t, 2, fired)
	assert.Equal(t, 0, w.Len())
}

func TestClear(t *testing.T) {
	w, _ := newFake()
	tm := w.After(time.Second, func() {})
	w.Every(time.Second, func() {})
	w.Clear()
	assert.Equal(t, 0, w.Len())
	assert.False(t, tm.Cancel())
}

func TestRealClock(t *testing.T) {
	w := New()
	w.After(10*time.Millisecond, func() {})
	d, ok := w.WaitInterval()
	require.True(t, ok)
	assert.LessOrEqual(t, d, 10*time.Millisecond)
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, 1, w.Fire())
}
