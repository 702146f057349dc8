package mailbox

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	debug []string
}

func (l *recordingLogger) Debug(msg string, _ ...any) {
	l.mu.Lock()
	l.debug = append(l.debug, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

type cleanupMessage struct {
	cleaned *atomic.Int32
}

func (c *cleanupMessage) Cleanup() { c.cleaned.Add(1) }

func TestSendReceiveOrder(t *testing.T) {
	m := New()
	require.NoError(t, m.Send("m1"))
	require.NoError(t, m.Send("m2"))

	first, err := m.Receive(0, nil)
	require.NoError(t, err)
	second, err := m.Receive(0, nil)
	require.NoError(t, err)

	assert.Equal(t, "m1", first)
	assert.Equal(t, "m2", second)
}

func TestSystemEventPriority(t *testing.T) {
	m := New()
	require.NoError(t, m.Send("x"))
	require.NoError(t, m.Send("y"))
	require.NoError(t, m.SendSystemEvent("e"))

	msg, err := m.Receive(0, nil)
	require.NoError(t, err)
	assert.Equal(t, "e", msg)

	msg, err = m.Receive(0, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", msg)
}

func TestCapacityDrop(t *testing.T) {
	logger := &recordingLogger{}
	m := New(WithMaxSize(2), WithLogger(logger))

	require.NoError(t, m.Send("first"))
	require.NoError(t, m.Send("second"))
	assert.ErrorIs(t, m.Send("third"), ErrFull)

	assert.Equal(t, []any{"first", "second"}, m.Messages())
	assert.Len(t, logger.warns, 1)

	// 系统事件不受容量限制
	require.NoError(t, m.SendSystemEvent("sys"))
	assert.Equal(t, 3, m.Len())
}

func TestSelectiveReceive(t *testing.T) {
	m := New()
	for _, v := range []int{1, 2, 3, 4} {
		require.NoError(t, m.Send(v))
	}

	msg, err := m.Receive(0, func(v any) bool { return v.(int)%2 == 0 })
	require.NoError(t, err)
	assert.Equal(t, 2, msg)
	assert.Equal(t, []any{1, 3, 4}, m.Messages())
}

func TestReceiveTimeout(t *testing.T) {
	m := New()
	require.NoError(t, m.Send("ignored"))

	timeout := 50 * time.Millisecond
	start := time.Now()
	_, err := m.Receive(timeout, func(any) bool { return false })

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), timeout)
}

func TestReceiveWakesOnSend(t *testing.T) {
	m := New()
	done := make(chan any, 1)
	go func() {
		msg, err := m.Receive(-1, nil)
		if err == nil {
			done <- msg
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Send("hello"))

	select {
	case msg := <-done:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("receiver was not woken")
	}
}

func TestShutdown(t *testing.T) {
	logger := &recordingLogger{}
	m := New(WithLogger(logger))
	cleaned := &atomic.Int32{}
	require.NoError(t, m.Send(&cleanupMessage{cleaned: cleaned}))
	require.NoError(t, m.SendSystemEvent(&cleanupMessage{cleaned: cleaned}))

	errCh := make(chan error, 1)
	blocked := New()
	go func() {
		_, err := blocked.Receive(-1, nil)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	blocked.Shutdown()
	assert.ErrorIs(t, <-errCh, ErrShutdown)

	m.Shutdown()
	m.Shutdown()
	assert.Equal(t, int32(2), cleaned.Load())
	assert.False(t, m.Alive())
	assert.Equal(t, 0, m.Len())

	assert.ErrorIs(t, m.Send("late"), ErrDead)
	assert.ErrorIs(t, m.SendSystemEvent("late"), ErrDead)
	_, err := m.Receive(0, nil)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.NotEmpty(t, logger.debug)
}

func TestAddress(t *testing.T) {
	assert.NotEqual(t, New().Address(), New().Address())
	assert.Equal(t, "fixed", New(WithAddress("fixed")).Address())
}

func TestConcurrentSenders(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_ = m.Send(v)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Len())
}
