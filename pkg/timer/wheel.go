// Package timer 提供由 Actor 循环轮询的定时器集合
//
// Wheel 不启动任何 goroutine：调用方用 [Wheel.WaitInterval] 得到下一次到期前的等待时长，
// 醒来后调用 [Wheel.Fire] 执行所有到期回调。回调在调用 Fire 的 goroutine 中执行，
// 因此对 Actor 而言回调总是在自己的循环上运行。
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Clock 时间来源
type Clock func() time.Time

// Timer 一个已登记的定时器
type Timer struct {
	wheel    *Wheel
	interval time.Duration
	fn       func()
	at       time.Time
	// recurring 为 true 时每次触发后按间隔重新登记
	recurring bool
	// index 在堆中的下标，-1 表示不在堆中
	index int
}

// Cancel 取消尚未触发的定时器；返回定时器此前是否处于登记状态
func (t *Timer) Cancel() bool {
	w := t.wheel
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&w.timers, t.index)
	return true
}

// Reset 从现在起重新计时；已触发或已取消的一次性定时器也会重新登记
func (t *Timer) Reset() {
	w := t.wheel
	w.mu.Lock()
	defer w.mu.Unlock()
	t.at = w.now().Add(t.interval)
	if t.index >= 0 {
		heap.Fix(&w.timers, t.index)
		return
	}
	heap.Push(&w.timers, t)
}

// Interval 返回定时器间隔
func (t *Timer) Interval() time.Duration {
	return t.interval
}

// Recurring 是否为周期定时器
func (t *Timer) Recurring() bool {
	return t.recurring
}

// Wheel 按到期时间排序的定时器集合，并发安全
type Wheel struct {
	mu     sync.Mutex
	timers timerHeap
	now    Clock
}

// Option Wheel 选项
type Option func(*Wheel)

// WithClock 替换时间来源（测试用）
func WithClock(c Clock) Option {
	return func(w *Wheel) {
		if c != nil {
			w.now = c
		}
	}
}

// New 创建定时器集合
func New(opts ...Option) *Wheel {
	w := &Wheel{now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// After 登记一次性定时器
func (w *Wheel) After(d time.Duration, fn func()) *Timer {
	return w.add(d, fn, false)
}

// Every 登记周期定时器
func (w *Wheel) Every(d time.Duration, fn func()) *Timer {
	return w.add(d, fn, true)
}

func (w *Wheel) add(d time.Duration, fn func(), recurring bool) *Timer {
	if d < 0 {
		d = 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	t := &Timer{
		wheel:     w,
		interval:  d,
		fn:        fn,
		at:        w.now().Add(d),
		recurring: recurring,
		index:     -1,
	}
	heap.Push(&w.timers, t)
	return t
}

// WaitInterval 返回距离最早到期定时器的时长；没有定时器时 ok 为 false
func (w *Wheel) WaitInterval() (d time.Duration, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.timers) == 0 {
		return 0, false
	}
	d = w.timers[0].at.Sub(w.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Fire 执行所有已到期的定时器，返回执行的个数
//
// 回调在锁外执行，回调中可以登记或取消定时器。
// 周期定时器按原定节拍重新登记，若已落后则从现在起计时。
func (w *Wheel) Fire() int {
	w.mu.Lock()
	now := w.now()
	var due []*Timer
	for len(w.timers) > 0 && !w.timers[0].at.After(now) {
		t := heap.Pop(&w.timers).(*Timer)
		due = append(due, t)
		if t.recurring {
			next := t.at.Add(t.interval)
			if !next.After(now) {
				next = now.Add(t.interval)
			}
			t.at = next
			heap.Push(&w.timers, t)
		}
	}
	w.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Len 登记中的定时器数
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Clear 取消全部定时器
func (w *Wheel) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.index = -1
	}
	w.timers = nil
}

// ═══════════════════════════════════════════════════════════════════════════
// timerHeap
// ═══════════════════════════════════════════════════════════════════════════

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
