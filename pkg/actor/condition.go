package actor

import (
	"errors"
	"sync"
	"time"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
)

// ErrNotOwner 在非所属 Actor 中等待条件变量
var ErrNotOwner = errors.New("condition belongs to another actor")

// Condition 基于 Task 挂起的条件变量
//
// 所属 Actor 的 Task 等待时只挂起该 Task，独占模式下直接阻塞调用方 goroutine。
// 不属于任何 Actor 的条件变量可以在 Actor 之外（ctx 为 nil）阻塞等待；
// Actor 创建的条件变量只能在该 Actor 内等待。Signal 与 Broadcast 可以在任意 goroutine 中调用。
type Condition struct {
	owner *Actor

	mu      sync.Mutex
	waiters []*condWaiter
}

type condWaiter struct {
	token *waitToken
	// ch 非空表示阻塞等待的 goroutine
	ch chan any
}

// NewCondition 创建不属于任何 Actor 的条件变量
func NewCondition() *Condition {
	return &Condition{}
}

func newCondition(owner *Actor) *Condition {
	return &Condition{owner: owner}
}

// Wait 等待信号，timeout <= 0 一直等待；返回 Signal 传入的值
func (cd *Condition) Wait(ctx *Context, timeout time.Duration) (any, error) {
	if ctx == nil && cd.owner != nil {
		return nil, ErrNotActor
	}
	if ctx != nil && cd.owner != nil && ctx.actor != cd.owner {
		return nil, ErrNotOwner
	}
	if ctx == nil || ctx.blocking() {
		return cd.waitBlocking(timeout)
	}
	return ctx.await(task.StatusConditionWait, timeout, "condition wait", func(tok *waitToken) error {
		cd.mu.Lock()
		cd.waiters = append(cd.waiters, &condWaiter{token: tok})
		cd.mu.Unlock()
		return nil
	})
}

func (cd *Condition) waitBlocking(timeout time.Duration) (any, error) {
	w := &condWaiter{token: &waitToken{}, ch: make(chan any, 1)}
	cd.mu.Lock()
	cd.waiters = append(cd.waiters, w)
	cd.mu.Unlock()

	if timeout <= 0 {
		return <-w.ch, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case v := <-w.ch:
		return v, nil
	case <-t.C:
		if w.token.claim() {
			cd.remove(w)
			return nil, &TimeoutError{Op: "condition wait", Timeout: timeout}
		}
		// 超时与信号同时发生时信号优先
		return <-w.ch, nil
	}
}

func (cd *Condition) remove(w *condWaiter) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	for i, other := range cd.waiters {
		if other == w {
			cd.waiters = append(cd.waiters[:i], cd.waiters[i+1:]...)
			return
		}
	}
}

func (w *condWaiter) wake(value any) {
	if w.ch != nil {
		w.ch <- value
		return
	}
	w.token.wake(value, nil)
}

// Signal 唤醒最早的一个等待者，返回是否唤醒
func (cd *Condition) Signal(value any) bool {
	cd.mu.Lock()
	var target *condWaiter
	for len(cd.waiters) > 0 {
		w := cd.waiters[0]
		cd.waiters = cd.waiters[1:]
		if w.token.claim() {
			target = w
			break
		}
	}
	cd.mu.Unlock()

	if target == nil {
		return false
	}
	target.wake(value)
	return true
}

// Broadcast 唤醒全部等待者，返回唤醒数
func (cd *Condition) Broadcast(value any) int {
	cd.mu.Lock()
	waiters := cd.waiters
	cd.waiters = nil
	cd.mu.Unlock()

	woken := 0
	for _, w := range waiters {
		if w.token.claim() {
			w.wake(value)
			woken++
		}
	}
	return woken
}

// Waiters 等待者数量（含已超时但尚未清理的）
func (cd *Condition) Waiters() int {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return len(cd.waiters)
}
