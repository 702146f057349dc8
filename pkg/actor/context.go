package actor

import (
	"errors"
	"time"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/mailbox"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/timer"
)

// Context 一个 Task 在执行主体代码时的上下文
//
// 方法的第一个参数声明为 *Context 时由运行时注入。Context 只能在所属 Task 中使用。
//
// 阻塞操作（Call、Sleep、Wait、Receive、Await）在普通模式下只挂起当前 Task，
// Actor 继续处理其他消息；独占模式下直接阻塞，其他 Task 在此期间不会被调度。
type Context struct {
	actor     *Actor
	task      *task.Task
	call      *Call
	exclusive int
}

// Self 返回自身引用
func (c *Context) Self() *Ref {
	return c.actor.ref
}

// Name 返回注册名
func (c *Context) Name() string {
	return c.actor.Name()
}

// System 返回所属系统
func (c *Context) System() *System {
	return c.actor.system
}

// Logger 返回日志
func (c *Context) Logger() Logger {
	return c.actor.logger
}

// Method 返回当前处理的调用方法名，非调用 Task 返回空字符串
func (c *Context) Method() string {
	if c.call == nil {
		return ""
	}
	return c.call.Method
}

// Exclusive 以独占模式执行 fn
func (c *Context) Exclusive(fn func()) {
	c.exclusive++
	defer func() { c.exclusive-- }()
	fn()
}

// InExclusive 当前是否处于独占模式
func (c *Context) InExclusive() bool {
	return c.blocking()
}

func (c *Context) blocking() bool {
	return c.task == nil || c.exclusive > 0 || c.actor.props.Exclusive
}

// await 挂起当前 Task 直到令牌被认领并恢复
//
// register 把令牌交给唤醒方；返回错误时不挂起。timeout > 0 时到期以 *TimeoutError 恢复。
func (c *Context) await(status task.Status, timeout time.Duration, op string, register func(tok *waitToken) error) (any, error) {
	tok := &waitToken{actor: c.actor, task: c.task}
	if timeout > 0 {
		a := c.actor
		tok.timer = a.timers.After(timeout, func() {
			if tok.claim() {
				a.resume(tok, nil, &TimeoutError{Op: op, Timeout: timeout})
			}
		})
	}
	if register != nil {
		if err := register(tok); err != nil {
			tok.claim()
			return nil, err
		}
	}
	return c.task.Suspend(status)
}

// ═══════════════════════════════════════════════════════════════════════════
// 调用
// ═══════════════════════════════════════════════════════════════════════════

// Call 同步调用，使用系统默认超时
func (c *Context) Call(target Proxy, method string, args ...any) (any, error) {
	return SyncProxy{ref: target.ActorRef(), caller: c, timeout: c.actor.system.config.CallTimeout}.Invoke(method, args...)
}

// CallTimeout 带超时的同步调用
func (c *Context) CallTimeout(target Proxy, timeout time.Duration, method string, args ...any) (any, error) {
	return SyncProxy{ref: target.ActorRef(), caller: c, timeout: timeout}.Invoke(method, args...)
}

// CallWithBlock 附带回调的同步调用
func (c *Context) CallWithBlock(target Proxy, block Block, method string, args ...any) (any, error) {
	return BlockProxy{ref: target.ActorRef(), caller: c, block: block, timeout: c.actor.system.config.CallTimeout}.Invoke(method, args...)
}

// Async 异步调用
func (c *Context) Async(target Proxy, method string, args ...any) error {
	_, err := AsyncProxy{ref: target.ActorRef(), caller: c}.Invoke(method, args...)
	return err
}

// Future 发起调用并立即返回 Future
func (c *Context) Future(target Proxy, method string, args ...any) (*Future, error) {
	return target.ActorRef().invokeFuture(c, nil, method, args)
}

// Await 等待 Future 的结果，只挂起当前 Task
func (c *Context) Await(f *Future, timeout time.Duration) (any, error) {
	if f.Ready() {
		return f.result()
	}
	if c.blocking() {
		return f.Value(timeout)
	}
	_, err := c.await(task.StatusFutureWait, timeout, "future "+f.method, func(tok *waitToken) error {
		f.onReady(func() {
			if tok.claim() {
				tok.wake(nil, nil)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f.result()
}

// Send 向目标投递普通消息
func (c *Context) Send(target Proxy, msg any) error {
	return target.ActorRef().Send(msg)
}

// yieldBlock 把回调交给调用方 Actor 执行，等待结果
func (c *Context) yieldBlock(owner *Actor, block Block, args []any) any {
	if c.blocking() {
		ch := make(chan any, 1)
		err := owner.mailbox.SendSystemEvent(&blockCall{block: block, args: args, done: func(v any) { ch <- v }})
		if err != nil {
			return block(args...)
		}
		return <-ch
	}

	value, err := c.await(task.StatusBlockWait, 0, "block", func(tok *waitToken) error {
		return owner.mailbox.SendSystemEvent(&blockCall{block: block, args: args, done: func(v any) {
			if tok.claim() {
				tok.wake(v, nil)
			}
		}})
	})
	if err != nil {
		return block(args...)
	}
	return value
}

// ═══════════════════════════════════════════════════════════════════════════
// 接收与等待
// ═══════════════════════════════════════════════════════════════════════════

// Receive 等待一条满足 match 的普通消息；match 为 nil 接收任意消息，timeout <= 0 一直等待
//
// 普通模式下到达时没有接收者在等待的消息会被丢弃。
func (c *Context) Receive(timeout time.Duration, match func(msg any) bool) (any, error) {
	if c == nil {
		return nil, ErrNotActor
	}
	if c.blocking() {
		wait := timeout
		if wait <= 0 {
			wait = -1
		}
		msg, err := c.actor.mailbox.Receive(wait, userMatcher(match))
		switch {
		case errors.Is(err, mailbox.ErrTimeout):
			return nil, &TimeoutError{Op: "receive", Timeout: timeout}
		case err != nil:
			return nil, ErrDeadActor
		}
		return msg, nil
	}
	return c.await(task.StatusReceiving, timeout, "receive", func(tok *waitToken) error {
		c.actor.receivers = append(c.actor.receivers, &receiver{match: match, token: tok})
		return nil
	})
}

// userMatcher 独占模式直接读邮箱时跳过调用与系统事件
func userMatcher(match func(any) bool) mailbox.Matcher {
	return func(msg any) bool {
		switch msg.(type) {
		case systemMessage, *Call:
			return false
		}
		return match == nil || match(msg)
	}
}

// Sleep 挂起当前 Task d 时长
func (c *Context) Sleep(d time.Duration) {
	if c.blocking() {
		time.Sleep(d)
		return
	}
	if d <= 0 {
		d = time.Nanosecond
	}
	_, _ = c.await(task.StatusSleeping, d, "sleep", nil)
}

// Wait 等待命名信号，返回信号携带的值
func (c *Context) Wait(name string) (any, error) {
	return c.WaitTimeout(name, 0)
}

// WaitTimeout 带超时等待命名信号
func (c *Context) WaitTimeout(name string, timeout time.Duration) (any, error) {
	if c == nil {
		return nil, ErrNotActor
	}
	if c.blocking() {
		return nil, ErrExclusive
	}
	return c.await(task.StatusConditionWait, timeout, "wait "+name, func(tok *waitToken) error {
		c.actor.signals[name] = append(c.actor.signals[name], tok)
		return nil
	})
}

// Signal 唤醒一个等待 name 的 Task；返回是否有 Task 被唤醒
func (c *Context) Signal(name string, value any) bool {
	waiters := c.actor.signals[name]
	defer func() {
		if len(waiters) == 0 {
			delete(c.actor.signals, name)
		} else {
			c.actor.signals[name] = waiters
		}
	}()
	for len(waiters) > 0 {
		tok := waiters[0]
		waiters = waiters[1:]
		if tok.claim() {
			tok.wake(value, nil)
			return true
		}
	}
	return false
}

// Broadcast 唤醒所有等待 name 的 Task，返回唤醒数
func (c *Context) Broadcast(name string, value any) int {
	woken := 0
	for _, tok := range c.actor.signals[name] {
		if tok.claim() {
			tok.wake(value, nil)
			woken++
		}
	}
	delete(c.actor.signals, name)
	return woken
}

// NewCondition 创建属于本 Actor 的条件变量
func (c *Context) NewCondition() *Condition {
	return newCondition(c.actor)
}

// ═══════════════════════════════════════════════════════════════════════════
// 定时器
// ═══════════════════════════════════════════════════════════════════════════

// After d 之后在新 Task 中执行 fn
func (c *Context) After(d time.Duration, fn func(ctx *Context)) *timer.Timer {
	a := c.actor
	return a.timers.After(d, func() {
		a.startTask(task.TypeTimer, false, nil, fn)
	})
}

// Every 每隔 d 在新 Task 中执行 fn
func (c *Context) Every(d time.Duration, fn func(ctx *Context)) *timer.Timer {
	a := c.actor
	return a.timers.Every(d, func() {
		a.startTask(task.TypeTimer, false, nil, fn)
	})
}

// AfterFunc d 之后执行 fn，返回取消函数
func (c *Context) AfterFunc(d time.Duration, fn func()) (cancel func() bool) {
	return c.After(d, func(*Context) { fn() }).Cancel
}

// EveryFunc 每隔 d 执行 fn，返回取消函数
func (c *Context) EveryFunc(d time.Duration, fn func()) (cancel func() bool) {
	return c.Every(d, func(*Context) { fn() }).Cancel
}

// ═══════════════════════════════════════════════════════════════════════════
// 链接与监视
// ═══════════════════════════════════════════════════════════════════════════

// Link 与 other 建立双向链接
func (c *Context) Link(other Proxy) error {
	return link(c.actor, other.ActorRef().actor)
}

// Unlink 解除双向链接
func (c *Context) Unlink(other Proxy) {
	unlink(c.actor, other.ActorRef().actor)
}

// Monitor 单向监视 other
func (c *Context) Monitor(other Proxy) error {
	return monitor(c.actor, other.ActorRef().actor)
}

// Unmonitor 解除监视
func (c *Context) Unmonitor(other Proxy) {
	unmonitor(c.actor, other.ActorRef().actor)
}

// LinkedTo 是否与 other 链接
func (c *Context) LinkedTo(other Proxy) bool {
	return c.actor.links.has(kindLink, other.ActorRef())
}

// Monitoring 是否监视 other
func (c *Context) Monitoring(other Proxy) bool {
	return c.actor.links.has(kindMonitor, other.ActorRef())
}

// Links 当前的双向链接
func (c *Context) Links() []*Ref {
	return c.actor.links.list(kindLink)
}

// ═══════════════════════════════════════════════════════════════════════════
// 生命周期
// ═══════════════════════════════════════════════════════════════════════════

// Spawn 创建新 Actor
func (c *Context) Spawn(subject any, opts ...Option) (*Ref, error) {
	return c.actor.system.spawn(c, subject, nil, opts)
}

// SpawnLink 创建新 Actor 并与自身链接
func (c *Context) SpawnLink(subject any, opts ...Option) (*Ref, error) {
	return c.actor.system.spawn(c, subject, c.actor, opts)
}

// Terminate 让自身在当前 Task 让出后退出
func (c *Context) Terminate() {
	c.actor.running.Store(false)
}

// WaitReadable 挂起直到 io 可读
func (c *Context) WaitReadable(io any) error {
	return c.waitIO(io, Readable)
}

// WaitWritable 挂起直到 io 可写
func (c *Context) WaitWritable(io any) error {
	return c.waitIO(io, Writable)
}

func (c *Context) waitIO(io any, kind IOKind) error {
	r := c.actor.system.config.Reactor
	if r == nil {
		return ErrNoReactor
	}
	if c.blocking() {
		ch := make(chan error, 1)
		if err := r.Register(io, kind, func(err error) { ch <- err }); err != nil {
			return err
		}
		return <-ch
	}
	_, err := c.await(task.StatusIOWait, 0, "io wait", func(tok *waitToken) error {
		return r.Register(io, kind, func(err error) {
			if tok.claim() {
				tok.wake(nil, err)
			}
		})
	})
	return err
}

// Tasks 本 Actor 当前的 Task
func (c *Context) Tasks() []task.Info {
	return c.actor.taskInfos()
}
