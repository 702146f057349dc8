package actor

import (
	"fmt"
	"time"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
)

// Ref Actor 的引用，身份即邮箱地址
//
// Ref 可以在任意 goroutine 中使用。在其他 Actor 的 Task 中请使用 Context 的调用方法
// （或 Ref.Sync().From(ctx)），否则同步调用会阻塞调用方整个 Actor。
type Ref struct {
	actor   *Actor
	address string
}

// ActorRef 实现 Proxy
func (r *Ref) ActorRef() *Ref {
	return r
}

// Address 返回邮箱地址
func (r *Ref) Address() string {
	return r.address
}

// Name 返回注册名
func (r *Ref) Name() string {
	return r.actor.Name()
}

// String 返回引用的字符串表示
func (r *Ref) String() string {
	if r == nil {
		return "<nil>"
	}
	short := r.address
	if len(short) > 8 {
		short = short[:8]
	}
	if name := r.actor.Name(); name != "" {
		return fmt.Sprintf("%s(%s)", name, short)
	}
	return fmt.Sprintf("actor(%s)", short)
}

// Alive 邮箱是否仍可投递
func (r *Ref) Alive() bool {
	return r.actor.mailbox.Alive()
}

// State 返回生命周期状态
func (r *Ref) State() State {
	return r.actor.State()
}

// ExitReason 崩溃原因；正常结束或仍在运行时为 nil
func (r *Ref) ExitReason() error {
	return r.actor.reason()
}

// Methods 可调用的方法名
func (r *Ref) Methods() []string {
	return r.actor.methods.names()
}

// Responds 是否有 method 方法
func (r *Ref) Responds(method string) bool {
	_, ok := r.actor.methods[method]
	return ok
}

// ═══════════════════════════════════════════════════════════════════════════
// 调用
// ═══════════════════════════════════════════════════════════════════════════

// Call 同步调用，阻塞调用方 goroutine，使用系统默认超时
func (r *Ref) Call(method string, args ...any) (any, error) {
	return r.Sync().Invoke(method, args...)
}

// CallTimeout 带超时的同步调用
func (r *Ref) CallTimeout(timeout time.Duration, method string, args ...any) (any, error) {
	return SyncProxy{ref: r, timeout: timeout}.Invoke(method, args...)
}

// CallWithBlock 附带回调的同步调用
func (r *Ref) CallWithBlock(block Block, method string, args ...any) (any, error) {
	return r.WithBlock(block).Invoke(method, args...)
}

// Async 异步调用；只返回参数校验错误，投递给已退出的 Actor 时静默丢弃
func (r *Ref) Async(method string, args ...any) error {
	_, err := r.AsyncProxy().Invoke(method, args...)
	return err
}

// Future 发起调用并立即返回 Future
func (r *Ref) Future(method string, args ...any) (*Future, error) {
	return r.invokeFuture(nil, nil, method, args)
}

// Send 投递普通消息，由 Context.Receive 接收
func (r *Ref) Send(msg any) error {
	return deadError(r.actor.mailbox.Send(msg))
}

// Sync 同步调用代理
func (r *Ref) Sync() SyncProxy {
	return SyncProxy{ref: r, timeout: r.actor.system.config.CallTimeout}
}

// AsyncProxy 异步调用代理
func (r *Ref) AsyncProxy() AsyncProxy {
	return AsyncProxy{ref: r}
}

// FutureProxy Future 调用代理
func (r *Ref) FutureProxy() FutureProxy {
	return FutureProxy{ref: r}
}

// WithBlock 附带回调的同步调用代理
func (r *Ref) WithBlock(block Block) BlockProxy {
	return BlockProxy{ref: r, block: block, timeout: r.actor.system.config.CallTimeout}
}

func (r *Ref) newCall(caller *Context, block Block, method string, args []any) (*Call, error) {
	if _, err := r.actor.methods.lookup(method, args); err != nil {
		return nil, err
	}
	c := &Call{Method: method, Args: args, Block: block, kind: task.TypeCall}
	if caller != nil {
		c.sender = caller.actor
	}
	return c, nil
}

func (r *Ref) invokeSync(caller *Context, block Block, timeout time.Duration, method string, args []any) (any, error) {
	c, err := r.newCall(caller, block, method, args)
	if err != nil {
		return nil, err
	}

	if caller != nil && !caller.blocking() {
		v, err := caller.await(task.StatusCallWait, timeout, "call "+method, func(tok *waitToken) error {
			c.token = tok
			c.reply = actorReply{actor: caller.actor}
			return deadError(r.actor.mailbox.Send(c))
		})
		if err != nil {
			return nil, err
		}
		return unpackResponse(r.String(), v.(*Response))
	}

	f := newFuture(r.String(), method)
	c.reply = f
	if err := r.actor.mailbox.Send(c); err != nil {
		return nil, deadError(err)
	}
	if timeout > 0 {
		select {
		case <-f.done:
		case <-time.After(timeout):
			return nil, &TimeoutError{Op: "call " + method, Timeout: timeout}
		}
	} else {
		<-f.done
	}
	return f.result()
}

func (r *Ref) invokeAsync(caller *Context, method string, args []any) error {
	c, err := r.newCall(caller, nil, method, args)
	if err != nil {
		return err
	}
	if err := r.actor.mailbox.Send(c); err != nil {
		r.actor.logger.Debug("async call dropped", "actor", r.String(), "method", method, "error", err)
	}
	return nil
}

func (r *Ref) invokeFuture(caller *Context, block Block, method string, args []any) (*Future, error) {
	c, err := r.newCall(caller, block, method, args)
	if err != nil {
		return nil, err
	}
	f := newFuture(r.String(), method)
	c.reply = f
	if err := r.actor.mailbox.Send(c); err != nil {
		return nil, deadError(err)
	}
	return f, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 生命周期
// ═══════════════════════════════════════════════════════════════════════════

// Terminate 请求 Actor 退出并等待其结束；已退出时返回 ErrDeadActor
//
// 不要在目标自身的 Task 中调用，改用 Context.Terminate。
func (r *Ref) Terminate() error {
	if err := r.TerminateAsync(); err != nil {
		return err
	}
	<-r.actor.done
	return nil
}

// TerminateAsync 请求 Actor 退出，不等待
func (r *Ref) TerminateAsync() error {
	if !r.Alive() {
		return ErrDeadActor
	}
	return deadError(r.actor.mailbox.SendSystemEvent(&terminationRequest{}))
}

// Kill 强制结束：关闭邮箱并跳过终结方法，链接方收到原因为 ErrKilled 的退出事件
func (r *Ref) Kill() {
	a := r.actor
	a.mu.Lock()
	if a.exitReason == nil && a.state != StateTerminating && a.state != StateDead {
		a.exitReason = ErrKilled
	}
	a.mu.Unlock()
	a.killed.Store(true)
	a.running.Store(false)
	a.mailbox.Shutdown()
}

// Wait 等待 Actor 结束，timeout <= 0 一直等待；返回是否已结束
func (r *Ref) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-r.actor.done
		return true
	}
	select {
	case <-r.actor.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done Actor 结束时关闭的通道
func (r *Ref) Done() <-chan struct{} {
	return r.actor.done
}

// Link 在 r 与 other 之间建立双向链接
func (r *Ref) Link(other Proxy) error {
	return link(r.actor, other.ActorRef().actor)
}

// Unlink 解除双向链接
func (r *Ref) Unlink(other Proxy) {
	unlink(r.actor, other.ActorRef().actor)
}

// Monitor 让 r 单向监视 other
func (r *Ref) Monitor(other Proxy) error {
	return monitor(r.actor, other.ActorRef().actor)
}

// Unmonitor 解除监视
func (r *Ref) Unmonitor(other Proxy) {
	unmonitor(r.actor, other.ActorRef().actor)
}

// LinkedTo 是否与 other 链接
func (r *Ref) LinkedTo(other Proxy) bool {
	return r.actor.links.has(kindLink, other.ActorRef())
}

// Monitoring 是否监视 other
func (r *Ref) Monitoring(other Proxy) bool {
	return r.actor.links.has(kindMonitor, other.ActorRef())
}

// Stats 统计快照
func (r *Ref) Stats() *ActorStats {
	return r.actor.stats.Stats()
}

// Tasks 诊断用的 Task 列表
func (r *Ref) Tasks() []task.Info {
	return r.actor.taskInfos()
}

// MailboxLen 邮箱中排队的消息数
func (r *Ref) MailboxLen() int {
	return r.actor.mailbox.Len()
}

// ═══════════════════════════════════════════════════════════════════════════
// 代理
// ═══════════════════════════════════════════════════════════════════════════

// Caller 按方法名调用的代理
type Caller interface {
	Invoke(method string, args ...any) (any, error)
}

var (
	_ Caller = SyncProxy{}
	_ Caller = AsyncProxy{}
	_ Caller = FutureProxy{}
	_ Caller = BlockProxy{}
)

// SyncProxy 同步调用：挂起调用方 Task（Actor 外阻塞 goroutine）直到应答
type SyncProxy struct {
	ref     *Ref
	caller  *Context
	timeout time.Duration
}

// From 以 ctx 作为调用方
func (p SyncProxy) From(ctx *Context) SyncProxy {
	p.caller = ctx
	return p
}

// Timeout 设置超时，<= 0 表示不超时
func (p SyncProxy) Timeout(d time.Duration) SyncProxy {
	p.timeout = d
	return p
}

// ActorRef 实现 Proxy
func (p SyncProxy) ActorRef() *Ref {
	return p.ref
}

// Invoke 执行调用
func (p SyncProxy) Invoke(method string, args ...any) (any, error) {
	return p.ref.invokeSync(p.caller, nil, p.timeout, method, args)
}

// AsyncProxy 异步调用：不等待结果
type AsyncProxy struct {
	ref    *Ref
	caller *Context
}

// From 以 ctx 作为调用方
func (p AsyncProxy) From(ctx *Context) AsyncProxy {
	p.caller = ctx
	return p
}

// ActorRef 实现 Proxy
func (p AsyncProxy) ActorRef() *Ref {
	return p.ref
}

// Invoke 执行调用，返回值恒为 nil
func (p AsyncProxy) Invoke(method string, args ...any) (any, error) {
	return nil, p.ref.invokeAsync(p.caller, method, args)
}

// FutureProxy Future 调用：返回 *Future
type FutureProxy struct {
	ref    *Ref
	caller *Context
}

// From 以 ctx 作为调用方
func (p FutureProxy) From(ctx *Context) FutureProxy {
	p.caller = ctx
	return p
}

// ActorRef 实现 Proxy
func (p FutureProxy) ActorRef() *Ref {
	return p.ref
}

// Invoke 执行调用，返回值为 *Future
func (p FutureProxy) Invoke(method string, args ...any) (any, error) {
	f, err := p.ref.invokeFuture(p.caller, nil, method, args)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// BlockProxy 附带回调的同步调用
type BlockProxy struct {
	ref     *Ref
	caller  *Context
	block   Block
	timeout time.Duration
}

// From 以 ctx 作为调用方
func (p BlockProxy) From(ctx *Context) BlockProxy {
	p.caller = ctx
	return p
}

// ActorRef 实现 Proxy
func (p BlockProxy) ActorRef() *Ref {
	return p.ref
}

// Invoke 执行调用
func (p BlockProxy) Invoke(method string, args ...any) (any, error) {
	return p.ref.invokeSync(p.caller, p.block, p.timeout, method, args)
}
