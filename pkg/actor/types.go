package actor

import (
	"sync/atomic"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/timer"
)

// State Actor 生命周期状态
type State string

const (
	StateStarting    State = "starting"
	StateRunning     State = "running"
	StateIdle        State = "idle"
	StateProcessing  State = "processing"
	StateTerminating State = "terminating"
	StateDead        State = "dead"
)

// Block 调用方随调用附带的回调
//
// 方法的最后一个参数声明为 Block 时会收到它；默认在调用方 Actor 上执行，
// 用 WithBlockOnReceiver 标记的方法在接收方自己的栈上执行。
type Block func(args ...any) any

// ═══════════════════════════════════════════════════════════════════════════
// 调用与响应
// ═══════════════════════════════════════════════════════════════════════════

// Call 发往 Actor 的方法调用请求，投递后不再修改
type Call struct {
	Method string
	Args   []any
	Block  Block

	kind   task.Type
	reply  responder
	token  *waitToken
	sender *Actor
	// run 非空时替代方法表分发（生命周期钩子）
	run func(ctx *Context) (any, error)

	answered atomic.Bool
}

// Kind 日志中的消息描述
func (c *Call) Kind() string {
	return "call:" + c.Method
}

// respond 只有第一次生效
func (c *Call) respond(value any, err error) {
	if !c.answered.CompareAndSwap(false, true) || c.reply == nil {
		return
	}
	c.reply.deliver(&Response{Call: c, Value: value, Err: err})
}

// Cleanup 邮箱关闭时仍未处理的调用以 ErrDeadActor 应答
func (c *Call) Cleanup() {
	c.respond(nil, ErrDeadActor)
}

// Response 调用的应答；Err 非空表示失败
type Response struct {
	Call  *Call
	Value any
	Err   error
}

// Kind 日志中的消息描述
func (r *Response) Kind() string {
	return "response:" + r.Call.Method
}

func (*Response) systemEvent() {}

// responder 接收应答的一方：调用方 Actor 的邮箱或 Future
type responder interface {
	deliver(resp *Response)
}

// actorReply 把应答作为系统事件投递到调用方邮箱
type actorReply struct {
	actor *Actor
}

func (r actorReply) deliver(resp *Response) {
	_ = r.actor.mailbox.SendSystemEvent(resp)
}

// ═══════════════════════════════════════════════════════════════════════════
// 系统事件
// ═══════════════════════════════════════════════════════════════════════════

// systemMessage 运行时内部事件，不会交给用户的 Receive
type systemMessage interface {
	systemEvent()
}

// ExitEvent 链接或监视的 Actor 退出
//
// Reason 为 nil 表示正常结束；Monitor 为 true 表示来自单向监视。
type ExitEvent struct {
	Actor   *Ref
	Reason  error
	Monitor bool
}

// Kind 日志中的消息描述
func (e *ExitEvent) Kind() string {
	return "exit:" + e.Actor.String()
}

func (*ExitEvent) systemEvent() {}

type terminationRequest struct{}

func (*terminationRequest) Kind() string { return "terminate" }
func (*terminationRequest) systemEvent() {}

// namingRequest 设置 Actor 的名称；unset 非空时仅在当前名称等于 unset 时清除
type namingRequest struct {
	name  string
	unset string
}

func (*namingRequest) Kind() string { return "naming" }
func (*namingRequest) systemEvent() {}

// resumeRequest 从其他 goroutine 恢复一个已认领的等待
type resumeRequest struct {
	token *waitToken
	value any
	err   error
}

func (*resumeRequest) Kind() string { return "resume" }
func (*resumeRequest) systemEvent() {}

// blockCall 请求调用方 Actor 执行随调用附带的回调
type blockCall struct {
	block Block
	args  []any
	done  func(value any)
}

func (*blockCall) Kind() string { return "block" }
func (*blockCall) systemEvent() {}

// Cleanup 调用方已退出时以 nil 结束等待
func (b *blockCall) Cleanup() { b.done(nil) }

// ═══════════════════════════════════════════════════════════════════════════
// 等待令牌
// ═══════════════════════════════════════════════════════════════════════════

// waitToken 一次挂起等待；超时、应答、信号或 I/O 中只有先认领者能恢复它
type waitToken struct {
	actor   *Actor
	task    *task.Task
	timer   *timer.Timer
	claimed atomic.Bool
}

func (w *waitToken) claim() bool {
	if !w.claimed.CompareAndSwap(false, true) {
		return false
	}
	if w.timer != nil {
		w.timer.Cancel()
	}
	return true
}

// wake 从任意 goroutine 恢复已认领的令牌
func (w *waitToken) wake(value any, err error) {
	_ = w.actor.mailbox.SendSystemEvent(&resumeRequest{token: w, value: value, err: err})
}

// receiver 一个等待普通消息的 Task
type receiver struct {
	match func(any) bool
	token *waitToken
}
