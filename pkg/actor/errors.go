package actor

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/mailbox"
)

var (
	// ErrNotActor 在 Actor 作用域之外调用只能在 Actor 内使用的操作
	ErrNotActor = errors.New("not in actor scope")
	// ErrDeadActor 目标 Actor 的循环已退出
	ErrDeadActor = errors.New("actor is dead")
	// ErrTimeout 有界等待超时（调用、条件、接收、Future）
	ErrTimeout = errors.New("actor wait timed out")
	// ErrKilled 被 Kill 强制结束的 Actor 的退出原因
	ErrKilled = errors.New("actor killed")
	// ErrNotActorProxy 注册的对象不是 Actor 代理
	ErrNotActorProxy = errors.New("not an actor proxy")
	// ErrSystemStopped 系统已关闭
	ErrSystemStopped = errors.New("actor system is not running")
	// ErrExclusive 在独占模式下等待只能由本 Actor 唤醒的条件
	ErrExclusive = errors.New("cannot wait for signals in exclusive mode")
)

// TimeoutError 带操作描述的超时错误，errors.Is(err, ErrTimeout) 成立
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// Is 同时匹配 ErrTimeout 与 mailbox.ErrTimeout
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == mailbox.ErrTimeout
}

// AbortError 中止调用：错误交给调用方，被调用方不崩溃
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	return "call aborted: " + e.Cause.Error()
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// Abort 在方法中以 cause 中止当前调用
//
// 方法直接返回 error 效果相同；Abort 用于深层调用栈中无法逐层返回的场景。
func Abort(cause error) {
	if cause == nil {
		cause = errors.New("aborted")
	}
	panic(&AbortError{Cause: cause})
}

// PanicError Actor 代码中未捕获的 panic，携带被调用方的调用栈
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap panic 值本身是 error 时返回它
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Format %+v 输出 panic 时的调用栈
func (e *PanicError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "%s\n%s", e.Error(), e.Stack)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// CallError 同步调用在被调用方失败
//
// 调用点会用 github.com/pkg/errors 附加调用方栈，%+v 同时输出两侧调用栈。
type CallError struct {
	Actor  string
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %s.%s: %v", e.Actor, e.Method, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Format %+v 输出被调用方错误的详细信息（含其调用栈）
func (e *CallError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "call %s.%s: %+v", e.Actor, e.Method, e.Err)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// NoMethodError 目标没有该方法
type NoMethodError struct {
	Method string
}

func (e *NoMethodError) Error() string {
	return fmt.Sprintf("undefined method %q", e.Method)
}

// ArityError 参数个数不匹配
type ArityError struct {
	Method   string
	Want     int
	Got      int
	Variadic bool
}

func (e *ArityError) Error() string {
	if e.Variadic {
		return fmt.Sprintf("wrong number of arguments for %s (given %d, expected %d+)", e.Method, e.Got, e.Want)
	}
	return fmt.Sprintf("wrong number of arguments for %s (given %d, expected %d)", e.Method, e.Got, e.Want)
}

// ArgumentError 参数类型不匹配
type ArgumentError struct {
	Method string
	Index  int
	Want   string
	Got    string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d of %s: cannot use %s as %s", e.Index, e.Method, e.Got, e.Want)
}

// LinkedExitError 链接的 Actor 崩溃，且本 Actor 没有退出处理器
type LinkedExitError struct {
	Actor  *Ref
	Reason error
}

func (e *LinkedExitError) Error() string {
	return fmt.Sprintf("linked actor %s exited: %v", e.Actor, e.Reason)
}

func (e *LinkedExitError) Unwrap() error {
	return e.Reason
}

// EscalationError 监督者的重启策略耗尽，失败向上传播
type EscalationError struct {
	Supervisor string
	Member     string
	Reason     error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("supervisor %s gave up on member %s: %v", e.Supervisor, e.Member, e.Reason)
}

func (e *EscalationError) Unwrap() error {
	return e.Reason
}

// deadError 把邮箱投递错误映射为 Actor 错误
func deadError(err error) error {
	if errors.Is(err, mailbox.ErrDead) || errors.Is(err, mailbox.ErrShutdown) {
		return ErrDeadActor
	}
	return err
}
