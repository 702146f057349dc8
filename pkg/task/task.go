// Package task 提供可挂起/可恢复的执行单元
//
// Task 包装一段工作，可以在执行中途挂起（记录挂起原因），之后由调度方携带一个值恢复，
// 调用栈不会丢失。调度方（Actor 循环）与 Task 之间通过交接通道传递控制权：
// 任一时刻只有一方在运行。
//
// 两种后端：
//   - [Fiber]: 每个 Task 一个 goroutine，交接通道切换，开销最低
//   - [Thread]: 从 [Pool] 租用线程执行，适合会调用阻塞原生代码的工作
package task

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// ErrTerminated 强制终止信号
var ErrTerminated = errors.New("task terminated")

// Type Task 类型标签
type Type string

const (
	TypeCall        Type = "call"
	TypeTimer       Type = "timer"
	TypeFinalizer   Type = "finalizer"
	TypeExitHandler Type = "exit_handler"
	TypeBlock       Type = "block"
	TypeInit        Type = "init"
)

// Status Task 状态；除 new/running/dead 外，其余值为挂起原因
type Status string

const (
	StatusNew     Status = "new"
	StatusRunning Status = "running"
	StatusDead    Status = "dead"

	StatusCallWait      Status = "callwait"
	StatusSleeping      Status = "sleeping"
	StatusConditionWait Status = "condwait"
	StatusReceiving     Status = "receiving"
	StatusIOWait        Status = "iowait"
	StatusBlockWait     Status = "invokeblock"
	StatusFutureWait    Status = "futurewait"
)

// Suspended 是否处于挂起状态
func (s Status) Suspended() bool {
	return s != StatusNew && s != StatusRunning && s != StatusDead
}

// Backing Task 后端类型
type Backing int

const (
	// Fiber goroutine 交接
	Fiber Backing = iota
	// Thread 从线程池租用
	Thread
)

// String 返回后端名称
func (b Backing) String() string {
	switch b {
	case Fiber:
		return "fiber"
	case Thread:
		return "thread"
	default:
		return "unknown"
	}
}

// ParseBacking 解析后端名称，空字符串为 Fiber
func ParseBacking(s string) (Backing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fiber":
		return Fiber, nil
	case "thread":
		return Thread, nil
	default:
		return Fiber, fmt.Errorf("unknown task backing %q", s)
	}
}

// Outcome 一次 Resume 的结果
type Outcome struct {
	// Done Task 已结束；为 false 表示再次挂起
	Done bool
	// Terminated Task 因强制终止而结束
	Terminated bool
	// Panic 未捕获的 panic 值
	Panic any
	// Stack panic 时的调用栈
	Stack []byte
}

// Info Task 诊断信息
type Info struct {
	Type   Type
	Status Status
}

type resumption struct {
	value     any
	err       error
	terminate bool
}

// terminated 强制终止时在 Task 栈上展开的 panic 值
type terminated struct{}

// IsTerminated 判断 recover 得到的值是否为强制终止信号
func IsTerminated(r any) bool {
	_, ok := r.(terminated)
	return ok
}

// Task 可挂起的执行单元
//
// Resume/Terminate 只能由调度方调用，Suspend 只能在 Task 自身中调用。
type Task struct {
	typ     Type
	backing Backing
	pool    *Pool
	fn      func(*Task)

	mu     sync.Mutex
	status Status

	started     bool
	terminating bool
	resumeC     chan resumption
	yieldC      chan Outcome
}

// New 创建 Task，不会立即运行；第一次 Resume 时启动
func New(typ Type, backing Backing, pool *Pool, fn func(*Task)) *Task {
	if backing == Thread && pool == nil {
		backing = Fiber
	}
	return &Task{
		typ:     typ,
		backing: backing,
		pool:    pool,
		fn:      fn,
		status:  StatusNew,
		resumeC: make(chan resumption),
		yieldC:  make(chan Outcome),
	}
}

// Type 返回类型标签
func (t *Task) Type() Type {
	return t.typ
}

// Backing 返回后端类型
func (t *Task) Backing() Backing {
	return t.backing
}

// Status 返回当前状态，可在任意 goroutine 中读取
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Info 返回诊断信息
func (t *Task) Info() Info {
	return Info{Type: t.typ, Status: t.Status()}
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Resume 恢复 Task 并阻塞到它再次挂起或结束
//
// 第一次调用启动 Task，value/err 被忽略。
func (t *Task) Resume(value any, err error) Outcome {
	if t.Status() == StatusDead {
		return Outcome{Done: true}
	}
	if !t.started {
		t.started = true
		t.start()
	}
	t.resumeC <- resumption{value: value, err: err}
	return <-t.yieldC
}

// Terminate 强制终止挂起中的 Task，在其栈上展开（执行 defer），阻塞到展开结束
func (t *Task) Terminate() Outcome {
	if t.Status() == StatusDead {
		return Outcome{Done: true}
	}
	t.terminating = true
	if !t.started {
		t.setStatus(StatusDead)
		return Outcome{Done: true, Terminated: true}
	}
	t.resumeC <- resumption{terminate: true}
	return <-t.yieldC
}

// Suspend 记录挂起原因并把控制权交回调度方，直到被 Resume
//
// 被强制终止时不会返回，而是在当前栈上展开。
func (t *Task) Suspend(status Status) (any, error) {
	if t.terminating {
		panic(terminated{})
	}
	t.setStatus(status)
	t.yieldC <- Outcome{}
	r := <-t.resumeC
	if r.terminate {
		panic(terminated{})
	}
	t.setStatus(StatusRunning)
	return r.value, r.err
}

func (t *Task) start() {
	if t.backing == Thread {
		t.pool.Go(t.run)
		return
	}
	go t.run()
}

func (t *Task) run() {
	r := <-t.resumeC
	out := Outcome{Done: true, Terminated: r.terminate}
	if !r.terminate {
		t.setStatus(StatusRunning)
		out = t.invoke()
	}
	t.setStatus(StatusDead)
	t.yieldC <- out
}

func (t *Task) invoke() (out Outcome) {
	out.Done = true
	defer func() {
		if r := recover(); r != nil {
			if IsTerminated(r) {
				out.Terminated = true
				return
			}
			out.Panic = r
			out.Stack = debug.Stack()
		}
	}()
	t.fn(t)
	return out
}
