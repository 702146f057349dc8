package actor

import "errors"

// ErrNoReactor 系统没有配置 Reactor 时等待 I/O
var ErrNoReactor = errors.New("no reactor configured")

// IOKind 等待的 I/O 事件
type IOKind int

const (
	Readable IOKind = iota
	Writable
)

// String 返回事件名称
func (k IOKind) String() string {
	if k == Writable {
		return "writable"
	}
	return "readable"
}

// Reactor 外部事件化 I/O 的挂钩
//
// Register 登记对 io 的一次关注，io 就绪（或出错）时调用 ready 一次。
// ready 可以在任意 goroutine 中调用；运行时负责把它转换为对等待 Task 的恢复。
type Reactor interface {
	Register(io any, kind IOKind, ready func(err error)) error
}

// ReactorFunc 函数形式的 Reactor
type ReactorFunc func(io any, kind IOKind, ready func(err error)) error

// Register 实现 Reactor
func (f ReactorFunc) Register(io any, kind IOKind, ready func(err error)) error {
	return f(io, kind, ready)
}
