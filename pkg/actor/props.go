package actor

import (
	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
)

// Props Actor 创建属性
type Props struct {
	// Name 注册名，非空时 Spawn 会登记到注册表
	Name string
	// MailboxSize 普通消息容量，0 使用系统默认
	MailboxSize int
	// Backing Task 后端，nil 使用系统默认
	Backing *task.Backing
	// Exclusive 整个 Actor 以独占模式运行
	Exclusive bool
	// ExclusiveMethods 以独占模式执行的方法
	ExclusiveMethods map[string]bool
	// BlockOnReceiver 在接收方栈上执行回调的方法
	BlockOnReceiver map[string]bool
	// ExitHandler 退出处理方法名，签名 (ctx *Context, actor *Ref, reason error)
	ExitHandler string
	// Finalizer 终结方法名，签名 (ctx *Context) 或 ()
	Finalizer string
}

// Option Props 选项
type Option func(*Props)

// DefaultProps 默认属性
func DefaultProps() *Props {
	return &Props{
		ExclusiveMethods: make(map[string]bool),
		BlockOnReceiver:  make(map[string]bool),
	}
}

// WithName 设置注册名
func WithName(name string) Option {
	return func(p *Props) {
		p.Name = name
	}
}

// WithMailboxSize 设置邮箱容量
func WithMailboxSize(size int) Option {
	return func(p *Props) {
		p.MailboxSize = size
	}
}

// WithTaskBacking 设置 Task 后端
func WithTaskBacking(b task.Backing) Option {
	return func(p *Props) {
		p.Backing = &b
	}
}

// WithExclusive 指定以独占模式执行的方法
func WithExclusive(methods ...string) Option {
	return func(p *Props) {
		for _, m := range methods {
			p.ExclusiveMethods[m] = true
		}
	}
}

// WithExclusiveActor 整个 Actor 以独占模式运行
func WithExclusiveActor() Option {
	return func(p *Props) {
		p.Exclusive = true
	}
}

// WithBlockOnReceiver 指定在接收方栈上执行回调的方法
func WithBlockOnReceiver(methods ...string) Option {
	return func(p *Props) {
		for _, m := range methods {
			p.BlockOnReceiver[m] = true
		}
	}
}

// WithExitHandler 指定退出处理方法
func WithExitHandler(method string) Option {
	return func(p *Props) {
		p.ExitHandler = method
	}
}

// WithFinalizer 指定终结方法
func WithFinalizer(method string) Option {
	return func(p *Props) {
		p.Finalizer = method
	}
}

// WithProps 整体应用另一组属性
func WithProps(other *Props) Option {
	return func(p *Props) {
		if other == nil {
			return
		}
		if other.Name != "" {
			p.Name = other.Name
		}
		if other.MailboxSize != 0 {
			p.MailboxSize = other.MailboxSize
		}
		if other.Backing != nil {
			p.Backing = other.Backing
		}
		p.Exclusive = p.Exclusive || other.Exclusive
		for m := range other.ExclusiveMethods {
			p.ExclusiveMethods[m] = true
		}
		for m := range other.BlockOnReceiver {
			p.BlockOnReceiver[m] = true
		}
		if other.ExitHandler != "" {
			p.ExitHandler = other.ExitHandler
		}
		if other.Finalizer != "" {
			p.Finalizer = other.Finalizer
		}
	}
}

func buildProps(opts []Option) *Props {
	p := DefaultProps()
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════
// 生命周期钩子
// ═══════════════════════════════════════════════════════════════════════════

// Initializer 在 Spawn 返回前同步执行；返回错误时 Spawn 失败
type Initializer interface {
	Init(ctx *Context) error
}

// Finalizer 在 Actor 退出时执行（Kill 除外）
type Finalizer interface {
	Finalize(ctx *Context)
}

// ExitHandler 处理链接或监视的 Actor 的退出
type ExitHandler interface {
	HandleExit(ctx *Context, actor *Ref, reason error)
}
