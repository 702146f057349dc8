// Package mailbox 提供 Actor 的消息邮箱
//
// 邮箱由两条队列组成：
//   - 普通消息队列：FIFO，可设置最大容量，超出容量的新消息被丢弃
//   - 系统事件队列：不受容量限制，总是先于普通消息被取出
//
// 所有修改都在一把短暂持有的互斥锁内完成，阻塞等待使用同一把锁上的 [sync.Cond]。
// 邮箱一旦关闭（dead）就不会再恢复。
package mailbox

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrShutdown 在已关闭的邮箱上接收，或等待期间邮箱被关闭
	ErrShutdown = errors.New("mailbox shutdown")
	// ErrDead 向已关闭的邮箱投递
	ErrDead = errors.New("mailbox is dead")
	// ErrFull 邮箱已满，新消息被丢弃
	ErrFull = errors.New("mailbox is full")
	// ErrTimeout 在超时时间内没有匹配的消息
	ErrTimeout = errors.New("mailbox receive timed out")
)

// Cleaner 邮箱关闭时，仍在队列中的消息如果实现了此接口会被调用清理
type Cleaner interface {
	Cleanup()
}

// Logger 邮箱使用的最小日志接口，*slog.Logger 满足此接口
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Matcher 选择性接收的谓词
type Matcher func(msg any) bool

// Mailbox 线程安全、可阻塞、区分优先级的消息邮箱
type Mailbox struct {
	address string
	maxSize int
	logger  Logger

	mu       sync.Mutex
	cond     *sync.Cond
	messages []any
	system   []any
	dead     bool
}

// Option 邮箱选项
type Option func(*Mailbox)

// WithMaxSize 设置普通消息的最大容量，0 表示不限制
func WithMaxSize(n int) Option {
	return func(m *Mailbox) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(l Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAddress 指定邮箱地址（默认随机 UUID）
func WithAddress(addr string) Option {
	return func(m *Mailbox) {
		if addr != "" {
			m.address = addr
		}
	}
}

// New 创建邮箱
func New(opts ...Option) *Mailbox {
	m := &Mailbox{
		address: uuid.NewString(),
		logger:  nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Address 返回邮箱地址，也是所属 Actor 的身份
func (m *Mailbox) Address() string {
	return m.address
}

// Send 追加普通消息到队尾
//
// 邮箱已关闭时返回 ErrDead，超出容量时返回 ErrFull；两种情况消息都被丢弃并记录日志。
// 调用方可以忽略返回值以获得宽松语义。
func (m *Mailbox) Send(msg any) error {
	m.mu.Lock()
	if m.dead {
		m.mu.Unlock()
		m.logger.Debug("discarded message (mailbox is dead)", "mailbox", m.address, "message", describe(msg))
		return ErrDead
	}
	if m.maxSize > 0 && len(m.messages) >= m.maxSize {
		m.mu.Unlock()
		m.logger.Warn("discarded message (mailbox is full)", "mailbox", m.address, "max_size", m.maxSize, "message", describe(msg))
		return ErrFull
	}
	m.messages = append(m.messages, msg)
	m.cond.Broadcast()
	m.mu.Unlock()
	return nil
}

// SendSystemEvent 投递系统事件
//
// 系统事件不受容量限制，并且总是先于已排队的普通消息被接收。
// 系统事件之间保持投递顺序。
func (m *Mailbox) SendSystemEvent(ev any) error {
	m.mu.Lock()
	if m.dead {
		m.mu.Unlock()
		m.logger.Debug("discarded system event (mailbox is dead)", "mailbox", m.address, "event", describe(ev))
		return ErrDead
	}
	m.system = append(m.system, ev)
	m.cond.Broadcast()
	m.mu.Unlock()
	return nil
}

// Receive 接收一条消息
//
// timeout < 0 表示一直等待，timeout == 0 表示只检查不等待。
// match 为 nil 时返回队首（系统事件优先）；否则返回第一条满足 match 的消息，
// 其余消息的相对顺序保持不变。
func (m *Mailbox) Receive(timeout time.Duration, match Matcher) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		t := time.AfterFunc(timeout, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		defer t.Stop()
	}

	for {
		if m.dead {
			return nil, ErrShutdown
		}
		if msg, ok := m.take(match); ok {
			return msg, nil
		}
		if timeout == 0 || (timeout > 0 && !time.Now().Before(deadline)) {
			return nil, ErrTimeout
		}
		m.cond.Wait()
	}
}

// take 在持锁状态下取出一条消息
func (m *Mailbox) take(match Matcher) (any, bool) {
	if msg, ok := takeFrom(&m.system, match); ok {
		return msg, true
	}
	return takeFrom(&m.messages, match)
}

func takeFrom(queue *[]any, match Matcher) (any, bool) {
	q := *queue
	for i, msg := range q {
		if match != nil && !match(msg) {
			continue
		}
		copy(q[i:], q[i+1:])
		q[len(q)-1] = nil
		*queue = q[:len(q)-1]
		return msg, true
	}
	return nil, false
}

// Shutdown 关闭邮箱
//
// 标记为 dead，唤醒所有等待者（返回 ErrShutdown），并对剩余消息调用 Cleanup。
// 重复调用无副作用。
func (m *Mailbox) Shutdown() {
	m.mu.Lock()
	if m.dead {
		m.mu.Unlock()
		return
	}
	m.dead = true
	pending := make([]any, 0, len(m.system)+len(m.messages))
	pending = append(pending, m.system...)
	pending = append(pending, m.messages...)
	m.system = nil
	m.messages = nil
	m.cond.Broadcast()
	m.mu.Unlock()

	for _, msg := range pending {
		if c, ok := msg.(Cleaner); ok {
			c.Cleanup()
		}
	}
}

// Alive 邮箱是否仍可投递
func (m *Mailbox) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.dead
}

// Len 返回排队中的消息数（含系统事件）
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages) + len(m.system)
}

// Messages 返回普通消息队列的快照
func (m *Mailbox) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.messages))
	copy(out, m.messages)
	return out
}

// MaxSize 返回容量上限，0 表示不限制
func (m *Mailbox) MaxSize() int {
	return m.maxSize
}

type kinder interface {
	Kind() string
}

func describe(msg any) any {
	if k, ok := msg.(kinder); ok {
		return k.Kind()
	}
	return msg
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
