// Package incident 记录 Actor 运行时的故障事件
//
// [Reporter] 实现 actor.Logger，可以直接放进 SystemConfig.Logger。
// 它把日志转发给下游 Logger，同时把错误与崩溃保存为 [Incident]，
// 只保留最近的若干条，供诊断命令或测试查看。
//
// 用法示例:
//
//	rep := incident.New(incident.WithNext(actor.NewSlogLogger(nil)))
//	cfg := actor.DefaultSystemConfig()
//	cfg.Logger = rep
//	sys := actor.NewSystemWithConfig("app", cfg)
//	...
//	summary := rep.Summary()
package incident

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// DefaultCapacity 默认保留的事件数
const DefaultCapacity = 256

// Level 事件级别
type Level string

const (
	LevelWarn  Level = "warn"  // 告警
	LevelError Level = "error" // 错误
	LevelCrash Level = "crash" // Actor 崩溃
)

// Kind 崩溃原因分类
type Kind string

const (
	KindNone       Kind = ""           // 非崩溃事件
	KindPanic      Kind = "panic"      // 未捕获的 panic
	KindLinked     Kind = "linked"     // 链接的 Actor 崩溃
	KindKilled     Kind = "killed"     // 被强制结束
	KindEscalation Kind = "escalation" // 监督者放弃重启
	KindError      Kind = "error"      // 其他错误
)

// Incident 一条故障事件
type Incident struct {
	ID      string         `json:"id"`
	Time    time.Time      `json:"time"`
	Level   Level          `json:"level"`
	Kind    Kind           `json:"kind,omitempty"`
	Message string         `json:"message"`
	Actor   string         `json:"actor,omitempty"`
	Error   string         `json:"error,omitempty"`
	Stack   string         `json:"stack,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`

	err error
}

// Err 原始错误，可能为 nil
func (i Incident) Err() error {
	return i.err
}

// Summary 事件统计
type Summary struct {
	Total    int            `json:"total"`
	Warnings int            `json:"warnings"`
	Errors   int            `json:"errors"`
	Crashes  int            `json:"crashes"`
	ByKind   map[Kind]int   `json:"by_kind,omitempty"`
	ByActor  map[string]int `json:"by_actor,omitempty"`
	Dropped  int            `json:"dropped"`
	Recent   []Incident     `json:"recent,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Reporter
// ═══════════════════════════════════════════════════════════════════════════

// Reporter 记录故障事件的 Logger
//
// 可被任意 goroutine 并发调用。
type Reporter struct {
	mu       sync.Mutex
	next     actor.Logger
	capacity int
	warnings bool
	now      func() time.Time
	handlers []func(Incident)

	ring    []Incident
	start   int
	dropped int
	summary Summary
}

// Option Reporter 选项
type Option func(*Reporter)

// WithNext 把全部日志转发给 next
func WithNext(next actor.Logger) Option {
	return func(r *Reporter) {
		r.next = next
	}
}

// WithCapacity 保留最近 n 条事件
func WithCapacity(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithWarnings 告警也记录为事件
func WithWarnings() Option {
	return func(r *Reporter) {
		r.warnings = true
	}
}

// OnIncident 每记录一条事件调用 fn，fn 在记录方的 goroutine 上运行
func OnIncident(fn func(Incident)) Option {
	return func(r *Reporter) {
		r.handlers = append(r.handlers, fn)
	}
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// New 创建 Reporter
func New(opts ...Option) *Reporter {
	r := &Reporter{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.summary = newSummary()
	return r
}

func newSummary() Summary {
	return Summary{
		ByKind:  make(map[Kind]int),
		ByActor: make(map[string]int),
	}
}

// Debug 只转发
func (r *Reporter) Debug(msg string, args ...any) {
	if r.next != nil {
		r.next.Debug(msg, args...)
	}
}

// Warn 转发，启用 WithWarnings 时记录
func (r *Reporter) Warn(msg string, args ...any) {
	if r.next != nil {
		r.next.Warn(msg, args...)
	}
	if r.warnings {
		r.record(LevelWarn, msg, nil, args)
	}
}

// Error 转发并记录
func (r *Reporter) Error(msg string, args ...any) {
	if r.next != nil {
		r.next.Error(msg, args...)
	}
	r.record(LevelError, msg, nil, args)
}

// Crash 转发并记录，panic 附带调用栈
func (r *Reporter) Crash(msg string, err error, args ...any) {
	if r.next != nil {
		r.next.Crash(msg, err, args...)
	}
	r.record(LevelCrash, msg, err, args)
}

func (r *Reporter) record(level Level, msg string, err error, args []any) {
	inc := Incident{
		ID:      uuid.NewString(),
		Time:    r.now(),
		Level:   level,
		Message: msg,
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		var val any
		if i+1 < len(args) {
			val = args[i+1]
		} else {
			key, val = "!BADKEY", args[i]
		}
		switch key {
		case "actor":
			inc.Actor = fmt.Sprint(val)
		case "error":
			if e, ok := val.(error); ok && err == nil {
				err = e
			} else if !ok {
				inc.Error = fmt.Sprint(val)
			}
		default:
			if inc.Attrs == nil {
				inc.Attrs = make(map[string]any)
			}
			inc.Attrs[key] = val
		}
	}
	if err != nil {
		inc.err = err
		inc.Error = err.Error()
	}
	if level == LevelCrash {
		inc.Kind = Classify(err)
		var perr *actor.PanicError
		if errors.As(err, &perr) {
			inc.Stack = string(perr.Stack)
		}
	}

	r.mu.Lock()
	r.push(inc)
	handlers := r.handlers
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(inc)
	}
}

// push 调用方持有 r.mu
func (r *Reporter) push(inc Incident) {
	if len(r.ring) < r.capacity {
		r.ring = append(r.ring, inc)
	} else {
		r.ring[r.start] = inc
		r.start = (r.start + 1) % r.capacity
		r.dropped++
	}

	s := &r.summary
	s.Total++
	switch inc.Level {
	case LevelWarn:
		s.Warnings++
	case LevelError:
		s.Errors++
	case LevelCrash:
		s.Crashes++
		s.ByKind[inc.Kind]++
	}
	if inc.Actor != "" {
		s.ByActor[inc.Actor]++
	}
}

// Classify 崩溃原因分类
func Classify(err error) Kind {
	var (
		escalation *actor.EscalationError
		linked     *actor.LinkedExitError
		perr       *actor.PanicError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &escalation):
		return KindEscalation
	case errors.As(err, &linked):
		return KindLinked
	case errors.Is(err, actor.ErrKilled):
		return KindKilled
	case errors.As(err, &perr):
		return KindPanic
	default:
		return KindError
	}
}

// Incidents 保留的事件，最早的在前
func (r *Reporter) Incidents() []Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Reporter) snapshot() []Incident {
	out := make([]Incident, 0, len(r.ring))
	out = append(out, r.ring[r.start:]...)
	out = append(out, r.ring[:r.start]...)
	return out
}

// ForActor 某个 Actor 的事件，actor 为 Ref.String() 的形式
func (r *Reporter) ForActor(name string) []Incident {
	var out []Incident
	for _, inc := range r.Incidents() {
		if inc.Actor == name {
			out = append(out, inc)
		}
	}
	return out
}

// Summary 统计快照，Recent 为最近 5 条
func (r *Reporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.Dropped = r.dropped
	s.ByKind = make(map[Kind]int, len(r.summary.ByKind))
	for k, v := range r.summary.ByKind {
		s.ByKind[k] = v
	}
	s.ByActor = make(map[string]int, len(r.summary.ByActor))
	for k, v := range r.summary.ByActor {
		s.ByActor[k] = v
	}

	all := r.snapshot()
	limit := min(5, len(all))
	if limit > 0 {
		s.Recent = all[len(all)-limit:]
	}
	return s
}

// Reset 清空事件与统计
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = nil
	r.start = 0
	r.dropped = 0
	r.summary = newSummary()
}

var _ actor.Logger = (*Reporter)(nil)
