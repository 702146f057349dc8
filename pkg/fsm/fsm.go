// Package fsm 提供可以嵌入 Actor 主体的有限状态机
//
// Machine 持有当前状态与转换表，延迟转换通过注入的 [Scheduler] 调度。
// 在 Actor 中把 *actor.Context 作为 Scheduler 传入，回调就会运行在该 Actor 的 Task 上，
// 因此 Machine 本身不加锁，只能在所属 Actor 内使用。
//
// 用法示例:
//
//	func (l *Light) Init(ctx *actor.Context) error {
//		l.fsm = fsm.New(ctx, "off")
//		l.fsm.Define("off", fsm.To("on"))
//		l.fsm.Define("on", fsm.To("off"), fsm.OnEnter(func(from, to fsm.State) { ... }))
//		return nil
//	}
package fsm

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrUnknownState 转换到未定义的状态
var ErrUnknownState = errors.New("unknown state")

// State 状态名
type State string

// Scheduler 延迟执行的能力，*actor.Context 满足此接口
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func() bool)
}

// TransitionError 当前状态不允许转换到目标状态
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// Callback 进入状态时的回调
type Callback func(from, to State)

type stateDef struct {
	allowed []State
	onEnter []Callback
}

// StateOption 状态定义选项
type StateOption func(*stateDef)

// To 限定可转换到的状态；不指定时可以转换到任意已定义的状态
func To(states ...State) StateOption {
	return func(d *stateDef) {
		d.allowed = append(d.allowed, states...)
	}
}

// OnEnter 进入状态时调用 fn
func OnEnter(fn Callback) StateOption {
	return func(d *stateDef) {
		d.onEnter = append(d.onEnter, fn)
	}
}

// Machine 有限状态机
type Machine struct {
	scheduler Scheduler
	states    map[State]*stateDef
	initial   State
	current   State
	history   []State
	maxHist   int

	pending    func() bool
	pendingTo  State
	pendingGen int
	observers  []Callback
}

// Option Machine 选项
type Option func(*Machine)

// WithHistory 保留最近 n 次转换到的状态
func WithHistory(n int) Option {
	return func(m *Machine) {
		m.maxHist = n
	}
}

// New 创建状态机，initial 自动成为已定义的状态
func New(scheduler Scheduler, initial State, opts ...Option) *Machine {
	m := &Machine{
		scheduler: scheduler,
		states:    map[State]*stateDef{initial: {}},
		initial:   initial,
		current:   initial,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Define 定义或扩展一个状态
func (m *Machine) Define(state State, opts ...StateOption) *Machine {
	def, ok := m.states[state]
	if !ok {
		def = &stateDef{}
		m.states[state] = def
	}
	for _, opt := range opts {
		opt(def)
	}
	return m
}

// Observe 每次转换后调用 fn
func (m *Machine) Observe(fn Callback) {
	m.observers = append(m.observers, fn)
}

// State 当前状态
func (m *Machine) State() State {
	return m.current
}

// States 已定义的状态，按名称排序
func (m *Machine) States() []State {
	out := make([]State, 0, len(m.states))
	for s := range m.states {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// History 最近转换到的状态，最早的在前
func (m *Machine) History() []State {
	return slices.Clone(m.history)
}

// Can 当前状态能否转换到 to
func (m *Machine) Can(to State) bool {
	return m.validate(to) == nil
}

func (m *Machine) validate(to State) error {
	if _, ok := m.states[to]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownState, to)
	}
	def := m.states[m.current]
	if len(def.allowed) > 0 && !slices.Contains(def.allowed, to) {
		return &TransitionError{From: m.current, To: to}
	}
	return nil
}

// Transition 立即转换到 to，并取消尚未执行的延迟转换
//
// 转换到当前状态不触发回调。
func (m *Machine) Transition(to State) error {
	m.Cancel()
	if to == m.current {
		return nil
	}
	if err := m.validate(to); err != nil {
		return err
	}
	m.enter(to)
	return nil
}

// TransitionAfter 在 d 之后转换到 to；新的延迟转换替换旧的
//
// 目标状态在调度时校验，执行时如果已不再允许则放弃。
func (m *Machine) TransitionAfter(to State, d time.Duration) error {
	if to != m.current {
		if err := m.validate(to); err != nil {
			return err
		}
	}
	if m.scheduler == nil {
		return errors.New("fsm has no scheduler")
	}
	m.Cancel()
	m.pendingGen++
	gen := m.pendingGen
	cancel := m.scheduler.AfterFunc(d, func() {
		if m.pending == nil || m.pendingGen != gen {
			return
		}
		m.pending = nil
		if to == m.current || m.validate(to) != nil {
			return
		}
		m.enter(to)
	})
	m.pending = cancel
	m.pendingTo = to
	return nil
}

// Pending 尚未执行的延迟转换的目标状态
func (m *Machine) Pending() (State, bool) {
	if m.pending == nil {
		return "", false
	}
	return m.pendingTo, true
}

// Cancel 取消尚未执行的延迟转换，返回是否取消了转换
func (m *Machine) Cancel() bool {
	if m.pending == nil {
		return false
	}
	cancel := m.pending
	m.pending = nil
	return cancel()
}

// Reset 回到初始状态，不触发回调
func (m *Machine) Reset() {
	m.Cancel()
	m.current = m.initial
	m.history = nil
}

func (m *Machine) enter(to State) {
	from := m.current
	m.current = to
	if m.maxHist > 0 {
		m.history = append(m.history, to)
		if len(m.history) > m.maxHist {
			m.history = m.history[len(m.history)-m.maxHist:]
		}
	}
	for _, fn := range m.states[to].onEnter {
		fn(from, to)
	}
	for _, fn := range m.observers {
		fn(from, to)
	}
}
