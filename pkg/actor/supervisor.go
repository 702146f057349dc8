package actor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Directive 监督指令
type Directive int

const (
	// DirectiveRestart 以相同规格重启成员
	DirectiveRestart Directive = iota
	// DirectiveStop 移除成员，不再重启
	DirectiveStop
	// DirectiveEscalate 监督者自身崩溃，交给上一级处理
	DirectiveEscalate
)

// String 返回指令名称
func (d Directive) String() string {
	switch d {
	case DirectiveRestart:
		return "Restart"
	case DirectiveStop:
		return "Stop"
	case DirectiveEscalate:
		return "Escalate"
	default:
		return "Unknown"
	}
}

// Decision 一次失败的处理结果
type Decision struct {
	Directive Directive
	// Delay 大于 0 时延迟重启
	Delay time.Duration
	// All 为 true 时重启全部成员
	All bool
}

// RestartPolicy 重启策略
type RestartPolicy interface {
	// HandleFailure 处理成员失败；reason 为成员的退出原因
	HandleFailure(member string, reason error) Decision
}

// Decider 决策函数类型
type Decider func(reason error) Directive

// DefaultDecider 对所有错误重启
func DefaultDecider(error) Directive {
	return DirectiveRestart
}

// StoppingDecider 对所有错误停止
func StoppingDecider(error) Directive {
	return DirectiveStop
}

// EscalatingDecider 对所有错误上报
func EscalatingDecider(error) Directive {
	return DirectiveEscalate
}

// ============== 内置重启策略 ==============

// restartWindow 滑动窗口内的重启记录
type restartWindow struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

// allow 窗口内已达上限返回 false，否则记录本次重启
func (w *restartWindow) allow(member string, max int, within time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.history == nil {
		w.history = make(map[string][]time.Time)
	}
	now := time.Now()
	if w.now != nil {
		now = w.now()
	}
	cutoff := now.Add(-within)

	valid := w.history[member][:0]
	for _, t := range w.history[member] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= max {
		w.history[member] = valid
		return false
	}
	w.history[member] = append(valid, now)
	return true
}

// OneForOneStrategy 一对一策略
// 只重启失败的成员；每个成员在 Within 内最多重启 MaxRestarts 次，超出后上报
type OneForOneStrategy struct {
	MaxRestarts int
	Within      time.Duration
	Decider     Decider

	window restartWindow
}

// NewOneForOneStrategy 创建一对一策略
func NewOneForOneStrategy(maxRestarts int, within time.Duration, decider Decider) *OneForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &OneForOneStrategy{MaxRestarts: maxRestarts, Within: within, Decider: decider}
}

// HandleFailure 实现 RestartPolicy
func (s *OneForOneStrategy) HandleFailure(member string, reason error) Decision {
	directive := s.Decider(reason)
	if directive == DirectiveRestart && !s.window.allow(member, s.MaxRestarts, s.Within) {
		return Decision{Directive: DirectiveEscalate}
	}
	return Decision{Directive: directive}
}

// AllForOneStrategy 全部重启策略
// 任一成员失败时重启全部成员；窗口按整个监督者计数
type AllForOneStrategy struct {
	MaxRestarts int
	Within      time.Duration
	Decider     Decider

	window restartWindow
}

// NewAllForOneStrategy 创建全部重启策略
func NewAllForOneStrategy(maxRestarts int, within time.Duration, decider Decider) *AllForOneStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &AllForOneStrategy{MaxRestarts: maxRestarts, Within: within, Decider: decider}
}

// HandleFailure 实现 RestartPolicy
func (s *AllForOneStrategy) HandleFailure(_ string, reason error) Decision {
	directive := s.Decider(reason)
	if directive != DirectiveRestart {
		return Decision{Directive: directive}
	}
	if !s.window.allow("", s.MaxRestarts, s.Within) {
		return Decision{Directive: DirectiveEscalate}
	}
	return Decision{Directive: DirectiveRestart, All: true}
}

// ExponentialBackoffStrategy 指数退避策略
// 重启间隔逐次翻倍直到 MaxDelay；累计重启 MaxRestarts 次后上报
type ExponentialBackoffStrategy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRestarts  int
	Decider      Decider

	mu    sync.Mutex
	state map[string]*backoff
}

type backoff struct {
	delay time.Duration
	count int
}

// NewExponentialBackoffStrategy 创建指数退避策略
func NewExponentialBackoffStrategy(initialDelay, maxDelay time.Duration, maxRestarts int, decider Decider) *ExponentialBackoffStrategy {
	if decider == nil {
		decider = DefaultDecider
	}
	return &ExponentialBackoffStrategy{
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		MaxRestarts:  maxRestarts,
		Decider:      decider,
		state:        make(map[string]*backoff),
	}
}

// HandleFailure 实现 RestartPolicy
func (s *ExponentialBackoffStrategy) HandleFailure(member string, reason error) Decision {
	directive := s.Decider(reason)
	if directive != DirectiveRestart {
		return Decision{Directive: directive}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state[member]
	if !ok {
		b = &backoff{delay: s.InitialDelay}
		s.state[member] = b
	}
	if b.count >= s.MaxRestarts {
		return Decision{Directive: DirectiveEscalate}
	}

	delay := b.delay
	b.delay *= 2
	if b.delay > s.MaxDelay {
		b.delay = s.MaxDelay
	}
	b.count++
	return Decision{Directive: DirectiveRestart, Delay: delay}
}

// Reset 重置某个成员的退避状态，member 为空时全部重置
func (s *ExponentialBackoffStrategy) Reset(member string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member == "" {
		s.state = make(map[string]*backoff)
		return
	}
	delete(s.state, member)
}

// CompositeStrategy 组合策略
// 按 errors.Is 匹配失败原因选择策略，未匹配时使用 fallback
type CompositeStrategy struct {
	rules    []compositeRule
	fallback RestartPolicy
}

type compositeRule struct {
	target error
	policy RestartPolicy
}

// NewCompositeStrategy 创建组合策略
func NewCompositeStrategy(fallback RestartPolicy) *CompositeStrategy {
	if fallback == nil {
		fallback = DefaultRestartPolicy()
	}
	return &CompositeStrategy{fallback: fallback}
}

// On 为匹配 target 的失败注册策略
func (s *CompositeStrategy) On(target error, policy RestartPolicy) *CompositeStrategy {
	s.rules = append(s.rules, compositeRule{target: target, policy: policy})
	return s
}

// HandleFailure 实现 RestartPolicy
func (s *CompositeStrategy) HandleFailure(member string, reason error) Decision {
	for _, rule := range s.rules {
		if errors.Is(reason, rule.target) {
			return rule.policy.HandleFailure(member, reason)
		}
	}
	return s.fallback.HandleFailure(member, reason)
}

// DefaultRestartPolicy 默认策略：每个成员 1 分钟内最多重启 3 次
func DefaultRestartPolicy() RestartPolicy {
	return NewOneForOneStrategy(3, time.Minute, DefaultDecider)
}

// StrictRestartPolicy 任何失败都上报
func StrictRestartPolicy() RestartPolicy {
	return NewOneForOneStrategy(0, time.Second, EscalatingDecider)
}

// LenientRestartPolicy 宽松策略：5 分钟内最多重启 10 次
func LenientRestartPolicy() RestartPolicy {
	return NewOneForOneStrategy(10, 5*time.Minute, DefaultDecider)
}

// ═══════════════════════════════════════════════════════════════════════════
// 监督树
// ═══════════════════════════════════════════════════════════════════════════

// MemberSpec 成员规格
type MemberSpec struct {
	// Name 注册名；为空时成员不注册，以序号标识
	Name string
	// New 构造新的主体实例，每次启动（含重启）调用一次
	New func(args ...any) any
	// Args 构造参数
	Args []any
	// ArgsFunc 非空时每次启动重新求值构造参数，优先于 Args
	ArgsFunc func() []any
	// Options Spawn 选项
	Options []Option
	// Policy 该成员的重启策略，nil 使用监督者的策略
	Policy RestartPolicy
}

func (m MemberSpec) args() []any {
	if m.ArgsFunc != nil {
		return m.ArgsFunc()
	}
	return m.Args
}

// SupervisorConfig 监督者配置
type SupervisorConfig struct {
	Members []MemberSpec
	// Policy nil 使用 DefaultRestartPolicy()
	Policy RestartPolicy
}

// MemberInfo 成员状态
type MemberInfo struct {
	ID       string
	Name     string
	Ref      *Ref
	Restarts int
}

type member struct {
	id       string
	spec     MemberSpec
	ref      *Ref
	restarts int
}

// Supervisor 监督者主体
//
// 作为普通 Actor 运行：Init 启动并链接所有成员，HandleExit 处理成员退出。
// 成员正常结束时被移除；崩溃时按策略重启，新实例覆盖原注册名并重新链接。
// 策略耗尽时监督者以 *EscalationError 崩溃，由上一级监督者处理。
type Supervisor struct {
	policy  RestartPolicy
	specs   []MemberSpec
	members []*member
	byAddr  map[string]*member
	seq     int
}

// NewSupervisor 创建监督者主体，用 System.Spawn 或作为另一个监督者的成员启动
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	policy := cfg.Policy
	if policy == nil {
		policy = DefaultRestartPolicy()
	}
	return &Supervisor{
		policy: policy,
		specs:  cfg.Members,
		byAddr: make(map[string]*member),
	}
}

// Init 启动全部成员
func (s *Supervisor) Init(ctx *Context) error {
	for _, spec := range s.specs {
		if _, err := s.add(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) add(ctx *Context, spec MemberSpec) (*Ref, error) {
	if spec.New == nil {
		return nil, fmt.Errorf("member %q has no constructor", spec.Name)
	}
	s.seq++
	m := &member{id: spec.Name, spec: spec}
	if m.id == "" {
		m.id = fmt.Sprintf("member-%d", s.seq)
	}
	if err := s.start(ctx, m); err != nil {
		return nil, err
	}
	s.members = append(s.members, m)
	return m.ref, nil
}

func (s *Supervisor) start(ctx *Context, m *member) error {
	opts := append([]Option{}, m.spec.Options...)
	if m.spec.Name != "" {
		opts = append(opts, WithName(m.spec.Name))
	}
	ref, err := ctx.SpawnLink(m.spec.New(m.spec.args()...), opts...)
	if err != nil {
		return pkgerrors.Wrapf(err, "start member %s", m.id)
	}
	m.ref = ref
	s.byAddr[ref.Address()] = m
	return nil
}

// HandleExit 处理成员退出
func (s *Supervisor) HandleExit(ctx *Context, ref *Ref, reason error) {
	m, ok := s.byAddr[ref.Address()]
	if !ok {
		if reason != nil {
			ctx.actor.crash(&LinkedExitError{Actor: ref, Reason: reason})
		}
		return
	}
	delete(s.byAddr, ref.Address())
	m.ref = nil

	if reason == nil {
		ctx.Logger().Debug("supervised member exited", "supervisor", ctx.Self().String(), "member", m.id)
		s.drop(m)
		return
	}
	s.fail(ctx, m, reason)
}

// fail 按策略处理一次成员失败
func (s *Supervisor) fail(ctx *Context, m *member, reason error) {
	policy := m.spec.Policy
	if policy == nil {
		policy = s.policy
	}
	decision := policy.HandleFailure(m.id, reason)
	ctx.Logger().Warn("supervised member crashed",
		"supervisor", ctx.Self().String(), "member", m.id, "directive", decision.Directive.String(), "reason", reason)

	switch decision.Directive {
	case DirectiveStop:
		s.drop(m)
	case DirectiveEscalate:
		ctx.actor.crash(&EscalationError{Supervisor: ctx.Self().String(), Member: m.id, Reason: reason})
	case DirectiveRestart:
		if decision.Delay > 0 {
			ctx.After(decision.Delay, func(ctx *Context) {
				s.restart(ctx, m, decision.All)
			})
			return
		}
		s.restart(ctx, m, decision.All)
	}
}

func (s *Supervisor) restart(ctx *Context, m *member, all bool) {
	targets := []*member{m}
	if all {
		targets = append([]*member{}, s.members...)
		for _, other := range targets {
			if other == m || other.ref == nil {
				continue
			}
			// 先解除链接，避免把主动终止当作成员正常退出
			ctx.Unlink(other.ref)
			delete(s.byAddr, other.ref.Address())
			_ = other.ref.Terminate()
			other.ref = nil
		}
	}

	for _, target := range targets {
		if !s.contains(target) || target.ref != nil {
			continue
		}
		target.restarts++
		ctx.actor.system.stats.recordRestart()
		if err := s.start(ctx, target); err != nil {
			ctx.Logger().Error("restart member failed", "supervisor", ctx.Self().String(), "member", target.id, "error", err)
			s.fail(ctx, target, err)
		}
	}
}

func (s *Supervisor) contains(m *member) bool {
	for _, other := range s.members {
		if other == m {
			return true
		}
	}
	return false
}

func (s *Supervisor) drop(m *member) {
	for i, other := range s.members {
		if other == m {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return
		}
	}
}

// Finalize 终止全部成员
func (s *Supervisor) Finalize(ctx *Context) {
	var g errgroup.Group
	for _, m := range s.members {
		ref := m.ref
		if ref == nil {
			continue
		}
		ctx.Unlink(ref)
		g.Go(func() error {
			if err := ref.Terminate(); err != nil && !errors.Is(err, ErrDeadActor) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ctx.Logger().Warn("terminate supervised members", "supervisor", ctx.Self().String(), "error", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 通过代理调用的管理方法
// ═══════════════════════════════════════════════════════════════════════════

// Members 成员状态列表
func (s *Supervisor) Members() []MemberInfo {
	out := make([]MemberInfo, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, MemberInfo{ID: m.id, Name: m.spec.Name, Ref: m.ref, Restarts: m.restarts})
	}
	return out
}

// Member 按标识查找成员的当前实例；不存在或正在重启时返回 nil
func (s *Supervisor) Member(id string) *Ref {
	for _, m := range s.members {
		if m.id == id {
			return m.ref
		}
	}
	return nil
}

// Add 添加并启动成员
func (s *Supervisor) Add(ctx *Context, spec MemberSpec) (*Ref, error) {
	return s.add(ctx, spec)
}

// Remove 终止并移除成员
func (s *Supervisor) Remove(ctx *Context, id string) error {
	for _, m := range s.members {
		if m.id != id {
			continue
		}
		s.drop(m)
		if m.ref != nil {
			ctx.Unlink(m.ref)
			delete(s.byAddr, m.ref.Address())
			ref := m.ref
			m.ref = nil
			if err := ref.Terminate(); err != nil && !errors.Is(err, ErrDeadActor) {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("no member %q", id)
}
