package actor

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/mailbox"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/timer"
)

// Actor 一个被调度的主体对象及其运行时状态
//
// Actor 拥有一个邮箱和一组 Task。消息循环运行在从线程池租用的 worker 上，
// 任一时刻最多一个 Task 在执行主体代码；Task 只在显式的挂起点让出控制权。
type Actor struct {
	system  *System
	ref     *Ref
	mailbox *mailbox.Mailbox
	subject any
	methods methodTable
	props   *Props
	backing task.Backing
	logger  Logger
	stats   *StatsCollector
	timers  *timer.Wheel
	links   *linkTable

	// 以下字段只由消息循环和当前 Task 访问，两者从不同时运行
	signals     map[string][]*waitToken
	receivers   []*receiver
	exitHandler func(ctx *Context, actor *Ref, reason error)
	finalizer   func(ctx *Context)

	tasksMu sync.Mutex
	tasks   map[*task.Task]struct{}

	running atomic.Bool
	killed  atomic.Bool

	mu         sync.Mutex
	name       string
	state      State
	exitReason error

	done chan struct{}
}

func newActor(s *System, subject any, methods methodTable, props *Props) *Actor {
	size := props.MailboxSize
	if size == 0 {
		size = s.config.MailboxSize
	}
	backing := s.config.TaskBacking
	if props.Backing != nil {
		backing = *props.Backing
	}

	a := &Actor{
		system:  s,
		subject: subject,
		methods: methods,
		props:   props,
		backing: backing,
		logger:  s.logger,
		stats:   NewStatsCollector(),
		timers:  timer.New(),
		links:   newLinkTable(),
		signals: make(map[string][]*waitToken),
		tasks:   make(map[*task.Task]struct{}),
		state:   StateStarting,
		done:    make(chan struct{}),
	}
	a.mailbox = mailbox.New(mailbox.WithMaxSize(size), mailbox.WithLogger(s.logger))
	a.ref = &Ref{actor: a, address: a.mailbox.Address()}
	a.running.Store(true)
	return a
}

// resolveHooks 根据 Props 和主体实现的接口确定退出处理器与终结方法
func (a *Actor) resolveHooks() error {
	if name := a.props.ExitHandler; name != "" {
		info, ok := a.methods[name]
		if !ok {
			return &NoMethodError{Method: name}
		}
		if err := info.checkSignature(refType, errorType); err != nil {
			return err
		}
		a.exitHandler = func(ctx *Context, actor *Ref, reason error) {
			if _, err := info.invoke(ctx, []any{actor, reason}, nil); err != nil {
				a.logger.Warn("exit handler returned error", "actor", a.ref.String(), "error", err)
			}
		}
	} else if h, ok := a.subject.(ExitHandler); ok {
		a.exitHandler = h.HandleExit
	}

	if name := a.props.Finalizer; name != "" {
		info, ok := a.methods[name]
		if !ok {
			return &NoMethodError{Method: name}
		}
		if err := info.checkSignature(); err != nil {
			return err
		}
		a.finalizer = func(ctx *Context) {
			if _, err := info.invoke(ctx, nil, nil); err != nil {
				a.logger.Warn("finalizer returned error", "actor", a.ref.String(), "error", err)
			}
		}
	} else if f, ok := a.subject.(Finalizer); ok {
		a.finalizer = f.Finalize
	}
	return nil
}

// Name 返回注册名
func (a *Actor) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *Actor) setName(name string) {
	a.mu.Lock()
	a.name = name
	a.mu.Unlock()
}

func (a *Actor) clearName(name string) {
	a.mu.Lock()
	if a.name == name {
		a.name = ""
	}
	a.mu.Unlock()
}

func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Actor) reason() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exitReason
}

// crash 记录第一次失败原因并让循环在当前 Task 让出后退出
func (a *Actor) crash(err error) {
	a.mu.Lock()
	if a.exitReason == nil {
		a.exitReason = err
	}
	a.mu.Unlock()
	a.running.Store(false)
}

// ═══════════════════════════════════════════════════════════════════════════
// 消息循环
// ═══════════════════════════════════════════════════════════════════════════

func (a *Actor) run() {
	defer a.cleanup()
	defer func() {
		if r := recover(); r != nil {
			a.crash(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	a.setState(StateRunning)
	for a.running.Load() {
		a.timers.Fire()
		if !a.running.Load() {
			break
		}

		wait := time.Duration(-1)
		if d, ok := a.timers.WaitInterval(); ok {
			wait = d
		}

		a.setState(StateIdle)
		msg, err := a.mailbox.Receive(wait, nil)
		if err != nil {
			if errors.Is(err, mailbox.ErrTimeout) {
				continue
			}
			break
		}
		a.setState(StateProcessing)
		a.handle(msg)
	}
}

func (a *Actor) handle(msg any) {
	switch m := msg.(type) {
	case *terminationRequest:
		a.running.Store(false)
	case *namingRequest:
		if m.unset != "" {
			a.clearName(m.unset)
		} else {
			a.setName(m.name)
		}
	case *ExitEvent:
		a.handleExit(m)
	case *resumeRequest:
		a.resume(m.token, m.value, m.err)
	case *Response:
		if tok := m.Call.token; tok != nil && tok.claim() {
			a.resume(tok, m, nil)
		}
	case *Call:
		a.dispatch(m)
	case *blockCall:
		a.startTask(task.TypeBlock, false, nil, func(*Context) { a.runBlock(m) })
	default:
		a.deliverMessage(msg)
	}
}

func (a *Actor) handleExit(ev *ExitEvent) {
	a.links.remove(kindLink, ev.Actor)
	a.links.remove(kindMonitor, ev.Actor)

	if a.exitHandler != nil {
		a.startTask(task.TypeExitHandler, false, nil, func(ctx *Context) {
			a.exitHandler(ctx, ev.Actor, ev.Reason)
		})
		return
	}
	if !ev.Monitor && ev.Reason != nil {
		a.crash(&LinkedExitError{Actor: ev.Actor, Reason: ev.Reason})
		return
	}
	a.logger.Debug("exit event without handler", "actor", a.ref.String(), "peer", ev.Actor.String(), "reason", ev.Reason)
}

// deliverMessage 把普通消息交给第一个匹配的接收者，没有则丢弃
func (a *Actor) deliverMessage(msg any) {
	var target *receiver
	live := a.receivers[:0]
	for _, r := range a.receivers {
		if r.token.claimed.Load() {
			continue
		}
		if target == nil && (r.match == nil || r.match(msg)) {
			target = r
			continue
		}
		live = append(live, r)
	}
	for i := len(live); i < len(a.receivers); i++ {
		a.receivers[i] = nil
	}
	a.receivers = live

	if target != nil && target.token.claim() {
		a.stats.RecordMessage(true)
		a.resume(target.token, msg, nil)
		return
	}
	a.stats.RecordMessage(false)
	a.logger.Debug("discarded message (unhandled)", "actor", a.ref.String(), "message", msg)
}

// ═══════════════════════════════════════════════════════════════════════════
// Task 管理
// ═══════════════════════════════════════════════════════════════════════════

// startTask 创建 Task 并立即运行到它第一次挂起或结束
func (a *Actor) startTask(typ task.Type, exclusive bool, call *Call, fn func(ctx *Context)) {
	t := task.New(typ, a.backing, a.system.pool, func(t *task.Task) {
		ctx := &Context{actor: a, task: t, call: call}
		if exclusive {
			ctx.exclusive = 1
		}
		fn(ctx)
	})
	a.tasksMu.Lock()
	a.tasks[t] = struct{}{}
	a.tasksMu.Unlock()
	a.settle(t, t.Resume(nil, nil))
}

// resume 在循环上恢复一个已认领令牌对应的 Task
func (a *Actor) resume(tok *waitToken, value any, err error) {
	a.settle(tok.task, tok.task.Resume(value, err))
}

func (a *Actor) settle(t *task.Task, out task.Outcome) {
	if !out.Done {
		return
	}
	a.tasksMu.Lock()
	delete(a.tasks, t)
	a.tasksMu.Unlock()
	if out.Panic != nil {
		a.crash(&PanicError{Value: out.Panic, Stack: out.Stack})
	}
}

// taskInfos 诊断用的 Task 列表
func (a *Actor) taskInfos() []task.Info {
	a.tasksMu.Lock()
	defer a.tasksMu.Unlock()
	out := make([]task.Info, 0, len(a.tasks))
	for t := range a.tasks {
		// 已结束但尚未被 settle 移除的任务不计入
		if info := t.Info(); info.Status != task.StatusDead {
			out = append(out, info)
		}
	}
	return out
}

func (a *Actor) terminateTasks() {
	a.tasksMu.Lock()
	live := make([]*task.Task, 0, len(a.tasks))
	for t := range a.tasks {
		live = append(live, t)
	}
	a.tasks = make(map[*task.Task]struct{})
	a.tasksMu.Unlock()

	for _, t := range live {
		t.Terminate()
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 调用分发
// ═══════════════════════════════════════════════════════════════════════════

func (a *Actor) dispatch(c *Call) {
	a.stats.RecordCall(c.Method)
	kind := c.kind
	if kind == "" {
		kind = task.TypeCall
	}
	a.startTask(kind, a.props.ExclusiveMethods[c.Method], c, func(ctx *Context) {
		a.runCall(ctx, c)
	})
}

// runCall 在 Task 中执行调用
//
// 返回的 error 与 Abort 只交给调用方；其他 panic 同时交给调用方并使本 Actor 崩溃。
func (a *Actor) runCall(ctx *Context, c *Call) {
	start := time.Now()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if task.IsTerminated(r) {
			c.respond(nil, ErrDeadActor)
			panic(r)
		}
		if abort, ok := r.(*AbortError); ok {
			a.stats.RecordError(abort)
			c.respond(nil, abort.Cause)
			return
		}
		perr := &PanicError{Value: r, Stack: debug.Stack()}
		a.stats.RecordError(perr)
		c.respond(nil, perr)
		a.crash(perr)
	}()

	var (
		value any
		err   error
	)
	if c.run != nil {
		value, err = c.run(ctx)
	} else if info, lerr := a.methods.lookup(c.Method, c.Args); lerr != nil {
		err = lerr
	} else {
		value, err = info.invoke(ctx, c.Args, a.blockFor(ctx, c))
	}

	if err != nil {
		a.stats.RecordError(err)
		if c.reply == nil {
			a.logger.Debug("async call returned error", "actor", a.ref.String(), "method", c.Method, "error", err)
		}
	} else {
		a.stats.RecordHandled(time.Since(start))
	}
	c.respond(value, err)
}

// blockFor 返回交给方法的回调；默认回到调用方 Actor 执行
func (a *Actor) blockFor(ctx *Context, c *Call) Block {
	if c.Block == nil {
		return nil
	}
	if a.props.BlockOnReceiver[c.Method] || c.sender == nil || c.sender == a {
		return c.Block
	}
	return func(args ...any) any {
		return ctx.yieldBlock(c.sender, c.Block, args)
	}
}

// runBlock 在调用方 Actor 上执行回调并把结果交回
func (a *Actor) runBlock(b *blockCall) {
	var value any
	finished := false
	defer func() {
		if !finished {
			b.done(nil)
		}
	}()
	value = b.block(b.args...)
	finished = true
	b.done(value)
}

// ═══════════════════════════════════════════════════════════════════════════
// 退出
// ═══════════════════════════════════════════════════════════════════════════

// cleanup 循环退出后的收尾，顺序固定：
// 终结方法、通知链接与监视方、关闭邮箱、移除注册名、终止 Task、清理定时器。
func (a *Actor) cleanup() {
	a.setState(StateTerminating)
	a.running.Store(false)
	reason := a.reason()

	if reason != nil {
		a.system.stats.recordCrash()
		a.logger.Crash("actor crashed", reason, "actor", a.ref.String())
	} else {
		a.logger.Debug("actor terminated", "actor", a.ref.String())
	}

	if a.finalizer != nil && !a.killed.Load() {
		a.runFinalizer()
	}

	snap := a.links.close()
	for _, peer := range snap.links {
		peer.actor.links.remove(kindLink, a.ref)
		peer.actor.links.remove(kindMonitor, a.ref)
		_ = peer.actor.mailbox.SendSystemEvent(&ExitEvent{Actor: a.ref, Reason: reason})
	}
	for _, peer := range snap.watchers {
		peer.actor.links.remove(kindMonitor, a.ref)
		_ = peer.actor.mailbox.SendSystemEvent(&ExitEvent{Actor: a.ref, Reason: reason, Monitor: true})
	}
	for _, peer := range snap.monitors {
		peer.actor.links.remove(kindWatcher, a.ref)
	}

	a.mailbox.Shutdown()
	a.system.registry.deleteRef(a.ref)
	a.terminateTasks()
	a.timers.Clear()
	a.system.unregister(a)

	a.setState(StateDead)
	close(a.done)
}

// runFinalizer 以独占模式运行终结方法，panic 只记录日志
func (a *Actor) runFinalizer() {
	a.startTask(task.TypeFinalizer, true, nil, func(ctx *Context) {
		defer func() {
			if r := recover(); r != nil && !task.IsTerminated(r) {
				a.logger.Crash("finalizer crashed", &PanicError{Value: r, Stack: debug.Stack()}, "actor", a.ref.String())
			}
		}()
		a.finalizer(ctx)
	})
}
