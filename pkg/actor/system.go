package actor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/cpu"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
)

// System Actor 运行时
//
// 持有注册表、线程池、日志与默认配置。所有 Actor 都属于某个 System，
// 不存在进程级的全局状态。
type System struct {
	name   string
	config *SystemConfig
	logger Logger

	pool     *task.Pool
	registry *Registry

	actorsMu sync.RWMutex
	actors   map[string]*Actor

	isRunning atomic.Bool
	stats     *SystemStats
}

// SystemConfig 系统配置
type SystemConfig struct {
	// MailboxSize 默认的 Actor 邮箱容量，0 表示不限制
	MailboxSize int
	// TaskBacking 默认的 Task 后端
	TaskBacking task.Backing
	// LockOSThread 线程池 worker 是否绑定 OS 线程
	LockOSThread bool
	// ThreadPoolIdle 保留的空闲线程数，0 使用 CPUCount()
	ThreadPoolIdle int
	// CallTimeout 同步调用的默认超时，0 表示不超时
	CallTimeout time.Duration
	// ShutdownTimeout Shutdown 等待 Actor 退出的时间，超时后强制 Kill
	ShutdownTimeout time.Duration
	// Logger 日志，nil 使用 slog.Default()
	Logger Logger
	// Reactor 事件化 I/O 挂钩，可为 nil
	Reactor Reactor
	// CPUCount CPU 数量来源，nil 使用 cpu.Count
	CPUCount func() int
}

// DefaultSystemConfig 默认系统配置
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MailboxSize:     0,
		TaskBacking:     task.Fiber,
		ShutdownTimeout: 30 * time.Second,
		CPUCount:        cpu.Count,
	}
}

// NewSystem 创建新的 Actor 系统
func NewSystem(name string) *System {
	return NewSystemWithConfig(name, DefaultSystemConfig())
}

// NewSystemWithConfig 使用配置创建 Actor 系统
func NewSystemWithConfig(name string, config *SystemConfig) *System {
	if config == nil {
		config = DefaultSystemConfig()
	}
	cfg := *config
	if cfg.Logger == nil {
		cfg.Logger = NewSlogLogger(nil)
	}
	if cfg.CPUCount == nil {
		cfg.CPUCount = cpu.Count
	}
	if cfg.ThreadPoolIdle <= 0 {
		cfg.ThreadPoolIdle = cfg.CPUCount()
	}

	s := &System{
		name:     name,
		config:   &cfg,
		logger:   cfg.Logger,
		pool:     task.NewPool(cfg.ThreadPoolIdle, cfg.LockOSThread),
		registry: newRegistry(),
		actors:   make(map[string]*Actor),
		stats:    newSystemStats(),
	}
	s.isRunning.Store(true)

	s.logger.Debug("actor system started", "name", name, "backing", cfg.TaskBacking.String(), "threads", cfg.ThreadPoolIdle)
	return s
}

// Name 返回系统名称
func (s *System) Name() string {
	return s.name
}

// Config 返回生效的配置
func (s *System) Config() SystemConfig {
	return *s.config
}

// Logger 返回日志
func (s *System) Logger() Logger {
	return s.logger
}

// Registry 返回注册表
func (s *System) Registry() *Registry {
	return s.registry
}

// Lookup 按注册名查找
func (s *System) Lookup(name string) *Ref {
	return s.registry.Get(name)
}

// IsRunning 系统是否在运行
func (s *System) IsRunning() bool {
	return s.isRunning.Load()
}

// ═══════════════════════════════════════════════════════════════════════════
// 创建 Actor
// ═══════════════════════════════════════════════════════════════════════════

// Spawn 把 subject 包装为 Actor 并启动
//
// subject 的导出方法成为可调用的方法。实现 Initializer 时 Init 在返回前于 Actor 内同步执行。
func (s *System) Spawn(subject any, opts ...Option) (*Ref, error) {
	return s.spawn(nil, subject, nil, opts)
}

// SpawnLink 创建 Actor 并与 peer 链接
func (s *System) SpawnLink(peer Proxy, subject any, opts ...Option) (*Ref, error) {
	return s.spawn(nil, subject, peer.ActorRef().actor, opts)
}

// Supervise 创建监督者
func (s *System) Supervise(cfg SupervisorConfig, opts ...Option) (*Ref, error) {
	return s.Spawn(NewSupervisor(cfg), opts...)
}

func (s *System) spawn(caller *Context, subject any, linkTo *Actor, opts []Option) (*Ref, error) {
	if !s.isRunning.Load() {
		return nil, ErrSystemStopped
	}
	methods, err := buildMethodTable(subject)
	if err != nil {
		return nil, err
	}
	props := buildProps(opts)
	a := newActor(s, subject, methods, props)
	if err := a.resolveHooks(); err != nil {
		return nil, err
	}

	s.actorsMu.Lock()
	s.actors[a.ref.address] = a
	s.actorsMu.Unlock()
	s.stats.recordSpawn()

	s.pool.Go(a.run)

	if initializer, ok := subject.(Initializer); ok {
		if err := s.initialize(caller, a, initializer); err != nil {
			return nil, err
		}
	}

	if linkTo != nil {
		if err := link(linkTo, a); err != nil {
			_ = a.ref.Terminate()
			return nil, pkgerrors.Wrap(err, "link spawned actor")
		}
	}
	if props.Name != "" {
		if err := s.registry.Set(props.Name, a.ref); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("spawned actor", "actor", a.ref.String(), "name", props.Name)
	return a.ref, nil
}

// initialize 以调用的形式在新 Actor 内执行 Init；失败时结束该 Actor
func (s *System) initialize(caller *Context, a *Actor, initializer Initializer) error {
	f := newFuture(a.ref.String(), "Init")
	c := &Call{
		Method: "Init",
		kind:   task.TypeInit,
		reply:  f,
		run: func(ctx *Context) (any, error) {
			return nil, initializer.Init(ctx)
		},
	}
	if err := a.mailbox.Send(c); err != nil {
		return deadError(err)
	}

	var err error
	if caller != nil {
		_, err = caller.Await(f, 0)
	} else {
		_, err = f.Value(0)
	}
	if err != nil {
		_ = a.ref.TerminateAsync()
		<-a.done
		return pkgerrors.Wrap(err, "init actor")
	}
	return nil
}

func (s *System) unregister(a *Actor) {
	s.actorsMu.Lock()
	delete(s.actors, a.ref.address)
	s.actorsMu.Unlock()
	s.stats.recordExit()
}

// ListActors 所有存活的 Actor，按地址排序
func (s *System) ListActors() []*Ref {
	s.actorsMu.RLock()
	refs := make([]*Ref, 0, len(s.actors))
	for _, a := range s.actors {
		refs = append(refs, a.ref)
	}
	s.actorsMu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].address < refs[j].address })
	return refs
}

// Count 存活的 Actor 数
func (s *System) Count() int {
	s.actorsMu.RLock()
	defer s.actorsMu.RUnlock()
	return len(s.actors)
}

// Stats 系统统计快照
func (s *System) Stats() SystemStatsSnapshot {
	return SystemStatsSnapshot{
		ActorsSpawned:    s.stats.spawned.Load(),
		ActorsTerminated: s.stats.terminated.Load(),
		ActorsCrashed:    s.stats.crashed.Load(),
		ActorsAlive:      s.Count(),
		Restarts:         s.stats.restarts.Load(),
		ThreadsBusy:      s.pool.Busy(),
		ThreadsIdle:      s.pool.Idle(),
		Uptime:           time.Since(s.stats.startedAt),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 关闭
// ═══════════════════════════════════════════════════════════════════════════

// Shutdown 以配置的超时关闭系统
func (s *System) Shutdown() error {
	return s.ShutdownWithTimeout(s.config.ShutdownTimeout)
}

// ShutdownWithTimeout 请求所有 Actor 退出并等待；超时未退出的被 Kill
func (s *System) ShutdownWithTimeout(timeout time.Duration) error {
	if !s.isRunning.CompareAndSwap(true, false) {
		return nil
	}
	s.logger.Debug("actor system shutting down", "name", s.name, "actors", s.Count())

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var g errgroup.Group
	for _, ref := range s.ListActors() {
		g.Go(func() error {
			if err := ref.TerminateAsync(); err != nil && !errors.Is(err, ErrDeadActor) {
				return err
			}
			select {
			case <-ref.Done():
				return nil
			case <-ctx.Done():
				ref.Kill()
				return fmt.Errorf("actor %s did not stop in %s: %w", ref, timeout, ErrTimeout)
			}
		})
	}
	err := g.Wait()
	if err != nil {
		s.logger.Warn("actor system shutdown timeout, killed remaining actors", "name", s.name, "error", err)
	}

	s.pool.Shutdown()
	s.registry.Clear()
	s.logger.Debug("actor system shutdown complete", "name", s.name)
	return err
}
