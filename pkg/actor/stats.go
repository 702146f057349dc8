package actor

import (
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Actor 统计信息
// ═══════════════════════════════════════════════════════════════════════════

// ActorStats 单个 Actor 的调用与消息计数
type ActorStats struct {
	// 调用
	CallsReceived int64            // 分发的调用总数
	CallsHandled  int64            // 成功完成的调用数
	Errors        int64            // 返回错误、Abort 或 panic 的调用数
	Aborts        int64            // 以 Abort 结束的调用数
	Panics        int64            // 以 panic 结束的调用数
	ByMethod      map[string]int64 // 按方法名的分发次数

	// 普通消息
	MessagesDelivered int64 // 交给 Receive 的消息数
	MessagesDiscarded int64 // 没有接收者而丢弃的消息数

	// 调用耗时，从进入 Task 到产生响应，含挂起时间
	TotalLatency   time.Duration
	AverageLatency time.Duration
	MaxLatency     time.Duration
	MinLatency     time.Duration

	StartedAt   time.Time
	LastCallAt  time.Time
	LastErrorAt time.Time
	LastError   error
}

// StatsCollector 由 Actor 循环写入、可被任意 goroutine 读取的计数器
type StatsCollector struct {
	mu    sync.RWMutex
	stats ActorStats
}

// NewStatsCollector 创建统计收集器
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{stats: freshStats()}
}

func freshStats() ActorStats {
	return ActorStats{
		StartedAt: time.Now(),
		ByMethod:  make(map[string]int64),
	}
}

// RecordCall 记录一次调用分发
func (c *StatsCollector) RecordCall(method string) {
	c.mu.Lock()
	c.stats.CallsReceived++
	if method != "" {
		c.stats.ByMethod[method]++
	}
	c.stats.LastCallAt = time.Now()
	c.mu.Unlock()
}

// RecordHandled 记录一次成功完成的调用
func (c *StatsCollector) RecordHandled(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &c.stats
	st.CallsHandled++
	st.TotalLatency += latency
	st.AverageLatency = st.TotalLatency / time.Duration(st.CallsHandled)
	st.MaxLatency = max(st.MaxLatency, latency)
	if st.CallsHandled == 1 {
		st.MinLatency = latency
	} else {
		st.MinLatency = min(st.MinLatency, latency)
	}
}

// RecordError 记录一次失败的调用，按失败方式分别计数
func (c *StatsCollector) RecordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Errors++
	var (
		abort *AbortError
		perr  *PanicError
	)
	switch {
	case errors.As(err, &abort):
		c.stats.Aborts++
	case errors.As(err, &perr):
		c.stats.Panics++
	}
	c.stats.LastError = err
	c.stats.LastErrorAt = time.Now()
}

// RecordMessage 记录一条普通消息的去向
func (c *StatsCollector) RecordMessage(delivered bool) {
	c.mu.Lock()
	if delivered {
		c.stats.MessagesDelivered++
	} else {
		c.stats.MessagesDiscarded++
	}
	c.mu.Unlock()
}

// Stats 统计快照
func (c *StatsCollector) Stats() *ActorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := c.stats
	snapshot.ByMethod = maps.Clone(c.stats.ByMethod)
	return &snapshot
}

// Reset 清零
func (c *StatsCollector) Reset() {
	c.mu.Lock()
	c.stats = freshStats()
	c.mu.Unlock()
}

// ═══════════════════════════════════════════════════════════════════════════
// 系统统计
// ═══════════════════════════════════════════════════════════════════════════

// SystemStats 系统级计数器
type SystemStats struct {
	spawned    atomic.Int64
	terminated atomic.Int64
	crashed    atomic.Int64
	restarts   atomic.Int64
	startedAt  time.Time
}

func newSystemStats() *SystemStats {
	return &SystemStats{startedAt: time.Now()}
}

func (s *SystemStats) recordSpawn()   { s.spawned.Add(1) }
func (s *SystemStats) recordExit()    { s.terminated.Add(1) }
func (s *SystemStats) recordCrash()   { s.crashed.Add(1) }
func (s *SystemStats) recordRestart() { s.restarts.Add(1) }

// SystemStatsSnapshot 系统统计快照
type SystemStatsSnapshot struct {
	ActorsSpawned    int64
	ActorsTerminated int64
	ActorsCrashed    int64
	ActorsAlive      int
	Restarts         int64
	ThreadsBusy      int
	ThreadsIdle      int
	Uptime           time.Duration
}
