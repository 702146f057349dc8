package task

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Pool 线程租用池
//
// Go 把工作交给空闲 worker，没有空闲 worker 时新建一个。工作结束后 worker 归还；
// 空闲数超过上限的 worker 直接退出。开启 lockOSThread 时 worker 绑定独占的 OS 线程，
// 退出时该线程随之回收。
type Pool struct {
	maxIdle      int
	lockOSThread bool

	mu     sync.Mutex
	idle   []*worker
	closed bool

	busy    atomic.Int64
	created atomic.Int64
}

type worker struct {
	work chan *Handle
}

// Handle 一次线程租用的句柄
type Handle struct {
	fn   func()
	done chan struct{}
}

// Join 等待租用的工作结束，timeout <= 0 表示一直等待；返回是否已结束
func (h *Handle) Join(timeout time.Duration) bool {
	if timeout <= 0 {
		<-h.done
		return true
	}
	select {
	case <-h.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Alive 工作是否仍在执行
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done 工作结束时关闭的通道
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// NewPool 创建线程池；maxIdle 为保留的空闲 worker 上限
func NewPool(maxIdle int, lockOSThread bool) *Pool {
	if maxIdle < 0 {
		maxIdle = 0
	}
	return &Pool{maxIdle: maxIdle, lockOSThread: lockOSThread}
}

// Go 租用一个 worker 执行 fn
//
// Shutdown 之后不再创建或复用 worker，fn 在独立的 goroutine 中执行完即结束，
// 不计入 Created。关闭过程中仍在运行的 Task 依赖这一点完成退出。
func (p *Pool) Go(fn func()) *Handle {
	h := &Handle{fn: fn, done: make(chan struct{})}
	p.busy.Add(1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		go p.execute(h)
		return h
	}
	var w *worker
	if n := len(p.idle); n > 0 {
		w = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
	}
	p.mu.Unlock()

	if w == nil {
		w = p.spawn()
	}
	w.work <- h
	return h
}

func (p *Pool) spawn() *worker {
	w := &worker{work: make(chan *Handle)}
	p.created.Add(1)
	go func() {
		if p.lockOSThread {
			// 不调用 UnlockOSThread：goroutine 退出时线程被回收
			runtime.LockOSThread()
		}
		for h := range w.work {
			p.execute(h)
			if !p.release(w) {
				return
			}
		}
	}()
	return w
}

func (p *Pool) execute(h *Handle) {
	defer func() {
		p.busy.Add(-1)
		close(h.done)
	}()
	h.fn()
}

// release 归还 worker；返回 false 表示 worker 应退出
func (p *Pool) release(w *worker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.idle) >= p.maxIdle {
		return false
	}
	p.idle = append(p.idle, w)
	return true
}

// Busy 正在执行工作的 worker 数
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Idle 空闲 worker 数
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Created 累计创建的 worker 数
func (p *Pool) Created() int {
	return int(p.created.Load())
}

// Shutdown 让所有空闲 worker 退出；正在执行的 worker 在工作结束后退出
func (p *Pool) Shutdown() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, w := range idle {
		close(w.work)
	}
}
