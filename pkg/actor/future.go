package actor

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Future 一次调用的未来结果
//
// 应答只记录一次，之后的 Value 直接返回同一结果，不会再次调用方法。
type Future struct {
	target string
	method string

	once      sync.Once
	done      chan struct{}
	mu        sync.Mutex
	resp      *Response
	callbacks []func()
}

func newFuture(target, method string) *Future {
	return &Future{target: target, method: method, done: make(chan struct{})}
}

func (f *Future) deliver(resp *Response) {
	f.once.Do(func() {
		f.mu.Lock()
		f.resp = resp
		callbacks := f.callbacks
		f.callbacks = nil
		f.mu.Unlock()
		close(f.done)
		for _, cb := range callbacks {
			cb()
		}
	})
}

// onReady 结果就绪时调用 cb；已就绪时立即调用
func (f *Future) onReady(cb func()) {
	f.mu.Lock()
	if f.resp == nil {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	cb()
}

// Ready 结果是否已就绪
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done 结果就绪时关闭的通道
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Value 阻塞当前 goroutine 直到结果就绪，timeout <= 0 表示一直等待
//
// 在 Actor 的 Task 中应使用 Context.Await，它只挂起当前 Task。
func (f *Future) Value(timeout time.Duration) (any, error) {
	if timeout > 0 {
		select {
		case <-f.done:
		case <-time.After(timeout):
			return nil, &TimeoutError{Op: "future " + f.method, Timeout: timeout}
		}
	} else {
		<-f.done
	}
	return f.result()
}

func (f *Future) result() (any, error) {
	f.mu.Lock()
	resp := f.resp
	f.mu.Unlock()
	return unpackResponse(f.target, resp)
}

// unpackResponse 成功返回值；失败时包装为带调用方栈的 *CallError
func unpackResponse(target string, resp *Response) (any, error) {
	if resp.Err != nil {
		return nil, pkgerrors.WithStack(&CallError{Actor: target, Method: resp.Call.Method, Err: resp.Err})
	}
	return resp.Value, nil
}
