package actor

import (
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 类型化调用辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// As 把调用结果断言为 T；err 非空时原样返回
//
// 用法示例:
//
//	n, err := actor.As[int](ref.Call("Count"))
func As[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected result type %T, want %T", v, zero)
	}
	return out, nil
}

// CallAs 通过任意代理调用并把结果断言为 T
//
// 用法示例:
//
//	n, err := actor.CallAs[int](ref.Sync().From(ctx), "Count")
func CallAs[T any](c Caller, method string, args ...any) (T, error) {
	return As[T](c.Invoke(method, args...))
}

// AwaitAs 等待 Future 并把结果断言为 T
func AwaitAs[T any](f *Future, timeout time.Duration) (T, error) {
	return As[T](f.Value(timeout))
}

// MustSpawn 创建 Actor，失败时 panic；用于示例与测试
func MustSpawn(s *System, subject any, opts ...Option) *Ref {
	ref, err := s.Spawn(subject, opts...)
	if err != nil {
		panic(err)
	}
	return ref
}
