// Package actor 提供基于协作式 Task 调度的 Actor 运行时
//
// 任意 Go 对象都可以通过 [System.Spawn] 成为 Actor：它的导出方法变成可调用的方法，
// 私有状态只由它自己的 Task 访问，无需加锁。
//
// 核心概念:
//   - [System]: 运行时上下文，持有注册表、线程池与配置，不使用全局状态
//   - [Ref]: Actor 引用，身份为邮箱地址；支持同步、异步、Future 三种调用
//   - [Context]: Task 内的上下文，提供挂起式的调用、睡眠、接收、条件等待
//   - 链接与监视: 崩溃以高优先级的 [ExitEvent] 传播
//   - [Supervisor]: 声明成员规格，崩溃时按 [RestartPolicy] 重启
//
// 调度模型:
//
// 每个 Actor 的消息循环从线程池租用一个 worker。循环取出调用后为其创建 Task 并立即运行；
// Task 只在显式的挂起点（同步调用、Sleep、Wait、Receive、Await、I/O 等待）让出，
// 因此同一 Actor 任一时刻最多只有一个 Task 在执行主体代码。
//
// 错误处理:
//
// 方法返回的 error 作为错误应答交给调用方，被调用方继续运行；方法中的 panic
// 同样交给调用方，但被调用方随之崩溃。用 [Abort] 中止调用只影响调用方。
//
// 基本用法:
//
//	type Counter struct{ n int }
//
//	func (c *Counter) Increment(by ...int) { ... }
//	func (c *Counter) Count() int          { return c.n }
//
//	sys := actor.NewSystem("app")
//	defer sys.Shutdown()
//
//	ref, _ := sys.Spawn(&Counter{})
//	_ = ref.Async("Increment", 41)
//	n, _ := actor.As[int](ref.Call("Count")) // 41
package actor
