package actor_test

import (
	"errors"
	"fmt"
	"time"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// Counter 示例计数器
type Counter struct {
	n int
}

// Increment 增加计数，不传参数时加 1
func (c *Counter) Increment(by ...int) {
	if len(by) == 0 {
		c.n++
	}
	for _, b := range by {
		c.n += b
	}
}

// Count 返回当前计数
func (c *Counter) Count() int {
	return c.n
}

// Crash 模拟崩溃
func (c *Counter) Crash() {
	panic(errors.New("boom"))
}

// Greeter 示例：在方法内部调用其他 Actor
type Greeter struct {
	counter *actor.Ref
}

// Greet 先让计数器加一，再返回问候语
func (g *Greeter) Greet(ctx *actor.Context, name string) (string, error) {
	if _, err := ctx.Call(g.counter, "Increment"); err != nil {
		return "", err
	}
	n, err := actor.As[int](ctx.Call(g.counter, "Count"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("hello %s #%d", name, n), nil
}

// Watcher 示例退出处理器
type Watcher struct {
	exits chan error
}

// HandleExit 处理链接 Actor 的退出
func (w *Watcher) HandleExit(_ *actor.Context, _ *actor.Ref, reason error) {
	w.exits <- reason
}

// Example_basic 演示 Actor 系统的基本使用
func Example_basic() {
	sys := actor.NewSystem("example")
	defer sys.Shutdown()

	ref, _ := sys.Spawn(&Counter{})

	// 异步调用不等待结果，同步调用在其后执行
	_ = ref.Async("Increment", 41)
	n, _ := actor.As[int](ref.Call("Count"))
	fmt.Println(n)

	// Output:
	// 41
}

// Example_future 演示 Future 调用
func Example_future() {
	sys := actor.NewSystem("future-example")
	defer sys.Shutdown()

	ref, _ := sys.Spawn(&Counter{})
	_ = ref.Async("Increment", 1, 2, 3)

	f, _ := ref.Future("Count")
	n, _ := actor.AwaitAs[int](f, time.Second)
	fmt.Println(n)

	// 结果只计算一次
	again, _ := actor.AwaitAs[int](f, 0)
	fmt.Println(again)

	// Output:
	// 6
	// 6
}

// Example_callFromActor 演示在 Actor 内部同步调用其他 Actor
func Example_callFromActor() {
	sys := actor.NewSystem("call-example")
	defer sys.Shutdown()

	counter, _ := sys.Spawn(&Counter{})
	greeter, _ := sys.Spawn(&Greeter{counter: counter})

	for _, name := range []string{"alice", "bob"} {
		msg, _ := actor.As[string](greeter.Call("Greet", name))
		fmt.Println(msg)
	}

	// Output:
	// hello alice #1
	// hello bob #2
}

// Example_link 演示链接与退出处理
func Example_link() {
	sys := actor.NewSystem("link-example")
	defer sys.Shutdown()

	w := &Watcher{exits: make(chan error, 1)}
	watcher, _ := sys.Spawn(w)
	worker, _ := sys.Spawn(&Counter{})
	_ = watcher.Link(worker)

	_ = worker.Async("Crash")
	reason := <-w.exits
	fmt.Println("worker exited:", reason)
	fmt.Println("watcher alive:", watcher.Alive())

	// Output:
	// worker exited: panic: boom
	// watcher alive: true
}

// Example_supervisor 演示监督者重启崩溃的成员
func Example_supervisor() {
	sys := actor.NewSystem("supervisor-example")
	defer sys.Shutdown()

	_, _ = sys.Supervise(actor.SupervisorConfig{
		Members: []actor.MemberSpec{{
			Name: "counter",
			New:  func(...any) any { return &Counter{} },
		}},
		Policy: actor.NewOneForOneStrategy(3, time.Minute, actor.DefaultDecider),
	})

	first := sys.Lookup("counter")
	_ = first.Async("Increment", 10)
	_ = first.Async("Crash")

	// 等待新实例注册
	current := sys.Lookup("counter")
	for current == nil || current == first {
		time.Sleep(5 * time.Millisecond)
		current = sys.Lookup("counter")
	}
	n, _ := actor.As[int](current.Call("Count"))
	fmt.Println("after restart:", n)

	// Output:
	// after restart: 0
}

// Example_newExponentialBackoffStrategy 演示指数退避策略
func Example_newExponentialBackoffStrategy() {
	strategy := actor.NewExponentialBackoffStrategy(
		100*time.Millisecond,
		time.Second,
		5,
		nil,
	)

	for range 3 {
		d := strategy.HandleFailure("worker", errors.New("boom"))
		fmt.Println(d.Directive, d.Delay)
	}

	// Output:
	// Restart 100ms
	// Restart 200ms
	// Restart 400ms
}

// Example_defaultProps 演示默认属性
func Example_defaultProps() {
	props := actor.DefaultProps()
	fmt.Printf("Name: %q\n", props.Name)
	fmt.Printf("MailboxSize: %d\n", props.MailboxSize)
	fmt.Printf("Exclusive: %v\n", props.Exclusive)

	// Output:
	// Name: ""
	// MailboxSize: 0
	// Exclusive: false
}
