// Package notify 提供基于 Actor 的发布/订阅通知中心
//
// 通知中心本身是一个 Actor（主体为 [Fanout]）。订阅者以 (模式, Actor, 方法) 登记，
// 发布时对每个匹配的订阅者发起一次异步调用 method(topic, payload)，
// 因此投递不会阻塞发布方，也不会被慢订阅者拖住。
//
// 模式使用 path.Match 语法，例如 "orders/*" 匹配 "orders/created"。
// 订阅者退出后它的订阅被自动移除。
package notify

import (
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
)

// DefaultName 通知中心的默认注册名
const DefaultName = "notifications"

// ErrNoSubscription 取消不存在的订阅
var ErrNoSubscription = errors.New("no such subscription")

// Subscription 一条订阅
type Subscription struct {
	// ID 订阅标识（用于取消订阅）
	ID string
	// Pattern 主题模式
	Pattern string
	// Target 订阅者
	Target *actor.Ref
	// Method 订阅者接收通知的方法，签名 (topic string, payload any)
	Method string
}

// Stats 通知中心统计
type Stats struct {
	Published int64
	Delivered int64
	Dropped   int64
}

// ═══════════════════════════════════════════════════════════════════════════
// Fanout Actor 主体
// ═══════════════════════════════════════════════════════════════════════════

// Fanout 通知中心的 Actor 主体
//
// 字段只由所属 Actor 的 Task 访问，无需加锁。
type Fanout struct {
	subs  []*Subscription
	stats Stats
}

// NewFanout 创建通知中心主体
func NewFanout() *Fanout {
	return &Fanout{}
}

// Subscribe 登记订阅并监视订阅者，返回订阅标识
func (f *Fanout) Subscribe(ctx *actor.Context, pattern string, target *actor.Ref, method string) (string, error) {
	if target == nil {
		return "", errors.New("subscriber is nil")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if !target.Responds(method) {
		return "", &actor.NoMethodError{Method: method}
	}
	if target != ctx.Self() && !ctx.Monitoring(target) {
		if err := ctx.Monitor(target); err != nil {
			return "", err
		}
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Pattern: pattern,
		Target:  target,
		Method:  method,
	}
	f.subs = append(f.subs, sub)

	ctx.Logger().Debug("subscriber added",
		"subscription_id", sub.ID,
		"pattern", pattern,
		"subscriber", target.String(),
	)
	return sub.ID, nil
}

// Unsubscribe 取消订阅
func (f *Fanout) Unsubscribe(ctx *actor.Context, id string) error {
	for i, sub := range f.subs {
		if sub.ID != id {
			continue
		}
		f.subs = append(f.subs[:i], f.subs[i+1:]...)
		if !f.subscribed(sub.Target) {
			ctx.Unmonitor(sub.Target)
		}
		ctx.Logger().Debug("subscriber removed", "subscription_id", id)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoSubscription, id)
}

// UnsubscribeAll 取消 target 的全部订阅，返回取消数
func (f *Fanout) UnsubscribeAll(ctx *actor.Context, target *actor.Ref) int {
	n := f.drop(target)
	if n > 0 {
		ctx.Unmonitor(target)
	}
	return n
}

// Publish 把通知投递给全部匹配的订阅者，返回投递数
func (f *Fanout) Publish(ctx *actor.Context, topic string, payload any) int {
	f.stats.Published++
	delivered := 0
	for _, sub := range f.subs {
		if ok, _ := path.Match(sub.Pattern, topic); !ok {
			continue
		}
		if err := ctx.Async(sub.Target, sub.Method, topic, payload); err != nil {
			f.stats.Dropped++
			ctx.Logger().Warn("notification dropped",
				"subscription_id", sub.ID,
				"topic", topic,
				"error", err,
			)
			continue
		}
		delivered++
	}
	f.stats.Delivered += int64(delivered)
	return delivered
}

// Subscriptions 当前订阅的副本
func (f *Fanout) Subscriptions() []Subscription {
	out := make([]Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, *sub)
	}
	return out
}

// Stats 统计快照
func (f *Fanout) Stats() Stats {
	return f.stats
}

// HandleExit 订阅者退出时移除它的订阅
func (f *Fanout) HandleExit(ctx *actor.Context, ref *actor.Ref, reason error) {
	if n := f.drop(ref); n > 0 {
		ctx.Logger().Debug("subscriber exited", "subscriber", ref.String(), "subscriptions", n, "reason", reason)
	}
}

func (f *Fanout) subscribed(target *actor.Ref) bool {
	for _, sub := range f.subs {
		if sub.Target == target {
			return true
		}
	}
	return false
}

func (f *Fanout) drop(target *actor.Ref) int {
	kept := f.subs[:0]
	for _, sub := range f.subs {
		if sub.Target != target {
			kept = append(kept, sub)
		}
	}
	n := len(f.subs) - len(kept)
	for i := len(kept); i < len(f.subs); i++ {
		f.subs[i] = nil
	}
	f.subs = kept
	return n
}

// ═══════════════════════════════════════════════════════════════════════════
// Notifier 客户端
// ═══════════════════════════════════════════════════════════════════════════

// Notifier 通知中心的客户端
//
// 在其他 Actor 的 Task 中使用时先调用 From(ctx)，同步操作只挂起当前 Task。
type Notifier struct {
	ref *actor.Ref
	ctx *actor.Context
}

// Start 启动通知中心，默认注册为 DefaultName
func Start(sys *actor.System, opts ...actor.Option) (*Notifier, error) {
	opts = append([]actor.Option{actor.WithName(DefaultName)}, opts...)
	ref, err := sys.Spawn(NewFanout(), opts...)
	if err != nil {
		return nil, err
	}
	return &Notifier{ref: ref}, nil
}

// Lookup 按注册名查找已启动的通知中心
func Lookup(sys *actor.System, name string) (*Notifier, bool) {
	ref := sys.Lookup(name)
	if ref == nil || !ref.Responds("Publish") {
		return nil, false
	}
	return &Notifier{ref: ref}, true
}

// From 以 ctx 作为调用方
func (n *Notifier) From(ctx *actor.Context) *Notifier {
	return &Notifier{ref: n.ref, ctx: ctx}
}

// ActorRef 实现 actor.Proxy
func (n *Notifier) ActorRef() *actor.Ref {
	return n.ref
}

// Subscribe 订阅匹配 pattern 的主题，通知以 method(topic, payload) 投递给 target
func (n *Notifier) Subscribe(pattern string, target actor.Proxy, method string) (string, error) {
	return actor.CallAs[string](n.ref.Sync().From(n.ctx), "Subscribe", pattern, target.ActorRef(), method)
}

// Unsubscribe 取消订阅
func (n *Notifier) Unsubscribe(id string) error {
	_, err := n.ref.Sync().From(n.ctx).Invoke("Unsubscribe", id)
	return err
}

// UnsubscribeAll 取消 target 的全部订阅
func (n *Notifier) UnsubscribeAll(target actor.Proxy) (int, error) {
	return actor.CallAs[int](n.ref.Sync().From(n.ctx), "UnsubscribeAll", target.ActorRef())
}

// Publish 异步发布通知
func (n *Notifier) Publish(topic string, payload any) error {
	_, err := n.ref.AsyncProxy().From(n.ctx).Invoke("Publish", topic, payload)
	return err
}

// PublishSync 发布并等待投递完成，返回投递数
func (n *Notifier) PublishSync(topic string, payload any) (int, error) {
	return actor.CallAs[int](n.ref.Sync().From(n.ctx), "Publish", topic, payload)
}

// Subscriptions 当前订阅
func (n *Notifier) Subscriptions() ([]Subscription, error) {
	return actor.CallAs[[]Subscription](n.ref.Sync().From(n.ctx), "Subscriptions")
}

// Stats 统计快照
func (n *Notifier) Stats() (Stats, error) {
	return actor.CallAs[Stats](n.ref.Sync().From(n.ctx), "Stats")
}
