package actor

import (
	"fmt"
	"sort"
	"sync"
)

// Proxy 可以代表一个 Actor 的对象；*Ref 与各调用代理都实现它
type Proxy interface {
	ActorRef() *Ref
}

// Registry 名称到 Actor 的映射，作用域为一个 System
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Ref
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[string]*Ref)}
}

// Set 注册名称；v 必须是 Actor 代理
//
// 对注册方同步生效；Actor 通过系统事件异步得知自己的名称，被覆盖的旧持有者随之清除该名称。
func (r *Registry) Set(name string, v any) error {
	p, ok := v.(Proxy)
	if !ok || p.ActorRef() == nil {
		return fmt.Errorf("%w: %T", ErrNotActorProxy, v)
	}
	ref := p.ActorRef()

	r.mu.Lock()
	prev := r.entries[name]
	r.entries[name] = ref
	r.mu.Unlock()

	if prev != nil && prev != ref {
		unname(prev, name)
	}
	_ = ref.actor.mailbox.SendSystemEvent(&namingRequest{name: name})
	return nil
}

// Get 按名称查找，不存在返回 nil
func (r *Registry) Get(name string) *Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

// Delete 删除名称，返回被删除的引用
func (r *Registry) Delete(name string) *Ref {
	r.mu.Lock()
	ref := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if ref != nil {
		unname(ref, name)
	}
	return ref
}

// Names 已排序的名称列表
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear 清空注册表
func (r *Registry) Clear() {
	r.mu.Lock()
	old := r.entries
	r.entries = make(map[string]*Ref)
	r.mu.Unlock()

	for name, ref := range old {
		unname(ref, name)
	}
}

// unname 通知 ref 名称 name 已不再指向它；Actor 已退出时忽略
func unname(ref *Ref, name string) {
	_ = ref.actor.mailbox.SendSystemEvent(&namingRequest{unset: name})
}

// deleteRef 删除仍指向 ref 的名称；已被新实例覆盖的名称保持不变
func (r *Registry) deleteRef(ref *Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, current := range r.entries {
		if current == ref {
			delete(r.entries, name)
		}
	}
}
