package actor

import "sync"

// linkTable 一个 Actor 的链接与监视关系
//
// links 双向链接；monitors 本 Actor 监视的对象；watchers 监视本 Actor 的对象。
// 关闭后拒绝新增，保证退出时的快照之后不会再出现新的关系。
type linkTable struct {
	mu       sync.Mutex
	links    map[string]*Ref
	monitors map[string]*Ref
	watchers map[string]*Ref
	closed   bool
}

func newLinkTable() *linkTable {
	return &linkTable{
		links:    make(map[string]*Ref),
		monitors: make(map[string]*Ref),
		watchers: make(map[string]*Ref),
	}
}

type linkKind int

const (
	kindLink linkKind = iota
	kindMonitor
	kindWatcher
)

func (t *linkTable) set(kind linkKind) map[string]*Ref {
	switch kind {
	case kindMonitor:
		return t.monitors
	case kindWatcher:
		return t.watchers
	default:
		return t.links
	}
}

func (t *linkTable) add(kind linkKind, ref *Ref) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.set(kind)[ref.address] = ref
	return true
}

func (t *linkTable) remove(kind linkKind, ref *Ref) {
	t.mu.Lock()
	delete(t.set(kind), ref.address)
	t.mu.Unlock()
}

func (t *linkTable) has(kind linkKind, ref *Ref) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.set(kind)[ref.address]
	return ok
}

func (t *linkTable) list(kind linkKind) []*Ref {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Ref, 0, len(t.set(kind)))
	for _, ref := range t.set(kind) {
		out = append(out, ref)
	}
	return out
}

// linkSnapshot 关闭时的关系快照
type linkSnapshot struct {
	links    []*Ref
	monitors []*Ref
	watchers []*Ref
}

// close 关闭并清空，返回关闭前的快照
func (t *linkTable) close() linkSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := linkSnapshot{}
	for _, ref := range t.links {
		snap.links = append(snap.links, ref)
	}
	for _, ref := range t.monitors {
		snap.monitors = append(snap.monitors, ref)
	}
	for addr, ref := range t.watchers {
		if _, linked := t.links[addr]; !linked {
			snap.watchers = append(snap.watchers, ref)
		}
	}
	t.closed = true
	t.links = make(map[string]*Ref)
	t.monitors = make(map[string]*Ref)
	t.watchers = make(map[string]*Ref)
	return snap
}

// ═══════════════════════════════════════════════════════════════════════════
// 双方关系的建立与解除；一次只持有一侧的锁
// ═══════════════════════════════════════════════════════════════════════════

func link(a, b *Actor) error {
	if a == b {
		return nil
	}
	if !a.links.add(kindLink, b.ref) {
		return ErrDeadActor
	}
	if !b.links.add(kindLink, a.ref) {
		a.links.remove(kindLink, b.ref)
		return ErrDeadActor
	}
	return nil
}

func unlink(a, b *Actor) {
	a.links.remove(kindLink, b.ref)
	b.links.remove(kindLink, a.ref)
}

// monitor a 单向监视 b
func monitor(a, b *Actor) error {
	if a == b {
		return nil
	}
	if !a.links.add(kindMonitor, b.ref) {
		return ErrDeadActor
	}
	if !b.links.add(kindWatcher, a.ref) {
		a.links.remove(kindMonitor, b.ref)
		return ErrDeadActor
	}
	return nil
}

func unmonitor(a, b *Actor) {
	a.links.remove(kindMonitor, b.ref)
	b.links.remove(kindWatcher, a.ref)
}
