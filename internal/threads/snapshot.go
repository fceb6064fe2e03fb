package threads

import (
	"github.com/DataExMachina-dev/checkpoint-go/internal/lockorder"
)

// Snapshot is a consistent view of the registry. It is only valid inside the
// callback passed to Registry.Snapshot.
type Snapshot struct {
	r     *Registry
	held  *lockorder.Held[lockorder.Threads]
	scope *NameScope
}

// NameScope keeps thread names stable while it is open. Names read through
// the same scope are consistent with each other.
type NameScope struct {
	held *lockorder.Held[lockorder.ThreadNames]
}

// Snapshot runs fn with the registry lock held and a name scope open. No
// thread can be registered or removed until fn returns.
func (r *Registry) Snapshot(fn func(s *Snapshot)) {
	held := r.mu.Lock()
	defer held.Unlock()
	scope := &NameScope{held: lockorder.Nest(held, &r.names)}
	defer scope.held.Unlock()
	s := &Snapshot{r: r, held: held, scope: scope}
	fn(s)
}

// ForEachManaged calls f for every live managed thread in registration order.
func (s *Snapshot) ForEachManaged(f func(t *Thread)) {
	s.held.Check()
	for _, t := range s.r.managed {
		f(t)
	}
}

// ForEachNative calls f for every live native support thread in registration
// order.
func (s *Snapshot) ForEachNative(f func(t *Thread)) {
	s.held.Check()
	for _, t := range s.r.native {
		f(t)
	}
}

// Live reports whether t is registered.
func (s *Snapshot) Live(t *Thread) bool {
	s.held.Check()
	return t.live
}

func (s *Snapshot) TraceID(t *Thread) uint64 {
	return t.traceID
}

func (s *Snapshot) OSID(t *Thread) uint64 {
	return t.osID
}

// DisplayName returns the current name of t.
func (s *Snapshot) DisplayName(t *Thread) string {
	s.scope.held.Check()
	return t.name
}

// ManagedID returns the managed id of t, or 0 for native threads.
func (s *Snapshot) ManagedID(t *Thread) uint64 {
	return t.managedID
}

// ThreadGroupID returns the id of t's thread group and marks the group and its
// ancestors as referenced, so that the thread group table describes them. It
// returns 0 for native threads.
func (s *Snapshot) ThreadGroupID(t *Thread) uint64 {
	if t.group == nil {
		return 0
	}
	gh := lockorder.Nest(s.held, &s.r.groups)
	defer gh.Unlock()
	for g := t.group; g != nil && !g.referenced; g = g.parent {
		g.referenced = true
	}
	return t.group.id
}

// GroupChain returns t's group followed by its ancestors, and marks them
// referenced. It returns nil for native threads.
func (s *Snapshot) GroupChain(t *Thread) []GroupInfo {
	if t.group == nil {
		return nil
	}
	gh := lockorder.Nest(s.held, &s.r.groups)
	defer gh.Unlock()
	var chain []GroupInfo
	for g := t.group; g != nil; g = g.parent {
		g.referenced = true
		chain = append(chain, g.info())
	}
	return chain
}
