// Package threads is the thread registry the recorder describes in its thread
// tables. It tracks two disjoint populations: managed threads, which carry a
// managed name, id and thread group, and native support threads, which only
// have a native name and an OS id.
//
// Creation, destruction and snapshots are serialized by the registry lock, so
// a snapshot never observes a thread that is half registered or half removed.
package threads

import (
	"fmt"
	"sync/atomic"

	"github.com/DataExMachina-dev/checkpoint-go/internal/lockorder"
)

// Kind distinguishes the two thread populations.
type Kind uint8

const (
	Managed Kind = iota + 1
	Native
)

func (k Kind) String() string {
	switch k {
	case Managed:
		return "managed"
	case Native:
		return "native"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Thread is a registered thread. A *Thread is the opaque handle handed out by
// the registry.
type Thread struct {
	kind      Kind
	traceID   uint64
	osID      uint64
	managedID uint64
	group     *Group
	state     atomic.Uint32

	// name is guarded by Registry.names.
	name string
	// live is guarded by Registry.mu.
	live bool
}

func (t *Thread) Kind() Kind {
	return t.kind
}

// TraceID is stable for the lifetime of the thread and never reused.
func (t *Thread) TraceID() uint64 {
	return t.traceID
}

func (t *Thread) State() State {
	return State(t.state.Load())
}

// Group is a managed thread group. Groups form a tree; roots have no parent.
type Group struct {
	id     uint64
	parent *Group
	name   string

	// referenced is guarded by Registry.groups.
	referenced bool
}

func (g *Group) ID() uint64 {
	return g.id
}

func (g *Group) Name() string {
	return g.name
}

// Registry is the thread registry.
type Registry struct {
	mu     lockorder.Mutex[lockorder.Threads]
	names  lockorder.Mutex[lockorder.ThreadNames]
	groups lockorder.Mutex[lockorder.ThreadGroups]

	// managed and native are guarded by mu and kept in registration order.
	managed []*Thread
	native  []*Thread

	// allGroups is guarded by groups and kept in creation order, so parents
	// always precede their children.
	allGroups []*Group

	nextTraceID   atomic.Uint64
	nextManagedID atomic.Uint64
	nextGroupID   atomic.Uint64

	onStart atomic.Pointer[func(*Thread)]
}

func NewRegistry() *Registry {
	return &Registry{}
}

// OnStart installs a hook invoked after every thread registration, outside of
// the registry lock. A nil hook removes it.
func (r *Registry) OnStart(f func(*Thread)) {
	if f == nil {
		r.onStart.Store(nil)
		return
	}
	r.onStart.Store(&f)
}

// NewGroup creates a thread group. parent may be nil.
func (r *Registry) NewGroup(name string, parent *Group) *Group {
	g := &Group{
		id:     r.nextGroupID.Add(1),
		parent: parent,
		name:   name,
	}
	h := r.groups.Lock()
	r.allGroups = append(r.allGroups, g)
	h.Unlock()
	return g
}

// StartManaged registers a managed thread. group must not be nil.
func (r *Registry) StartManaged(name string, osID uint64, group *Group) *Thread {
	if group == nil {
		panic("threads: managed thread without a group")
	}
	t := &Thread{
		kind:      Managed,
		osID:      osID,
		managedID: r.nextManagedID.Add(1),
		group:     group,
		name:      name,
	}
	r.start(t, &r.managed)
	return t
}

// StartNative registers a native support thread.
func (r *Registry) StartNative(name string, osID uint64) *Thread {
	t := &Thread{
		kind: Native,
		osID: osID,
		name: name,
	}
	r.start(t, &r.native)
	return t
}

func (r *Registry) start(t *Thread, population *[]*Thread) {
	t.state.Store(uint32(StateRunnable))
	held := r.mu.Lock()
	t.traceID = r.nextTraceID.Add(1)
	t.live = true
	*population = append(*population, t)
	held.Unlock()

	if f := r.onStart.Load(); f != nil {
		(*f)(t)
	}
}

// Exit removes t from the registry. Exiting twice is a no-op.
func (r *Registry) Exit(t *Thread) {
	held := r.mu.Lock()
	defer held.Unlock()
	if !t.live {
		return
	}
	t.live = false
	t.state.Store(uint32(StateTerminated))
	population := &r.native
	if t.kind == Managed {
		population = &r.managed
	}
	for i, o := range *population {
		if o == t {
			*population = append((*population)[:i], (*population)[i+1:]...)
			break
		}
	}
}

// SetName renames t.
func (r *Registry) SetName(t *Thread, name string) {
	held := r.names.Lock()
	t.name = name
	held.Unlock()
}

// SetState records the scheduling state of t.
func (r *Registry) SetState(t *Thread, s State) {
	if s >= NumStates {
		panic(fmt.Sprintf("threads: invalid state %d", s))
	}
	t.state.Store(uint32(s))
}

// Len returns the number of live managed and native threads.
func (r *Registry) Len() (managed, native int) {
	held := r.mu.Lock()
	defer held.Unlock()
	return len(r.managed), len(r.native)
}

// GroupInfo describes a thread group in a table.
type GroupInfo struct {
	ID       uint64
	ParentID uint64
	Name     string
}

func (g *Group) info() GroupInfo {
	gi := GroupInfo{ID: g.id, Name: g.name}
	if g.parent != nil {
		gi.ParentID = g.parent.id
	}
	return gi
}

// ForEachReferencedGroup calls f, parents first, for every group that was
// resolved through Snapshot.ThreadGroupID.
func (r *Registry) ForEachReferencedGroup(f func(GroupInfo)) {
	held := r.groups.Lock()
	defer held.Unlock()
	for _, g := range r.allGroups {
		if g.referenced {
			f(g.info())
		}
	}
}
