// Package lockorder provides mutexes whose acquisition order is checked by the
// compiler.
//
// Every mutex is parameterized by a lock level. A lock can always be taken on
// its own with Lock. Taking a lock while another one is held must go through
// Nest, which only type-checks when the inner level declares the outer level
// as its parent. The partial order is therefore the set of below methods
// defined in this file, and a new arc cannot be introduced without editing
// it:
//
//	Threads -> ThreadNames
//	Threads -> ThreadGroups
//
// Nest cannot stop code from calling Lock on an inner level while an outer
// lock is held through some other path; Held tokens make such paths visible
// because every function that runs under a lock receives its token.
package lockorder

import (
	"fmt"
	"sync"
)

// Level is a lock level. Levels are declared in this package only.
type Level interface {
	levelName() string
}

// Below is satisfied by levels that may be acquired while P is held.
type Below[P Level] interface {
	Level
	below(P)
}

// Threads guards thread creation, destruction and snapshots of the live
// thread population.
type Threads struct{}

func (Threads) levelName() string { return "threads" }

// ThreadNames guards mutable thread names.
type ThreadNames struct{}

func (ThreadNames) levelName() string { return "thread-names" }
func (ThreadNames) below(Threads) {}

// ThreadGroups guards the thread group set.
type ThreadGroups struct{}

func (ThreadGroups) levelName() string { return "thread-groups" }
func (ThreadGroups) below(Threads) {}

// Mutex is a sync.Mutex tagged with a lock level. The zero value is unlocked.
type Mutex[L Level] struct {
	mu sync.Mutex
}

// Held proves that a Mutex of level L is held by the caller.
type Held[L Level] struct {
	m        *Mutex[L]
	parent   interface{ isHeld() bool }
	released bool
}

func (h *Held[L]) isHeld() bool {
	return h != nil && !h.released
}

// Lock acquires m with no other ranked lock held.
func (m *Mutex[L]) Lock() *Held[L] {
	m.mu.Lock()
	return &Held[L]{m: m}
}

// Unlock releases the lock. Releasing twice panics.
func (h *Held[L]) Unlock() {
	if h.released {
		var l L
		panic(fmt.Sprintf("lockorder: %s unlocked twice", l.levelName()))
	}
	h.released = true
	h.m.mu.Unlock()
}

// Nest acquires m while parent is held. It only compiles when C declares P as
// a parent level.
func Nest[P Level, C Below[P]](parent *Held[P], m *Mutex[C]) *Held[C] {
	if !parent.isHeld() {
		var p P
		var c C
		panic(fmt.Sprintf("lockorder: %s acquired under released %s", c.levelName(), p.levelName()))
	}
	m.mu.Lock()
	return &Held[C]{m: m, parent: parent}
}

// Check panics if h does not prove a currently held lock. Functions that
// require a lock to be held call it on the token they were given.
func (h *Held[L]) Check() {
	if !h.isHeld() {
		var l L
		panic(fmt.Sprintf("lockorder: %s is not held", l.levelName()))
	}
	if h.parent != nil && !h.parent.isHeld() {
		var l L
		panic(fmt.Sprintf("lockorder: parent of %s was released first", l.levelName()))
	}
}
