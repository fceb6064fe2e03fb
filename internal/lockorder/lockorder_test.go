package lockorder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNestUnderHeldParent(t *testing.T) {
	var threads Mutex[Threads]
	var names Mutex[ThreadNames]

	th := threads.Lock()
	n := Nest(th, &names)
	n.Check()
	n.Unlock()
	th.Unlock()

	// Both are free again.
	threads.Lock().Unlock()
	names.Lock().Unlock()
}

func TestNestUnderReleasedParentPanics(t *testing.T) {
	var threads Mutex[Threads]
	var groups Mutex[ThreadGroups]

	th := threads.Lock()
	th.Unlock()
	require.Panics(t, func() { Nest(th, &groups) })
}

func TestCheckAfterParentReleasedPanics(t *testing.T) {
	var threads Mutex[Threads]
	var names Mutex[ThreadNames]

	th := threads.Lock()
	n := Nest(th, &names)
	th.Unlock()
	require.Panics(t, n.Check)
	n.Unlock()
}

func TestDoubleUnlockPanics(t *testing.T) {
	var threads Mutex[Threads]
	th := threads.Lock()
	th.Unlock()
	require.Panics(t, th.Unlock)
}
