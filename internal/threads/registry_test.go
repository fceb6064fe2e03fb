package threads

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotOrderAndAccessors(t *testing.T) {
	r := NewRegistry()
	system := r.NewGroup("system", nil)
	main := r.NewGroup("main", system)

	m1 := r.StartManaged("main", 100, main)
	n1 := r.StartNative("gc", 300)
	m2 := r.StartManaged("worker", 101, main)

	var managed, native []*Thread
	r.Snapshot(func(s *Snapshot) {
		s.ForEachManaged(func(t *Thread) { managed = append(managed, t) })
		s.ForEachNative(func(t *Thread) { native = append(native, t) })

		require.Equal(t, "worker", s.DisplayName(m2))
		require.EqualValues(t, 101, s.OSID(m2))
		require.EqualValues(t, 2, s.ManagedID(m2))
		require.EqualValues(t, 0, s.ManagedID(n1))
		require.EqualValues(t, 0, s.ThreadGroupID(n1))
		require.Equal(t, main.ID(), s.ThreadGroupID(m1))
	})
	require.Equal(t, []*Thread{m1, m2}, managed)
	require.Equal(t, []*Thread{n1}, native)

	require.EqualValues(t, 1, m1.TraceID())
	require.EqualValues(t, 2, n1.TraceID())
	require.EqualValues(t, 3, m2.TraceID())
}

func TestExitRemovesThread(t *testing.T) {
	r := NewRegistry()
	g := r.NewGroup("main", nil)
	a := r.StartManaged("a", 1, g)
	b := r.StartManaged("b", 2, g)
	r.Exit(a)
	r.Exit(a)

	m, n := r.Len()
	require.Equal(t, 1, m)
	require.Equal(t, 0, n)
	require.Equal(t, StateTerminated, a.State())
	r.Snapshot(func(s *Snapshot) {
		require.False(t, s.Live(a))
		require.True(t, s.Live(b))
	})
}

func TestReferencedGroupsParentsFirst(t *testing.T) {
	r := NewRegistry()
	root := r.NewGroup("system", nil)
	unused := r.NewGroup("unused", root)
	child := r.NewGroup("main", root)
	th := r.StartManaged("main", 1, child)

	var before []GroupInfo
	r.ForEachReferencedGroup(func(g GroupInfo) { before = append(before, g) })
	require.Empty(t, before)

	r.Snapshot(func(s *Snapshot) {
		chain := s.GroupChain(th)
		require.Equal(t, []GroupInfo{
			{ID: child.ID(), ParentID: root.ID(), Name: "main"},
			{ID: root.ID(), Name: "system"},
		}, chain)
	})

	var got []GroupInfo
	r.ForEachReferencedGroup(func(g GroupInfo) { got = append(got, g) })
	require.Equal(t, []GroupInfo{
		{ID: root.ID(), Name: "system"},
		{ID: child.ID(), ParentID: root.ID(), Name: "main"},
	}, got)
	require.NotEqual(t, unused.ID(), got[0].ID)
}

func TestOnStartRunsOutsideLock(t *testing.T) {
	r := NewRegistry()
	var seen []uint64
	r.OnStart(func(th *Thread) {
		// Taking a snapshot here would deadlock if the hook ran under the
		// registry lock.
		r.Snapshot(func(s *Snapshot) {
			require.True(t, s.Live(th))
		})
		seen = append(seen, th.TraceID())
	})
	r.StartNative("a", 1)
	r.StartNative("b", 2)
	r.OnStart(nil)
	r.StartNative("c", 3)
	require.Equal(t, []uint64{1, 2}, seen)
}

func TestSetNameAndState(t *testing.T) {
	r := NewRegistry()
	th := r.StartNative("before", 1)
	r.SetName(th, "after")
	r.SetState(th, StateParked)
	require.Equal(t, StateParked, th.State())
	require.Equal(t, "STATE_PARKED", th.State().String())
	require.Panics(t, func() { r.SetState(th, NumStates) })
	r.Snapshot(func(s *Snapshot) {
		require.Equal(t, "after", s.DisplayName(th))
	})
}

func TestConcurrentStartExitDuringSnapshots(t *testing.T) {
	r := NewRegistry()
	g := r.NewGroup("main", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				th := r.StartManaged("w", uint64(i), g)
				r.SetName(th, "renamed")
				r.Exit(th)
			}
		}(i)
	}
	for i := 0; i < 50; i++ {
		r.Snapshot(func(s *Snapshot) {
			s.ForEachManaged(func(th *Thread) {
				require.True(t, s.Live(th))
				_ = s.DisplayName(th)
				require.Equal(t, g.ID(), s.ThreadGroupID(th))
			})
		})
	}
	wg.Wait()
	m, _ := r.Len()
	require.Zero(t, m)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "managed", Managed.String())
	require.Equal(t, "native", Native.String())
	require.Equal(t, "Kind(9)", Kind(9).String())
	require.Equal(t, "State(42)", State(42).String())
}
