package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/reader"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

func newWriter() *writer.Writer {
	return writer.New(256, 1<<20)
}

func decode(t *testing.T, w *writer.Writer, n int, extra map[framing.TypeID]reader.Schema) []reader.Table {
	t.Helper()
	require.NoError(t, w.Err())
	tables, err := reader.NewDecoder(extra).DecodeTypes(w.Bytes(), n)
	require.NoError(t, err)
	return tables
}

func TestEnumWritesEveryIndex(t *testing.T) {
	const id framing.TypeID = 1000
	w := newWriter()
	require.True(t, WriteType(w, id, NewEnum("A", "B", "C")))

	tables := decode(t, w, 1, map[framing.TypeID]reader.Schema{id: {reader.FieldString}})
	require.Equal(t, []uint64{0, 1, 2}, tables[0].Keys())
	require.Equal(t, map[uint64]string{0: "A", 1: "B", 2: "C"}, tables[0].Strings())
}

func TestEnumUnmappedIndexPanics(t *testing.T) {
	e := NewEnum("A", "", "C")
	require.Panics(t, func() { e.Serialize(newWriter()) })
	require.Panics(t, func() { e.Name(3) })
}

func TestStaticTablesAreTotal(t *testing.T) {
	for _, s := range Statics {
		t.Run(s.ID.String(), func(t *testing.T) {
			w := newWriter()
			require.True(t, WriteType(w, s.ID, s.Serializer))
			tables := decode(t, w, 1, nil)
			tab := tables[0]
			require.Equal(t, s.ID, tab.Type)
			require.NotEmpty(t, tab.Entries)
			for i, e := range tab.Entries {
				require.EqualValues(t, i, e.Key, "keys are dense and ascending")
				require.False(t, e.Fields[0].Null)
				require.NotEmpty(t, e.Fields[0].Str)
			}
			if e, ok := s.Serializer.(Enum); ok {
				require.Len(t, tab.Entries, e.Len())
			}
		})
	}
}

func TestCodeBlobTypeIsSingleEntry(t *testing.T) {
	w := newWriter()
	require.True(t, WriteType(w, framing.TypeCodeBlobType, CodeBlobType))
	tables := decode(t, w, 1, nil)
	require.Equal(t, map[uint64]string{0: "CodeCache"}, tables[0].Strings())
}

func TestThreadStateMatchesRegistry(t *testing.T) {
	require.Equal(t, int(threads.NumStates), ThreadState.Len())
	require.Equal(t, "STATE_NEW", ThreadState.Name(0))
	require.Equal(t, threads.StateBlocked.String(), ThreadState.Name(int(threads.StateBlocked)))
}

func TestRegisterDuplicate(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(framing.TypeGCWhen, true, GCWhen))
	require.ErrorIs(t, m.Register(framing.TypeGCWhen, true, GCName), ErrDuplicateType)

	w := newWriter()
	n := m.WriteTypes(w, framing.KindAll)
	require.EqualValues(t, 1, n)
	tabs := decode(t, w, int(n), nil)
	require.Equal(t, framing.TypeGCWhen, tabs[0].Type)
	require.Len(t, tabs[0].Entries, GCWhen.Len())
}

func TestWriteTypeElidesEmptyTable(t *testing.T) {
	w := newWriter()
	w.WriteKey(42)
	before := w.Len()
	empty := SerializerFunc(func(w *writer.Writer) {
		writer.WriteTable(w, func(*writer.Table) {})
	})
	require.False(t, WriteType(w, framing.TypeThread, empty))
	require.Equal(t, before, w.Len())
}

func TestManagerSelectsByKind(t *testing.T) {
	reg := threads.NewRegistry()
	reg.StartNative("gc", 7)
	m := DefaultManager(reg)

	w := newWriter()
	n := m.WriteTypes(w, framing.KindStatics)
	require.EqualValues(t, len(Statics), n)
	decode(t, w, int(n), nil)

	w = newWriter()
	n = m.WriteTypes(w, framing.KindThreads)
	// No managed thread referenced a group, so only the thread table is left.
	require.EqualValues(t, 1, n)
	tables := decode(t, w, 1, nil)
	require.Equal(t, framing.TypeThread, tables[0].Type)
}

func TestThreadSetEmptyRegistryLeavesNoBytes(t *testing.T) {
	m := DefaultManager(threads.NewRegistry())
	w := newWriter()
	require.Zero(t, m.WriteTypes(w, framing.KindThreads))
	require.Zero(t, w.Len())
}

func TestThreadSetRecords(t *testing.T) {
	reg := threads.NewRegistry()
	var groups []*threads.Group
	for i := 0; i < 5; i++ {
		groups = append(groups, reg.NewGroup("g", nil))
	}
	workers := groups[4]
	require.EqualValues(t, 5, workers.ID())

	reg.StartManaged("main", 100, workers)
	reg.StartManaged("worker-1", 101, workers)

	w := newWriter()
	require.True(t, WriteType(w, framing.TypeThread, ThreadSet{Registry: reg}))
	tables := decode(t, w, 1, nil)
	got, err := tables[0].Threads()
	require.NoError(t, err)

	main, worker := "main", "worker-1"
	require.Equal(t, []reader.Thread{
		{TraceID: 1, NativeName: "main", OSID: 100, ManagedName: &main, ManagedID: 1, GroupID: 5},
		{TraceID: 2, NativeName: "worker-1", OSID: 101, ManagedName: &worker, ManagedID: 2, GroupID: 5},
	}, got)
}

func TestThreadSetManagedThenNative(t *testing.T) {
	reg := threads.NewRegistry()
	g := reg.NewGroup("main", nil)
	const managed, native = 3, 2
	for i := 0; i < native; i++ {
		reg.StartNative("native", uint64(200+i))
	}
	for i := 0; i < managed; i++ {
		reg.StartManaged("managed", uint64(100+i), g)
	}

	m := DefaultManager(reg)
	w := newWriter()
	require.EqualValues(t, 2, m.WriteTypes(w, framing.KindThreads))
	tables := decode(t, w, 2, nil)

	got, err := tables[0].Threads()
	require.NoError(t, err)
	require.Len(t, got, managed+native)
	seen := map[uint64]bool{}
	for i, th := range got {
		require.False(t, seen[th.TraceID], "trace ids are unique")
		seen[th.TraceID] = true
		if i < managed {
			require.NotNil(t, th.ManagedName)
			require.Equal(t, g.ID(), th.GroupID)
			continue
		}
		require.Nil(t, th.ManagedName)
		require.Zero(t, th.ManagedID)
		require.Zero(t, th.GroupID)
		require.Equal(t, "native", th.NativeName)
	}

	groups, err := tables[1].ThreadGroups()
	require.NoError(t, err)
	require.Equal(t, []reader.ThreadGroup{{ID: g.ID(), Name: "main"}}, groups)
}

func TestWriteThreadWithGroupChain(t *testing.T) {
	reg := threads.NewRegistry()
	root := reg.NewGroup("system", nil)
	mainGroup := reg.NewGroup("main", root)
	th := reg.StartManaged("worker", 9, mainGroup)
	reg.StartManaged("other", 10, mainGroup)

	w := newWriter()
	require.EqualValues(t, 2, WriteThread(w, reg, th))
	tables := decode(t, w, 2, nil)

	got, err := tables[0].Threads()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, th.TraceID(), got[0].TraceID)

	groups, err := tables[1].ThreadGroups()
	require.NoError(t, err)
	require.Equal(t, []reader.ThreadGroup{
		{ID: root.ID(), Name: "system"},
		{ID: mainGroup.ID(), ParentID: root.ID(), Name: "main"},
	}, groups)
}

func TestWriteThreadNativeAndExited(t *testing.T) {
	reg := threads.NewRegistry()
	n := reg.StartNative("compiler", 3)

	w := newWriter()
	require.EqualValues(t, 1, WriteThread(w, reg, n))
	decode(t, w, 1, nil)

	reg.Exit(n)
	w = newWriter()
	require.Zero(t, WriteThread(w, reg, n))
	require.Zero(t, w.Len())
}
