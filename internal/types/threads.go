package types

import (
	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

// ThreadSet writes one record per live thread, managed threads first. The
// registry lock is held for the whole table, so the count matches exactly
// the threads alive at one point in time. The table is elided when no thread
// is registered.
type ThreadSet struct {
	Registry *threads.Registry
}

func (ts ThreadSet) Serialize(w *writer.Writer) {
	ts.Registry.Snapshot(func(s *threads.Snapshot) {
		t := writer.BeginTable(w)
		s.ForEachManaged(func(th *threads.Thread) {
			t.Add()
			writeThread(w, s, th)
		})
		s.ForEachNative(func(th *threads.Thread) {
			t.Add()
			writeThread(w, s, th)
		})
		t.End()
	})
}

// writeThread writes a thread record:
//
//	trace_id | native_name | os_id | managed_name | managed_id | group_id
//
// Native threads have a null managed name and zero ids.
func writeThread(w *writer.Writer, s *threads.Snapshot, th *threads.Thread) {
	w.WriteKey(s.TraceID(th))
	name := s.DisplayName(th)
	writer.Write(w, name)
	writer.Write(w, s.OSID(th))
	if th.Kind() == threads.Managed {
		writer.Write(w, name)
		writer.Write(w, s.ManagedID(th))
		writer.Write(w, s.ThreadGroupID(th))
		return
	}
	w.WriteNullString()
	writer.Write[uint64](w, 0)
	writer.Write[uint64](w, 0)
}

// ThreadGroupSet writes the thread groups referenced by thread records,
// parents before children. It must run after ThreadSet.
type ThreadGroupSet struct {
	Registry *threads.Registry
}

func (gs ThreadGroupSet) Serialize(w *writer.Writer) {
	writer.WriteTable(w, func(t *writer.Table) {
		gs.Registry.ForEachReferencedGroup(func(g threads.GroupInfo) {
			t.Add()
			writeGroup(w, g)
		})
	})
}

func writeGroup(w *writer.Writer, g threads.GroupInfo) {
	w.WriteKey(g.ID)
	writer.Write(w, g.ParentID)
	writer.Write(w, g.Name)
}

// WriteThread writes a thread table holding only th, followed by a thread
// group table with th's group chain when th is managed. It returns the number
// of tables written, which is 0 if th is no longer registered.
func WriteThread(w *writer.Writer, reg *threads.Registry, th *threads.Thread) uint32 {
	var written uint32
	reg.Snapshot(func(s *threads.Snapshot) {
		if !s.Live(th) {
			return
		}
		var chain []threads.GroupInfo
		if WriteType(w, framing.TypeThread, SerializerFunc(func(w *writer.Writer) {
			w.WriteCount(1)
			writeThread(w, s, th)
			chain = s.GroupChain(th)
		})) {
			written++
		}
		if WriteType(w, framing.TypeThreadGroup, SerializerFunc(func(w *writer.Writer) {
			if len(chain) == 0 {
				return
			}
			w.WriteCount(uint32(len(chain)))
			for i := len(chain) - 1; i >= 0; i-- {
				writeGroup(w, chain[i])
			}
		})) {
			written++
		}
	})
	return written
}
