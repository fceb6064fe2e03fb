package reader

import (
	"fmt"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
)

// Strings returns the key to name mapping of a string table.
func (t *Table) Strings() map[uint64]string {
	m := make(map[uint64]string, len(t.Entries))
	for _, e := range t.Entries {
		if len(e.Fields) == 1 && e.Fields[0].Kind == FieldString {
			m[e.Key] = e.Fields[0].Str
		}
	}
	return m
}

// Keys returns the entry keys in output order.
func (t *Table) Keys() []uint64 {
	keys := make([]uint64, len(t.Entries))
	for i, e := range t.Entries {
		keys[i] = e.Key
	}
	return keys
}

// Thread is a decoded thread table entry. ManagedName is nil for native
// support threads.
type Thread struct {
	TraceID     uint64
	NativeName  string
	OSID        uint64
	ManagedName *string
	ManagedID   uint64
	GroupID     uint64
}

// Threads decodes a thread table.
func (t *Table) Threads() ([]Thread, error) {
	if t.Type != framing.TypeThread {
		return nil, fmt.Errorf("%s is not a thread table", t.Type)
	}
	out := make([]Thread, 0, len(t.Entries))
	for _, e := range t.Entries {
		th := Thread{
			TraceID:    e.Key,
			NativeName: e.Fields[0].Str,
			OSID:       e.Fields[1].Uint,
			ManagedID:  e.Fields[3].Uint,
			GroupID:    e.Fields[4].Uint,
		}
		if !e.Fields[2].Null {
			name := e.Fields[2].Str
			th.ManagedName = &name
		}
		out = append(out, th)
	}
	return out, nil
}

// ThreadGroup is a decoded thread group table entry. ParentID is zero for
// root groups.
type ThreadGroup struct {
	ID       uint64
	ParentID uint64
	Name     string
}

// ThreadGroups decodes a thread group table.
func (t *Table) ThreadGroups() ([]ThreadGroup, error) {
	if t.Type != framing.TypeThreadGroup {
		return nil, fmt.Errorf("%s is not a thread group table", t.Type)
	}
	out := make([]ThreadGroup, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, ThreadGroup{
			ID:       e.Key,
			ParentID: e.Fields[0].Uint,
			Name:     e.Fields[1].Str,
		})
	}
	return out, nil
}
