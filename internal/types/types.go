// Package types contains the constant-table serializers of a checkpoint and
// the manager that writes them in order.
package types

import (
	"errors"
	"fmt"
	"sync"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

// Serializer writes the body of one constant table: its count followed by
// its entries.
type Serializer interface {
	Serialize(w *writer.Writer)
}

// SerializerFunc adapts a function to a Serializer.
type SerializerFunc func(w *writer.Writer)

func (f SerializerFunc) Serialize(w *writer.Writer) {
	f(w)
}

// ErrDuplicateType is returned by Register when the type id is taken.
var ErrDuplicateType = errors.New("type already registered")

type registration struct {
	id     framing.TypeID
	static bool
	s      Serializer
}

// Manager holds the registered serializers. Registration order is the order
// the tables are written in, so a table must be registered after the tables
// whose side effects it depends on.
type Manager struct {
	mu    sync.Mutex
	types []registration
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds a serializer. Static tables are written by checkpoints that
// carry framing.KindStatics, the others by checkpoints that carry
// framing.KindThreads.
func (m *Manager) Register(id framing.TypeID, static bool, s Serializer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.types {
		if r.id == id {
			return fmt.Errorf("%w: %v", ErrDuplicateType, id)
		}
	}
	m.types = append(m.types, registration{id: id, static: static, s: s})
	return nil
}

// WriteTypes writes every table selected by kind and returns how many were
// written. Tables that came out empty leave no trace in w.
func (m *Manager) WriteTypes(w *writer.Writer, kind framing.Kind) uint32 {
	m.mu.Lock()
	types := m.types
	m.mu.Unlock()

	var written uint32
	for _, r := range types {
		if r.static && !kind.Has(framing.KindStatics) ||
			!r.static && !kind.Has(framing.KindThreads) {
			continue
		}
		if WriteType(w, r.id, r.s) {
			written++
		}
	}
	return written
}

// WriteType writes one table prefixed with its type id. If s writes nothing
// the type id is discarded too and WriteType returns false.
func WriteType(w *writer.Writer, id framing.TypeID, s Serializer) bool {
	ctx := w.Context()
	w.WriteUvarint(uint64(id))
	body := w.Len()
	s.Serialize(w)
	if w.Len() == body {
		w.SetContext(ctx)
		return false
	}
	return true
}
