package types

import (
	"fmt"

	"github.com/DataExMachina-dev/checkpoint-go/internal/writer"
)

// Enum is a static table mapping the closed index range [0, N) to display
// names. Every index must be mapped.
type Enum struct {
	names []string
}

func NewEnum(names ...string) Enum {
	return Enum{names: names}
}

func (e Enum) Len() int {
	return len(e.names)
}

// Name returns the name of index i. An index without a name is a programming
// error and panics.
func (e Enum) Name(i int) string {
	if i < 0 || i >= len(e.names) || e.names[i] == "" {
		panic(fmt.Sprintf("types: no name for enum index %d", i))
	}
	return e.names[i]
}

func (e Enum) Serialize(w *writer.Writer) {
	w.WriteCount(uint32(len(e.names)))
	for i := range e.names {
		w.WriteKey(uint64(i))
		writer.Write(w, e.Name(i))
	}
}
