package writer

import "github.com/DataExMachina-dev/checkpoint-go/internal/framing"

// Table writes a constant table whose entry count is only known once the
// entries have been produced. BeginTable captures the cursor and reserves the
// count; End patches the count, or rolls the writer back to the captured
// cursor when no entry was added, so that empty tables never reach the output.
type Table struct {
	w     *Writer
	ctx   Context
	count Reservation
	n     uint32
	ended bool
}

func BeginTable(w *Writer) Table {
	ctx := w.Context()
	return Table{
		w:     w,
		ctx:   ctx,
		count: w.Reserve(framing.CountWidth),
	}
}

// Add accounts for one entry. Call it once per key written.
func (t *Table) Add() {
	t.n++
}

// Len returns the number of entries added so far.
func (t *Table) Len() uint32 {
	return t.n
}

// End completes the table and reports whether it was kept.
func (t *Table) End() bool {
	if t.ended {
		panic("writer: table ended twice")
	}
	t.ended = true
	if t.n == 0 {
		t.w.SetContext(t.ctx)
		return false
	}
	t.w.WriteCountAt(t.n, t.count)
	return true
}

// WriteTable runs produce between BeginTable and End.
func WriteTable(w *Writer, produce func(t *Table)) bool {
	t := BeginTable(w)
	produce(&t)
	return t.End()
}
