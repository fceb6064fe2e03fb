// Package writer implements the checkpoint writer: an append-only byte arena
// with reservations that are patched in place once their value is known, and
// cursor snapshots that allow a partially written record to be discarded.
//
// A Writer is not safe for concurrent use.
package writer

import (
	"errors"
	"fmt"
	"math/bits"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
)

// ErrBufferFull is reported by Err once a write would have grown the buffer
// beyond its maximum size.
var ErrBufferFull = errors.New("checkpoint buffer full")

// maxSlotWidth bounds reservations to what a uint64 padded varint can use.
const maxSlotWidth = 9

type Writer struct {
	out []byte
	max int
	err error

	// debug, when non-nil, receives one line per operation.
	debug *debugLog
}

// New returns a writer whose buffer starts with the given capacity and may
// grow up to max bytes.
func New(initial, max int) *Writer {
	if initial > max {
		initial = max
	}
	return &Writer{
		out: make([]byte, 0, initial),
		max: max,
	}
}

// Context is a snapshot of the writer cursor.
type Context struct {
	offset int
}

// Reservation references a reserved slot in the buffer. The zero value is an
// invalid reservation, returned when the writer was already full.
type Reservation struct {
	offset int
	width  int
}

// Valid reports whether the reservation references bytes in the buffer.
func (r Reservation) Valid() bool {
	return r.width != 0
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.out)
}

// Bytes returns the written bytes. The slice aliases the writer's buffer and
// is only valid until the next write.
func (w *Writer) Bytes() []byte {
	return w.out
}

// Err returns ErrBufferFull if any write was dropped because the buffer
// reached its maximum size.
func (w *Writer) Err() error {
	return w.err
}

// Reset empties the buffer and clears the error, keeping the allocation.
func (w *Writer) Reset() {
	w.out = w.out[:0]
	w.err = nil
	w.debug.printf("reset()")
}

// Context captures the current cursor.
func (w *Writer) Context() Context {
	ctx := Context{offset: len(w.out)}
	w.debug.printf("context() = %d", ctx.offset)
	return ctx
}

// SetContext rolls the cursor back to ctx. Everything written since the
// context was captured, reservations included, is discarded. The error state
// is sticky and is not rolled back.
func (w *Writer) SetContext(ctx Context) {
	if ctx.offset > len(w.out) {
		panic(fmt.Sprintf("writer: context at %d is ahead of the cursor at %d", ctx.offset, len(w.out)))
	}
	w.out = w.out[:ctx.offset]
	w.debug.printf("set_context(%d)", ctx.offset)
}

// ensure reports whether n more bytes fit, marking the writer full otherwise.
func (w *Writer) ensure(n int) bool {
	if w.err != nil {
		return false
	}
	if len(w.out)+n > w.max {
		w.err = ErrBufferFull
		w.debug.printf("full(%d+%d > %d)", len(w.out), n, w.max)
		return false
	}
	return true
}

// Reserve allocates width bytes at the cursor and advances past them. The
// slot must later be filled exactly once with PatchUvarint or WriteCountAt,
// unless it is discarded by SetContext.
func (w *Writer) Reserve(width int) Reservation {
	if width < 1 || width > maxSlotWidth {
		panic(fmt.Sprintf("writer: invalid reservation width %d", width))
	}
	if !w.ensure(width) {
		w.debug.printf("reserve(%d) = invalid", width)
		return Reservation{}
	}
	r := Reservation{offset: len(w.out), width: width}
	for i := 0; i < width; i++ {
		w.out = append(w.out, framing.Unpatched)
	}
	w.debug.printf("reserve(%d) = %d", width, r.offset)
	return r
}

// PatchUvarint fills the reserved slot with v encoded as a padded varint. The
// cursor does not move.
func (w *Writer) PatchUvarint(v uint64, r Reservation) {
	if !r.Valid() {
		return
	}
	if r.offset+r.width > len(w.out) {
		panic(fmt.Sprintf("writer: reservation at %d was rolled back", r.offset))
	}
	slot := w.out[r.offset : r.offset+r.width]
	if slot[r.width-1] != framing.Unpatched {
		panic(fmt.Sprintf("writer: reservation at %d patched twice", r.offset))
	}
	if bits.Len64(v) > 7*r.width {
		panic(fmt.Sprintf("writer: value %d does not fit in a %d byte slot", v, r.width))
	}
	for i := 0; i < r.width-1; i++ {
		slot[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	slot[r.width-1] = byte(v)
	w.debug.printf("patch(%d) = %d", r.offset, v)
}

// WriteCountAt patches a count into a reservation.
func (w *Writer) WriteCountAt(n uint32, r Reservation) {
	w.PatchUvarint(uint64(n), r)
}

// WriteCount appends a count whose value is known up front.
func (w *Writer) WriteCount(n uint32) {
	w.WriteUvarint(uint64(n))
}

// WriteKey appends the key of a constant table entry.
func (w *Writer) WriteKey(id uint64) {
	w.WriteUvarint(id)
}

func (w *Writer) WriteUvarint(v uint64) {
	if !w.ensure(protowire.SizeVarint(v)) {
		return
	}
	w.out = protowire.AppendVarint(w.out, v)
}

func (w *Writer) WriteVarint(v int64) {
	w.WriteUvarint(protowire.EncodeZigZag(v))
}

func (w *Writer) WriteBool(b bool) {
	if !w.ensure(1) {
		return
	}
	if b {
		w.out = append(w.out, 1)
	} else {
		w.out = append(w.out, 0)
	}
}

// WriteString appends s. The empty string gets its own encoding so that it
// stays distinct from null.
func (w *Writer) WriteString(s string) {
	if s == "" {
		if w.ensure(1) {
			w.out = append(w.out, framing.StringEmpty)
		}
		return
	}
	if !w.ensure(1 + protowire.SizeBytes(len(s))) {
		return
	}
	w.out = append(w.out, framing.StringUTF8)
	w.out = protowire.AppendString(w.out, s)
}

// WriteNullString appends a null string.
func (w *Writer) WriteNullString() {
	if !w.ensure(1) {
		return
	}
	w.out = append(w.out, framing.StringNull)
}

// Value is the set of field types Write accepts.
type Value interface {
	uint8 | uint16 | uint32 | uint64 | int32 | int64 | bool | string
}

// Write appends v using the encoding of its type. Unsigned integers are
// varints, signed integers zigzag varints.
func Write[T Value](w *Writer, v T) {
	switch x := any(v).(type) {
	case uint8:
		w.WriteUvarint(uint64(x))
	case uint16:
		w.WriteUvarint(uint64(x))
	case uint32:
		w.WriteUvarint(uint64(x))
	case uint64:
		w.WriteUvarint(x)
	case int32:
		w.WriteVarint(int64(x))
	case int64:
		w.WriteVarint(x)
	case bool:
		w.WriteBool(x)
	case string:
		w.WriteString(x)
	}
}
