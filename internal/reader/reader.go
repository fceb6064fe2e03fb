// Package reader decodes checkpoints produced by the writer package. It is
// used by tests, the command line tool and the HTTP status page to resolve the
// constant tables back into Go values.
package reader

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
)

var (
	ErrTruncated   = errors.New("checkpoint: truncated")
	ErrBadEncoding = errors.New("checkpoint: bad encoding")
)

// FieldKind is the encoding of one value in a table entry.
type FieldKind uint8

const (
	FieldUint FieldKind = iota
	FieldString
)

// Schema lists the fields following the key of every entry of a table.
type Schema []FieldKind

var (
	stringSchema      = Schema{FieldString}
	threadSchema      = Schema{FieldString, FieldUint, FieldString, FieldUint, FieldUint}
	threadGroupSchema = Schema{FieldUint, FieldString}
)

// DefaultSchemas returns the schemas of the builtin tables.
func DefaultSchemas() map[framing.TypeID]Schema {
	m := map[framing.TypeID]Schema{
		framing.TypeThread:      threadSchema,
		framing.TypeThreadGroup: threadGroupSchema,
	}
	for id := framing.TypeFlagValueOrigin; id <= framing.TypeThreadState; id++ {
		m[id] = stringSchema
	}
	return m
}

// Value is one decoded field.
type Value struct {
	Kind FieldKind
	Null bool
	Uint uint64
	Str  string
}

func (v Value) String() string {
	switch {
	case v.Null:
		return "null"
	case v.Kind == FieldString:
		return fmt.Sprintf("%q", v.Str)
	default:
		return fmt.Sprintf("%d", v.Uint)
	}
}

type Entry struct {
	Key    uint64
	Fields []Value
}

type Table struct {
	Type    framing.TypeID
	Entries []Entry
}

type Checkpoint struct {
	Size       uint64
	StartTicks uint64
	Duration   uint64
	Sequence   uint64
	Kind       framing.Kind
	Types      []Table
}

// Table returns the table with the given type id.
func (c *Checkpoint) Table(id framing.TypeID) (*Table, bool) {
	for i := range c.Types {
		if c.Types[i].Type == id {
			return &c.Types[i], true
		}
	}
	return nil, false
}

// Decoder decodes checkpoints using a schema per table type.
type Decoder struct {
	schemas map[framing.TypeID]Schema
}

// NewDecoder returns a decoder that knows the builtin tables plus extra.
func NewDecoder(extra map[framing.TypeID]Schema) *Decoder {
	s := DefaultSchemas()
	for id, sc := range extra {
		s[id] = sc
	}
	return &Decoder{schemas: s}
}

// Decode decodes every checkpoint in buf. Checkpoints are self-delimiting, so
// buf may hold several back to back.
func (d *Decoder) Decode(buf []byte) ([]Checkpoint, error) {
	var out []Checkpoint
	for len(buf) > 0 {
		c, n, err := d.DecodeOne(buf)
		if err != nil {
			return out, fmt.Errorf("checkpoint %d: %w", len(out), err)
		}
		out = append(out, c)
		buf = buf[n:]
	}
	return out, nil
}

// Decode decodes buf with the builtin schemas.
func Decode(buf []byte) ([]Checkpoint, error) {
	return NewDecoder(nil).Decode(buf)
}

// DecodeOne decodes the checkpoint at the start of buf and returns the number
// of bytes it occupies.
func (d *Decoder) DecodeOne(buf []byte) (Checkpoint, int, error) {
	var c Checkpoint
	p := parser{buf: buf}
	c.Size = p.uvarint()
	if p.err != nil {
		return c, 0, p.err
	}
	// The size slot is a padded varint of fixed width.
	if p.off != framing.SizeWidth {
		return c, 0, fmt.Errorf("size field of %d bytes: %w", p.off, ErrBadEncoding)
	}
	if c.Size > uint64(len(buf)) || c.Size < framing.SizeWidth {
		return c, 0, fmt.Errorf("size %d of %d available: %w", c.Size, len(buf), ErrTruncated)
	}
	p.buf = buf[:c.Size]
	if ev := p.uvarint(); p.err == nil && ev != framing.EventCheckpoint {
		return c, 0, fmt.Errorf("unexpected event type %d: %w", ev, ErrBadEncoding)
	}
	c.StartTicks = p.uvarint()
	c.Duration = p.uvarint()
	c.Sequence = p.uvarint()
	c.Kind = framing.Kind(p.uvarint())
	typeCount := p.uvarint()
	for i := uint64(0); i < typeCount && p.err == nil; i++ {
		t, err := d.table(&p)
		if err != nil {
			return c, 0, err
		}
		c.Types = append(c.Types, t)
	}
	if p.err != nil {
		return c, 0, p.err
	}
	if p.off != len(p.buf) {
		return c, 0, fmt.Errorf("%d trailing bytes: %w", len(p.buf)-p.off, ErrBadEncoding)
	}
	return c, int(c.Size), nil
}

// DecodeTypes decodes n type records written back to back without a
// checkpoint header, and fails if buf holds anything else.
func (d *Decoder) DecodeTypes(buf []byte, n int) ([]Table, error) {
	p := parser{buf: buf}
	var out []Table
	for i := 0; i < n; i++ {
		t, err := d.table(&p)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	if p.err != nil {
		return out, p.err
	}
	if p.off != len(buf) {
		return out, fmt.Errorf("%d trailing bytes: %w", len(buf)-p.off, ErrBadEncoding)
	}
	return out, nil
}

func (d *Decoder) table(p *parser) (Table, error) {
	t := Table{Type: framing.TypeID(p.uvarint())}
	schema, ok := d.schemas[t.Type]
	if p.err == nil && !ok {
		return t, fmt.Errorf("no schema for %s: %w", t.Type, ErrBadEncoding)
	}
	count := p.uvarint()
	if p.err == nil && count == 0 {
		return t, fmt.Errorf("empty %s table: %w", t.Type, ErrBadEncoding)
	}
	for i := uint64(0); i < count && p.err == nil; i++ {
		e := Entry{Key: p.uvarint(), Fields: make([]Value, len(schema))}
		for j, k := range schema {
			e.Fields[j] = p.value(k)
		}
		t.Entries = append(t.Entries, e)
	}
	if p.err != nil {
		return t, fmt.Errorf("%s table: %w", t.Type, p.err)
	}
	return t, nil
}

type parser struct {
	buf []byte
	off int
	err error
}

func (p *parser) uvarint() uint64 {
	if p.err != nil {
		return 0
	}
	if p.off > len(p.buf) {
		p.err = ErrTruncated
		return 0
	}
	v, n := protowire.ConsumeVarint(p.buf[p.off:])
	if n < 0 {
		p.err = ErrTruncated
		return 0
	}
	p.off += n
	return v
}

func (p *parser) value(k FieldKind) Value {
	if k == FieldUint {
		return Value{Kind: FieldUint, Uint: p.uvarint()}
	}
	v := Value{Kind: FieldString}
	if p.err != nil {
		return v
	}
	if p.off >= len(p.buf) {
		p.err = ErrTruncated
		return v
	}
	enc := p.buf[p.off]
	p.off++
	switch enc {
	case framing.StringNull:
		v.Null = true
	case framing.StringEmpty:
	case framing.StringUTF8:
		b, n := protowire.ConsumeBytes(p.buf[p.off:])
		if n < 0 {
			p.err = ErrTruncated
			return v
		}
		p.off += n
		v.Str = string(b)
	default:
		p.err = fmt.Errorf("string encoding %d: %w", enc, ErrBadEncoding)
	}
	return v
}
