// Package framing contains the constants of the checkpoint binary layout. The
// writer and reader packages both encode against these definitions.
//
// A checkpoint is laid out as:
//
//	size:res4 | event | start_ticks | duration:res8 | sequence | kind | type_count:res4 | types...
//
// where res<N> marks a slot reserved up front and patched once its value is
// known. Every type is encoded as `type_id | count | entries`.
package framing

import (
	"fmt"
	"strconv"
)

// EventCheckpoint is the event type written right after the size slot.
const EventCheckpoint = 1

// Widths of the reserved (padded varint) slots.
const (
	SizeWidth      = 4
	DurationWidth  = 8
	CountWidth     = 4
	TypeCountWidth = CountWidth
)

// Unpatched is the byte a reserved slot is filled with until it is patched.
// A padded varint never ends in a byte with the continuation bit set, so an
// 0xFF in the last position identifies a slot that is still open.
const Unpatched = 0xFF

// String encodings. The encoding byte precedes every string value.
const (
	StringNull  byte = 0
	StringEmpty byte = 1
	StringUTF8  byte = 3
)

// Kind is a bit set describing which tables a checkpoint carries.
type Kind uint32

const (
	// KindStatics carries the static enumeration tables.
	KindStatics Kind = 1 << iota
	// KindThreads carries the live thread and thread group tables.
	KindThreads
	// KindThread carries a single thread and its thread group chain.
	KindThread

	KindAll = KindStatics | KindThreads
)

func (k Kind) Has(o Kind) bool {
	return k&o != 0
}

func (k Kind) String() string {
	switch k {
	case KindStatics:
		return "statics"
	case KindThreads:
		return "threads"
	case KindThread:
		return "thread"
	case KindAll:
		return "all"
	}
	return "Kind(" + strconv.FormatUint(uint64(k), 10) + ")"
}

// ParseKind is the inverse of Kind.String for the named kinds.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindStatics, KindThreads, KindThread, KindAll} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown checkpoint kind %q", s)
}

// TypeID identifies a constant table in the checkpoint.
type TypeID uint64

const (
	TypeFlagValueOrigin TypeID = iota + 100
	TypeMonitorInflateCause
	TypeGCCause
	TypeGCName
	TypeGCWhen
	TypeG1HeapRegionType
	TypeGCThresholdUpdater
	TypeMetadataType
	TypeMetaspaceObjectType
	TypeG1YCType
	TypeReferenceType
	TypeNarrowOopMode
	TypeCompilerPhaseType
	TypeCodeBlobType
	TypeVMOperationType
	TypeThreadState

	TypeThread      TypeID = 200
	TypeThreadGroup TypeID = 201
)

var typeNames = map[TypeID]string{
	TypeFlagValueOrigin:     "FlagValueOrigin",
	TypeMonitorInflateCause: "InflateCause",
	TypeGCCause:             "GCCause",
	TypeGCName:              "GCName",
	TypeGCWhen:              "GCWhen",
	TypeG1HeapRegionType:    "G1HeapRegionType",
	TypeGCThresholdUpdater:  "GCThresholdUpdater",
	TypeMetadataType:        "MetadataType",
	TypeMetaspaceObjectType: "MetaspaceObjectType",
	TypeG1YCType:            "G1YCType",
	TypeReferenceType:       "ReferenceType",
	TypeNarrowOopMode:       "NarrowOopMode",
	TypeCompilerPhaseType:   "CompilerPhaseType",
	TypeCodeBlobType:        "CodeBlobType",
	TypeVMOperationType:     "VMOperationType",
	TypeThreadState:         "ThreadState",
	TypeThread:              "Thread",
	TypeThreadGroup:         "ThreadGroup",
}

// String returns the table name, or "Type(<id>)" for types registered at
// runtime by users.
func (t TypeID) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Type(" + strconv.FormatUint(uint64(t), 10) + ")"
}
