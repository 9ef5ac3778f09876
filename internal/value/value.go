// Package value defines the tagged Value sum (spec §3) and the heap object
// shapes it boxes into. Every polymorphic site in the VM, analyzer, and
// printer passes this one closed type around instead of an interface
// hierarchy, per the "tagged union vs class hierarchy" design note.
package value

import (
	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
)

// Kind tags which variant a Value holds.
type Kind uint8

const (
	KNil Kind = iota
	KTrue
	KFalse
	KUndefined

	// Immediate scalars: payload lives directly in the Value, no heap.
	KByte
	KInt32
	KUInt32
	KCodePoint
	KCharCluster // short UTF-8 cluster, inline bytes

	// Boxed scalars: payload lives behind a heap Handle.
	KInt64
	KUInt64
	KFloat64
	KCharClusterLong
	KString
	KStringConst // an interned string used as string data, not a symbol
	KBytes

	// Symbolic.
	KSymbol
	KKeyword

	// Collections.
	KPair
	KList // shares a vector head with a cursor index; cdr is O(1)
	KVector
	KPersistentVec
	KPersistentMap
	KMap

	// Callables.
	KBuiltin
	KLambda
	KClosure
	KContinuation

	// Reference cells.
	KBinding // heap cell, read/written through
	KGlobal  // index into Globals
	KValue   // indirection through a generic boxed value

	// Internal.
	KCallFrame

	// KIOHandle wraps an internal/builtins I/O handle (file/reader/writer
	// state machine); opaque to the VM core itself, which only ever moves
	// it between registers and never inspects its heap payload.
	KIOHandle
)

// Value is the tagged sum every register, stack constant, and global slot
// holds. Fields are reused across kinds rather than union-packed, which
// costs a few bytes of padding in exchange for readable Go; see DESIGN.md
// for why this shape was chosen over an interface hierarchy.
type Value struct {
	Kind Kind

	// I carries immediate integer-like payloads (Byte/Int32/UInt32 stored
	// widened, CodePoint as a rune) and the Builtin function id.
	I int64

	// H is the heap handle for every boxed/collection/callable kind.
	H heap.Handle

	// Aux is a secondary integer payload: the List cursor index, the
	// Global slot, and (with SlotValid) a Symbol's pre-resolved global
	// slot.
	Aux int32

	// SlotValid distinguishes Symbol(id, None) from Symbol(id, Some(0)):
	// slot 0 is a legal global slot, so the option can't be folded into
	// Aux alone.
	SlotValid bool

	// Sym carries the interned id for Symbol/Keyword/StringConst kinds.
	Sym interner.ID

	// Cluster holds the inline UTF-8 bytes of a short CharCluster; ClusterLen
	// is the number of valid bytes (1-4).
	Cluster    [4]byte
	ClusterLen uint8
}

// Singletons are free to construct since they carry no payload.
var (
	Nil       = Value{Kind: KNil}
	True      = Value{Kind: KTrue}
	False     = Value{Kind: KFalse}
	Undefined = Value{Kind: KUndefined}
)

func Byte(b uint8) Value       { return Value{Kind: KByte, I: int64(b)} }
func Int32(i int32) Value      { return Value{Kind: KInt32, I: int64(i)} }
func UInt32(u uint32) Value    { return Value{Kind: KUInt32, I: int64(u)} }
func CodePoint(r rune) Value   { return Value{Kind: KCodePoint, I: int64(r)} }
func Builtin(id int64) Value   { return Value{Kind: KBuiltin, I: id} }
func Global(slot int32) Value  { return Value{Kind: KGlobal, Aux: slot} }
func CallFrame(h heap.Handle) Value { return Value{Kind: KCallFrame, H: h} }

// CharCluster builds an inline short character cluster (e.g. a grapheme of
// combining codepoints that fits in 4 bytes).
func CharCluster(b []byte) Value {
	v := Value{Kind: KCharCluster, ClusterLen: uint8(len(b))}
	copy(v.Cluster[:], b)
	return v
}

// Boxed scalar constructors: allocate on h and wrap the handle.
func Int64(h *heap.Heap, i int64) Value      { return Value{Kind: KInt64, H: h.Alloc(i)} }
func UInt64(h *heap.Heap, u uint64) Value    { return Value{Kind: KUInt64, H: h.Alloc(u)} }
func Float64(h *heap.Heap, f float64) Value  { return Value{Kind: KFloat64, H: h.Alloc(f)} }
func CharClusterLong(h *heap.Heap, s string) Value {
	return Value{Kind: KCharClusterLong, H: h.Alloc(s)}
}
func String(h *heap.Heap, s string) Value { return Value{Kind: KString, H: h.Alloc(&StringObj{Data: []byte(s)})} }
func Bytes(h *heap.Heap, b []byte) Value  { return Value{Kind: KBytes, H: h.Alloc(&BytesObj{Data: b})} }

// StringConst wraps an interned string id as constant string data (no
// heap allocation needed: the interner already owns the bytes).
func StringConst(id interner.ID) Value { return Value{Kind: KStringConst, Sym: id} }

func Symbol(id interner.ID) Value  { return Value{Kind: KSymbol, Sym: id} }
func Keyword(id interner.ID) Value { return Value{Kind: KKeyword, Sym: id} }

// SymbolWithSlot builds a Symbol already carrying its resolved global slot,
// the shape the analyzer and REF/DEF opcodes expect (spec §4.4, §4.5).
func SymbolWithSlot(id interner.ID, slot int32) Value {
	return Value{Kind: KSymbol, Sym: id, Aux: slot, SlotValid: true}
}

// Slot returns the symbol's pre-resolved global slot, if any.
func (v Value) Slot() (int32, bool) {
	if v.Kind != KSymbol || !v.SlotValid {
		return 0, false
	}
	return v.Aux, true
}

func Pair(h heap.Handle) Value           { return Value{Kind: KPair, H: h} }
func Vector(h heap.Handle) Value         { return Value{Kind: KVector, H: h} }
func PersistentVec(h heap.Handle) Value  { return Value{Kind: KPersistentVec, H: h} }
func PersistentMap(h heap.Handle) Value  { return Value{Kind: KPersistentMap, H: h} }
func MapVal(h heap.Handle) Value         { return Value{Kind: KMap, H: h} }
func Lambda(h heap.Handle) Value         { return Value{Kind: KLambda, H: h} }
func Closure(h heap.Handle) Value        { return Value{Kind: KClosure, H: h} }
func Continuation(h heap.Handle) Value   { return Value{Kind: KContinuation, H: h} }
func IOHandle(h heap.Handle) Value       { return Value{Kind: KIOHandle, H: h} }
func Binding(h heap.Handle) Value        { return Value{Kind: KBinding, H: h} }
func Indirect(h heap.Handle) Value       { return Value{Kind: KValue, H: h} }

// List builds a List cursor view: vecHandle must hold a *VectorObj; idx is
// the current head position. car is O(1) (vecHandle[idx]); cdr is O(1) too
// (same handle, idx+1) without copying the backing vector.
func List(vecHandle heap.Handle, idx int32) Value {
	return Value{Kind: KList, H: vecHandle, Aux: idx}
}

// IsNil reports whether v is the empty-list singleton.
func (v Value) IsNil() bool { return v.Kind == KNil }

// IsTruthy implements spec §4.5's truthiness law: Nil and False are the
// only false values.
func (v Value) IsTruthy() bool {
	return v.Kind != KNil && v.Kind != KFalse
}

// IsFalsey is the complement, spelled out because the JMP_F opcode branches
// on it directly and a bare `!IsTruthy()` reads worse at the call site.
func (v Value) IsFalsey() bool { return !v.IsTruthy() }

// IsInt reports whether v is one of the integer kinds (immediate or
// boxed), used to decide arithmetic coercion (spec §4.5).
func (v Value) IsInt() bool {
	switch v.Kind {
	case KByte, KInt32, KUInt32, KInt64, KUInt64:
		return true
	}
	return false
}

// IsFloat reports whether v is the float kind.
func (v Value) IsFloat() bool { return v.Kind == KFloat64 }

// IsNumber reports whether v is any numeric kind.
func (v Value) IsNumber() bool { return v.IsInt() || v.IsFloat() }
