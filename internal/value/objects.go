package value

import "github.com/funvibe/funxylisp/internal/heap"

// PairObj is the heap-resident shape of a cons cell: exactly a (car, cdr)
// tuple. An empty list is the Nil singleton, never Pair(Nil, Nil) (spec §3
// invariant).
type PairObj struct {
	Car, Cdr Value
}

// VectorObj is a resizable, mutable vector of Values; it backs both plain
// Vector values and the shared head a List cursor walks.
type VectorObj struct {
	Items []Value
}

// StringObj is a mutable UTF-8 byte buffer.
type StringObj struct {
	Data []byte
}

// BytesObj is a mutable raw byte buffer, distinct from StringObj so string
// and binary data never alias each other's growth.
type BytesObj struct {
	Data []byte
}

// MapEntry is one key/value pair of an (insertion-)ordered Map.
type MapEntry struct {
	Key, Val Value
}

// MapObj is an ordered, mutable Value->Value mapping (distinct from the
// immutable PersistentMap kind).
type MapObj struct {
	Entries []MapEntry
}

// Get returns the value for key and whether it was present.
func (m *MapObj) Get(eq func(a, b Value) bool, key Value) (Value, bool) {
	for _, e := range m.Entries {
		if eq(e.Key, key) {
			return e.Val, true
		}
	}
	return Value{}, false
}

// Set inserts or updates key, preserving first-seen insertion order.
func (m *MapObj) Set(eq func(a, b Value) bool, key, val Value) {
	for i, e := range m.Entries {
		if eq(e.Key, key) {
			m.Entries[i].Val = val
			return
		}
	}
	m.Entries = append(m.Entries, MapEntry{Key: key, Val: val})
}

// LambdaObj is the heap shape backing both KLambda and KClosure: a compiled
// chunk plus whatever captured Bindings a closure carries. Chunk is an
// opaque `any` here (it would be *vm.Chunk) to avoid an import cycle
// between package value and package vm; the vm package is the only reader.
type LambdaObj struct {
	Chunk      interface{}
	Name       string
	Captures   []Value // Binding-kind Values, populated at closure creation
	FixedArgs  int
	HasRest    bool
}

// ContinuationObj freezes a call stack slice plus the register window
// needed to resume it (spec §4.2, §9 "Closures vs. stack indices"). Each
// captured vm.CallFrame already carries its own IP and Chunk, so replaying
// needs nothing beyond the frame slice itself. Frames is an `any` slice of
// vm.CallFrame for the same import-cycle reason as LambdaObj.Chunk.
type ContinuationObj struct {
	Frames    interface{}
	Registers []Value
	// ResultReg is the register index (relative to the top captured frame's
	// Base) that the call/cc invocation was about to deliver its result
	// into; replaying writes the continuation's argument there instead.
	ResultReg int
}

// GetInt returns the integer payload of any integer-kind Value, boxed or
// immediate, dereferencing the heap for the boxed kinds.
func (v Value) GetInt(h *heap.Heap) (int64, error) {
	switch v.Kind {
	case KByte, KInt32, KUInt32:
		return v.I, nil
	case KInt64:
		obj, err := h.Get(v.H)
		if err != nil {
			return 0, err
		}
		return obj.(int64), nil
	case KUInt64:
		obj, err := h.Get(v.H)
		if err != nil {
			return 0, err
		}
		return int64(obj.(uint64)), nil
	default:
		return 0, typeError("integer", v)
	}
}

// GetFloat returns v as a float64, widening any integer kind.
func (v Value) GetFloat(h *heap.Heap) (float64, error) {
	switch v.Kind {
	case KFloat64:
		obj, err := h.Get(v.H)
		if err != nil {
			return 0, err
		}
		return obj.(float64), nil
	case KByte, KInt32, KUInt32, KInt64, KUInt64:
		i, err := v.GetInt(h)
		if err != nil {
			return 0, err
		}
		return float64(i), nil
	default:
		return 0, typeError("number", v)
	}
}

func typeError(want string, v Value) error {
	return &TypeError{Want: want, Kind: v.Kind}
}

// TypeError reports a VM-level type mismatch (spec §7 VM error taxon).
type TypeError struct {
	Want string
	Kind Kind
}

func (e *TypeError) Error() string {
	return "expected " + e.Want + ", got value of kind " + kindName(e.Kind)
}

func kindName(k Kind) string {
	names := [...]string{
		"nil", "true", "false", "undefined",
		"byte", "int32", "uint32", "codepoint", "char-cluster",
		"int64", "uint64", "float64", "char-cluster-long", "string", "string-const", "bytes",
		"symbol", "keyword",
		"pair", "list", "vector", "persistent-vec", "persistent-map", "map",
		"builtin", "lambda", "closure", "continuation",
		"binding", "global", "value", "call-frame",
		"io-handle",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}
