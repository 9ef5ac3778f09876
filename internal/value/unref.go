package value

import "github.com/funvibe/funxylisp/internal/heap"

// Dereferencer is the minimal VM surface Unref needs: read a heap object
// and read a global slot. *vm.VM implements this; value stays ignorant of
// the rest of the VM to avoid an import cycle.
type Dereferencer interface {
	HeapGet(h heap.Handle) (interface{}, error)
	GlobalGet(slot int32) Value
}

// Unref follows Binding, Global, and Value (generic indirection) kinds
// transparently, per spec §3's "never observed by arithmetic or display
// operations" invariant. Every other kind returns unchanged. Chains of
// indirection (a Binding whose cell holds a Global, say) are followed to a
// fixed point.
func (v Value) Unref(d Dereferencer) Value {
	for {
		switch v.Kind {
		case KBinding:
			obj, err := d.HeapGet(v.H)
			if err != nil {
				return Undefined
			}
			v = obj.(Value)
		case KGlobal:
			v = d.GlobalGet(v.Aux)
		case KValue:
			obj, err := d.HeapGet(v.H)
			if err != nil {
				return Undefined
			}
			v = obj.(Value)
		default:
			return v
		}
	}
}

// Equals implements value equality used by Map/PersistentMap keys and the
// JMPEQ opcode: scalars compare by value, boxed scalars dereference once,
// collections compare by identity of their heap handle (structural equality
// of mutable collections is a builtin's job, not this core's).
func (v Value) Equals(other Value, h *heap.Heap) bool {
	if v.Kind != other.Kind {
		// Cross-kind numeric equality: 1 (Int32) should equal 1 (Int64).
		if v.IsInt() && other.IsInt() {
			a, errA := v.GetInt(h)
			b, errB := other.GetInt(h)
			return errA == nil && errB == nil && a == b
		}
		return false
	}
	switch v.Kind {
	case KNil, KTrue, KFalse, KUndefined:
		return true
	case KByte, KInt32, KUInt32, KCodePoint, KBuiltin:
		return v.I == other.I
	case KInt64, KUInt64:
		a, _ := v.GetInt(h)
		b, _ := other.GetInt(h)
		return a == b
	case KFloat64:
		a, _ := v.GetFloat(h)
		b, _ := other.GetFloat(h)
		return a == b
	case KCharCluster:
		return v.ClusterLen == other.ClusterLen && v.Cluster == other.Cluster
	case KSymbol, KKeyword, KStringConst:
		return v.Sym == other.Sym
	case KString:
		a, errA := h.Get(v.H)
		b, errB := h.Get(other.H)
		if errA != nil || errB != nil {
			return false
		}
		return string(a.(*StringObj).Data) == string(b.(*StringObj).Data)
	case KGlobal:
		return v.Aux == other.Aux
	default:
		return v.H == other.H
	}
}
