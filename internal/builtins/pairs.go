package builtins

import (
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installPairs registers cons-cell and list primitives as ordinary function
// values, so plain code can call them and pass them around. The analyzer
// emits the CONS/LIST opcodes itself only when it builds quoted and
// back-quoted data.
func installPairs(vm *vmpkg.VM) {
	def(vm, "cons", builtinCons)
	def(vm, "car", builtinCar)
	def(vm, "cdr", builtinCdr)
	def(vm, "list", builtinList)
	def(vm, "append", builtinAppend)
	def(vm, "pair?", builtinPairP)
	def(vm, "nil?", builtinNilP)
	def(vm, "not", builtinNot)
	def(vm, "eq?", builtinEq)
}

func builtinCons(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "cons takes exactly 2 arguments")
	}
	h := vm.Heap.Alloc(&value.PairObj{Car: vm.Unref(args[0]), Cdr: vm.Unref(args[1])})
	return value.Pair(h), nil
}

func builtinCar(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "car takes exactly 1 argument")
	}
	p, err := asPair(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	return p.Car, nil
}

func builtinCdr(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "cdr takes exactly 1 argument")
	}
	p, err := asPair(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	return p.Cdr, nil
}

func asPair(vm *vmpkg.VM, v value.Value) (*value.PairObj, error) {
	v = vm.Unref(v)
	if v.Kind != value.KPair {
		return nil, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a pair")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return nil, err
	}
	return obj.(*value.PairObj), nil
}

// toSlice flattens a proper list (Pair chain ending in Nil, or a List
// cursor) into a Go slice, the same shape analyzer_test.go's pairToSlice
// helper needed before this package existed.
func toSlice(vm *vmpkg.VM, v value.Value) ([]value.Value, error) {
	var out []value.Value
	cur := vm.Unref(v)
	for {
		switch cur.Kind {
		case value.KNil:
			return out, nil
		case value.KPair:
			obj, err := vm.Heap.Get(cur.H)
			if err != nil {
				return nil, err
			}
			p := obj.(*value.PairObj)
			out = append(out, p.Car)
			cur = vm.Unref(p.Cdr)
		case value.KList:
			obj, err := vm.Heap.Get(cur.H)
			if err != nil {
				return nil, err
			}
			items := obj.(*value.VectorObj).Items
			return append(out, items[cur.Aux:]...), nil
		default:
			return nil, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a proper list")
		}
	}
}

// fromSlice builds a fresh Pair chain from items, back to front — the same
// back-to-front construction LIST's opcode handler uses (spec §6
// "supplemented features"), so list/append/cons-built lists and
// LIST-opcode-built lists share one construction order.
func fromSlice(vm *vmpkg.VM, items []value.Value) value.Value {
	result := value.Nil
	for i := len(items) - 1; i >= 0; i-- {
		result = value.Pair(vm.Heap.Alloc(&value.PairObj{Car: items[i], Cdr: result}))
	}
	return result
}

func builtinList(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	unreffed := make([]value.Value, len(args))
	for i, a := range args {
		unreffed[i] = vm.Unref(a)
	}
	return fromSlice(vm, unreffed), nil
}

func builtinAppend(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	var all []value.Value
	for _, a := range args {
		items, err := toSlice(vm, a)
		if err != nil {
			return value.Value{}, err
		}
		all = append(all, items...)
	}
	return fromSlice(vm, all), nil
}

func builtinPairP(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pair? takes exactly 1 argument")
	}
	v := vm.Unref(args[0])
	if v.Kind == value.KPair {
		return value.True, nil
	}
	return value.False, nil
}

func builtinNilP(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "nil? takes exactly 1 argument")
	}
	if vm.Unref(args[0]).IsNil() {
		return value.True, nil
	}
	return value.False, nil
}

func builtinNot(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "not takes exactly 1 argument")
	}
	if vm.Unref(args[0]).IsFalsey() {
		return value.True, nil
	}
	return value.False, nil
}

func builtinEq(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "eq? takes exactly 2 arguments")
	}
	a, b := vm.Unref(args[0]), vm.Unref(args[1])
	if a.Equals(b, vm.Heap) {
		return value.True, nil
	}
	return value.False, nil
}
