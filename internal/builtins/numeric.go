package builtins

import (
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installNumeric registers the variadic arithmetic and comparison builtins
// every program needs; `+`/`-`/`*`/`/` follow the same int-unless-any-
// operand-is-float coercion law as the ADD/SUB/MUL/DIV opcodes (spec §4.5),
// just folded left to right over an arbitrary argument count instead of a
// fixed pair of registers.
func installNumeric(vm *vmpkg.VM) {
	def(vm, "+", builtinAdd)
	def(vm, "-", builtinSub)
	def(vm, "*", builtinMul)
	def(vm, "/", builtinDiv)
	def(vm, "=", builtinNumEq)
	def(vm, "<", numCompare(func(a, b float64) bool { return a < b }))
	def(vm, ">", numCompare(func(a, b float64) bool { return a > b }))
	def(vm, "<=", numCompare(func(a, b float64) bool { return a <= b }))
	def(vm, ">=", numCompare(func(a, b float64) bool { return a >= b }))
}

func anyFloat(vm *vmpkg.VM, args []value.Value) (bool, error) {
	for _, a := range args {
		a = vm.Unref(a)
		if !a.IsNumber() {
			return false, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "arithmetic operand is not a number")
		}
		if a.IsFloat() {
			return true, nil
		}
	}
	return false, nil
}

func floats(h *heap.Heap, vm *vmpkg.VM, args []value.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := vm.Unref(a).GetFloat(h)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func ints(h *heap.Heap, vm *vmpkg.VM, args []value.Value) ([]int64, error) {
	out := make([]int64, len(args))
	for i, a := range args {
		n, err := vm.Unref(a).GetInt(h)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func builtinAdd(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	useFloat, err := anyFloat(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	if useFloat {
		fs, err := floats(vm.Heap, vm, args)
		if err != nil {
			return value.Value{}, err
		}
		var total float64
		for _, f := range fs {
			total += f
		}
		return value.Float64(vm.Heap, total), nil
	}
	is, err := ints(vm.Heap, vm, args)
	if err != nil {
		return value.Value{}, err
	}
	var total int64
	for _, i := range is {
		total += i
	}
	return value.Int64(vm.Heap, total), nil
}

func builtinSub(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "- needs at least 1 argument")
	}
	useFloat, err := anyFloat(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	if useFloat {
		fs, err := floats(vm.Heap, vm, args)
		if err != nil {
			return value.Value{}, err
		}
		if len(fs) == 1 {
			return value.Float64(vm.Heap, -fs[0]), nil
		}
		total := fs[0]
		for _, f := range fs[1:] {
			total -= f
		}
		return value.Float64(vm.Heap, total), nil
	}
	is, err := ints(vm.Heap, vm, args)
	if err != nil {
		return value.Value{}, err
	}
	if len(is) == 1 {
		return value.Int64(vm.Heap, -is[0]), nil
	}
	total := is[0]
	for _, i := range is[1:] {
		total -= i
	}
	return value.Int64(vm.Heap, total), nil
}

func builtinMul(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	useFloat, err := anyFloat(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	if useFloat {
		fs, err := floats(vm.Heap, vm, args)
		if err != nil {
			return value.Value{}, err
		}
		total := 1.0
		for _, f := range fs {
			total *= f
		}
		return value.Float64(vm.Heap, total), nil
	}
	is, err := ints(vm.Heap, vm, args)
	if err != nil {
		return value.Value{}, err
	}
	var total int64 = 1
	for _, i := range is {
		total *= i
	}
	return value.Int64(vm.Heap, total), nil
}

func builtinDiv(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "/ needs at least 1 argument")
	}
	useFloat, err := anyFloat(vm, args)
	if err != nil {
		return value.Value{}, err
	}
	if useFloat {
		fs, err := floats(vm.Heap, vm, args)
		if err != nil {
			return value.Value{}, err
		}
		if len(fs) == 1 {
			if fs[0] == 0 {
				return value.Value{}, diagnostics.NewVM(diagnostics.ErrDivideByZero)
			}
			return value.Float64(vm.Heap, 1/fs[0]), nil
		}
		total := fs[0]
		for _, f := range fs[1:] {
			if f == 0 {
				return value.Value{}, diagnostics.NewVM(diagnostics.ErrDivideByZero)
			}
			total /= f
		}
		return value.Float64(vm.Heap, total), nil
	}
	is, err := ints(vm.Heap, vm, args)
	if err != nil {
		return value.Value{}, err
	}
	if len(is) == 1 {
		if is[0] == 0 {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrDivideByZero)
		}
		return value.Int64(vm.Heap, 1/is[0]), nil
	}
	total := is[0]
	for _, i := range is[1:] {
		if i == 0 {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrDivideByZero)
		}
		total /= i
	}
	return value.Int64(vm.Heap, total), nil
}

func builtinNumEq(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	fs, err := floats(vm.Heap, vm, args)
	if err != nil {
		return value.Value{}, err
	}
	for i := 1; i < len(fs); i++ {
		if fs[i] != fs[0] {
			return value.False, nil
		}
	}
	return value.True, nil
}

// numCompare builds a chained (a op b op c ...) comparison builtin, all
// pairs evaluated as floats so an int and a float compare by magnitude
// rather than by kind.
func numCompare(ok func(a, b float64) bool) vmpkg.BuiltinFn {
	return func(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
		if len(args) < 2 {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "comparison needs at least 2 arguments")
		}
		fs, err := floats(vm.Heap, vm, args)
		if err != nil {
			return value.Value{}, err
		}
		for i := 1; i < len(fs); i++ {
			if !ok(fs[i-1], fs[i]) {
				return value.False, nil
			}
		}
		return value.True, nil
	}
}
