package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funvibe/funxylisp/internal/analyzer"
	"github.com/funvibe/funxylisp/internal/reader"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// newTestVM builds a VM with a minimal arithmetic builtin set wired as
// globals, the fixture every case below needs to exercise `fn`/`recur`
// bodies without depending on the internal/builtins package.
func newTestVM() *vmpkg.VM {
	vm := vmpkg.New()

	addID := vm.RegisterBuiltin(func(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
		var total int64
		for _, a := range args {
			i, err := a.GetInt(vm.Heap)
			if err != nil {
				return value.Value{}, err
			}
			total += i
		}
		return value.Int32(int32(total)), nil
	})
	vm.Globals.Def(uint32(vm.Interner.Intern("+")), value.Builtin(addID))

	subID := vm.RegisterBuiltin(func(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
		a, err := args[0].GetInt(vm.Heap)
		if err != nil {
			return value.Value{}, err
		}
		b, err := args[1].GetInt(vm.Heap)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int32(int32(a - b)), nil
	})
	vm.Globals.Def(uint32(vm.Interner.Intern("-")), value.Builtin(subID))

	ltID := vm.RegisterBuiltin(func(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
		a, err := args[0].GetInt(vm.Heap)
		if err != nil {
			return value.Value{}, err
		}
		b, err := args[1].GetInt(vm.Heap)
		if err != nil {
			return value.Value{}, err
		}
		if a < b {
			return value.True, nil
		}
		return value.False, nil
	})
	vm.Globals.Def(uint32(vm.Interner.Intern("<")), value.Builtin(ltID))

	appendID := vm.RegisterBuiltin(func(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
		items, err := pairToSlice(vm, args[0])
		if err != nil {
			return value.Value{}, err
		}
		tail, err := pairToSlice(vm, args[1])
		if err != nil {
			return value.Value{}, err
		}
		result := value.Nil
		all := append(items, tail...)
		for i := len(all) - 1; i >= 0; i-- {
			result = value.Pair(vm.Heap.Alloc(&value.PairObj{Car: all[i], Cdr: result}))
		}
		return result, nil
	})
	vm.Globals.Def(uint32(vm.Interner.Intern("append")), value.Builtin(appendID))

	return vm
}

func pairToSlice(vm *vmpkg.VM, v value.Value) ([]value.Value, error) {
	var out []value.Value
	cur := v
	for cur.Kind == value.KPair {
		obj, err := vm.Heap.Get(cur.H)
		if err != nil {
			return nil, err
		}
		p := obj.(*value.PairObj)
		out = append(out, p.Car)
		cur = p.Cdr
	}
	return out, nil
}

// run compiles and executes src against a fresh VM, returning the result
// of the last top-level form.
func run(t *testing.T, src string) (value.Value, *vmpkg.VM) {
	t.Helper()
	vm := newTestVM()
	r := reader.New(src, vm.Heap, vm.Interner)
	forms, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read(%q): %v", src, err)
	}
	c := analyzer.New(vm)
	chunk, err := c.Compile(src, forms)
	if err != nil {
		t.Fatalf("compile(%q): %v", src, err)
	}
	v, err := vm.Execute(chunk, nil)
	if err != nil {
		t.Fatalf("execute(%q): %v", src, err)
	}
	return v, vm
}

func runInt(t *testing.T, src string) int64 {
	t.Helper()
	v, vm := run(t, src)
	i, err := v.GetInt(vm.Heap)
	if err != nil {
		t.Fatalf("result of %q is not an int: %v (%+v)", src, err, v)
	}
	return i
}

func TestCompileLiterals(t *testing.T) {
	assert.Equal(t, int64(42), runInt(t, "42"))
	v, _ := run(t, "nil")
	assert.True(t, v.IsNil())
	v, _ = run(t, "true")
	assert.True(t, v.IsTruthy())
	v, _ = run(t, "false")
	assert.True(t, v.IsFalsey())
}

func TestCompileIf(t *testing.T) {
	assert.Equal(t, int64(1), runInt(t, "(if true 1 2)"))
	assert.Equal(t, int64(2), runInt(t, "(if false 1 2)"))
	assert.Equal(t, int64(9), runInt(t, "(if (< 1 2) (+ 4 5) 0)"))
}

func TestCompileDefAndGlobalRef(t *testing.T) {
	assert.Equal(t, int64(7), runInt(t, "(def x 7) x"))
	assert.Equal(t, int64(7), runInt(t, "(def x (+ 3 4)) (+ x 0)"))
}

func TestCompileVarAndSet(t *testing.T) {
	assert.Equal(t, int64(10), runInt(t, "((fn () (var x 3) (set! x 10) x))"))
}

func TestCompileVarDuplicateIsError(t *testing.T) {
	vm := newTestVM()
	src := "(fn () (var x 1) (var x 2) x)"
	r := reader.New(src, vm.Heap, vm.Interner)
	forms, err := r.ReadAll()
	assert.NoError(t, err)
	c := analyzer.New(vm)
	_, err = c.Compile(src, forms)
	assert.Error(t, err)
}

func TestCompileFnCallsItself(t *testing.T) {
	// An immediately-applied lambda with no captures.
	assert.Equal(t, int64(5), runInt(t, "((fn (a b) (+ a b)) 2 3)"))
}

func TestCompileClosureCapture(t *testing.T) {
	src := `
		(def make-adder (fn (n) (fn (x) (+ x n))))
		(def add5 (make-adder 5))
		(add5 10)
	`
	assert.Equal(t, int64(15), runInt(t, src))
}

func TestCompileRecurLoop(t *testing.T) {
	src := `
		(def count-down (fn (n acc)
			(if (< n 1)
				acc
				(recur (- n 1) (+ acc n)))))
		(count-down 5 0)
	`
	assert.Equal(t, int64(15), runInt(t, src))
}

func TestCompileQuoteScalar(t *testing.T) {
	v, vm := run(t, "(quote foo)")
	assert.Equal(t, value.KSymbol, v.Kind)
	name, ok := vm.Interner.Resolve(v.Sym)
	assert.True(t, ok)
	assert.Equal(t, "foo", name)
}

func TestCompileQuoteList(t *testing.T) {
	v, vm := run(t, "(quote (1 2 3))")
	items, err := pairToSlice(vm, v)
	assert.NoError(t, err)
	assert.Len(t, items, 3)
	for i, it := range items {
		n, _ := it.GetInt(vm.Heap)
		assert.Equal(t, int64(i+1), n)
	}
}

func TestCompileQuoteVector(t *testing.T) {
	v, vm := run(t, "(quote #(1 2 3))")
	assert.Equal(t, value.KVector, v.Kind)
	obj, err := vm.Heap.Get(v.H)
	assert.NoError(t, err)
	assert.Len(t, obj.(*value.VectorObj).Items, 3)
}

func TestCompileBackquote(t *testing.T) {
	src := "(def n 2) `(a ,n)"
	v, vm := run(t, src)
	items, err := pairToSlice(vm, v)
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	name, ok := vm.Interner.Resolve(items[0].Sym)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
	n, _ := items[1].GetInt(vm.Heap)
	assert.Equal(t, int64(2), n)
}

func TestCompileBackquoteSplice(t *testing.T) {
	src := "(def xs (quote (2 3))) `(1 ,@xs 4)"
	v, vm := run(t, src)
	items, err := pairToSlice(vm, v)
	assert.NoError(t, err)
	want := []int64{1, 2, 3, 4}
	assert.Len(t, items, len(want))
	for i, it := range items {
		n, _ := it.GetInt(vm.Heap)
		assert.Equal(t, want[i], n)
	}
}

func TestCompileMacroExpansion(t *testing.T) {
	src := `
		(def my-if (macro (c t e) (back-quote (if (unquote c) (unquote t) (unquote e)))))
		(my-if true 1 2)
	`
	assert.Equal(t, int64(1), runInt(t, src))
}

func TestCompileUndefinedGlobalIsError(t *testing.T) {
	// Referencing a symbol never def'd compiles cleanly (Reserve mints it a
	// fresh global slot), but running the reference is a VM error: the slot
	// still holds Undefined, and Undefined observed during a global lookup
	// is never silently passed through.
	vm := vmpkg.New()
	r := reader.New("never-defined", vm.Heap, vm.Interner)
	forms, err := r.ReadAll()
	assert.NoError(t, err)
	c := analyzer.New(vm)
	chunk, err := c.Compile("never-defined", forms)
	assert.NoError(t, err)
	_, err = vm.Execute(chunk, nil)
	assert.Error(t, err)
}
