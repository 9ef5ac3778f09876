package builtins

import (
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/value"
	"github.com/funvibe/funxylisp/internal/value/persistent"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installCollections registers constructors and accessors for the
// persistent (structure-sharing) vector and map kinds — internal/value/
// persistent's HAMT map and 32-way trie vector, ported from the teacher's
// Clojure-style collections but never given a Lisp-visible surface until
// now. Distinct from the mutable vector/map opcodes (VECMK/VECPSH/... and
// plain KMap), these never mutate in place: every `passoc`/`pvec-push`
// returns a new handle and leaves the original unchanged.
func installCollections(vm *vmpkg.VM) {
	def(vm, "pvec", builtinPVec)
	def(vm, "pvec-get", builtinPVecGet)
	def(vm, "pvec-len", builtinPVecLen)
	def(vm, "pvec-push", builtinPVecPush)
	def(vm, "pvec-set", builtinPVecSet)

	def(vm, "pmap", builtinPMap)
	def(vm, "pmap-get", builtinPMapGet)
	def(vm, "pmap-len", builtinPMapLen)
	def(vm, "passoc", builtinPAssoc)
	def(vm, "pdissoc", builtinPDissoc)
}

func builtinPVec(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	items := make([]value.Value, len(args))
	for i, a := range args {
		items[i] = vm.Unref(a)
	}
	h := vm.Heap.Alloc(persistent.VectorFrom(items))
	return value.PersistentVec(h), nil
}

func asPersistentVec(vm *vmpkg.VM, v value.Value) (*persistent.Vector, error) {
	v = vm.Unref(v)
	if v.Kind != value.KPersistentVec {
		return nil, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a persistent vector")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return nil, err
	}
	return obj.(*persistent.Vector), nil
}

func builtinPVecGet(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pvec-get takes exactly 2 arguments")
	}
	vec, err := asPersistentVec(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	idx, err := vm.Unref(args[1]).GetInt(vm.Heap)
	if err != nil {
		return value.Value{}, err
	}
	v, ok := vec.Get(int(idx))
	if !ok {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "pvec-get index out of range")
	}
	return v, nil
}

func builtinPVecLen(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pvec-len takes exactly 1 argument")
	}
	vec, err := asPersistentVec(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	return value.Int32(int32(vec.Len())), nil
}

func builtinPVecPush(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pvec-push takes exactly 2 arguments")
	}
	vec, err := asPersistentVec(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	h := vm.Heap.Alloc(vec.Append(vm.Unref(args[1])))
	return value.PersistentVec(h), nil
}

func builtinPVecSet(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pvec-set takes exactly 3 arguments")
	}
	vec, err := asPersistentVec(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	idx, err := vm.Unref(args[1]).GetInt(vm.Heap)
	if err != nil {
		return value.Value{}, err
	}
	h := vm.Heap.Alloc(vec.Update(int(idx), vm.Unref(args[2])))
	return value.PersistentVec(h), nil
}

// builtinPMap builds a persistent map from an even count of key/value
// arguments, the same shorthand the teacher's map-literal builtins use.
func builtinPMap(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args)%2 != 0 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pmap takes an even number of key/value arguments")
	}
	m := persistent.EmptyMap()
	for i := 0; i < len(args); i += 2 {
		m = m.Put(vm.Heap, vm.Unref(args[i]), vm.Unref(args[i+1]))
	}
	h := vm.Heap.Alloc(m)
	return value.PersistentMap(h), nil
}

func asPersistentMap(vm *vmpkg.VM, v value.Value) (*persistent.Map, error) {
	v = vm.Unref(v)
	if v.Kind != value.KPersistentMap {
		return nil, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a persistent map")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return nil, err
	}
	return obj.(*persistent.Map), nil
}

func builtinPMapGet(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pmap-get takes exactly 2 arguments")
	}
	m, err := asPersistentMap(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	v, ok := m.Get(vm.Heap, vm.Unref(args[1]))
	if !ok {
		return value.Undefined, nil
	}
	return v, nil
}

func builtinPMapLen(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pmap-len takes exactly 1 argument")
	}
	m, err := asPersistentMap(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	return value.Int32(int32(m.Len())), nil
}

func builtinPAssoc(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "passoc takes exactly 3 arguments")
	}
	m, err := asPersistentMap(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	h := vm.Heap.Alloc(m.Put(vm.Heap, vm.Unref(args[1]), vm.Unref(args[2])))
	return value.PersistentMap(h), nil
}

func builtinPDissoc(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "pdissoc takes exactly 2 arguments")
	}
	m, err := asPersistentMap(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	h := vm.Heap.Alloc(m.Remove(vm.Heap, vm.Unref(args[1])))
	return value.PersistentMap(h), nil
}
