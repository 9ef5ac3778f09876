package vm

import (
	"github.com/funvibe/funxylisp/internal/config"
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/value"
)

// execSet implements the set_register/mov_register distinction (spec §6
// "supplemented features"): SET dereferences its source all the way to a
// concrete value and, if the destination currently holds a Binding or
// Global, writes *through* that indirection instead of overwriting it.
// This is the mechanism closures use to observe a captured variable's
// later mutation (scenario F).
func (vm *VM) execSet(f *CallFrame, dst, src int) error {
	srcVal := vm.Unref(vm.reg(f, src))
	cur := vm.reg(f, dst)
	switch cur.Kind {
	case value.KBinding:
		return vm.Heap.Replace(cur.H, srcVal)
	case value.KGlobal:
		vm.Globals.Set(cur.Aux, srcVal)
		return nil
	default:
		vm.setReg(f, dst, srcVal)
		return nil
	}
}

// execRef resolves a symbol constant to its bound value: current-frame
// locals are already register-addressed by the analyzer and never reach
// REF, so REF only ever serves Ref(slot) and interned-but-unresolved
// lookups (spec §4.4's SymLoc taxonomy; REF is the None/Global case).
func (vm *VM) execRef(f *CallFrame, dst, constIdx int) error {
	if constIdx >= len(f.Chunk.Constants) {
		return diagnostics.NewVM(diagnostics.ErrInvalidOpcode, REF)
	}
	sym := f.Chunk.Constants[constIdx]
	if sym.Kind != value.KSymbol {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "REF operand is not a symbol")
	}
	if slot, ok := sym.Slot(); ok {
		v := vm.Globals.Get(slot)
		if v.Kind == value.KUndefined {
			name, _ := vm.Interner.Resolve(sym.Sym)
			return diagnostics.NewVM(diagnostics.ErrUndefinedGlobal, name)
		}
		vm.setReg(f, dst, v)
		return nil
	}
	if slot, ok := vm.Globals.SlotOf(uint32(sym.Sym)); ok {
		v := vm.Globals.Get(slot)
		if v.Kind == value.KUndefined {
			name, _ := vm.Interner.Resolve(sym.Sym)
			return diagnostics.NewVM(diagnostics.ErrUndefinedGlobal, name)
		}
		vm.setReg(f, dst, v)
		return nil
	}
	name, ok := vm.Interner.Resolve(sym.Sym)
	if !ok {
		return diagnostics.NewVM(diagnostics.ErrSymbolNotInterned, sym.Sym)
	}
	return diagnostics.NewVM(diagnostics.ErrUndefinedGlobal, name)
}

func (vm *VM) execDef(f *CallFrame, constIdx, src int, isVar bool) error {
	if constIdx >= len(f.Chunk.Constants) {
		return diagnostics.NewVM(diagnostics.ErrInvalidOpcode, DEF)
	}
	sym := f.Chunk.Constants[constIdx]
	if sym.Kind != value.KSymbol {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "DEF operand is not a symbol")
	}
	v := vm.Unref(vm.reg(f, src))
	if isVar {
		vm.Globals.Defvar(uint32(sym.Sym), v)
	} else {
		vm.Globals.Def(uint32(sym.Sym), v)
	}
	return nil
}

// execCall implements CALL/TCALL's shared convention (spec §4.5): the
// callee's register 0 becomes UInt(N), registers 1..N become the args.
// Builtins bypass the frame stack entirely and run synchronously. TCALL
// reuses the current frame instead of pushing a new one (tail-call
// elimination, spec §5 "Stack growth").
func (vm *VM) execCall(f *CallFrame, fReg, lReg, n int, tail bool) error {
	callee := vm.Unref(vm.reg(f, lReg))

	args := make([]value.Value, n)
	argBase := lReg + 1
	if !tail {
		argBase = fReg + 1
	}
	for i := 0; i < n; i++ {
		args[i] = vm.Unref(vm.reg(f, argBase+i))
	}

	switch callee.Kind {
	case value.KBuiltin:
		if int(callee.I) >= len(vm.Builtins) {
			return diagnostics.NewVM(diagnostics.ErrNotCallable, "unregistered builtin")
		}
		dst := fReg
		if tail {
			dst = 0
		}
		vm.activeFrame = f
		vm.activeResultReg = dst
		result, err := vm.Builtins[callee.I](vm, args)
		if err != nil {
			return err
		}
		vm.setReg(f, dst, result)
		return nil

	case value.KContinuation:
		if n != 1 {
			return diagnostics.NewVM(diagnostics.ErrArityMismatch, "continuation takes exactly one value")
		}
		return vm.replayContinuation(callee.H, args[0])

	case value.KLambda, value.KClosure:
		lamObj, err := vm.Heap.Get(callee.H)
		if err != nil {
			return err
		}
		lam := lamObj.(*value.LambdaObj)
		chunk, ok := lam.Chunk.(*Chunk)
		if !ok {
			return diagnostics.NewVM(diagnostics.ErrNotCallable, "lambda has no compiled chunk")
		}
		if n != lam.FixedArgs && !(lam.HasRest && n >= lam.FixedArgs) {
			return diagnostics.NewVM(diagnostics.ErrArityMismatch, lam.Name)
		}

		if tail {
			if len(vm.frames) >= config.MaxRecursionDepth {
				return diagnostics.NewVM(diagnostics.ErrRecursionLimit, config.MaxRecursionDepth)
			}
			for i, a := range args {
				vm.setReg(f, 1+i, a)
			}
			for i, c := range lam.Captures {
				vm.setReg(f, 1+n+i, c)
			}
			vm.setReg(f, 0, value.UInt32(uint32(n)))
			f.Chunk = chunk
			f.IP = 0
			return nil
		}

		if len(vm.frames) >= config.MaxRecursionDepth {
			return diagnostics.NewVM(diagnostics.ErrRecursionLimit, config.MaxRecursionDepth)
		}
		newBase := f.Base + fReg
		vm.ensureRegisters(newBase + 1 + n + len(lam.Captures) + 64)
		vm.registers[newBase] = value.UInt32(uint32(n))
		for i, a := range args {
			vm.registers[newBase+1+i] = a
		}
		for i, c := range lam.Captures {
			vm.registers[newBase+1+n+i] = c
		}
		vm.frames = append(vm.frames, CallFrame{Chunk: chunk, Base: newBase, RetReg: fReg, NumArgs: n})
		return nil

	default:
		return diagnostics.NewVM(diagnostics.ErrNotCallable, "value is not callable")
	}
}

// execRet pops the current frame, delivering register 0 into the caller's
// RetReg. When the outermost frame returns, the VM run loop is done.
func (vm *VM) execRet(f *CallFrame) (value.Value, bool, error) {
	result := vm.Unref(vm.reg(f, 0))
	retReg := f.RetReg
	vm.frames = vm.frames[:len(vm.frames)-1]
	if len(vm.frames) <= vm.floor {
		return result, true, nil
	}
	caller := &vm.frames[len(vm.frames)-1]
	vm.setReg(caller, retReg, result)
	return value.Nil, false, nil
}

func (vm *VM) execCondJump(f *CallFrame, op Opcode) error {
	reg := int(vm.fetchOperand(f))
	dist := int(vm.fetchOperand(f))
	truthy := vm.Unref(vm.reg(f, reg)).IsTruthy()
	switch op {
	case JMPFT:
		if truthy {
			f.IP += dist
		}
	case JMPFF:
		if !truthy {
			f.IP += dist
		}
	case JMPBT:
		if truthy {
			f.IP -= dist
		}
	case JMPBF:
		if !truthy {
			f.IP -= dist
		}
	}
	return nil
}

func (vm *VM) execCompareJump(f *CallFrame, op Opcode) error {
	aReg, bReg := vm.fetchOperand(f), vm.fetchOperand(f)
	dist := vm.fetchSignedOperand(f)
	a := vm.Unref(vm.reg(f, int(aReg)))
	b := vm.Unref(vm.reg(f, int(bReg)))

	var take bool
	switch op {
	case JMPEQ:
		take = a.Equals(b, vm.Heap)
	case JMPLT, JMPGT:
		af, err := a.GetFloat(vm.Heap)
		if err != nil {
			return err
		}
		bf, err := b.GetFloat(vm.Heap)
		if err != nil {
			return err
		}
		if op == JMPLT {
			take = af < bf
		} else {
			take = af > bf
		}
	}
	if take {
		f.IP += dist
	}
	return nil
}

// execArith implements spec §4.5's numeric coercion law: if either operand
// is a float, the result is a float; otherwise the result is an int. Both
// operands are unref'd here, and a non-number operand is an
// ErrTypeMismatch.
func (vm *VM) execArith(f *CallFrame, op Opcode) error {
	dst, aReg, bReg := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
	a := vm.Unref(vm.reg(f, int(aReg)))
	b := vm.Unref(vm.reg(f, int(bReg)))

	if !a.IsNumber() || !b.IsNumber() {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "arithmetic operand is not a number")
	}

	if a.IsFloat() || b.IsFloat() {
		af, err := a.GetFloat(vm.Heap)
		if err != nil {
			return err
		}
		bf, err := b.GetFloat(vm.Heap)
		if err != nil {
			return err
		}
		var r float64
		switch op {
		case ADD:
			r = af + bf
		case SUB:
			r = af - bf
		case MUL:
			r = af * bf
		case DIV:
			if bf == 0 {
				return diagnostics.NewVM(diagnostics.ErrDivideByZero)
			}
			r = af / bf
		}
		vm.setReg(f, int(dst), value.Float64(vm.Heap, r))
		return nil
	}

	ai, err := a.GetInt(vm.Heap)
	if err != nil {
		return err
	}
	bi, err := b.GetInt(vm.Heap)
	if err != nil {
		return err
	}
	var r int64
	switch op {
	case ADD:
		r = ai + bi
	case SUB:
		r = ai - bi
	case MUL:
		r = ai * bi
	case DIV:
		if bi == 0 {
			return diagnostics.NewVM(diagnostics.ErrDivideByZero)
		}
		r = ai / bi
	}
	vm.setReg(f, int(dst), value.Int64(vm.Heap, r))
	return nil
}

func (vm *VM) execIncDec(f *CallFrame, op Opcode, dst, src int) error {
	v := vm.Unref(vm.reg(f, src))
	if v.IsFloat() {
		x, err := v.GetFloat(vm.Heap)
		if err != nil {
			return err
		}
		if op == INC {
			x++
		} else {
			x--
		}
		vm.setReg(f, dst, value.Float64(vm.Heap, x))
		return nil
	}
	x, err := v.GetInt(vm.Heap)
	if err != nil {
		return err
	}
	if op == INC {
		x++
	} else {
		x--
	}
	vm.setReg(f, dst, value.Int64(vm.Heap, x))
	return nil
}

// execCarCdr reads a pair's car/cdr. car/cdr of Nil is Nil, the
// conventional Lisp reading rather than a type error.
func (vm *VM) execCarCdr(f *CallFrame, op Opcode, dst, src int) error {
	v := vm.Unref(vm.reg(f, src))
	if v.IsNil() {
		vm.setReg(f, dst, value.Nil)
		return nil
	}
	if v.Kind == value.KList {
		items, idx, err := vm.listView(v)
		if err != nil {
			return err
		}
		if idx >= len(items) {
			vm.setReg(f, dst, value.Nil)
			return nil
		}
		if op == CAR {
			vm.setReg(f, dst, items[idx])
		} else {
			vm.setReg(f, dst, value.List(v.H, int32(idx+1)))
		}
		return nil
	}
	if v.Kind != value.KPair {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "car/cdr of non-pair")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return err
	}
	pair := obj.(*value.PairObj)
	if op == CAR {
		vm.setReg(f, dst, pair.Car)
	} else {
		vm.setReg(f, dst, pair.Cdr)
	}
	return nil
}

// execXarXdr mutates a pair's car/cdr in place. Per spec §6's supplemented
// XAR/XDR semantics, applying XAR/XDR to Nil allocates a fresh pair rather
// than erroring, so `(xar nil 1)` builds `(1)`.
func (vm *VM) execXarXdr(f *CallFrame, op Opcode, pairReg, valReg int) error {
	cur := vm.reg(f, pairReg)
	target := vm.Unref(cur)
	val := vm.Unref(vm.reg(f, valReg))

	if target.IsNil() {
		handle := vm.Heap.Alloc(&value.PairObj{Car: value.Nil, Cdr: value.Nil})
		newPair := value.Pair(handle)
		if err := vm.writeThrough(f, pairReg, newPair); err != nil {
			return err
		}
		target = newPair
	} else if target.Kind != value.KPair {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "xar/xdr of non-pair")
	}

	obj, err := vm.Heap.Get(target.H)
	if err != nil {
		return err
	}
	pair := obj.(*value.PairObj)
	if op == XAR {
		pair.Car = val
	} else {
		pair.Cdr = val
	}
	return vm.Heap.Replace(target.H, pair)
}

// writeThrough stores v into register idx, honoring the same
// write-through-indirection rule SET uses, so XAR/XDR on a Binding/Global
// slot that currently holds Nil correctly updates the underlying cell.
func (vm *VM) writeThrough(f *CallFrame, idx int, v value.Value) error {
	cur := vm.reg(f, idx)
	switch cur.Kind {
	case value.KBinding:
		return vm.Heap.Replace(cur.H, v)
	case value.KGlobal:
		vm.Globals.Set(cur.Aux, v)
		return nil
	default:
		vm.setReg(f, idx, v)
		return nil
	}
}

// listView returns the backing VectorObj items and cursor index of a List
// value (spec §3: "shares a vector head with a cursor index; cdr is O(1)").
func (vm *VM) listView(v value.Value) ([]value.Value, int, error) {
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return nil, 0, err
	}
	return obj.(*value.VectorObj).Items, int(v.Aux), nil
}

// execList builds a proper list from registers[first, first+count) back to
// front (spec §6 "LIST builds back-to-front... to avoid intermediate
// reversal"): it walks the source registers from the last down to the
// first, accumulating the growing tail, so each cons only ever touches
// already-built structure.
func (vm *VM) execList(f *CallFrame, dst, first, count int) error {
	result := value.Nil
	for i := count - 1; i >= 0; i-- {
		elem := vm.Unref(vm.reg(f, first+i))
		h := vm.Heap.Alloc(&value.PairObj{Car: elem, Cdr: result})
		result = value.Pair(h)
	}
	vm.setReg(f, dst, result)
	return nil
}

func (vm *VM) execVecPush(f *CallFrame, vecReg, valReg int) error {
	v := vm.reg(f, vecReg)
	if v.Kind != value.KVector {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "vec-push on non-vector")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return err
	}
	vec := obj.(*value.VectorObj)
	vec.Items = append(vec.Items, vm.Unref(vm.reg(f, valReg)))
	return nil
}

func (vm *VM) execVecPop(f *CallFrame, dst, vecReg int) error {
	v := vm.reg(f, vecReg)
	if v.Kind != value.KVector {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "vec-pop on non-vector")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return err
	}
	vec := obj.(*value.VectorObj)
	if len(vec.Items) == 0 {
		vm.setReg(f, dst, value.Nil)
		return nil
	}
	last := vec.Items[len(vec.Items)-1]
	vec.Items = vec.Items[:len(vec.Items)-1]
	vm.setReg(f, dst, last)
	return nil
}

func (vm *VM) execVecNth(f *CallFrame, dst, vecReg, idxReg int) error {
	v := vm.reg(f, vecReg)
	if v.Kind != value.KVector {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "vec-nth on non-vector")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return err
	}
	vec := obj.(*value.VectorObj)
	idx, err := vm.Unref(vm.reg(f, idxReg)).GetInt(vm.Heap)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(vec.Items) {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "vector index out of range")
	}
	vm.setReg(f, dst, vec.Items[idx])
	return nil
}

func (vm *VM) execVecSth(f *CallFrame, vecReg, idxReg, valReg int) error {
	v := vm.reg(f, vecReg)
	if v.Kind != value.KVector {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "vec-set! on non-vector")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return err
	}
	vec := obj.(*value.VectorObj)
	idx, err := vm.Unref(vm.reg(f, idxReg)).GetInt(vm.Heap)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(vec.Items) {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "vector index out of range")
	}
	vec.Items[idx] = vm.Unref(vm.reg(f, valReg))
	return nil
}

// execRecur rebinds the current frame's arguments in place and jumps back
// to instruction 0, the bytecode-level loop primitive spec §5 describes
// instead of unbounded recursive CALLs. firstReg names the first of a
// contiguous run of already-evaluated new argument values; it must not
// alias registers 1..N directly, since those are being overwritten as the
// copy proceeds.
func (vm *VM) execRecur(f *CallFrame, firstReg int) error {
	n, err := vm.reg(f, 0).GetInt(vm.Heap)
	if err != nil {
		return err
	}
	vm.recurNumArgs = int(n)
	vals := make([]value.Value, n)
	for i := 0; i < int(n); i++ {
		vals[i] = vm.Unref(vm.reg(f, firstReg+i))
	}
	for i, v := range vals {
		vm.setReg(f, 1+i, v)
	}
	f.IP = 0
	return nil
}


// execMkClosure bundles a lambda-template constant (built by the analyzer,
// its Captures slice still empty) with the live Binding cells captured
// from the enclosing frame's registers firstCap..firstCap+count, producing
// a Closure value. The captured registers must already hold Binding-kind
// values put there by BOX at their definition site, so copying them here
// (rather than their dereferenced contents) is what makes the capture a
// live alias instead of a value snapshot (spec §6 "Closures vs. stack
// indices").
func (vm *VM) execMkClosure(f *CallFrame, dst, constIdx, firstCap, count int) error {
	if constIdx >= len(f.Chunk.Constants) {
		return diagnostics.NewVM(diagnostics.ErrInvalidOpcode, MKCLOSURE)
	}
	template := f.Chunk.Constants[constIdx]
	if template.Kind != value.KLambda && template.Kind != value.KClosure {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "MKCLOSURE constant is not a lambda template")
	}
	obj, err := vm.Heap.Get(template.H)
	if err != nil {
		return err
	}
	tmplLam := obj.(*value.LambdaObj)

	captures := make([]value.Value, count)
	for i := 0; i < count; i++ {
		captures[i] = vm.reg(f, firstCap+i)
	}

	closure := &value.LambdaObj{
		Chunk:     tmplLam.Chunk,
		Name:      tmplLam.Name,
		FixedArgs: tmplLam.FixedArgs,
		HasRest:   tmplLam.HasRest,
		Captures:  captures,
	}
	h := vm.Heap.Alloc(closure)
	vm.setReg(f, dst, value.Closure(h))
	return nil
}
