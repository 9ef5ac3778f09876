package vm

import (
	"github.com/funvibe/funxylisp/internal/config"
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/value"
)

// CaptureContinuation snapshots the entire live call stack and register
// file at the point a builtin (call/cc) is running, plus the register the
// builtin's own result was about to land in. Supplements spec.md per
// vm.rs's CallFrame{chunk, ip, stack_top} shape (DESIGN.md "continuations"
// Open Question): one-shot and upward-only, since invoking the returned
// value discards whatever frames/registers exist at invocation time in
// favor of this snapshot — there is no way to resume past the point the
// capturing frame itself already returned.
func (vm *VM) CaptureContinuation() value.Value {
	frames := make([]CallFrame, len(vm.frames))
	copy(frames, vm.frames)
	registers := make([]value.Value, len(vm.registers))
	copy(registers, vm.registers)

	obj := &value.ContinuationObj{
		Frames:    frames,
		Registers: registers,
		ResultReg: vm.activeResultReg,
	}
	h := vm.Heap.Alloc(obj)
	return value.Continuation(h)
}

// replayContinuation restores a previously captured stack/register
// snapshot and delivers result into the frame that was active at capture
// time, exactly where its CALL instruction left off. The caller's own
// frames are simply discarded: invoking a continuation is a non-local
// jump, never a normal return.
func (vm *VM) replayContinuation(h heap.Handle, result value.Value) error {
	obj, err := vm.Heap.Get(h)
	if err != nil {
		return err
	}
	cont, ok := obj.(*value.ContinuationObj)
	if !ok {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "continuation heap object has the wrong shape")
	}
	savedFrames, ok := cont.Frames.([]CallFrame)
	if !ok || len(savedFrames) == 0 {
		return diagnostics.NewVM(diagnostics.ErrTypeMismatch, "continuation has no captured frames")
	}

	vm.frames = append([]CallFrame(nil), savedFrames...)
	vm.registers = append([]value.Value(nil), cont.Registers...)

	top := &vm.frames[len(vm.frames)-1]
	vm.setReg(top, cont.ResultReg, result)
	return nil
}

// CallSync invokes callee with args and runs it to completion before
// returning, for callers (the call/cc builtin, the analyzer's macro
// expansion) that need to call back into user code synchronously rather
// than via the bytecode CALL opcode.
func (vm *VM) CallSync(callee value.Value, args []value.Value) (value.Value, error) {
	callee = vm.Unref(callee)
	switch callee.Kind {
	case value.KBuiltin:
		if int(callee.I) >= len(vm.Builtins) {
			return value.Nil, diagnostics.NewVM(diagnostics.ErrNotCallable, "unregistered builtin")
		}
		return vm.Builtins[callee.I](vm, args)

	case value.KLambda, value.KClosure:
		lamObj, err := vm.Heap.Get(callee.H)
		if err != nil {
			return value.Nil, err
		}
		lam := lamObj.(*value.LambdaObj)
		chunk, ok := lam.Chunk.(*Chunk)
		if !ok {
			return value.Nil, diagnostics.NewVM(diagnostics.ErrNotCallable, "lambda has no compiled chunk")
		}
		n := len(args)
		if n != lam.FixedArgs && !(lam.HasRest && n >= lam.FixedArgs) {
			return value.Nil, diagnostics.NewVM(diagnostics.ErrArityMismatch, lam.Name)
		}
		if len(vm.frames) >= config.MaxRecursionDepth {
			return value.Nil, diagnostics.NewVM(diagnostics.ErrRecursionLimit, config.MaxRecursionDepth)
		}

		base := len(vm.registers)
		vm.ensureRegisters(base + 1 + n + len(lam.Captures) + 64)
		vm.registers[base] = value.UInt32(uint32(n))
		for i, a := range args {
			vm.registers[base+1+i] = a
		}
		for i, c := range lam.Captures {
			vm.registers[base+1+n+i] = c
		}

		floor := len(vm.frames)
		vm.frames = append(vm.frames, CallFrame{Chunk: chunk, Base: base, NumArgs: n})

		prevFloor := vm.floor
		vm.floor = floor
		result, err := vm.run()
		vm.floor = prevFloor
		return result, err

	case value.KContinuation:
		if len(args) != 1 {
			return value.Nil, diagnostics.NewVM(diagnostics.ErrArityMismatch, "continuation takes exactly one value")
		}
		return value.Nil, vm.replayContinuation(callee.H, args[0])

	default:
		return value.Nil, diagnostics.NewVM(diagnostics.ErrNotCallable, "value is not callable")
	}
}
