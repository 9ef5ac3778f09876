// Package vm implements the register-based dispatch loop (spec §4.5): the
// calling convention, the WIDE-aware operand decoder, and every opcode
// handler. Grounded on the teacher's internal/vm dispatch loop (same
// fetch-decode-execute shape, same error-wrapping idiom via
// fmt.Errorf("%w", ...) / the diagnostics package) with funxy's stack
// machine replaced by sl-sh-style fixed registers per call frame.
package vm

import (
	"fmt"

	"github.com/funvibe/funxylisp/internal/config"
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/globals"
	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
	"github.com/funvibe/funxylisp/internal/value"
)

// BuiltinFn is the signature every builtin registered with a VM must have.
// args holds registers 1..N of the call; CALL/TCALL pass each one through
// vm.Unref first, while CallSync passes its args as given.
type BuiltinFn func(vm *VM, args []value.Value) (value.Value, error)

// CallFrame is one activation of a Chunk: its instruction pointer, the
// base offset into VM.registers where its register window starts, and
// where to deliver its return value in the caller's window.
type CallFrame struct {
	Chunk   *Chunk
	IP      int
	Base    int
	RetReg  int
	NumArgs int
}

// VM owns every piece of mutable state one evaluation needs: the interned
// symbol table, the heap, the global slot table, the register stack, and
// the call stack. A VM is single-threaded and not safe for concurrent use
// (spec §5), same as the teacher's evaluator.
type VM struct {
	Interner *interner.Interner
	Heap     *heap.Heap
	Globals  *globals.Globals
	Builtins []BuiltinFn

	registers []value.Value
	frames    []CallFrame

	wide bool // set by WIDE, consumed (and cleared) by the next instruction

	recurNumArgs int // arg count most recently bound by RECUR's caller-side CALL

	interrupted bool

	// floor is the frame-stack depth a reentrant CallSync invocation must
	// not pop below; RET treats len(frames) <= floor as "this nested call
	// is done" the same way it treats len(frames) == 0 at the top level.
	floor int

	// activeFrame/activeResultReg identify where a currently-executing
	// builtin's result will land, the bookkeeping call/cc needs to capture
	// a continuation that resumes exactly where the builtin's CALL left off.
	activeFrame     *CallFrame
	activeResultReg int
}

// New creates a VM with its own heap, interner, and globals table.
func New() *VM {
	return &VM{
		Interner:  interner.NewWithCapacity(config.InitialInternerCapacity),
		Heap:      heap.New(),
		Globals:   globals.New(),
		registers: make([]value.Value, 0, config.InitialStackSize),
	}
}

// HeapGet and GlobalGet satisfy value.Dereferencer, letting Value.Unref
// follow Binding/Global/Value indirection without package value importing
// package vm.
func (vm *VM) HeapGet(h heap.Handle) (interface{}, error) { return vm.Heap.Get(h) }
func (vm *VM) GlobalGet(slot int32) value.Value           { return vm.Globals.Get(slot) }

// Unref is a convenience wrapper so dispatch-loop code reads `vm.Unref(v)`
// rather than `v.Unref(vm)`.
func (vm *VM) Unref(v value.Value) value.Value { return v.Unref(vm) }

// RegisterBuiltin adds fn to the builtin table and returns its stable id,
// suitable for wrapping in value.Builtin(id).
func (vm *VM) RegisterBuiltin(fn BuiltinFn) int64 {
	vm.Builtins = append(vm.Builtins, fn)
	return int64(len(vm.Builtins) - 1)
}

// Interrupt requests that the dispatch loop stop at the next instruction
// boundary with diagnostics.ErrInterrupted (spec §5 "Cancellation").
func (vm *VM) Interrupt() { vm.interrupted = true }

func (vm *VM) ensureRegisters(upTo int) {
	if upTo <= len(vm.registers) {
		return
	}
	grown := make([]value.Value, upTo)
	copy(grown, vm.registers)
	for i := len(vm.registers); i < upTo; i++ {
		grown[i] = value.Nil
	}
	vm.registers = grown
}

func (vm *VM) reg(f *CallFrame, idx int) value.Value {
	return vm.registers[f.Base+idx]
}

func (vm *VM) setReg(f *CallFrame, idx int, v value.Value) {
	if f.Base+idx >= len(vm.registers) {
		vm.ensureRegisters(f.Base + idx + 64)
	}
	vm.registers[f.Base+idx] = v
}

func (vm *VM) fetchByte(f *CallFrame) byte {
	b := f.Chunk.Code[f.IP]
	f.IP++
	return b
}

// fetchOperand decodes one operand, honoring a pending WIDE prefix. The
// caller is responsible for clearing vm.wide once the whole instruction
// has been decoded (spec §6: "wide flag clears after one instruction").
func (vm *VM) fetchOperand(f *CallFrame) uint16 {
	if vm.wide {
		hi := vm.fetchByte(f)
		lo := vm.fetchByte(f)
		return uint16(hi)<<8 | uint16(lo)
	}
	return uint16(vm.fetchByte(f))
}

func (vm *VM) fetchSignedOperand(f *CallFrame) int {
	return int(int16(vm.fetchOperand(f)))
}

// Execute runs chunk to completion with the given arguments and returns its
// result. Arguments occupy registers 1..N of the new frame; register 0
// holds UInt(N), per the calling convention spec §4.5 fixes.
func (vm *VM) Execute(chunk *Chunk, args []value.Value) (value.Value, error) {
	base := len(vm.registers)
	vm.ensureRegisters(base + 1 + len(args) + 64)
	vm.registers[base] = value.UInt32(uint32(len(args)))
	for i, a := range args {
		vm.registers[base+1+i] = a
	}
	vm.frames = append(vm.frames, CallFrame{Chunk: chunk, Base: base, NumArgs: len(args)})
	return vm.run()
}

// run is the fetch-decode-execute loop. It returns once the outermost
// frame RETs or the loop hits a fatal diagnostics.Diagnostic.
func (vm *VM) run() (value.Value, error) {
	for {
		if vm.interrupted {
			vm.interrupted = false
			return value.Nil, diagnostics.NewVM(diagnostics.ErrInterrupted)
		}
		if len(vm.frames) == 0 {
			return value.Nil, nil
		}
		f := &vm.frames[len(vm.frames)-1]
		if f.IP >= len(f.Chunk.Code) {
			return value.Nil, diagnostics.NewVM(diagnostics.ErrStackUnderflow)
		}

		op := Opcode(vm.fetchByte(f))
		result, done, err := vm.step(f, op)
		if !vm.wasWide(op) {
			vm.wide = false
		}
		if err != nil {
			if d, ok := err.(*diagnostics.Diagnostic); ok {
				d.PushFrame(fmt.Sprintf("%s:%d", f.Chunk.Source, vm.lineAt(f)))
			}
			return value.Nil, err
		}
		if done {
			return result, nil
		}
	}
}

// wasWide reports whether op was WIDE itself, the one case where the flag
// it just set must survive into the next fetch instead of being cleared.
func (vm *VM) wasWide(op Opcode) bool { return op == WIDE }

func (vm *VM) lineAt(f *CallFrame) int {
	idx := f.IP - 1
	if idx < 0 || idx >= len(f.Chunk.Lines) {
		return 0
	}
	return f.Chunk.Lines[idx]
}

// step executes one instruction. done is true when the outermost frame has
// returned, in which case result is the program's result.
func (vm *VM) step(f *CallFrame, op Opcode) (result value.Value, done bool, err error) {
	switch op {
	case NOP:
		return value.Nil, false, nil
	case HALT:
		return vm.reg(f, 0), true, nil
	case WIDE:
		vm.wide = true
		return value.Nil, false, nil

	case MOV:
		dst, src := vm.fetchOperand(f), vm.fetchOperand(f)
		vm.setReg(f, int(dst), vm.reg(f, int(src)))
		return value.Nil, false, nil

	case SET:
		dst, src := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execSet(f, int(dst), int(src))

	case CONST:
		dst, idx := vm.fetchOperand(f), vm.fetchOperand(f)
		if int(idx) >= len(f.Chunk.Constants) {
			return value.Nil, false, diagnostics.NewVM(diagnostics.ErrInvalidOpcode, op)
		}
		vm.setReg(f, int(dst), f.Chunk.Constants[idx])
		return value.Nil, false, nil

	case REF:
		dst, idx := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execRef(f, int(dst), int(idx))

	case DEF:
		idx, src := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execDef(f, int(idx), int(src), false)

	case DEFV:
		idx, src := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execDef(f, int(idx), int(src), true)

	case CALL:
		fReg, lReg, n := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execCall(f, int(fReg), int(lReg), int(n), false)

	case TCALL:
		lReg, n := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execCall(f, 0, int(lReg), int(n), true)

	case RET:
		return vm.execRet(f)

	case JMP:
		dist := vm.fetchSignedOperand(f)
		f.IP += dist
		return value.Nil, false, nil
	case JMPF:
		dist := int(vm.fetchOperand(f))
		f.IP += dist
		return value.Nil, false, nil
	case JMPB:
		dist := int(vm.fetchOperand(f))
		f.IP -= dist
		return value.Nil, false, nil

	case JMPFT, JMPFF, JMPBT, JMPBF:
		return value.Nil, false, vm.execCondJump(f, op)

	case JMP_T:
		reg, dist := vm.fetchOperand(f), vm.fetchSignedOperand(f)
		if vm.Unref(vm.reg(f, int(reg))).IsTruthy() {
			f.IP += dist
		}
		return value.Nil, false, nil
	case JMP_F:
		reg, dist := vm.fetchOperand(f), vm.fetchSignedOperand(f)
		if vm.Unref(vm.reg(f, int(reg))).IsFalsey() {
			f.IP += dist
		}
		return value.Nil, false, nil

	case JMPEQ, JMPLT, JMPGT:
		return value.Nil, false, vm.execCompareJump(f, op)

	case ADD, SUB, MUL, DIV:
		return value.Nil, false, vm.execArith(f, op)

	case INC, DEC:
		dst, src := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execIncDec(f, op, int(dst), int(src))

	case CONS:
		dst, carReg, cdrReg := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		car := vm.Unref(vm.reg(f, int(carReg)))
		cdr := vm.Unref(vm.reg(f, int(cdrReg)))
		h := vm.Heap.Alloc(&value.PairObj{Car: car, Cdr: cdr})
		vm.setReg(f, int(dst), value.Pair(h))
		return value.Nil, false, nil

	case CAR:
		dst, src := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execCarCdr(f, op, int(dst), int(src))
	case CDR:
		dst, src := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execCarCdr(f, op, int(dst), int(src))

	case XAR:
		pairReg, valReg := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execXarXdr(f, op, int(pairReg), int(valReg))
	case XDR:
		pairReg, valReg := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execXarXdr(f, op, int(pairReg), int(valReg))

	case LIST:
		dst, first, count := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execList(f, int(dst), int(first), int(count))

	case VECMK:
		dst, count := vm.fetchOperand(f), vm.fetchOperand(f)
		items := make([]value.Value, count)
		for i := range items {
			items[i] = value.Nil
		}
		h := vm.Heap.Alloc(&value.VectorObj{Items: items})
		vm.setReg(f, int(dst), value.Vector(h))
		return value.Nil, false, nil

	case VECMKD:
		dst, count, fillReg := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		fill := vm.Unref(vm.reg(f, int(fillReg)))
		items := make([]value.Value, count)
		for i := range items {
			items[i] = fill
		}
		h := vm.Heap.Alloc(&value.VectorObj{Items: items})
		vm.setReg(f, int(dst), value.Vector(h))
		return value.Nil, false, nil

	case VECELS:
		dst, count := vm.fetchOperand(f), vm.fetchOperand(f)
		items := make([]value.Value, count)
		for i := 0; i < int(count); i++ {
			items[i] = vm.Unref(vm.reg(f, int(dst)+1+i))
		}
		h := vm.Heap.Alloc(&value.VectorObj{Items: items})
		vm.setReg(f, int(dst), value.Vector(h))
		return value.Nil, false, nil

	case VECPSH:
		vecReg, valReg := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execVecPush(f, int(vecReg), int(valReg))

	case VECPOP:
		dst, vecReg := vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execVecPop(f, int(dst), int(vecReg))

	case VECNTH:
		dst, vecReg, idxReg := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execVecNth(f, int(dst), int(vecReg), int(idxReg))

	case VECSTH:
		vecReg, idxReg, valReg := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execVecSth(f, int(vecReg), int(idxReg), int(valReg))

	case RECUR:
		firstReg := vm.fetchOperand(f)
		return value.Nil, false, vm.execRecur(f, int(firstReg))

	case BOX:
		dst, src := vm.fetchOperand(f), vm.fetchOperand(f)
		cur := vm.reg(f, int(src))
		if cur.Kind == value.KBinding {
			vm.setReg(f, int(dst), cur)
			return value.Nil, false, nil
		}
		v := vm.Unref(cur)
		h := vm.Heap.Alloc(v)
		vm.setReg(f, int(dst), value.Binding(h))
		return value.Nil, false, nil

	case MKCLOSURE:
		dst, constIdx, firstCap, count := vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f), vm.fetchOperand(f)
		return value.Nil, false, vm.execMkClosure(f, int(dst), int(constIdx), int(firstCap), int(count))

	default:
		return value.Nil, false, diagnostics.NewVM(diagnostics.ErrInvalidOpcode, op)
	}
}
