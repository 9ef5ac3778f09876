// Package analyzer implements spec §4.4: it walks a freshly read expression
// tree and compiles it directly into a vm.Chunk, resolving every symbol to
// a stack register, a captured cell, or a global slot as it goes (there is
// no separate "annotate, then compile" pass — the register target a
// symbol resolves to doubles as its SymLoc). Grounded on the teacher's
// internal/analyzer package for the overall "walk the tree, dispatch on
// node shape, emit instructions as you go" single-pass idiom, with the
// teacher's Hindley-Milner type inference entirely absent — this analyzer
// only ever decides *where a name lives*, never what type it has.
package analyzer

import (
	"fmt"

	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
	"github.com/funvibe/funxylisp/internal/symbols"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// Compiler holds everything analysis needs to share across every chunk it
// ever compiles in one VM's lifetime: the interner and heap a read tree is
// already built from, the globals table REF/DEF resolve against, and the
// table of macros defined so far.
type Compiler struct {
	interner *interner.Interner
	heap     *heap.Heap
	vm       *vmpkg.VM // used only to run macro bodies at expansion time

	macros map[interner.ID]*vmpkg.Chunk

	symFn, symMacro                  interner.ID
	symQuote, symBackquote           interner.ID
	symUnquote, symUnquoteSplice     interner.ID
	symIf, symDo                     interner.ID
	symDef, symDefvar, symVar        interner.ID
	symSet, symRecur                 interner.ID
}

// New creates a Compiler sharing vm's interner and heap, so the chunks it
// produces and the values vm.Execute sees agree on both.
func New(vm *vmpkg.VM) *Compiler {
	in := vm.Interner
	return &Compiler{
		interner: in,
		heap:     vm.Heap,
		vm:       vm,
		macros:   make(map[interner.ID]*vmpkg.Chunk),

		symFn:             in.Intern("fn"),
		symMacro:          in.Intern("macro"),
		symQuote:          in.Intern("quote"),
		symBackquote:      in.Intern("back-quote"),
		symUnquote:        in.Intern("unquote"),
		symUnquoteSplice:  in.Intern("unquote-splice"),
		symIf:             in.Intern("if"),
		symDo:             in.Intern("do"),
		symDef:            in.Intern("def"),
		symDefvar:         in.Intern("defvar"),
		symVar:             in.Intern("var"),
		symSet:            in.Intern("set!"),
		symRecur:          in.Intern("recur"),
	}
}

// frame is one chunk's in-progress compile state: its scope chain, its
// register high-water mark, and (for nested lambdas) the parent frame a
// capture must thread back through.
type frame struct {
	chunk        *vmpkg.Chunk
	scope        *symbols.Scope
	nextReg      int
	fixedArgs    int // argument registers, including a rest param if any
	captureCount int
	line         int
}

func (f *frame) alloc() int {
	r := f.nextReg
	f.nextReg++
	return r
}

// captureReg returns the physical register a LocCapture index lives in:
// right after this frame's own argument registers.
func (f *frame) captureReg(idx int) int { return 1 + f.fixedArgs + idx }

// localReg returns the physical register a LocStack index lives in.
// Argument registers (idx < fixedArgs) sit at 1..fixedArgs; var-declared
// locals follow the reserved capture block, since registers
// fixedArgs+1..fixedArgs+captureCount are populated by the runtime's own
// call/MKCLOSURE machinery rather than by compiled instructions.
func (f *frame) localReg(idx int) int {
	if idx < f.fixedArgs {
		return 1 + idx
	}
	return 1 + f.fixedArgs + f.captureCount + (idx - f.fixedArgs)
}

// Compile analyzes and compiles a top-level sequence of forms (as read by
// package reader) into a zero-argument chunk whose body is their implicit
// `do`. Re-running Compile against the same Compiler lets later top-level
// forms see earlier ones' macro/global definitions, the REPL's usual
// incremental-compilation contract.
func (c *Compiler) Compile(source string, forms []value.Value) (*vmpkg.Chunk, error) {
	fr := &frame{chunk: vmpkg.NewChunk(source), scope: symbols.New(), nextReg: 1}
	dst, err := c.compileBody(fr, forms)
	if err != nil {
		return nil, err
	}
	c.emitReturn(fr, dst)
	fr.chunk.Arity = vmpkg.Arity{Fixed: 0}
	return fr.chunk, nil
}

func (c *Compiler) emitReturn(fr *frame, dst int) {
	if dst != 0 {
		fr.chunk.Emit2(vmpkg.MOV, 0, uint16(dst), fr.line)
	}
	fr.chunk.EmitOp(vmpkg.RET, fr.line)
}

// compileBody compiles a sequence of forms for effect, returning the
// register holding the last one's value (or a freshly loaded Nil if forms
// is empty — an empty `do`/lambda body is legal and evaluates to Nil).
func (c *Compiler) compileBody(fr *frame, forms []value.Value) (int, error) {
	if len(forms) == 0 {
		return c.compileConst(fr, value.Nil), nil
	}
	dst := 0
	for _, form := range forms {
		r, err := c.compileForm(fr, form)
		if err != nil {
			return 0, err
		}
		dst = r
	}
	return dst, nil
}

func (c *Compiler) compileConst(fr *frame, v value.Value) int {
	idx := fr.chunk.AddConstant(v)
	dst := fr.alloc()
	fr.chunk.Emit2(vmpkg.CONST, uint16(dst), uint16(idx), fr.line)
	return dst
}

// compileForm is the single dispatch point spec §4.4 describes: literals
// load as constants, symbols resolve through the scope chain, and list
// forms are checked against the special-form heads before falling through
// to ordinary application.
func (c *Compiler) compileForm(fr *frame, v value.Value) (int, error) {
	switch v.Kind {
	case value.KSymbol:
		return c.compileSymbolRef(fr, v)
	case value.KPair, value.KList:
		return c.compileList(fr, v)
	default:
		// Every other literal kind (numbers, strings, chars, keywords,
		// booleans, Nil, bare vectors) is self-evaluating.
		return c.compileConst(fr, v), nil
	}
}

func (c *Compiler) compileSymbolRef(fr *frame, sym value.Value) (int, error) {
	binding := fr.scope.Resolve(sym.Sym)
	switch binding.Loc {
	case symbols.LocStack:
		return fr.localReg(binding.Index), nil
	case symbols.LocCapture:
		return fr.captureReg(binding.Index), nil
	default:
		// A symbol with no stack/capture binding is a global reference.
		// Reserve mints a slot the first time any code refers to this name
		// (idempotent on repeat references), so the emitted Symbol constant
		// always carries a resolved slot: REF then only ever distinguishes
		// "slot holds Undefined" from "slot holds a real value" at runtime.
		slot := c.vm.Globals.Reserve(uint32(sym.Sym))
		symVal := value.SymbolWithSlot(sym.Sym, slot)
		idx := fr.chunk.AddConstant(symVal)
		dst := fr.alloc()
		fr.chunk.Emit2(vmpkg.REF, uint16(dst), uint16(idx), fr.line)
		return dst, nil
	}
}

// listItems flattens a proper list (a Pair chain ending in Nil, or a List
// cursor view) into a Go slice. Used for special-form destructuring, where
// a dotted tail is always a malformed-form error.
func (c *Compiler) listItems(v value.Value) ([]value.Value, error) {
	var items []value.Value
	cur := v
	for {
		switch cur.Kind {
		case value.KNil:
			return items, nil
		case value.KPair:
			obj, err := c.heap.Get(cur.H)
			if err != nil {
				return nil, err
			}
			p := obj.(*value.PairObj)
			items = append(items, p.Car)
			cur = p.Cdr
		case value.KList:
			obj, err := c.heap.Get(cur.H)
			if err != nil {
				return nil, err
			}
			vec := obj.(*value.VectorObj)
			for i := int(cur.Aux); i < len(vec.Items); i++ {
				items = append(items, vec.Items[i])
			}
			return items, nil
		default:
			return nil, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "improper list where a proper list was expected")
		}
	}
}

func (c *Compiler) headSymbol(items []value.Value) (interner.ID, bool) {
	if len(items) == 0 || items[0].Kind != value.KSymbol {
		return 0, false
	}
	return items[0].Sym, true
}

func (c *Compiler) compileList(fr *frame, v value.Value) (int, error) {
	items, err := c.listItems(v)
	if err != nil {
		// A dotted list in call position is never valid Lisp code; only
		// quote/back-quote deal with dotted data, and they read it via
		// raw Pair access rather than listItems.
		return 0, err
	}
	if len(items) == 0 {
		return c.compileConst(fr, value.Nil), nil
	}
	if head, ok := c.headSymbol(items); ok {
		switch head {
		case c.symQuote:
			return c.compileQuote(fr, items)
		case c.symBackquote:
			return c.compileBackquote(fr, items)
		case c.symIf:
			return c.compileIf(fr, items)
		case c.symDo:
			return c.compileBody(fr, items[1:])
		case c.symDef:
			return c.compileDef(fr, items, false)
		case c.symDefvar:
			return c.compileDef(fr, items, true)
		case c.symVar:
			return c.compileVar(fr, items)
		case c.symSet:
			return c.compileSet(fr, items)
		case c.symRecur:
			return c.compileRecur(fr, items)
		case c.symFn:
			reg, _, err := c.compileFn(fr, items, false)
			return reg, err
		case c.symMacro:
			reg, _, err := c.compileFn(fr, items, true)
			return reg, err
		}
		if macroChunk, ok := c.macros[head]; ok {
			expanded, err := c.expandMacro(macroChunk, items[1:])
			if err != nil {
				return 0, err
			}
			return c.compileForm(fr, expanded)
		}
	}
	return c.compileCall(fr, items)
}

// compileQuote implements spec §4.4 rule 3: the quoted datum is never
// descended into; self-evaluating leaves load directly, compound data is
// rebuilt at run time via CONS/LIST/VECELS since only scalars, strings,
// and symbols are legal chunk constants (spec §6).
func (c *Compiler) compileQuote(fr *frame, items []value.Value) (int, error) {
	if len(items) != 2 {
		return 0, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "quote takes exactly one argument")
	}
	return c.compileQuotedDatum(fr, items[1])
}

func (c *Compiler) compileQuotedDatum(fr *frame, v value.Value) (int, error) {
	switch v.Kind {
	case value.KPair:
		obj, err := c.heap.Get(v.H)
		if err != nil {
			return 0, err
		}
		p := obj.(*value.PairObj)
		carReg, err := c.compileQuotedDatum(fr, p.Car)
		if err != nil {
			return 0, err
		}
		cdrReg, err := c.compileQuotedDatum(fr, p.Cdr)
		if err != nil {
			return 0, err
		}
		dst := fr.alloc()
		fr.chunk.Emit3(vmpkg.CONS, uint16(dst), uint16(carReg), uint16(cdrReg), fr.line)
		return dst, nil
	case value.KList:
		items, err := c.listItems(v)
		if err != nil {
			return 0, err
		}
		// LIST reads a contiguous register block (spec §4.5), so every
		// slot must be reserved before any item is compiled — an item's
		// own sub-expression may itself need scratch registers, and those
		// must land above the whole reserved block, not interleaved with it.
		slots := make([]int, len(items))
		for i := range items {
			slots[i] = fr.alloc()
		}
		for i, item := range items {
			r, err := c.compileQuotedDatum(fr, item)
			if err != nil {
				return 0, err
			}
			fr.chunk.Emit2(vmpkg.MOV, uint16(slots[i]), uint16(r), fr.line)
		}
		dst := fr.alloc()
		first := dst
		if len(slots) > 0 {
			first = slots[0]
		}
		fr.chunk.Emit3(vmpkg.LIST, uint16(dst), uint16(first), uint16(len(items)), fr.line)
		return dst, nil
	case value.KVector:
		obj, err := c.heap.Get(v.H)
		if err != nil {
			return 0, err
		}
		vec := obj.(*value.VectorObj)
		// VECELS reads its elements from dst+1..dst+count, so dst itself
		// must be reserved first and the element slots right after it,
		// all before any element's sub-expression can claim scratch space.
		dst := fr.alloc()
		slots := make([]int, len(vec.Items))
		for i := range vec.Items {
			slots[i] = fr.alloc()
		}
		for i, item := range vec.Items {
			r, err := c.compileQuotedDatum(fr, item)
			if err != nil {
				return 0, err
			}
			fr.chunk.Emit2(vmpkg.MOV, uint16(slots[i]), uint16(r), fr.line)
		}
		fr.chunk.Emit2(vmpkg.VECELS, uint16(dst), uint16(len(vec.Items)), fr.line)
		return dst, nil
	default:
		return c.compileConst(fr, v), nil
	}
}

// compileBackquote implements spec §4.4 rule 4: only forms immediately
// following `,`/`,@` inside the template are live expressions; everything
// else is rebuilt as quoted data. Splice (`,@`) inlines a sub-list's
// elements via repeated CONS starting from the already-built tail.
func (c *Compiler) compileBackquote(fr *frame, items []value.Value) (int, error) {
	if len(items) != 2 {
		return 0, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "back-quote takes exactly one argument")
	}
	return c.compileTemplate(fr, items[1])
}

func (c *Compiler) compileTemplate(fr *frame, v value.Value) (int, error) {
	if v.Kind == value.KPair || v.Kind == value.KList {
		items, err := c.listItems(v)
		if err == nil {
			if head, ok := c.headSymbol(items); ok {
				if head == c.symUnquote && len(items) == 2 {
					return c.compileForm(fr, items[1])
				}
			}
			// Build the list tail-first so a `,@` splice in the middle can
			// CONS its elements onto the already-compiled remainder.
			tailReg := c.compileConst(fr, value.Nil)
			regs := make([]int, 0, len(items))
			splices := make([]bool, 0, len(items))
			for _, item := range items {
				if sub, serr := c.listItems(item); serr == nil {
					if h2, ok2 := c.headSymbol(sub); ok2 && h2 == c.symUnquoteSplice && len(sub) == 2 {
						r, err := c.compileForm(fr, sub[1])
						if err != nil {
							return 0, err
						}
						regs = append(regs, r)
						splices = append(splices, true)
						continue
					}
				}
				r, err := c.compileTemplate(fr, item)
				if err != nil {
					return 0, err
				}
				regs = append(regs, r)
				splices = append(splices, false)
			}
			result := tailReg
			for i := len(regs) - 1; i >= 0; i-- {
				if splices[i] {
					result = c.emitAppend(fr, regs[i], result)
				} else {
					dst := fr.alloc()
					fr.chunk.Emit3(vmpkg.CONS, uint16(dst), uint16(regs[i]), uint16(result), fr.line)
					result = dst
				}
			}
			return result, nil
		}
	}
	return c.compileQuotedDatum(fr, v)
}

// emitAppend splices listReg's elements onto the front of tailReg by
// emitting a CALL to the `append` global: a splice's length is unknown at
// compile time, so it can't be unrolled into CONS instructions the way a
// fixed-length template position can.
func (c *Compiler) emitAppend(fr *frame, listReg, tailReg int) int {
	symVal := value.Symbol(c.interner.Intern("append"))
	if slot, ok := c.vm.Globals.SlotOf(uint32(symVal.Sym)); ok {
		symVal = value.SymbolWithSlot(symVal.Sym, slot)
	}
	idx := fr.chunk.AddConstant(symVal)
	fnReg := fr.alloc()
	fr.chunk.Emit2(vmpkg.REF, uint16(fnReg), uint16(idx), fr.line)

	fReg := fr.alloc()
	arg0 := fr.alloc()
	arg1 := fr.alloc()
	fr.chunk.Emit2(vmpkg.MOV, uint16(arg0), uint16(listReg), fr.line)
	fr.chunk.Emit2(vmpkg.MOV, uint16(arg1), uint16(tailReg), fr.line)
	fr.chunk.Emit3(vmpkg.CALL, uint16(fReg), uint16(fnReg), 2, fr.line)
	return fReg
}

func (c *Compiler) compileIf(fr *frame, items []value.Value) (int, error) {
	if len(items) != 3 && len(items) != 4 {
		return 0, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "if takes a test, a then branch, and an optional else branch")
	}
	testReg, err := c.compileForm(fr, items[1])
	if err != nil {
		return 0, err
	}
	dst := fr.alloc()
	elsePatch := fr.chunk.EmitJump2(vmpkg.JMP_F, uint16(testReg), fr.line)

	thenReg, err := c.compileForm(fr, items[2])
	if err != nil {
		return 0, err
	}
	fr.chunk.Emit2(vmpkg.MOV, uint16(dst), uint16(thenReg), fr.line)
	endPatch := fr.chunk.EmitJump1(vmpkg.JMP, fr.line)

	fr.chunk.PatchJump(elsePatch, fr.chunk.Len())
	if len(items) == 4 {
		elseReg, err := c.compileForm(fr, items[3])
		if err != nil {
			return 0, err
		}
		fr.chunk.Emit2(vmpkg.MOV, uint16(dst), uint16(elseReg), fr.line)
	} else {
		fr.chunk.Emit2(vmpkg.MOV, uint16(dst), uint16(c.compileConst(fr, value.Nil)), fr.line)
	}
	fr.chunk.PatchJump(endPatch, fr.chunk.Len())
	return dst, nil
}

func (c *Compiler) compileDef(fr *frame, items []value.Value, isVar bool) (int, error) {
	if len(items) != 3 || items[1].Kind != value.KSymbol {
		return 0, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "def takes a symbol and a value")
	}

	// `(def name (macro (params...) body...))` additionally registers the
	// compiled macro body under name, so later forms with name in head
	// position expand instead of compiling as an ordinary call (spec §4.4
	// rule 1's `macro` rewrite).
	if macroItems, ok := c.asSpecialForm(items[2], c.symMacro); ok {
		reg, chunk, err := c.compileFn(fr, macroItems, true)
		if err != nil {
			return 0, err
		}
		c.macros[items[1].Sym] = chunk
		c.vm.Globals.Reserve(uint32(items[1].Sym))
		idx := fr.chunk.AddConstant(value.Symbol(items[1].Sym))
		op := vmpkg.DEF
		if isVar {
			op = vmpkg.DEFV
		}
		fr.chunk.Emit2(op, uint16(idx), uint16(reg), fr.line)
		return reg, nil
	}

	valReg, err := c.compileForm(fr, items[2])
	if err != nil {
		return 0, err
	}
	c.vm.Globals.Reserve(uint32(items[1].Sym))
	idx := fr.chunk.AddConstant(value.Symbol(items[1].Sym))
	op := vmpkg.DEF
	if isVar {
		op = vmpkg.DEFV
	}
	fr.chunk.Emit2(op, uint16(idx), uint16(valReg), fr.line)
	return valReg, nil
}

// compileVar declares a new lexical local in the current frame, the
// stack-register counterpart to `def`'s global slot (spec §4.4 "(var
// name)"). A bare `(var name)` with no initializer leaves it Undefined;
// re-declaring a name already owned by this exact scope is the duplicate-
// var failure mode.
func (c *Compiler) compileVar(fr *frame, items []value.Value) (int, error) {
	if len(items) < 2 || len(items) > 3 || items[1].Kind != value.KSymbol {
		return 0, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "var takes a symbol and an optional value")
	}
	name := items[1].Sym
	if fr.scope.Owns(name) {
		nameStr, _ := c.interner.Resolve(name)
		return 0, diagnostics.NewCompile(diagnostics.ErrDuplicateVar, diagnostics.Position{}, nameStr)
	}
	idx := fr.scope.Define(name)
	reg := fr.localReg(idx)
	if reg >= fr.nextReg {
		fr.nextReg = reg + 1
	}
	if len(items) == 3 {
		valReg, err := c.compileForm(fr, items[2])
		if err != nil {
			return 0, err
		}
		fr.chunk.Emit2(vmpkg.MOV, uint16(reg), uint16(valReg), fr.line)
	} else {
		fr.chunk.Emit2(vmpkg.MOV, uint16(reg), uint16(c.compileConst(fr, value.Undefined)), fr.line)
	}
	return reg, nil
}

// compileSet implements `(set! name val)`: SET's write-through semantics
// (spec §4.5) make this correct whether name is a plain local, a boxed
// local a nested closure captures, or (via REF's resolved Global) a
// global — the destination register's Kind decides at run time.
func (c *Compiler) compileSet(fr *frame, items []value.Value) (int, error) {
	if len(items) != 3 || items[1].Kind != value.KSymbol {
		return 0, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "set! takes a symbol and a value")
	}
	dstReg, err := c.compileSymbolRef(fr, items[1])
	if err != nil {
		return 0, err
	}
	valReg, err := c.compileForm(fr, items[2])
	if err != nil {
		return 0, err
	}
	fr.chunk.Emit2(vmpkg.SET, uint16(dstReg), uint16(valReg), fr.line)
	return dstReg, nil
}

// compileRecur implements the bytecode-level loop primitive (spec §4.5):
// arguments are compiled into a contiguous temp range, then RECUR rebinds
// registers 1..N of the *current* frame from that range and resets IP to
// 0. Neither this pass nor the dispatch loop checks that it is used in
// tail position.
func (c *Compiler) compileRecur(fr *frame, items []value.Value) (int, error) {
	args := items[1:]
	// RECUR reads a contiguous register block (spec §4.5), so every slot
	// must be reserved before any argument is compiled — an argument's own
	// sub-expression may need scratch registers of its own, and those must
	// land above the whole reserved block, not interleaved with it.
	slots := make([]int, len(args))
	for i := range args {
		slots[i] = fr.alloc()
	}
	for i, a := range args {
		r, err := c.compileForm(fr, a)
		if err != nil {
			return 0, err
		}
		fr.chunk.Emit2(vmpkg.MOV, uint16(slots[i]), uint16(r), fr.line)
	}
	first := 0
	if len(slots) > 0 {
		first = slots[0]
	}
	fr.chunk.Emit1(vmpkg.RECUR, uint16(first), fr.line)
	return 0, nil
}

// compileCall compiles an ordinary application. The callee may land in any
// register; CALL's non-tail convention (spec §4.5) reads its n arguments
// from fReg+1..fReg+n regardless of where the callee itself lives, so fReg
// and the argument block must be reserved together before any argument's
// sub-expression can claim scratch registers.
func (c *Compiler) compileCall(fr *frame, items []value.Value) (int, error) {
	calleeReg, err := c.compileForm(fr, items[0])
	if err != nil {
		return 0, err
	}
	args := items[1:]
	fReg := fr.alloc()
	slots := make([]int, len(args))
	for i := range args {
		slots[i] = fr.alloc()
	}
	for i, a := range args {
		r, err := c.compileForm(fr, a)
		if err != nil {
			return 0, err
		}
		fr.chunk.Emit2(vmpkg.MOV, uint16(slots[i]), uint16(r), fr.line)
	}
	fr.chunk.Emit3(vmpkg.CALL, uint16(fReg), uint16(calleeReg), uint16(len(args)), fr.line)
	return fReg, nil
}

// expandMacro runs a compiled macro body against its unevaluated argument
// forms (themselves just Values — no separate quoting mechanism is needed
// since the reader already produced the homoiconic tree macros operate
// on), synchronously, via the shared VM's reentrant CallSync.
func (c *Compiler) expandMacro(chunk *vmpkg.Chunk, rawArgs []value.Value) (value.Value, error) {
	lamObj := &value.LambdaObj{Chunk: chunk, FixedArgs: chunk.Arity.Fixed, HasRest: chunk.Arity.HasRest}
	h := c.heap.Alloc(lamObj)
	callee := value.Lambda(h)
	return c.vm.CallSync(callee, rawArgs)
}

// asSpecialForm reports whether v is a list headed by head, returning its
// items when it is — the shape check compileDef uses to notice a `(macro
// ...)` value before it would otherwise compile as an ordinary lambda.
func (c *Compiler) asSpecialForm(v value.Value, head interner.ID) ([]value.Value, bool) {
	if v.Kind != value.KPair && v.Kind != value.KList {
		return nil, false
	}
	items, err := c.listItems(v)
	if err != nil || len(items) == 0 {
		return nil, false
	}
	h, ok := c.headSymbol(items)
	if !ok || h != head {
		return nil, false
	}
	return items, true
}

// parseParamList reads a `fn`/`macro` parameter list: a proper list of
// symbols, a dotted list whose tail symbol collects the rest arguments
// (`(a b . rest)`), or a bare symbol (all arguments collected as a list).
func (c *Compiler) parseParamList(v value.Value) (fixed []interner.ID, rest interner.ID, hasRest bool, err error) {
	cur := v
	for {
		switch cur.Kind {
		case value.KNil:
			return fixed, rest, hasRest, nil
		case value.KSymbol:
			return fixed, cur.Sym, true, nil
		case value.KPair:
			obj, e := c.heap.Get(cur.H)
			if e != nil {
				return nil, 0, false, e
			}
			p := obj.(*value.PairObj)
			if p.Car.Kind != value.KSymbol {
				return nil, 0, false, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "parameter is not a symbol")
			}
			fixed = append(fixed, p.Car.Sym)
			cur = p.Cdr
		case value.KList:
			items, e := c.listItems(cur)
			if e != nil {
				return nil, 0, false, e
			}
			for _, it := range items {
				if it.Kind != value.KSymbol {
					return nil, 0, false, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "parameter is not a symbol")
				}
				fixed = append(fixed, it.Sym)
			}
			return fixed, rest, hasRest, nil
		default:
			return nil, 0, false, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "malformed parameter list")
		}
	}
}

// collectVarNames marks every name a (var ...) form directly within body
// declares, without descending into nested fn/macro bodies (whose own vars
// belong to them alone) or quoted data — the "locally bound" set the
// free-variable prescan needs so it doesn't mistake a lambda's own local
// for something it must capture from outside.
func (c *Compiler) collectVarNames(body []value.Value, bound map[interner.ID]bool) {
	var walk func(v value.Value)
	walk = func(v value.Value) {
		if v.Kind != value.KPair && v.Kind != value.KList {
			return
		}
		items, err := c.listItems(v)
		if err != nil || len(items) == 0 {
			return
		}
		if head, ok := c.headSymbol(items); ok {
			switch head {
			case c.symFn, c.symMacro, c.symQuote:
				return
			case c.symVar:
				if len(items) >= 2 && items[1].Kind == value.KSymbol {
					bound[items[1].Sym] = true
				}
			}
		}
		for _, item := range items {
			walk(item)
		}
	}
	for _, f := range body {
		walk(f)
	}
}

func cloneBound(b map[interner.ID]bool) map[interner.ID]bool {
	out := make(map[interner.ID]bool, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// captureCandidates walks a lambda's unanalyzed body and returns, in
// first-reference order, every free symbol that resolves somewhere in
// outer's scope chain — the lambda's exact capture set, computed before
// the body is compiled so CaptureCount (and therefore where this lambda's
// own locals begin, frame.localReg) is known up front. It uses the same
// resolution test (Scope.Resolve) the real compile pass applies, so the
// two passes agree on what counts as free.
//
// The walk descends into nested fn/macro bodies, so a name used only by a
// grandchild lambda is still a capture of this lambda; the grandchild then
// resolves it through this lambda's capture cell.
func (c *Compiler) captureCandidates(outer *symbols.Scope, body []value.Value, bound map[interner.ID]bool) []interner.ID {
	var order []interner.ID
	seen := make(map[interner.ID]bool)

	var walk func(v value.Value, bound map[interner.ID]bool)
	walk = func(v value.Value, bound map[interner.ID]bool) {
		switch v.Kind {
		case value.KSymbol:
			if bound[v.Sym] || seen[v.Sym] {
				return
			}
			if outer.Resolve(v.Sym).Loc != symbols.LocNone {
				seen[v.Sym] = true
				order = append(order, v.Sym)
			}
		case value.KPair, value.KList:
			items, err := c.listItems(v)
			if err != nil || len(items) == 0 {
				return
			}
			if head, ok := c.headSymbol(items); ok {
				switch head {
				case c.symQuote:
					return
				case c.symFn, c.symMacro:
					if len(items) < 2 {
						return
					}
					inner := cloneBound(bound)
					if fixed, rest, hasRest, err := c.parseParamList(items[1]); err == nil {
						for _, p := range fixed {
							inner[p] = true
						}
						if hasRest {
							inner[rest] = true
						}
					}
					nestedBody := items[2:]
					c.collectVarNames(nestedBody, inner)
					for _, nb := range nestedBody {
						walk(nb, inner)
					}
					return
				}
			}
			for _, item := range items {
				walk(item, bound)
			}
		}
	}
	for _, f := range body {
		walk(f, bound)
	}
	return order
}

// compileFn compiles `(fn (params...) body...)` / `(macro (params...)
// body...)` into its own Chunk, returning the register in outer holding
// the resulting callable value and (for compileDef's macro bookkeeping)
// the compiled chunk itself.
//
// The free-variable prescan runs before the body compiles for real, so
// this lambda's CaptureCount — and therefore where its own var locals
// begin (frame.localReg) — is settled before any register inside the body
// is allocated. A capture-free lambda needs nothing beyond its Lambda
// constant; one that captures anything additionally boxes each captured
// outer local in place — a capture that is itself already a Binding
// (captured from a still-further-outer scope) is copied through as-is,
// never re-boxed, since re-boxing would mint a fresh cell and break its
// shared identity with the original owner — and emits MKCLOSURE in the
// enclosing frame.
func (c *Compiler) compileFn(outer *frame, items []value.Value, isMacro bool) (int, *vmpkg.Chunk, error) {
	if len(items) < 3 {
		return 0, nil, diagnostics.NewCompile(diagnostics.ErrMalformedForm, diagnostics.Position{}, "fn requires a parameter list and at least one body form")
	}
	fixed, restName, hasRest, err := c.parseParamList(items[1])
	if err != nil {
		return 0, nil, err
	}
	body := items[2:]

	bound := make(map[interner.ID]bool, len(fixed)+1)
	for _, p := range fixed {
		bound[p] = true
	}
	if hasRest {
		bound[restName] = true
	}
	c.collectVarNames(body, bound)
	captures := c.captureCandidates(outer.scope, body, bound)

	innerScope := symbols.NewEnclosed(outer.scope)
	for _, p := range fixed {
		innerScope.Define(p)
	}
	if hasRest {
		innerScope.Define(restName)
	}
	for _, capID := range captures {
		innerScope.PreRegisterCapture(capID)
	}

	fixedArgs := len(fixed)
	if hasRest {
		fixedArgs++
	}
	inner := &frame{
		chunk:        vmpkg.NewChunk(outer.chunk.Source),
		scope:        innerScope,
		fixedArgs:    fixedArgs,
		captureCount: len(captures),
		nextReg:      1 + fixedArgs + len(captures),
		line:         outer.line,
	}
	dst, err := c.compileBody(inner, body)
	if err != nil {
		return 0, nil, err
	}
	c.emitReturn(inner, dst)
	inner.chunk.Arity = vmpkg.Arity{Fixed: len(fixed), HasRest: hasRest, CaptureCount: len(captures)}

	lamObj := &value.LambdaObj{Chunk: inner.chunk, FixedArgs: len(fixed), HasRest: hasRest}
	h := c.heap.Alloc(lamObj)
	idx := outer.chunk.AddConstant(value.Lambda(h))

	if len(captures) == 0 {
		dstReg := outer.alloc()
		outer.chunk.Emit2(vmpkg.CONST, uint16(dstReg), uint16(idx), outer.line)
		return dstReg, inner.chunk, nil
	}

	// MKCLOSURE reads its captured cells from a contiguous block, so it
	// must be reserved before resolving any one of them (resolving a
	// capture that is itself a capture of outer just moves a register,
	// costing no scratch space, but resolving a plain local costs nothing
	// extra either — the reservation is here purely for the invariant,
	// not because any of these resolutions allocate).
	capRegs := make([]int, len(captures))
	for i := range captures {
		capRegs[i] = outer.alloc()
	}
	for i, capID := range captures {
		binding := outer.scope.Resolve(capID)
		switch binding.Loc {
		case symbols.LocStack:
			reg := outer.localReg(binding.Index)
			outer.chunk.Emit2(vmpkg.BOX, uint16(reg), uint16(reg), outer.line)
			outer.chunk.Emit2(vmpkg.MOV, uint16(capRegs[i]), uint16(reg), outer.line)
		case symbols.LocCapture:
			reg := outer.captureReg(binding.Index)
			outer.chunk.Emit2(vmpkg.MOV, uint16(capRegs[i]), uint16(reg), outer.line)
		default:
			return 0, nil, fmt.Errorf("analyzer: capture candidate did not resolve in its own enclosing scope")
		}
	}
	dstReg := outer.alloc()
	outer.chunk.Emit4(vmpkg.MKCLOSURE, uint16(dstReg), uint16(idx), uint16(capRegs[0]), uint16(len(captures)), outer.line)
	return dstReg, inner.chunk, nil
}
