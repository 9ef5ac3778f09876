// Package symbols implements the analyzer's lexical scope chain (spec
// §4.4): a stack of local bindings, parented to an outer scope, from which
// a symbol resolves to a stack slot in the current frame, a captured cell
// from an enclosing lambda, or nothing (falling through to the global
// table). Grounded on the teacher's internal/symbols.SymbolTable
// outer-chain idiom (NewEnclosedSymbolTable, *SymbolTable.outer, recursive
// Find), stripped of every type-system registry the Hindley-Milner checker
// needed — this scope only ever tracks "where does this name live".
package symbols

import "github.com/funvibe/funxylisp/internal/interner"

// Loc is where a resolved symbol's value actually lives, the SymLoc
// taxonomy spec §4.4 assigns during analysis.
type Loc int

const (
	// LocNone means the symbol was not found in any enclosing lambda's
	// scope chain; the analyzer falls through to a Global slot reference.
	LocNone Loc = iota
	// LocStack means the symbol is a local of the current lambda frame,
	// addressed by its register index.
	LocStack
	// LocCapture means the symbol lives in an outer lambda's frame and
	// must be captured into a cell at closure-creation time.
	LocCapture
)

// Binding is one resolved lexical name: its slot index within whichever
// frame Loc says it lives in.
type Binding struct {
	Loc   Loc
	Index int
}

// Scope is one lambda body's lexical frame: its own local bindings plus a
// pointer to the lambda that encloses it (nil at the outermost frame,
// which resolves everything else to globals).
type Scope struct {
	outer   *Scope
	names   map[interner.ID]int // local name -> stack slot
	order   []interner.ID       // insertion order, for capture-cell layout
	nextIdx int

	// captures records names pulled in from an outer scope, in the order
	// first referenced; captureIndex reports their Go-side storage index
	// in the resulting Closure's Captures slice.
	captures     []interner.ID
	captureIndex map[interner.ID]int
}

// New creates a root scope with no enclosing lambda.
func New() *Scope {
	return &Scope{names: make(map[interner.ID]int)}
}

// NewEnclosed creates a scope for a lambda nested directly inside outer,
// mirroring the teacher's NewEnclosedSymbolTable(outer).
func NewEnclosed(outer *Scope) *Scope {
	return &Scope{outer: outer, names: make(map[interner.ID]int)}
}

// Define introduces a new local in this scope and returns its stack slot.
// Redefining an existing name in the same scope is the analyzer's
// ErrDuplicateVar case; Scope itself doesn't refuse it, since `let*`-style
// shadowing within nested scopes is legal and only same-scope duplication
// is an error the caller must detect via Owns.
func (s *Scope) Define(id interner.ID) int {
	idx := s.nextIdx
	s.names[id] = idx
	s.order = append(s.order, id)
	s.nextIdx++
	return idx
}

// Owns reports whether id is already a local of this exact scope (not an
// outer one), the check var-duplicate detection needs.
func (s *Scope) Owns(id interner.ID) bool {
	_, ok := s.names[id]
	return ok
}

// Resolve implements spec §4.4's resolution order: current frame, then
// each enclosing lambda frame in turn (registering a capture the first
// time a name is found across a lambda boundary), falling through to
// LocNone when no enclosing scope defines it.
func (s *Scope) Resolve(id interner.ID) Binding {
	if idx, ok := s.names[id]; ok {
		return Binding{Loc: LocStack, Index: idx}
	}
	if s.outer == nil {
		return Binding{Loc: LocNone}
	}
	outerBinding := s.outer.Resolve(id)
	if outerBinding.Loc == LocNone {
		return Binding{Loc: LocNone}
	}
	return Binding{Loc: LocCapture, Index: s.captureSlot(id)}
}

// captureSlot returns id's index into this lambda's Captures list,
// minting a fresh one (in first-reference order) if this is the first
// time the name crossed into this scope from an outer one.
func (s *Scope) captureSlot(id interner.ID) int {
	if s.captureIndex == nil {
		s.captureIndex = make(map[interner.ID]int)
	}
	if idx, ok := s.captureIndex[id]; ok {
		return idx
	}
	idx := len(s.captures)
	s.captures = append(s.captures, id)
	s.captureIndex[id] = idx
	return idx
}

// PreRegisterCapture reserves id's Captures slot ahead of a real compile
// pass, for the analyzer's free-variable prescan: calling it for every
// discovered free variable before compiling the lambda's body means the
// body's own first Resolve of each name lands on the exact slot the
// prescan already assigned, instead of minting a fresh one mid-compile.
func (s *Scope) PreRegisterCapture(id interner.ID) int {
	return s.captureSlot(id)
}

// Captures returns the names this scope captures from enclosing lambdas,
// in the stable order PreRegisterCapture/Resolve assigned them — the order a
// LambdaObj.Captures slice must be populated in at closure-creation time.
func (s *Scope) Captures() []interner.ID {
	return s.captures
}

// LocalCount reports how many stack slots this scope's own locals occupy.
func (s *Scope) LocalCount() int { return s.nextIdx }

// Outer returns the enclosing scope, or nil at the outermost frame.
func (s *Scope) Outer() *Scope { return s.outer }
