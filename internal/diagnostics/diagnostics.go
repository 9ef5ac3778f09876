// Package diagnostics carries the two error taxa spec §7 requires —
// compile errors (raised by the analyzer) and VM errors (raised by the
// dispatch loop) — as distinct, source-located error types. Ported from
// the teacher's internal/diagnostics package: same Phase/ErrorCode/template
// shape, with token.Token (a funxy-lexer type this repo has no use for)
// replaced by a bare Position, and the error code tables swapped for the
// codes spec.md actually names.
package diagnostics

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Phase distinguishes which pass raised the error.
type Phase string

const (
	PhaseAnalyzer Phase = "analyzer"
	PhaseRuntime  Phase = "vm"
)

// ErrorCode identifies one documented failure mode from spec §7.
type ErrorCode string

const (
	// Compile errors (raised by the analyzer).
	ErrArityMismatch      ErrorCode = "C001" // fn/macro called or declared with wrong arity
	ErrMalformedForm      ErrorCode = "C002" // fn/macro/quote/back-quote/var malformed
	ErrDuplicateVar       ErrorCode = "C003" // duplicate var binding in the same scope
	ErrVarOutsideLambda   ErrorCode = "C004" // var used outside any lambda
	ErrUndefinedReference ErrorCode = "C005" // symbol never resolved during analysis

	// VM errors (raised by the dispatch loop).
	ErrTypeMismatch        ErrorCode = "R001" // arithmetic/primitive type mismatch
	ErrDivideByZero        ErrorCode = "R002"
	ErrUndefinedGlobal     ErrorCode = "R003" // REF on a slot still holding Undefined
	ErrSymbolNotInterned   ErrorCode = "R004" // REF on a symbol with no slot and no interned match
	ErrInvalidOpcode       ErrorCode = "R005"
	ErrStackUnderflow      ErrorCode = "R006"
	ErrRecursionLimit      ErrorCode = "R007"
	ErrInterrupted         ErrorCode = "R008"
	ErrTailCallArity       ErrorCode = "R009"
	ErrNotCallable         ErrorCode = "R010"
	ErrRecurOutsideTail    ErrorCode = "R011"
)

var templates = map[ErrorCode]string{
	ErrArityMismatch:      "arity mismatch: %s",
	ErrMalformedForm:      "malformed form: %s",
	ErrDuplicateVar:       "duplicate var binding: %s",
	ErrVarOutsideLambda:   "var used outside any lambda: %s",
	ErrUndefinedReference: "reference to undefined symbol: %s",

	ErrTypeMismatch:      "%s",
	ErrDivideByZero:      "divide by zero",
	ErrUndefinedGlobal:   "symbol is not defined: %s",
	ErrSymbolNotInterned: "symbol not interned: id %v",
	ErrInvalidOpcode:     "invalid opcode %v",
	ErrStackUnderflow:    "stack underflow",
	ErrRecursionLimit:    "recursion limit exceeded (max %v)",
	ErrInterrupted:       "interrupted",
	ErrTailCallArity:     "tail call arity mismatch: %s",
	ErrNotCallable:       "not callable: %s",
	ErrRecurOutsideTail:  "recur used outside tail position",
}

// asInt widens whatever integer-ish type a diagnostic argument was built
// with to int64, for humanize.Comma's sake.
func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// Position is a source location; the zero value means "unknown".
type Position struct {
	Line, Column int
	File         string
}

func (p Position) String() string {
	if p.Line == 0 {
		return ""
	}
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Diagnostic is a located, coded error from either taxon.
type Diagnostic struct {
	Code  ErrorCode
	Phase Phase
	Args  []interface{}
	Pos   Position

	// Backtrace accumulates frame descriptions as the VM dispatch loop
	// unwinds (spec §7: "Each error carries an optional backtrace
	// populated as frames unwind").
	Backtrace []string
}

func (d *Diagnostic) Error() string {
	template, ok := templates[d.Code]
	if !ok {
		template = "unknown error code: " + string(d.Code)
	}
	args := d.Args
	// Recursion-limit diagnostics carry a raw count; humanize
	// it (1,000 instead of 1000) the way the teacher's humanize-backed
	// logging renders large numbers for a human reader.
	if d.Code == ErrRecursionLimit && len(args) == 1 {
		if n, ok := asInt(args[0]); ok {
			args = []interface{}{humanize.Comma(n)}
		}
	}
	message := fmt.Sprintf(template, args...)

	prefix := ""
	if loc := d.Pos.String(); loc != "" {
		prefix = loc + ": "
	}
	phase := ""
	if d.Phase != "" {
		phase = fmt.Sprintf("[%s] ", d.Phase)
	}
	s := fmt.Sprintf("%s%serror [%s]: %s", prefix, phase, d.Code, message)
	for _, frame := range d.Backtrace {
		s += "\n  at " + frame
	}
	return s
}

// NewCompile builds an analyzer-phase diagnostic.
func NewCompile(code ErrorCode, pos Position, args ...interface{}) *Diagnostic {
	return &Diagnostic{Code: code, Phase: PhaseAnalyzer, Pos: pos, Args: args}
}

// NewVM builds a dispatch-loop diagnostic.
func NewVM(code ErrorCode, args ...interface{}) *Diagnostic {
	return &Diagnostic{Code: code, Phase: PhaseRuntime, Args: args}
}

// PushFrame appends a frame description as an error unwinds the call
// stack, building the backtrace spec §7 requires.
func (d *Diagnostic) PushFrame(frame string) *Diagnostic {
	d.Backtrace = append(d.Backtrace, frame)
	return d
}
