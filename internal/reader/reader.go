// Package reader turns source text into value.Value trees — lists built
// from PairObj cons cells, symbols, and literals — the same homoiconic
// shape the analyzer consumes. Grounded on the teacher's internal/lexer
// hand-rolled character scanner (readChar/peekChar, line/column tracking,
// a byte-at-a-time NextToken loop) adapted to Lisp syntax: instead of
// tokenizing into a token.Token stream consumed by a separate parser, one
// recursive-descent Reader reads directly into the final Value tree, the
// idiom sl-sh's own reader uses for the same reason (the tree it produces
// IS the program, there is no intermediate AST).
package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
	"github.com/funvibe/funxylisp/internal/value"
)

// Reader holds one input buffer's scan position, mirroring the teacher
// lexer's position/readPosition/ch/line/column fields.
type Reader struct {
	input        string
	position     int
	readPosition int
	ch           byte
	line         int
	column       int

	heap     *heap.Heap
	interner *interner.Interner
}

// New creates a Reader over input, allocating pairs/strings on h and
// interning symbol/keyword names into in.
func New(input string, h *heap.Heap, in *interner.Interner) *Reader {
	r := &Reader{input: input, line: 1, heap: h, interner: in}
	r.readChar()
	return r
}

func (r *Reader) readChar() {
	if r.ch == '\n' {
		r.line++
		r.column = 0
	}
	if r.readPosition >= len(r.input) {
		r.ch = 0
	} else {
		r.ch = r.input[r.readPosition]
	}
	r.position = r.readPosition
	r.readPosition++
	r.column++
}

func (r *Reader) peekChar() byte {
	if r.readPosition >= len(r.input) {
		return 0
	}
	return r.input[r.readPosition]
}

// ReadError is a located syntax error (spec §7 names reader errors as a
// VM-adjacent but distinct failure; this core reports them plainly since
// no diagnostics.Phase is reserved for the reader).
type ReadError struct {
	Line, Column int
	Msg          string
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

func (r *Reader) errf(format string, args ...interface{}) error {
	return &ReadError{Line: r.line, Column: r.column, Msg: fmt.Sprintf(format, args...)}
}

// ReadAll reads every top-level form in the input.
func (r *Reader) ReadAll() ([]value.Value, error) {
	var forms []value.Value
	for {
		v, ok, err := r.Read()
		if err != nil {
			return nil, err
		}
		if !ok {
			return forms, nil
		}
		forms = append(forms, v)
	}
}

// Read reads the next top-level form, or ok=false at end of input.
func (r *Reader) Read() (value.Value, bool, error) {
	r.skipAtmosphere()
	if r.ch == 0 {
		return value.Nil, false, nil
	}
	v, err := r.readForm()
	if err != nil {
		return value.Nil, false, err
	}
	return v, true, nil
}

func (r *Reader) skipAtmosphere() {
	for {
		for r.ch == ' ' || r.ch == '\t' || r.ch == '\r' || r.ch == '\n' {
			r.readChar()
		}
		if r.ch == ';' {
			for r.ch != '\n' && r.ch != 0 {
				r.readChar()
			}
			continue
		}
		break
	}
}

func (r *Reader) readForm() (value.Value, error) {
	r.skipAtmosphere()
	switch {
	case r.ch == 0:
		return value.Nil, r.errf("unexpected end of input")
	case r.ch == '(':
		return r.readList(')')
	case r.ch == '[':
		return r.readList(']')
	case r.ch == ')' || r.ch == ']':
		return value.Nil, r.errf("unexpected %q", r.ch)
	case r.ch == '\'':
		r.readChar()
		return r.readShorthand("quote")
	case r.ch == '`':
		r.readChar()
		return r.readShorthand("back-quote")
	case r.ch == ',':
		r.readChar()
		if r.ch == '@' {
			r.readChar()
			return r.readShorthand("unquote-splice")
		}
		return r.readShorthand("unquote")
	case r.ch == '"':
		return r.readString()
	case r.ch == '#':
		return r.readHash()
	default:
		return r.readAtom()
	}
}

// readShorthand implements the reader-macro expansion of spec.md's printer
// section in reverse: `'x`, `` `x ``, `,x`, `,@x` each read as a
// two-element list `(head x)`.
func (r *Reader) readShorthand(head string) (value.Value, error) {
	inner, err := r.readForm()
	if err != nil {
		return value.Nil, err
	}
	return r.list([]value.Value{r.symbol(head), inner}), nil
}

// readList reads forms up to close, building a proper (or dotted) list.
// A dot (`.`) immediately before close makes the final cdr the following
// form instead of Nil, spec §9's "(a b . c)" shape.
func (r *Reader) readList(close byte) (value.Value, error) {
	r.readChar() // consume '(' or '['
	var items []value.Value
	tail := value.Nil
	for {
		r.skipAtmosphere()
		if r.ch == 0 {
			return value.Nil, r.errf("unterminated list")
		}
		if r.ch == close {
			r.readChar()
			break
		}
		if r.ch == '.' && isDelimiter(r.peekChar()) {
			r.readChar()
			t, err := r.readForm()
			if err != nil {
				return value.Nil, err
			}
			tail = t
			r.skipAtmosphere()
			if r.ch != close {
				return value.Nil, r.errf("malformed dotted list")
			}
			r.readChar()
			break
		}
		item, err := r.readForm()
		if err != nil {
			return value.Nil, err
		}
		items = append(items, item)
	}
	return r.listWithTail(items, tail), nil
}

func (r *Reader) list(items []value.Value) value.Value {
	return r.listWithTail(items, value.Nil)
}

func (r *Reader) listWithTail(items []value.Value, tail value.Value) value.Value {
	result := tail
	for i := len(items) - 1; i >= 0; i-- {
		result = value.Pair(r.heap.Alloc(&value.PairObj{Car: items[i], Cdr: result}))
	}
	return result
}

func (r *Reader) readString() (value.Value, error) {
	r.readChar() // opening quote
	var sb strings.Builder
	for {
		if r.ch == 0 {
			return value.Nil, r.errf("unterminated string")
		}
		if r.ch == '"' {
			r.readChar()
			break
		}
		if r.ch == '\\' {
			r.readChar()
			sb.WriteByte(escapeByte(r.ch))
			r.readChar()
			continue
		}
		sb.WriteByte(r.ch)
		r.readChar()
	}
	return value.String(r.heap, sb.String()), nil
}

func escapeByte(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return ch
	}
}

// readHash handles `#(` vectors, `#\x` characters and the named-char
// table printer.go mirrors, and `#t`/`#f` boolean literals.
func (r *Reader) readHash() (value.Value, error) {
	r.readChar() // consume '#'
	switch r.ch {
	case '(':
		return r.readVector()
	case '\\':
		r.readChar()
		return r.readCharLiteral()
	case 't':
		r.readChar()
		return value.True, nil
	case 'f':
		r.readChar()
		return value.False, nil
	default:
		return value.Nil, r.errf("unsupported # syntax: #%c", r.ch)
	}
}

func (r *Reader) readVector() (value.Value, error) {
	r.readChar() // consume '('
	var items []value.Value
	for {
		r.skipAtmosphere()
		if r.ch == 0 {
			return value.Nil, r.errf("unterminated vector")
		}
		if r.ch == ')' {
			r.readChar()
			break
		}
		item, err := r.readForm()
		if err != nil {
			return value.Nil, err
		}
		items = append(items, item)
	}
	return value.Vector(r.heap.Alloc(&value.VectorObj{Items: items})), nil
}

// namedChars is the reader/printer's shared named-character table,
// matched against sl-sh's (\newline, \space, \tab, ...).
var namedChars = map[string]rune{
	"newline": '\n',
	"space":   ' ',
	"tab":     '\t',
	"return":  '\r',
	"null":    0,
}

func (r *Reader) readCharLiteral() (value.Value, error) {
	start := r.position
	if isLetter(r.ch) {
		for isLetter(r.ch) || isDigit(r.ch) {
			r.readChar()
		}
		name := r.input[start:r.position]
		if len(name) == 1 {
			return value.CodePoint(rune(name[0])), nil
		}
		if ch, ok := namedChars[strings.ToLower(name)]; ok {
			return value.CodePoint(ch), nil
		}
		return value.Nil, r.errf("unknown named character: %s", name)
	}
	ch := r.ch
	r.readChar()
	return value.CodePoint(rune(ch)), nil
}

func (r *Reader) readAtom() (value.Value, error) {
	start := r.position
	for !isDelimiter(r.ch) {
		r.readChar()
	}
	text := r.input[start:r.position]
	if text == "" {
		return value.Nil, r.errf("empty atom")
	}
	if text == "nil" {
		return value.Nil, nil
	}
	if text == "true" {
		return value.True, nil
	}
	if text == "false" {
		return value.False, nil
	}
	if v, ok := r.readNumber(text); ok {
		return v, nil
	}
	if strings.HasPrefix(text, ":") && len(text) > 1 {
		return value.Keyword(r.interner.Intern(text[1:])), nil
	}
	return r.symbol(text), nil
}

func (r *Reader) symbol(name string) value.Value {
	return value.Symbol(r.interner.Intern(name))
}

func (r *Reader) readNumber(text string) (value.Value, bool) {
	if text == "+" || text == "-" || text == "." || text == "..." {
		return value.Nil, false
	}
	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		return r.fitInt(i), true
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return value.Float64(r.heap, f), true
	}
	return value.Nil, false
}

// fitInt picks the narrowest immediate integer kind that holds i, boxing
// it as Int64 on the heap only when it overflows int32 — the analyzer and
// printer treat every integer kind interchangeably via IsInt/GetInt, so
// the choice is purely a footprint optimization.
func (r *Reader) fitInt(i int64) value.Value {
	if i >= -(1<<31) && i < (1<<31) {
		return value.Int32(int32(i))
	}
	return value.Int64(r.heap, i)
}

func isDelimiter(ch byte) bool {
	switch ch {
	case 0, ' ', '\t', '\r', '\n', '(', ')', '[', ']', '"', ';', '\'', '`', ',':
		return true
	}
	return false
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || ch == '-'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
