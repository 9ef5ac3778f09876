// Package printer renders value.Value trees back to text (spec §5): a
// "display" form for human-facing output (strings unquoted, chars as
// literal runes) and a "pretty"/write form that round-trips through the
// reader (strings quoted and escaped, chars as the reader's #\name
// literals, quote/back-quote/unquote shorthand recovered from their
// (quote x) list shape). Grounded on the teacher's internal/printer
// recursive Write(sb *strings.Builder, obj Object) walk, adapted from the
// teacher's interface-dispatch switch to a Kind switch over value.Value.
package printer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
	"github.com/funvibe/funxylisp/internal/value"
	"github.com/funvibe/funxylisp/internal/value/persistent"
)

// Printer renders Values against a specific heap and interner, the same
// two resources the reader needed to build them.
type Printer struct {
	heap     *heap.Heap
	interner *interner.Interner
}

// New creates a Printer over h and in.
func New(h *heap.Heap, in *interner.Interner) *Printer {
	return &Printer{heap: h, interner: in}
}

// namedChars mirrors the reader's table in reverse: a codepoint that has a
// name prints as #\name instead of the bare character, under Write.
var namedChars = map[rune]string{
	'\n': "newline",
	' ':  "space",
	'\t': "tab",
	'\r': "return",
	0:    "null",
}

// Display renders v the way `pr`/`prn` show it to a human: strings and
// chars appear literally, with no reader-escaping.
func (p *Printer) Display(v value.Value) string {
	var sb strings.Builder
	p.write(&sb, v, false)
	return sb.String()
}

// resolve looks up id's text, falling back to a placeholder for an id this
// Printer's interner never minted (can only happen if a Value strayed
// across two VMs' interners).
func (p *Printer) resolve(id interner.ID) string {
	if s, ok := p.interner.Resolve(id); ok {
		return s
	}
	return "#<unresolved-symbol>"
}

// Write renders v so that reading it back produces an equal value: strings
// are quoted and escaped, characters use #\name/#\x literals, and a quote/
// back-quote/unquote/unquote-splice 2-element list prints as its shorthand
// instead of spelled out as `(quote x)`.
func (p *Printer) Write(v value.Value) string {
	var sb strings.Builder
	p.write(&sb, v, true)
	return sb.String()
}

func (p *Printer) write(sb *strings.Builder, v value.Value, readable bool) {
	switch v.Kind {
	case value.KNil:
		sb.WriteString("nil")
	case value.KTrue:
		sb.WriteString("true")
	case value.KFalse:
		sb.WriteString("false")
	case value.KUndefined:
		sb.WriteString("#<undefined>")
	case value.KByte:
		fmt.Fprintf(sb, "%d", v.I)
	case value.KInt32, value.KUInt32:
		fmt.Fprintf(sb, "%d", v.I)
	case value.KInt64:
		i, _ := v.GetInt(p.heap)
		fmt.Fprintf(sb, "%d", i)
	case value.KUInt64:
		obj, _ := p.heap.Get(v.H)
		fmt.Fprintf(sb, "%d", obj.(uint64))
	case value.KFloat64:
		f, _ := v.GetFloat(p.heap)
		sb.WriteString(formatFloat(f))
	case value.KCodePoint:
		p.writeChar(sb, rune(v.I), readable)
	case value.KCharCluster:
		p.writeCluster(sb, string(v.Cluster[:v.ClusterLen]), readable)
	case value.KCharClusterLong:
		obj, _ := p.heap.Get(v.H)
		p.writeCluster(sb, obj.(string), readable)
	case value.KString:
		obj, _ := p.heap.Get(v.H)
		p.writeString(sb, string(obj.(*value.StringObj).Data), readable)
	case value.KStringConst:
		p.writeString(sb, p.resolve(v.Sym), readable)
	case value.KBytes:
		obj, _ := p.heap.Get(v.H)
		p.writeBytes(sb, obj.(*value.BytesObj).Data)
	case value.KSymbol:
		sb.WriteString(p.resolve(v.Sym))
	case value.KKeyword:
		sb.WriteByte(':')
		sb.WriteString(p.resolve(v.Sym))
	case value.KPair, value.KList:
		p.writeList(sb, v, readable)
	case value.KVector:
		obj, _ := p.heap.Get(v.H)
		p.writeVectorItems(sb, obj.(*value.VectorObj).Items, readable)
	case value.KPersistentVec:
		obj, _ := p.heap.Get(v.H)
		p.writeVectorItems(sb, obj.(*persistent.Vector).ToSlice(), readable)
	case value.KPersistentMap, value.KMap:
		p.writeMap(sb, v, readable)
	case value.KBuiltin:
		fmt.Fprintf(sb, "#<builtin:%d>", v.I)
	case value.KLambda:
		sb.WriteString("#<lambda>")
	case value.KClosure:
		sb.WriteString("#<closure>")
	case value.KContinuation:
		sb.WriteString("#<continuation>")
	case value.KBinding, value.KGlobal, value.KValue:
		sb.WriteString("#<ref>")
	case value.KIOHandle:
		sb.WriteString("#<io-handle>")
	default:
		sb.WriteString("#<?>")
	}
}

// formatFloat always keeps a decimal point, the printer convention sl-sh
// and the pack's other Lisp-family examples share, so 2.0 never prints
// indistinguishably from the integer 2.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (p *Printer) writeChar(sb *strings.Builder, r rune, readable bool) {
	if !readable {
		sb.WriteRune(r)
		return
	}
	sb.WriteString("#\\")
	if name, ok := namedChars[r]; ok {
		sb.WriteString(name)
		return
	}
	sb.WriteRune(r)
}

func (p *Printer) writeCluster(sb *strings.Builder, s string, readable bool) {
	if !readable {
		sb.WriteString(s)
		return
	}
	sb.WriteString("#\\")
	sb.WriteString(s)
}

func (p *Printer) writeString(sb *strings.Builder, s string, readable bool) {
	if !readable {
		sb.WriteString(s)
		return
	}
	sb.WriteByte('"')
	for _, b := range []byte(s) {
		switch b {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(b)
		}
	}
	sb.WriteByte('"')
}

func (p *Printer) writeBytes(sb *strings.Builder, data []byte) {
	sb.WriteString("#bytes(")
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(sb, "%02x", b)
	}
	sb.WriteByte(')')
}

// shorthandHeads maps a reader macro's expanded head name to its printed
// shorthand prefix, the inverse of reader.go's readShorthand.
var shorthandHeads = map[string]string{
	"quote":          "'",
	"back-quote":     "`",
	"unquote":        ",",
	"unquote-splice": ",@",
}

func (p *Printer) writeList(sb *strings.Builder, v value.Value, readable bool) {
	if readable {
		if prefix, inner, ok := p.asShorthand(v); ok {
			sb.WriteString(prefix)
			p.write(sb, inner, readable)
			return
		}
	}
	sb.WriteByte('(')
	first := true
	cur := v
	for {
		if cur.IsNil() {
			break
		}
		car, cdr, ok := p.unpair(cur)
		if !ok {
			if !first {
				sb.WriteString(" . ")
			}
			p.write(sb, cur, readable)
			break
		}
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		p.write(sb, car, readable)
		cur = cdr
	}
	sb.WriteByte(')')
}

// asShorthand recognizes a 2-element (head x) list whose head is one of
// the reader's shorthand symbols, returning the shorthand prefix to print
// instead of the spelled-out list.
func (p *Printer) asShorthand(v value.Value) (string, value.Value, bool) {
	car, cdr, ok := p.unpair(v)
	if !ok || car.Kind != value.KSymbol {
		return "", value.Value{}, false
	}
	prefix, ok := shorthandHeads[p.resolve(car.Sym)]
	if !ok {
		return "", value.Value{}, false
	}
	inner, rest, ok := p.unpair(cdr)
	if !ok || !rest.IsNil() {
		return "", value.Value{}, false
	}
	return prefix, inner, true
}

func (p *Printer) unpair(v value.Value) (car, cdr value.Value, ok bool) {
	switch v.Kind {
	case value.KPair:
		obj, err := p.heap.Get(v.H)
		if err != nil {
			return value.Value{}, value.Value{}, false
		}
		pair := obj.(*value.PairObj)
		return pair.Car, pair.Cdr, true
	case value.KList:
		obj, err := p.heap.Get(v.H)
		if err != nil {
			return value.Value{}, value.Value{}, false
		}
		items := obj.(*value.VectorObj).Items
		if int(v.Aux) >= len(items) {
			return value.Value{}, value.Value{}, false
		}
		car := items[v.Aux]
		if int(v.Aux)+1 >= len(items) {
			return car, value.Nil, true
		}
		return car, value.List(v.H, v.Aux+1), true
	default:
		return value.Value{}, value.Value{}, false
	}
}

func (p *Printer) writeVectorItems(sb *strings.Builder, items []value.Value, readable bool) {
	sb.WriteString("#(")
	for i, it := range items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		p.write(sb, it, readable)
	}
	sb.WriteByte(')')
}

func (p *Printer) writeMap(sb *strings.Builder, v value.Value, readable bool) {
	sb.WriteString("{")
	first := true
	emit := func(k, val value.Value) {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		p.write(sb, k, readable)
		sb.WriteByte(' ')
		p.write(sb, val, readable)
	}
	if v.Kind == value.KPersistentMap {
		obj, _ := p.heap.Get(v.H)
		obj.(*persistent.Map).Range(func(k, val value.Value) bool {
			emit(k, val)
			return true
		})
	} else {
		obj, _ := p.heap.Get(v.H)
		for _, e := range obj.(*value.MapObj).Entries {
			emit(e.Key, e.Val)
		}
	}
	sb.WriteByte('}')
}
