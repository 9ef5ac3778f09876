package printer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
	"github.com/funvibe/funxylisp/internal/printer"
	"github.com/funvibe/funxylisp/internal/reader"
	"github.com/funvibe/funxylisp/internal/value"
)

// roundTrip reads src, writes it back, and returns the written text — the
// property TestRoundTrip checks is that Write is genuinely Read's inverse
// for every syntax form the reader accepts.
func roundTrip(t *testing.T, src string) string {
	t.Helper()
	h := heap.New()
	in := interner.New()
	r := reader.New(src, h, in)
	v, ok, err := r.Read()
	if !ok || err != nil {
		t.Fatalf("Read(%q) failed: ok=%v err=%v", src, ok, err)
	}
	return printer.New(h, in).Write(v)
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"42", "-7", "3.5", "2.0",
		"nil", "true", "false",
		"hello-world", ":keyword",
		"(1 2 3)", "(a (b c) d)", "(a . b)",
		"'x", "'(a b)", "`(a ,b ,@c)",
		`"hello"`, `"a\nb"`,
		"#(1 2 3)",
		`#\a`, `#\newline`,
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			assert.Equal(t, src, roundTrip(t, src))
		})
	}
}

func TestDisplayUnquotesStringsAndChars(t *testing.T) {
	h := heap.New()
	in := interner.New()
	p := printer.New(h, in)

	s := value.String(h, "hi\nthere")
	assert.Equal(t, "hi\nthere", p.Display(s))
	assert.Equal(t, `"hi\nthere"`, p.Write(s))

	ch := value.CodePoint('x')
	assert.Equal(t, "x", p.Display(ch))
	assert.Equal(t, `#\x`, p.Write(ch))
}

func TestWriteFloatAlwaysHasDecimalPoint(t *testing.T) {
	h := heap.New()
	in := interner.New()
	p := printer.New(h, in)
	assert.Equal(t, "2.0", p.Write(value.Float64(h, 2)))
	assert.Equal(t, "2.5", p.Write(value.Float64(h, 2.5)))
}

func TestWriteVector(t *testing.T) {
	h := heap.New()
	in := interner.New()
	p := printer.New(h, in)
	vec := value.Vector(h.Alloc(&value.VectorObj{Items: []value.Value{value.Int32(1), value.Int32(2)}}))
	assert.Equal(t, "#(1 2)", p.Write(vec))
}

func TestWriteUndefined(t *testing.T) {
	h := heap.New()
	in := interner.New()
	p := printer.New(h, in)
	assert.Equal(t, "#<undefined>", p.Write(value.Undefined))
}
