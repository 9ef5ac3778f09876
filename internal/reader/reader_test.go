package reader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/interner"
	"github.com/funvibe/funxylisp/internal/printer"
	"github.com/funvibe/funxylisp/internal/reader"
	"github.com/funvibe/funxylisp/internal/value"
)

// readOne reads the single top-level form in src and renders it back with
// the printer, so each case asserts on the written form rather than poking
// at heap-internal shapes directly.
func readOne(t *testing.T, src string) string {
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

func TestReadAtoms(t *testing.T) {
	cases := []struct{ src, want string }{
		{"nil", "nil"},
		{"true", "true"},
		{"false", "false"},
		{"42", "42"},
		{"-7", "-7"},
		{"3.5", "3.5"},
		{"2.0", "2.0"},
		{"hello-world", "hello-world"},
		{":keyword", ":keyword"},
		{"9223372036854775807", "9223372036854775807"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, readOne(t, tc.src))
		})
	}
}

func TestReadLists(t *testing.T) {
	cases := []struct{ src, want string }{
		{"()", "nil"},
		{"(1 2 3)", "(1 2 3)"},
		{"(a (b c) d)", "(a (b c) d)"},
		{"(a . b)", "(a . b)"},
		{"(a b . c)", "(a b . c)"},
		{"[1 2]", "(1 2)"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, readOne(t, tc.src))
		})
	}
}

func TestReadShorthand(t *testing.T) {
	cases := []struct{ src, want string }{
		{"'x", "'x"},
		{"'(a b)", "'(a b)"},
		{"`(a ,b ,@c)", "`(a ,b ,@c)"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, readOne(t, tc.src))
		})
	}
}

func TestReadStrings(t *testing.T) {
	cases := []struct{ src, want string }{
		{`"hello"`, `"hello"`},
		{`"a\nb"`, `"a\nb"`},
		{`"with \"quotes\""`, `"with \"quotes\""`},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, readOne(t, tc.src))
		})
	}
}

func TestReadVectors(t *testing.T) {
	assert.Equal(t, "#(1 2 3)", readOne(t, "#(1 2 3)"))
	assert.Equal(t, "#()", readOne(t, "#()"))
}

func TestReadCharLiterals(t *testing.T) {
	cases := []struct{ src, want string }{
		{`#\a`, `#\a`},
		{`#\newline`, `#\newline`},
		{`#\space`, `#\space`},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, readOne(t, tc.src))
		})
	}
}

func TestReadAllMultipleForms(t *testing.T) {
	h := heap.New()
	in := interner.New()
	r := reader.New("1 2 (+ 1 2)", h, in)
	forms, err := r.ReadAll()
	assert.NoError(t, err)
	assert.Len(t, forms, 3)
	p := printer.New(h, in)
	assert.Equal(t, "1", p.Write(forms[0]))
	assert.Equal(t, "2", p.Write(forms[1]))
	assert.Equal(t, "(+ 1 2)", p.Write(forms[2]))
}

func TestReadErrors(t *testing.T) {
	h := heap.New()
	in := interner.New()
	cases := []string{"(1 2", `"unterminated`, ")"}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			r := reader.New(src, h, in)
			_, _, err := r.Read()
			assert.Error(t, err)
		})
	}
}

func TestFitIntBoxesOverflow(t *testing.T) {
	h := heap.New()
	in := interner.New()
	r := reader.New("4294967296", h, in) // beyond int32 range
	v, ok, err := r.Read()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, value.KInt64, v.Kind)
}
