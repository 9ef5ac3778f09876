package interner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funvibe/funxylisp/internal/interner"
)

func TestInternIsIdempotent(t *testing.T) {
	in := interner.New()

	a := in.Intern("foo")
	b := in.Intern("foo")

	assert.Equal(t, a, b)
}

func TestInternMintsDistinctIDsForDistinctStrings(t *testing.T) {
	in := interner.New()

	a := in.Intern("foo")
	b := in.Intern("bar")

	assert.NotEqual(t, a, b)
}

func TestResolveRoundTripsEveryInternedString(t *testing.T) {
	in := interner.New()
	names := []string{"alpha", "beta", "gamma", "alpha"}

	ids := make([]interner.ID, len(names))
	for i, n := range names {
		ids[i] = in.Intern(n)
	}

	for i, n := range names {
		got, ok := in.Resolve(ids[i])
		assert.True(t, ok)
		assert.Equal(t, n, got)
	}
	assert.Equal(t, ids[0], ids[3], "repeat interning of the same string returns the same id")
}

func TestResolveUnknownIDIsNotFound(t *testing.T) {
	in := interner.New()
	_, ok := in.Resolve(interner.ID(999))
	assert.False(t, ok)
}

func TestLookupIfPresentDoesNotMint(t *testing.T) {
	in := interner.New()
	_, ok := in.LookupIfPresent("never-interned")
	assert.False(t, ok)
	assert.Equal(t, 0, in.Len())

	id := in.Intern("now-interned")
	found, ok := in.LookupIfPresent("now-interned")
	assert.True(t, ok)
	assert.Equal(t, id, found)
}

func TestLenTracksDistinctStringCount(t *testing.T) {
	in := interner.New()
	in.Intern("a")
	in.Intern("b")
	in.Intern("a")
	assert.Equal(t, 2, in.Len())
}
