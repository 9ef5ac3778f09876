// Package interner assigns a stable, dense small integer to every distinct
// string the VM has seen, and resolves ids back to their strings. Storage
// is append-only for the life of a VM: once minted, an id's string never
// changes, which is what lets chunks and Value.Symbol carry bare ids instead
// of strings.
package interner

// ID is a stable, dense identifier for an interned string.
type ID uint32

// Interner is not safe for concurrent use; the VM that owns one runs
// single-threaded (spec §5).
type Interner struct {
	strings []string
	ids     map[string]ID
}

// New creates an empty interner.
func New() *Interner {
	return NewWithCapacity(256)
}

// NewWithCapacity pre-sizes the backing storage; callers that know roughly
// how many distinct symbols a program uses can avoid repeated growth.
func NewWithCapacity(capacity int) *Interner {
	return &Interner{
		strings: make([]string, 0, capacity),
		ids:     make(map[string]ID, capacity),
	}
}

// Intern returns s's id, minting a fresh one on first sight.
func (in *Interner) Intern(s string) ID {
	if id, ok := in.ids[s]; ok {
		return id
	}
	id := ID(len(in.strings))
	in.strings = append(in.strings, s)
	in.ids[s] = id
	return id
}

// Resolve returns the string behind id. The second result is false if id
// was never minted by this interner.
func (in *Interner) Resolve(id ID) (string, bool) {
	if int(id) < 0 || int(id) >= len(in.strings) {
		return "", false
	}
	return in.strings[id], true
}

// LookupIfPresent performs a non-inserting probe: it returns the id for s
// only if s has already been interned.
func (in *Interner) LookupIfPresent(s string) (ID, bool) {
	id, ok := in.ids[s]
	return id, ok
}

// Len reports how many distinct strings have been interned.
func (in *Interner) Len() int {
	return len(in.strings)
}
