// Package globals implements the dense, slot-indexed global environment
// (spec §4.3). Compiled code references globals by pre-resolved slot, so a
// global access at runtime is a bare array index rather than a name lookup.
package globals

import "github.com/funvibe/funxylisp/internal/value"

// Globals maps interned symbol ids to slots, and slots to their current
// value.
type Globals struct {
	bySymbol map[uint32]int32
	values   []value.Value
}

// New creates an empty globals table.
func New() *Globals {
	return &Globals{bySymbol: make(map[uint32]int32, 256)}
}

// Reserve returns sym's slot, minting a fresh Undefined slot on first
// request. Idempotent: calling it twice for the same symbol returns the
// same slot (spec §4.3, tested property 3).
func (g *Globals) Reserve(sym uint32) int32 {
	if slot, ok := g.bySymbol[sym]; ok {
		return slot
	}
	slot := int32(len(g.values))
	g.values = append(g.values, value.Undefined)
	g.bySymbol[sym] = slot
	return slot
}

// Def always writes, reserving a slot first if sym has none yet.
func (g *Globals) Def(sym uint32, v value.Value) int32 {
	slot := g.Reserve(sym)
	g.values[slot] = v
	return slot
}

// Defvar writes only if the slot currently holds Undefined (spec §4.3).
func (g *Globals) Defvar(sym uint32, v value.Value) int32 {
	slot := g.Reserve(sym)
	if g.values[slot].Kind == value.KUndefined {
		g.values[slot] = v
	}
	return slot
}

// Set writes by slot directly, with no symbol lookup.
func (g *Globals) Set(slot int32, v value.Value) {
	g.values[slot] = v
}

// Get reads by slot. An out-of-range slot is a programming error (it can
// only happen if a chunk was compiled against a different Globals table),
// so it returns Undefined rather than panicking the dispatch loop.
func (g *Globals) Get(slot int32) value.Value {
	if slot < 0 || int(slot) >= len(g.values) {
		return value.Undefined
	}
	return g.values[slot]
}

// SlotOf returns sym's slot if it has been reserved or defined.
func (g *Globals) SlotOf(sym uint32) (int32, bool) {
	slot, ok := g.bySymbol[sym]
	return slot, ok
}

// Len reports how many slots have been allocated.
func (g *Globals) Len() int { return len(g.values) }
