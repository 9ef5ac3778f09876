package persistent

import (
	"hash/fnv"

	"github.com/funvibe/funxylisp/internal/heap"
	"github.com/funvibe/funxylisp/internal/value"
)

const (
	hamtBits = 5
	hamtSize = 1 << hamtBits
	hamtMask = hamtSize - 1
)

// Map is an immutable hash-array-mapped-trie (HAMT), ported from the
// teacher's persistent_map.go with evaluator.Object swapped for
// value.Value throughout.
type Map struct {
	root  *hamtNode
	count int
}

type hamtNode struct {
	bitmap   uint32
	entries  []hamtEntry
	children []*hamtNode
}

type hamtEntry struct {
	hash  uint32
	key   value.Value
	val   value.Value
}

func EmptyMap() *Map { return &Map{} }

func (m *Map) Len() int { return m.count }

func (m *Map) Get(h *heap.Heap, key value.Value) (value.Value, bool) {
	if m.root == nil {
		return value.Value{}, false
	}
	return m.root.get(h, hashValue(h, key), key, 0)
}

func (m *Map) Put(h *heap.Heap, key, val value.Value) *Map {
	hv := hashValue(h, key)
	var newRoot *hamtNode
	var added bool
	if m.root == nil {
		newRoot, added = (&hamtNode{}).put(h, hv, key, val, 0)
	} else {
		newRoot, added = m.root.put(h, hv, key, val, 0)
	}
	count := m.count
	if added {
		count++
	}
	return &Map{root: newRoot, count: count}
}

func (m *Map) Remove(h *heap.Heap, key value.Value) *Map {
	if m.root == nil {
		return m
	}
	newRoot, removed := m.root.remove(h, hashValue(h, key), key, 0)
	if !removed {
		return m
	}
	return &Map{root: newRoot, count: m.count - 1}
}

// Range calls fn for every key/value pair, stopping early if fn returns
// false. Iteration order follows the trie's internal layout, not
// insertion order (unlike the mutable MapObj).
func (m *Map) Range(fn func(key, val value.Value) bool) {
	if m.root == nil {
		return
	}
	m.root.rangeEntries(fn)
}

func (n *hamtNode) get(h *heap.Heap, hv uint32, key value.Value, shift uint) (value.Value, bool) {
	idx := (hv >> shift) & hamtMask
	bit := uint32(1) << idx
	if n.bitmap&bit == 0 {
		return value.Value{}, false
	}
	pos := popcount(n.bitmap & (bit - 1))
	if pos < len(n.entries) {
		e := n.entries[pos]
		if e.hash == hv && e.key.Equals(key, h) {
			return e.val, true
		}
	}
	childIdx := pos - len(n.entries)
	if childIdx >= 0 && childIdx < len(n.children) && n.children[childIdx] != nil {
		return n.children[childIdx].get(h, hv, key, shift+hamtBits)
	}
	return value.Value{}, false
}

func (n *hamtNode) put(h *heap.Heap, hv uint32, key, val value.Value, shift uint) (*hamtNode, bool) {
	idx := (hv >> shift) & hamtMask
	bit := uint32(1) << idx

	newNode := &hamtNode{
		bitmap:   n.bitmap,
		entries:  append([]hamtEntry(nil), n.entries...),
		children: append([]*hamtNode(nil), n.children...),
	}

	if n.bitmap&bit == 0 {
		newNode.bitmap |= bit
		pos := popcount(newNode.bitmap & (bit - 1))
		entry := hamtEntry{hash: hv, key: key, val: val}
		newNode.entries = append(newNode.entries, hamtEntry{})
		copy(newNode.entries[pos+1:], newNode.entries[pos:])
		newNode.entries[pos] = entry
		return newNode, true
	}

	pos := popcount(n.bitmap & (bit - 1))
	if pos < len(newNode.entries) {
		e := newNode.entries[pos]
		if e.hash == hv && e.key.Equals(key, h) {
			newNode.entries[pos] = hamtEntry{hash: hv, key: key, val: val}
			return newNode, false
		}
		if shift+hamtBits >= 32 {
			for i, e := range newNode.entries {
				if e.hash == hv && e.key.Equals(key, h) {
					newNode.entries[i] = hamtEntry{hash: hv, key: key, val: val}
					return newNode, false
				}
			}
			newNode.entries = append(newNode.entries, hamtEntry{hash: hv, key: key, val: val})
			return newNode, true
		}
		child := &hamtNode{}
		child, _ = child.put(h, e.hash, e.key, e.val, shift+hamtBits)
		child, added := child.put(h, hv, key, val, shift+hamtBits)
		newNode.entries = append(newNode.entries[:pos], newNode.entries[pos+1:]...)
		newNode.children = append(newNode.children, child)
		return newNode, added
	}

	childIdx := pos - len(newNode.entries)
	if childIdx >= 0 && childIdx < len(newNode.children) && newNode.children[childIdx] != nil {
		newChild, added := newNode.children[childIdx].put(h, hv, key, val, shift+hamtBits)
		newNode.children[childIdx] = newChild
		return newNode, added
	}
	return newNode, false
}

func (n *hamtNode) remove(h *heap.Heap, hv uint32, key value.Value, shift uint) (*hamtNode, bool) {
	idx := (hv >> shift) & hamtMask
	bit := uint32(1) << idx
	if n.bitmap&bit == 0 {
		return n, false
	}
	pos := popcount(n.bitmap & (bit - 1))
	newNode := &hamtNode{
		bitmap:   n.bitmap,
		entries:  append([]hamtEntry(nil), n.entries...),
		children: append([]*hamtNode(nil), n.children...),
	}
	if pos < len(newNode.entries) {
		e := newNode.entries[pos]
		if e.hash == hv && e.key.Equals(key, h) {
			newNode.entries = append(newNode.entries[:pos], newNode.entries[pos+1:]...)
			if len(newNode.entries) == 0 && len(newNode.children) == 0 {
				newNode.bitmap &^= bit
			}
			return newNode, true
		}
	}
	childIdx := pos - len(newNode.entries)
	if childIdx >= 0 && childIdx < len(newNode.children) && newNode.children[childIdx] != nil {
		newChild, removed := newNode.children[childIdx].remove(h, hv, key, shift+hamtBits)
		if removed {
			newNode.children[childIdx] = newChild
			return newNode, true
		}
	}
	return n, false
}

// rangeEntries walks this node's own entries then its children, reporting
// whether the caller should keep going (false once fn has asked to stop).
func (n *hamtNode) rangeEntries(fn func(key, val value.Value) bool) bool {
	for _, e := range n.entries {
		if !fn(e.key, e.val) {
			return false
		}
	}
	for _, c := range n.children {
		if c != nil {
			if !c.rangeEntries(fn) {
				return false
			}
		}
	}
	return true
}

// hashValue hashes the kinds a Map key realistically is: scalars,
// interned symbols, and strings. Collections/callables fall back to their
// heap handle, which is stable for the object's lifetime but not
// structural — adequate for a key type the analyzer and builtins only ever
// use with scalar/symbol keys (spec's Map/PersistentMap are general, but
// this core never builds a key on a mutable collection).
func hashValue(h *heap.Heap, v value.Value) uint32 {
	f := fnv.New32a()
	switch {
	case v.Kind == value.KString:
		if obj, err := h.Get(v.H); err == nil {
			f.Write(obj.(*value.StringObj).Data)
			return f.Sum32()
		}
	case v.Kind == value.KSymbol || v.Kind == value.KKeyword || v.Kind == value.KStringConst:
		f.Write([]byte{byte(v.Kind)})
		writeUint32(f, uint32(v.Sym))
		return f.Sum32()
	case v.IsInt():
		i, _ := v.GetInt(h)
		f.Write([]byte{byte(v.Kind)})
		writeUint32(f, uint32(i))
		writeUint32(f, uint32(i>>32))
		return f.Sum32()
	}
	f.Write([]byte{byte(v.Kind)})
	writeUint32(f, uint32(v.H))
	writeUint32(f, uint32(v.I))
	return f.Sum32()
}

func writeUint32(f interface{ Write([]byte) (int, error) }, x uint32) {
	f.Write([]byte{byte(x), byte(x >> 8), byte(x >> 16), byte(x >> 24)})
}

func popcount(x uint32) int {
	x = x - ((x >> 1) & 0x55555555)
	x = (x & 0x33333333) + ((x >> 2) & 0x33333333)
	x = (x + (x >> 4)) & 0x0f0f0f0f
	x = x + (x >> 8)
	x = x + (x >> 16)
	return int(x & 0x3f)
}
