// Package persistent implements the immutable, structurally-shared
// collections backing the PersistentVec and PersistentMap Value kinds
// (spec §3). Ported from the teacher's Clojure-style 32-way trie
// (internal/evaluator/persistent_vector.go, persistent_map.go in funxy) and
// retargeted from funxy's evaluator.Object interface to this repo's closed
// value.Value struct; the gob (de)serialization half of the teacher's
// version is dropped because persistent collections are not among the
// serializable chunk-constant kinds (spec §6), so nothing ever needs to
// round-trip one through a Chunk.
package persistent

import "github.com/funvibe/funxylisp/internal/value"

const (
	vecBits  = 5
	vecWidth = 1 << vecBits // 32
	vecMask  = vecWidth - 1
)

// Vector is an immutable vector with amortized O(1) append and O(log32 n)
// random access/update.
type Vector struct {
	count int
	shift uint
	root  *vecNode
	tail  []value.Value
}

type vecNode struct {
	array []interface{} // either []value.Value (leaf) or []*vecNode (branch)
}

// EmptyVector returns the zero-length persistent vector.
func EmptyVector() *Vector {
	return &Vector{shift: vecBits, tail: make([]value.Value, 0, vecWidth)}
}

// VectorFrom builds a persistent vector from a slice, in order.
func VectorFrom(elements []value.Value) *Vector {
	v := EmptyVector()
	for _, el := range elements {
		v = v.Append(el)
	}
	return v
}

func (v *Vector) Len() int { return v.count }

func (v *Vector) Get(i int) (value.Value, bool) {
	if i < 0 || i >= v.count {
		return value.Value{}, false
	}
	if i >= v.tailOffset() {
		return v.tail[i-v.tailOffset()], true
	}
	node := v.root
	for level := v.shift; level > 0; level -= vecBits {
		idx := (i >> level) & vecMask
		node = node.array[idx].(*vecNode)
	}
	return node.array[i&vecMask].(value.Value), true
}

func (v *Vector) Append(val value.Value) *Vector {
	if len(v.tail) < vecWidth {
		newTail := make([]value.Value, len(v.tail)+1, vecWidth)
		copy(newTail, v.tail)
		newTail[len(v.tail)] = val
		return &Vector{count: v.count + 1, shift: v.shift, root: v.root, tail: newTail}
	}

	tailNode := &vecNode{array: make([]interface{}, len(v.tail))}
	for i, el := range v.tail {
		tailNode.array[i] = el
	}

	var newRoot *vecNode
	newShift := v.shift
	if v.count>>vecBits > 1<<v.shift {
		newRoot = &vecNode{array: make([]interface{}, vecWidth)}
		newRoot.array[0] = v.root
		newRoot.array[1] = v.newPath(v.shift, tailNode)
		newShift += vecBits
	} else {
		newRoot = v.pushTail(v.shift, v.root, tailNode)
	}

	return &Vector{count: v.count + 1, shift: newShift, root: newRoot, tail: []value.Value{val}}
}

func (v *Vector) Update(i int, val value.Value) *Vector {
	if i < 0 || i >= v.count {
		return v
	}
	if i >= v.tailOffset() {
		newTail := make([]value.Value, len(v.tail))
		copy(newTail, v.tail)
		newTail[i-v.tailOffset()] = val
		return &Vector{count: v.count, shift: v.shift, root: v.root, tail: newTail}
	}
	return &Vector{count: v.count, shift: v.shift, root: v.doAssoc(v.shift, v.root, i, val), tail: v.tail}
}

func (v *Vector) ToSlice() []value.Value {
	out := make([]value.Value, v.count)
	for i := 0; i < v.count; i++ {
		out[i], _ = v.Get(i)
	}
	return out
}

func (v *Vector) tailOffset() int {
	if v.count < vecWidth {
		return 0
	}
	return ((v.count - 1) >> vecBits) << vecBits
}

func (v *Vector) pushTail(level uint, parent, tailNode *vecNode) *vecNode {
	subIdx := ((v.count - 1) >> level) & vecMask

	var newChild interface{}
	switch {
	case level == vecBits:
		newChild = tailNode
	case parent != nil && subIdx < len(parent.array) && parent.array[subIdx] != nil:
		newChild = v.pushTail(level-vecBits, parent.array[subIdx].(*vecNode), tailNode)
	default:
		newChild = v.newPath(level-vecBits, tailNode)
	}

	var ret *vecNode
	if parent == nil {
		ret = &vecNode{array: make([]interface{}, vecWidth)}
	} else {
		ret = &vecNode{array: make([]interface{}, len(parent.array))}
		copy(ret.array, parent.array)
	}
	if subIdx >= len(ret.array) {
		grown := make([]interface{}, subIdx+1)
		copy(grown, ret.array)
		ret.array = grown
	}
	ret.array[subIdx] = newChild
	return ret
}

func (v *Vector) newPath(level uint, node *vecNode) *vecNode {
	if level == 0 {
		return node
	}
	ret := &vecNode{array: make([]interface{}, vecWidth)}
	ret.array[0] = v.newPath(level-vecBits, node)
	return ret
}

func (v *Vector) doAssoc(level uint, node *vecNode, i int, val value.Value) *vecNode {
	ret := &vecNode{array: make([]interface{}, len(node.array))}
	copy(ret.array, node.array)
	if level == 0 {
		ret.array[i&vecMask] = val
	} else {
		subIdx := (i >> level) & vecMask
		ret.array[subIdx] = v.doAssoc(level-vecBits, node.array[subIdx].(*vecNode), i, val)
	}
	return ret
}
