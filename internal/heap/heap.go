// Package heap implements the managed arena that backs every boxed Value.
//
// The heap hands out opaque Handles rather than pointers so that collection
// (or simply compaction) never invalidates a reference held on the register
// stack, in a call frame, or in the globals table. Handles are stable for
// the life of the object behind them; Replace swaps an object's contents in
// place without changing its Handle.
package heap

import "fmt"

// Handle is an opaque, stable identity for an object living on the heap.
// It is never zero for a live object; the zero value is reserved to mean
// "no handle" in contexts that need an absent-handle sentinel.
type Handle uint32

// Object is any value the heap can store. The concrete variants (pairs,
// vectors, strings, lambdas, ...) live in package value, which imports this
// package; heap itself stays agnostic to their shape so the two packages
// don't form an import cycle.
type Object interface{}

// entry tracks one heap slot. tombstoned slots are free for reuse by Alloc.
type entry struct {
	obj       Object
	tombstone bool
}

// Heap is an append-mostly arena of boxed objects. The zero value is not
// ready for use; call New.
type Heap struct {
	slots   []entry
	freeIDs []uint32
}

// New creates an empty heap with room for a modest number of objects before
// its first grow.
func New() *Heap {
	return &Heap{slots: make([]entry, 0, 256)}
}

// Alloc stores obj and returns a fresh, stable Handle for it.
func (h *Heap) Alloc(obj Object) Handle {
	if n := len(h.freeIDs); n > 0 {
		id := h.freeIDs[n-1]
		h.freeIDs = h.freeIDs[:n-1]
		h.slots[id] = entry{obj: obj}
		return Handle(id + 1)
	}
	h.slots = append(h.slots, entry{obj: obj})
	return Handle(len(h.slots))
}

func (h *Heap) index(handle Handle) (uint32, error) {
	if handle == 0 {
		return 0, fmt.Errorf("heap: nil handle")
	}
	idx := uint32(handle) - 1
	if int(idx) >= len(h.slots) || h.slots[idx].tombstone {
		return 0, fmt.Errorf("heap: handle %d does not refer to a live object", handle)
	}
	return idx, nil
}

// Get returns the object behind handle. A missing or freed handle is a
// fatal programming error per the core's error taxonomy (spec §7), so
// callers that can't have produced a dangling handle should use MustGet.
func (h *Heap) Get(handle Handle) (Object, error) {
	idx, err := h.index(handle)
	if err != nil {
		return nil, err
	}
	return h.slots[idx].obj, nil
}

// MustGet panics on a dangling handle; use only where the handle's
// validity is an invariant of the caller (never on data thawed from
// outside the VM).
func (h *Heap) MustGet(handle Handle) Object {
	obj, err := h.Get(handle)
	if err != nil {
		panic(err)
	}
	return obj
}

// Replace swaps the object behind handle in place. The Handle keeps
// referring to the same logical slot afterward.
func (h *Heap) Replace(handle Handle, obj Object) error {
	idx, err := h.index(handle)
	if err != nil {
		return err
	}
	h.slots[idx].obj = obj
	return nil
}

// Free releases the slot behind handle for reuse by a future Alloc. The
// core's collection policy is left to the implementer (spec §4.2); this is
// the primitive a mark-sweep or refcounting pass would call once an object
// is known unreachable. Never called from the VM's hot path directly.
func (h *Heap) Free(handle Handle) error {
	idx, err := h.index(handle)
	if err != nil {
		return err
	}
	h.slots[idx] = entry{tombstone: true}
	h.freeIDs = append(h.freeIDs, uint32(idx))
	return nil
}

// Len reports the number of slots ever allocated, live or freed; it is a
// rough proxy for heap footprint used by diagnostic builtins.
func (h *Heap) Len() int {
	return len(h.slots)
}

// Live reports the number of currently-occupied slots.
func (h *Heap) Live() int {
	return len(h.slots) - len(h.freeIDs)
}
