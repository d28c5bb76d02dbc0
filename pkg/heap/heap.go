package heap

import "github.com/kristofer/xu/pkg/value"

type slot struct {
	obj   ManagedObject
	alive bool
}

// Heap is the arena backing every handle-tagged Value. It never moves an
// object once allocated, so an ObjectId stays valid for the object's
// entire lifetime -- collection only flips slots dead and recycles their
// index, it never renumbers a live object.
type Heap struct {
	objects     []slot
	freeList    []int
	lastGCLen   int
	growFactor  float64
	internTable map[string]value.ObjectId
}

// GrowFactor default: the heap grows until it has doubled since the last
// collection before another one is triggered.
const defaultGrowFactor = 2.0

func New() *Heap {
	return &Heap{
		growFactor:  defaultGrowFactor,
		internTable: make(map[string]value.ObjectId),
	}
}

// Alloc stores obj in the arena and returns its handle.
func (h *Heap) Alloc(obj ManagedObject) value.ObjectId {
	if n := len(h.freeList); n > 0 {
		idx := h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		h.objects[idx] = slot{obj: obj, alive: true}
		return value.ObjectId(idx)
	}
	h.objects = append(h.objects, slot{obj: obj, alive: true})
	return value.ObjectId(len(h.objects) - 1)
}

// Get dereferences a handle. Dereferencing a freed or out-of-range id is a
// programmer bug in the runtime (the VM/executor must never retain a
// handle across a GC that didn't mark it), so this panics rather than
// returning an error value.
func (h *Heap) Get(id value.ObjectId) ManagedObject {
	i := int(id)
	if i < 0 || i >= len(h.objects) || !h.objects[i].alive {
		panic("heap: dereference of freed or invalid handle")
	}
	return h.objects[i].obj
}

// IsAlive reports whether id currently names a live object, without
// panicking -- used by cache-pruning code that may hold stale ids.
func (h *Heap) IsAlive(id value.ObjectId) bool {
	i := int(id)
	return i >= 0 && i < len(h.objects) && h.objects[i].alive
}

// Len reports the number of arena slots, live ones and those on the free
// list alike.
func (h *Heap) Len() int { return len(h.objects) }

// LiveCount reports the number of live objects in the arena.
func (h *Heap) LiveCount() int { return len(h.objects) - len(h.freeList) }

// FreeCount reports the number of recycled slots awaiting reuse.
func (h *Heap) FreeCount() int { return len(h.freeList) }

// ShouldGC reports whether the arena has grown enough since the last
// collection to warrant another pass.
func (h *Heap) ShouldGC() bool {
	if h.lastGCLen == 0 {
		return len(h.objects) > 256
	}
	return float64(len(h.objects)) >= float64(h.lastGCLen)*h.growFactor
}

// Intern returns a handle to a shared Str object for s, allocating one the
// first time s is seen. Strings of every length are interned.
func (h *Heap) Intern(s string) value.ObjectId {
	if id, ok := h.internTable[s]; ok && h.IsAlive(id) {
		return id
	}
	id := h.Alloc(Str{S: s})
	h.internTable[s] = id
	return id
}

// PruneIntern drops entries from the intern table whose backing object
// was collected, called once per GC cycle after sweep.
func (h *Heap) PruneIntern() {
	for s, id := range h.internTable {
		if !h.IsAlive(id) {
			delete(h.internTable, s)
		}
	}
}
