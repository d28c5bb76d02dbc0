package heap

import "github.com/kristofer/xu/pkg/value"

// Stats summarizes one collection cycle, useful for the gc builtin
// (which returns Freed) and for tests asserting invariant (d) (unreachable objects are
// reclaimed, reachable ones survive).
type Stats struct {
	Before, After, Freed int
}

// Collect performs one mark-sweep cycle rooted at roots. Callers own
// clearing any handle-holding caches (inline caches, method caches,
// pooled objects) and pruning any intern tables once Collect returns --
// Heap has no visibility into caches that live in the VM or runtime
// layer, so that orchestration happens one level up
// (see runtime.Runtime.collect).
func (h *Heap) Collect(roots []value.Value) Stats {
	before := len(h.objects)
	reachable := make([]bool, len(h.objects))

	var worklist []value.ObjectId
	mark := func(v value.Value) {
		if !v.Tag().IsHandle() {
			return
		}
		id := int(v.AsHandle())
		if id < 0 || id >= len(h.objects) || reachable[id] {
			return
		}
		reachable[id] = true
		worklist = append(worklist, value.ObjectId(id))
	}

	for _, r := range roots {
		mark(r)
	}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !h.objects[id].alive {
			continue
		}
		for _, child := range h.children(h.objects[id].obj) {
			mark(child)
		}
	}

	freed := 0
	for i := range h.objects {
		if h.objects[i].alive && !reachable[i] {
			h.objects[i] = slot{}
			h.freeList = append(h.freeList, i)
			freed++
		}
	}
	h.lastGCLen = len(h.objects) - freed

	return Stats{Before: before, After: before - freed, Freed: freed}
}

// children returns every Value an object directly references, so the
// marker can walk the object graph without each ManagedObject needing to
// implement its own traversal method.
func (h *Heap) children(obj ManagedObject) []value.Value {
	switch o := obj.(type) {
	case *List:
		return o.Elems
	case *Tuple:
		return o.Elems
	case *Dict:
		out := make([]value.Value, 0, len(o.order))
		for _, k := range o.order {
			out = append(out, o.m[k])
		}
		return out
	case *Struct:
		out := make([]value.Value, 0, len(o.Order))
		for _, name := range o.Order {
			out = append(out, o.Fields[name])
		}
		return out
	case *Enum:
		return o.Args
	case *OptionSome:
		return []value.Value{o.Inner}
	case *Function:
		out := append([]value.Value(nil), o.Captured...)
		if o.Env != nil {
			out = append(out, o.Env.Roots()...)
		}
		return out
	default:
		return nil
	}
}
