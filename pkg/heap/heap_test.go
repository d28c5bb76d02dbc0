package heap

import (
	"testing"

	"github.com/kristofer/xu/pkg/value"
)

func TestAllocGetRoundTrip(t *testing.T) {
	h := New()
	id := h.Alloc(Str{S: "hello"})
	got := h.Get(id).(Str)
	if got.S != "hello" {
		t.Fatalf("got %q, want hello", got.S)
	}
}

func TestCollectFreesUnreachable(t *testing.T) {
	h := New()
	kept := h.Alloc(Str{S: "kept"})
	h.Alloc(Str{S: "garbage"})

	root := value.NewHandle(value.TagStr, kept)
	stats := h.Collect([]value.Value{root})

	if stats.Freed != 1 {
		t.Fatalf("expected 1 freed object, got %d", stats.Freed)
	}
	if !h.IsAlive(kept) {
		t.Fatal("rooted object was collected")
	}
}

func TestCollectTracesListChildren(t *testing.T) {
	h := New()
	inner := h.Alloc(Str{S: "inner"})
	innerVal := value.NewHandle(value.TagStr, inner)
	listID := h.Alloc(&List{Elems: []value.Value{innerVal}})
	h.Alloc(Str{S: "garbage"})

	root := value.NewHandle(value.TagList, listID)
	stats := h.Collect([]value.Value{root})

	if !h.IsAlive(inner) {
		t.Fatal("list element was collected though reachable via the list")
	}
	if stats.Freed != 1 {
		t.Fatalf("expected 1 freed object, got %d", stats.Freed)
	}
}

func TestDictVersionOnlyBumpsOnChange(t *testing.T) {
	d := NewDict()
	k := DictKey{S: "x"}
	d.Insert(k, value.NewInt(1))
	v1 := d.Ver
	d.Insert(k, value.NewInt(1)) // same value: no bump
	if d.Ver != v1 {
		t.Fatalf("Ver bumped on no-op insert: %d -> %d", v1, d.Ver)
	}
	d.Insert(k, value.NewInt(2)) // different value: bump
	if d.Ver == v1 {
		t.Fatal("Ver did not bump on a real change")
	}
}

func TestInternReusesHandle(t *testing.T) {
	h := New()
	a := h.Intern("ok")
	b := h.Intern("ok")
	if a != b {
		t.Fatalf("Intern returned different handles for the same string: %v vs %v", a, b)
	}
}

func TestPruneInternDropsCollected(t *testing.T) {
	h := New()
	id := h.Intern("gone")
	h.Collect(nil) // no roots: everything, including the interned string, is garbage
	h.PruneIntern()
	if _, ok := h.internTable["gone"]; ok {
		t.Fatal("PruneIntern left a dead id in the table")
	}
	_ = id
}
