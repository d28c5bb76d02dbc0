package scope

import (
	"testing"

	"github.com/kristofer/xu/pkg/value"
)

func TestDefineGetShadowing(t *testing.T) {
	e := New()
	e.Define("x", value.NewInt(1), true)
	e.Push()
	e.Define("x", value.NewInt(2), true)

	v, ok := e.Get("x")
	if !ok || v.AsInt() != 2 {
		t.Fatalf("inner x = %v, want 2", v.AsInt())
	}
	e.Pop()
	v, ok = e.Get("x")
	if !ok || v.AsInt() != 1 {
		t.Fatalf("outer x = %v, want 1", v.AsInt())
	}
}

func TestSetImmutableRefused(t *testing.T) {
	e := New()
	e.Define("x", value.NewInt(1), false)
	if res := e.Set("x", value.NewInt(2)); res != Immutable {
		t.Fatalf("Set on immutable binding = %v, want Immutable", res)
	}
}

func TestSetNotFound(t *testing.T) {
	e := New()
	if res := e.Set("nope", value.NewInt(1)); res != NotFound {
		t.Fatalf("Set on undefined name = %v, want NotFound", res)
	}
}

func TestPopToUnwindsFrames(t *testing.T) {
	e := New()
	depth := e.Depth()
	e.Push()
	e.Push()
	e.PopTo(depth)
	if e.Depth() != depth {
		t.Fatalf("Depth() = %d, want %d", e.Depth(), depth)
	}
}

func TestLocalsByDepthIndex(t *testing.T) {
	l := NewLocals()
	l.Push(1)
	l.SetByIndex(0, value.NewInt(10))
	l.Push(1)
	l.SetByIndex(0, value.NewInt(20))

	if got := l.GetByDepthIndex(1, 0); got.AsInt() != 10 {
		t.Fatalf("captured outer local = %d, want 10", got.AsInt())
	}
	if got := l.GetByDepthIndex(0, 0); got.AsInt() != 20 {
		t.Fatalf("innermost local = %d, want 20", got.AsInt())
	}
}

func TestSuggestName(t *testing.T) {
	got := SuggestName("lenght", []string{"length", "width", "height"})
	if got != "length" {
		t.Fatalf("SuggestName = %q, want length", got)
	}
	if got := SuggestName("xyz", []string{"length"}); got != "" {
		t.Fatalf("SuggestName for unrelated name = %q, want empty", got)
	}
}
