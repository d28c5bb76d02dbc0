package exec

import (
	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// evalMatch tries each arm in order. Pattern bindings live in a frame
// that only the matching arm's body (and guard) can see; a failed arm's
// bindings are discarded with its frame.
func (in *Interp) evalMatch(e *ast.MatchExpr) (value.Value, error) {
	scrutinee, err := in.eval(e.X)
	if err != nil {
		return value.Value{}, err
	}
	// Guards and arm bodies can allocate; the scrutinee lives only in
	// this Go local until an arm binds pieces of it.
	in.root(scrutinee)
	defer in.unroot(1)

	for _, arm := range e.Arms {
		in.host.Env().Push()
		matched := in.matchPattern(arm.Pattern, scrutinee)
		if matched && arm.Guard != nil {
			g, gerr := in.eval(arm.Guard)
			if gerr != nil {
				in.host.Env().Pop()
				return value.Value{}, gerr
			}
			matched = g.IsTruthy()
		}
		if !matched {
			in.host.Env().Pop()
			continue
		}
		v, berr := in.eval(arm.Body)
		in.host.Env().Pop()
		return v, berr
	}

	return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "no match arm matched the value")
}

// matchPattern reports whether v structurally matches pat, defining any
// bind-pattern names in the current (arm-scoped) frame as it goes.
// Bindings made before a later sub-pattern fails are harmless: the whole
// frame is popped when the arm is abandoned.
func (in *Interp) matchPattern(pat ast.Pattern, v value.Value) bool {
	h := in.host.Heap()
	switch p := pat.(type) {
	case *ast.WildcardPattern:
		return true

	case *ast.BindPattern:
		in.host.Env().Define(p.Name, v, true)
		return true

	case *ast.LiteralPattern:
		lit, err := in.eval(p.Value)
		if err != nil {
			return false
		}
		return vm.DeepEqual(h, lit, v)

	case *ast.TuplePattern:
		var elems []value.Value
		switch v.Tag() {
		case value.TagTuple:
			elems = h.Get(v.AsHandle()).(*heap.Tuple).Elems
		case value.TagList:
			elems = h.Get(v.AsHandle()).(*heap.List).Elems
		default:
			return false
		}
		if len(elems) != len(p.Elems) {
			return false
		}
		for i, sub := range p.Elems {
			if !in.matchPattern(sub, elems[i]) {
				return false
			}
		}
		return true

	case *ast.EnumVariantPattern:
		// Option::some / Option::none match the optimized
		// representations: a unary OptionSome object and the unit
		// singleton.
		if p.TypeName == "Option" {
			switch p.Variant {
			case "some":
				if v.Tag() != value.TagOptionSome {
					return false
				}
				if len(p.Args) == 0 {
					return true
				}
				if len(p.Args) != 1 {
					return false
				}
				inner := h.Get(v.AsHandle()).(*heap.OptionSome).Inner
				return in.matchPattern(p.Args[0], inner)
			case "none":
				return v.Tag() == value.TagUnit
			}
		}
		if v.Tag() != value.TagEnum {
			return false
		}
		ev := h.Get(v.AsHandle()).(*heap.Enum)
		if ev.TypeName != p.TypeName || ev.Variant != p.Variant {
			return false
		}
		if len(p.Args) != len(ev.Args) {
			return false
		}
		for i, sub := range p.Args {
			if !in.matchPattern(sub, ev.Args[i]) {
				return false
			}
		}
		return true

	default:
		return false
	}
}
