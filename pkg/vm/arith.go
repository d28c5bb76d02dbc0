package vm

import (
	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
)

// Arith applies an arithmetic op to two operands, promoting int+int to
// int arithmetic and anything involving a float (or a string for Add,
// which concatenates) to its own rule. Division and modulo by a zero int
// raise DivisionByZero rather than producing an infinity, since xu ints
// have no IEEE-754 escape hatch. Package-level so the tree-walking
// executor dispatches through the exact same table as the VM -- the two
// paths must be indistinguishable by arithmetic result.
func Arith(h *heap.Heap, op bytecode.Op, a, b value.Value) (value.Value, error) {
	if op == bytecode.OpAdd && a.Tag() == value.TagStr && b.Tag() == value.TagStr {
		as := h.Get(a.AsHandle()).(heap.Str).S
		bs := h.Get(b.AsHandle()).(heap.Str).S
		id := h.Alloc(heap.Str{S: as + bs})
		return value.NewHandle(value.TagStr, id), nil
	}

	if a.Tag() == value.TagInt && b.Tag() == value.TagInt {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case bytecode.OpAdd:
			return value.NewInt(x + y), nil
		case bytecode.OpSub:
			return value.NewInt(x - y), nil
		case bytecode.OpMul:
			return value.NewInt(x * y), nil
		case bytecode.OpDiv:
			if y == 0 {
				return value.Value{}, &ThrownError{Value: NewError(h, ErrDivisionByZero, "division by zero")}
			}
			return value.NewInt(x / y), nil
		case bytecode.OpMod:
			if y == 0 {
				return value.Value{}, &ThrownError{Value: NewError(h, ErrDivisionByZero, "modulo by zero")}
			}
			return value.NewInt(x % y), nil
		}
	}

	if !isNumeric(a) || !isNumeric(b) {
		return value.Value{}, &ThrownError{Value: NewError(h, ErrNotANumber, "arithmetic requires numbers")}
	}

	x, y := asFloat(a), asFloat(b)
	switch op {
	case bytecode.OpAdd:
		return value.NewFloat(x + y), nil
	case bytecode.OpSub:
		return value.NewFloat(x - y), nil
	case bytecode.OpMul:
		return value.NewFloat(x * y), nil
	case bytecode.OpDiv:
		return value.NewFloat(x / y), nil
	case bytecode.OpMod:
		return value.NewFloat(floatMod(x, y)), nil
	}
	return value.Value{}, &ThrownError{Value: NewError(h, ErrInvalidArgument, "unknown arithmetic op")}
}

// Compare applies a comparison op to two operands, returning a bool
// Value. Eq/Ne dispatch to deep structural equality for handle-backed
// values; the ordering ops (Lt/Gt/Le/Ge) only accept numbers.
func Compare(h *heap.Heap, op bytecode.Op, a, b value.Value) (value.Value, error) {
	if op == bytecode.OpEq || op == bytecode.OpNe {
		eq := DeepEqual(h, a, b)
		if op == bytecode.OpNe {
			eq = !eq
		}
		return value.NewBool(eq), nil
	}

	if !isNumeric(a) || !isNumeric(b) {
		return value.Value{}, &ThrownError{Value: NewError(h, ErrNotANumber, "comparison requires numbers")}
	}
	x, y := asFloat(a), asFloat(b)
	var result bool
	switch op {
	case bytecode.OpLt:
		result = x < y
	case bytecode.OpGt:
		result = x > y
	case bytecode.OpLe:
		result = x <= y
	case bytecode.OpGe:
		result = x >= y
	}
	return value.NewBool(result), nil
}

func (vm *VM) binArith(op bytecode.Op) error {
	b, err := vm.pop(op)
	if err != nil {
		return err
	}
	a, err := vm.pop(op)
	if err != nil {
		return err
	}
	res, err := Arith(vm.host.Heap(), op, a, b)
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

func (vm *VM) binCompare(op bytecode.Op) error {
	b, err := vm.pop(op)
	if err != nil {
		return err
	}
	a, err := vm.pop(op)
	if err != nil {
		return err
	}
	res, err := Compare(vm.host.Heap(), op, a, b)
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

func floatMod(x, y float64) float64 {
	q := x / y
	return x - float64(int64(q))*y
}

func isNumeric(v value.Value) bool {
	return v.Tag() == value.TagInt || v.Tag() == value.TagFloat
}

func asFloat(v value.Value) float64 {
	if v.Tag() == value.TagInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// DeepEqual implements `==` across handle-backed collections: value
// equality for scalars (int==float compares by numeric value),
// elementwise/field-wise comparison for lists/tuples/dicts/sets/
// structs/enums, and Some(x)==Some(y) by comparing their inner values.
func DeepEqual(h *heap.Heap, a, b value.Value) bool {
	if a.Tag() != b.Tag() {
		if isNumeric(a) && isNumeric(b) {
			return asFloat(a) == asFloat(b)
		}
		return false
	}
	if !a.Tag().IsHandle() {
		return a.Equal(b)
	}
	switch a.Tag() {
	case value.TagStr:
		return h.Get(a.AsHandle()).(heap.Str).S == h.Get(b.AsHandle()).(heap.Str).S
	case value.TagList:
		la, lb := h.Get(a.AsHandle()).(*heap.List), h.Get(b.AsHandle()).(*heap.List)
		if len(la.Elems) != len(lb.Elems) {
			return false
		}
		for i := range la.Elems {
			if !DeepEqual(h, la.Elems[i], lb.Elems[i]) {
				return false
			}
		}
		return true
	case value.TagTuple:
		ta, tb := h.Get(a.AsHandle()).(*heap.Tuple), h.Get(b.AsHandle()).(*heap.Tuple)
		if len(ta.Elems) != len(tb.Elems) {
			return false
		}
		for i := range ta.Elems {
			if !DeepEqual(h, ta.Elems[i], tb.Elems[i]) {
				return false
			}
		}
		return true
	case value.TagDict:
		da, db := h.Get(a.AsHandle()).(*heap.Dict), h.Get(b.AsHandle()).(*heap.Dict)
		if da.Len() != db.Len() {
			return false
		}
		for _, k := range da.Keys() {
			va, _ := da.Get(k)
			vb, ok := db.Get(k)
			if !ok || !DeepEqual(h, va, vb) {
				return false
			}
		}
		return true
	case value.TagSet:
		sa, sb := h.Get(a.AsHandle()).(*heap.Set), h.Get(b.AsHandle()).(*heap.Set)
		if sa.Len() != sb.Len() {
			return false
		}
		for _, k := range sa.Keys() {
			if !sb.Has(k) {
				return false
			}
		}
		return true
	case value.TagStruct:
		sa, sb := h.Get(a.AsHandle()).(*heap.Struct), h.Get(b.AsHandle()).(*heap.Struct)
		if sa.TypeName != sb.TypeName || len(sa.Order) != len(sb.Order) {
			return false
		}
		for _, name := range sa.Order {
			if !DeepEqual(h, sa.Fields[name], sb.Fields[name]) {
				return false
			}
		}
		return true
	case value.TagEnum:
		ea, eb := h.Get(a.AsHandle()).(*heap.Enum), h.Get(b.AsHandle()).(*heap.Enum)
		if ea.TypeName != eb.TypeName || ea.Variant != eb.Variant || len(ea.Args) != len(eb.Args) {
			return false
		}
		for i := range ea.Args {
			if !DeepEqual(h, ea.Args[i], eb.Args[i]) {
				return false
			}
		}
		return true
	case value.TagOptionSome:
		oa, ob := h.Get(a.AsHandle()).(*heap.OptionSome), h.Get(b.AsHandle()).(*heap.OptionSome)
		return DeepEqual(h, oa.Inner, ob.Inner)
	default:
		return a.Bits() == b.Bits()
	}
}

// AddValues implements the `+=` fast path shared by AddAssignName and
// AddAssignLocal: the same numeric/string promotion rules as Arith's Add
// case, named separately because the compound-assign ops already have
// both operands in hand rather than on the stack.
func AddValues(h *heap.Heap, a, b value.Value) (value.Value, error) {
	return Arith(h, bytecode.OpAdd, a, b)
}
