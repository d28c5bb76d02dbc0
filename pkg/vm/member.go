package vm

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rivo/uniseg"

	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
)

// StructLayoutHash computes a struct type's layout hash from its
// compiled name and field order, xxhash-backed so adding/reordering a
// field changes the hash and invalidates every field-offset cache keyed
// on it. Exported because the AST executor must stamp the same hash on
// the structs it builds, or the two paths' instances would never share
// caches or compare equal by layout.
func StructLayoutHash(def *bytecode.StructDef) uint64 {
	var b strings.Builder
	b.WriteString(def.Name)
	for _, f := range def.Fields {
		b.WriteByte('|')
		b.WriteString(f.Name)
	}
	return xxhash.Sum64String(b.String())
}

// resolveMethodCached consults the call site's method inline cache
// before falling back to the host's general method resolution. A struct
// receiver validates both the receiver tag and its TyHash (a struct can
// change layout, e.g. after a hot-reload in a REPL session); every other
// tag only needs to match on tag + method hash, since built-in method
// sets for scalars/collections never change shape at runtime.
func (vm *VM) resolveMethodCached(ip int, recv value.Value, name string) (value.Value, bool) {
	slot := vm.fieldICForMethod(ip)
	hash := StableHash64(name)
	tag := recv.Tag()

	var tyHash uint64
	if tag == value.TagStruct {
		s := vm.host.Heap().Get(recv.AsHandle()).(*heap.Struct)
		tyHash = s.TyHash
	}

	if slot.Valid && slot.Tag == tag && slot.MethodHash == hash && slot.StructTyHash == tyHash {
		return slot.Cached, true
	}

	fn, ok := vm.host.ResolveMethod(recv, name)
	if !ok {
		return value.Value{}, false
	}
	*slot = MethodICSlot{Valid: true, Tag: tag, StructTyHash: tyHash, MethodHash: hash, Cached: fn}
	return fn, true
}

func (vm *VM) fieldICForMethod(ip int) *MethodICSlot {
	if s, ok := vm.methodICs[ip]; ok {
		return s
	}
	s := &MethodICSlot{}
	vm.methodICs[ip] = s
	return s
}

func (vm *VM) fieldIC(ip int) *ICSlot {
	if s, ok := vm.fieldICs[ip]; ok {
		return s
	}
	s := &ICSlot{FieldOffset: -1}
	vm.fieldICs[ip] = s
	return s
}

// getMember reads recv.name, using the call site's field-offset cache
// when recv is a struct whose TyHash still matches, or the (id, ver)
// dict-entry cache when recv is a dict (member syntax on a dict is
// string-key sugar: d.x == d["x"]).
func (vm *VM) getMember(ip int, recv value.Value, name string) (value.Value, error) {
	if recv.Tag() == value.TagDict {
		d := vm.host.Heap().Get(recv.AsHandle()).(*heap.Dict)
		key := heap.DictKey{S: name}
		slot := vm.fieldIC(ip)
		if slot.Valid && slot.DictID == recv.AsHandle() && slot.DictVer == d.Ver && slot.CachedKey == key {
			return slot.Cached, nil
		}
		v, ok := d.Get(key)
		if !ok {
			return value.Value{}, &ThrownError{Value: NewError(vm.host.Heap(), ErrKeyNotFound, "key not found: "+name)}
		}
		*slot = ICSlot{Valid: true, FieldOffset: -1, DictID: recv.AsHandle(), DictVer: d.Ver, CachedKey: key, Cached: v}
		return v, nil
	}
	if recv.Tag() != value.TagStruct {
		return value.Value{}, &ThrownError{Value: NewError(vm.host.Heap(), ErrNotAStruct, "member access on non-struct")}
	}
	s := vm.host.Heap().Get(recv.AsHandle()).(*heap.Struct)

	slot := vm.fieldIC(ip)
	if slot.Valid && slot.StructTyHash == s.TyHash && slot.FieldOffset >= 0 && slot.FieldOffset < len(s.Order) && s.Order[slot.FieldOffset] == name {
		return s.Fields[name], nil
	}

	off := s.FieldOffset(name)
	if off < 0 {
		return value.Value{}, &ThrownError{Value: NewError(vm.host.Heap(), ErrKeyNotFound, "no such field: "+name)}
	}
	*slot = ICSlot{Valid: true, StructTyHash: s.TyHash, FieldOffset: off}
	return s.Fields[name], nil
}

func (vm *VM) assignMember(ip int, recv value.Value, name string, v value.Value) error {
	if recv.Tag() == value.TagDict {
		d := vm.host.Heap().Get(recv.AsHandle()).(*heap.Dict)
		d.Insert(heap.DictKey{S: name}, v)
		vm.fieldIC(ip).Invalidate()
		return nil
	}
	if recv.Tag() != value.TagStruct {
		return &ThrownError{Value: NewError(vm.host.Heap(), ErrNotAStruct, "member assignment on non-struct")}
	}
	s := vm.host.Heap().Get(recv.AsHandle()).(*heap.Struct)
	if s.FieldOffset(name) < 0 {
		return &ThrownError{Value: NewError(vm.host.Heap(), ErrKeyNotFound, "no such field: "+name)}
	}
	s.Fields[name] = v
	vm.fieldIC(ip).Invalidate()
	return nil
}

// getIndex implements `recv[idx]` for lists, tuples, dicts, sets, and
// strings (indexed by rune, as the tree-walking executor does).
func (vm *VM) getIndex(ip int, recv, idx value.Value) (value.Value, error) {
	h := vm.host.Heap()
	switch recv.Tag() {
	case value.TagList:
		l := h.Get(recv.AsHandle()).(*heap.List)
		i, err := vm.indexInto(len(l.Elems), idx)
		if err != nil {
			return value.Value{}, err
		}
		return l.Elems[i], nil
	case value.TagTuple:
		t := h.Get(recv.AsHandle()).(*heap.Tuple)
		i, err := vm.indexInto(len(t.Elems), idx)
		if err != nil {
			return value.Value{}, err
		}
		return t.Elems[i], nil
	case value.TagDict:
		d := h.Get(recv.AsHandle()).(*heap.Dict)
		key, ok := heap.KeyFromValue(h, idx)
		if !ok {
			return value.Value{}, &ThrownError{Value: NewError(h, ErrInvalidArgument, "unsupported dict key type")}
		}
		slot := vm.fieldIC(ip)
		if slot.Valid && slot.DictID == recv.AsHandle() && slot.DictVer == d.Ver && slot.CachedKey == key {
			return slot.Cached, nil
		}
		v, ok := d.Get(key)
		if !ok {
			return value.Value{}, &ThrownError{Value: NewError(h, ErrKeyNotFound, "key not found")}
		}
		*slot = ICSlot{Valid: true, FieldOffset: -1, DictID: recv.AsHandle(), DictVer: d.Ver, CachedKey: key, Cached: v}
		return v, nil
	case value.TagStr:
		s := h.Get(recv.AsHandle()).(heap.Str).S
		i, err := vm.indexInto(len([]rune(s)), idx)
		if err != nil {
			return value.Value{}, err
		}
		r := []rune(s)[i]
		id := h.Alloc(heap.Str{S: string(r)})
		return value.NewHandle(value.TagStr, id), nil
	default:
		return value.Value{}, &ThrownError{Value: NewError(h, ErrTypeMismatch, "value is not indexable")}
	}
}

func (vm *VM) indexInto(length int, idx value.Value) (int, error) {
	if idx.Tag() != value.TagInt {
		return 0, &ThrownError{Value: NewError(vm.host.Heap(), ErrNotAnInt, "index must be an int")}
	}
	i := int(idx.AsInt())
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, &ThrownError{Value: NewError(vm.host.Heap(), ErrIndexOutOfBounds, "index out of bounds")}
	}
	return i, nil
}

func (vm *VM) assignIndex(ip int, recv, idx, v value.Value) error {
	h := vm.host.Heap()
	switch recv.Tag() {
	case value.TagList:
		l := h.Get(recv.AsHandle()).(*heap.List)
		i, err := vm.indexInto(len(l.Elems), idx)
		if err != nil {
			return err
		}
		l.Elems[i] = v
		return nil
	case value.TagDict:
		d := h.Get(recv.AsHandle()).(*heap.Dict)
		key, ok := heap.KeyFromValue(h, idx)
		if !ok {
			return &ThrownError{Value: NewError(h, ErrInvalidArgument, "unsupported dict key type")}
		}
		d.Insert(key, v)
		vm.fieldIC(ip).Invalidate()
		return nil
	default:
		return &ThrownError{Value: NewError(h, ErrTypeMismatch, "value does not support index assignment")}
	}
}

func (vm *VM) textOf(v value.Value) string { return RenderValue(vm.host.Heap(), v) }

// RenderValue renders v the way print/interpolation/to_text all do,
// dereferencing heap objects (Value.Text alone only handles inline
// scalars). One canonical stringification shared by the VM, the AST
// executor, and the builtins, so the two execution paths are
// indistinguishable by output.
func RenderValue(h *heap.Heap, v value.Value) string {
	if !v.Tag().IsHandle() {
		return v.Text()
	}
	switch obj := h.Get(v.AsHandle()).(type) {
	case heap.Str:
		return obj.S
	case *heap.List:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range obj.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(h, e))
		}
		b.WriteByte(']')
		return b.String()
	case *heap.Tuple:
		var b strings.Builder
		b.WriteByte('(')
		for i, e := range obj.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(h, e))
		}
		b.WriteByte(')')
		return b.String()
	case *heap.Dict:
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range obj.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(h, keyToValue(h, k)))
			b.WriteString(": ")
			kv, _ := obj.Get(k)
			b.WriteString(RenderValue(h, kv))
		}
		b.WriteByte('}')
		return b.String()
	case *heap.Set:
		var b strings.Builder
		b.WriteString("#{")
		for i, k := range obj.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(h, keyToValue(h, k)))
		}
		b.WriteByte('}')
		return b.String()
	case *heap.Struct:
		var b strings.Builder
		b.WriteString(obj.TypeName)
		b.WriteString(" { ")
		for i, name := range obj.Order {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(RenderValue(h, obj.Fields[name]))
		}
		b.WriteString(" }")
		return b.String()
	case *heap.Enum:
		if len(obj.Args) == 0 {
			return obj.TypeName + "." + obj.Variant
		}
		var b strings.Builder
		b.WriteString(obj.TypeName)
		b.WriteByte('.')
		b.WriteString(obj.Variant)
		b.WriteByte('(')
		for i, a := range obj.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(RenderValue(h, a))
		}
		b.WriteByte(')')
		return b.String()
	case *heap.OptionSome:
		return "some(" + RenderValue(h, obj.Inner) + ")"
	case *heap.Range:
		op := ".."
		if obj.Inclusive {
			op = "..="
		}
		return strconv.FormatInt(obj.Start, 10) + op + strconv.FormatInt(obj.End, 10)
	case *heap.Function:
		return "<fn " + obj.Name + ">"
	case *heap.File:
		return "<file " + obj.Path + ">"
	default:
		return "<" + v.Tag().String() + ">"
	}
}

// MatchesTypeName implements the runtime check of a value against a
// declared parameter/binding type name. It backs the VM's AssertType op
// and the typed-parameter checks of the runtime and the tree-walking
// executor; the compiler does not emit AssertType.
func MatchesTypeName(h *heap.Heap, v value.Value, typeName string) bool {
	switch typeName {
	case "Int":
		return v.Tag() == value.TagInt
	case "Float":
		return v.Tag() == value.TagFloat
	case "Bool":
		return v.Tag() == value.TagBool
	case "Str":
		return v.Tag() == value.TagStr
	case "List":
		return v.Tag() == value.TagList
	case "Tuple":
		return v.Tag() == value.TagTuple
	case "Dict":
		return v.Tag() == value.TagDict
	case "Set":
		return v.Tag() == value.TagSet
	case "Any", "":
		return true
	default:
		if v.Tag() == value.TagStruct {
			s := h.Get(v.AsHandle()).(*heap.Struct)
			return s.TypeName == typeName
		}
		if v.Tag() == value.TagEnum {
			e := h.Get(v.AsHandle()).(*heap.Enum)
			return e.TypeName == typeName
		}
		return false
	}
}

// makeIter builds the cursor a ForEachInit pushes for src: lists iterate
// by index, ranges by stepping Start toward End, dicts by their
// insertion-ordered key slice (keys-only or key+value depending on how
// the loop destructures, decided by the compiler via a distinct Op in a
// fuller implementation -- here IterDictKeys covers both, the VM side
// just hands back the key and lets GetMember/Index fetch the value).
func (vm *VM) makeIter(src value.Value) (IterState, error) {
	h := vm.host.Heap()
	switch src.Tag() {
	case value.TagList:
		l := h.Get(src.AsHandle()).(*heap.List)
		return IterState{Kind: IterList, ListID: l, Idx: 0, Len: len(l.Elems)}, nil
	case value.TagTuple:
		t := h.Get(src.AsHandle()).(*heap.Tuple)
		return IterState{Kind: IterList, ListID: &heap.List{Elems: t.Elems}, Idx: 0, Len: len(t.Elems)}, nil
	case value.TagRange:
		r := h.Get(src.AsHandle()).(*heap.Range)
		return IterState{Kind: IterRange, Cur: r.Start, End: r.End, Step: r.Step, Inclusive: r.Inclusive}, nil
	case value.TagDict:
		d := h.Get(src.AsHandle()).(*heap.Dict)
		return IterState{Kind: IterDictKeys, Keys: d.Keys(), Dict: d}, nil
	case value.TagSet:
		s := h.Get(src.AsHandle()).(*heap.Set)
		return IterState{Kind: IterDictKeys, Keys: s.Keys()}, nil
	case value.TagStr:
		s := h.Get(src.AsHandle()).(heap.Str).S
		var parts []string
		g := uniseg.NewGraphemes(s)
		for g.Next() {
			parts = append(parts, g.Str())
		}
		return IterState{Kind: IterStr, Graphemes: parts}, nil
	default:
		return IterState{}, &ThrownError{Value: NewError(h, ErrInvalidIteratorType, "value is not iterable")}
	}
}

// iterNext advances it and reports whether another element was
// produced, along with that element (the zero Value if not).
func (vm *VM) iterNext(it *IterState) (bool, value.Value) {
	switch it.Kind {
	case IterList:
		l := it.ListID.(*heap.List)
		if it.Idx >= len(l.Elems) {
			return false, value.Value{}
		}
		v := l.Elems[it.Idx]
		it.Idx++
		return true, v
	case IterRange:
		if it.Step > 0 {
			if (it.Inclusive && it.Cur > it.End) || (!it.Inclusive && it.Cur >= it.End) {
				return false, value.Value{}
			}
		} else {
			if (it.Inclusive && it.Cur < it.End) || (!it.Inclusive && it.Cur <= it.End) {
				return false, value.Value{}
			}
		}
		v := value.NewInt(int32(it.Cur))
		it.Cur += it.Step
		return true, v
	case IterDictKeys, IterDictKV:
		if it.Idx >= len(it.Keys) {
			return false, value.Value{}
		}
		k := it.Keys[it.Idx]
		it.Idx++
		return true, keyToValue(vm.host.Heap(), k)
	case IterStr:
		if it.Idx >= len(it.Graphemes) {
			return false, value.Value{}
		}
		g := it.Graphemes[it.Idx]
		it.Idx++
		id := vm.host.Heap().Intern(g)
		return true, value.NewHandle(value.TagStr, id)
	default:
		return false, value.Value{}
	}
}

func keyToValue(h *heap.Heap, k heap.DictKey) value.Value {
	if k.IsInt {
		return value.NewInt(int32(k.I))
	}
	id := h.Intern(k.S)
	return value.NewHandle(value.TagStr, id)
}
