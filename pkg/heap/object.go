// Package heap implements xu's mark-sweep object arena: a non-moving
// store of ManagedObject values addressed by value.ObjectId, so handles
// embedded in NaN-boxed Values stay valid across collections.
package heap

import (
	"strings"

	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
)

// ManagedObject is any heap-allocated variant a boxed handle can point to.
type ManagedObject interface {
	isManagedObject()
}

// Str is an interned or freshly allocated string object.
type Str struct{ S string }

func (Str) isManagedObject() {}

// List is a mutable, ordered, growable sequence.
type List struct{ Elems []value.Value }

func (*List) isManagedObject() {}

// Tuple is a fixed-size, immutable sequence.
type Tuple struct{ Elems []value.Value }

func (*Tuple) isManagedObject() {}

// DictKey is the key type for Dict and Set: either a string or an int,
// chosen so both hash and compare cheaply without boxing through Value.
type DictKey struct {
	IsInt bool
	I     int64
	S     string
}

// KeyFromValue builds a DictKey from a scalar Value, dereferencing string
// handles through the heap. Returns ok=false for unsupported key types.
func KeyFromValue(h *Heap, v value.Value) (DictKey, bool) {
	switch v.Tag() {
	case value.TagInt:
		return DictKey{IsInt: true, I: int64(v.AsInt())}, true
	case value.TagStr:
		if s, ok := h.Get(v.AsHandle()).(Str); ok {
			return DictKey{S: s.S}, true
		}
	}
	return DictKey{}, false
}

// Dict is an insertion-ordered hash map. Ver increments only when a
// mutation actually changes a value (see op_dict_insert's `changed` rule
// in the dict-write paths), which is what keeps the Dict inline cache
// correct: version bumps are the sole invalidation signal.
type Dict struct {
	m     map[DictKey]value.Value
	order []DictKey
	Ver   uint64
}

func NewDict() *Dict { return &Dict{m: make(map[DictKey]value.Value)} }

func (*Dict) isManagedObject() {}

func (d *Dict) Len() int { return len(d.m) }

func (d *Dict) Get(k DictKey) (value.Value, bool) {
	v, ok := d.m[k]
	return v, ok
}

// Insert stores k=v, bumping Ver only if this changed the map (new key or
// different value for an existing key).
func (d *Dict) Insert(k DictKey, v value.Value) {
	if prev, ok := d.m[k]; ok {
		if prev.Bits() == v.Bits() {
			return
		}
		d.m[k] = v
		d.Ver++
		return
	}
	d.m[k] = v
	d.order = append(d.order, k)
	d.Ver++
}

func (d *Dict) Delete(k DictKey) {
	if _, ok := d.m[k]; !ok {
		return
	}
	delete(d.m, k)
	for i, ok := range d.order {
		if ok == k {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.Ver++
}

// Keys returns keys in insertion order, matching for-each over a dict.
func (d *Dict) Keys() []DictKey { return d.order }

// Merge copies other's entries into d, one Ver bump per changed entry
// (mirroring op_dict_merge's changed-tracking semantics).
func (d *Dict) Merge(other *Dict) {
	if other == d {
		return
	}
	for _, k := range other.order {
		d.Insert(k, other.m[k])
	}
}

// Set is an insertion-ordered hash set with its own DictKey map and
// insertion-order slice; it shares the DictKey type with Dict.
type Set struct {
	m     map[DictKey]struct{}
	order []DictKey
}

func NewSet() *Set { return &Set{m: make(map[DictKey]struct{})} }

func (*Set) isManagedObject() {}

func (s *Set) Len() int { return len(s.m) }

func (s *Set) Has(k DictKey) bool {
	_, ok := s.m[k]
	return ok
}

func (s *Set) Add(k DictKey) bool {
	if _, ok := s.m[k]; ok {
		return false
	}
	s.m[k] = struct{}{}
	s.order = append(s.order, k)
	return true
}

func (s *Set) Keys() []DictKey { return s.order }

// Struct is an instance of a user-defined struct type. TyHash is computed
// once at definition time (xxhash of the type name and field layout) and
// used by the VM's field-offset inline cache to detect layout drift.
type Struct struct {
	TypeName string
	Fields   map[string]value.Value
	Order    []string
	TyHash   uint64
}

func (*Struct) isManagedObject() {}

// FieldOffset returns the declared position of a field name, or -1. This
// is what the GetMember/AssignMember inline cache caches per call site.
func (s *Struct) FieldOffset(name string) int {
	for i, n := range s.Order {
		if n == name {
			return i
		}
	}
	return -1
}

// Enum is an instance of a user-defined enum variant.
type Enum struct {
	TypeName string
	Variant  string
	Args     []value.Value
}

func (*Enum) isManagedObject() {}

// OptionSome wraps the Option#some(x) case. Option#none is represented
// without a heap allocation at all -- it is the Unit value -- since it
// carries no payload.
type OptionSome struct{ Inner value.Value }

func (*OptionSome) isManagedObject() {}

// FunctionKind distinguishes the three callable shapes a Function object
// can wrap.
type FunctionKind uint8

const (
	FuncBuiltin FunctionKind = iota
	FuncUser
	FuncBytecode
)

// Function is the uniform heap representation of anything callable:
// a host builtin, a tree-walked user function, or a compiled bytecode
// function. Exactly one of the payload fields is meaningful per Kind.
type Function struct {
	Kind       FunctionKind
	Name       string
	Params     []string
	BuiltinIdx int         // not set by the runtime; builtins are dispatched by Name
	UserBody   interface{} // *exec.UserFunc, kept as interface{} to avoid an import cycle
	Proto      interface{} // *bytecode.FunctionProto, if Kind == FuncBytecode
	Env        *scope.Env  // captured frames, if Kind == FuncUser
	Captured   []value.Value
}

func (*Function) isManagedObject() {}

// Range is a lazily-iterated integer range.
type Range struct {
	Start, End, Step int64
	Inclusive        bool
}

func (*Range) isManagedObject() {}

// File is a handle to a capability-mediated file resource. The actual I/O
// goes through the runtime's FileSystem capability; this object just
// tracks the path and whatever the capability layer returned.
type File struct {
	Path   string
	Closed bool
}

func (*File) isManagedObject() {}

// Builder backs the `builder_new`/`builder_push`/`builder_finalize`
// builtin trio: an append-only string accumulator, so repeated
// concatenation in a loop does not reallocate on every append.
type Builder struct {
	buf strings.Builder
}

func NewBuilder(capHint int) *Builder {
	b := &Builder{}
	if capHint > 0 {
		b.buf.Grow(capHint)
	}
	return b
}

func (*Builder) isManagedObject() {}

func (b *Builder) Push(s string)    { b.buf.WriteString(s) }
func (b *Builder) String() string   { return b.buf.String() }
func (b *Builder) Len() int         { return b.buf.Len() }
