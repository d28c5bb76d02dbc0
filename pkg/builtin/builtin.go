// Package builtin implements xu's built-in global functions and
// collection/string methods: the host-side primitives neither the
// bytecode VM nor the tree-walking executor can express on their own,
// reached through vm.Host.CallBuiltin by name.
//
// Method names are tag-qualified ("list#len", "dict#keys", ...) because
// the same surface name (len, push, contains) means something different
// per receiver type; ResolveMethod picks the qualified name once, at the
// call site, so CallBuiltin itself never re-inspects the receiver's tag.
package builtin

import (
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rivo/uniseg"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// Ctx is everything a builtin needs from its host, kept minimal and free
// of any dependency on pkg/runtime so this package can be imported from
// both pkg/runtime and test code without a cycle.
type Ctx interface {
	Heap() *heap.Heap
	Clock() capability.Clock
	FS() capability.FileSystem
	NextRandom() uint64
	Call(fn value.Value, args []value.Value) (value.Value, error)

	// Print writes s to program output verbatim; `println` appends its
	// own newline.
	Print(s string)

	// ForceGC runs a full collection immediately (the `gc` builtin),
	// including the host's cache-clearing housekeeping.
	ForceGC() heap.Stats

	// ReadLine blocks for one line of user input, ok=false on EOF.
	ReadLine() (string, bool)

	// OSArgs reports the program's command-line arguments.
	OSArgs() []string

	// PushTempRoot/PopTempRoots pin values that are not yet reachable
	// from any scanned location, for builtins whose callbacks can
	// re-enter the interpreter (and therefore the collector) while
	// intermediate results sit in Go-side slices.
	PushTempRoot(v value.Value)
	PopTempRoots(n int)
}

// Func is one built-in's implementation.
type Func func(ctx Ctx, args []value.Value) (value.Value, error)

// Registry maps every built-in's qualified name to its implementation.
var Registry = map[string]Func{}

func register(name string, fn Func) { Registry[name] = fn }

func throw(h *heap.Heap, kind, msg string) error {
	return &vm.ThrownError{Value: vm.NewError(h, kind, msg)}
}

func arity(h *heap.Heap, name string, args []value.Value, want int) error {
	if len(args) != want {
		return throw(h, vm.ErrArityMismatch, name+" expects "+itoa(want)+" argument(s)")
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

func wantStr(h *heap.Heap, v value.Value) (string, error) {
	if v.Tag() != value.TagStr {
		return "", throw(h, vm.ErrNotAString, "expected a string")
	}
	return h.Get(v.AsHandle()).(heap.Str).S, nil
}

func newStr(h *heap.Heap, s string) value.Value {
	return value.NewHandle(value.TagStr, h.Intern(s))
}

func newList(h *heap.Heap, elems []value.Value) value.Value {
	return value.NewHandle(value.TagList, h.Alloc(&heap.List{Elems: elems}))
}

// --- global functions ---

func init() {
	register("print", func(ctx Ctx, args []value.Value) (value.Value, error) {
		ctx.Print(joinArgs(ctx.Heap(), args))
		return value.Unit(), nil
	})

	register("println", func(ctx Ctx, args []value.Value) (value.Value, error) {
		ctx.Print(joinArgs(ctx.Heap(), args) + "\n")
		return value.Unit(), nil
	})

	register("len", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "len", args, 1); err != nil {
			return value.Value{}, err
		}
		n, err := lengthOf(ctx.Heap(), args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(int32(n)), nil
	})

	register("type_of", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "type_of", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() == value.TagStruct {
			return newStr(ctx.Heap(), ctx.Heap().Get(args[0].AsHandle()).(*heap.Struct).TypeName), nil
		}
		if args[0].Tag() == value.TagEnum {
			return newStr(ctx.Heap(), ctx.Heap().Get(args[0].AsHandle()).(*heap.Enum).TypeName), nil
		}
		return newStr(ctx.Heap(), args[0].Tag().String()), nil
	})

	register("gen_id", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return newStr(ctx.Heap(), uuid.NewString()), nil
	})

	register("humanize_bytes", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "humanize_bytes", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagInt {
			return value.Value{}, throw(ctx.Heap(), vm.ErrNotAnInt, "humanize_bytes expects an int")
		}
		return newStr(ctx.Heap(), humanize.Bytes(uint64(args[0].AsInt()))), nil
	})

	register("humanize_int", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "humanize_int", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagInt {
			return value.Value{}, throw(ctx.Heap(), vm.ErrNotAnInt, "humanize_int expects an int")
		}
		return newStr(ctx.Heap(), humanize.Comma(int64(args[0].AsInt()))), nil
	})

	register("time_unix", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return value.NewInt(int32(ctx.Clock().UnixSecs())), nil
	})

	register("time_millis", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return value.NewFloat(float64(ctx.Clock().UnixMillis())), nil
	})

	register("mono_micros", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return value.NewFloat(float64(ctx.Clock().MonoMicros())), nil
	})

	register("mono_nanos", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return value.NewFloat(float64(ctx.Clock().MonoNanos())), nil
	})

	register("rand", func(ctx Ctx, args []value.Value) (value.Value, error) {
		// 53 high-quality bits mapped onto [0, 1), the usual float trick.
		return value.NewFloat(float64(ctx.NextRandom()>>11) / float64(1<<53)), nil
	})

	register("__builtin_enum_variant", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "__builtin_enum_variant", args, 1); err != nil {
			return value.Value{}, err
		}
		// The optimized Option representations report as Option variants,
		// so `Option::some(x)` patterns match an OptionSome without it
		// ever being a real Enum object.
		switch args[0].Tag() {
		case value.TagOptionSome:
			return newStr(ctx.Heap(), "Option::some"), nil
		case value.TagUnit:
			return newStr(ctx.Heap(), "Option::none"), nil
		}
		if args[0].Tag() != value.TagEnum {
			return value.Value{}, throw(ctx.Heap(), vm.ErrTypeMismatch, "not an enum value")
		}
		e := ctx.Heap().Get(args[0].AsHandle()).(*heap.Enum)
		return newStr(ctx.Heap(), e.TypeName+"::"+e.Variant), nil
	})

	register("__builtin_enum_arg", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "__builtin_enum_arg", args, 2); err != nil {
			return value.Value{}, err
		}
		h := ctx.Heap()
		if args[0].Tag() == value.TagOptionSome {
			if args[1].Tag() == value.TagInt && args[1].AsInt() == 0 {
				return h.Get(args[0].AsHandle()).(*heap.OptionSome).Inner, nil
			}
			return value.Value{}, throw(h, vm.ErrIndexOutOfBounds, "enum arg index out of range")
		}
		if args[0].Tag() != value.TagEnum {
			return value.Value{}, throw(h, vm.ErrTypeMismatch, "not an enum value")
		}
		if args[1].Tag() != value.TagInt {
			return value.Value{}, throw(h, vm.ErrNotAnInt, "enum arg index must be an int")
		}
		e := h.Get(args[0].AsHandle()).(*heap.Enum)
		i := int(args[1].AsInt())
		if i < 0 || i >= len(e.Args) {
			return value.Value{}, throw(h, vm.ErrIndexOutOfBounds, "enum arg index out of range")
		}
		return e.Args[i], nil
	})

	register("__builtin_enum_arity", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "__builtin_enum_arity", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagEnum {
			return value.Value{}, throw(ctx.Heap(), vm.ErrTypeMismatch, "not an enum value")
		}
		e := ctx.Heap().Get(args[0].AsHandle()).(*heap.Enum)
		return value.NewInt(int32(len(e.Args))), nil
	})

	registerListMethods()
	registerTupleMethods()
	registerDictMethods()
	registerSetMethods()
	registerStrMethods()
	registerOptMethods()
}

func joinArgs(h *heap.Heap, args []value.Value) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(textOf(h, a))
	}
	return b.String()
}

func lengthOf(h *heap.Heap, v value.Value) (int, error) {
	switch v.Tag() {
	case value.TagList:
		return len(h.Get(v.AsHandle()).(*heap.List).Elems), nil
	case value.TagTuple:
		return len(h.Get(v.AsHandle()).(*heap.Tuple).Elems), nil
	case value.TagDict:
		return h.Get(v.AsHandle()).(*heap.Dict).Len(), nil
	case value.TagSet:
		return h.Get(v.AsHandle()).(*heap.Set).Len(), nil
	case value.TagStr:
		return uniseg.GraphemeClusterCount(h.Get(v.AsHandle()).(heap.Str).S), nil
	default:
		return 0, throw(h, vm.ErrTypeMismatch, "value has no length")
	}
}

// textOf renders a value for print/string-conversion builtins, one and
// the same stringification the VM and AST executor use.
func textOf(h *heap.Heap, v value.Value) string { return vm.RenderValue(h, v) }

func registerListMethods() {
	register("list#len", func(ctx Ctx, args []value.Value) (value.Value, error) {
		n, err := lengthOf(ctx.Heap(), args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(int32(n)), nil
	})
	register("list#push", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "push", args, 2); err != nil {
			return value.Value{}, err
		}
		l := ctx.Heap().Get(args[0].AsHandle()).(*heap.List)
		l.Elems = append(l.Elems, args[1])
		return args[0], nil
	})
	register("list#pop", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		l := h.Get(args[0].AsHandle()).(*heap.List)
		if len(l.Elems) == 0 {
			return value.Value{}, throw(h, vm.ErrIndexOutOfBounds, "pop from empty list")
		}
		last := l.Elems[len(l.Elems)-1]
		l.Elems = l.Elems[:len(l.Elems)-1]
		return last, nil
	})
	register("list#contains", func(ctx Ctx, args []value.Value) (value.Value, error) {
		l := ctx.Heap().Get(args[0].AsHandle()).(*heap.List)
		for _, e := range l.Elems {
			if e.Equal(args[1]) {
				return value.NewBool(true), nil
			}
		}
		return value.NewBool(false), nil
	})
	register("list#map", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		l := h.Get(args[0].AsHandle()).(*heap.List)
		out := make([]value.Value, len(l.Elems))
		rooted := 0
		defer func() { ctx.PopTempRoots(rooted) }()
		for i, e := range l.Elems {
			// Each callback can run a GC; results already produced are
			// only reachable through the temp-roots stack until the
			// result list exists.
			r, err := ctx.Call(args[1], []value.Value{e})
			if err != nil {
				return value.Value{}, err
			}
			ctx.PushTempRoot(r)
			rooted++
			out[i] = r
		}
		return newList(h, out), nil
	})
	register("list#filter", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		l := h.Get(args[0].AsHandle()).(*heap.List)
		var out []value.Value
		for _, e := range l.Elems {
			r, err := ctx.Call(args[1], []value.Value{e})
			if err != nil {
				return value.Value{}, err
			}
			if r.IsTruthy() {
				out = append(out, e)
			}
		}
		return newList(h, out), nil
	})
	register("list#add", func(ctx Ctx, args []value.Value) (value.Value, error) {
		if err := arity(ctx.Heap(), "add", args, 2); err != nil {
			return value.Value{}, err
		}
		l := ctx.Heap().Get(args[0].AsHandle()).(*heap.List)
		l.Elems = append(l.Elems, args[1])
		return args[0], nil
	})
	register("list#remove", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "remove", args, 2); err != nil {
			return value.Value{}, err
		}
		l := h.Get(args[0].AsHandle()).(*heap.List)
		for i, e := range l.Elems {
			if vm.DeepEqual(h, e, args[1]) {
				l.Elems = append(l.Elems[:i], l.Elems[i+1:]...)
				return value.NewBool(true), nil
			}
		}
		return value.NewBool(false), nil
	})
	register("list#clear", func(ctx Ctx, args []value.Value) (value.Value, error) {
		l := ctx.Heap().Get(args[0].AsHandle()).(*heap.List)
		l.Elems = l.Elems[:0]
		return args[0], nil
	})
	register("list#reverse", func(ctx Ctx, args []value.Value) (value.Value, error) {
		l := ctx.Heap().Get(args[0].AsHandle()).(*heap.List)
		for i, j := 0, len(l.Elems)-1; i < j; i, j = i+1, j-1 {
			l.Elems[i], l.Elems[j] = l.Elems[j], l.Elems[i]
		}
		return args[0], nil
	})
	register("list#join", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "join", args, 2); err != nil {
			return value.Value{}, err
		}
		sep, err := wantStr(h, args[1])
		if err != nil {
			return value.Value{}, err
		}
		l := h.Get(args[0].AsHandle()).(*heap.List)
		var b strings.Builder
		for i, e := range l.Elems {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(textOf(h, e))
		}
		return newStr(h, b.String()), nil
	})
	register("list#sorted", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		l := h.Get(args[0].AsHandle()).(*heap.List)
		out := append([]value.Value(nil), l.Elems...)
		sort.SliceStable(out, func(i, j int) bool { return less(h, out[i], out[j]) })
		return newList(h, out), nil
	})
}

func less(h *heap.Heap, a, b value.Value) bool {
	switch a.Tag() {
	case value.TagInt:
		return a.AsInt() < b.AsInt()
	case value.TagFloat:
		return a.AsFloat() < b.AsFloat()
	case value.TagStr:
		return h.Get(a.AsHandle()).(heap.Str).S < h.Get(b.AsHandle()).(heap.Str).S
	default:
		return false
	}
}

func registerTupleMethods() {
	register("tuple#len", func(ctx Ctx, args []value.Value) (value.Value, error) {
		n, err := lengthOf(ctx.Heap(), args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(int32(n)), nil
	})
}

func registerDictMethods() {
	register("dict#len", func(ctx Ctx, args []value.Value) (value.Value, error) {
		n, err := lengthOf(ctx.Heap(), args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(int32(n)), nil
	})
	register("dict#has", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		d := h.Get(args[0].AsHandle()).(*heap.Dict)
		key, ok := heap.KeyFromValue(h, args[1])
		if !ok {
			return value.NewBool(false), nil
		}
		_, found := d.Get(key)
		return value.NewBool(found), nil
	})
	register("dict#keys", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		d := h.Get(args[0].AsHandle()).(*heap.Dict)
		out := make([]value.Value, 0, len(d.Keys()))
		for _, k := range d.Keys() {
			out = append(out, keyToValue(h, k))
		}
		return newList(h, out), nil
	})
	register("dict#remove", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		d := h.Get(args[0].AsHandle()).(*heap.Dict)
		key, ok := heap.KeyFromValue(h, args[1])
		if !ok {
			return value.Unit(), nil
		}
		d.Delete(key)
		return value.Unit(), nil
	})
}

func keyToValue(h *heap.Heap, k heap.DictKey) value.Value {
	if k.IsInt {
		return value.NewInt(int32(k.I))
	}
	return newStr(h, k.S)
}

func registerSetMethods() {
	register("set#len", func(ctx Ctx, args []value.Value) (value.Value, error) {
		n, err := lengthOf(ctx.Heap(), args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(int32(n)), nil
	})
	register("set#has", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s := h.Get(args[0].AsHandle()).(*heap.Set)
		key, ok := heap.KeyFromValue(h, args[1])
		if !ok {
			return value.NewBool(false), nil
		}
		return value.NewBool(s.Has(key)), nil
	})
	register("set#add", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s := h.Get(args[0].AsHandle()).(*heap.Set)
		key, ok := heap.KeyFromValue(h, args[1])
		if !ok {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "unsupported set element type")
		}
		s.Add(key)
		return args[0], nil
	})
}

// registerOptMethods covers both Option shapes: a some(x) receiver is an
// OptionSome heap object, a none receiver is the Unit singleton (it
// carries no payload, so it never needs an allocation). ResolveMethod
// qualifies both with the same "opt#" prefix.
func registerOptMethods() {
	isSome := func(v value.Value) bool { return v.Tag() == value.TagOptionSome }
	inner := func(h *heap.Heap, v value.Value) value.Value {
		return h.Get(v.AsHandle()).(*heap.OptionSome).Inner
	}

	register("opt#has", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return value.NewBool(isSome(args[0])), nil
	})
	register("opt#get", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if !isSome(args[0]) {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "get on none")
		}
		return inner(h, args[0]), nil
	})
	register("opt#or", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "or", args, 2); err != nil {
			return value.Value{}, err
		}
		if isSome(args[0]) {
			return inner(h, args[0]), nil
		}
		return args[1], nil
	})
	register("opt#map", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "map", args, 2); err != nil {
			return value.Value{}, err
		}
		if !isSome(args[0]) {
			return value.Unit(), nil
		}
		r, err := ctx.Call(args[1], []value.Value{inner(h, args[0])})
		if err != nil {
			return value.Value{}, err
		}
		return value.NewHandle(value.TagOptionSome, h.Alloc(&heap.OptionSome{Inner: r})), nil
	})
	register("opt#then", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "then", args, 2); err != nil {
			return value.Value{}, err
		}
		if !isSome(args[0]) {
			return value.Unit(), nil
		}
		return ctx.Call(args[1], []value.Value{inner(h, args[0])})
	})
	register("opt#each", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "each", args, 2); err != nil {
			return value.Value{}, err
		}
		if isSome(args[0]) {
			if _, err := ctx.Call(args[1], []value.Value{inner(h, args[0])}); err != nil {
				return value.Value{}, err
			}
		}
		return value.Unit(), nil
	})
	register("opt#filter", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "filter", args, 2); err != nil {
			return value.Value{}, err
		}
		if !isSome(args[0]) {
			return value.Unit(), nil
		}
		keep, err := ctx.Call(args[1], []value.Value{inner(h, args[0])})
		if err != nil {
			return value.Value{}, err
		}
		if keep.IsTruthy() {
			return args[0], nil
		}
		return value.Unit(), nil
	})
}

func registerStrMethods() {
	register("str#len", func(ctx Ctx, args []value.Value) (value.Value, error) {
		n, err := lengthOf(ctx.Heap(), args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(int32(n)), nil
	})
	register("str#upper", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		return newStr(h, strings.ToUpper(s)), nil
	})
	register("str#lower", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		return newStr(h, strings.ToLower(s)), nil
	})
	register("str#trim", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		return newStr(h, strings.TrimSpace(s)), nil
	})
	register("str#contains", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		sub, err := wantStr(h, args[1])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(strings.Contains(s, sub)), nil
	})
	register("str#split", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		sep, err := wantStr(h, args[1])
		if err != nil {
			return value.Value{}, err
		}
		parts := strings.Split(s, sep)
		out := make([]value.Value, len(parts))
		for i, p := range parts {
			out[i] = newStr(h, p)
		}
		return newList(h, out), nil
	})
	register("str#replace", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "replace", args, 3); err != nil {
			return value.Value{}, err
		}
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		from, err := wantStr(h, args[1])
		if err != nil {
			return value.Value{}, err
		}
		to, err := wantStr(h, args[2])
		if err != nil {
			return value.Value{}, err
		}
		return newStr(h, strings.ReplaceAll(s, from, to)), nil
	})
	register("str#to_int", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return Registry["parse_int"](ctx, args)
	})
	register("str#to_float", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return Registry["parse_float"](ctx, args)
	})
	register("str#starts_with", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return Registry["starts_with"](ctx, args)
	})
	register("str#ends_with", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return Registry["ends_with"](ctx, args)
	})
	register("str#chars", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		var out []value.Value
		g := uniseg.NewGraphemes(s)
		for g.Next() {
			out = append(out, newStr(h, g.Str()))
		}
		return newList(h, out), nil
	})
}
