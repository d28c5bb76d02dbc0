package builtin

import (
	"math"
	gort "runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// GlobalNames is the published list of every unqualified (non-method)
// builtin. A consistency test asserts the registry and this list agree,
// so adding a builtin without updating the list (or vice versa) fails in
// CI rather than silently drifting.
var GlobalNames = []string{
	"print", "println",
	"gen_id", "gc", "open", "input",
	"time_unix", "time_millis", "mono_micros", "mono_nanos",
	"abs", "max", "min", "rand",
	"parse_int", "parse_float", "to_text",
	"sin", "cos", "tan", "sqrt", "log", "pow",
	"contains", "starts_with", "ends_with",
	"process_rss",
	"builder_new", "builder_new_cap", "builder_push", "builder_finalize",
	"os_args",
	"len", "type_of", "humanize_bytes", "humanize_int",
	"__builtin_assert", "__builtin_assert_eq",
	"__builtin_enum_variant", "__builtin_enum_arg", "__builtin_enum_arity",
	"__set_from_list", "__heap_stats",
}

func wantNum(h *heap.Heap, name string, v value.Value) (float64, error) {
	switch v.Tag() {
	case value.TagInt:
		return float64(v.AsInt()), nil
	case value.TagFloat:
		return v.AsFloat(), nil
	default:
		return 0, throw(h, vm.ErrNotANumber, name+" expects a number")
	}
}

// numResult preserves int-ness: f came from an int argument and is still
// whole, so hand back an int.
func numResult(wasInt bool, f float64) value.Value {
	if wasInt && f == float64(int32(f)) {
		return value.NewInt(int32(f))
	}
	return value.NewFloat(f)
}

func mathUnary(name string, fn func(float64) float64) Func {
	return func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, name, args, 1); err != nil {
			return value.Value{}, err
		}
		x, err := wantNum(h, name, args[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(fn(x)), nil
	}
}

func init() {
	register("gc", func(ctx Ctx, args []value.Value) (value.Value, error) {
		stats := ctx.ForceGC()
		return value.NewInt(int32(stats.Freed)), nil
	})

	register("abs", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "abs", args, 1); err != nil {
			return value.Value{}, err
		}
		x, err := wantNum(h, "abs", args[0])
		if err != nil {
			return value.Value{}, err
		}
		return numResult(args[0].Tag() == value.TagInt, math.Abs(x)), nil
	})

	register("max", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return minMax(ctx, "max", args, func(a, b float64) bool { return a > b })
	})
	register("min", func(ctx Ctx, args []value.Value) (value.Value, error) {
		return minMax(ctx, "min", args, func(a, b float64) bool { return a < b })
	})

	register("parse_int", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "parse_int", args, 1); err != nil {
			return value.Value{}, err
		}
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		n, perr := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if perr != nil {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "parse_int: not an integer: "+s)
		}
		return value.NewInt(int32(n)), nil
	})

	register("parse_float", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "parse_float", args, 1); err != nil {
			return value.Value{}, err
		}
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		f, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr != nil {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "parse_float: not a number: "+s)
		}
		return value.NewFloat(f), nil
	})

	register("to_text", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "to_text", args, 1); err != nil {
			return value.Value{}, err
		}
		return newStr(h, textOf(h, args[0])), nil
	})

	register("sin", mathUnary("sin", math.Sin))
	register("cos", mathUnary("cos", math.Cos))
	register("tan", mathUnary("tan", math.Tan))
	register("sqrt", mathUnary("sqrt", math.Sqrt))
	register("log", mathUnary("log", math.Log))

	register("pow", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "pow", args, 2); err != nil {
			return value.Value{}, err
		}
		x, err := wantNum(h, "pow", args[0])
		if err != nil {
			return value.Value{}, err
		}
		y, err := wantNum(h, "pow", args[1])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(math.Pow(x, y)), nil
	})

	register("contains", strPredicate("contains", strings.Contains))
	register("starts_with", strPredicate("starts_with", strings.HasPrefix))
	register("ends_with", strPredicate("ends_with", strings.HasSuffix))

	register("process_rss", func(ctx Ctx, args []value.Value) (value.Value, error) {
		var ms gort.MemStats
		gort.ReadMemStats(&ms)
		return value.NewFloat(float64(ms.Sys)), nil
	})

	register("input", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if len(args) == 1 {
			prompt, err := wantStr(h, args[0])
			if err != nil {
				return value.Value{}, err
			}
			ctx.Print(prompt)
		}
		line, ok := ctx.ReadLine()
		if !ok {
			return value.Unit(), nil
		}
		return newStr(h, line), nil
	})

	register("os_args", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		osArgs := ctx.OSArgs()
		out := make([]value.Value, len(osArgs))
		for i, a := range osArgs {
			out[i] = newStr(h, a)
		}
		return newList(h, out), nil
	})

	register("open", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "open", args, 1); err != nil {
			return value.Value{}, err
		}
		path, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		if _, serr := ctx.FS().Metadata(path); serr != nil {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "open: no such file: "+path)
		}
		id := h.Alloc(&heap.File{Path: path})
		return value.NewHandle(value.TagFile, id), nil
	})

	register("file#read", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		f := h.Get(args[0].AsHandle()).(*heap.File)
		if f.Closed {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "read from closed file: "+f.Path)
		}
		text, err := ctx.FS().ReadToString(f.Path)
		if err != nil {
			return value.Value{}, throw(h, vm.ErrInvalidArgument, "read failed: "+f.Path)
		}
		return newStr(h, text), nil
	})

	register("file#close", func(ctx Ctx, args []value.Value) (value.Value, error) {
		f := ctx.Heap().Get(args[0].AsHandle()).(*heap.File)
		f.Closed = true
		return value.Unit(), nil
	})

	register("builder_new", func(ctx Ctx, args []value.Value) (value.Value, error) {
		id := ctx.Heap().Alloc(heap.NewBuilder(0))
		return value.NewHandle(value.TagBuilder, id), nil
	})

	register("builder_new_cap", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "builder_new_cap", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagInt {
			return value.Value{}, throw(h, vm.ErrNotAnInt, "builder_new_cap expects an int")
		}
		id := h.Alloc(heap.NewBuilder(int(args[0].AsInt())))
		return value.NewHandle(value.TagBuilder, id), nil
	})

	register("builder_push", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "builder_push", args, 2); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagBuilder {
			return value.Value{}, throw(h, vm.ErrTypeMismatch, "builder_push expects a builder")
		}
		b := h.Get(args[0].AsHandle()).(*heap.Builder)
		b.Push(textOf(h, args[1]))
		return args[0], nil
	})

	register("builder_finalize", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "builder_finalize", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagBuilder {
			return value.Value{}, throw(h, vm.ErrTypeMismatch, "builder_finalize expects a builder")
		}
		b := h.Get(args[0].AsHandle()).(*heap.Builder)
		id := h.Alloc(heap.Str{S: b.String()})
		return value.NewHandle(value.TagStr, id), nil
	})

	register("__builtin_assert", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if len(args) < 1 {
			return value.Value{}, throw(h, vm.ErrArityMismatch, "__builtin_assert expects at least 1 argument")
		}
		if !args[0].IsTruthy() {
			msg := "assertion failed"
			if len(args) > 1 {
				msg = msg + ": " + textOf(h, args[1])
			}
			return value.Value{}, throw(h, vm.ErrInvalidArgument, msg)
		}
		return value.Unit(), nil
	})

	register("__builtin_assert_eq", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "__builtin_assert_eq", args, 2); err != nil {
			return value.Value{}, err
		}
		if !vm.DeepEqual(h, args[0], args[1]) {
			return value.Value{}, throw(h, vm.ErrInvalidArgument,
				"assertion failed: "+textOf(h, args[0])+" != "+textOf(h, args[1]))
		}
		return value.Unit(), nil
	})

	register("__set_from_list", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, "__set_from_list", args, 1); err != nil {
			return value.Value{}, err
		}
		if args[0].Tag() != value.TagList {
			return value.Value{}, throw(h, vm.ErrNotAList, "__set_from_list expects a list")
		}
		l := h.Get(args[0].AsHandle()).(*heap.List)
		s := heap.NewSet()
		for _, e := range l.Elems {
			k, ok := heap.KeyFromValue(h, e)
			if !ok {
				return value.Value{}, throw(h, vm.ErrInvalidArgument, "unsupported set element type")
			}
			s.Add(k)
		}
		return value.NewHandle(value.TagSet, h.Alloc(s)), nil
	})

	register("__heap_stats", func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		var ms gort.MemStats
		gort.ReadMemStats(&ms)
		s := &heap.Struct{
			TypeName: "HeapStats",
			Fields: map[string]value.Value{
				"live":    value.NewInt(int32(h.LiveCount())),
				"free":    value.NewInt(int32(h.FreeCount())),
				"process": newStr(h, humanize.Bytes(ms.Sys)),
			},
			Order: []string{"live", "free", "process"},
		}
		return value.NewHandle(value.TagStruct, h.Alloc(s)), nil
	})
}

func minMax(ctx Ctx, name string, args []value.Value, pick func(a, b float64) bool) (value.Value, error) {
	h := ctx.Heap()
	if len(args) < 2 {
		return value.Value{}, throw(h, vm.ErrArityMismatch, name+" expects at least 2 arguments")
	}
	best := args[0]
	bestF, err := wantNum(h, name, best)
	if err != nil {
		return value.Value{}, err
	}
	for _, a := range args[1:] {
		f, err := wantNum(h, name, a)
		if err != nil {
			return value.Value{}, err
		}
		if pick(f, bestF) {
			best, bestF = a, f
		}
	}
	return best, nil
}

func strPredicate(name string, fn func(s, sub string) bool) Func {
	return func(ctx Ctx, args []value.Value) (value.Value, error) {
		h := ctx.Heap()
		if err := arity(h, name, args, 2); err != nil {
			return value.Value{}, err
		}
		s, err := wantStr(h, args[0])
		if err != nil {
			return value.Value{}, err
		}
		sub, err := wantStr(h, args[1])
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(fn(s, sub)), nil
	}
}
