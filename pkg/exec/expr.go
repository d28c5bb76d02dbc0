package exec

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// evalRooted evaluates each expression in order, pinning every result
// on the temp-roots stack. On success the caller owns popping
// len(result) roots once the values are reachable from the heap; on
// error everything this call pinned has already been popped.
func (in *Interp) evalRooted(exprs []ast.Expr) ([]value.Value, error) {
	out := make([]value.Value, len(exprs))
	for i, e := range exprs {
		v, err := in.eval(e)
		if err != nil {
			in.unroot(i)
			return nil, err
		}
		in.root(v)
		out[i] = v
	}
	return out, nil
}

func binOpFor(op string) (bytecode.Op, bool) {
	switch op {
	case "+":
		return bytecode.OpAdd, true
	case "-":
		return bytecode.OpSub, true
	case "*":
		return bytecode.OpMul, true
	case "/":
		return bytecode.OpDiv, true
	case "%":
		return bytecode.OpMod, true
	case "<":
		return bytecode.OpLt, true
	case ">":
		return bytecode.OpGt, true
	case "<=":
		return bytecode.OpLe, true
	case ">=":
		return bytecode.OpGe, true
	case "==":
		return bytecode.OpEq, true
	case "!=":
		return bytecode.OpNe, true
	default:
		return 0, false
	}
}

func trimEq(op string) string {
	if len(op) > 0 && op[len(op)-1] == '=' {
		return op[:len(op)-1]
	}
	return op
}

func (in *Interp) throwErr(kind, msg string) error {
	return &vm.ThrownError{Value: vm.NewError(in.host.Heap(), kind, msg)}
}

// root pins v on the host's temporary-roots stack. The executor holds
// intermediate values in Go locals, which the collector cannot scan, so
// any value that must survive a nested evaluation (which may allocate
// and trigger a GC) is pinned until unroot. Scalars are pinned too --
// cheaper than branching on the tag.
func (in *Interp) root(v value.Value) { in.host.PushTempRoot(v) }

func (in *Interp) unroot(n int) { in.host.PopTempRoots(n) }

// eval computes one expression. Every failure is a *vm.ThrownError
// carrying a thrown Value, so any enclosing try/catch (at the statement
// layer) can consume it.
func (in *Interp) eval(expr ast.Expr) (value.Value, error) {
	h := in.host.Heap()
	switch e := expr.(type) {
	case *ast.Ident:
		v, ok := in.host.Env().Get(e.Name)
		if !ok {
			f := in.undefined(e.Name)
			return value.Value{}, &vm.ThrownError{Value: f.Value}
		}
		return v, nil

	case *ast.IntLit:
		return value.NewInt(e.Value), nil
	case *ast.FloatLit:
		return value.NewFloat(e.Value), nil
	case *ast.BoolLit:
		return value.NewBool(e.Value), nil
	case *ast.UnitLit:
		return value.Unit(), nil
	case *ast.StrLit:
		return value.NewHandle(value.TagStr, h.Intern(e.Value)), nil

	case *ast.InterpString:
		var b strings.Builder
		for _, part := range e.Parts {
			if part.Expr == nil {
				b.WriteString(part.Literal)
				continue
			}
			v, err := in.eval(part.Expr)
			if err != nil {
				return value.Value{}, err
			}
			b.WriteString(vm.RenderValue(h, v))
		}
		id := h.Alloc(heap.Str{S: b.String()})
		return value.NewHandle(value.TagStr, id), nil

	case *ast.BinaryExpr:
		return in.evalBinary(e)

	case *ast.UnaryExpr:
		v, err := in.eval(e.X)
		if err != nil {
			return value.Value{}, err
		}
		switch e.Op {
		case "-":
			switch v.Tag() {
			case value.TagInt:
				return value.NewInt(-v.AsInt()), nil
			case value.TagFloat:
				return value.NewFloat(-v.AsFloat()), nil
			default:
				return value.Value{}, in.throwErr(vm.ErrNotANumber, "cannot negate a non-number")
			}
		case "!":
			return value.NewBool(!v.IsTruthy()), nil
		default:
			return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "unknown unary operator "+e.Op)
		}

	case *ast.CallExpr:
		callee, err := in.eval(e.Callee)
		if err != nil {
			return value.Value{}, err
		}
		in.root(callee)
		args := make([]value.Value, len(e.Args))
		for i, a := range e.Args {
			v, err := in.eval(a)
			if err != nil {
				in.unroot(1 + i)
				return value.Value{}, err
			}
			in.root(v)
			args[i] = v
		}
		in.unroot(1 + len(args))
		return in.host.CallValue(callee, args)

	case *ast.MethodCallExpr:
		return in.evalMethodCall(e)

	case *ast.MemberExpr:
		recv, err := in.eval(e.X)
		if err != nil {
			return value.Value{}, err
		}
		return in.getMember(recv, e.Name)

	case *ast.IndexExpr:
		recv, err := in.eval(e.X)
		if err != nil {
			return value.Value{}, err
		}
		in.root(recv)
		idx, err := in.eval(e.Index)
		in.unroot(1)
		if err != nil {
			return value.Value{}, err
		}
		return in.getIndex(recv, idx)

	case *ast.ListLit:
		elems, err := in.evalRooted(e.Elems)
		if err != nil {
			return value.Value{}, err
		}
		defer in.unroot(len(elems))
		return value.NewHandle(value.TagList, h.Alloc(&heap.List{Elems: elems})), nil

	case *ast.TupleLit:
		elems, err := in.evalRooted(e.Elems)
		if err != nil {
			return value.Value{}, err
		}
		defer in.unroot(len(elems))
		return value.NewHandle(value.TagTuple, h.Alloc(&heap.Tuple{Elems: elems})), nil

	case *ast.DictLit:
		d := heap.NewDict()
		rooted := 0
		defer func() { in.unroot(rooted) }()
		for _, entry := range e.Entries {
			k, err := in.eval(entry.Key)
			if err != nil {
				return value.Value{}, err
			}
			key, ok := heap.KeyFromValue(h, k)
			if !ok {
				return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "unsupported dict key type")
			}
			v, err := in.eval(entry.Value)
			if err != nil {
				return value.Value{}, err
			}
			// d is a Go-side object until the final Alloc; its values
			// are invisible to the collector, so they stay pinned.
			in.root(v)
			rooted++
			d.Insert(key, v)
		}
		return value.NewHandle(value.TagDict, h.Alloc(d)), nil

	case *ast.SetLit:
		s := heap.NewSet()
		for _, el := range e.Elems {
			v, err := in.eval(el)
			if err != nil {
				return value.Value{}, err
			}
			key, ok := heap.KeyFromValue(h, v)
			if !ok {
				return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "unsupported set element type")
			}
			s.Add(key)
		}
		return value.NewHandle(value.TagSet, h.Alloc(s)), nil

	case *ast.RangeExpr:
		start, err := in.eval(e.Start)
		if err != nil {
			return value.Value{}, err
		}
		end, err := in.eval(e.End)
		if err != nil {
			return value.Value{}, err
		}
		if start.Tag() != value.TagInt || end.Tag() != value.TagInt {
			return value.Value{}, in.throwErr(vm.ErrNotAnInt, "range bounds must be ints")
		}
		r := &heap.Range{Start: int64(start.AsInt()), End: int64(end.AsInt()), Step: 1, Inclusive: e.Inclusive}
		return value.NewHandle(value.TagRange, h.Alloc(r)), nil

	case *ast.FuncLit:
		return in.makeClosure("<lambda>", e.Params, e.Body), nil

	case *ast.StructInitExpr:
		return in.evalStructInit(e)

	case *ast.EnumCtorExpr:
		return in.evalEnumCtor(e)

	case *ast.MatchExpr:
		return in.evalMatch(e)

	default:
		return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "unsupported expression")
	}
}

func (in *Interp) evalBinary(e *ast.BinaryExpr) (value.Value, error) {
	// && and || do not short-circuit: like every other operator, both
	// sides are evaluated.
	if e.Op == "&&" || e.Op == "||" {
		l, err := in.eval(e.Left)
		if err != nil {
			return value.Value{}, err
		}
		// Mirror the VM's OpAnd/OpOr exactly: both operands evaluate
		// (the compiler emits non-short-circuit And/Or ops), truthiness
		// decides the result.
		r, err := in.eval(e.Right)
		if err != nil {
			return value.Value{}, err
		}
		if e.Op == "&&" {
			return value.NewBool(l.IsTruthy() && r.IsTruthy()), nil
		}
		return value.NewBool(l.IsTruthy() || r.IsTruthy()), nil
	}

	op, ok := binOpFor(e.Op)
	if !ok {
		return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "unknown binary operator "+e.Op)
	}
	l, err := in.eval(e.Left)
	if err != nil {
		return value.Value{}, err
	}
	in.root(l)
	r, err := in.eval(e.Right)
	in.unroot(1)
	if err != nil {
		return value.Value{}, err
	}
	switch op {
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		return vm.Arith(in.host.Heap(), op, l, r)
	default:
		return vm.Compare(in.host.Heap(), op, l, r)
	}
}

func (in *Interp) evalMethodCall(e *ast.MethodCallExpr) (value.Value, error) {
	recv, err := in.eval(e.Receiver)
	if err != nil {
		return value.Value{}, err
	}
	in.root(recv)
	args, err := in.evalRooted(e.Args)
	if err != nil {
		in.unroot(1)
		return value.Value{}, err
	}
	in.unroot(1 + len(args))

	// A struct receiver dispatches through the mangled module-scope
	// binding first, so user methods shadow nothing and need no
	// registry beyond the environment itself.
	if recv.Tag() == value.TagStruct {
		s := in.host.Heap().Get(recv.AsHandle()).(*heap.Struct)
		if fn, ok := in.host.Env().Get("__method__" + s.TypeName + "__" + e.Method); ok {
			return in.host.CallValue(fn, append([]value.Value{recv}, args...))
		}
	}

	fn, ok := in.host.ResolveMethod(recv, e.Method)
	if !ok {
		return value.Value{}, in.throwErr(vm.ErrUndefinedMethod,
			"undefined method "+e.Method+" on "+recv.Tag().String())
	}
	return in.host.CallValue(fn, append([]value.Value{recv}, args...))
}

func (in *Interp) evalStructInit(e *ast.StructInitExpr) (value.Value, error) {
	h := in.host.Heap()
	decl, ok := in.structs[e.TypeName]
	if !ok {
		return value.Value{}, in.throwErr(vm.ErrTypeMismatch, "undefined struct "+e.TypeName)
	}

	s := &heap.Struct{TypeName: decl.Name, Fields: make(map[string]value.Value), TyHash: in.tyHash[decl.Name]}
	for _, f := range decl.Fields {
		s.Order = append(s.Order, f.Name)
		s.Fields[f.Name] = value.Unit()
	}

	rooted := 0
	defer func() { in.unroot(rooted) }()

	if e.Spread != nil {
		base, err := in.eval(e.Spread)
		if err != nil {
			return value.Value{}, err
		}
		if base.Tag() != value.TagStruct {
			return value.Value{}, in.throwErr(vm.ErrNotAStruct, "struct spread source is not a struct")
		}
		in.root(base)
		rooted++
		bs := h.Get(base.AsHandle()).(*heap.Struct)
		for _, name := range s.Order {
			if v, ok := bs.Fields[name]; ok {
				s.Fields[name] = v
			}
		}
	}

	for _, entry := range e.Fields {
		id, ok := entry.Key.(*ast.Ident)
		if !ok {
			return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "struct field name must be an identifier")
		}
		if _, declared := s.Fields[id.Name]; !declared {
			return value.Value{}, in.throwErr(vm.ErrKeyNotFound, "struct "+decl.Name+" has no field "+id.Name)
		}
		v, err := in.eval(entry.Value)
		if err != nil {
			return value.Value{}, err
		}
		in.root(v)
		rooted++
		s.Fields[id.Name] = v
	}

	return value.NewHandle(value.TagStruct, h.Alloc(s)), nil
}

func (in *Interp) evalEnumCtor(e *ast.EnumCtorExpr) (value.Value, error) {
	h := in.host.Heap()

	args, err := in.evalRooted(e.Args)
	if err != nil {
		return value.Value{}, err
	}
	defer in.unroot(len(args))

	// Option is not a declared enum: some(x) has a dedicated unary heap
	// representation and none is the unit singleton.
	if e.TypeName == "Option" {
		switch e.Variant {
		case "some":
			if len(args) != 1 {
				return value.Value{}, in.throwErr(vm.ErrArityMismatch, "Option::some takes exactly 1 argument")
			}
			return value.NewHandle(value.TagOptionSome, h.Alloc(&heap.OptionSome{Inner: args[0]})), nil
		case "none":
			if len(args) != 0 {
				return value.Value{}, in.throwErr(vm.ErrArityMismatch, "Option::none takes no arguments")
			}
			return value.Unit(), nil
		}
	}

	decl, ok := in.enums[e.TypeName]
	if !ok {
		// A `Ty::name(...)` whose Ty is a struct is a static-method call.
		if _, isStruct := in.structs[e.TypeName]; isStruct {
			if fn, found := in.host.Env().Get("__static__" + e.TypeName + "__" + e.Variant); found {
				return in.host.CallValue(fn, args)
			}
			return value.Value{}, in.throwErr(vm.ErrUndefinedMethod, e.TypeName+" has no static method "+e.Variant)
		}
		return value.Value{}, in.throwErr(vm.ErrTypeMismatch, "undefined enum "+e.TypeName)
	}
	for _, v := range decl.Variants {
		if v.Name == e.Variant {
			if len(args) != v.Arity {
				return value.Value{}, in.throwErr(vm.ErrArityMismatch,
					e.TypeName+"::"+e.Variant+" takes "+itoa(v.Arity)+" argument(s)")
			}
			id := h.Alloc(&heap.Enum{TypeName: decl.Name, Variant: v.Name, Args: args})
			return value.NewHandle(value.TagEnum, id), nil
		}
	}
	return value.Value{}, in.throwErr(vm.ErrTypeMismatch, "enum "+e.TypeName+" has no variant "+e.Variant)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// --- member / index access ---

func (in *Interp) getMember(recv value.Value, name string) (value.Value, error) {
	h := in.host.Heap()
	switch recv.Tag() {
	case value.TagStruct:
		s := h.Get(recv.AsHandle()).(*heap.Struct)
		v, ok := s.Fields[name]
		if !ok {
			return value.Value{}, in.throwErr(vm.ErrKeyNotFound, "no such field: "+name)
		}
		return v, nil
	case value.TagDict:
		d := h.Get(recv.AsHandle()).(*heap.Dict)
		v, ok := d.Get(heap.DictKey{S: name})
		if !ok {
			return value.Value{}, in.throwErr(vm.ErrKeyNotFound, "key not found: "+name)
		}
		return v, nil
	default:
		return value.Value{}, in.throwErr(vm.ErrNotAStruct, "member access on non-struct")
	}
}

func (in *Interp) assignMember(recv value.Value, name string, v value.Value) error {
	h := in.host.Heap()
	switch recv.Tag() {
	case value.TagStruct:
		s := h.Get(recv.AsHandle()).(*heap.Struct)
		if _, ok := s.Fields[name]; !ok {
			return in.throwErr(vm.ErrKeyNotFound, "no such field: "+name)
		}
		s.Fields[name] = v
		return nil
	case value.TagDict:
		d := h.Get(recv.AsHandle()).(*heap.Dict)
		d.Insert(heap.DictKey{S: name}, v)
		return nil
	default:
		return in.throwErr(vm.ErrNotAStruct, "member assignment on non-struct")
	}
}

func (in *Interp) getIndex(recv, idx value.Value) (value.Value, error) {
	h := in.host.Heap()
	switch recv.Tag() {
	case value.TagList:
		l := h.Get(recv.AsHandle()).(*heap.List)
		i, err := in.indexInto(len(l.Elems), idx)
		if err != nil {
			return value.Value{}, err
		}
		return l.Elems[i], nil
	case value.TagTuple:
		t := h.Get(recv.AsHandle()).(*heap.Tuple)
		i, err := in.indexInto(len(t.Elems), idx)
		if err != nil {
			return value.Value{}, err
		}
		return t.Elems[i], nil
	case value.TagDict:
		d := h.Get(recv.AsHandle()).(*heap.Dict)
		key, ok := heap.KeyFromValue(h, idx)
		if !ok {
			return value.Value{}, in.throwErr(vm.ErrInvalidArgument, "unsupported dict key type")
		}
		v, ok := d.Get(key)
		if !ok {
			return value.Value{}, in.throwErr(vm.ErrKeyNotFound, "key not found")
		}
		return v, nil
	case value.TagStr:
		s := h.Get(recv.AsHandle()).(heap.Str).S
		runes := []rune(s)
		i, err := in.indexInto(len(runes), idx)
		if err != nil {
			return value.Value{}, err
		}
		id := h.Alloc(heap.Str{S: string(runes[i])})
		return value.NewHandle(value.TagStr, id), nil
	default:
		return value.Value{}, in.throwErr(vm.ErrTypeMismatch, "value is not indexable")
	}
}

func (in *Interp) indexInto(length int, idx value.Value) (int, error) {
	if idx.Tag() != value.TagInt {
		return 0, in.throwErr(vm.ErrNotAnInt, "index must be an int")
	}
	i := int(idx.AsInt())
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, in.throwErr(vm.ErrIndexOutOfBounds, "index out of bounds")
	}
	return i, nil
}

func (in *Interp) assignIndex(recv, idx, v value.Value) error {
	h := in.host.Heap()
	switch recv.Tag() {
	case value.TagList:
		l := h.Get(recv.AsHandle()).(*heap.List)
		i, err := in.indexInto(len(l.Elems), idx)
		if err != nil {
			return err
		}
		l.Elems[i] = v
		return nil
	case value.TagDict:
		d := h.Get(recv.AsHandle()).(*heap.Dict)
		key, ok := heap.KeyFromValue(h, idx)
		if !ok {
			return in.throwErr(vm.ErrInvalidArgument, "unsupported dict key type")
		}
		d.Insert(key, v)
		return nil
	default:
		return in.throwErr(vm.ErrTypeMismatch, "value does not support index assignment")
	}
}

// iterItems materializes src as a slice of iteration values: list and
// tuple elements, dict keys, set members, range steps, or a string's
// grapheme clusters.
func (in *Interp) iterItems(src value.Value) ([]value.Value, error) {
	h := in.host.Heap()
	switch src.Tag() {
	case value.TagList:
		l := h.Get(src.AsHandle()).(*heap.List)
		return append([]value.Value(nil), l.Elems...), nil
	case value.TagTuple:
		t := h.Get(src.AsHandle()).(*heap.Tuple)
		return append([]value.Value(nil), t.Elems...), nil
	case value.TagDict:
		d := h.Get(src.AsHandle()).(*heap.Dict)
		out := make([]value.Value, 0, d.Len())
		for _, k := range d.Keys() {
			out = append(out, dictKeyValue(h, k))
		}
		return out, nil
	case value.TagSet:
		s := h.Get(src.AsHandle()).(*heap.Set)
		out := make([]value.Value, 0, s.Len())
		for _, k := range s.Keys() {
			out = append(out, dictKeyValue(h, k))
		}
		return out, nil
	case value.TagRange:
		r := h.Get(src.AsHandle()).(*heap.Range)
		var out []value.Value
		if r.Step > 0 {
			for cur := r.Start; cur < r.End || (r.Inclusive && cur == r.End); cur += r.Step {
				out = append(out, value.NewInt(int32(cur)))
			}
		} else if r.Step < 0 {
			for cur := r.Start; cur > r.End || (r.Inclusive && cur == r.End); cur += r.Step {
				out = append(out, value.NewInt(int32(cur)))
			}
		}
		return out, nil
	case value.TagStr:
		s := h.Get(src.AsHandle()).(heap.Str).S
		var out []value.Value
		g := uniseg.NewGraphemes(s)
		for g.Next() {
			out = append(out, value.NewHandle(value.TagStr, h.Intern(g.Str())))
		}
		return out, nil
	default:
		return nil, in.throwErr(vm.ErrInvalidIteratorType, "value is not iterable")
	}
}

func dictKeyValue(h *heap.Heap, k heap.DictKey) value.Value {
	if k.IsInt {
		return value.NewInt(int32(k.I))
	}
	return value.NewHandle(value.TagStr, h.Intern(k.S))
}
