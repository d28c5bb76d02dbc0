package vm

import (
	"fmt"

	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
)

// VM is one function activation's bytecode dispatch loop: its own eval
// stack, iterator stack, and handler stack. A user-function call starts a
// fresh VM sharing the same Bytecode and Host rather than recursing
// within a single VM's stack, so every nested call contributes its own
// entry to the host's active-VM registry (see runtime.Runtime.activeVMs)
// -- that registry, not a single VM's stack, is what the GC roots
// collector walks.
type VM struct {
	bc   *bytecode.Bytecode
	host Host

	stack    []value.Value
	iters    []IterState
	handlers []Handler
	pending  Pending

	// Inline caches are keyed by the call site's instruction offset
	// (stable for the lifetime of one FunctionProto) and created lazily,
	// since most call sites in a typical function body never need one.
	methodICs map[int]*MethodICSlot
	fieldICs  map[int]*ICSlot

	ip int
}

// New builds a VM bound to bc and host, ready to run any of bc's
// functions.
func New(bc *bytecode.Bytecode, host Host) *VM {
	return &VM{
		bc:        bc,
		host:      host,
		methodICs: make(map[int]*MethodICSlot),
		fieldICs:  make(map[int]*ICSlot),
	}
}

// EvalStack exposes the live stack for GC root collection.
func (vm *VM) EvalStack() []value.Value { return vm.stack }

// GCRoots returns every Value this activation holds that the collector
// must treat as live: the eval stack, any value parked in a pending
// throw, and the contents of active for-each iterators. The per-site
// inline caches are not roots; ClearCaches empties them after a sweep.
func (vm *VM) GCRoots() []value.Value {
	roots := append([]value.Value(nil), vm.stack...)
	if vm.pending.Kind == PendingThrow {
		roots = append(roots, vm.pending.Value)
	}
	// Iterator state references objects that may have no other live
	// handle once ForEachInit pops the source off the stack.
	for i := range vm.iters {
		it := &vm.iters[i]
		if l, ok := it.ListID.(*heap.List); ok {
			roots = append(roots, l.Elems...)
		}
		if it.Dict != nil {
			for _, k := range it.Dict.Keys() {
				if v, ok := it.Dict.Get(k); ok {
					roots = append(roots, v)
				}
			}
		}
	}
	return roots
}

// ClearCaches drops every inline-cache entry this activation holds.
// Mandatory after every sweep: both cache kinds memoize Values whose
// handles may now name freed (or recycled) slots.
func (vm *VM) ClearCaches() {
	for _, s := range vm.methodICs {
		s.Invalidate()
	}
	for _, s := range vm.fieldICs {
		s.Invalidate()
	}
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop(op bytecode.Op) (value.Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return value.Value{}, stackUnderflow(vm.ip, op)
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

func (vm *VM) top() value.Value { return vm.stack[len(vm.stack)-1] }

// Run executes the compiled unit's entry function (index bc.Entry, the
// module's top-level code).
func (vm *VM) Run() (value.Value, error) {
	return vm.runProto(vm.bc.Functions[vm.bc.Entry])
}

// RunFunction executes a specific function, used by the runtime's
// CallValue for a FuncBytecode callable.
func (vm *VM) RunFunction(proto *bytecode.FunctionProto) (value.Value, error) {
	return vm.runProto(proto)
}

func (vm *VM) runProto(proto *bytecode.FunctionProto) (value.Value, error) {
	code := proto.Code
	vm.ip = 0
	var result value.Value

	for vm.ip < len(code) {
		if len(vm.stack)%256 == 0 {
			vm.host.MaybeGC(vm.stack)
		}

		inst := code[vm.ip]
		nextIP := vm.ip + 1

		switch inst.Op {
		case bytecode.OpConstInt:
			vm.push(value.NewInt(vm.bc.Constants[inst.Operand].Int))
		case bytecode.OpConstFloat:
			vm.push(value.NewFloat(vm.bc.Constants[inst.Operand].Float))
		case bytecode.OpConstBool:
			vm.push(value.NewBool(inst.Operand != 0))
		case bytecode.OpConstNull:
			vm.push(value.Unit())
		case bytecode.OpConstStr:
			id := vm.host.Heap().Intern(vm.bc.Constants[inst.Operand].Str)
			vm.push(value.NewHandle(value.TagStr, id))
		case bytecode.OpPop:
			if _, err := vm.pop(inst.Op); err != nil {
				return value.Value{}, err
			}
		case bytecode.OpDup:
			if len(vm.stack) == 0 {
				return value.Value{}, stackUnderflow(vm.ip, inst.Op)
			}
			vm.push(vm.top())

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
			if err := vm.binArith(inst.Op); err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			}
		case bytecode.OpLt, bytecode.OpGt, bytecode.OpLe, bytecode.OpGe, bytecode.OpEq, bytecode.OpNe:
			if err := vm.binCompare(inst.Op); err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			}
		case bytecode.OpAnd, bytecode.OpOr:
			b, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			a, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if inst.Op == bytecode.OpAnd {
				vm.push(value.NewBool(a.IsTruthy() && b.IsTruthy()))
			} else {
				vm.push(value.NewBool(a.IsTruthy() || b.IsTruthy()))
			}
		case bytecode.OpNot:
			a, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			vm.push(value.NewBool(!a.IsTruthy()))
		case bytecode.OpNeg:
			a, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			switch a.Tag() {
			case value.TagInt:
				vm.push(value.NewInt(-a.AsInt()))
			case value.TagFloat:
				vm.push(value.NewFloat(-a.AsFloat()))
			default:
				thrown := NewError(vm.host.Heap(), ErrNotANumber, "cannot negate a non-number")
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
			}

		case bytecode.OpJump:
			nextIP = int(inst.Operand)
		case bytecode.OpJumpIfFalse:
			cond, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if cond.Tag() != value.TagBool {
				thrown := NewError(vm.host.Heap(), ErrInvalidConditionType, "condition must be a bool, got "+cond.Tag().String())
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
			} else if !cond.AsBool() {
				nextIP = int(inst.Operand)
			}

		case bytecode.OpReturn:
			if len(vm.stack) > 0 {
				result, _ = vm.pop(inst.Op)
			} else {
				result = value.Unit()
			}
			return result, nil

		case bytecode.OpThrow:
			thrown, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if ip, handled := vm.dispatchThrow(thrown); handled {
				nextIP = ip
			} else {
				return value.Value{}, &ThrownError{Value: thrown}
			}

		case bytecode.OpPushHandler:
			catchIP, finallyIP := bytecode.UnpackHandlerTargets(inst.Operand)
			vm.handlers = append(vm.handlers, Handler{
				CatchIP:   catchIP,
				FinallyIP: finallyIP,
				StackLen:  len(vm.stack),
				IterLen:   len(vm.iters),
				EnvDepth:  vm.host.Env().Depth(),
			})
		case bytecode.OpPopHandler:
			if len(vm.handlers) > 0 {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}
		case bytecode.OpRunPending:
			if vm.pending.Kind == PendingThrow {
				v := vm.pending.Value
				vm.pending = Pending{}
				if ip, handled := vm.dispatchThrow(v); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: v}
				}
			}

		case bytecode.OpBreak, bytecode.OpContinue:
			// Structural control flow: the compiler resolves break/continue
			// to direct jumps at compile time, so these ops never reach the
			// VM in well-formed bytecode. Kept as named ops (rather than
			// folded away) so disassembly output stays readable.
			return value.Value{}, fmt.Errorf("internal: unresolved %v at ip=%d", inst.Op, vm.ip)

		case bytecode.OpLoadName:
			name := vm.bc.Constants[inst.Operand].Str
			v, ok := vm.host.Env().Get(name)
			if !ok {
				thrown := NewError(vm.host.Heap(), ErrUndefinedIdentifier, vm.undefinedMsg(name))
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
			} else {
				vm.push(v)
			}
		case bytecode.OpStoreName:
			name := vm.bc.Constants[inst.Operand].Str
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			switch vm.host.Env().Set(name, v) {
			case scope.Assigned:
			case scope.Immutable:
				thrown := NewError(vm.host.Heap(), ErrImmutableAssignment, "cannot assign to immutable binding: "+name)
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
			case scope.NotFound:
				if vm.host.StrictVars() {
					thrown := NewError(vm.host.Heap(), ErrUndefinedIdentifier, vm.undefinedMsg(name))
					if ip, handled := vm.dispatchThrow(thrown); handled {
						nextIP = ip
					} else {
						return value.Value{}, &ThrownError{Value: thrown}
					}
				} else {
					vm.host.Env().Define(name, v, true)
				}
			}
		case bytecode.OpDefineName:
			nameIdx, mutable := bytecode.UnpackDefine(inst.Operand)
			name := vm.bc.Constants[nameIdx].Str
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			vm.host.Env().Define(name, v, mutable)
		case bytecode.OpLoadLocal:
			vm.push(vm.host.Locals().GetByIndex(int(inst.Operand)))
		case bytecode.OpStoreLocal:
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			vm.host.Locals().SetByIndex(int(inst.Operand), v)
		case bytecode.OpLoadLocalDepth:
			depth, idx := bytecode.UnpackDepthIndex(inst.Operand)
			vm.push(vm.host.Locals().GetByDepthIndex(depth, idx))
		case bytecode.OpIncLocal:
			cur := vm.host.Locals().GetByIndex(int(inst.Operand))
			if cur.Tag() == value.TagInt {
				vm.host.Locals().SetByIndex(int(inst.Operand), value.NewInt(cur.AsInt()+1))
			} else {
				vm.host.Locals().SetByIndex(int(inst.Operand), value.NewFloat(cur.AsFloat()+1))
			}
		case bytecode.OpAddAssignName:
			name := vm.bc.Constants[inst.Operand].Str
			delta, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			cur, ok := vm.host.Env().Get(name)
			if !ok {
				return value.Value{}, fmt.Errorf("internal: AddAssignName on undefined %s", name)
			}
			sum, err := AddValues(vm.host.Heap(), cur, delta)
			if err != nil {
				return value.Value{}, err
			}
			vm.host.Env().Set(name, sum)
		case bytecode.OpAddAssignLocal:
			delta, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			idx := int(inst.Operand)
			sum, err := AddValues(vm.host.Heap(), vm.host.Locals().GetByIndex(idx), delta)
			if err != nil {
				return value.Value{}, err
			}
			vm.host.Locals().SetByIndex(idx, sum)

		case bytecode.OpUse:
			path := vm.bc.Constants[inst.Operand].Str
			v, err := vm.host.Import(path)
			if err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			} else {
				vm.push(v)
			}

		case bytecode.OpAssertType:
			typeName := vm.bc.Constants[inst.Operand].Str
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if !MatchesTypeName(vm.host.Heap(), v, typeName) {
				thrown := NewError(vm.host.Heap(), ErrTypeMismatch, "value does not match type "+typeName)
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
			} else {
				vm.push(v)
			}

		case bytecode.OpStructInit, bytecode.OpStructInitSpread:
			proto := vm.bc.Structs[inst.Operand]
			s := &heap.Struct{TypeName: proto.Name, Fields: make(map[string]value.Value)}
			for _, f := range proto.Fields {
				s.Order = append(s.Order, f.Name)
			}
			if inst.Op == bytecode.OpStructInitSpread {
				base, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				if bs, ok := vm.host.Heap().Get(base.AsHandle()).(*heap.Struct); ok {
					for k, v := range bs.Fields {
						s.Fields[k] = v
					}
				}
			}
			for i := len(proto.Fields) - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				s.Fields[proto.Fields[i].Name] = v
			}
			s.TyHash = StructLayoutHash(proto)
			id := vm.host.Heap().Alloc(s)
			vm.push(value.NewHandle(value.TagStruct, id))

		case bytecode.OpEnumCtor:
			enumIdx, variantIdx := bytecode.UnpackDepthIndex(inst.Operand)
			ed := vm.bc.Enums[enumIdx]
			variant := ed.Variants[variantIdx]
			argc := variant.Arity
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				args[i] = v
			}
			id := vm.host.Heap().Alloc(&heap.Enum{TypeName: ed.Name, Variant: variant.Name, Args: args})
			vm.push(value.NewHandle(value.TagEnum, id))

		case bytecode.OpMakeFunction:
			proto := vm.bc.Constants[inst.Operand].Proto
			fn := &heap.Function{Kind: heap.FuncBytecode, Name: proto.Name, Params: proto.Params, Proto: proto}
			id := vm.host.Heap().Alloc(fn)
			vm.push(value.NewHandle(value.TagFunction, id))

		case bytecode.OpCall:
			_, argc := bytecode.UnpackCall(inst.Operand)
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				args[i] = v
			}
			callee, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			res, err := vm.host.CallValue(callee, args)
			if err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			} else {
				vm.push(res)
			}

		case bytecode.OpCallMethod, bytecode.OpCallStaticOrMethod:
			selIdx, argc := bytecode.UnpackCall(inst.Operand)
			methodName := vm.bc.Constants[selIdx].Str
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				args[i] = v
			}
			recv, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			fn, ok := vm.resolveMethodCached(vm.ip, recv, methodName)
			if !ok {
				thrown := NewError(vm.host.Heap(), ErrUndefinedMethod, "undefined method "+methodName)
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
				break
			}
			callArgs := append([]value.Value{recv}, args...)
			res, err := vm.host.CallValue(fn, callArgs)
			if err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			} else {
				vm.push(res)
			}

		case bytecode.OpMakeRange:
			inclusive := inst.Operand != 0
			end, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			start, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if start.Tag() != value.TagInt || end.Tag() != value.TagInt {
				thrown := NewError(vm.host.Heap(), ErrNotAnInt, "range bounds must be ints")
				if ip, handled := vm.dispatchThrow(thrown); handled {
					nextIP = ip
				} else {
					return value.Value{}, &ThrownError{Value: thrown}
				}
				break
			}
			id := vm.host.Heap().Alloc(&heap.Range{Start: int64(start.AsInt()), End: int64(end.AsInt()), Step: 1, Inclusive: inclusive})
			vm.push(value.NewHandle(value.TagRange, id))

		case bytecode.OpGetMember:
			name := vm.bc.Constants[inst.Operand].Str
			recv, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			v, err := vm.getMember(vm.ip, recv, name)
			if err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			} else {
				vm.push(v)
			}
		case bytecode.OpAssignMember:
			name := vm.bc.Constants[inst.Operand].Str
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			recv, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if err := vm.assignMember(vm.ip, recv, name, v); err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			}

		case bytecode.OpGetIndex:
			idx, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			recv, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			v, err := vm.getIndex(vm.ip, recv, idx)
			if err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			} else {
				vm.push(v)
			}
		case bytecode.OpAssignIndex:
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			idx, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			recv, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			if err := vm.assignIndex(vm.ip, recv, idx, v); err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			}

		case bytecode.OpBuilderNewCap:
			id := vm.host.Heap().Alloc(heap.NewBuilder(int(inst.Operand)))
			vm.push(value.NewHandle(value.TagBuilder, id))
		case bytecode.OpBuilderAppend:
			s, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			b, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			builder := vm.host.Heap().Get(b.AsHandle()).(*heap.Builder)
			builder.Push(vm.textOf(s))
			vm.push(b)
		case bytecode.OpBuilderFinalize:
			b, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			builder := vm.host.Heap().Get(b.AsHandle()).(*heap.Builder)
			id := vm.host.Heap().Alloc(heap.Str{S: builder.String()})
			vm.push(value.NewHandle(value.TagStr, id))

		case bytecode.OpForEachInit:
			src, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			iter, err := vm.makeIter(src)
			if err != nil {
				if ip, handled := vm.recoverThrow(err); handled {
					nextIP = ip
				} else {
					return value.Value{}, err
				}
			} else {
				vm.iters = append(vm.iters, iter)
			}
		case bytecode.OpForEachNext:
			more, v := vm.iterNext(&vm.iters[len(vm.iters)-1])
			if more {
				vm.push(v)
			}
			vm.push(value.NewBool(more))
		case bytecode.OpIterPop:
			vm.iters = vm.iters[:len(vm.iters)-1]

		case bytecode.OpEnvPush:
			vm.host.Env().Push()
		case bytecode.OpEnvPop:
			vm.host.Env().Pop()
		case bytecode.OpLocalsPush:
			vm.host.Locals().Push(int(inst.Operand))
		case bytecode.OpLocalsPop:
			vm.host.Locals().Pop()

		case bytecode.OpMakeList:
			n := int(inst.Operand)
			elems := make([]value.Value, n)
			for i := n - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				elems[i] = v
			}
			id := vm.host.Heap().Alloc(&heap.List{Elems: elems})
			vm.push(value.NewHandle(value.TagList, id))
		case bytecode.OpMakeTuple:
			n := int(inst.Operand)
			elems := make([]value.Value, n)
			for i := n - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				elems[i] = v
			}
			id := vm.host.Heap().Alloc(&heap.Tuple{Elems: elems})
			vm.push(value.NewHandle(value.TagTuple, id))
		case bytecode.OpMakeDict:
			n := int(inst.Operand)
			d := heap.NewDict()
			pairs := make([][2]value.Value, n)
			for i := n - 1; i >= 0; i-- {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				k, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				pairs[i] = [2]value.Value{k, v}
			}
			for _, p := range pairs {
				key, ok := heap.KeyFromValue(vm.host.Heap(), p[0])
				if !ok {
					thrown := NewError(vm.host.Heap(), ErrInvalidArgument, "unsupported dict key type")
					if ip, handled := vm.dispatchThrow(thrown); handled {
						nextIP = ip
					} else {
						return value.Value{}, &ThrownError{Value: thrown}
					}
					continue
				}
				d.Insert(key, p[1])
			}
			id := vm.host.Heap().Alloc(d)
			vm.push(value.NewHandle(value.TagDict, id))
		case bytecode.OpMakeSet:
			n := int(inst.Operand)
			s := heap.NewSet()
			for i := 0; i < n; i++ {
				v, err := vm.pop(inst.Op)
				if err != nil {
					return value.Value{}, err
				}
				key, ok := heap.KeyFromValue(vm.host.Heap(), v)
				if ok {
					s.Add(key)
				}
			}
			id := vm.host.Heap().Alloc(s)
			vm.push(value.NewHandle(value.TagSet, id))

		case bytecode.OpGetStaticField, bytecode.OpSetStaticField, bytecode.OpInitStaticField:
			// Static fields are keyed by (struct name, field name) and live
			// in the struct definition's side table, reached through
			// pkg/runtime rather than through this Host seam; the compiler
			// only emits these for struct declarations that actually use
			// `static`, which is out of scope for the current compiler.
			return value.Value{}, fmt.Errorf("internal: static fields not wired through this Host: %v", inst.Op)

		case bytecode.OpMatchPattern, bytecode.OpMatchBindings:
			// The compiler resolves match arms to direct comparisons and
			// conditional jumps; full structural pattern matching runs
			// through the tree-walking executor (pkg/exec/pattern.go), which
			// is the reference oracle for match semantics.
			return value.Value{}, fmt.Errorf("internal: %v requires exec-level pattern support", inst.Op)

		case bytecode.OpPrint:
			v, err := vm.pop(inst.Op)
			if err != nil {
				return value.Value{}, err
			}
			vm.host.Print(vm.textOf(v))
		case bytecode.OpHalt:
			if len(vm.stack) > 0 {
				result, _ = vm.pop(inst.Op)
			}
			return result, nil

		default:
			return value.Value{}, fmt.Errorf("internal: unknown op %v at ip=%d", inst.Op, vm.ip)
		}

		vm.ip = nextIP
	}

	if len(vm.stack) > 0 {
		return vm.top(), nil
	}
	return value.Unit(), nil
}

// undefinedMsg renders an UndefinedIdentifier message with an edit-
// distance suggestion from the names currently in scope.
func (vm *VM) undefinedMsg(name string) string {
	msg := "undefined identifier: " + name
	if hint := scope.SuggestName(name, vm.host.Env().Names()); hint != "" {
		msg += " (did you mean " + hint + "?)"
	}
	return msg
}

// recoverThrow adapts a Go error from a nested call (possibly a
// *ThrownError from host.CallValue) into this VM's own handler dispatch,
// so try/catch around a call site works the same as around a direct
// throw.
func (vm *VM) recoverThrow(err error) (int, bool) {
	te, ok := err.(*ThrownError)
	if !ok {
		return 0, false
	}
	return vm.dispatchThrow(te.Value)
}
