// Package exec implements the tree-walking AST executor: the reference
// execution path for xu programs. It shares the heap, environment,
// builtin registry, and module cache with the bytecode VM through the
// same vm.Host seam, so for any program that compiles, walking the tree
// and running the bytecode produce identical output.
package exec

import (
	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// UserFunc is the payload a heap.Function carries for a tree-walked
// callable: the parameter list (with declared types, for the entry
// type check) and the body to execute. The captured environment lives
// on the Function itself so the GC can trace it.
type UserFunc struct {
	Name   string
	Params []ast.Param
	Body   *ast.Block
}

// FlowKind is how a statement's effect on control flow is reported
// upward through the statement tree, replacing language-native
// exceptions and non-local jumps with an explicit sum type.
type FlowKind uint8

const (
	FlowNone FlowKind = iota
	FlowReturn
	FlowBreak
	FlowContinue
	FlowThrow
)

// Flow is the result of executing a statement. Value is meaningful for
// FlowReturn (the returned value) and FlowThrow (the thrown value).
type Flow struct {
	Kind  FlowKind
	Value value.Value
}

var flowNone = Flow{Kind: FlowNone}

// Interp executes an ast.Module directly. It keeps its own struct/enum
// declaration registries (the tree-walking analogue of the compiler's
// Structs/Enums pools) but everything stateful -- heap, env, locals,
// builtins, modules -- belongs to the host.
type Interp struct {
	host vm.Host

	structs map[string]*ast.StructDecl
	tyHash  map[string]uint64
	enums   map[string]*ast.EnumDecl
}

// New builds an Interp bound to host.
func New(host vm.Host) *Interp {
	return &Interp{
		host:    host,
		structs: map[string]*ast.StructDecl{},
		tyHash:  map[string]uint64{},
		enums:   map[string]*ast.EnumDecl{},
	}
}

// ExecModule runs mod's top-level statements in the host's current
// environment. A FlowThrow that reaches the top level is returned as a
// *vm.ThrownError, exactly as an uncaught throw escapes the VM, so the
// caller-facing error contract is identical for both paths.
func (in *Interp) ExecModule(mod *ast.Module) (value.Value, error) {
	// Pre-register type declarations so a forward reference resolves,
	// mirroring the compiler's pre-pass.
	for _, stmt := range mod.Statements {
		switch s := stmt.(type) {
		case *ast.StructDecl:
			in.registerStruct(s)
		case *ast.EnumDecl:
			in.enums[s.Name] = s
		}
	}

	for _, stmt := range mod.Statements {
		flow := in.execStmt(stmt)
		switch flow.Kind {
		case FlowNone:
		case FlowReturn:
			return flow.Value, nil
		case FlowThrow:
			return value.Value{}, &vm.ThrownError{Value: flow.Value}
		default:
			return value.Value{}, &vm.ThrownError{Value: vm.NewError(in.host.Heap(), vm.ErrInvalidArgument, "break or continue outside of a loop")}
		}
	}
	return value.Unit(), nil
}

func (in *Interp) registerStruct(s *ast.StructDecl) {
	in.structs[s.Name] = s
	in.tyHash[s.Name] = structTyHash(s)

	// Methods and statics become mangled module-scope bindings, the
	// lookup convention shared with the bytecode path's method tables:
	// __method__<Ty>__<name> takes the receiver as an implicit first
	// parameter, __static__<Ty>__<name> does not.
	for _, m := range s.Methods {
		params := append([]ast.Param{{Name: "self"}}, m.Params...)
		fn := in.makeClosure(m.Name, params, m.Body)
		in.host.Env().Define("__method__"+s.Name+"__"+m.Name, fn, false)
	}
	for _, m := range s.Statics {
		fn := in.makeClosure(m.Name, m.Params, m.Body)
		in.host.Env().Define("__static__"+s.Name+"__"+m.Name, fn, false)
	}
}

func structTyHash(s *ast.StructDecl) uint64 {
	def := &bytecode.StructDef{Name: s.Name}
	for _, f := range s.Fields {
		def.Fields = append(def.Fields, bytecode.FieldDef{Name: f.Name})
	}
	return vm.StructLayoutHash(def)
}

func (in *Interp) makeClosure(name string, params []ast.Param, body *ast.Block) value.Value {
	fn := &heap.Function{
		Kind:     heap.FuncUser,
		Name:     name,
		UserBody: &UserFunc{Name: name, Params: params, Body: body},
		Env:      in.host.Env().Capture(),
	}
	for _, p := range params {
		fn.Params = append(fn.Params, p.Name)
	}
	id := in.host.Heap().Alloc(fn)
	return value.NewHandle(value.TagFunction, id)
}

func (in *Interp) throwKind(kind, msg string) Flow {
	return Flow{Kind: FlowThrow, Value: vm.NewError(in.host.Heap(), kind, msg)}
}

// flowFromErr adapts an error from an eval or a host call into a Flow:
// a *vm.ThrownError becomes FlowThrow (catchable), anything else is
// wrapped as a thrown value too, so a Go-level failure inside an import
// or builtin surfaces to user code the same way every runtime fault
// does.
func (in *Interp) flowFromErr(err error) Flow {
	if te, ok := err.(*vm.ThrownError); ok {
		return Flow{Kind: FlowThrow, Value: te.Value}
	}
	return in.throwKind(vm.ErrInvalidArgument, err.Error())
}

func (in *Interp) execStmt(stmt ast.Stmt) Flow {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		v, err := in.eval(s.Value)
		if err != nil {
			return in.flowFromErr(err)
		}
		in.host.Env().Define(s.Name, v, s.Mutable)
		return flowNone

	case *ast.AssignStmt:
		return in.execAssign(s.Target, s.Value)

	case *ast.CompoundAssignStmt:
		return in.execCompoundAssign(s)

	case *ast.ExprStmt:
		if _, err := in.eval(s.X); err != nil {
			return in.flowFromErr(err)
		}
		return flowNone

	case *ast.Block:
		return in.execBlock(s)

	case *ast.IfStmt:
		for _, branch := range s.Branches {
			cond, err := in.eval(branch.Cond)
			if err != nil {
				return in.flowFromErr(err)
			}
			if cond.Tag() != value.TagBool {
				return in.throwKind(vm.ErrInvalidConditionType, "condition must be a bool, got "+cond.Tag().String())
			}
			if cond.AsBool() {
				return in.execBlock(branch.Body)
			}
		}
		if s.Else != nil {
			return in.execBlock(s.Else)
		}
		return flowNone

	case *ast.WhileStmt:
		for {
			cond, err := in.eval(s.Cond)
			if err != nil {
				return in.flowFromErr(err)
			}
			if cond.Tag() != value.TagBool {
				return in.throwKind(vm.ErrInvalidConditionType, "condition must be a bool, got "+cond.Tag().String())
			}
			if !cond.AsBool() {
				return flowNone
			}
			flow := in.execBlock(s.Body)
			switch flow.Kind {
			case FlowNone, FlowContinue:
			case FlowBreak:
				return flowNone
			default:
				return flow
			}
		}

	case *ast.ForEachStmt:
		return in.execForEach(s)

	case *ast.ReturnStmt:
		if s.Value == nil {
			return Flow{Kind: FlowReturn, Value: value.Unit()}
		}
		v, err := in.eval(s.Value)
		if err != nil {
			return in.flowFromErr(err)
		}
		return Flow{Kind: FlowReturn, Value: v}

	case *ast.BreakStmt:
		return Flow{Kind: FlowBreak}

	case *ast.ContinueStmt:
		return Flow{Kind: FlowContinue}

	case *ast.ThrowStmt:
		v, err := in.eval(s.Value)
		if err != nil {
			return in.flowFromErr(err)
		}
		return Flow{Kind: FlowThrow, Value: v}

	case *ast.TryStmt:
		return in.execTry(s)

	case *ast.FuncDecl:
		fn := in.makeClosure(s.Name, s.Params, s.Body)
		in.host.Env().Define(s.Name, fn, false)
		return flowNone

	case *ast.StructDecl:
		// Usually registered by ExecModule's pre-pass; a declaration
		// inside a function body registers on first execution here.
		if _, seen := in.structs[s.Name]; !seen {
			in.registerStruct(s)
		}
		return flowNone

	case *ast.EnumDecl:
		in.enums[s.Name] = s
		return flowNone

	case *ast.ImportStmt:
		ns, err := in.host.Import(s.Path)
		if err != nil {
			return in.flowFromErr(err)
		}
		name := s.Alias
		if name == "" {
			name = basenameNoExt(s.Path)
		}
		in.host.Env().Define(name, ns, false)
		return flowNone

	default:
		return in.throwKind(vm.ErrInvalidArgument, "unsupported statement")
	}
}

func basenameNoExt(path string) string {
	start := 0
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			start = i + 1
			break
		}
	}
	name := path[start:]
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// execBlock runs b inside a fresh Env frame. Every flow other than
// FlowNone pops the frame on the way out too -- the defer keeps scope
// depth balanced no matter how the block exits.
func (in *Interp) execBlock(b *ast.Block) Flow {
	in.host.Env().Push()
	defer in.host.Env().Pop()
	for _, st := range b.Statements {
		if flow := in.execStmt(st); flow.Kind != FlowNone {
			return flow
		}
	}
	return flowNone
}

func (in *Interp) execAssign(target ast.Expr, valueExpr ast.Expr) Flow {
	v, err := in.eval(valueExpr)
	if err != nil {
		return in.flowFromErr(err)
	}
	// Evaluating a member/index target can allocate; v has no scanned
	// home until the store completes.
	in.host.PushTempRoot(v)
	defer in.host.PopTempRoots(1)
	switch t := target.(type) {
	case *ast.Ident:
		switch in.host.Env().Set(t.Name, v) {
		case scope.Assigned:
			return flowNone
		case scope.Immutable:
			return in.throwKind(vm.ErrImmutableAssignment, "cannot assign to immutable binding: "+t.Name)
		default: // scope.NotFound
			if in.host.StrictVars() {
				return in.undefined(t.Name)
			}
			in.host.Env().Define(t.Name, v, true)
			return flowNone
		}
	case *ast.MemberExpr:
		recv, err := in.eval(t.X)
		if err != nil {
			return in.flowFromErr(err)
		}
		if err := in.assignMember(recv, t.Name, v); err != nil {
			return in.flowFromErr(err)
		}
		return flowNone
	case *ast.IndexExpr:
		recv, err := in.eval(t.X)
		if err != nil {
			return in.flowFromErr(err)
		}
		idx, err := in.eval(t.Index)
		if err != nil {
			return in.flowFromErr(err)
		}
		if err := in.assignIndex(recv, idx, v); err != nil {
			return in.flowFromErr(err)
		}
		return flowNone
	default:
		return in.throwKind(vm.ErrInvalidArgument, "unsupported assignment target")
	}
}

func (in *Interp) execCompoundAssign(s *ast.CompoundAssignStmt) Flow {
	op, ok := binOpFor(trimEq(s.Op))
	if !ok {
		return in.throwKind(vm.ErrInvalidArgument, "unsupported compound assignment "+s.Op)
	}
	cur, err := in.eval(s.Target)
	if err != nil {
		return in.flowFromErr(err)
	}
	in.host.PushTempRoot(cur)
	delta, err := in.eval(s.Value)
	if err != nil {
		in.host.PopTempRoots(1)
		return in.flowFromErr(err)
	}
	sum, err := vm.Arith(in.host.Heap(), op, cur, delta)
	in.host.PopTempRoots(1)
	if err != nil {
		return in.flowFromErr(err)
	}
	in.host.PushTempRoot(sum)
	defer in.host.PopTempRoots(1)

	switch t := s.Target.(type) {
	case *ast.Ident:
		switch in.host.Env().Set(t.Name, sum) {
		case scope.Assigned:
			return flowNone
		case scope.Immutable:
			return in.throwKind(vm.ErrImmutableAssignment, "cannot assign to immutable binding: "+t.Name)
		default:
			return in.undefined(t.Name)
		}
	case *ast.MemberExpr:
		recv, err := in.eval(t.X)
		if err != nil {
			return in.flowFromErr(err)
		}
		if err := in.assignMember(recv, t.Name, sum); err != nil {
			return in.flowFromErr(err)
		}
		return flowNone
	case *ast.IndexExpr:
		recv, err := in.eval(t.X)
		if err != nil {
			return in.flowFromErr(err)
		}
		idx, err := in.eval(t.Index)
		if err != nil {
			return in.flowFromErr(err)
		}
		if err := in.assignIndex(recv, idx, sum); err != nil {
			return in.flowFromErr(err)
		}
		return flowNone
	default:
		return in.throwKind(vm.ErrInvalidArgument, "unsupported compound assignment target")
	}
}

func (in *Interp) undefined(name string) Flow {
	msg := "undefined identifier: " + name
	if hint := scope.SuggestName(name, in.host.Env().Names()); hint != "" {
		msg += " (did you mean " + hint + "?)"
	}
	return in.throwKind(vm.ErrUndefinedIdentifier, msg)
}

// execTry runs the try/catch/finally protocol: the body's throw is
// consumed by the catch clause (whose own throw propagates -- a rethrow
// from a catch body does not re-enter the same catch), and the finally
// block always runs, with any non-None flow it produces overriding the
// pending one.
func (in *Interp) execTry(s *ast.TryStmt) Flow {
	flow := in.execBlock(s.Body)
	// A pending throw (or return value) lives only in this Go local
	// while the catch and finally clauses run.
	in.host.PushTempRoot(flow.Value)
	defer in.host.PopTempRoots(1)

	if flow.Kind == FlowThrow && s.Catch != nil {
		in.host.Env().Push()
		if s.Catch.VarName != "" {
			in.host.Env().Define(s.Catch.VarName, flow.Value, true)
		}
		caught := flowNone
		for _, st := range s.Catch.Body.Statements {
			if caught = in.execStmt(st); caught.Kind != FlowNone {
				break
			}
		}
		in.host.Env().Pop()
		flow = caught
		in.host.PushTempRoot(flow.Value)
		defer in.host.PopTempRoots(1)
	}

	if s.Finally != nil {
		if ff := in.execBlock(s.Finally); ff.Kind != FlowNone {
			// The finally block's own flow (a return, break, or throw)
			// replaces whatever was pending.
			return ff
		}
	}
	return flow
}

func (in *Interp) execForEach(s *ast.ForEachStmt) Flow {
	src, err := in.eval(s.Source)
	if err != nil {
		return in.flowFromErr(err)
	}
	items, err := in.iterItems(src)
	if err != nil {
		return in.flowFromErr(err)
	}
	// The materialized item slice is a Go local; pin the items (and the
	// source) so a collection inside the body can't sweep them.
	in.host.PushTempRoot(src)
	for _, item := range items {
		in.host.PushTempRoot(item)
	}
	defer in.host.PopTempRoots(1 + len(items))
	for _, item := range items {
		in.host.Env().Push()
		in.host.Env().Define(s.VarName, item, true)
		flow := flowNone
		for _, st := range s.Body.Statements {
			if flow = in.execStmt(st); flow.Kind != FlowNone {
				break
			}
		}
		in.host.Env().Pop()
		switch flow.Kind {
		case FlowNone, FlowContinue:
		case FlowBreak:
			return flowNone
		default:
			return flow
		}
	}
	return flowNone
}

// CallFunction applies a tree-walked closure. The host is expected to
// have already installed the closure's captured environment as the
// current one (see runtime.CallValue); this adds the call frame, binds
// parameters (running the declared-type check for any typed parameter),
// executes the body, and maps the resulting Flow to a value/error pair.
func (in *Interp) CallFunction(uf *UserFunc, args []value.Value) (value.Value, error) {
	h := in.host.Heap()
	if len(args) != len(uf.Params) {
		return value.Value{}, &vm.ThrownError{Value: vm.NewError(h, vm.ErrArityMismatch, "wrong number of arguments to "+uf.Name)}
	}
	for i, p := range uf.Params {
		if p.Type != "" && !vm.MatchesTypeName(h, args[i], p.Type) {
			return value.Value{}, &vm.ThrownError{Value: vm.NewError(h, vm.ErrTypeMismatch, "argument "+p.Name+" does not match type "+p.Type)}
		}
	}

	in.host.Env().Push()
	defer in.host.Env().Pop()
	for i, p := range uf.Params {
		in.host.Env().Define(p.Name, args[i], true)
	}

	for _, st := range uf.Body.Statements {
		flow := in.execStmt(st)
		switch flow.Kind {
		case FlowNone:
		case FlowReturn:
			return flow.Value, nil
		case FlowThrow:
			return value.Value{}, &vm.ThrownError{Value: flow.Value}
		default:
			return value.Value{}, &vm.ThrownError{Value: vm.NewError(h, vm.ErrInvalidArgument, "break or continue outside of a loop")}
		}
	}
	return value.Unit(), nil
}
