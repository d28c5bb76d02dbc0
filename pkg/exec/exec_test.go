package exec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
)

// fakeHost is the minimal vm.Host an Interp unit test needs; method
// dispatch and imports are stubbed out.
type fakeHost struct {
	h      *heap.Heap
	env    *scope.Env
	locals *scope.Locals
	strict bool
	lines  []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{h: heap.New(), env: scope.New(), locals: scope.NewLocals()}
}

func (f *fakeHost) Heap() *heap.Heap      { return f.h }
func (f *fakeHost) Env() *scope.Env       { return f.env }
func (f *fakeHost) Locals() *scope.Locals { return f.locals }
func (f *fakeHost) StrictVars() bool      { return f.strict }
func (f *fakeHost) Print(s string)        { f.lines = append(f.lines, s) }
func (f *fakeHost) MaybeGC([]value.Value)     {}
func (f *fakeHost) PushTempRoot(v value.Value) {}
func (f *fakeHost) PopTempRoots(n int)         {}

func (f *fakeHost) CallBuiltin(name string, args []value.Value) (value.Value, error) {
	return value.Value{}, fmt.Errorf("no builtin %s in fakeHost", name)
}

func (f *fakeHost) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	fn, ok := f.h.Get(callee.AsHandle()).(*heap.Function)
	if !ok || fn.Kind != heap.FuncUser {
		return value.Value{}, fmt.Errorf("fakeHost only calls user functions")
	}
	in := New(f)
	return in.CallFunction(fn.UserBody.(*UserFunc), args)
}

func (f *fakeHost) ResolveMethod(recv value.Value, name string) (value.Value, bool) {
	return value.Value{}, false
}

func (f *fakeHost) Import(path string) (value.Value, error) {
	return value.Value{}, fmt.Errorf("no imports in fakeHost")
}

func intLit(n int32) ast.Expr   { return &ast.IntLit{Value: n} }
func ident(name string) ast.Expr { return &ast.Ident{Name: name} }

func TestEvalArithmeticTree(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	// 2 + 3 * 4
	expr := &ast.BinaryExpr{Op: "+",
		Left:  intLit(2),
		Right: &ast.BinaryExpr{Op: "*", Left: intLit(3), Right: intLit(4)},
	}
	v, err := in.eval(expr)
	require.NoError(t, err)
	assert.Equal(t, int32(14), v.AsInt())
}

func TestWhileAccumulates(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.LetStmt{Name: "i", Mutable: true, Value: intLit(0)},
		&ast.LetStmt{Name: "sum", Mutable: true, Value: intLit(0)},
		&ast.WhileStmt{
			Cond: &ast.BinaryExpr{Op: "<", Left: ident("i"), Right: intLit(5)},
			Body: &ast.Block{Statements: []ast.Stmt{
				&ast.CompoundAssignStmt{Target: ident("sum"), Op: "+=", Value: ident("i")},
				&ast.CompoundAssignStmt{Target: ident("i"), Op: "+=", Value: intLit(1)},
			}},
		},
	}}
	_, err := in.ExecModule(mod)
	require.NoError(t, err)
	sum, ok := host.env.Get("sum")
	require.True(t, ok)
	assert.Equal(t, int32(10), sum.AsInt())
}

func TestNonBoolConditionThrows(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.IfStmt{Branches: []ast.IfBranch{{Cond: intLit(1), Body: &ast.Block{}}}},
	}}
	_, err := in.ExecModule(mod)
	require.Error(t, err)
}

func TestBreakStopsLoop(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.LetStmt{Name: "i", Mutable: true, Value: intLit(0)},
		&ast.WhileStmt{
			Cond: &ast.BoolLit{Value: true},
			Body: &ast.Block{Statements: []ast.Stmt{
				&ast.CompoundAssignStmt{Target: ident("i"), Op: "+=", Value: intLit(1)},
				&ast.IfStmt{Branches: []ast.IfBranch{{
					Cond: &ast.BinaryExpr{Op: ">=", Left: ident("i"), Right: intLit(3)},
					Body: &ast.Block{Statements: []ast.Stmt{&ast.BreakStmt{}}},
				}}},
			}},
		},
	}}
	_, err := in.ExecModule(mod)
	require.NoError(t, err)
	i, _ := host.env.Get("i")
	assert.Equal(t, int32(3), i.AsInt())
}

func TestThrowUnwindsToCatchAndFinallyRuns(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	// try { throw 7 } catch (e) { caught = e } finally { done = true }
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.LetStmt{Name: "caught", Mutable: true, Value: intLit(0)},
		&ast.LetStmt{Name: "done", Mutable: true, Value: &ast.BoolLit{}},
		&ast.TryStmt{
			Body: &ast.Block{Statements: []ast.Stmt{&ast.ThrowStmt{Value: intLit(7)}}},
			Catch: &ast.CatchClause{VarName: "e", Body: &ast.Block{Statements: []ast.Stmt{
				&ast.AssignStmt{Target: ident("caught"), Value: ident("e")},
			}}},
			Finally: &ast.Block{Statements: []ast.Stmt{
				&ast.AssignStmt{Target: ident("done"), Value: &ast.BoolLit{Value: true}},
			}},
		},
	}}
	_, err := in.ExecModule(mod)
	require.NoError(t, err)
	caught, _ := host.env.Get("caught")
	done, _ := host.env.Get("done")
	assert.Equal(t, int32(7), caught.AsInt())
	assert.True(t, done.AsBool())
}

func TestRethrowFromCatchPropagates(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.TryStmt{
			Body: &ast.Block{Statements: []ast.Stmt{&ast.ThrowStmt{Value: intLit(1)}}},
			Catch: &ast.CatchClause{VarName: "e", Body: &ast.Block{Statements: []ast.Stmt{
				&ast.ThrowStmt{Value: intLit(2)},
			}}},
		},
	}}
	_, err := in.ExecModule(mod)
	require.Error(t, err)
}

func TestMatchPatternShapes(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	h := host.h

	// literal
	host.env.Push()
	assert.True(t, in.matchPattern(&ast.LiteralPattern{Value: intLit(3)}, value.NewInt(3)))
	assert.False(t, in.matchPattern(&ast.LiteralPattern{Value: intLit(3)}, value.NewInt(4)))
	host.env.Pop()

	// bind
	host.env.Push()
	assert.True(t, in.matchPattern(&ast.BindPattern{Name: "x"}, value.NewInt(9)))
	x, ok := host.env.Get("x")
	require.True(t, ok)
	assert.Equal(t, int32(9), x.AsInt())
	host.env.Pop()

	// tuple
	tup := value.NewHandle(value.TagTuple, h.Alloc(&heap.Tuple{Elems: []value.Value{value.NewInt(1), value.NewInt(2)}}))
	host.env.Push()
	pat := &ast.TuplePattern{Elems: []ast.Pattern{
		&ast.LiteralPattern{Value: intLit(1)},
		&ast.BindPattern{Name: "snd"},
	}}
	assert.True(t, in.matchPattern(pat, tup))
	snd, _ := host.env.Get("snd")
	assert.Equal(t, int32(2), snd.AsInt())
	host.env.Pop()

	// enum variant
	ev := value.NewHandle(value.TagEnum, h.Alloc(&heap.Enum{TypeName: "Shape", Variant: "circle", Args: []value.Value{value.NewInt(4)}}))
	host.env.Push()
	ep := &ast.EnumVariantPattern{TypeName: "Shape", Variant: "circle", Args: []ast.Pattern{&ast.BindPattern{Name: "r"}}}
	assert.True(t, in.matchPattern(ep, ev))
	r, _ := host.env.Get("r")
	assert.Equal(t, int32(4), r.AsInt())
	host.env.Pop()

	// Option::some / Option::none against the optimized representations
	some := value.NewHandle(value.TagOptionSome, h.Alloc(&heap.OptionSome{Inner: value.NewInt(5)}))
	host.env.Push()
	sp := &ast.EnumVariantPattern{TypeName: "Option", Variant: "some", Args: []ast.Pattern{&ast.BindPattern{Name: "v"}}}
	assert.True(t, in.matchPattern(sp, some))
	v, _ := host.env.Get("v")
	assert.Equal(t, int32(5), v.AsInt())
	np := &ast.EnumVariantPattern{TypeName: "Option", Variant: "none"}
	assert.True(t, in.matchPattern(np, value.Unit()))
	assert.False(t, in.matchPattern(np, some))
	host.env.Pop()
}

func TestUserFunctionCallAndReturn(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.FuncDecl{Name: "add", Params: []ast.Param{{Name: "a"}, {Name: "b"}},
			Body: &ast.Block{Statements: []ast.Stmt{
				&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "+", Left: ident("a"), Right: ident("b")}},
			}}},
		&ast.LetStmt{Name: "r", Value: &ast.CallExpr{Callee: ident("add"), Args: []ast.Expr{intLit(3), intLit(4)}}},
	}}
	_, err := in.ExecModule(mod)
	require.NoError(t, err)
	r, _ := host.env.Get("r")
	assert.Equal(t, int32(7), r.AsInt())
}

func TestArityMismatchThrows(t *testing.T) {
	host := newFakeHost()
	in := New(host)
	mod := &ast.Module{Statements: []ast.Stmt{
		&ast.FuncDecl{Name: "one", Params: []ast.Param{{Name: "a"}},
			Body: &ast.Block{}},
		&ast.ExprStmt{X: &ast.CallExpr{Callee: ident("one"), Args: nil}},
	}}
	_, err := in.ExecModule(mod)
	require.Error(t, err)
}
