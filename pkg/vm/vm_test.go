package vm_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// fakeHost is the minimal vm.Host a unit test needs: a real heap and
// env/locals, no builtins, no modules, no method dispatch. Individual
// tests override Call*/Resolve* via closures when they exercise those
// paths.
type fakeHost struct {
	h       *heap.Heap
	env     *scope.Env
	locals  *scope.Locals
	strict  bool
	methods map[string]value.Value
	printed []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{h: heap.New(), env: scope.New(), locals: scope.NewLocals(), methods: map[string]value.Value{}}
}

func (f *fakeHost) Print(s string) { f.printed = append(f.printed, s) }

func (f *fakeHost) Heap() *heap.Heap     { return f.h }
func (f *fakeHost) Env() *scope.Env      { return f.env }
func (f *fakeHost) Locals() *scope.Locals { return f.locals }
func (f *fakeHost) StrictVars() bool     { return f.strict }

func (f *fakeHost) CallBuiltin(name string, args []value.Value) (value.Value, error) {
	return value.Value{}, fmt.Errorf("no builtin %s", name)
}

func (f *fakeHost) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	return value.Value{}, fmt.Errorf("no callable support in fakeHost")
}

func (f *fakeHost) ResolveMethod(recv value.Value, name string) (value.Value, bool) {
	v, ok := f.methods[name]
	return v, ok
}

func (f *fakeHost) Import(path string) (value.Value, error) {
	return value.Value{}, fmt.Errorf("no module loading in fakeHost")
}

func (f *fakeHost) MaybeGC(extraRoots []value.Value) {}
func (f *fakeHost) PushTempRoot(v value.Value)       {}
func (f *fakeHost) PopTempRoots(n int)               {}

func run(t *testing.T, code []bytecode.Instruction, constants []bytecode.Constant) (value.Value, *fakeHost) {
	t.Helper()
	bc := &bytecode.Bytecode{
		Constants: constants,
		Functions: []*bytecode.FunctionProto{{Name: "main", Code: code}},
		Entry:     0,
	}
	host := newFakeHost()
	v, err := vm.New(bc, host).Run()
	require.NoError(t, err)
	return v, host
}

func TestArithmeticAndReturn(t *testing.T) {
	// 2 + 3 * 4 => 14, left on the stack, returned via OpReturn.
	code := []bytecode.Instruction{
		{Op: bytecode.OpConstInt, Operand: 0}, // 2
		{Op: bytecode.OpConstInt, Operand: 1}, // 3
		{Op: bytecode.OpConstInt, Operand: 2}, // 4
		{Op: bytecode.OpMul},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 2},
		{Kind: bytecode.ConstInt, Int: 3},
		{Kind: bytecode.ConstInt, Int: 4},
	}
	v, _ := run(t, code, consts)
	assert.Equal(t, value.TagInt, v.Tag())
	assert.Equal(t, int32(14), v.AsInt())
}

func TestDivisionByZeroThrowsUncaught(t *testing.T) {
	code := []bytecode.Instruction{
		{Op: bytecode.OpConstInt, Operand: 0},
		{Op: bytecode.OpConstInt, Operand: 1},
		{Op: bytecode.OpDiv},
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 1},
		{Kind: bytecode.ConstInt, Int: 0},
	}
	bc := &bytecode.Bytecode{Constants: consts, Functions: []*bytecode.FunctionProto{{Name: "main", Code: code}}, Entry: 0}
	_, err := vm.New(bc, newFakeHost()).Run()
	require.Error(t, err)
	thrown, ok := err.(*vm.ThrownError)
	require.True(t, ok)
	assert.Equal(t, value.TagStruct, thrown.Value.Tag())
}

func TestTryCatchRecoversThrow(t *testing.T) {
	// try { 1 / 0 } catch (e) { 99 }
	code := []bytecode.Instruction{
		{Op: bytecode.OpPushHandler, Operand: bytecode.PackHandlerTargets(4, -1)},
		{Op: bytecode.OpConstInt, Operand: 0}, // 1
		{Op: bytecode.OpConstInt, Operand: 1}, // 0
		{Op: bytecode.OpDiv},
		// catch target: handler pushed a thrown struct here
		{Op: bytecode.OpPop},
		{Op: bytecode.OpConstInt, Operand: 2}, // 99
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 1},
		{Kind: bytecode.ConstInt, Int: 0},
		{Kind: bytecode.ConstInt, Int: 99},
	}
	v, _ := run(t, code, consts)
	assert.Equal(t, int32(99), v.AsInt())
}

func TestStoreNameStrictUndefinedThrows(t *testing.T) {
	code := []bytecode.Instruction{
		{Op: bytecode.OpConstInt, Operand: 0},
		{Op: bytecode.OpStoreName, Operand: 1},
		{Op: bytecode.OpLoadName, Operand: 1},
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 7},
		{Kind: bytecode.ConstStr, Str: "x"},
	}
	host := newFakeHost()
	host.strict = true
	bc := &bytecode.Bytecode{Constants: consts, Functions: []*bytecode.FunctionProto{{Name: "main", Code: code}}, Entry: 0}
	_, err := vm.New(bc, host).Run()
	require.Error(t, err)
	_, ok := err.(*vm.ThrownError)
	require.True(t, ok)
}

func TestStoreNameNonStrictDefines(t *testing.T) {
	code := []bytecode.Instruction{
		{Op: bytecode.OpConstInt, Operand: 0},
		{Op: bytecode.OpStoreName, Operand: 1},
		{Op: bytecode.OpLoadName, Operand: 1},
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 7},
		{Kind: bytecode.ConstStr, Str: "x"},
	}
	v, _ := run(t, code, consts)
	assert.Equal(t, int32(7), v.AsInt())
}

func TestListIndexAndAssign(t *testing.T) {
	code := []bytecode.Instruction{
		{Op: bytecode.OpConstInt, Operand: 0},
		{Op: bytecode.OpConstInt, Operand: 1},
		{Op: bytecode.OpConstInt, Operand: 2},
		{Op: bytecode.OpMakeList, Operand: 3},
		{Op: bytecode.OpDup},
		{Op: bytecode.OpConstInt, Operand: 3}, // idx 1
		{Op: bytecode.OpConstInt, Operand: 4}, // value 99
		{Op: bytecode.OpAssignIndex},
		{Op: bytecode.OpConstInt, Operand: 3},
		{Op: bytecode.OpGetIndex},
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 10},
		{Kind: bytecode.ConstInt, Int: 20},
		{Kind: bytecode.ConstInt, Int: 30},
		{Kind: bytecode.ConstInt, Int: 1},
		{Kind: bytecode.ConstInt, Int: 99},
	}
	v, _ := run(t, code, consts)
	assert.Equal(t, int32(99), v.AsInt())
}

func TestForEachOverRange(t *testing.T) {
	// sum 0..3 exclusive => 0+1+2 = 3, via a real loop-back jump: each
	// pass stores the iterator's value into "x" then adds it into "sum".
	code := []bytecode.Instruction{
		{Op: bytecode.OpConstInt, Operand: 0},      // 0: start 0
		{Op: bytecode.OpConstInt, Operand: 1},      // 1: end 3
		{Op: bytecode.OpMakeRange, Operand: 0},     // 2
		{Op: bytecode.OpForEachInit},                // 3
		{Op: bytecode.OpConstInt, Operand: 2},      // 4: accumulator seed 0
		{Op: bytecode.OpStoreName, Operand: 3},     // 5: sum = 0
		{Op: bytecode.OpForEachNext},                // 6: loop head
		{Op: bytecode.OpJumpIfFalse, Operand: 12},  // 7: exit when exhausted
		{Op: bytecode.OpStoreName, Operand: 4},     // 8: x = value
		{Op: bytecode.OpLoadName, Operand: 4},       // 9
		{Op: bytecode.OpAddAssignName, Operand: 3},  // 10: sum += x
		{Op: bytecode.OpJump, Operand: 6},           // 11: loop back
		{Op: bytecode.OpIterPop},                    // 12: exit target
		{Op: bytecode.OpLoadName, Operand: 3},
		{Op: bytecode.OpReturn},
	}
	consts := []bytecode.Constant{
		{Kind: bytecode.ConstInt, Int: 0},
		{Kind: bytecode.ConstInt, Int: 3},
		{Kind: bytecode.ConstInt, Int: 0},
		{Kind: bytecode.ConstStr, Str: "sum"},
		{Kind: bytecode.ConstStr, Str: "x"},
	}
	v, _ := run(t, code, consts)
	assert.Equal(t, int32(3), v.AsInt())
}
