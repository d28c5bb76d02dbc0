// Package vm implements the stack-based bytecode virtual machine: the
// optimized execution path for compiled xu code, sharing its heap,
// environment, and builtin/method dispatch with the tree-walking
// executor through the Host interface (implemented by pkg/runtime).
package vm

import (
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
)

// Host is everything the VM needs from the owning runtime, kept as an
// interface so pkg/vm never imports pkg/runtime (which imports pkg/vm):
// the runtime wires itself into the VM, not the other way around.
type Host interface {
	Heap() *heap.Heap
	Env() *scope.Env
	Locals() *scope.Locals

	// CallBuiltin invokes a host builtin function by name.
	CallBuiltin(name string, args []value.Value) (value.Value, error)

	// CallValue invokes any callable Value (builtin, user, or bytecode
	// function) with args, used for OpCall and for higher-order builtins
	// like list#map.
	CallValue(callee value.Value, args []value.Value) (value.Value, error)

	// ResolveMethod looks up a method by receiver tag and name. The VM
	// consults its method inline cache before calling it.
	ResolveMethod(recv value.Value, name string) (value.Value, bool)

	// Import loads and (on first use) executes a module, returning the
	// value bound to its namespace.
	Import(path string) (value.Value, error)

	// MaybeGC runs a collection if the heap's grow heuristic says it's
	// due, rooted at extraRoots plus whatever the host itself tracks
	// (every live VM's eval stack, the Env, the Locals, and the
	// temporary-roots stack).
	MaybeGC(extraRoots []value.Value)

	// PushTempRoot/PopTempRoots pin values that are reachable from no
	// scanned location yet. The VM's own intermediates live on its eval
	// stack; the tree-walking executor holds intermediates in Go locals
	// instead and pins them across any evaluation that can re-enter the
	// collector.
	PushTempRoot(v value.Value)
	PopTempRoots(n int)

	// Print writes s to program output as is, adding no newline. Routed through the host
	// so embedders and tests can capture stdout (and so the AST executor
	// and VM provably produce identical output streams).
	Print(s string)

	// StrictVars reports whether bare-name writes to an undeclared name
	// are an error (true) or implicitly declare a global (false).
	StrictVars() bool
}
