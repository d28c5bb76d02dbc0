// Package frontend defines the contract between a source-to-executable
// pipeline (lexer, parser, compiler) and everything downstream that
// consumes its output: the module loader and the runtime. The execution
// core depends only on this contract, never on a concrete frontend
// implementation, so a different frontend could be swapped in without
// touching pkg/exec, pkg/vm, or pkg/runtime.
package frontend

import (
	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/bytecode"
)

// Executable is what a compiled unit can be run as: the AST form (for the
// tree-walking executor), the bytecode form (for the VM), or both, since a
// CompiledUnit produced with compilation enabled carries both.
type Executable struct {
	Module   *ast.Module
	Bytecode *bytecode.Bytecode
}

// CompiledUnit is the result of compiling one source file, independent of
// which execution strategy eventually runs it.
type CompiledUnit struct {
	Text        string
	Executable  Executable
	Diagnostics []string
}

// Frontend turns source text into a CompiledUnit without running any
// semantic analysis beyond what parsing/compiling itself requires --
// callers that want static checks layer that on top.
type Frontend interface {
	CompileTextNoAnalyze(path, input string) (CompiledUnit, error)
}
