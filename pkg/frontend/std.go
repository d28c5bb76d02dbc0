package frontend

import (
	"fmt"

	"github.com/kristofer/xu/pkg/compiler"
	"github.com/kristofer/xu/pkg/lexer"
	"github.com/kristofer/xu/pkg/parser"
)

// Std is the default Frontend: xu's own lexer, recursive-descent parser,
// and bytecode compiler, chained together with no semantic analysis pass
// beyond what parsing and compiling already enforce.
type Std struct{}

// NewStd returns the default Frontend.
func NewStd() *Std { return &Std{} }

// CompileTextNoAnalyze lexes, parses, and compiles input in one pass,
// collecting parser and compiler diagnostics into one list rather than
// stopping at the first error, so `xu check` can report everything wrong
// with a file in one run.
func (Std) CompileTextNoAnalyze(path, input string) (CompiledUnit, error) {
	unit := CompiledUnit{Text: input}

	l := lexer.New(input)
	p := parser.New(l)
	mod := p.ParseModule(path)
	unit.Diagnostics = append(unit.Diagnostics, p.Errors()...)
	if len(p.Errors()) > 0 {
		return unit, fmt.Errorf("parse errors in %s", path)
	}
	unit.Executable.Module = mod

	c := compiler.New()
	bc, err := c.Compile(mod)
	unit.Diagnostics = append(unit.Diagnostics, c.Errors()...)
	if err != nil {
		return unit, err
	}
	unit.Executable.Bytecode = bc
	return unit, nil
}
