// Package compiler lowers a parsed xu module into bytecode.Bytecode, the
// stack-oriented intermediate form pkg/vm executes. It never recurses
// over ast nodes at runtime -- all tree walking happens here, at compile
// time, producing a flat instruction stream plus the constant/struct/enum
// pools the VM indexes into.
package compiler

import (
	"fmt"

	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/bytecode"
)

// loopCtx tracks one enclosing loop's backpatch state: continue always
// jumps to a known address (the loop head, already emitted by the time a
// continue can reference it); break's target isn't known until the loop
// finishes compiling, so break jumps are recorded and patched afterward.
// envDepthAtEntry records how many Env frames were open when the loop
// began, so a break/continue nested inside further blocks can emit
// exactly the right number of EnvPop instructions before jumping --
// dispatchThrow gets this for free via Handler.EnvDepth, but a plain
// Jump has no such runtime unwinding, so the compiler does it instead.
type loopCtx struct {
	continueTarget  int
	breakJumps      []int
	envDepthAtEntry int
	isForEach       bool
}

// funcCtx is the state local to one function body being compiled: its
// own instruction stream (via proto) and its own loop stack, since a
// break/continue inside a nested fn literal must never reach through to
// an enclosing function's loop.
type funcCtx struct {
	proto  *bytecode.FunctionProto
	parent *funcCtx
	loops  []*loopCtx
}

// Compiler lowers one ast.Module into one bytecode.Bytecode.
type Compiler struct {
	bc *bytecode.Bytecode

	intConsts   map[int32]int
	floatConsts map[float64]int
	strConsts   map[string]int

	structIdx  map[string]int
	enumIdx    map[string]int
	variantIdx map[string]map[string]int

	cur       *funcCtx
	envDepth  int
	matchSeq  int
	errors    []string
}

// New creates an empty Compiler.
func New() *Compiler {
	return &Compiler{
		intConsts:   map[int32]int{},
		floatConsts: map[float64]int{},
		strConsts:   map[string]int{},
		structIdx:   map[string]int{},
		enumIdx:     map[string]int{},
		variantIdx:  map[string]map[string]int{},
	}
}

// Errors reports every compile error accumulated while lowering the
// module, mirroring the parser's collect-and-continue diagnostics style.
func (c *Compiler) Errors() []string { return c.errors }

func (c *Compiler) errorf(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

// Compile lowers mod into a fully-formed Bytecode. Struct and enum
// declarations are registered before any statement is compiled so a
// forward reference (a struct used before its textual declaration) still
// resolves.
func (c *Compiler) Compile(mod *ast.Module) (*bytecode.Bytecode, error) {
	c.bc = &bytecode.Bytecode{}
	entry := &bytecode.FunctionProto{Name: "<module>"}
	c.bc.Functions = append(c.bc.Functions, entry)
	c.bc.Entry = 0
	c.cur = &funcCtx{proto: entry}

	for _, stmt := range mod.Statements {
		switch s := stmt.(type) {
		case *ast.StructDecl:
			c.registerStruct(s)
		case *ast.EnumDecl:
			c.registerEnum(s)
		}
	}

	for _, stmt := range mod.Statements {
		c.compileStmt(stmt)
	}
	c.emit(bytecode.OpHalt, 0)

	if len(c.errors) > 0 {
		return nil, fmt.Errorf("compile errors:\n%s", joinErrors(c.errors))
	}
	return c.bc, nil
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "\n"
		}
		out += e
	}
	return out
}

// --- emission helpers ---

func (c *Compiler) emit(op bytecode.Op, operand int32) int {
	c.cur.proto.Code = append(c.cur.proto.Code, bytecode.Instruction{Op: op, Operand: operand})
	return len(c.cur.proto.Code) - 1
}

func (c *Compiler) here() int { return len(c.cur.proto.Code) }

func (c *Compiler) patch(idx, operand int) {
	c.cur.proto.Code[idx].Operand = int32(operand)
}

func (c *Compiler) intConst(v int32) int {
	if idx, ok := c.intConsts[v]; ok {
		return idx
	}
	idx := len(c.bc.Constants)
	c.bc.Constants = append(c.bc.Constants, bytecode.Constant{Kind: bytecode.ConstInt, Int: v})
	c.intConsts[v] = idx
	return idx
}

func (c *Compiler) floatConst(v float64) int {
	if idx, ok := c.floatConsts[v]; ok {
		return idx
	}
	idx := len(c.bc.Constants)
	c.bc.Constants = append(c.bc.Constants, bytecode.Constant{Kind: bytecode.ConstFloat, Float: v})
	c.floatConsts[v] = idx
	return idx
}

func (c *Compiler) strConst(s string) int {
	if idx, ok := c.strConsts[s]; ok {
		return idx
	}
	idx := len(c.bc.Constants)
	c.bc.Constants = append(c.bc.Constants, bytecode.Constant{Kind: bytecode.ConstStr, Str: s})
	c.strConsts[s] = idx
	return idx
}

func (c *Compiler) loopStack() []*loopCtx  { return c.cur.loops }
func (c *Compiler) pushLoop(lc *loopCtx)   { c.cur.loops = append(c.cur.loops, lc) }
func (c *Compiler) popLoop()               { c.cur.loops = c.cur.loops[:len(c.cur.loops)-1] }
func (c *Compiler) innermostLoop() *loopCtx {
	n := len(c.cur.loops)
	if n == 0 {
		return nil
	}
	return c.cur.loops[n-1]
}

// unwindToLoop emits the EnvPop/IterPop instructions needed to leave a
// loop from a point nested depth frames below its entry, used by both
// break and continue since both are non-local jumps the VM's ordinary
// Jump op does nothing to unwind.
func (c *Compiler) unwindToLoop(lc *loopCtx, alsoIterPop bool) {
	for i := c.envDepth; i > lc.envDepthAtEntry; i-- {
		c.emit(bytecode.OpEnvPop, 0)
	}
	if alsoIterPop && lc.isForEach {
		c.emit(bytecode.OpIterPop, 0)
	}
}

// --- struct / enum registration ---

func (c *Compiler) registerStruct(s *ast.StructDecl) {
	def := &bytecode.StructDef{Name: s.Name, Methods: map[string]int{}, Statics: map[string]int{}}
	for _, f := range s.Fields {
		def.Fields = append(def.Fields, bytecode.FieldDef{Name: f.Name})
	}
	idx := len(c.bc.Structs)
	c.bc.Structs = append(c.bc.Structs, def)
	c.structIdx[s.Name] = idx

	for _, m := range s.Methods {
		def.Methods[m.Name] = c.compileFunctionBody(m, true)
	}
	for _, m := range s.Statics {
		def.Statics[m.Name] = c.compileFunctionBody(m, false)
	}
}

func (c *Compiler) registerEnum(e *ast.EnumDecl) {
	def := &bytecode.EnumDef{Name: e.Name}
	variants := map[string]int{}
	for i, v := range e.Variants {
		def.Variants = append(def.Variants, bytecode.EnumVariantDef{Name: v.Name, Arity: v.Arity})
		variants[v.Name] = i
	}
	idx := len(c.bc.Enums)
	c.bc.Enums = append(c.bc.Enums, def)
	c.enumIdx[e.Name] = idx
	c.variantIdx[e.Name] = variants
}

// compileFunctionBody compiles decl's body as its own FunctionProto
// appended to bc.Functions (the pool struct methods/statics are resolved
// from at call time), returning its index. isMethod prepends an implicit
// "self" parameter.
func (c *Compiler) compileFunctionBody(decl *ast.FuncDecl, isMethod bool) int {
	var params, paramTypes []string
	if isMethod {
		params = append(params, "self")
		paramTypes = append(paramTypes, "")
	}
	for _, p := range decl.Params {
		params = append(params, p.Name)
		paramTypes = append(paramTypes, p.Type)
	}
	proto := &bytecode.FunctionProto{Name: decl.Name, Params: params, ParamTypes: paramTypes}
	idx := len(c.bc.Functions)
	c.bc.Functions = append(c.bc.Functions, proto)

	savedCur, savedDepth := c.cur, c.envDepth
	c.cur, c.envDepth = &funcCtx{proto: proto, parent: savedCur}, 0
	for _, st := range decl.Body.Statements {
		c.compileStmt(st)
	}
	c.emit(bytecode.OpConstNull, 0)
	c.emit(bytecode.OpReturn, 0)
	c.cur, c.envDepth = savedCur, savedDepth
	return idx
}

// compileFuncConst compiles decl's body as a standalone closure value,
// storing its FunctionProto in the constant pool (the pool OpMakeFunction
// reads from) rather than bc.Functions (the pool struct methods live in),
// returning the constant index to push via OpMakeFunction.
func (c *Compiler) compileFuncConst(name string, params []ast.Param, body *ast.Block) int {
	var paramNames, paramTypes []string
	for _, p := range params {
		paramNames = append(paramNames, p.Name)
		paramTypes = append(paramTypes, p.Type)
	}
	proto := &bytecode.FunctionProto{Name: name, Params: paramNames, ParamTypes: paramTypes}

	savedCur, savedDepth := c.cur, c.envDepth
	c.cur, c.envDepth = &funcCtx{proto: proto, parent: savedCur}, 0
	for _, st := range body.Statements {
		c.compileStmt(st)
	}
	c.emit(bytecode.OpConstNull, 0)
	c.emit(bytecode.OpReturn, 0)
	c.cur, c.envDepth = savedCur, savedDepth

	idx := len(c.bc.Constants)
	c.bc.Constants = append(c.bc.Constants, bytecode.Constant{Kind: bytecode.ConstFuncProto, Proto: proto})
	return idx
}

// --- statements ---

func (c *Compiler) compileStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		c.compileExpr(s.Value)
		nameIdx := c.strConst(s.Name)
		c.emit(bytecode.OpDefineName, bytecode.PackDefine(nameIdx, s.Mutable))

	case *ast.AssignStmt:
		c.compileAssign(s.Target, s.Value)

	case *ast.CompoundAssignStmt:
		c.compileCompoundAssign(s)

	case *ast.ExprStmt:
		c.compileExpr(s.X)
		c.emit(bytecode.OpPop, 0)

	case *ast.Block:
		c.compileBlock(s)

	case *ast.IfStmt:
		c.compileIfStmt(s)

	case *ast.WhileStmt:
		c.compileWhileStmt(s)

	case *ast.ForEachStmt:
		c.compileForEachStmt(s)

	case *ast.ReturnStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(bytecode.OpConstNull, 0)
		}
		c.emit(bytecode.OpReturn, 0)

	case *ast.BreakStmt:
		lc := c.innermostLoop()
		if lc == nil {
			c.errorf("line %d: break outside of a loop", s.Line)
			return
		}
		c.unwindToLoop(lc, true)
		idx := c.emit(bytecode.OpJump, 0)
		lc.breakJumps = append(lc.breakJumps, idx)

	case *ast.ContinueStmt:
		lc := c.innermostLoop()
		if lc == nil {
			c.errorf("line %d: continue outside of a loop", s.Line)
			return
		}
		c.unwindToLoop(lc, false)
		c.emit(bytecode.OpJump, int32(lc.continueTarget))

	case *ast.TryStmt:
		c.compileTryStmt(s)

	case *ast.ThrowStmt:
		c.compileExpr(s.Value)
		c.emit(bytecode.OpThrow, 0)

	case *ast.FuncDecl:
		constIdx := c.compileFuncConst(s.Name, s.Params, s.Body)
		c.emit(bytecode.OpMakeFunction, int32(constIdx))
		nameIdx := c.strConst(s.Name)
		c.emit(bytecode.OpDefineName, bytecode.PackDefine(nameIdx, false))

	case *ast.StructDecl, *ast.EnumDecl:
		// already registered in the pre-pass; nothing to emit here.

	case *ast.ImportStmt:
		c.compileImportStmt(s)

	default:
		c.errorf("internal: unhandled statement %T", s)
	}
}

func (c *Compiler) compileBlock(b *ast.Block) {
	c.emit(bytecode.OpEnvPush, 0)
	c.envDepth++
	for _, st := range b.Statements {
		c.compileStmt(st)
	}
	c.envDepth--
	c.emit(bytecode.OpEnvPop, 0)
}

func (c *Compiler) compileImportStmt(s *ast.ImportStmt) {
	pathIdx := c.strConst(s.Path)
	c.emit(bytecode.OpUse, int32(pathIdx))
	name := s.Alias
	if name == "" {
		name = basenameNoExt(s.Path)
	}
	nameIdx := c.strConst(name)
	c.emit(bytecode.OpDefineName, bytecode.PackDefine(nameIdx, false))
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

func (c *Compiler) compileAssign(target ast.Expr, value ast.Expr) {
	switch t := target.(type) {
	case *ast.Ident:
		c.compileExpr(value)
		nameIdx := c.strConst(t.Name)
		c.emit(bytecode.OpStoreName, int32(nameIdx))
	case *ast.MemberExpr:
		c.compileExpr(t.X)
		c.compileExpr(value)
		nameIdx := c.strConst(t.Name)
		c.emit(bytecode.OpAssignMember, int32(nameIdx))
	case *ast.IndexExpr:
		c.compileExpr(t.X)
		c.compileExpr(t.Index)
		c.compileExpr(value)
		c.emit(bytecode.OpAssignIndex, 0)
	default:
		c.errorf("internal: unsupported assignment target %T", t)
	}
}

func (c *Compiler) compileCompoundAssign(s *ast.CompoundAssignStmt) {
	if ident, ok := s.Target.(*ast.Ident); ok && s.Op == "+=" {
		c.compileExpr(s.Value)
		nameIdx := c.strConst(ident.Name)
		c.emit(bytecode.OpAddAssignName, int32(nameIdx))
		return
	}
	baseOp, ok := binOpFor(trimEq(s.Op))
	if !ok {
		c.errorf("line %d: unsupported compound assignment %q", s.Line, s.Op)
		return
	}
	switch t := s.Target.(type) {
	case *ast.Ident:
		c.compileExpr(t)
		c.compileExpr(s.Value)
		c.emit(baseOp, 0)
		nameIdx := c.strConst(t.Name)
		c.emit(bytecode.OpStoreName, int32(nameIdx))
	case *ast.MemberExpr:
		c.compileExpr(t.X)
		c.compileExpr(t)
		c.compileExpr(s.Value)
		c.emit(baseOp, 0)
		nameIdx := c.strConst(t.Name)
		c.emit(bytecode.OpAssignMember, int32(nameIdx))
	case *ast.IndexExpr:
		c.compileExpr(t.X)
		c.compileExpr(t.Index)
		c.compileExpr(t)
		c.compileExpr(s.Value)
		c.emit(baseOp, 0)
		c.emit(bytecode.OpAssignIndex, 0)
	default:
		c.errorf("internal: unsupported compound assignment target %T", t)
	}
}

func trimEq(op string) string {
	if len(op) > 0 && op[len(op)-1] == '=' {
		return op[:len(op)-1]
	}
	return op
}

func (c *Compiler) compileIfStmt(s *ast.IfStmt) {
	var endJumps []int
	for i, branch := range s.Branches {
		c.compileExpr(branch.Cond)
		falseJump := c.emit(bytecode.OpJumpIfFalse, 0)
		c.compileBlock(branch.Body)
		last := i == len(s.Branches)-1 && s.Else == nil
		if !last {
			endJumps = append(endJumps, c.emit(bytecode.OpJump, 0))
		}
		c.patch(falseJump, c.here())
	}
	if s.Else != nil {
		c.compileBlock(s.Else)
	}
	end := c.here()
	for _, j := range endJumps {
		c.patch(j, end)
	}
}

func (c *Compiler) compileWhileStmt(s *ast.WhileStmt) {
	head := c.here()
	lc := &loopCtx{continueTarget: head, envDepthAtEntry: c.envDepth}
	c.pushLoop(lc)
	c.compileExpr(s.Cond)
	exitJump := c.emit(bytecode.OpJumpIfFalse, 0)
	c.compileBlock(s.Body)
	c.emit(bytecode.OpJump, int32(head))
	c.patch(exitJump, c.here())
	c.popLoop()
	for _, j := range lc.breakJumps {
		c.patch(j, c.here())
	}
}

func (c *Compiler) compileForEachStmt(s *ast.ForEachStmt) {
	c.compileExpr(s.Source)
	c.emit(bytecode.OpForEachInit, 0)

	head := c.here()
	lc := &loopCtx{continueTarget: head, envDepthAtEntry: c.envDepth, isForEach: true}
	c.pushLoop(lc)

	c.emit(bytecode.OpForEachNext, 0)
	exitJump := c.emit(bytecode.OpJumpIfFalse, 0)

	c.emit(bytecode.OpEnvPush, 0)
	c.envDepth++
	nameIdx := c.strConst(s.VarName)
	c.emit(bytecode.OpDefineName, bytecode.PackDefine(nameIdx, true))
	for _, st := range s.Body.Statements {
		c.compileStmt(st)
	}
	c.envDepth--
	c.emit(bytecode.OpEnvPop, 0)
	c.emit(bytecode.OpJump, int32(head))

	c.patch(exitJump, c.here())
	c.emit(bytecode.OpIterPop, 0)
	c.popLoop()
	for _, j := range lc.breakJumps {
		c.patch(j, c.here())
	}
}

func (c *Compiler) compileTryStmt(s *ast.TryStmt) {
	pushIdx := c.emit(bytecode.OpPushHandler, 0)

	c.compileBlock(s.Body)
	c.emit(bytecode.OpPopHandler, 0)
	tryExit := c.emit(bytecode.OpJump, 0)

	catchIP := -1
	catchExit := -1
	if s.Catch != nil {
		catchIP = c.here()
		c.emit(bytecode.OpEnvPush, 0)
		c.envDepth++
		if s.Catch.VarName != "" {
			nameIdx := c.strConst(s.Catch.VarName)
			c.emit(bytecode.OpDefineName, bytecode.PackDefine(nameIdx, true))
		} else {
			c.emit(bytecode.OpPop, 0)
		}
		for _, st := range s.Catch.Body.Statements {
			c.compileStmt(st)
		}
		c.envDepth--
		c.emit(bytecode.OpEnvPop, 0)
		c.emit(bytecode.OpPopHandler, 0)
		catchExit = c.emit(bytecode.OpJump, 0)
	}

	finallyIP := -1
	if s.Finally != nil {
		finallyIP = c.here()
		c.compileBlock(s.Finally)
		c.emit(bytecode.OpRunPending, 0)
	}

	done := c.here()
	target := done
	if finallyIP >= 0 {
		target = finallyIP
	}
	c.patch(tryExit, target)
	if catchExit >= 0 {
		c.patch(catchExit, target)
	}
	c.cur.proto.Code[pushIdx].Operand = bytecode.PackHandlerTargets(catchIP, finallyIP)
}

// --- expressions ---

func (c *Compiler) compileExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.Ident:
		nameIdx := c.strConst(e.Name)
		c.emit(bytecode.OpLoadName, int32(nameIdx))
	case *ast.IntLit:
		c.emit(bytecode.OpConstInt, int32(c.intConst(e.Value)))
	case *ast.FloatLit:
		c.emit(bytecode.OpConstFloat, int32(c.floatConst(e.Value)))
	case *ast.BoolLit:
		v := int32(0)
		if e.Value {
			v = 1
		}
		c.emit(bytecode.OpConstBool, v)
	case *ast.UnitLit:
		c.emit(bytecode.OpConstNull, 0)
	case *ast.StrLit:
		c.emit(bytecode.OpConstStr, int32(c.strConst(e.Value)))
	case *ast.InterpString:
		c.compileInterpString(e)
	case *ast.BinaryExpr:
		c.compileBinaryExpr(e)
	case *ast.UnaryExpr:
		c.compileExpr(e.X)
		switch e.Op {
		case "-":
			c.emit(bytecode.OpNeg, 0)
		case "!":
			c.emit(bytecode.OpNot, 0)
		default:
			c.errorf("line %d: unknown unary operator %q", e.Line, e.Op)
		}
	case *ast.CallExpr:
		c.compileExpr(e.Callee)
		for _, a := range e.Args {
			c.compileExpr(a)
		}
		c.emit(bytecode.OpCall, bytecode.PackCall(0, len(e.Args)))
	case *ast.MethodCallExpr:
		c.compileExpr(e.Receiver)
		for _, a := range e.Args {
			c.compileExpr(a)
		}
		selIdx := c.strConst(e.Method)
		c.emit(bytecode.OpCallMethod, bytecode.PackCall(selIdx, len(e.Args)))
	case *ast.MemberExpr:
		c.compileExpr(e.X)
		nameIdx := c.strConst(e.Name)
		c.emit(bytecode.OpGetMember, int32(nameIdx))
	case *ast.IndexExpr:
		c.compileExpr(e.X)
		c.compileExpr(e.Index)
		c.emit(bytecode.OpGetIndex, 0)
	case *ast.ListLit:
		for _, el := range e.Elems {
			c.compileExpr(el)
		}
		c.emit(bytecode.OpMakeList, int32(len(e.Elems)))
	case *ast.TupleLit:
		for _, el := range e.Elems {
			c.compileExpr(el)
		}
		c.emit(bytecode.OpMakeTuple, int32(len(e.Elems)))
	case *ast.DictLit:
		for _, entry := range e.Entries {
			c.compileExpr(entry.Key)
			c.compileExpr(entry.Value)
		}
		c.emit(bytecode.OpMakeDict, int32(len(e.Entries)))
	case *ast.SetLit:
		for _, el := range e.Elems {
			c.compileExpr(el)
		}
		c.emit(bytecode.OpMakeSet, int32(len(e.Elems)))
	case *ast.RangeExpr:
		c.compileExpr(e.Start)
		c.compileExpr(e.End)
		incl := int32(0)
		if e.Inclusive {
			incl = 1
		}
		c.emit(bytecode.OpMakeRange, incl)
	case *ast.FuncLit:
		idx := c.compileFuncConst("<lambda>", e.Params, e.Body)
		c.emit(bytecode.OpMakeFunction, int32(idx))
	case *ast.StructInitExpr:
		c.compileStructInit(e)
	case *ast.EnumCtorExpr:
		c.compileEnumCtor(e)
	case *ast.MatchExpr:
		c.compileMatchExpr(e)
	default:
		c.errorf("internal: unhandled expression %T", e)
		c.emit(bytecode.OpConstNull, 0)
	}
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
	case "<=":
		return bytecode.OpLe, true
	case ">":
		return bytecode.OpGt, true
	case ">=":
		return bytecode.OpGe, true
	case "==":
		return bytecode.OpEq, true
	case "!=":
		return bytecode.OpNe, true
	case "&&":
		return bytecode.OpAnd, true
	case "||":
		return bytecode.OpOr, true
	default:
		return 0, false
	}
}

func (c *Compiler) compileBinaryExpr(e *ast.BinaryExpr) {
	op, ok := binOpFor(e.Op)
	if !ok {
		c.errorf("line %d: unknown binary operator %q", e.Line, e.Op)
		c.emit(bytecode.OpConstNull, 0)
		return
	}
	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	c.emit(op, 0)
}

func (c *Compiler) compileInterpString(e *ast.InterpString) {
	c.emit(bytecode.OpBuilderNewCap, int32(len(e.Parts)))
	for _, part := range e.Parts {
		if part.Expr != nil {
			c.compileExpr(part.Expr)
		} else {
			c.emit(bytecode.OpConstStr, int32(c.strConst(part.Literal)))
		}
		c.emit(bytecode.OpBuilderAppend, 0)
	}
	c.emit(bytecode.OpBuilderFinalize, 0)
}

func (c *Compiler) compileStructInit(e *ast.StructInitExpr) {
	idx, ok := c.structIdx[e.TypeName]
	if !ok {
		c.errorf("line %d: undefined struct %q", e.Line, e.TypeName)
		c.emit(bytecode.OpConstNull, 0)
		return
	}
	def := c.bc.Structs[idx]
	byName := map[string]ast.Expr{}
	for _, entry := range e.Fields {
		if id, ok := entry.Key.(*ast.Ident); ok {
			byName[id.Name] = entry.Value
		}
	}
	for _, f := range def.Fields {
		if expr, ok := byName[f.Name]; ok {
			c.compileExpr(expr)
		} else if e.Spread != nil {
			c.compileExpr(&ast.MemberExpr{X: e.Spread, Name: f.Name, Line: e.Line})
		} else {
			c.emit(bytecode.OpConstNull, 0)
		}
	}
	if e.Spread != nil {
		c.compileExpr(e.Spread)
		c.emit(bytecode.OpStructInitSpread, int32(idx))
	} else {
		c.emit(bytecode.OpStructInit, int32(idx))
	}
}

func (c *Compiler) compileEnumCtor(e *ast.EnumCtorExpr) {
	enumIdx, ok := c.enumIdx[e.TypeName]
	if !ok {
		c.errorf("line %d: undefined enum %q", e.Line, e.TypeName)
		c.emit(bytecode.OpConstNull, 0)
		return
	}
	variantIdx, ok := c.variantIdx[e.TypeName][e.Variant]
	if !ok {
		c.errorf("line %d: enum %q has no variant %q", e.Line, e.TypeName, e.Variant)
		c.emit(bytecode.OpConstNull, 0)
		return
	}
	for _, a := range e.Args {
		c.compileExpr(a)
	}
	c.emit(bytecode.OpEnumCtor, bytecode.PackDepthIndex(enumIdx, variantIdx))
}

// --- match ---

// compileMatchExpr lowers a match expression to a comparison/jump chain:
// the scrutinee is bound once to a synthetic name so every arm can test
// it without recomputing side effects, each arm runs its structural test
// and optional guard inside its own Env frame (so pattern bindings never
// leak past a failed or successful arm), and falling off the last arm
// throws -- matches are expected to be exhaustive.
func (c *Compiler) compileMatchExpr(e *ast.MatchExpr) {
	c.matchSeq++
	scrutinee := fmt.Sprintf("$match%d", c.matchSeq)
	c.compileExpr(e.X)
	nameIdx := c.strConst(scrutinee)
	c.emit(bytecode.OpDefineName, bytecode.PackDefine(nameIdx, true))

	var endJumps []int
	for _, arm := range e.Arms {
		c.emit(bytecode.OpEnvPush, 0)
		c.envDepth++

		c.compilePatternTest(arm.Pattern, scrutinee)
		failJump := c.emit(bytecode.OpJumpIfFalse, 0)

		guardFailJump := -1
		if arm.Guard != nil {
			c.compileExpr(arm.Guard)
			guardFailJump = c.emit(bytecode.OpJumpIfFalse, 0)
		}

		c.compileExpr(arm.Body)
		c.envDepth--
		c.emit(bytecode.OpEnvPop, 0)
		endJumps = append(endJumps, c.emit(bytecode.OpJump, 0))

		failLabel := c.here()
		c.patch(failJump, failLabel)
		if guardFailJump >= 0 {
			c.patch(guardFailJump, failLabel)
		}
		c.emit(bytecode.OpEnvPop, 0)
	}

	c.emit(bytecode.OpConstStr, int32(c.strConst("no match arm matched the value")))
	c.emit(bytecode.OpThrow, 0)

	end := c.here()
	for _, j := range endJumps {
		c.patch(j, end)
	}
}

// compilePatternTest emits code that leaves a single bool on the stack:
// whether the value currently bound to srcName structurally matches pat.
// Binding sub-patterns (BindPattern, and the leaves of Tuple/EnumVariant
// patterns) define their names as a side effect of testing -- harmless
// even on a failed match, since the enclosing arm's Env frame is popped
// either way.
func (c *Compiler) compilePatternTest(pat ast.Pattern, srcName string) {
	switch p := pat.(type) {
	case *ast.WildcardPattern:
		c.emit(bytecode.OpConstBool, 1)

	case *ast.BindPattern:
		nameIdx := c.strConst(srcName)
		c.emit(bytecode.OpLoadName, int32(nameIdx))
		bindIdx := c.strConst(p.Name)
		c.emit(bytecode.OpDefineName, bytecode.PackDefine(bindIdx, true))
		c.emit(bytecode.OpConstBool, 1)

	case *ast.LiteralPattern:
		nameIdx := c.strConst(srcName)
		c.emit(bytecode.OpLoadName, int32(nameIdx))
		c.compileExpr(p.Value)
		c.emit(bytecode.OpEq, 0)

	case *ast.TuplePattern:
		c.compileGuardedPatternTest(func() {
			c.compileExpr(&ast.MethodCallExpr{Receiver: &ast.Ident{Name: srcName}, Method: "len"})
			c.compileExpr(&ast.IntLit{Value: int32(len(p.Elems))})
			c.emit(bytecode.OpEq, 0)
			for i, sub := range p.Elems {
				subName := fmt.Sprintf("%s.%d", srcName, i)
				c.compileExpr(&ast.IndexExpr{X: &ast.Ident{Name: srcName}, Index: &ast.IntLit{Value: int32(i)}})
				subIdx := c.strConst(subName)
				c.emit(bytecode.OpDefineName, bytecode.PackDefine(subIdx, true))
				c.compilePatternTest(sub, subName)
				c.emit(bytecode.OpAnd, 0)
			}
		})

	case *ast.EnumVariantPattern:
		c.compileGuardedPatternTest(func() {
			c.compileExpr(&ast.CallExpr{
				Callee: &ast.Ident{Name: "__builtin_enum_variant"},
				Args:   []ast.Expr{&ast.Ident{Name: srcName}},
			})
			c.emit(bytecode.OpConstStr, int32(c.strConst(p.TypeName+"::"+p.Variant)))
			c.emit(bytecode.OpEq, 0)
			for i, sub := range p.Args {
				subName := fmt.Sprintf("%s.%d", srcName, i)
				c.compileExpr(&ast.CallExpr{
					Callee: &ast.Ident{Name: "__builtin_enum_arg"},
					Args:   []ast.Expr{&ast.Ident{Name: srcName}, &ast.IntLit{Value: int32(i)}},
				})
				subIdx := c.strConst(subName)
				c.emit(bytecode.OpDefineName, bytecode.PackDefine(subIdx, true))
				c.compilePatternTest(sub, subName)
				c.emit(bytecode.OpAnd, 0)
			}
		})

	default:
		c.errorf("internal: unhandled pattern %T", p)
		c.emit(bytecode.OpConstBool, 0)
	}
}

// compileGuardedPatternTest wraps body (which must leave exactly one bool
// on the stack) in a PushHandler/PopHandler pair that turns any runtime
// type-mismatch exception (e.g. indexing a non-tuple, or a struct
// receiver with no `len` method) into a plain `false`, since a pattern
// that structurally doesn't apply to a value should fail the arm, not
// escape the match expression as an uncaught exception.
func (c *Compiler) compileGuardedPatternTest(body func()) {
	pushIdx := c.emit(bytecode.OpPushHandler, 0)
	body()
	c.emit(bytecode.OpPopHandler, 0)
	okJump := c.emit(bytecode.OpJump, 0)

	catchIP := c.here()
	c.emit(bytecode.OpPop, 0)
	c.emit(bytecode.OpConstBool, 0)

	end := c.here()
	c.patch(okJump, end)
	c.cur.proto.Code[pushIdx].Operand = bytecode.PackHandlerTargets(catchIP, -1)
}

