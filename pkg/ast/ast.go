// Package ast defines the Abstract Syntax Tree nodes for xu. The AST
// executor (pkg/exec) walks these directly; the compiler (pkg/compiler)
// lowers them to bytecode (pkg/bytecode).
package ast

// Node is the interface every AST node implements.
type Node interface {
	TokenLiteral() string
}

// Expr is any node that produces a Value when evaluated.
type Expr interface {
	Node
	exprNode()
}

// Stmt is any node executed for effect.
type Stmt interface {
	Node
	stmtNode()
}

// Module is the root of a parsed file: a flat list of top-level
// statements (declarations, imports, and executable statements all mixed,
// matching how xu source is organized).
type Module struct {
	Path       string
	Statements []Stmt
}

func (m *Module) TokenLiteral() string {
	if len(m.Statements) > 0 {
		return m.Statements[0].TokenLiteral()
	}
	return ""
}

// --- statements ---

type LetStmt struct {
	Name    string
	Mutable bool
	Value   Expr
	Line    int
}

func (s *LetStmt) TokenLiteral() string { return "let" }
func (s *LetStmt) stmtNode()            {}

type AssignStmt struct {
	Target Expr // Ident, MemberExpr, or IndexExpr
	Value  Expr
	Line   int
}

func (s *AssignStmt) TokenLiteral() string { return "=" }
func (s *AssignStmt) stmtNode()            {}

// CompoundAssignStmt covers `name += expr` style updates, kept distinct
// from AssignStmt so the compiler can emit the dedicated AddAssign ops.
type CompoundAssignStmt struct {
	Target Expr
	Op     string // "+=" for now; others fall back to desugaring in the compiler
	Value  Expr
	Line   int
}

func (s *CompoundAssignStmt) TokenLiteral() string { return s.Op }
func (s *CompoundAssignStmt) stmtNode()            {}

type ExprStmt struct {
	X Expr
}

func (s *ExprStmt) TokenLiteral() string { return s.X.TokenLiteral() }
func (s *ExprStmt) stmtNode()            {}

type Block struct {
	Statements []Stmt
}

func (b *Block) TokenLiteral() string { return "block" }
func (b *Block) stmtNode()            {}

type IfBranch struct {
	Cond Expr
	Body *Block
}

type IfStmt struct {
	Branches []IfBranch
	Else     *Block // nil if there is no else
	Line     int
}

func (s *IfStmt) TokenLiteral() string { return "if" }
func (s *IfStmt) stmtNode()            {}

type WhileStmt struct {
	Cond Expr
	Body *Block
	Line int
}

func (s *WhileStmt) TokenLiteral() string { return "while" }
func (s *WhileStmt) stmtNode()            {}

// ForEachStmt iterates a list, tuple, dict (keys), set, range, or string
// (by grapheme cluster).
type ForEachStmt struct {
	VarName string
	Source  Expr
	Body    *Block
	Line    int
}

func (s *ForEachStmt) TokenLiteral() string { return "for" }
func (s *ForEachStmt) stmtNode()            {}

type ReturnStmt struct {
	Value Expr // nil means return Unit
	Line  int
}

func (s *ReturnStmt) TokenLiteral() string { return "return" }
func (s *ReturnStmt) stmtNode()            {}

type BreakStmt struct{ Line int }

func (s *BreakStmt) TokenLiteral() string { return "break" }
func (s *BreakStmt) stmtNode()            {}

type ContinueStmt struct{ Line int }

func (s *ContinueStmt) TokenLiteral() string { return "continue" }
func (s *ContinueStmt) stmtNode()            {}

type CatchClause struct {
	VarName string // bound to the thrown value, "" if not bound
	Body    *Block
}

type TryStmt struct {
	Body    *Block
	Catch   *CatchClause // nil if there is no catch (finally-only try)
	Finally *Block       // nil if there is no finally
	Line    int
}

func (s *TryStmt) TokenLiteral() string { return "try" }
func (s *TryStmt) stmtNode()            {}

type ThrowStmt struct {
	Value Expr
	Line  int
}

func (s *ThrowStmt) TokenLiteral() string { return "throw" }
func (s *ThrowStmt) stmtNode()            {}

type Param struct {
	Name string
	Type string // declared type name, "" if untyped; used for type-signature inline caches
}

type FuncDecl struct {
	Name   string
	Params []Param
	Body   *Block
	Line   int
}

func (s *FuncDecl) TokenLiteral() string { return "func" }
func (s *FuncDecl) stmtNode()            {}

type FieldDecl struct {
	Name string
	Type string
}

type StructDecl struct {
	Name    string
	Fields  []FieldDecl
	Methods []*FuncDecl
	Statics []*FuncDecl
	Line    int
}

func (s *StructDecl) TokenLiteral() string { return "struct" }
func (s *StructDecl) stmtNode()            {}

type EnumVariantDecl struct {
	Name  string
	Arity int
}

type EnumDecl struct {
	Name     string
	Variants []EnumVariantDecl
	Line     int
}

func (s *EnumDecl) TokenLiteral() string { return "enum" }
func (s *EnumDecl) stmtNode()            {}

type ImportStmt struct {
	Path  string
	Alias string // "" means bind by the module's basename
	Line  int
}

func (s *ImportStmt) TokenLiteral() string { return "import" }
func (s *ImportStmt) stmtNode()            {}

// --- expressions ---

type Ident struct {
	Name string
	Line int
}

func (e *Ident) TokenLiteral() string { return e.Name }
func (e *Ident) exprNode()            {}

type IntLit struct {
	Value int32
}

func (e *IntLit) TokenLiteral() string { return "int" }
func (e *IntLit) exprNode()            {}

type FloatLit struct {
	Value float64
}

func (e *FloatLit) TokenLiteral() string { return "float" }
func (e *FloatLit) exprNode()            {}

type BoolLit struct{ Value bool }

func (e *BoolLit) TokenLiteral() string { return "bool" }
func (e *BoolLit) exprNode()            {}

type UnitLit struct{}

func (e *UnitLit) TokenLiteral() string { return "()" }
func (e *UnitLit) exprNode()            {}

// StrLit is a plain, non-interpolated string literal.
type StrLit struct{ Value string }

func (e *StrLit) TokenLiteral() string { return "str" }
func (e *StrLit) exprNode()            {}

// InterpStringPart is either a literal fragment or an embedded expression,
// in source order. The lexer leaves `${...}` unsplit; pkg/parser's
// parseInterpolation is the one place that splits it into parts.
type InterpStringPart struct {
	Literal string
	Expr    Expr // nil if this part is a literal fragment
}

type InterpString struct {
	Parts []InterpStringPart
}

func (e *InterpString) TokenLiteral() string { return "interp" }
func (e *InterpString) exprNode()            {}

type BinaryExpr struct {
	Op          string
	Left, Right Expr
	Line        int
}

func (e *BinaryExpr) TokenLiteral() string { return e.Op }
func (e *BinaryExpr) exprNode()            {}

type UnaryExpr struct {
	Op   string // "-" or "!"
	X    Expr
	Line int
}

func (e *UnaryExpr) TokenLiteral() string { return e.Op }
func (e *UnaryExpr) exprNode()            {}

type CallExpr struct {
	Callee Expr
	Args   []Expr
	Line   int
}

func (e *CallExpr) TokenLiteral() string { return "call" }
func (e *CallExpr) exprNode()            {}

type MethodCallExpr struct {
	Receiver Expr
	Method   string
	Args     []Expr
	Line     int
}

func (e *MethodCallExpr) TokenLiteral() string { return e.Method }
func (e *MethodCallExpr) exprNode()            {}

type MemberExpr struct {
	X    Expr
	Name string
	Line int
}

func (e *MemberExpr) TokenLiteral() string { return e.Name }
func (e *MemberExpr) exprNode()            {}

type IndexExpr struct {
	X     Expr
	Index Expr
	Line  int
}

func (e *IndexExpr) TokenLiteral() string { return "[]" }
func (e *IndexExpr) exprNode()            {}

type ListLit struct{ Elems []Expr }

func (e *ListLit) TokenLiteral() string { return "list" }
func (e *ListLit) exprNode()            {}

type TupleLit struct{ Elems []Expr }

func (e *TupleLit) TokenLiteral() string { return "tuple" }
func (e *TupleLit) exprNode()            {}

type DictEntry struct{ Key, Value Expr }

type DictLit struct{ Entries []DictEntry }

func (e *DictLit) TokenLiteral() string { return "dict" }
func (e *DictLit) exprNode()            {}

type SetLit struct{ Elems []Expr }

func (e *SetLit) TokenLiteral() string { return "set" }
func (e *SetLit) exprNode()            {}

type RangeExpr struct {
	Start, End Expr
	Inclusive  bool
}

func (e *RangeExpr) TokenLiteral() string { return ".." }
func (e *RangeExpr) exprNode()            {}

type FuncLit struct {
	Params []Param
	Body   *Block
	Line   int
}

func (e *FuncLit) TokenLiteral() string { return "fn" }
func (e *FuncLit) exprNode()            {}

// StructInitExpr builds a struct instance. Spread holds an optional base
// expression whose fields are copied first (`Point{...base, x: 1}`).
type StructInitExpr struct {
	TypeName string
	Fields   []DictEntry // Key must be an *Ident naming the field
	Spread   Expr
	Line     int
}

func (e *StructInitExpr) TokenLiteral() string { return e.TypeName }
func (e *StructInitExpr) exprNode()            {}

type EnumCtorExpr struct {
	TypeName string
	Variant  string
	Args     []Expr
	Line     int
}

func (e *EnumCtorExpr) TokenLiteral() string { return e.Variant }
func (e *EnumCtorExpr) exprNode()            {}

// --- patterns (used by MatchExpr) ---

type Pattern interface {
	Node
	patternNode()
}

type WildcardPattern struct{}

func (p *WildcardPattern) TokenLiteral() string { return "_" }
func (p *WildcardPattern) patternNode()         {}

type BindPattern struct{ Name string }

func (p *BindPattern) TokenLiteral() string { return p.Name }
func (p *BindPattern) patternNode()         {}

type LiteralPattern struct{ Value Expr } // IntLit, FloatLit, StrLit, or BoolLit

func (p *LiteralPattern) TokenLiteral() string { return "lit" }
func (p *LiteralPattern) patternNode()         {}

type TuplePattern struct{ Elems []Pattern }

func (p *TuplePattern) TokenLiteral() string { return "tuple-pat" }
func (p *TuplePattern) patternNode()         {}

type EnumVariantPattern struct {
	TypeName string
	Variant  string
	Args     []Pattern
}

func (p *EnumVariantPattern) TokenLiteral() string { return p.Variant }
func (p *EnumVariantPattern) patternNode()         {}

type MatchArm struct {
	Pattern Pattern
	Guard   Expr // nil if unguarded
	Body    Expr
}

type MatchExpr struct {
	X    Expr
	Arms []MatchArm
	Line int
}

func (e *MatchExpr) TokenLiteral() string { return "match" }
func (e *MatchExpr) exprNode()            {}
