// Package parser implements a recursive-descent parser that turns a
// token stream from pkg/lexer into an *ast.Module, in the same top-down
// operator-precedence style the teacher's parser used, adapted from
// Smalltalk message cascades to xu's curly-brace statement/expression
// grammar and retargeted to this repository's own pkg/ast node set.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kristofer/xu/pkg/ast"
	"github.com/kristofer/xu/pkg/lexer"
)

// Parser consumes a Lexer's token stream one token of lookahead at a
// time.
type Parser struct {
	l *lexer.Lexer

	cur  lexer.Token
	peek lexer.Token

	// noStructLit suppresses `Ident { ... }` struct literals while
	// parsing an if/while/for/match header expression, where the `{`
	// belongs to the statement body. Re-enabled inside any
	// parenthesized or bracketed sub-expression.
	noStructLit bool

	errors []string
}

// New builds a Parser reading from l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("line %d: %s", p.cur.Line, msg))
}

// Errors reports every parse error accumulated so far, for callers that
// want to keep parsing past the first mistake (e.g. the `check` CLI
// subcommand collecting all diagnostics in one pass).
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) expect(tt lexer.TokenType) lexer.Token {
	tok := p.cur
	if p.cur.Type != tt {
		p.errorf("expected %s, got %s (%q)", tt, p.cur.Type, p.cur.Literal)
	}
	p.next()
	return tok
}

func (p *Parser) at(tt lexer.TokenType) bool { return p.cur.Type == tt }

// parseHeaderExpr parses the controlling expression of a braced
// statement, with struct literals suppressed so the statement's `{`
// isn't swallowed as a literal body.
func (p *Parser) parseHeaderExpr() ast.Expr {
	saved := p.noStructLit
	p.noStructLit = true
	x := p.parseExpr(precLowest)
	p.noStructLit = saved
	return x
}

// enclosed parses a sub-expression inside explicit delimiters, where a
// struct literal is unambiguous again.
func (p *Parser) enclosed(fn func() ast.Expr) ast.Expr {
	saved := p.noStructLit
	p.noStructLit = false
	x := fn()
	p.noStructLit = saved
	return x
}

// ParseModule parses the entire token stream as one module.
func (p *Parser) ParseModule(path string) *ast.Module {
	mod := &ast.Module{Path: path}
	for !p.at(lexer.TokenEOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			mod.Statements = append(mod.Statements, stmt)
		}
		if p.at(lexer.TokenSemi) {
			p.next()
		}
	}
	return mod
}

// --- statements ---

func (p *Parser) parseStatement() ast.Stmt {
	switch p.cur.Type {
	case lexer.TokenLet, lexer.TokenVar:
		return p.parseLetStmt()
	case lexer.TokenIf:
		return p.parseIfStmt()
	case lexer.TokenWhile:
		return p.parseWhileStmt()
	case lexer.TokenFor:
		return p.parseForEachStmt()
	case lexer.TokenReturn:
		return p.parseReturnStmt()
	case lexer.TokenBreak:
		line := p.cur.Line
		p.next()
		return &ast.BreakStmt{Line: line}
	case lexer.TokenContinue:
		line := p.cur.Line
		p.next()
		return &ast.ContinueStmt{Line: line}
	case lexer.TokenTry:
		return p.parseTryStmt()
	case lexer.TokenThrow:
		return p.parseThrowStmt()
	case lexer.TokenFunc:
		return p.parseFuncDecl()
	case lexer.TokenStruct:
		return p.parseStructDecl()
	case lexer.TokenEnum:
		return p.parseEnumDecl()
	case lexer.TokenImport, lexer.TokenUse:
		return p.parseImportStmt()
	case lexer.TokenLBrace:
		return p.parseBlock()
	default:
		return p.parseExprOrAssignStmt()
	}
}

func (p *Parser) parseLetStmt() ast.Stmt {
	line := p.cur.Line
	mutable := p.cur.Type == lexer.TokenVar
	p.next()
	name := p.expect(lexer.TokenIdent).Literal
	p.expect(lexer.TokenAssign)
	value := p.parseExpr(precLowest)
	return &ast.LetStmt{Name: name, Mutable: mutable, Value: value, Line: line}
}

func (p *Parser) parseBlock() *ast.Block {
	p.expect(lexer.TokenLBrace)
	b := &ast.Block{}
	for !p.at(lexer.TokenRBrace) && !p.at(lexer.TokenEOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			b.Statements = append(b.Statements, stmt)
		}
		if p.at(lexer.TokenSemi) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return b
}

func (p *Parser) parseIfStmt() ast.Stmt {
	line := p.cur.Line
	stmt := &ast.IfStmt{Line: line}
	p.expect(lexer.TokenIf)
	cond := p.parseHeaderExpr()
	body := p.parseBlock()
	stmt.Branches = append(stmt.Branches, ast.IfBranch{Cond: cond, Body: body})
	for p.at(lexer.TokenElse) {
		p.next()
		if p.at(lexer.TokenIf) {
			p.next()
			elseCond := p.parseHeaderExpr()
			elseBody := p.parseBlock()
			stmt.Branches = append(stmt.Branches, ast.IfBranch{Cond: elseCond, Body: elseBody})
			continue
		}
		stmt.Else = p.parseBlock()
		break
	}
	return stmt
}

func (p *Parser) parseWhileStmt() ast.Stmt {
	line := p.cur.Line
	p.expect(lexer.TokenWhile)
	cond := p.parseHeaderExpr()
	body := p.parseBlock()
	return &ast.WhileStmt{Cond: cond, Body: body, Line: line}
}

func (p *Parser) parseForEachStmt() ast.Stmt {
	line := p.cur.Line
	p.expect(lexer.TokenFor)
	name := p.expect(lexer.TokenIdent).Literal
	p.expect(lexer.TokenIn)
	src := p.parseHeaderExpr()
	body := p.parseBlock()
	return &ast.ForEachStmt{VarName: name, Source: src, Body: body, Line: line}
}

func (p *Parser) parseReturnStmt() ast.Stmt {
	line := p.cur.Line
	p.next()
	if p.at(lexer.TokenRBrace) || p.at(lexer.TokenSemi) || p.at(lexer.TokenEOF) {
		return &ast.ReturnStmt{Line: line}
	}
	return &ast.ReturnStmt{Value: p.parseExpr(precLowest), Line: line}
}

func (p *Parser) parseTryStmt() ast.Stmt {
	line := p.cur.Line
	p.expect(lexer.TokenTry)
	body := p.parseBlock()
	stmt := &ast.TryStmt{Body: body, Line: line}
	if p.at(lexer.TokenCatch) {
		p.next()
		cc := &ast.CatchClause{}
		if p.at(lexer.TokenLParen) {
			p.next()
			cc.VarName = p.expect(lexer.TokenIdent).Literal
			p.expect(lexer.TokenRParen)
		} else if p.at(lexer.TokenIdent) {
			cc.VarName = p.cur.Literal
			p.next()
		}
		cc.Body = p.parseBlock()
		stmt.Catch = cc
	}
	if p.at(lexer.TokenFinally) {
		p.next()
		stmt.Finally = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseThrowStmt() ast.Stmt {
	line := p.cur.Line
	p.next()
	return &ast.ThrowStmt{Value: p.parseExpr(precLowest), Line: line}
}

func (p *Parser) parseParamList() []ast.Param {
	p.expect(lexer.TokenLParen)
	var params []ast.Param
	for !p.at(lexer.TokenRParen) {
		name := p.expect(lexer.TokenIdent).Literal
		typeName := ""
		if p.at(lexer.TokenColon) {
			p.next()
			typeName = p.expect(lexer.TokenIdent).Literal
		}
		params = append(params, ast.Param{Name: name, Type: typeName})
		if p.at(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRParen)
	return params
}

func (p *Parser) parseFuncDecl() *ast.FuncDecl {
	line := p.cur.Line
	p.expect(lexer.TokenFunc)
	name := p.expect(lexer.TokenIdent).Literal
	params := p.parseParamList()
	body := p.parseBlock()
	return &ast.FuncDecl{Name: name, Params: params, Body: body, Line: line}
}

func (p *Parser) parseStructDecl() ast.Stmt {
	line := p.cur.Line
	p.expect(lexer.TokenStruct)
	name := p.expect(lexer.TokenIdent).Literal
	decl := &ast.StructDecl{Name: name, Line: line}
	p.expect(lexer.TokenLBrace)
	for !p.at(lexer.TokenRBrace) && !p.at(lexer.TokenEOF) {
		switch {
		case p.at(lexer.TokenStatic):
			p.next()
			decl.Statics = append(decl.Statics, p.parseFuncDecl())
		case p.at(lexer.TokenFunc):
			decl.Methods = append(decl.Methods, p.parseFuncDecl())
		case p.at(lexer.TokenIdent):
			fname := p.cur.Literal
			p.next()
			ftype := ""
			if p.at(lexer.TokenColon) {
				p.next()
				ftype = p.expect(lexer.TokenIdent).Literal
			}
			decl.Fields = append(decl.Fields, ast.FieldDecl{Name: fname, Type: ftype})
		default:
			p.errorf("unexpected token %s in struct body", p.cur.Type)
			p.next()
		}
		if p.at(lexer.TokenComma) || p.at(lexer.TokenSemi) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return decl
}

func (p *Parser) parseEnumDecl() ast.Stmt {
	line := p.cur.Line
	p.expect(lexer.TokenEnum)
	name := p.expect(lexer.TokenIdent).Literal
	decl := &ast.EnumDecl{Name: name, Line: line}
	p.expect(lexer.TokenLBrace)
	for !p.at(lexer.TokenRBrace) && !p.at(lexer.TokenEOF) {
		vname := p.expect(lexer.TokenIdent).Literal
		arity := 0
		if p.at(lexer.TokenLParen) {
			p.next()
			for !p.at(lexer.TokenRParen) {
				p.expect(lexer.TokenIdent)
				arity++
				if p.at(lexer.TokenComma) {
					p.next()
				}
			}
			p.expect(lexer.TokenRParen)
		}
		decl.Variants = append(decl.Variants, ast.EnumVariantDecl{Name: vname, Arity: arity})
		if p.at(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return decl
}

func (p *Parser) parseImportStmt() ast.Stmt {
	line := p.cur.Line
	p.next() // `import` or `use`
	pathTok := p.expect(lexer.TokenString)
	path := resolveEscapes(pathTok.Literal)
	alias := ""
	if p.at(lexer.TokenAs) {
		p.next()
		alias = p.expect(lexer.TokenIdent).Literal
	}
	return &ast.ImportStmt{Path: path, Alias: alias, Line: line}
}

// parseExprOrAssignStmt disambiguates a bare expression statement from an
// assignment or compound assignment: it parses one expression and, if an
// assignment operator follows, reinterprets that expression as an
// assignment target.
func (p *Parser) parseExprOrAssignStmt() ast.Stmt {
	line := p.cur.Line
	x := p.parseExpr(precLowest)
	switch p.cur.Type {
	case lexer.TokenAssign:
		p.next()
		value := p.parseExpr(precLowest)
		return &ast.AssignStmt{Target: x, Value: value, Line: line}
	case lexer.TokenPlusEq:
		p.next()
		value := p.parseExpr(precLowest)
		return &ast.CompoundAssignStmt{Target: x, Op: "+=", Value: value, Line: line}
	default:
		return &ast.ExprStmt{X: x}
	}
}

// --- expressions: precedence-climbing ---

const (
	precLowest = iota
	precOr
	precAnd
	precEquality
	precComparison
	precRange
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

func precedenceOf(tt lexer.TokenType) int {
	switch tt {
	case lexer.TokenOrOr:
		return precOr
	case lexer.TokenAndAnd:
		return precAnd
	case lexer.TokenEq, lexer.TokenNeq:
		return precEquality
	case lexer.TokenLt, lexer.TokenLe, lexer.TokenGt, lexer.TokenGe:
		return precComparison
	case lexer.TokenDotDot, lexer.TokenDotDotEq:
		return precRange
	case lexer.TokenPlus, lexer.TokenMinus:
		return precAdditive
	case lexer.TokenStar, lexer.TokenSlash, lexer.TokenPercent:
		return precMultiplicative
	default:
		return precLowest
	}
}

func (p *Parser) parseExpr(minPrec int) ast.Expr {
	left := p.parseUnary()
	for {
		prec := precedenceOf(p.cur.Type)
		if prec <= minPrec || prec == precLowest {
			break
		}
		op := p.cur
		if op.Type == lexer.TokenDotDot || op.Type == lexer.TokenDotDotEq {
			p.next()
			right := p.parseExpr(precRange)
			left = &ast.RangeExpr{Start: left, End: right, Inclusive: op.Type == lexer.TokenDotDotEq}
			continue
		}
		p.next()
		right := p.parseExpr(prec)
		left = &ast.BinaryExpr{Op: op.Literal, Left: left, Right: right, Line: op.Line}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.at(lexer.TokenBang) || p.at(lexer.TokenMinus) {
		op := p.cur
		p.next()
		x := p.parseUnary()
		return &ast.UnaryExpr{Op: op.Literal, X: x, Line: op.Line}
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parsePostfix(x ast.Expr) ast.Expr {
	for {
		switch p.cur.Type {
		case lexer.TokenDot:
			line := p.cur.Line
			p.next()
			name := p.expect(lexer.TokenIdent).Literal
			if p.at(lexer.TokenLParen) {
				args := p.parseArgs()
				x = &ast.MethodCallExpr{Receiver: x, Method: name, Args: args, Line: line}
			} else {
				x = &ast.MemberExpr{X: x, Name: name, Line: line}
			}
		case lexer.TokenLBracket:
			line := p.cur.Line
			p.next()
			idx := p.enclosed(func() ast.Expr { return p.parseExpr(precLowest) })
			p.expect(lexer.TokenRBracket)
			x = &ast.IndexExpr{X: x, Index: idx, Line: line}
		case lexer.TokenLParen:
			line := p.cur.Line
			args := p.parseArgs()
			x = &ast.CallExpr{Callee: x, Args: args, Line: line}
		default:
			return x
		}
	}
}

func (p *Parser) parseArgs() []ast.Expr {
	p.expect(lexer.TokenLParen)
	var args []ast.Expr
	for !p.at(lexer.TokenRParen) {
		args = append(args, p.enclosed(func() ast.Expr { return p.parseExpr(precLowest) }))
		if p.at(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRParen)
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur
	switch tok.Type {
	case lexer.TokenInt:
		p.next()
		n, err := strconv.ParseInt(tok.Literal, 10, 32)
		if err != nil {
			p.errorf("invalid integer literal %q", tok.Literal)
		}
		return &ast.IntLit{Value: int32(n)}
	case lexer.TokenFloat:
		p.next()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("invalid float literal %q", tok.Literal)
		}
		return &ast.FloatLit{Value: f}
	case lexer.TokenTrue:
		p.next()
		return &ast.BoolLit{Value: true}
	case lexer.TokenFalse:
		p.next()
		return &ast.BoolLit{Value: false}
	case lexer.TokenNil:
		p.next()
		return &ast.UnitLit{}
	case lexer.TokenString:
		p.next()
		return p.parseInterpolation(tok.Literal, tok.Line)
	case lexer.TokenIdent, lexer.TokenUnderscore:
		p.next()
		if p.at(lexer.TokenDoubleColon) {
			p.next()
			variant := p.expect(lexer.TokenIdent).Literal
			var args []ast.Expr
			if p.at(lexer.TokenLParen) {
				args = p.parseArgs()
			}
			return &ast.EnumCtorExpr{TypeName: tok.Literal, Variant: variant, Args: args, Line: tok.Line}
		}
		if p.at(lexer.TokenLBrace) && !p.noStructLit {
			return p.parseStructInit(tok.Literal, tok.Line)
		}
		return &ast.Ident{Name: tok.Literal, Line: tok.Line}
	case lexer.TokenLParen:
		p.next()
		if p.at(lexer.TokenRParen) {
			p.next()
			return &ast.TupleLit{}
		}
		first := p.enclosed(func() ast.Expr { return p.parseExpr(precLowest) })
		if p.at(lexer.TokenComma) {
			elems := []ast.Expr{first}
			for p.at(lexer.TokenComma) {
				p.next()
				if p.at(lexer.TokenRParen) {
					break
				}
				elems = append(elems, p.enclosed(func() ast.Expr { return p.parseExpr(precLowest) }))
			}
			p.expect(lexer.TokenRParen)
			return &ast.TupleLit{Elems: elems}
		}
		p.expect(lexer.TokenRParen)
		return first
	case lexer.TokenLBracket:
		p.next()
		var elems []ast.Expr
		for !p.at(lexer.TokenRBracket) {
			elems = append(elems, p.enclosed(func() ast.Expr { return p.parseExpr(precLowest) }))
			if p.at(lexer.TokenComma) {
				p.next()
			}
		}
		p.expect(lexer.TokenRBracket)
		return &ast.ListLit{Elems: elems}
	case lexer.TokenHashLBrace:
		p.next()
		var elems []ast.Expr
		for !p.at(lexer.TokenRBrace) {
			elems = append(elems, p.parseExpr(precLowest))
			if p.at(lexer.TokenComma) {
				p.next()
			}
		}
		p.expect(lexer.TokenRBrace)
		return &ast.SetLit{Elems: elems}
	case lexer.TokenLBrace:
		return p.parseDictLit()
	case lexer.TokenFn:
		return p.parseFuncLit()
	case lexer.TokenMatch:
		return p.parseMatchExpr()
	default:
		p.errorf("unexpected token %s (%q) in expression", tok.Type, tok.Literal)
		p.next()
		return &ast.UnitLit{}
	}
}

func (p *Parser) parseStructInit(typeName string, line int) ast.Expr {
	p.expect(lexer.TokenLBrace)
	lit := &ast.StructInitExpr{TypeName: typeName, Line: line}
	for !p.at(lexer.TokenRBrace) {
		if p.cur.Type == lexer.TokenDotDot || p.cur.Type == lexer.TokenDotDotEq {
			p.next()
			lit.Spread = p.parseExpr(precLowest)
		} else {
			fname := p.expect(lexer.TokenIdent).Literal
			p.expect(lexer.TokenColon)
			fval := p.parseExpr(precLowest)
			lit.Fields = append(lit.Fields, ast.DictEntry{Key: &ast.Ident{Name: fname}, Value: fval})
		}
		if p.at(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return lit
}

// parseDictLit parses a `{...}` literal as a Dict if its first entry has
// a `key: value` shape, or a Set otherwise; `{}` defaults to an empty
// dict, matching how most curly-literal languages resolve the ambiguity.
func (p *Parser) parseDictLit() ast.Expr {
	p.expect(lexer.TokenLBrace)
	if p.at(lexer.TokenRBrace) {
		p.next()
		return &ast.DictLit{}
	}
	first := p.parseExpr(precLowest)
	if p.at(lexer.TokenColon) {
		p.next()
		firstVal := p.parseExpr(precLowest)
		lit := &ast.DictLit{Entries: []ast.DictEntry{{Key: first, Value: firstVal}}}
		for p.at(lexer.TokenComma) {
			p.next()
			if p.at(lexer.TokenRBrace) {
				break
			}
			k := p.parseExpr(precLowest)
			p.expect(lexer.TokenColon)
			v := p.parseExpr(precLowest)
			lit.Entries = append(lit.Entries, ast.DictEntry{Key: k, Value: v})
		}
		p.expect(lexer.TokenRBrace)
		return lit
	}
	elems := []ast.Expr{first}
	for p.at(lexer.TokenComma) {
		p.next()
		if p.at(lexer.TokenRBrace) {
			break
		}
		elems = append(elems, p.parseExpr(precLowest))
	}
	p.expect(lexer.TokenRBrace)
	return &ast.SetLit{Elems: elems}
}

func (p *Parser) parseFuncLit() ast.Expr {
	line := p.cur.Line
	p.expect(lexer.TokenFn)
	params := p.parseParamList()
	body := p.parseBlock()
	return &ast.FuncLit{Params: params, Body: body, Line: line}
}

func (p *Parser) parseMatchExpr() ast.Expr {
	line := p.cur.Line
	p.expect(lexer.TokenMatch)
	x := p.parseHeaderExpr()
	p.expect(lexer.TokenLBrace)
	me := &ast.MatchExpr{X: x, Line: line}
	for !p.at(lexer.TokenRBrace) {
		pat := p.parsePattern()
		var guard ast.Expr
		if p.at(lexer.TokenIf) {
			p.next()
			guard = p.parseExpr(precLowest)
		}
		p.expect(lexer.TokenFatArrow)
		body := p.parseExpr(precLowest)
		me.Arms = append(me.Arms, ast.MatchArm{Pattern: pat, Guard: guard, Body: body})
		if p.at(lexer.TokenComma) {
			p.next()
		}
	}
	p.expect(lexer.TokenRBrace)
	return me
}

func (p *Parser) parsePattern() ast.Pattern {
	switch p.cur.Type {
	case lexer.TokenUnderscore:
		p.next()
		return &ast.WildcardPattern{}
	case lexer.TokenInt, lexer.TokenFloat, lexer.TokenTrue, lexer.TokenFalse, lexer.TokenString:
		return &ast.LiteralPattern{Value: p.parsePrimary()}
	case lexer.TokenLParen:
		p.next()
		var elems []ast.Pattern
		for !p.at(lexer.TokenRParen) {
			elems = append(elems, p.parsePattern())
			if p.at(lexer.TokenComma) {
				p.next()
			}
		}
		p.expect(lexer.TokenRParen)
		return &ast.TuplePattern{Elems: elems}
	case lexer.TokenIdent:
		name := p.cur.Literal
		p.next()
		if p.at(lexer.TokenDoubleColon) {
			p.next()
			variant := p.expect(lexer.TokenIdent).Literal
			var args []ast.Pattern
			if p.at(lexer.TokenLParen) {
				p.next()
				for !p.at(lexer.TokenRParen) {
					args = append(args, p.parsePattern())
					if p.at(lexer.TokenComma) {
						p.next()
					}
				}
				p.expect(lexer.TokenRParen)
			}
			return &ast.EnumVariantPattern{TypeName: name, Variant: variant, Args: args}
		}
		return &ast.BindPattern{Name: name}
	default:
		p.errorf("unexpected token %s in pattern", p.cur.Type)
		p.next()
		return &ast.WildcardPattern{}
	}
}

// parseInterpolation is the single, shared algorithm that turns a
// string token's raw body into either a plain StrLit (the common case,
// no `${`) or an InterpString of literal/expression parts. Both the
// top-level parse and any nested re-entry (a sub-lexer/sub-parser pair
// over the text inside `${...}`) funnel through this one function --
// there is exactly one interpolation grammar in this codebase.
func (p *Parser) parseInterpolation(raw string, line int) ast.Expr {
	if !strings.Contains(raw, "${") {
		return &ast.StrLit{Value: resolveEscapes(raw)}
	}

	var parts []ast.InterpStringPart
	var lit strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			if lit.Len() > 0 {
				parts = append(parts, ast.InterpStringPart{Literal: resolveEscapes(lit.String())})
				lit.Reset()
			}
			depth := 1
			j := i + 2
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						continue
					}
				}
				j++
			}
			inner := raw[i+2 : j]
			subParser := New(lexer.New(inner))
			expr := subParser.parseExpr(precLowest)
			for _, e := range subParser.errors {
				p.errors = append(p.errors, fmt.Sprintf("Interpolation error in %q: %s", inner, e))
			}
			parts = append(parts, ast.InterpStringPart{Expr: expr})
			i = j + 1
			continue
		}
		lit.WriteByte(raw[i])
		i++
	}
	if lit.Len() > 0 {
		parts = append(parts, ast.InterpStringPart{Literal: resolveEscapes(lit.String())})
	}
	_ = line
	return &ast.InterpString{Parts: parts}
}

func resolveEscapes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '$':
				b.WriteByte('$')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
