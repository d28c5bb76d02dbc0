package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/kristofer/xu/pkg/ast"
)

// dumpModule prints a readable indentation-structured rendering of a
// parsed module, the `xu ast` subcommand's output.
func dumpModule(w io.Writer, mod *ast.Module) {
	fmt.Fprintf(w, "Module %s\n", mod.Path)
	for _, s := range mod.Statements {
		dumpStmt(w, s, 1)
	}
}

func indent(w io.Writer, depth int) {
	io.WriteString(w, strings.Repeat("  ", depth))
}

func dumpStmt(w io.Writer, stmt ast.Stmt, depth int) {
	indent(w, depth)
	switch s := stmt.(type) {
	case *ast.LetStmt:
		kw := "let"
		if s.Mutable {
			kw = "var"
		}
		fmt.Fprintf(w, "%s %s =\n", kw, s.Name)
		dumpExpr(w, s.Value, depth+1)
	case *ast.AssignStmt:
		fmt.Fprintln(w, "assign")
		dumpExpr(w, s.Target, depth+1)
		dumpExpr(w, s.Value, depth+1)
	case *ast.CompoundAssignStmt:
		fmt.Fprintf(w, "compound %s\n", s.Op)
		dumpExpr(w, s.Target, depth+1)
		dumpExpr(w, s.Value, depth+1)
	case *ast.ExprStmt:
		fmt.Fprintln(w, "expr")
		dumpExpr(w, s.X, depth+1)
	case *ast.Block:
		fmt.Fprintln(w, "block")
		for _, st := range s.Statements {
			dumpStmt(w, st, depth+1)
		}
	case *ast.IfStmt:
		fmt.Fprintln(w, "if")
		for _, b := range s.Branches {
			indent(w, depth+1)
			fmt.Fprintln(w, "branch")
			dumpExpr(w, b.Cond, depth+2)
			dumpBlock(w, b.Body, depth+2)
		}
		if s.Else != nil {
			indent(w, depth+1)
			fmt.Fprintln(w, "else")
			dumpBlock(w, s.Else, depth+2)
		}
	case *ast.WhileStmt:
		fmt.Fprintln(w, "while")
		dumpExpr(w, s.Cond, depth+1)
		dumpBlock(w, s.Body, depth+1)
	case *ast.ForEachStmt:
		fmt.Fprintf(w, "for %s in\n", s.VarName)
		dumpExpr(w, s.Source, depth+1)
		dumpBlock(w, s.Body, depth+1)
	case *ast.ReturnStmt:
		fmt.Fprintln(w, "return")
		if s.Value != nil {
			dumpExpr(w, s.Value, depth+1)
		}
	case *ast.BreakStmt:
		fmt.Fprintln(w, "break")
	case *ast.ContinueStmt:
		fmt.Fprintln(w, "continue")
	case *ast.ThrowStmt:
		fmt.Fprintln(w, "throw")
		dumpExpr(w, s.Value, depth+1)
	case *ast.TryStmt:
		fmt.Fprintln(w, "try")
		dumpBlock(w, s.Body, depth+1)
		if s.Catch != nil {
			indent(w, depth+1)
			fmt.Fprintf(w, "catch %s\n", s.Catch.VarName)
			dumpBlock(w, s.Catch.Body, depth+2)
		}
		if s.Finally != nil {
			indent(w, depth+1)
			fmt.Fprintln(w, "finally")
			dumpBlock(w, s.Finally, depth+2)
		}
	case *ast.FuncDecl:
		fmt.Fprintf(w, "func %s(%s)\n", s.Name, paramNames(s.Params))
		dumpBlock(w, s.Body, depth+1)
	case *ast.StructDecl:
		fmt.Fprintf(w, "struct %s (%d fields, %d methods, %d statics)\n",
			s.Name, len(s.Fields), len(s.Methods), len(s.Statics))
	case *ast.EnumDecl:
		fmt.Fprintf(w, "enum %s (%d variants)\n", s.Name, len(s.Variants))
	case *ast.ImportStmt:
		if s.Alias != "" {
			fmt.Fprintf(w, "use %q as %s\n", s.Path, s.Alias)
		} else {
			fmt.Fprintf(w, "use %q\n", s.Path)
		}
	default:
		fmt.Fprintf(w, "%T\n", s)
	}
}

func dumpBlock(w io.Writer, b *ast.Block, depth int) {
	for _, st := range b.Statements {
		dumpStmt(w, st, depth)
	}
}

func paramNames(params []ast.Param) string {
	var parts []string
	for _, p := range params {
		if p.Type != "" {
			parts = append(parts, p.Name+": "+p.Type)
		} else {
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ", ")
}

func dumpExpr(w io.Writer, expr ast.Expr, depth int) {
	indent(w, depth)
	switch e := expr.(type) {
	case *ast.Ident:
		fmt.Fprintf(w, "ident %s\n", e.Name)
	case *ast.IntLit:
		fmt.Fprintf(w, "int %d\n", e.Value)
	case *ast.FloatLit:
		fmt.Fprintf(w, "float %g\n", e.Value)
	case *ast.BoolLit:
		fmt.Fprintf(w, "bool %v\n", e.Value)
	case *ast.UnitLit:
		fmt.Fprintln(w, "unit")
	case *ast.StrLit:
		fmt.Fprintf(w, "str %q\n", e.Value)
	case *ast.InterpString:
		fmt.Fprintf(w, "interp (%d parts)\n", len(e.Parts))
		for _, p := range e.Parts {
			if p.Expr != nil {
				dumpExpr(w, p.Expr, depth+1)
			} else {
				indent(w, depth+1)
				fmt.Fprintf(w, "lit %q\n", p.Literal)
			}
		}
	case *ast.BinaryExpr:
		fmt.Fprintf(w, "binary %s\n", e.Op)
		dumpExpr(w, e.Left, depth+1)
		dumpExpr(w, e.Right, depth+1)
	case *ast.UnaryExpr:
		fmt.Fprintf(w, "unary %s\n", e.Op)
		dumpExpr(w, e.X, depth+1)
	case *ast.CallExpr:
		fmt.Fprintln(w, "call")
		dumpExpr(w, e.Callee, depth+1)
		for _, a := range e.Args {
			dumpExpr(w, a, depth+1)
		}
	case *ast.MethodCallExpr:
		fmt.Fprintf(w, "method %s\n", e.Method)
		dumpExpr(w, e.Receiver, depth+1)
		for _, a := range e.Args {
			dumpExpr(w, a, depth+1)
		}
	case *ast.MemberExpr:
		fmt.Fprintf(w, "member %s\n", e.Name)
		dumpExpr(w, e.X, depth+1)
	case *ast.IndexExpr:
		fmt.Fprintln(w, "index")
		dumpExpr(w, e.X, depth+1)
		dumpExpr(w, e.Index, depth+1)
	case *ast.ListLit:
		fmt.Fprintf(w, "list (%d)\n", len(e.Elems))
		for _, el := range e.Elems {
			dumpExpr(w, el, depth+1)
		}
	case *ast.TupleLit:
		fmt.Fprintf(w, "tuple (%d)\n", len(e.Elems))
		for _, el := range e.Elems {
			dumpExpr(w, el, depth+1)
		}
	case *ast.DictLit:
		fmt.Fprintf(w, "dict (%d)\n", len(e.Entries))
		for _, entry := range e.Entries {
			dumpExpr(w, entry.Key, depth+1)
			dumpExpr(w, entry.Value, depth+2)
		}
	case *ast.SetLit:
		fmt.Fprintf(w, "set (%d)\n", len(e.Elems))
		for _, el := range e.Elems {
			dumpExpr(w, el, depth+1)
		}
	case *ast.RangeExpr:
		op := ".."
		if e.Inclusive {
			op = "..="
		}
		fmt.Fprintf(w, "range %s\n", op)
		dumpExpr(w, e.Start, depth+1)
		dumpExpr(w, e.End, depth+1)
	case *ast.FuncLit:
		fmt.Fprintf(w, "fn(%s)\n", paramNames(e.Params))
		dumpBlock(w, e.Body, depth+1)
	case *ast.StructInitExpr:
		fmt.Fprintf(w, "struct-init %s\n", e.TypeName)
		for _, f := range e.Fields {
			dumpExpr(w, f.Key, depth+1)
			dumpExpr(w, f.Value, depth+2)
		}
		if e.Spread != nil {
			dumpExpr(w, e.Spread, depth+1)
		}
	case *ast.EnumCtorExpr:
		fmt.Fprintf(w, "enum-ctor %s::%s\n", e.TypeName, e.Variant)
		for _, a := range e.Args {
			dumpExpr(w, a, depth+1)
		}
	case *ast.MatchExpr:
		fmt.Fprintf(w, "match (%d arms)\n", len(e.Arms))
		dumpExpr(w, e.X, depth+1)
	default:
		fmt.Fprintf(w, "%T\n", e)
	}
}
