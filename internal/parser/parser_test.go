package parser

import (
	"testing"

	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/lexer"
	"github.com/fizzlang/fizz/internal/token"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	toks, lexErr := lexer.Tokenize(input)
	if lexErr != nil {
		t.Fatalf("Tokenize failed: %v", lexErr)
	}
	prog, errs := Parse(toks)
	if len(errs) != 0 {
		t.Fatalf("Parse(%q) failed: %v", input, errs[0])
	}
	return prog
}

func parseExpr(t *testing.T, input string) ast.Expr {
	t.Helper()
	prog := parse(t, input)
	if len(prog.Decls) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(prog.Decls))
	}
	ed, ok := prog.Decls[0].(*ast.ExprDecl)
	if !ok {
		t.Fatalf("expected ExprDecl, got %T", prog.Decls[0])
	}
	return ed.E
}

func TestLetDeclaration(t *testing.T) {
	prog := parse(t, "let add x y = x + y")
	decl, ok := prog.Decls[0].(*ast.LetDecl)
	if !ok {
		t.Fatalf("expected LetDecl, got %T", prog.Decls[0])
	}
	if decl.Name != "add" {
		t.Errorf("name: got %q, want add", decl.Name)
	}
	if len(decl.Params) != 2 || decl.Params[0] != "x" || decl.Params[1] != "y" {
		t.Errorf("params: got %v", decl.Params)
	}
	if _, ok := decl.Body.(*ast.Binary); !ok {
		t.Errorf("body: got %T, want Binary", decl.Body)
	}
}

func TestLetIn(t *testing.T) {
	e := parseExpr(t, "let x = 1 in x + 1")
	letIn, ok := e.(*ast.LetIn)
	if !ok {
		t.Fatalf("expected LetIn, got %T", e)
	}
	if letIn.Name != "x" || letIn.Rec {
		t.Errorf("binding: name=%q rec=%v", letIn.Name, letIn.Rec)
	}
}

func TestLetRec(t *testing.T) {
	e := parseExpr(t, "let rec loop n = if n = 0 then 0 else loop (n - 1) in loop 3")
	letIn := e.(*ast.LetIn)
	if !letIn.Rec {
		t.Error("expected rec binding")
	}
}

func TestPipeDesugarsToApplication(t *testing.T) {
	e := parseExpr(t, "x |> f")
	app, ok := e.(*ast.Apply)
	if !ok {
		t.Fatalf("expected Apply, got %T", e)
	}
	if fn, ok := app.Fn.(*ast.Ident); !ok || fn.Name != "f" {
		t.Errorf("pipe fn: got %#v", app.Fn)
	}
	if arg, ok := app.Arg.(*ast.Ident); !ok || arg.Name != "x" {
		t.Errorf("pipe arg: got %#v", app.Arg)
	}
}

func TestPipeChainsLeft(t *testing.T) {
	// a |> f |> g  =>  g (f a)
	e := parseExpr(t, "a |> f |> g")
	outer := e.(*ast.Apply)
	if fn := outer.Fn.(*ast.Ident); fn.Name != "g" {
		t.Errorf("outer fn: got %q", fn.Name)
	}
	inner := outer.Arg.(*ast.Apply)
	if fn := inner.Fn.(*ast.Ident); fn.Name != "f" {
		t.Errorf("inner fn: got %q", fn.Name)
	}
}

func TestApplicationBindsTighterThanOperators(t *testing.T) {
	// f 1 + g 2  =>  (f 1) + (g 2)
	e := parseExpr(t, "f 1 + g 2")
	bin, ok := e.(*ast.Binary)
	if !ok || bin.Op != token.PLUS {
		t.Fatalf("expected Binary(+), got %#v", e)
	}
	if _, ok := bin.Left.(*ast.Apply); !ok {
		t.Errorf("left: got %T, want Apply", bin.Left)
	}
	if _, ok := bin.Right.(*ast.Apply); !ok {
		t.Errorf("right: got %T, want Apply", bin.Right)
	}
}

func TestConsIsRightAssociative(t *testing.T) {
	// 1 :: 2 :: []  =>  1 :: (2 :: [])
	e := parseExpr(t, "1 :: 2 :: []")
	outer := e.(*ast.Binary)
	if outer.Op != token.CONS {
		t.Fatalf("expected cons, got %q", outer.Op)
	}
	inner, ok := outer.Right.(*ast.Binary)
	if !ok || inner.Op != token.CONS {
		t.Fatalf("right side: expected nested cons, got %#v", outer.Right)
	}
	if lst, ok := inner.Right.(*ast.ListLit); !ok || len(lst.Elems) != 0 {
		t.Errorf("tail: expected empty list literal, got %#v", inner.Right)
	}
}

func TestMultiplicationPrecedence(t *testing.T) {
	// 1 + 2 * 3  =>  1 + (2 * 3)
	e := parseExpr(t, "1 + 2 * 3")
	add := e.(*ast.Binary)
	if add.Op != token.PLUS {
		t.Fatalf("root op: got %q", add.Op)
	}
	mul, ok := add.Right.(*ast.Binary)
	if !ok || mul.Op != token.STAR {
		t.Fatalf("right: expected *, got %#v", add.Right)
	}
}

func TestFunCurries(t *testing.T) {
	e := parseExpr(t, "fun x y -> x")
	outer, ok := e.(*ast.Lambda)
	if !ok || outer.Param != "x" {
		t.Fatalf("outer lambda: got %#v", e)
	}
	inner, ok := outer.Body.(*ast.Lambda)
	if !ok || inner.Param != "y" {
		t.Fatalf("inner lambda: got %#v", outer.Body)
	}
}

func TestQualifiedNameIsSingleIdent(t *testing.T) {
	e := parseExpr(t, "List.map f xs")
	app := e.(*ast.Apply)        // (List.map f) xs
	fnApp := app.Fn.(*ast.Apply) // List.map f
	id, ok := fnApp.Fn.(*ast.Ident)
	if !ok || id.Name != "List.map" {
		t.Errorf("qualified name: got %#v", fnApp.Fn)
	}
}

func TestLowercaseDotIsFieldAccess(t *testing.T) {
	e := parseExpr(t, "p.x + p.y")
	bin := e.(*ast.Binary)
	fa, ok := bin.Left.(*ast.FieldAccess)
	if !ok || fa.Field != "x" {
		t.Fatalf("field access: got %#v", bin.Left)
	}
	if target, ok := fa.Target.(*ast.Ident); !ok || target.Name != "p" {
		t.Errorf("target: got %#v", fa.Target)
	}
}

func TestCtorTakesOneAtom(t *testing.T) {
	// Some 1 + 2 should parse as (Some 1) + 2
	e := parseExpr(t, "Some 1 + 2")
	bin := e.(*ast.Binary)
	ctor, ok := bin.Left.(*ast.Ctor)
	if !ok || ctor.Name != "Some" || ctor.Arg == nil {
		t.Fatalf("ctor: got %#v", bin.Left)
	}
}

func TestNullaryCtor(t *testing.T) {
	e := parseExpr(t, "None")
	ctor := e.(*ast.Ctor)
	if ctor.Name != "None" || ctor.Arg != nil {
		t.Errorf("nullary ctor: got %#v", ctor)
	}
}

func TestTupleAndUnit(t *testing.T) {
	e := parseExpr(t, "(1, 2, 3)")
	tup, ok := e.(*ast.Tuple)
	if !ok || len(tup.Elems) != 3 {
		t.Fatalf("tuple: got %#v", e)
	}
	if _, ok := parseExpr(t, "()").(*ast.UnitLit); !ok {
		t.Error("expected unit literal")
	}
}

func TestListLiteral(t *testing.T) {
	e := parseExpr(t, "[1; 2; 3]")
	lst := e.(*ast.ListLit)
	if len(lst.Elems) != 3 {
		t.Fatalf("list elems: got %d", len(lst.Elems))
	}
}

func TestRecordLiteral(t *testing.T) {
	e := parseExpr(t, "{ x = 1; y = 2 }")
	rec := e.(*ast.RecordLit)
	if len(rec.Fields) != 2 || rec.Fields[0].Name != "x" || rec.Fields[1].Name != "y" {
		t.Fatalf("record: got %#v", rec)
	}
}

func TestVariantTypeDecl(t *testing.T) {
	prog := parse(t, "type shape = Circle of float | Square of float | Point")
	decl := prog.Decls[0].(*ast.TypeDecl)
	if decl.Name != "shape" || len(decl.Variant) != 3 {
		t.Fatalf("variant decl: got %#v", decl)
	}
	if decl.Variant[0].Name != "Circle" || decl.Variant[0].Arg == nil {
		t.Errorf("Circle: got %#v", decl.Variant[0])
	}
	if decl.Variant[2].Name != "Point" || decl.Variant[2].Arg != nil {
		t.Errorf("Point: got %#v", decl.Variant[2])
	}
}

func TestRecordTypeDecl(t *testing.T) {
	prog := parse(t, "type point = { x: int; y: int }")
	decl := prog.Decls[0].(*ast.TypeDecl)
	if decl.Name != "point" || len(decl.Record) != 2 {
		t.Fatalf("record decl: got %#v", decl)
	}
}

func TestMatchArms(t *testing.T) {
	e := parseExpr(t, `match xs with
		| [] -> 0
		| x :: rest -> x`)
	m := e.(*ast.Match)
	if len(m.Arms) != 2 {
		t.Fatalf("arms: got %d", len(m.Arms))
	}
	if _, ok := m.Arms[0].Pat.(*ast.ListPat); !ok {
		t.Errorf("arm 0: got %T", m.Arms[0].Pat)
	}
	if _, ok := m.Arms[1].Pat.(*ast.ConsPat); !ok {
		t.Errorf("arm 1: got %T", m.Arms[1].Pat)
	}
}

func TestMatchCtorPattern(t *testing.T) {
	e := parseExpr(t, "match v with | Some x -> x | None -> 0")
	m := e.(*ast.Match)
	cp := m.Arms[0].Pat.(*ast.CtorPat)
	if cp.Name != "Some" || cp.Arg == nil {
		t.Errorf("ctor pattern: got %#v", cp)
	}
}

func TestTypeAnnotation(t *testing.T) {
	prog := parse(t, "let f x : int -> int = x")
	decl := prog.Decls[0].(*ast.LetDecl)
	arrow, ok := decl.TypeAnn.(*ast.ArrowType)
	if !ok {
		t.Fatalf("annotation: got %#v", decl.TypeAnn)
	}
	if named, ok := arrow.From.(*ast.NamedType); !ok || named.Name != "int" {
		t.Errorf("arrow from: got %#v", arrow.From)
	}
}

func TestMultipleErrorsCollected(t *testing.T) {
	toks, lexErr := lexer.Tokenize("let = 1\nlet ok = 2\ntype = bad")
	if lexErr != nil {
		t.Fatalf("Tokenize failed: %v", lexErr)
	}
	prog, errs := Parse(toks)
	if len(errs) < 2 {
		t.Fatalf("expected at least 2 errors, got %d: %v", len(errs), errs)
	}
	// recovery should still pick up the valid binding in between
	found := false
	for _, d := range prog.Decls {
		if ld, ok := d.(*ast.LetDecl); ok && ld.Name == "ok" {
			found = true
		}
	}
	if !found {
		t.Error("recovery lost the valid declaration between errors")
	}
}

func TestUnaryMinus(t *testing.T) {
	e := parseExpr(t, "-x + 1")
	bin := e.(*ast.Binary)
	if _, ok := bin.Left.(*ast.Unary); !ok {
		t.Errorf("expected unary minus on left, got %T", bin.Left)
	}
}

func TestStringConcat(t *testing.T) {
	e := parseExpr(t, `"a" ^ "b" ^ "c"`)
	outer := e.(*ast.Binary)
	if outer.Op != token.CARET {
		t.Fatalf("op: got %q", outer.Op)
	}
	if inner, ok := outer.Right.(*ast.Binary); !ok || inner.Op != token.CARET {
		t.Errorf("caret should be right associative, got %#v", outer.Right)
	}
}

func TestApplicationStopsAtLineBreak(t *testing.T) {
	prog := parse(t, "let xs = [1; 2]\nList.length xs")
	if len(prog.Decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(prog.Decls))
	}
	if _, ok := prog.Decls[1].(*ast.ExprDecl); !ok {
		t.Errorf("expected trailing expression declaration, got %T", prog.Decls[1])
	}
}

func TestApplicationContinuesOnSameLine(t *testing.T) {
	e := parseExpr(t, "f 1 2")
	app := e.(*ast.Apply)
	if _, ok := app.Fn.(*ast.Apply); !ok {
		t.Errorf("expected nested application, got %T", app.Fn)
	}
}
