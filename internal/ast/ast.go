// Package ast defines the syntax tree produced by the parser.
//
// The tree is built once per compilation unit and discarded after bytecode
// emission. The inference pass annotates a few resolution fields in place
// (constructor tags, record field indices) so the compiler does not have to
// re-resolve declared shapes.
package ast

import "github.com/fizzlang/fizz/internal/token"

type Node interface {
	Pos() token.Token
}

type Expr interface {
	Node
	exprNode()
}

type Pattern interface {
	Node
	patNode()
}

type Decl interface {
	Node
	declNode()
}

// Program is one compilation unit: a sequence of top-level declarations.
// The value of the program is the value of its last expression declaration,
// or unit when the program consists solely of bindings.
type Program struct {
	File  string
	Decls []Decl
}

// ---- Declarations ----

// LetDecl is a top-level `let [rec] name params… [: ann] = body`.
type LetDecl struct {
	Tok     token.Token
	Rec     bool
	Name    string
	Params  []string
	TypeAnn TypeExpr // nil when unannotated
	Body    Expr
}

func (d *LetDecl) Pos() token.Token { return d.Tok }
func (d *LetDecl) declNode()        {}

// TypeDecl declares a nominal record or variant type.
type TypeDecl struct {
	Tok     token.Token
	Name    string
	Record  []FieldDef // non-nil for record types
	Variant []CtorDef  // non-nil for variant types
}

func (d *TypeDecl) Pos() token.Token { return d.Tok }
func (d *TypeDecl) declNode()        {}

type FieldDef struct {
	Name string
	Type TypeExpr
}

type CtorDef struct {
	Name string
	Arg  TypeExpr // nil for nullary constructors; tuple type for multi-field
}

// ExprDecl is a top-level expression (including `let … in …` chains).
type ExprDecl struct {
	E Expr
}

func (d *ExprDecl) Pos() token.Token { return d.E.Pos() }
func (d *ExprDecl) declNode()        {}

// ---- Type expressions ----

type TypeExpr interface {
	Node
	typeNode()
}

// NamedType is `int`, `string`, or a declared type name.
type NamedType struct {
	Tok  token.Token
	Name string
}

func (t *NamedType) Pos() token.Token { return t.Tok }
func (t *NamedType) typeNode()        {}

// ListType is `t list`.
type ListType struct {
	Tok  token.Token
	Elem TypeExpr
}

func (t *ListType) Pos() token.Token { return t.Tok }
func (t *ListType) typeNode()        {}

// ArrowType is `a -> b` (right associative).
type ArrowType struct {
	Tok      token.Token
	From, To TypeExpr
}

func (t *ArrowType) Pos() token.Token { return t.Tok }
func (t *ArrowType) typeNode()        {}

// TupleType is `a * b * c`.
type TupleType struct {
	Tok   token.Token
	Elems []TypeExpr
}

func (t *TupleType) Pos() token.Token { return t.Tok }
func (t *TupleType) typeNode()        {}

// ---- Expressions ----

type IntLit struct {
	Tok   token.Token
	Value int64
}

type FloatLit struct {
	Tok   token.Token
	Value float64
}

type StringLit struct {
	Tok   token.Token
	Value string
}

type BoolLit struct {
	Tok   token.Token
	Value bool
}

type UnitLit struct {
	Tok token.Token
}

// Ident references a variable, global, or host function. Qualified host
// names keep the dot: "List.map".
type Ident struct {
	Tok  token.Token
	Name string
}

// Lambda is `fun x -> e`. Multi-parameter functions are curried at parse
// time, so a Lambda always binds exactly one name.
type Lambda struct {
	Tok   token.Token
	Param string
	Body  Expr
}

// Apply is function application `f a`. Application of multi-argument
// definitions appears as nested Apply nodes.
type Apply struct {
	Tok     token.Token
	Fn, Arg Expr
}

// LetIn is the expression form `let [rec] name params… = value in body`.
type LetIn struct {
	Tok     token.Token
	Rec     bool
	Name    string
	Params  []string
	TypeAnn TypeExpr
	Value   Expr
	Body    Expr
}

type If struct {
	Tok              token.Token
	Cond, Then, Else Expr
}

type Match struct {
	Tok       token.Token
	Scrutinee Expr
	Arms      []MatchArm

	// Exhaustive is set by inference when the arm set provably covers the
	// scrutinee type (a wildcard or variable arm, or all variant tags).
	Exhaustive bool
}

type MatchArm struct {
	Pat  Pattern
	Body Expr
}

type Binary struct {
	Tok         token.Token
	Op          token.Type
	Left, Right Expr
}

type Unary struct {
	Tok     token.Token
	Op      token.Type
	Operand Expr
}

type Tuple struct {
	Tok   token.Token
	Elems []Expr
}

type ListLit struct {
	Tok   token.Token
	Elems []Expr
}

// RecordLit is `{ f = e; … }`. TypeName and field order are resolved by
// inference against the unique declared record type with this field set.
type RecordLit struct {
	Tok    token.Token
	Fields []FieldInit

	TypeName string // resolved
}

type FieldInit struct {
	Name  string
	Value Expr
}

// FieldAccess is `r.f`. Index is resolved by inference.
type FieldAccess struct {
	Tok    token.Token
	Target Expr
	Field  string

	TypeName string // resolved
	Index    int    // resolved
}

// Ctor is a variant construction: `None`, `Some e`, `Pair (a, b)`.
type Ctor struct {
	Tok  token.Token
	Name string
	Arg  Expr // nil for nullary constructors

	TypeName string // resolved
	Tag      int    // resolved
	Arity    int    // resolved payload width (0 or 1… n for tuple payloads kept flat)
}

func (e *IntLit) Pos() token.Token      { return e.Tok }
func (e *FloatLit) Pos() token.Token    { return e.Tok }
func (e *StringLit) Pos() token.Token   { return e.Tok }
func (e *BoolLit) Pos() token.Token     { return e.Tok }
func (e *UnitLit) Pos() token.Token     { return e.Tok }
func (e *Ident) Pos() token.Token       { return e.Tok }
func (e *Lambda) Pos() token.Token      { return e.Tok }
func (e *Apply) Pos() token.Token       { return e.Tok }
func (e *LetIn) Pos() token.Token       { return e.Tok }
func (e *If) Pos() token.Token          { return e.Tok }
func (e *Match) Pos() token.Token       { return e.Tok }
func (e *Binary) Pos() token.Token      { return e.Tok }
func (e *Unary) Pos() token.Token       { return e.Tok }
func (e *Tuple) Pos() token.Token       { return e.Tok }
func (e *ListLit) Pos() token.Token     { return e.Tok }
func (e *RecordLit) Pos() token.Token   { return e.Tok }
func (e *FieldAccess) Pos() token.Token { return e.Tok }
func (e *Ctor) Pos() token.Token        { return e.Tok }

func (e *IntLit) exprNode()      {}
func (e *FloatLit) exprNode()    {}
func (e *StringLit) exprNode()   {}
func (e *BoolLit) exprNode()     {}
func (e *UnitLit) exprNode()     {}
func (e *Ident) exprNode()       {}
func (e *Lambda) exprNode()      {}
func (e *Apply) exprNode()       {}
func (e *LetIn) exprNode()       {}
func (e *If) exprNode()          {}
func (e *Match) exprNode()       {}
func (e *Binary) exprNode()      {}
func (e *Unary) exprNode()       {}
func (e *Tuple) exprNode()       {}
func (e *ListLit) exprNode()     {}
func (e *RecordLit) exprNode()   {}
func (e *FieldAccess) exprNode() {}
func (e *Ctor) exprNode()        {}

// ---- Patterns ----

type WildcardPat struct {
	Tok token.Token
}

type VarPat struct {
	Tok  token.Token
	Name string
}

// LitPat matches an int, float, string, bool, or unit literal.
type LitPat struct {
	Tok token.Token
	Lit Expr
}

type TuplePat struct {
	Tok   token.Token
	Elems []Pattern
}

// ConsPat is `head :: tail`.
type ConsPat struct {
	Tok        token.Token
	Head, Tail Pattern
}

// ListPat is `[p1; p2; …]`, including `[]`.
type ListPat struct {
	Tok   token.Token
	Elems []Pattern
}

// CtorPat matches a variant constructor and binds its payload.
type CtorPat struct {
	Tok  token.Token
	Name string
	Arg  Pattern // nil for nullary

	TypeName string // resolved
	Tag      int    // resolved
	Arity    int    // resolved
}

// RecordPat is `{ f = p; … }`; unmentioned fields are ignored.
type RecordPat struct {
	Tok    token.Token
	Fields []RecordPatField

	TypeName string // resolved
}

type RecordPatField struct {
	Name  string
	Pat   Pattern
	Index int // resolved
}

func (p *WildcardPat) Pos() token.Token { return p.Tok }
func (p *VarPat) Pos() token.Token      { return p.Tok }
func (p *LitPat) Pos() token.Token      { return p.Tok }
func (p *TuplePat) Pos() token.Token    { return p.Tok }
func (p *ConsPat) Pos() token.Token     { return p.Tok }
func (p *ListPat) Pos() token.Token     { return p.Tok }
func (p *CtorPat) Pos() token.Token     { return p.Tok }
func (p *RecordPat) Pos() token.Token   { return p.Tok }

func (p *WildcardPat) patNode() {}
func (p *VarPat) patNode()      {}
func (p *LitPat) patNode()      {}
func (p *TuplePat) patNode()    {}
func (p *ConsPat) patNode()     {}
func (p *ListPat) patNode()     {}
func (p *CtorPat) patNode()     {}
func (p *RecordPat) patNode()   {}
