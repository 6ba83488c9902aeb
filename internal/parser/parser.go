// Package parser builds the Fizz syntax tree from a token stream.
//
// The parser is recursive descent with precedence climbing for binary
// operators. The pipeline operator desugars at parse time: `a |> f` becomes
// `Apply(f, a)`. On a malformed top-level declaration the parser records the
// error and skips to the next `let`/`type` boundary so a single run can
// report more than one problem.
package parser

import (
	"fmt"
	"strconv"

	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/token"
)

// ParseError reports an unexpected token or a missing delimiter.
type ParseError struct {
	Tok     token.Token
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Tok.Line, e.Tok.Column, e.Message)
}

type Parser struct {
	tokens []token.Token
	pos    int
	errors []error
}

func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse consumes the token stream and returns the program plus every error
// collected during recovery. The program is usable only when errors is empty.
func Parse(tokens []token.Token) (*ast.Program, []error) {
	p := New(tokens)
	prog := p.parseProgram()
	return prog, p.errors
}

func (p *Parser) cur() token.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token.Token{Type: token.EOF}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return token.Token{Type: token.EOF}
}

func (p *Parser) next() token.Token {
	tok := p.cur()
	p.pos++
	return tok
}

func (p *Parser) expect(t token.Type) (token.Token, error) {
	if p.cur().Type != t {
		return p.cur(), p.errorf("expected %q, found %q", t, p.cur().Type)
	}
	return p.next(), nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Tok: p.cur(), Message: fmt.Sprintf(format, args...)}
}

// recoverTopLevel skips tokens until the next plausible declaration start.
func (p *Parser) recoverTopLevel() {
	for {
		switch p.cur().Type {
		case token.LET, token.TYPE, token.EOF:
			return
		}
		p.pos++
	}
}

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for p.cur().Type != token.EOF {
		decl, err := p.parseDecl()
		if err != nil {
			p.errors = append(p.errors, err)
			p.pos++ // make progress past the offending token
			p.recoverTopLevel()
			continue
		}
		prog.Decls = append(prog.Decls, decl)
	}
	return prog
}

func (p *Parser) parseDecl() (ast.Decl, error) {
	switch p.cur().Type {
	case token.TYPE:
		return p.parseTypeDecl()
	case token.LET:
		return p.parseLetDecl()
	default:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ExprDecl{E: e}, nil
	}
}

// parseLetDecl parses a top-level let binding. When the binding is followed
// by `in`, the whole construct is an expression declaration instead.
func (p *Parser) parseLetDecl() (ast.Decl, error) {
	tok := p.next() // let
	rec, name, params, ann, value, err := p.parseLetBinding()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.IN {
		p.next()
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.ExprDecl{E: &ast.LetIn{
			Tok: tok, Rec: rec, Name: name, Params: params, TypeAnn: ann, Value: value, Body: body,
		}}, nil
	}
	return &ast.LetDecl{Tok: tok, Rec: rec, Name: name, Params: params, TypeAnn: ann, Body: value}, nil
}

// parseLetBinding parses `[rec] name params… [: type] = expr` after `let`.
func (p *Parser) parseLetBinding() (rec bool, name string, params []string, ann ast.TypeExpr, value ast.Expr, err error) {
	if p.cur().Type == token.REC {
		rec = true
		p.next()
	}
	// `let _ = e` evaluates e for its effect and discards the result.
	if p.cur().Type == token.UNDER {
		p.next()
		name = "_"
	} else {
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return false, "", nil, nil, nil, err
		}
		name = nameTok.Literal
	}

	for p.cur().Type == token.IDENT || p.cur().Type == token.UNDER ||
		(p.cur().Type == token.LPAREN && p.peek().Type == token.RPAREN) {
		switch p.cur().Type {
		case token.IDENT:
			params = append(params, p.next().Literal)
		case token.UNDER:
			p.next()
			params = append(params, "_")
		default: // unit parameter `()`
			p.next()
			p.next()
			params = append(params, "_unit")
		}
	}

	if p.cur().Type == token.COLON {
		p.next()
		ann, err = p.parseTypeExpr()
		if err != nil {
			return false, "", nil, nil, nil, err
		}
	}

	if _, err = p.expect(token.EQ); err != nil {
		return false, "", nil, nil, nil, err
	}
	value, err = p.parseExpr()
	if err != nil {
		return false, "", nil, nil, nil, err
	}
	return rec, name, params, ann, value, nil
}

func (p *Parser) parseTypeDecl() (ast.Decl, error) {
	tok := p.next() // type
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.EQ); err != nil {
		return nil, err
	}

	decl := &ast.TypeDecl{Tok: tok, Name: nameTok.Literal}

	if p.cur().Type == token.LBRACE {
		p.next()
		for p.cur().Type != token.RBRACE {
			fieldTok, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.COLON); err != nil {
				return nil, err
			}
			ft, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			decl.Record = append(decl.Record, ast.FieldDef{Name: fieldTok.Literal, Type: ft})
			if p.cur().Type == token.SEMICOLON {
				p.next()
			} else if p.cur().Type != token.RBRACE {
				return nil, p.errorf("expected ';' or '}' in record type, found %q", p.cur().Type)
			}
		}
		p.next() // }
		if len(decl.Record) == 0 {
			return nil, &ParseError{Tok: tok, Message: "record type needs at least one field"}
		}
		return decl, nil
	}

	// Variant: [|] Ctor [of type] (| Ctor [of type])*
	if p.cur().Type == token.BAR {
		p.next()
	}
	for {
		ctorTok, err := p.expect(token.CTOR)
		if err != nil {
			return nil, err
		}
		ctor := ast.CtorDef{Name: ctorTok.Literal}
		if p.cur().Type == token.OF {
			p.next()
			ctor.Arg, err = p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
		}
		decl.Variant = append(decl.Variant, ctor)
		if p.cur().Type != token.BAR {
			break
		}
		p.next()
	}
	return decl, nil
}

// ---- Type expressions ----

func (p *Parser) parseTypeExpr() (ast.TypeExpr, error) {
	return p.parseArrowType()
}

func (p *Parser) parseArrowType() (ast.TypeExpr, error) {
	left, err := p.parseTupleType()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.ARROW {
		tok := p.next()
		right, err := p.parseArrowType() // right associative
		if err != nil {
			return nil, err
		}
		return &ast.ArrowType{Tok: tok, From: left, To: right}, nil
	}
	return left, nil
}

func (p *Parser) parseTupleType() (ast.TypeExpr, error) {
	first, err := p.parsePostfixType()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != token.STAR {
		return first, nil
	}
	tup := &ast.TupleType{Tok: first.Pos(), Elems: []ast.TypeExpr{first}}
	for p.cur().Type == token.STAR {
		p.next()
		elem, err := p.parsePostfixType()
		if err != nil {
			return nil, err
		}
		tup.Elems = append(tup.Elems, elem)
	}
	return tup, nil
}

func (p *Parser) parsePostfixType() (ast.TypeExpr, error) {
	t, err := p.parseAtomType()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.IDENT && p.cur().Literal == "list" {
		tok := p.next()
		t = &ast.ListType{Tok: tok, Elem: t}
	}
	return t, nil
}

func (p *Parser) parseAtomType() (ast.TypeExpr, error) {
	switch p.cur().Type {
	case token.IDENT:
		tok := p.next()
		return &ast.NamedType{Tok: tok, Name: tok.Literal}, nil
	case token.LPAREN:
		p.next()
		if p.cur().Type == token.RPAREN { // ()
			tok := p.next()
			return &ast.NamedType{Tok: tok, Name: "unit"}, nil
		}
		t, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, p.errorf("expected a type, found %q", p.cur().Type)
	}
}

// ---- Expressions ----

func (p *Parser) parseExpr() (ast.Expr, error) {
	switch p.cur().Type {
	case token.LET:
		return p.parseLetIn()
	case token.IF:
		return p.parseIf()
	case token.MATCH:
		return p.parseMatch()
	case token.FUN:
		return p.parseFun()
	}
	return p.parsePipe()
}

func (p *Parser) parseLetIn() (ast.Expr, error) {
	tok := p.next() // let
	rec, name, params, ann, value, err := p.parseLetBinding()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IN); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.LetIn{Tok: tok, Rec: rec, Name: name, Params: params, TypeAnn: ann, Value: value, Body: body}, nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	tok := p.next() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	thenE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.ELSE); err != nil {
		return nil, err
	}
	elseE, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.If{Tok: tok, Cond: cond, Then: thenE, Else: elseE}, nil
}

func (p *Parser) parseFun() (ast.Expr, error) {
	tok := p.next() // fun
	var params []string
	for p.cur().Type == token.IDENT || p.cur().Type == token.UNDER ||
		(p.cur().Type == token.LPAREN && p.peek().Type == token.RPAREN) {
		switch p.cur().Type {
		case token.IDENT:
			params = append(params, p.next().Literal)
		case token.UNDER:
			p.next()
			params = append(params, "_")
		default:
			p.next()
			p.next()
			params = append(params, "_unit")
		}
	}
	if len(params) == 0 {
		return nil, p.errorf("expected parameter after 'fun', found %q", p.cur().Type)
	}
	if _, err := p.expect(token.ARROW); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return curry(tok, params, body), nil
}

// curry builds nested single-parameter lambdas from a parameter list.
func curry(tok token.Token, params []string, body ast.Expr) ast.Expr {
	e := body
	for i := len(params) - 1; i >= 0; i-- {
		e = &ast.Lambda{Tok: tok, Param: params[i], Body: e}
	}
	return e
}

func (p *Parser) parseMatch() (ast.Expr, error) {
	tok := p.next() // match
	scrut, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.WITH); err != nil {
		return nil, err
	}
	m := &ast.Match{Tok: tok, Scrutinee: scrut}
	if p.cur().Type == token.BAR {
		p.next()
	}
	for {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.ARROW); err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Arms = append(m.Arms, ast.MatchArm{Pat: pat, Body: body})
		if p.cur().Type != token.BAR {
			break
		}
		p.next()
	}
	if len(m.Arms) == 0 {
		return nil, &ParseError{Tok: tok, Message: "match needs at least one arm"}
	}
	return m, nil
}

func (p *Parser) parsePipe() (ast.Expr, error) {
	left, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.PIPE {
		tok := p.next()
		right, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		// a |> f  =>  f a
		left = &ast.Apply{Tok: tok, Fn: right, Arg: left}
	}
	return left, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.OR {
		tok := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Tok: tok, Op: token.OR, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.AND {
		tok := p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Tok: tok, Op: token.AND, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseConsLevel()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur().Type
		switch op {
		case token.EQ, token.NEQ, token.LT, token.LE, token.GT, token.GE:
			tok := p.next()
			right, err := p.parseConsLevel()
			if err != nil {
				return nil, err
			}
			left = &ast.Binary{Tok: tok, Op: op, Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

// parseConsLevel handles `::`, `@` and `^`, all right associative.
func (p *Parser) parseConsLevel() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op := p.cur().Type
	if op == token.CONS || op == token.AT || op == token.CARET {
		tok := p.next()
		right, err := p.parseConsLevel()
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Tok: tok, Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.PLUS || p.cur().Type == token.MINUS {
		tok := p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Tok: tok, Op: tok.Type, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == token.STAR || p.cur().Type == token.SLASH || p.cur().Type == token.PERCENT {
		tok := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Tok: tok, Op: tok.Type, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	switch p.cur().Type {
	case token.MINUS:
		tok := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Tok: tok, Op: token.MINUS, Operand: operand}, nil
	case token.NOT:
		tok := p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Tok: tok, Op: token.NOT, Operand: operand}, nil
	}
	return p.parseApplication()
}

func (p *Parser) parseApplication() (ast.Expr, error) {
	fn, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.atomStart() && p.cur().Line == p.tokens[p.pos-1].Line {
		argTok := p.cur()
		arg, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		if ctor, ok := fn.(*ast.Ctor); ok && ctor.Arg == nil {
			ctor.Arg = arg
			continue
		}
		fn = &ast.Apply{Tok: argTok, Fn: fn, Arg: arg}
	}
	return fn, nil
}

// atomStart reports whether the current token can begin an application
// argument. Operators deliberately stop the application loop; so does a
// line break before the argument, which is what lets one top-level
// expression end and the next begin without a separator.
func (p *Parser) atomStart() bool {
	switch p.cur().Type {
	case token.INT, token.FLOAT, token.STRING, token.TRUE, token.FALSE,
		token.IDENT, token.CTOR, token.LPAREN, token.LBRACKET, token.LBRACE:
		return true
	}
	return false
}

func (p *Parser) parseAtom() (ast.Expr, error) {
	var e ast.Expr
	tok := p.cur()

	switch tok.Type {
	case token.INT:
		p.next()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return nil, &ParseError{Tok: tok, Message: fmt.Sprintf("integer literal out of range: %s", tok.Literal)}
		}
		e = &ast.IntLit{Tok: tok, Value: v}
	case token.FLOAT:
		p.next()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, &ParseError{Tok: tok, Message: fmt.Sprintf("invalid float literal: %s", tok.Literal)}
		}
		e = &ast.FloatLit{Tok: tok, Value: v}
	case token.STRING:
		p.next()
		e = &ast.StringLit{Tok: tok, Value: tok.Literal}
	case token.TRUE:
		p.next()
		e = &ast.BoolLit{Tok: tok, Value: true}
	case token.FALSE:
		p.next()
		e = &ast.BoolLit{Tok: tok, Value: false}
	case token.IDENT:
		p.next()
		e = &ast.Ident{Tok: tok, Name: tok.Literal}
	case token.CTOR:
		p.next()
		// Qualified host name: `List.map`, `String.length`.
		if p.cur().Type == token.DOT && p.peek().Type == token.IDENT {
			p.next()
			member := p.next()
			e = &ast.Ident{Tok: tok, Name: tok.Literal + "." + member.Literal}
		} else {
			e = &ast.Ctor{Tok: tok, Name: tok.Literal}
		}
	case token.LPAREN:
		p.next()
		if p.cur().Type == token.RPAREN {
			p.next()
			e = &ast.UnitLit{Tok: tok}
			break
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur().Type == token.COMMA {
			tup := &ast.Tuple{Tok: tok, Elems: []ast.Expr{inner}}
			for p.cur().Type == token.COMMA {
				p.next()
				elem, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				tup.Elems = append(tup.Elems, elem)
			}
			inner = tup
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		e = inner
	case token.LBRACKET:
		p.next()
		lst := &ast.ListLit{Tok: tok}
		for p.cur().Type != token.RBRACKET {
			elem, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lst.Elems = append(lst.Elems, elem)
			if p.cur().Type == token.SEMICOLON {
				p.next()
			} else if p.cur().Type != token.RBRACKET {
				return nil, p.errorf("expected ';' or ']' in list, found %q", p.cur().Type)
			}
		}
		p.next() // ]
		e = lst
	case token.LBRACE:
		p.next()
		rec := &ast.RecordLit{Tok: tok}
		for p.cur().Type != token.RBRACE {
			fieldTok, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.EQ); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, ast.FieldInit{Name: fieldTok.Literal, Value: val})
			if p.cur().Type == token.SEMICOLON {
				p.next()
			} else if p.cur().Type != token.RBRACE {
				return nil, p.errorf("expected ';' or '}' in record, found %q", p.cur().Type)
			}
		}
		p.next() // }
		if len(rec.Fields) == 0 {
			return nil, &ParseError{Tok: tok, Message: "record literal needs at least one field"}
		}
		e = rec
	default:
		return nil, p.errorf("unexpected token %q", tok.Type)
	}

	// Postfix field access: expr.field (possibly chained).
	for p.cur().Type == token.DOT && p.peek().Type == token.IDENT {
		dotTok := p.next()
		field := p.next()
		e = &ast.FieldAccess{Tok: dotTok, Target: e, Field: field.Literal, Index: -1}
	}
	return e, nil
}

// ---- Patterns ----

func (p *Parser) parsePattern() (ast.Pattern, error) {
	left, err := p.parseAtomPattern()
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.CONS {
		tok := p.next()
		tail, err := p.parsePattern() // right associative
		if err != nil {
			return nil, err
		}
		return &ast.ConsPat{Tok: tok, Head: left, Tail: tail}, nil
	}
	return left, nil
}

func (p *Parser) parseAtomPattern() (ast.Pattern, error) {
	tok := p.cur()
	switch tok.Type {
	case token.UNDER:
		p.next()
		return &ast.WildcardPat{Tok: tok}, nil
	case token.IDENT:
		p.next()
		return &ast.VarPat{Tok: tok, Name: tok.Literal}, nil
	case token.INT:
		p.next()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return nil, &ParseError{Tok: tok, Message: fmt.Sprintf("integer literal out of range: %s", tok.Literal)}
		}
		return &ast.LitPat{Tok: tok, Lit: &ast.IntLit{Tok: tok, Value: v}}, nil
	case token.MINUS:
		p.next()
		numTok := p.cur()
		switch numTok.Type {
		case token.INT:
			p.next()
			v, _ := strconv.ParseInt(numTok.Literal, 10, 64)
			return &ast.LitPat{Tok: tok, Lit: &ast.IntLit{Tok: numTok, Value: -v}}, nil
		case token.FLOAT:
			p.next()
			v, _ := strconv.ParseFloat(numTok.Literal, 64)
			return &ast.LitPat{Tok: tok, Lit: &ast.FloatLit{Tok: numTok, Value: -v}}, nil
		}
		return nil, p.errorf("expected number after '-' in pattern, found %q", numTok.Type)
	case token.FLOAT:
		p.next()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, &ParseError{Tok: tok, Message: fmt.Sprintf("invalid float literal: %s", tok.Literal)}
		}
		return &ast.LitPat{Tok: tok, Lit: &ast.FloatLit{Tok: tok, Value: v}}, nil
	case token.STRING:
		p.next()
		return &ast.LitPat{Tok: tok, Lit: &ast.StringLit{Tok: tok, Value: tok.Literal}}, nil
	case token.TRUE:
		p.next()
		return &ast.LitPat{Tok: tok, Lit: &ast.BoolLit{Tok: tok, Value: true}}, nil
	case token.FALSE:
		p.next()
		return &ast.LitPat{Tok: tok, Lit: &ast.BoolLit{Tok: tok, Value: false}}, nil
	case token.CTOR:
		p.next()
		pat := &ast.CtorPat{Tok: tok, Name: tok.Literal}
		if p.patternAtomStart() {
			arg, err := p.parseAtomPattern()
			if err != nil {
				return nil, err
			}
			pat.Arg = arg
		}
		return pat, nil
	case token.LPAREN:
		p.next()
		if p.cur().Type == token.RPAREN {
			p.next()
			return &ast.LitPat{Tok: tok, Lit: &ast.UnitLit{Tok: tok}}, nil
		}
		first, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if p.cur().Type == token.COMMA {
			tup := &ast.TuplePat{Tok: tok, Elems: []ast.Pattern{first}}
			for p.cur().Type == token.COMMA {
				p.next()
				elem, err := p.parsePattern()
				if err != nil {
					return nil, err
				}
				tup.Elems = append(tup.Elems, elem)
			}
			first = tup
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return first, nil
	case token.LBRACKET:
		p.next()
		lst := &ast.ListPat{Tok: tok}
		for p.cur().Type != token.RBRACKET {
			elem, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			lst.Elems = append(lst.Elems, elem)
			if p.cur().Type == token.SEMICOLON {
				p.next()
			} else if p.cur().Type != token.RBRACKET {
				return nil, p.errorf("expected ';' or ']' in list pattern, found %q", p.cur().Type)
			}
		}
		p.next() // ]
		return lst, nil
	case token.LBRACE:
		p.next()
		rec := &ast.RecordPat{Tok: tok}
		for p.cur().Type != token.RBRACE {
			fieldTok, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.EQ); err != nil {
				return nil, err
			}
			fp, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, ast.RecordPatField{Name: fieldTok.Literal, Pat: fp, Index: -1})
			if p.cur().Type == token.SEMICOLON {
				p.next()
			} else if p.cur().Type != token.RBRACE {
				return nil, p.errorf("expected ';' or '}' in record pattern, found %q", p.cur().Type)
			}
		}
		p.next() // }
		return rec, nil
	default:
		return nil, p.errorf("unexpected token %q in pattern", tok.Type)
	}
}

func (p *Parser) patternAtomStart() bool {
	switch p.cur().Type {
	case token.UNDER, token.IDENT, token.INT, token.FLOAT, token.STRING,
		token.TRUE, token.FALSE, token.CTOR, token.LPAREN, token.LBRACKET, token.LBRACE:
		return true
	}
	return false
}
