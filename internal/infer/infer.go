// Package infer implements Hindley-Milner type inference over the syntax
// tree: Algorithm W with let-polymorphism, nominal record and variant
// resolution, and match exhaustiveness analysis.
//
// Inference annotates resolution fields in the AST in place (constructor
// tags, record field indices) and normalizes multi-parameter bindings into
// single-parameter lambda chains, so the bytecode compiler never re-resolves
// declared shapes.
package infer

import (
	"fmt"

	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/token"
	"github.com/fizzlang/fizz/internal/types"
)

// TypeError reports the first type mismatch found, with its position.
type TypeError struct {
	Line    int
	Column  int
	Message string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// RecordInfo describes a declared record type in field order.
type RecordInfo struct {
	Name   string
	Fields []FieldInfo
}

type FieldInfo struct {
	Name string
	Type types.Type
}

// Index returns the declared position of a field, or -1.
func (r *RecordInfo) Index(field string) int {
	for i, f := range r.Fields {
		if f.Name == field {
			return i
		}
	}
	return -1
}

// VariantInfo describes a declared variant type in constructor order; a
// constructor's tag is its index.
type VariantInfo struct {
	Name  string
	Ctors []CtorInfo
}

type CtorInfo struct {
	Name    string
	Payload types.Type // nil for nullary constructors
	Arity   int        // 0 or 1; tuple payloads stay a single tuple value
}

// Info is the product of a successful check: declared shapes, generalized
// top-level schemes, the result type of the final expression, and any
// non-exhaustive-match warnings.
type Info struct {
	Records  map[string]*RecordInfo
	Variants map[string]*VariantInfo
	Ctors    map[string]ctorRef // constructor name -> declaring type and tag

	// Globals holds every name visible at the top level: the schemes
	// passed in plus this unit's own declarations.
	Globals    map[string]*types.Scheme
	ResultType types.Type
	Warnings   []string
}

type ctorRef struct {
	TypeName string
	Tag      int
}

// CtorTag resolves a constructor name; ok is false for unknown names.
func (in *Info) CtorTag(name string) (typeName string, tag int, ok bool) {
	ref, ok := in.Ctors[name]
	return ref.TypeName, ref.Tag, ok
}

// Env is a lexically scoped map from names to type schemes.
type Env struct {
	vars   map[string]*types.Scheme
	parent *Env
}

func NewEnv(parent *Env) *Env {
	return &Env{vars: map[string]*types.Scheme{}, parent: parent}
}

func (e *Env) Lookup(name string) (*types.Scheme, bool) {
	for env := e; env != nil; env = env.parent {
		if s, ok := env.vars[name]; ok {
			return s, true
		}
	}
	return nil, false
}

func (e *Env) Bind(name string, s *types.Scheme) { e.vars[name] = s }

func (e *Env) freeTypeVars(set map[int]struct{}) {
	for env := e; env != nil; env = env.parent {
		for _, s := range env.vars {
			s.FreeTypeVars(set)
		}
	}
}

// applySubst rewrites every binding in the environment chain. Inference
// calls this after each composition step that may touch env variables.
func (e *Env) applySubst(s types.Subst) {
	for env := e; env != nil; env = env.parent {
		for name, scheme := range env.vars {
			env.vars[name] = &types.Scheme{Vars: scheme.Vars, Body: scheme.Body.Apply(s)}
		}
	}
}

type checker struct {
	info    *Info
	nextVar int
}

// Check runs inference over the program. globals seeds the environment with
// host-function and prelude schemes; nil is an empty environment. On
// success the returned Info carries generalized schemes for every top-level
// binding and the program's result type.
func Check(prog *ast.Program, globals map[string]*types.Scheme) (*Info, error) {
	c := &checker{info: &Info{
		Records:  map[string]*RecordInfo{},
		Variants: map[string]*VariantInfo{},
		Ctors:    map[string]ctorRef{},
		Globals:  map[string]*types.Scheme{},
	}}

	env := NewEnv(nil)
	for name, scheme := range globals {
		env.Bind(name, scheme)
		c.info.Globals[name] = scheme
		c.reserveSchemeVars(scheme)
	}

	// Type declarations first, so forward references between value
	// declarations and types in either order resolve.
	for _, d := range prog.Decls {
		if td, ok := d.(*ast.TypeDecl); ok {
			if err := c.declareType(td); err != nil {
				return nil, err
			}
		}
	}

	c.info.ResultType = types.Unit
	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *ast.TypeDecl:
			// handled above
		case *ast.LetDecl:
			normalizeLetDecl(decl)
			scheme, err := c.inferBinding(env, decl.Rec, decl.Name, decl.TypeAnn, decl.Body, decl.Tok)
			if err != nil {
				return nil, err
			}
			env.Bind(decl.Name, scheme)
			c.info.Globals[decl.Name] = scheme
		case *ast.ExprDecl:
			s, t, err := c.inferExpr(env, decl.E)
			if err != nil {
				return nil, err
			}
			env.applySubst(s)
			c.info.ResultType = t.Apply(s)
		}
	}
	return c.info, nil
}

// normalizeLetDecl folds the parameter list into nested lambdas so the rest
// of the pipeline sees exactly one binding form.
func normalizeLetDecl(d *ast.LetDecl) {
	d.Body = curryParams(d.Tok, d.Params, d.Body)
	d.Params = nil
}

func curryParams(tok token.Token, params []string, body ast.Expr) ast.Expr {
	for i := len(params) - 1; i >= 0; i-- {
		body = &ast.Lambda{Tok: tok, Param: params[i], Body: body}
	}
	return body
}

func (c *checker) fresh() *types.TVar {
	v := &types.TVar{ID: c.nextVar}
	c.nextVar++
	return v
}

// reserveSchemeVars advances the fresh-variable counter past every ID a
// seeded scheme mentions. Instantiating a seeded scheme must never hand
// back one of its own quantified variables; an identity binding in the
// instantiation substitution makes Apply loop.
func (c *checker) reserveSchemeVars(s *types.Scheme) {
	ids := map[int]struct{}{}
	s.Body.FreeTypeVars(ids)
	for _, id := range s.Vars {
		ids[id] = struct{}{}
	}
	for id := range ids {
		if id >= c.nextVar {
			c.nextVar = id + 1
		}
	}
}

func (c *checker) errorf(tok token.Token, format string, args ...interface{}) error {
	return &TypeError{Line: tok.Line, Column: tok.Column, Message: fmt.Sprintf(format, args...)}
}

// declareType registers a record or variant declaration.
func (c *checker) declareType(d *ast.TypeDecl) error {
	if _, dup := c.info.Records[d.Name]; dup {
		return c.errorf(d.Tok, "type %s is declared twice", d.Name)
	}
	if _, dup := c.info.Variants[d.Name]; dup {
		return c.errorf(d.Tok, "type %s is declared twice", d.Name)
	}

	if d.Record != nil {
		info := &RecordInfo{Name: d.Name}
		for _, f := range d.Record {
			ft, err := c.convertTypeExpr(f.Type)
			if err != nil {
				return err
			}
			if info.Index(f.Name) >= 0 {
				return c.errorf(d.Tok, "record %s repeats field %s", d.Name, f.Name)
			}
			info.Fields = append(info.Fields, FieldInfo{Name: f.Name, Type: ft})
		}
		c.info.Records[d.Name] = info
		return nil
	}

	info := &VariantInfo{Name: d.Name}
	for tag, ctor := range d.Variant {
		if _, dup := c.info.Ctors[ctor.Name]; dup {
			return c.errorf(d.Tok, "constructor %s is declared twice", ctor.Name)
		}
		ci := CtorInfo{Name: ctor.Name}
		if ctor.Arg != nil {
			payload, err := c.convertTypeExpr(ctor.Arg)
			if err != nil {
				return err
			}
			ci.Payload = payload
			ci.Arity = 1
		}
		info.Ctors = append(info.Ctors, ci)
		c.info.Ctors[ctor.Name] = ctorRef{TypeName: d.Name, Tag: tag}
	}
	c.info.Variants[d.Name] = info
	return nil
}

// convertTypeExpr maps a syntactic type to a semantic one.
func (c *checker) convertTypeExpr(te ast.TypeExpr) (types.Type, error) {
	switch t := te.(type) {
	case *ast.NamedType:
		switch t.Name {
		case "int":
			return types.Int, nil
		case "float":
			return types.Float, nil
		case "bool":
			return types.Bool, nil
		case "string":
			return types.Str, nil
		case "unit":
			return types.Unit, nil
		}
		if rec, ok := c.info.Records[t.Name]; ok {
			return c.recordType(rec), nil
		}
		if _, ok := c.info.Variants[t.Name]; ok {
			return &types.TCon{Name: t.Name}, nil
		}
		return nil, c.errorf(t.Tok, "unknown type %s", t.Name)
	case *ast.ListType:
		elem, err := c.convertTypeExpr(t.Elem)
		if err != nil {
			return nil, err
		}
		return &types.TList{Elem: elem}, nil
	case *ast.ArrowType:
		from, err := c.convertTypeExpr(t.From)
		if err != nil {
			return nil, err
		}
		to, err := c.convertTypeExpr(t.To)
		if err != nil {
			return nil, err
		}
		return &types.TArrow{From: from, To: to}, nil
	case *ast.TupleType:
		elems := make([]types.Type, len(t.Elems))
		for i, e := range t.Elems {
			et, err := c.convertTypeExpr(e)
			if err != nil {
				return nil, err
			}
			elems[i] = et
		}
		return &types.TTuple{Elems: elems}, nil
	}
	return nil, fmt.Errorf("unhandled type expression %T", te)
}

func (c *checker) recordType(info *RecordInfo) *types.TRecord {
	fields := make([]types.Field, len(info.Fields))
	for i, f := range info.Fields {
		fields[i] = types.Field{Name: f.Name, Type: f.Type}
	}
	return &types.TRecord{Name: info.Name, Fields: fields}
}

// instantiate replaces a scheme's quantified variables with fresh ones.
func (c *checker) instantiate(s *types.Scheme) types.Type {
	if len(s.Vars) == 0 {
		return s.Body
	}
	sub := make(types.Subst, len(s.Vars))
	for _, id := range s.Vars {
		sub[id] = c.fresh()
	}
	return s.Body.Apply(sub)
}

// inferBinding handles `let [rec] name = value`, returning the generalized
// scheme. The annotation, when present, is unified with the inferred type.
func (c *checker) inferBinding(env *Env, rec bool, name string, ann ast.TypeExpr, value ast.Expr, tok token.Token) (*types.Scheme, error) {
	var s types.Subst
	var t types.Type
	var err error

	if rec {
		// The recursive occurrence is monomorphic while its own body is
		// being inferred.
		self := c.fresh()
		recEnv := NewEnv(env)
		recEnv.Bind(name, types.MonoScheme(self))
		s, t, err = c.inferExpr(recEnv, value)
		if err != nil {
			return nil, err
		}
		s2, err := types.Unify(self.Apply(s), t)
		if err != nil {
			return nil, c.errorf(tok, "recursive binding %s: %s", name, err)
		}
		s = types.Compose(s2, s)
		t = t.Apply(s)
	} else {
		s, t, err = c.inferExpr(env, value)
		if err != nil {
			return nil, err
		}
	}

	if ann != nil {
		want, err := c.convertTypeExpr(ann)
		if err != nil {
			return nil, err
		}
		s2, err := types.Unify(t, want)
		if err != nil {
			return nil, c.errorf(tok, "binding %s: annotation says %s, body is %s", name, want.String(), t.String())
		}
		s = types.Compose(s2, s)
		t = t.Apply(s)
	}

	env.applySubst(s)
	envFree := map[int]struct{}{}
	env.freeTypeVars(envFree)
	return types.Generalize(t, envFree), nil
}

// inferExpr is Algorithm W. The returned substitution has already been
// applied to the returned type.
func (c *checker) inferExpr(env *Env, e ast.Expr) (types.Subst, types.Type, error) {
	switch expr := e.(type) {
	case *ast.IntLit:
		return types.Subst{}, types.Int, nil
	case *ast.FloatLit:
		return types.Subst{}, types.Float, nil
	case *ast.StringLit:
		return types.Subst{}, types.Str, nil
	case *ast.BoolLit:
		return types.Subst{}, types.Bool, nil
	case *ast.UnitLit:
		return types.Subst{}, types.Unit, nil

	case *ast.Ident:
		scheme, ok := env.Lookup(expr.Name)
		if !ok {
			return nil, nil, c.errorf(expr.Tok, "unbound identifier %s", expr.Name)
		}
		return types.Subst{}, c.instantiate(scheme), nil

	case *ast.Lambda:
		paramT := c.fresh()
		inner := NewEnv(env)
		inner.Bind(expr.Param, types.MonoScheme(paramT))
		s, bodyT, err := c.inferExpr(inner, expr.Body)
		if err != nil {
			return nil, nil, err
		}
		return s, &types.TArrow{From: paramT.Apply(s), To: bodyT}, nil

	case *ast.Apply:
		s1, fnT, err := c.inferExpr(env, expr.Fn)
		if err != nil {
			return nil, nil, err
		}
		env.applySubst(s1)
		s2, argT, err := c.inferExpr(env, expr.Arg)
		if err != nil {
			return nil, nil, err
		}
		resT := c.fresh()
		s3, err := types.Unify(fnT.Apply(s2), &types.TArrow{From: argT, To: resT})
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "cannot apply %s to %s", fnT.Apply(s2).String(), argT.String())
		}
		s := types.Compose(s3, types.Compose(s2, s1))
		return s, resT.Apply(s), nil

	case *ast.LetIn:
		expr.Value = curryParams(expr.Tok, expr.Params, expr.Value)
		expr.Params = nil
		inner := NewEnv(env)
		scheme, err := c.inferBinding(inner, expr.Rec, expr.Name, expr.TypeAnn, expr.Value, expr.Tok)
		if err != nil {
			return nil, nil, err
		}
		inner.Bind(expr.Name, scheme)
		return c.inferExpr(inner, expr.Body)

	case *ast.If:
		s1, condT, err := c.inferExpr(env, expr.Cond)
		if err != nil {
			return nil, nil, err
		}
		sb, err := types.Unify(condT, types.Bool)
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "if condition is %s, not bool", condT.String())
		}
		s := types.Compose(sb, s1)
		env.applySubst(s)

		s2, thenT, err := c.inferExpr(env, expr.Then)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(s2, s)
		env.applySubst(s2)

		s3, elseT, err := c.inferExpr(env, expr.Else)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(s3, s)

		su, err := types.Unify(thenT.Apply(s3), elseT)
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "if branches disagree: %s vs %s", thenT.Apply(s3).String(), elseT.String())
		}
		s = types.Compose(su, s)
		return s, elseT.Apply(su), nil

	case *ast.Binary:
		return c.inferBinary(env, expr)
	case *ast.Unary:
		return c.inferUnary(env, expr)
	case *ast.Tuple:
		return c.inferTuple(env, expr)
	case *ast.ListLit:
		return c.inferList(env, expr)
	case *ast.RecordLit:
		return c.inferRecordLit(env, expr)
	case *ast.FieldAccess:
		return c.inferFieldAccess(env, expr)
	case *ast.Ctor:
		return c.inferCtor(env, expr)
	case *ast.Match:
		return c.inferMatch(env, expr)
	}
	return nil, nil, fmt.Errorf("unhandled expression %T", e)
}

func (c *checker) inferTuple(env *Env, expr *ast.Tuple) (types.Subst, types.Type, error) {
	s := types.Subst{}
	elems := make([]types.Type, len(expr.Elems))
	for i, e := range expr.Elems {
		si, t, err := c.inferExpr(env, e)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(si, s)
		env.applySubst(si)
		elems[i] = t
	}
	for i := range elems {
		elems[i] = elems[i].Apply(s)
	}
	return s, &types.TTuple{Elems: elems}, nil
}

func (c *checker) inferList(env *Env, expr *ast.ListLit) (types.Subst, types.Type, error) {
	elemT := types.Type(c.fresh())
	s := types.Subst{}
	for _, e := range expr.Elems {
		si, t, err := c.inferExpr(env, e)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(si, s)
		env.applySubst(si)
		su, err := types.Unify(elemT.Apply(s), t)
		if err != nil {
			return nil, nil, c.errorf(e.Pos(), "list elements disagree: %s vs %s", elemT.Apply(s).String(), t.String())
		}
		s = types.Compose(su, s)
	}
	return s, &types.TList{Elem: elemT.Apply(s)}, nil
}

// inferRecordLit resolves the literal to the unique declared record type
// with exactly this field set, then checks each field.
func (c *checker) inferRecordLit(env *Env, expr *ast.RecordLit) (types.Subst, types.Type, error) {
	var match *RecordInfo
	for _, rec := range c.info.Records {
		if recordFieldsMatch(rec, expr.Fields) {
			if match != nil {
				return nil, nil, c.errorf(expr.Tok, "record literal matches both %s and %s; add a field annotation", match.Name, rec.Name)
			}
			match = rec
		}
	}
	if match == nil {
		return nil, nil, c.errorf(expr.Tok, "no declared record type has fields %s", fieldNames(expr.Fields))
	}
	expr.TypeName = match.Name

	s := types.Subst{}
	for i := range expr.Fields {
		f := &expr.Fields[i]
		want := match.Fields[match.Index(f.Name)].Type
		si, got, err := c.inferExpr(env, f.Value)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(si, s)
		env.applySubst(si)
		su, err := types.Unify(got, want.Apply(s))
		if err != nil {
			return nil, nil, c.errorf(f.Value.Pos(), "field %s of %s is %s, not %s", f.Name, match.Name, want.String(), got.String())
		}
		s = types.Compose(su, s)
	}
	return s, c.recordType(match), nil
}

func recordFieldsMatch(rec *RecordInfo, fields []ast.FieldInit) bool {
	if len(rec.Fields) != len(fields) {
		return false
	}
	for _, f := range fields {
		if rec.Index(f.Name) < 0 {
			return false
		}
	}
	return true
}

func fieldNames(fields []ast.FieldInit) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f.Name
	}
	return "{" + out + "}"
}

// inferFieldAccess resolves r.f either from the target's inferred record
// type or, when the target is still a type variable, from field-name
// uniqueness across declared records.
func (c *checker) inferFieldAccess(env *Env, expr *ast.FieldAccess) (types.Subst, types.Type, error) {
	s, targetT, err := c.inferExpr(env, expr.Target)
	if err != nil {
		return nil, nil, err
	}

	var rec *RecordInfo
	switch t := targetT.(type) {
	case *types.TRecord:
		rec = c.info.Records[t.Name]
	case *types.TCon:
		rec = c.info.Records[t.Name]
	case *types.TVar:
		for _, candidate := range c.info.Records {
			if candidate.Index(expr.Field) >= 0 {
				if rec != nil {
					return nil, nil, c.errorf(expr.Tok, "field %s is ambiguous between %s and %s", expr.Field, rec.Name, candidate.Name)
				}
				rec = candidate
			}
		}
		if rec != nil {
			su, err := types.Unify(targetT, c.recordType(rec))
			if err != nil {
				return nil, nil, c.errorf(expr.Tok, "%s", err)
			}
			s = types.Compose(su, s)
			env.applySubst(su)
		}
	}
	if rec == nil {
		return nil, nil, c.errorf(expr.Tok, "%s has no field %s", targetT.String(), expr.Field)
	}

	idx := rec.Index(expr.Field)
	if idx < 0 {
		return nil, nil, c.errorf(expr.Tok, "record %s has no field %s", rec.Name, expr.Field)
	}
	expr.TypeName = rec.Name
	expr.Index = idx
	return s, rec.Fields[idx].Type.Apply(s), nil
}

func (c *checker) inferCtor(env *Env, expr *ast.Ctor) (types.Subst, types.Type, error) {
	ref, ok := c.info.Ctors[expr.Name]
	if !ok {
		return nil, nil, c.errorf(expr.Tok, "unknown constructor %s", expr.Name)
	}
	variant := c.info.Variants[ref.TypeName]
	ctor := variant.Ctors[ref.Tag]

	expr.TypeName = ref.TypeName
	expr.Tag = ref.Tag
	expr.Arity = ctor.Arity

	result := &types.TCon{Name: ref.TypeName}
	if ctor.Arity == 0 {
		if expr.Arg != nil {
			return nil, nil, c.errorf(expr.Tok, "constructor %s takes no payload", expr.Name)
		}
		return types.Subst{}, result, nil
	}
	if expr.Arg == nil {
		return nil, nil, c.errorf(expr.Tok, "constructor %s needs a payload of type %s", expr.Name, ctor.Payload.String())
	}
	s, argT, err := c.inferExpr(env, expr.Arg)
	if err != nil {
		return nil, nil, err
	}
	su, err := types.Unify(argT, ctor.Payload)
	if err != nil {
		return nil, nil, c.errorf(expr.Tok, "constructor %s wants %s, got %s", expr.Name, ctor.Payload.String(), argT.String())
	}
	return types.Compose(su, s), result, nil
}
