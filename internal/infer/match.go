package infer

import (
	"fmt"

	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/types"
)

// inferMatch types the scrutinee, checks every arm against it, unifies arm
// bodies with each other, and runs exhaustiveness analysis. Non-exhaustive
// matches compile (they fail at runtime) but produce a warning.
func (c *checker) inferMatch(env *Env, expr *ast.Match) (types.Subst, types.Type, error) {
	s, scrutT, err := c.inferExpr(env, expr.Scrutinee)
	if err != nil {
		return nil, nil, err
	}
	env.applySubst(s)

	resultT := types.Type(c.fresh())
	for i := range expr.Arms {
		arm := &expr.Arms[i]
		bindings := map[string]types.Type{}
		sp, err := c.inferPattern(arm.Pat, scrutT.Apply(s), bindings)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(sp, s)
		env.applySubst(sp)

		armEnv := NewEnv(env)
		for name, t := range bindings {
			armEnv.Bind(name, types.MonoScheme(t.Apply(s)))
		}
		sb, bodyT, err := c.inferExpr(armEnv, arm.Body)
		if err != nil {
			return nil, nil, err
		}
		s = types.Compose(sb, s)
		env.applySubst(sb)

		su, err := types.Unify(resultT.Apply(s), bodyT)
		if err != nil {
			return nil, nil, c.errorf(arm.Body.Pos(), "match arms disagree: %s vs %s", resultT.Apply(s).String(), bodyT.String())
		}
		s = types.Compose(su, s)
	}

	expr.Exhaustive = c.isExhaustive(expr.Arms, scrutT.Apply(s))
	if !expr.Exhaustive {
		c.info.Warnings = append(c.info.Warnings,
			fmt.Sprintf("%d:%d: match is not exhaustive", expr.Tok.Line, expr.Tok.Column))
	}
	return s, resultT.Apply(s), nil
}

// inferPattern unifies a pattern against the scrutinee type and records
// bound variable types. The same variable may not be bound twice in one
// pattern.
func (c *checker) inferPattern(pat ast.Pattern, scrutT types.Type, bindings map[string]types.Type) (types.Subst, error) {
	switch p := pat.(type) {
	case *ast.WildcardPat:
		return types.Subst{}, nil

	case *ast.VarPat:
		if _, dup := bindings[p.Name]; dup {
			return nil, c.errorf(p.Tok, "pattern binds %s twice", p.Name)
		}
		bindings[p.Name] = scrutT
		return types.Subst{}, nil

	case *ast.LitPat:
		var litT types.Type
		switch p.Lit.(type) {
		case *ast.IntLit:
			litT = types.Int
		case *ast.FloatLit:
			litT = types.Float
		case *ast.StringLit:
			litT = types.Str
		case *ast.BoolLit:
			litT = types.Bool
		case *ast.UnitLit:
			litT = types.Unit
		default:
			return nil, c.errorf(p.Tok, "unsupported literal pattern")
		}
		s, err := types.Unify(scrutT, litT)
		if err != nil {
			return nil, c.errorf(p.Tok, "pattern is %s, scrutinee is %s", litT.String(), scrutT.String())
		}
		return s, nil

	case *ast.TuplePat:
		elems := make([]types.Type, len(p.Elems))
		for i := range elems {
			elems[i] = c.fresh()
		}
		s, err := types.Unify(scrutT, &types.TTuple{Elems: elems})
		if err != nil {
			return nil, c.errorf(p.Tok, "tuple pattern of width %d does not match %s", len(p.Elems), scrutT.String())
		}
		for i, sub := range p.Elems {
			si, err := c.inferPattern(sub, elems[i].Apply(s), bindings)
			if err != nil {
				return nil, err
			}
			s = types.Compose(si, s)
		}
		return s, nil

	case *ast.ConsPat:
		elem := c.fresh()
		listT := &types.TList{Elem: elem}
		s, err := types.Unify(scrutT, listT)
		if err != nil {
			return nil, c.errorf(p.Tok, "cons pattern does not match %s", scrutT.String())
		}
		sh, err := c.inferPattern(p.Head, elem.Apply(s), bindings)
		if err != nil {
			return nil, err
		}
		s = types.Compose(sh, s)
		st, err := c.inferPattern(p.Tail, listT.Apply(s), bindings)
		if err != nil {
			return nil, err
		}
		return types.Compose(st, s), nil

	case *ast.ListPat:
		elem := c.fresh()
		s, err := types.Unify(scrutT, &types.TList{Elem: elem})
		if err != nil {
			return nil, c.errorf(p.Tok, "list pattern does not match %s", scrutT.String())
		}
		for _, sub := range p.Elems {
			si, err := c.inferPattern(sub, elem.Apply(s), bindings)
			if err != nil {
				return nil, err
			}
			s = types.Compose(si, s)
		}
		return s, nil

	case *ast.CtorPat:
		ref, ok := c.info.Ctors[p.Name]
		if !ok {
			return nil, c.errorf(p.Tok, "unknown constructor %s", p.Name)
		}
		variant := c.info.Variants[ref.TypeName]
		ctor := variant.Ctors[ref.Tag]
		p.TypeName = ref.TypeName
		p.Tag = ref.Tag
		p.Arity = ctor.Arity

		s, err := types.Unify(scrutT, &types.TCon{Name: ref.TypeName})
		if err != nil {
			return nil, c.errorf(p.Tok, "constructor %s belongs to %s, scrutinee is %s", p.Name, ref.TypeName, scrutT.String())
		}
		if ctor.Arity == 0 {
			if p.Arg != nil {
				return nil, c.errorf(p.Tok, "constructor %s takes no payload", p.Name)
			}
			return s, nil
		}
		if p.Arg == nil {
			return nil, c.errorf(p.Tok, "constructor %s carries a payload; bind or ignore it", p.Name)
		}
		sa, err := c.inferPattern(p.Arg, ctor.Payload.Apply(s), bindings)
		if err != nil {
			return nil, err
		}
		return types.Compose(sa, s), nil

	case *ast.RecordPat:
		var rec *RecordInfo
		switch t := scrutT.(type) {
		case *types.TRecord:
			rec = c.info.Records[t.Name]
		case *types.TCon:
			rec = c.info.Records[t.Name]
		default:
			// Resolve by field set, like record literals.
			for _, candidate := range c.info.Records {
				if recordPatFits(candidate, p.Fields) {
					if rec != nil {
						return nil, c.errorf(p.Tok, "record pattern matches both %s and %s", rec.Name, candidate.Name)
					}
					rec = candidate
				}
			}
		}
		if rec == nil {
			return nil, c.errorf(p.Tok, "record pattern does not match %s", scrutT.String())
		}
		p.TypeName = rec.Name

		s, err := types.Unify(scrutT, c.recordType(rec))
		if err != nil {
			return nil, c.errorf(p.Tok, "record pattern: %s", err)
		}
		for i := range p.Fields {
			f := &p.Fields[i]
			idx := rec.Index(f.Name)
			if idx < 0 {
				return nil, c.errorf(p.Tok, "record %s has no field %s", rec.Name, f.Name)
			}
			f.Index = idx
			si, err := c.inferPattern(f.Pat, rec.Fields[idx].Type.Apply(s), bindings)
			if err != nil {
				return nil, err
			}
			s = types.Compose(si, s)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unhandled pattern %T", pat)
}

func recordPatFits(rec *RecordInfo, fields []ast.RecordPatField) bool {
	for _, f := range fields {
		if rec.Index(f.Name) < 0 {
			return false
		}
	}
	return true
}

// isExhaustive implements a shallow coverage check: a wildcard or variable
// arm covers everything; bool literals cover when both appear; variant arms
// cover when every tag appears with no nested refutable payloads; list arms
// cover when [] and an irrefutable cons both appear.
func (c *checker) isExhaustive(arms []ast.MatchArm, scrutT types.Type) bool {
	seenTags := map[int]bool{}
	seenTrue, seenFalse := false, false
	seenNil, seenConsAll := false, false

	for _, arm := range arms {
		switch p := arm.Pat.(type) {
		case *ast.WildcardPat, *ast.VarPat:
			return true
		case *ast.LitPat:
			if b, ok := p.Lit.(*ast.BoolLit); ok {
				if b.Value {
					seenTrue = true
				} else {
					seenFalse = true
				}
			}
			if _, ok := p.Lit.(*ast.UnitLit); ok {
				return true
			}
		case *ast.CtorPat:
			if p.Arg == nil || irrefutable(p.Arg) {
				seenTags[p.Tag] = true
			}
		case *ast.ListPat:
			if len(p.Elems) == 0 {
				seenNil = true
			}
		case *ast.ConsPat:
			if irrefutable(p.Head) && irrefutable(p.Tail) {
				seenConsAll = true
			}
		case *ast.TuplePat:
			if irrefutable(p) {
				return true
			}
		case *ast.RecordPat:
			if irrefutable(p) {
				return true
			}
		}
	}

	if seenTrue && seenFalse {
		return true
	}
	if seenNil && seenConsAll {
		return true
	}
	if con, ok := scrutT.(*types.TCon); ok {
		if variant, ok := c.info.Variants[con.Name]; ok {
			for tag := range variant.Ctors {
				if !seenTags[tag] {
					return false
				}
			}
			return true
		}
	}
	return false
}

// irrefutable reports whether a pattern always matches its scrutinee.
func irrefutable(p ast.Pattern) bool {
	switch pat := p.(type) {
	case *ast.WildcardPat, *ast.VarPat:
		return true
	case *ast.TuplePat:
		for _, e := range pat.Elems {
			if !irrefutable(e) {
				return false
			}
		}
		return true
	case *ast.RecordPat:
		for _, f := range pat.Fields {
			if !irrefutable(f.Pat) {
				return false
			}
		}
		return true
	}
	return false
}
