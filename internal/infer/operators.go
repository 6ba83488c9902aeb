package infer

import (
	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/token"
	"github.com/fizzlang/fizz/internal/types"
)

// inferBinary types the operator forms. Arithmetic is monomorphic over a
// numeric type: both operands unify with each other, and an operand type
// still unresolved after unification defaults to int. Comparisons are
// same-type and yield bool.
func (c *checker) inferBinary(env *Env, expr *ast.Binary) (types.Subst, types.Type, error) {
	s1, lt, err := c.inferExpr(env, expr.Left)
	if err != nil {
		return nil, nil, err
	}
	env.applySubst(s1)
	s2, rt, err := c.inferExpr(env, expr.Right)
	if err != nil {
		return nil, nil, err
	}
	s := types.Compose(s2, s1)
	lt = lt.Apply(s)

	switch expr.Op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH:
		su, err := types.Unify(lt, rt)
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "operator %s: %s vs %s", expr.Op, lt.String(), rt.String())
		}
		s = types.Compose(su, s)
		opT := lt.Apply(s)
		switch t := opT.(type) {
		case *types.TCon:
			if t.Name != "int" && t.Name != "float" {
				return nil, nil, c.errorf(expr.Tok, "operator %s needs int or float operands, got %s", expr.Op, t.Name)
			}
		case *types.TVar:
			// Unconstrained numeric expression defaults to int.
			sd, _ := types.Unify(t, types.Int)
			s = types.Compose(sd, s)
			opT = types.Int
		default:
			return nil, nil, c.errorf(expr.Tok, "operator %s needs int or float operands, got %s", expr.Op, opT.String())
		}
		return s, opT, nil

	case token.PERCENT:
		if s, err = c.unifyOperands(expr, s, lt, rt, types.Int); err != nil {
			return nil, nil, err
		}
		return s, types.Int, nil

	case token.CARET:
		if s, err = c.unifyOperands(expr, s, lt, rt, types.Str); err != nil {
			return nil, nil, err
		}
		return s, types.Str, nil

	case token.AND, token.OR:
		if s, err = c.unifyOperands(expr, s, lt, rt, types.Bool); err != nil {
			return nil, nil, err
		}
		return s, types.Bool, nil

	case token.EQ, token.NEQ, token.LT, token.LE, token.GT, token.GE:
		su, err := types.Unify(lt, rt)
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "comparison %s: %s vs %s", expr.Op, lt.String(), rt.String())
		}
		s = types.Compose(su, s)
		return s, types.Bool, nil

	case token.CONS:
		// elem :: elem list
		su, err := types.Unify(rt, &types.TList{Elem: lt})
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "cons: %s :: %s", lt.String(), rt.String())
		}
		s = types.Compose(su, s)
		return s, rt.Apply(su), nil

	case token.AT:
		elem := c.fresh()
		listT := &types.TList{Elem: elem}
		su, err := types.Unify(lt, listT)
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "append: left side is %s, not a list", lt.String())
		}
		s = types.Compose(su, s)
		su2, err := types.Unify(rt.Apply(s), listT.Apply(s))
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "append: %s @ %s", lt.String(), rt.String())
		}
		s = types.Compose(su2, s)
		return s, listT.Apply(s), nil
	}
	return nil, nil, c.errorf(expr.Tok, "unknown operator %s", expr.Op)
}

func (c *checker) unifyOperands(expr *ast.Binary, s types.Subst, lt, rt, want types.Type) (types.Subst, error) {
	su, err := types.Unify(lt, want)
	if err != nil {
		return nil, c.errorf(expr.Tok, "operator %s: left operand is %s, want %s", expr.Op, lt.String(), want.String())
	}
	s = types.Compose(su, s)
	su2, err := types.Unify(rt.Apply(s), want)
	if err != nil {
		return nil, c.errorf(expr.Tok, "operator %s: right operand is %s, want %s", expr.Op, rt.String(), want.String())
	}
	return types.Compose(su2, s), nil
}

func (c *checker) inferUnary(env *Env, expr *ast.Unary) (types.Subst, types.Type, error) {
	s, t, err := c.inferExpr(env, expr.Operand)
	if err != nil {
		return nil, nil, err
	}
	switch expr.Op {
	case token.MINUS:
		switch ot := t.(type) {
		case *types.TCon:
			if ot.Name != "int" && ot.Name != "float" {
				return nil, nil, c.errorf(expr.Tok, "unary minus needs int or float, got %s", ot.Name)
			}
			return s, ot, nil
		case *types.TVar:
			sd, _ := types.Unify(ot, types.Int)
			return types.Compose(sd, s), types.Int, nil
		}
		return nil, nil, c.errorf(expr.Tok, "unary minus needs int or float, got %s", t.String())
	case token.NOT:
		su, err := types.Unify(t, types.Bool)
		if err != nil {
			return nil, nil, c.errorf(expr.Tok, "not needs bool, got %s", t.String())
		}
		return types.Compose(su, s), types.Bool, nil
	}
	return nil, nil, c.errorf(expr.Tok, "unknown unary operator %s", expr.Op)
}
