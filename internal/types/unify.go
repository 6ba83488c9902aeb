package types

import "fmt"

// Subst maps type variable ids to types. Bindings may chain (a -> b -> int);
// Apply chases chains, so composition never needs to rewrite existing
// bindings eagerly.
type Subst map[int]Type

// Compose returns a substitution equivalent to applying first, then second.
func Compose(second, first Subst) Subst {
	out := make(Subst, len(first)+len(second))
	for id, t := range first {
		out[id] = t.Apply(second)
	}
	for id, t := range second {
		if _, ok := out[id]; !ok {
			out[id] = t
		}
	}
	return out
}

// UnifyError reports a mismatch between two types. Got and Want are the
// types as the caller saw them, before substitution chasing.
type UnifyError struct {
	Got, Want Type
	Reason    string
}

func (e *UnifyError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("cannot unify %s with %s", e.Got.String(), e.Want.String())
}

// Unify computes the most general substitution making a and b equal, or
// reports why none exists. The occurs check rejects infinite types.
func Unify(a, b Type) (Subst, error) {
	switch at := a.(type) {
	case *TVar:
		return bindVar(at, b)
	case *TCon:
		if bv, ok := b.(*TVar); ok {
			return bindVar(bv, a)
		}
		if bc, ok := b.(*TCon); ok && bc.Name == at.Name {
			return Subst{}, nil
		}
		if br, ok := b.(*TRecord); ok && br.Name == at.Name {
			return Subst{}, nil
		}
		return nil, &UnifyError{Got: a, Want: b}
	case *TArrow:
		if bv, ok := b.(*TVar); ok {
			return bindVar(bv, a)
		}
		bt, ok := b.(*TArrow)
		if !ok {
			return nil, &UnifyError{Got: a, Want: b}
		}
		s1, err := Unify(at.From, bt.From)
		if err != nil {
			return nil, err
		}
		s2, err := Unify(at.To.Apply(s1), bt.To.Apply(s1))
		if err != nil {
			return nil, err
		}
		return Compose(s2, s1), nil
	case *TList:
		if bv, ok := b.(*TVar); ok {
			return bindVar(bv, a)
		}
		bt, ok := b.(*TList)
		if !ok {
			return nil, &UnifyError{Got: a, Want: b}
		}
		return Unify(at.Elem, bt.Elem)
	case *TTuple:
		if bv, ok := b.(*TVar); ok {
			return bindVar(bv, a)
		}
		bt, ok := b.(*TTuple)
		if !ok || len(bt.Elems) != len(at.Elems) {
			return nil, &UnifyError{Got: a, Want: b}
		}
		s := Subst{}
		for i := range at.Elems {
			si, err := Unify(at.Elems[i].Apply(s), bt.Elems[i].Apply(s))
			if err != nil {
				return nil, err
			}
			s = Compose(si, s)
		}
		return s, nil
	case *TRecord:
		switch bt := b.(type) {
		case *TVar:
			return bindVar(bt, a)
		case *TRecord:
			if bt.Name != at.Name {
				return nil, &UnifyError{Got: a, Want: b}
			}
			return Subst{}, nil
		case *TCon:
			if bt.Name == at.Name {
				return Subst{}, nil
			}
		}
		return nil, &UnifyError{Got: a, Want: b}
	}
	return nil, &UnifyError{Got: a, Want: b, Reason: fmt.Sprintf("unknown type form %T", a)}
}

func bindVar(v *TVar, t Type) (Subst, error) {
	if tv, ok := t.(*TVar); ok && tv.ID == v.ID {
		return Subst{}, nil
	}
	if occurs(v.ID, t) {
		return nil, &UnifyError{Got: v, Want: t,
			Reason: fmt.Sprintf("infinite type: %s occurs in %s", v.String(), t.String())}
	}
	return Subst{v.ID: t}, nil
}

func occurs(id int, t Type) bool {
	free := map[int]struct{}{}
	t.FreeTypeVars(free)
	_, ok := free[id]
	return ok
}
