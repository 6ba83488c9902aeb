// Package types defines the Fizz type language: type variables, constructors
// and composite shapes, plus substitutions and Robinson unification. The
// inference pass in internal/infer drives these primitives.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Type is the interface implemented by every type form.
type Type interface {
	// String renders the type for diagnostics, with arrows right associative
	// and parentheses only where required.
	String() string
	// Apply substitutes type variables according to s.
	Apply(s Subst) Type
	// FreeTypeVars accumulates the ids of unbound variables into set.
	FreeTypeVars(set map[int]struct{})
}

// TVar is an unbound type variable created during inference.
type TVar struct {
	ID int
}

// TCon is a ground builtin or declared nominal type: int, float, bool,
// string, unit, or a user type name.
type TCon struct {
	Name string
}

// TArrow is the binary function type From -> To. Multi-argument functions
// are nested arrows.
type TArrow struct {
	From, To Type
}

// TList is the homogeneous list type.
type TList struct {
	Elem Type
}

// TTuple has two or more components.
type TTuple struct {
	Elems []Type
}

// TRecord is the structural view of a declared record type, kept alongside
// the nominal name so field lookups can be checked without a registry.
type TRecord struct {
	Name   string
	Fields []Field
}

type Field struct {
	Name string
	Type Type
}

var (
	Int   = &TCon{Name: "int"}
	Float = &TCon{Name: "float"}
	Bool  = &TCon{Name: "bool"}
	Str   = &TCon{Name: "string"}
	Unit  = &TCon{Name: "unit"}
)

func (t *TVar) String() string {
	// a, b, …, z, a1, b1, …
	letter := rune('a' + t.ID%26)
	if t.ID < 26 {
		return "'" + string(letter)
	}
	return fmt.Sprintf("'%c%d", letter, t.ID/26)
}

func (t *TCon) String() string { return t.Name }

func (t *TArrow) String() string {
	from := t.From.String()
	if _, ok := t.From.(*TArrow); ok {
		from = "(" + from + ")"
	}
	return from + " -> " + t.To.String()
}

func (t *TList) String() string {
	elem := t.Elem.String()
	switch t.Elem.(type) {
	case *TArrow, *TTuple:
		elem = "(" + elem + ")"
	}
	return elem + " list"
}

func (t *TTuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		s := e.String()
		switch e.(type) {
		case *TArrow, *TTuple:
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " * ")
}

func (t *TRecord) String() string { return t.Name }

func (t *TVar) Apply(s Subst) Type {
	if bound, ok := s[t.ID]; ok {
		// An identity binding must not be chased: it would recurse
		// without making progress.
		if v, same := bound.(*TVar); same && v.ID == t.ID {
			return t
		}
		// Chase the chain so repeated Apply calls converge.
		return bound.Apply(s)
	}
	return t
}

func (t *TCon) Apply(Subst) Type { return t }

func (t *TArrow) Apply(s Subst) Type {
	return &TArrow{From: t.From.Apply(s), To: t.To.Apply(s)}
}

func (t *TList) Apply(s Subst) Type {
	return &TList{Elem: t.Elem.Apply(s)}
}

func (t *TTuple) Apply(s Subst) Type {
	elems := make([]Type, len(t.Elems))
	for i, e := range t.Elems {
		elems[i] = e.Apply(s)
	}
	return &TTuple{Elems: elems}
}

func (t *TRecord) Apply(s Subst) Type {
	fields := make([]Field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = Field{Name: f.Name, Type: f.Type.Apply(s)}
	}
	return &TRecord{Name: t.Name, Fields: fields}
}

func (t *TVar) FreeTypeVars(set map[int]struct{}) { set[t.ID] = struct{}{} }
func (t *TCon) FreeTypeVars(map[int]struct{})     {}

func (t *TArrow) FreeTypeVars(set map[int]struct{}) {
	t.From.FreeTypeVars(set)
	t.To.FreeTypeVars(set)
}

func (t *TList) FreeTypeVars(set map[int]struct{}) { t.Elem.FreeTypeVars(set) }

func (t *TTuple) FreeTypeVars(set map[int]struct{}) {
	for _, e := range t.Elems {
		e.FreeTypeVars(set)
	}
}

func (t *TRecord) FreeTypeVars(set map[int]struct{}) {
	for _, f := range t.Fields {
		f.Type.FreeTypeVars(set)
	}
}

// Scheme is a polymorphic type: forall Vars. Body.
type Scheme struct {
	Vars []int
	Body Type
}

func (s *Scheme) String() string {
	if len(s.Vars) == 0 {
		return s.Body.String()
	}
	vars := make([]string, len(s.Vars))
	for i, id := range s.Vars {
		vars[i] = (&TVar{ID: id}).String()
	}
	return "forall " + strings.Join(vars, " ") + ". " + s.Body.String()
}

// FreeTypeVars of a scheme excludes its quantified variables.
func (s *Scheme) FreeTypeVars(set map[int]struct{}) {
	inner := map[int]struct{}{}
	s.Body.FreeTypeVars(inner)
	for _, id := range s.Vars {
		delete(inner, id)
	}
	for id := range inner {
		set[id] = struct{}{}
	}
}

// MonoScheme wraps a monomorphic type as a scheme with no quantifiers.
func MonoScheme(t Type) *Scheme { return &Scheme{Body: t} }

// Generalize quantifies over every variable free in t but not free in the
// environment (envFree).
func Generalize(t Type, envFree map[int]struct{}) *Scheme {
	free := map[int]struct{}{}
	t.FreeTypeVars(free)
	var vars []int
	for id := range free {
		if _, inEnv := envFree[id]; !inEnv {
			vars = append(vars, id)
		}
	}
	sort.Ints(vars)
	return &Scheme{Vars: vars, Body: t}
}
