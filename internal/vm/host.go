package vm

import (
	"fmt"

	"github.com/fizzlang/fizz/internal/types"
)

// HostFn is a native function callable from script code. It receives the
// running VM so it can re-enter execution through CallValue; args has
// exactly the registered arity. Returning an error (or panicking) aborts
// the script with a host error; it never crashes the embedder.
type HostFn func(vm *VM, args []Value) (Value, error)

type hostEntry struct {
	Name   string
	Arity  int
	Fn     HostFn
	Scheme *types.Scheme
}

// Registry holds every host function an engine exposes. Script code reaches
// entries through the global name table; the compiler resolves a qualified
// name like "List.map" to the registry when no script global shadows it.
type Registry struct {
	entries []hostEntry
	byName  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]int{}}
}

// Register adds an untyped host function. Inference gives it a fully
// polymorphic curried scheme, so the type checker accepts any well-formed
// application; the function itself must validate argument kinds.
func (r *Registry) Register(name string, arity int, fn HostFn) {
	r.RegisterTyped(name, arity, polyScheme(arity), fn)
}

// RegisterTyped adds a host function with an explicit type scheme.
func (r *Registry) RegisterTyped(name string, arity int, scheme *types.Scheme, fn HostFn) {
	if arity < 1 {
		arity = 1 // unit-argument convention: every function takes at least one value
	}
	if idx, ok := r.byName[name]; ok {
		r.entries[idx] = hostEntry{Name: name, Arity: arity, Fn: fn, Scheme: scheme}
		return
	}
	r.byName[name] = len(r.entries)
	r.entries = append(r.entries, hostEntry{Name: name, Arity: arity, Fn: fn, Scheme: scheme})
}

// polyScheme is forall a1…an r. a1 -> … -> an -> r.
func polyScheme(arity int) *types.Scheme {
	if arity < 1 {
		arity = 1
	}
	vars := make([]int, arity+1)
	for i := range vars {
		vars[i] = i
	}
	body := types.Type(&types.TVar{ID: arity})
	for i := arity - 1; i >= 0; i-- {
		body = &types.TArrow{From: &types.TVar{ID: i}, To: body}
	}
	return &types.Scheme{Vars: vars, Body: body}
}

// Lookup returns the registry index for a name.
func (r *Registry) Lookup(name string) (int, bool) {
	idx, ok := r.byName[name]
	return idx, ok
}

func (r *Registry) entry(idx int) (hostEntry, error) {
	if idx < 0 || idx >= len(r.entries) {
		return hostEntry{}, fmt.Errorf("host function index %d out of range", idx)
	}
	return r.entries[idx], nil
}

// Schemes exports every registered name's type scheme for inference.
func (r *Registry) Schemes() map[string]*types.Scheme {
	out := make(map[string]*types.Scheme, len(r.entries))
	for _, e := range r.entries {
		out[e.Name] = e.Scheme
	}
	return out
}

// Names lists registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Name
	}
	return out
}

// HostFnValue wraps a registry index as a first-class value.
func HostFnValue(idx int) Value {
	return Value{Kind: ValHostFn, Data: uint64(idx)}
}
