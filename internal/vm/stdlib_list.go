package vm

import (
	"fmt"

	"github.com/fizzlang/fizz/internal/types"
)

// The List module. Higher-order members re-enter the interpreter through
// CallValue per element, so script callbacks may themselves call back into
// the host.
func installList(reg *Registry) {
	reg.RegisterTyped("List.length", 1,
		forall([]int{0}, arrow(list(tv(0)), types.Int)),
		func(m *VM, args []Value) (Value, error) {
			elems, err := ListValues(m.heap, args[0])
			if err != nil {
				return Unit, fmt.Errorf("List.length: %w", err)
			}
			return IntValue(int64(len(elems))), nil
		})

	reg.RegisterTyped("List.rev", 1,
		forall([]int{0}, arrow(list(tv(0)), list(tv(0)))),
		func(m *VM, args []Value) (Value, error) {
			elems, err := ListValues(m.heap, args[0])
			if err != nil {
				return Unit, fmt.Errorf("List.rev: %w", err)
			}
			out := EmptyList
			// args[0] keeps every element alive, so only the spine under
			// construction needs pinning.
			for _, el := range elems {
				m.heap.Pin(out)
				out = m.heap.AllocCons(el, out)
				m.heap.Unpin(1)
			}
			return out, nil
		})

	reg.RegisterTyped("List.append", 2,
		forall([]int{0}, arrow(list(tv(0)), list(tv(0)), list(tv(0)))),
		func(m *VM, args []Value) (Value, error) {
			left, err := ListValues(m.heap, args[0])
			if err != nil {
				return Unit, fmt.Errorf("List.append: %w", err)
			}
			out := args[1]
			for i := len(left) - 1; i >= 0; i-- {
				m.heap.Pin(out)
				out = m.heap.AllocCons(left[i], out)
				m.heap.Unpin(1)
			}
			return out, nil
		})

	reg.RegisterTyped("List.map", 2,
		forall([]int{0, 1}, arrow(arrow(tv(0), tv(1)), list(tv(0)), list(tv(1)))),
		func(m *VM, args []Value) (Value, error) {
			elems, err := ListValues(m.heap, args[1])
			if err != nil {
				return Unit, fmt.Errorf("List.map: %w", err)
			}
			mapped := make([]Value, len(elems))
			pinned := 0
			for i, el := range elems {
				v, err := m.CallValue(args[0], []Value{el})
				if err != nil {
					m.heap.Unpin(pinned)
					return Unit, err
				}
				mapped[i] = v
				m.heap.Pin(v)
				pinned++
			}
			out := MakeListValue(m.heap, mapped)
			m.heap.Unpin(pinned)
			return out, nil
		})

	reg.RegisterTyped("List.filter", 2,
		forall([]int{0}, arrow(arrow(tv(0), types.Bool), list(tv(0)), list(tv(0)))),
		func(m *VM, args []Value) (Value, error) {
			elems, err := ListValues(m.heap, args[1])
			if err != nil {
				return Unit, fmt.Errorf("List.filter: %w", err)
			}
			var kept []Value
			for _, el := range elems {
				v, err := m.CallValue(args[0], []Value{el})
				if err != nil {
					return Unit, err
				}
				if v.Kind != ValBool {
					return Unit, fmt.Errorf("List.filter: predicate returned %s, want bool", v.Kind)
				}
				if v.Bool() {
					kept = append(kept, el)
				}
			}
			return MakeListValue(m.heap, kept), nil
		})

	// List.fold f acc xs folds left to right.
	reg.RegisterTyped("List.fold", 3,
		forall([]int{0, 1}, arrow(arrow(tv(1), tv(0), tv(1)), tv(1), list(tv(0)), tv(1))),
		func(m *VM, args []Value) (Value, error) {
			elems, err := ListValues(m.heap, args[2])
			if err != nil {
				return Unit, fmt.Errorf("List.fold: %w", err)
			}
			acc := args[1]
			for _, el := range elems {
				m.heap.Pin(acc)
				v, err := m.CallValue(args[0], []Value{acc, el})
				m.heap.Unpin(1)
				if err != nil {
					return Unit, err
				}
				acc = v
			}
			return acc, nil
		})

	reg.RegisterTyped("List.iter", 2,
		forall([]int{0}, arrow(arrow(tv(0), types.Unit), list(tv(0)), types.Unit)),
		func(m *VM, args []Value) (Value, error) {
			elems, err := ListValues(m.heap, args[1])
			if err != nil {
				return Unit, fmt.Errorf("List.iter: %w", err)
			}
			for _, el := range elems {
				if _, err := m.CallValue(args[0], []Value{el}); err != nil {
					return Unit, err
				}
			}
			return Unit, nil
		})
}
