package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/fizzlang/fizz/internal/types"
)

// InstallStdlib registers the built-in modules: Std, Math, String, List,
// Yaml and Sql. The embed layer installs it into every fresh engine; hosts
// embedding the bare VM can pick modules individually.
func InstallStdlib(reg *Registry) {
	installStd(reg)
	installMath(reg)
	installString(reg)
	installList(reg)
	installYaml(reg)
	installSql(reg)
}

// Scheme-building shorthand for registrations.

func tv(id int) types.Type { return &types.TVar{ID: id} }

// arrow builds a right-associated function type from its arguments.
func arrow(ts ...types.Type) types.Type {
	t := ts[len(ts)-1]
	for i := len(ts) - 2; i >= 0; i-- {
		t = &types.TArrow{From: ts[i], To: t}
	}
	return t
}

func list(elem types.Type) types.Type { return &types.TList{Elem: elem} }

func mono(t types.Type) *types.Scheme { return types.MonoScheme(t) }

func forall(vars []int, t types.Type) *types.Scheme {
	return &types.Scheme{Vars: vars, Body: t}
}

// ---- Std ----

func installStd(reg *Registry) {
	reg.RegisterTyped("Std.print", 1, forall([]int{0}, arrow(tv(0), types.Unit)),
		func(m *VM, args []Value) (Value, error) {
			fmt.Fprint(m.Stdout, displayString(m.heap, args[0]))
			return Unit, nil
		})
	reg.RegisterTyped("Std.println", 1, forall([]int{0}, arrow(tv(0), types.Unit)),
		func(m *VM, args []Value) (Value, error) {
			fmt.Fprintln(m.Stdout, displayString(m.heap, args[0]))
			return Unit, nil
		})
	reg.RegisterTyped("Std.show", 1, forall([]int{0}, arrow(tv(0), types.Str)),
		func(m *VM, args []Value) (Value, error) {
			return m.heap.AllocStr(m.heap.Render(args[0])), nil
		})
	reg.RegisterTyped("Std.panic", 1, forall([]int{1}, arrow(types.Str, tv(1))),
		func(m *VM, args []Value) (Value, error) {
			if args[0].Kind != ValStr {
				return Unit, fmt.Errorf("Std.panic: message must be a string")
			}
			return Unit, fmt.Errorf("script panic: %s", m.heap.Str(args[0].Handle()))
		})
	reg.RegisterTyped("Std.uuid", 1, mono(arrow(types.Unit, types.Str)),
		func(m *VM, args []Value) (Value, error) {
			return m.heap.AllocStr(uuid.NewString()), nil
		})
}

// ---- Math ----

func installMath(reg *Registry) {
	reg.RegisterTyped("Math.abs", 1, mono(arrow(types.Int, types.Int)),
		func(m *VM, args []Value) (Value, error) {
			n, err := intArg(m, "Math.abs", args[0])
			if err != nil {
				return Unit, err
			}
			if n < 0 {
				n = -n
			}
			return IntValue(n), nil
		})
	reg.RegisterTyped("Math.min", 2, mono(arrow(types.Int, types.Int, types.Int)),
		func(m *VM, args []Value) (Value, error) {
			a, err := intArg(m, "Math.min", args[0])
			if err != nil {
				return Unit, err
			}
			b, err := intArg(m, "Math.min", args[1])
			if err != nil {
				return Unit, err
			}
			if b < a {
				a = b
			}
			return IntValue(a), nil
		})
	reg.RegisterTyped("Math.max", 2, mono(arrow(types.Int, types.Int, types.Int)),
		func(m *VM, args []Value) (Value, error) {
			a, err := intArg(m, "Math.max", args[0])
			if err != nil {
				return Unit, err
			}
			b, err := intArg(m, "Math.max", args[1])
			if err != nil {
				return Unit, err
			}
			if b > a {
				a = b
			}
			return IntValue(a), nil
		})
	reg.RegisterTyped("Math.sqrt", 1, mono(arrow(types.Float, types.Float)),
		func(m *VM, args []Value) (Value, error) {
			f, err := floatArg(m, "Math.sqrt", args[0])
			if err != nil {
				return Unit, err
			}
			return FloatValue(math.Sqrt(f)), nil
		})
	reg.RegisterTyped("Math.floor", 1, mono(arrow(types.Float, types.Float)),
		func(m *VM, args []Value) (Value, error) {
			f, err := floatArg(m, "Math.floor", args[0])
			if err != nil {
				return Unit, err
			}
			return FloatValue(math.Floor(f)), nil
		})
}

// ---- String ----

func installString(reg *Registry) {
	reg.RegisterTyped("String.length", 1, mono(arrow(types.Str, types.Int)),
		func(m *VM, args []Value) (Value, error) {
			s, err := strArg(m, "String.length", args[0])
			if err != nil {
				return Unit, err
			}
			return IntValue(int64(len([]rune(s)))), nil
		})
	reg.RegisterTyped("String.concat", 1, mono(arrow(list(types.Str), types.Str)),
		func(m *VM, args []Value) (Value, error) {
			parts, err := strListArg(m, "String.concat", args[0])
			if err != nil {
				return Unit, err
			}
			return m.heap.AllocStr(strings.Join(parts, "")), nil
		})
	// String.sub s start len, rune-indexed.
	reg.RegisterTyped("String.sub", 3, mono(arrow(types.Str, types.Int, types.Int, types.Str)),
		func(m *VM, args []Value) (Value, error) {
			s, err := strArg(m, "String.sub", args[0])
			if err != nil {
				return Unit, err
			}
			start, err := intArg(m, "String.sub", args[1])
			if err != nil {
				return Unit, err
			}
			length, err := intArg(m, "String.sub", args[2])
			if err != nil {
				return Unit, err
			}
			runes := []rune(s)
			if start < 0 || length < 0 || start+length > int64(len(runes)) {
				return Unit, fmt.Errorf("String.sub: range [%d, %d) out of bounds for length %d", start, start+length, len(runes))
			}
			return m.heap.AllocStr(string(runes[start : start+length])), nil
		})
	reg.RegisterTyped("String.split", 2, mono(arrow(types.Str, types.Str, list(types.Str))),
		func(m *VM, args []Value) (Value, error) {
			sep, err := strArg(m, "String.split", args[0])
			if err != nil {
				return Unit, err
			}
			s, err := strArg(m, "String.split", args[1])
			if err != nil {
				return Unit, err
			}
			parts := strings.Split(s, sep)
			elems := make([]Value, len(parts))
			pinned := 0
			for i, part := range parts {
				elems[i] = m.heap.AllocStr(part)
				m.heap.Pin(elems[i])
				pinned++
			}
			out := MakeListValue(m.heap, elems)
			m.heap.Unpin(pinned)
			return out, nil
		})
	reg.RegisterTyped("String.join", 2, mono(arrow(types.Str, list(types.Str), types.Str)),
		func(m *VM, args []Value) (Value, error) {
			sep, err := strArg(m, "String.join", args[0])
			if err != nil {
				return Unit, err
			}
			parts, err := strListArg(m, "String.join", args[1])
			if err != nil {
				return Unit, err
			}
			return m.heap.AllocStr(strings.Join(parts, sep)), nil
		})
}

// displayString renders a value for printing. Unlike Std.show, a bare
// string prints its contents without quotes.
func displayString(h *Heap, v Value) string {
	if v.Kind == ValStr {
		return h.Str(v.Handle())
	}
	return h.Render(v)
}

// ---- Argument helpers ----

func intArg(m *VM, name string, v Value) (int64, error) {
	if v.Kind != ValInt {
		return 0, fmt.Errorf("%s: expected int, got %s", name, v.Kind)
	}
	return v.Int(), nil
}

func floatArg(m *VM, name string, v Value) (float64, error) {
	if v.Kind != ValFloat {
		return 0, fmt.Errorf("%s: expected float, got %s", name, v.Kind)
	}
	return v.Float(), nil
}

func strArg(m *VM, name string, v Value) (string, error) {
	if v.Kind != ValStr {
		return "", fmt.Errorf("%s: expected string, got %s", name, v.Kind)
	}
	return m.heap.Str(v.Handle()), nil
}

func strListArg(m *VM, name string, v Value) ([]string, error) {
	vals, err := ListValues(m.heap, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out := make([]string, len(vals))
	for i, el := range vals {
		if el.Kind != ValStr {
			return nil, fmt.Errorf("%s: expected string list, found %s element", name, el.Kind)
		}
		out[i] = m.heap.Str(el.Handle())
	}
	return out, nil
}

// ListValues walks a script list into a Go slice.
func ListValues(h *Heap, v Value) ([]Value, error) {
	if v.Kind != ValList {
		return nil, fmt.Errorf("expected list, got %s", v.Kind)
	}
	var out []Value
	for cur := v; !cur.IsEmptyList(); {
		cell := h.Cons(cur.Handle())
		out = append(out, cell.Head)
		cur = cell.Tail
	}
	return out, nil
}

// MakeListValue builds a script list from a Go slice. The caller must keep
// the elements rooted (pinned or stack-held) across the call.
func MakeListValue(h *Heap, elems []Value) Value {
	out := EmptyList
	for i := len(elems) - 1; i >= 0; i-- {
		h.Pin(out)
		out = h.AllocCons(elems[i], out)
		h.Unpin(1)
	}
	return out
}
