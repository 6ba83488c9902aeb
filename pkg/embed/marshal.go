package fizz

import (
	"fmt"

	"github.com/fizzlang/fizz/internal/vm"
)

// ToValue converts a Go value into a script value. Supported kinds: nil,
// booleans, integers, floats, strings, []interface{} (lists) and Value
// itself (passed through untouched).
//
// The returned value is not rooted; callers that allocate again before
// handing it to the interpreter must pin it.
func ToValue(h *vm.Heap, v interface{}) (vm.Value, error) {
	switch x := v.(type) {
	case nil:
		return vm.Unit, nil
	case vm.Value:
		return x, nil
	case bool:
		return vm.BoolValue(x), nil
	case int:
		return vm.IntValue(int64(x)), nil
	case int32:
		return vm.IntValue(int64(x)), nil
	case int64:
		return vm.IntValue(x), nil
	case float32:
		return vm.FloatValue(float64(x)), nil
	case float64:
		return vm.FloatValue(x), nil
	case string:
		return h.AllocStr(x), nil
	case []interface{}:
		elems := make([]vm.Value, len(x))
		pinned := 0
		for i, el := range x {
			ev, err := ToValue(h, el)
			if err != nil {
				h.Unpin(pinned)
				return vm.Unit, err
			}
			h.Pin(ev)
			pinned++
			elems[i] = ev
		}
		out := vm.MakeListValue(h, elems)
		h.Unpin(pinned)
		return out, nil
	case []string:
		elems := make([]interface{}, len(x))
		for i, s := range x {
			elems[i] = s
		}
		return ToValue(h, elems)
	case []int:
		elems := make([]interface{}, len(x))
		for i, n := range x {
			elems[i] = n
		}
		return ToValue(h, elems)
	}
	return vm.Unit, fmt.Errorf("cannot marshal %T into a script value", v)
}

// FromValue converts a script value into plain Go data: nil, bool, int64,
// float64, string, []interface{} for lists and tuples, and
// map[string]interface{} for records. Functions and resources come back as
// the opaque Value, so they can be passed to Call or ToValue later.
func FromValue(h *vm.Heap, v vm.Value) (interface{}, error) {
	switch v.Kind {
	case vm.ValUnit:
		return nil, nil
	case vm.ValBool:
		return v.Bool(), nil
	case vm.ValInt:
		return v.Int(), nil
	case vm.ValFloat:
		return v.Float(), nil
	case vm.ValStr:
		return h.Str(v.Handle()), nil
	case vm.ValList:
		vals, err := vm.ListValues(h, v)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(vals))
		for i, el := range vals {
			if out[i], err = FromValue(h, el); err != nil {
				return nil, err
			}
		}
		return out, nil
	case vm.ValTuple:
		tup := h.Tuple(v.Handle())
		out := make([]interface{}, len(tup.Elems))
		for i, el := range tup.Elems {
			var err error
			if out[i], err = FromValue(h, el); err != nil {
				return nil, err
			}
		}
		return out, nil
	case vm.ValRecord:
		rec := h.Record(v.Handle())
		out := make(map[string]interface{}, len(rec.Fields))
		for i, f := range rec.Fields {
			fv, err := FromValue(h, f)
			if err != nil {
				return nil, err
			}
			out[rec.FieldNames[i]] = fv
		}
		return out, nil
	case vm.ValVariant:
		vr := h.Variant(v.Handle())
		out := map[string]interface{}{"$ctor": vr.CtorName}
		if len(vr.Fields) > 0 {
			payload, err := FromValue(h, vr.Fields[0])
			if err != nil {
				return nil, err
			}
			out["$value"] = payload
		}
		return out, nil
	}
	// Closures, partial applications and resources stay opaque.
	return v, nil
}
