package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags a Value.
type Kind byte

const (
	ValUnit Kind = iota
	ValInt
	ValFloat
	ValBool
	ValStr      // arena handle
	ValClosure  // arena handle
	ValRecord   // arena handle
	ValVariant  // arena handle
	ValList     // arena handle of the head cons cell; InvalidHandle is the empty list
	ValTuple    // arena handle
	ValResource // arena handle
	ValHostFn   // registry index, inline
	ValPartial  // arena handle: host function with some arguments applied
)

var kindNames = map[Kind]string{
	ValUnit:     "unit",
	ValInt:      "int",
	ValFloat:    "float",
	ValBool:     "bool",
	ValStr:      "string",
	ValClosure:  "closure",
	ValRecord:   "record",
	ValVariant:  "variant",
	ValList:     "list",
	ValTuple:    "tuple",
	ValResource: "resource",
	ValHostFn:   "host function",
	ValPartial:  "host function",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Value is the universal runtime value: a kind tag and an 8-byte payload.
// Scalars live inline in Data; heap-backed kinds store an arena handle.
// A Value is always fully initialized; the zero Value is unit.
type Value struct {
	Kind Kind
	Data uint64
}

var Unit = Value{Kind: ValUnit}

func IntValue(v int64) Value     { return Value{Kind: ValInt, Data: uint64(v)} }
func FloatValue(v float64) Value { return Value{Kind: ValFloat, Data: math.Float64bits(v)} }

func BoolValue(v bool) Value {
	if v {
		return Value{Kind: ValBool, Data: 1}
	}
	return Value{Kind: ValBool, Data: 0}
}

func (v Value) Int() int64     { return int64(v.Data) }
func (v Value) Float() float64 { return math.Float64frombits(v.Data) }
func (v Value) Bool() bool     { return v.Data != 0 }

// Handle returns the arena handle of a heap-backed value.
func (v Value) Handle() Handle { return Handle(v.Data) }

func handleValue(kind Kind, h Handle) Value {
	return Value{Kind: kind, Data: uint64(h)}
}

// EmptyList is the canonical nil list; no arena slot backs it.
var EmptyList = Value{Kind: ValList, Data: uint64(InvalidHandle)}

// IsEmptyList reports whether v is the empty list.
func (v Value) IsEmptyList() bool {
	return v.Kind == ValList && Handle(v.Data) == InvalidHandle
}

// Truthy is only defined for bool values; the compiler guarantees the
// condition slot of a jump holds one.
func (v Value) Truthy() bool {
	return v.Kind == ValBool && v.Data != 0
}

// Render formats a value for the embedder, resolving handles through the
// heap. Shared by Std.show, the CLI and the eval server.
func (h *Heap) Render(v Value) string {
	return h.render(v, 0)
}

const maxRenderDepth = 64

func (h *Heap) render(v Value, depth int) string {
	if depth > maxRenderDepth {
		return "…"
	}
	switch v.Kind {
	case ValUnit:
		return "()"
	case ValInt:
		return strconv.FormatInt(v.Int(), 10)
	case ValFloat:
		s := strconv.FormatFloat(v.Float(), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case ValBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case ValStr:
		return strconv.Quote(h.Str(v.Handle()))
	case ValClosure:
		cl := h.Closure(v.Handle())
		if cl.Proto.Name == "" {
			return "<fun>"
		}
		return "<fun " + cl.Proto.Name + ">"
	case ValHostFn, ValPartial:
		return "<fun>"
	case ValRecord:
		rec := h.Record(v.Handle())
		var sb strings.Builder
		sb.WriteString("{ ")
		for i, f := range rec.Fields {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(rec.FieldNames[i])
			sb.WriteString(" = ")
			sb.WriteString(h.render(f, depth+1))
		}
		sb.WriteString(" }")
		return sb.String()
	case ValVariant:
		vr := h.Variant(v.Handle())
		if len(vr.Fields) == 0 {
			return vr.CtorName
		}
		// The payload is a single value; a tuple payload already renders
		// with its own parentheses.
		inner := h.render(vr.Fields[0], depth+1)
		if vr.Fields[0].Kind == ValTuple {
			return vr.CtorName + " " + inner
		}
		return vr.CtorName + " (" + inner + ")"
	case ValTuple:
		tup := h.Tuple(v.Handle())
		parts := make([]string, len(tup.Elems))
		for i, e := range tup.Elems {
			parts[i] = h.render(e, depth+1)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case ValList:
		var sb strings.Builder
		sb.WriteString("[")
		first := true
		for cur := v; !cur.IsEmptyList(); {
			cell := h.Cons(cur.Handle())
			if !first {
				sb.WriteString("; ")
			}
			first = false
			sb.WriteString(h.render(cell.Head, depth+1))
			cur = cell.Tail
			if depth > maxRenderDepth {
				sb.WriteString("; …")
				break
			}
		}
		sb.WriteString("]")
		return sb.String()
	case ValResource:
		return "<resource " + h.Resource(v.Handle()).Name + ">"
	}
	return "<unknown>"
}

// valuesEqual implements structural equality. Closures and host functions
// compare by identity; resources compare by handle.
func (h *Heap) valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValUnit:
		return true
	case ValInt, ValBool, ValHostFn:
		return a.Data == b.Data
	case ValFloat:
		return a.Float() == b.Float()
	case ValStr:
		return h.Str(a.Handle()) == h.Str(b.Handle())
	case ValClosure, ValResource, ValPartial:
		return a.Data == b.Data
	case ValTuple:
		ta, tb := h.Tuple(a.Handle()), h.Tuple(b.Handle())
		if len(ta.Elems) != len(tb.Elems) {
			return false
		}
		for i := range ta.Elems {
			if !h.valuesEqual(ta.Elems[i], tb.Elems[i]) {
				return false
			}
		}
		return true
	case ValRecord:
		ra, rb := h.Record(a.Handle()), h.Record(b.Handle())
		if ra.TypeName != rb.TypeName || len(ra.Fields) != len(rb.Fields) {
			return false
		}
		for i := range ra.Fields {
			if !h.valuesEqual(ra.Fields[i], rb.Fields[i]) {
				return false
			}
		}
		return true
	case ValVariant:
		va, vb := h.Variant(a.Handle()), h.Variant(b.Handle())
		if va.TypeName != vb.TypeName || va.Tag != vb.Tag || len(va.Fields) != len(vb.Fields) {
			return false
		}
		for i := range va.Fields {
			if !h.valuesEqual(va.Fields[i], vb.Fields[i]) {
				return false
			}
		}
		return true
	case ValList:
		x, y := a, b
		for !x.IsEmptyList() && !y.IsEmptyList() {
			cx, cy := h.Cons(x.Handle()), h.Cons(y.Handle())
			if !h.valuesEqual(cx.Head, cy.Head) {
				return false
			}
			x, y = cx.Tail, cy.Tail
		}
		return x.IsEmptyList() && y.IsEmptyList()
	}
	return false
}
