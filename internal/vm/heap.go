package vm

import "fmt"

// Handle is an index into the heap arena. Values reference heap objects by
// handle only; no raw pointers cross the Value boundary.
type Handle uint32

// InvalidHandle marks the absence of an object (the empty list tail).
const InvalidHandle Handle = ^Handle(0)

type objKind byte

const (
	objFree objKind = iota
	objStr
	objClosure
	objRecord
	objVariant
	objCons
	objTuple
	objResource
	objPartial
	objUpvalue
)

type slot struct {
	kind   objKind
	marked bool
	data   interface{} // string for objStr, *Closure for objClosure, …
}

// Closure pairs a function prototype with its captured upvalues.
type Closure struct {
	Proto    *FuncProto
	Upvalues []Handle
}

// Upvalue is a captured variable. While the variable is still on the stack
// the upvalue is open and Location indexes the operand stack; closing moves
// the value into Closed. Open upvalues form a list sorted by descending
// Location so closing a stack region is a prefix walk.
type Upvalue struct {
	Location int
	Closed   Value
	IsClosed bool
	Next     Handle
}

// Record is a nominal record instance with fields in declared order.
type Record struct {
	TypeName   string
	FieldNames []string
	Fields     []Value
}

// Variant is a constructed discriminated-union case.
type Variant struct {
	TypeName string
	CtorName string
	Tag      int
	Fields   []Value
}

// Cons is one cell of an immutable singly-linked list.
type Cons struct {
	Head Value
	Tail Value
}

type Tuple struct {
	Elems []Value
}

// Resource wraps a host-owned handle (a database connection, a file). The
// finalizer runs when the collector sweeps an unreachable resource, and at
// most once.
type Resource struct {
	Name      string
	Data      interface{}
	Finalizer func() error
	finalized bool
}

// Finalize runs the finalizer now if it has not run yet. Later sweeps skip
// the resource.
func (r *Resource) Finalize() error {
	if r.finalized || r.Finalizer == nil {
		r.finalized = true
		return nil
	}
	r.finalized = true
	return r.Finalizer()
}

// Finalized reports whether the finalizer has already run.
func (r *Resource) Finalized() bool { return r.finalized }

// Partial is a host function with some of its arguments already applied;
// script-side currying accumulates arguments here until the registered
// arity is reached.
type Partial struct {
	FnIndex int
	Args    []Value
}

// Heap is the GC arena. All script heap objects live in slots; a free list
// recycles swept indices. Collection is mark-and-sweep, triggered by an
// allocation-count threshold, and is the only reclamation mechanism, so
// cyclic structures are reclaimed like any other garbage.
type Heap struct {
	slots []slot
	free  []Handle

	allocs    int
	threshold int
	baseline  int // threshold floor

	pins     []Value
	interned map[string]Handle

	// roots is installed by the VM; it must invoke mark for every root
	// value. Without a VM attached (heap unit tests) only pins and interned
	// strings are roots.
	roots func(mark func(Value))

	// Collections counts completed mark-sweep passes, for tests and stats.
	Collections int
}

// DefaultGCThreshold is the allocation count that triggers a collection.
const DefaultGCThreshold = 1024

func NewHeap(threshold int) *Heap {
	if threshold <= 0 {
		threshold = DefaultGCThreshold
	}
	return &Heap{
		threshold: threshold,
		baseline:  threshold,
		interned:  map[string]Handle{},
	}
}

// SetRoots installs the owning VM's root walker.
func (h *Heap) SetRoots(roots func(mark func(Value))) { h.roots = roots }

// Live returns the number of occupied arena slots.
func (h *Heap) Live() int {
	return len(h.slots) - len(h.free)
}

// Pin protects a value from collection while a host function holds it
// across allocations. Unpin pops in LIFO order.
func (h *Heap) Pin(v Value) { h.pins = append(h.pins, v) }

func (h *Heap) Unpin(n int) {
	h.pins = h.pins[:len(h.pins)-n]
}

func (h *Heap) alloc(kind objKind, data interface{}) Handle {
	h.allocs++
	if h.allocs >= h.threshold {
		h.Collect()
	}
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[idx] = slot{kind: kind, data: data}
		return idx
	}
	h.slots = append(h.slots, slot{kind: kind, data: data})
	return Handle(len(h.slots) - 1)
}

func (h *Heap) AllocStr(s string) Value {
	return handleValue(ValStr, h.alloc(objStr, s))
}

// InternStr returns a shared, permanently rooted string object. The VM uses
// it for constant-pool strings, which live as long as the heap.
func (h *Heap) InternStr(s string) Value {
	if hd, ok := h.interned[s]; ok {
		return handleValue(ValStr, hd)
	}
	hd := h.alloc(objStr, s)
	h.interned[s] = hd
	return handleValue(ValStr, hd)
}

func (h *Heap) AllocClosure(proto *FuncProto, upvalues []Handle) Value {
	return handleValue(ValClosure, h.alloc(objClosure, &Closure{Proto: proto, Upvalues: upvalues}))
}

func (h *Heap) AllocUpvalue(location int, next Handle) Handle {
	return h.alloc(objUpvalue, &Upvalue{Location: location, Next: next})
}

func (h *Heap) AllocRecord(typeName string, fieldNames []string, fields []Value) Value {
	return handleValue(ValRecord, h.alloc(objRecord, &Record{
		TypeName: typeName, FieldNames: fieldNames, Fields: fields,
	}))
}

func (h *Heap) AllocVariant(typeName, ctorName string, tag int, fields []Value) Value {
	return handleValue(ValVariant, h.alloc(objVariant, &Variant{
		TypeName: typeName, CtorName: ctorName, Tag: tag, Fields: fields,
	}))
}

func (h *Heap) AllocCons(head, tail Value) Value {
	return handleValue(ValList, h.alloc(objCons, &Cons{Head: head, Tail: tail}))
}

func (h *Heap) AllocTuple(elems []Value) Value {
	return handleValue(ValTuple, h.alloc(objTuple, &Tuple{Elems: elems}))
}

func (h *Heap) AllocResource(name string, data interface{}, finalizer func() error) Value {
	return handleValue(ValResource, h.alloc(objResource, &Resource{
		Name: name, Data: data, Finalizer: finalizer,
	}))
}

func (h *Heap) AllocPartial(fnIndex int, args []Value) Value {
	return handleValue(ValPartial, h.alloc(objPartial, &Partial{FnIndex: fnIndex, Args: args}))
}

func (h *Heap) get(hd Handle, kind objKind) interface{} {
	if int(hd) >= len(h.slots) || h.slots[hd].kind != kind {
		panic(errStackCorruption{fmt.Sprintf("bad %d handle %d", kind, hd)})
	}
	return h.slots[hd].data
}

func (h *Heap) Str(hd Handle) string         { return h.get(hd, objStr).(string) }
func (h *Heap) Closure(hd Handle) *Closure   { return h.get(hd, objClosure).(*Closure) }
func (h *Heap) Upvalue(hd Handle) *Upvalue   { return h.get(hd, objUpvalue).(*Upvalue) }
func (h *Heap) Record(hd Handle) *Record     { return h.get(hd, objRecord).(*Record) }
func (h *Heap) Variant(hd Handle) *Variant   { return h.get(hd, objVariant).(*Variant) }
func (h *Heap) Cons(hd Handle) *Cons         { return h.get(hd, objCons).(*Cons) }
func (h *Heap) Tuple(hd Handle) *Tuple       { return h.get(hd, objTuple).(*Tuple) }
func (h *Heap) Resource(hd Handle) *Resource { return h.get(hd, objResource).(*Resource) }
func (h *Heap) Partial(hd Handle) *Partial   { return h.get(hd, objPartial).(*Partial) }

// Collect runs a full mark-and-sweep pass.
func (h *Heap) Collect() {
	// Mark.
	if h.roots != nil {
		h.roots(h.Mark)
	}
	for _, v := range h.pins {
		h.Mark(v)
	}
	for _, hd := range h.interned {
		h.markHandle(hd)
	}

	// Sweep.
	for i := range h.slots {
		s := &h.slots[i]
		if s.kind == objFree {
			continue
		}
		if s.marked {
			s.marked = false
			continue
		}
		if s.kind == objResource {
			res := s.data.(*Resource)
			if res.Finalizer != nil && !res.finalized {
				res.finalized = true
				_ = res.Finalizer()
			}
		}
		s.kind = objFree
		s.data = nil
		h.free = append(h.free, Handle(i))
	}

	h.allocs = 0
	h.threshold = h.baseline
	if live := h.Live(); live*2 > h.threshold {
		h.threshold = live * 2
	}
	h.Collections++
}

// Mark marks a root value and everything reachable from it.
func (h *Heap) Mark(v Value) {
	switch v.Kind {
	case ValStr, ValClosure, ValRecord, ValVariant, ValTuple, ValResource, ValPartial:
		h.markHandle(v.Handle())
	case ValList:
		if !v.IsEmptyList() {
			h.markHandle(v.Handle())
		}
	}
}

// MarkHandle marks an object referenced by bare handle (open upvalues).
func (h *Heap) MarkHandle(hd Handle) { h.markHandle(hd) }

func (h *Heap) markHandle(hd Handle) {
	if hd == InvalidHandle || int(hd) >= len(h.slots) {
		return
	}
	s := &h.slots[hd]
	if s.marked || s.kind == objFree {
		return
	}
	s.marked = true

	switch s.kind {
	case objClosure:
		for _, uv := range s.data.(*Closure).Upvalues {
			h.markHandle(uv)
		}
	case objUpvalue:
		uv := s.data.(*Upvalue)
		if uv.IsClosed {
			h.Mark(uv.Closed)
		}
	case objRecord:
		for _, f := range s.data.(*Record).Fields {
			h.Mark(f)
		}
	case objVariant:
		for _, f := range s.data.(*Variant).Fields {
			h.Mark(f)
		}
	case objTuple:
		for _, e := range s.data.(*Tuple).Elems {
			h.Mark(e)
		}
	case objCons:
		// Iterative down the spine so million-element lists do not recurse.
		cell := s.data.(*Cons)
		for {
			h.Mark(cell.Head)
			tail := cell.Tail
			if tail.IsEmptyList() || tail.Kind != ValList {
				return
			}
			next := &h.slots[tail.Handle()]
			if next.marked || next.kind != objCons {
				return
			}
			next.marked = true
			cell = next.data.(*Cons)
		}
	}
}

// Close finalizes every live resource and drops the whole arena. Used by
// Engine.Reset and at VM teardown.
func (h *Heap) Close() {
	for i := range h.slots {
		s := &h.slots[i]
		if s.kind == objResource {
			res := s.data.(*Resource)
			if res.Finalizer != nil && !res.finalized {
				res.finalized = true
				_ = res.Finalizer()
			}
		}
	}
	h.slots = nil
	h.free = nil
	h.pins = nil
	h.allocs = 0
	h.threshold = h.baseline
	h.interned = map[string]Handle{}
}
