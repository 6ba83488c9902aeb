package vm

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

// Options tunes a VM instance. The zero value selects the defaults.
type Options struct {
	MaxFrames   int // call-frame limit; exceeded -> stack overflow error
	MaxStack    int // operand-stack hard cap in slots
	GCThreshold int // allocations between collections
}

const (
	DefaultMaxFrames = 4096
	DefaultMaxStack  = 1 << 20

	initialStackSize = 256
	stackGrowth      = 1024
)

func (o Options) withDefaults() Options {
	if o.MaxFrames <= 0 {
		o.MaxFrames = DefaultMaxFrames
	}
	if o.MaxStack <= 0 {
		o.MaxStack = DefaultMaxStack
	}
	if o.GCThreshold <= 0 {
		o.GCThreshold = DefaultGCThreshold
	}
	return o
}

// CallFrame is one activation record. base indexes the operand stack slot
// holding the callee; the argument sits at base+1.
type CallFrame struct {
	closure *Closure
	chunk   *Chunk
	ip      int
	base    int
}

// VM executes compiled programs against a heap, a host registry and a
// global table. A VM is single-threaded; embedders wanting parallelism run
// one VM per goroutine.
type VM struct {
	opts Options
	reg  *Registry
	heap *Heap

	program *Program

	stack []Value
	sp    int

	frames     []CallFrame
	frameCount int

	// Head of the open-upvalue list, sorted by descending stack location.
	openUpvalues Handle

	globals     []Value
	globalNames []string
	globalIdx   map[string]int
	preset      map[string]Value

	// Stdout receives Std.print output; defaults to os.Stdout.
	Stdout io.Writer
}

// undefinedGlobal marks a global slot that was never assigned; reading it
// is an unbound-global error (possible with foreign .fzb files).
var undefinedGlobal = Value{Kind: Kind(0xFF)}

func New(opts Options, reg *Registry) *VM {
	opts = opts.withDefaults()
	if reg == nil {
		reg = NewRegistry()
	}
	m := &VM{
		opts:         opts,
		reg:          reg,
		heap:         NewHeap(opts.GCThreshold),
		stack:        make([]Value, initialStackSize),
		frames:       make([]CallFrame, 0, 64),
		openUpvalues: InvalidHandle,
		Stdout:       os.Stdout,
	}
	m.heap.SetRoots(m.markRoots)
	return m
}

// Heap exposes the arena to host functions and the embed layer.
func (m *VM) Heap() *Heap { return m.heap }

// Registry returns the host-function registry this VM dispatches against.
func (m *VM) Registry() *Registry { return m.reg }

func (m *VM) markRoots(mark func(Value)) {
	for i := 0; i < m.sp; i++ {
		mark(m.stack[i])
	}
	for _, g := range m.globals {
		if g.Kind != undefinedGlobal.Kind {
			mark(g)
		}
	}
	for _, v := range m.preset {
		mark(v)
	}
	for uv := m.openUpvalues; uv != InvalidHandle; {
		m.heap.MarkHandle(uv)
		uv = m.heap.Upvalue(uv).Next
	}
}

// Run executes a program to completion and returns the value of its final
// expression. Every failure surfaces as *VmError; panics from malformed
// bytecode or host functions are recovered here, never propagated.
func (m *VM) Run(program *Program) (result Value, err error) {
	m.program = program
	m.bindGlobals(program)
	m.sp = 0
	m.frameCount = 0
	m.openUpvalues = InvalidHandle

	defer func() {
		if r := recover(); r != nil {
			result = Unit
			err = m.recoverPanic(r)
		}
	}()

	m.pushFrame(CallFrame{chunk: program.Main, base: 0})
	m.exec(0)

	if m.sp > 0 {
		return m.stack[m.sp-1], nil
	}
	return Unit, nil
}

// Preset stages host values that bindGlobals installs into matching named
// slots on the next Run. A persistent session uses it to carry the globals
// of earlier units into the next one.
func (m *VM) Preset(globals map[string]Value) {
	m.preset = globals
}

// bindGlobals sizes the global table for the program and wires registry
// entries and preset values into their named slots.
func (m *VM) bindGlobals(program *Program) {
	m.globalNames = program.GlobalNames
	m.globals = make([]Value, len(program.GlobalNames))
	m.globalIdx = make(map[string]int, len(program.GlobalNames))
	for i, name := range program.GlobalNames {
		m.globalIdx[name] = i
		if v, ok := m.preset[name]; ok {
			m.globals[i] = v
		} else if idx, ok := m.reg.Lookup(name); ok {
			m.globals[i] = HostFnValue(idx)
		} else {
			m.globals[i] = undefinedGlobal
		}
	}
}

// Global reads a top-level binding by name after a Run.
func (m *VM) Global(name string) (Value, bool) {
	idx, ok := m.globalIdx[name]
	if !ok || m.globals[idx].Kind == undefinedGlobal.Kind {
		return Unit, false
	}
	return m.globals[idx], true
}

// SetGlobal injects a host value into a named global slot before Run; the
// name must be in the program's global table to be visible.
func (m *VM) SetGlobal(name string, v Value) bool {
	idx, ok := m.globalIdx[name]
	if !ok {
		return false
	}
	m.globals[idx] = v
	return true
}

func (m *VM) recoverPanic(r interface{}) *VmError {
	line, col := 0, 0
	if m.frameCount > 0 {
		f := &m.frames[m.frameCount-1]
		at := f.ip - 1
		line, col = f.chunk.Line(at), f.chunk.Column(at)
	}
	e := &VmError{Line: line, Column: col}
	switch p := r.(type) {
	case errTypeMismatch:
		e.Kind, e.Message = ErrTypeMismatch, p.msg
	case errStackCorruption:
		e.Kind, e.Message = ErrStackCorruption, p.msg
	case errDivideByZero:
		e.Kind, e.Message = ErrDivideByZero, "integer division by zero"
	case errMatchFailure:
		e.Kind, e.Message = ErrMatchFailure, "no pattern matched the value"
	case errStackOverflow:
		e.Kind, e.Message = ErrStackOverflow, p.msg
	case errUnboundGlobal:
		e.Kind, e.Message = ErrUnboundGlobal, fmt.Sprintf("global %s is not defined", p.name)
	case errHost:
		e.Kind, e.Message = ErrHost, p.msg
	case *VmError:
		return p
	default:
		// A Go runtime error (index out of range, nil dereference)
		// escaping the dispatch loop means the bytecode itself is
		// bad, not the host code.
		if _, corrupted := r.(runtime.Error); corrupted {
			e.Kind, e.Message = ErrStackCorruption, fmt.Sprintf("%v", r)
		} else {
			e.Kind, e.Message = ErrHost, fmt.Sprintf("%v", r)
		}
	}
	return e
}

// ---- Stack ----

func (m *VM) push(v Value) {
	if m.sp >= len(m.stack) {
		if len(m.stack) >= m.opts.MaxStack {
			panic(errStackOverflow{fmt.Sprintf("operand stack exceeds %d slots", m.opts.MaxStack)})
		}
		grown := make([]Value, len(m.stack)+stackGrowth)
		copy(grown, m.stack)
		m.stack = grown
	}
	m.stack[m.sp] = v
	m.sp++
}

func (m *VM) pop() Value {
	if m.sp == 0 {
		panic(errStackCorruption{"pop on empty stack"})
	}
	m.sp--
	return m.stack[m.sp]
}

func (m *VM) peek(distance int) Value {
	idx := m.sp - 1 - distance
	if idx < 0 {
		panic(errStackCorruption{"peek below stack bottom"})
	}
	return m.stack[idx]
}

func (m *VM) pushFrame(f CallFrame) {
	if m.frameCount >= m.opts.MaxFrames {
		panic(errStackOverflow{fmt.Sprintf("call depth exceeds %d frames", m.opts.MaxFrames)})
	}
	if m.frameCount == len(m.frames) {
		m.frames = append(m.frames, f)
	} else {
		m.frames[m.frameCount] = f
	}
	m.frameCount++
}

// exec runs the dispatch loop until the frame count drops to fence. The
// fence is what makes host re-entry work: CallValue pushes a frame and
// executes with fence set to the current depth, so the loop returns
// exactly when that synthetic call completes.
func (m *VM) exec(fence int) {
	for m.frameCount > fence {
		m.step()
	}
}

func (m *VM) step() {
	f := &m.frames[m.frameCount-1]
	c := f.chunk
	if f.ip >= len(c.Code) {
		panic(errStackCorruption{"instruction pointer past end of chunk"})
	}
	op := Opcode(c.Code[f.ip])
	f.ip++

	switch op {
	case OpConst:
		idx := int(c.ReadUint16(f.ip))
		f.ip += 2
		if idx >= len(c.Constants) {
			panic(errStackCorruption{fmt.Sprintf("constant index %d out of range", idx)})
		}
		m.push(m.loadConstant(c.Constants[idx]))
	case OpUnit:
		m.push(Unit)
	case OpTrue:
		m.push(BoolValue(true))
	case OpFalse:
		m.push(BoolValue(false))
	case OpPop:
		m.pop()
	case OpDup:
		m.push(m.peek(0))

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		m.arith(op)
	case OpNeg:
		v := m.pop()
		switch v.Kind {
		case ValInt:
			m.push(IntValue(-v.Int()))
		case ValFloat:
			m.push(FloatValue(-v.Float()))
		default:
			throwTypef("cannot negate %s", v.Kind)
		}
	case OpEq:
		b := m.pop()
		a := m.pop()
		m.push(BoolValue(m.heap.valuesEqual(a, b)))
	case OpNeq:
		b := m.pop()
		a := m.pop()
		m.push(BoolValue(!m.heap.valuesEqual(a, b)))
	case OpLt, OpLe, OpGt, OpGe:
		m.compare(op)
	case OpNot:
		v := m.pop()
		if v.Kind != ValBool {
			throwTypef("not needs bool, got %s", v.Kind)
		}
		m.push(BoolValue(!v.Bool()))

	case OpConcat:
		b := m.pop()
		a := m.pop()
		if a.Kind != ValStr || b.Kind != ValStr {
			throwTypef("^ needs strings, got %s and %s", a.Kind, b.Kind)
		}
		s := m.heap.Str(a.Handle()) + m.heap.Str(b.Handle())
		m.pushAlloc(func() Value { return m.heap.AllocStr(s) })
	case OpCons:
		tail := m.peek(0)
		head := m.peek(1)
		if tail.Kind != ValList {
			throwTypef(":: needs a list tail, got %s", tail.Kind)
		}
		cell := m.heap.AllocCons(head, tail)
		m.pop()
		m.pop()
		m.push(cell)
	case OpAppend:
		m.listAppend()

	case OpGetLocal:
		slot := int(c.Code[f.ip])
		f.ip++
		m.push(m.stack[f.base+slot])
	case OpSetLocal:
		slot := int(c.Code[f.ip])
		f.ip++
		m.stack[f.base+slot] = m.pop()
	case OpGetGlobal:
		idx := int(c.ReadUint16(f.ip))
		f.ip += 2
		if idx >= len(m.globals) {
			panic(errStackCorruption{fmt.Sprintf("global index %d out of range", idx)})
		}
		g := m.globals[idx]
		if g.Kind == undefinedGlobal.Kind {
			panic(errUnboundGlobal{name: m.globalNames[idx]})
		}
		m.push(g)
	case OpSetGlobal:
		idx := int(c.ReadUint16(f.ip))
		f.ip += 2
		if idx >= len(m.globals) {
			panic(errStackCorruption{fmt.Sprintf("global index %d out of range", idx)})
		}
		m.globals[idx] = m.pop()
	case OpGetUpvalue:
		idx := int(c.Code[f.ip])
		f.ip++
		m.push(m.readUpvalue(f, idx))
	case OpSetUpvalue:
		idx := int(c.Code[f.ip])
		f.ip++
		m.writeUpvalue(f, idx, m.pop())

	case OpJump:
		offset := int(c.ReadUint16(f.ip))
		f.ip += 2 + offset
	case OpJumpIfFalse:
		offset := int(c.ReadUint16(f.ip))
		f.ip += 2
		cond := m.pop()
		if cond.Kind != ValBool {
			throwTypef("condition must be bool, got %s", cond.Kind)
		}
		if !cond.Bool() {
			f.ip += offset
		}
	case OpLoop:
		offset := int(c.ReadUint16(f.ip))
		f.ip += 2 - offset

	case OpCall:
		argc := int(c.Code[f.ip])
		f.ip++
		m.callValue(m.peek(argc), argc)
	case OpTailCall:
		argc := int(c.Code[f.ip])
		f.ip++
		m.tailCallValue(m.peek(argc), argc)
	case OpReturn:
		m.performReturn()
	case OpClosure:
		m.makeClosure(f)
	case OpCloseUpvalue:
		slot := int(c.Code[f.ip])
		f.ip++
		m.closeUpvalues(f.base + slot)

	case OpMakeList:
		n := int(c.ReadUint16(f.ip))
		f.ip += 2
		m.makeList(n)
	case OpMakeTuple:
		n := int(c.Code[f.ip])
		f.ip++
		elems := make([]Value, n)
		copy(elems, m.stack[m.sp-n:m.sp])
		tup := m.heap.AllocTuple(elems)
		m.sp -= n
		m.push(tup)
	case OpMakeRecord:
		nameIdx := int(c.ReadUint16(f.ip))
		f.ip += 2
		n := int(c.Code[f.ip])
		f.ip++
		m.makeRecord(c, nameIdx, n)
	case OpGetField:
		idx := int(c.Code[f.ip])
		f.ip++
		v := m.pop()
		if v.Kind != ValRecord {
			throwTypef("field access on %s", v.Kind)
		}
		rec := m.heap.Record(v.Handle())
		if idx >= len(rec.Fields) {
			panic(errStackCorruption{fmt.Sprintf("field index %d out of range", idx)})
		}
		m.push(rec.Fields[idx])
	case OpMakeVariant:
		nameIdx := int(c.ReadUint16(f.ip))
		f.ip += 2
		tag := int(c.Code[f.ip])
		n := int(c.Code[f.ip+1])
		f.ip += 2
		m.makeVariant(c, nameIdx, tag, n)
	case OpVariantTag:
		v := m.pop()
		if v.Kind != ValVariant {
			throwTypef("tag of %s", v.Kind)
		}
		m.push(IntValue(int64(m.heap.Variant(v.Handle()).Tag)))
	case OpVariantField:
		idx := int(c.Code[f.ip])
		f.ip++
		v := m.pop()
		if v.Kind != ValVariant {
			throwTypef("payload of %s", v.Kind)
		}
		vr := m.heap.Variant(v.Handle())
		if idx >= len(vr.Fields) {
			panic(errStackCorruption{fmt.Sprintf("variant payload index %d out of range", idx)})
		}
		m.push(vr.Fields[idx])
	case OpIsEmptyList:
		v := m.pop()
		if v.Kind != ValList {
			throwTypef("list test on %s", v.Kind)
		}
		m.push(BoolValue(v.IsEmptyList()))
	case OpListHead:
		v := m.pop()
		if v.Kind != ValList || v.IsEmptyList() {
			throwTypef("head of empty or non-list value")
		}
		m.push(m.heap.Cons(v.Handle()).Head)
	case OpListTail:
		v := m.pop()
		if v.Kind != ValList || v.IsEmptyList() {
			throwTypef("tail of empty or non-list value")
		}
		m.push(m.heap.Cons(v.Handle()).Tail)
	case OpTupleField:
		idx := int(c.Code[f.ip])
		f.ip++
		v := m.pop()
		if v.Kind != ValTuple {
			throwTypef("tuple access on %s", v.Kind)
		}
		tup := m.heap.Tuple(v.Handle())
		if idx >= len(tup.Elems) {
			panic(errStackCorruption{fmt.Sprintf("tuple index %d out of range", idx)})
		}
		m.push(tup.Elems[idx])

	case OpMatchFail:
		panic(errMatchFailure{})
	case OpHalt:
		m.frameCount--
	default:
		panic(errStackCorruption{fmt.Sprintf("unknown opcode %d", op)})
	}
}

// loadConstant materializes a pool entry; strings intern into the heap.
func (m *VM) loadConstant(k Constant) Value {
	switch k.Kind {
	case ConstInt:
		return IntValue(k.Int)
	case ConstFloat:
		return FloatValue(k.Float)
	case ConstStr:
		return m.heap.InternStr(k.Str)
	}
	panic(errStackCorruption{fmt.Sprintf("unknown constant kind %d", k.Kind)})
}

// pushAlloc runs an allocation with its inputs no longer on the stack; the
// closure must not retain unrooted values across further allocations.
func (m *VM) pushAlloc(alloc func() Value) {
	m.push(alloc())
}

func (m *VM) arith(op Opcode) {
	b := m.pop()
	a := m.pop()
	switch {
	case a.Kind == ValInt && b.Kind == ValInt:
		x, y := a.Int(), b.Int()
		switch op {
		case OpAdd:
			m.push(IntValue(x + y))
		case OpSub:
			m.push(IntValue(x - y))
		case OpMul:
			m.push(IntValue(x * y))
		case OpDiv:
			if y == 0 {
				panic(errDivideByZero{})
			}
			m.push(IntValue(x / y))
		case OpMod:
			if y == 0 {
				panic(errDivideByZero{})
			}
			m.push(IntValue(x % y))
		}
	case a.Kind == ValFloat && b.Kind == ValFloat:
		x, y := a.Float(), b.Float()
		switch op {
		case OpAdd:
			m.push(FloatValue(x + y))
		case OpSub:
			m.push(FloatValue(x - y))
		case OpMul:
			m.push(FloatValue(x * y))
		case OpDiv:
			m.push(FloatValue(x / y))
		case OpMod:
			throwTypef("%% needs int operands")
		}
	default:
		throwTypef("arithmetic on %s and %s", a.Kind, b.Kind)
	}
}

func (m *VM) compare(op Opcode) {
	b := m.pop()
	a := m.pop()
	var cmp int
	switch {
	case a.Kind == ValInt && b.Kind == ValInt:
		x, y := a.Int(), b.Int()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case a.Kind == ValFloat && b.Kind == ValFloat:
		x, y := a.Float(), b.Float()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case a.Kind == ValStr && b.Kind == ValStr:
		x, y := m.heap.Str(a.Handle()), m.heap.Str(b.Handle())
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	default:
		throwTypef("cannot order %s and %s", a.Kind, b.Kind)
	}
	switch op {
	case OpLt:
		m.push(BoolValue(cmp < 0))
	case OpLe:
		m.push(BoolValue(cmp <= 0))
	case OpGt:
		m.push(BoolValue(cmp > 0))
	case OpGe:
		m.push(BoolValue(cmp >= 0))
	}
}

// makeList builds a cons chain from the top n stack values, left to right.
// Elements stay on the stack while cells allocate, so a mid-build
// collection sees every element rooted.
func (m *VM) makeList(n int) {
	lst := EmptyList
	for i := 0; i < n; i++ {
		m.heap.Pin(lst)
		cell := m.heap.AllocCons(m.peek(i), lst)
		m.heap.Unpin(1)
		lst = cell
	}
	m.sp -= n
	m.push(lst)
}

func (m *VM) listAppend() {
	b := m.peek(0)
	a := m.peek(1)
	if a.Kind != ValList || b.Kind != ValList {
		throwTypef("@ needs lists, got %s and %s", a.Kind, b.Kind)
	}
	if a.IsEmptyList() {
		m.pop()
		m.pop()
		m.push(b)
		return
	}
	// Copy the left spine iteratively, then graft the right list on.
	var heads []Value
	for cur := a; !cur.IsEmptyList(); {
		cell := m.heap.Cons(cur.Handle())
		heads = append(heads, cell.Head)
		cur = cell.Tail
	}
	out := b
	for i := len(heads) - 1; i >= 0; i-- {
		m.heap.Pin(out)
		out = m.heap.AllocCons(heads[i], out)
		m.heap.Unpin(1)
	}
	m.pop()
	m.pop()
	m.push(out)
}

func (m *VM) makeRecord(c *Chunk, nameIdx, n int) {
	if nameIdx >= len(c.Constants) || c.Constants[nameIdx].Kind != ConstStr {
		panic(errStackCorruption{"record type-name constant out of range"})
	}
	typeName := c.Constants[nameIdx].Str
	fieldNames := m.program.Records[typeName]
	if len(fieldNames) != n {
		panic(errStackCorruption{fmt.Sprintf("record %s arity mismatch", typeName)})
	}
	fields := make([]Value, n)
	copy(fields, m.stack[m.sp-n:m.sp])
	rec := m.heap.AllocRecord(typeName, fieldNames, fields)
	m.sp -= n
	m.push(rec)
}

func (m *VM) makeVariant(c *Chunk, nameIdx, tag, n int) {
	if nameIdx >= len(c.Constants) || c.Constants[nameIdx].Kind != ConstStr {
		panic(errStackCorruption{"variant type-name constant out of range"})
	}
	typeName := c.Constants[nameIdx].Str
	ctors := m.program.Variants[typeName]
	if tag >= len(ctors) {
		panic(errStackCorruption{fmt.Sprintf("variant %s has no tag %d", typeName, tag)})
	}
	fields := make([]Value, n)
	copy(fields, m.stack[m.sp-n:m.sp])
	v := m.heap.AllocVariant(typeName, ctors[tag], tag, fields)
	m.sp -= n
	m.push(v)
}

// ---- Upvalues ----

func (m *VM) readUpvalue(f *CallFrame, idx int) Value {
	if f.closure == nil || idx >= len(f.closure.Upvalues) {
		panic(errStackCorruption{fmt.Sprintf("upvalue index %d out of range", idx)})
	}
	uv := m.heap.Upvalue(f.closure.Upvalues[idx])
	if uv.IsClosed {
		return uv.Closed
	}
	return m.stack[uv.Location]
}

func (m *VM) writeUpvalue(f *CallFrame, idx int, v Value) {
	if f.closure == nil || idx >= len(f.closure.Upvalues) {
		panic(errStackCorruption{fmt.Sprintf("upvalue index %d out of range", idx)})
	}
	uv := m.heap.Upvalue(f.closure.Upvalues[idx])
	if uv.IsClosed {
		uv.Closed = v
	} else {
		m.stack[uv.Location] = v
	}
}

// captureUpvalue finds or creates the open upvalue for a stack location.
// The open list is sorted by descending location.
func (m *VM) captureUpvalue(location int) Handle {
	prev := InvalidHandle
	cur := m.openUpvalues
	for cur != InvalidHandle && m.heap.Upvalue(cur).Location > location {
		prev = cur
		cur = m.heap.Upvalue(cur).Next
	}
	if cur != InvalidHandle && m.heap.Upvalue(cur).Location == location {
		return cur
	}
	created := m.heap.AllocUpvalue(location, cur)
	if prev == InvalidHandle {
		m.openUpvalues = created
	} else {
		m.heap.Upvalue(prev).Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above a stack location.
func (m *VM) closeUpvalues(from int) {
	for m.openUpvalues != InvalidHandle {
		uv := m.heap.Upvalue(m.openUpvalues)
		if uv.Location < from {
			return
		}
		uv.Closed = m.stack[uv.Location]
		uv.IsClosed = true
		next := uv.Next
		uv.Next = InvalidHandle
		m.openUpvalues = next
	}
}

func (m *VM) makeClosure(f *CallFrame) {
	c := f.chunk
	protoIdx := int(c.ReadUint16(f.ip))
	f.ip += 2
	if protoIdx >= len(m.program.Protos) {
		panic(errStackCorruption{fmt.Sprintf("prototype index %d out of range", protoIdx)})
	}
	proto := m.program.Protos[protoIdx]

	upvalues := make([]Handle, proto.UpvalueCount)
	for i := 0; i < proto.UpvalueCount; i++ {
		isLocal := c.Code[f.ip] == 1
		index := int(c.Code[f.ip+1])
		f.ip += 2
		if isLocal {
			upvalues[i] = m.captureUpvalue(f.base + index)
		} else {
			if f.closure == nil || index >= len(f.closure.Upvalues) {
				panic(errStackCorruption{"closure captures unavailable upvalue"})
			}
			upvalues[i] = f.closure.Upvalues[index]
		}
	}
	m.push(m.heap.AllocClosure(proto, upvalues))
}
