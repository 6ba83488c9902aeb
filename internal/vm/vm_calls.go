package vm

import "fmt"

// callValue dispatches OpCall. The callee sits argc slots below the top;
// closures get a new frame, host functions run natively in place.
func (m *VM) callValue(callee Value, argc int) {
	switch callee.Kind {
	case ValClosure:
		closure := m.heap.Closure(callee.Handle())
		if closure.Proto.Arity != argc {
			throwTypef("function %s expects %d argument(s), got %d", closure.Proto.Name, closure.Proto.Arity, argc)
		}
		m.pushFrame(CallFrame{
			closure: closure,
			chunk:   closure.Proto.Chunk,
			base:    m.sp - argc - 1,
		})
	case ValHostFn:
		m.callHost(int(callee.Data), nil, argc)
	case ValPartial:
		p := m.heap.Partial(callee.Handle())
		m.callHost(p.FnIndex, p.Args, argc)
	default:
		throwTypef("cannot call a %s value", callee.Kind)
	}
}

// callHost applies argc stack arguments to a host function that already has
// held arguments. Under-application allocates a new partial; a complete
// argument set invokes the native function.
func (m *VM) callHost(fnIndex int, held []Value, argc int) {
	entry, err := m.reg.entry(fnIndex)
	if err != nil {
		panic(errStackCorruption{err.Error()})
	}

	total := len(held) + argc
	args := make([]Value, 0, total)
	args = append(args, held...)
	args = append(args, m.stack[m.sp-argc:m.sp]...)

	if total < entry.Arity {
		// Arguments stay live through the allocation via the stack; the
		// held ones via the partial still on the stack as the callee.
		partial := m.heap.AllocPartial(fnIndex, args)
		m.sp -= argc + 1
		m.push(partial)
		return
	}
	if total > entry.Arity {
		throwTypef("%s expects %d argument(s), got %d", entry.Name, entry.Arity, total)
	}

	// Root the arguments while the host function runs: it may allocate and
	// re-enter the VM, and these values are no longer on the stack.
	m.sp -= argc + 1
	for _, a := range args {
		m.heap.Pin(a)
	}
	result, hostErr := m.invokeHost(entry, args)
	m.heap.Unpin(len(args))
	if hostErr != nil {
		if ve, ok := hostErr.(*VmError); ok {
			panic(ve)
		}
		panic(errHost{hostErr.Error()})
	}
	m.push(result)
}

// invokeHost isolates host panics: a panicking native function becomes a
// host error, never a crash of the embedding process.
func (m *VM) invokeHost(entry hostEntry, args []Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			// VM sentinels keep their classification on the way out.
			switch r.(type) {
			case errTypeMismatch, errStackCorruption, errDivideByZero,
				errMatchFailure, errStackOverflow, errUnboundGlobal, errHost:
				panic(r)
			case *VmError:
				panic(r)
			}
			result = Unit
			err = fmt.Errorf("%s panicked: %v", entry.Name, r)
		}
	}()
	return entry.Fn(m, args)
}

// tailCallValue dispatches OpTailCall: the current frame is reused instead
// of stacking a new one, so self- and mutual recursion in tail position run
// in constant frame space.
func (m *VM) tailCallValue(callee Value, argc int) {
	switch callee.Kind {
	case ValClosure:
		closure := m.heap.Closure(callee.Handle())
		if closure.Proto.Arity != argc {
			throwTypef("function %s expects %d argument(s), got %d", closure.Proto.Name, closure.Proto.Arity, argc)
		}
		f := &m.frames[m.frameCount-1]
		m.closeUpvalues(f.base)
		// Move callee and arguments down over the old frame's slots.
		copy(m.stack[f.base:], m.stack[m.sp-argc-1:m.sp])
		m.sp = f.base + argc + 1
		f.closure = closure
		f.chunk = closure.Proto.Chunk
		f.ip = 0
	case ValHostFn, ValPartial:
		// A native callee completes immediately; fold the call and the
		// return into one step.
		m.callValue(callee, argc)
		m.performReturn()
	default:
		throwTypef("cannot call a %s value", callee.Kind)
	}
}

// performReturn pops the current frame, leaving the result in the callee's
// slot.
func (m *VM) performReturn() {
	result := m.pop()
	f := &m.frames[m.frameCount-1]
	m.closeUpvalues(f.base)
	m.sp = f.base
	m.frameCount--
	m.push(result)
}

// CallValue invokes a script value from native code and runs it to
// completion before returning. This is the re-entry point host functions
// use to apply script closures (List.map calling its function argument);
// it is also the backbone of the embed API's Call. Safe to invoke from
// inside a running host function: a frame fence confines the dispatch loop
// to the synthetic call.
func (m *VM) CallValue(callee Value, args []Value) (result Value, err error) {
	entryFrames, entrySP := m.frameCount, m.sp
	defer func() {
		if r := recover(); r != nil {
			result = Unit
			err = m.recoverPanic(r)
			// Unwind whatever the aborted call stacked above the
			// fence so the VM can be re-entered cleanly.
			m.closeUpvalues(entrySP)
			m.frameCount = entryFrames
			m.sp = entrySP
		}
	}()

	result = callee
	for _, arg := range args {
		fence := m.frameCount
		m.push(result)
		m.push(arg)
		m.callValue(m.peek(1), 1)
		m.exec(fence)
		result = m.pop()
	}
	return result, nil
}
