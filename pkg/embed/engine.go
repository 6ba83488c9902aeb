// Package fizz is the embedding API. An Engine owns one interpreter, one
// host-function registry and one heap; evaluations share globals, so a
// script can define a function in one Eval and a later Eval (or a Go-side
// Call) can use it.
package fizz

import (
	"fmt"
	"io"
	"strings"

	"github.com/fizzlang/fizz/internal/infer"
	"github.com/fizzlang/fizz/internal/pipeline"
	"github.com/fizzlang/fizz/internal/types"
	"github.com/fizzlang/fizz/internal/vm"
)

// HostFn is the signature of a Go function callable from scripts.
type HostFn = vm.HostFn

// Value is the interpreter's value representation, exposed for hosts that
// want to work below the marshalling layer.
type Value = vm.Value

// Engine is a persistent scripting session.
type Engine struct {
	opts    Options
	reg     *vm.Registry
	machine *vm.VM

	// Accumulated top-level state from every unit evaluated so far.
	env    map[string]*types.Scheme
	values map[string]vm.Value
}

// Options configures a new Engine.
type Options struct {
	// VM tunes the interpreter; zero fields keep their defaults.
	VM vm.Options

	// Stdout receives Std.print output. Defaults to os.Stdout.
	Stdout io.Writer

	// NoStdlib skips installing the built-in modules.
	NoStdlib bool
}

// New creates an engine with the default options.
func New() *Engine {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Engine {
	reg := vm.NewRegistry()
	if !opts.NoStdlib {
		vm.InstallStdlib(reg)
	}
	e := &Engine{opts: opts, reg: reg}
	e.start()
	return e
}

func (e *Engine) start() {
	e.machine = vm.New(e.opts.VM, e.reg)
	if e.opts.Stdout != nil {
		e.machine.Stdout = e.opts.Stdout
	}
	e.env = map[string]*types.Scheme{}
	e.values = map[string]vm.Value{}
}

// Registry exposes the host-function registry for direct (typed)
// registration.
func (e *Engine) Registry() *vm.Registry { return e.reg }

// Heap exposes the engine's heap, for hosts that build values manually.
func (e *Engine) Heap() *vm.Heap { return e.machine.Heap() }

// RegisterFn makes a Go function callable from scripts under name. The
// function receives exactly arity marshalled arguments; its type is fully
// polymorphic, so argument mistakes surface at run time. Use
// Registry().RegisterTyped for a checked signature.
func (e *Engine) RegisterFn(name string, arity int, fn func(args []interface{}) (interface{}, error)) {
	e.reg.Register(name, arity, func(m *vm.VM, args []vm.Value) (vm.Value, error) {
		goArgs := make([]interface{}, len(args))
		for i, a := range args {
			v, err := FromValue(m.Heap(), a)
			if err != nil {
				return vm.Unit, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			goArgs[i] = v
		}
		out, err := fn(goArgs)
		if err != nil {
			return vm.Unit, err
		}
		return ToValue(m.Heap(), out)
	})
}

// SetGlobal binds a Go value as a script global, visible to every
// subsequent Eval.
func (e *Engine) SetGlobal(name string, value interface{}) error {
	v, err := ToValue(e.machine.Heap(), value)
	if err != nil {
		return err
	}
	e.machine.Heap().Pin(v)
	e.values[name] = v
	e.env[name] = types.MonoScheme(schemeOf(v))
	return nil
}

// schemeOf gives the static type for a marshalled host value. Structured
// values fall back to a fresh variable, which type-checks anywhere and is
// verified dynamically.
func schemeOf(v vm.Value) types.Type {
	switch v.Kind {
	case vm.ValInt:
		return types.Int
	case vm.ValFloat:
		return types.Float
	case vm.ValBool:
		return types.Bool
	case vm.ValStr:
		return types.Str
	case vm.ValUnit:
		return types.Unit
	}
	return &types.TVar{ID: -1}
}

// Compile builds a source unit against the current session state without
// running it.
func (e *Engine) Compile(source string) (*vm.Program, error) {
	ctx := pipeline.Build(source, e.reg)
	if ctx.Failed() {
		return nil, buildError(ctx)
	}
	return ctx.Program, nil
}

// CompileToBytecode compiles a source unit and serializes it in the
// bytecode bundle format.
func (e *Engine) CompileToBytecode(source string) ([]byte, error) {
	program, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	return vm.MarshalProgram(program)
}

// Eval runs a source unit and returns the marshalled value of its final
// expression. Top-level bindings persist into later Evals.
func (e *Engine) Eval(source string) (interface{}, error) {
	v, err := e.evalValue(source)
	if err != nil {
		return nil, err
	}
	return FromValue(e.machine.Heap(), v)
}

// EvalValue is Eval without the marshalling step.
func (e *Engine) EvalValue(source string) (Value, error) {
	return e.evalValue(source)
}

func (e *Engine) evalValue(source string) (vm.Value, error) {
	ctx := pipeline.NewPipelineContext(source, e.reg)
	p := pipeline.New(&pipeline.LexerProcessor{}, &pipeline.ParserProcessor{})
	ctx = p.Run(ctx)
	if ctx.Failed() {
		return vm.Unit, buildError(ctx)
	}

	// The session environment extends the registry schemes, so names
	// defined by earlier units type-check in this one.
	schemes := e.reg.Schemes()
	for name, scheme := range e.env {
		schemes[name] = scheme
	}
	info, err := infer.Check(ctx.AstRoot, schemes)
	if err != nil {
		return vm.Unit, err
	}
	program, err := vm.Compile(ctx.AstRoot, info, e.reg)
	if err != nil {
		return vm.Unit, err
	}
	return e.runProgram(program, info)
}

// RunProgram executes a compiled or loaded program in this session.
func (e *Engine) RunProgram(program *vm.Program) (Value, error) {
	return e.runProgram(program, nil)
}

// RunBytecode loads a bundle, validates it and executes it.
func (e *Engine) RunBytecode(data []byte) (Value, error) {
	program, err := vm.UnmarshalProgram(data)
	if err != nil {
		return vm.Unit, err
	}
	return e.runProgram(program, nil)
}

func (e *Engine) runProgram(program *vm.Program, info *infer.Info) (vm.Value, error) {
	e.machine.Preset(e.values)
	result, err := e.machine.Run(program)
	if err != nil {
		return vm.Unit, err
	}
	e.machine.Heap().Pin(result)

	// Fold this unit's bindings into the session.
	for _, name := range program.GlobalNames {
		v, ok := e.machine.Global(name)
		if !ok {
			continue
		}
		if _, had := e.values[name]; !had {
			e.machine.Heap().Pin(v)
		}
		e.values[name] = v
	}
	if info != nil {
		for name, scheme := range info.Globals {
			e.env[name] = scheme
		}
	}
	return result, nil
}

// Call invokes a script-defined (or registered) function by name with
// marshalled Go arguments.
func (e *Engine) Call(name string, args ...interface{}) (interface{}, error) {
	callee, ok := e.values[name]
	if !ok {
		if idx, found := e.reg.Lookup(name); found {
			callee = vm.HostFnValue(idx)
		} else {
			return nil, fmt.Errorf("function %q is not defined", name)
		}
	}
	h := e.machine.Heap()
	vmArgs := make([]vm.Value, len(args))
	pinned := 0
	for i, a := range args {
		v, err := ToValue(h, a)
		if err != nil {
			h.Unpin(pinned)
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		h.Pin(v)
		pinned++
		vmArgs[i] = v
	}
	result, err := e.machine.CallValue(callee, vmArgs)
	h.Unpin(pinned)
	if err != nil {
		return nil, err
	}
	return FromValue(h, result)
}

// Render pretty-prints a script value.
func (e *Engine) Render(v Value) string {
	return e.machine.Heap().Render(v)
}

// Reset discards every script-defined global and the whole heap, running
// outstanding resource finalizers. Registered host functions survive.
func (e *Engine) Reset() {
	e.machine.Heap().Close()
	e.start()
}

// Close releases the engine's heap and finalizes open resources.
func (e *Engine) Close() {
	e.machine.Heap().Close()
}

func buildError(ctx *pipeline.PipelineContext) error {
	msgs := make([]string, len(ctx.Errors))
	for i, err := range ctx.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "\n"))
}
