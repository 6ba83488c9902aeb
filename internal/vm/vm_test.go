package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fizzlang/fizz/internal/infer"
	"github.com/fizzlang/fizz/internal/lexer"
	"github.com/fizzlang/fizz/internal/parser"
)

func compileTestProgram(source string, reg *Registry, t *testing.T) *Program {
	t.Helper()
	tokens, lexErr := lexer.Tokenize(source)
	if lexErr != nil {
		t.Fatalf("Lexer error: %v", lexErr)
	}
	prog, errs := parser.Parse(tokens)
	if len(errs) > 0 {
		t.Fatalf("Parser errors: %v", errs)
	}
	info, err := infer.Check(prog, reg.Schemes())
	if err != nil {
		t.Fatalf("Type check failed: %v", err)
	}
	program, err := Compile(prog, info, reg)
	if err != nil {
		t.Fatalf("Compilation failed: %v", err)
	}
	return program
}

func runTestProgram(source string, t *testing.T) (Value, *VM) {
	t.Helper()
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(source, reg, t)
	m := New(Options{}, reg)
	result, err := m.Run(program)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return result, m
}

func expectInt(t *testing.T, v Value, want int64) {
	t.Helper()
	if v.Kind != ValInt {
		t.Fatalf("expected int, got %s", v.Kind)
	}
	if v.Int() != want {
		t.Fatalf("expected %d, got %d", want, v.Int())
	}
}

func expectStr(t *testing.T, m *VM, v Value, want string) {
	t.Helper()
	if v.Kind != ValStr {
		t.Fatalf("expected string, got %s", v.Kind)
	}
	if got := m.Heap().Str(v.Handle()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func expectRuntimeError(t *testing.T, source string, kind ErrorKind) *VmError {
	t.Helper()
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(source, reg, t)
	m := New(Options{}, reg)
	_, err := m.Run(program)
	if err == nil {
		t.Fatalf("expected %s error, got success", kind)
	}
	ve, ok := err.(*VmError)
	if !ok {
		t.Fatalf("expected *VmError, got %T: %v", err, err)
	}
	if ve.Kind != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, ve.Kind, ve)
	}
	return ve
}

func TestArithmetic(t *testing.T) {
	result, _ := runTestProgram(`1 + 2 * 3 - 4 / 2`, t)
	expectInt(t, result, 5)
}

func TestFloatArithmetic(t *testing.T) {
	result, _ := runTestProgram(`1.5 * 2.0 + 0.5`, t)
	if result.Kind != ValFloat {
		t.Fatalf("expected float, got %s", result.Kind)
	}
	if result.Float() != 3.5 {
		t.Fatalf("expected 3.5, got %v", result.Float())
	}
}

func TestCurriedApplication(t *testing.T) {
	result, _ := runTestProgram(`let add x y = x + y in add 20 22`, t)
	expectInt(t, result, 42)
}

func TestPartialApplication(t *testing.T) {
	result, _ := runTestProgram(`
let add x y = x + y in
let inc = add 1 in
inc 41`, t)
	expectInt(t, result, 42)
}

func TestClosureCapture(t *testing.T) {
	result, _ := runTestProgram(`
let make n =
  let f x = x + n in
  f
in
let add10 = make 10 in
add10 32`, t)
	expectInt(t, result, 42)
}

func TestIfElse(t *testing.T) {
	result, _ := runTestProgram(`if 3 > 2 then "yes" else "no"`, t)
	if result.Kind != ValStr {
		t.Fatalf("expected string, got %s", result.Kind)
	}
}

func TestStringConcat(t *testing.T) {
	result, m := runTestProgram(`"foo" ^ "bar"`, t)
	expectStr(t, m, result, "foobar")
}

func TestStringComparison(t *testing.T) {
	result, _ := runTestProgram(`if "abc" < "abd" then 1 else 0`, t)
	expectInt(t, result, 1)
}

func TestBooleanShortCircuit(t *testing.T) {
	// The right operand would divide by zero; && must not evaluate it.
	result, _ := runTestProgram(`
let boom x = (1 / 0) > x in
if false && boom 1 then 1 else 2`, t)
	expectInt(t, result, 2)
}

func TestRecursion(t *testing.T) {
	result, _ := runTestProgram(`
let rec fact n = if n = 0 then 1 else n * fact (n - 1) in
fact 10`, t)
	expectInt(t, result, 3628800)
}

func TestMutualRecursionViaSelf(t *testing.T) {
	result, _ := runTestProgram(`
let rec even n = if n = 0 then true else if n = 1 then false else even (n - 2) in
if even 10 then 1 else 0`, t)
	expectInt(t, result, 1)
}

func TestTailCallBounded(t *testing.T) {
	// A million self-calls in tail position must run in constant frames.
	result, _ := runTestProgram(`
let rec loop n acc = if n = 0 then acc else loop (n - 1) (acc + n) in
loop 1000000 0`, t)
	expectInt(t, result, 500000500000)
}

func TestDeepNonTailRecursionOverflows(t *testing.T) {
	// The addition after the recursive call keeps it off the tail path.
	expectRuntimeError(t, `
let rec sum n = if n = 0 then 0 else n + sum (n - 1) in
sum 1000000`, ErrStackOverflow)
}

func TestListConstruction(t *testing.T) {
	result, m := runTestProgram(`1 :: 2 :: [3; 4]`, t)
	vals, err := ListValues(m.Heap(), result)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(vals))
	}
	expectInt(t, vals[0], 1)
	expectInt(t, vals[3], 4)
}

func TestListAppend(t *testing.T) {
	result, m := runTestProgram(`[1; 2] @ [3]`, t)
	if got := m.Heap().Render(result); got != "[1; 2; 3]" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestTuple(t *testing.T) {
	result, m := runTestProgram(`(1, "two", true)`, t)
	if result.Kind != ValTuple {
		t.Fatalf("expected tuple, got %s", result.Kind)
	}
	tup := m.Heap().Tuple(result.Handle())
	if len(tup.Elems) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(tup.Elems))
	}
	expectInt(t, tup.Elems[0], 1)
}

func TestRecordFieldAccess(t *testing.T) {
	result, _ := runTestProgram(`
type point = { x: int; y: int }
let p = { x = 3; y = 4 }
p.x * p.x + p.y * p.y`, t)
	expectInt(t, result, 25)
}

func TestVariantMatch(t *testing.T) {
	result, _ := runTestProgram(`
type shape =
  | Circle of int
  | Rect of int * int

let area s =
  match s with
  | Circle r -> 3 * r * r
  | Rect (w, h) -> w * h

area (Rect (6, 7))`, t)
	expectInt(t, result, 42)
}

func TestMatchOnList(t *testing.T) {
	result, _ := runTestProgram(`
let rec sum xs =
  match xs with
  | [] -> 0
  | h :: t -> h + sum t

sum [1; 2; 3; 4; 5]`, t)
	expectInt(t, result, 15)
}

func TestMatchLiteralArms(t *testing.T) {
	result, _ := runTestProgram(`
let name n =
  match n with
  | 0 -> "zero"
  | 1 -> "one"
  | _ -> "many"

name 1`, t)
	if result.Kind != ValStr {
		t.Fatalf("expected string, got %s", result.Kind)
	}
}

func TestMatchRecordPattern(t *testing.T) {
	result, _ := runTestProgram(`
type point = { x: int; y: int }
match { x = 1; y = 2 } with
| { x = a; y = b } -> a + b`, t)
	expectInt(t, result, 3)
}

func TestMatchFailure(t *testing.T) {
	ve := expectRuntimeError(t, `
match 3 with
| 0 -> "zero"
| 1 -> "one"`, ErrMatchFailure)
	if ve.Line == 0 {
		t.Fatalf("match failure should carry a position: %v", ve)
	}
}

func TestDivideByZero(t *testing.T) {
	expectRuntimeError(t, `let d x = 10 / x in d 0`, ErrDivideByZero)
	expectRuntimeError(t, `let m x = 10 % x in m 0`, ErrDivideByZero)
}

func TestGlobalBindings(t *testing.T) {
	result, m := runTestProgram(`
let base = 40
let bump n = n + 2
bump base`, t)
	expectInt(t, result, 42)
	if v, ok := m.Global("base"); !ok || v.Int() != 40 {
		t.Fatalf("expected global base = 40, got %v %v", v, ok)
	}
}

func TestPipeOperator(t *testing.T) {
	result, _ := runTestProgram(`
let double x = x * 2 in
let inc x = x + 1 in
20 |> double |> inc |> inc`, t)
	expectInt(t, result, 42)
}

func TestUnaryNegation(t *testing.T) {
	result, _ := runTestProgram(`let n = 21 in -n * -2`, t)
	expectInt(t, result, 42)
}

func TestShadowing(t *testing.T) {
	result, _ := runTestProgram(`
let x = 1 in
let x = x + 1 in
let x = x * 21 in
x`, t)
	expectInt(t, result, 42)
}

func TestRecursiveClosureEscapes(t *testing.T) {
	result, _ := runTestProgram(`
let make () =
  let rec go n = if n = 0 then 0 else 1 + go (n - 1) in
  go
in
let count = make () in
count 42`, t)
	expectInt(t, result, 42)
}

func TestStdPrintln(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`Std.println "hello"`, reg, t)
	m := New(Options{}, reg)
	var out bytes.Buffer
	m.Stdout = &out
	if _, err := m.Run(program); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestStdShow(t *testing.T) {
	result, m := runTestProgram(`Std.show (1, [true; false])`, t)
	expectStr(t, m, result, "(1, [true; false])")
}

func TestHostFunctionCall(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	reg.Register("Host.mul", 2, func(m *VM, args []Value) (Value, error) {
		return IntValue(args[0].Int() * args[1].Int()), nil
	})
	program := compileTestProgram(`Host.mul 6 7`, reg, t)
	m := New(Options{}, reg)
	result, err := m.Run(program)
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, result, 42)
}

func TestHostPartialApplication(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	reg.Register("Host.mul", 2, func(m *VM, args []Value) (Value, error) {
		return IntValue(args[0].Int() * args[1].Int()), nil
	})
	program := compileTestProgram(`
let double = Host.mul 2 in
double 21`, reg, t)
	m := New(Options{}, reg)
	result, err := m.Run(program)
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, result, 42)
}

func TestHostErrorSurfacesAsVmError(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	reg.Register("Host.fail", 1, func(m *VM, args []Value) (Value, error) {
		return Unit, &VmError{Kind: ErrHost, Message: "boom"}
	})
	program := compileTestProgram(`Host.fail ()`, reg, t)
	m := New(Options{}, reg)
	_, err := m.Run(program)
	ve, ok := err.(*VmError)
	if !ok || ve.Kind != ErrHost {
		t.Fatalf("expected host error, got %v", err)
	}
}

func TestHostPanicIsContained(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	reg.Register("Host.explode", 1, func(m *VM, args []Value) (Value, error) {
		panic("kaboom")
	})
	program := compileTestProgram(`Host.explode ()`, reg, t)
	m := New(Options{}, reg)
	_, err := m.Run(program)
	ve, ok := err.(*VmError)
	if !ok || ve.Kind != ErrHost {
		t.Fatalf("expected host error, got %v", err)
	}
	if !strings.Contains(ve.Message, "Host.explode") {
		t.Fatalf("error should name the function: %v", ve)
	}
}

func TestCallValueReentrancy(t *testing.T) {
	// A script closure passed to List.map runs nested inside the host call.
	result, m := runTestProgram(`List.map (fun x -> x * x) [1; 2; 3; 4]`, t)
	vals, err := ListValues(m.Heap(), result)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 4 {
		t.Fatalf("expected 4 elements, got %d", len(vals))
	}
	expectInt(t, vals[3], 16)
}

func TestCallValueFromHost(t *testing.T) {
	result, m := runTestProgram(`
let rec fib n = if n < 2 then n else fib (n - 1) + fib (n - 2) in
fib`, t)
	out, err := m.CallValue(result, []Value{IntValue(20)})
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, out, 6765)
}

func TestCallValueCurriesScriptFunctions(t *testing.T) {
	result, m := runTestProgram(`let add x y = x + y in add`, t)
	out, err := m.CallValue(result, []Value{IntValue(20), IntValue(22)})
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, out, 42)
}

func TestListFold(t *testing.T) {
	result, _ := runTestProgram(`List.fold (fun acc x -> acc + x) 0 [1; 2; 3; 4; 5]`, t)
	expectInt(t, result, 15)
}

func TestListFilter(t *testing.T) {
	result, m := runTestProgram(`List.filter (fun x -> x % 2 = 0) [1; 2; 3; 4; 5; 6]`, t)
	if got := m.Heap().Render(result); got != "[2; 4; 6]" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestStringSplitJoin(t *testing.T) {
	result, m := runTestProgram(`String.join "-" (String.split "," "a,b,c")`, t)
	expectStr(t, m, result, "a-b-c")
}

func TestSetGlobalBeforeRun(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`
let threshold = 0
threshold + 2`, reg, t)
	m := New(Options{}, reg)
	if _, err := m.Run(program); err != nil {
		t.Fatal(err)
	}
	if !m.SetGlobal("threshold", IntValue(40)) {
		t.Fatal("SetGlobal rejected known name")
	}
	v, _ := m.Global("threshold")
	expectInt(t, v, 40)
}

func TestFrameLimit(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`
let rec sum n = if n = 0 then 0 else n + sum (n - 1) in
sum 100`, reg, t)
	m := New(Options{MaxFrames: 16}, reg)
	_, err := m.Run(program)
	ve, ok := err.(*VmError)
	if !ok || ve.Kind != ErrStackOverflow {
		t.Fatalf("expected stack overflow with tiny frame budget, got %v", err)
	}
}

func TestUntypedHostLeadingExpression(t *testing.T) {
	// An untyped host function carries a fully polymorphic scheme; calling
	// it as the program's first expression instantiates that scheme before
	// any other variable is allocated.
	reg := NewRegistry()
	reg.Register("Host.twice", 1, func(m *VM, args []Value) (Value, error) {
		return IntValue(args[0].Int() * 2), nil
	})
	program := compileTestProgram(`Host.twice 21`, reg, t)
	m := New(Options{}, reg)
	result, err := m.Run(program)
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, result, 42)
}

func TestRuntimePanicClassifiedAsCorruption(t *testing.T) {
	// An index panic escaping the dispatch loop means bad bytecode, not a
	// misbehaving host function.
	var r interface{}
	func() {
		defer func() { r = recover() }()
		var xs []int
		_ = xs[1]
	}()

	m := New(Options{}, NewRegistry())
	if e := m.recoverPanic(r); e.Kind != ErrStackCorruption {
		t.Errorf("index panic: got kind %v, want ErrStackCorruption", e.Kind)
	}
	if e := m.recoverPanic("some host detail"); e.Kind != ErrHost {
		t.Errorf("plain panic: got kind %v, want ErrHost", e.Kind)
	}
}

func TestCallValueUnwindsAfterError(t *testing.T) {
	result, m := runTestProgram(`
let boom x = x / 0 in
let ok x = x + 1 in
(boom, ok)`, t)
	pair := m.Heap().Tuple(result.Handle()).Elems
	frames, sp := m.frameCount, m.sp

	if _, err := m.CallValue(pair[0], []Value{IntValue(1)}); err == nil {
		t.Fatal("expected a divide-by-zero error")
	}
	if m.frameCount != frames || m.sp != sp {
		t.Fatalf("fence not restored: frames %d -> %d, sp %d -> %d", frames, m.frameCount, sp, m.sp)
	}

	// The machine stays re-entrant after the failed call.
	out, err := m.CallValue(pair[1], []Value{IntValue(41)})
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, out, 42)
}
