package fizz

import (
	"strings"
	"testing"

	"github.com/fizzlang/fizz/internal/vm"
)

func TestEvalSimpleExpression(t *testing.T) {
	e := New()
	defer e.Close()
	result, err := e.Eval(`let add x y = x + y in add 20 22`)
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(42) {
		t.Fatalf("expected 42, got %v (%T)", result, result)
	}
}

func TestGlobalsPersistAcrossEvals(t *testing.T) {
	e := New()
	defer e.Close()
	if _, err := e.Eval(`let double x = x * 2`); err != nil {
		t.Fatal(err)
	}
	result, err := e.Eval(`double 21`)
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(42) {
		t.Fatalf("expected 42, got %v", result)
	}
}

func TestCallScriptFunction(t *testing.T) {
	e := New()
	defer e.Close()
	if _, err := e.Eval(`let rec fact n = if n = 0 then 1 else n * fact (n - 1)`); err != nil {
		t.Fatal(err)
	}
	result, err := e.Call("fact", 10)
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(3628800) {
		t.Fatalf("expected 10!, got %v", result)
	}
}

func TestCallUnknownFunction(t *testing.T) {
	e := New()
	defer e.Close()
	if _, err := e.Call("missing"); err == nil {
		t.Fatal("expected an error for an undefined function")
	}
}

func TestRegisterFn(t *testing.T) {
	e := New()
	defer e.Close()
	e.RegisterFn("Host.greet", 1, func(args []interface{}) (interface{}, error) {
		return "hello " + args[0].(string), nil
	})
	result, err := e.Eval(`Host.greet "fizz"`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "hello fizz" {
		t.Fatalf("got %v", result)
	}
}

func TestSetGlobal(t *testing.T) {
	e := New()
	defer e.Close()
	if err := e.SetGlobal("limit", 40); err != nil {
		t.Fatal(err)
	}
	result, err := e.Eval(`limit + 2`)
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(42) {
		t.Fatalf("got %v", result)
	}
}

func TestMarshalledStructures(t *testing.T) {
	e := New()
	defer e.Close()
	result, err := e.Eval(`
type point = { x: int; y: int }
({ x = 1; y = 2 }, [true; false])`)
	if err != nil {
		t.Fatal(err)
	}
	tup, ok := result.([]interface{})
	if !ok || len(tup) != 2 {
		t.Fatalf("expected a 2-tuple, got %v (%T)", result, result)
	}
	rec, ok := tup[0].(map[string]interface{})
	if !ok || rec["x"] != int64(1) {
		t.Fatalf("unexpected record %v", tup[0])
	}
	list, ok := tup[1].([]interface{})
	if !ok || len(list) != 2 || list[0] != true {
		t.Fatalf("unexpected list %v", tup[1])
	}
}

func TestVariantMarshalling(t *testing.T) {
	e := New()
	defer e.Close()
	result, err := e.Eval(`
type opt = | Present of int | Absent
Present 42`)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := result.(map[string]interface{})
	if !ok || m["$ctor"] != "Present" || m["$value"] != int64(42) {
		t.Fatalf("unexpected variant %v", result)
	}
}

func TestCompileToBytecodeAndRun(t *testing.T) {
	e := New()
	defer e.Close()
	data, err := e.CompileToBytecode(`let add x y = x + y in add 20 22`)
	if err != nil {
		t.Fatal(err)
	}
	result, err := e.RunBytecode(data)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != vm.ValInt || result.Int() != 42 {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestEvalReportsTypeErrors(t *testing.T) {
	e := New()
	defer e.Close()
	_, err := e.Eval(`1 + "two"`)
	if err == nil {
		t.Fatal("expected a type error")
	}
}

func TestResetDropsGlobals(t *testing.T) {
	e := New()
	defer e.Close()
	if _, err := e.Eval(`let answer = 42`); err != nil {
		t.Fatal(err)
	}
	e.Reset()
	if _, err := e.Eval(`answer`); err == nil {
		t.Fatal("expected answer to be gone after Reset")
	}
	// The engine still works after a reset.
	result, err := e.Eval(`2 + 2`)
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(4) {
		t.Fatalf("got %v", result)
	}
}

func TestStdoutRedirect(t *testing.T) {
	var out strings.Builder
	e := NewWithOptions(Options{Stdout: &out})
	defer e.Close()
	if _, err := e.Eval(`Std.println "captured"`); err != nil {
		t.Fatal(err)
	}
	if out.String() != "captured\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestReentrantHostCall(t *testing.T) {
	// Script calls a host function that calls back into a script closure.
	e := New()
	defer e.Close()
	result, err := e.Eval(`List.map (fun x -> x * 10) [1; 2; 3]`)
	if err != nil {
		t.Fatal(err)
	}
	list, ok := result.([]interface{})
	if !ok || len(list) != 3 || list[2] != int64(30) {
		t.Fatalf("got %v", result)
	}
}

func TestGlobalsSurviveCollection(t *testing.T) {
	e := New()
	defer e.Close()
	if _, err := e.Eval(`let banner = "still here"`); err != nil {
		t.Fatal(err)
	}
	// Churn the heap enough to force several collections.
	if _, err := e.Eval(`
let rec build n = if n = 0 then [] else n :: build (n - 1) in
List.length (build 5000)`); err != nil {
		t.Fatal(err)
	}
	e.Heap().Collect()
	result, err := e.Eval(`banner`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "still here" {
		t.Fatalf("got %v", result)
	}
}
