package vm

import (
	"strings"
	"testing"
)

func TestMathBuiltins(t *testing.T) {
	result, _ := runTestProgram(`Math.abs (-5) + Math.min 3 4 + Math.max 3 4`, t)
	expectInt(t, result, 12)
}

func TestMathFloatBuiltins(t *testing.T) {
	result, _ := runTestProgram(`Math.sqrt 16.0 + Math.floor 2.9`, t)
	if result.Kind != ValFloat || result.Float() != 6.0 {
		t.Fatalf("expected 6.0, got %v", result)
	}
}

func TestStringLength(t *testing.T) {
	result, _ := runTestProgram(`String.length "héllo"`, t)
	expectInt(t, result, 5)
}

func TestStringSub(t *testing.T) {
	result, m := runTestProgram(`String.sub "scripting" 0 6`, t)
	expectStr(t, m, result, "script")
}

func TestStringSubOutOfRange(t *testing.T) {
	expectRuntimeError(t, `String.sub "ab" 1 5`, ErrHost)
}

func TestStringConcatList(t *testing.T) {
	result, m := runTestProgram(`String.concat ["a"; "b"; "c"]`, t)
	expectStr(t, m, result, "abc")
}

func TestStdUuidShape(t *testing.T) {
	result, m := runTestProgram(`Std.uuid ()`, t)
	s := m.Heap().Str(result.Handle())
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		t.Fatalf("not a uuid: %q", s)
	}
}

func TestStdPanic(t *testing.T) {
	ve := expectRuntimeError(t, `Std.panic "bad input"`, ErrHost)
	if !strings.Contains(ve.Message, "bad input") {
		t.Fatalf("panic message lost: %v", ve)
	}
}

func TestListBuiltins(t *testing.T) {
	result, m := runTestProgram(`List.rev (List.append [1; 2] [3])`, t)
	if got := m.Heap().Render(result); got != "[3; 2; 1]" {
		t.Fatalf("unexpected render: %q", got)
	}
	result, _ = runTestProgram(`List.length [1; 2; 3]`, t)
	expectInt(t, result, 3)
}

func TestListIter(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`List.iter (fun x -> Std.print x) ["a"; "b"; "c"]`, reg, t)
	m := New(Options{}, reg)
	var out strings.Builder
	m.Stdout = &out
	result, err := m.Run(program)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != ValUnit {
		t.Fatalf("List.iter should return unit, got %s", result.Kind)
	}
	if out.String() != "abc" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestYamlParse(t *testing.T) {
	result, m := runTestProgram(`Yaml.parse "name: fizz\nversion: 3"`, t)
	pairs, err := ListValues(m.Heap(), result)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	first := m.Heap().Tuple(pairs[0].Handle())
	if m.Heap().Str(first.Elems[0].Handle()) != "name" || m.Heap().Str(first.Elems[1].Handle()) != "fizz" {
		t.Errorf("unexpected first pair: %s", m.Heap().Render(pairs[0]))
	}
}

func TestYamlParseRejectsGarbage(t *testing.T) {
	expectRuntimeError(t, `Yaml.parse ": : :"`, ErrHost)
}

func TestYamlStringifyRoundTrip(t *testing.T) {
	result, m := runTestProgram(`Yaml.parse (Yaml.stringify [("host", "localhost"); ("port", "8080")])`, t)
	pairs, err := ListValues(m.Heap(), result)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	second := m.Heap().Tuple(pairs[1].Handle())
	if m.Heap().Str(second.Elems[0].Handle()) != "port" {
		t.Errorf("unexpected pair order: %s", m.Heap().Render(result))
	}
}

func TestSqlRoundTrip(t *testing.T) {
	result, m := runTestProgram(`
let db = Sql.open ":memory:" in
let _ = Sql.exec db "create table users (name text, age int)" in
let _ = Sql.exec db "insert into users values ('ada', 36), ('alan', 41)" in
let rows = Sql.query db "select name, age from users order by age" in
let _ = Sql.close db in
rows`, t)
	rows, err := ListValues(m.Heap(), result)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first, err := ListValues(m.Heap(), rows[0])
	if err != nil {
		t.Fatal(err)
	}
	if m.Heap().Str(first[0].Handle()) != "ada" || m.Heap().Str(first[1].Handle()) != "36" {
		t.Errorf("unexpected first row: %s", m.Heap().Render(rows[0]))
	}
}

func TestSqlExecReturnsAffectedRows(t *testing.T) {
	result, _ := runTestProgram(`
let db = Sql.open ":memory:" in
let _ = Sql.exec db "create table t (n int)" in
let _ = Sql.exec db "insert into t values (1), (2), (3)" in
let n = Sql.exec db "delete from t" in
let _ = Sql.close db in
n`, t)
	expectInt(t, result, 3)
}

func TestSqlUseAfterCloseFails(t *testing.T) {
	expectRuntimeError(t, `
let db = Sql.open ":memory:" in
let _ = Sql.close db in
Sql.exec db "select 1"`, ErrHost)
}

func TestSqlBadStatementFails(t *testing.T) {
	expectRuntimeError(t, `
let db = Sql.open ":memory:" in
Sql.exec db "not even sql"`, ErrHost)
}

func TestSqlConnectionFinalizedOnClose(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`
let probe () =
  let db = Sql.open ":memory:" in
  Sql.exec db "create table t (n int)"
in
probe ()`, reg, t)
	m := New(Options{}, reg)
	if _, err := m.Run(program); err != nil {
		t.Fatal(err)
	}
	// The connection went out of scope unclosed; heap teardown must still
	// release it through its finalizer without panicking.
	m.Heap().Close()
}

func TestListMapLeadingExpression(t *testing.T) {
	// The HOF is the whole program, so its scheme is the first thing the
	// checker instantiates.
	result, m := runTestProgram(`List.map (fun x -> x * 2) [1; 2; 3]`, t)
	if got := m.Heap().Render(result); got != "[2; 4; 6]" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestListFoldLeadingExpression(t *testing.T) {
	result, _ := runTestProgram(`List.fold (fun acc x -> acc + x) 0 [10; 20; 12]`, t)
	expectInt(t, result, 42)
}
