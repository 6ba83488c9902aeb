package vm

import (
	"strings"
	"testing"
)

func TestDisassembleArithmetic(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`1 + 2`, reg, t)
	out := Disassemble(program)
	if !strings.Contains(out, "== <main> ==") {
		t.Errorf("missing chunk header:\n%s", out)
	}
	for _, want := range []string{"OP_CONST", "OP_ADD", "OP_HALT"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s:\n%s", want, out)
		}
	}
}

func TestDisassembleListsPrototypes(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`let add x y = x + y in add 1 2`, reg, t)
	out := Disassemble(program)
	if !strings.Contains(out, "== add ==") {
		t.Errorf("expected a prototype named add:\n%s", out)
	}
	if !strings.Contains(out, "OP_CLOSURE") {
		t.Errorf("expected closure creation in main:\n%s", out)
	}
}

func TestDisassembleCoversEveryInstruction(t *testing.T) {
	// Offsets returned by the renderer must agree with the validator's
	// instruction sizes, or the listing would drift mid-chunk.
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`
type point = { x: int; y: int }
let dist p = p.x * p.x + p.y * p.y
let rec sum xs =
  match xs with
  | [] -> 0
  | h :: t -> h + sum t
in
sum (List.map dist [{ x = 1; y = 2 }; { x = 3; y = 4 }])`, reg, t)
	out := Disassemble(program)
	if strings.Contains(out, "UNKNOWN") {
		t.Errorf("listing contains unknown opcodes:\n%s", out)
	}
	if err := Validate(program); err != nil {
		t.Fatal(err)
	}
}
