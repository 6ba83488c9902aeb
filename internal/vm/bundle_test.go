package vm

import (
	"bytes"
	"testing"
)

func marshalTestProgram(source string, t *testing.T) (*Program, []byte) {
	t.Helper()
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(source, reg, t)
	data, err := MarshalProgram(program)
	if err != nil {
		t.Fatalf("MarshalProgram failed: %v", err)
	}
	return program, data
}

func TestBundleRoundTrip(t *testing.T) {
	source := `
type shape =
  | Circle of int
  | Rect of int * int

let area s =
  match s with
  | Circle r -> 3 * r * r
  | Rect (w, h) -> w * h

area (Rect (6, 7))`
	original, data := marshalTestProgram(source, t)

	loaded, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram failed: %v", err)
	}
	if !bytes.Equal(original.Main.Code, loaded.Main.Code) {
		t.Error("main chunk code changed across round trip")
	}
	if len(loaded.Protos) != len(original.Protos) {
		t.Fatalf("proto count changed: %d != %d", len(loaded.Protos), len(original.Protos))
	}

	reg := NewRegistry()
	InstallStdlib(reg)
	m := New(Options{}, reg)
	result, err := m.Run(loaded)
	if err != nil {
		t.Fatal(err)
	}
	expectInt(t, result, 42)
}

func TestBundleHeader(t *testing.T) {
	_, data := marshalTestProgram(`1 + 1`, t)
	if data[0] != 'F' || data[1] != 'Z' || data[2] != 'B' {
		t.Errorf("bad magic: % x", data[:3])
	}
	if data[3] != bundleVersion {
		t.Errorf("bad version byte: %d", data[3])
	}
}

func TestBundleRejectsBadMagic(t *testing.T) {
	_, data := marshalTestProgram(`1 + 1`, t)
	data[0] = 'X'
	if _, err := UnmarshalProgram(data); err == nil {
		t.Fatal("expected magic rejection")
	}
}

func TestBundleRejectsBadVersion(t *testing.T) {
	_, data := marshalTestProgram(`1 + 1`, t)
	data[3] = 0x7f
	if _, err := UnmarshalProgram(data); err == nil {
		t.Fatal("expected version rejection")
	}
}

func TestBundleRejectsTruncation(t *testing.T) {
	_, data := marshalTestProgram(`let add x y = x + y in add 1 2`, t)
	for _, n := range []int{0, 2, 4, len(data) / 2} {
		if _, err := UnmarshalProgram(data[:n]); err == nil {
			t.Errorf("expected error for %d-byte prefix", n)
		}
	}
}

func TestValidateRejectsOutOfRangeConstant(t *testing.T) {
	program, _ := marshalTestProgram(`"x" ^ "y"`, t)
	// Point the first OP_CONST at a constant that does not exist.
	program.Main.Code[1] = 0xff
	program.Main.Code[2] = 0xff
	if err := Validate(program); err == nil {
		t.Fatal("expected constant index rejection")
	}
}

func TestValidateRejectsJumpIntoOperand(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`if true then 1 else 2`, reg, t)
	// Find the conditional jump and skew its target by one byte so it
	// lands inside an instruction.
	code := program.Main.Code
	for i := 0; i < len(code); {
		size, err := instructionSize(program, program.Main, i)
		if err != nil {
			t.Fatal(err)
		}
		if Opcode(code[i]) == OpJumpIfFalse {
			off := int(code[i+1])<<8 | int(code[i+2])
			off++
			code[i+1], code[i+2] = byte(off>>8), byte(off)
			break
		}
		i += size
	}
	if err := Validate(program); err == nil {
		t.Fatal("expected misaligned jump rejection")
	}
}

func TestValidateRejectsTruncatedInstruction(t *testing.T) {
	program, _ := marshalTestProgram(`1 + 1`, t)
	// Chop the chunk in the middle of the final instruction's operand.
	program.Main.Code = append(program.Main.Code, byte(OpConst))
	if err := Validate(program); err == nil {
		t.Fatal("expected truncated instruction rejection")
	}
}

func TestValidateRejectsBadVariantTag(t *testing.T) {
	reg := NewRegistry()
	InstallStdlib(reg)
	program := compileTestProgram(`
type opt = | Present of int | Absent
Present 1`, reg, t)
	code := program.Main.Code
	for i := 0; i < len(code); {
		size, err := instructionSize(program, program.Main, i)
		if err != nil {
			t.Fatal(err)
		}
		if Opcode(code[i]) == OpMakeVariant {
			code[i+3] = 9 // tag beyond the declared constructors
			break
		}
		i += size
	}
	if err := Validate(program); err == nil {
		t.Fatal("expected variant tag rejection")
	}
}

func TestValidateAcceptsCompilerOutput(t *testing.T) {
	sources := []string{
		`1 + 1`,
		`let add x y = x + y in add 20 22`,
		`let rec loop n = if n = 0 then 0 else loop (n - 1) in loop 10`,
		`List.map (fun x -> x + 1) [1; 2; 3]`,
		`match [1; 2] with | [] -> 0 | h :: _ -> h`,
	}
	for _, src := range sources {
		reg := NewRegistry()
		InstallStdlib(reg)
		program := compileTestProgram(src, reg, t)
		if err := Validate(program); err != nil {
			t.Errorf("Validate(%q) = %v", src, err)
		}
	}
}
