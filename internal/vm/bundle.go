package vm

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Bytecode bundle format: three magic bytes, one version byte, then a
// gob-encoded Program. Loading fully validates the instruction streams
// because bundles arrive from outside the process and get no compiler
// guarantees.

var bundleMagic = [3]byte{'F', 'Z', 'B'}

const bundleVersion = 0x01

// MarshalProgram serializes a compiled program into the bundle format.
func MarshalProgram(p *Program) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(bundleMagic[:])
	buf.WriteByte(bundleVersion)
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("encoding bytecode: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalProgram parses and validates a bundle.
func UnmarshalProgram(data []byte) (*Program, error) {
	if len(data) < 4 || data[0] != bundleMagic[0] || data[1] != bundleMagic[1] || data[2] != bundleMagic[2] {
		return nil, fmt.Errorf("not a bytecode bundle: bad magic")
	}
	if data[3] != bundleVersion {
		return nil, fmt.Errorf("unsupported bytecode version %d (want %d)", data[3], bundleVersion)
	}
	var p Program
	if err := gob.NewDecoder(bytes.NewReader(data[4:])).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	if err := Validate(&p); err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}
	return &p, nil
}

// Validate checks every chunk of a program: operands stay within their
// tables, jumps land on instruction boundaries inside the same chunk, and
// no instruction is truncated. Run assumes a validated program.
func Validate(p *Program) error {
	if p.Main == nil {
		return fmt.Errorf("program has no main chunk")
	}
	if err := validateChunk(p, p.Main, "main"); err != nil {
		return err
	}
	for i, proto := range p.Protos {
		if proto == nil || proto.Chunk == nil {
			return fmt.Errorf("prototype %d is empty", i)
		}
		if err := validateChunk(p, proto.Chunk, proto.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateChunk(p *Program, c *Chunk, name string) error {
	boundaries := map[int]bool{}
	type pendingJump struct {
		from   int
		target int
	}
	var jumps []pendingJump

	offset := 0
	for offset < len(c.Code) {
		boundaries[offset] = true
		op := Opcode(c.Code[offset])
		size, err := instructionSize(p, c, offset)
		if err != nil {
			return fmt.Errorf("chunk %s at %d: %w", name, offset, err)
		}
		if offset+size > len(c.Code) {
			return fmt.Errorf("chunk %s at %d: truncated %s", name, offset, OpcodeNames[op])
		}

		switch op {
		case OpConst:
			if idx := int(c.ReadUint16(offset + 1)); idx >= len(c.Constants) {
				return fmt.Errorf("chunk %s at %d: constant %d out of range", name, offset, idx)
			}
		case OpGetGlobal, OpSetGlobal:
			if idx := int(c.ReadUint16(offset + 1)); idx >= len(p.GlobalNames) {
				return fmt.Errorf("chunk %s at %d: global %d out of range", name, offset, idx)
			}
		case OpJump, OpJumpIfFalse:
			jumps = append(jumps, pendingJump{from: offset, target: offset + 3 + int(c.ReadUint16(offset+1))})
		case OpLoop:
			jumps = append(jumps, pendingJump{from: offset, target: offset + 3 - int(c.ReadUint16(offset+1))})
		case OpClosure:
			idx := int(c.ReadUint16(offset + 1))
			if idx >= len(p.Protos) {
				return fmt.Errorf("chunk %s at %d: prototype %d out of range", name, offset, idx)
			}
		case OpMakeRecord, OpMakeVariant:
			idx := int(c.ReadUint16(offset + 1))
			if idx >= len(c.Constants) || c.Constants[idx].Kind != ConstStr {
				return fmt.Errorf("chunk %s at %d: type-name constant %d invalid", name, offset, idx)
			}
			typeName := c.Constants[idx].Str
			if op == OpMakeRecord {
				if _, ok := p.Records[typeName]; !ok {
					return fmt.Errorf("chunk %s at %d: unknown record type %s", name, offset, typeName)
				}
			} else {
				ctors, ok := p.Variants[typeName]
				if !ok {
					return fmt.Errorf("chunk %s at %d: unknown variant type %s", name, offset, typeName)
				}
				if tag := int(c.Code[offset+3]); tag >= len(ctors) {
					return fmt.Errorf("chunk %s at %d: variant %s has no tag %d", name, offset, typeName, tag)
				}
			}
		}
		offset += size
	}
	boundaries[len(c.Code)] = true

	for _, j := range jumps {
		if j.target < 0 || j.target > len(c.Code) || !boundaries[j.target] {
			return fmt.Errorf("chunk %s at %d: jump target %d is not an instruction boundary", name, j.from, j.target)
		}
	}
	return nil
}

// instructionSize returns the full encoded size of the instruction at
// offset, including the opcode byte.
func instructionSize(p *Program, c *Chunk, offset int) (int, error) {
	op := Opcode(c.Code[offset])
	switch op {
	case OpUnit, OpTrue, OpFalse, OpPop, OpDup,
		OpAdd, OpSub, OpMul, OpDiv, OpMod, OpNeg,
		OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe, OpNot,
		OpConcat, OpCons, OpAppend, OpReturn,
		OpVariantTag, OpIsEmptyList, OpListHead, OpListTail,
		OpMatchFail, OpHalt:
		return 1, nil
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue,
		OpCall, OpTailCall, OpCloseUpvalue,
		OpMakeTuple, OpGetField, OpVariantField, OpTupleField:
		return 2, nil
	case OpConst, OpGetGlobal, OpSetGlobal,
		OpJump, OpJumpIfFalse, OpLoop, OpMakeList:
		return 3, nil
	case OpMakeRecord:
		return 4, nil
	case OpMakeVariant:
		return 5, nil
	case OpClosure:
		if offset+3 > len(c.Code) {
			return 0, fmt.Errorf("truncated OP_CLOSURE")
		}
		idx := int(c.ReadUint16(offset + 1))
		if idx >= len(p.Protos) {
			return 0, fmt.Errorf("prototype %d out of range", idx)
		}
		return 3 + 2*p.Protos[idx].UpvalueCount, nil
	}
	return 0, fmt.Errorf("unknown opcode %d", c.Code[offset])
}
