package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders a whole program: the main chunk first, then every
// function prototype.
func Disassemble(p *Program) string {
	var sb strings.Builder
	disassembleChunk(&sb, p, p.Main, "<main>")
	for i, proto := range p.Protos {
		name := proto.Name
		if name == "" {
			name = fmt.Sprintf("<fn %d>", i)
		}
		fmt.Fprintf(&sb, "\n")
		disassembleChunk(&sb, p, proto.Chunk, name)
	}
	return sb.String()
}

func disassembleChunk(sb *strings.Builder, p *Program, c *Chunk, name string) {
	fmt.Fprintf(sb, "== %s ==\n", name)
	offset := 0
	for offset < len(c.Code) {
		offset = disassembleInstruction(sb, p, c, offset)
	}
}

func disassembleInstruction(sb *strings.Builder, p *Program, c *Chunk, offset int) int {
	fmt.Fprintf(sb, "%04d ", offset)
	if offset > 0 && c.Line(offset) == c.Line(offset-1) {
		fmt.Fprintf(sb, "   | ")
	} else {
		fmt.Fprintf(sb, "%4d ", c.Line(offset))
	}

	op := Opcode(c.Code[offset])
	mnemonic, ok := OpcodeNames[op]
	if !ok {
		fmt.Fprintf(sb, "UNKNOWN %d\n", op)
		return offset + 1
	}

	switch op {
	case OpConst:
		idx := int(c.ReadUint16(offset + 1))
		fmt.Fprintf(sb, "%-18s %4d  %s\n", mnemonic, idx, constantString(c, idx))
		return offset + 3
	case OpGetGlobal, OpSetGlobal:
		idx := int(c.ReadUint16(offset + 1))
		label := "?"
		if idx < len(p.GlobalNames) {
			label = p.GlobalNames[idx]
		}
		fmt.Fprintf(sb, "%-18s %4d  %s\n", mnemonic, idx, label)
		return offset + 3
	case OpJump, OpJumpIfFalse:
		target := offset + 3 + int(c.ReadUint16(offset+1))
		fmt.Fprintf(sb, "%-18s %4d -> %d\n", mnemonic, offset, target)
		return offset + 3
	case OpLoop:
		target := offset + 3 - int(c.ReadUint16(offset+1))
		fmt.Fprintf(sb, "%-18s %4d -> %d\n", mnemonic, offset, target)
		return offset + 3
	case OpMakeList:
		fmt.Fprintf(sb, "%-18s %4d\n", mnemonic, c.ReadUint16(offset+1))
		return offset + 3
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue,
		OpCall, OpTailCall, OpCloseUpvalue,
		OpMakeTuple, OpGetField, OpVariantField, OpTupleField:
		fmt.Fprintf(sb, "%-18s %4d\n", mnemonic, c.Code[offset+1])
		return offset + 2
	case OpMakeRecord:
		idx := int(c.ReadUint16(offset + 1))
		fmt.Fprintf(sb, "%-18s %4d %d  %s\n", mnemonic, idx, c.Code[offset+3], constantString(c, idx))
		return offset + 4
	case OpMakeVariant:
		idx := int(c.ReadUint16(offset + 1))
		fmt.Fprintf(sb, "%-18s %4d tag=%d n=%d  %s\n", mnemonic, idx, c.Code[offset+3], c.Code[offset+4], constantString(c, idx))
		return offset + 5
	case OpClosure:
		idx := int(c.ReadUint16(offset + 1))
		label := "?"
		count := 0
		if idx < len(p.Protos) {
			label = p.Protos[idx].Name
			if label == "" {
				label = fmt.Sprintf("<fn %d>", idx)
			}
			count = p.Protos[idx].UpvalueCount
		}
		fmt.Fprintf(sb, "%-18s %4d  %s\n", mnemonic, idx, label)
		next := offset + 3
		for i := 0; i < count; i++ {
			kind := "upvalue"
			if c.Code[next] == 1 {
				kind = "local"
			}
			fmt.Fprintf(sb, "%04d      |  %s %d\n", next, kind, c.Code[next+1])
			next += 2
		}
		return next
	default:
		fmt.Fprintf(sb, "%s\n", mnemonic)
		return offset + 1
	}
}

func constantString(c *Chunk, idx int) string {
	if idx >= len(c.Constants) {
		return "<bad constant>"
	}
	k := c.Constants[idx]
	switch k.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", k.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", k.Float)
	case ConstStr:
		return fmt.Sprintf("%q", k.Str)
	}
	return "<bad constant>"
}
