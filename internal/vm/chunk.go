package vm

import "encoding/binary"

// ConstKind tags an entry in a chunk's constant pool.
type ConstKind byte

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstStr
)

// Constant is a VM-independent constant-pool entry. Constants never hold
// heap handles; string constants are interned into the arena when loaded,
// which keeps chunks serializable and shareable between VM instances.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
}

// IntConst, FloatConst and StrConst build pool entries.
func IntConst(v int64) Constant   { return Constant{Kind: ConstInt, Int: v} }
func FloatConst(v float64) Constant { return Constant{Kind: ConstFloat, Float: v} }
func StrConst(v string) Constant  { return Constant{Kind: ConstStr, Str: v} }

// Chunk is a compiled instruction stream with its constant pool and a
// per-byte position table for runtime diagnostics. Immutable once the
// compiler hands it to the VM.
type Chunk struct {
	Code      []byte
	Constants []Constant
	Lines     []int
	Columns   []int
}

func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends a raw byte, recording the source position it derives from.
func (c *Chunk) Write(b byte, line, column int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	c.Columns = append(c.Columns, column)
}

// WriteOp appends an opcode.
func (c *Chunk) WriteOp(op Opcode, line, column int) {
	c.Write(byte(op), line, column)
}

// WriteUint16 appends a big-endian 2-byte operand.
func (c *Chunk) WriteUint16(v uint16, line, column int) {
	c.Write(byte(v>>8), line, column)
	c.Write(byte(v), line, column)
}

// AddConstant appends to the pool, reusing an existing identical entry.
func (c *Chunk) AddConstant(k Constant) int {
	for i, existing := range c.Constants {
		if existing == k {
			return i
		}
	}
	c.Constants = append(c.Constants, k)
	return len(c.Constants) - 1
}

// ReadUint16 decodes the 2-byte operand at offset.
func (c *Chunk) ReadUint16(offset int) uint16 {
	return binary.BigEndian.Uint16(c.Code[offset : offset+2])
}

// Line returns the source line for the byte at offset, or 0 when unknown.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// Column returns the source column for the byte at offset, or 0.
func (c *Chunk) Column(offset int) int {
	if offset < 0 || offset >= len(c.Columns) {
		return 0
	}
	return c.Columns[offset]
}

// FuncProto is a compiled function body. Script functions are curried, so
// Arity is always 1; host-facing synthetic wrappers may differ.
type FuncProto struct {
	Name         string
	Arity        int
	LocalCount   int
	UpvalueCount int
	Chunk        *Chunk
}

// Program is a complete compilation unit: the top-level chunk, every
// function prototype it references, and the global name table. Globals are
// addressed by index at runtime; the name table gives the VM the
// registry wiring and the disassembler its labels.
type Program struct {
	Main        *Chunk
	Protos      []*FuncProto
	GlobalNames []string

	// Records maps a record type name to its field names in declared
	// order; Variants maps a variant type name to its constructor names by
	// tag. The VM uses both when materializing heap objects.
	Records  map[string][]string
	Variants map[string][]string
}
