package vm

// Opcode is a single bytecode instruction tag. Operand widths are fixed per
// opcode: constant-pool and jump operands are 2 bytes big-endian, slot and
// field indices and argument counts are 1 byte.
type Opcode byte

const (
	OpConst Opcode = iota // 2-byte constant index
	OpUnit
	OpTrue
	OpFalse
	OpPop
	OpDup

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg

	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpNot

	OpConcat // string ^
	OpCons   // head :: tail
	OpAppend // list @ list

	OpGetLocal  // 1-byte slot
	OpSetLocal  // 1-byte slot
	OpGetGlobal // 2-byte global index
	OpSetGlobal // 2-byte global index
	OpGetUpvalue
	OpSetUpvalue

	OpJump        // 2-byte forward offset
	OpJumpIfFalse // 2-byte forward offset, pops condition
	OpLoop        // 2-byte backward offset

	OpCall     // 1-byte argument count
	OpTailCall // 1-byte argument count
	OpReturn
	OpClosure      // 2-byte proto index, then per-upvalue (isLocal, index) byte pairs
	OpCloseUpvalue // close the top stack slot's upvalue and pop

	OpMakeList     // 2-byte element count
	OpMakeTuple    // 1-byte element count
	OpMakeRecord   // 2-byte type-name constant, 1-byte field count
	OpGetField     // 1-byte field index
	OpMakeVariant  // 2-byte type-name constant, 1-byte tag, 1-byte payload count
	OpVariantTag   // push the tag of the variant on top as int
	OpVariantField // 1-byte payload index
	OpIsEmptyList
	OpListHead
	OpListTail
	OpTupleField // 1-byte element index

	OpMatchFail // no arm matched; position comes from the line table
	OpHalt
)

// OpcodeNames maps opcodes to their disassembly mnemonics.
var OpcodeNames = map[Opcode]string{
	OpConst:        "OP_CONST",
	OpUnit:         "OP_UNIT",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpDup:          "OP_DUP",
	OpAdd:          "OP_ADD",
	OpSub:          "OP_SUB",
	OpMul:          "OP_MUL",
	OpDiv:          "OP_DIV",
	OpMod:          "OP_MOD",
	OpNeg:          "OP_NEG",
	OpEq:           "OP_EQ",
	OpNeq:          "OP_NEQ",
	OpLt:           "OP_LT",
	OpLe:           "OP_LE",
	OpGt:           "OP_GT",
	OpGe:           "OP_GE",
	OpNot:          "OP_NOT",
	OpConcat:       "OP_CONCAT",
	OpCons:         "OP_CONS",
	OpAppend:       "OP_APPEND",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpTailCall:     "OP_TAIL_CALL",
	OpReturn:       "OP_RETURN",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpMakeList:     "OP_MAKE_LIST",
	OpMakeTuple:    "OP_MAKE_TUPLE",
	OpMakeRecord:   "OP_MAKE_RECORD",
	OpGetField:     "OP_GET_FIELD",
	OpMakeVariant:  "OP_MAKE_VARIANT",
	OpVariantTag:   "OP_VARIANT_TAG",
	OpVariantField: "OP_VARIANT_FIELD",
	OpIsEmptyList:  "OP_IS_EMPTY_LIST",
	OpListHead:     "OP_LIST_HEAD",
	OpListTail:     "OP_LIST_TAIL",
	OpTupleField:   "OP_TUPLE_FIELD",
	OpMatchFail:    "OP_MATCH_FAIL",
	OpHalt:         "OP_HALT",
}
