package vm

import (
	"fmt"

	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/infer"
	"github.com/fizzlang/fizz/internal/token"
)

// MaxLocals is the addressable local-slot range of the 1-byte operand.
const MaxLocals = 256

// Compile lowers a checked program to bytecode. info must come from a
// successful inference pass over the same tree: the compiler relies on the
// resolution fields inference wrote (constructor tags, field indices) and
// performs no type checks of its own.
func Compile(prog *ast.Program, info *infer.Info, reg *Registry) (*Program, error) {
	sh := &shared{
		program:   &Program{Main: NewChunk()},
		info:      info,
		reg:       reg,
		globalIdx: map[string]int{},
	}
	c := &compiler{shared: sh, chunk: sh.program.Main}

	sh.program.Records = map[string][]string{}
	for name, rec := range info.Records {
		names := make([]string, len(rec.Fields))
		for i, f := range rec.Fields {
			names[i] = f.Name
		}
		sh.program.Records[name] = names
	}
	sh.program.Variants = map[string][]string{}
	for name, variant := range info.Variants {
		names := make([]string, len(variant.Ctors))
		for i, ct := range variant.Ctors {
			names[i] = ct.Name
		}
		sh.program.Variants[name] = names
	}

	if err := c.compileProgram(prog); err != nil {
		return nil, err
	}
	return sh.program, nil
}

// shared is compiler state common to the top level and every nested
// function compiler.
type shared struct {
	program   *Program
	info      *infer.Info
	reg       *Registry
	globalIdx map[string]int
}

type local struct {
	name     string
	slot     int
	captured bool
}

type upvalueSpec struct {
	index   byte
	isLocal bool
}

type compiler struct {
	*shared
	enclosing *compiler
	chunk     *Chunk
	proto     *FuncProto

	locals    []local
	upvalues  []upvalueSpec
	height    int // simulated operand-stack height, base-relative
	maxHeight int
}

func (c *compiler) adjust(n int) {
	c.height += n
	if c.height > c.maxHeight {
		c.maxHeight = c.height
	}
}

func (c *compiler) emit(op Opcode, tok token.Token) {
	c.chunk.WriteOp(op, tok.Line, tok.Column)
}

func (c *compiler) emitByte(b byte, tok token.Token) {
	c.chunk.Write(b, tok.Line, tok.Column)
}

func (c *compiler) emitU16(v int, tok token.Token) error {
	if v < 0 || v > 0xFFFF {
		return c.errorf(tok, "operand %d exceeds 16-bit encoding", v)
	}
	c.chunk.WriteUint16(uint16(v), tok.Line, tok.Column)
	return nil
}

func (c *compiler) emitConst(k Constant, tok token.Token) error {
	idx := c.chunk.AddConstant(k)
	if idx > 0xFFFF {
		return c.errorf(tok, "too many constants in one chunk")
	}
	c.emit(OpConst, tok)
	c.chunk.WriteUint16(uint16(idx), tok.Line, tok.Column)
	c.adjust(1)
	return nil
}

// emitJump writes a jump with a placeholder offset and returns the operand
// position for patching.
func (c *compiler) emitJump(op Opcode, tok token.Token) int {
	c.emit(op, tok)
	c.chunk.WriteUint16(0xFFFF, tok.Line, tok.Column)
	return len(c.chunk.Code) - 2
}

func (c *compiler) patchJump(operandPos int, tok token.Token) error {
	// The offset is relative to the first byte after the operand.
	jump := len(c.chunk.Code) - operandPos - 2
	if jump > 0xFFFF {
		return c.errorf(tok, "jump distance %d exceeds 16-bit encoding", jump)
	}
	c.chunk.Code[operandPos] = byte(jump >> 8)
	c.chunk.Code[operandPos+1] = byte(jump)
	return nil
}

func (c *compiler) errorf(tok token.Token, format string, args ...interface{}) error {
	return &CompileError{Line: tok.Line, Column: tok.Column, Message: fmt.Sprintf(format, args...)}
}

// globalIndex interns a name in the global table.
func (c *compiler) globalIndex(name string) int {
	if idx, ok := c.globalIdx[name]; ok {
		return idx
	}
	idx := len(c.program.GlobalNames)
	c.globalIdx[name] = idx
	c.program.GlobalNames = append(c.program.GlobalNames, name)
	return idx
}

func (c *compiler) compileProgram(prog *ast.Program) error {
	lastExpr := -1
	for i, d := range prog.Decls {
		if _, ok := d.(*ast.ExprDecl); ok {
			lastExpr = i
		}
	}

	for i, d := range prog.Decls {
		switch decl := d.(type) {
		case *ast.TypeDecl:
			// shapes already recorded in the program tables
		case *ast.LetDecl:
			idx := c.globalIndex(decl.Name)
			if err := c.compileNamedValue(decl.Name, decl.Body); err != nil {
				return err
			}
			c.emit(OpSetGlobal, decl.Tok)
			if err := c.emitU16(idx, decl.Tok); err != nil {
				return err
			}
			c.adjust(-1)
		case *ast.ExprDecl:
			if err := c.compileExpr(decl.E, false); err != nil {
				return err
			}
			if i != lastExpr {
				c.emit(OpPop, decl.Pos())
				c.adjust(-1)
			}
		}
	}

	endTok := token.Token{Type: token.EOF}
	if lastExpr < 0 {
		c.emit(OpUnit, endTok)
		c.adjust(1)
	}
	c.emit(OpHalt, endTok)
	return nil
}

// compileNamedValue compiles a binding's value, naming any immediate lambda
// after the binding for diagnostics.
func (c *compiler) compileNamedValue(name string, value ast.Expr) error {
	if lam, ok := value.(*ast.Lambda); ok {
		return c.compileLambda(lam, name)
	}
	return c.compileExpr(value, false)
}

func (c *compiler) compileExpr(e ast.Expr, tail bool) error {
	switch expr := e.(type) {
	case *ast.IntLit:
		return c.emitConst(IntConst(expr.Value), expr.Tok)
	case *ast.FloatLit:
		return c.emitConst(FloatConst(expr.Value), expr.Tok)
	case *ast.StringLit:
		return c.emitConst(StrConst(expr.Value), expr.Tok)
	case *ast.BoolLit:
		if expr.Value {
			c.emit(OpTrue, expr.Tok)
		} else {
			c.emit(OpFalse, expr.Tok)
		}
		c.adjust(1)
		return nil
	case *ast.UnitLit:
		c.emit(OpUnit, expr.Tok)
		c.adjust(1)
		return nil
	case *ast.Ident:
		return c.compileIdent(expr)
	case *ast.Lambda:
		return c.compileLambda(expr, "")
	case *ast.Apply:
		return c.compileApply(expr, tail)
	case *ast.LetIn:
		return c.compileLetIn(expr, tail)
	case *ast.If:
		return c.compileIf(expr, tail)
	case *ast.Binary:
		return c.compileBinary(expr)
	case *ast.Unary:
		return c.compileUnary(expr)
	case *ast.Tuple:
		for _, el := range expr.Elems {
			if err := c.compileExpr(el, false); err != nil {
				return err
			}
		}
		c.emit(OpMakeTuple, expr.Tok)
		c.emitByte(byte(len(expr.Elems)), expr.Tok)
		c.adjust(1 - len(expr.Elems))
		return nil
	case *ast.ListLit:
		for _, el := range expr.Elems {
			if err := c.compileExpr(el, false); err != nil {
				return err
			}
		}
		c.emit(OpMakeList, expr.Tok)
		if err := c.emitU16(len(expr.Elems), expr.Tok); err != nil {
			return err
		}
		c.adjust(1 - len(expr.Elems))
		return nil
	case *ast.RecordLit:
		return c.compileRecordLit(expr)
	case *ast.FieldAccess:
		if err := c.compileExpr(expr.Target, false); err != nil {
			return err
		}
		c.emit(OpGetField, expr.Tok)
		c.emitByte(byte(expr.Index), expr.Tok)
		return nil
	case *ast.Ctor:
		return c.compileCtor(expr)
	case *ast.Match:
		return c.compileMatch(expr, tail)
	}
	return fmt.Errorf("unhandled expression %T", e)
}

func (c *compiler) compileIdent(expr *ast.Ident) error {
	if slot, ok := c.resolveLocal(expr.Name); ok {
		c.emit(OpGetLocal, expr.Tok)
		c.emitByte(byte(slot), expr.Tok)
		c.adjust(1)
		return nil
	}
	if idx, ok := c.resolveUpvalue(expr.Name); ok {
		c.emit(OpGetUpvalue, expr.Tok)
		c.emitByte(byte(idx), expr.Tok)
		c.adjust(1)
		return nil
	}
	if idx, ok := c.globalIdx[expr.Name]; ok {
		c.emit(OpGetGlobal, expr.Tok)
		if err := c.emitU16(idx, expr.Tok); err != nil {
			return err
		}
		c.adjust(1)
		return nil
	}
	_, inRegistry := c.reg.Lookup(expr.Name)
	_, inTypeEnv := c.info.Globals[expr.Name]
	if inRegistry || inTypeEnv {
		// Registry functions and globals carried over from an earlier
		// unit of a persistent session resolve to named global slots;
		// Run fills them before the first instruction.
		idx := c.globalIndex(expr.Name)
		c.emit(OpGetGlobal, expr.Tok)
		if err := c.emitU16(idx, expr.Tok); err != nil {
			return err
		}
		c.adjust(1)
		return nil
	}
	return c.errorf(expr.Tok, "unbound identifier %s", expr.Name)
}

func (c *compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return c.locals[i].slot, true
		}
	}
	return 0, false
}

// resolveUpvalue walks enclosing compilers, capturing the variable in each
// intermediate function.
func (c *compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if slot, ok := c.enclosing.resolveLocal(name); ok {
		for i := range c.enclosing.locals {
			if c.enclosing.locals[i].slot == slot {
				c.enclosing.locals[i].captured = true
			}
		}
		return c.addUpvalue(byte(slot), true), true
	}
	if idx, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(byte(idx), false), true
	}
	return 0, false
}

func (c *compiler) addUpvalue(index byte, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, upvalueSpec{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

func (c *compiler) compileLambda(expr *ast.Lambda, name string) error {
	fn := &compiler{
		shared:    c.shared,
		enclosing: c,
		chunk:     NewChunk(),
		proto:     &FuncProto{Name: name, Arity: 1},
	}
	// Slot 0 holds the callee, slot 1 the argument.
	fn.locals = []local{{name: "", slot: 0}, {name: expr.Param, slot: 1}}
	fn.height = 2
	fn.maxHeight = 2

	if err := fn.compileExpr(expr.Body, true); err != nil {
		return err
	}
	fn.emit(OpReturn, expr.Tok)
	fn.proto.Chunk = fn.chunk
	fn.proto.LocalCount = fn.maxHeight
	fn.proto.UpvalueCount = len(fn.upvalues)

	protoIdx := len(c.program.Protos)
	if protoIdx > 0xFFFF {
		return c.errorf(expr.Tok, "too many function prototypes")
	}
	c.program.Protos = append(c.program.Protos, fn.proto)

	c.emit(OpClosure, expr.Tok)
	if err := c.emitU16(protoIdx, expr.Tok); err != nil {
		return err
	}
	for _, uv := range fn.upvalues {
		if uv.isLocal {
			c.emitByte(1, expr.Tok)
		} else {
			c.emitByte(0, expr.Tok)
		}
		c.emitByte(uv.index, expr.Tok)
	}
	c.adjust(1)
	return nil
}

func (c *compiler) compileApply(expr *ast.Apply, tail bool) error {
	if err := c.compileExpr(expr.Fn, false); err != nil {
		return err
	}
	if err := c.compileExpr(expr.Arg, false); err != nil {
		return err
	}
	if tail && c.proto != nil {
		c.emit(OpTailCall, expr.Tok)
	} else {
		c.emit(OpCall, expr.Tok)
	}
	c.emitByte(1, expr.Tok)
	c.adjust(-1)
	return nil
}

func (c *compiler) compileLetIn(expr *ast.LetIn, tail bool) error {
	var slot int
	if expr.Rec {
		// Reserve the slot first so the value can capture itself.
		c.emit(OpUnit, expr.Tok)
		c.adjust(1)
		slot = c.height - 1
		if slot >= MaxLocals {
			return c.errorf(expr.Tok, "too many locals")
		}
		c.locals = append(c.locals, local{name: expr.Name, slot: slot})
		if err := c.compileNamedValue(expr.Name, expr.Value); err != nil {
			return err
		}
		c.emit(OpSetLocal, expr.Tok)
		c.emitByte(byte(slot), expr.Tok)
		c.adjust(-1)
	} else {
		if err := c.compileNamedValue(expr.Name, expr.Value); err != nil {
			return err
		}
		slot = c.height - 1
		if slot >= MaxLocals {
			return c.errorf(expr.Tok, "too many locals")
		}
		c.locals = append(c.locals, local{name: expr.Name, slot: slot})
	}

	if err := c.compileExpr(expr.Body, tail); err != nil {
		return err
	}

	// Slide the result over the binding. A tail call in the body never
	// returns here, so the slide only runs on the fall-through path.
	bound := c.locals[len(c.locals)-1]
	c.locals = c.locals[:len(c.locals)-1]
	if bound.captured {
		c.emit(OpCloseUpvalue, expr.Tok)
		c.emitByte(byte(slot), expr.Tok)
	}
	c.emit(OpSetLocal, expr.Tok)
	c.emitByte(byte(slot), expr.Tok)
	c.adjust(-1)
	return nil
}

func (c *compiler) compileIf(expr *ast.If, tail bool) error {
	if err := c.compileExpr(expr.Cond, false); err != nil {
		return err
	}
	elseJump := c.emitJump(OpJumpIfFalse, expr.Tok)
	c.adjust(-1)
	h0 := c.height

	if err := c.compileExpr(expr.Then, tail); err != nil {
		return err
	}
	endJump := c.emitJump(OpJump, expr.Tok)
	if err := c.patchJump(elseJump, expr.Tok); err != nil {
		return err
	}

	c.height = h0
	if err := c.compileExpr(expr.Else, tail); err != nil {
		return err
	}
	return c.patchJump(endJump, expr.Tok)
}

func (c *compiler) compileRecordLit(expr *ast.RecordLit) error {
	rec := c.info.Records[expr.TypeName]
	// Fields are pushed in declared order regardless of the literal's
	// spelling, so the object layout is canonical.
	for _, f := range rec.Fields {
		var value ast.Expr
		for _, init := range expr.Fields {
			if init.Name == f.Name {
				value = init.Value
				break
			}
		}
		if value == nil {
			return c.errorf(expr.Tok, "record %s literal is missing field %s", expr.TypeName, f.Name)
		}
		if err := c.compileExpr(value, false); err != nil {
			return err
		}
	}
	nameIdx := c.chunk.AddConstant(StrConst(expr.TypeName))
	c.emit(OpMakeRecord, expr.Tok)
	if err := c.emitU16(nameIdx, expr.Tok); err != nil {
		return err
	}
	c.emitByte(byte(len(rec.Fields)), expr.Tok)
	c.adjust(1 - len(rec.Fields))
	return nil
}

func (c *compiler) compileCtor(expr *ast.Ctor) error {
	n := 0
	if expr.Arg != nil {
		if err := c.compileExpr(expr.Arg, false); err != nil {
			return err
		}
		n = 1
	}
	nameIdx := c.chunk.AddConstant(StrConst(expr.TypeName))
	c.emit(OpMakeVariant, expr.Tok)
	if err := c.emitU16(nameIdx, expr.Tok); err != nil {
		return err
	}
	c.emitByte(byte(expr.Tag), expr.Tok)
	c.emitByte(byte(n), expr.Tok)
	c.adjust(1 - n)
	return nil
}

func (c *compiler) compileBinary(expr *ast.Binary) error {
	// Logical operators short-circuit; everything else is strict.
	switch expr.Op {
	case token.AND:
		if err := c.compileExpr(expr.Left, false); err != nil {
			return err
		}
		falseJump := c.emitJump(OpJumpIfFalse, expr.Tok)
		c.adjust(-1)
		if err := c.compileExpr(expr.Right, false); err != nil {
			return err
		}
		endJump := c.emitJump(OpJump, expr.Tok)
		if err := c.patchJump(falseJump, expr.Tok); err != nil {
			return err
		}
		c.adjust(-1) // the false path re-pushes
		c.emit(OpFalse, expr.Tok)
		c.adjust(1)
		return c.patchJump(endJump, expr.Tok)
	case token.OR:
		if err := c.compileExpr(expr.Left, false); err != nil {
			return err
		}
		c.emit(OpNot, expr.Tok)
		trueJump := c.emitJump(OpJumpIfFalse, expr.Tok)
		c.adjust(-1)
		if err := c.compileExpr(expr.Right, false); err != nil {
			return err
		}
		endJump := c.emitJump(OpJump, expr.Tok)
		if err := c.patchJump(trueJump, expr.Tok); err != nil {
			return err
		}
		c.adjust(-1)
		c.emit(OpTrue, expr.Tok)
		c.adjust(1)
		return c.patchJump(endJump, expr.Tok)
	}

	if err := c.compileExpr(expr.Left, false); err != nil {
		return err
	}
	if err := c.compileExpr(expr.Right, false); err != nil {
		return err
	}

	var op Opcode
	switch expr.Op {
	case token.PLUS:
		op = OpAdd
	case token.MINUS:
		op = OpSub
	case token.STAR:
		op = OpMul
	case token.SLASH:
		op = OpDiv
	case token.PERCENT:
		op = OpMod
	case token.EQ:
		op = OpEq
	case token.NEQ:
		op = OpNeq
	case token.LT:
		op = OpLt
	case token.LE:
		op = OpLe
	case token.GT:
		op = OpGt
	case token.GE:
		op = OpGe
	case token.CARET:
		op = OpConcat
	case token.CONS:
		op = OpCons
	case token.AT:
		op = OpAppend
	default:
		return c.errorf(expr.Tok, "unknown operator %s", expr.Op)
	}
	c.emit(op, expr.Tok)
	c.adjust(-1)
	return nil
}

func (c *compiler) compileUnary(expr *ast.Unary) error {
	if err := c.compileExpr(expr.Operand, false); err != nil {
		return err
	}
	switch expr.Op {
	case token.MINUS:
		c.emit(OpNeg, expr.Tok)
	case token.NOT:
		c.emit(OpNot, expr.Tok)
	default:
		return c.errorf(expr.Tok, "unknown unary operator %s", expr.Op)
	}
	return nil
}
