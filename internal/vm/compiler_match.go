package vm

import (
	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/token"
)

// Match lowering: the scrutinee is evaluated once into an anonymous local;
// every arm re-reads the pieces it needs through an access path of
// destructuring opcodes. Each refutable check jumps to the next arm on
// failure; a matching arm binds its variables as locals, runs its body and
// slides the result over scrutinee and bindings. When no arm matches,
// OpMatchFail raises a runtime match failure.

type pathStep struct {
	op      Opcode
	operand int // field/element index, or -1 for operand-less steps
}

func (c *compiler) compileMatch(expr *ast.Match, tail bool) error {
	if err := c.compileExpr(expr.Scrutinee, false); err != nil {
		return err
	}
	scrutSlot := c.height - 1
	if scrutSlot >= MaxLocals {
		return c.errorf(expr.Tok, "too many locals")
	}

	var endJumps []int
	for i := range expr.Arms {
		arm := &expr.Arms[i]
		tok := arm.Pat.Pos()

		var failJumps []int
		if err := c.compileTests(arm.Pat, scrutSlot, nil, &failJumps, tok); err != nil {
			return err
		}

		// Bind pattern variables left to right.
		var bindings []boundVar
		collectBindings(arm.Pat, nil, &bindings)
		firstBind := len(c.locals)
		for _, b := range bindings {
			c.emitLoad(scrutSlot, b.path, tok)
			slot := c.height - 1
			if slot >= MaxLocals {
				return c.errorf(tok, "too many locals")
			}
			c.locals = append(c.locals, local{name: b.name, slot: slot})
		}

		if err := c.compileExpr(arm.Body, tail); err != nil {
			return err
		}

		// Slide: write the result into the scrutinee slot, pop bindings.
		captured := false
		for _, l := range c.locals[firstBind:] {
			if l.captured {
				captured = true
			}
		}
		c.locals = c.locals[:firstBind]
		if captured {
			c.emit(OpCloseUpvalue, tok)
			c.emitByte(byte(scrutSlot+1), tok)
		}
		c.emit(OpSetLocal, tok)
		c.emitByte(byte(scrutSlot), tok)
		for range bindings {
			c.emit(OpPop, tok)
		}
		c.height = scrutSlot + 1

		endJumps = append(endJumps, c.emitJump(OpJump, tok))

		for _, fj := range failJumps {
			if err := c.patchJump(fj, tok); err != nil {
				return err
			}
		}
		c.height = scrutSlot + 1
	}

	// Fall-through: every arm refused the value.
	c.emit(OpMatchFail, expr.Tok)
	c.height = scrutSlot + 1

	for _, ej := range endJumps {
		if err := c.patchJump(ej, expr.Tok); err != nil {
			return err
		}
	}
	c.height = scrutSlot + 1
	return nil
}

// emitLoad pushes the value at path below the scrutinee local.
func (c *compiler) emitLoad(scrutSlot int, path []pathStep, tok token.Token) {
	c.emit(OpGetLocal, tok)
	c.emitByte(byte(scrutSlot), tok)
	c.adjust(1)
	for _, step := range path {
		c.emit(step.op, tok)
		if step.operand >= 0 {
			c.emitByte(byte(step.operand), tok)
		}
	}
}

// compileTests emits the refutable checks of a pattern. Every check leaves
// the stack balanced; failures jump (cond popped) to offsets collected in
// failJumps.
func (c *compiler) compileTests(pat ast.Pattern, scrutSlot int, path []pathStep, failJumps *[]int, tok token.Token) error {
	switch p := pat.(type) {
	case *ast.WildcardPat, *ast.VarPat:
		return nil

	case *ast.LitPat:
		switch lit := p.Lit.(type) {
		case *ast.UnitLit:
			return nil // only one unit value
		case *ast.BoolLit:
			c.emitLoad(scrutSlot, path, tok)
			if !lit.Value {
				c.emit(OpNot, tok)
			}
			*failJumps = append(*failJumps, c.emitJump(OpJumpIfFalse, tok))
			c.adjust(-1)
			return nil
		case *ast.IntLit:
			return c.emitLitTest(scrutSlot, path, IntConst(lit.Value), failJumps, tok)
		case *ast.FloatLit:
			return c.emitLitTest(scrutSlot, path, FloatConst(lit.Value), failJumps, tok)
		case *ast.StringLit:
			return c.emitLitTest(scrutSlot, path, StrConst(lit.Value), failJumps, tok)
		}
		return c.errorf(tok, "unsupported literal pattern")

	case *ast.TuplePat:
		for i, sub := range p.Elems {
			if err := c.compileTests(sub, scrutSlot, append(path, pathStep{OpTupleField, i}), failJumps, tok); err != nil {
				return err
			}
		}
		return nil

	case *ast.ConsPat:
		// Non-empty?
		c.emitLoad(scrutSlot, path, tok)
		c.emit(OpIsEmptyList, tok)
		c.emit(OpNot, tok)
		*failJumps = append(*failJumps, c.emitJump(OpJumpIfFalse, tok))
		c.adjust(-1)
		if err := c.compileTests(p.Head, scrutSlot, append(path, pathStep{OpListHead, -1}), failJumps, tok); err != nil {
			return err
		}
		return c.compileTests(p.Tail, scrutSlot, append(path, pathStep{OpListTail, -1}), failJumps, tok)

	case *ast.ListPat:
		prefix := path
		for _, sub := range p.Elems {
			c.emitLoad(scrutSlot, prefix, tok)
			c.emit(OpIsEmptyList, tok)
			c.emit(OpNot, tok)
			*failJumps = append(*failJumps, c.emitJump(OpJumpIfFalse, tok))
			c.adjust(-1)
			if err := c.compileTests(sub, scrutSlot, append(prefix, pathStep{OpListHead, -1}), failJumps, tok); err != nil {
				return err
			}
			prefix = append(prefix, pathStep{OpListTail, -1})
		}
		// Exactly this length: the remaining tail must be empty.
		c.emitLoad(scrutSlot, prefix, tok)
		c.emit(OpIsEmptyList, tok)
		*failJumps = append(*failJumps, c.emitJump(OpJumpIfFalse, tok))
		c.adjust(-1)
		return nil

	case *ast.CtorPat:
		c.emitLoad(scrutSlot, path, tok)
		c.emit(OpVariantTag, tok)
		if err := c.emitConst(IntConst(int64(p.Tag)), tok); err != nil {
			return err
		}
		c.emit(OpEq, tok)
		c.adjust(-1)
		*failJumps = append(*failJumps, c.emitJump(OpJumpIfFalse, tok))
		c.adjust(-1)
		if p.Arg != nil {
			return c.compileTests(p.Arg, scrutSlot, append(path, pathStep{OpVariantField, 0}), failJumps, tok)
		}
		return nil

	case *ast.RecordPat:
		for _, f := range p.Fields {
			if err := c.compileTests(f.Pat, scrutSlot, append(path, pathStep{OpGetField, f.Index}), failJumps, tok); err != nil {
				return err
			}
		}
		return nil
	}
	return c.errorf(tok, "unhandled pattern %T", pat)
}

func (c *compiler) emitLitTest(scrutSlot int, path []pathStep, k Constant, failJumps *[]int, tok token.Token) error {
	c.emitLoad(scrutSlot, path, tok)
	if err := c.emitConst(k, tok); err != nil {
		return err
	}
	c.emit(OpEq, tok)
	c.adjust(-1)
	*failJumps = append(*failJumps, c.emitJump(OpJumpIfFalse, tok))
	c.adjust(-1)
	return nil
}

type boundVar struct {
	name string
	path []pathStep
}

// collectBindings walks the pattern in source order, mirroring the access
// paths compileTests uses.
func collectBindings(pat ast.Pattern, path []pathStep, out *[]boundVar) {
	switch p := pat.(type) {
	case *ast.VarPat:
		*out = append(*out, boundVar{name: p.Name, path: append([]pathStep(nil), path...)})
	case *ast.TuplePat:
		for i, sub := range p.Elems {
			collectBindings(sub, append(path, pathStep{OpTupleField, i}), out)
		}
	case *ast.ConsPat:
		collectBindings(p.Head, append(path, pathStep{OpListHead, -1}), out)
		collectBindings(p.Tail, append(path, pathStep{OpListTail, -1}), out)
	case *ast.ListPat:
		prefix := path
		for _, sub := range p.Elems {
			collectBindings(sub, append(prefix, pathStep{OpListHead, -1}), out)
			prefix = append(prefix, pathStep{OpListTail, -1})
		}
	case *ast.CtorPat:
		if p.Arg != nil {
			collectBindings(p.Arg, append(path, pathStep{OpVariantField, 0}), out)
		}
	case *ast.RecordPat:
		for _, f := range p.Fields {
			collectBindings(f.Pat, append(path, pathStep{OpGetField, f.Index}), out)
		}
	}
}
