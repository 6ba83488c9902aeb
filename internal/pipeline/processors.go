package pipeline

import (
	"github.com/fizzlang/fizz/internal/infer"
	"github.com/fizzlang/fizz/internal/lexer"
	"github.com/fizzlang/fizz/internal/parser"
	"github.com/fizzlang/fizz/internal/types"
	"github.com/fizzlang/fizz/internal/vm"
)

// LexerProcessor turns source text into a token stream.
type LexerProcessor struct{}

func (lp *LexerProcessor) Process(ctx *PipelineContext) *PipelineContext {
	tokens, err := lexer.Tokenize(ctx.Source)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Tokens = tokens
	return ctx
}

// ParserProcessor builds the syntax tree.
type ParserProcessor struct{}

func (pp *ParserProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Tokens == nil {
		return ctx
	}
	prog, errs := parser.Parse(ctx.Tokens)
	ctx.Errors = append(ctx.Errors, errs...)
	if len(errs) == 0 {
		ctx.AstRoot = prog
	}
	return ctx
}

// CheckProcessor runs type inference and annotates the tree.
type CheckProcessor struct{}

func (cp *CheckProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.AstRoot == nil {
		return ctx
	}
	var schemes map[string]*types.Scheme
	if ctx.Registry != nil {
		schemes = ctx.Registry.Schemes()
	}
	info, err := infer.Check(ctx.AstRoot, schemes)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.TypeInfo = info
	ctx.Warnings = append(ctx.Warnings, info.Warnings...)
	return ctx
}

// CompileProcessor lowers the annotated tree to bytecode.
type CompileProcessor struct{}

func (cp *CompileProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.AstRoot == nil || ctx.TypeInfo == nil {
		return ctx
	}
	program, err := vm.Compile(ctx.AstRoot, ctx.TypeInfo, ctx.Registry)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Program = program
	return ctx
}

// Build runs the full source→bytecode pipeline in one call.
func Build(source string, reg *vm.Registry) *PipelineContext {
	p := New(
		&LexerProcessor{},
		&ParserProcessor{},
		&CheckProcessor{},
		&CompileProcessor{},
	)
	return p.Run(NewPipelineContext(source, reg))
}
