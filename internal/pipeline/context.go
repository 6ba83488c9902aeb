package pipeline

import (
	"github.com/fizzlang/fizz/internal/ast"
	"github.com/fizzlang/fizz/internal/infer"
	"github.com/fizzlang/fizz/internal/token"
	"github.com/fizzlang/fizz/internal/vm"
)

// PipelineContext carries one source unit through the stages. Each
// processor reads the fields of the stages before it and fills in its own.
type PipelineContext struct {
	Source   string
	FilePath string

	// Registry supplies host function schemes to the type checker and
	// indices to the compiler.
	Registry *vm.Registry

	Tokens   []token.Token
	AstRoot  *ast.Program
	TypeInfo *infer.Info
	Program  *vm.Program

	Errors   []error
	Warnings []string
}

func NewPipelineContext(source string, reg *vm.Registry) *PipelineContext {
	return &PipelineContext{Source: source, Registry: reg}
}

// Failed reports whether any stage recorded an error.
func (c *PipelineContext) Failed() bool { return len(c.Errors) > 0 }

// Processor is a single compilation stage.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}
