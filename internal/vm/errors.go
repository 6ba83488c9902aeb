package vm

import "fmt"

// ErrorKind classifies a runtime failure.
type ErrorKind int

const (
	ErrTypeMismatch ErrorKind = iota
	ErrStackOverflow
	ErrStackCorruption
	ErrDivideByZero
	ErrHost
	ErrUnboundGlobal
	ErrMatchFailure
)

var errorKindNames = map[ErrorKind]string{
	ErrTypeMismatch:    "type mismatch",
	ErrStackOverflow:   "stack overflow",
	ErrStackCorruption: "stack corruption",
	ErrDivideByZero:    "division by zero",
	ErrHost:            "host error",
	ErrUnboundGlobal:   "unbound global",
	ErrMatchFailure:    "match failure",
}

func (k ErrorKind) String() string {
	if n, ok := errorKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("error(%d)", int(k))
}

// VmError is the only error type Run returns. Execution failures never
// escape as Go panics; malformed stacks and host panics are recovered into
// this type.
type VmError struct {
	Kind    ErrorKind
	Message string
	Line    int
	Column  int
}

func (e *VmError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("runtime error at %d:%d: %s: %s", e.Line, e.Column, e.Kind, e.Message)
	}
	return fmt.Sprintf("runtime error: %s: %s", e.Kind, e.Message)
}

// CompileError reports a bytecode-emission failure, e.g. an identifier that
// resolves nowhere or an operand that exceeds its encoding width.
type CompileError struct {
	Line    int
	Column  int
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// Panic sentinels thrown inside the dispatch loop and recovered at the Run
// boundary. Keeping them as distinct types lets the recover site attach the
// right ErrorKind without string matching.

type errTypeMismatch struct{ msg string }

type errStackCorruption struct{ msg string }

type errDivideByZero struct{}

type errMatchFailure struct{}

type errHost struct{ msg string }

type errStackOverflow struct{ msg string }

type errUnboundGlobal struct{ name string }

// throwTypef aborts the current instruction with a type mismatch.
func throwTypef(format string, args ...interface{}) {
	panic(errTypeMismatch{fmt.Sprintf(format, args...)})
}
