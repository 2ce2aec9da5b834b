package errors

import (
	"fmt"

	"contractc/internal/ast"
)

// DiagnosticBuilder provides a fluent interface for creating diagnostics
type DiagnosticBuilder struct {
	err CompilerError
}

// NewDiagnostic creates a new error builder
func NewDiagnostic(code, message string, pos ast.Position) *DiagnosticBuilder {
	return &DiagnosticBuilder{
		err: CompilerError{
			Level:    Error,
			Code:     code,
			Message:  message,
			Position: pos,
			Length:   1,
		},
	}
}

// WithLength sets the length of the error span
func (b *DiagnosticBuilder) WithLength(length int) *DiagnosticBuilder {
	b.err.Length = length
	return b
}

// WithSuggestion adds a suggestion to the error
func (b *DiagnosticBuilder) WithSuggestion(message string) *DiagnosticBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message})
	return b
}

// WithNote adds a note to the error
func (b *DiagnosticBuilder) WithNote(note string) *DiagnosticBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

// WithHelp adds help text to the error
func (b *DiagnosticBuilder) WithHelp(help string) *DiagnosticBuilder {
	b.err.HelpText = help
	return b
}

// Build returns the completed compiler error
func (b *DiagnosticBuilder) Build() CompilerError {
	return b.err
}

// PurityViolation reports storage access beyond the declared purity
func PurityViolation(function, declared, inferred string, pos ast.Position) CompilerError {
	return NewDiagnostic(ErrorPurityViolation,
		fmt.Sprintf("function '%s' is declared %s but %s storage", function, declared, inferred), pos).
		WithLength(len(function)).
		WithSuggestion(fmt.Sprintf("declare '%s' with the storage access it performs", function)).
		WithNote("purity is checked transitively through called functions").
		Build()
}

// ScriptMainArgs reports a script main with parameters
func ScriptMainArgs(pos ast.Position) CompilerError {
	return NewDiagnostic(ErrorScriptMainArgs, "script 'main' cannot take parameters", pos).
		WithLength(4).
		WithHelp("read inputs from configurables instead").
		Build()
}

// DuplicateSelector reports two ABI methods with the same selector
func DuplicateSelector(first, second string, selector uint32, pos ast.Position) CompilerError {
	return NewDiagnostic(ErrorDuplicateSelector,
		fmt.Sprintf("functions '%s' and '%s' share selector 0x%08x", first, second, selector), pos).
		WithSuggestion("rename one of the functions").
		Build()
}

// MissingEntry reports a compilation unit without entry functions
func MissingEntry(kind string, pos ast.Position) CompilerError {
	builder := NewDiagnostic(ErrorMissingEntry, fmt.Sprintf("%s has no entry point", kind), pos)
	if kind == "script" {
		builder = builder.WithHelp("scripts need a 'main' function")
	} else {
		builder = builder.WithHelp("contracts need at least one ABI method")
	}
	return builder.Build()
}

// IRParse reports malformed IR text
func IRParse(message string, pos ast.Position) CompilerError {
	return NewDiagnostic(ErrorIRParse, message, pos).Build()
}

// IRVerify reports IR that breaks a verifier rule
func IRVerify(function, message string) CompilerError {
	return NewDiagnostic(ErrorIRVerify, message, ast.Position{}).
		WithNote(fmt.Sprintf("in function '%s'", function)).
		Build()
}
