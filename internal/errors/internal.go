package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"contractc/internal/ast"
)

// InternalError is an internal compiler error: an invariant the front end or
// an earlier pass should have guaranteed does not hold. It aborts the whole
// compilation unit.
type InternalError struct {
	Message     string
	Function    string
	Instruction string
	Position    ast.Position
}

func (e *InternalError) Error() string {
	msg := "internal compiler error: " + e.Message
	if e.Function != "" {
		msg += " (in " + e.Function
		if e.Instruction != "" {
			msg += " at '" + e.Instruction + "'"
		}
		msg += ")"
	}
	if e.Position.IsValid() {
		msg += " at " + e.Position.String()
	}
	return msg
}

// Internal creates an internal compiler error with a stack trace attached
func Internal(format string, args ...any) error {
	return pkgerrors.WithStack(&InternalError{Message: fmt.Sprintf(format, args...)})
}

// InternalAt creates an internal compiler error with IR context
func InternalAt(function, instruction string, pos ast.Position, format string, args ...any) error {
	return pkgerrors.WithStack(&InternalError{
		Message:     fmt.Sprintf(format, args...),
		Function:    function,
		Instruction: instruction,
		Position:    pos,
	})
}

// AsInternal extracts the InternalError from err, if any
func AsInternal(err error) (*InternalError, bool) {
	var ice *InternalError
	if pkgerrors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}

// Recover converts a panic carrying an error into that error. Panics
// carrying anything else become internal errors. Use it deferred:
//
//	defer errors.Recover(&err)
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok {
		if _, isICE := AsInternal(e); isICE {
			*err = e
			return
		}
		*err = pkgerrors.WithStack(&InternalError{Message: e.Error()})
		return
	}
	*err = Internal("%v", r)
}
