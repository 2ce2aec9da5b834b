package ast

import (
	"fmt"

	"contractc/internal/types"
)

// Position is a location in the original source
type Position struct {
	Filename string
	Offset   int
	Line     int
	Column   int
}

func (p Position) String() string {
	if p.Filename == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}

// IsValid reports whether the position points somewhere
func (p Position) IsValid() bool { return p.Line > 0 }

type Node interface {
	NodePos() Position
}

// Typed is embedded by every expression. The front end guarantees Type is
// concrete; a nil Type reaching the backend is an internal error.
type Typed struct {
	Pos  Position
	Type *types.Type
}

func (t *Typed) NodePos() Position        { return t.Pos }
func (t *Typed) ExprType() *types.Type    { return t.Type }
func (t *Typed) SetExprType(x *types.Type) { t.Type = x }

// StmtPos is embedded by statements
type StmtPos struct {
	Pos Position
}

func (s *StmtPos) NodePos() Position { return s.Pos }
