package ir

import (
	"fmt"
	"strconv"
	"strings"

	"contractc/internal/ast"
)

// Purity is the storage access of a function
type Purity int

const (
	Pure Purity = iota
	Reads
	Writes
	ReadsWrites
)

func (p Purity) String() string {
	switch p {
	case Reads:
		return "reads"
	case Writes:
		return "writes"
	case ReadsWrites:
		return "readswrites"
	default:
		return "pure"
	}
}

// ParsePurity is the inverse of Purity.String
func ParsePurity(s string) (Purity, error) {
	switch s {
	case "pure":
		return Pure, nil
	case "reads":
		return Reads, nil
	case "writes":
		return Writes, nil
	case "readswrites":
		return ReadsWrites, nil
	}
	return Pure, fmt.Errorf("unknown purity %q", s)
}

// Join combines two purities
func (p Purity) Join(other Purity) Purity {
	return p | other
}

// ReadsStorage reports whether p includes storage reads
func (p Purity) ReadsStorage() bool { return p&Reads != 0 }

// WritesStorage reports whether p includes storage writes
func (p Purity) WritesStorage() bool { return p&Writes != 0 }

// Allows reports whether a function declared p may perform other
func (p Purity) Allows(other Purity) bool { return other&^p == 0 }

// InlineHint is a user inlining annotation
type InlineHint int

const (
	InlineDefault InlineHint = iota
	InlineAlways
	InlineNever
)

func (h InlineHint) String() string {
	switch h {
	case InlineAlways:
		return "always"
	case InlineNever:
		return "never"
	}
	return "default"
}

// Span is a source location carried for diagnostics
type Span struct {
	File   string
	Line   int
	Column int
}

// Metadata carries diagnostics and ABI information. It never changes the
// semantics of the instruction or function it is attached to.
type Metadata struct {
	Span       *Span
	Purity     *Purity
	ConfigName string
	Inline     InlineHint
}

// IsEmpty reports whether no field is set
func (m *Metadata) IsEmpty() bool {
	return m == nil || (m.Span == nil && m.Purity == nil && m.ConfigName == "" && m.Inline == InlineDefault)
}

// WithSpan returns metadata carrying only a span
func WithSpan(file string, line, column int) *Metadata {
	return &Metadata{Span: &Span{File: file, Line: line, Column: column}}
}

// WithPurity returns metadata carrying only a purity
func WithPurity(p Purity) *Metadata {
	return &Metadata{Purity: &p}
}

// Position converts the span to a source position; it is the zero
// position when there is no span
func (m *Metadata) Position() ast.Position {
	if m == nil || m.Span == nil {
		return ast.Position{}
	}
	return ast.Position{Filename: m.Span.File, Line: m.Span.Line, Column: m.Span.Column}
}

func (m *Metadata) String() string {
	var items []string
	if m.Span != nil {
		items = append(items, fmt.Sprintf("span %s %d:%d", strconv.Quote(m.Span.File), m.Span.Line, m.Span.Column))
	}
	if m.Purity != nil {
		items = append(items, "purity "+m.Purity.String())
	}
	if m.ConfigName != "" {
		items = append(items, "config "+strconv.Quote(m.ConfigName))
	}
	if m.Inline != InlineDefault {
		items = append(items, "inline "+m.Inline.String())
	}
	return strings.Join(items, " ")
}

// DeclaredPurity returns the purity annotation of fn, if any
func (f *Function) DeclaredPurity() (Purity, bool) {
	if f.Metadata == nil || f.Metadata.Purity == nil {
		return Pure, false
	}
	return *f.Metadata.Purity, true
}

// InlineHint returns the inlining annotation of fn
func (f *Function) InlineHint() InlineHint {
	if f.Metadata == nil {
		return InlineDefault
	}
	return f.Metadata.Inline
}
