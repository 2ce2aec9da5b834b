package ast

// ModuleKind is the kind of compilation unit
type ModuleKind int

const (
	Contract ModuleKind = iota
	Script
)

func (k ModuleKind) String() string {
	if k == Script {
		return "script"
	}
	return "contract"
}

// Purity is the declared storage access of a function
type Purity int

const (
	Pure Purity = iota
	Reads
	Writes
	ReadsWrites
)

// InlineHint is the user inlining annotation of a function
type InlineHint int

const (
	InlineDefault InlineHint = iota
	InlineAlways
	InlineNever
)
