package ast

import (
	"github.com/holiman/uint256"

	"contractc/internal/types"
)

type Expr interface {
	Node
	ExprType() *types.Type
	isExpr()
}

func (*LiteralExpr) isExpr()       {}
func (*IdentExpr) isExpr()         {}
func (*BinaryExpr) isExpr()        {}
func (*UnaryExpr) isExpr()         {}
func (*CallExpr) isExpr()          {}
func (*FieldAccessExpr) isExpr()   {}
func (*IndexExpr) isExpr()         {}
func (*StructLiteralExpr) isExpr() {}
func (*TupleExpr) isExpr()         {}
func (*ArrayLiteralExpr) isExpr()  {}
func (*EnumLiteralExpr) isExpr()   {}
func (*IfExpr) isExpr()            {}
func (*MatchExpr) isExpr()         {}
func (*BlockExpr) isExpr()         {}
func (*StorageReadExpr) isExpr()   {}
func (*StorageMapGetExpr) isExpr() {}
func (*ConfigRefExpr) isExpr()     {}
func (*ContractCallExpr) isExpr()  {}
func (*AsmExpr) isExpr()           {}

// LiteralExpr is a scalar literal. Int holds uint and b256 values, Str
// holds string literals.
type LiteralExpr struct {
	Typed
	Int  *uint256.Int
	Bool bool
	Str  string
}

// IdentExpr refers to a local variable or parameter
type IdentExpr struct {
	Typed
	Name string
}

// BinaryExpr covers arithmetic, bitwise, comparison and the short-circuit
// operators && and ||
type BinaryExpr struct {
	Typed
	Op    string
	Left  Expr
	Right Expr
}

// UnaryExpr is "!" (logical or bitwise not)
type UnaryExpr struct {
	Typed
	Op    string
	Value Expr
}

type CallExpr struct {
	Typed
	Callee string
	Args   []Expr
}

// FieldAccessExpr selects a struct or tuple field by resolved index
type FieldAccessExpr struct {
	Typed
	Target Expr
	Field  string
	Index  int
}

type IndexExpr struct {
	Typed
	Target Expr
	Index  Expr
}

// StructLiteralExpr lists field values in declaration order
type StructLiteralExpr struct {
	Typed
	Fields []Expr
}

type TupleExpr struct {
	Typed
	Elements []Expr
}

type ArrayLiteralExpr struct {
	Typed
	Elements []Expr
}

// EnumLiteralExpr builds a variant; a nil Payload means a unit variant
type EnumLiteralExpr struct {
	Typed
	Variant int
	Payload Expr
}

// IfExpr with a nil Else has unit type
type IfExpr struct {
	Typed
	Cond Expr
	Then *BlockExpr
	Else Expr
}

type MatchExpr struct {
	Typed
	Scrutinee Expr
	Arms      []*MatchArm
}

type MatchArm struct {
	Pos     Position
	Pattern Pattern
	Body    Expr
}

// Pattern is one of LiteralPattern, VariantPattern or WildcardPattern
type Pattern interface {
	isPattern()
}

func (*LiteralPattern) isPattern()  {}
func (*VariantPattern) isPattern()  {}
func (*WildcardPattern) isPattern() {}

type LiteralPattern struct {
	Value *LiteralExpr
}

// VariantPattern matches an enum variant and optionally binds its payload
type VariantPattern struct {
	Variant int
	Binding string
}

type WildcardPattern struct{}

// BlockExpr evaluates Stmts then Tail; a nil Tail yields unit
type BlockExpr struct {
	Typed
	Stmts []Stmt
	Tail  Expr
}

type StorageReadExpr struct {
	Typed
	Access StorageAccess
}

// StorageMapGetExpr reads a keyed collection element. Keys has one entry per
// nesting level of the collection.
type StorageMapGetExpr struct {
	Typed
	Map  StorageAccess
	Keys []Expr
}

type ConfigRefExpr struct {
	Typed
	Name string
}

// ContractCallExpr calls an ABI method of another contract
type ContractCallExpr struct {
	Typed
	Contract Expr
	Method   string
	Selector uint64
	Args     []Expr
	Coins    Expr
	AssetID  Expr
	Gas      Expr
}

// AsmExpr is an inline target assembly block
type AsmExpr struct {
	Typed
	Args      []*AsmArg
	Body      []*AsmInstruction
	ReturnReg string
}

type AsmArg struct {
	Name  string
	Value Expr
}

type AsmInstruction struct {
	Op   string
	Args []string
}
