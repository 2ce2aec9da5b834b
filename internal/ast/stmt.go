package ast

type Stmt interface {
	Node
	isStmt()
}

func (*LetStmt) isStmt()              {}
func (*AssignStmt) isStmt()           {}
func (*ExprStmt) isStmt()             {}
func (*ReturnStmt) isStmt()           {}
func (*WhileStmt) isStmt()            {}
func (*BreakStmt) isStmt()            {}
func (*ContinueStmt) isStmt()         {}
func (*AssertStmt) isStmt()           {}
func (*RevertStmt) isStmt()           {}
func (*StorageWriteStmt) isStmt()     {}
func (*StorageMapInsertStmt) isStmt() {}
func (*StorageMapRemoveStmt) isStmt() {}
func (*LogStmt) isStmt()              {}
func (*SmoStmt) isStmt()              {}

type LetStmt struct {
	StmtPos
	Name  string
	Value Expr
}

// AssignStmt writes to a place: an IdentExpr optionally wrapped in field
// accesses and array indexing
type AssignStmt struct {
	StmtPos
	Target Expr
	Value  Expr
}

type ExprStmt struct {
	StmtPos
	Expr Expr
}

// ReturnStmt with a nil Value returns unit
type ReturnStmt struct {
	StmtPos
	Value Expr
}

type WhileStmt struct {
	StmtPos
	Cond Expr
	Body *BlockExpr
}

type BreakStmt struct {
	StmtPos
}

type ContinueStmt struct {
	StmtPos
}

type AssertStmt struct {
	StmtPos
	Cond Expr
}

type RevertStmt struct {
	StmtPos
	Code Expr
}

type StorageWriteStmt struct {
	StmtPos
	Access StorageAccess
	Value  Expr
}

type StorageMapInsertStmt struct {
	StmtPos
	Map   StorageAccess
	Keys  []Expr
	Value Expr
}

type StorageMapRemoveStmt struct {
	StmtPos
	Map  StorageAccess
	Keys []Expr
}

// LogStmt emits a log record tagged with LogID
type LogStmt struct {
	StmtPos
	Value Expr
	LogID uint64
}

// SmoStmt sends a message with coins to a recipient
type SmoStmt struct {
	StmtPos
	Recipient Expr
	Message   Expr
	Coins     Expr
}
