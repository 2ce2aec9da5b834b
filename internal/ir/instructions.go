package ir

import (
	"fmt"
	"strconv"
	"strings"

	"contractc/internal/types"
)

type instBase struct {
	ID       int
	Block    *Block
	Result   *Value
	Metadata *Metadata
}

func (i *instBase) GetID() int              { return i.ID }
func (i *instBase) GetResult() *Value       { return i.Result }
func (i *instBase) GetBlock() *Block        { return i.Block }
func (i *instBase) IsTerminator() bool      { return false }
func (i *instBase) GetMetadata() *Metadata  { return i.Metadata }
func (i *instBase) SetMetadata(m *Metadata) { i.Metadata = m }
func (i *instBase) setBlock(b *Block)       { i.Block = b }
func (i *instBase) setID(id int)            { i.ID = id }

// Memory

type ConstInst struct {
	instBase
	Const *Constant
}

type GetLocal struct {
	instBase
	Local *LocalVar
}

// GepIndex is a constant index or, for arrays, a dynamic one
type GepIndex struct {
	Const uint64
	Value *Value
}

// ConstIndex returns a constant GepIndex
func ConstIndex(i uint64) GepIndex { return GepIndex{Const: i} }

// ValueIndex returns a dynamic GepIndex
func ValueIndex(v *Value) GepIndex { return GepIndex{Value: v} }

type GetElemPtr struct {
	instBase
	Base    *Value
	Indices []GepIndex
}

type Load struct {
	instBase
	Ptr *Value
}

type Store struct {
	instBase
	Value *Value
	Ptr   *Value
}

type MemCopy struct {
	instBase
	Dst  *Value
	Src  *Value
	Size uint64
}

type MemClear struct {
	instBase
	Dst  *Value
	Size uint64
}

// Aggregates

type InsertValue struct {
	instBase
	Agg     *Value
	Value   *Value
	Indices []uint64
}

type ExtractValue struct {
	instBase
	Agg     *Value
	Indices []uint64
}

// InitAggr writes every field of the aggregate at Ptr. It exists only until
// aggregate lowering runs.
type InitAggr struct {
	instBase
	Ptr    *Value
	Fields []*Value
}

// Arithmetic

type BinaryOpKind int

const (
	OpAdd BinaryOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
)

var binaryOpNames = []string{"add", "sub", "mul", "div", "mod", "and", "or", "xor", "shl", "shr"}

func (k BinaryOpKind) String() string { return binaryOpNames[k] }

// ParseBinaryOp maps an opcode name to its kind
func ParseBinaryOp(name string) (BinaryOpKind, bool) {
	for i, n := range binaryOpNames {
		if n == name {
			return BinaryOpKind(i), true
		}
	}
	return 0, false
}

// MayTrap reports whether the operation can revert at run time
func (k BinaryOpKind) MayTrap() bool {
	switch k {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpShl:
		return true
	}
	return false
}

type BinaryOp struct {
	instBase
	Op    BinaryOpKind
	Left  *Value
	Right *Value
}

type Predicate int

const (
	PredEq Predicate = iota
	PredNe
	PredLt
	PredGt
	PredLe
	PredGe
)

var predicateNames = []string{"eq", "ne", "lt", "gt", "le", "ge"}

func (p Predicate) String() string { return predicateNames[p] }

// ParsePredicate maps a predicate name to its kind
func ParsePredicate(name string) (Predicate, bool) {
	for i, n := range predicateNames {
		if n == name {
			return Predicate(i), true
		}
	}
	return 0, false
}

type Cmp struct {
	instBase
	Pred  Predicate
	Left  *Value
	Right *Value
}

// Not is logical not on bool and bitwise not on integers
type Not struct {
	instBase
	Value *Value
}

// Control

type Call struct {
	instBase
	Callee *Function
	Args   []*Value
}

type Br struct {
	instBase
	Target BranchTarget
}

type Cbr struct {
	instBase
	Cond  *Value
	True  BranchTarget
	False BranchTarget
}

type Ret struct {
	instBase
	Type  *types.Type
	Value *Value
}

type Revert struct {
	instBase
	Code *Value
}

// Contract

type StateLoadWord struct {
	instBase
	Key *Value
}

// StateLoadQuad reads Count consecutive slots starting at Key into Dst and
// yields whether every slot was set
type StateLoadQuad struct {
	instBase
	Key   *Value
	Dst   *Value
	Count *Value
}

type StateStoreWord struct {
	instBase
	Value *Value
	Key   *Value
}

type StateStoreQuad struct {
	instBase
	Key   *Value
	Src   *Value
	Count *Value
}

type StateClear struct {
	instBase
	Key   *Value
	Count *Value
}

// GetStorageKey yields a pointer to the key of a storage variable, Slot
// slots past its base key
type GetStorageKey struct {
	instBase
	Path string
	Slot uint64
}

type ContractCall struct {
	instBase
	Name    string
	Params  *Value
	Coins   *Value
	AssetID *Value
	Gas     *Value
}

type Log struct {
	instBase
	Value *Value
	LogID *Value
}

type Smo struct {
	instBase
	Recipient *Value
	Message   *Value
	Length    *Value
	Coins     *Value
}

type GetConfig struct {
	instBase
	Config *Configurable
}

// AsmArg binds an asm register name to an optional initializing value
type AsmArg struct {
	Name  string
	Value *Value
}

// AsmOp is one target instruction inside an asm block. Args are register
// names ($-prefixed VM registers or asm-local names) or integer immediates.
type AsmOp struct {
	Name string
	Args []string
}

type AsmBlock struct {
	instBase
	Args      []AsmArg
	Body      []AsmOp
	ReturnReg string
}

// Conversions

type CastPtr struct {
	instBase
	Value *Value
}

type PtrToInt struct {
	instBase
	Value *Value
}

type IntToPtr struct {
	instBase
	Value *Value
}

type Bitcast struct {
	instBase
	Value *Value
}

// Terminator interface

func (*Br) IsTerminator() bool     { return true }
func (*Cbr) IsTerminator() bool    { return true }
func (*Ret) IsTerminator() bool    { return true }
func (*Revert) IsTerminator() bool { return true }

func (b *Br) GetSuccessors() []*Block { return []*Block{b.Target.Block} }
func (c *Cbr) GetSuccessors() []*Block {
	if c.True.Block == c.False.Block {
		return []*Block{c.True.Block}
	}
	return []*Block{c.True.Block, c.False.Block}
}
func (*Ret) GetSuccessors() []*Block    { return nil }
func (*Revert) GetSuccessors() []*Block { return nil }

func (b *Br) targets() []*BranchTarget   { return []*BranchTarget{&b.Target} }
func (c *Cbr) targets() []*BranchTarget  { return []*BranchTarget{&c.True, &c.False} }
func (*Ret) targets() []*BranchTarget    { return nil }
func (*Revert) targets() []*BranchTarget { return nil }

// Targets exposes the branch targets of a terminator for rewriting
func Targets(t Terminator) []*BranchTarget { return t.targets() }

// Operands

func (*ConstInst) operandRefs() []**Value  { return nil }
func (*GetLocal) operandRefs() []**Value   { return nil }
func (g *GetElemPtr) operandRefs() []**Value {
	refs := []**Value{&g.Base}
	for k := range g.Indices {
		if g.Indices[k].Value != nil {
			refs = append(refs, &g.Indices[k].Value)
		}
	}
	return refs
}
func (l *Load) operandRefs() []**Value          { return []**Value{&l.Ptr} }
func (s *Store) operandRefs() []**Value         { return []**Value{&s.Value, &s.Ptr} }
func (m *MemCopy) operandRefs() []**Value       { return []**Value{&m.Dst, &m.Src} }
func (m *MemClear) operandRefs() []**Value      { return []**Value{&m.Dst} }
func (i *InsertValue) operandRefs() []**Value   { return []**Value{&i.Agg, &i.Value} }
func (e *ExtractValue) operandRefs() []**Value  { return []**Value{&e.Agg} }
func (i *InitAggr) operandRefs() []**Value      { return append([]**Value{&i.Ptr}, refsOf(i.Fields)...) }
func (b *BinaryOp) operandRefs() []**Value      { return []**Value{&b.Left, &b.Right} }
func (c *Cmp) operandRefs() []**Value           { return []**Value{&c.Left, &c.Right} }
func (n *Not) operandRefs() []**Value           { return []**Value{&n.Value} }
func (c *Call) operandRefs() []**Value          { return refsOf(c.Args) }
func (b *Br) operandRefs() []**Value            { return refsOf(b.Target.Args) }
func (c *Cbr) operandRefs() []**Value           { return append(append([]**Value{&c.Cond}, refsOf(c.True.Args)...), refsOf(c.False.Args)...) }
func (r *Ret) operandRefs() []**Value           { return []**Value{&r.Value} }
func (r *Revert) operandRefs() []**Value        { return []**Value{&r.Code} }
func (s *StateLoadWord) operandRefs() []**Value { return []**Value{&s.Key} }
func (s *StateLoadQuad) operandRefs() []**Value { return []**Value{&s.Key, &s.Dst, &s.Count} }
func (s *StateStoreWord) operandRefs() []**Value {
	return []**Value{&s.Value, &s.Key}
}
func (s *StateStoreQuad) operandRefs() []**Value { return []**Value{&s.Key, &s.Src, &s.Count} }
func (s *StateClear) operandRefs() []**Value     { return []**Value{&s.Key, &s.Count} }
func (*GetStorageKey) operandRefs() []**Value    { return nil }
func (c *ContractCall) operandRefs() []**Value {
	return []**Value{&c.Params, &c.Coins, &c.AssetID, &c.Gas}
}
func (l *Log) operandRefs() []**Value { return []**Value{&l.Value, &l.LogID} }
func (s *Smo) operandRefs() []**Value {
	return []**Value{&s.Recipient, &s.Message, &s.Length, &s.Coins}
}
func (*GetConfig) operandRefs() []**Value { return nil }
func (a *AsmBlock) operandRefs() []**Value {
	var refs []**Value
	for k := range a.Args {
		if a.Args[k].Value != nil {
			refs = append(refs, &a.Args[k].Value)
		}
	}
	return refs
}
func (c *CastPtr) operandRefs() []**Value  { return []**Value{&c.Value} }
func (p *PtrToInt) operandRefs() []**Value { return []**Value{&p.Value} }
func (i *IntToPtr) operandRefs() []**Value { return []**Value{&i.Value} }
func (b *Bitcast) operandRefs() []**Value  { return []**Value{&b.Value} }

func refsOf(values []*Value) []**Value {
	refs := make([]**Value, len(values))
	for k := range values {
		refs[k] = &values[k]
	}
	return refs
}

// Operands returns the values an instruction reads
func Operands(inst Instruction) []*Value {
	refs := inst.operandRefs()
	ops := make([]*Value, 0, len(refs))
	for _, r := range refs {
		if *r != nil {
			ops = append(ops, *r)
		}
	}
	return ops
}

// ReplaceOperand rewrites every use of old in inst to use new
func ReplaceOperand(inst Instruction, old, new *Value) bool {
	replaced := false
	for _, r := range inst.operandRefs() {
		if *r == old {
			*r = new
			replaced = true
		}
	}
	return replaced
}

// Text

func (i *ConstInst) String() string      { return i.format(defaultNamer) }
func (i *GetLocal) String() string       { return i.format(defaultNamer) }
func (i *GetElemPtr) String() string     { return i.format(defaultNamer) }
func (i *Load) String() string           { return i.format(defaultNamer) }
func (i *Store) String() string          { return i.format(defaultNamer) }
func (i *MemCopy) String() string        { return i.format(defaultNamer) }
func (i *MemClear) String() string       { return i.format(defaultNamer) }
func (i *InsertValue) String() string    { return i.format(defaultNamer) }
func (i *ExtractValue) String() string   { return i.format(defaultNamer) }
func (i *InitAggr) String() string       { return i.format(defaultNamer) }
func (i *BinaryOp) String() string       { return i.format(defaultNamer) }
func (i *Cmp) String() string            { return i.format(defaultNamer) }
func (i *Not) String() string            { return i.format(defaultNamer) }
func (i *Call) String() string           { return i.format(defaultNamer) }
func (i *Br) String() string             { return i.format(defaultNamer) }
func (i *Cbr) String() string            { return i.format(defaultNamer) }
func (i *Ret) String() string            { return i.format(defaultNamer) }
func (i *Revert) String() string         { return i.format(defaultNamer) }
func (i *StateLoadWord) String() string  { return i.format(defaultNamer) }
func (i *StateLoadQuad) String() string  { return i.format(defaultNamer) }
func (i *StateStoreWord) String() string { return i.format(defaultNamer) }
func (i *StateStoreQuad) String() string { return i.format(defaultNamer) }
func (i *StateClear) String() string     { return i.format(defaultNamer) }
func (i *GetStorageKey) String() string  { return i.format(defaultNamer) }
func (i *ContractCall) String() string   { return i.format(defaultNamer) }
func (i *Log) String() string            { return i.format(defaultNamer) }
func (i *Smo) String() string            { return i.format(defaultNamer) }
func (i *GetConfig) String() string      { return i.format(defaultNamer) }
func (i *AsmBlock) String() string       { return i.format(defaultNamer) }
func (i *CastPtr) String() string        { return i.format(defaultNamer) }
func (i *PtrToInt) String() string       { return i.format(defaultNamer) }
func (i *IntToPtr) String() string       { return i.format(defaultNamer) }
func (i *Bitcast) String() string        { return i.format(defaultNamer) }

func withResult(n Namer, result *Value, body string) string {
	if result == nil {
		return body
	}
	return n(result) + " = " + body
}

func joinValues(n Namer, values []*Value) string {
	parts := make([]string, len(values))
	for k, v := range values {
		parts[k] = n(v)
	}
	return strings.Join(parts, ", ")
}

func formatTarget(n Namer, t BranchTarget) string {
	return t.Block.Label + "(" + joinValues(n, t.Args) + ")"
}

func formatIndices(indices []uint64) string {
	parts := make([]string, len(indices))
	for k, idx := range indices {
		parts[k] = strconv.FormatUint(idx, 10)
	}
	return strings.Join(parts, ", ")
}

func (i *ConstInst) format(n Namer) string {
	return withResult(n, i.Result, "const "+i.Const.String())
}

func (i *GetLocal) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("get_local %s, %s", i.Result.Type, i.Local.Name))
}

func (i *GetElemPtr) format(n Namer) string {
	parts := make([]string, len(i.Indices))
	for k, idx := range i.Indices {
		if idx.Value != nil {
			parts[k] = n(idx.Value)
		} else {
			parts[k] = strconv.FormatUint(idx.Const, 10)
		}
	}
	return withResult(n, i.Result, fmt.Sprintf("get_elem_ptr %s, %s, %s", n(i.Base), i.Result.Type, strings.Join(parts, ", ")))
}

func (i *Load) format(n Namer) string {
	return withResult(n, i.Result, "load "+n(i.Ptr))
}

func (i *Store) format(n Namer) string {
	return fmt.Sprintf("store %s to %s", n(i.Value), n(i.Ptr))
}

func (i *MemCopy) format(n Namer) string {
	return fmt.Sprintf("mem_copy %s, %s, %d", n(i.Dst), n(i.Src), i.Size)
}

func (i *MemClear) format(n Namer) string {
	return fmt.Sprintf("mem_clear %s, %d", n(i.Dst), i.Size)
}

func (i *InsertValue) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("insert_value %s, %s, %s", n(i.Agg), n(i.Value), formatIndices(i.Indices)))
}

func (i *ExtractValue) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("extract_value %s, %s", n(i.Agg), formatIndices(i.Indices)))
}

func (i *InitAggr) format(n Namer) string {
	return fmt.Sprintf("init_aggr %s [%s]", n(i.Ptr), joinValues(n, i.Fields))
}

func (i *BinaryOp) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("%s %s, %s", i.Op, n(i.Left), n(i.Right)))
}

func (i *Cmp) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("cmp %s %s, %s", i.Pred, n(i.Left), n(i.Right)))
}

func (i *Not) format(n Namer) string {
	return withResult(n, i.Result, "not "+n(i.Value))
}

func (i *Call) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("call %s(%s)", i.Callee.Name, joinValues(n, i.Args)))
}

func (i *Br) format(n Namer) string {
	return "br " + formatTarget(n, i.Target)
}

func (i *Cbr) format(n Namer) string {
	return fmt.Sprintf("cbr %s, %s, %s", n(i.Cond), formatTarget(n, i.True), formatTarget(n, i.False))
}

func (i *Ret) format(n Namer) string {
	return fmt.Sprintf("ret %s %s", i.Type, n(i.Value))
}

func (i *Revert) format(n Namer) string {
	return "revert " + n(i.Code)
}

func (i *StateLoadWord) format(n Namer) string {
	return withResult(n, i.Result, "state_load_word "+n(i.Key))
}

func (i *StateLoadQuad) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("state_load_quad %s, %s, %s", n(i.Key), n(i.Dst), n(i.Count)))
}

func (i *StateStoreWord) format(n Namer) string {
	return fmt.Sprintf("state_store_word %s, %s", n(i.Value), n(i.Key))
}

func (i *StateStoreQuad) format(n Namer) string {
	return fmt.Sprintf("state_store_quad %s, %s, %s", n(i.Key), n(i.Src), n(i.Count))
}

func (i *StateClear) format(n Namer) string {
	return fmt.Sprintf("state_clear %s, %s", n(i.Key), n(i.Count))
}

func (i *GetStorageKey) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("get_storage_key %s, %d", strconv.Quote(i.Path), i.Slot))
}

func (i *ContractCall) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("contract_call %s %s %s, %s, %s, %s",
		i.Result.Type, i.Name, n(i.Params), n(i.Coins), n(i.AssetID), n(i.Gas)))
}

func (i *Log) format(n Namer) string {
	return fmt.Sprintf("log %s %s, %s", i.Value.Type, n(i.Value), n(i.LogID))
}

func (i *Smo) format(n Namer) string {
	return fmt.Sprintf("smo %s, %s, %s, %s", n(i.Recipient), n(i.Message), n(i.Length), n(i.Coins))
}

func (i *GetConfig) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("get_config %s, %s", i.Result.Type, i.Config.Name))
}

func (i *AsmBlock) format(n Namer) string {
	args := make([]string, len(i.Args))
	for k, a := range i.Args {
		if a.Value != nil {
			args[k] = a.Name + ": " + n(a.Value)
		} else {
			args[k] = a.Name
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "asm(%s) -> %s", strings.Join(args, ", "), i.Result.Type)
	if i.ReturnReg != "" {
		sb.WriteString(" " + i.ReturnReg)
	}
	sb.WriteString(" {")
	for _, op := range i.Body {
		sb.WriteString(" " + op.Name)
		for _, a := range op.Args {
			sb.WriteString(" " + a)
		}
		sb.WriteString(";")
	}
	sb.WriteString(" }")
	return withResult(n, i.Result, sb.String())
}

func (i *CastPtr) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("cast_ptr %s to %s", n(i.Value), i.Result.Type))
}

func (i *PtrToInt) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("ptr_to_int %s to %s", n(i.Value), i.Result.Type))
}

func (i *IntToPtr) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("int_to_ptr %s to %s", n(i.Value), i.Result.Type))
}

func (i *Bitcast) format(n Namer) string {
	return withResult(n, i.Result, fmt.Sprintf("bitcast %s to %s", n(i.Value), i.Result.Type))
}
