package ir

import (
	"fmt"

	"contractc/internal/types"
)

// IR for the register VM backend. Functions are lists of basic blocks; values
// are in SSA form and control-flow merges pass values as block arguments.

// ModuleKind is the kind of compilation unit
type ModuleKind int

const (
	KindContract ModuleKind = iota
	KindScript
)

func (k ModuleKind) String() string {
	if k == KindScript {
		return "script"
	}
	return "contract"
}

// Module owns every function, the constant pool and the configurables
type Module struct {
	Kind          ModuleKind
	Types         *types.Context
	Functions     []*Function
	Configurables []*Configurable
	Constants     *ConstantPool
}

// Configurable is a per-deployment constant placed in the data section
type Configurable struct {
	Name     string
	Type     *types.Type
	Value    *Constant
	Metadata *Metadata
}

// Function represents a function in IR form. Its parameters are the
// arguments of the entry block.
type Function struct {
	Name       string
	Module     *Module
	ReturnType *types.Type
	Entry      bool // ABI method or script main; never an IR call target
	Blocks     []*Block
	Locals     []*LocalVar
	Metadata   *Metadata

	valueCounter int
	instCounter  int
	labels       map[string]int
}

// Block is a sequence of non-terminating instructions followed by exactly
// one terminator
type Block struct {
	Label        string
	Function     *Function
	Args         []*Value
	Instructions []Instruction
	Terminator   Terminator
}

// Value is the result of one instruction, a block argument, or (when Const
// is set) a pooled constant
type Value struct {
	ID    int
	Name  string
	Type  *types.Type
	Def   Instruction
	Block *Block
	Const *Constant
}

// LocalVar is a stack slot of a function
type LocalVar struct {
	Name string
	Type *types.Type
}

// Instruction is implemented by every IR operation. The set is closed:
// operandRefs is unexported.
type Instruction interface {
	GetID() int
	GetResult() *Value
	GetBlock() *Block
	IsTerminator() bool
	String() string
	GetEffects() []Effect
	GetMetadata() *Metadata
	SetMetadata(*Metadata)

	format(names Namer) string
	operandRefs() []**Value
	setBlock(*Block)
	setID(int)
}

// Terminators end basic blocks
type Terminator interface {
	Instruction
	GetSuccessors() []*Block
	targets() []*BranchTarget
}

// BranchTarget is a successor block together with its arguments
type BranchTarget struct {
	Block *Block
	Args  []*Value
}

// Namer renders values in instruction text
type Namer func(*Value) string

func defaultNamer(v *Value) string { return v.String() }

// NewModule creates an empty module
func NewModule(kind ModuleKind, ctx *types.Context) *Module {
	return &Module{
		Kind:      kind,
		Types:     ctx,
		Constants: NewConstantPool(),
	}
}

// AddFunction creates a function whose entry block carries the parameters
func (m *Module) AddFunction(name string, params []Param, ret *types.Type, entry bool) *Function {
	fn := &Function{
		Name:       name,
		Module:     m,
		ReturnType: ret,
		Entry:      entry,
		labels:     make(map[string]int),
	}
	block := fn.NewBlock("entry")
	for _, p := range params {
		block.AddArg(p.Name, p.Type)
	}
	m.Functions = append(m.Functions, fn)
	return fn
}

// Param names a function parameter
type Param struct {
	Name string
	Type *types.Type
}

// Function looks a function up by name
func (m *Module) Function(name string) *Function {
	for _, fn := range m.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// RemoveFunction drops fn from the module
func (m *Module) RemoveFunction(fn *Function) {
	for i, f := range m.Functions {
		if f == fn {
			m.Functions = append(m.Functions[:i], m.Functions[i+1:]...)
			return
		}
	}
}

// EntryFunctions returns the entry points in declaration order
func (m *Module) EntryFunctions() []*Function {
	var entries []*Function
	for _, fn := range m.Functions {
		if fn.Entry {
			entries = append(entries, fn)
		}
	}
	return entries
}

// AddConfigurable registers a configurable value
func (m *Module) AddConfigurable(name string, c *Constant) *Configurable {
	cfg := &Configurable{Name: name, Type: c.Type, Value: c}
	m.Configurables = append(m.Configurables, cfg)
	return cfg
}

// Configurable looks a configurable up by name
func (m *Module) Configurable(name string) *Configurable {
	for _, c := range m.Configurables {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// EntryBlock returns the first block
func (f *Function) EntryBlock() *Block { return f.Blocks[0] }

// Params returns the entry block arguments
func (f *Function) Params() []*Value { return f.Blocks[0].Args }

// Type returns the function's signature type
func (f *Function) Type() *types.Type {
	params := make([]*types.Type, len(f.Params()))
	for i, p := range f.Params() {
		params[i] = p.Type
	}
	return f.Module.Types.Function(params, f.ReturnType)
}

// NewBlock appends a block with a label unique within the function
func (f *Function) NewBlock(label string) *Block {
	b := &Block{Label: f.uniqueLabel(label), Function: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewBlockAfter inserts a block right after the given one
func (f *Function) NewBlockAfter(after *Block, label string) *Block {
	b := &Block{Label: f.uniqueLabel(label), Function: f}
	for i, existing := range f.Blocks {
		if existing == after {
			f.Blocks = append(f.Blocks[:i+1], append([]*Block{b}, f.Blocks[i+1:]...)...)
			return b
		}
	}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) uniqueLabel(label string) string {
	if f.labels == nil {
		f.labels = make(map[string]int)
	}
	n, used := f.labels[label]
	f.labels[label] = n + 1
	if !used {
		return label
	}
	for {
		candidate := fmt.Sprintf("%s%d", label, n)
		if _, taken := f.labels[candidate]; !taken {
			f.labels[candidate] = 1
			return candidate
		}
		n++
	}
}

// RenameBlock relabels b, keeping labels unique
func (f *Function) RenameBlock(b *Block, label string) {
	b.Label = f.uniqueLabel(label)
}

// Block looks a block up by label
func (f *Function) Block(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// RemoveBlock drops b from the function
func (f *Function) RemoveBlock(b *Block) {
	for i, existing := range f.Blocks {
		if existing == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

// NewLocal declares a stack slot with a name unique within the function
func (f *Function) NewLocal(name string, t *types.Type) *LocalVar {
	unique := name
	for i := 1; f.Local(unique) != nil; i++ {
		unique = fmt.Sprintf("%s_%d", name, i)
	}
	l := &LocalVar{Name: unique, Type: t}
	f.Locals = append(f.Locals, l)
	return l
}

// Local looks a local up by name
func (f *Function) Local(name string) *LocalVar {
	for _, l := range f.Locals {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (f *Function) newValue(t *types.Type) *Value {
	v := &Value{ID: f.valueCounter, Type: t}
	f.valueCounter++
	return v
}

func (f *Function) nextInstID() int {
	id := f.instCounter
	f.instCounter++
	return id
}

// AddArg appends a block argument
func (b *Block) AddArg(name string, t *types.Type) *Value {
	v := b.Function.newValue(t)
	v.Name = name
	v.Block = b
	b.Args = append(b.Args, v)
	return v
}

// RemoveArg drops the i-th argument; callers fix incoming branches
func (b *Block) RemoveArg(i int) {
	b.Args = append(b.Args[:i], b.Args[i+1:]...)
}

// Append adds a detached instruction to the end of b. Terminators become the
// block terminator.
func (b *Block) Append(inst Instruction) {
	if b.Terminator != nil {
		panic(fmt.Errorf("block %s already terminated", b.Label))
	}
	inst.setBlock(b)
	if r := inst.GetResult(); r != nil {
		r.Block = b
	}
	if term, ok := inst.(Terminator); ok {
		b.Terminator = term
		return
	}
	b.Instructions = append(b.Instructions, inst)
}

// InsertBefore places inst before the instruction at index i
func (b *Block) InsertBefore(i int, inst Instruction) {
	inst.setBlock(b)
	if r := inst.GetResult(); r != nil {
		r.Block = b
	}
	b.Instructions = append(b.Instructions[:i], append([]Instruction{inst}, b.Instructions[i:]...)...)
}

// Remove drops inst from the block
func (b *Block) Remove(inst Instruction) {
	for i, existing := range b.Instructions {
		if existing == inst {
			b.Instructions = append(b.Instructions[:i], b.Instructions[i+1:]...)
			return
		}
	}
}

// IndexOf returns the position of inst in the block, or -1
func (b *Block) IndexOf(inst Instruction) int {
	for i, existing := range b.Instructions {
		if existing == inst {
			return i
		}
	}
	return -1
}

// All returns the instructions followed by the terminator
func (b *Block) All() []Instruction {
	all := make([]Instruction, 0, len(b.Instructions)+1)
	all = append(all, b.Instructions...)
	if b.Terminator != nil {
		all = append(all, b.Terminator)
	}
	return all
}

// Successors returns the blocks b branches to
func (b *Block) Successors() []*Block {
	if b.Terminator == nil {
		return nil
	}
	return b.Terminator.GetSuccessors()
}

func (v *Value) String() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("v%d", v.ID)
}

// IsArg reports whether v is a block argument
func (v *Value) IsArg() bool { return v.Def == nil && v.Const == nil }

// IsConst reports whether v is a constant
func (v *Value) IsConst() bool { return v.Const != nil }

// ConstUint returns the value of a constant integer of at most 64 bits
func (v *Value) ConstUint() (uint64, bool) {
	if v.Const == nil {
		return 0, false
	}
	return v.Const.Uint64()
}
