package ir

import (
	"github.com/holiman/uint256"

	"contractc/internal/errors"
	"contractc/internal/types"
)

// Builder appends instructions to a current block of a function. A builder
// without a block creates detached instructions that the caller places with
// Block.Append.
//
// Misuse (wrong operand types, out-of-range indices) is an internal compiler
// error and panics with an *errors.InternalError value; entry points recover
// it with errors.Recover.
type Builder struct {
	fn       *Function
	block    *Block
	metadata *Metadata
}

// NewBuilder creates a builder positioned at the end of the entry block
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn, block: fn.EntryBlock()}
}

// NewDetachedBuilder creates a builder that never appends
func NewDetachedBuilder(fn *Function) *Builder {
	return &Builder{fn: fn}
}

func (b *Builder) Function() *Function { return b.fn }
func (b *Builder) Module() *Module     { return b.fn.Module }
func (b *Builder) Types() *types.Context {
	return b.fn.Module.Types
}

// Block returns the insertion block
func (b *Builder) Block() *Block { return b.block }

// SetBlock moves the insertion point to the end of block
func (b *Builder) SetBlock(block *Block) { b.block = block }

// SetMetadata attaches md to every instruction created from now on
func (b *Builder) SetMetadata(md *Metadata) { b.metadata = md }

// Terminated reports whether the insertion block already has a terminator
func (b *Builder) Terminated() bool {
	return b.block != nil && b.block.Terminator != nil
}

func (b *Builder) emit(inst Instruction, result *types.Type) Instruction {
	inst.setID(b.fn.nextInstID())
	if b.metadata != nil {
		inst.SetMetadata(b.metadata)
	}
	if result != nil {
		v := b.fn.newValue(result)
		v.Def = inst
		v.Block = b.block
		setResult(inst, v)
	}
	if b.block != nil {
		b.block.Append(inst)
	}
	return inst
}

func setResult(inst Instruction, v *Value) {
	switch i := inst.(type) {
	case *ConstInst:
		i.Result = v
		v.Const = i.Const
	case *GetLocal:
		i.Result = v
	case *GetElemPtr:
		i.Result = v
	case *Load:
		i.Result = v
	case *InsertValue:
		i.Result = v
	case *ExtractValue:
		i.Result = v
	case *BinaryOp:
		i.Result = v
	case *Cmp:
		i.Result = v
	case *Not:
		i.Result = v
	case *Call:
		i.Result = v
	case *StateLoadWord:
		i.Result = v
	case *StateLoadQuad:
		i.Result = v
	case *GetStorageKey:
		i.Result = v
	case *ContractCall:
		i.Result = v
	case *GetConfig:
		i.Result = v
	case *AsmBlock:
		i.Result = v
	case *CastPtr:
		i.Result = v
	case *PtrToInt:
		i.Result = v
	case *IntToPtr:
		i.Result = v
	case *Bitcast:
		i.Result = v
	default:
		panic(errors.Internal("%T has no result", inst))
	}
}

func (b *Builder) fail(format string, args ...any) {
	panic(errors.InternalAt(b.fn.Name, "", b.metadata.Position(), format, args...))
}

func (b *Builder) expectPointer(v *Value, what string) *types.Type {
	if v == nil || !v.Type.IsPointer() {
		b.fail("%s operand must be a pointer, got %s", what, typeName(v))
	}
	return v.Type.Elem()
}

func (b *Builder) expectType(v *Value, t *types.Type, what string) {
	if v == nil || v.Type != t {
		b.fail("%s operand must be %s, got %s", what, t, typeName(v))
	}
}

func typeName(v *Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Type.String()
}

// Constants

// Const materializes a pooled constant
func (b *Builder) Const(c *Constant) *Value {
	return b.emit(&ConstInst{Const: c}, c.Type).GetResult()
}

func (b *Builder) ConstU64(n uint64) *Value {
	return b.Const(b.Module().Constants.Uint(b.Types().U64(), n))
}

// ConstUint creates an integer constant of type t
func (b *Builder) ConstUint(t *types.Type, n uint64) *Value {
	return b.Const(b.Module().Constants.Uint(t, n))
}

// ConstWide creates an integer constant from a 256-bit value
func (b *Builder) ConstWide(t *types.Type, n *uint256.Int) *Value {
	return b.Const(b.Module().Constants.Wide(t, n))
}

func (b *Builder) ConstBool(v bool) *Value {
	return b.Const(b.Module().Constants.Bool(b.Types().Bool(), v))
}

func (b *Builder) ConstUnit() *Value {
	return b.Const(b.Module().Constants.Unit(b.Types().Unit()))
}

// ConstZero creates the zero constant of a scalar type
func (b *Builder) ConstZero(t *types.Type) *Value {
	c, err := b.Module().Constants.Zero(t)
	if err != nil {
		b.fail("%v", err)
	}
	return b.Const(c)
}

// Memory

func (b *Builder) GetLocal(l *LocalVar) *Value {
	return b.emit(&GetLocal{Local: l}, b.Types().Pointer(l.Type)).GetResult()
}

// GetElemPtr computes a pointer into the aggregate base points at
func (b *Builder) GetElemPtr(base *Value, indices ...GepIndex) *Value {
	cur := b.expectPointer(base, "get_elem_ptr")
	for _, idx := range indices {
		switch cur.Kind() {
		case types.KindStruct, types.KindUnion:
			if idx.Value != nil || idx.Const >= uint64(len(cur.Fields())) {
				b.fail("bad field index into %s", cur)
			}
			cur = cur.Field(int(idx.Const))
		case types.KindArray:
			if idx.Value == nil && idx.Const >= cur.Len() {
				b.fail("index %d out of range for %s", idx.Const, cur)
			}
			if idx.Value != nil && !idx.Value.Type.IsUintN(64) {
				b.fail("array index must be u64, got %s", idx.Value.Type)
			}
			cur = cur.Elem()
		default:
			b.fail("cannot index into %s", cur)
		}
	}
	inst := &GetElemPtr{Base: base, Indices: append([]GepIndex(nil), indices...)}
	return b.emit(inst, b.Types().Pointer(cur)).GetResult()
}

// FieldPtr is GetElemPtr with constant indices
func (b *Builder) FieldPtr(base *Value, indices ...uint64) *Value {
	gi := make([]GepIndex, len(indices))
	for i, idx := range indices {
		gi[i] = ConstIndex(idx)
	}
	return b.GetElemPtr(base, gi...)
}

func (b *Builder) Load(ptr *Value) *Value {
	elem := b.expectPointer(ptr, "load")
	return b.emit(&Load{Ptr: ptr}, elem).GetResult()
}

func (b *Builder) Store(value, ptr *Value) *Store {
	elem := b.expectPointer(ptr, "store")
	b.expectType(value, elem, "store")
	return b.emit(&Store{Value: value, Ptr: ptr}, nil).(*Store)
}

func (b *Builder) MemCopy(dst, src *Value, size uint64) *MemCopy {
	b.expectPointer(dst, "mem_copy")
	b.expectPointer(src, "mem_copy")
	return b.emit(&MemCopy{Dst: dst, Src: src, Size: size}, nil).(*MemCopy)
}

// CopyValue copies a whole value of ptr's element type from src to dst
func (b *Builder) CopyValue(dst, src *Value) *MemCopy {
	return b.MemCopy(dst, src, types.Size(b.expectPointer(src, "mem_copy")))
}

func (b *Builder) MemClear(dst *Value, size uint64) *MemClear {
	b.expectPointer(dst, "mem_clear")
	return b.emit(&MemClear{Dst: dst, Size: size}, nil).(*MemClear)
}

// Aggregates

func (b *Builder) InsertValue(agg, value *Value, indices ...uint64) *Value {
	field, _, err := types.IndexedType(agg.Type, indices)
	if err != nil {
		b.fail("insert_value: %v", err)
	}
	b.expectType(value, field, "insert_value")
	inst := &InsertValue{Agg: agg, Value: value, Indices: append([]uint64(nil), indices...)}
	return b.emit(inst, agg.Type).GetResult()
}

func (b *Builder) ExtractValue(agg *Value, indices ...uint64) *Value {
	field, _, err := types.IndexedType(agg.Type, indices)
	if err != nil {
		b.fail("extract_value: %v", err)
	}
	inst := &ExtractValue{Agg: agg, Indices: append([]uint64(nil), indices...)}
	return b.emit(inst, field).GetResult()
}

// InitAggr initializes every field of the struct or array at ptr. A union
// field accepts a value of any of its variants.
func (b *Builder) InitAggr(ptr *Value, fields []*Value) *InitAggr {
	t := b.expectPointer(ptr, "init_aggr")
	expected := AggregateFields(t)
	if expected == nil || len(expected) != len(fields) {
		b.fail("init_aggr of %s with %d fields", t, len(fields))
	}
	for i, f := range fields {
		if !FieldAccepts(expected[i], f.Type) {
			b.fail("init_aggr field %d: expected %s, got %s", i, expected[i], f.Type)
		}
	}
	return b.emit(&InitAggr{Ptr: ptr, Fields: append([]*Value(nil), fields...)}, nil).(*InitAggr)
}

// AggregateFields returns the direct field types of a struct or array
func AggregateFields(t *types.Type) []*types.Type {
	switch t.Kind() {
	case types.KindStruct:
		return t.Fields()
	case types.KindArray:
		fields := make([]*types.Type, t.Len())
		for i := range fields {
			fields[i] = t.Elem()
		}
		return fields
	}
	return nil
}

// FieldAccepts reports whether a value of type got may initialize a field
// of type field
func FieldAccepts(field, got *types.Type) bool {
	if field == got {
		return true
	}
	if field.IsUnion() {
		for _, v := range field.Fields() {
			if v == got {
				return true
			}
		}
	}
	return false
}

// Arithmetic

func (b *Builder) Binary(op BinaryOpKind, left, right *Value) *Value {
	if !left.Type.IsUint() && !(left.Type.IsBool() && (op == OpAnd || op == OpOr || op == OpXor)) && !(left.Type.IsB256() && op >= OpAnd) {
		b.fail("%s on %s", op, left.Type)
	}
	if op == OpShl || op == OpShr {
		if !right.Type.IsUint() {
			b.fail("%s amount must be an integer, got %s", op, right.Type)
		}
	} else {
		b.expectType(right, left.Type, op.String())
	}
	return b.emit(&BinaryOp{Op: op, Left: left, Right: right}, left.Type).GetResult()
}

func (b *Builder) Add(l, r *Value) *Value { return b.Binary(OpAdd, l, r) }
func (b *Builder) Sub(l, r *Value) *Value { return b.Binary(OpSub, l, r) }
func (b *Builder) Mul(l, r *Value) *Value { return b.Binary(OpMul, l, r) }

func (b *Builder) Cmp(pred Predicate, left, right *Value) *Value {
	b.expectType(right, left.Type, "cmp")
	if !left.Type.IsWordScalar() && !left.Type.IsUintN(256) && !left.Type.IsB256() {
		b.fail("cmp on %s", left.Type)
	}
	if (left.Type.IsBool() || left.Type.IsB256()) && pred != PredEq && pred != PredNe {
		b.fail("cmp %s on %s", pred, left.Type)
	}
	return b.emit(&Cmp{Pred: pred, Left: left, Right: right}, b.Types().Bool()).GetResult()
}

func (b *Builder) Not(v *Value) *Value {
	if !v.Type.IsBool() && !v.Type.IsUint() && !v.Type.IsB256() {
		b.fail("not on %s", v.Type)
	}
	return b.emit(&Not{Value: v}, v.Type).GetResult()
}

// Control

func (b *Builder) Call(callee *Function, args ...*Value) *Value {
	if callee.Entry {
		b.fail("call to entry function %s", callee.Name)
	}
	params := callee.Params()
	if len(params) != len(args) {
		b.fail("call %s: expected %d arguments, got %d", callee.Name, len(params), len(args))
	}
	for i, a := range args {
		b.expectType(a, params[i].Type, "call "+callee.Name)
	}
	inst := &Call{Callee: callee, Args: append([]*Value(nil), args...)}
	return b.emit(inst, callee.ReturnType).GetResult()
}

func (b *Builder) checkTarget(target *Block, args []*Value) {
	if len(target.Args) != len(args) {
		b.fail("branch to %s: expected %d arguments, got %d", target.Label, len(target.Args), len(args))
	}
	for i, a := range args {
		b.expectType(a, target.Args[i].Type, "branch to "+target.Label)
	}
}

func (b *Builder) Br(target *Block, args ...*Value) *Br {
	b.checkTarget(target, args)
	inst := &Br{Target: BranchTarget{Block: target, Args: append([]*Value(nil), args...)}}
	return b.emit(inst, nil).(*Br)
}

// Cbr branches on a bool. Arguments are passed to the respective target.
func (b *Builder) Cbr(cond *Value, t *Block, targs []*Value, f *Block, fargs []*Value) *Cbr {
	b.expectType(cond, b.Types().Bool(), "cbr")
	b.checkTarget(t, targs)
	b.checkTarget(f, fargs)
	inst := &Cbr{
		Cond:  cond,
		True:  BranchTarget{Block: t, Args: append([]*Value(nil), targs...)},
		False: BranchTarget{Block: f, Args: append([]*Value(nil), fargs...)},
	}
	return b.emit(inst, nil).(*Cbr)
}

func (b *Builder) Ret(v *Value) *Ret {
	b.expectType(v, b.fn.ReturnType, "ret")
	return b.emit(&Ret{Type: v.Type, Value: v}, nil).(*Ret)
}

func (b *Builder) Revert(code *Value) *Revert {
	b.expectType(code, b.Types().U64(), "revert")
	return b.emit(&Revert{Code: code}, nil).(*Revert)
}

// Contract

func (b *Builder) expectKey(key *Value, what string) {
	if b.expectPointer(key, what) != b.Types().B256() {
		b.fail("%s key must be ptr b256, got %s", what, key.Type)
	}
}

func (b *Builder) StateLoadWord(key *Value) *Value {
	b.expectKey(key, "state_load_word")
	return b.emit(&StateLoadWord{Key: key}, b.Types().U64()).GetResult()
}

func (b *Builder) StateLoadQuad(key, dst, count *Value) *Value {
	b.expectKey(key, "state_load_quad")
	b.expectPointer(dst, "state_load_quad")
	b.expectType(count, b.Types().U64(), "state_load_quad")
	return b.emit(&StateLoadQuad{Key: key, Dst: dst, Count: count}, b.Types().Bool()).GetResult()
}

func (b *Builder) StateStoreWord(value, key *Value) *StateStoreWord {
	b.expectKey(key, "state_store_word")
	b.expectType(value, b.Types().U64(), "state_store_word")
	return b.emit(&StateStoreWord{Value: value, Key: key}, nil).(*StateStoreWord)
}

func (b *Builder) StateStoreQuad(key, src, count *Value) *StateStoreQuad {
	b.expectKey(key, "state_store_quad")
	b.expectPointer(src, "state_store_quad")
	b.expectType(count, b.Types().U64(), "state_store_quad")
	return b.emit(&StateStoreQuad{Key: key, Src: src, Count: count}, nil).(*StateStoreQuad)
}

func (b *Builder) StateClear(key, count *Value) *StateClear {
	b.expectKey(key, "state_clear")
	b.expectType(count, b.Types().U64(), "state_clear")
	return b.emit(&StateClear{Key: key, Count: count}, nil).(*StateClear)
}

// GetStorageKey yields a pointer to the key of the storage variable at path
func (b *Builder) GetStorageKey(path string, slot uint64) *Value {
	inst := &GetStorageKey{Path: path, Slot: slot}
	return b.emit(inst, b.Types().Pointer(b.Types().B256())).GetResult()
}

// ContractCall calls method name of another contract. params points at the
// encoded call frame.
func (b *Builder) ContractCall(ret *types.Type, name string, params, coins, assetID, gas *Value) *Value {
	b.expectPointer(params, "contract_call")
	b.expectType(coins, b.Types().U64(), "contract_call coins")
	if b.expectPointer(assetID, "contract_call asset") != b.Types().B256() {
		b.fail("contract_call asset must be ptr b256")
	}
	b.expectType(gas, b.Types().U64(), "contract_call gas")
	inst := &ContractCall{Name: name, Params: params, Coins: coins, AssetID: assetID, Gas: gas}
	return b.emit(inst, ret).GetResult()
}

func (b *Builder) Log(value, logID *Value) *Log {
	b.expectType(logID, b.Types().U64(), "log")
	return b.emit(&Log{Value: value, LogID: logID}, nil).(*Log)
}

func (b *Builder) Smo(recipient, message, length, coins *Value) *Smo {
	if b.expectPointer(recipient, "smo") != b.Types().B256() {
		b.fail("smo recipient must be ptr b256")
	}
	b.expectPointer(message, "smo")
	b.expectType(length, b.Types().U64(), "smo")
	b.expectType(coins, b.Types().U64(), "smo")
	inst := &Smo{Recipient: recipient, Message: message, Length: length, Coins: coins}
	return b.emit(inst, nil).(*Smo)
}

func (b *Builder) GetConfig(cfg *Configurable) *Value {
	return b.emit(&GetConfig{Config: cfg}, b.Types().Pointer(cfg.Type)).GetResult()
}

// Asm emits an inline assembly block whose value is register ret, or unit
// when ret is empty
func (b *Builder) Asm(args []AsmArg, body []AsmOp, ret string, t *types.Type) *Value {
	if ret == "" && !t.IsUnit() {
		b.fail("asm block of type %s needs a return register", t)
	}
	inst := &AsmBlock{
		Args:      append([]AsmArg(nil), args...),
		Body:      append([]AsmOp(nil), body...),
		ReturnReg: ret,
	}
	return b.emit(inst, t).GetResult()
}

// Conversions

func (b *Builder) CastPtr(v *Value, to *types.Type) *Value {
	b.expectPointer(v, "cast_ptr")
	if !to.IsPointer() {
		b.fail("cast_ptr to %s", to)
	}
	return b.emit(&CastPtr{Value: v}, to).GetResult()
}

func (b *Builder) PtrToInt(v *Value, to *types.Type) *Value {
	if !v.Type.IsPointer() && !v.Type.IsRawPtr() {
		b.fail("ptr_to_int of %s", v.Type)
	}
	if !to.IsUintN(64) {
		b.fail("ptr_to_int to %s", to)
	}
	return b.emit(&PtrToInt{Value: v}, to).GetResult()
}

func (b *Builder) IntToPtr(v *Value, to *types.Type) *Value {
	b.expectType(v, b.Types().U64(), "int_to_ptr")
	if !to.IsPointer() && !to.IsRawPtr() {
		b.fail("int_to_ptr to %s", to)
	}
	return b.emit(&IntToPtr{Value: v}, to).GetResult()
}

// Bitcast reinterprets a word-sized scalar as another word-sized scalar
func (b *Builder) Bitcast(v *Value, to *types.Type) *Value {
	if !v.Type.IsWordScalar() || !to.IsWordScalar() {
		b.fail("bitcast from %s to %s", v.Type, to)
	}
	return b.emit(&Bitcast{Value: v}, to).GetResult()
}
