package irgen

import (
	"contractc/internal/ast"
	"contractc/internal/ir"
	"contractc/internal/types"
)

var binaryOps = map[string]ir.BinaryOpKind{
	"+":  ir.OpAdd,
	"-":  ir.OpSub,
	"*":  ir.OpMul,
	"/":  ir.OpDiv,
	"%":  ir.OpMod,
	"&":  ir.OpAnd,
	"|":  ir.OpOr,
	"^":  ir.OpXor,
	"<<": ir.OpShl,
	">>": ir.OpShr,
}

var comparisons = map[string]ir.Predicate{
	"==": ir.PredEq,
	"!=": ir.PredNe,
	"<":  ir.PredLt,
	">":  ir.PredGt,
	"<=": ir.PredLe,
	">=": ir.PredGe,
}

// expr lowers e and returns its value, or nil when evaluating e never
// completes (it returned, broke out of a loop or reverted)
func (f *funcGen) expr(e ast.Expr) *ir.Value {
	if f.diverged() {
		return nil
	}
	switch e := e.(type) {
	case *ast.LiteralExpr:
		return f.b.Const(f.constant(f.exprType(e), e))

	case *ast.IdentExpr:
		return f.b.Load(f.lookup(e.Name, e.Pos))

	case *ast.BinaryExpr:
		return f.binary(e)

	case *ast.UnaryExpr:
		v := f.expr(e.Value)
		if v == nil {
			return nil
		}
		if e.Op != "!" {
			f.ice(e.Pos, "unknown unary operator %s", e.Op)
		}
		return f.b.Not(v)

	case *ast.CallExpr:
		return f.call(e)

	case *ast.FieldAccessExpr:
		if isPlace(e.Target) {
			ptr := f.place(e)
			if ptr == nil {
				return nil
			}
			return f.b.Load(ptr)
		}
		agg := f.expr(e.Target)
		if agg == nil {
			return nil
		}
		f.checkField(e)
		return f.b.ExtractValue(agg, uint64(e.Index))

	case *ast.IndexExpr:
		if isPlace(e.Target) {
			ptr := f.place(e)
			if ptr == nil {
				return nil
			}
			return f.b.Load(ptr)
		}
		arr := f.expr(e.Target)
		if arr == nil {
			return nil
		}
		slot := f.temp(arr.Type)
		f.b.Store(arr, slot)
		idx := f.expr(e.Index)
		if idx == nil {
			return nil
		}
		return f.b.Load(f.b.GetElemPtr(slot, ir.ValueIndex(idx)))

	case *ast.StructLiteralExpr:
		return f.aggregate(f.exprType(e), e.Fields)

	case *ast.TupleExpr:
		return f.aggregate(f.exprType(e), e.Elements)

	case *ast.ArrayLiteralExpr:
		return f.aggregate(f.exprType(e), e.Elements)

	case *ast.EnumLiteralExpr:
		return f.enumLiteral(e)

	case *ast.IfExpr:
		return f.ifExpr(e)

	case *ast.MatchExpr:
		return f.match(e)

	case *ast.BlockExpr:
		return f.blockExpr(e)

	case *ast.StorageReadExpr:
		return f.storageRead(e)

	case *ast.StorageMapGetExpr:
		return f.storageMapGet(e)

	case *ast.ConfigRefExpr:
		cfg := f.module.Configurable(e.Name)
		if cfg == nil {
			f.ice(e.Pos, "unknown configurable %s", e.Name)
		}
		return f.b.Load(f.b.GetConfig(cfg))

	case *ast.ContractCallExpr:
		return f.contractCall(e)

	case *ast.AsmExpr:
		return f.asm(e)
	}
	f.ice(e.NodePos(), "unsupported expression %T", e)
	return nil
}

func (f *funcGen) binary(e *ast.BinaryExpr) *ir.Value {
	if e.Op == "&&" || e.Op == "||" {
		return f.shortCircuit(e)
	}
	l := f.expr(e.Left)
	if l == nil {
		return nil
	}
	r := f.expr(e.Right)
	if r == nil {
		return nil
	}
	f.at(e.Pos)
	if op, ok := binaryOps[e.Op]; ok {
		return f.b.Binary(op, l, r)
	}
	if pred, ok := comparisons[e.Op]; ok {
		return f.b.Cmp(pred, l, r)
	}
	f.ice(e.Pos, "unknown binary operator %s", e.Op)
	return nil
}

// isPlace reports whether e denotes a memory location of a local variable
func isPlace(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.IdentExpr:
		return true
	case *ast.FieldAccessExpr:
		return isPlace(e.Target)
	case *ast.IndexExpr:
		return isPlace(e.Target)
	}
	return false
}

// place returns a pointer to the location e denotes
func (f *funcGen) place(e ast.Expr) *ir.Value {
	switch e := e.(type) {
	case *ast.IdentExpr:
		return f.lookup(e.Name, e.Pos)
	case *ast.FieldAccessExpr:
		base := f.place(e.Target)
		if base == nil {
			return nil
		}
		f.checkField(e)
		return f.b.FieldPtr(base, uint64(e.Index))
	case *ast.IndexExpr:
		base := f.place(e.Target)
		if base == nil {
			return nil
		}
		idx := f.expr(e.Index)
		if idx == nil {
			return nil
		}
		return f.b.GetElemPtr(base, ir.ValueIndex(idx))
	}
	f.ice(e.NodePos(), "%T is not assignable", e)
	return nil
}

func (f *funcGen) checkField(e *ast.FieldAccessExpr) {
	t := f.exprType(e.Target)
	if !t.IsStruct() || e.Index < 0 || e.Index >= len(t.Fields()) {
		f.ice(e.Pos, "field %s (index %d) out of range for %s", e.Field, e.Index, t)
	}
}

// aggregate builds a struct, tuple or array in a fresh slot through
// init_aggr and loads it
func (f *funcGen) aggregate(t *types.Type, elems []ast.Expr) *ir.Value {
	fields := ir.AggregateFields(t)
	if len(fields) != len(elems) {
		f.ice(ast.Position{}, "%d initializers for %s", len(elems), t)
	}
	values := make([]*ir.Value, len(elems))
	for i, el := range elems {
		v := f.expr(el)
		if v == nil {
			return nil
		}
		values[i] = v
	}
	slot := f.temp(t)
	f.b.InitAggr(slot, values)
	return f.b.Load(slot)
}

func (f *funcGen) enumLiteral(e *ast.EnumLiteralExpr) *ir.Value {
	t := f.exprType(e)
	if !t.IsEnum() {
		f.ice(e.Pos, "enum literal of non-enum type %s", t)
	}
	variants := t.Field(1).Fields()
	if e.Variant < 0 || e.Variant >= len(variants) {
		f.ice(e.Pos, "variant %d out of range for %s", e.Variant, t)
	}
	var payload *ir.Value
	if e.Payload != nil {
		payload = f.expr(e.Payload)
		if payload == nil {
			return nil
		}
	} else {
		payload = f.b.ConstUnit()
	}
	tag := f.b.ConstU64(uint64(e.Variant))
	slot := f.temp(t)
	f.b.InitAggr(slot, []*ir.Value{tag, payload})
	return f.b.Load(slot)
}

// args lowers call arguments; memory-resident values are copied into fresh
// temporaries whose address is passed
func (f *funcGen) args(exprs []ast.Expr, byRef bool) []*ir.Value {
	out := make([]*ir.Value, 0, len(exprs)+1)
	for _, a := range exprs {
		v := f.expr(a)
		if v == nil {
			return nil
		}
		if byRef && byReference(v.Type) {
			slot := f.temp(v.Type)
			f.b.Store(v, slot)
			v = slot
		}
		out = append(out, v)
	}
	return out
}

func (f *funcGen) call(e *ast.CallExpr) *ir.Value {
	callee, ok := f.functions[e.Callee]
	if !ok {
		f.ice(e.Pos, "unknown function %s", e.Callee)
	}
	if callee.Entry {
		f.ice(e.Pos, "call to entry function %s", e.Callee)
	}
	args := f.args(e.Args, true)
	if args == nil && len(e.Args) > 0 {
		return nil
	}
	f.at(e.Pos)
	ret := f.exprType(e)
	if byReference(ret) {
		out := f.temp(ret)
		args = append(args, out)
		ptr := f.b.Call(callee, args...)
		return f.b.Load(ptr)
	}
	return f.b.Call(callee, args...)
}

// contractCall encodes { contract id, selector, args... } into a frame and
// calls the remote method
func (f *funcGen) contractCall(e *ast.ContractCallExpr) *ir.Value {
	id := f.expr(e.Contract)
	if id == nil {
		return nil
	}
	fields := []*ir.Value{id, f.b.ConstU64(e.Selector)}
	args := f.args(e.Args, false)
	if args == nil && len(e.Args) > 0 {
		return nil
	}
	fields = append(fields, args...)

	coins, asset, gas := f.expr(e.Coins), f.expr(e.AssetID), f.expr(e.Gas)
	if coins == nil || asset == nil || gas == nil {
		return nil
	}

	fieldTypes := make([]*types.Type, len(fields))
	for i, v := range fields {
		fieldTypes[i] = v.Type
	}
	frame := f.temp(f.ctx.Struct(fieldTypes...))
	f.b.InitAggr(frame, fields)
	assetSlot := f.temp(asset.Type)
	f.b.Store(asset, assetSlot)

	f.at(e.Pos)
	return f.b.ContractCall(f.exprType(e), e.Method, frame, coins, assetSlot, gas)
}

func (f *funcGen) asm(e *ast.AsmExpr) *ir.Value {
	args := make([]ir.AsmArg, len(e.Args))
	for i, a := range e.Args {
		args[i] = ir.AsmArg{Name: a.Name}
		if a.Value != nil {
			v := f.expr(a.Value)
			if v == nil {
				return nil
			}
			args[i].Value = v
		}
	}
	body := make([]ir.AsmOp, len(e.Body))
	for i, op := range e.Body {
		body[i] = ir.AsmOp{Name: op.Op, Args: append([]string(nil), op.Args...)}
	}
	f.at(e.Pos)
	return f.b.Asm(args, body, e.ReturnReg, f.exprType(e))
}
