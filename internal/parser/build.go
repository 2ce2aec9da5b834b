package parser

import (
	"encoding/hex"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/holiman/uint256"

	"contractc/grammar"
	"contractc/internal/ir"
	"contractc/internal/types"
)

func (p *parser) resolveType(t *grammar.Type) *types.Type {
	switch {
	case t.Ptr != nil:
		return p.ctx.Pointer(p.resolveType(t.Ptr))
	case t.Slice != nil:
		return p.ctx.Slice(p.resolveType(t.Slice))
	case t.Str != nil:
		return p.ctx.String(t.Str.Len)
	case t.Array != nil:
		return p.ctx.Array(p.resolveType(t.Array.Elem), t.Array.Len)
	case t.Struct != nil:
		return p.ctx.Struct(p.resolveTypes(t.Struct.Fields)...)
	case t.Union != nil:
		return p.ctx.Union(p.resolveTypes(t.Union.Variants)...)
	case t.Fn != nil:
		return p.ctx.Function(p.resolveTypes(t.Fn.Params), p.resolveType(t.Fn.Return))
	}
	if bt, ok := p.ctx.Builtin(t.Name); ok {
		return bt
	}
	p.fail(t.Pos, "unknown type %s", t.Name)
	return nil
}

func (p *parser) resolveTypes(ts []*grammar.Type) []*types.Type {
	out := make([]*types.Type, len(ts))
	for i, t := range ts {
		out[i] = p.resolveType(t)
	}
	return out
}

// literal converts a literal of type t into a pooled constant
func (p *parser) literal(pos lexer.Position, t *types.Type, lit *grammar.Literal) *ir.Constant {
	pool := p.module.Constants
	switch t.Kind() {
	case types.KindUnit:
		if !lit.Unit {
			p.fail(pos, "unit constant must be ()")
		}
		return pool.Unit(t)
	case types.KindBool:
		if lit.Bool == nil {
			p.fail(pos, "bool constant must be true or false")
		}
		return pool.Bool(t, *lit.Bool == "true")
	case types.KindUint:
		n := p.integer(pos, lit)
		if n.Gt(ir.MaxUint(t.Bits())) {
			p.fail(pos, "constant %s does not fit %s", n.Dec(), t)
		}
		return pool.Wide(t, n)
	case types.KindB256:
		if lit.Hex == nil {
			p.fail(pos, "b256 constant must be hexadecimal")
		}
		raw := p.hexBytes(pos, *lit.Hex)
		if len(raw) > 32 {
			p.fail(pos, "b256 constant longer than 32 bytes")
		}
		var b [32]byte
		copy(b[32-len(raw):], raw)
		return pool.B256(t, b)
	case types.KindString:
		if lit.Str == nil {
			p.fail(pos, "%s constant must be a string", t)
		}
		if uint64(len(*lit.Str)) > t.Len() {
			p.fail(pos, "string of %d bytes does not fit %s", len(*lit.Str), t)
		}
		return pool.String(t, []byte(*lit.Str))
	}
	p.fail(pos, "no constants of type %s", t)
	return nil
}

func (p *parser) integer(pos lexer.Position, lit *grammar.Literal) *uint256.Int {
	switch {
	case lit.Int != nil:
		n, err := uint256.FromDecimal(*lit.Int)
		if err != nil {
			p.fail(pos, "bad integer %s: %v", *lit.Int, err)
		}
		return n
	case lit.Hex != nil:
		raw := p.hexBytes(pos, *lit.Hex)
		if len(raw) > 32 {
			p.fail(pos, "integer %s wider than 256 bits", *lit.Hex)
		}
		return new(uint256.Int).SetBytes(raw)
	}
	p.fail(pos, "expected an integer")
	return nil
}

func (p *parser) hexBytes(pos lexer.Position, s string) []byte {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		p.fail(pos, "bad hexadecimal literal %s", s)
	}
	return raw
}

// build constructs the detached instruction for gi
func (p *parser) build(sc *scope, gi *grammar.Instruction) (inst ir.Instruction) {
	pos := gi.Pos
	b := sc.builder
	val := func(name string) *ir.Value { return p.value(sc, name, pos) }
	defer p.guard(pos)

	result := func(v *ir.Value) ir.Instruction {
		if v == nil {
			p.fail(pos, "instruction does not produce a value")
		}
		return v.Def
	}

	op := gi.Op
	switch {
	case op.Const != nil:
		t := p.resolveType(op.Const.Type)
		return result(b.Const(p.literal(op.Const.Value.Pos, t, op.Const.Value)))

	case op.GetLocal != nil:
		local := sc.fn.Local(op.GetLocal.Name)
		if local == nil {
			p.fail(pos, "undefined local %s", op.GetLocal.Name)
		}
		v := b.GetLocal(local)
		p.expectType(pos, v, p.resolveType(op.GetLocal.Type))
		return result(v)

	case op.GetElemPtr != nil:
		g := op.GetElemPtr
		indices := make([]ir.GepIndex, len(g.Indices))
		for i, idx := range g.Indices {
			if idx.Const != nil {
				indices[i] = ir.ConstIndex(*idx.Const)
			} else {
				indices[i] = ir.ValueIndex(val(idx.Value))
			}
		}
		v := b.GetElemPtr(val(g.Base), indices...)
		p.expectType(pos, v, p.resolveType(g.Type))
		return result(v)

	case op.Load != nil:
		return result(b.Load(val(op.Load.Ptr)))

	case op.Store != nil:
		return b.Store(val(op.Store.Value), val(op.Store.Ptr))

	case op.MemCopy != nil:
		return b.MemCopy(val(op.MemCopy.Dst), val(op.MemCopy.Src), op.MemCopy.Size)

	case op.MemClear != nil:
		return b.MemClear(val(op.MemClear.Dst), op.MemClear.Size)

	case op.InsertValue != nil:
		iv := op.InsertValue
		return result(b.InsertValue(val(iv.Agg), val(iv.Value), iv.Indices...))

	case op.ExtractValue != nil:
		ev := op.ExtractValue
		return result(b.ExtractValue(val(ev.Agg), ev.Indices...))

	case op.InitAggr != nil:
		return b.InitAggr(val(op.InitAggr.Ptr), p.values(sc, op.InitAggr.Fields, pos))

	case op.Binary != nil:
		kind, ok := ir.ParseBinaryOp(op.Binary.Op)
		if !ok {
			p.fail(pos, "unknown operator %s", op.Binary.Op)
		}
		return result(b.Binary(kind, val(op.Binary.Left), val(op.Binary.Right)))

	case op.Cmp != nil:
		pred, ok := ir.ParsePredicate(op.Cmp.Pred)
		if !ok {
			p.fail(pos, "unknown comparison %s", op.Cmp.Pred)
		}
		return result(b.Cmp(pred, val(op.Cmp.Left), val(op.Cmp.Right)))

	case op.Not != nil:
		return result(b.Not(val(op.Not.Value)))

	case op.Call != nil:
		callee := p.module.Function(op.Call.Callee)
		if callee == nil {
			p.fail(pos, "undefined function %s", op.Call.Callee)
		}
		return result(b.Call(callee, p.values(sc, op.Call.Args, pos)...))

	case op.Br != nil:
		target := op.Br.Target
		return b.Br(p.block(sc, target.Label, target.Pos), p.values(sc, target.Args, target.Pos)...)

	case op.Cbr != nil:
		c := op.Cbr
		return b.Cbr(val(c.Cond),
			p.block(sc, c.True.Label, c.True.Pos), p.values(sc, c.True.Args, c.True.Pos),
			p.block(sc, c.False.Label, c.False.Pos), p.values(sc, c.False.Args, c.False.Pos))

	case op.Ret != nil:
		v := val(op.Ret.Value)
		p.expectType(pos, v, p.resolveType(op.Ret.Type))
		return b.Ret(v)

	case op.Revert != nil:
		return b.Revert(val(op.Revert.Code))

	case op.StateLoadWord != nil:
		return result(b.StateLoadWord(val(op.StateLoadWord.Key)))

	case op.StateLoadQuad != nil:
		s := op.StateLoadQuad
		return result(b.StateLoadQuad(val(s.Key), val(s.Dst), val(s.Count)))

	case op.StateStoreWord != nil:
		return b.StateStoreWord(val(op.StateStoreWord.Value), val(op.StateStoreWord.Key))

	case op.StateStoreQuad != nil:
		s := op.StateStoreQuad
		return b.StateStoreQuad(val(s.Key), val(s.Src), val(s.Count))

	case op.StateClear != nil:
		return b.StateClear(val(op.StateClear.Key), val(op.StateClear.Count))

	case op.GetStorageKey != nil:
		return result(b.GetStorageKey(op.GetStorageKey.Path, op.GetStorageKey.Slot))

	case op.ContractCall != nil:
		c := op.ContractCall
		ret := p.resolveType(c.Type)
		return result(b.ContractCall(ret, c.Name, val(c.Params), val(c.Coins), val(c.AssetID), val(c.Gas)))

	case op.Log != nil:
		v := val(op.Log.Value)
		p.expectType(pos, v, p.resolveType(op.Log.Type))
		return b.Log(v, val(op.Log.LogID))

	case op.Smo != nil:
		s := op.Smo
		return b.Smo(val(s.Recipient), val(s.Message), val(s.Length), val(s.Coins))

	case op.GetConfig != nil:
		cfg := p.module.Configurable(op.GetConfig.Name)
		if cfg == nil {
			p.fail(pos, "undefined configurable %s", op.GetConfig.Name)
		}
		v := b.GetConfig(cfg)
		p.expectType(pos, v, p.resolveType(op.GetConfig.Type))
		return result(v)

	case op.Asm != nil:
		a := op.Asm
		args := make([]ir.AsmArg, len(a.Args))
		for i, arg := range a.Args {
			args[i] = ir.AsmArg{Name: arg.Name}
			if arg.Value != "" {
				args[i].Value = val(arg.Value)
			}
		}
		body := make([]ir.AsmOp, len(a.Body))
		for i, bi := range a.Body {
			body[i] = ir.AsmOp{Name: bi.Name, Args: append([]string(nil), bi.Args...)}
		}
		return result(b.Asm(args, body, a.ReturnReg, p.resolveType(a.Type)))

	case op.Conversion != nil:
		c := op.Conversion
		v, to := val(c.Value), p.resolveType(c.Type)
		switch c.Kind {
		case "cast_ptr":
			return result(b.CastPtr(v, to))
		case "ptr_to_int":
			return result(b.PtrToInt(v, to))
		case "int_to_ptr":
			return result(b.IntToPtr(v, to))
		default:
			return result(b.Bitcast(v, to))
		}
	}
	p.fail(pos, "empty instruction")
	return nil
}
