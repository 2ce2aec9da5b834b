package irexec

import (
	"github.com/holiman/uint256"
	pkgerrors "github.com/pkg/errors"

	"contractc/internal/ir"
	"contractc/internal/storage"
	"contractc/internal/types"
)

type frame struct {
	fn     *ir.Function
	env    map[*ir.Value][]byte
	locals map[*ir.LocalVar]uint64
	keys   map[ir.Instruction]uint64
}

func (f *frame) get(v *ir.Value) ([]byte, error) {
	if v.Const != nil {
		return v.Const.Bytes(), nil
	}
	b, ok := f.env[v]
	if !ok {
		return nil, pkgerrors.Errorf("%s: value %s used before it is defined", f.fn.Name, v)
	}
	return b, nil
}

func (f *frame) word(v *ir.Value) (uint64, error) {
	b, err := f.get(v)
	return ToUint64(b), err
}

func (m *Machine) exec(fn *ir.Function, args [][]byte) ([]byte, error) {
	base := m.sp
	defer func() { m.sp = base }()

	f := &frame{
		fn:     fn,
		env:    make(map[*ir.Value][]byte),
		locals: make(map[*ir.LocalVar]uint64, len(fn.Locals)),
		keys:   make(map[ir.Instruction]uint64),
	}
	for _, l := range fn.Locals {
		f.locals[l] = m.alloc(types.Size(l.Type))
	}
	block := fn.EntryBlock()
	for i, a := range block.Args {
		f.env[a] = args[i]
	}

	for {
		for _, inst := range block.Instructions {
			if err := m.tick(fn); err != nil {
				return nil, err
			}
			v, err := m.eval(f, inst)
			if err != nil {
				return nil, err
			}
			if r := inst.GetResult(); r != nil {
				f.env[r] = v
			}
		}

		if err := m.tick(fn); err != nil {
			return nil, err
		}
		switch t := block.Terminator.(type) {
		case *ir.Br:
			if err := f.jump(t.Target); err != nil {
				return nil, err
			}
			block = t.Target.Block
		case *ir.Cbr:
			cond, err := f.word(t.Cond)
			if err != nil {
				return nil, err
			}
			target := t.False
			if cond != 0 {
				target = t.True
			}
			if err := f.jump(target); err != nil {
				return nil, err
			}
			block = target.Block
		case *ir.Ret:
			return f.get(t.Value)
		case *ir.Revert:
			code, err := f.word(t.Code)
			if err != nil {
				return nil, err
			}
			return nil, &RevertError{Code: code}
		default:
			return nil, pkgerrors.Errorf("%s: block %s has no terminator", fn.Name, block.Label)
		}
	}
}

func (m *Machine) tick(fn *ir.Function) error {
	if m.steps++; m.steps > m.MaxSteps {
		return pkgerrors.Errorf("step limit of %d exceeded in %s", m.MaxSteps, fn.Name)
	}
	return nil
}

// jump binds the target's arguments; all of them are read before any is
// written
func (f *frame) jump(t ir.BranchTarget) error {
	values := make([][]byte, len(t.Args))
	for i, a := range t.Args {
		v, err := f.get(a)
		if err != nil {
			return err
		}
		values[i] = v
	}
	for i, p := range t.Block.Args {
		f.env[p] = values[i]
	}
	return nil
}

func (m *Machine) eval(f *frame, inst ir.Instruction) ([]byte, error) {
	switch i := inst.(type) {
	case *ir.ConstInst:
		return i.Const.Bytes(), nil

	case *ir.GetLocal:
		return Word(f.locals[i.Local]), nil

	case *ir.GetElemPtr:
		addr, err := f.word(i.Base)
		if err != nil {
			return nil, err
		}
		cur := i.Base.Type.Elem()
		for _, idx := range i.Indices {
			switch cur.Kind() {
			case types.KindStruct:
				off, err := types.FieldOffset(cur, int(idx.Const))
				if err != nil {
					return nil, err
				}
				addr += off
				cur = cur.Field(int(idx.Const))
			case types.KindUnion:
				cur = cur.Field(int(idx.Const))
			case types.KindArray:
				n := idx.Const
				if idx.Value != nil {
					if n, err = f.word(idx.Value); err != nil {
						return nil, err
					}
				}
				addr += n * types.Size(cur.Elem())
				cur = cur.Elem()
			}
		}
		return Word(addr), nil

	case *ir.Load:
		addr, err := f.word(i.Ptr)
		if err != nil {
			return nil, err
		}
		return m.read(addr, types.Size(i.Result.Type))

	case *ir.Store:
		addr, err := f.word(i.Ptr)
		if err != nil {
			return nil, err
		}
		v, err := f.get(i.Value)
		if err != nil {
			return nil, err
		}
		return nil, m.write(addr, v)

	case *ir.MemCopy:
		dst, err := f.word(i.Dst)
		if err != nil {
			return nil, err
		}
		src, err := f.word(i.Src)
		if err != nil {
			return nil, err
		}
		data, err := m.read(src, i.Size)
		if err != nil {
			return nil, err
		}
		return nil, m.write(dst, data)

	case *ir.MemClear:
		dst, err := f.word(i.Dst)
		if err != nil {
			return nil, err
		}
		return nil, m.zero(dst, i.Size)

	case *ir.InsertValue:
		agg, err := f.get(i.Agg)
		if err != nil {
			return nil, err
		}
		v, err := f.get(i.Value)
		if err != nil {
			return nil, err
		}
		_, off, err := types.IndexedType(i.Agg.Type, i.Indices)
		if err != nil {
			return nil, err
		}
		out := append([]byte(nil), agg...)
		copy(out[off:], v)
		return out, nil

	case *ir.ExtractValue:
		agg, err := f.get(i.Agg)
		if err != nil {
			return nil, err
		}
		t, off, err := types.IndexedType(i.Agg.Type, i.Indices)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), agg[off:off+types.Size(t)]...), nil

	case *ir.InitAggr:
		return nil, m.initAggr(f, i)

	case *ir.BinaryOp:
		l, err := f.get(i.Left)
		if err != nil {
			return nil, err
		}
		r, err := f.get(i.Right)
		if err != nil {
			return nil, err
		}
		return arith(i.Op, i.Left.Type, l, r)

	case *ir.Cmp:
		l, err := f.get(i.Left)
		if err != nil {
			return nil, err
		}
		r, err := f.get(i.Right)
		if err != nil {
			return nil, err
		}
		return Bool(ir.FoldCompare(i.Pred, toInt(l), toInt(r))), nil

	case *ir.Not:
		v, err := f.get(i.Value)
		if err != nil {
			return nil, err
		}
		t := i.Value.Type
		if t.IsBool() {
			return Bool(ToUint64(v) == 0), nil
		}
		n := new(uint256.Int).Not(toInt(v))
		return encode(t, n.And(n, ir.MaxUint(ir.OperandBits(t)))), nil

	case *ir.Call:
		args := make([][]byte, len(i.Args))
		for k, a := range i.Args {
			v, err := f.get(a)
			if err != nil {
				return nil, err
			}
			args[k] = v
		}
		return m.exec(i.Callee, args)

	case *ir.StateLoadWord:
		k, err := m.keyAt(f, i.Key)
		if err != nil {
			return nil, err
		}
		slot := m.Storage[k]
		return append([]byte(nil), slot[:8]...), nil

	case *ir.StateLoadQuad:
		k, err := m.keyAt(f, i.Key)
		if err != nil {
			return nil, err
		}
		dst, err := f.word(i.Dst)
		if err != nil {
			return nil, err
		}
		count, err := f.word(i.Count)
		if err != nil {
			return nil, err
		}
		return Bool(m.loadSlots(k, dst, count)), m.check(dst, count*types.SlotSize)

	case *ir.StateStoreWord:
		k, err := m.keyAt(f, i.Key)
		if err != nil {
			return nil, err
		}
		v, err := f.get(i.Value)
		if err != nil {
			return nil, err
		}
		var slot [32]byte
		copy(slot[:], v)
		m.Storage[k] = slot
		return nil, nil

	case *ir.StateStoreQuad:
		k, err := m.keyAt(f, i.Key)
		if err != nil {
			return nil, err
		}
		src, err := f.word(i.Src)
		if err != nil {
			return nil, err
		}
		count, err := f.word(i.Count)
		if err != nil {
			return nil, err
		}
		return nil, m.storeSlots(k, src, count)

	case *ir.StateClear:
		k, err := m.keyAt(f, i.Key)
		if err != nil {
			return nil, err
		}
		count, err := f.word(i.Count)
		if err != nil {
			return nil, err
		}
		m.clearSlots(k, count)
		return nil, nil

	case *ir.GetStorageKey:
		if addr, ok := f.keys[i]; ok {
			return Word(addr), nil
		}
		k := storage.BaseKey(i.Path).Offset(i.Slot)
		addr := m.alloc(32)
		f.keys[i] = addr
		return Word(addr), m.write(addr, k[:])

	case *ir.GetConfig:
		addr, ok := m.configs[i.Config]
		if !ok {
			return nil, pkgerrors.Errorf("configurable %s is not part of the module", i.Config.Name)
		}
		return Word(addr), nil

	case *ir.ContractCall:
		return m.contractCall(f, i)

	case *ir.Log:
		v, err := f.get(i.Value)
		if err != nil {
			return nil, err
		}
		id, err := f.word(i.LogID)
		if err != nil {
			return nil, err
		}
		m.Logs = append(m.Logs, LogRecord{ID: id, Type: i.Value.Type, Data: v})
		return nil, nil

	case *ir.Smo:
		return nil, m.smo(f, i)

	case *ir.AsmBlock:
		return m.asm(f, i)

	case *ir.CastPtr:
		return f.get(i.Value)
	case *ir.PtrToInt:
		return f.get(i.Value)
	case *ir.IntToPtr:
		return f.get(i.Value)
	case *ir.Bitcast:
		return f.get(i.Value)
	}
	return nil, pkgerrors.Errorf("%s: cannot execute %s", f.fn.Name, inst)
}

// initAggr writes every field in place. Union fields are cleared first so
// the bytes past a smaller variant are zero.
func (m *Machine) initAggr(f *frame, i *ir.InitAggr) error {
	addr, err := f.word(i.Ptr)
	if err != nil {
		return err
	}
	t := i.Ptr.Type.Elem()
	fieldTypes := ir.AggregateFields(t)
	var off uint64
	for k, fv := range i.Fields {
		v, err := f.get(fv)
		if err != nil {
			return err
		}
		size := types.Size(fieldTypes[k])
		if fieldTypes[k].IsUnion() {
			if err := m.zero(addr+off, size); err != nil {
				return err
			}
		}
		if err := m.write(addr+off, v); err != nil {
			return err
		}
		off += size
	}
	return nil
}

func (m *Machine) keyAt(f *frame, v *ir.Value) (storage.Key, error) {
	addr, err := f.word(v)
	if err != nil {
		return storage.Key{}, err
	}
	return m.key(addr)
}

// loadSlots reads count slots into memory at dst and reports whether all
// of them were set
func (m *Machine) loadSlots(k storage.Key, dst, count uint64) bool {
	all := true
	for n := uint64(0); n < count; n++ {
		slot, ok := m.Storage[k.Offset(n)]
		all = all && ok
		if err := m.write(dst+n*types.SlotSize, slot[:]); err != nil {
			return false
		}
	}
	return all
}

func (m *Machine) storeSlots(k storage.Key, src, count uint64) error {
	data, err := m.read(src, count*types.SlotSize)
	if err != nil {
		return err
	}
	for n := uint64(0); n < count; n++ {
		var slot [32]byte
		copy(slot[:], data[n*types.SlotSize:])
		m.Storage[k.Offset(n)] = slot
	}
	return nil
}

func (m *Machine) clearSlots(k storage.Key, count uint64) {
	for n := uint64(0); n < count; n++ {
		delete(m.Storage, k.Offset(n))
	}
}

func (m *Machine) contractCall(f *frame, i *ir.ContractCall) ([]byte, error) {
	ret := i.Result.Type
	if m.Remote == nil {
		return make([]byte, types.Size(ret)), nil
	}
	params, err := f.word(i.Params)
	if err != nil {
		return nil, err
	}
	frameBytes, err := m.read(params, types.Size(i.Params.Type.Elem()))
	if err != nil {
		return nil, err
	}
	call := RemoteCall{Method: i.Name, Frame: frameBytes, Return: ret}
	if call.Coins, err = f.word(i.Coins); err != nil {
		return nil, err
	}
	if call.Gas, err = f.word(i.Gas); err != nil {
		return nil, err
	}
	assetAddr, err := f.word(i.AssetID)
	if err != nil {
		return nil, err
	}
	asset, err := m.read(assetAddr, 32)
	if err != nil {
		return nil, err
	}
	copy(call.Asset[:], asset)

	out, err := m.Remote(call)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "contract call %s", call.Method)
	}
	if uint64(len(out)) != types.Size(ret) {
		return nil, pkgerrors.Errorf("contract call %s returned %d bytes for %s", call.Method, len(out), ret)
	}
	return out, nil
}

func (m *Machine) smo(f *frame, i *ir.Smo) error {
	to, err := f.word(i.Recipient)
	if err != nil {
		return err
	}
	recipient, err := m.read(to, 32)
	if err != nil {
		return err
	}
	msgAddr, err := f.word(i.Message)
	if err != nil {
		return err
	}
	length, err := f.word(i.Length)
	if err != nil {
		return err
	}
	data, err := m.read(msgAddr, length)
	if err != nil {
		return err
	}
	coins, err := f.word(i.Coins)
	if err != nil {
		return err
	}
	msg := Message{Data: data, Coins: coins}
	copy(msg.Recipient[:], recipient)
	m.Messages = append(m.Messages, msg)
	return nil
}
