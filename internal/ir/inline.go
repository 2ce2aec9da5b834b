package ir

import (
	"contractc/internal/errors"
)

// InlineCall replaces call with a copy of the callee's body. The block
// holding the call is split: everything after the call moves to a new
// continuation block whose single argument replaces the call result, and
// every return of the copy branches there. The copy's entry block keeps its
// parameters and is reached by a branch passing the call arguments.
//
// It returns the continuation block.
func InlineCall(call *Call) (*Block, error) {
	b := call.Block
	if b == nil {
		return nil, errors.Internal("inlining a detached call to %s", call.Callee.Name)
	}
	caller, callee := b.Function, call.Callee
	if caller == callee {
		return nil, errors.InternalAt(caller.Name, call.String(), call.Metadata.Position(), "cannot inline a function into itself")
	}
	at := b.IndexOf(call)
	if at < 0 {
		return nil, errors.InternalAt(caller.Name, call.String(), call.Metadata.Position(), "call is not in its block")
	}

	// split
	cont := caller.NewBlockAfter(b, callee.Name+"_ret")
	result := cont.AddArg("", callee.ReturnType)
	rest := append([]Instruction(nil), b.Instructions[at+1:]...)
	term := b.Terminator
	b.Instructions = b.Instructions[:at]
	b.Terminator = nil
	for _, inst := range rest {
		cont.Append(inst)
	}
	cont.Append(term)
	if call.Result != nil {
		ReplaceAllUses(caller, call.Result, result)
	}

	c := &cloner{
		caller: caller,
		values: make(map[*Value]*Value),
		blocks: make(map[*Block]*Block),
		locals: make(map[*LocalVar]*LocalVar),
	}
	for _, l := range callee.Locals {
		c.locals[l] = caller.NewLocal(callee.Name+"_"+l.Name, l.Type)
	}

	// Phase one creates every block, argument and result so that uses
	// preceding their definition in block order resolve.
	after := b
	for _, src := range callee.Blocks {
		dst := caller.NewBlockAfter(after, callee.Name+"_"+src.Label)
		after = dst
		c.blocks[src] = dst
		for _, a := range src.Args {
			c.values[a] = dst.AddArg(a.Name, a.Type)
		}
	}
	type pending struct {
		src, dst Instruction
	}
	var copies []pending
	for _, src := range callee.Blocks {
		for _, inst := range src.All() {
			dup := c.clone(inst)
			copies = append(copies, pending{inst, dup})
		}
	}

	// Phase two rewires operands and targets, then places the copies.
	for _, p := range copies {
		for _, ref := range p.dst.operandRefs() {
			if *ref == nil {
				continue
			}
			mapped, ok := c.values[*ref]
			if !ok {
				return nil, errors.InternalAt(callee.Name, p.src.String(), p.src.GetMetadata().Position(), "operand %s is not defined in the callee", *ref)
			}
			*ref = mapped
		}
		if t, ok := p.dst.(Terminator); ok {
			for _, target := range t.targets() {
				target.Block = c.blocks[target.Block]
			}
		}
		if l, ok := p.dst.(*GetLocal); ok {
			l.Local = c.locals[l.Local]
		}
		home := c.blocks[p.src.GetBlock()]
		if ret, ok := p.dst.(*Ret); ok {
			br := &Br{Target: BranchTarget{Block: cont, Args: []*Value{ret.Value}}}
			br.setID(caller.nextInstID())
			br.SetMetadata(ret.Metadata)
			home.Append(br)
			continue
		}
		home.Append(p.dst)
	}

	entry := &Br{Target: BranchTarget{Block: c.blocks[callee.EntryBlock()], Args: append([]*Value(nil), call.Args...)}}
	entry.setID(caller.nextInstID())
	entry.SetMetadata(call.Metadata)
	b.Append(entry)
	return cont, nil
}

type cloner struct {
	caller *Function
	values map[*Value]*Value
	blocks map[*Block]*Block
	locals map[*LocalVar]*LocalVar
}

// clone copies inst with its own result value; operands still refer to the
// callee until they are remapped
func (c *cloner) clone(inst Instruction) Instruction {
	var dup Instruction
	switch i := inst.(type) {
	case *ConstInst:
		x := *i
		dup = &x
	case *GetLocal:
		x := *i
		dup = &x
	case *GetElemPtr:
		x := *i
		x.Indices = append([]GepIndex(nil), i.Indices...)
		dup = &x
	case *Load:
		x := *i
		dup = &x
	case *Store:
		x := *i
		dup = &x
	case *MemCopy:
		x := *i
		dup = &x
	case *MemClear:
		x := *i
		dup = &x
	case *InsertValue:
		x := *i
		x.Indices = append([]uint64(nil), i.Indices...)
		dup = &x
	case *ExtractValue:
		x := *i
		x.Indices = append([]uint64(nil), i.Indices...)
		dup = &x
	case *InitAggr:
		x := *i
		x.Fields = append([]*Value(nil), i.Fields...)
		dup = &x
	case *BinaryOp:
		x := *i
		dup = &x
	case *Cmp:
		x := *i
		dup = &x
	case *Not:
		x := *i
		dup = &x
	case *Call:
		x := *i
		x.Args = append([]*Value(nil), i.Args...)
		dup = &x
	case *Br:
		x := *i
		x.Target.Args = append([]*Value(nil), i.Target.Args...)
		dup = &x
	case *Cbr:
		x := *i
		x.True.Args = append([]*Value(nil), i.True.Args...)
		x.False.Args = append([]*Value(nil), i.False.Args...)
		dup = &x
	case *Ret:
		x := *i
		dup = &x
	case *Revert:
		x := *i
		dup = &x
	case *StateLoadWord:
		x := *i
		dup = &x
	case *StateLoadQuad:
		x := *i
		dup = &x
	case *StateStoreWord:
		x := *i
		dup = &x
	case *StateStoreQuad:
		x := *i
		dup = &x
	case *StateClear:
		x := *i
		dup = &x
	case *GetStorageKey:
		x := *i
		dup = &x
	case *ContractCall:
		x := *i
		dup = &x
	case *Log:
		x := *i
		dup = &x
	case *Smo:
		x := *i
		dup = &x
	case *GetConfig:
		x := *i
		dup = &x
	case *AsmBlock:
		x := *i
		x.Args = append([]AsmArg(nil), i.Args...)
		dup = &x
	case *CastPtr:
		x := *i
		dup = &x
	case *PtrToInt:
		x := *i
		dup = &x
	case *IntToPtr:
		x := *i
		dup = &x
	case *Bitcast:
		x := *i
		dup = &x
	default:
		panic(errors.Internal("cannot clone %T", inst))
	}
	dup.setID(c.caller.nextInstID())
	dup.setBlock(nil)
	if r := inst.GetResult(); r != nil {
		v := c.caller.newValue(r.Type)
		v.Def = dup
		setResult(dup, v)
		c.values[r] = v
	}
	return dup
}
