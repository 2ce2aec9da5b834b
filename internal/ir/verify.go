package ir

import (
	"fmt"

	"contractc/internal/errors"
	"contractc/internal/types"
)

// Verify checks the structural invariants of a module and returns every
// violation found
func Verify(m *Module) errors.Diagnostics {
	var diags errors.Diagnostics
	funcs := make(map[*Function]bool, len(m.Functions))
	for _, fn := range m.Functions {
		funcs[fn] = true
	}
	for _, fn := range m.Functions {
		v := &verifier{module: m, fn: fn, funcs: funcs}
		v.run()
		diags = append(diags, v.diags...)
	}
	return diags
}

// VerifyFunction checks a single function
func VerifyFunction(fn *Function) errors.Diagnostics {
	funcs := make(map[*Function]bool)
	for _, f := range fn.Module.Functions {
		funcs[f] = true
	}
	v := &verifier{module: fn.Module, fn: fn, funcs: funcs}
	v.run()
	return v.diags
}

type verifier struct {
	module *Module
	fn     *Function
	funcs  map[*Function]bool
	diags  errors.Diagnostics

	blocks  map[*Block]bool
	defined map[*Value]*Block
	pos     map[*Value]int
}

func (v *verifier) errorf(inst Instruction, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if inst != nil {
		msg = fmt.Sprintf("%s: %s", inst, msg)
	}
	err := errors.IRVerify(v.fn.Name, msg)
	if inst != nil {
		err.Position = inst.GetMetadata().Position()
	}
	v.diags = append(v.diags, err)
}

func (v *verifier) run() {
	fn := v.fn
	if len(fn.Blocks) == 0 {
		v.errorf(nil, "function has no blocks")
		return
	}
	v.blocks = make(map[*Block]bool)
	v.defined = make(map[*Value]*Block)
	v.pos = make(map[*Value]int)
	for _, b := range fn.Blocks {
		v.blocks[b] = true
		if b.Function != fn {
			v.errorf(nil, "block %s belongs to another function", b.Label)
		}
		for _, a := range b.Args {
			v.defined[a] = b
			v.pos[a] = -1
		}
		for i, inst := range b.All() {
			if r := inst.GetResult(); r != nil {
				v.defined[r] = b
				v.pos[r] = i
			}
		}
	}

	for _, b := range fn.Blocks {
		if b.Terminator == nil {
			v.errorf(nil, "block %s has no terminator", b.Label)
		}
		for i, inst := range b.All() {
			if inst.GetBlock() != b {
				v.errorf(inst, "instruction is not linked to block %s", b.Label)
			}
			if inst.IsTerminator() && inst != Instruction(b.Terminator) {
				v.errorf(inst, "terminator in the middle of block %s", b.Label)
			}
			for _, op := range Operands(inst) {
				v.checkOperand(inst, b, i, op)
			}
			v.checkInstruction(inst)
		}
	}
}

func (v *verifier) checkOperand(inst Instruction, b *Block, index int, op *Value) {
	def, ok := v.defined[op]
	if !ok {
		v.errorf(inst, "operand %s is not defined in this function", op)
		return
	}
	if def == b && v.pos[op] >= index {
		v.errorf(inst, "operand %s is used before its definition", op)
	}
}

func (v *verifier) checkTarget(inst Instruction, t BranchTarget) {
	if !v.blocks[t.Block] {
		v.errorf(inst, "branch to a block outside the function")
		return
	}
	if len(t.Args) != len(t.Block.Args) {
		v.errorf(inst, "branch to %s passes %d arguments, block takes %d", t.Block.Label, len(t.Args), len(t.Block.Args))
		return
	}
	for i, a := range t.Args {
		if a.Type != t.Block.Args[i].Type {
			v.errorf(inst, "argument %d to %s has type %s, expected %s", i, t.Block.Label, a.Type, t.Block.Args[i].Type)
		}
	}
}

func (v *verifier) expectType(inst Instruction, what string, got *Value, want *types.Type) {
	if got != nil && got.Type != want {
		v.errorf(inst, "%s has type %s, expected %s", what, got.Type, want)
	}
}

func (v *verifier) expectPointer(inst Instruction, what string, got *Value) *types.Type {
	if got == nil || !got.Type.IsPointer() {
		v.errorf(inst, "%s must be a pointer", what)
		return nil
	}
	return got.Type.Elem()
}

func (v *verifier) expectKey(inst Instruction, key *Value) {
	if elem := v.expectPointer(inst, "key", key); elem != nil && !elem.IsB256() {
		v.errorf(inst, "key must point to b256")
	}
}

func (v *verifier) checkInstruction(inst Instruction) {
	ctx := v.module.Types
	switch i := inst.(type) {
	case *GetLocal:
		if v.fn.Local(i.Local.Name) != i.Local {
			v.errorf(inst, "local %s does not belong to the function", i.Local.Name)
		}
	case *Load:
		if elem := v.expectPointer(inst, "load address", i.Ptr); elem != nil && elem != i.Result.Type {
			v.errorf(inst, "load of %s yields %s", elem, i.Result.Type)
		}
	case *Store:
		if elem := v.expectPointer(inst, "store address", i.Ptr); elem != nil {
			v.expectType(inst, "stored value", i.Value, elem)
		}
	case *MemCopy:
		v.expectPointer(inst, "destination", i.Dst)
		v.expectPointer(inst, "source", i.Src)
	case *MemClear:
		v.expectPointer(inst, "destination", i.Dst)
	case *InitAggr:
		if elem := v.expectPointer(inst, "aggregate address", i.Ptr); elem != nil {
			fields := AggregateFields(elem)
			if len(fields) != len(i.Fields) {
				v.errorf(inst, "%s has %d fields, %d given", elem, len(fields), len(i.Fields))
				return
			}
			for k, f := range i.Fields {
				if !FieldAccepts(fields[k], f.Type) {
					v.errorf(inst, "field %d has type %s, expected %s", k, f.Type, fields[k])
				}
			}
		}
	case *BinaryOp:
		if i.Op != OpShl && i.Op != OpShr {
			v.expectType(inst, "right operand", i.Right, i.Left.Type)
		}
	case *Cmp:
		v.expectType(inst, "right operand", i.Right, i.Left.Type)
	case *Call:
		if !v.funcs[i.Callee] {
			v.errorf(inst, "call to unknown function %s", i.Callee.Name)
			return
		}
		if i.Callee.Entry {
			v.errorf(inst, "call to entry function %s", i.Callee.Name)
		}
		params := i.Callee.Params()
		if len(params) != len(i.Args) {
			v.errorf(inst, "%s takes %d arguments, %d given", i.Callee.Name, len(params), len(i.Args))
			return
		}
		for k, a := range i.Args {
			v.expectType(inst, fmt.Sprintf("argument %d", k), a, params[k].Type)
		}
	case *Br:
		v.checkTarget(inst, i.Target)
	case *Cbr:
		v.expectType(inst, "condition", i.Cond, ctx.Bool())
		v.checkTarget(inst, i.True)
		v.checkTarget(inst, i.False)
	case *Ret:
		if i.Type != v.fn.ReturnType {
			v.errorf(inst, "return type %s does not match function type %s", i.Type, v.fn.ReturnType)
		}
		v.expectType(inst, "returned value", i.Value, v.fn.ReturnType)
	case *Revert:
		v.expectType(inst, "revert code", i.Code, ctx.U64())
	case *StateLoadWord:
		v.expectKey(inst, i.Key)
	case *StateLoadQuad:
		v.expectKey(inst, i.Key)
		v.expectPointer(inst, "destination", i.Dst)
		v.expectType(inst, "slot count", i.Count, ctx.U64())
	case *StateStoreWord:
		v.expectKey(inst, i.Key)
		v.expectType(inst, "stored word", i.Value, ctx.U64())
	case *StateStoreQuad:
		v.expectKey(inst, i.Key)
		v.expectPointer(inst, "source", i.Src)
		v.expectType(inst, "slot count", i.Count, ctx.U64())
	case *StateClear:
		v.expectKey(inst, i.Key)
		v.expectType(inst, "slot count", i.Count, ctx.U64())
	case *GetConfig:
		if v.module.Configurable(i.Config.Name) != i.Config {
			v.errorf(inst, "unknown configurable %s", i.Config.Name)
		}
	case *Log:
		v.expectType(inst, "log id", i.LogID, ctx.U64())
	}
}

// CheckPurity compares the storage access of every function that declares a
// purity against what its body and callees actually do
func CheckPurity(m *Module) errors.Diagnostics {
	inferred := InferPurity(m)
	var diags errors.Diagnostics
	for _, fn := range m.Functions {
		declared, ok := fn.DeclaredPurity()
		if !ok {
			continue
		}
		if got := inferred[fn]; !declared.Allows(got) {
			diags = append(diags, errors.PurityViolation(fn.Name, declared.String(), purityVerb(got), fn.Metadata.Position()))
		}
	}
	return diags
}

func purityVerb(p Purity) string {
	if p == ReadsWrites {
		return "reads and writes"
	}
	return p.String()
}
