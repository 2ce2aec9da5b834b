package codegen

import (
	"contractc/internal/abi"
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/types"
)

// Call frame words the VM provides to a contract
const (
	frameSelectorWord = 73
	frameArgsWord     = 74
)

const (
	regSelector = RegScratch
	regArgs     = RegScratch + 1
	regCond     = RegScratch + 2
)

// entryCode emits the program header followed by the dispatcher of a
// contract or the call of a script's main
type entryCode struct {
	code   []*Instr
	data   *DataSection
	labels map[*ir.Function]*Label
}

func (e *entryCode) emit(op Opcode, imm uint64, regs ...Reg) {
	in := &Instr{Op: op, Imm: imm}
	copy(in.Regs[:], regs)
	e.code = append(e.code, in)
}

func (e *entryCode) header() {
	e.emit(OpJi, 4)
	e.emit(OpNoop, 0)
	e.emit(OpDataOffset, 0)
	e.emit(OpMove, 0, RegDs, RegIs)
	e.emit(OpLw, 1, RegDs, RegDs)
	e.emit(OpAdd, 0, RegDs, RegDs, RegIs)
}

func (e *entryCode) callAndReturn(fn *ir.Function) {
	e.code = append(e.code, &Instr{Op: OpLoadData, Regs: [4]Reg{RegTmp}, Data: e.data.Addr(e.labels[fn])})
	e.emit(OpJal, 0, RegReta, RegTmp)
	if t := fn.ReturnType; t.IsCopy() {
		e.emit(OpRet, 0, RegRetv)
		return
	}
	if size := types.Size(fn.ReturnType); fits(size, 18) {
		e.emit(OpMovi, size, regCond)
	} else {
		e.code = append(e.code, &Instr{Op: OpLoadData, Regs: [4]Reg{regCond}, Data: e.data.Word(size)})
	}
	e.emit(OpRetd, 0, RegRetv, regCond)
}

func (e *entryCode) script(main *ir.Function) {
	e.header()
	e.callAndReturn(main)
}

// contract compares the incoming selector against every entry in ascending
// selector order. Each match jumps to a stub that decodes the arguments and
// calls the function.
func (e *entryCode) contract(a *abi.ABI) error {
	e.header()
	e.emit(OpLw, frameSelectorWord, regSelector, RegFp)

	fns := a.BySelector()
	stubs := make([]*Label, len(fns))
	for k, f := range fns {
		stubs[k] = &Label{Name: "dispatch." + f.Name}
		e.code = append(e.code,
			&Instr{Op: OpLoadData, Regs: [4]Reg{regArgs}, Data: e.data.Word(uint64(f.Selector))},
			&Instr{Op: OpEq, Regs: [4]Reg{regCond, regSelector, regArgs}},
			&Instr{Op: OpJumpNZ, Regs: [4]Reg{regCond}, Label: stubs[k]})
	}
	e.emit(OpMovi, ir.DispatchRevertCode, regCond)
	e.emit(OpRvrt, 0, regCond)

	for k, f := range fns {
		e.code = append(e.code, &Instr{Op: OpLabel, Label: stubs[k]})
		if err := e.decode(f.IR); err != nil {
			return err
		}
		e.callAndReturn(f.IR)
	}
	return nil
}

// decode loads the arguments of fn from the call frame buffer, one
// word-aligned field per parameter
func (e *entryCode) decode(fn *ir.Function) error {
	e.emit(OpLw, frameArgsWord, regArgs, RegFp)
	params := fn.Params()
	direct := len(params)
	if direct > NumArgRegs {
		direct = NumArgRegs - 1
	}

	var off uint64
	offsets := make([]uint64, len(params))
	for k, p := range params {
		offsets[k] = off
		off += types.RoundUpToWord(types.Size(p.Type))
	}
	if off/types.WordSize > maxImm12 {
		return errors.InternalAt(fn.Name, "", fn.Metadata.Position(), "argument buffer of %d bytes is too large", off)
	}

	arg := func(dst Reg, k int) {
		if params[k].Type.IsCopy() {
			e.emit(OpLw, offsets[k]/types.WordSize, dst, regArgs)
			return
		}
		if offsets[k] <= maxImm12 {
			e.emit(OpAddi, offsets[k], dst, regArgs)
			return
		}
		e.emit(OpMovi, offsets[k], dst)
		e.emit(OpAdd, 0, dst, regArgs, dst)
	}
	for k := 0; k < direct; k++ {
		arg(RegArg0+Reg(k), k)
	}
	if rest := len(params) - direct; rest > 0 {
		e.emit(OpMove, 0, regCond, RegSp)
		e.emit(OpCfei, uint64(rest)*types.WordSize)
		for k := direct; k < len(params); k++ {
			arg(RegTmp, k)
			e.emit(OpSw, uint64(k-direct), regCond, RegTmp)
		}
		e.emit(OpMove, 0, RegArg0+NumArgRegs-1, regCond)
	}
	return nil
}
