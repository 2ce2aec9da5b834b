package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/ir"
)

func vreg(n int) Reg { return NumRegs + Reg(n) }

func render(code []*Instr) []string {
	out := make([]string, len(code))
	for k, in := range code {
		out[k] = in.String()
	}
	return out
}

func TestLiveIntervalsCoverLoops(t *testing.T) {
	loop := &Label{Name: "loop"}
	code := []*Instr{
		{Op: OpMovi, Regs: [4]Reg{vreg(0)}, Imm: 5},
		{Op: OpMovi, Regs: [4]Reg{vreg(1)}, Imm: 1},
		{Op: OpLabel, Label: loop},
		{Op: OpSub, Regs: [4]Reg{vreg(0), vreg(0), vreg(1)}},
		{Op: OpMovi, Regs: [4]Reg{vreg(2)}, Imm: 9},
		{Op: OpJumpNZ, Regs: [4]Reg{vreg(0)}, Label: loop},
		{Op: OpRet, Regs: [4]Reg{vreg(2)}},
	}
	got := make(map[Reg]LiveInterval)
	for _, iv := range liveIntervals(code) {
		got[iv.Reg] = iv
	}
	assert.Equal(t, LiveInterval{Reg: vreg(0), Start: 0, End: 5}, got[vreg(0)])
	// used at the loop head, so live until the back edge
	assert.Equal(t, LiveInterval{Reg: vreg(1), Start: 1, End: 5}, got[vreg(1)])
	assert.Equal(t, LiveInterval{Reg: vreg(2), Start: 4, End: 6}, got[vreg(2)])
}

func TestAllocationSpillsLongestInterval(t *testing.T) {
	c := &funcCode{
		fn: &ir.Function{Name: "f"},
		code: []*Instr{
			{Op: OpMovi, Regs: [4]Reg{vreg(0)}, Imm: 1},
			{Op: OpMovi, Regs: [4]Reg{vreg(1)}, Imm: 2},
			{Op: OpAdd, Regs: [4]Reg{vreg(2), vreg(0), vreg(1)}},
			{Op: OpRet, Regs: [4]Reg{vreg(2)}},
		},
	}
	require.NoError(t, allocateRegisters(c, 1))
	assert.Equal(t, []string{
		"movi $r16 1",
		"movi $r50 2",
		"sw $locbase $r50 0",
		"lw $r50 $locbase 0",
		"add $r51 $r16 $r50",
		"sw $locbase $r51 1",
		"lw $r50 $locbase 1",
		"ret $r50",
	}, render(c.code))
	assert.Equal(t, 2, c.spills)
	assert.Equal(t, []Reg{FirstPoolReg}, c.saved)
	assert.Equal(t, uint64(16), c.frame.size)
}

func TestAllocationReusesExpiredRegisters(t *testing.T) {
	c := &funcCode{
		fn: &ir.Function{Name: "f"},
		code: []*Instr{
			{Op: OpMovi, Regs: [4]Reg{vreg(0)}, Imm: 1},
			{Op: OpAddi, Regs: [4]Reg{vreg(1), vreg(0)}, Imm: 1},
			{Op: OpAddi, Regs: [4]Reg{vreg(2), vreg(1)}, Imm: 1},
			{Op: OpRet, Regs: [4]Reg{vreg(2)}},
		},
	}
	require.NoError(t, allocateRegisters(c, 4))
	assert.Equal(t, []string{
		"movi $r16 1",
		"addi $r17 $r16 1",
		"addi $r16 $r17 1",
		"ret $r16",
	}, render(c.code))
	assert.Zero(t, c.spills)
}

func TestAllocationRejectsPoolSize(t *testing.T) {
	c := &funcCode{fn: &ir.Function{Name: "f"}}
	assert.Error(t, allocateRegisters(c, 0))
	assert.Error(t, allocateRegisters(c, MaxPoolRegs+1))
}
