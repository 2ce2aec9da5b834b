package codegen

import (
	"sort"

	"contractc/internal/errors"
)

// AllocationType says where a virtual register ended up
type AllocationType int

const (
	AllocRegister AllocationType = iota
	AllocSpill
)

// Allocation is the final home of a virtual register
type Allocation struct {
	Type      AllocationType
	Register  Reg
	SpillSlot uint64 // byte offset from $locbase
}

// maxSpillWord is the largest word offset lw and sw can address
const maxSpillWord = 1<<12 - 1

// reloadRegs hold spilled operands around one instruction. $tmp is free
// until layout expands far jumps.
var reloadRegs = [4]Reg{RegScratch, RegScratch + 1, RegScratch + 2, RegTmp}

// allocateRegisters assigns pool registers to the virtual registers of c
// with linear scan, spilling the interval that ends last when the pool
// runs out, and rewrites c.code to machine registers only.
func allocateRegisters(c *funcCode, registers int) error {
	if registers < 1 || registers > MaxPoolRegs {
		return errors.Internal("register pool size %d out of range", registers)
	}
	intervals := liveIntervals(c.code)
	alloc := make(map[Reg]Allocation, len(intervals))

	free := make([]Reg, registers)
	for k := range free {
		free[k] = FirstPoolReg + Reg(k)
	}
	var active []LiveInterval
	used := make(map[Reg]bool)

	spill := func(iv LiveInterval) error {
		slot := c.frame.allocSpill()
		if slot/8 > maxSpillWord {
			return errors.InternalAt(c.fn.Name, "", c.fn.Metadata.Position(),
				"spill slot %d out of range", slot)
		}
		alloc[iv.Reg] = Allocation{Type: AllocSpill, SpillSlot: slot}
		c.spills++
		return nil
	}

	for _, iv := range intervals {
		// expire
		keep := active[:0]
		for _, a := range active {
			if a.End < iv.Start {
				free = append(free, alloc[a.Reg].Register)
				continue
			}
			keep = append(keep, a)
		}
		active = keep

		if len(free) > 0 {
			sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
			r := free[0]
			free = free[1:]
			alloc[iv.Reg] = Allocation{Type: AllocRegister, Register: r}
			used[r] = true
			active = append(active, iv)
			continue
		}

		furthest := 0
		for k, a := range active {
			if a.End > active[furthest].End {
				furthest = k
			}
		}
		victim := active[furthest]
		if victim.End > iv.End {
			alloc[iv.Reg] = Allocation{Type: AllocRegister, Register: alloc[victim.Reg].Register}
			if err := spill(victim); err != nil {
				return err
			}
			active[furthest] = iv
			continue
		}
		if err := spill(iv); err != nil {
			return err
		}
	}

	for r := range used {
		c.saved = append(c.saved, r)
	}
	sort.Slice(c.saved, func(i, j int) bool { return c.saved[i] < c.saved[j] })
	return rewrite(c, alloc)
}

// rewrite replaces virtual registers with their allocation. Spilled
// registers are reloaded into scratch registers before each instruction
// and stored back after it.
func rewrite(c *funcCode, alloc map[Reg]Allocation) error {
	out := make([]*Instr, 0, len(c.code))
	for _, in := range c.code {
		roles := in.Roles()
		scratch := make(map[Reg]Reg)
		var reloads, stores []*Instr
		for _, want := range [...]Role{RoleUse, RoleDef} {
			for k, role := range roles {
				r := in.Regs[k]
				if role != want || !r.IsVirtual() {
					continue
				}
				a, ok := alloc[r]
				if !ok {
					return errors.InternalAt(c.fn.Name, in.String(), c.fn.Metadata.Position(),
						"virtual register %s was never allocated", r)
				}
				if a.Type == AllocRegister {
					in.Regs[k] = a.Register
					continue
				}
				s, seen := scratch[r]
				if !seen {
					s = reloadRegs[len(scratch)]
					scratch[r] = s
					if role == RoleUse {
						reloads = append(reloads, &Instr{Op: OpLw, Regs: [4]Reg{s, RegLocbase}, Imm: a.SpillSlot / 8})
					}
				}
				in.Regs[k] = s
				if role == RoleDef {
					stores = append(stores, &Instr{Op: OpSw, Regs: [4]Reg{RegLocbase, s}, Imm: a.SpillSlot / 8})
				}
			}
		}
		out = append(out, reloads...)
		out = append(out, in)
		out = append(out, stores...)
	}
	c.code = out
	return nil
}
