package codegen

import "sort"

// mblock is a straight-line run of machine instructions
type mblock struct {
	start, end int // code[start:end]
	succs      []int
	use, def   map[Reg]bool
	in, out    map[Reg]bool
}

// LiveInterval is the range of instruction positions over which a virtual
// register may hold a value
type LiveInterval struct {
	Reg        Reg
	Start, End int
}

// splitBlocks partitions code into machine blocks. A block starts at a
// label or after an instruction that transfers control.
func splitBlocks(code []*Instr) []*mblock {
	var blocks []*mblock
	labels := make(map[*Label]int)
	start := 0
	flush := func(end int) {
		if end > start {
			blocks = append(blocks, &mblock{start: start, end: end})
		}
		start = end
	}
	for k, in := range code {
		if in.Op == OpLabel {
			flush(k)
			labels[in.Label] = len(blocks)
		}
		if in.terminates() || in.Op == OpJumpNZ {
			flush(k + 1)
		}
	}
	flush(len(code))

	for b, blk := range blocks {
		last := code[blk.end-1]
		if last.Op == OpJump || last.Op == OpJumpNZ {
			if t, ok := labels[last.Label]; ok {
				blk.succs = append(blk.succs, t)
			}
		}
		if !last.terminates() && b+1 < len(blocks) {
			blk.succs = append(blk.succs, b+1)
		}
	}
	return blocks
}

// liveIntervals computes one interval per virtual register of code
func liveIntervals(code []*Instr) []LiveInterval {
	blocks := splitBlocks(code)
	for _, b := range blocks {
		b.use, b.def = make(map[Reg]bool), make(map[Reg]bool)
		b.in, b.out = make(map[Reg]bool), make(map[Reg]bool)
		for _, in := range code[b.start:b.end] {
			roles := in.Roles()
			for k, role := range roles {
				if r := in.Regs[k]; role == RoleUse && r.IsVirtual() && !b.def[r] {
					b.use[r] = true
				}
			}
			for k, role := range roles {
				if r := in.Regs[k]; role == RoleDef && r.IsVirtual() {
					b.def[r] = true
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]
			for _, s := range b.succs {
				for r := range blocks[s].in {
					b.out[r] = true
				}
			}
			for r := range b.out {
				if !b.def[r] && !b.in[r] {
					b.in[r] = true
					changed = true
				}
			}
			for r := range b.use {
				if !b.in[r] {
					b.in[r] = true
					changed = true
				}
			}
		}
	}

	spans := make(map[Reg]*LiveInterval)
	extend := func(r Reg, pos int) {
		if iv, ok := spans[r]; ok {
			iv.Start = min(iv.Start, pos)
			iv.End = max(iv.End, pos)
			return
		}
		spans[r] = &LiveInterval{Reg: r, Start: pos, End: pos}
	}
	for _, b := range blocks {
		for r := range b.in {
			extend(r, b.start)
		}
		for r := range b.out {
			extend(r, b.end-1)
		}
		for k := b.start; k < b.end; k++ {
			in := code[k]
			for j, role := range in.Roles() {
				if r := in.Regs[j]; role != RoleNone && r.IsVirtual() {
					extend(r, k)
				}
			}
		}
	}

	intervals := make([]LiveInterval, 0, len(spans))
	for _, iv := range spans {
		intervals = append(intervals, *iv)
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start != intervals[j].Start {
			return intervals[i].Start < intervals[j].Start
		}
		return intervals[i].Reg < intervals[j].Reg
	})
	return intervals
}
