package codegen

import (
	"contractc/internal/errors"
	"contractc/internal/types"
)

// maxImm12 bounds the immediates of the RRI format
const maxImm12 = 1<<12 - 1

// expandFrame replaces the prologue and epilogue markers of c now that the
// saved registers and frame size are known
func expandFrame(c *funcCode) ([]*Instr, error) {
	var low, high uint64
	for _, r := range c.saved {
		switch {
		case r < FirstPoolReg+24:
			low |= 1 << (r - FirstPoolReg)
		default:
			high |= 1 << (r - FirstPoolReg - 24)
		}
	}
	high |= 1<<(RegLocbase-FirstPoolReg-24) | 1<<(RegReta-FirstPoolReg-24)

	size := c.frame.size
	if !fits(size, 24) {
		return nil, errors.InternalAt(c.fn.Name, "", c.fn.Metadata.Position(),
			"frame of %d bytes is too large", size)
	}

	out := make([]*Instr, 0, len(c.code)+8)
	for _, in := range c.code {
		switch in.Op {
		case OpEnter:
			if low != 0 {
				out = append(out, &Instr{Op: OpPshl, Imm: low})
			}
			out = append(out,
				&Instr{Op: OpPshh, Imm: high},
				&Instr{Op: OpMove, Regs: [4]Reg{RegLocbase, RegSp}})
			if size > 0 {
				out = append(out, &Instr{Op: OpCfei, Imm: size})
			}
		case OpLeave:
			if size > 0 {
				out = append(out, &Instr{Op: OpCfsi, Imm: size})
			}
			out = append(out, &Instr{Op: OpPoph, Imm: high})
			if low != 0 {
				out = append(out, &Instr{Op: OpPopl, Imm: low})
			}
			out = append(out, &Instr{Op: OpJal, Regs: [4]Reg{RegZero, RegReta}})
		default:
			out = append(out, in)
		}
	}
	return out, nil
}

// layoutState tracks which jumps have been widened
type layoutState struct {
	code  []*Instr
	data  *DataSection
	far   map[*Instr]int // jump -> data entry of its target address
	index []int          // instruction index of each element of code
	size  int            // instructions in the code section
	opts  Options
}

func (l *layoutState) loadSize(entry int) int {
	if l.data.Offset(entry)/types.WordSize <= maxImm12 {
		return 1
	}
	return 3
}

func (l *layoutState) slots(in *Instr) int {
	switch in.Op {
	case OpLabel:
		return 0
	case OpDataOffset:
		return 2
	case OpLoadData:
		return l.loadSize(in.Data)
	case OpAddrData:
		if l.data.Offset(in.Data) <= maxImm12 {
			return 1
		}
		return 2
	case OpJump:
		if e, ok := l.far[in]; ok {
			return l.loadSize(e) + 1
		}
		return 1
	case OpJumpNZ:
		if e, ok := l.far[in]; ok {
			return l.loadSize(e) + 3
		}
		return 1
	}
	return 1
}

// place assigns instruction indices to code and labels
func (l *layoutState) place() {
	n := 0
	for k, in := range l.code {
		l.index[k] = n
		if in.Op == OpLabel {
			in.Label.Index = n
		}
		n += l.slots(in)
	}
	l.size = n
}

// widen converts every short jump whose target is out of reach and
// reports how many it converted
func (l *layoutState) widen() int {
	widened := 0
	for _, in := range l.code {
		var bits int
		switch in.Op {
		case OpJump:
			bits = l.opts.ShortJumpBits
		case OpJumpNZ:
			bits = l.opts.ShortCondJumpBits
		default:
			continue
		}
		if _, ok := l.far[in]; ok || fits(uint64(in.Label.Index), bits) {
			continue
		}
		l.far[in] = l.data.Addr(in.Label)
		widened++
	}
	return widened
}

// layout fixes the position of every instruction. Jumps start short and
// are widened until none is out of reach; widening only ever grows code, so
// the loop converges unless the iteration bound is hit first.
func layout(code []*Instr, data *DataSection, opts Options) ([]*Instr, error) {
	l := &layoutState{
		code:  code,
		data:  data,
		far:   make(map[*Instr]int),
		index: make([]int, len(code)),
		opts:  opts,
	}
	for iter := 1; ; iter++ {
		if iter > opts.MaxLayoutIterations {
			return nil, errors.Internal("layout did not converge after %d iterations", opts.MaxLayoutIterations)
		}
		l.place()
		widened := l.widen()
		log.Debugf("layout iteration %d: %d instructions, %d jumps widened", iter, l.size, widened)
		if widened == 0 {
			break
		}
	}
	if len(l.far) > 0 {
		log.Infof("%d far jumps", len(l.far))
	}
	return l.expand()
}

// expand lowers every pseudo instruction to machine instructions. Labels
// are kept as zero-width markers for the listing.
func (l *layoutState) expand() ([]*Instr, error) {
	out := make([]*Instr, 0, l.size+1)
	for k, in := range l.code {
		switch in.Op {
		case OpLabel:
			out = append(out, in)
		case OpDataOffset:
			out = append(out, in)
		case OpLoadData:
			load, err := l.load(in.Regs[0], in.Data)
			if err != nil {
				return nil, err
			}
			out = append(out, load...)
		case OpAddrData:
			off := l.data.Offset(in.Data)
			if off <= maxImm12 {
				out = append(out, &Instr{Op: OpAddi, Regs: [4]Reg{in.Regs[0], RegDs}, Imm: off})
				break
			}
			if !fits(off, 18) {
				return nil, errors.Internal("data offset %d out of range", off)
			}
			out = append(out,
				&Instr{Op: OpMovi, Regs: [4]Reg{in.Regs[0]}, Imm: off},
				&Instr{Op: OpAdd, Regs: [4]Reg{in.Regs[0], RegDs, in.Regs[0]}})
		case OpJump:
			e, far := l.far[in]
			if !far {
				out = append(out, &Instr{Op: OpJi, Imm: uint64(in.Label.Index), Label: in.Label})
				break
			}
			load, err := l.load(RegTmp, e)
			if err != nil {
				return nil, err
			}
			out = append(out, load...)
			out = append(out, &Instr{Op: OpJmp, Regs: [4]Reg{RegTmp}, Label: in.Label})
		case OpJumpNZ:
			e, far := l.far[in]
			if !far {
				out = append(out, &Instr{Op: OpJnzi, Regs: [4]Reg{in.Regs[0]}, Imm: uint64(in.Label.Index), Label: in.Label})
				break
			}
			load, err := l.load(RegTmp, e)
			if err != nil {
				return nil, err
			}
			// skip the far jump when the condition is zero
			out = append(out,
				&Instr{Op: OpEq, Regs: [4]Reg{RegTmp, in.Regs[0], RegZero}},
				&Instr{Op: OpJnzf, Regs: [4]Reg{RegTmp, RegZero}, Imm: uint64(len(load) + 1)})
			out = append(out, load...)
			out = append(out, &Instr{Op: OpJmp, Regs: [4]Reg{RegTmp}, Label: in.Label})
		case OpEnter, OpLeave:
			return nil, errors.Internal("frame marker left at index %d", l.index[k])
		default:
			out = append(out, in)
		}
	}
	if l.size%2 == 1 {
		out = append(out, &Instr{Op: OpNoop})
		l.size++
	}
	for _, in := range out {
		if in.Op == OpDataOffset {
			in.Imm = uint64(l.size) * 4
		}
	}
	return out, nil
}

// load reads data entry e into r
func (l *layoutState) load(r Reg, e int) ([]*Instr, error) {
	off := l.data.Offset(e)
	if off/types.WordSize <= maxImm12 {
		return []*Instr{{Op: OpLw, Regs: [4]Reg{r, RegDs}, Imm: off / types.WordSize}}, nil
	}
	if !fits(off, 18) {
		return nil, errors.Internal("data offset %d out of range", off)
	}
	return []*Instr{
		{Op: OpMovi, Regs: [4]Reg{r}, Imm: off},
		{Op: OpAdd, Regs: [4]Reg{r, RegDs, r}},
		{Op: OpLw, Regs: [4]Reg{r, r}},
	}, nil
}
