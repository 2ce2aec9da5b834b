package irexec

import (
	"crypto/sha256"
	"math/bits"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"contractc/internal/ir"
	"contractc/internal/types"
)

// asmState holds the registers of one asm block
type asmState struct {
	m    *Machine
	regs map[string]uint64
}

func (s *asmState) reg(name string) (uint64, error) {
	switch name {
	case "$zero":
		return 0, nil
	case "$one":
		return 1, nil
	}
	if v, ok := s.regs[name]; ok {
		return v, nil
	}
	return 0, pkgerrors.Errorf("asm: unknown register %s", name)
}

func (s *asmState) set(name string, v uint64) error {
	if name == "$zero" || name == "$one" {
		return pkgerrors.Errorf("asm: write to read-only register %s", name)
	}
	s.regs[name] = v
	return nil
}

func imm(arg string) (uint64, error) {
	n, err := strconv.ParseUint(strings.ReplaceAll(arg, "_", ""), 0, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "asm: bad immediate %s", arg)
	}
	return n, nil
}

// asm runs the subset of target instructions the compiler itself emits in
// asm blocks, plus plain word arithmetic and memory access. Values that do
// not fit a register are passed by address.
func (m *Machine) asm(f *frame, i *ir.AsmBlock) ([]byte, error) {
	s := &asmState{m: m, regs: make(map[string]uint64)}
	for _, a := range i.Args {
		var v uint64
		if a.Value != nil {
			b, err := f.get(a.Value)
			if err != nil {
				return nil, err
			}
			if a.Value.Type.IsWordScalar() {
				v = ToUint64(b)
			} else {
				v = m.alloc(uint64(len(b)))
				if err := m.write(v, b); err != nil {
					return nil, err
				}
			}
		}
		s.regs[a.Name] = v
	}

	for _, op := range i.Body {
		if err := s.step(op); err != nil {
			return nil, err
		}
	}

	t := i.Result.Type
	if i.ReturnReg == "" || t.IsUnit() {
		return nil, nil
	}
	v, err := s.reg(i.ReturnReg)
	if err != nil {
		return nil, err
	}
	if t.IsWordScalar() {
		return Word(v), nil
	}
	return m.read(v, types.Size(t))
}

func (s *asmState) step(op ir.AsmOp) error {
	want := func(n int) error {
		if len(op.Args) != n {
			return pkgerrors.Errorf("asm: %s takes %d operands, got %d", op.Name, n, len(op.Args))
		}
		return nil
	}
	// operands reads every operand but the first (the output) as a
	// register, the last one as an immediate when last is set
	operands := func(n int, last bool) ([]uint64, error) {
		if err := want(n); err != nil {
			return nil, err
		}
		out := make([]uint64, n)
		for k := 1; k < n; k++ {
			var err error
			if last && k == n-1 {
				out[k], err = imm(op.Args[k])
			} else {
				out[k], err = s.reg(op.Args[k])
			}
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	m := s.m

	switch op.Name {
	case "noop":
		return want(0)

	case "move":
		v, err := operands(2, false)
		if err != nil {
			return err
		}
		return s.set(op.Args[0], v[1])

	case "movi":
		v, err := operands(2, true)
		if err != nil {
			return err
		}
		return s.set(op.Args[0], v[1])

	case "add", "sub", "mul", "div", "mod", "and", "or", "xor", "eq", "lt", "gt",
		"addi", "subi", "muli", "divi", "modi", "andi", "ori", "xori":
		v, err := operands(3, strings.HasSuffix(op.Name, "i"))
		if err != nil {
			return err
		}
		r, ok := wordOp(strings.TrimSuffix(op.Name, "i"), v[1], v[2])
		if !ok {
			return &RevertError{Code: ir.ArithmeticRevertCode}
		}
		return s.set(op.Args[0], r)

	case "not":
		v, err := operands(2, false)
		if err != nil {
			return err
		}
		return s.set(op.Args[0], ^v[1])

	case "lw":
		v, err := operands(3, true)
		if err != nil {
			return err
		}
		b, err := m.read(v[1]+v[2]*types.WordSize, types.WordSize)
		if err != nil {
			return err
		}
		return s.set(op.Args[0], ToUint64(b))

	case "sw":
		if err := want(3); err != nil {
			return err
		}
		addr, err := s.reg(op.Args[0])
		if err != nil {
			return err
		}
		v, err := s.reg(op.Args[1])
		if err != nil {
			return err
		}
		off, err := imm(op.Args[2])
		if err != nil {
			return err
		}
		return m.write(addr+off*types.WordSize, Word(v))

	case "mcp", "mcpi":
		v, err := s.all(op, 3, op.Name == "mcpi")
		if err != nil {
			return err
		}
		data, err := m.read(v[1], v[2])
		if err != nil {
			return err
		}
		return m.write(v[0], data)

	case "mcl", "mcli":
		v, err := s.all(op, 2, op.Name == "mcli")
		if err != nil {
			return err
		}
		return m.zero(v[0], v[1])

	case "s256":
		v, err := s.all(op, 3, false)
		if err != nil {
			return err
		}
		data, err := m.read(v[1], v[2])
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		return m.write(v[0], sum[:])

	case "srw":
		// srw value, set, key
		v, err := s.all(op, 3, false)
		if err != nil {
			return err
		}
		k, err := m.key(v[2])
		if err != nil {
			return err
		}
		slot, ok := m.Storage[k]
		if err := s.set(op.Args[0], ToUint64(slot[:])); err != nil {
			return err
		}
		return s.set(op.Args[1], flag(ok))

	case "sww":
		// sww key, set, value
		v, err := s.all(op, 3, false)
		if err != nil {
			return err
		}
		k, err := m.key(v[0])
		if err != nil {
			return err
		}
		_, ok := m.Storage[k]
		var slot [32]byte
		copy(slot[:], Word(v[2]))
		m.Storage[k] = slot
		return s.set(op.Args[1], flag(ok))

	case "srwq":
		// srwq dst, set, key, count
		v, err := s.all(op, 4, false)
		if err != nil {
			return err
		}
		k, err := m.key(v[2])
		if err != nil {
			return err
		}
		if err := m.check(v[0], v[3]*types.SlotSize); err != nil {
			return err
		}
		return s.set(op.Args[1], flag(m.loadSlots(k, v[0], v[3])))

	case "swwq":
		// swwq key, set, src, count
		v, err := s.all(op, 4, false)
		if err != nil {
			return err
		}
		k, err := m.key(v[0])
		if err != nil {
			return err
		}
		_, ok := m.Storage[k]
		if err := m.storeSlots(k, v[2], v[3]); err != nil {
			return err
		}
		return s.set(op.Args[1], flag(ok))

	case "scwq":
		// scwq key, set, count
		v, err := s.all(op, 3, false)
		if err != nil {
			return err
		}
		k, err := m.key(v[0])
		if err != nil {
			return err
		}
		_, ok := m.Storage[k]
		m.clearSlots(k, v[2])
		return s.set(op.Args[1], flag(ok))

	case "rvrt":
		v, err := s.all(op, 1, false)
		if err != nil {
			return err
		}
		return &RevertError{Code: v[0]}
	}
	return pkgerrors.Errorf("asm: unsupported instruction %s", op.Name)
}

// all reads every operand as a register, the last one as an immediate
// when last is set. Output registers read as their current value.
func (s *asmState) all(op ir.AsmOp, n int, last bool) ([]uint64, error) {
	if len(op.Args) != n {
		return nil, pkgerrors.Errorf("asm: %s takes %d operands, got %d", op.Name, n, len(op.Args))
	}
	out := make([]uint64, n)
	for k, a := range op.Args {
		var err error
		if last && k == n-1 {
			out[k], err = imm(a)
		} else if _, known := s.regs[a]; known || strings.HasPrefix(a, "$") {
			out[k], err = s.reg(a)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// wordOp evaluates a register arithmetic instruction on 64-bit words
func wordOp(name string, a, b uint64) (uint64, bool) {
	switch name {
	case "add":
		r, carry := bits.Add64(a, b, 0)
		return r, carry == 0
	case "sub":
		r, borrow := bits.Sub64(a, b, 0)
		return r, borrow == 0
	case "mul":
		hi, lo := bits.Mul64(a, b)
		return lo, hi == 0
	case "div":
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case "mod":
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case "and":
		return a & b, true
	case "or":
		return a | b, true
	case "xor":
		return a ^ b, true
	case "eq":
		return flag(a == b), true
	case "lt":
		return flag(a < b), true
	case "gt":
		return flag(a > b), true
	}
	return 0, false
}
