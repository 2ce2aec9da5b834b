package codegen

import (
	"crypto/sha256"
	"encoding/binary"
	"maps"
	"math/bits"

	"github.com/holiman/uint256"
	pkgerrors "github.com/pkg/errors"

	"contractc/internal/ir"
	"contractc/internal/storage"
)

// testVM executes encoded bytecode the way the target VM does, closely
// enough to check generated code against the IR interpreter
type testVM struct {
	Storage map[storage.Key][32]byte
	Logs    [][2]uint64

	bytecode []byte
	regs     [NumRegs]uint64
	mem      []byte
	pc       uint64
	steps    int
}

const (
	vmMemSize  = 1 << 20
	vmFrame    = 0x100
	vmArgs     = 0x800
	vmCodeBase = 0x4000
	vmMaxSteps = 1_000_000
)

type vmResult struct {
	Value      []byte
	Reverted   bool
	RevertCode uint64
}

type vmRevert struct{ code uint64 }

func (r *vmRevert) Error() string { return "revert" }

type vmReturn struct{ value []byte }

func (r *vmReturn) Error() string { return "return" }

func newTestVM(bytecode []byte) *testVM {
	return &testVM{Storage: make(map[storage.Key][32]byte), bytecode: bytecode}
}

// run starts the program with selector and the encoded argument buffer
func (vm *testVM) run(selector uint32, args []byte) (*vmResult, error) {
	vm.mem = make([]byte, vmMemSize)
	vm.regs = [NumRegs]uint64{}
	vm.pc, vm.steps = 0, 0
	copy(vm.mem[vmCodeBase:], vm.bytecode)
	copy(vm.mem[vmArgs:], args)
	binary.BigEndian.PutUint64(vm.mem[vmFrame+frameSelectorWord*8:], uint64(selector))
	binary.BigEndian.PutUint64(vm.mem[vmFrame+frameArgsWord*8:], vmArgs)

	stack := uint64(vmCodeBase+len(vm.bytecode)+0x100) &^ 7
	vm.regs[RegOne] = 1
	vm.regs[RegIs] = vmCodeBase
	vm.regs[RegFp] = vmFrame
	vm.regs[RegSp] = stack
	vm.regs[RegSsp] = stack

	snapshot := maps.Clone(vm.Storage)
	for {
		err := vm.step()
		if err == nil {
			continue
		}
		var ret *vmReturn
		var rev *vmRevert
		switch {
		case pkgerrors.As(err, &ret):
			return &vmResult{Value: ret.value}, nil
		case pkgerrors.As(err, &rev):
			vm.Storage = snapshot
			return &vmResult{Reverted: true, RevertCode: rev.code}, nil
		}
		return nil, err
	}
}

func (vm *testVM) check(addr, size uint64) error {
	if addr+size > vmMemSize || addr+size < addr {
		return pkgerrors.Errorf("memory access %#x+%d out of bounds at %d", addr, size, vm.pc)
	}
	return nil
}

func (vm *testVM) read(addr, size uint64) ([]byte, error) {
	if err := vm.check(addr, size); err != nil {
		return nil, err
	}
	return vm.mem[addr : addr+size], nil
}

func (vm *testVM) word(addr uint64) (uint64, error) {
	b, err := vm.read(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (vm *testVM) setWord(addr, v uint64) error {
	if err := vm.check(addr, 8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(vm.mem[addr:], v)
	return nil
}

func (vm *testVM) wide(addr uint64) (*uint256.Int, error) {
	b, err := vm.read(addr, 32)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}

func (vm *testVM) key(addr uint64) (storage.Key, error) {
	var k storage.Key
	b, err := vm.read(addr, 32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

func (vm *testVM) set(r Reg, v uint64) {
	if r != RegZero && r != RegOne {
		vm.regs[r] = v
	}
}

func arith() error { return &vmRevert{code: ir.ArithmeticRevertCode} }

func (vm *testVM) binary(op Opcode, a, b uint64) (uint64, error) {
	switch op {
	case OpAdd, OpAddi:
		s, carry := bits.Add64(a, b, 0)
		if carry != 0 {
			return 0, arith()
		}
		return s, nil
	case OpSub, OpSubi:
		if b > a {
			return 0, arith()
		}
		return a - b, nil
	case OpMul, OpMuli:
		hi, lo := bits.Mul64(a, b)
		if hi != 0 {
			return 0, arith()
		}
		return lo, nil
	case OpDiv, OpDivi:
		if b == 0 {
			return 0, arith()
		}
		return a / b, nil
	case OpMod, OpModi:
		if b == 0 {
			return 0, arith()
		}
		return a % b, nil
	case OpAnd, OpAndi:
		return a & b, nil
	case OpOr, OpOri:
		return a | b, nil
	case OpXor, OpXori:
		return a ^ b, nil
	case OpSll, OpSlli:
		if a != 0 && (b >= 64 || bits.LeadingZeros64(a) < int(b)) {
			return 0, arith()
		}
		if b >= 64 {
			return 0, nil
		}
		return a << b, nil
	case OpSrl, OpSrli:
		if b >= 64 {
			return 0, nil
		}
		return a >> b, nil
	}
	return 0, pkgerrors.Errorf("not a binary op: %s", op)
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (vm *testVM) step() error {
	if vm.steps++; vm.steps > vmMaxSteps {
		return pkgerrors.New("step limit exceeded")
	}
	w, err := vm.read(vmCodeBase+vm.pc*4, 4)
	if err != nil {
		return err
	}
	in, err := decodeInstr(binary.BigEndian.Uint32(w))
	if err != nil {
		return pkgerrors.Wrapf(err, "at %d", vm.pc)
	}
	r := func(k int) uint64 { return vm.regs[in.Regs[k]] }
	a, b := in.Regs[0], in.Regs[1]
	next := vm.pc + 1

	switch in.Op {
	case OpNoop:
	case OpMove:
		vm.set(a, r(1))
	case OpMovi:
		vm.set(a, in.Imm)
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpSll, OpSrl:
		v, err := vm.binary(in.Op, r(1), r(2))
		if err != nil {
			return err
		}
		vm.set(a, v)
	case OpAddi, OpSubi, OpMuli, OpDivi, OpModi, OpAndi, OpOri, OpXori, OpSlli, OpSrli:
		v, err := vm.binary(in.Op, r(1), in.Imm)
		if err != nil {
			return err
		}
		vm.set(a, v)
	case OpEq:
		vm.set(a, boolWord(r(1) == r(2)))
	case OpLt:
		vm.set(a, boolWord(r(1) < r(2)))
	case OpGt:
		vm.set(a, boolWord(r(1) > r(2)))
	case OpNot:
		vm.set(a, ^r(1))

	case OpLw:
		v, err := vm.word(r(1) + in.Imm*8)
		if err != nil {
			return err
		}
		vm.set(a, v)
	case OpSw:
		if err := vm.setWord(r(0)+in.Imm*8, r(1)); err != nil {
			return err
		}
	case OpMcp, OpMcpi:
		n := in.Imm
		if in.Op == OpMcp {
			n = r(2)
		}
		src, err := vm.read(r(1), n)
		if err != nil {
			return err
		}
		if err := vm.check(r(0), n); err != nil {
			return err
		}
		copy(vm.mem[r(0):], src)
	case OpMcl, OpMcli:
		n := in.Imm
		if in.Op == OpMcl {
			n = r(1)
		}
		if err := vm.check(r(0), n); err != nil {
			return err
		}
		clear(vm.mem[r(0) : r(0)+n])
	case OpS256:
		src, err := vm.read(r(1), r(2))
		if err != nil {
			return err
		}
		sum := sha256.Sum256(src)
		if err := vm.check(r(0), 32); err != nil {
			return err
		}
		copy(vm.mem[r(0):], sum[:])

	case OpSrw:
		k, err := vm.key(r(2))
		if err != nil {
			return err
		}
		slot, ok := vm.Storage[k]
		vm.set(a, binary.BigEndian.Uint64(slot[:]))
		vm.set(b, boolWord(ok))
	case OpSww:
		k, err := vm.key(r(0))
		if err != nil {
			return err
		}
		_, ok := vm.Storage[k]
		var slot [32]byte
		binary.BigEndian.PutUint64(slot[:], r(2))
		vm.Storage[k] = slot
		vm.set(b, boolWord(ok))
	case OpSrwq:
		k, err := vm.key(r(2))
		if err != nil {
			return err
		}
		all := true
		for i := uint64(0); i < r(3); i++ {
			slot, ok := vm.Storage[k.Offset(i)]
			all = all && ok
			if err := vm.check(r(0)+i*32, 32); err != nil {
				return err
			}
			copy(vm.mem[r(0)+i*32:], slot[:])
		}
		vm.set(b, boolWord(all))
	case OpSwwq:
		k, err := vm.key(r(0))
		if err != nil {
			return err
		}
		all := true
		for i := uint64(0); i < r(3); i++ {
			src, err := vm.read(r(2)+i*32, 32)
			if err != nil {
				return err
			}
			slotKey := k.Offset(i)
			_, ok := vm.Storage[slotKey]
			all = all && ok
			vm.Storage[slotKey] = [32]byte(src)
		}
		vm.set(b, boolWord(all))
	case OpScwq:
		k, err := vm.key(r(0))
		if err != nil {
			return err
		}
		all := true
		for i := uint64(0); i < r(2); i++ {
			slotKey := k.Offset(i)
			_, ok := vm.Storage[slotKey]
			all = all && ok
			delete(vm.Storage, slotKey)
		}
		vm.set(b, boolWord(all))

	case OpJi:
		next = in.Imm
	case OpJnzi:
		if r(0) != 0 {
			next = in.Imm
		}
	case OpJnzf:
		if r(0) != 0 {
			next = vm.pc + 1 + r(1) + in.Imm
		}
	case OpJmp:
		next = r(0)
	case OpJal:
		target := r(1) + in.Imm
		vm.set(a, vm.pc+1)
		next = target
	case OpRet:
		return &vmReturn{value: binary.BigEndian.AppendUint64(nil, r(0))}
	case OpRetd:
		v, err := vm.read(r(0), r(1))
		if err != nil {
			return err
		}
		return &vmReturn{value: append([]byte(nil), v...)}
	case OpRvrt:
		return &vmRevert{code: r(0)}

	case OpCfei:
		vm.regs[RegSp] += in.Imm
	case OpCfsi:
		vm.regs[RegSp] -= in.Imm
	case OpPshl, OpPshh:
		base := FirstPoolReg
		if in.Op == OpPshh {
			base += 24
		}
		for i := 0; i < 24; i++ {
			if in.Imm&(1<<i) == 0 {
				continue
			}
			if err := vm.setWord(vm.regs[RegSp], vm.regs[base+Reg(i)]); err != nil {
				return err
			}
			vm.regs[RegSp] += 8
		}
	case OpPopl, OpPoph:
		base := FirstPoolReg
		if in.Op == OpPoph {
			base += 24
		}
		for i := 23; i >= 0; i-- {
			if in.Imm&(1<<i) == 0 {
				continue
			}
			vm.regs[RegSp] -= 8
			v, err := vm.word(vm.regs[RegSp])
			if err != nil {
				return err
			}
			vm.regs[base+Reg(i)] = v
		}

	case OpCall:
		vm.regs[RegRet] = 0
	case OpLog:
		vm.Logs = append(vm.Logs, [2]uint64{r(0), r(1)})
	case OpLogd:
		vm.Logs = append(vm.Logs, [2]uint64{r(2), r(1)})
	case OpSmo:

	case OpWqop:
		x, err := vm.wide(r(1))
		if err != nil {
			return err
		}
		var res *uint256.Int
		if in.Imm == wqopNot {
			res = new(uint256.Int).Not(x)
		} else {
			y, err := vm.wide(r(2))
			if err != nil {
				return err
			}
			var ok bool
			if res, ok = ir.FoldBinary(ir.BinaryOpKind(in.Imm), 256, x, y); !ok {
				return arith()
			}
		}
		out := res.Bytes32()
		if err := vm.check(r(0), 32); err != nil {
			return err
		}
		copy(vm.mem[r(0):], out[:])
	case OpWqcm:
		x, err := vm.wide(r(1))
		if err != nil {
			return err
		}
		y, err := vm.wide(r(2))
		if err != nil {
			return err
		}
		vm.set(a, boolWord(ir.FoldCompare(ir.Predicate(in.Imm), x, y)))

	default:
		return pkgerrors.Errorf("cannot execute %s at %d", in.Op, vm.pc)
	}
	vm.pc = next
	return nil
}
