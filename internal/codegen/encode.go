package codegen

import (
	"encoding/binary"
	"fmt"
)

// headerDataOffset is the byte position of the data section offset word
const headerDataOffset = 8

func encodeInstr(in *Instr) (uint32, error) {
	f := in.Op.Format()
	if in.Op.IsPseudo() {
		return 0, fmt.Errorf("pseudo instruction %s cannot be encoded", in.Op)
	}
	var payload uint32
	shift := 24
	for k := 0; k < f.Registers(); k++ {
		r := in.Regs[k]
		if r >= NumRegs {
			return 0, fmt.Errorf("%s: register %s was not allocated", in, r)
		}
		shift -= 6
		payload |= uint32(r) << shift
	}
	if bits := f.ImmBits(); bits > 0 {
		if !fits(in.Imm, bits) {
			return 0, fmt.Errorf("%s: immediate does not fit %d bits", in, bits)
		}
		payload |= uint32(in.Imm)
	}
	return uint32(in.Op)<<24 | payload, nil
}

// Encode serializes laid out code followed by its data section
func Encode(code []*Instr, data *DataSection) ([]byte, error) {
	var out []byte
	for _, in := range code {
		switch in.Op {
		case OpLabel:
			continue
		case OpDataOffset:
			out = binary.BigEndian.AppendUint64(out, in.Imm)
			continue
		}
		w, err := encodeInstr(in)
		if err != nil {
			return nil, err
		}
		out = binary.BigEndian.AppendUint32(out, w)
	}
	if len(out)%8 != 0 {
		return nil, fmt.Errorf("code section of %d bytes is not word aligned", len(out))
	}
	return append(out, data.Encode()...), nil
}

// Decode splits bytecode into its instructions and data section
func Decode(bytecode []byte) ([]*Instr, []byte, error) {
	if len(bytecode) < headerDataOffset+8 {
		return nil, nil, fmt.Errorf("bytecode of %d bytes has no header", len(bytecode))
	}
	dataOff := binary.BigEndian.Uint64(bytecode[headerDataOffset:])
	if dataOff > uint64(len(bytecode)) || dataOff%4 != 0 {
		return nil, nil, fmt.Errorf("data section offset %d out of range", dataOff)
	}

	var code []*Instr
	for pos := uint64(0); pos < dataOff; pos += 4 {
		if pos == headerDataOffset {
			code = append(code, &Instr{Op: OpDataOffset, Imm: dataOff})
			pos += 4
			continue
		}
		w := binary.BigEndian.Uint32(bytecode[pos:])
		in, err := decodeInstr(w)
		if err != nil {
			return nil, nil, fmt.Errorf("instruction %d: %w", pos/4, err)
		}
		code = append(code, in)
	}
	return code, bytecode[dataOff:], nil
}

func decodeInstr(w uint32) (*Instr, error) {
	op := Opcode(w >> 24)
	if op >= numMachineOps {
		return nil, fmt.Errorf("unknown opcode 0x%02x", uint8(op))
	}
	f := op.Format()
	in := &Instr{Op: op}
	shift := 24
	for k := 0; k < f.Registers(); k++ {
		shift -= 6
		in.Regs[k] = Reg(w >> shift & 0x3f)
	}
	if bits := f.ImmBits(); bits > 0 {
		in.Imm = uint64(w & (1<<bits - 1))
	}
	return in, nil
}
