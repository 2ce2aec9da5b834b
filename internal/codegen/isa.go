package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// Reg is a machine register when below NumRegs, a virtual register
// otherwise. Virtual registers only exist until register allocation.
type Reg uint16

const (
	RegZero Reg = iota
	RegOne
	RegOf
	RegPc
	RegSsp
	RegSp
	RegFp
	RegHp
	RegErr
	RegGgas
	RegCgas
	RegBal
	RegIs
	RegRet
	RegRetl
	RegFlag
)

const (
	FirstPoolReg Reg = 16
	MaxPoolRegs      = 34

	RegScratch Reg = 50 // 50..52
	RegTmp     Reg = 53
	RegDs      Reg = 54
	RegLocbase Reg = 55
	RegReta    Reg = 56
	RegRetv    Reg = 57
	RegArg0    Reg = 58 // 58..63

	NumArgRegs = 6
	NumRegs    = 64
)

var reservedNames = [...]string{
	"zero", "one", "of", "pc", "ssp", "sp", "fp", "hp",
	"err", "ggas", "cgas", "bal", "is", "ret", "retl", "flag",
}

var namedRegs = map[Reg]string{
	RegTmp:     "tmp",
	RegDs:      "ds",
	RegLocbase: "locbase",
	RegReta:    "reta",
	RegRetv:    "retv",
}

// IsVirtual reports whether r still needs a machine register
func (r Reg) IsVirtual() bool { return r >= NumRegs }

func (r Reg) String() string {
	switch {
	case r.IsVirtual():
		return fmt.Sprintf("%%v%d", r-NumRegs)
	case r < FirstPoolReg:
		return "$" + reservedNames[r]
	case r >= RegArg0:
		return fmt.Sprintf("$arg%d", r-RegArg0)
	}
	if name, ok := namedRegs[r]; ok {
		return "$" + name
	}
	return fmt.Sprintf("$r%d", r)
}

// ParseReg maps a $-prefixed register name to its register
func ParseReg(name string) (Reg, bool) {
	if !strings.HasPrefix(name, "$") {
		return 0, false
	}
	name = name[1:]
	for i, n := range reservedNames {
		if n == name {
			return Reg(i), true
		}
	}
	for r, n := range namedRegs {
		if n == name {
			return r, true
		}
	}
	if rest, ok := strings.CutPrefix(name, "arg"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n < NumArgRegs {
			return RegArg0 + Reg(n), true
		}
	}
	if rest, ok := strings.CutPrefix(name, "r"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && n < NumRegs {
			return Reg(n), true
		}
	}
	return 0, false
}

// Format is the operand layout of an encoded instruction. Every instruction
// is four bytes: the opcode followed by 24 bits of operands, registers
// taking 6 bits each.
type Format uint8

const (
	FmtNone Format = iota
	FmtR           // A
	FmtRR          // A B
	FmtRRR         // A B C
	FmtRRRR        // A B C D
	FmtRRRI        // A B C imm6
	FmtRRI         // A B imm12
	FmtRI          // A imm18
	FmtI           // imm24
)

// Registers returns the number of register operands of f
func (f Format) Registers() int {
	switch f {
	case FmtR, FmtRI:
		return 1
	case FmtRR, FmtRRI:
		return 2
	case FmtRRR, FmtRRRI:
		return 3
	case FmtRRRR:
		return 4
	}
	return 0
}

// ImmBits returns the width of the immediate of f
func (f Format) ImmBits() int {
	switch f {
	case FmtRRRI:
		return 6
	case FmtRRI:
		return 12
	case FmtRI:
		return 18
	case FmtI:
		return 24
	}
	return 0
}

// Opcode identifies a machine instruction or, from OpLabel on, a pseudo
// instruction resolved during layout
type Opcode uint8

const (
	OpNoop Opcode = iota
	OpMove
	OpMovi
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpSll
	OpSrl
	OpEq
	OpLt
	OpGt
	OpNot
	OpAddi
	OpSubi
	OpMuli
	OpDivi
	OpModi
	OpAndi
	OpOri
	OpXori
	OpSlli
	OpSrli
	OpLw
	OpSw
	OpMcp
	OpMcpi
	OpMcl
	OpMcli
	OpS256
	OpSrw
	OpSww
	OpSrwq
	OpSwwq
	OpScwq
	OpJi
	OpJnzi
	OpJnzf
	OpJmp
	OpJal
	OpRet
	OpRetd
	OpRvrt
	OpCfei
	OpCfsi
	OpPshl
	OpPshh
	OpPopl
	OpPoph
	OpCall
	OpLog
	OpLogd
	OpSmo
	OpWqop
	OpWqcm

	numMachineOps
)

const (
	// OpLabel defines Label at its position
	OpLabel Opcode = 0xe0 + iota
	// OpJump jumps to Label
	OpJump
	// OpJumpNZ jumps to Label when A is not zero
	OpJumpNZ
	// OpLoadData loads the word of data entry Data into A
	OpLoadData
	// OpAddrData puts the address of data entry Data into A
	OpAddrData
	// OpEnter and OpLeave are the function prologue and epilogue
	OpEnter
	OpLeave
	// OpDataOffset is the program header word holding the data section
	// offset; it occupies two instruction slots
	OpDataOffset
)

// Role is how an instruction uses a register operand
type Role uint8

const (
	RoleNone Role = iota
	RoleUse
	RoleDef
)

type opInfo struct {
	name   string
	format Format
	roles  [4]Role
}

const (
	ru = RoleUse
	rd = RoleDef
)

var (
	rrr  = [4]Role{rd, ru, ru}
	rri  = [4]Role{rd, ru}
	uses = [4]Role{ru, ru, ru, ru}
)

var ops = [numMachineOps]opInfo{
	OpNoop: {"noop", FmtNone, [4]Role{}},
	OpMove: {"move", FmtRR, [4]Role{rd, ru}},
	OpMovi: {"movi", FmtRI, [4]Role{rd}},
	OpAdd:  {"add", FmtRRR, rrr},
	OpSub:  {"sub", FmtRRR, rrr},
	OpMul:  {"mul", FmtRRR, rrr},
	OpDiv:  {"div", FmtRRR, rrr},
	OpMod:  {"mod", FmtRRR, rrr},
	OpAnd:  {"and", FmtRRR, rrr},
	OpOr:   {"or", FmtRRR, rrr},
	OpXor:  {"xor", FmtRRR, rrr},
	OpSll:  {"sll", FmtRRR, rrr},
	OpSrl:  {"srl", FmtRRR, rrr},
	OpEq:   {"eq", FmtRRR, rrr},
	OpLt:   {"lt", FmtRRR, rrr},
	OpGt:   {"gt", FmtRRR, rrr},
	OpNot:  {"not", FmtRR, [4]Role{rd, ru}},
	OpAddi: {"addi", FmtRRI, rri},
	OpSubi: {"subi", FmtRRI, rri},
	OpMuli: {"muli", FmtRRI, rri},
	OpDivi: {"divi", FmtRRI, rri},
	OpModi: {"modi", FmtRRI, rri},
	OpAndi: {"andi", FmtRRI, rri},
	OpOri:  {"ori", FmtRRI, rri},
	OpXori: {"xori", FmtRRI, rri},
	OpSlli: {"slli", FmtRRI, rri},
	OpSrli: {"srli", FmtRRI, rri},
	OpLw:   {"lw", FmtRRI, rri},
	OpSw:   {"sw", FmtRRI, [4]Role{ru, ru}},
	OpMcp:  {"mcp", FmtRRR, uses},
	OpMcpi: {"mcpi", FmtRRI, uses},
	OpMcl:  {"mcl", FmtRR, uses},
	OpMcli: {"mcli", FmtRI, uses},
	OpS256: {"s256", FmtRRR, uses},
	OpSrw:  {"srw", FmtRRR, [4]Role{rd, rd, ru}},
	OpSww:  {"sww", FmtRRR, [4]Role{ru, rd, ru}},
	OpSrwq: {"srwq", FmtRRRR, [4]Role{ru, rd, ru, ru}},
	OpSwwq: {"swwq", FmtRRRR, [4]Role{ru, rd, ru, ru}},
	OpScwq: {"scwq", FmtRRR, [4]Role{ru, rd, ru}},
	OpJi:   {"ji", FmtI, [4]Role{}},
	OpJnzi: {"jnzi", FmtRI, uses},
	OpJnzf: {"jnzf", FmtRRI, uses},
	OpJmp:  {"jmp", FmtR, uses},
	OpJal:  {"jal", FmtRRI, [4]Role{rd, ru}},
	OpRet:  {"ret", FmtR, uses},
	OpRetd: {"retd", FmtRR, uses},
	OpRvrt: {"rvrt", FmtR, uses},
	OpCfei: {"cfei", FmtI, [4]Role{}},
	OpCfsi: {"cfsi", FmtI, [4]Role{}},
	OpPshl: {"pshl", FmtI, [4]Role{}},
	OpPshh: {"pshh", FmtI, [4]Role{}},
	OpPopl: {"popl", FmtI, [4]Role{}},
	OpPoph: {"poph", FmtI, [4]Role{}},
	OpCall: {"call", FmtRRRR, uses},
	OpLog:  {"log", FmtRRRR, uses},
	OpLogd: {"logd", FmtRRRR, uses},
	OpSmo:  {"smo", FmtRRRR, uses},
	OpWqop: {"wqop", FmtRRRI, uses},
	OpWqcm: {"wqcm", FmtRRRI, [4]Role{rd, ru, ru}},
}

// wide operation selectors of wqop, in BinaryOpKind order, then not
const wqopNot = 10

var opsByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(ops))
	for op, info := range ops {
		m[info.name] = Opcode(op)
	}
	return m
}()

// LookupOp finds a machine instruction by mnemonic
func LookupOp(name string) (Opcode, bool) {
	op, ok := opsByName[name]
	return op, ok
}

// IsPseudo reports whether op is resolved during layout
func (op Opcode) IsPseudo() bool { return op >= OpLabel }

func (op Opcode) info() opInfo {
	if op.IsPseudo() {
		return pseudoInfo[op-OpLabel]
	}
	return ops[op]
}

var pseudoInfo = [...]opInfo{
	{".label", FmtNone, [4]Role{}},
	{".jump", FmtNone, [4]Role{}},
	{".jnz", FmtR, uses},
	{".load", FmtR, [4]Role{rd}},
	{".addr", FmtR, [4]Role{rd}},
	{".enter", FmtNone, [4]Role{}},
	{".leave", FmtNone, [4]Role{}},
	{".dataoffset", FmtNone, [4]Role{}},
}

func (op Opcode) String() string { return op.info().name }

// Format returns the operand layout of op
func (op Opcode) Format() Format { return op.info().format }

// Label is a code position resolved during layout
type Label struct {
	Name  string
	Index int // instruction index, valid after layout
}

func (l *Label) String() string { return l.Name }

// Instr is one machine or pseudo instruction
type Instr struct {
	Op    Opcode
	Regs  [4]Reg
	Imm   uint64
	Label *Label
	Data  int
}

// Roles returns the register operands of in with how they are used
func (in *Instr) Roles() [4]Role {
	info := in.Op.info()
	var roles [4]Role
	copy(roles[:info.format.Registers()], info.roles[:])
	return roles
}

// terminates reports whether control never falls through in
func (in *Instr) terminates() bool {
	switch in.Op {
	case OpJump, OpJi, OpJmp, OpRet, OpRetd, OpRvrt, OpLeave:
		return true
	}
	return false
}

func (in *Instr) String() string {
	info := in.Op.info()
	var parts []string
	for k := 0; k < info.format.Registers(); k++ {
		parts = append(parts, in.Regs[k].String())
	}
	switch in.Op {
	case OpLabel:
		return in.Label.Name + ":"
	case OpJump, OpJumpNZ:
		parts = append(parts, in.Label.Name)
	case OpLoadData, OpAddrData:
		parts = append(parts, fmt.Sprintf("data[%d]", in.Data))
	case OpDataOffset:
		parts = append(parts, fmt.Sprintf("0x%x", in.Imm))
	default:
		if info.format.ImmBits() > 0 {
			parts = append(parts, strconv.FormatUint(in.Imm, 10))
		}
	}
	if len(parts) == 0 {
		return info.name
	}
	return info.name + " " + strings.Join(parts, " ")
}
