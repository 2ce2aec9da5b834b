package codegen

import (
	"strconv"
	"strings"

	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/storage"
	"contractc/internal/types"
)

// funcCode is the machine code of one function before layout
type funcCode struct {
	fn    *ir.Function
	label *Label
	code  []*Instr
	data  *DataSection
	frame frame
	next  Reg

	// filled in by register allocation
	saved  []Reg
	spills int
}

func (c *funcCode) newReg() Reg {
	r := c.next
	c.next++
	return r
}

func (c *funcCode) add(in *Instr) *Instr {
	c.code = append(c.code, in)
	return in
}

func (c *funcCode) emit(op Opcode, regs ...Reg) *Instr {
	in := &Instr{Op: op}
	copy(in.Regs[:], regs)
	return c.add(in)
}

func (c *funcCode) emitI(op Opcode, imm uint64, regs ...Reg) *Instr {
	in := c.emit(op, regs...)
	in.Imm = imm
	return in
}

func fits(n uint64, bits int) bool { return n < 1<<bits }

// loadWord puts a constant word into dst
func (c *funcCode) loadWord(dst Reg, n uint64) {
	if fits(n, 18) {
		c.emitI(OpMovi, n, dst)
		return
	}
	c.add(&Instr{Op: OpLoadData, Regs: [4]Reg{dst}, Data: c.data.Word(n)})
}

// addImm computes dst = src + n
func (c *funcCode) addImm(dst, src Reg, n uint64) {
	switch {
	case n == 0:
		if dst != src {
			c.emit(OpMove, dst, src)
		}
	case fits(n, 12):
		c.emitI(OpAddi, n, dst, src)
	default:
		t := c.newReg()
		c.loadWord(t, n)
		c.emit(OpAdd, dst, src, t)
	}
}

// mulImm computes dst = src * n
func (c *funcCode) mulImm(dst, src Reg, n uint64) {
	switch {
	case n == 1:
		c.emit(OpMove, dst, src)
	case fits(n, 12):
		c.emitI(OpMuli, n, dst, src)
	default:
		t := c.newReg()
		c.loadWord(t, n)
		c.emit(OpMul, dst, src, t)
	}
}

func (c *funcCode) memcopy(dst, src Reg, n uint64) {
	switch {
	case n == 0:
	case fits(n, 12):
		c.emitI(OpMcpi, n, dst, src)
	default:
		t := c.newReg()
		c.loadWord(t, n)
		c.emit(OpMcp, dst, src, t)
	}
}

func (c *funcCode) clear(dst Reg, n uint64) {
	switch {
	case n == 0:
	case fits(n, 18):
		c.emitI(OpMcli, n, dst)
	default:
		t := c.newReg()
		c.loadWord(t, n)
		c.emit(OpMcl, dst, t)
	}
}

// loadField loads the word at base+off
func (c *funcCode) loadField(dst, base Reg, off uint64) {
	if fits(off/types.WordSize, 12) {
		c.emitI(OpLw, off/types.WordSize, dst, base)
		return
	}
	p := c.newReg()
	c.addImm(p, base, off)
	c.emitI(OpLw, 0, dst, p)
}

// storeField stores the word v at base+off
func (c *funcCode) storeField(base Reg, off uint64, v Reg) {
	if fits(off/types.WordSize, 12) {
		c.emitI(OpSw, off/types.WordSize, base, v)
		return
	}
	p := c.newReg()
	c.addImm(p, base, off)
	c.emitI(OpSw, 0, p, v)
}

// tempInto points dst at a fresh frame slot of the given size
func (c *funcCode) tempInto(dst Reg, size uint64) {
	c.addImm(dst, RegLocbase, c.frame.alloc(size))
}

// selector lowers one IR function to machine instructions over virtual
// registers. Copy values live in registers; every other value is the
// address of a frame slot that is never written again while the value is
// live.
type selector struct {
	*funcCode
	labels map[*ir.Function]*Label
	values map[*ir.Value]Reg
	locals map[*ir.LocalVar]uint64
	blocks map[*ir.Block]*Label
	preds  map[*ir.Block][]*ir.Block
	order  []*ir.Block
	stubs  []*Instr
	edges  int
	revert *Label
	inst   ir.Instruction
}

// selectFunction runs instruction selection for fn. labels maps every
// function of the module to its entry label.
func selectFunction(fn *ir.Function, labels map[*ir.Function]*Label, relocate bool) (fc *funcCode, err error) {
	defer errors.Recover(&err)

	s := &selector{
		funcCode: &funcCode{fn: fn, label: labels[fn], data: NewDataSection(), next: NumRegs},
		labels:   labels,
		values:   make(map[*ir.Value]Reg),
		locals:   make(map[*ir.LocalVar]uint64),
		blocks:   make(map[*ir.Block]*Label),
		preds:    ir.Predecessors(fn),
	}
	s.order = orderBlocks(fn, relocate)
	s.run()
	return s.funcCode, nil
}

// orderBlocks lists the reachable blocks in code order: the entry block
// first, and with relocate set, blocks ending in revert last
func orderBlocks(fn *ir.Function, relocate bool) []*ir.Block {
	reachable := ir.Reachable(fn)
	var hot, cold []*ir.Block
	for i, b := range fn.Blocks {
		if !reachable[b] {
			continue
		}
		if _, reverts := b.Terminator.(*ir.Revert); relocate && reverts && i > 0 {
			cold = append(cold, b)
			continue
		}
		hot = append(hot, b)
	}
	return append(hot, cold...)
}

func (s *selector) fail(format string, args ...any) {
	inst, pos := "", s.fn.Metadata.Position()
	if s.inst != nil {
		inst = s.inst.String()
		pos = s.inst.GetMetadata().Position()
	}
	panic(errors.InternalAt(s.fn.Name, inst, pos, format, args...))
}

func (s *selector) run() {
	for _, b := range s.order {
		s.blocks[b] = &Label{Name: s.fn.Name + "." + b.Label}
		for _, a := range b.Args {
			s.values[a] = s.newReg()
		}
		for _, inst := range b.Instructions {
			if r := inst.GetResult(); r != nil {
				s.values[r] = s.newReg()
			}
		}
	}
	for _, l := range s.fn.Locals {
		s.locals[l] = s.frame.alloc(types.Size(l.Type))
	}

	s.add(&Instr{Op: OpLabel, Label: s.label})
	s.emit(OpEnter)
	s.params()

	for k, b := range s.order {
		var next *ir.Block
		if k+1 < len(s.order) {
			next = s.order[k+1]
		}
		s.add(&Instr{Op: OpLabel, Label: s.blocks[b]})
		for _, inst := range b.Instructions {
			s.inst = inst
			s.instruction(inst)
		}
		s.inst = b.Terminator
		s.terminator(b.Terminator, next)
		s.inst = nil
	}

	s.code = append(s.code, s.stubs...)
	if s.revert != nil {
		s.add(&Instr{Op: OpLabel, Label: s.revert})
		code := s.newReg()
		s.loadWord(code, ir.ArithmeticRevertCode)
		s.emit(OpRvrt, code)
	}
}

// needsSlots reports whether the memory-resident arguments of b are copied
// into slots of their own on every incoming edge
func (s *selector) needsSlots(b *ir.Block) bool {
	return b != s.fn.EntryBlock() || len(s.preds[b]) > 0
}

func (s *selector) params() {
	params := s.fn.Params()
	overflow := len(params) > NumArgRegs
	slots := s.needsSlots(s.fn.EntryBlock())
	for k, p := range params {
		in := RegArg0 + Reg(k)
		if overflow && k >= NumArgRegs-1 {
			in = s.newReg()
			s.loadField(in, RegArg0+NumArgRegs-1, uint64(k-NumArgRegs+1)*types.WordSize)
		}
		r := s.values[p]
		if slots && !p.Type.IsCopy() {
			s.tempInto(r, types.Size(p.Type))
			s.memcopy(r, in, types.Size(p.Type))
			continue
		}
		s.emit(OpMove, r, in)
	}
}

// value returns the register holding v. Pooled constants without a
// defining instruction are materialized at each use.
func (s *selector) value(v *ir.Value) Reg {
	if r, ok := s.values[v]; ok {
		return r
	}
	if v.Const != nil {
		r := s.newReg()
		s.constant(r, v.Const, v.Type)
		return r
	}
	s.fail("value %s has no register", v)
	return 0
}

func (s *selector) constant(dst Reg, c *ir.Constant, t *types.Type) {
	if t.IsCopy() {
		n, ok := c.Uint64()
		if !ok {
			s.fail("constant %s does not fit a word", c)
		}
		s.loadWord(dst, n)
		return
	}
	s.add(&Instr{Op: OpAddrData, Regs: [4]Reg{dst}, Data: s.data.Bytes(c.Bytes())})
}

// store writes value v of type t to base+off
func (s *selector) store(base Reg, off uint64, v Reg, t *types.Type) {
	size := types.Size(t)
	switch {
	case size == 0:
	case t.IsCopy():
		s.storeField(base, off, v)
	default:
		p := s.newReg()
		s.addImm(p, base, off)
		s.memcopy(p, v, size)
	}
}

func (s *selector) overflowLabel() *Label {
	if s.revert == nil {
		s.revert = &Label{Name: s.fn.Name + ".overflow"}
	}
	return s.revert
}

// checkWidth reverts when r exceeds the maximum of a sub-word integer type
func (s *selector) checkWidth(r Reg, t *types.Type) {
	if !t.IsUint() || t.Bits() >= 64 {
		return
	}
	max, over := s.newReg(), s.newReg()
	s.loadWord(max, 1<<t.Bits()-1)
	s.emit(OpGt, over, r, max)
	s.add(&Instr{Op: OpJumpNZ, Regs: [4]Reg{over}, Label: s.overflowLabel()})
}

var binaryOps = [...]Opcode{
	ir.OpAdd: OpAdd,
	ir.OpSub: OpSub,
	ir.OpMul: OpMul,
	ir.OpDiv: OpDiv,
	ir.OpMod: OpMod,
	ir.OpAnd: OpAnd,
	ir.OpOr:  OpOr,
	ir.OpXor: OpXor,
	ir.OpShl: OpSll,
	ir.OpShr: OpSrl,
}

func (s *selector) instruction(inst ir.Instruction) {
	var r Reg
	if res := inst.GetResult(); res != nil {
		r = s.values[res]
	}

	switch i := inst.(type) {
	case *ir.ConstInst:
		s.constant(r, i.Const, i.Result.Type)

	case *ir.GetLocal:
		off, ok := s.locals[i.Local]
		if !ok {
			s.fail("unknown local %s", i.Local.Name)
		}
		s.addImm(r, RegLocbase, off)

	case *ir.GetElemPtr:
		s.gep(r, i)

	case *ir.Load:
		t := i.Result.Type
		p := s.value(i.Ptr)
		switch size := types.Size(t); {
		case size == 0:
			s.emit(OpMove, r, RegZero)
		case t.IsCopy():
			s.emitI(OpLw, 0, r, p)
		default:
			s.tempInto(r, size)
			s.memcopy(r, p, size)
		}

	case *ir.Store:
		s.store(s.value(i.Ptr), 0, s.value(i.Value), i.Value.Type)

	case *ir.MemCopy:
		s.memcopy(s.value(i.Dst), s.value(i.Src), i.Size)

	case *ir.MemClear:
		s.clear(s.value(i.Dst), i.Size)

	case *ir.InsertValue:
		size := types.Size(i.Agg.Type)
		ft, off, err := types.IndexedType(i.Agg.Type, i.Indices)
		if err != nil {
			s.fail("%v", err)
		}
		agg, v := s.value(i.Agg), s.value(i.Value)
		s.tempInto(r, size)
		s.memcopy(r, agg, size)
		s.store(r, off, v, ft)

	case *ir.ExtractValue:
		ft, off, err := types.IndexedType(i.Agg.Type, i.Indices)
		if err != nil {
			s.fail("%v", err)
		}
		agg := s.value(i.Agg)
		switch {
		case types.Size(ft) == 0:
			s.emit(OpMove, r, RegZero)
		case ft.IsCopy():
			s.loadField(r, agg, off)
		default:
			s.addImm(r, agg, off)
		}

	case *ir.InitAggr:
		s.initAggr(i)

	case *ir.BinaryOp:
		s.binary(r, i)

	case *ir.Cmp:
		s.compare(r, i)

	case *ir.Not:
		x := s.value(i.Value)
		t := i.Value.Type
		switch {
		case t.IsBool():
			s.emit(OpEq, r, x, RegZero)
		case t.IsCopy():
			s.emit(OpNot, r, x)
			if t.IsUint() && t.Bits() < 64 {
				mask := s.newReg()
				s.loadWord(mask, 1<<t.Bits()-1)
				s.emit(OpAnd, r, r, mask)
			}
		default:
			s.tempInto(r, types.Size(t))
			s.emitI(OpWqop, wqopNot, r, x, RegZero)
		}

	case *ir.Call:
		s.call(r, i)

	case *ir.StateLoadWord:
		s.emit(OpSrw, r, s.newReg(), s.value(i.Key))
	case *ir.StateLoadQuad:
		s.emit(OpSrwq, s.value(i.Dst), r, s.value(i.Key), s.value(i.Count))
	case *ir.StateStoreWord:
		s.emit(OpSww, s.value(i.Key), s.newReg(), s.value(i.Value))
	case *ir.StateStoreQuad:
		s.emit(OpSwwq, s.value(i.Key), s.newReg(), s.value(i.Src), s.value(i.Count))
	case *ir.StateClear:
		s.emit(OpScwq, s.value(i.Key), s.newReg(), s.value(i.Count))

	case *ir.GetStorageKey:
		k := storage.BaseKey(i.Path).Offset(i.Slot)
		s.add(&Instr{Op: OpAddrData, Regs: [4]Reg{r}, Data: s.data.Bytes(k[:])})

	case *ir.GetConfig:
		var value []byte
		if i.Config.Value != nil {
			value = i.Config.Value.Bytes()
		}
		s.add(&Instr{Op: OpAddrData, Regs: [4]Reg{r}, Data: s.data.Config(i.Config.Name, value)})

	case *ir.ContractCall:
		s.emit(OpCall, s.value(i.Params), s.value(i.Coins), s.value(i.AssetID), s.value(i.Gas))
		s.result(r, i.Result.Type, RegRet)

	case *ir.Log:
		v, id := s.value(i.Value), s.value(i.LogID)
		if i.Value.Type.IsCopy() {
			s.emit(OpLog, v, id, RegZero, RegZero)
			break
		}
		size := s.newReg()
		s.loadWord(size, types.Size(i.Value.Type))
		s.emit(OpLogd, RegZero, id, v, size)

	case *ir.Smo:
		s.emit(OpSmo, s.value(i.Recipient), s.value(i.Message), s.value(i.Length), s.value(i.Coins))

	case *ir.AsmBlock:
		s.asm(r, i)

	case *ir.CastPtr:
		s.emit(OpMove, r, s.value(i.Value))
	case *ir.PtrToInt:
		s.emit(OpMove, r, s.value(i.Value))
	case *ir.IntToPtr:
		s.emit(OpMove, r, s.value(i.Value))
	case *ir.Bitcast:
		s.emit(OpMove, r, s.value(i.Value))

	default:
		s.fail("no instruction selection for %T", inst)
	}
}

// result copies a returned value out of src. Memory-resident values are
// copied into a slot of the caller before anything else runs.
func (s *selector) result(r Reg, t *types.Type, src Reg) {
	if t.IsCopy() {
		s.emit(OpMove, r, src)
		return
	}
	size := types.Size(t)
	s.tempInto(r, size)
	s.memcopy(r, src, size)
}

func (s *selector) gep(r Reg, i *ir.GetElemPtr) {
	acc := s.value(i.Base)
	cur := i.Base.Type.Elem()
	var off uint64
	for _, idx := range i.Indices {
		switch cur.Kind() {
		case types.KindStruct:
			fo, err := types.FieldOffset(cur, int(idx.Const))
			if err != nil {
				s.fail("%v", err)
			}
			off += fo
			cur = cur.Field(int(idx.Const))
		case types.KindUnion:
			if cur = cur.Field(int(idx.Const)); cur == nil {
				s.fail("variant index %d out of range", idx.Const)
			}
		case types.KindArray:
			size := types.Size(cur.Elem())
			if idx.Value != nil {
				scaled, next := s.newReg(), s.newReg()
				s.mulImm(scaled, s.value(idx.Value), size)
				s.emit(OpAdd, next, acc, scaled)
				acc = next
			} else {
				off += idx.Const * size
			}
			cur = cur.Elem()
		default:
			s.fail("cannot index into %s", cur)
		}
	}
	if off == 0 {
		s.emit(OpMove, r, acc)
		return
	}
	s.addImm(r, acc, off)
}

// initAggr stores every field in order; union fields are cleared first so
// the bytes past a smaller variant are zero
func (s *selector) initAggr(i *ir.InitAggr) {
	base := s.value(i.Ptr)
	fields := ir.AggregateFields(i.Ptr.Type.Elem())
	var off uint64
	for k, fv := range i.Fields {
		size := types.Size(fields[k])
		if fields[k].IsUnion() {
			p := s.newReg()
			s.addImm(p, base, off)
			s.clear(p, size)
		}
		s.store(base, off, s.value(fv), fv.Type)
		off += size
	}
}

func (s *selector) binary(r Reg, i *ir.BinaryOp) {
	t := i.Result.Type
	a, b := s.value(i.Left), s.value(i.Right)
	if !t.IsCopy() {
		s.tempInto(r, types.Size(t))
		s.emitI(OpWqop, uint64(i.Op), r, a, b)
		return
	}
	s.emit(binaryOps[i.Op], r, a, b)
	switch i.Op {
	case ir.OpAdd, ir.OpMul, ir.OpShl:
		s.checkWidth(r, t)
	}
}

// ne, le and ge negate eq, gt and lt
var negatedCmp = map[ir.Predicate]Opcode{ir.PredNe: OpEq, ir.PredLe: OpGt, ir.PredGe: OpLt}

func (s *selector) compare(r Reg, i *ir.Cmp) {
	a, b := s.value(i.Left), s.value(i.Right)
	if !i.Left.Type.IsCopy() {
		s.emitI(OpWqcm, uint64(i.Pred), r, a, b)
		return
	}
	switch i.Pred {
	case ir.PredEq:
		s.emit(OpEq, r, a, b)
	case ir.PredLt:
		s.emit(OpLt, r, a, b)
	case ir.PredGt:
		s.emit(OpGt, r, a, b)
	default:
		t := s.newReg()
		s.emit(negatedCmp[i.Pred], t, a, b)
		s.emit(OpEq, r, t, RegZero)
	}
}

func (s *selector) call(r Reg, i *ir.Call) {
	label, ok := s.labels[i.Callee]
	if !ok {
		s.fail("call to unknown function %s", i.Callee.Name)
	}
	args := make([]Reg, len(i.Args))
	for k, a := range i.Args {
		args[k] = s.value(a)
	}
	if len(args) > NumArgRegs {
		// the last argument register points at the remaining words
		rest := args[NumArgRegs-1:]
		area := s.newReg()
		s.tempInto(area, uint64(len(rest))*types.WordSize)
		for k, a := range rest {
			s.storeField(area, uint64(k)*types.WordSize, a)
		}
		args = append(args[:NumArgRegs-1:NumArgRegs-1], area)
	}
	target := s.newReg()
	s.add(&Instr{Op: OpLoadData, Regs: [4]Reg{target}, Data: s.data.Addr(label)})
	for k, a := range args {
		s.emit(OpMove, RegArg0+Reg(k), a)
	}
	s.emitI(OpJal, 0, RegReta, target)
	s.result(r, i.Result.Type, RegRetv)
}

// asm binds the block's names to fresh registers and emits its body
// verbatim. Asm code may read any register but write only its own names.
func (s *selector) asm(r Reg, i *ir.AsmBlock) {
	names := make(map[string]Reg)
	for _, a := range i.Args {
		reg := s.newReg()
		names[a.Name] = reg
		src := RegZero
		if a.Value != nil {
			src = s.value(a.Value)
		}
		s.emit(OpMove, reg, src)
	}
	lookup := func(name string, role Role) Reg {
		if reg, ok := ParseReg(name); ok {
			if role == RoleDef {
				s.fail("asm writes machine register %s", name)
			}
			return reg
		}
		if reg, ok := names[name]; ok {
			return reg
		}
		reg := s.newReg()
		names[name] = reg
		s.emit(OpMove, reg, RegZero)
		return reg
	}

	for _, op := range i.Body {
		code, ok := LookupOp(op.Name)
		if !ok || !asmAllowed(code) {
			s.fail("unsupported asm instruction %s", op.Name)
		}
		f := code.Format()
		n := f.Registers()
		want := n
		if f.ImmBits() > 0 {
			want++
		}
		if len(op.Args) != want {
			s.fail("asm %s takes %d operands, got %d", op.Name, want, len(op.Args))
		}
		in := &Instr{Op: code}
		roles := ops[code].roles
		for k := 0; k < n; k++ {
			in.Regs[k] = lookup(op.Args[k], roles[k])
		}
		if f.ImmBits() > 0 {
			imm, err := strconv.ParseUint(strings.ReplaceAll(op.Args[n], "_", ""), 0, 64)
			if err != nil || !fits(imm, f.ImmBits()) {
				s.fail("asm %s: bad immediate %s", op.Name, op.Args[n])
			}
			in.Imm = imm
		}
		s.add(in)
	}

	t := i.Result.Type
	if i.ReturnReg == "" || types.Size(t) == 0 {
		s.emit(OpMove, r, RegZero)
		return
	}
	s.result(r, t, lookup(i.ReturnReg, RoleUse))
}

// asmAllowed excludes control flow and stack manipulation from asm blocks
func asmAllowed(op Opcode) bool {
	switch op {
	case OpJi, OpJnzi, OpJnzf, OpJmp, OpJal, OpRet, OpRetd,
		OpCfei, OpCfsi, OpPshl, OpPshh, OpPopl, OpPoph:
		return false
	}
	return true
}

func (s *selector) terminator(t ir.Terminator, next *ir.Block) {
	switch i := t.(type) {
	case *ir.Br:
		s.edge(i.Target)
		if i.Target.Block != next {
			s.add(&Instr{Op: OpJump, Label: s.blocks[i.Target.Block]})
		}

	case *ir.Cbr:
		cond := s.value(i.Cond)
		target := s.blocks[i.True.Block]
		if len(i.True.Args) > 0 {
			target = s.stub(i.True)
		}
		s.add(&Instr{Op: OpJumpNZ, Regs: [4]Reg{cond}, Label: target})
		s.edge(i.False)
		if i.False.Block != next {
			s.add(&Instr{Op: OpJump, Label: s.blocks[i.False.Block]})
		}

	case *ir.Ret:
		v := RegZero
		if i.Value != nil {
			v = s.value(i.Value)
		}
		s.emit(OpMove, RegRetv, v)
		s.emit(OpLeave)

	case *ir.Revert:
		s.emit(OpRvrt, s.value(i.Code))

	case nil:
		s.fail("block without terminator")
	default:
		s.fail("no instruction selection for %T", t)
	}
}

// stub emits the argument passing of a conditional edge out of line and
// returns its label
func (s *selector) stub(t ir.BranchTarget) *Label {
	s.edges++
	l := &Label{Name: s.fn.Name + ".edge" + strconv.Itoa(s.edges)}
	saved := s.code
	s.code = nil
	s.add(&Instr{Op: OpLabel, Label: l})
	s.edge(t)
	s.add(&Instr{Op: OpJump, Label: s.blocks[t.Block]})
	s.stubs = append(s.stubs, s.code...)
	s.code = saved
	return l
}

// edge passes branch arguments to the target block's parameters. Every
// source is read before any parameter is written.
func (s *selector) edge(t ir.BranchTarget) {
	if len(t.Args) != len(t.Block.Args) {
		s.fail("branch to %s passes %d arguments for %d parameters", t.Block.Label, len(t.Args), len(t.Block.Args))
	}
	slots := s.needsSlots(t.Block)
	staged := make([]Reg, len(t.Args))
	for k, a := range t.Args {
		src := s.value(a)
		tmp := s.newReg()
		if slots && !a.Type.IsCopy() {
			size := types.Size(a.Type)
			s.tempInto(tmp, size)
			s.memcopy(tmp, src, size)
		} else {
			s.emit(OpMove, tmp, src)
		}
		staged[k] = tmp
	}
	for k, p := range t.Block.Args {
		dst := s.values[p]
		if slots && !p.Type.IsCopy() {
			size := types.Size(p.Type)
			s.tempInto(dst, size)
			s.memcopy(dst, staged[k], size)
			continue
		}
		s.emit(OpMove, dst, staged[k])
	}
}
