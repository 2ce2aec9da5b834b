package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/errors"
	"contractc/internal/types"
)

func newTestModule() *Module {
	return NewModule(KindContract, types.NewContext())
}

// ==== Printer Tests ====

func TestPrintModule(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	fn := m.AddFunction("get_u64", []Param{{Name: "a", Type: ctx.U64()}}, ctx.U64(), true)
	fn.Metadata = WithPurity(Reads)
	x := fn.NewLocal("x", ctx.U64())

	b := NewBuilder(fn)
	p := b.GetLocal(x)
	b.SetMetadata(WithSpan("main.sw", 3, 9))
	b.Store(fn.Params()[0], p)
	b.SetMetadata(nil)
	v := b.Load(p)
	b.Ret(v)

	expected := `contract {
    entry fn get_u64(a: u64) -> u64, !1 {
        local u64 x

        entry(a: u64):
        v0 = get_local ptr u64, x
        store a to v0, !2
        v1 = load v0
        ret u64 v1
    }
}

!1 = purity reads
!2 = span "main.sw" 3:9
`
	assert.Equal(t, expected, Print(m))
	assert.Empty(t, Verify(m))
}

func TestPrintBlockArgsAndBranches(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	fn := m.AddFunction("pick", []Param{{Name: "c", Type: ctx.Bool()}}, ctx.U64(), false)
	b := NewBuilder(fn)

	then := fn.NewBlock("then")
	merge := fn.NewBlock("merge")
	merge.AddArg("", ctx.U64())

	one := b.ConstU64(1)
	b.Cbr(fn.Params()[0], then, nil, merge, []*Value{one})
	b.SetBlock(then)
	two := b.ConstU64(2)
	b.Br(merge, two)
	b.SetBlock(merge)
	b.Ret(merge.Args[0])

	out := PrintFunction(fn)
	assert.Contains(t, out, "v0 = const u64 1")
	assert.Contains(t, out, "cbr c, then(), merge(v0)")
	assert.Contains(t, out, "br merge(v1)")
	assert.Contains(t, out, "merge(v2: u64):")
	assert.Contains(t, out, "ret u64 v2")
	assert.Empty(t, Verify(m))
}

func TestLabelsAndLocalsAreUnique(t *testing.T) {
	m := newTestModule()
	fn := m.AddFunction("f", nil, m.Types.Unit(), false)

	assert.Equal(t, "loop", fn.NewBlock("loop").Label)
	assert.Equal(t, "loop1", fn.NewBlock("loop").Label)
	assert.Equal(t, "loop2", fn.NewBlock("loop").Label)

	assert.Equal(t, "x", fn.NewLocal("x", m.Types.U64()).Name)
	assert.Equal(t, "x_1", fn.NewLocal("x", m.Types.U64()).Name)
}

func TestInstructionText(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	pair := ctx.Struct(ctx.U64(), ctx.B256())
	fn := m.AddFunction("f", []Param{{Name: "p", Type: ctx.Pointer(pair)}}, ctx.Unit(), false)
	b := NewBuilder(fn)
	p := fn.Params()[0]

	// String uses value IDs; the parameter is value 0
	key := b.GetStorageKey("counter", 0)
	assert.Equal(t, `v1 = get_storage_key "counter", 0`, key.Def.String())

	word := b.StateLoadWord(key)
	assert.Equal(t, "v2 = state_load_word v1", word.Def.String())

	field := b.FieldPtr(p, 1)
	assert.Equal(t, "v3 = get_elem_ptr p, ptr b256, 1", field.Def.String())

	clear := b.MemClear(p, 40)
	assert.Equal(t, "mem_clear p, 40", clear.String())

	asm := b.Asm([]AsmArg{{Name: "r1", Value: word}, {Name: "r2"}},
		[]AsmOp{{Name: "add", Args: []string{"r2", "r1", "r1"}}}, "r2", ctx.U64())
	assert.Equal(t, "v4 = asm(r1: v2, r2) -> u64 r2 { add r2 r1 r1; }", asm.Def.String())

	sum := b.Add(word, b.ConstU64(7))
	assert.Equal(t, "v6 = add v2, v5", sum.Def.String())

	eq := b.Cmp(PredEq, sum, word)
	assert.Equal(t, "v7 = cmp eq v6, v2", eq.Def.String())
}

// ==== Builder Tests ====

func buildPanics(f func()) (err error) {
	defer errors.Recover(&err)
	f()
	return nil
}

func TestBuilderRejectsBadOperands(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	fn := m.AddFunction("f", nil, ctx.U64(), false)
	b := NewBuilder(fn)
	word := b.ConstU64(1)

	err := buildPanics(func() { b.Load(word) })
	ice, ok := errors.AsInternal(err)
	require.True(t, ok)
	assert.Contains(t, ice.Message, "load operand must be a pointer")
	assert.Equal(t, "f", ice.Function)

	err = buildPanics(func() { b.Add(word, b.ConstBool(true)) })
	require.Error(t, err)

	arr := fn.NewLocal("a", ctx.Array(ctx.U64(), 3))
	err = buildPanics(func() { b.FieldPtr(b.GetLocal(arr), 3) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestBuilderRejectsCallToEntry(t *testing.T) {
	m := newTestModule()
	entry := m.AddFunction("main", nil, m.Types.Unit(), true)
	fn := m.AddFunction("f", nil, m.Types.Unit(), false)
	b := NewBuilder(fn)

	err := buildPanics(func() { b.Call(entry) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry function main")
}

func TestInitAggrAcceptsUnionVariants(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	enum := ctx.Enum(ctx.U64(), ctx.Bool())
	fn := m.AddFunction("f", nil, ctx.Unit(), false)
	b := NewBuilder(fn)

	p := b.GetLocal(fn.NewLocal("e", enum))
	inst := b.InitAggr(p, []*Value{b.ConstU64(1), b.ConstBool(true)})
	assert.Equal(t, "init_aggr v0 [v1, v2]", inst.String())
	b.Ret(b.ConstUnit())
	assert.Empty(t, Verify(m))
}

func TestDetachedBuilder(t *testing.T) {
	m := newTestModule()
	fn := m.AddFunction("f", nil, m.Types.U64(), false)
	b := NewDetachedBuilder(fn)

	v := b.ConstU64(3)
	assert.Empty(t, fn.EntryBlock().Instructions)
	assert.Nil(t, v.Block)

	fn.EntryBlock().Append(v.Def)
	assert.Equal(t, fn.EntryBlock(), v.Block)
	assert.True(t, v.IsConst())
	n, ok := v.ConstUint()
	require.True(t, ok)
	assert.Equal(t, uint64(3), n)
}

// ==== Verifier Tests ====

func TestVerifyMissingTerminator(t *testing.T) {
	m := newTestModule()
	m.AddFunction("f", nil, m.Types.Unit(), false)

	diags := Verify(m)
	require.Len(t, diags, 1)
	assert.Equal(t, errors.ErrorIRVerify, diags[0].Code)
	assert.Contains(t, diags[0].Message, "block entry has no terminator")
}

func TestVerifyBranchArguments(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	fn := m.AddFunction("f", nil, ctx.Unit(), false)
	target := fn.NewBlock("next")
	target.AddArg("x", ctx.U64())
	tb := NewBuilder(fn)
	tb.SetBlock(target)
	tb.Ret(tb.ConstUnit())

	fn.EntryBlock().Append(&Br{Target: BranchTarget{Block: target}})

	diags := Verify(m)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "passes 0 arguments, block takes 1")
}

func TestVerifyForeignValue(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	f := m.AddFunction("f", nil, ctx.U64(), false)
	g := m.AddFunction("g", nil, ctx.U64(), false)

	fb := NewBuilder(f)
	v := fb.ConstU64(1)
	fb.Ret(v)

	NewBuilder(g).Ret(v)

	diags := Verify(m)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "not defined in this function")
	assert.Contains(t, diags[0].Notes[0], "'g'")
}

// ==== Effects Tests ====

func TestIsRemovable(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	fn := m.AddFunction("f", nil, ctx.Unit(), false)
	b := NewBuilder(fn)

	p := b.GetLocal(fn.NewLocal("x", ctx.U64()))
	one := b.ConstU64(1)
	load := b.Load(p)
	store := b.Store(one, p)
	sum := b.Add(one, one)
	and := b.Binary(OpAnd, one, one)

	assert.True(t, IsRemovable(one.Def))
	assert.True(t, IsRemovable(load.Def))
	assert.False(t, IsRemovable(store))
	assert.False(t, IsRemovable(sum.Def), "add may overflow")
	assert.True(t, IsRemovable(and.Def))
}

func TestInferAndCheckPurity(t *testing.T) {
	m := newTestModule()
	ctx := m.Types

	reader := m.AddFunction("reader", nil, ctx.U64(), false)
	rb := NewBuilder(reader)
	rb.Ret(rb.StateLoadWord(rb.GetStorageKey("x", 0)))

	caller := m.AddFunction("caller", nil, ctx.U64(), true)
	caller.Metadata = WithPurity(Pure)
	cb := NewBuilder(caller)
	cb.Ret(cb.Call(reader))

	writer := m.AddFunction("writer", nil, ctx.Unit(), true)
	writer.Metadata = WithPurity(ReadsWrites)
	wb := NewBuilder(writer)
	wb.StateStoreWord(wb.ConstU64(1), wb.GetStorageKey("x", 0))
	wb.Ret(wb.ConstUnit())

	inferred := InferPurity(m)
	assert.Equal(t, Reads, inferred[reader])
	assert.Equal(t, Reads, inferred[caller])
	assert.Equal(t, Writes, inferred[writer])

	diags := CheckPurity(m)
	require.Len(t, diags, 1)
	assert.Equal(t, errors.ErrorPurityViolation, diags[0].Code)
	assert.Contains(t, diags[0].Message, "'caller' is declared pure but reads storage")
}

func TestPurityLattice(t *testing.T) {
	assert.True(t, ReadsWrites.Allows(Reads))
	assert.True(t, Reads.Allows(Pure))
	assert.False(t, Reads.Allows(Writes))
	assert.Equal(t, ReadsWrites, Reads.Join(Writes))

	p, err := ParsePurity("writes")
	require.NoError(t, err)
	assert.Equal(t, Writes, p)
	_, err = ParsePurity("sometimes")
	assert.Error(t, err)
}

// ==== Analysis Tests ====

func diamond(m *Module) *Function {
	ctx := m.Types
	fn := m.AddFunction("diamond", []Param{{Name: "c", Type: ctx.Bool()}}, ctx.Unit(), false)
	left := fn.NewBlock("left")
	right := fn.NewBlock("right")
	join := fn.NewBlock("join")

	b := NewBuilder(fn)
	b.Cbr(fn.Params()[0], left, nil, right, nil)
	b.SetBlock(left)
	b.Br(join)
	b.SetBlock(right)
	b.Br(join)
	b.SetBlock(join)
	b.Ret(b.ConstUnit())
	return fn
}

func TestPredecessorsAndOrder(t *testing.T) {
	m := newTestModule()
	fn := diamond(m)
	join := fn.Block("join")

	preds := Predecessors(fn)
	assert.ElementsMatch(t, []*Block{fn.Block("left"), fn.Block("right")}, preds[join])
	assert.Empty(t, preds[fn.EntryBlock()])

	rpo := ReversePostorder(fn)
	require.Len(t, rpo, 4)
	assert.Equal(t, fn.EntryBlock(), rpo[0])
	assert.Equal(t, join, rpo[3])

	unreachable := fn.NewBlock("dead")
	assert.False(t, Reachable(fn)[unreachable])
}

func TestReplaceAllUses(t *testing.T) {
	m := newTestModule()
	fn := m.AddFunction("f", nil, m.Types.U64(), false)
	b := NewBuilder(fn)
	one := b.ConstU64(1)
	two := b.ConstU64(2)
	sum := b.Add(one, one)
	b.Ret(sum)

	ReplaceAllUses(fn, one, two)
	assert.Equal(t, []*Value{two, two}, Operands(sum.Def))
	assert.Equal(t, 0, UseCounts(fn)[one])
	assert.Equal(t, 2, UseCounts(fn)[two])
}

func TestRecursion(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	f := m.AddFunction("f", nil, ctx.Unit(), false)
	g := m.AddFunction("g", nil, ctx.Unit(), false)
	h := m.AddFunction("h", nil, ctx.Unit(), false)

	fb := NewBuilder(f)
	fb.Call(g)
	fb.Ret(fb.ConstUnit())
	gb := NewBuilder(g)
	gb.Call(f)
	gb.Ret(gb.ConstUnit())
	hb := NewBuilder(h)
	hb.Call(g)
	hb.Ret(hb.ConstUnit())

	graph := CallGraph(m)
	assert.True(t, IsRecursive(graph, f))
	assert.True(t, IsRecursive(graph, g))
	assert.False(t, IsRecursive(graph, h))
	assert.Equal(t, 3, InstructionCount(h))
}

// ==== Constant Tests ====

func TestConstantPool(t *testing.T) {
	m := newTestModule()
	ctx := m.Types
	pool := m.Constants

	a := pool.Uint(ctx.U64(), 42)
	assert.Same(t, a, pool.Uint(ctx.U64(), 42))
	assert.NotSame(t, a, pool.Uint(ctx.U32(), 42))

	var key [32]byte
	key[31] = 0xab
	c := pool.B256(ctx.B256(), key)
	assert.Equal(t, "0x00000000000000000000000000000000000000000000000000000000000000ab", c.Literal())
	assert.Equal(t, key[:], c.Bytes())

	s := pool.String(ctx.String(3), []byte("abc"))
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0, 0, 0}, s.Bytes())

	assert.Equal(t, "255", MaxUint(8).Dec())
	assert.Equal(t, "18446744073709551615", MaxUint(64).Dec())
}
