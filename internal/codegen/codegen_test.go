package codegen

import (
	"context"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/abi"
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/irexec"
	"contractc/internal/parser"
	"contractc/internal/types"
)

func parse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := parser.Parse("test.ir", src, types.NewContext())
	require.NoError(t, err)
	require.Empty(t, ir.Verify(m))
	return m
}

func generate(m *ir.Module, opts Options) (*Program, error) {
	a, err := abi.Build(m)
	if err != nil {
		return nil, err
	}
	return Generate(context.Background(), m, a, opts)
}

func compile(t *testing.T, src string, opts Options) *Program {
	t.Helper()
	p, err := generate(parse(t, src), opts)
	require.NoError(t, err)
	return p
}

// argBuffer lays out arguments the way the call frame carries them
func argBuffer(args ...[]byte) []byte {
	var buf []byte
	for _, a := range args {
		buf = append(buf, a...)
		buf = append(buf, make([]byte, types.RoundUpToWord(uint64(len(a)))-uint64(len(a)))...)
	}
	return buf
}

type call struct {
	fn   string
	args [][]byte
}

func calls(fn string, args ...[]byte) call { return call{fn: fn, args: args} }

// matchesInterpreter runs every call on the IR interpreter and on the
// compiled program, both keeping their storage between calls
func matchesInterpreter(t *testing.T, src string, opts Options, cs ...call) *Program {
	t.Helper()
	p := compile(t, src, opts)
	ref := irexec.New(parse(t, src))
	vm := newTestVM(p.Bytecode)

	for _, c := range cs {
		want, err := ref.Call(c.fn, c.args...)
		require.NoError(t, err)

		var selector uint32
		if p.ABI.Kind == "contract" {
			f := p.ABI.Function(c.fn)
			require.NotNil(t, f, c.fn)
			selector = f.Selector
		}
		got, err := vm.run(selector, argBuffer(c.args...))
		require.NoError(t, err, p.Listing())

		assert.Equal(t, want.Reverted, got.Reverted, "%s reverted", c.fn)
		assert.Equal(t, want.RevertCode, got.RevertCode, "%s revert code", c.fn)
		assert.Equal(t, want.Value, got.Value, "%s result", c.fn)
		assert.Equal(t, ref.Storage, vm.Storage, "storage after %s", c.fn)
	}
	return p
}

func TestCounterMatchesInterpreter(t *testing.T) {
	m, err := parser.ParseFile("../../examples/counter.ir", types.NewContext())
	require.NoError(t, err)
	p, err := generate(m, DefaultOptions())
	require.NoError(t, err)

	ref := irexec.New(m)
	vm := newTestVM(p.Bytecode)
	for _, c := range []call{
		calls("increment", irexec.Word(5)),
		calls("get"),
		calls("increment", irexec.Word(200)),
		calls("get"),
		calls("increment", irexec.Word(1)),
	} {
		want, err := ref.Call(c.fn, c.args...)
		require.NoError(t, err)
		got, err := vm.run(p.ABI.Function(c.fn).Selector, argBuffer(c.args...))
		require.NoError(t, err, p.Listing())
		assert.Equal(t, want.Value, got.Value, c.fn)
		assert.Equal(t, ref.Storage, vm.Storage)
	}
	assert.Contains(t, p.Listing(), ".config STEP")
}

const loopsSrc = `
contract {
    entry fn fib(n: u64) -> u64 {
        entry(n: u64):
        v0 = const u64 0
        v1 = const u64 1
        br loop(v0, v1, n)

        loop(a: u64, b: u64, i: u64):
        v2 = const u64 0
        v3 = cmp eq i, v2
        cbr v3, done(), body()

        body():
        v4 = add a, b
        v5 = const u64 1
        v6 = sub i, v5
        br loop(b, v4, v6)

        done():
        ret u64 a
    }

    entry fn swap(n: u64) -> u64 {
        entry(n: u64):
        v0 = const u64 1
        v1 = const u64 2
        br loop(v0, v1, n)

        loop(a: u64, b: u64, i: u64):
        v2 = const u64 0
        v3 = cmp gt i, v2
        cbr v3, body(), done()

        body():
        v4 = const u64 1
        v5 = sub i, v4
        br loop(b, a, v5)

        done():
        v6 = const u64 10
        v7 = mul a, v6
        v8 = add v7, b
        ret u64 v8
    }

    entry fn narrow(x: u8, y: u8) -> u8 {
        entry(x: u8, y: u8):
        v0 = add x, y
        ret u8 v0
    }

    entry fn flip(x: u8) -> u8 {
        entry(x: u8):
        v0 = not x
        ret u8 v0
    }

    entry fn is_ne(x: u64, y: u64) -> bool {
        entry(x: u64, y: u64):
        v0 = cmp ne x, y
        ret bool v0
    }

    entry fn is_le(x: u64, y: u64) -> bool {
        entry(x: u64, y: u64):
        v0 = cmp le x, y
        ret bool v0
    }

    entry fn is_ge(x: u64, y: u64) -> bool {
        entry(x: u64, y: u64):
        v0 = cmp ge x, y
        ret bool v0
    }

    entry fn big(x: u64) -> u64 {
        entry(x: u64):
        v0 = const u64 1000000000000
        v1 = add x, v0
        ret u64 v1
    }

    entry fn underflow(x: u64) -> u64 {
        entry(x: u64):
        v0 = const u64 10
        v1 = sub x, v0
        ret u64 v1
    }
}
`

var loopCalls = []call{
	calls("fib", irexec.Word(0)),
	calls("fib", irexec.Word(1)),
	calls("fib", irexec.Word(10)),
	calls("fib", irexec.Word(50)),
	calls("swap", irexec.Word(0)),
	calls("swap", irexec.Word(3)),
	calls("swap", irexec.Word(4)),
	calls("narrow", irexec.Word(200), irexec.Word(55)),
	calls("narrow", irexec.Word(200), irexec.Word(56)),
	calls("flip", irexec.Word(5)),
	calls("is_ne", irexec.Word(3), irexec.Word(3)),
	calls("is_ne", irexec.Word(3), irexec.Word(4)),
	calls("is_le", irexec.Word(3), irexec.Word(4)),
	calls("is_le", irexec.Word(5), irexec.Word(4)),
	calls("is_ge", irexec.Word(3), irexec.Word(4)),
	calls("is_ge", irexec.Word(4), irexec.Word(4)),
	calls("big", irexec.Word(1)),
	calls("underflow", irexec.Word(3)),
	calls("underflow", irexec.Word(13)),
}

func TestLoopsAndArithmetic(t *testing.T) {
	p := matchesInterpreter(t, loopsSrc, DefaultOptions(), loopCalls...)
	assert.NotContains(t, p.Listing(), "jmp $tmp")
	assert.Zero(t, p.Spills)
}

func TestFarJumps(t *testing.T) {
	opts := DefaultOptions()
	opts.ShortJumpBits = 4
	opts.ShortCondJumpBits = 3
	p := matchesInterpreter(t, loopsSrc, opts, loopCalls...)
	listing := p.Listing()
	assert.Contains(t, listing, "jmp $tmp")
	assert.Contains(t, listing, "jnzf $tmp $zero")

	for _, in := range p.Code {
		switch in.Op {
		case OpJi:
			assert.Less(t, in.Imm, uint64(1<<4), in.String())
		case OpJnzi:
			assert.Less(t, in.Imm, uint64(1<<3), in.String())
		}
	}
}

func TestLayoutIterationLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.ShortJumpBits = 1
	opts.ShortCondJumpBits = 1
	opts.MaxLayoutIterations = 1
	_, err := generate(parse(t, loopsSrc), opts)
	require.Error(t, err)
	_, ok := errors.AsInternal(err)
	assert.True(t, ok, err.Error())
	assert.Contains(t, err.Error(), "did not converge")
}

func TestUnknownSelectorReverts(t *testing.T) {
	p := compile(t, loopsSrc, DefaultOptions())
	r, err := newTestVM(p.Bytecode).run(0xdeadbeef, nil)
	require.NoError(t, err)
	assert.True(t, r.Reverted)
	assert.Equal(t, ir.DispatchRevertCode, r.RevertCode)
}

func TestDispatcherOrder(t *testing.T) {
	p := compile(t, loopsSrc, DefaultOptions())
	var stubs []string
	for _, in := range p.Code {
		if in.Op == OpLabel && strings.HasPrefix(in.Label.Name, "dispatch.") {
			stubs = append(stubs, strings.TrimPrefix(in.Label.Name, "dispatch."))
		}
	}
	var want []string
	for _, f := range p.ABI.BySelector() {
		want = append(want, f.Name)
	}
	assert.Equal(t, want, stubs)
}

const spillSrc = `
contract {
    entry fn spill(x: u64) -> u64 {
        entry(x: u64):
        v0 = const u64 1
        v1 = add x, v0
        v2 = add v1, v0
        v3 = add v2, v0
        v4 = add v3, v0
        v5 = add v4, v0
        v6 = add v5, v0
        v7 = add v6, v0
        v8 = add v7, v0
        v9 = mul v1, v2
        v10 = mul v3, v4
        v11 = mul v5, v6
        v12 = mul v7, v8
        v13 = add v9, v10
        v14 = add v11, v12
        v15 = add v13, v14
        v16 = add v15, v1
        v17 = add v16, v8
        v18 = add v17, x
        ret u64 v18
    }
}
`

func TestSpilling(t *testing.T) {
	opts := DefaultOptions()
	opts.Registers = 4
	p := matchesInterpreter(t, spillSrc, opts, calls("spill", irexec.Word(3)), calls("spill", irexec.Word(1000)))
	assert.Positive(t, p.Spills)
	assert.Contains(t, p.Listing(), "$locbase")

	p = matchesInterpreter(t, spillSrc, DefaultOptions(), calls("spill", irexec.Word(3)))
	assert.Zero(t, p.Spills)
}

const callsSrc = `
contract {
    entry fn many(a: u64, b: u64, c: u64, d: u64, e: u64, f: u64, g: u64, h: u64) -> u64 {
        entry(a: u64, b: u64, c: u64, d: u64, e: u64, f: u64, g: u64, h: u64):
        v0 = call weigh(a, b, c, d, e, f, g, h)
        v1 = call weigh(h, g, f, e, d, c, b, a)
        v2 = add v0, v1
        ret u64 v2
    }

    fn weigh(a: u64, b: u64, c: u64, d: u64, e: u64, f: u64, g: u64, h: u64) -> u64 {
        entry(a: u64, b: u64, c: u64, d: u64, e: u64, f: u64, g: u64, h: u64):
        v0 = const u64 10
        v1 = mul h, v0
        v2 = add v1, g
        v3 = mul v2, v0
        v4 = add v3, f
        v5 = add v4, e
        v6 = add v5, d
        v7 = add v6, c
        v8 = add v7, b
        v9 = sub v8, a
        ret u64 v9
    }

    entry fn pair(p: { u64, b256 }) -> { u64, b256 } {
        entry(p: { u64, b256 }):
        v0 = extract_value p, 0
        v1 = const u64 1
        v2 = add v0, v1
        v3 = insert_value p, v2, 0
        v4 = call echo(v3)
        ret { u64, b256 } v4
    }

    fn echo(p: { u64, b256 }) -> { u64, b256 } {
        entry(p: { u64, b256 }):
        ret { u64, b256 } p
    }

    entry fn double(x: u256) -> u256 {
        entry(x: u256):
        v0 = add x, x
        ret u256 v0
    }

    entry fn wide_lt(x: u256, y: u256) -> bool {
        entry(x: u256, y: u256):
        v0 = cmp lt x, y
        ret bool v0
    }

    entry fn sum(a: u64, b: u64) -> u64 {
        local { u64, u64, u64 } s

        entry(a: u64, b: u64):
        v0 = get_local ptr { u64, u64, u64 }, s
        v1 = const u64 5
        init_aggr v0 [v1, v1, v1]
        v2 = load v0
        v3 = insert_value v2, a, 0
        v4 = insert_value v3, b, 2
        store v4 to v0
        v5 = load v0
        v6 = extract_value v5, 2
        v7 = extract_value v5, 0
        v8 = extract_value v5, 1
        v9 = add v6, v7
        v10 = add v9, v8
        ret u64 v10
    }

    entry fn asm_add(x: u64, y: u64) -> u64 {
        entry(x: u64, y: u64):
        v0 = asm(a: x, b: y, r) -> u64 r { add r a b; muli r r 3; }
        ret u64 v0
    }
}
`

func word32(n uint64) []byte {
	b := uint256.NewInt(n).Bytes32()
	return b[:]
}

func TestCallsAggregatesAndWideValues(t *testing.T) {
	half := new(uint256.Int).Rsh(ir.MaxUint(256), 1).Bytes32()
	max := ir.MaxUint(256).Bytes32()
	pairArg := append(irexec.Word(41), word32(7)...)

	for _, registers := range []int{MaxPoolRegs, 4} {
		opts := DefaultOptions()
		opts.Registers = registers
		matchesInterpreter(t, callsSrc, opts,
			calls("many", irexec.Word(1), irexec.Word(2), irexec.Word(3), irexec.Word(4),
				irexec.Word(5), irexec.Word(6), irexec.Word(7), irexec.Word(8)),
			calls("pair", pairArg),
			calls("double", word32(21)),
			calls("double", half[:]),
			calls("double", max[:]),
			calls("wide_lt", word32(1), word32(2)),
			calls("wide_lt", word32(2), word32(2)),
			calls("sum", irexec.Word(1), irexec.Word(2)),
			calls("asm_add", irexec.Word(4), irexec.Word(5)),
		)
	}
}

const storageSrc = `
contract {
    entry fn put(x: u64, y: b256) -> u64 {
        local b256 buf

        entry(x: u64, y: b256):
        v0 = get_storage_key "balance", 0
        state_store_word x, v0
        v1 = get_local ptr b256, buf
        store y to v1
        v2 = get_storage_key "owner", 0
        v3 = const u64 1
        state_store_quad v2, v1, v3
        ret u64 x
    }

    entry fn owner() -> b256 {
        local b256 buf

        entry():
        v0 = get_storage_key "owner", 0
        v1 = get_local ptr b256, buf
        v2 = const u64 1
        v3 = state_load_quad v0, v1, v2
        v4 = load v1
        ret b256 v4
    }

    entry fn wipe() -> u64 {
        entry():
        v0 = get_storage_key "owner", 0
        v1 = const u64 1
        state_clear v0, v1
        v2 = get_storage_key "balance", 0
        v3 = state_load_word v2
        v4 = const u64 99
        revert v4
    }
}
`

func TestStorageAccess(t *testing.T) {
	owner := word32(0xabcdef)
	matchesInterpreter(t, storageSrc, DefaultOptions(),
		calls("owner"),
		calls("put", irexec.Word(12), owner),
		calls("owner"),
		calls("wipe"),
		calls("owner"),
	)
}

const guardSrc = `
contract {
    entry fn guard(x: u64) -> u64 {
        entry(x: u64):
        v0 = const u64 10
        v1 = cmp gt x, v0
        cbr v1, fail(), ok()

        fail():
        v2 = const u64 77
        revert v2

        ok():
        ret u64 x
    }
}
`

func TestColdBlockRelocation(t *testing.T) {
	for _, relocate := range []bool{true, false} {
		opts := DefaultOptions()
		opts.RelocateColdBlocks = relocate
		p := matchesInterpreter(t, guardSrc, opts, calls("guard", irexec.Word(3)), calls("guard", irexec.Word(11)))
		listing := p.Listing()
		fail, ok := strings.Index(listing, "guard.fail:"), strings.Index(listing, "guard.ok:")
		require.Positive(t, fail)
		require.Positive(t, ok)
		assert.Equal(t, relocate, fail > ok, listing)
	}
}

func TestScript(t *testing.T) {
	p := compile(t, `
script {
    entry fn main() -> u64 {
        entry():
        v0 = const u64 6
        v1 = const u64 7
        v2 = mul v0, v1
        ret u64 v2
    }
}
`, DefaultOptions())
	r, err := newTestVM(p.Bytecode).run(0, nil)
	require.NoError(t, err)
	assert.Equal(t, irexec.Word(42), r.Value)
	assert.NotContains(t, p.Listing(), "dispatch.")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := compile(t, callsSrc, DefaultOptions())
	code, data, err := Decode(p.Bytecode)
	require.NoError(t, err)
	assert.Equal(t, p.Data.Encode(), data)

	var want []string
	for _, in := range p.Code {
		if in.Op == OpLabel {
			continue
		}
		clone := *in
		clone.Label = nil
		want = append(want, clone.String())
	}
	var got []string
	for _, in := range code {
		got = append(got, in.String())
	}
	assert.Equal(t, want, got)
}

func TestHeader(t *testing.T) {
	p := compile(t, guardSrc, DefaultOptions())
	var head []string
	for _, in := range p.Code[:6] {
		head = append(head, in.Op.String())
	}
	assert.Equal(t, []string{"ji", "noop", ".dataoffset", "move", "lw", "add"}, head)
	assert.Zero(t, len(p.Bytecode)%8)
	assert.Equal(t, uint64(len(p.Bytecode))-p.Data.Size(), p.Code[2].Imm)
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	for name, mutate := range map[string]func(*Options){
		"registers":  func(o *Options) { o.Registers = 3 },
		"jump bits":  func(o *Options) { o.ShortJumpBits = 25 },
		"cond bits":  func(o *Options) { o.ShortCondJumpBits = 19 },
		"iterations": func(o *Options) { o.MaxLayoutIterations = 0 },
		"parallel":   func(o *Options) { o.Parallelism = -1 },
	} {
		opts := DefaultOptions()
		mutate(&opts)
		assert.Error(t, opts.Validate(), name)
	}
}
