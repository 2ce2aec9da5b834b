package parser

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/types"
)

const counterPath = "../../examples/counter.ir"

func TestParseCounter(t *testing.T) {
	m, err := ParseFile(counterPath, types.NewContext())
	require.NoError(t, err)

	assert.Equal(t, ir.KindContract, m.Kind)
	require.Len(t, m.Functions, 3)
	require.Len(t, m.EntryFunctions(), 2)

	cfg := m.Configurable("STEP")
	require.NotNil(t, cfg)
	n, ok := cfg.Value.Uint64()
	require.True(t, ok)
	assert.Equal(t, uint64(1), n)

	inc := m.Function("increment")
	purity, declared := inc.DeclaredPurity()
	require.True(t, declared)
	assert.Equal(t, ir.ReadsWrites, purity)

	call, ok := inc.EntryBlock().Instructions[4].(*ir.Call)
	require.True(t, ok)
	assert.Equal(t, "bump", call.Callee.Name)
	assert.Same(t, inc.Params()[0], call.Args[1])
	require.NotNil(t, call.GetMetadata())
	assert.Equal(t, 14, call.GetMetadata().Span.Line)

	bump := m.Function("bump")
	assert.Equal(t, ir.InlineAlways, bump.InlineHint())
	require.Len(t, bump.Blocks, 3)
	done := bump.Block("done")
	require.NotNil(t, done)
	ret := done.Terminator.(*ir.Ret)
	assert.Same(t, done.Args[0], ret.Value)
}

func TestPrintParseRoundTrip(t *testing.T) {
	source, err := os.ReadFile(counterPath)
	require.NoError(t, err)

	m, err := Parse("counter.ir", string(source), types.NewContext())
	require.NoError(t, err)

	printed := ir.Print(m)
	assert.Equal(t, strings.TrimPrefix(string(source), "// A counter contract in IR text form\n"), printed)

	again, err := Parse("counter.ir", printed, types.NewContext())
	require.NoError(t, err)
	assert.Equal(t, printed, ir.Print(again))
}

func TestForwardReferences(t *testing.T) {
	source := `script {
    fn count(n: u64) -> u64 {
        entry(n: u64):
        v0 = const u64 0
        br loop(v0)

        done():
        ret u64 v2

        loop(i: u64):
        v1 = const u64 1
        v2 = add i, v1
        v3 = cmp lt v2, n
        cbr v3, loop(v2), done()
    }

    entry fn main() -> u64 {
        entry():
        v0 = const u64 5
        v1 = call count(v0)
        ret u64 v1
    }
}`
	m, err := Parse("loop.ir", source, types.NewContext())
	require.NoError(t, err)

	fn := m.Function("count")
	done := fn.Block("done")
	loop := fn.Block("loop")
	ret := done.Terminator.(*ir.Ret)
	add, ok := ret.Value.Def.(*ir.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, ir.OpAdd, add.Op)
	assert.Same(t, loop, add.GetBlock())
	assert.Same(t, loop, ret.Value.Block)

	cbr := loop.Terminator.(*ir.Cbr)
	assert.Same(t, loop, cbr.True.Block)
	assert.Same(t, ret.Value, cbr.True.Args[0])
}

func TestLiterals(t *testing.T) {
	source := `contract {
    configurable OWNER: b256 = 0x01ff
    configurable NAME: str[8] = "token"
    configurable BIG: u256 = 115792089237316195423570985008687907853269984665640564039457584007913129639935

    entry fn f() -> bool {
        entry():
        v0 = const u8 0xff
        v1 = const bool true
        ret bool v1
    }
}`
	m, err := Parse("lit.ir", source, types.NewContext())
	require.NoError(t, err)

	owner := m.Configurable("OWNER").Value.Bytes()
	require.Len(t, owner, 32)
	assert.Equal(t, byte(0x01), owner[30])
	assert.Equal(t, byte(0xff), owner[31])

	name := m.Configurable("NAME").Value
	assert.Equal(t, []byte("token"), name.Str)
	assert.Len(t, name.Bytes(), 8)

	big := m.Configurable("BIG").Value
	assert.True(t, big.Int.Eq(ir.MaxUint(256)))

	c := m.Function("f").EntryBlock().Instructions[0].(*ir.ConstInst)
	n, _ := c.Const.Uint64()
	assert.Equal(t, uint64(255), n)
}

func TestParseErrors(t *testing.T) {
	wrap := func(body string) string {
		return "script {\n    entry fn main() -> u64 {\n        entry():\n" + body + "\n    }\n}"
	}
	tests := []struct {
		name    string
		source  string
		message string
		line    int
	}{
		{"undefined value", wrap("        ret u64 v9"), "undefined value v9", 4},
		{"duplicate value", wrap("        v0 = const u64 1\n        v0 = const u64 2\n        ret u64 v0"), "value v0 defined twice", 5},
		{"self reference", wrap("        v0 = add v0, v0\n        ret u64 v0"), "depends on itself", 4},
		{"operand type", wrap("        v0 = const bool true\n        v1 = const u64 1\n        v2 = add v1, v0\n        ret u64 v2"), "operand must be u64", 6},
		{"constant range", wrap("        v0 = const u8 256\n        ret u64 v0"), "does not fit u8", 4},
		{"unknown type", wrap("        v0 = const u7 1\n        ret u64 v0"), "unknown type u7", 4},
		{"undefined block", wrap("        br nowhere()"), "undefined block nowhere", 4},
		{"after terminator", wrap("        v0 = const u64 1\n        ret u64 v0\n        ret u64 v0"), "after the terminator", 6},
		{"ret type", wrap("        v0 = const u64 1\n        ret bool v0"), "declared type bool does not match u64", 5},
		{"syntax", wrap("        v0 = frobnicate v1"), "", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.ir", tt.source, types.NewContext())
			require.Error(t, err)

			var cerr errors.CompilerError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, errors.ErrorIRParse, cerr.Code)
			assert.Contains(t, cerr.Message, tt.message)
			assert.Equal(t, tt.line, cerr.Position.Line)
		})
	}
}

func TestVerifierRunsAfterParse(t *testing.T) {
	source := `contract {
    entry fn f() -> u64 {
        entry():
        v0 = const u64 1
        br next()

        next():
        v1 = add v2, v0
        v2 = const u64 2
        ret u64 v1
    }
}`
	_, err := Parse("order.ir", source, types.NewContext())
	require.Error(t, err)

	var diags errors.Diagnostics
	require.ErrorAs(t, err, &diags)
	require.NotEmpty(t, diags)
	assert.Equal(t, errors.ErrorIRVerify, diags[0].Code)
}
