package compiler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/ast"
	"contractc/internal/codegen"
	"contractc/internal/config"
	"contractc/internal/errors"
	"contractc/internal/filecheck"
	"contractc/internal/irexec"
	"contractc/internal/types"
)

const counterPath = "../../examples/counter.ir"

func compileCounter(t *testing.T, cfg *config.Config) *Artifacts {
	t.Helper()
	out, err := New(cfg).CompileFile(context.Background(), counterPath)
	require.NoError(t, err)
	return out
}

func TestCompileCounter(t *testing.T) {
	out := compileCounter(t, nil)
	assert.Equal(t, "counter", out.Name)
	require.Len(t, out.ABI.Functions, 2)
	assert.Equal(t, "contract", out.ABI.Kind)

	// bump is inlined everywhere and dropped
	require.NoError(t, filecheck.Match(`
check: contract {
check: configurable STEP: u64 = 1
check: entry fn get() -> u64
check: state_load_word
check: entry fn increment(by: u64) -> u64
not: call
check: state_store_word
not: fn bump
`, out.IR()))

	require.NoError(t, filecheck.Match(`
check: ji 4
nextln: noop
nextln: .dataoffset
nextln: move $ds $is
check: lw $r50 $fp 73
check: movi $r52 123
nextln: rvrt $r52
unordered: dispatch.get:
unordered: dispatch.increment:
check: get:
check: srw
check: increment:
check: sww
check: .data
check: .config STEP
`, out.Listing()))

	code, data, err := codegen.Decode(out.Program.Bytecode)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, out.Program.Data.Encode(), data)
}

func TestABIJSON(t *testing.T) {
	out := compileCounter(t, nil)
	raw, err := out.ABIJSON()
	require.NoError(t, err)

	var decoded struct {
		Kind      string `json:"kind"`
		Functions []struct {
			Name     string `json:"name"`
			Selector uint32 `json:"selector"`
		} `json:"functions"`
		Configurables []struct {
			Name string `json:"name"`
		} `json:"configurables"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "contract", decoded.Kind)
	require.Len(t, decoded.Functions, 2)
	assert.Equal(t, "get", decoded.Functions[0].Name)
	assert.Equal(t, out.ABI.Function("get").Selector, decoded.Functions[0].Selector)
	require.Len(t, decoded.Configurables, 1)
	assert.Equal(t, "STEP", decoded.Configurables[0].Name)
}

// Disabling passes changes code, never results
func TestPassesAreTransparent(t *testing.T) {
	bare := config.Default()
	bare.Optimize.Inline = false
	bare.Optimize.Simplify = false
	bare.Optimize.AggregateLowering = false

	optimized := irexec.New(compileCounter(t, nil).Module)
	plain := irexec.New(compileCounter(t, bare).Module)

	for _, step := range []struct {
		fn   string
		args [][]byte
	}{
		{"increment", [][]byte{irexec.Word(3)}},
		{"get", nil},
		{"increment", [][]byte{irexec.Word(200)}},
		{"get", nil},
	} {
		want, err := plain.Call(step.fn, step.args...)
		require.NoError(t, err)
		got, err := optimized.Call(step.fn, step.args...)
		require.NoError(t, err)
		assert.Equal(t, want.Reverted, got.Reverted, step.fn)
		assert.Equal(t, want.Value, got.Value, step.fn)
	}
	assert.Equal(t, plain.Storage, optimized.Storage)
}

func TestCompileAST(t *testing.T) {
	ctx := types.NewContext()
	u64 := ctx.U64()
	a := &ast.IdentExpr{Typed: ast.Typed{Type: u64}, Name: "a"}
	one := &ast.LiteralExpr{Typed: ast.Typed{Type: u64}, Int: uint256.NewInt(1)}
	body := &ast.BlockExpr{
		Typed: ast.Typed{Type: u64},
		Tail:  &ast.BinaryExpr{Typed: ast.Typed{Type: u64}, Op: "+", Left: a, Right: one},
	}
	m := &ast.Module{Name: "adder", Kind: ast.Contract, Functions: []*ast.Function{{
		Name:   "get_u64",
		Entry:  true,
		Return: u64,
		Body:   body,
		Params: []*ast.Param{{Name: "a", Type: u64}},
	}}}

	out, err := New(nil).CompileAST(context.Background(), m, ctx)
	require.NoError(t, err)
	assert.Equal(t, "adder", out.Name)
	require.NotNil(t, out.ABI.Function("get_u64"))
	assert.NotEmpty(t, out.Program.Bytecode)

	res, err := irexec.New(out.Module).Call("get_u64", irexec.Word(41))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res.Uint64())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			name: "parse error",
			src:  "contract {\n    fn broken( {\n}\n",
			code: errors.ErrorIRParse,
		},
		{
			name: "purity violation",
			src: `contract {
    entry fn peek() -> u64, !1 {
        entry():
        v0 = get_storage_key "x", 0
        v1 = state_load_word v0
        ret u64 v1
    }
}

!1 = purity pure
`,
			code: errors.ErrorPurityViolation,
		},
		{
			name: "script without main",
			src: `script {
    fn helper() -> u64 {
        entry():
        v0 = const u64 1
        ret u64 v0
    }
}
`,
			code: errors.ErrorMissingEntry,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).CompileIR(context.Background(), "bad.ir", tt.src)
			require.Error(t, err)
			assert.Equal(t, tt.code, diagnosticCode(t, err))
		})
	}
}

func TestInvalidCodegenOptionsFail(t *testing.T) {
	cfg := config.Default()
	cfg.Codegen.Registers = 1
	_, err := New(cfg).CompileFile(context.Background(), counterPath)
	assert.Error(t, err)
}

func TestWriteFiles(t *testing.T) {
	out := compileCounter(t, nil)
	dir := filepath.Join(t.TempDir(), "build")
	paths, err := out.WriteFiles(dir)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	bin, err := os.ReadFile(filepath.Join(dir, "counter.bin"))
	require.NoError(t, err)
	assert.Equal(t, out.Program.Bytecode, bin)
	for _, name := range []string{"counter.asm", "counter.ir", "counter-abi.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func diagnosticCode(t *testing.T, err error) string {
	t.Helper()
	var diags errors.Diagnostics
	if stderrors.As(err, &diags) {
		require.NotEmpty(t, diags)
		return diags[0].Code
	}
	var single errors.CompilerError
	require.ErrorAs(t, err, &single)
	return single.Code
}
