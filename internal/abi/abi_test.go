package abi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/parser"
	"contractc/internal/types"
)

const getters = `
contract {
    configurable OWNER: b256 = 0x0000000000000000000000000000000000000000000000000000000000000001

    entry fn get_u64(a: u64) -> u64 {
        entry(a: u64):
        ret u64 a
    }

    entry fn get_b256(k: b256) -> b256, !1 {
        entry(k: b256):
        ret b256 k
    }

    fn helper() -> unit {
        entry():
        v0 = const unit ()
        ret unit v0
    }
}

!1 = purity reads
`

func parse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := parser.Parse("test.ir", src, types.NewContext())
	require.NoError(t, err)
	return m
}

func TestSelector(t *testing.T) {
	c := types.NewContext()
	assert.Equal(t, "get_u64(u64)", Signature("get_u64", []*types.Type{c.U64()}))
	assert.Equal(t, uint32(0x9890aef4), Selector("get_u64", []*types.Type{c.U64()}))
	assert.Equal(t, uint32(0x42123b96), Selector("get_b256", []*types.Type{c.B256()}))

	params := []*types.Type{c.Struct(c.U64(), c.B256()), c.U64()}
	assert.Equal(t, "transfer({u64,b256},u64)", Signature("transfer", params))
	assert.Equal(t, uint32(0xcd4c6d1f), Selector("transfer", params))
}

func TestSelectorIsStableAcrossContexts(t *testing.T) {
	a, b := types.NewContext(), types.NewContext()
	b.Array(b.U8(), 3) // populate b differently first
	assert.Equal(t,
		Selector("f", []*types.Type{a.Array(a.U64(), 2), a.Bool()}),
		Selector("f", []*types.Type{b.Array(b.U64(), 2), b.Bool()}))
	assert.NotEqual(t,
		Selector("f", []*types.Type{a.U64(), a.Bool()}),
		Selector("f", []*types.Type{a.Bool(), a.U64()}))
}

func TestBuild(t *testing.T) {
	a, err := Build(parse(t, getters))
	require.NoError(t, err)

	assert.Equal(t, "contract", a.Kind)
	require.Len(t, a.Functions, 2)

	u := a.Function("get_u64")
	require.NotNil(t, u)
	assert.Equal(t, uint32(0x9890aef4), u.Selector)
	assert.Equal(t, []Param{{Name: "a", Type: "u64"}}, u.Inputs)
	assert.Equal(t, "u64", u.Output)
	assert.Equal(t, "pure", u.Purity)

	bf := a.Function("get_b256")
	require.NotNil(t, bf)
	assert.Equal(t, "reads", bf.Purity)
	assert.Nil(t, a.Function("helper"))

	sorted := a.BySelector()
	assert.Equal(t, "get_b256", sorted[0].Name)
	assert.Equal(t, "get_u64", sorted[1].Name)
	// declaration order is kept in the descriptor
	assert.Equal(t, "get_u64", a.Functions[0].Name)
}

func TestBuildInfersPurity(t *testing.T) {
	m, err := parser.ParseFile("../../examples/counter.ir", types.NewContext())
	require.NoError(t, err)
	a, err := Build(m)
	require.NoError(t, err)
	assert.Equal(t, "reads", a.Function("get").Purity)
	assert.Equal(t, "readswrites", a.Function("increment").Purity)
}

func TestJSON(t *testing.T) {
	a, err := Build(parse(t, getters))
	require.NoError(t, err)
	a.SetConfigurableOffset("OWNER", 16)

	data, err := a.JSON()
	require.NoError(t, err)

	var decoded struct {
		Kind      string
		Functions []struct {
			Name     string
			Selector uint32
			Inputs   []Param
			Output   string
		}
		Configurables []Configurable
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "contract", decoded.Kind)
	require.Len(t, decoded.Functions, 2)
	assert.Equal(t, uint32(0x42123b96), decoded.Functions[1].Selector)
	assert.Equal(t, []Configurable{{Name: "OWNER", Type: "b256", Offset: 16}}, decoded.Configurables)
}

func TestDuplicateSelectors(t *testing.T) {
	fns := []*Function{
		{Name: "a", Selector: 7, IR: &ir.Function{Name: "a"}},
		{Name: "b", Selector: 8, IR: &ir.Function{Name: "b"}},
		{Name: "c", Selector: 7, IR: &ir.Function{Name: "c"}},
	}
	diags := checkSelectors(fns)
	require.Len(t, diags, 1)
	assert.Equal(t, errors.ErrorDuplicateSelector, diags[0].Code)
	assert.Contains(t, diags[0].Message, "'a' and 'c'")
}

func TestEntryChecks(t *testing.T) {
	t.Run("contract without methods", func(t *testing.T) {
		_, err := Build(parse(t, `
contract {
    fn f() -> unit {
        entry():
        v0 = const unit ()
        ret unit v0
    }
}
`))
		var diags errors.Diagnostics
		require.ErrorAs(t, err, &diags)
		assert.Equal(t, errors.ErrorMissingEntry, diags[0].Code)
	})

	t.Run("script main with parameters", func(t *testing.T) {
		_, err := Build(parse(t, `
script {
    entry fn main(a: u64) -> u64 {
        entry(a: u64):
        ret u64 a
    }
}
`))
		var diags errors.Diagnostics
		require.ErrorAs(t, err, &diags)
		assert.Equal(t, errors.ErrorScriptMainArgs, diags[0].Code)
	})

	t.Run("script", func(t *testing.T) {
		a, err := Build(parse(t, `
script {
    entry fn main() -> u64 {
        entry():
        v0 = const u64 1
        ret u64 v0
    }
}
`))
		require.NoError(t, err)
		assert.Equal(t, "script", a.Kind)
		require.Len(t, a.Functions, 1)
		assert.Equal(t, "main", a.Functions[0].Name)
	})
}
