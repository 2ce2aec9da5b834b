package grammar_test

import (
	"testing"

	"github.com/alecthomas/participle/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/grammar"
)

func TestCounter(t *testing.T) {
	module, err := grammar.ParseFile(`../examples/counter.ir`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	assert.Equal(t, "contract", module.Kind)

	require.Len(t, module.Configurables, 1)
	cfg := module.Configurables[0]
	assert.Equal(t, "STEP", cfg.Name)
	assert.Equal(t, "u64", cfg.Type.Name)
	require.NotNil(t, cfg.Value.Int)
	assert.Equal(t, "1", *cfg.Value.Int)

	require.Len(t, module.Functions, 3)
	checkFunction(t, module.Functions[0], "get", "u64", nil, true, "!1")
	checkFunction(t, module.Functions[1], "increment", "u64", []string{"by"}, true, "!2")
	checkFunction(t, module.Functions[2], "bump", "u64", []string{"x", "by", "step"}, false, "!4")

	inc := module.Functions[1]
	require.Len(t, inc.Locals, 1)
	assert.Equal(t, "total", inc.Locals[0].Name)
	require.Len(t, inc.Blocks, 1)
	insts := inc.Blocks[0].Instructions
	require.Len(t, insts, 10)

	call := insts[4]
	assert.Equal(t, "v4", call.Result)
	require.NotNil(t, call.Op.Call)
	assert.Equal(t, "bump", call.Op.Call.Callee)
	assert.Equal(t, []string{"v1", "by", "v3"}, call.Op.Call.Args)
	assert.Equal(t, "!3", call.Meta)

	store := insts[5]
	assert.Empty(t, store.Result)
	require.NotNil(t, store.Op.StateStoreWord)

	bump := module.Functions[2]
	require.Len(t, bump.Blocks, 3)
	cbr := bump.Blocks[0].Instructions[4].Op.Cbr
	require.NotNil(t, cbr)
	assert.Equal(t, "clamp", cbr.True.Label)
	assert.Equal(t, []string{"v1"}, cbr.False.Args)
	assert.Equal(t, "done", bump.Blocks[2].Label)
	assert.Equal(t, "v4", bump.Blocks[2].Args[0].Name)

	require.Len(t, module.Metadata, 4)
	assert.Equal(t, "readswrites", module.Metadata[1].Items[0].Purity)
	span := module.Metadata[2].Items[0].Span
	require.NotNil(t, span)
	assert.Equal(t, "counter.sw", span.File)
	assert.Equal(t, 14, span.Line)
	assert.Equal(t, 20, span.Column)
	assert.Equal(t, "always", module.Metadata[3].Items[1].Inline)
}

func TestTypes(t *testing.T) {
	source := `script {
    fn f(a: ptr { u64, ( bool | b256 ) }, b: [u8; 4], c: str[5], d: slice u64, e: fn(u64) -> bool) -> unit {
        entry(a: ptr { u64, ( bool | b256 ) }, b: [u8; 4], c: str[5], d: slice u64, e: fn(u64) -> bool):
        v0 = const unit ()
        ret unit v0
    }
}`
	module, err := grammar.ParseString("types.ir", source)
	require.NoError(t, err)

	params := module.Functions[0].Params
	require.Len(t, params, 5)

	a := params[0].Type
	require.NotNil(t, a.Ptr)
	require.NotNil(t, a.Ptr.Struct)
	require.Len(t, a.Ptr.Struct.Fields, 2)
	require.NotNil(t, a.Ptr.Struct.Fields[1].Union)
	assert.Len(t, a.Ptr.Struct.Fields[1].Union.Variants, 2)

	require.NotNil(t, params[1].Type.Array)
	assert.Equal(t, uint64(4), params[1].Type.Array.Len)
	require.NotNil(t, params[2].Type.Str)
	assert.Equal(t, uint64(5), params[2].Type.Str.Len)
	require.NotNil(t, params[3].Type.Slice)
	require.NotNil(t, params[4].Type.Fn)
	assert.Equal(t, "bool", params[4].Type.Fn.Return.Name)

	lit := module.Functions[0].Blocks[0].Instructions[0].Op.Const.Value
	assert.True(t, lit.Unit)
}

func TestInstructionForms(t *testing.T) {
	source := `contract {
    fn f(p: ptr [u64; 4], i: u64) -> u64 {
        entry(p: ptr [u64; 4], i: u64):
        v0 = get_elem_ptr p, ptr u64, i
        v1 = asm(a: i, b) -> u64 b { add b a $one; movi b 7; }
        v2 = const b256 0x01
        v3 = cast_ptr p to ptr u64
        init_aggr p [i, i, i, i], !1
        mem_clear p, 32
        v4 = get_storage_key "s.x", 2
        ret u64 v1
    }
}

!1 = span "f.sw" 1:2 config "X"`
	module, err := grammar.ParseString("forms.ir", source)
	require.NoError(t, err)

	insts := module.Functions[0].Blocks[0].Instructions
	require.Len(t, insts, 8)

	gep := insts[0].Op.GetElemPtr
	require.NotNil(t, gep)
	assert.Equal(t, "p", gep.Base)
	require.Len(t, gep.Indices, 1)
	assert.Equal(t, "i", gep.Indices[0].Value)

	asm := insts[1].Op.Asm
	require.NotNil(t, asm)
	assert.Equal(t, "b", asm.ReturnReg)
	require.Len(t, asm.Args, 2)
	assert.Equal(t, "i", asm.Args[0].Value)
	assert.Empty(t, asm.Args[1].Value)
	require.Len(t, asm.Body, 2)
	assert.Equal(t, []string{"b", "a", "$one"}, asm.Body[0].Args)
	assert.Equal(t, []string{"b", "7"}, asm.Body[1].Args)

	require.NotNil(t, insts[2].Op.Const.Value.Hex)
	assert.Equal(t, "cast_ptr", insts[3].Op.Conversion.Kind)
	assert.Equal(t, []string{"i", "i", "i", "i"}, insts[4].Op.InitAggr.Fields)
	assert.Equal(t, "!1", insts[4].Meta)
	assert.Equal(t, uint64(32), insts[5].Op.MemClear.Size)
	assert.Equal(t, "s.x", insts[6].Op.GetStorageKey.Path)

	items := module.Metadata[0].Items
	require.Len(t, items, 2)
	require.NotNil(t, items[1].Config)
	assert.Equal(t, "X", *items[1].Config)
}

func TestSyntaxErrorPosition(t *testing.T) {
	source := "contract {\n    fn f() -> u64 {\n        entry():\n        v0 = frobnicate v1\n    }\n}"
	_, err := grammar.ParseString("bad.ir", source)
	require.Error(t, err)

	var perr participle.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.Position().Line)
}

func checkFunction(t *testing.T, f *grammar.Function, name, returnType string, params []string, entry bool, meta string) {
	assert.Equal(t, name, f.Name)
	assert.Equal(t, entry, f.Entry)
	assert.Equal(t, returnType, f.Return.Name)
	assert.Equal(t, meta, f.Meta)

	assert.Equal(t, len(params), len(f.Params))
	for i, p := range f.Params {
		assert.Equal(t, params[i], p.Name)
	}
}
