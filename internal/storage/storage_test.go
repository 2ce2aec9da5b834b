package storage

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractc/internal/ast"
	"contractc/internal/types"
)

func TestBaseKeyIsStable(t *testing.T) {
	want := sha256.Sum256([]byte("storage.counter"))
	assert.Equal(t, Key(want), BaseKey("counter"))
	assert.Equal(t, BaseKey("config.balances"), BaseKey("config.balances"))
	assert.NotEqual(t, BaseKey("config.balances"), BaseKey("balances"))
}

func TestElementKey(t *testing.T) {
	parent := BaseKey("balances")
	k1 := ElementKey(EncodeWord(1), parent)
	k2 := ElementKey(EncodeWord(2), parent)
	assert.NotEqual(t, k1, k2)

	buf := append(EncodeWord(1), parent[:]...)
	assert.Equal(t, Key(sha256.Sum256(buf)), k1)

	// a nested map element is keyed by its parent element
	inner := ElementKey(EncodeWord(2), k1)
	assert.NotEqual(t, inner, ElementKey(EncodeWord(2), parent))
}

func TestKeyOffset(t *testing.T) {
	var k Key
	k[31] = 0xff
	next := k.Offset(1)
	assert.Equal(t, byte(0x01), next[30])
	assert.Equal(t, byte(0x00), next[31])
	assert.Equal(t, k, k.Offset(0))

	var max Key
	for i := range max {
		max[i] = 0xff
	}
	assert.Equal(t, Key{}, max.Offset(1))
}

func TestSlots(t *testing.T) {
	ctx := types.NewContext()
	tests := []struct {
		name  string
		t     *types.Type
		slots uint64
		clear uint64
	}{
		{"unit", ctx.Unit(), 0, 1},
		{"u64", ctx.U64(), 1, 1},
		{"b256", ctx.B256(), 1, 1},
		{"nine words", ctx.Array(ctx.U64(), 9), 3, 3},
		{"pair of b256", ctx.Struct(ctx.B256(), ctx.B256()), 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.slots, Slots(types.Size(tt.t)))
			assert.Equal(t, tt.clear, ClearSlots(tt.t))
		})
	}
}

func TestLocateAndSpan(t *testing.T) {
	assert.Equal(t, Location{Slot: 0, Word: 0, Offset: 0}, Locate(0))
	assert.Equal(t, Location{Slot: 0, Word: 2, Offset: 16}, Locate(16))
	assert.Equal(t, Location{Slot: 1, Word: 1, Offset: 8}, Locate(40))

	r := Span(24, 16)
	assert.Equal(t, uint64(0), r.FirstSlot)
	assert.Equal(t, uint64(2), r.SlotCount)
	assert.False(t, r.IsSingleWord())

	assert.True(t, Span(32, 8).IsSingleWord())
	assert.False(t, Span(8, 8).IsSingleWord())
	assert.True(t, Span(64, 64).IsWholeSlots())
	assert.Equal(t, uint64(0), Span(8, 0).SlotCount)
}

func TestLayout(t *testing.T) {
	ctx := types.NewContext()
	m := &ast.Module{Storage: []*ast.StorageField{
		{Name: "owner", Type: ctx.B256()},
		{Name: "config", Fields: []*ast.StorageField{
			{Name: "fee", Type: ctx.U64()},
			{Name: "balances", Type: ctx.U64(), MapKeys: []*types.Type{ctx.B256()}},
		}},
		{Name: "history", Type: ctx.Array(ctx.U64(), 9)},
	}}
	l, err := NewLayout(m)
	require.NoError(t, err)

	paths := make([]string, len(l.Entries))
	for i, e := range l.Entries {
		paths[i] = e.Path
	}
	assert.Equal(t, []string{"config.balances", "config.fee", "history", "owner"}, paths)

	e, ok := l.Lookup("history")
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.Slots)
	assert.Equal(t, BaseKey("history"), e.Key)

	bal, ok := l.Lookup("config.balances")
	require.True(t, ok)
	assert.Len(t, bal.MapKeys, 1)
	assert.Zero(t, bal.Slots)

	_, ok = l.Lookup("fee")
	assert.False(t, ok)
}

func TestLayoutRejectsDuplicates(t *testing.T) {
	ctx := types.NewContext()
	m := &ast.Module{Storage: []*ast.StorageField{
		{Name: "x", Type: ctx.U64()},
		{Name: "x", Type: ctx.U64()},
	}}
	_, err := NewLayout(m)
	assert.Error(t, err)
}
