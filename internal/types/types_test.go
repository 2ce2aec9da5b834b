package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	c := NewContext()

	testCases := []struct {
		typ      *Type
		expected string
	}{
		{c.Unit(), "unit"},
		{c.Bool(), "bool"},
		{c.U8(), "u8"},
		{c.U256(), "u256"},
		{c.B256(), "b256"},
		{c.RawPtr(), "rawptr"},
		{c.Pointer(c.U64()), "ptr u64"},
		{c.Struct(c.U64(), c.Bool()), "{ u64, bool }"},
		{c.Struct(), "{}"},
		{c.Array(c.U64(), 9), "[u64; 9]"},
		{c.Enum(c.U64(), c.Unit()), "{ u64, ( u64 | unit ) }"},
		{c.String(5), "str[5]"},
		{c.Slice(c.U8()), "slice u8"},
		{c.Function([]*Type{c.U64(), c.B256()}, c.Bool()), "fn(u64, b256) -> bool"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.typ.String())
	}
}

func TestInterning(t *testing.T) {
	c := NewContext()

	a := c.Struct(c.U64(), c.Array(c.B256(), 2))
	b := c.Struct(c.U64(), c.Array(c.B256(), 2))
	assert.Same(t, a, b)

	assert.NotSame(t, c.Array(c.U64(), 2), c.Array(c.U64(), 3))
	assert.Same(t, c.Pointer(a), c.Pointer(b))

	u, err := c.Uint(64)
	require.NoError(t, err)
	assert.Same(t, c.U64(), u)

	_, err = c.Uint(128)
	assert.Error(t, err)
}

func TestInterningConcurrent(t *testing.T) {
	c := NewContext()
	results := make([]*Type, 16)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Struct(c.U64(), c.Pointer(c.Bool()))
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
}

func TestSizes(t *testing.T) {
	c := NewContext()

	testCases := []struct {
		typ  *Type
		size uint64
	}{
		{c.Unit(), 0},
		{c.Bool(), 8},
		{c.U8(), 8},
		{c.U64(), 8},
		{c.U256(), 32},
		{c.B256(), 32},
		{c.Struct(c.U64(), c.B256(), c.Bool()), 48},
		{c.Array(c.U64(), 9), 72},
		{c.Enum(c.U64(), c.B256()), 40},
		{c.String(5), 8},
		{c.String(17), 24},
		{c.Slice(c.U8()), 16},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.size, Size(tc.typ), tc.typ.String())
	}
}

func TestCopyTypes(t *testing.T) {
	c := NewContext()

	assert.True(t, c.U64().IsCopy())
	assert.True(t, c.Bool().IsCopy())
	assert.True(t, c.Pointer(c.B256()).IsCopy())
	assert.False(t, c.U256().IsCopy())
	assert.False(t, c.B256().IsCopy())
	assert.False(t, c.Struct(c.U64()).IsCopy())
	assert.False(t, c.String(3).IsCopy())
}

func TestEnumShape(t *testing.T) {
	c := NewContext()

	assert.True(t, c.Enum(c.U64(), c.Bool()).IsEnum())
	assert.False(t, c.Struct(c.U64(), c.Bool()).IsEnum())
}

func TestIndexedType(t *testing.T) {
	c := NewContext()
	inner := c.Struct(c.Bool(), c.B256())
	outer := c.Struct(c.U64(), c.Array(inner, 3))

	typ, off, err := IndexedType(outer, []uint64{1, 2, 1})
	require.NoError(t, err)
	assert.Same(t, c.B256(), typ)
	assert.Equal(t, uint64(8+2*40+8), off)

	_, _, err = IndexedType(outer, []uint64{2})
	assert.Error(t, err)

	_, _, err = IndexedType(outer, []uint64{1, 3})
	assert.Error(t, err)
}

func TestLeafFields(t *testing.T) {
	c := NewContext()
	typ := c.Struct(c.U64(), c.Array(c.Bool(), 2), c.B256())

	leaves := LeafFields(typ)
	require.Len(t, leaves, 4)
	assert.Equal(t, uint64(0), leaves[0].Offset)
	assert.Equal(t, uint64(8), leaves[1].Offset)
	assert.Equal(t, uint64(16), leaves[2].Offset)
	assert.Equal(t, uint64(24), leaves[3].Offset)
	assert.Same(t, c.B256(), leaves[3].Type)
}

func TestStorageSlots(t *testing.T) {
	c := NewContext()

	assert.Equal(t, uint64(3), StorageSlots(c.Array(c.U64(), 9)))
	assert.Equal(t, uint64(1), StorageSlots(c.U64()))
	assert.Equal(t, uint64(0), StorageSlots(c.Unit()))
	assert.Equal(t, uint64(2), StorageSlots(c.Struct(c.B256(), c.U64())))
}

func TestSignature(t *testing.T) {
	c := NewContext()
	assert.Equal(t, "{u64,[b256;2]}", c.Struct(c.U64(), c.Array(c.B256(), 2)).Signature())
}
