package types

import (
	"fmt"
	"sync"
)

// Context interns types. It is append-only: once a shape is registered the
// same pointer is returned for every later request.
type Context struct {
	mu    sync.RWMutex
	types map[string]*Type

	unit, boolean, b256, rawptr *Type
	uints                       map[int]*Type
}

// NewContext creates a context with the primitive types registered
func NewContext() *Context {
	c := &Context{
		types: make(map[string]*Type),
		uints: make(map[int]*Type),
	}
	c.unit = c.intern(&Type{kind: KindUnit})
	c.boolean = c.intern(&Type{kind: KindBool})
	c.b256 = c.intern(&Type{kind: KindB256})
	c.rawptr = c.intern(&Type{kind: KindRawPtr})
	for _, bits := range UintWidths {
		c.uints[bits] = c.intern(&Type{kind: KindUint, bits: bits})
	}
	return c
}

func (c *Context) intern(t *Type) *Type {
	t.key = typeKey(t)

	c.mu.RLock()
	existing, ok := c.types[t.key]
	c.mu.RUnlock()
	if ok {
		return existing
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.types[t.key]; ok {
		return existing
	}
	c.types[t.key] = t
	return t
}

func (c *Context) Unit() *Type   { return c.unit }
func (c *Context) Bool() *Type   { return c.boolean }
func (c *Context) B256() *Type   { return c.b256 }
func (c *Context) RawPtr() *Type { return c.rawptr }
func (c *Context) U8() *Type     { return c.uints[8] }
func (c *Context) U16() *Type    { return c.uints[16] }
func (c *Context) U32() *Type    { return c.uints[32] }
func (c *Context) U64() *Type    { return c.uints[64] }
func (c *Context) U256() *Type   { return c.uints[256] }

// Uint returns the unsigned integer type of the given width
func (c *Context) Uint(bits int) (*Type, error) {
	t, ok := c.uints[bits]
	if !ok {
		return nil, fmt.Errorf("unsupported integer width %d", bits)
	}
	return t, nil
}

// Pointer returns the typed pointer to elem
func (c *Context) Pointer(elem *Type) *Type {
	return c.intern(&Type{kind: KindPointer, elem: elem})
}

// Struct returns the anonymous struct (or tuple) with the given fields
func (c *Context) Struct(fields ...*Type) *Type {
	return c.intern(&Type{kind: KindStruct, fields: append([]*Type(nil), fields...)})
}

// Array returns [elem; n]
func (c *Context) Array(elem *Type, n uint64) *Type {
	return c.intern(&Type{kind: KindArray, elem: elem, length: n})
}

// Union returns the untagged union of the given variants
func (c *Context) Union(variants ...*Type) *Type {
	return c.intern(&Type{kind: KindUnion, fields: append([]*Type(nil), variants...)})
}

// Enum returns the tagged union { u64, ( variants ) }
func (c *Context) Enum(variants ...*Type) *Type {
	return c.Struct(c.U64(), c.Union(variants...))
}

// String returns str[n]
func (c *Context) String(n uint64) *Type {
	return c.intern(&Type{kind: KindString, length: n})
}

// Slice returns slice elem
func (c *Context) Slice(elem *Type) *Type {
	return c.intern(&Type{kind: KindSlice, elem: elem})
}

// Function returns fn(params) -> ret
func (c *Context) Function(params []*Type, ret *Type) *Type {
	return c.intern(&Type{kind: KindFunction, fields: append([]*Type(nil), params...), ret: ret})
}

// Len returns the number of interned types
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types)
}
