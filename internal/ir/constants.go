package ir

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/holiman/uint256"

	"contractc/internal/types"
)

// ConstantKind discriminates Constant payloads
type ConstantKind int

const (
	ConstUnit ConstantKind = iota
	ConstBool
	ConstInt
	ConstB256
	ConstString
)

// Constant is a literal value owned by the module constant pool
type Constant struct {
	Type *types.Type
	Kind ConstantKind
	Bool bool
	Int  *uint256.Int // ConstInt and ConstB256
	Str  []byte
}

// Uint64 returns the value of an integer or bool constant that fits a word
func (c *Constant) Uint64() (uint64, bool) {
	switch c.Kind {
	case ConstBool:
		if c.Bool {
			return 1, true
		}
		return 0, true
	case ConstUnit:
		return 0, true
	case ConstInt:
		if c.Int.IsUint64() {
			return c.Int.Uint64(), true
		}
	}
	return 0, false
}

// IsZero reports whether the constant's bytes are all zero
func (c *Constant) IsZero() bool {
	switch c.Kind {
	case ConstUnit:
		return true
	case ConstBool:
		return !c.Bool
	case ConstInt, ConstB256:
		return c.Int.IsZero()
	case ConstString:
		for _, b := range c.Str {
			if b != 0 {
				return false
			}
		}
		return true
	}
	return false
}

// Bytes returns the in-memory encoding of the constant: words are big-endian,
// strings are padded to a word boundary
func (c *Constant) Bytes() []byte {
	switch c.Kind {
	case ConstUnit:
		return nil
	case ConstBool:
		out := make([]byte, 8)
		if c.Bool {
			out[7] = 1
		}
		return out
	case ConstInt:
		if c.Type.IsUintN(256) {
			b := c.Int.Bytes32()
			return b[:]
		}
		return c.Int.PaddedBytes(8)
	case ConstB256:
		b := c.Int.Bytes32()
		return b[:]
	case ConstString:
		out := make([]byte, types.Size(c.Type))
		copy(out, c.Str)
		return out
	}
	return nil
}

// Literal renders the constant as it appears in IR text
func (c *Constant) Literal() string {
	switch c.Kind {
	case ConstUnit:
		return "()"
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstInt:
		return c.Int.Dec()
	case ConstB256:
		b := c.Int.Bytes32()
		return "0x" + hex.EncodeToString(b[:])
	case ConstString:
		return strconv.Quote(string(c.Str))
	}
	return "?"
}

func (c *Constant) String() string {
	return c.Type.String() + " " + c.Literal()
}

func (c *Constant) key() string { return c.String() }

// ConstantPool deduplicates constants. It is append-only and safe for
// concurrent use.
type ConstantPool struct {
	mu    sync.Mutex
	byKey map[string]*Constant
	list  []*Constant
}

// NewConstantPool creates an empty pool
func NewConstantPool() *ConstantPool {
	return &ConstantPool{byKey: make(map[string]*Constant)}
}

func (p *ConstantPool) intern(c *Constant) *Constant {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := c.key()
	if existing, ok := p.byKey[k]; ok {
		return existing
	}
	p.byKey[k] = c
	p.list = append(p.list, c)
	return c
}

// All returns the pooled constants in insertion order
func (p *ConstantPool) All() []*Constant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Constant(nil), p.list...)
}

func (p *ConstantPool) Unit(t *types.Type) *Constant {
	return p.intern(&Constant{Type: t, Kind: ConstUnit})
}

func (p *ConstantPool) Bool(t *types.Type, b bool) *Constant {
	return p.intern(&Constant{Type: t, Kind: ConstBool, Bool: b})
}

// Uint creates an integer constant of type t
func (p *ConstantPool) Uint(t *types.Type, n uint64) *Constant {
	return p.intern(&Constant{Type: t, Kind: ConstInt, Int: uint256.NewInt(n)})
}

// Wide creates an integer constant from a 256-bit value
func (p *ConstantPool) Wide(t *types.Type, n *uint256.Int) *Constant {
	return p.intern(&Constant{Type: t, Kind: ConstInt, Int: n.Clone()})
}

// B256 creates a b256 constant from 32 big-endian bytes
func (p *ConstantPool) B256(t *types.Type, b [32]byte) *Constant {
	return p.intern(&Constant{Type: t, Kind: ConstB256, Int: new(uint256.Int).SetBytes(b[:])})
}

// String creates a str[N] constant
func (p *ConstantPool) String(t *types.Type, s []byte) *Constant {
	return p.intern(&Constant{Type: t, Kind: ConstString, Str: append([]byte(nil), s...)})
}

// Zero returns the zero constant of a scalar type
func (p *ConstantPool) Zero(t *types.Type) (*Constant, error) {
	switch t.Kind() {
	case types.KindUnit:
		return p.Unit(t), nil
	case types.KindBool:
		return p.Bool(t, false), nil
	case types.KindUint:
		return p.Uint(t, 0), nil
	case types.KindB256:
		return p.B256(t, [32]byte{}), nil
	case types.KindString:
		return p.String(t, nil), nil
	}
	return nil, fmt.Errorf("no zero constant for %s", t)
}

// MaxUint returns the largest value of an integer width
func MaxUint(bits int) *uint256.Int {
	if bits >= 256 {
		return new(uint256.Int).Not(uint256.NewInt(0))
	}
	one := uint256.NewInt(1)
	max := new(uint256.Int).Lsh(one, uint(bits))
	return max.Sub(max, one)
}
