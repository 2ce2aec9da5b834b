package ir

import (
	"github.com/holiman/uint256"

	"contractc/internal/types"
)

// OperandBits is the number of value bits of an arithmetic operand type
func OperandBits(t *types.Type) int {
	switch {
	case t.IsUint():
		return t.Bits()
	case t.IsBool():
		return 1
	}
	return 256
}

// FoldBinary computes op on operands of the given bit width. It reports false
// when the operation reverts at run time.
func FoldBinary(op BinaryOpKind, bits int, a, b *uint256.Int) (*uint256.Int, bool) {
	res := new(uint256.Int)
	overflow := false
	switch op {
	case OpAdd:
		_, overflow = res.AddOverflow(a, b)
	case OpSub:
		if a.Lt(b) {
			return nil, false
		}
		res.Sub(a, b)
	case OpMul:
		_, overflow = res.MulOverflow(a, b)
	case OpDiv:
		if b.IsZero() {
			return nil, false
		}
		res.Div(a, b)
	case OpMod:
		if b.IsZero() {
			return nil, false
		}
		res.Mod(a, b)
	case OpAnd:
		res.And(a, b)
	case OpOr:
		res.Or(a, b)
	case OpXor:
		res.Xor(a, b)
	case OpShl:
		if !b.IsUint64() || b.Uint64() >= uint64(bits) {
			return res, a.IsZero()
		}
		n := uint(b.Uint64())
		res.Lsh(a, n)
		back := new(uint256.Int).Rsh(res, n)
		overflow = !back.Eq(a)
	case OpShr:
		if !b.IsUint64() || b.Uint64() >= 256 {
			return res, true
		}
		res.Rsh(a, uint(b.Uint64()))
	}
	if overflow || res.Gt(MaxUint(bits)) {
		return nil, false
	}
	return res, true
}

// FoldCompare evaluates a comparison predicate
func FoldCompare(pred Predicate, a, b *uint256.Int) bool {
	switch pred {
	case PredEq:
		return a.Eq(b)
	case PredNe:
		return !a.Eq(b)
	case PredLt:
		return a.Lt(b)
	case PredGt:
		return a.Gt(b)
	case PredLe:
		return !a.Gt(b)
	case PredGe:
		return !a.Lt(b)
	}
	return false
}
