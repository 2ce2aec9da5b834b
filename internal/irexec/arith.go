package irexec

import (
	"github.com/holiman/uint256"

	"contractc/internal/ir"
	"contractc/internal/types"
)

func toInt(b []byte) *uint256.Int { return new(uint256.Int).SetBytes(b) }

func encode(t *types.Type, n *uint256.Int) []byte {
	if types.Size(t) == 32 {
		b := n.Bytes32()
		return b[:]
	}
	return n.PaddedBytes(8)
}

// arith evaluates a binary operation. Results that do not fit the operand
// width, division by zero and shifts losing set bits revert.
func arith(op ir.BinaryOpKind, t *types.Type, l, r []byte) ([]byte, error) {
	a, b := toInt(l), toInt(r)
	res, ok := ir.FoldBinary(op, ir.OperandBits(t), a, b)
	if !ok {
		return nil, &RevertError{Code: ir.ArithmeticRevertCode}
	}
	return encode(t, res), nil
}
