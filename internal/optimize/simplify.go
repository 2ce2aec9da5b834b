package optimize

import (
	"github.com/holiman/uint256"

	"contractc/internal/ir"
	"contractc/internal/types"
)

// maxSimplifyRounds bounds the fixed-point iteration per function
const maxSimplifyRounds = 64

// Simplify folds constants, resolves constant branches, deletes dead code
// and unreachable blocks and merges straight-line blocks, to a fixed point.
// Folding never hides a run-time revert: an overflowing or trapping
// expression is left in place.
type Simplify struct{}

func (s *Simplify) Name() string {
	return "simplify"
}

func (s *Simplify) Description() string {
	return "Folds constants and branches and removes dead code and blocks"
}

func (s *Simplify) Apply(m *ir.Module) bool {
	changed := false
	for _, fn := range m.Functions {
		if SimplifyFunction(fn) {
			changed = true
		}
	}
	return changed
}

// SimplifyFunction runs the simplifications on one function until nothing
// changes
func SimplifyFunction(fn *ir.Function) bool {
	changed := false
	for round := 0; round < maxSimplifyRounds; round++ {
		c := foldConstants(fn)
		c = foldBranches(fn) || c
		c = removeUnreachable(fn) || c
		c = mergeBlocks(fn) || c
		c = removeDeadArgs(fn) || c
		c = removeDeadCode(fn) || c
		if !c {
			break
		}
		changed = true
	}
	return changed
}

func intOf(c *ir.Constant) *uint256.Int {
	switch c.Kind {
	case ir.ConstInt, ir.ConstB256:
		return c.Int
	case ir.ConstBool:
		if c.Bool {
			return uint256.NewInt(1)
		}
		return uint256.NewInt(0)
	case ir.ConstUnit:
		return uint256.NewInt(0)
	}
	return nil
}

// constant materializes n as a detached constant of type t
func constant(b *ir.Builder, t *types.Type, n *uint256.Int) *ir.Value {
	switch {
	case t.IsBool():
		return b.ConstBool(!n.IsZero())
	case t.IsB256():
		return b.Const(b.Module().Constants.B256(t, n.Bytes32()))
	}
	return b.ConstWide(t, n)
}

// foldConstants rewrites arithmetic on constants and algebraic identities
func foldConstants(fn *ir.Function) bool {
	changed := false
	b := ir.NewDetachedBuilder(fn)
	for _, blk := range fn.Blocks {
		for k := 0; k < len(blk.Instructions); k++ {
			inst := blk.Instructions[k]
			b.SetMetadata(inst.GetMetadata())
			var folded *ir.Value
			switch i := inst.(type) {
			case *ir.BinaryOp:
				folded = foldBinary(b, i)
			case *ir.Cmp:
				folded = foldCmp(b, i)
			case *ir.Not:
				if c := constOf(i.Value); c != nil {
					t := i.Result.Type
					n := intOf(c)
					if t.IsBool() {
						folded = b.ConstBool(n.IsZero())
					} else {
						folded = constant(b, t, new(uint256.Int).Xor(n, ir.MaxUint(ir.OperandBits(t))))
					}
				}
			}
			if folded == nil {
				continue
			}
			if folded.Def == nil || folded.Def.GetBlock() != nil {
				// an identity: reuse an existing value
				ir.ReplaceAllUses(fn, inst.GetResult(), folded)
				blk.Remove(inst)
				k--
			} else {
				replace(fn, inst, folded.Def)
			}
			changed = true
		}
	}
	return changed
}

func foldBinary(b *ir.Builder, i *ir.BinaryOp) *ir.Value {
	t := i.Result.Type
	lc, rc := constOf(i.Left), constOf(i.Right)
	if lc != nil && rc != nil {
		if res, ok := ir.FoldBinary(i.Op, ir.OperandBits(t), intOf(lc), intOf(rc)); ok {
			return constant(b, t, res)
		}
		return nil
	}
	if rc == nil {
		return nil
	}
	r := intOf(rc)
	switch {
	case r.IsZero() && (i.Op == ir.OpAdd || i.Op == ir.OpSub || i.Op == ir.OpOr || i.Op == ir.OpXor || i.Op == ir.OpShl || i.Op == ir.OpShr):
		return i.Left
	case r.IsUint64() && r.Uint64() == 1 && (i.Op == ir.OpMul || i.Op == ir.OpDiv):
		return i.Left
	}
	return nil
}

func foldCmp(b *ir.Builder, i *ir.Cmp) *ir.Value {
	if i.Left == i.Right {
		switch i.Pred {
		case ir.PredEq, ir.PredLe, ir.PredGe:
			return b.ConstBool(true)
		default:
			return b.ConstBool(false)
		}
	}
	lc, rc := constOf(i.Left), constOf(i.Right)
	if lc == nil || rc == nil {
		return nil
	}
	return b.ConstBool(ir.FoldCompare(i.Pred, intOf(lc), intOf(rc)))
}

// foldBranches turns conditional branches with a known outcome into
// unconditional ones
func foldBranches(fn *ir.Function) bool {
	changed := false
	b := ir.NewDetachedBuilder(fn)
	for _, blk := range fn.Blocks {
		cbr, ok := blk.Terminator.(*ir.Cbr)
		if !ok {
			continue
		}
		var target ir.BranchTarget
		if c := constOf(cbr.Cond); c != nil {
			target = cbr.False
			if !intOf(c).IsZero() {
				target = cbr.True
			}
		} else if cbr.True.Block == cbr.False.Block && sameValues(cbr.True.Args, cbr.False.Args) {
			target = cbr.True
		} else {
			continue
		}
		b.SetMetadata(cbr.GetMetadata())
		br := b.Br(target.Block, target.Args...)
		blk.Terminator = nil
		blk.Append(br)
		changed = true
	}
	return changed
}

func sameValues(a, b []*ir.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

func removeUnreachable(fn *ir.Function) bool {
	reachable := ir.Reachable(fn)
	changed := false
	for _, blk := range append([]*ir.Block(nil), fn.Blocks...) {
		if !reachable[blk] {
			fn.RemoveBlock(blk)
			changed = true
		}
	}
	return changed
}

// mergeBlocks folds a block into its only predecessor when that
// predecessor branches to it unconditionally
func mergeBlocks(fn *ir.Function) bool {
	changed := false
	for merged := true; merged; {
		merged = false
		preds := ir.Predecessors(fn)
		for _, blk := range fn.Blocks {
			br, ok := blk.Terminator.(*ir.Br)
			if !ok {
				continue
			}
			succ := br.Target.Block
			if succ == blk || succ == fn.EntryBlock() || len(preds[succ]) != 1 {
				continue
			}
			for k, a := range succ.Args {
				ir.ReplaceAllUses(fn, a, br.Target.Args[k])
			}
			blk.Terminator = nil
			for _, inst := range succ.Instructions {
				blk.Append(inst)
			}
			blk.Append(succ.Terminator)
			fn.RemoveBlock(succ)
			merged, changed = true, true
			break
		}
	}
	return changed
}

// removeDeadArgs drops unused block arguments together with the values
// passed for them
func removeDeadArgs(fn *ir.Function) bool {
	uses := ir.UseCounts(fn)
	preds := ir.Predecessors(fn)
	changed := false
	for _, blk := range fn.Blocks[1:] {
		for k := len(blk.Args) - 1; k >= 0; k-- {
			if uses[blk.Args[k]] > 0 {
				continue
			}
			blk.RemoveArg(k)
			for _, p := range preds[blk] {
				for _, t := range ir.Targets(p.Terminator) {
					if t.Block == blk {
						t.Args = append(t.Args[:k:k], t.Args[k+1:]...)
					}
				}
			}
			changed = true
		}
	}
	return changed
}

// removeDeadCode deletes removable instructions whose result is unused
func removeDeadCode(fn *ir.Function) bool {
	uses := ir.UseCounts(fn)
	changed := false
	for again := true; again; {
		again = false
		for _, blk := range fn.Blocks {
			for k := len(blk.Instructions) - 1; k >= 0; k-- {
				inst := blk.Instructions[k]
				r := inst.GetResult()
				if r == nil || uses[r] > 0 || !ir.IsRemovable(inst) {
					continue
				}
				for _, op := range ir.Operands(inst) {
					uses[op]--
				}
				blk.Remove(inst)
				again, changed = true, true
			}
		}
	}
	return changed
}
