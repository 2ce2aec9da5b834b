package irgen

import (
	"contractc/internal/ast"
	"contractc/internal/ir"
	"contractc/internal/types"
)

// blockExpr lowers statements then the tail in a new scope
func (f *funcGen) blockExpr(e *ast.BlockExpr) *ir.Value {
	f.pushScope()
	defer f.popScope()
	for _, s := range e.Stmts {
		if f.diverged() {
			return nil
		}
		f.stmt(s)
	}
	if f.diverged() {
		return nil
	}
	if e.Tail == nil {
		return f.b.ConstUnit()
	}
	return f.expr(e.Tail)
}

// branchTo branches from the current point to block with v as its argument,
// unless control never gets here
func (f *funcGen) branchTo(block *ir.Block, v *ir.Value) {
	if f.diverged() {
		return
	}
	if v == nil {
		f.b.Br(block)
	} else {
		f.b.Br(block, v)
	}
}

// newMerge creates the join block of a value-producing construct; its only
// argument is the construct's value
func (f *funcGen) newMerge(label string, t *types.Type) (*ir.Block, *ir.Value) {
	block := f.fn.NewBlock(label)
	return block, block.AddArg("", t)
}

func (f *funcGen) ifExpr(e *ast.IfExpr) *ir.Value {
	cond := f.expr(e.Cond)
	if cond == nil {
		return nil
	}
	t := f.exprType(e)
	then := f.fn.NewBlock("then")
	els := f.fn.NewBlock("else")
	merge, result := f.newMerge("endif", t)

	f.at(e.Pos)
	f.b.Cbr(cond, then, nil, els, nil)

	f.b.SetBlock(then)
	v := f.blockExpr(e.Then)
	f.branchTo(merge, v)

	f.b.SetBlock(els)
	if e.Else != nil {
		v = f.expr(e.Else)
	} else {
		v = f.b.ConstUnit()
	}
	f.branchTo(merge, v)

	f.b.SetBlock(merge)
	return result
}

// shortCircuit lowers && and || so that the right operand is evaluated only
// when the left one does not decide the result
func (f *funcGen) shortCircuit(e *ast.BinaryExpr) *ir.Value {
	left := f.expr(e.Left)
	if left == nil {
		return nil
	}
	rhs := f.fn.NewBlock("rhs")
	merge, result := f.newMerge("endsc", f.ctx.Bool())

	f.at(e.Pos)
	if e.Op == "&&" {
		f.b.Cbr(left, rhs, nil, merge, []*ir.Value{left})
	} else {
		f.b.Cbr(left, merge, []*ir.Value{left}, rhs, nil)
	}

	f.b.SetBlock(rhs)
	right := f.expr(e.Right)
	f.branchTo(merge, right)

	f.b.SetBlock(merge)
	return result
}

// match lowers to a chain of tests, one block per arm, falling through to a
// revert when no arm matches
func (f *funcGen) match(e *ast.MatchExpr) *ir.Value {
	scrutinee := f.expr(e.Scrutinee)
	if scrutinee == nil {
		return nil
	}
	st := scrutinee.Type
	t := f.exprType(e)
	merge, result := f.newMerge("endmatch", t)

	// enums are matched on the tag; the payload is read from a copy
	var slot, tag *ir.Value
	if st.IsEnum() {
		slot = f.temp(st)
		f.b.Store(scrutinee, slot)
		tag = f.b.Load(f.b.FieldPtr(slot, 0))
	}

	for _, arm := range e.Arms {
		f.at(arm.Pos)
		body := f.fn.NewBlock("arm")
		var bindName string
		var bindVariant int

		switch p := arm.Pattern.(type) {
		case *ast.WildcardPattern:
			f.b.Br(body)
			f.b.SetBlock(nil)

		case *ast.LiteralPattern:
			if st.IsEnum() {
				f.ice(arm.Pos, "literal pattern on enum %s", st)
			}
			lit := f.b.Const(f.constant(st, p.Value))
			next := f.fn.NewBlock("next")
			f.b.Cbr(f.b.Cmp(ir.PredEq, scrutinee, lit), body, nil, next, nil)
			f.b.SetBlock(next)

		case *ast.VariantPattern:
			if !st.IsEnum() {
				f.ice(arm.Pos, "variant pattern on %s", st)
			}
			variants := st.Field(1).Fields()
			if p.Variant < 0 || p.Variant >= len(variants) {
				f.ice(arm.Pos, "variant %d out of range for %s", p.Variant, st)
			}
			next := f.fn.NewBlock("next")
			f.b.Cbr(f.b.Cmp(ir.PredEq, tag, f.b.ConstU64(uint64(p.Variant))), body, nil, next, nil)
			f.b.SetBlock(next)
			if p.Binding != "" {
				bindName, bindVariant = p.Binding, p.Variant
			}

		default:
			f.ice(arm.Pos, "unsupported pattern %T", p)
		}

		testBlock := f.b.Block()
		f.b.SetBlock(body)
		f.pushScope()
		if bindName != "" {
			binding := f.b.Load(f.b.FieldPtr(slot, 1, uint64(bindVariant)))
			local := f.b.GetLocal(f.fn.NewLocal(bindName, binding.Type))
			f.b.Store(binding, local)
			f.bind(bindName, local)
		}
		v := f.expr(arm.Body)
		f.branchTo(merge, v)
		f.popScope()
		f.b.SetBlock(testBlock)

		if testBlock == nil {
			// a wildcard matched everything; later arms are dead
			break
		}
	}

	if !f.diverged() {
		f.b.Revert(f.b.ConstU64(MatchRevertCode))
	}
	f.b.SetBlock(merge)
	return result
}

// while lowers to a header re-testing the condition, a body and an end
// block. Every loop with a break also gets one break block that forwards
// to the end block.
func (f *funcGen) while(s *ast.WhileStmt) {
	header := f.fn.NewBlock("while")
	body := f.fn.NewBlock("while_body")
	end := f.fn.NewBlock("end_while")

	f.at(s.Pos)
	f.b.Br(header)

	f.b.SetBlock(header)
	cond := f.expr(s.Cond)
	if cond != nil {
		f.b.Cbr(cond, body, nil, end, nil)
	}

	l := &loop{header: header, end: end}
	f.loops = append(f.loops, l)
	f.b.SetBlock(body)
	f.blockExpr(s.Body)
	f.branchTo(header, nil)
	f.loops = f.loops[:len(f.loops)-1]

	f.b.SetBlock(end)
}

func (f *funcGen) innermostLoop(pos ast.Position, what string) *loop {
	if len(f.loops) == 0 {
		f.ice(pos, "%s outside of a loop", what)
	}
	return f.loops[len(f.loops)-1]
}

func (f *funcGen) breakLoop(s *ast.BreakStmt) {
	l := f.innermostLoop(s.Pos, "break")
	if l.brk == nil {
		l.brk = f.fn.NewBlockAfter(l.end, "loop_break")
		saved := f.b.Block()
		f.b.SetBlock(l.brk)
		f.b.Br(l.end)
		f.b.SetBlock(saved)
	}
	f.at(s.Pos)
	f.b.Br(l.brk)
	f.terminate()
}

func (f *funcGen) continueLoop(s *ast.ContinueStmt) {
	l := f.innermostLoop(s.Pos, "continue")
	f.at(s.Pos)
	f.b.Br(l.header)
	f.terminate()
}
