package irgen

import (
	"contractc/internal/ast"
	"contractc/internal/ir"
	"contractc/internal/storage"
	"contractc/internal/types"
)

func (f *funcGen) stmt(s ast.Stmt) {
	f.at(s.NodePos())
	switch s := s.(type) {
	case *ast.LetStmt:
		v := f.expr(s.Value)
		if v == nil {
			return
		}
		// a fresh slot per binding: shadowed variables keep theirs
		slot := f.b.GetLocal(f.fn.NewLocal(s.Name, v.Type))
		f.b.Store(v, slot)
		f.bind(s.Name, slot)

	case *ast.AssignStmt:
		if !isPlace(s.Target) {
			f.ice(s.Pos, "assignment to %T", s.Target)
		}
		v := f.expr(s.Value)
		if v == nil {
			return
		}
		ptr := f.place(s.Target)
		if ptr == nil {
			return
		}
		f.b.Store(v, ptr)

	case *ast.ExprStmt:
		f.expr(s.Expr)

	case *ast.ReturnStmt:
		var v *ir.Value
		if s.Value != nil {
			v = f.expr(s.Value)
			if v == nil {
				return
			}
		} else {
			v = f.b.ConstUnit()
		}
		f.ret(v, s.Pos)

	case *ast.WhileStmt:
		f.while(s)

	case *ast.BreakStmt:
		f.breakLoop(s)

	case *ast.ContinueStmt:
		f.continueLoop(s)

	case *ast.AssertStmt:
		cond := f.expr(s.Cond)
		if cond == nil {
			return
		}
		ok := f.fn.NewBlock("assert_ok")
		fail := f.fn.NewBlock("assert_fail")
		f.b.Cbr(cond, ok, nil, fail, nil)
		f.b.SetBlock(fail)
		f.b.Revert(f.b.ConstU64(AssertRevertCode))
		f.b.SetBlock(ok)

	case *ast.RevertStmt:
		code := f.expr(s.Code)
		if code == nil {
			return
		}
		f.b.Revert(code)
		f.terminate()

	case *ast.StorageWriteStmt:
		v := f.expr(s.Value)
		if v == nil {
			return
		}
		f.storageWrite(s.Access, v, s.Pos)

	case *ast.StorageMapInsertStmt:
		key := f.elementKey(s.Map, s.Keys, s.Pos)
		if key == nil {
			return
		}
		v := f.expr(s.Value)
		if v == nil {
			return
		}
		entry := f.mapEntry(s.Map, s.Pos)
		f.writeValue(f.fixedKey(key), 0, v, types.Size(entry.Type) <= types.WordSize)

	case *ast.StorageMapRemoveStmt:
		entry := f.mapEntry(s.Map, s.Pos)
		key := f.elementKey(s.Map, s.Keys, s.Pos)
		if key == nil {
			return
		}
		f.b.StateClear(key, f.b.ConstU64(storage.ClearSlots(entry.Type)))

	case *ast.LogStmt:
		v := f.expr(s.Value)
		if v == nil {
			return
		}
		f.b.Log(v, f.b.ConstU64(s.LogID))

	case *ast.SmoStmt:
		recipient := f.expr(s.Recipient)
		msg := f.expr(s.Message)
		coins := f.expr(s.Coins)
		if recipient == nil || msg == nil || coins == nil {
			return
		}
		to := f.temp(recipient.Type)
		f.b.Store(recipient, to)
		buf := f.temp(msg.Type)
		f.b.Store(msg, buf)
		f.b.Smo(to, buf, f.b.ConstU64(types.Size(msg.Type)), coins)

	default:
		f.ice(s.NodePos(), "unsupported statement %T", s)
	}
}
