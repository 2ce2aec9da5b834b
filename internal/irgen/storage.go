package irgen

import (
	"contractc/internal/ast"
	"contractc/internal/ir"
	"contractc/internal/storage"
	"contractc/internal/types"
)

// Storage lowering. A value at byte offset off of a storage variable lives
// in slot off/32 of the variable's key; see package storage for the layout
// rules.

// keyFunc returns a pointer to the key of the slot-th slot of a value
type keyFunc func(slot uint64) *ir.Value

func (f *funcGen) variableKey(path string) keyFunc {
	return func(slot uint64) *ir.Value { return f.b.GetStorageKey(path, slot) }
}

// fixedKey addresses a value whose key is computed at run time. Such values
// are always accessed whole, starting at their first slot.
func (f *funcGen) fixedKey(key *ir.Value) keyFunc {
	return func(slot uint64) *ir.Value {
		if slot != 0 {
			f.ice(ast.Position{}, "slot %d of a run-time storage key", slot)
		}
		return key
	}
}

// variable resolves a storage access to its entry, the accessed type and
// its byte offset inside the variable
func (f *funcGen) variable(access ast.StorageAccess, pos ast.Position) (storage.Entry, *types.Type, uint64) {
	entry, ok := f.layout.Lookup(access.Key())
	if !ok {
		f.ice(pos, "unknown storage variable %s", access.Key())
	}
	if len(entry.MapKeys) > 0 {
		f.ice(pos, "storage map %s accessed as a value", entry.Path)
	}
	indices := make([]uint64, len(access.Fields))
	for i, idx := range access.Fields {
		indices[i] = uint64(idx)
	}
	t, off, err := types.IndexedType(entry.Type, indices)
	if err != nil {
		f.ice(pos, "storage access %s: %v", entry.Path, err)
	}
	return entry, t, off
}

func (f *funcGen) mapEntry(access ast.StorageAccess, pos ast.Position) storage.Entry {
	entry, ok := f.layout.Lookup(access.Key())
	if !ok {
		f.ice(pos, "unknown storage map %s", access.Key())
	}
	if len(entry.MapKeys) == 0 {
		f.ice(pos, "storage variable %s is not a map", entry.Path)
	}
	if len(access.Fields) > 0 {
		f.ice(pos, "field access into storage map %s", entry.Path)
	}
	return entry
}

func (f *funcGen) storageRead(e *ast.StorageReadExpr) *ir.Value {
	entry, t, off := f.variable(e.Access, e.Pos)
	f.at(e.Pos)
	return f.readValue(f.variableKey(entry.Path), off, t)
}

func (f *funcGen) storageWrite(access ast.StorageAccess, v *ir.Value, pos ast.Position) {
	entry, t, off := f.variable(access, pos)
	if t != v.Type {
		f.ice(pos, "storing %s into %s of type %s", v.Type, entry.Path, t)
	}
	f.writeValue(f.variableKey(entry.Path), off, v, soleWord(entry, off, t))
}

// soleWord reports whether a value of type t at off is the only part of the
// variable living in its slot, so that a word store may clear the rest. A
// zero-size value is alone only in a zero-size variable.
func soleWord(entry storage.Entry, off uint64, t *types.Type) bool {
	total := types.Size(entry.Type)
	size := types.Size(t)
	if size == 0 {
		return total == 0
	}
	return off%types.SlotSize == 0 && size <= types.WordSize && total <= off+types.WordSize
}

func (f *funcGen) storageMapGet(e *ast.StorageMapGetExpr) *ir.Value {
	entry := f.mapEntry(e.Map, e.Pos)
	key := f.elementKey(e.Map, e.Keys, e.Pos)
	if key == nil {
		return nil
	}
	return f.readValue(f.fixedKey(key), 0, entry.Type)
}

// elementKey hashes each key level into the parent key, starting at the
// map's own key
func (f *funcGen) elementKey(access ast.StorageAccess, keys []ast.Expr, pos ast.Position) *ir.Value {
	entry := f.mapEntry(access, pos)
	if len(keys) != len(entry.MapKeys) {
		f.ice(pos, "%d keys for storage map %s of depth %d", len(keys), entry.Path, len(entry.MapKeys))
	}
	parent := f.b.GetStorageKey(entry.Path, 0)
	for _, k := range keys {
		v := f.expr(k)
		if v == nil {
			return nil
		}
		parent = f.hashKey(v, parent)
	}
	return parent
}

// hashKey computes sha256(encode(k) ++ parent) with the VM hash instruction
func (f *funcGen) hashKey(k, parent *ir.Value) *ir.Value {
	bt := f.ctx.Struct(k.Type, f.ctx.B256())
	buf := f.temp(bt)
	f.b.Store(k, f.b.FieldPtr(buf, 0))
	f.b.Store(f.b.Load(parent), f.b.FieldPtr(buf, 1))

	out := f.temp(f.ctx.B256())
	args := []ir.AsmArg{
		{Name: "dst", Value: out},
		{Name: "src", Value: buf},
		{Name: "len", Value: f.b.ConstU64(types.Size(bt))},
	}
	body := []ir.AsmOp{{Name: "s256", Args: []string{"dst", "src", "len"}}}
	f.b.Asm(args, body, "", f.ctx.Unit())
	return out
}

// readValue loads a value of type t stored at byte offset off
func (f *funcGen) readValue(key keyFunc, off uint64, t *types.Type) *ir.Value {
	size := types.Size(t)
	if size == 0 {
		if t.IsUnit() {
			return f.b.ConstUnit()
		}
		return f.b.Load(f.temp(t))
	}
	r := storage.Span(off, size)
	if r.IsSingleWord() && t.IsWordScalar() {
		return f.fromWord(f.b.StateLoadWord(key(r.FirstSlot)), t)
	}
	slot := f.temp(t)
	if t.IsEnum() {
		f.readEnum(key, off, t, slot)
	} else {
		f.readBytes(key, off, size, slot)
	}
	return f.b.Load(slot)
}

// writeValue stores v at byte offset off. state_store_word clears the rest
// of its slot, so it is only used when sole is set: nothing else lives in
// that slot. A zero-size sole value still writes a zero word so that its
// existence is observable.
func (f *funcGen) writeValue(key keyFunc, off uint64, v *ir.Value, sole bool) {
	t := v.Type
	size := types.Size(t)
	if size == 0 {
		if sole {
			f.b.StateStoreWord(f.b.ConstU64(0), key(off/types.SlotSize))
		}
		return
	}
	r := storage.Span(off, size)
	if sole && r.IsSingleWord() && t.IsWordScalar() {
		f.b.StateStoreWord(f.toWord(v), key(r.FirstSlot))
		return
	}
	src := f.temp(t)
	f.b.Store(v, src)
	if t.IsEnum() {
		f.writeEnum(key, off, t, src)
	} else {
		f.writeBytes(key, off, size, src)
	}
}

// readEnum reads the tag, then only the payload of the active variant. The
// payload is cleared first so that bytes past a smaller variant are zero.
func (f *funcGen) readEnum(key keyFunc, off uint64, t *types.Type, dst *ir.Value) {
	tag := f.readValue(key, off, f.ctx.U64())
	f.b.Store(tag, f.b.FieldPtr(dst, 0))
	payload := f.b.FieldPtr(dst, 1)
	if size := types.Size(t.Field(1)); size > 0 {
		f.b.MemClear(payload, size)
	}
	f.eachVariant(t, tag, "enum_read", func(size uint64) {
		f.readBytes(key, off+types.WordSize, size, payload)
	})
}

// writeEnum writes the tag and the payload of the active variant
func (f *funcGen) writeEnum(key keyFunc, off uint64, t *types.Type, src *ir.Value) {
	tag := f.b.Load(f.b.FieldPtr(src, 0))
	f.writeValue(key, off, tag, false)
	f.eachVariant(t, tag, "enum_write", func(size uint64) {
		f.writeBytes(key, off+types.WordSize, size, f.b.FieldPtr(src, 1))
	})
}

// eachVariant branches on tag to one block per non-empty variant of the
// enum t, emitting body there, and continues at a common end block
func (f *funcGen) eachVariant(t *types.Type, tag *ir.Value, label string, body func(size uint64)) {
	end := f.fn.NewBlock(label + "_end")
	for i, variant := range t.Field(1).Fields() {
		size := types.Size(variant)
		if size == 0 {
			continue
		}
		yes := f.fn.NewBlock(label + "_variant")
		next := f.fn.NewBlock(label + "_next")
		f.b.Cbr(f.b.Cmp(ir.PredEq, tag, f.b.ConstU64(uint64(i))), yes, nil, next, nil)
		f.b.SetBlock(yes)
		body(size)
		f.b.Br(end)
		f.b.SetBlock(next)
	}
	f.b.Br(end)
	f.b.SetBlock(end)
}

// slotBuffer allocates a stack buffer covering the slots of r
func (f *funcGen) slotBuffer(r storage.Range) *ir.Value {
	return f.temp(f.ctx.Array(f.ctx.B256(), r.SlotCount))
}

func (f *funcGen) readBytes(key keyFunc, off, size uint64, dst *ir.Value) {
	r := storage.Span(off, size)
	buf := f.slotBuffer(r)
	f.b.StateLoadQuad(key(r.FirstSlot), buf, f.b.ConstU64(r.SlotCount))
	f.b.MemCopy(dst, f.byteOffset(buf, r.Start.Offset), size)
}

// writeBytes stores size bytes from src. Slots only partly covered are read
// first so that their other bytes survive.
func (f *funcGen) writeBytes(key keyFunc, off, size uint64, src *ir.Value) {
	r := storage.Span(off, size)
	buf := f.slotBuffer(r)
	k := key(r.FirstSlot)
	if !r.IsWholeSlots() {
		f.b.StateLoadQuad(k, buf, f.b.ConstU64(r.SlotCount))
	}
	f.b.MemCopy(f.byteOffset(buf, r.Start.Offset), src, size)
	f.b.StateStoreQuad(k, buf, f.b.ConstU64(r.SlotCount))
}

// byteOffset returns ptr advanced by n bytes
func (f *funcGen) byteOffset(ptr *ir.Value, n uint64) *ir.Value {
	if n == 0 {
		return ptr
	}
	addr := f.b.Add(f.b.PtrToInt(ptr, f.ctx.U64()), f.b.ConstU64(n))
	return f.b.IntToPtr(addr, f.ctx.Pointer(f.ctx.U8()))
}

func (f *funcGen) fromWord(w *ir.Value, t *types.Type) *ir.Value {
	if t == w.Type {
		return w
	}
	return f.b.Bitcast(w, t)
}

func (f *funcGen) toWord(v *ir.Value) *ir.Value {
	if v.Type.IsUintN(64) {
		return v
	}
	return f.b.Bitcast(v, f.ctx.U64())
}
