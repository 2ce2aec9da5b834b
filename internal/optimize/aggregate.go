package optimize

import (
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/types"
)

// AggregateLowering replaces init_aggr with field stores into the
// destination and rewrites load/insert_value/store and
// load/extract_value sequences on the same address into direct field
// accesses. When strictly more than half of an init_aggr's direct fields
// are zero constants the whole slot is cleared first and only the others
// are stored. A nested literal is its own init_aggr and decides on its own.
type AggregateLowering struct{}

func (a *AggregateLowering) Name() string {
	return "aggregate-lowering"
}

func (a *AggregateLowering) Description() string {
	return "Lowers whole-aggregate initialization and updates to field-wise memory access"
}

func (a *AggregateLowering) Apply(m *ir.Module) bool {
	changed := false
	for _, fn := range m.Functions {
		if lowerInitAggr(fn) {
			changed = true
		}
		if lowerInsertChains(fn) {
			changed = true
		}
		if lowerExtracts(fn) {
			changed = true
		}
	}
	return changed
}

// emitter inserts detached instructions before a fixed instruction
type emitter struct {
	b      *ir.Builder
	block  *ir.Block
	before ir.Instruction
}

func newEmitter(fn *ir.Function, before ir.Instruction) *emitter {
	b := ir.NewDetachedBuilder(fn)
	b.SetMetadata(before.GetMetadata())
	return &emitter{b: b, block: before.GetBlock(), before: before}
}

func (e *emitter) place(inst ir.Instruction) {
	e.block.InsertBefore(e.block.IndexOf(e.before), inst)
}

func (e *emitter) gep(base *ir.Value, indices ...uint64) *ir.Value {
	v := e.b.FieldPtr(base, indices...)
	e.place(v.Def)
	return v
}

func (e *emitter) store(v, ptr *ir.Value) {
	e.place(e.b.Store(v, ptr))
}

func (e *emitter) load(ptr *ir.Value) *ir.Value {
	v := e.b.Load(ptr)
	e.place(v.Def)
	return v
}

func (e *emitter) clear(ptr *ir.Value, size uint64) {
	e.place(e.b.MemClear(ptr, size))
}

func isZeroConst(v *ir.Value) bool {
	c := constOf(v)
	return c != nil && c.IsZero()
}

func lowerInitAggr(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		for _, inst := range append([]ir.Instruction(nil), blk.Instructions...) {
			init, ok := inst.(*ir.InitAggr)
			if !ok {
				continue
			}
			lowerOneInit(fn, init)
			blk.Remove(init)
			changed = true
		}
	}
	return changed
}

func lowerOneInit(fn *ir.Function, init *ir.InitAggr) {
	t := init.Ptr.Type.Elem()
	fields := ir.AggregateFields(t)
	zeros := 0
	for _, v := range init.Fields {
		if isZeroConst(v) {
			zeros++
		}
	}
	bulk := zeros*2 > len(fields)

	e := newEmitter(fn, init)
	if bulk {
		e.clear(init.Ptr, types.Size(t))
	}
	for k, v := range init.Fields {
		if bulk && isZeroConst(v) {
			continue
		}
		field := fields[k]
		ptr := e.gep(init.Ptr, uint64(k))
		if field == v.Type {
			if types.Size(field) > 0 {
				e.store(v, ptr)
			}
			continue
		}
		// a variant stored into a union field: the bytes past the variant
		// are zero
		variant := variantIndex(field, v.Type)
		if variant < 0 {
			panic(errors.InternalAt(fn.Name, init.String(), init.GetMetadata().Position(),
				"init_aggr field %d of type %s does not accept %s", k, field, v.Type))
		}
		if !bulk && types.Size(v.Type) < types.Size(field) {
			e.clear(ptr, types.Size(field))
		}
		if types.Size(v.Type) > 0 {
			e.store(v, e.gep(ptr, uint64(variant)))
		}
	}
}

func variantIndex(union, t *types.Type) int {
	if !union.IsUnion() {
		return -1
	}
	for k, v := range union.Fields() {
		if v == t {
			return k
		}
	}
	return -1
}

// definedIn reports whether v is the result of an instruction in blk, and
// at which position
func definedIn(blk *ir.Block, v *ir.Value) (int, bool) {
	if v.Def == nil || v.Def.GetBlock() != blk {
		return 0, false
	}
	return blk.IndexOf(v.Def), true
}

// clobbered reports whether any instruction of blk strictly between from
// and to may write memory
func clobbered(blk *ir.Block, from, to int) bool {
	for _, inst := range blk.Instructions[from+1 : to] {
		if clobbers(inst) {
			return true
		}
	}
	return false
}

// lowerInsertChains rewrites
//
//	a = load p; b = insert_value a, x, i; c = insert_value b, y, j; store c to p
//
// into field stores of x and y when every intermediate has a single use and
// nothing in between writes memory
func lowerInsertChains(fn *ir.Function) bool {
	changed := false
	for _, blk := range fn.Blocks {
		for again := true; again; {
			again = false
			uses := ir.UseCounts(fn)
			for at, inst := range blk.Instructions {
				st, ok := inst.(*ir.Store)
				if !ok {
					continue
				}
				chain, load := insertChain(blk, st, uses)
				if load == nil {
					continue
				}
				from, _ := definedIn(blk, load.Result)
				if clobbered(blk, from, at) {
					continue
				}
				e := newEmitter(fn, st)
				for k := len(chain) - 1; k >= 0; k-- {
					iv := chain[k]
					e.store(iv.Value, e.gep(st.Ptr, iv.Indices...))
				}
				blk.Remove(st)
				for _, iv := range chain {
					blk.Remove(iv)
				}
				blk.Remove(load)
				again, changed = true, true
				break
			}
		}
	}
	return changed
}

// insertChain returns the insert_values feeding st, outermost first, and
// the load of st's own address they start from
func insertChain(blk *ir.Block, st *ir.Store, uses map[*ir.Value]int) ([]*ir.InsertValue, *ir.Load) {
	var chain []*ir.InsertValue
	v := st.Value
	for {
		if _, ok := definedIn(blk, v); !ok || uses[v] != 1 {
			return nil, nil
		}
		switch d := v.Def.(type) {
		case *ir.InsertValue:
			chain = append(chain, d)
			v = d.Agg
		case *ir.Load:
			if d.Ptr != st.Ptr || len(chain) == 0 {
				return nil, nil
			}
			return chain, d
		default:
			return nil, nil
		}
	}
}

// lowerExtracts rewrites extract_value of a loaded aggregate into a load of
// the field when the load feeds nothing but extract_values in its block
func lowerExtracts(fn *ir.Function) bool {
	changed := false
	uses := ir.UseCounts(fn)
	for _, blk := range fn.Blocks {
		for _, inst := range append([]ir.Instruction(nil), blk.Instructions...) {
			load, ok := inst.(*ir.Load)
			if !ok || !load.Result.Type.IsAggregate() {
				continue
			}
			extracts := extractUsers(blk, load.Result)
			if extracts == nil || len(extracts) != uses[load.Result] {
				continue
			}
			from := blk.IndexOf(load)
			last := blk.IndexOf(extracts[len(extracts)-1])
			if clobbered(blk, from, last) {
				continue
			}
			for _, ex := range extracts {
				e := newEmitter(fn, ex)
				field := e.load(e.gep(load.Ptr, ex.Indices...))
				ir.ReplaceAllUses(fn, ex.Result, field)
				blk.Remove(ex)
			}
			blk.Remove(load)
			changed = true
			uses = ir.UseCounts(fn)
		}
	}
	return changed
}

// extractUsers returns the extract_values of v in blk in block order, or
// nil if any of them sits outside blk
func extractUsers(blk *ir.Block, v *ir.Value) []*ir.ExtractValue {
	var out []*ir.ExtractValue
	for _, b := range blk.Function.Blocks {
		for _, inst := range b.All() {
			ex, ok := inst.(*ir.ExtractValue)
			if !ok || ex.Agg != v {
				continue
			}
			if b != blk {
				return nil
			}
			out = append(out, ex)
		}
	}
	return out
}
