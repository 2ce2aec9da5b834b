package irgen

import (
	"fmt"

	"github.com/tliron/commonlog"

	"contractc/internal/ast"
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/storage"
	"contractc/internal/types"
)

var log = commonlog.GetLogger("contractc.irgen")

// Revert codes of generated checks
const (
	AssertRevertCode = ir.AssertRevertCode
	MatchRevertCode  = ir.MatchRevertCode
)

// RetValueParam names the out-pointer parameter of functions returning
// memory-resident values
const RetValueParam = "__ret_value"

// Generate lowers a type-checked module to IR. User errors come back as
// errors.Diagnostics; broken front-end invariants as *errors.InternalError.
func Generate(m *ast.Module, ctx *types.Context) (result *ir.Module, err error) {
	defer errors.Recover(&err)

	if diags := checkEntries(m); len(diags) > 0 {
		return nil, diags
	}

	layout, err := storage.NewLayout(m)
	if err != nil {
		return nil, errors.Internal("%v", err)
	}

	kind := ir.KindContract
	if m.Kind == ast.Script {
		kind = ir.KindScript
	}
	g := &generator{
		ast:       m,
		module:    ir.NewModule(kind, ctx),
		ctx:       ctx,
		layout:    layout,
		functions: make(map[string]*ir.Function),
	}

	for _, c := range m.Configurables {
		g.declareConfigurable(c)
	}
	for _, fn := range m.Functions {
		g.declareFunction(fn)
	}
	for _, fn := range m.Functions {
		g.lowerFunction(fn)
	}

	if diags := ir.Verify(g.module); len(diags) > 0 {
		return nil, errors.Internal("generated IR does not verify: %v", diags)
	}
	if diags := ir.CheckPurity(g.module); len(diags) > 0 {
		return nil, diags
	}
	log.Debugf("generated %d functions for %s %s", len(g.module.Functions), m.Kind, m.Name)
	return g.module, nil
}

func checkEntries(m *ast.Module) errors.Diagnostics {
	var diags errors.Diagnostics
	entries := 0
	for _, fn := range m.Functions {
		if !fn.Entry {
			continue
		}
		entries++
		if m.Kind == ast.Script && fn.Name == "main" && len(fn.Params) > 0 {
			diags = append(diags, errors.ScriptMainArgs(fn.Pos))
		}
	}
	switch {
	case m.Kind == ast.Script && !hasMain(m):
		diags = append(diags, errors.MissingEntry("script", m.Pos))
	case m.Kind == ast.Contract && entries == 0:
		diags = append(diags, errors.MissingEntry("contract", m.Pos))
	}
	return diags
}

func hasMain(m *ast.Module) bool {
	for _, fn := range m.Functions {
		if fn.Entry && fn.Name == "main" {
			return true
		}
	}
	return false
}

type generator struct {
	ast       *ast.Module
	module    *ir.Module
	ctx       *types.Context
	layout    *storage.Layout
	functions map[string]*ir.Function
}

func (g *generator) declareConfigurable(c *ast.Configurable) {
	if c.Type == nil || c.Value == nil {
		panic(errors.InternalAt("", "", c.Pos, "configurable %s has no type or value", c.Name))
	}
	cfg := g.module.AddConfigurable(c.Name, g.constant(c.Type, c.Value))
	cfg.Metadata = &ir.Metadata{ConfigName: c.Name}
}

// byReference reports whether values of t are passed to and returned from
// non-entry functions through pointers
func byReference(t *types.Type) bool { return !t.IsCopy() }

func (g *generator) declareFunction(fn *ast.Function) {
	if _, dup := g.functions[fn.Name]; dup {
		panic(errors.InternalAt(fn.Name, "", fn.Pos, "function %s declared twice", fn.Name))
	}
	if fn.Return == nil {
		panic(errors.InternalAt(fn.Name, "", fn.Pos, "function %s has no return type", fn.Name))
	}
	params := make([]ir.Param, 0, len(fn.Params)+1)
	for _, p := range fn.Params {
		if p.Type == nil {
			panic(errors.InternalAt(fn.Name, "", p.Pos, "parameter %s has no type", p.Name))
		}
		t := p.Type
		if !fn.Entry && byReference(t) {
			t = g.ctx.Pointer(t)
		}
		params = append(params, ir.Param{Name: p.Name, Type: t})
	}
	ret := fn.Return
	if !fn.Entry && byReference(ret) {
		params = append(params, ir.Param{Name: RetValueParam, Type: g.ctx.Pointer(ret)})
		ret = g.ctx.Pointer(ret)
	}

	irFn := g.module.AddFunction(fn.Name, params, ret, fn.Entry)
	purity := ir.Purity(fn.Purity)
	irFn.Metadata = &ir.Metadata{Purity: &purity, Inline: ir.InlineHint(fn.Inline), Span: span(fn.Pos)}
	g.functions[fn.Name] = irFn
}

func span(pos ast.Position) *ir.Span {
	if !pos.IsValid() {
		return nil
	}
	return &ir.Span{File: pos.Filename, Line: pos.Line, Column: pos.Column}
}

// lowerFunction builds the body of a declared function
func (g *generator) lowerFunction(fn *ast.Function) {
	irFn := g.functions[fn.Name]
	f := &funcGen{
		generator: g,
		src:       fn,
		fn:        irFn,
		b:         ir.NewBuilder(irFn),
	}
	f.pushScope()

	params := irFn.Params()
	for i, p := range fn.Params {
		arg := params[i]
		if arg.Type.IsPointer() && arg.Type.Elem() == p.Type {
			// caller-owned temporary, usable as the variable slot
			f.bind(p.Name, arg)
			continue
		}
		slot := f.b.GetLocal(irFn.NewLocal(p.Name, p.Type))
		f.b.Store(arg, slot)
		f.bind(p.Name, slot)
	}
	if !fn.Entry && byReference(fn.Return) {
		f.retPtr = params[len(params)-1]
	}

	if fn.Body == nil {
		panic(errors.InternalAt(fn.Name, "", fn.Pos, "function has no body"))
	}
	v := f.blockExpr(fn.Body)
	if !f.diverged() {
		f.ret(v, fn.Body.NodePos())
	}
	f.popScope()

	for _, b := range irFn.Blocks {
		if b.Terminator == nil {
			panic(errors.InternalAt(fn.Name, "", fn.Pos, "block %s left without terminator", b.Label))
		}
	}
}

// constant converts a literal into a pooled constant of type t
func (g *generator) constant(t *types.Type, lit *ast.LiteralExpr) *ir.Constant {
	pool := g.module.Constants
	switch t.Kind() {
	case types.KindUnit:
		return pool.Unit(t)
	case types.KindBool:
		return pool.Bool(t, lit.Bool)
	case types.KindUint:
		if lit.Int == nil {
			panic(errors.InternalAt("", "", lit.Pos, "integer literal without value"))
		}
		if lit.Int.Gt(ir.MaxUint(t.Bits())) {
			panic(errors.InternalAt("", "", lit.Pos, "literal %s does not fit %s", lit.Int.Dec(), t))
		}
		return pool.Wide(t, lit.Int)
	case types.KindB256:
		if lit.Int == nil {
			panic(errors.InternalAt("", "", lit.Pos, "b256 literal without value"))
		}
		return pool.B256(t, lit.Int.Bytes32())
	case types.KindString:
		if uint64(len(lit.Str)) > t.Len() {
			panic(errors.InternalAt("", "", lit.Pos, "string literal longer than %s", t))
		}
		return pool.String(t, []byte(lit.Str))
	}
	panic(errors.InternalAt("", "", lit.Pos, "no literal of type %s", t))
}

// funcGen holds the per-function lowering state
type funcGen struct {
	*generator
	src    *ast.Function
	fn     *ir.Function
	b      *ir.Builder
	retPtr *ir.Value

	scopes []map[string]*ir.Value
	loops  []*loop
	temps  int
}

// loop is the branch target set of an enclosing while
type loop struct {
	header *ir.Block
	end    *ir.Block
	brk    *ir.Block
}

func (f *funcGen) ice(pos ast.Position, format string, args ...any) {
	panic(errors.InternalAt(f.fn.Name, "", pos, format, args...))
}

func (f *funcGen) pushScope() { f.scopes = append(f.scopes, make(map[string]*ir.Value)) }
func (f *funcGen) popScope()  { f.scopes = f.scopes[:len(f.scopes)-1] }

func (f *funcGen) bind(name string, slot *ir.Value) {
	f.scopes[len(f.scopes)-1][name] = slot
}

// lookup returns the slot of a visible variable
func (f *funcGen) lookup(name string, pos ast.Position) *ir.Value {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if slot, ok := f.scopes[i][name]; ok {
			return slot
		}
	}
	f.ice(pos, "unknown variable %s", name)
	return nil
}

// temp allocates a fresh compiler temporary slot
func (f *funcGen) temp(t *types.Type) *ir.Value {
	f.temps++
	local := f.fn.NewLocal(fmt.Sprintf("__tmp%d", f.temps), t)
	return f.b.GetLocal(local)
}

// diverged reports whether the current point is unreachable: the block
// before it ended with a terminator
func (f *funcGen) diverged() bool { return f.b.Block() == nil }

// terminate ends the current point of control
func (f *funcGen) terminate() { f.b.SetBlock(nil) }

func (f *funcGen) at(pos ast.Position) {
	if pos.IsValid() {
		f.b.SetMetadata(ir.WithSpan(pos.Filename, pos.Line, pos.Column))
	}
}

// ret returns v from the function, writing through the out-pointer when
// the value is returned by reference
func (f *funcGen) ret(v *ir.Value, pos ast.Position) {
	f.at(pos)
	if f.retPtr != nil {
		f.b.Store(v, f.retPtr)
		f.b.Ret(f.retPtr)
	} else {
		f.b.Ret(v)
	}
	f.terminate()
}

func (f *funcGen) exprType(e ast.Expr) *types.Type {
	t := e.ExprType()
	if t == nil {
		f.ice(e.NodePos(), "expression %T has no type", e)
	}
	return t
}
