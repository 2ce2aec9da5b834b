package parser

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	pkgerrors "github.com/pkg/errors"

	"contractc/grammar"
	"contractc/internal/ast"
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/types"
)

// ParseFile reads and parses an IR text file
func ParseFile(path string, ctx *types.Context) (*ir.Module, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(path, string(source), ctx)
}

// Parse turns IR text into a verified module. Malformed text yields an
// errors.CompilerError; IR that parses but breaks an invariant yields
// errors.Diagnostics.
func Parse(filename, source string, ctx *types.Context) (*ir.Module, error) {
	tree, err := grammar.ParseString(filename, source)
	if err != nil {
		var perr participle.Error
		if pkgerrors.As(err, &perr) {
			return nil, errors.IRParse(perr.Message(), position(perr.Position()))
		}
		return nil, err
	}

	m, err := Build(tree, ctx)
	if err != nil {
		return nil, err
	}
	if diags := ir.Verify(m); diags.HasErrors() {
		return nil, diags
	}
	return m, nil
}

// Build materializes a parse tree. Declarations are collected first so that
// calls, branches and uses may refer forward.
func Build(tree *grammar.Module, ctx *types.Context) (m *ir.Module, err error) {
	kind := ir.KindContract
	if tree.Kind == "script" {
		kind = ir.KindScript
	}
	p := &parser{
		module:   ir.NewModule(kind, ctx),
		ctx:      ctx,
		metadata: make(map[string]*ir.Metadata),
	}
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			m, err = nil, pe.err
		}
	}()

	p.declareMetadata(tree.Metadata)
	p.declareConfigurables(tree.Configurables)
	scopes := make([]*scope, len(tree.Functions))
	for i, f := range tree.Functions {
		scopes[i] = p.declareFunction(f)
	}
	for _, sc := range scopes {
		p.defineFunction(sc)
	}
	return p.module, nil
}

type parseError struct {
	err errors.CompilerError
}

type parser struct {
	module   *ir.Module
	ctx      *types.Context
	metadata map[string]*ir.Metadata
}

func position(pos lexer.Position) ast.Position {
	return ast.Position{Filename: pos.Filename, Offset: pos.Offset, Line: pos.Line, Column: pos.Column}
}

func (p *parser) fail(pos lexer.Position, format string, args ...any) {
	panic(parseError{errors.IRParse(fmt.Sprintf(format, args...), position(pos))})
}

func (p *parser) declareMetadata(defs []*grammar.MetadataDef) {
	for _, def := range defs {
		if _, dup := p.metadata[def.Ref]; dup {
			p.fail(def.Pos, "metadata %s defined twice", def.Ref)
		}
		md := &ir.Metadata{}
		for _, item := range def.Items {
			switch {
			case item.Span != nil:
				md.Span = &ir.Span{File: item.Span.File, Line: item.Span.Line, Column: item.Span.Column}
			case item.Purity != "":
				purity, err := ir.ParsePurity(item.Purity)
				if err != nil {
					p.fail(def.Pos, "%v", err)
				}
				md.Purity = &purity
			case item.Config != nil:
				md.ConfigName = *item.Config
			case item.Inline != "":
				switch item.Inline {
				case "always":
					md.Inline = ir.InlineAlways
				case "never":
					md.Inline = ir.InlineNever
				default:
					p.fail(def.Pos, "unknown inline hint %q", item.Inline)
				}
			}
		}
		p.metadata[def.Ref] = md
	}
}

func (p *parser) meta(ref string, pos lexer.Position) *ir.Metadata {
	if ref == "" {
		return nil
	}
	md, ok := p.metadata[ref]
	if !ok {
		p.fail(pos, "undefined metadata %s", ref)
	}
	return md
}

func (p *parser) declareConfigurables(cfgs []*grammar.Configurable) {
	for _, c := range cfgs {
		if p.module.Configurable(c.Name) != nil {
			p.fail(c.Pos, "configurable %s defined twice", c.Name)
		}
		t := p.resolveType(c.Type)
		cfg := p.module.AddConfigurable(c.Name, p.literal(c.Pos, t, c.Value))
		cfg.Metadata = p.meta(c.Meta, c.Pos)
	}
}

// scope holds the names visible inside one function
type scope struct {
	tree    *grammar.Function
	fn      *ir.Function
	blocks  []*ir.Block
	builder *ir.Builder

	values map[string]*ir.Value
	defs   map[string]*grammar.Instruction
	memo   map[*grammar.Instruction]ir.Instruction
	active map[*grammar.Instruction]bool
}

func (p *parser) declareFunction(f *grammar.Function) *scope {
	if p.module.Function(f.Name) != nil {
		p.fail(f.Pos, "function %s defined twice", f.Name)
	}
	params := make([]ir.Param, len(f.Params))
	for i, param := range f.Params {
		params[i] = ir.Param{Name: param.Name, Type: p.resolveType(param.Type)}
	}
	fn := p.module.AddFunction(f.Name, params, p.resolveType(f.Return), f.Entry)
	fn.Metadata = p.meta(f.Meta, f.Pos)

	sc := &scope{
		tree:    f,
		fn:      fn,
		builder: ir.NewDetachedBuilder(fn),
		values:  make(map[string]*ir.Value),
		defs:    make(map[string]*grammar.Instruction),
		memo:    make(map[*grammar.Instruction]ir.Instruction),
		active:  make(map[*grammar.Instruction]bool),
	}

	for _, l := range f.Locals {
		if fn.Local(l.Name) != nil {
			p.fail(l.Pos, "local %s declared twice", l.Name)
		}
		fn.NewLocal(l.Name, p.resolveType(l.Type))
	}

	if len(f.Blocks) == 0 {
		p.fail(f.Pos, "function %s has no blocks", f.Name)
	}
	for i, blk := range f.Blocks {
		var block *ir.Block
		if i == 0 {
			block = fn.EntryBlock()
			if len(blk.Args) != len(params) {
				p.fail(blk.Pos, "entry block of %s takes %d arguments, function has %d parameters", f.Name, len(blk.Args), len(params))
			}
			for k, a := range blk.Args {
				if p.resolveType(a.Type) != params[k].Type {
					p.fail(a.Pos, "entry block argument %s does not match parameter type %s", a.Name, params[k].Type)
				}
				block.Args[k].Name = a.Name
			}
			if blk.Label != block.Label {
				fn.RenameBlock(block, blk.Label)
			}
		} else {
			if fn.Block(blk.Label) != nil {
				p.fail(blk.Pos, "block %s defined twice", blk.Label)
			}
			block = fn.NewBlock(blk.Label)
			for _, a := range blk.Args {
				block.AddArg(a.Name, p.resolveType(a.Type))
			}
		}
		sc.blocks = append(sc.blocks, block)

		for k, a := range blk.Args {
			p.defineName(sc, a.Name, a.Pos)
			sc.values[a.Name] = block.Args[k]
		}
		for _, inst := range blk.Instructions {
			if inst.Result != "" {
				p.defineName(sc, inst.Result, inst.Pos)
				sc.defs[inst.Result] = inst
			}
		}
	}
	return sc
}

func (p *parser) defineName(sc *scope, name string, pos lexer.Position) {
	if _, ok := sc.values[name]; ok {
		p.fail(pos, "value %s defined twice", name)
	}
	if _, ok := sc.defs[name]; ok {
		p.fail(pos, "value %s defined twice", name)
	}
}

func (p *parser) defineFunction(sc *scope) {
	for i, blk := range sc.tree.Blocks {
		block := sc.blocks[i]
		for _, gi := range blk.Instructions {
			inst := p.materialize(sc, gi)
			if block.Terminator != nil {
				p.fail(gi.Pos, "instruction after the terminator of block %s", block.Label)
			}
			block.Append(inst)
		}
	}
}

// materialize builds the instruction for gi once, building its operands
// first. Uses may textually precede definitions.
func (p *parser) materialize(sc *scope, gi *grammar.Instruction) ir.Instruction {
	if inst, ok := sc.memo[gi]; ok {
		return inst
	}
	if sc.active[gi] {
		p.fail(gi.Pos, "value %s depends on itself", gi.Result)
	}
	sc.active[gi] = true
	defer delete(sc.active, gi)

	inst := p.build(sc, gi)
	if gi.Result != "" && inst.GetResult() == nil {
		p.fail(gi.Pos, "instruction does not produce a value")
	}
	if md := p.meta(gi.Meta, gi.Pos); md != nil {
		inst.SetMetadata(md)
	}
	sc.memo[gi] = inst
	return inst
}

func (p *parser) value(sc *scope, name string, pos lexer.Position) *ir.Value {
	if v, ok := sc.values[name]; ok {
		return v
	}
	gi, ok := sc.defs[name]
	if !ok {
		p.fail(pos, "undefined value %s", name)
	}
	return p.materialize(sc, gi).GetResult()
}

func (p *parser) values(sc *scope, names []string, pos lexer.Position) []*ir.Value {
	vals := make([]*ir.Value, len(names))
	for i, n := range names {
		vals[i] = p.value(sc, n, pos)
	}
	return vals
}

func (p *parser) block(sc *scope, label string, pos lexer.Position) *ir.Block {
	b := sc.fn.Block(label)
	if b == nil {
		p.fail(pos, "undefined block %s", label)
	}
	return b
}

// guard turns builder panics into parse errors at pos
func (p *parser) guard(pos lexer.Position) {
	r := recover()
	if r == nil {
		return
	}
	if _, ok := r.(parseError); ok {
		panic(r)
	}
	if err, ok := r.(error); ok {
		if ice, ok := errors.AsInternal(err); ok {
			p.fail(pos, "%s", ice.Message)
		}
	}
	panic(r)
}

func (p *parser) expectType(pos lexer.Position, v *ir.Value, declared *types.Type) {
	if v.Type != declared {
		p.fail(pos, "declared type %s does not match %s", declared, v.Type)
	}
}
