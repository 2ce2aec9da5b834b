package optimize

import (
	"github.com/tliron/commonlog"

	"contractc/internal/errors"
	"contractc/internal/ir"
)

// Passes run on the IR after generation and before code generation. Every
// pass is semantically transparent: disabling any of them changes code size,
// never behaviour.

var log = commonlog.GetLogger("contractc.optimize")

// OptimizationPass represents a single IR transformation
type OptimizationPass interface {
	Name() string
	Apply(m *ir.Module) bool // Returns true if changes were made
	Description() string
}

// Options selects the passes of the default pipeline
type Options struct {
	Inline            bool
	InlineThreshold   int
	Simplify          bool
	AggregateLowering bool

	// Verify runs the IR verifier after every pass
	Verify bool
}

// DefaultOptions enables every pass and inlines on annotations only
func DefaultOptions() Options {
	return Options{
		Inline:            true,
		Simplify:          true,
		AggregateLowering: true,
		Verify:            true,
	}
}

// Pipeline manages the sequence of optimization passes
type Pipeline struct {
	passes []OptimizationPass
	verify bool
}

// NewPipeline creates the pipeline selected by opts:
// inline, simplify, aggregate lowering
func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{verify: opts.Verify}
	if opts.Inline {
		p.AddPass(&Inline{Threshold: opts.InlineThreshold})
	}
	if opts.Simplify {
		p.AddPass(&Simplify{})
	}
	if opts.AggregateLowering {
		p.AddPass(&AggregateLowering{})
	}
	return p
}

// AddPass appends a pass to the pipeline
func (p *Pipeline) AddPass(pass OptimizationPass) {
	p.passes = append(p.passes, pass)
}

// Passes returns the passes in execution order
func (p *Pipeline) Passes() []OptimizationPass { return p.passes }

// Run executes every pass in order. Passes report broken invariants by
// panicking with an internal error, which Run returns.
func (p *Pipeline) Run(m *ir.Module) (err error) {
	defer errors.Recover(&err)

	log.Infof("running %d optimization passes", len(p.passes))
	for _, pass := range p.passes {
		log.Debugf("%s: %s", pass.Name(), pass.Description())
		if pass.Apply(m) {
			log.Debugf("%s: applied", pass.Name())
		} else {
			log.Debugf("%s: no changes", pass.Name())
		}
		if p.verify {
			if diags := ir.Verify(m); len(diags) > 0 {
				return errors.Internal("IR does not verify after %s: %v", pass.Name(), diags)
			}
		}
	}
	return nil
}

// constOf returns the constant a value holds, or nil
func constOf(v *ir.Value) *ir.Constant {
	if v == nil {
		return nil
	}
	if v.Const != nil {
		return v.Const
	}
	if c, ok := v.Def.(*ir.ConstInst); ok {
		return c.Const
	}
	return nil
}

// replace puts inst where old is and redirects the uses of old's result
func replace(fn *ir.Function, old, inst ir.Instruction) {
	b := old.GetBlock()
	b.InsertBefore(b.IndexOf(old), inst)
	b.Remove(old)
	if old.GetResult() != nil && inst.GetResult() != nil {
		ir.ReplaceAllUses(fn, old.GetResult(), inst.GetResult())
	}
}

// clobbers reports whether inst may write memory or run unknown code
func clobbers(inst ir.Instruction) bool {
	for _, e := range inst.GetEffects() {
		switch eff := e.(type) {
		case *ir.MemoryEffectOp:
			if eff.Type == ir.MemoryEffectWrite {
				return true
			}
		case *ir.CallEffect, *ir.ExternalEffect:
			return true
		}
	}
	return false
}
