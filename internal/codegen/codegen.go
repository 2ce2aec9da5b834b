// Package codegen lowers IR modules to bytecode for the register VM.
//
// Functions are selected and register-allocated independently, then laid
// out behind the program header and the entry code. Jumps are resolved by a
// fixed point that widens out-of-reach jumps into data section loads.
package codegen

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"contractc/internal/abi"
	"contractc/internal/errors"
	"contractc/internal/ir"
)

var log = commonlog.GetLogger("contractc.codegen")

// Options tunes code generation
type Options struct {
	// Registers is the size of the allocatable pool, 4 to 34
	Registers int
	// ShortJumpBits and ShortCondJumpBits bound the targets a short jump
	// can reach; lowering them forces far jumps
	ShortJumpBits     int
	ShortCondJumpBits int
	// RelocateColdBlocks moves blocks ending in revert to the end of
	// their function
	RelocateColdBlocks  bool
	MaxLayoutIterations int
	// Parallelism limits concurrent function compilation; 0 is unlimited
	Parallelism int
}

// DefaultOptions uses the full register pool and immediate widths
func DefaultOptions() Options {
	return Options{
		Registers:           MaxPoolRegs,
		ShortJumpBits:       24,
		ShortCondJumpBits:   18,
		RelocateColdBlocks:  true,
		MaxLayoutIterations: 16,
	}
}

// Validate checks every option against the machine limits
func (o Options) Validate() error {
	switch {
	case o.Registers < 4 || o.Registers > MaxPoolRegs:
		return fmt.Errorf("registers must be between 4 and %d, got %d", MaxPoolRegs, o.Registers)
	case o.ShortJumpBits < 1 || o.ShortJumpBits > 24:
		return fmt.Errorf("short jump bits must be between 1 and 24, got %d", o.ShortJumpBits)
	case o.ShortCondJumpBits < 1 || o.ShortCondJumpBits > 18:
		return fmt.Errorf("short conditional jump bits must be between 1 and 18, got %d", o.ShortCondJumpBits)
	case o.MaxLayoutIterations < 1:
		return fmt.Errorf("max layout iterations must be positive, got %d", o.MaxLayoutIterations)
	case o.Parallelism < 0:
		return fmt.Errorf("parallelism must not be negative, got %d", o.Parallelism)
	}
	return nil
}

// Program is a compiled unit
type Program struct {
	Code     []*Instr
	Data     *DataSection
	Bytecode []byte
	ABI      *abi.ABI

	// Labels holds the entry label of every function
	Labels map[string]*Label
	Spills int
}

// Listing renders the program as assembly text
func (p *Program) Listing() string { return Listing(p.Code, p.Data) }

// Generate compiles m. The ABI must have been built from m; configurable
// offsets are filled in.
func Generate(ctx context.Context, m *ir.Module, a *abi.ABI, opts Options) (*Program, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	labels := make(map[*ir.Function]*Label, len(m.Functions))
	for _, fn := range m.Functions {
		labels[fn] = &Label{Name: fn.Name}
	}

	data := NewDataSection()
	for _, cfg := range m.Configurables {
		var value []byte
		if cfg.Value != nil {
			value = cfg.Value.Bytes()
		}
		a.SetConfigurableOffset(cfg.Name, data.Offset(data.Config(cfg.Name, value)))
	}

	entry := &entryCode{data: data, labels: labels}
	switch m.Kind {
	case ir.KindScript:
		main := m.Function("main")
		if main == nil {
			return nil, errors.Internal("script has no main function")
		}
		entry.script(main)
	default:
		if err := entry.contract(a); err != nil {
			return nil, err
		}
	}

	compiled, err := compileFunctions(ctx, m.Functions, labels, opts)
	if err != nil {
		return nil, err
	}

	code := entry.code
	spills := 0
	for _, fc := range compiled {
		remap := data.Merge(fc.data)
		for _, in := range fc.code {
			if in.Op == OpLoadData || in.Op == OpAddrData {
				in.Data = remap[in.Data]
			}
		}
		code = append(code, fc.code...)
		spills += fc.spills
	}

	final, err := layout(code, data, opts)
	if err != nil {
		return nil, err
	}
	bytecode, err := Encode(final, data)
	if err != nil {
		return nil, errors.Internal("encoding: %v", err)
	}
	log.Infof("generated %s: %d bytes of code and data, %d spills", m.Kind, len(bytecode), spills)

	p := &Program{
		Code:     final,
		Data:     data,
		Bytecode: bytecode,
		ABI:      a,
		Labels:   make(map[string]*Label, len(labels)),
		Spills:   spills,
	}
	for fn, l := range labels {
		p.Labels[fn.Name] = l
	}
	return p, nil
}

// compileFunctions selects and allocates every function concurrently. The
// result keeps the order of fns.
func compileFunctions(ctx context.Context, fns []*ir.Function, labels map[*ir.Function]*Label, opts Options) ([]*funcCode, error) {
	compiled := make([]*funcCode, len(fns))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fc, err := selectFunction(fn, labels, opts.RelocateColdBlocks)
			if err != nil {
				return err
			}
			if err := allocateRegisters(fc, opts.Registers); err != nil {
				return err
			}
			if fc.code, err = expandFrame(fc); err != nil {
				return err
			}
			log.Debugf("compiled %s: %d instructions, %d spills", fn.Name, len(fc.code), fc.spills)
			compiled[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return compiled, nil
}
