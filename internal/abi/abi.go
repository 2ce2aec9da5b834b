package abi

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"contractc/internal/ast"
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/types"
)

// Signature renders the normalized signature a selector is hashed from:
// the name followed by the whitespace-free parameter types, comma separated
func Signature(name string, params []*types.Type) string {
	sigs := make([]string, len(params))
	for i, p := range params {
		sigs[i] = p.Signature()
	}
	return name + "(" + strings.Join(sigs, ",") + ")"
}

// Selector is the big-endian first four bytes of sha256 over the
// normalized signature
func Selector(name string, params []*types.Type) uint32 {
	sum := sha256.Sum256([]byte(Signature(name, params)))
	return binary.BigEndian.Uint32(sum[:4])
}

// Param is one ABI parameter
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Function describes one exported entry point
type Function struct {
	Name      string  `json:"name"`
	Signature string  `json:"signature"`
	Selector  uint32  `json:"selector"`
	Inputs    []Param `json:"inputs"`
	Output    string  `json:"output"`
	Purity    string  `json:"purity"`

	IR *ir.Function `json:"-"`
}

// Configurable describes a per-deployment constant and where it lives in
// the data section
type Configurable struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset uint64 `json:"offset"`
}

// ABI is the exported interface of a compilation unit
type ABI struct {
	Kind          string          `json:"kind"`
	Functions     []*Function     `json:"functions"`
	Configurables []*Configurable `json:"configurables"`
}

// Build derives the ABI of m. Entry functions are described in declaration
// order. The purity is the declared one, or the inferred one when the
// function carries no annotation. Two functions with the same selector are
// reported as diagnostics.
func Build(m *ir.Module) (*ABI, error) {
	if diags := checkEntries(m); len(diags) > 0 {
		return nil, diags
	}

	inferred := ir.InferPurity(m)
	a := &ABI{Kind: m.Kind.String(), Functions: []*Function{}, Configurables: []*Configurable{}}
	for _, fn := range m.EntryFunctions() {
		a.Functions = append(a.Functions, describe(fn, inferred[fn]))
	}
	for _, c := range m.Configurables {
		a.Configurables = append(a.Configurables, &Configurable{Name: c.Name, Type: c.Type.Signature()})
	}

	if m.Kind == ir.KindContract {
		if diags := checkSelectors(a.Functions); len(diags) > 0 {
			return nil, diags
		}
	}
	return a, nil
}

func describe(fn *ir.Function, inferred ir.Purity) *Function {
	params := fn.Params()
	paramTypes := make([]*types.Type, len(params))
	inputs := make([]Param, len(params))
	for i, p := range params {
		paramTypes[i] = p.Type
		inputs[i] = Param{Name: p.Name, Type: p.Type.Signature()}
	}
	purity := inferred
	if declared, ok := fn.DeclaredPurity(); ok {
		purity = declared
	}
	return &Function{
		Name:      fn.Name,
		Signature: Signature(fn.Name, paramTypes),
		Selector:  Selector(fn.Name, paramTypes),
		Inputs:    inputs,
		Output:    fn.ReturnType.Signature(),
		Purity:    purity.String(),
		IR:        fn,
	}
}

func checkEntries(m *ir.Module) errors.Diagnostics {
	var diags errors.Diagnostics
	entries := m.EntryFunctions()
	if m.Kind == ir.KindScript {
		main := m.Function("main")
		switch {
		case main == nil || !main.Entry:
			diags = append(diags, errors.MissingEntry("script", ast.Position{}))
		case len(main.Params()) > 0:
			diags = append(diags, errors.ScriptMainArgs(main.Metadata.Position()))
		}
		return diags
	}
	if len(entries) == 0 {
		diags = append(diags, errors.MissingEntry("contract", ast.Position{}))
	}
	return diags
}

func checkSelectors(fns []*Function) errors.Diagnostics {
	var diags errors.Diagnostics
	seen := make(map[uint32]*Function)
	for _, fn := range fns {
		if first, ok := seen[fn.Selector]; ok {
			diags = append(diags, errors.DuplicateSelector(first.Name, fn.Name, fn.Selector, fn.IR.Metadata.Position()))
			continue
		}
		seen[fn.Selector] = fn
	}
	return diags
}

// BySelector returns the functions in ascending selector order, the order
// the dispatcher tests them in
func (a *ABI) BySelector() []*Function {
	out := append([]*Function(nil), a.Functions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Selector < out[j].Selector })
	return out
}

// Function returns the descriptor of the named function
func (a *ABI) Function(name string) *Function {
	for _, fn := range a.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// SetConfigurableOffset records the data section offset of a configurable
func (a *ABI) SetConfigurableOffset(name string, offset uint64) {
	for _, c := range a.Configurables {
		if c.Name == name {
			c.Offset = offset
			return
		}
	}
}

// JSON renders the ABI artifact
func (a *ABI) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ABI: %w", err)
	}
	return append(data, '\n'), nil
}
