// Package compiler drives a compilation unit through the backend: IR
// generation or parsing, verification, the optimizer pipeline, ABI
// derivation and code generation.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"contractc/internal/abi"
	"contractc/internal/ast"
	"contractc/internal/codegen"
	"contractc/internal/config"
	"contractc/internal/errors"
	"contractc/internal/ir"
	"contractc/internal/irgen"
	"contractc/internal/optimize"
	"contractc/internal/parser"
	"contractc/internal/types"
)

var log = commonlog.GetLogger("contractc.compiler")

// Compiler compiles units with one configuration
type Compiler struct {
	cfg *config.Config
}

// New creates a compiler. A nil configuration means the defaults.
func New(cfg *config.Config) *Compiler {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Compiler{cfg: cfg}
}

// Artifacts are the outputs of one compilation
type Artifacts struct {
	Name    string
	Module  *ir.Module
	ABI     *abi.ABI
	Program *codegen.Program
}

// IR renders the optimized module
func (a *Artifacts) IR() string { return ir.Print(a.Module) }

// Listing renders the generated assembly
func (a *Artifacts) Listing() string { return a.Program.Listing() }

// ABIJSON renders the ABI descriptor
func (a *Artifacts) ABIJSON() ([]byte, error) { return a.ABI.JSON() }

// WriteFiles writes name.bin, name.asm, name.ir and name-abi.json to dir
// and returns the paths written
func (a *Artifacts) WriteFiles(dir string) ([]string, error) {
	abiJSON, err := a.ABIJSON()
	if err != nil {
		return nil, err
	}
	outputs := []struct {
		suffix string
		data   []byte
	}{
		{".bin", a.Program.Bytecode},
		{".asm", []byte(a.Listing())},
		{".ir", []byte(a.IR())},
		{"-abi.json", abiJSON},
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		path := filepath.Join(dir, a.Name+out.suffix)
		if err := os.WriteFile(path, out.data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// CompileAST lowers a type-checked module and compiles it. The module's
// types must come from tctx.
func (c *Compiler) CompileAST(ctx context.Context, m *ast.Module, tctx *types.Context) (*Artifacts, error) {
	log.Infof("generating IR for %s %s", m.Kind, m.Name)
	module, err := irgen.Generate(m, tctx)
	if err != nil {
		return nil, err
	}
	return c.compile(ctx, m.Name, module)
}

// CompileIR parses IR text and compiles it
func (c *Compiler) CompileIR(ctx context.Context, filename, source string) (*Artifacts, error) {
	module, err := parser.Parse(filename, source, types.NewContext())
	if err != nil {
		return nil, err
	}
	if diags := ir.CheckPurity(module); len(diags) > 0 {
		return nil, diags
	}
	return c.compile(ctx, unitName(filename), module)
}

// CompileFile compiles an IR text file
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Artifacts, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return c.CompileIR(ctx, path, string(source))
}

func (c *Compiler) compile(ctx context.Context, name string, m *ir.Module) (*Artifacts, error) {
	if err := optimize.NewPipeline(c.cfg.OptimizeOptions()).Run(m); err != nil {
		return nil, err
	}
	if c.cfg.Verify {
		if diags := ir.Verify(m); len(diags) > 0 {
			return nil, errors.Internal("optimized IR does not verify: %v", diags)
		}
	}

	a, err := abi.Build(m)
	if err != nil {
		return nil, err
	}
	prog, err := codegen.Generate(ctx, m, a, c.cfg.CodegenOptions())
	if err != nil {
		return nil, err
	}
	log.Infof("compiled %s: %d bytes, %d functions exported", name, len(prog.Bytecode), len(a.Functions))
	return &Artifacts{Name: name, Module: m, ABI: a, Program: prog}, nil
}

func unitName(filename string) string {
	base := filepath.Base(filename)
	if name := strings.TrimSuffix(base, filepath.Ext(base)); name != "" {
		return name
	}
	return "out"
}
