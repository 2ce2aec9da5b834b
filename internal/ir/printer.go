package ir

import (
	"fmt"
	"regexp"
	"strings"
)

// Printer provides pretty-printing for IR
type Printer struct {
	indent int
	output strings.Builder

	metadata []*Metadata
	mdIndex  map[string]int
	names    map[*Value]string
}

// NewPrinter creates a new IR printer
func NewPrinter() *Printer {
	return &Printer{mdIndex: make(map[string]int)}
}

// Print returns the textual form of a module
func Print(m *Module) string {
	p := NewPrinter()
	p.printModule(m)
	return p.output.String()
}

// PrintFunction returns the textual form of a single function, without
// the module wrapper and metadata trailer
func PrintFunction(fn *Function) string {
	p := NewPrinter()
	p.printFunction(fn)
	return p.output.String()
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("    ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	if format == "" {
		p.output.WriteString("\n")
		return
	}
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) write(format string, args ...interface{}) {
	p.output.WriteString(fmt.Sprintf(format, args...))
}

// mdRef returns the ", !N" suffix for md, registering it on first use
func (p *Printer) mdRef(md *Metadata) string {
	if md.IsEmpty() {
		return ""
	}
	key := md.String()
	n, ok := p.mdIndex[key]
	if !ok {
		p.metadata = append(p.metadata, md)
		n = len(p.metadata)
		p.mdIndex[key] = n
	}
	return fmt.Sprintf(", !%d", n)
}

func (p *Printer) printModule(m *Module) {
	p.writeLine("%s {", m.Kind)
	p.indent++

	for _, c := range m.Configurables {
		p.writeLine("configurable %s: %s = %s%s", c.Name, c.Type, c.Value.Literal(), p.mdRef(c.Metadata))
	}

	for i, fn := range m.Functions {
		if i > 0 || len(m.Configurables) > 0 {
			p.writeLine("")
		}
		p.printFunction(fn)
	}

	p.indent--
	p.writeLine("}")

	if len(p.metadata) > 0 {
		p.writeLine("")
		for i, md := range p.metadata {
			p.writeLine("!%d = %s", i+1, md)
		}
	}
}

var numberedName = regexp.MustCompile(`^v[0-9]+$`)

// assignNames numbers unnamed values in block order. Named values keep their
// name unless it would be ambiguous.
func (p *Printer) assignNames(fn *Function) {
	p.names = make(map[*Value]string)
	used := make(map[string]bool)

	for _, b := range fn.Blocks {
		for _, a := range b.Args {
			if a.Name != "" && !used[a.Name] && !numberedName.MatchString(a.Name) {
				p.names[a] = a.Name
				used[a.Name] = true
			}
		}
	}

	counter := 0
	next := func() string {
		for {
			name := fmt.Sprintf("v%d", counter)
			counter++
			if !used[name] {
				used[name] = true
				return name
			}
		}
	}
	for _, b := range fn.Blocks {
		for _, a := range b.Args {
			if _, ok := p.names[a]; !ok {
				p.names[a] = next()
			}
		}
		for _, inst := range b.All() {
			if r := inst.GetResult(); r != nil {
				p.names[r] = next()
			}
		}
	}
}

func (p *Printer) name(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	if n, ok := p.names[v]; ok {
		return n
	}
	return "?" + v.String()
}

func (p *Printer) formatArgs(args []*Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%s: %s", p.name(a), a.Type)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) printFunction(fn *Function) {
	p.assignNames(fn)

	prefix := ""
	if fn.Entry {
		prefix = "entry "
	}
	p.writeLine("%sfn %s(%s) -> %s%s {", prefix, fn.Name, p.formatArgs(fn.Params()), fn.ReturnType, p.mdRef(fn.Metadata))
	p.indent++

	for _, l := range fn.Locals {
		p.writeLine("local %s %s", l.Type, l.Name)
	}

	for i, b := range fn.Blocks {
		if i > 0 || len(fn.Locals) > 0 {
			p.writeLine("")
		}
		p.printBlock(b)
	}

	p.indent--
	p.writeLine("}")
}

func (p *Printer) printBlock(b *Block) {
	p.writeLine("%s(%s):", b.Label, p.formatArgs(b.Args))
	for _, inst := range b.All() {
		p.writeLine("%s%s", inst.format(p.name), p.mdRef(inst.GetMetadata()))
	}
}
