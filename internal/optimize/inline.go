package optimize

import (
	"contractc/internal/ir"
)

// maxInlineRounds bounds repeated inlining of calls exposed by earlier
// inlining
const maxInlineRounds = 16

// Inline replaces calls with the callee body. Callees annotated
// `inline always` are always inlined and `inline never` never are; others
// are inlined when their instruction count is at most Threshold. Recursive
// functions are never inlined. Functions no entry point reaches anymore
// are dropped afterwards.
type Inline struct {
	Threshold int
}

func (p *Inline) Name() string {
	return "inline"
}

func (p *Inline) Description() string {
	return "Inlines annotated and small non-recursive functions into their callers"
}

func (p *Inline) Apply(m *ir.Module) bool {
	changed := false
	for round := 0; round < maxInlineRounds; round++ {
		graph := ir.CallGraph(m)
		inlined := 0
		for _, fn := range m.Functions {
			for _, call := range p.candidates(fn, graph) {
				if _, err := ir.InlineCall(call); err != nil {
					panic(err)
				}
				inlined++
			}
		}
		if inlined == 0 {
			break
		}
		log.Debugf("inline round %d: %d calls", round, inlined)
		changed = true
	}
	if removeUncalled(m) {
		changed = true
	}
	return changed
}

// ShouldInline applies the inlining policy to one callee
func (p *Inline) ShouldInline(callee *ir.Function, graph map[*ir.Function][]*ir.Function) bool {
	if callee.Entry || ir.IsRecursive(graph, callee) {
		return false
	}
	switch callee.InlineHint() {
	case ir.InlineAlways:
		return true
	case ir.InlineNever:
		return false
	}
	return ir.InstructionCount(callee) <= p.Threshold
}

func (p *Inline) candidates(fn *ir.Function, graph map[*ir.Function][]*ir.Function) []*ir.Call {
	var calls []*ir.Call
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			call, ok := inst.(*ir.Call)
			if ok && call.Callee != fn && p.ShouldInline(call.Callee, graph) {
				calls = append(calls, call)
			}
		}
	}
	return calls
}

// removeUncalled drops non-entry functions that no entry point reaches
func removeUncalled(m *ir.Module) bool {
	if len(m.EntryFunctions()) == 0 {
		return false
	}
	graph := ir.CallGraph(m)
	live := make(map[*ir.Function]bool)
	var visit func(fn *ir.Function)
	visit = func(fn *ir.Function) {
		if live[fn] {
			return
		}
		live[fn] = true
		for _, callee := range graph[fn] {
			visit(callee)
		}
	}
	for _, fn := range m.EntryFunctions() {
		visit(fn)
	}

	changed := false
	for _, fn := range append([]*ir.Function(nil), m.Functions...) {
		if !live[fn] {
			log.Debugf("removing uncalled function %s", fn.Name)
			m.RemoveFunction(fn)
			changed = true
		}
	}
	return changed
}
