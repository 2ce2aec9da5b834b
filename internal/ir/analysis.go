package ir

// Predecessors maps each block to the blocks that branch to it. A block that
// branches twice to the same successor appears once.
func Predecessors(fn *Function) map[*Block][]*Block {
	preds := make(map[*Block][]*Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		for _, s := range b.Successors() {
			preds[s] = append(preds[s], b)
		}
	}
	return preds
}

// Reachable returns the set of blocks reachable from the entry block
func Reachable(fn *Function) map[*Block]bool {
	seen := make(map[*Block]bool, len(fn.Blocks))
	var walk func(b *Block)
	walk = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range b.Successors() {
			walk(s)
		}
	}
	walk(fn.EntryBlock())
	return seen
}

// ReversePostorder returns the reachable blocks in reverse postorder
func ReversePostorder(fn *Function) []*Block {
	seen := make(map[*Block]bool, len(fn.Blocks))
	var post []*Block
	var walk func(b *Block)
	walk = func(b *Block) {
		seen[b] = true
		for _, s := range b.Successors() {
			if !seen[s] {
				walk(s)
			}
		}
		post = append(post, b)
	}
	walk(fn.EntryBlock())
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// UseCounts counts how often every value is used as an operand
func UseCounts(fn *Function) map[*Value]int {
	uses := make(map[*Value]int)
	for _, b := range fn.Blocks {
		for _, inst := range b.All() {
			for _, op := range Operands(inst) {
				uses[op]++
			}
		}
	}
	return uses
}

// ReplaceAllUses rewrites every use of old in fn to new
func ReplaceAllUses(fn *Function, old, new *Value) {
	for _, b := range fn.Blocks {
		for _, inst := range b.All() {
			ReplaceOperand(inst, old, new)
		}
	}
}

// CallGraph maps each function to the functions it calls
func CallGraph(m *Module) map[*Function][]*Function {
	graph := make(map[*Function][]*Function, len(m.Functions))
	for _, fn := range m.Functions {
		seen := make(map[*Function]bool)
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				if call, ok := inst.(*Call); ok && !seen[call.Callee] {
					seen[call.Callee] = true
					graph[fn] = append(graph[fn], call.Callee)
				}
			}
		}
	}
	return graph
}

// IsRecursive reports whether fn can reach itself through calls
func IsRecursive(graph map[*Function][]*Function, fn *Function) bool {
	seen := make(map[*Function]bool)
	stack := append([]*Function(nil), graph[fn]...)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f == fn {
			return true
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		stack = append(stack, graph[f]...)
	}
	return false
}

// InstructionCount returns the number of instructions in fn, terminators
// included
func InstructionCount(fn *Function) int {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Instructions)
		if b.Terminator != nil {
			n++
		}
	}
	return n
}
