package codegen

import "contractc/internal/types"

// frame tracks the stack frame of a function: locals and temporaries first,
// spill slots appended by the register allocator. Offsets are bytes from
// $locbase and always word aligned.
type frame struct {
	size   uint64
	spills uint64
}

func (f *frame) alloc(size uint64) uint64 {
	off := f.size
	f.size += types.RoundUpToWord(size)
	return off
}

func (f *frame) allocSpill() uint64 {
	f.spills++
	return f.alloc(types.WordSize)
}
