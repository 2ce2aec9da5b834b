package codegen

import (
	"fmt"
	"strings"
)

// Listing renders laid out code and its data section as assembly text.
// Each instruction is prefixed with its index; labels stand on their own
// line.
func Listing(code []*Instr, data *DataSection) string {
	var b strings.Builder
	index := 0
	for _, in := range code {
		switch in.Op {
		case OpLabel:
			fmt.Fprintf(&b, "%s:\n", in.Label.Name)
			continue
		case OpDataOffset:
			fmt.Fprintf(&b, "%04d  .dataoffset 0x%x\n", index, in.Imm)
			index += 2
			continue
		}
		line := in.String()
		if in.Label != nil {
			line += "  ; " + in.Label.Name
		}
		fmt.Fprintf(&b, "%04d  %s\n", index, line)
		index++
	}
	if data.Len() > 0 {
		b.WriteString(".data\n")
		for i := 0; i < data.Len(); i++ {
			fmt.Fprintf(&b, "%04x  %s\n", data.Offset(i), data.Entry(i))
		}
	}
	return b.String()
}
