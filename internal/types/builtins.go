package types

// UintWidths lists the supported unsigned integer widths
var UintWidths = []int{8, 16, 32, 64, 256}

// BuiltinNames are the primitive type names of the IR text form
var BuiltinNames = []string{"unit", "bool", "u8", "u16", "u32", "u64", "u256", "b256", "rawptr"}

// Builtin looks up a primitive type by its IR name
func (c *Context) Builtin(name string) (*Type, bool) {
	switch name {
	case "unit":
		return c.unit, true
	case "bool":
		return c.boolean, true
	case "b256":
		return c.b256, true
	case "rawptr":
		return c.rawptr, true
	case "u8":
		return c.uints[8], true
	case "u16":
		return c.uints[16], true
	case "u32":
		return c.uints[32], true
	case "u64":
		return c.uints[64], true
	case "u256":
		return c.uints[256], true
	}
	return nil, false
}

// IsBuiltinName checks if name is a primitive type name
func IsBuiltinName(name string) bool {
	for _, n := range BuiltinNames {
		if n == name {
			return true
		}
	}
	return false
}
