package types

import "fmt"

// WordSize is the machine word in bytes
const WordSize = 8

// SlotSize is the persistent storage slot size in bytes
const SlotSize = 32

// Size returns the in-memory byte size of t
func Size(t *Type) uint64 {
	switch t.kind {
	case KindUnit:
		return 0
	case KindBool, KindPointer, KindRawPtr, KindFunction:
		return WordSize
	case KindUint:
		if t.bits == 256 {
			return 32
		}
		return WordSize
	case KindB256:
		return 32
	case KindStruct:
		var total uint64
		for _, f := range t.fields {
			total += Size(f)
		}
		return total
	case KindArray:
		return Size(t.elem) * t.length
	case KindUnion:
		var largest uint64
		for _, v := range t.fields {
			if s := Size(v); s > largest {
				largest = s
			}
		}
		return largest
	case KindString:
		return RoundUpToWord(t.length)
	case KindSlice:
		return 2 * WordSize
	}
	return 0
}

// RoundUpToWord rounds n up to a multiple of the word size
func RoundUpToWord(n uint64) uint64 {
	return (n + WordSize - 1) / WordSize * WordSize
}

// SizeInWords returns the number of words needed to hold t
func SizeInWords(t *Type) uint64 {
	return RoundUpToWord(Size(t)) / WordSize
}

// FieldOffset returns the byte offset of struct field i
func FieldOffset(t *Type, i int) (uint64, error) {
	if t.kind != KindStruct {
		return 0, fmt.Errorf("field offset on non-struct type %s", t)
	}
	if i < 0 || i >= len(t.fields) {
		return 0, fmt.Errorf("field index %d out of range for %s", i, t)
	}
	var off uint64
	for _, f := range t.fields[:i] {
		off += Size(f)
	}
	return off, nil
}

// IndexedType walks a constant index path from t and returns the addressed
// type together with its byte offset. Unions ignore the index value: every
// variant starts at offset zero.
func IndexedType(t *Type, indices []uint64) (*Type, uint64, error) {
	cur := t
	var off uint64
	for _, idx := range indices {
		switch cur.kind {
		case KindStruct:
			fo, err := FieldOffset(cur, int(idx))
			if err != nil {
				return nil, 0, err
			}
			off += fo
			cur = cur.fields[idx]
		case KindArray:
			if idx >= cur.length {
				return nil, 0, fmt.Errorf("array index %d out of range for %s", idx, cur)
			}
			off += idx * Size(cur.elem)
			cur = cur.elem
		case KindUnion:
			if idx >= uint64(len(cur.fields)) {
				return nil, 0, fmt.Errorf("variant index %d out of range for %s", idx, cur)
			}
			cur = cur.fields[idx]
		default:
			return nil, 0, fmt.Errorf("cannot index into %s", cur)
		}
	}
	return cur, off, nil
}

// LeafFields flattens nested structs and arrays into their scalar leaves,
// returning each leaf's type and byte offset. Unions are treated as leaves.
func LeafFields(t *Type) []Leaf {
	var leaves []Leaf
	var walk func(t *Type, off uint64)
	walk = func(t *Type, off uint64) {
		switch t.kind {
		case KindStruct:
			for _, f := range t.fields {
				walk(f, off)
				off += Size(f)
			}
		case KindArray:
			es := Size(t.elem)
			for i := uint64(0); i < t.length; i++ {
				walk(t.elem, off+i*es)
			}
		default:
			leaves = append(leaves, Leaf{Type: t, Offset: off})
		}
	}
	walk(t, 0)
	return leaves
}

// Leaf is a scalar position inside an aggregate
type Leaf struct {
	Type   *Type
	Offset uint64
}

// StorageSlots returns the number of 32-byte slots a value of t occupies
func StorageSlots(t *Type) uint64 {
	return (Size(t) + SlotSize - 1) / SlotSize
}
