package types

import (
	"fmt"
	"strings"
)

// Kind classifies a Type
type Kind int

const (
	KindUnit Kind = iota
	KindBool
	KindUint
	KindB256
	KindPointer
	KindRawPtr
	KindStruct
	KindArray
	KindUnion
	KindString
	KindSlice
	KindFunction
)

// Type is an interned IR type. Two types with the same shape are the same
// pointer, so types compare with ==.
type Type struct {
	kind   Kind
	bits   int     // integer width
	elem   *Type   // pointee, array/slice element
	length uint64  // array length, string byte length
	fields []*Type // struct fields, union variants, function params
	ret    *Type   // function return
	key    string
}

func (t *Type) Kind() Kind { return t.kind }

// Bits returns the integer width of a uint type, 0 otherwise
func (t *Type) Bits() int { return t.bits }

// Elem returns the pointee of a typed pointer or the element of an array/slice
func (t *Type) Elem() *Type { return t.elem }

// Len returns the array length or the string byte length
func (t *Type) Len() uint64 { return t.length }

// Fields returns struct fields, union variants or function parameters
func (t *Type) Fields() []*Type { return t.fields }

// Field returns the i-th field, or nil when out of range
func (t *Type) Field(i int) *Type {
	if i < 0 || i >= len(t.fields) {
		return nil
	}
	return t.fields[i]
}

// Return returns a function type's return type
func (t *Type) Return() *Type { return t.ret }

func (t *Type) String() string { return t.key }

func (t *Type) IsUnit() bool    { return t.kind == KindUnit }
func (t *Type) IsBool() bool    { return t.kind == KindBool }
func (t *Type) IsUint() bool    { return t.kind == KindUint }
func (t *Type) IsB256() bool    { return t.kind == KindB256 }
func (t *Type) IsPointer() bool { return t.kind == KindPointer }
func (t *Type) IsRawPtr() bool  { return t.kind == KindRawPtr }
func (t *Type) IsStruct() bool  { return t.kind == KindStruct }
func (t *Type) IsArray() bool   { return t.kind == KindArray }
func (t *Type) IsUnion() bool   { return t.kind == KindUnion }

// IsUintN reports whether t is a uint of exactly n bits
func (t *Type) IsUintN(n int) bool { return t.kind == KindUint && t.bits == n }

// IsAggregate reports whether t is a struct, array or union
func (t *Type) IsAggregate() bool {
	return t.kind == KindStruct || t.kind == KindArray || t.kind == KindUnion
}

// IsEnum reports whether t has the enum shape { u64, ( ... ) }
func (t *Type) IsEnum() bool {
	return t.kind == KindStruct && len(t.fields) == 2 &&
		t.fields[0].IsUintN(64) && t.fields[1].kind == KindUnion
}

// IsWordScalar reports whether values of t fit a single register
func (t *Type) IsWordScalar() bool {
	switch t.kind {
	case KindUnit, KindBool, KindPointer, KindRawPtr, KindFunction:
		return true
	case KindUint:
		return t.bits <= 64
	}
	return false
}

// IsCopy reports whether values of t are passed and held in registers.
// Everything else lives in memory and is handled by reference.
func (t *Type) IsCopy() bool { return t.IsWordScalar() }

// Signature renders t without whitespace, for selector hashing
func (t *Type) Signature() string {
	return strings.ReplaceAll(t.key, " ", "")
}

func typeKey(t *Type) string {
	switch t.kind {
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindUint:
		return fmt.Sprintf("u%d", t.bits)
	case KindB256:
		return "b256"
	case KindPointer:
		return "ptr " + t.elem.key
	case KindRawPtr:
		return "rawptr"
	case KindStruct:
		if len(t.fields) == 0 {
			return "{}"
		}
		return "{ " + joinKeys(t.fields, ", ") + " }"
	case KindArray:
		return fmt.Sprintf("[%s; %d]", t.elem.key, t.length)
	case KindUnion:
		return "( " + joinKeys(t.fields, " | ") + " )"
	case KindString:
		return fmt.Sprintf("str[%d]", t.length)
	case KindSlice:
		return "slice " + t.elem.key
	case KindFunction:
		return "fn(" + joinKeys(t.fields, ", ") + ") -> " + t.ret.key
	}
	return "<invalid>"
}

func joinKeys(ts []*Type, sep string) string {
	if len(ts) == 0 {
		return ""
	}
	parts := make([]string, len(ts))
	for i, f := range ts {
		parts[i] = f.key
	}
	return strings.Join(parts, sep)
}
