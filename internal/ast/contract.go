package ast

import (
	"strings"

	"contractc/internal/types"
)

// Module is one type-checked, monomorphized compilation unit
type Module struct {
	Pos           Position
	Name          string
	Kind          ModuleKind
	Storage       []*StorageField
	Configurables []*Configurable
	Functions     []*Function
}

// StorageField is a persistent variable or a storage namespace. A namespace
// has Fields and no Type; a keyed collection has MapKeys and Type is the
// element type.
type StorageField struct {
	Pos     Position
	Name    string
	Type    *types.Type
	MapKeys []*types.Type
	Fields  []*StorageField
}

// IsNamespace reports whether the field only groups other fields
func (s *StorageField) IsNamespace() bool { return s.Type == nil && len(s.Fields) > 0 }

// IsMap reports whether the field is a keyed collection
func (s *StorageField) IsMap() bool { return len(s.MapKeys) > 0 }

// LookupStorage resolves a dotted storage path
func (m *Module) LookupStorage(path []string) *StorageField {
	fields := m.Storage
	var found *StorageField
	for _, name := range path {
		found = nil
		for _, f := range fields {
			if f.Name == name {
				found = f
				break
			}
		}
		if found == nil {
			return nil
		}
		fields = found.Fields
	}
	return found
}

// Configurable is a per-deployment constant
type Configurable struct {
	Pos   Position
	Name  string
	Type  *types.Type
	Value *LiteralExpr
}

// Param is a function parameter
type Param struct {
	Pos  Position
	Name string
	Type *types.Type
}

// Function is a source function after monomorphization
type Function struct {
	Pos    Position
	Name   string
	Params []*Param
	Return *types.Type
	Body   *BlockExpr
	Purity Purity
	Entry  bool
	Inline InlineHint
}

func (f *Function) NodePos() Position { return f.Pos }

// StorageAccess names a persistent variable by its dotted path and an
// optional chain of struct field indices into its value
type StorageAccess struct {
	Path   []string
	Fields []int
}

// Key returns the dotted path used for key derivation
func (s StorageAccess) Key() string { return strings.Join(s.Path, ".") }
