package storage

import (
	"fmt"
	"sort"
	"strings"

	"contractc/internal/ast"
	"contractc/internal/types"
)

// Slots returns the number of 32-byte slots a value of size bytes spans
func Slots(size uint64) uint64 {
	return (size + types.SlotSize - 1) / types.SlotSize
}

// ClearSlots returns how many slots clearing a value of t touches. Zero-size
// values still own the slot at their key.
func ClearSlots(t *types.Type) uint64 {
	if n := Slots(types.Size(t)); n > 0 {
		return n
	}
	return 1
}

// Location is the position of a byte offset inside a run of slots
type Location struct {
	Slot   uint64 // slot index relative to the value's key
	Word   uint64 // word index inside the slot
	Offset uint64 // byte offset inside the slot
}

// Locate places byte offset off of a storage value
func Locate(off uint64) Location {
	inSlot := off % types.SlotSize
	return Location{
		Slot:   off / types.SlotSize,
		Word:   inSlot / types.WordSize,
		Offset: inSlot,
	}
}

// Range is a byte range of a storage value together with the slots it
// touches
type Range struct {
	Start     Location
	Size      uint64
	FirstSlot uint64
	SlotCount uint64
}

// Span returns the slots covered by size bytes at byte offset off
func Span(off, size uint64) Range {
	start := Locate(off)
	r := Range{Start: start, Size: size, FirstSlot: start.Slot}
	if size == 0 {
		return r
	}
	last := (off + size - 1) / types.SlotSize
	r.SlotCount = last - start.Slot + 1
	return r
}

// IsSingleWord reports whether the range is one word at the start of a slot,
// reachable with word-sized state access
func (r Range) IsSingleWord() bool {
	return r.Size == types.WordSize && r.Start.Offset == 0
}

// IsWholeSlots reports whether the range starts and ends on slot boundaries
func (r Range) IsWholeSlots() bool {
	return r.Start.Offset == 0 && r.Size%types.SlotSize == 0
}

// Entry is one storage variable of a module with its derived key
type Entry struct {
	Path    string
	Type    *types.Type
	MapKeys []*types.Type
	Key     Key
	Slots   uint64
}

// Layout lists every storage variable of a module in path order
type Layout struct {
	Entries []Entry
	byPath  map[string]int
}

// NewLayout derives keys for the storage tree of m. Namespaces contribute
// their names to the path only.
func NewLayout(m *ast.Module) (*Layout, error) {
	l := &Layout{byPath: make(map[string]int)}
	var walk func(prefix []string, fields []*ast.StorageField) error
	walk = func(prefix []string, fields []*ast.StorageField) error {
		for _, f := range fields {
			path := append(append([]string(nil), prefix...), f.Name)
			if f.IsNamespace() {
				if err := walk(path, f.Fields); err != nil {
					return err
				}
				continue
			}
			if f.Type == nil {
				return fmt.Errorf("storage field %s has no type", strings.Join(path, "."))
			}
			dotted := strings.Join(path, ".")
			if _, dup := l.byPath[dotted]; dup {
				return fmt.Errorf("storage field %s declared twice", dotted)
			}
			e := Entry{Path: dotted, Type: f.Type, MapKeys: f.MapKeys, Key: BaseKey(dotted)}
			if !f.IsMap() {
				e.Slots = Slots(types.Size(f.Type))
			}
			l.byPath[dotted] = len(l.Entries)
			l.Entries = append(l.Entries, e)
		}
		return nil
	}
	if err := walk(nil, m.Storage); err != nil {
		return nil, err
	}
	sort.Slice(l.Entries, func(i, j int) bool { return l.Entries[i].Path < l.Entries[j].Path })
	for i, e := range l.Entries {
		l.byPath[e.Path] = i
	}
	return l, nil
}

// Lookup returns the entry at a dotted path
func (l *Layout) Lookup(path string) (Entry, bool) {
	i, ok := l.byPath[path]
	if !ok {
		return Entry{}, false
	}
	return l.Entries[i], true
}
