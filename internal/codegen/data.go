package codegen

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"contractc/internal/types"
)

// DataKind discriminates data section entries
type DataKind int

const (
	// DataWord is a 64-bit big-endian word
	DataWord DataKind = iota
	// DataBytes is a byte string padded to whole words
	DataBytes
	// DataAddr is the instruction index of a label, known after layout
	DataAddr
	// DataConfig is a configurable; it is never shared with another entry
	DataConfig
)

// DataEntry is one item of the data section
type DataEntry struct {
	Kind  DataKind
	Word  uint64
	Bytes []byte
	Label *Label
	Name  string
}

// Size returns the number of bytes the entry occupies
func (e *DataEntry) Size() uint64 {
	switch e.Kind {
	case DataBytes, DataConfig:
		if n := types.RoundUpToWord(uint64(len(e.Bytes))); n > 0 {
			return n
		}
	}
	return types.WordSize
}

func (e *DataEntry) key() string {
	switch e.Kind {
	case DataWord:
		return fmt.Sprintf("w:%d", e.Word)
	case DataBytes:
		return "b:" + hex.EncodeToString(e.Bytes)
	case DataAddr:
		return fmt.Sprintf("a:%p", e.Label)
	}
	return "c:" + e.Name
}

func (e *DataEntry) String() string {
	switch e.Kind {
	case DataWord:
		return fmt.Sprintf(".word %d", e.Word)
	case DataBytes:
		return ".bytes 0x" + hex.EncodeToString(e.Bytes)
	case DataAddr:
		return ".addr " + e.Label.Name
	}
	return fmt.Sprintf(".config %s 0x%s", e.Name, hex.EncodeToString(e.Bytes))
}

// DataSection is an append-only pool of deduplicated entries. Offsets of
// existing entries never change.
type DataSection struct {
	entries []*DataEntry
	offsets []uint64
	index   map[string]int
	size    uint64
}

// NewDataSection creates an empty data section
func NewDataSection() *DataSection {
	return &DataSection{index: make(map[string]int)}
}

// Add interns e and returns its entry number
func (d *DataSection) Add(e DataEntry) int {
	k := e.key()
	if i, ok := d.index[k]; ok {
		return i
	}
	i := len(d.entries)
	d.entries = append(d.entries, &e)
	d.offsets = append(d.offsets, d.size)
	d.index[k] = i
	d.size += e.Size()
	return i
}

// Word interns a word
func (d *DataSection) Word(n uint64) int { return d.Add(DataEntry{Kind: DataWord, Word: n}) }

// Bytes interns a byte string
func (d *DataSection) Bytes(b []byte) int {
	return d.Add(DataEntry{Kind: DataBytes, Bytes: append([]byte(nil), b...)})
}

// Addr interns the address of a label
func (d *DataSection) Addr(l *Label) int { return d.Add(DataEntry{Kind: DataAddr, Label: l}) }

// Config interns a configurable
func (d *DataSection) Config(name string, value []byte) int {
	return d.Add(DataEntry{Kind: DataConfig, Name: name, Bytes: append([]byte(nil), value...)})
}

// Lookup finds the entry number of a configurable
func (d *DataSection) Lookup(name string) (int, bool) {
	i, ok := d.index["c:"+name]
	return i, ok
}

// Len returns the number of entries
func (d *DataSection) Len() int { return len(d.entries) }

// Entry returns entry i
func (d *DataSection) Entry(i int) *DataEntry { return d.entries[i] }

// Offset returns the byte offset of entry i from the section start
func (d *DataSection) Offset(i int) uint64 { return d.offsets[i] }

// Size returns the byte size of the section
func (d *DataSection) Size() uint64 { return d.size }

// Merge adds every entry of other and returns the renumbering
func (d *DataSection) Merge(other *DataSection) []int {
	remap := make([]int, len(other.entries))
	for i, e := range other.entries {
		remap[i] = d.Add(*e)
	}
	return remap
}

// Encode serializes the section. Label addresses must be resolved.
func (d *DataSection) Encode() []byte {
	out := make([]byte, d.size)
	for i, e := range d.entries {
		off := d.offsets[i]
		switch e.Kind {
		case DataWord:
			binary.BigEndian.PutUint64(out[off:], e.Word)
		case DataAddr:
			binary.BigEndian.PutUint64(out[off:], uint64(e.Label.Index))
		default:
			copy(out[off:], e.Bytes)
		}
	}
	return out
}
