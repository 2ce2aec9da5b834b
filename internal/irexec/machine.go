package irexec

import (
	"encoding/binary"
	"fmt"
	"maps"

	pkgerrors "github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"contractc/internal/ir"
	"contractc/internal/storage"
	"contractc/internal/types"
)

var log = commonlog.GetLogger("contractc.irexec")

// Values are represented by their in-memory encoding: words are 8 bytes
// big-endian, u256 and b256 are 32 bytes, aggregates concatenate their
// fields. Pointers are word addresses into the machine's flat memory.

const (
	stackBase       = 64
	DefaultMaxSteps = 1_000_000
)

// Machine executes the functions of one IR module against in-memory
// contract state
type Machine struct {
	Storage  map[storage.Key][32]byte
	Logs     []LogRecord
	Messages []Message

	// Remote answers contract calls; when nil they return the zero value
	Remote func(RemoteCall) ([]byte, error)

	// MaxSteps bounds the instructions executed per call
	MaxSteps int

	module  *ir.Module
	mem     []byte
	sp      uint64
	steps   int
	configs map[*ir.Configurable]uint64
}

// LogRecord is one executed log instruction
type LogRecord struct {
	ID   uint64
	Type *types.Type
	Data []byte
}

// Message is one executed smo instruction
type Message struct {
	Recipient [32]byte
	Data      []byte
	Coins     uint64
}

// RemoteCall describes an executed contract_call
type RemoteCall struct {
	Method string
	Frame  []byte
	Coins  uint64
	Asset  [32]byte
	Gas    uint64
	Return *types.Type
}

// Result is the outcome of a top-level call
type Result struct {
	Value      []byte
	Reverted   bool
	RevertCode uint64
	Steps      int
}

// Uint64 decodes a word-sized result
func (r *Result) Uint64() uint64 { return ToUint64(r.Value) }

// RevertError carries a revert out of the function being executed
type RevertError struct {
	Code uint64
}

func (e *RevertError) Error() string { return fmt.Sprintf("reverted with code %#x", e.Code) }

// New creates a machine with empty storage
func New(m *ir.Module) *Machine {
	return &Machine{
		Storage:  make(map[storage.Key][32]byte),
		MaxSteps: DefaultMaxSteps,
		module:   m,
	}
}

// Call runs the named function with encoded arguments. A revert is a
// Result, not an error; it rolls back the storage changes of the call.
// Errors report faults such as out-of-bounds memory access or an exceeded
// step limit.
func (m *Machine) Call(name string, args ...[]byte) (*Result, error) {
	fn := m.module.Function(name)
	if fn == nil {
		return nil, pkgerrors.Errorf("no function %s", name)
	}
	params := fn.Params()
	if len(args) != len(params) {
		return nil, pkgerrors.Errorf("%s takes %d arguments, got %d", name, len(params), len(args))
	}
	for i, a := range args {
		if uint64(len(a)) != types.Size(params[i].Type) {
			return nil, pkgerrors.Errorf("argument %d of %s: %d bytes for %s", i, name, len(a), params[i].Type)
		}
	}

	snapshot := maps.Clone(m.Storage)
	m.mem = m.mem[:0]
	m.sp = stackBase
	m.steps = 0
	m.configs = make(map[*ir.Configurable]uint64, len(m.module.Configurables))
	for _, c := range m.module.Configurables {
		addr := m.alloc(types.Size(c.Type))
		if err := m.write(addr, c.Value.Bytes()); err != nil {
			return nil, err
		}
		m.configs[c] = addr
	}

	value, err := m.exec(fn, args)
	log.Debugf("%s finished after %d steps", name, m.steps)
	var revert *RevertError
	if pkgerrors.As(err, &revert) {
		m.Storage = snapshot
		return &Result{Reverted: true, RevertCode: revert.Code, Steps: m.steps}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Value: value, Steps: m.steps}, nil
}

// Memory

func (m *Machine) alloc(size uint64) uint64 {
	addr := m.sp
	m.sp += types.RoundUpToWord(size)
	if uint64(len(m.mem)) < m.sp {
		m.mem = append(m.mem, make([]byte, m.sp-uint64(len(m.mem)))...)
	}
	clear(m.mem[addr:m.sp])
	return addr
}

func (m *Machine) check(addr, size uint64) error {
	if addr < stackBase || addr+size > uint64(len(m.mem)) || addr+size < addr {
		return pkgerrors.Errorf("memory access of %d bytes at %#x out of bounds", size, addr)
	}
	return nil
}

func (m *Machine) read(addr, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if err := m.check(addr, size); err != nil {
		return nil, err
	}
	return append([]byte(nil), m.mem[addr:addr+size]...), nil
}

func (m *Machine) write(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := m.check(addr, uint64(len(data))); err != nil {
		return err
	}
	copy(m.mem[addr:], data)
	return nil
}

func (m *Machine) zero(addr, size uint64) error {
	if size == 0 {
		return nil
	}
	if err := m.check(addr, size); err != nil {
		return err
	}
	clear(m.mem[addr : addr+size])
	return nil
}

func (m *Machine) key(addr uint64) (storage.Key, error) {
	var k storage.Key
	b, err := m.read(addr, 32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// Encoding helpers

// Word encodes a word-sized scalar
func Word(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

// Bool encodes a bool
func Bool(b bool) []byte {
	if b {
		return Word(1)
	}
	return Word(0)
}

// Bytes32 encodes a b256 or u256 value
func Bytes32(b [32]byte) []byte { return append([]byte(nil), b[:]...) }

// ToUint64 decodes a word
func ToUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b[:8])
}
