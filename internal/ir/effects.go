package ir

// Effects describe what an instruction does besides producing its result.
// Optimizations only remove or reorder instructions whose effects allow it.

// Effect represents the side effects of an instruction
type Effect interface {
	EffectKind() string
}

// MemoryEffectType categorizes memory access patterns
type MemoryEffectType string

const (
	MemoryEffectRead  MemoryEffectType = "read"
	MemoryEffectWrite MemoryEffectType = "write"
)

// StorageEffect represents effects on contract storage
type StorageEffect struct {
	Type string // "read" or "write"
}

func (s *StorageEffect) EffectKind() string { return "storage" }

// MemoryEffectOp represents effects on VM memory
type MemoryEffectOp struct {
	Type MemoryEffectType
}

func (m *MemoryEffectOp) EffectKind() string { return "memory" }

// TrapEffect marks instructions that may revert the transaction
type TrapEffect struct{}

func (t *TrapEffect) EffectKind() string { return "trap" }

// ExternalEffect marks instructions observable outside the contract: logs,
// messages and calls into other contracts
type ExternalEffect struct {
	What string
}

func (e *ExternalEffect) EffectKind() string { return "external" }

// CallEffect stands for whatever the callee does
type CallEffect struct {
	Callee *Function
}

func (c *CallEffect) EffectKind() string { return "call" }

// PureEffect indicates no side effects
type PureEffect struct{}

func (p *PureEffect) EffectKind() string { return "pure" }

var (
	pure        = []Effect{&PureEffect{}}
	memRead     = []Effect{&MemoryEffectOp{Type: MemoryEffectRead}}
	memWrite    = []Effect{&MemoryEffectOp{Type: MemoryEffectWrite}}
	storageRead = &StorageEffect{Type: "read"}
	storageWrt  = &StorageEffect{Type: "write"}
)

func (i *ConstInst) GetEffects() []Effect    { return pure }
func (i *GetLocal) GetEffects() []Effect     { return pure }
func (i *GetElemPtr) GetEffects() []Effect   { return pure }
func (i *Load) GetEffects() []Effect         { return memRead }
func (i *Store) GetEffects() []Effect        { return memWrite }
func (i *MemCopy) GetEffects() []Effect      { return []Effect{memRead[0], memWrite[0]} }
func (i *MemClear) GetEffects() []Effect     { return memWrite }
func (i *InsertValue) GetEffects() []Effect  { return pure }
func (i *ExtractValue) GetEffects() []Effect { return pure }
func (i *InitAggr) GetEffects() []Effect     { return memWrite }
func (i *Cmp) GetEffects() []Effect          { return pure }
func (i *Not) GetEffects() []Effect          { return pure }
func (i *GetConfig) GetEffects() []Effect    { return pure }
func (i *CastPtr) GetEffects() []Effect      { return pure }
func (i *PtrToInt) GetEffects() []Effect     { return pure }
func (i *IntToPtr) GetEffects() []Effect     { return pure }
func (i *Bitcast) GetEffects() []Effect      { return pure }

// GetStorageKey only computes an address
func (i *GetStorageKey) GetEffects() []Effect { return pure }

// BinaryOp effects: overflow, division by zero and oversized shifts revert
func (i *BinaryOp) GetEffects() []Effect {
	if i.Op.MayTrap() {
		return []Effect{&TrapEffect{}}
	}
	return pure
}

func (i *Call) GetEffects() []Effect {
	return []Effect{&CallEffect{Callee: i.Callee}}
}

func (i *StateLoadWord) GetEffects() []Effect { return []Effect{storageRead} }

func (i *StateLoadQuad) GetEffects() []Effect {
	return []Effect{storageRead, memWrite[0]}
}

func (i *StateStoreWord) GetEffects() []Effect { return []Effect{storageWrt} }

func (i *StateStoreQuad) GetEffects() []Effect {
	return []Effect{memRead[0], storageWrt}
}

func (i *StateClear) GetEffects() []Effect { return []Effect{storageWrt} }

func (i *ContractCall) GetEffects() []Effect {
	return []Effect{memRead[0], &ExternalEffect{What: "contract_call"}, &TrapEffect{}}
}

func (i *Log) GetEffects() []Effect {
	return []Effect{memRead[0], &ExternalEffect{What: "log"}}
}

func (i *Smo) GetEffects() []Effect {
	return []Effect{memRead[0], &ExternalEffect{What: "smo"}}
}

// asmStorageOps maps storage opcodes to the access they perform
var asmStorageOps = map[string]string{
	"srw":  "read",
	"srwq": "read",
	"sww":  "write",
	"swwq": "write",
	"scwq": "write",
}

// AsmBlock effects are derived from its opcodes. Anything unknown is
// treated as touching memory and possibly reverting.
func (i *AsmBlock) GetEffects() []Effect {
	effects := []Effect{memRead[0], memWrite[0], &TrapEffect{}}
	for _, op := range i.Body {
		switch asmStorageOps[op.Name] {
		case "read":
			effects = append(effects, storageRead)
		case "write":
			effects = append(effects, storageWrt)
		}
		if op.Name == "log" || op.Name == "logd" || op.Name == "smo" || op.Name == "call" {
			effects = append(effects, &ExternalEffect{What: op.Name})
		}
	}
	return effects
}

// Terminator effects

func (t *Br) GetEffects() []Effect     { return pure }
func (t *Cbr) GetEffects() []Effect    { return pure }
func (t *Ret) GetEffects() []Effect    { return pure }
func (t *Revert) GetEffects() []Effect { return []Effect{&TrapEffect{}} }

// IsRemovable reports whether inst may be deleted when its result is unused
func IsRemovable(inst Instruction) bool {
	if inst.IsTerminator() {
		return false
	}
	for _, e := range inst.GetEffects() {
		switch eff := e.(type) {
		case *PureEffect:
		case *MemoryEffectOp:
			if eff.Type != MemoryEffectRead {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// StoragePurity returns the storage access an instruction performs on its
// own, ignoring callees
func StoragePurity(inst Instruction) Purity {
	p := Pure
	for _, e := range inst.GetEffects() {
		if s, ok := e.(*StorageEffect); ok {
			if s.Type == "read" {
				p |= Reads
			} else {
				p |= Writes
			}
		}
	}
	return p
}

// InferPurity computes the transitive storage access of every function by
// iterating over the call graph until nothing changes
func InferPurity(m *Module) map[*Function]Purity {
	result := make(map[*Function]Purity, len(m.Functions))
	for _, fn := range m.Functions {
		p := Pure
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				p |= StoragePurity(inst)
			}
		}
		result[fn] = p
	}

	for changed := true; changed; {
		changed = false
		for _, fn := range m.Functions {
			p := result[fn]
			for _, b := range fn.Blocks {
				for _, inst := range b.Instructions {
					if call, ok := inst.(*Call); ok {
						p |= result[call.Callee]
					}
				}
			}
			if p != result[fn] {
				result[fn] = p
				changed = true
			}
		}
	}
	return result
}
