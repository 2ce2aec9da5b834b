package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar of the IR text form. The parse tree is untyped: value and block
// names are resolved by internal/parser.

type Module struct {
	Pos           lexer.Position
	Kind          string          `@("contract" | "script") "{"`
	Configurables []*Configurable `@@*`
	Functions     []*Function     `@@* "}"`
	Metadata      []*MetadataDef  `@@*`
}

type Configurable struct {
	Pos   lexer.Position
	Name  string   `"configurable" @Ident ":"`
	Type  *Type    `@@ "="`
	Value *Literal `@@`
	Meta  string   `[ "," @MetaRef ]`
}

type Type struct {
	Pos    lexer.Position
	Ptr    *Type       `  "ptr" @@`
	Slice  *Type       `| "slice" @@`
	Str    *StrType    `| @@`
	Array  *ArrayType  `| @@`
	Struct *StructType `| @@`
	Union  *UnionType  `| @@`
	Fn     *FnType     `| @@`
	Name   string      `| @Ident`
}

type StrType struct {
	Len uint64 `"str" "[" @Int "]"`
}

type ArrayType struct {
	Elem *Type  `"[" @@ ";"`
	Len  uint64 `@Int "]"`
}

type StructType struct {
	Fields []*Type `"{" [ @@ { "," @@ } ] "}"`
}

type UnionType struct {
	Variants []*Type `"(" @@ { "|" @@ } ")"`
}

type FnType struct {
	Params []*Type `"fn" "(" [ @@ { "," @@ } ] ")"`
	Return *Type   `"->" @@`
}

type Literal struct {
	Pos  lexer.Position
	Unit bool    `  @"(" ")"`
	Bool *string `| @("true" | "false")`
	Hex  *string `| @Hex`
	Int  *string `| @Int`
	Str  *string `| @String`
}

type Function struct {
	Pos    lexer.Position
	Entry  bool     `@"entry"?`
	Name   string   `"fn" @Ident "("`
	Params []*Param `[ @@ { "," @@ } ] ")"`
	Return *Type    `"->" @@`
	Meta   string   `[ "," @MetaRef ] "{"`
	Locals []*Local `@@*`
	Blocks []*Block `@@* "}"`
}

type Param struct {
	Pos  lexer.Position
	Name string `@Ident ":"`
	Type *Type  `@@`
}

type Local struct {
	Pos  lexer.Position
	Type *Type  `"local" @@`
	Name string `@Ident`
}

type Block struct {
	Pos          lexer.Position
	Label        string         `@Ident "("`
	Args         []*Param       `[ @@ { "," @@ } ] ")" ":"`
	Instructions []*Instruction `@@*`
}

type Instruction struct {
	Pos    lexer.Position
	Result string `[ @Ident "=" ]`
	Op     *Op    `@@`
	Meta   string `[ "," @MetaRef ]`
}

type Op struct {
	Const          *ConstOp          `  @@`
	GetLocal       *GetLocalOp       `| @@`
	GetElemPtr     *GetElemPtrOp     `| @@`
	Load           *LoadOp           `| @@`
	Store          *StoreOp          `| @@`
	MemCopy        *MemCopyOp        `| @@`
	MemClear       *MemClearOp       `| @@`
	InsertValue    *InsertValueOp    `| @@`
	ExtractValue   *ExtractValueOp   `| @@`
	InitAggr       *InitAggrOp       `| @@`
	Binary         *BinaryOp         `| @@`
	Cmp            *CmpOp            `| @@`
	Not            *NotOp            `| @@`
	Call           *CallOp           `| @@`
	Br             *BrOp             `| @@`
	Cbr            *CbrOp            `| @@`
	Ret            *RetOp            `| @@`
	Revert         *RevertOp         `| @@`
	StateLoadWord  *StateLoadWordOp  `| @@`
	StateLoadQuad  *StateLoadQuadOp  `| @@`
	StateStoreWord *StateStoreWordOp `| @@`
	StateStoreQuad *StateStoreQuadOp `| @@`
	StateClear     *StateClearOp     `| @@`
	GetStorageKey  *GetStorageKeyOp  `| @@`
	ContractCall   *ContractCallOp   `| @@`
	Log            *LogOp            `| @@`
	Smo            *SmoOp            `| @@`
	GetConfig      *GetConfigOp      `| @@`
	Asm            *AsmOp            `| @@`
	Conversion     *ConversionOp     `| @@`
}

type ConstOp struct {
	Type  *Type    `"const" @@`
	Value *Literal `@@`
}

type GetLocalOp struct {
	Type *Type  `"get_local" @@ ","`
	Name string `@Ident`
}

type GepIndex struct {
	Const *uint64 `  @Int`
	Value string  `| @Ident`
}

type GetElemPtrOp struct {
	Base    string      `"get_elem_ptr" @Ident ","`
	Type    *Type       `@@`
	Indices []*GepIndex `{ "," @@ }`
}

type LoadOp struct {
	Ptr string `"load" @Ident`
}

type StoreOp struct {
	Value string `"store" @Ident "to"`
	Ptr   string `@Ident`
}

type MemCopyOp struct {
	Dst  string `"mem_copy" @Ident ","`
	Src  string `@Ident ","`
	Size uint64 `@Int`
}

type MemClearOp struct {
	Dst  string `"mem_clear" @Ident ","`
	Size uint64 `@Int`
}

type InsertValueOp struct {
	Agg     string   `"insert_value" @Ident ","`
	Value   string   `@Ident`
	Indices []uint64 `( "," @Int )+`
}

type ExtractValueOp struct {
	Agg     string   `"extract_value" @Ident`
	Indices []uint64 `( "," @Int )+`
}

type InitAggrOp struct {
	Ptr    string   `"init_aggr" @Ident "["`
	Fields []string `[ @Ident { "," @Ident } ] "]"`
}

type BinaryOp struct {
	Op    string `@("add" | "sub" | "mul" | "div" | "mod" | "and" | "or" | "xor" | "shl" | "shr")`
	Left  string `@Ident ","`
	Right string `@Ident`
}

type CmpOp struct {
	Pred  string `"cmp" @Ident`
	Left  string `@Ident ","`
	Right string `@Ident`
}

type NotOp struct {
	Value string `"not" @Ident`
}

type CallOp struct {
	Callee string   `"call" @Ident "("`
	Args   []string `[ @Ident { "," @Ident } ] ")"`
}

type Target struct {
	Pos   lexer.Position
	Label string   `@Ident "("`
	Args  []string `[ @Ident { "," @Ident } ] ")"`
}

type BrOp struct {
	Target *Target `"br" @@`
}

type CbrOp struct {
	Cond  string  `"cbr" @Ident ","`
	True  *Target `@@ ","`
	False *Target `@@`
}

type RetOp struct {
	Type  *Type  `"ret" @@`
	Value string `@Ident`
}

type RevertOp struct {
	Code string `"revert" @Ident`
}

type StateLoadWordOp struct {
	Key string `"state_load_word" @Ident`
}

type StateLoadQuadOp struct {
	Key   string `"state_load_quad" @Ident ","`
	Dst   string `@Ident ","`
	Count string `@Ident`
}

type StateStoreWordOp struct {
	Value string `"state_store_word" @Ident ","`
	Key   string `@Ident`
}

type StateStoreQuadOp struct {
	Key   string `"state_store_quad" @Ident ","`
	Src   string `@Ident ","`
	Count string `@Ident`
}

type StateClearOp struct {
	Key   string `"state_clear" @Ident ","`
	Count string `@Ident`
}

type GetStorageKeyOp struct {
	Path string `"get_storage_key" @String ","`
	Slot uint64 `@Int`
}

type ContractCallOp struct {
	Type    *Type  `"contract_call" @@`
	Name    string `@Ident`
	Params  string `@Ident ","`
	Coins   string `@Ident ","`
	AssetID string `@Ident ","`
	Gas     string `@Ident`
}

type LogOp struct {
	Type  *Type  `"log" @@`
	Value string `@Ident ","`
	LogID string `@Ident`
}

type SmoOp struct {
	Recipient string `"smo" @Ident ","`
	Message   string `@Ident ","`
	Length    string `@Ident ","`
	Coins     string `@Ident`
}

type GetConfigOp struct {
	Type *Type  `"get_config" @@ ","`
	Name string `@Ident`
}

type AsmArg struct {
	Name  string `@Ident`
	Value string `[ ":" @Ident ]`
}

type AsmInstruction struct {
	Pos  lexer.Position
	Name string   `@Ident`
	Args []string `@( Ident | Register | Int )* ";"`
}

type AsmOp struct {
	Args      []*AsmArg         `"asm" "(" [ @@ { "," @@ } ] ")"`
	Type      *Type             `"->" @@`
	ReturnReg string            `@( Ident | Register )?`
	Body      []*AsmInstruction `"{" @@* "}"`
}

type ConversionOp struct {
	Kind  string `@("cast_ptr" | "ptr_to_int" | "int_to_ptr" | "bitcast")`
	Value string `@Ident "to"`
	Type  *Type  `@@`
}

type MetadataDef struct {
	Pos   lexer.Position
	Ref   string          `@MetaRef "="`
	Items []*MetadataItem `@@+`
}

type MetadataItem struct {
	Span   *SpanItem `  "span" @@`
	Purity string    `| "purity" @Ident`
	Config *string   `| "config" @String`
	Inline string    `| "inline" @Ident`
}

type SpanItem struct {
	File   string `@String`
	Line   int    `@Int ":"`
	Column int    `@Int`
}
