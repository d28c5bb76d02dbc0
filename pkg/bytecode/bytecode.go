// Package bytecode defines the bytecode format and opcodes for xu.
//
// The bytecode is the low-level intermediate representation the xu
// virtual machine (pkg/vm) executes. It consists of one or more
// FunctionProtos, each a sequence of Instructions, plus a Constant pool
// shared across the whole compiled unit.
//
// Architecture:
//
// The bytecode system follows a stack-based architecture where:
//  1. Values are pushed onto and popped from the VM's eval stack
//  2. Operations consume values from the stack and push results back
//  3. Named variables and indexed locals are separate storage classes
//  4. Method/field lookups go through the inline-cache layer in pkg/vm
//
// Instruction Format:
//
// Each instruction is an Op byte plus a 32-bit Operand. Operand's meaning
// depends on Op:
//   - ConstInt/ConstFloat: index into the constant pool
//   - ConstBool: the literal itself, nonzero for true and 0 for false
//   - LoadLocal/StoreLocal/IncLocal: local slot number
//   - LoadLocalDepth: packed (depth<<16)|index for captured upvalues
//   - CallMethod/CallStaticOrMethod: packed (selectorIdx<<SelectorIndexShift)|argCount
//   - Jump/JumpIfFalse: absolute instruction index to jump to
package bytecode

// Op is a single bytecode operation. One byte, matching the closed
// operator surface the runtime's VM and inline-cache layer dispatch on.
type Op byte

const (
	// --- constants and stack shape ---
	OpConstInt Op = iota
	OpConstFloat
	OpConstBool
	OpConstNull
	OpConstStr
	OpPop
	OpDup

	// --- arithmetic / comparison / logic ---
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpGt
	OpLe
	OpGe
	OpEq
	OpNe
	OpAnd
	OpOr
	OpNot
	OpNeg

	// --- control flow ---
	OpJump
	OpJumpIfFalse
	OpReturn
	OpBreak
	OpContinue
	OpThrow
	OpPushHandler
	OpPopHandler
	OpRunPending

	// --- variables ---
	OpLoadName
	OpStoreName
	OpDefineName
	OpLoadLocal
	OpStoreLocal
	OpLoadLocalDepth
	OpIncLocal
	OpAddAssignName
	OpAddAssignLocal

	// --- modules ---
	OpUse

	// --- types ---
	OpAssertType
	OpDefineStruct
	OpDefineEnum
	OpStructInit
	OpStructInitSpread
	OpEnumCtor

	// --- functions and calls ---
	OpMakeFunction
	OpCall
	OpCallMethod
	OpCallStaticOrMethod

	// --- members, indexing, ranges ---
	OpGetMember
	OpGetIndex
	OpAssignMember
	OpAssignIndex
	OpMakeRange

	// --- builder ---
	OpBuilderNewCap
	OpBuilderAppend
	OpBuilderFinalize

	// --- for-each iteration ---
	OpForEachInit
	OpForEachNext
	OpIterPop

	// --- environments / locals frames ---
	OpEnvPush
	OpEnvPop
	OpLocalsPush
	OpLocalsPop

	// --- collection constructors ---
	OpMakeList
	OpMakeTuple
	OpMakeDict
	OpMakeSet

	// --- pattern matching ---
	OpMatchPattern
	OpMatchBindings

	// --- static fields ---
	OpGetStaticField
	OpSetStaticField
	OpInitStaticField

	// --- misc ---
	OpPrint
	OpHalt
)

var opNames = [...]string{
	"ConstInt", "ConstFloat", "ConstBool", "ConstNull", "ConstStr", "Pop", "Dup",
	"Add", "Sub", "Mul", "Div", "Mod", "Lt", "Gt", "Le", "Ge", "Eq", "Ne", "And", "Or", "Not", "Neg",
	"Jump", "JumpIfFalse", "Return", "Break", "Continue", "Throw", "PushHandler", "PopHandler", "RunPending",
	"LoadName", "StoreName", "DefineName", "LoadLocal", "StoreLocal", "LoadLocalDepth", "IncLocal", "AddAssignName", "AddAssignLocal",
	"Use",
	"AssertType", "DefineStruct", "DefineEnum", "StructInit", "StructInitSpread", "EnumCtor",
	"MakeFunction", "Call", "CallMethod", "CallStaticOrMethod",
	"GetMember", "GetIndex", "AssignMember", "AssignIndex", "MakeRange",
	"BuilderNewCap", "BuilderAppend", "BuilderFinalize",
	"ForEachInit", "ForEachNext", "IterPop",
	"EnvPush", "EnvPop", "LocalsPush", "LocalsPop",
	"MakeList", "MakeTuple", "MakeDict", "MakeSet",
	"MatchPattern", "MatchBindings",
	"GetStaticField", "SetStaticField", "InitStaticField",
	"Print", "Halt",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Unknown"
}

// SelectorIndexShift/ArgCountMask pack a call site's constant-pool
// selector index and argument count into one Instruction operand, the
// same bit-packing convention the original bytecode.go used for message
// sends, carried over for method/static calls here.
const (
	SelectorIndexShift = 8
	ArgCountMask       = 0xFF
)

func PackCall(selectorIdx, argCount int) int32 {
	return int32(selectorIdx<<SelectorIndexShift) | int32(argCount&ArgCountMask)
}

func UnpackCall(operand int32) (selectorIdx, argCount int) {
	return int(operand) >> SelectorIndexShift, int(operand) & ArgCountMask
}

// PackDefine/UnpackDefine pack DefineName's (name constant index, mutable
// flag) pair into one operand, so `let` (immutable) and `var` (mutable)
// compile to the same op with different operands rather than needing two
// ops.
func PackDefine(nameIdx int, mutable bool) int32 {
	bit := int32(0)
	if mutable {
		bit = 1
	}
	return int32(nameIdx<<1) | bit
}

func UnpackDefine(operand int32) (nameIdx int, mutable bool) {
	return int(operand) >> 1, operand&1 != 0
}

// PackDepthIndex/UnpackDepthIndex pack LoadLocalDepth's (depth, index)
// pair into one operand. EnumCtor reuses the same 16/16 split for its
// (enum index, variant index) pair -- the variant's arity is looked up
// from the EnumDef rather than packed alongside, so both users fit.
func PackDepthIndex(depth, index int) int32 {
	return int32(depth<<16) | int32(index&0xFFFF)
}

func UnpackDepthIndex(operand int32) (depth, index int) {
	return int(operand) >> 16, int(operand) & 0xFFFF
}

// handlerNone marks an absent catch/finally target in a packed
// PushHandler operand; 0xFFFF instructions is far beyond any realistic
// function body, same tradeoff PackDepthIndex already makes.
const handlerNone = 0xFFFF

// PackHandlerTargets/UnpackHandlerTargets pack PushHandler's (catchIP,
// finallyIP) pair into one operand, each a 16-bit absolute instruction
// offset with handlerNone standing in for "no such target". Kept
// separate from PackCall, which packs an unrelated (selectorIdx,
// argCount) pair and would otherwise silently truncate a finallyIP
// above 255.
func PackHandlerTargets(catchIP, finallyIP int) int32 {
	c, f := handlerNone, handlerNone
	if catchIP >= 0 {
		c = catchIP
	}
	if finallyIP >= 0 {
		f = finallyIP
	}
	return int32(c<<16) | int32(f&0xFFFF)
}

func UnpackHandlerTargets(operand int32) (catchIP, finallyIP int) {
	c := int(operand) >> 16 & 0xFFFF
	f := int(operand) & 0xFFFF
	catchIP, finallyIP = -1, -1
	if c != handlerNone {
		catchIP = c
	}
	if f != handlerNone {
		finallyIP = f
	}
	return catchIP, finallyIP
}

// Instruction is one bytecode op plus its operand.
type Instruction struct {
	Op      Op
	Operand int32
}

// ConstKind distinguishes the payload held in a Constant slot.
type ConstKind byte

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstStr
	ConstFuncProto
)

// Constant is one entry of the shared constant pool.
type Constant struct {
	Kind  ConstKind
	Int   int32
	Float float64
	Str   string
	Proto *FunctionProto
}

// FunctionProto is a compiled function body: its own instruction stream
// and local-slot count, referencing the enclosing Bytecode's shared
// constant pool by index. ParamTypes runs parallel to Params ("" for an
// untyped parameter); it feeds the type-signature inline cache that lets
// a hot call site skip per-argument type checks when the argument tags
// haven't changed since the last call.
type FunctionProto struct {
	Name       string
	Params     []string
	ParamTypes []string
	NumLocals  int
	Code       []Instruction
}

// FieldDef is one struct field's compiled layout entry.
type FieldDef struct {
	Name string
}

// StructDef is a compiled struct type: its field layout (order matters,
// it's what GetMember/AssignMember's inline cache offsets index into) and
// its methods/statics, stored as indices into Bytecode.Functions.
type StructDef struct {
	Name     string
	Fields   []FieldDef
	Methods  map[string]int // method name -> index into Bytecode.Functions
	Statics  map[string]int
}

// EnumVariantDef is one compiled enum variant.
type EnumVariantDef struct {
	Name  string
	Arity int
}

// EnumDef is a compiled enum type.
type EnumDef struct {
	Name     string
	Variants []EnumVariantDef
}

// Bytecode is a fully compiled unit: the shared constant pool, every
// struct/enum type defined in it, every function (index 0 is always the
// module's top-level code), and which index is the entry point.
type Bytecode struct {
	Constants []Constant
	Structs   []*StructDef
	Enums     []*EnumDef
	Functions []*FunctionProto
	Entry     int
}
