package bytecode

import "fmt"

// OpCode is a single bytecode instruction tag. Every instruction is one byte;
// operand widths are fixed per opcode (see the comments on the constants
// below, where given, and the disassembler, which is the executable
// reference for widths).
type OpCode byte

//nolint:revive
const (
	OpConstant OpCode = iota // CONSTANT <1-byte const idx>       : push constants[idx]
	OpNil                    // NIL                                : push nil
	OpTrue                   // TRUE                               : push true
	OpFalse                  // FALSE                              : push false
	OpPop                    // POP                                : drop top

	OpGetLocal  // GET_LOCAL <1-byte slot>  : push frame.slots[slot]
	OpSetLocal  // SET_LOCAL <1-byte slot>  : frame.slots[slot] = top (leaves value on stack)
	OpGetGlobal // GET_GLOBAL <1-byte const idx> : push globals[name]
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue // GET_UPVALUE <1-byte idx> : push *closure.upvalues[idx].location
	OpSetUpvalue

	OpGetProperty // GET_PROPERTY <1-byte const idx>
	OpSetProperty
	OpGetSuper

	OpEqual
	OpGreater
	OpLess

	OpAdd
	OpSubtract
	OpMultiply
	OpDivide

	OpNot
	OpNegate

	OpPrint

	OpJump         // JUMP <2-byte big-endian offset>          : ip += offset
	OpJumpIfFalse  // JUMP_IF_FALSE <2-byte offset>             : if falsy(top) ip += offset (does not pop)
	OpLoop         // LOOP <2-byte offset>                      : ip -= offset

	OpCall        // CALL <1-byte argc>
	OpInvoke      // INVOKE <1-byte const idx> <1-byte argc>
	OpSuperInvoke // SUPER_INVOKE <1-byte const idx> <1-byte argc>

	OpClosure      // CLOSURE <1-byte const idx> <2 bytes per upvalue: is_local, index>
	OpCloseUpvalue // CLOSE_UPVALUE
	OpReturn

	OpClass
	OpInherit
	OpMethod

	opCodeCount
)

var opCodeNames = [...]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op OpCode) String() string {
	if op < opCodeCount {
		return opCodeNames[op]
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// MaxConstants is the per-chunk limit on the constant pool, imposed by the
// 1-byte constant index used to address it.
const MaxConstants = 256

// MaxLocals is the per-function limit on locals, imposed by the 1-byte local
// slot operand.
const MaxLocals = 256

// MaxUpvalues is the per-function limit on upvalues, for the same reason.
const MaxUpvalues = 256

// FramesMax is the maximum number of nested call frames; exceeding it is a
// stack overflow runtime error.
const FramesMax = 64
