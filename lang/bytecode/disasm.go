package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders every instruction in chunk in human-readable form,
// labeled with name. It is the debug printer named in the core API
// (`disassemble(chunk, name)`); disassembly is for diagnostics only and is
// never parsed back by the VM.
func Disassemble(chunk *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		line, next := DisassembleInstruction(chunk, offset)
		b.WriteString(line)
		b.WriteByte('\n')
		offset = next
	}
	return b.String()
}

// DisassembleInstruction renders the single instruction at offset and returns
// that rendering along with the offset of the next instruction.
func DisassembleInstruction(chunk *Chunk, offset int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", chunk.Lines[offset])
	}

	op := OpCode(chunk.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpClass, OpMethod,
		OpGetProperty, OpSetProperty, OpGetSuper:
		return constantInstruction(&b, op, chunk, offset)

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(&b, op, chunk, offset)

	case OpJump, OpJumpIfFalse:
		return jumpInstruction(&b, op, 1, chunk, offset)
	case OpLoop:
		return jumpInstruction(&b, op, -1, chunk, offset)

	case OpInvoke, OpSuperInvoke:
		return invokeInstruction(&b, op, chunk, offset)

	case OpClosure:
		return closureInstruction(&b, chunk, offset)

	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess, OpAdd,
		OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate, OpPrint,
		OpCloseUpvalue, OpReturn, OpInherit:
		fmt.Fprintf(&b, "%s", op)
		return b.String(), offset + 1

	default:
		fmt.Fprintf(&b, "unknown opcode %d", chunk.Code[offset])
		return b.String(), offset + 1
	}
}

func constantInstruction(b *strings.Builder, op OpCode, chunk *Chunk, offset int) (string, int) {
	idx := chunk.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'", op, idx, chunk.Constants[idx].String())
	return b.String(), offset + 2
}

func byteInstruction(b *strings.Builder, op OpCode, chunk *Chunk, offset int) (string, int) {
	slot := chunk.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d", op, slot)
	return b.String(), offset + 2
}

func jumpInstruction(b *strings.Builder, op OpCode, sign int, chunk *Chunk, offset int) (string, int) {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	fmt.Fprintf(b, "%-16s %4d -> %d", op, offset, offset+3+sign*jump)
	return b.String(), offset + 3
}

func invokeInstruction(b *strings.Builder, op OpCode, chunk *Chunk, offset int) (string, int) {
	idx := chunk.Code[offset+1]
	argc := chunk.Code[offset+2]
	fmt.Fprintf(b, "%-16s (%d args) %4d '%s'", op, argc, idx, chunk.Constants[idx].String())
	return b.String(), offset + 3
}

func closureInstruction(b *strings.Builder, chunk *Chunk, offset int) (string, int) {
	idx := chunk.Code[offset+1]
	offset += 2
	fmt.Fprintf(b, "%-16s %4d '%s'", OpClosure, idx, chunk.Constants[idx].String())

	if fn, ok := chunk.Constants[idx].AsObj().(*Function); ok {
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := chunk.Code[offset]
			index := chunk.Code[offset+1]
			offset += 2
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(b, "\n%04d      |                     %s %d", offset-2, kind, index)
		}
	}
	return b.String(), offset
}
