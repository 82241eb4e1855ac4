package vm

import (
	"fmt"

	"github.com/mna/embervm/lang/bytecode"
)

func (it *Interpreter) readByte(frame *CallFrame) byte {
	b := frame.closure.Function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (it *Interpreter) readShort(frame *CallFrame) int {
	hi := it.readByte(frame)
	lo := it.readByte(frame)
	return int(hi)<<8 | int(lo)
}

func (it *Interpreter) readConstant(frame *CallFrame) bytecode.Value {
	return frame.closure.Function.Chunk.Constants[it.readByte(frame)]
}

func (it *Interpreter) readString(frame *CallFrame) *bytecode.String {
	return it.readConstant(frame).AsString()
}

// run executes bytecode starting at the top of the call-frame stack until
// the outermost frame returns (normal completion) or a runtime error
// occurs. This is the dispatch loop described in spec §4.3: a plain decode-
// and-switch, with the current CallFrame cached in a local so the hot path
// never re-derefences the frame slice.
func (it *Interpreter) run() error {
	frame := &it.frames[len(it.frames)-1]

	for {
		if it.TraceExecution {
			it.traceInstruction(frame)
		}

		op := bytecode.OpCode(it.readByte(frame))
		switch op {
		case bytecode.OpConstant:
			it.push(it.readConstant(frame))

		case bytecode.OpNil:
			it.push(bytecode.Nil)
		case bytecode.OpTrue:
			it.push(bytecode.True)
		case bytecode.OpFalse:
			it.push(bytecode.False)
		case bytecode.OpPop:
			it.pop()

		case bytecode.OpGetLocal:
			slot := it.readByte(frame)
			it.push(it.stack[frame.slots+int(slot)])
		case bytecode.OpSetLocal:
			slot := it.readByte(frame)
			it.stack[frame.slots+int(slot)] = it.peek(0)

		case bytecode.OpGetGlobal:
			name := it.readString(frame)
			v, ok := it.globals.Get(name)
			if !ok {
				return it.runtimeError("undefined variable '%s'", name.Chars)
			}
			it.push(v)
		case bytecode.OpDefineGlobal:
			name := it.readString(frame)
			it.globals.Set(name, it.peek(0))
			it.pop()
		case bytecode.OpSetGlobal:
			name := it.readString(frame)
			if it.globals.Set(name, it.peek(0)) {
				it.globals.Delete(name)
				return it.runtimeError("undefined variable '%s'", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			idx := it.readByte(frame)
			it.push(*frame.closure.Upvalues[idx].Location)
		case bytecode.OpSetUpvalue:
			idx := it.readByte(frame)
			*frame.closure.Upvalues[idx].Location = it.peek(0)

		case bytecode.OpGetProperty:
			if !it.peek(0).IsObjKind(bytecode.ObjKindInstance) {
				return it.runtimeError("only instances have properties")
			}
			inst := it.peek(0).AsObj().(*bytecode.Instance)
			name := it.readString(frame)
			if v, ok := inst.Fields.Get(name); ok {
				it.pop() // instance
				it.push(v)
				break
			}
			if !it.bindMethod(inst.Class, name) {
				return it.runtimeError("undefined property '%s'", name.Chars)
			}
		case bytecode.OpSetProperty:
			if !it.peek(1).IsObjKind(bytecode.ObjKindInstance) {
				return it.runtimeError("only instances have fields")
			}
			inst := it.peek(1).AsObj().(*bytecode.Instance)
			name := it.readString(frame)
			inst.Fields.Set(name, it.peek(0))
			v := it.pop()
			it.pop() // instance
			it.push(v)
		case bytecode.OpGetSuper:
			name := it.readString(frame)
			superclass := it.pop().AsObj().(*bytecode.Class)
			if !it.bindMethod(superclass, name) {
				return it.runtimeError("undefined property '%s'", name.Chars)
			}

		case bytecode.OpEqual:
			b := it.pop()
			a := it.pop()
			it.push(bytecode.Bool(bytecode.Equal(a, b)))
		case bytecode.OpGreater:
			if err := it.numericBinary(func(a, b float64) bytecode.Value { return bytecode.Bool(a > b) }); err != nil {
				return err
			}
		case bytecode.OpLess:
			if err := it.numericBinary(func(a, b float64) bytecode.Value { return bytecode.Bool(a < b) }); err != nil {
				return err
			}

		case bytecode.OpAdd:
			if err := it.add(); err != nil {
				return err
			}
		case bytecode.OpSubtract:
			if err := it.numericBinary(func(a, b float64) bytecode.Value { return bytecode.Number(a - b) }); err != nil {
				return err
			}
		case bytecode.OpMultiply:
			if err := it.numericBinary(func(a, b float64) bytecode.Value { return bytecode.Number(a * b) }); err != nil {
				return err
			}
		case bytecode.OpDivide:
			if err := it.numericBinary(func(a, b float64) bytecode.Value { return bytecode.Number(a / b) }); err != nil {
				return err
			}

		case bytecode.OpNot:
			it.push(bytecode.Bool(!bytecode.Truthy(it.pop())))
		case bytecode.OpNegate:
			if !it.peek(0).IsNumber() {
				return it.runtimeError("operand must be a number")
			}
			it.push(bytecode.Number(-it.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(it.stdout(), it.pop().String())

		case bytecode.OpJump:
			offset := it.readShort(frame)
			frame.ip += offset
		case bytecode.OpJumpIfFalse:
			offset := it.readShort(frame)
			if !bytecode.Truthy(it.peek(0)) {
				frame.ip += offset
			}
		case bytecode.OpLoop:
			offset := it.readShort(frame)
			frame.ip -= offset

		case bytecode.OpCall:
			argCount := int(it.readByte(frame))
			if err := it.callValue(it.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &it.frames[len(it.frames)-1]
		case bytecode.OpInvoke:
			name := it.readString(frame)
			argCount := int(it.readByte(frame))
			if err := it.invoke(name, argCount); err != nil {
				return err
			}
			frame = &it.frames[len(it.frames)-1]
		case bytecode.OpSuperInvoke:
			name := it.readString(frame)
			argCount := int(it.readByte(frame))
			superclass := it.pop().AsObj().(*bytecode.Class)
			if err := it.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}
			frame = &it.frames[len(it.frames)-1]

		case bytecode.OpClosure:
			fn := it.readConstant(frame).AsObj().(*bytecode.Function)
			closure := it.heap.AllocateClosure(fn, fn.UpvalueCount)
			// Pushed before the upvalue-capture loop below, which itself
			// allocates (AllocateUpvalue) and could collect; closure must
			// already be a GC root by then, matching the reference VM's
			// push-then-populate order for OP_CLOSURE.
			it.push(bytecode.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := it.readByte(frame)
				index := it.readByte(frame)
				if isLocal == 1 {
					closure.Upvalues[i] = it.captureUpvalue(frame.slots + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}
		case bytecode.OpCloseUpvalue:
			it.closeUpvalues(it.stackTop - 1)
			it.pop()

		case bytecode.OpReturn:
			result := it.pop()
			it.closeUpvalues(frame.slots)
			it.frames = it.frames[:len(it.frames)-1]
			if len(it.frames) == 0 {
				it.pop() // the top-level script closure
				return nil
			}
			it.stackTop = frame.slots
			it.push(result)
			frame = &it.frames[len(it.frames)-1]

		case bytecode.OpClass:
			name := it.readString(frame)
			it.push(bytecode.FromObj(it.heap.AllocateClass(name)))
		case bytecode.OpInherit:
			if !it.peek(1).IsObjKind(bytecode.ObjKindClass) {
				return it.runtimeError("superclass must be a class")
			}
			superclass := it.peek(1).AsObj().(*bytecode.Class)
			subclass := it.peek(0).AsObj().(*bytecode.Class)
			superclass.Methods.Each(func(key *bytecode.String, val bytecode.Value) bool {
				subclass.Methods.Set(key, val)
				return true
			})
			it.pop() // pops the subclass; the superclass stays bound to the synthetic "super" local
		case bytecode.OpMethod:
			name := it.readString(frame)
			it.defineMethod(name)

		default:
			return it.runtimeError("unknown opcode %d", op)
		}
	}
}

// numericBinary implements a binary operator that requires both operands to
// be numbers, reporting the reference VM's exact error message otherwise.
func (it *Interpreter) numericBinary(op func(a, b float64) bytecode.Value) error {
	if !it.peek(0).IsNumber() || !it.peek(1).IsNumber() {
		return it.runtimeError("operands must be numbers")
	}
	b := it.pop()
	a := it.pop()
	it.push(op(a.AsNumber(), b.AsNumber()))
	return nil
}

// add implements OP_ADD's dual behavior: number + number, or string +
// string (concatenation). Both operands are left on the stack (peeked, not
// popped) until after the possibly-allocating InternString call returns, so
// a collection triggered by that allocation still sees them as GC roots
// (spec §4.4, "GC safety").
func (it *Interpreter) add() error {
	if it.peek(0).IsNumber() && it.peek(1).IsNumber() {
		b := it.pop()
		a := it.pop()
		it.push(bytecode.Number(a.AsNumber() + b.AsNumber()))
		return nil
	}
	if it.peek(0).IsObjKind(bytecode.ObjKindString) && it.peek(1).IsObjKind(bytecode.ObjKindString) {
		b := it.peek(0).AsString()
		a := it.peek(1).AsString()
		result := it.heap.InternString(a.Chars + b.Chars)
		it.pop()
		it.pop()
		it.push(bytecode.FromObj(result))
		return nil
	}
	return it.runtimeError("operands must be two numbers or two strings")
}

func (it *Interpreter) traceInstruction(frame *CallFrame) {
	fmt.Fprint(it.stdout(), "          ")
	for i := 0; i < it.stackTop; i++ {
		fmt.Fprintf(it.stdout(), "[ %s ]", it.stack[i].String())
	}
	fmt.Fprintln(it.stdout())
	out, _ := bytecode.DisassembleInstruction(frame.closure.Function.Chunk, frame.ip)
	fmt.Fprintln(it.stdout(), out)
}
