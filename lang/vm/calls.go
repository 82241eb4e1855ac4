package vm

import (
	"golang.org/x/exp/slices"

	"github.com/mna/embervm/lang/bytecode"
)

// call pushes a new CallFrame for closure, which must already have its
// argCount arguments (and, below them, either the callee itself or the
// receiver at slot 0) sitting on top of the value stack.
func (it *Interpreter) call(closure *bytecode.Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return it.runtimeError("expected %d arguments but got %d", closure.Function.Arity, argCount)
	}
	if len(it.frames) == bytecode.FramesMax {
		return it.runtimeError("stack overflow")
	}

	it.frames = append(it.frames, CallFrame{
		closure: closure,
		slots:   it.stackTop - argCount - 1,
	})
	return nil
}

// callValue dispatches a CALL instruction's callee, which may be a closure,
// a native function, a class (construction), or a bound method.
func (it *Interpreter) callValue(callee bytecode.Value, argCount int) error {
	if !callee.IsObj() {
		return it.runtimeError("can only call functions and classes")
	}

	switch v := callee.AsObj().(type) {
	case *bytecode.Closure:
		return it.call(v, argCount)

	case *bytecode.Native:
		args := it.stack[it.stackTop-argCount : it.stackTop]
		result, err := v.Fn(argCount, args)
		if err != nil {
			return it.runtimeError("%s", err.Error())
		}
		it.stackTop -= argCount + 1
		it.push(result)
		return nil

	case *bytecode.Class:
		inst := it.heap.AllocateInstance(v)
		it.stack[it.stackTop-argCount-1] = bytecode.FromObj(inst)
		if initVal, ok := v.Methods.Get(it.heap.InternString("init")); ok {
			return it.call(initVal.AsObj().(*bytecode.Closure), argCount)
		}
		if argCount != 0 {
			return it.runtimeError("expected 0 arguments but got %d", argCount)
		}
		return nil

	case *bytecode.BoundMethod:
		it.stack[it.stackTop-argCount-1] = v.Receiver
		return it.call(v.Method, argCount)

	default:
		return it.runtimeError("can only call functions and classes")
	}
}

// invoke compiles the common `receiver.name(args)` fast path directly,
// without first materializing a bound method: it checks the instance's own
// fields (a stored closure value is callable like any other) before falling
// back to its class's method table.
func (it *Interpreter) invoke(name *bytecode.String, argCount int) error {
	receiver := it.peek(argCount)
	if !receiver.IsObjKind(bytecode.ObjKindInstance) {
		return it.runtimeError("only instances have properties")
	}
	inst := receiver.AsObj().(*bytecode.Instance)

	if field, ok := inst.Fields.Get(name); ok {
		it.stack[it.stackTop-argCount-1] = field
		return it.callValue(field, argCount)
	}
	return it.invokeFromClass(inst.Class, name, argCount)
}

func (it *Interpreter) invokeFromClass(class *bytecode.Class, name *bytecode.String, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return it.runtimeError("undefined property '%s'", name.Chars)
	}
	return it.call(method.AsObj().(*bytecode.Closure), argCount)
}

// bindMethod looks up name on class and, if found, replaces the value on
// top of the stack (the receiver) with a BoundMethod pairing the two. It
// reports whether the method was found.
func (it *Interpreter) bindMethod(class *bytecode.Class, name *bytecode.String) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		return false
	}
	bound := it.heap.AllocateBoundMethod(it.peek(0), method.AsObj().(*bytecode.Closure))
	it.pop()
	it.push(bytecode.FromObj(bound))
	return true
}

// defineMethod attaches the closure on top of the stack to the class just
// beneath it under name, then pops the closure, leaving the class on top —
// the OP_METHOD opcode's entire effect.
func (it *Interpreter) defineMethod(name *bytecode.String) {
	method := it.peek(0)
	class := it.peek(1).AsObj().(*bytecode.Class)
	class.Methods.Set(name, method)
	it.pop()
}

// captureUpvalue returns the open Upvalue for the given stack slot,
// creating and inserting one (keeping openUpvalues sorted by descending
// slot) if this is the first closure to capture that slot.
func (it *Interpreter) captureUpvalue(slot int) *bytecode.Upvalue {
	idx := slices.IndexFunc(it.openUpvalues, func(o openUpvalue) bool { return o.slot <= slot })

	if idx != -1 && it.openUpvalues[idx].slot == slot {
		return it.openUpvalues[idx].uv
	}

	uv := it.heap.AllocateUpvalue(&it.stack[slot])
	entry := openUpvalue{slot: slot, uv: uv}

	if idx == -1 {
		it.openUpvalues = append(it.openUpvalues, entry)
		return uv
	}
	it.openUpvalues = append(it.openUpvalues, openUpvalue{})
	copy(it.openUpvalues[idx+1:], it.openUpvalues[idx:])
	it.openUpvalues[idx] = entry
	return uv
}

// closeUpvalues closes every open upvalue at or above lastSlot: each copies
// its stack value inline and detaches from the stack, which must happen
// before the frame that owns that slot is popped or its scope is exited.
func (it *Interpreter) closeUpvalues(lastSlot int) {
	i := 0
	for i < len(it.openUpvalues) && it.openUpvalues[i].slot >= lastSlot {
		it.openUpvalues[i].uv.Close()
		i++
	}
	it.openUpvalues = it.openUpvalues[i:]
}
