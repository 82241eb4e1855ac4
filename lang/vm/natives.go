package vm

import (
	"time"

	"github.com/mna/embervm/lang/bytecode"
)

// defineNatives registers every builtin the language exposes in globals.
// Per spec §6, there is exactly one: clock. Initialize calls this once per
// fresh interpreter.
func (it *Interpreter) defineNatives() {
	it.defineNative("clock", clockNative)
}

// defineNative registers a single native function in globals. The interned
// name and the allocated Native are pushed onto the stack as soon as each is
// produced, before the next (possibly collecting) allocation runs, and only
// popped once both are safely stored in globals — the same push-before-
// further-allocation discipline the reference VM's defineNative uses.
func (it *Interpreter) defineNative(name string, fn bytecode.NativeFn) {
	it.push(bytecode.FromObj(it.heap.InternString(name)))
	it.push(bytecode.FromObj(it.heap.AllocateNative(name, fn)))
	it.globals.Set(it.peek(1).AsObj().(*bytecode.String), it.peek(0))
	it.pop()
	it.pop()
}

// clockNative returns the number of seconds since the Unix epoch as a
// floating-point number. Extra arguments are accepted and ignored, matching
// spec §6's "argc must be 0 (not enforced)".
func clockNative(argCount int, args []bytecode.Value) (bytecode.Value, error) {
	return bytecode.Number(float64(time.Now().UnixNano()) / 1e9), nil
}
