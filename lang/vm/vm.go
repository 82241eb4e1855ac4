// Package vm implements the register-cached stack machine that executes
// compiled bytecode: the Interpreter type bundles the value stack, call
// frames, globals table, and heap into one explicit, non-ambient context so
// that multiple interpreters may coexist in a single process (spec's
// CONCURRENCY & RESOURCE MODEL §5 note on re-entrancy).
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/compiler"
	"github.com/mna/embervm/lang/heap"
	"github.com/mna/embervm/lang/table"
)

// stackMax bounds the value stack at the product of the deepest possible
// call-frame nesting and the widest possible single frame (one slot per
// possible 1-byte local operand), matching the reference VM's fixed
// STACK_MAX array — and, in Go, guaranteeing that a *Value pointer handed to
// an Upvalue never dangles, since the backing array for an *Interpreter
// never moves once allocated.
const stackMax = bytecode.FramesMax * bytecode.MaxLocals

// CallFrame is one activation record: the closure being executed, the
// instruction pointer into its Chunk, and the base index into the VM's
// value stack where this call's locals (including the receiver, at slot 0)
// begin.
type CallFrame struct {
	closure *bytecode.Closure
	ip      int
	slots   int
}

// openUpvalue pairs a still-open Upvalue with the stack slot it borrows, so
// the open-upvalues list can be kept sorted by descending slot without the
// pointer-ordering tricks C relies on (Go doesn't allow relational
// comparison of pointers).
type openUpvalue struct {
	slot int
	uv   *bytecode.Upvalue
}

// Interpreter is a single, self-contained instance of the language runtime:
// its own heap, globals, and call stack. The zero Interpreter is not ready
// to use — call Initialize first.
type Interpreter struct {
	heap    *heap.Heap
	globals *table.Table

	stack    [stackMax]bytecode.Value
	stackTop int

	frames       []CallFrame
	openUpvalues []openUpvalue

	// Stdout receives `print` statement output; Stderr receives runtime error
	// reports printed by callers that choose to (Interpret itself only
	// returns the error, it does not print it). Both default to os.Stdout/
	// os.Stderr if left nil.
	Stdout io.Writer
	Stderr io.Writer

	// TraceExecution, when true, prints the value stack and the decoded
	// instruction before every dispatch — the "trace execution" debug hook.
	TraceExecution bool
	// PrintChunkOnCompile, when true, disassembles every compiled function as
	// soon as Compile finishes with it.
	PrintChunkOnCompile bool
	// TraceGC and StressGC forward directly to the heap's own fields of the
	// same name; see package heap.
	TraceGC  bool
	StressGC bool
}

// New returns an Interpreter ready for Initialize.
func New() *Interpreter { return &Interpreter{} }

// Initialize prepares the interpreter to run programs: it creates the heap
// and globals table, wires the heap's GC roots back to this interpreter's
// stack/frames/globals, and registers the native functions every program
// may call (currently just clock). Initialize may be called again after
// TearDown to reuse the Interpreter value for a fresh, unrelated program.
func (it *Interpreter) Initialize() {
	it.heap = heap.New()
	it.globals = table.New()
	it.stackTop = 0
	it.frames = it.frames[:0]
	it.openUpvalues = nil

	it.heap.SetRootMarker(it.markRoots)
	it.heap.TraceGC = it.TraceGC
	it.heap.StressGC = it.StressGC
	if it.Stderr != nil {
		it.heap.Trace = it.Stderr
	}

	// Seed the intern pool with "init" up front: every class instantiation
	// looks this up, and interning it here lets that lookup find the existing
	// string (spec §6). The seeded string is not itself a GC root, so a
	// collection drops it while nothing else references it, and the next
	// lookup interns it again.
	it.heap.InternString("init")
	it.defineNatives()
}

// TearDown releases the interpreter's heap and globals. After TearDown, the
// Interpreter must not be used again without a fresh Initialize.
func (it *Interpreter) TearDown() {
	it.heap = nil
	it.globals = nil
	it.stackTop = 0
	it.frames = nil
	it.openUpvalues = nil
}

func (it *Interpreter) stdout() io.Writer {
	if it.Stdout != nil {
		return it.Stdout
	}
	return os.Stdout
}

// Interpret compiles and runs one program to completion, sharing this
// Interpreter's globals and heap with any program interpreted before it (so
// top-level `var` declarations persist across successive Interpret calls on
// the same Interpreter, matching the REPL's line-at-a-time model). It
// returns a compiler.ErrorList for a compile failure or a *RuntimeError for
// a runtime failure; a nil error means the program ran to completion.
func (it *Interpreter) Interpret(source string) error {
	fn, err := compiler.Compile(source, it.heap, compiler.Options{
		PrintChunks: it.PrintChunkOnCompile,
		Trace:       it.stdout(),
	})
	if err != nil {
		return err
	}

	closure := it.heap.AllocateClosure(fn, 0)
	it.push(bytecode.FromObj(closure))
	if err := it.call(closure, 0); err != nil {
		return err
	}
	return it.run()
}

func (it *Interpreter) push(v bytecode.Value) {
	it.stack[it.stackTop] = v
	it.stackTop++
}

func (it *Interpreter) pop() bytecode.Value {
	it.stackTop--
	return it.stack[it.stackTop]
}

func (it *Interpreter) peek(distance int) bytecode.Value {
	return it.stack[it.stackTop-1-distance]
}

func (it *Interpreter) resetStack() {
	it.stackTop = 0
	it.frames = it.frames[:0]
	it.openUpvalues = nil
}

// RuntimeError is returned by Interpret when a compiled program fails during
// execution: a type error, an arity mismatch, an undefined name, a stack
// overflow, and so on. It carries the call stack at the point of failure,
// innermost frame first, the same shape as the reference VM's traceback.
type RuntimeError struct {
	Message string
	Frames  []FrameTrace
}

// FrameTrace describes one call frame's position at the moment a
// RuntimeError was raised.
type FrameTrace struct {
	FuncName string
	Line     int
}

func (e *RuntimeError) Error() string {
	msg := e.Message
	for _, f := range e.Frames {
		name := f.FuncName
		if name == "" {
			name = "script"
		}
		msg += fmt.Sprintf("\n[line %d] in %s", f.Line, name)
	}
	return msg
}

// runtimeError builds a RuntimeError from the current call stack, then
// resets the VM to an empty stack — there is no handler to resume
// execution after a runtime error, matching the reference VM's all-or-
// nothing error model (spec §7).
func (it *Interpreter) runtimeError(format string, args ...interface{}) error {
	rerr := &RuntimeError{Message: fmt.Sprintf(format, args...)}
	for i := len(it.frames) - 1; i >= 0; i-- {
		frame := &it.frames[i]
		fn := frame.closure.Function
		line := 0
		if frame.ip-1 >= 0 && frame.ip-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[frame.ip-1]
		}
		name := ""
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		rerr.Frames = append(rerr.Frames, FrameTrace{FuncName: name, Line: line})
	}
	it.resetStack()
	return rerr
}

// markRoots is installed on the heap via SetRootMarker: it marks every value
// reachable directly from interpreter state (as opposed to from another
// heap object, which blacken handles) — the value stack, every call frame's
// closure, every still-open upvalue, and the globals table.
func (it *Interpreter) markRoots(h *heap.Heap) {
	for i := 0; i < it.stackTop; i++ {
		h.MarkValue(it.stack[i])
	}
	for i := range it.frames {
		h.MarkObject(it.frames[i].closure)
	}
	for _, ou := range it.openUpvalues {
		h.MarkObject(ou.uv)
	}
	if it.globals != nil {
		it.globals.Each(func(key *bytecode.String, val bytecode.Value) bool {
			h.MarkObject(key)
			h.MarkValue(val)
			return true
		})
	}
}
