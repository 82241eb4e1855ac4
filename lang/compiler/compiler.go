// Package compiler implements a single-pass Pratt parser that emits bytecode
// directly as it recognizes each expression and statement, with no
// intermediate AST — tokens come from package scanner and compiled output is
// a *bytecode.Function ready for the virtual machine.
package compiler

import (
	"fmt"
	"io"

	"github.com/dolthub/swiss"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/heap"
	"github.com/mna/embervm/lang/scanner"
	"github.com/mna/embervm/lang/token"
)

// Error is a single compile-time mistake: where it was found (line and the
// offending lexeme) and a human-readable message, matching the reference
// compiler's "[line N] Error at 'lexeme': message" reports.
type Error struct {
	Line    int
	Lexeme  string
	Message string
}

func (e *Error) Error() string {
	if e.Lexeme == "" {
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Lexeme, e.Message)
}

// ErrorList accumulates every error found while compiling one source, in the
// order encountered. It implements error (so Compile's return value composes
// normally) and Unwrap() []error, the same contract shape as the standard
// library's go/scanner.ErrorList, which the rest of this dependency's
// ecosystem (this corpus's scanner packages) lean on for exactly this
// purpose.
type ErrorList []*Error

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return ""
	case 1:
		return el[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
	}
}

// Unwrap lets callers use errors.Is/As across every accumulated error.
func (el ErrorList) Unwrap() []error {
	errs := make([]error, len(el))
	for i, e := range el {
		errs[i] = e
	}
	return errs
}

// Allocator is the subset of *heap.Heap the compiler needs: interning string
// literals and identifiers, allocating the Function objects it builds, and
// registering the currently-compiling function chain as a GC root for the
// duration of a single Compile call (spec §4.4 step 1). Declared here,
// satisfied by *heap.Heap, so this package never needs to reach past the
// things it actually uses.
type Allocator interface {
	InternString(chars string) *bytecode.String
	AllocateFunction() *bytecode.Function
	SetCompilerRootMarker(fn func(*heap.Heap))
	ClearCompilerRootMarker()
}

var _ Allocator = (*heap.Heap)(nil)

// Options configures a single Compile call's diagnostics. The zero Options
// disassembles nothing.
type Options struct {
	// PrintChunks disassembles every compiled function's chunk to Trace
	// (defaulting to os.Stdout) as soon as it finishes compiling.
	PrintChunks bool
	Trace       io.Writer
}

// Compile parses and compiles source into a single top-level Function (the
// implicit "script" function the VM calls to run the program). On any parse
// error, it returns a non-nil ErrorList alongside whatever partial Function
// was produced; callers must not execute a Function returned alongside a
// non-nil error.
func Compile(source string, alloc Allocator, opts Options) (*bytecode.Function, error) {
	p := &parser{scanner: scanner.New(source), alloc: alloc, printChunks: opts.PrintChunks, trace: opts.Trace}
	p.advance()

	// The currently-compiling function chain is reachable only from this
	// parser's currentCompiler field, not from the VM stack or globals, so it
	// must be registered as its own GC root for the duration of this call —
	// matching clox's markCompilerRoots, which walks the same enclosing chain.
	alloc.SetCompilerRootMarker(func(h *heap.Heap) {
		for cc := p.currentCompiler; cc != nil; cc = cc.enclosing {
			h.MarkObject(cc.function)
		}
	})
	defer alloc.ClearCompilerRootMarker()

	c := newCompiler(p, nil, typeScript, "")
	for !p.match(token.EOF) {
		c.declaration()
	}
	fn := c.end()

	if len(p.errors) > 0 {
		return fn, p.errors
	}
	return fn, nil
}

// functionType distinguishes the four kinds of compiled function bodies,
// since each has slightly different implicit-return and "this"-binding
// behavior.
type functionType int

const (
	typeFunction functionType = iota
	typeInitializer
	typeMethod
	typeScript
)

// local is a declared local variable's compile-time record: its name token
// (for shadowing/redeclaration checks) and its scope depth. depth of -1
// means "declared but not yet initialized" (its own initializer expression is
// still compiling and must not be allowed to refer to it).
type local struct {
	name       token.Token
	depth      int
	isCaptured bool
}

// upvalueRef records how a function captures a variable from an enclosing
// function: either directly from that function's locals (isLocal) or
// transitively from its own upvalues.
type upvalueRef struct {
	index   uint8
	isLocal bool
}

// classState tracks the class currently being compiled, chained through
// enclosing classes so nested class declarations (themselves not very
// useful, but not forbidden) resolve "this"/"super" to the innermost class.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// compiler holds the compile-time state for one function body: its locals,
// upvalues, and the Function object bytecode is being emitted into. Each
// nested function literal gets its own compiler, chained to its lexically
// enclosing one via enclosing.
type compiler struct {
	parser    *parser
	enclosing *compiler

	function *bytecode.Function
	fnType   functionType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int

	class *classState

	// stringConstants deduplicates string-valued constants within this
	// function's Chunk: the same literal or identifier name referenced twice
	// shares one constant-pool slot, per the constant pool's dedup rule
	// (strings only — numbers are never deduplicated, matching the reference
	// semantics where two equal number literals need not be pointer-identical).
	stringConstants *swiss.Map[string, uint8]
}

func newCompiler(p *parser, enclosing *compiler, fnType functionType, name string) *compiler {
	c := &compiler{
		parser:          p,
		enclosing:       enclosing,
		fnType:          fnType,
		stringConstants: swiss.NewMap[string, uint8](8),
	}
	if enclosing != nil {
		c.class = enclosing.class
	}

	// Installed before any allocation this constructor performs, so a
	// collection triggered by AllocateFunction or InternString below still
	// finds this compiler (and, through enclosing, every outer one already
	// under compilation) via the parser's currentCompiler root.
	p.currentCompiler = c

	c.function = p.alloc.AllocateFunction()
	if name != "" {
		c.function.Name = p.alloc.InternString(name)
	}

	// Slot 0 of every call frame is reserved: for methods and initializers it
	// holds the receiver ("this"); for plain functions and the top-level
	// script it is simply unused but still counted, matching the reference
	// VM's uniform calling convention.
	slot0 := token.Token{Lexeme: ""}
	if fnType == typeMethod || fnType == typeInitializer {
		slot0.Lexeme = "this"
	}
	c.locals = append(c.locals, local{name: slot0, depth: 0})

	return c
}

func (c *compiler) currentChunk() *bytecode.Chunk { return c.function.Chunk }

// end finalizes the function being compiled: if control can fall off the end
// without an explicit return, an implicit `return nil` (or, for an
// initializer, `return this`) is emitted, matching spec §4.2's implicit
// return rule.
func (c *compiler) end() *bytecode.Function {
	c.emitReturn()
	if c.parser.printChunks {
		name := "<script>"
		if c.function.Name != nil {
			name = c.function.Name.Chars
		}
		fmt.Fprint(c.parser.traceOut(), bytecode.Disassemble(c.currentChunk(), name))
	}
	fn := c.function
	// Pop back to the enclosing compiler so the GC root walk (and any
	// subsequent nested-function compilation) no longer sees this finished
	// compiler as the innermost one.
	c.parser.currentCompiler = c.enclosing
	return fn
}

func (c *compiler) emitReturn() {
	if c.fnType == typeInitializer {
		c.emitBytes(byte(bytecode.OpGetLocal), 0)
	} else {
		c.emitByte(byte(bytecode.OpNil))
	}
	c.emitByte(byte(bytecode.OpReturn))
}

func (c *compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.parser.previous.Line)
}

func (c *compiler) emitBytes(a, b byte) {
	c.emitByte(a)
	c.emitByte(b)
}

// emitLoop emits OP_LOOP with the backward offset to loopStart.
func (c *compiler) emitLoop(loopStart int) {
	c.emitByte(byte(bytecode.OpLoop))
	offset := len(c.currentChunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.parser.errorAtPrevious("loop body too large")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset & 0xff))
}

// emitJump emits op followed by a placeholder 2-byte offset, returning the
// offset of the first placeholder byte for patchJump to fill in later.
func (c *compiler) emitJump(op bytecode.OpCode) int {
	c.emitByte(byte(op))
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.currentChunk().Code) - 2
}

func (c *compiler) patchJump(offset int) {
	jump := len(c.currentChunk().Code) - offset - 2
	if jump > 0xffff {
		c.parser.errorAtPrevious("jump target too far")
	}
	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump & 0xff)
}

// makeConstant adds v to the chunk's constant pool, deduplicating string
// values against this function's stringConstants table, and returns its
// index. It reports a compile error (and returns 0) if the chunk is already
// at the per-function constant limit.
func (c *compiler) makeConstant(v bytecode.Value) byte {
	if v.IsObjKind(bytecode.ObjKindString) {
		s := v.AsString()
		if idx, ok := c.stringConstants.Get(s.Chars); ok {
			return idx
		}
		idx, ok := c.currentChunk().AddConstant(v)
		if !ok {
			c.parser.errorAtPrevious("too many constants in one function")
			return 0
		}
		c.stringConstants.Put(s.Chars, byte(idx))
		return byte(idx)
	}

	idx, ok := c.currentChunk().AddConstant(v)
	if !ok {
		c.parser.errorAtPrevious("too many constants in one function")
		return 0
	}
	return byte(idx)
}

func (c *compiler) emitConstant(v bytecode.Value) {
	c.emitBytes(byte(bytecode.OpConstant), c.makeConstant(v))
}

func (c *compiler) identifierConstant(tok token.Token) byte {
	return c.makeConstant(bytecode.FromObj(c.parser.alloc.InternString(tok.Lexeme)))
}
