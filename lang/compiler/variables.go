package compiler

import (
	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/token"
)

func (c *compiler) beginScope() { c.scopeDepth++ }

// endScope pops every local declared in the scope being left. A captured
// local is closed over by CLOSE_UPVALUE instead of a plain POP, moving its
// value off the stack and into the heap-allocated Upvalue that still
// references it.
func (c *compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			c.emitByte(byte(bytecode.OpCloseUpvalue))
		} else {
			c.emitByte(byte(bytecode.OpPop))
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// declareVariable registers the identifier just parsed (c.parser.previous) as
// a new local in the current scope, rejecting redeclaration of the same name
// within that exact scope. Global scope (depth 0) declares nothing here —
// globals are looked up by name at runtime, not by slot.
func (c *compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}

	name := c.parser.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.parser.errorAtPrevious("already a variable with this name in this scope")
		}
	}
	c.addLocal(name)
}

func (c *compiler) addLocal(name token.Token) {
	if len(c.locals) >= bytecode.MaxLocals {
		c.parser.errorAtPrevious("too many local variables in function")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

// markInitialized records that the most recently declared local's
// initializer has finished compiling, making it visible to subsequent
// expressions (including its own following sibling declarations). Function
// parameters are marked initialized immediately since they need no
// initializer expression, and a local function declaration's own name is
// marked before its body compiles so the body can call it recursively. At
// global scope there is no local to mark.
func (c *compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// resolveLocal returns the stack slot of name in c's own locals, searching
// innermost-scope-first, or -1 if name is not a local here.
func (c *compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name.Lexeme == name {
			if c.locals[i].depth == -1 {
				c.parser.errorAtPrevious("can't read local variable in its own initializer")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue finds name in an enclosing function, recursively capturing
// it through every intermediate function so each level's closure carries
// exactly the upvalues it needs, or returns -1 if name is not found in any
// enclosing scope (meaning it must be global).
func (c *compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}

	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(uint8(local), true)
	}
	if up := c.enclosing.resolveUpvalue(name); up != -1 {
		return c.addUpvalue(uint8(up), false)
	}
	return -1
}

// addUpvalue records a new captured variable, reusing an existing slot if
// this exact (index, isLocal) pair was already captured.
func (c *compiler) addUpvalue(index uint8, isLocal bool) int {
	for i, u := range c.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= bytecode.MaxUpvalues {
		c.parser.errorAtPrevious("too many closure variables in function")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}
