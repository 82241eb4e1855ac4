package compiler

import (
	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/token"
)

// declaration compiles one top-level-or-block declaration: a class, a
// function, a variable declaration, or a plain statement. A syntax error
// anywhere inside resynchronizes to the start of the next statement rather
// than aborting the whole compile.
func (c *compiler) declaration() {
	switch {
	case c.parser.match(token.CLASS):
		c.classDeclaration()
	case c.parser.match(token.FUN):
		c.funDeclaration()
	case c.parser.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.parser.panicMode {
		c.parser.synchronize()
	}
}

func (c *compiler) statement() {
	switch {
	case c.parser.match(token.PRINT):
		c.printStatement()
	case c.parser.match(token.IF):
		c.ifStatement()
	case c.parser.match(token.WHILE):
		c.whileStatement()
	case c.parser.match(token.FOR):
		c.forStatement()
	case c.parser.match(token.RETURN):
		c.returnStatement()
	case c.parser.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

// block compiles declarations up to (and consuming) the closing brace. The
// opening brace has already been consumed by the caller.
func (c *compiler) block() {
	for !c.parser.check(token.RBRACE) && !c.parser.check(token.EOF) {
		c.declaration()
	}
	c.parser.consume(token.RBRACE, "expect '}' after block")
}

func (c *compiler) printStatement() {
	c.expression()
	c.parser.consume(token.SEMICOLON, "expect ';' after value")
	c.emitByte(byte(bytecode.OpPrint))
}

func (c *compiler) expressionStatement() {
	c.expression()
	c.parser.consume(token.SEMICOLON, "expect ';' after expression")
	c.emitByte(byte(bytecode.OpPop))
}

func (c *compiler) returnStatement() {
	if c.fnType == typeScript {
		c.parser.errorAtPrevious("can't return from top-level code")
	}

	if c.parser.match(token.SEMICOLON) {
		c.emitReturn()
		return
	}

	if c.fnType == typeInitializer {
		c.parser.errorAtPrevious("can't return a value from an initializer")
	}
	c.expression()
	c.parser.consume(token.SEMICOLON, "expect ';' after return value")
	c.emitByte(byte(bytecode.OpReturn))
}

func (c *compiler) ifStatement() {
	c.parser.consume(token.LPAREN, "expect '(' after 'if'")
	c.expression()
	c.parser.consume(token.RPAREN, "expect ')' after condition")

	thenJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitByte(byte(bytecode.OpPop))
	c.statement()

	elseJump := c.emitJump(bytecode.OpJump)
	c.patchJump(thenJump)
	c.emitByte(byte(bytecode.OpPop))

	if c.parser.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compiler) whileStatement() {
	loopStart := len(c.currentChunk().Code)
	c.parser.consume(token.LPAREN, "expect '(' after 'while'")
	c.expression()
	c.parser.consume(token.RPAREN, "expect ')' after condition")

	exitJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitByte(byte(bytecode.OpPop))
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(byte(bytecode.OpPop))
}

// forStatement lowers the C-style for loop entirely into while-loop-shaped
// bytecode (an optional initializer, a condition-guarded exit jump, and the
// increment spliced in as a jump-over-body-then-loop-back), matching the
// reference compiler's desugaring instead of giving the VM a dedicated
// looping opcode.
func (c *compiler) forStatement() {
	c.beginScope()
	c.parser.consume(token.LPAREN, "expect '(' after 'for'")

	switch {
	case c.parser.match(token.SEMICOLON):
		// no initializer
	case c.parser.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentChunk().Code)
	exitJump := -1
	if !c.parser.match(token.SEMICOLON) {
		c.expression()
		c.parser.consume(token.SEMICOLON, "expect ';' after loop condition")

		exitJump = c.emitJump(bytecode.OpJumpIfFalse)
		c.emitByte(byte(bytecode.OpPop))
	}

	if !c.parser.match(token.RPAREN) {
		bodyJump := c.emitJump(bytecode.OpJump)

		incrStart := len(c.currentChunk().Code)
		c.expression()
		c.emitByte(byte(bytecode.OpPop))
		c.parser.consume(token.RPAREN, "expect ')' after for clauses")

		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitByte(byte(bytecode.OpPop))
	}

	c.endScope()
}

// varDeclaration compiles `var name [= initializer] ;`. An omitted
// initializer defaults the variable to nil, matching the language's
// implicit-nil rule.
func (c *compiler) varDeclaration() {
	global := c.parseVariable("expect variable name")

	if c.parser.match(token.EQUAL) {
		c.expression()
	} else {
		c.emitByte(byte(bytecode.OpNil))
	}
	c.parser.consume(token.SEMICOLON, "expect ';' after variable declaration")

	c.defineVariable(global)
}

// parseVariable consumes an identifier token, declares it if inside a local
// scope, and returns the constant-pool index of its name (meaningful only
// for a global; locals ignore the return value since they address by slot).
func (c *compiler) parseVariable(errMsg string) byte {
	c.parser.consume(token.IDENT, errMsg)

	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.parser.previous)
}

// defineVariable makes a declared variable visible: for a local, that is
// simply marking it initialized (it already lives on the stack where the
// initializer expression left its value); for a global, it emits
// DEFINE_GLOBAL to record it by name.
func (c *compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(bytecode.OpDefineGlobal), global)
}

func (c *compiler) funDeclaration() {
	global := c.parseVariable("expect function name")
	c.markInitialized()
	c.function_(typeFunction)
	c.defineVariable(global)
}

// function_ compiles one function body (parameters plus block) as a nested
// compiler, then emits CLOSURE in the enclosing chunk with the upvalue
// capture descriptors the nested compiler recorded.
func (c *compiler) function_(fnType functionType) {
	name := c.parser.previous.Lexeme
	nested := newCompiler(c.parser, c, fnType, name)
	nested.beginScope()

	nested.parser.consume(token.LPAREN, "expect '(' after function name")
	if !nested.parser.check(token.RPAREN) {
		for {
			nested.function.Arity++
			if nested.function.Arity > 255 {
				nested.parser.errorAtCurrent("can't have more than 255 parameters")
			}
			paramConst := nested.parseVariable("expect parameter name")
			nested.defineVariable(paramConst)
			if !nested.parser.match(token.COMMA) {
				break
			}
		}
	}
	nested.parser.consume(token.RPAREN, "expect ')' after parameters")
	nested.parser.consume(token.LBRACE, "expect '{' before function body")
	nested.block()

	fn := nested.end()

	c.emitBytes(byte(bytecode.OpClosure), c.makeConstant(bytecode.FromObj(fn)))
	for _, u := range nested.upvalues {
		c.emitByte(boolByte(u.isLocal))
		c.emitByte(u.index)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// classDeclaration compiles `class Name [< Superclass] { methods... }`.
// Methods are compiled directly into the class's runtime Methods table by
// the METHOD opcode as each is finished, rather than building any
// intermediate class-literal representation.
func (c *compiler) classDeclaration() {
	c.parser.consume(token.IDENT, "expect class name")
	nameTok := c.parser.previous
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitBytes(byte(bytecode.OpClass), nameConst)
	c.defineVariable(nameConst)

	cs := &classState{enclosing: c.class}
	c.class = cs

	if c.parser.match(token.LESS) {
		c.parser.consume(token.IDENT, "expect superclass name")
		variable(c, false)

		if c.parser.previous.Lexeme == nameTok.Lexeme {
			c.parser.errorAtPrevious("a class can't inherit from itself")
		}

		c.beginScope()
		c.addLocal(superToken)
		c.defineVariable(0)

		c.namedVariable(nameTok, false)
		c.emitByte(byte(bytecode.OpInherit))
		cs.hasSuperclass = true
	}

	c.namedVariable(nameTok, false)
	c.parser.consume(token.LBRACE, "expect '{' before class body")
	for !c.parser.check(token.RBRACE) && !c.parser.check(token.EOF) {
		c.method()
	}
	c.parser.consume(token.RBRACE, "expect '}' after class body")
	c.emitByte(byte(bytecode.OpPop)) // pop the class itself, pushed by namedVariable above

	if cs.hasSuperclass {
		c.endScope()
	}
	c.class = cs.enclosing
}

func (c *compiler) method() {
	c.parser.consume(token.IDENT, "expect method name")
	nameTok := c.parser.previous
	nameConst := c.identifierConstant(nameTok)

	fnType := typeMethod
	if nameTok.Lexeme == "init" {
		fnType = typeInitializer
	}
	c.function_(fnType)
	c.emitBytes(byte(bytecode.OpMethod), nameConst)
}
