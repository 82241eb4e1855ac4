package compiler

import (
	"strconv"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/token"
)

// Precedence orders binding strength from weakest to strongest, the same
// ladder the reference compiler climbs one rung at a time in parsePrecedence.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecPrimary
)

// parseFn compiles one prefix or infix expression production, emitting
// bytecode directly as it recognizes the token(s) involved.
type parseFn func(c *compiler, canAssign bool)

type rule struct {
	prefix, infix parseFn
	precedence    Precedence
}

// rules is the Pratt parsing table: for every token kind that can appear in
// an expression, what to do when it appears in prefix (operand-leading)
// position, what to do when it appears in infix (operator) position, and at
// what precedence it binds as an infix operator. Token kinds absent from
// this map simply cannot start or continue an expression.
var rules = map[token.Kind]rule{
	token.LPAREN:        {prefix: grouping, infix: call, precedence: PrecCall},
	token.DOT:           {infix: dot, precedence: PrecCall},
	token.MINUS:         {prefix: unary, infix: binary, precedence: PrecTerm},
	token.PLUS:          {infix: binary, precedence: PrecTerm},
	token.SLASH:         {infix: binary, precedence: PrecFactor},
	token.STAR:          {infix: binary, precedence: PrecFactor},
	token.BANG:          {prefix: unary},
	token.BANG_EQUAL:    {infix: binary, precedence: PrecEquality},
	token.EQUAL_EQUAL:   {infix: binary, precedence: PrecEquality},
	token.GREATER:       {infix: binary, precedence: PrecComparison},
	token.GREATER_EQUAL: {infix: binary, precedence: PrecComparison},
	token.LESS:          {infix: binary, precedence: PrecComparison},
	token.LESS_EQUAL:    {infix: binary, precedence: PrecComparison},
	token.IDENT:         {prefix: variable},
	token.STRING:        {prefix: stringLiteral},
	token.NUMBER:        {prefix: number},
	token.AND:           {infix: and_, precedence: PrecAnd},
	token.OR:            {infix: or_, precedence: PrecOr},
	token.FALSE:         {prefix: literal},
	token.TRUE:          {prefix: literal},
	token.NIL:           {prefix: literal},
	token.THIS:          {prefix: this_},
	token.SUPER:         {prefix: super_},
}

func getRule(k token.Kind) rule { return rules[k] }

// expression compiles the single expression with the lowest (most
// permissive) precedence, the entry point used by every statement-level
// expression production.
func (c *compiler) expression() { c.parsePrecedence(PrecAssignment) }

// parsePrecedence is the heart of the Pratt algorithm: consume one prefix
// production, then keep consuming infix productions as long as the next
// token binds at least as tightly as prec.
func (c *compiler) parsePrecedence(prec Precedence) {
	c.parser.advance()
	prefixRule := getRule(c.parser.previous.Kind).prefix
	if prefixRule == nil {
		c.parser.errorAtPrevious("expect expression")
		return
	}

	canAssign := prec <= PrecAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.parser.current.Kind).precedence {
		c.parser.advance()
		infixRule := getRule(c.parser.previous.Kind).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.parser.match(token.EQUAL) {
		c.parser.errorAtPrevious("invalid assignment target")
	}
}

func number(c *compiler, _ bool) {
	n, _ := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	c.emitConstant(bytecode.Number(n))
}

// stringLiteral strips the surrounding quotes the scanner left in place and
// interns the remaining bytes verbatim — no escape processing, matching the
// scanner's own no-escapes rule.
func stringLiteral(c *compiler, _ bool) {
	lexeme := c.parser.previous.Lexeme
	chars := lexeme[1 : len(lexeme)-1]
	c.emitConstant(bytecode.FromObj(c.parser.alloc.InternString(chars)))
}

func literal(c *compiler, _ bool) {
	switch c.parser.previous.Kind {
	case token.FALSE:
		c.emitByte(byte(bytecode.OpFalse))
	case token.TRUE:
		c.emitByte(byte(bytecode.OpTrue))
	case token.NIL:
		c.emitByte(byte(bytecode.OpNil))
	}
}

func grouping(c *compiler, _ bool) {
	c.expression()
	c.parser.consume(token.RPAREN, "expect ')' after expression")
}

func unary(c *compiler, _ bool) {
	opKind := c.parser.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case token.BANG:
		c.emitByte(byte(bytecode.OpNot))
	case token.MINUS:
		c.emitByte(byte(bytecode.OpNegate))
	}
}

func binary(c *compiler, _ bool) {
	opKind := c.parser.previous.Kind
	r := getRule(opKind)
	c.parsePrecedence(r.precedence + 1)

	switch opKind {
	case token.BANG_EQUAL:
		c.emitBytes(byte(bytecode.OpEqual), byte(bytecode.OpNot))
	case token.EQUAL_EQUAL:
		c.emitByte(byte(bytecode.OpEqual))
	case token.GREATER:
		c.emitByte(byte(bytecode.OpGreater))
	case token.GREATER_EQUAL:
		c.emitBytes(byte(bytecode.OpLess), byte(bytecode.OpNot))
	case token.LESS:
		c.emitByte(byte(bytecode.OpLess))
	case token.LESS_EQUAL:
		c.emitBytes(byte(bytecode.OpGreater), byte(bytecode.OpNot))
	case token.PLUS:
		c.emitByte(byte(bytecode.OpAdd))
	case token.MINUS:
		c.emitByte(byte(bytecode.OpSubtract))
	case token.STAR:
		c.emitByte(byte(bytecode.OpMultiply))
	case token.SLASH:
		c.emitByte(byte(bytecode.OpDivide))
	}
}

func and_(c *compiler, _ bool) {
	endJump := c.emitJump(bytecode.OpJumpIfFalse)
	c.emitByte(byte(bytecode.OpPop))
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func or_(c *compiler, _ bool) {
	elseJump := c.emitJump(bytecode.OpJumpIfFalse)
	endJump := c.emitJump(bytecode.OpJump)
	c.patchJump(elseJump)
	c.emitByte(byte(bytecode.OpPop))
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func call(c *compiler, _ bool) {
	argCount := c.argumentList()
	c.emitBytes(byte(bytecode.OpCall), argCount)
}

func dot(c *compiler, canAssign bool) {
	c.parser.consume(token.IDENT, "expect property name after '.'")
	name := c.identifierConstant(c.parser.previous)

	switch {
	case canAssign && c.parser.match(token.EQUAL):
		c.expression()
		c.emitBytes(byte(bytecode.OpSetProperty), name)
	case c.parser.match(token.LPAREN):
		argCount := c.argumentList()
		c.emitBytes(byte(bytecode.OpInvoke), name)
		c.emitByte(argCount)
	default:
		c.emitBytes(byte(bytecode.OpGetProperty), name)
	}
}

// argumentList compiles a parenthesized, comma-separated argument list whose
// opening '(' has already been consumed by the caller (call) or matched by
// it (super_), stopping at a maximum of 255 per the 1-byte CALL operand.
func (c *compiler) argumentList() byte {
	var argCount int
	if !c.parser.check(token.RPAREN) {
		for {
			c.expression()
			if argCount == 255 {
				c.parser.errorAtPrevious("can't have more than 255 arguments")
			}
			argCount++
			if !c.parser.match(token.COMMA) {
				break
			}
		}
	}
	c.parser.consume(token.RPAREN, "expect ')' after arguments")
	return byte(argCount)
}

func variable(c *compiler, canAssign bool) {
	c.namedVariable(c.parser.previous, canAssign)
}

// namedVariable resolves name to a local slot, an upvalue index, or a global
// name constant (in that order of preference) and emits the matching
// get/set opcode pair, compiling an assignment's right-hand side first if
// canAssign and an '=' follows.
func (c *compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	var arg int

	if slot := c.resolveLocal(name.Lexeme); slot != -1 {
		arg, getOp, setOp = slot, bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if up := c.resolveUpvalue(name.Lexeme); up != -1 {
		arg, getOp, setOp = up, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		arg, getOp, setOp = int(c.identifierConstant(name)), bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && c.parser.match(token.EQUAL) {
		c.expression()
		c.emitBytes(byte(setOp), byte(arg))
	} else {
		c.emitBytes(byte(getOp), byte(arg))
	}
}

func this_(c *compiler, _ bool) {
	if c.class == nil {
		c.parser.errorAtPrevious("can't use 'this' outside of a class")
		return
	}
	// 'this' is never an assignment target.
	c.namedVariable(c.parser.previous, false)
}

var thisToken = token.Token{Kind: token.THIS, Lexeme: "this"}
var superToken = token.Token{Kind: token.SUPER, Lexeme: "super"}

func super_(c *compiler, _ bool) {
	switch {
	case c.class == nil:
		c.parser.errorAtPrevious("can't use 'super' outside of a class")
	case !c.class.hasSuperclass:
		c.parser.errorAtPrevious("can't use 'super' in a class with no superclass")
	}

	c.parser.consume(token.DOT, "expect '.' after 'super'")
	c.parser.consume(token.IDENT, "expect superclass method name")
	name := c.identifierConstant(c.parser.previous)

	c.namedVariable(thisToken, false)
	if c.parser.match(token.LPAREN) {
		argCount := c.argumentList()
		c.namedVariable(superToken, false)
		c.emitBytes(byte(bytecode.OpSuperInvoke), name)
		c.emitByte(argCount)
	} else {
		c.namedVariable(superToken, false)
		c.emitBytes(byte(bytecode.OpGetSuper), name)
	}
}
