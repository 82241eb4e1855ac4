package compiler

import (
	"io"
	"os"

	"github.com/mna/embervm/lang/scanner"
	"github.com/mna/embervm/lang/token"
)

// parser holds the token window and error-recovery state shared by every
// nested function compiler; there is exactly one parser per Compile call,
// threaded through every *compiler via its parser field.
type parser struct {
	scanner *scanner.Scanner
	alloc   Allocator

	current, previous token.Token

	errors    ErrorList
	panicMode bool

	// currentCompiler is the innermost *compiler actively compiling a function
	// body right now; its enclosing chain is exactly the set of functions
	// whose bytecode is mid-construction and not yet reachable from any
	// rooted Value. Compile's GC root marker walks this chain on every
	// collection that fires during compilation.
	currentCompiler *compiler

	// printChunks, when true, disassembles every compiled function's chunk to
	// trace (default os.Stdout) as soon as it finishes compiling.
	printChunks bool
	trace       io.Writer
}

func (p *parser) traceOut() io.Writer {
	if p.trace != nil {
		return p.trace
	}
	return os.Stdout
}

// advance pulls the next non-error token into current, reporting every
// ILLEGAL token the scanner hands back along the way.
func (p *parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Scan()
		if p.current.Kind != token.ILLEGAL {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

// check reports whether current is of the given kind, without consuming it.
func (p *parser) check(k token.Kind) bool { return p.current.Kind == k }

// match consumes current and returns true if it is of the given kind,
// otherwise leaves it in place and returns false.
func (p *parser) match(k token.Kind) bool {
	if !p.check(k) {
		return false
	}
	p.advance()
	return true
}

// consume requires current to be of the given kind, advancing past it, or
// reports msg as a compile error at the unexpected token.
func (p *parser) consume(k token.Kind, msg string) {
	if p.current.Kind == k {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *parser) errorAtPrevious(msg string) { p.errorAt(p.previous, msg) }

// errorAt records a compile error at tok, unless the parser is already in
// panic mode (suppressing the cascade of spurious errors a single syntax
// mistake tends to produce until synchronize resets it).
func (p *parser) errorAt(tok token.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	lexeme := tok.Lexeme
	if tok.Kind == token.EOF {
		lexeme = "end of file"
	}
	p.errors = append(p.errors, &Error{Line: tok.Line, Lexeme: lexeme, Message: msg})
}

// synchronize discards tokens until it finds one that plausibly starts a new
// statement, so one syntax error is reported rather than a flood of
// follow-on errors from parsing the rest of the broken statement as if it
// were well-formed.
func (p *parser) synchronize() {
	p.panicMode = false

	for p.current.Kind != token.EOF {
		if p.previous.Kind == token.SEMICOLON {
			return
		}
		switch p.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		p.advance()
	}
}
