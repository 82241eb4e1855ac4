// Package maincmd implements the embervm CLI: the external collaborator
// spec.md §1 explicitly places out of scope (source file I/O, command-line
// parsing, REPL prompt, exit-code convention). It is a thin shell around
// package vm — no language semantics live here.
package maincmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v6"

	"github.com/mna/embervm/lang/vm"
)

// Exit codes follow spec.md §6's CLI contract: 0 success, 65 compile error,
// 70 runtime error.
const (
	ExitSuccess      = 0
	ExitCompileError = 65
	ExitRuntimeError = 70
	ExitUsageError   = 64
)

// Config holds every interpreter debug toggle, sourced from the environment
// rather than flags — matching mna/nenuphar's internal/maincmd, which reads
// its own CLI config the same way (there: via mainer's EnvVars passthrough;
// here: directly via env/v6, since embervm does not carry mna/mainer, which
// is tied to the teacher's own module path).
type Config struct {
	TraceExecution bool `env:"EMBERVM_TRACE_EXECUTION" envDefault:"false"`
	TraceGC        bool `env:"EMBERVM_TRACE_GC" envDefault:"false"`
	StressGC       bool `env:"EMBERVM_STRESS_GC" envDefault:"false"`
	PrintChunks    bool `env:"EMBERVM_PRINT_CHUNKS" envDefault:"false"`
}

// ParseConfig reads Config from the process environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment config: %w", err)
	}
	return cfg, nil
}

// Cmd is the embervm binary's entire behavior: run a source file given on
// the command line, or fall back to an interactive line-at-a-time REPL.
type Cmd struct {
	Config Config

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Main runs the command for args (conventionally os.Args[1:]) and returns
// the process exit code.
func (c *Cmd) Main(args []string) int {
	it := vm.New()
	it.Stdout = c.Stdout
	it.Stderr = c.Stderr
	it.TraceExecution = c.Config.TraceExecution
	it.TraceGC = c.Config.TraceGC
	it.StressGC = c.Config.StressGC
	it.PrintChunkOnCompile = c.Config.PrintChunks
	it.Initialize()
	defer it.TearDown()

	switch len(args) {
	case 0:
		return c.repl(it)
	case 1:
		return c.runFile(it, args[0])
	default:
		fmt.Fprintln(c.Stderr, "usage: embervm [path]")
		return ExitUsageError
	}
}

// runFile compiles and runs the entire contents of path as one program.
func (c *Cmd) runFile(it *vm.Interpreter, path string) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(c.Stderr, "can't open file '%s': %s\n", path, err)
		return ExitUsageError
	}
	return c.interpret(it, string(src))
}

// repl reads and runs one line at a time from Stdin, sharing globals across
// lines on the one Interpreter, matching the reference implementation's
// repl() loop (spec.md §9/SPEC_FULL.md §12).
func (c *Cmd) repl(it *vm.Interpreter) int {
	scanner := bufio.NewScanner(c.Stdin)
	for {
		fmt.Fprint(c.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.Stdout)
			return ExitSuccess
		}
		// A REPL line's errors are reported but never terminate the session.
		c.interpret(it, scanner.Text())
	}
}

func (c *Cmd) interpret(it *vm.Interpreter, src string) int {
	err := it.Interpret(src)
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintln(c.Stderr, err)
	if _, ok := err.(*vm.RuntimeError); ok {
		return ExitRuntimeError
	}
	return ExitCompileError
}
