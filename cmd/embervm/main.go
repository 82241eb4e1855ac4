// Command embervm runs the embervm source file given as its single argument,
// or starts an interactive REPL when given none.
package main

import (
	"fmt"
	"os"

	"github.com/mna/embervm/internal/maincmd"
)

func main() {
	cfg, err := maincmd.ParseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(maincmd.ExitUsageError)
	}

	c := &maincmd.Cmd{
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(c.Main(os.Args[1:]))
}
