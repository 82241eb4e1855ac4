package maincmd_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/embervm/internal/maincmd"
)

func TestMainRunsSourceFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/prog.ember"
	require.NoError(t, os.WriteFile(path, []byte(`print 1 + 2;`), 0o644))

	var out, errOut strings.Builder
	c := &maincmd.Cmd{Stdin: strings.NewReader(""), Stdout: &out, Stderr: &errOut}
	code := c.Main([]string{path})

	require.Equal(t, maincmd.ExitSuccess, code)
	require.Equal(t, "3\n", out.String())
	require.Empty(t, errOut.String())
}

func TestMainReportsCompileErrorExitCode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.ember"
	require.NoError(t, os.WriteFile(path, []byte(`var = ;`), 0o644))

	var out, errOut strings.Builder
	c := &maincmd.Cmd{Stdin: strings.NewReader(""), Stdout: &out, Stderr: &errOut}
	code := c.Main([]string{path})

	require.Equal(t, maincmd.ExitCompileError, code)
	require.NotEmpty(t, errOut.String())
}

func TestMainReportsRuntimeErrorExitCode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/runtime.ember"
	require.NoError(t, os.WriteFile(path, []byte(`print undeclared;`), 0o644))

	var out, errOut strings.Builder
	c := &maincmd.Cmd{Stdin: strings.NewReader(""), Stdout: &out, Stderr: &errOut}
	code := c.Main([]string{path})

	require.Equal(t, maincmd.ExitRuntimeError, code)
	require.NotEmpty(t, errOut.String())
}

func TestMainReplSharesGlobalsAcrossLines(t *testing.T) {
	var out, errOut strings.Builder
	in := strings.NewReader("var x = 1;\nprint x + 1;\n")
	c := &maincmd.Cmd{Stdin: in, Stdout: &out, Stderr: &errOut}
	code := c.Main(nil)

	require.Equal(t, maincmd.ExitSuccess, code)
	require.Contains(t, out.String(), "2\n")
}
