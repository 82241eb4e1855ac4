package compiler_test

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/compiler"
	"github.com/mna/embervm/lang/heap"
)

func TestCompileArithmeticPrecedence(t *testing.T) {
	h := heap.New()
	fn, err := compiler.Compile("print 1 + 2 * 3;", h, compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, fn)
	// 1, 2, 3 constants, MULTIPLY before ADD, then PRINT.
	require.Equal(t, 3, len(fn.Chunk.Constants))
	require.Equal(t, []byte{
		byte(bytecode.OpConstant), 0,
		byte(bytecode.OpConstant), 1,
		byte(bytecode.OpConstant), 2,
		byte(bytecode.OpMultiply),
		byte(bytecode.OpAdd),
		byte(bytecode.OpPrint),
		byte(bytecode.OpNil),
		byte(bytecode.OpReturn),
	}, fn.Chunk.Code)
}

func TestCompileVariablesAndScopes(t *testing.T) {
	h := heap.New()
	src := `
		var a = 1;
		{
			var b = 2;
			print a + b;
		}
	`
	fn, err := compiler.Compile(src, h, compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileFunctionAndClosure(t *testing.T) {
	h := heap.New()
	src := `
		fun makeCounter() {
			var i = 0;
			fun count() {
				i = i + 1;
				return i;
			}
			return count;
		}
		var counter = makeCounter();
		print counter();
	`
	fn, err := compiler.Compile(src, h, compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileClassInheritanceAndSuper(t *testing.T) {
	h := heap.New()
	src := `
		class Animal {
			speak() {
				print "...";
			}
		}
		class Dog < Animal {
			speak() {
				super.speak();
				print "Woof";
			}
		}
		var d = Dog();
		d.speak();
	`
	fn, err := compiler.Compile(src, h, compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileForLoopDesugarsToWhile(t *testing.T) {
	h := heap.New()
	src := `
		for (var i = 0; i < 3; i = i + 1) {
			print i;
		}
	`
	fn, err := compiler.Compile(src, h, compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileErrorsAccumulateAndSynchronize(t *testing.T) {
	h := heap.New()
	// Two independent syntax errors, each on its own statement, should both be
	// reported — the first missing semicolon must not swallow the second.
	src := `
		var a = 1
		var b = 2
	`
	_, err := compiler.Compile(src, h, compiler.Options{})
	require.Error(t, err)

	var el compiler.ErrorList
	require.True(t, errors.As(err, &el))
	require.GreaterOrEqual(t, len(el), 2)
}

func TestCompileThisOutsideClassIsAnError(t *testing.T) {
	h := heap.New()
	_, err := compiler.Compile(`print this;`, h, compiler.Options{})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "'this'"))
}

func TestCompileReturnOutsideFunctionIsAnError(t *testing.T) {
	h := heap.New()
	_, err := compiler.Compile(`return 1;`, h, compiler.Options{})
	require.Error(t, err)
}

func TestCompileTooManyConstantsIsAnError(t *testing.T) {
	h := heap.New()
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("print ")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(".5;\n")
	}
	_, err := compiler.Compile(b.String(), h, compiler.Options{})
	require.Error(t, err)
}
