package vm_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/embervm/lang/vm"
)

func run(t *testing.T, src string) (string, error) {
	t.Helper()
	var out strings.Builder
	it := vm.New()
	it.Stdout = &out
	it.Initialize()
	defer it.TearDown()
	err := it.Interpret(src)
	return out.String(), err
}

func TestArithmeticPrecedence(t *testing.T) {
	out, err := run(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestStringInternIdentityGivesEquality(t *testing.T) {
	out, err := run(t, `var a = "hello"; var b = "hello"; print a == b;`)
	require.NoError(t, err)
	require.Equal(t, "true\n", out)
}

func TestClosureCapturesAndPersistsUpvalue(t *testing.T) {
	src := `
		fun f() {
			var x = 0;
			fun g() {
				x = x + 1;
				return x;
			}
			return g;
		}
		var c = f();
		print c();
		print c();
		print c();
	`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestInheritedMethodDispatch(t *testing.T) {
	src := `
		class A { greet() { print "hi"; } }
		class B < A {}
		B().greet();
	`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, "hi\n", out)
}

func TestSuperInitChainsConstructors(t *testing.T) {
	src := `
		class A { init(x) { this.x = x; } }
		class B < A { init(x) { super.init(x * 2); } }
		print B(21).x;
	`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, "42\n", out)
}

func TestForLoopPrintsEachIteration(t *testing.T) {
	src := `for (var i = 0; i < 3; i = i + 1) print i;`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, "0\n1\n2\n", out)
}

func TestNaNIsNeverEqualToItself(t *testing.T) {
	out, err := run(t, `var a = 0; var b = 0; print (a / a) == (b / b);`)
	require.NoError(t, err)
	require.Equal(t, "false\n", out)
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	_, err := run(t, `print undeclared;`)
	require.Error(t, err)
	var rerr *vm.RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Contains(t, rerr.Message, "undefined variable")
}

func TestSetGlobalErrorsWithoutWriting(t *testing.T) {
	// Open question (a) resolved per DESIGN.md: SET_GLOBAL on an absent name
	// is a runtime error and must not create the global as a side effect.
	it := vm.New()
	var out strings.Builder
	it.Stdout = &out
	it.Initialize()
	defer it.TearDown()

	err := it.Interpret(`
		fun f() { missing = 1; }
		f();
	`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "undefined variable")

	err = it.Interpret(`print missing;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "undefined variable")
}

func TestCallingNonCallableIsRuntimeError(t *testing.T) {
	_, err := run(t, `var x = 1; x();`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "can only call")
}

func TestWrongArityIsRuntimeError(t *testing.T) {
	_, err := run(t, `fun f(a, b) { return a + b; } f(1);`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected 2 arguments")
}

func TestStackOverflowAtSixtyFiveFrames(t *testing.T) {
	const fn = `
		fun recurse(n) {
			if (n <= 0) return 0;
			return 1 + recurse(n - 1);
		}
	`
	// recurse(62) needs 63 frames on top of the script's: 64 in all.
	out, err := run(t, fn+`print recurse(62);`)
	require.NoError(t, err)
	require.Equal(t, "62\n", out)

	// recurse(63) needs a 65th frame.
	_, err = run(t, fn+`print recurse(63);`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stack overflow")
}

func TestFieldsAreDynamicPerInstance(t *testing.T) {
	src := `
		class Box {}
		var a = Box();
		var b = Box();
		a.value = 1;
		b.value = 2;
		print a.value;
		print b.value;
	`
	out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n", out)
}

func TestClockNativeReturnsNumberAndIgnoresExtraArgs(t *testing.T) {
	out, err := run(t, `print clock() >= 0; print clock(1, 2, 3) >= 0;`)
	require.NoError(t, err)
	require.Equal(t, "true\ntrue\n", out)
}

func TestMultipleInterpretCallsShareGlobals(t *testing.T) {
	it := vm.New()
	var out strings.Builder
	it.Stdout = &out
	it.Initialize()
	defer it.TearDown()

	require.NoError(t, it.Interpret(`var counter = 0;`))
	require.NoError(t, it.Interpret(`counter = counter + 1; print counter;`))
	require.NoError(t, it.Interpret(`counter = counter + 1; print counter;`))
	require.Equal(t, "1\n2\n", out.String())
}

func TestGCStressDoesNotCorruptLiveState(t *testing.T) {
	src := `
		class Node {
			init(value) {
				this.value = value;
				this.next = nil;
			}
		}
		var head = nil;
		for (var i = 0; i < 50; i = i + 1) {
			var n = Node(i);
			n.next = head;
			head = n;
		}
		var n = head;
		var sum = 0;
		while (n != nil) {
			sum = sum + n.value;
			n = n.next;
		}
		print sum;
	`
	it := vm.New()
	var out strings.Builder
	it.Stdout = &out
	it.StressGC = true
	it.Initialize()
	defer it.TearDown()

	require.NoError(t, it.Interpret(src))
	require.Equal(t, "1225\n", out.String())
}

func TestTooManyParametersIsCompileError(t *testing.T) {
	var b strings.Builder
	b.WriteString("fun f(")
	for i := 0; i < 256; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("a" + strconv.Itoa(i))
	}
	b.WriteString(") {}")

	_, err := run(t, b.String())
	require.Error(t, err)
}
