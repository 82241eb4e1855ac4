package bytecode

import (
	"math"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"
)

func TestOpCodeString(t *testing.T) {
	for op := OpCode(0); op < opCodeCount; op++ {
		require.NotEmpty(t, op.String())
		require.NotContains(t, op.String(), "illegal")
	}
	require.Contains(t, OpCode(255).String(), "illegal")
}

func TestValueEqual(t *testing.T) {
	require.True(t, Equal(Nil, Nil))
	require.True(t, Equal(True, True))
	require.False(t, Equal(True, False))
	require.True(t, Equal(Number(1), Number(1)))
	require.False(t, Equal(Number(1), Number(2)))
	require.False(t, Equal(Nil, False))

	nan := Number(math.NaN())
	require.False(t, Equal(nan, nan))

	s1 := &String{Chars: "hi"}
	s2 := &String{Chars: "hi"}
	require.True(t, Equal(FromObj(s1), FromObj(s1)))
	require.False(t, Equal(FromObj(s1), FromObj(s2)), "distinct objects are distinct even with equal Chars; interning is the heap's job")
}

func TestTruthy(t *testing.T) {
	require.False(t, Truthy(Nil))
	require.False(t, Truthy(False))
	require.True(t, Truthy(True))
	require.True(t, Truthy(Number(0)))
	require.True(t, Truthy(FromObj(&String{Chars: ""})))
}

func TestChunkAddConstant(t *testing.T) {
	var c Chunk
	for i := 0; i < MaxConstants; i++ {
		_, ok := c.AddConstant(Number(float64(i)))
		require.True(t, ok)
	}
	_, ok := c.AddConstant(Number(0))
	require.False(t, ok, "257th constant must be rejected")
}

func TestDisassembleSimpleChunk(t *testing.T) {
	var c Chunk
	idx, _ := c.AddConstant(Number(1.2))
	c.Write(byte(OpConstant), 123)
	c.Write(byte(idx), 123)
	c.Write(byte(OpReturn), 123)

	out := Disassemble(&c, "test chunk")
	require.True(t, strings.Contains(out, "== test chunk =="))
	require.True(t, strings.Contains(out, "OP_CONSTANT"))
	require.True(t, strings.Contains(out, "OP_RETURN"))
}

// TestDisassembleIsIdempotent exercises spec §8's round-trip property:
// disassembling the same chunk twice must render identical text. Diffed with
// pretty rather than require.Equal so a future regression shows exactly
// which instruction line drifted, not just "not equal".
func TestDisassembleIsIdempotent(t *testing.T) {
	var c Chunk
	idx, _ := c.AddConstant(Number(1.2))
	c.Write(byte(OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(OpJumpIfFalse), 1)
	c.Write(0, 1)
	c.Write(5, 1)
	c.Write(byte(OpPop), 1)
	c.Write(byte(OpReturn), 2)

	first := Disassemble(&c, "idempotent")
	second := Disassemble(&c, "idempotent")
	if diff := pretty.Compare(first, second); diff != "" {
		t.Fatalf("disassembly is not idempotent:\n%s", diff)
	}
}
