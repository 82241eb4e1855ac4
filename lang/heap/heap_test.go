package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/heap"
)

func TestInternStringDeduplicates(t *testing.T) {
	h := heap.New()
	a := h.InternString("hello")
	b := h.InternString("hello")
	require.Same(t, a, b)

	c := h.InternString("goodbye")
	require.NotSame(t, a, c)
}

func TestHashStringMatchesReferenceConstants(t *testing.T) {
	// FNV-1a of the empty string is just the offset basis.
	require.Equal(t, uint32(2166136261), heap.HashString(""))
}

func TestAllocateTracksBytes(t *testing.T) {
	h := heap.New()
	require.Equal(t, int64(0), h.BytesAllocated())
	h.InternString("abc")
	require.Greater(t, h.BytesAllocated(), int64(0))
}

// fixture builds a small live object graph rooted at a single global slot:
// global -> instance -> class -> method closure -> function, plus an
// unreachable string that must not survive a collection.
type fixture struct {
	h        *heap.Heap
	global   bytecode.Value
	garbage  *bytecode.String
	rootKeep []bytecode.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := heap.New()

	name := h.InternString("Greeter")
	class := h.AllocateClass(name)

	methodName := h.InternString("greet")
	fn := h.AllocateFunction()
	fn.Name = methodName
	closure := h.AllocateClosure(fn, 0)
	class.Methods.Set(methodName, bytecode.FromObj(closure))

	inst := h.AllocateInstance(class)
	global := bytecode.FromObj(inst)

	garbage := h.InternString("unreachable")

	f := &fixture{h: h, global: global, garbage: garbage}
	h.SetRootMarker(func(hp *heap.Heap) {
		for _, v := range f.rootKeep {
			hp.MarkValue(v)
		}
	})
	f.rootKeep = []bytecode.Value{global}
	return f
}

func TestCollectKeepsReachableGraph(t *testing.T) {
	f := newFixture(t)
	f.h.Collect()

	inst := f.global.AsObj().(*bytecode.Instance)
	require.False(t, inst.Marked, "sweep clears the mark bit on survivors")

	v, ok := inst.Class.Methods.Get(f.h.InternString("greet"))
	require.True(t, ok)
	require.Equal(t, bytecode.ObjKindClosure, v.AsObj().ObjKind())
}

func TestCollectDropsUnreachableInternedString(t *testing.T) {
	f := newFixture(t)
	require.NotNil(t, f.garbage)

	f.h.Collect()

	// The intern pool must not keep the unreferenced string alive: a fresh
	// InternString call for the same content allocates a brand new object
	// rather than returning the old (collected) one.
	again := f.h.InternString("unreachable")
	require.NotSame(t, f.garbage, again, "weak intern sweep should have dropped the old entry")
}

func TestStressGCCollectsOnEveryAllocation(t *testing.T) {
	h := heap.New()
	h.StressGC = true
	h.SetRootMarker(func(*heap.Heap) {})

	for i := 0; i < 50; i++ {
		h.InternString(string(rune('a' + i%26)))
	}
	// Nothing is rooted, so repeated collections should keep the heap from
	// growing without bound; this mostly asserts Collect doesn't panic under
	// constant pressure.
	require.NotPanics(t, func() { h.Collect() })
}
