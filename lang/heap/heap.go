// Package heap implements the object allocator, the tri-color mark-sweep
// garbage collector, and the string intern pool shared by the compiler and
// the virtual machine.
package heap

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/mna/embervm/lang/bytecode"
	"github.com/mna/embervm/lang/table"
)

// initialNextGC is the byte threshold that triggers the first collection.
// Chosen generously so small scripts never collect; matches the reference
// implementation's 1 MiB starting point.
const initialNextGC = 1 << 20

// growthFactor is applied to bytesAllocated after each collection to compute
// the next threshold.
const growthFactor = 2

// Heap owns every object ever allocated by a single interpreter: the
// intrusive all-objects list, the string intern pool, and the GC's
// bytes-allocated bookkeeping. It is not safe for concurrent use — the
// language has no concurrency (spec §5).
type Heap struct {
	objects bytecode.Obj // head of the intrusive "every object" list
	intern  *table.Table // weak-keyed: entries are dropped if unmarked after a GC

	bytesAllocated int64
	nextGC         int64
	gray           []bytecode.Obj

	// StressGC, when true, forces a collection before every allocation instead
	// of only when bytesAllocated exceeds nextGC. Intended for tests that want
	// to flush out GC-safety bugs (premature frees) on every possible schedule.
	StressGC bool

	// TraceGC, when true, logs every allocation, collection, and free to Trace.
	TraceGC bool
	Trace   io.Writer

	// markRoots is supplied by the owning VM via SetRootMarker; it is
	// responsible for marking the VM stack, call frames, open upvalues, and
	// globals. A Heap with no root marker set never collects (there would be
	// nothing to keep alive).
	markRoots func(*Heap)

	// compilerRoots is supplied by the active Compile call via
	// SetCompilerRootMarker; it marks the currently-compiling function chain
	// (walking each nested compiler's enclosing link), matching clox's
	// markCompilerRoots. It is nil whenever no compilation is in progress.
	compilerRoots func(*Heap)
}

// New returns an empty Heap with an empty intern pool.
func New() *Heap {
	return &Heap{
		intern: table.New(),
		nextGC: initialNextGC,
		Trace:  os.Stderr,
	}
}

// SetRootMarker installs the callback the collector uses to mark every GC
// root. It must be called once before any allocation that might trigger a
// collection (in practice, immediately after the owning VM is constructed).
func (h *Heap) SetRootMarker(fn func(*Heap)) { h.markRoots = fn }

// SetCompilerRootMarker installs the callback the collector uses to mark the
// currently-compiling function chain, for the duration of a single Compile
// call. Compile installs it before compiling and clears it (via
// ClearCompilerRootMarker) once compilation finishes, mirroring clox's
// markCompilerRoots, which only runs while a compiler is active.
func (h *Heap) SetCompilerRootMarker(fn func(*Heap)) { h.compilerRoots = fn }

// ClearCompilerRootMarker removes the compiler root marker installed by
// SetCompilerRootMarker. Called once Compile has finished, so a later
// collection triggered by VM execution does not walk a stale compiler chain.
func (h *Heap) ClearCompilerRootMarker() { h.compilerRoots = nil }

// BytesAllocated returns the current estimate of live heap bytes, for tests
// and diagnostics.
func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }

// NextGC returns the threshold at which the next collection will trigger.
func (h *Heap) NextGC() int64 { return h.nextGC }

func (h *Heap) link(o bytecode.Obj, size int64) {
	hdr := o.header()
	hdr.Next = h.objects
	hdr.Size = size
	h.objects = o
	h.bytesAllocated += size
	if h.TraceGC {
		fmt.Fprintf(h.Trace, "%p allocate %d bytes for %s\n", o, size, o.ObjKind())
	}
}

// collectIfNeeded runs a collection before a growing allocation if stress
// mode is on or the byte budget is exhausted, per spec §4.4.
func (h *Heap) collectIfNeeded() {
	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// Collect runs one full tri-color mark-sweep cycle: mark every root reachable
// object (via markRoots, then compilerRoots if a compilation is in progress),
// trace from the gray worklist until it is empty, drop any intern-pool entry
// that went unmarked (the weak-reference sweep), then free every heap object
// that is still unmarked. A Heap with no root marker installed is a no-op,
// since nothing could be known live.
func (h *Heap) Collect() {
	if h.markRoots == nil {
		return
	}
	if h.TraceGC {
		fmt.Fprintln(h.Trace, "-- gc begin")
	}

	before := h.bytesAllocated
	h.markRoots(h)
	if h.compilerRoots != nil {
		h.compilerRoots(h)
	}
	h.traceReferences()
	h.sweepWeakIntern()
	h.sweep()
	h.nextGC = h.bytesAllocated * growthFactor
	if h.nextGC < initialNextGC {
		h.nextGC = initialNextGC
	}

	if h.TraceGC {
		fmt.Fprintf(h.Trace, "-- gc end, collected %d bytes (%d -> %d), next at %d\n",
			before-h.bytesAllocated, before, h.bytesAllocated, h.nextGC)
	}
}

// MarkValue marks v's underlying object, if it has one. Non-object values
// (nil, bool, number) need no GC treatment — they carry no heap reference.
func (h *Heap) MarkValue(v bytecode.Value) {
	if v.IsObj() {
		h.MarkObject(v.AsObj())
	}
}

// MarkObject marks o black-pending (gray) if it was white, and pushes it onto
// the gray worklist for traceReferences to blacken. A nil Obj or an
// already-marked one is a no-op, which is what makes cyclic object graphs
// (an instance field cycle, a class method closing over its own class) safe
// to trace without looping forever.
func (h *Heap) MarkObject(o bytecode.Obj) {
	if isNilObj(o) {
		return
	}
	hdr := o.header()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.gray = append(h.gray, o)
}

// isNilObj reports whether o is either the nil interface or an interface
// wrapping a nil concrete pointer (e.g. a Function with no Name). Heap object
// fields are frequently left as a nil *String/*Class, so every marking site
// that reads one of those fields must go through this, not a plain `== nil`.
func isNilObj(o bytecode.Obj) bool {
	switch v := o.(type) {
	case nil:
		return true
	case *bytecode.String:
		return v == nil
	case *bytecode.Function:
		return v == nil
	case *bytecode.Native:
		return v == nil
	case *bytecode.Closure:
		return v == nil
	case *bytecode.Upvalue:
		return v == nil
	case *bytecode.Class:
		return v == nil
	case *bytecode.Instance:
		return v == nil
	case *bytecode.BoundMethod:
		return v == nil
	default:
		return false
	}
}

// traceReferences repeatedly pops the gray worklist and blackens each object,
// marking everything it references, until the worklist is empty.
func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
}

// blacken marks every object directly reachable from o. This type switch is
// the GC's one and only place that needs to know the shape of every object
// kind's outgoing references (spec §4.4 step 2).
func (h *Heap) blacken(o bytecode.Obj) {
	if h.TraceGC {
		fmt.Fprintf(h.Trace, "%p blacken %s\n", o, o.ObjKind())
	}
	switch v := o.(type) {
	case *bytecode.String, *bytecode.Native:
		// no outgoing references
	case *bytecode.Upvalue:
		h.MarkValue(*v.Location)
	case *bytecode.Function:
		h.MarkObject(v.Name)
		for _, c := range v.Chunk.Constants {
			h.MarkValue(c)
		}
	case *bytecode.Closure:
		h.MarkObject(v.Function)
		for _, u := range v.Upvalues {
			h.MarkObject(u)
		}
	case *bytecode.Class:
		h.MarkObject(v.Name)
		v.Methods.Each(func(key *bytecode.String, val bytecode.Value) bool {
			h.MarkObject(key)
			h.MarkValue(val)
			return true
		})
	case *bytecode.Instance:
		h.MarkObject(v.Class)
		v.Fields.Each(func(key *bytecode.String, val bytecode.Value) bool {
			h.MarkObject(key)
			h.MarkValue(val)
			return true
		})
	case *bytecode.BoundMethod:
		h.MarkValue(v.Receiver)
		h.MarkObject(v.Method)
	}
}

// sweepWeakIntern drops every intern-pool entry whose key string went
// unmarked this cycle — the intern pool must never be the reason a string
// outlives every other reference to it (spec §4.4 "weak sweep").
func (h *Heap) sweepWeakIntern() {
	var dead []*bytecode.String
	h.intern.Each(func(key *bytecode.String, _ bytecode.Value) bool {
		if !key.Marked {
			dead = append(dead, key)
		}
		return true
	})
	for _, k := range dead {
		h.intern.Delete(k)
	}
}

// sweep walks the intrusive all-objects list, freeing every object that
// stayed white (unreached by traceReferences) and clearing the mark bit on
// every survivor so the next cycle starts white again.
func (h *Heap) sweep() {
	var prev bytecode.Obj
	obj := h.objects
	for obj != nil {
		hdr := obj.header()
		if hdr.Marked {
			hdr.Marked = false
			prev = obj
			obj = hdr.Next
			continue
		}

		unreached := obj
		obj = hdr.Next
		if prev == nil {
			h.objects = obj
		} else {
			prev.header().Next = obj
		}
		h.bytesAllocated -= hdr.Size
		if h.TraceGC {
			fmt.Fprintf(h.Trace, "%p free %s\n", unreached, unreached.ObjKind())
		}
	}
}

// fnvOffset and fnvPrime are the FNV-1a 32-bit constants used to hash
// interned strings (matching the reference implementation).
const (
	fnvOffset uint32 = 2166136261
	fnvPrime  uint32 = 16777619
)

// HashString computes the FNV-1a hash of s.
func HashString(s string) uint32 {
	h := fnvOffset
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

// InternString returns the canonical *String for chars, allocating and
// interning a new one only if an equal string is not already interned. This
// is the sole mechanism by which string identity (and therefore correct,
// O(1) string equality) is guaranteed.
func (h *Heap) InternString(chars string) *bytecode.String {
	hash := HashString(chars)
	if s := h.intern.FindString(chars, hash); s != nil {
		return s
	}

	h.collectIfNeeded()
	s := &bytecode.String{Chars: chars, Hash: hash}
	h.link(s, int64(unsafe.Sizeof(*s))+int64(len(chars)))
	// The intern pool is a weak set: the value carried alongside each key is
	// unused (Nil). Presence as a key is what keeps the entry interesting to
	// the weak sweep in Collect.
	h.intern.Set(s, bytecode.Nil)
	return s
}

// AllocateFunction returns a new, empty Function object (its Chunk must still
// be filled in by the caller).
func (h *Heap) AllocateFunction() *bytecode.Function {
	h.collectIfNeeded()
	fn := &bytecode.Function{Chunk: &bytecode.Chunk{}}
	h.link(fn, int64(unsafe.Sizeof(*fn)))
	return fn
}

// AllocateNative wraps fn as a callable native function value named name.
func (h *Heap) AllocateNative(name string, fn bytecode.NativeFn) *bytecode.Native {
	h.collectIfNeeded()
	n := &bytecode.Native{Name: name, Fn: fn}
	h.link(n, int64(unsafe.Sizeof(*n)))
	return n
}

// AllocateClosure wraps fn with nupvalues empty upvalue slots ready to be
// filled in by the CLOSURE instruction.
func (h *Heap) AllocateClosure(fn *bytecode.Function, nupvalues int) *bytecode.Closure {
	h.collectIfNeeded()
	c := &bytecode.Closure{Function: fn, Upvalues: make([]*bytecode.Upvalue, nupvalues)}
	h.link(c, int64(unsafe.Sizeof(*c))+int64(nupvalues)*int64(unsafe.Sizeof((*bytecode.Upvalue)(nil))))
	return c
}

// AllocateUpvalue returns a new open upvalue borrowing the given stack slot.
func (h *Heap) AllocateUpvalue(slot *bytecode.Value) *bytecode.Upvalue {
	h.collectIfNeeded()
	u := &bytecode.Upvalue{Location: slot}
	h.link(u, int64(unsafe.Sizeof(*u)))
	return u
}

// AllocateClass returns a new Class with an empty methods table.
func (h *Heap) AllocateClass(name *bytecode.String) *bytecode.Class {
	h.collectIfNeeded()
	c := &bytecode.Class{Name: name, Methods: table.New()}
	h.link(c, int64(unsafe.Sizeof(*c)))
	return c
}

// AllocateInstance returns a new Instance of class with an empty fields
// table.
func (h *Heap) AllocateInstance(class *bytecode.Class) *bytecode.Instance {
	h.collectIfNeeded()
	i := &bytecode.Instance{Class: class, Fields: table.New()}
	h.link(i, int64(unsafe.Sizeof(*i)))
	return i
}

// AllocateBoundMethod pairs receiver with method.
func (h *Heap) AllocateBoundMethod(receiver bytecode.Value, method *bytecode.Closure) *bytecode.BoundMethod {
	h.collectIfNeeded()
	b := &bytecode.BoundMethod{Receiver: receiver, Method: method}
	h.link(b, int64(unsafe.Sizeof(*b)))
	return b
}
