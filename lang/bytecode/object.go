package bytecode

import "fmt"

// ObjKind tags the different heap object shapes. Every heap allocation in the
// interpreter is one of these.
type ObjKind uint8

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
	ObjKindNative
	ObjKindClosure
	ObjKindUpvalue
	ObjKindClass
	ObjKindInstance
	ObjKindBoundMethod
)

func (k ObjKind) String() string {
	if int(k) < len(objKindNames) {
		return objKindNames[k]
	}
	return "unknown"
}

var objKindNames = [...]string{
	ObjKindString:      "string",
	ObjKindFunction:     "function",
	ObjKindNative:       "native function",
	ObjKindClosure:      "closure",
	ObjKindUpvalue:      "upvalue",
	ObjKindClass:        "class",
	ObjKindInstance:     "instance",
	ObjKindBoundMethod:  "bound method",
}

// Obj is implemented by every heap-allocated object kind. Obj, not Value, is
// what the garbage collector's intrusive linked list and mark bit track.
type Obj interface {
	ObjKind() ObjKind
	String() string

	// header returns the embedded bookkeeping the heap package uses to link
	// this object into the all-objects list and to mark/sweep it. It is
	// unexported so only objects in this package (via embedding ObjHeader) can
	// satisfy Obj.
	header() *ObjHeader
}

// ObjHeader is embedded by every concrete object kind. It carries the GC mark
// bit and the intrusive singly-linked "every object ever allocated" list
// pointer, so that every heap object is reachable from the heap's head
// regardless of whether anything else still references it.
type ObjHeader struct {
	Marked bool
	Next   Obj
	Size   int64 // bytes charged against the heap's allocation budget, set at link time
}

func (h *ObjHeader) header() *ObjHeader { return h }

// Table is the subset of the hash table (package table) that object kinds
// with named members need: Class methods and Instance fields. It is declared
// here, not imported, so that this package stays a leaf — package table
// implements it.
type Table interface {
	Get(key *String) (Value, bool)
	Set(key *String, val Value) bool
	Delete(key *String) bool
	Each(func(key *String, val Value) bool)
	Len() int
}

// String is an interned, immutable run of UTF-8 bytes plus its cached FNV-1a
// hash. Two live String objects with the same Chars are never both
// interned — see the heap package's intern pool — so string equality reduces
// to object identity.
type String struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (s *String) ObjKind() ObjKind { return ObjKindString }
func (s *String) String() string   { return s.Chars }

// Function is a compiled function body: its arity, how many upvalues its
// closures must capture, an optional name (nil for the implicit top-level
// script function), and the Chunk of bytecode that implements it.
type Function struct {
	ObjHeader
	Arity        int
	UpvalueCount int
	Name         *String
	Chunk        *Chunk
}

func (f *Function) ObjKind() ObjKind { return ObjKindFunction }
func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is the signature of a host-provided builtin.
type NativeFn func(argCount int, args []Value) (Value, error)

// Native wraps a host callback so it can be called like any other language
// value.
type Native struct {
	ObjHeader
	Name string
	Fn   NativeFn
}

func (n *Native) ObjKind() ObjKind { return ObjKindNative }
func (n *Native) String() string   { return fmt.Sprintf("<native fn %s>", n.Name) }

// Upvalue is an indirection to a captured local. While open, Location points
// into the VM's value stack; once the enclosing frame returns, the upvalue is
// closed, Location is retargeted to &Closed, and it owns its value inline.
type Upvalue struct {
	ObjHeader
	Location *Value
	Closed   Value

	// NextOpen is a link field for an intrusive open-upvalues list. The VM
	// does not use it (it keeps open upvalues in its own slice sorted by
	// descending stack slot); Close resets it to nil.
	NextOpen *Upvalue
}

func (u *Upvalue) ObjKind() ObjKind { return ObjKindUpvalue }
func (u *Upvalue) String() string   { return "upvalue" }

// Close detaches the upvalue from the stack slot it was borrowing, copying
// the slot's current value inline and retargeting Location at it.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
	u.NextOpen = nil
}

// Closure is a runtime function value: a non-owning reference to a compiled
// Function plus the upvalues it captured at the point of its MAKEFUNC-like
// creation (here: the CLOSURE instruction).
type Closure struct {
	ObjHeader
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjKind() ObjKind { return ObjKindClosure }
func (c *Closure) String() string   { return c.Function.String() }

// Class is a class declaration's runtime value: a name and a methods table
// mapping method name to Closure. Methods are copied into a subclass's table
// by INHERIT.
type Class struct {
	ObjHeader
	Name    *String
	Methods Table
}

func (c *Class) ObjKind() ObjKind { return ObjKindClass }
func (c *Class) String() string   { return c.Name.Chars }

// Instance is a class instantiation: a pointer to its Class and a fields
// table mapping field name to Value.
type Instance struct {
	ObjHeader
	Class  *Class
	Fields Table
}

func (i *Instance) ObjKind() ObjKind { return ObjKindInstance }
func (i *Instance) String() string   { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

// BoundMethod pairs a receiver with one of its class's methods, the runtime
// value produced by a `obj.method` property access (without a call) or by
// `super.method`.
type BoundMethod struct {
	ObjHeader
	Receiver Value
	Method   *Closure
}

func (b *BoundMethod) ObjKind() ObjKind { return ObjKindBoundMethod }
func (b *BoundMethod) String() string   { return b.Method.String() }
