// Package bytecode defines the data the compiler emits and the virtual
// machine executes: the tagged Value representation, the heap-object kinds,
// the Chunk bytecode container, and the opcode set, plus a disassembler for
// debugging. These are kept in one package because, as in the reference
// implementation, they are mutually recursive: a Chunk's constant pool holds
// Values, a Function object owns a Chunk, and Values may reference Functions.
package bytecode

import (
	"fmt"
	"strconv"
)

// Kind tags the 4 shapes a Value may take: nil, boolean, number, or a
// reference to a heap object. Values are plain data — copying a Value copies
// only the tag and its small payload, never the object it may point to.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is the machine's tagged word. The zero Value is nil, matching the
// language's own nil.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	obj     Obj
}

// Nil is the nil Value.
var Nil = Value{kind: KindNil}

// True and False are the two boolean Values.
var (
	True  = Value{kind: KindBool, boolean: true}
	False = Value{kind: KindBool, boolean: false}
)

// Bool returns the Value for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number returns the Value wrapping the float64 n.
func Number(n float64) Value { return Value{kind: KindNumber, number: n} }

// FromObj returns the Value referencing the heap object o.
func FromObj(o Obj) Value { return Value{kind: KindObj, obj: o} }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsObj() bool    { return v.kind == KindObj }

// AsBool returns v's boolean payload without checking v's kind (false for a
// non-bool Value); callers must check IsBool first, exactly as the opcodes
// that assume a particular Value shape do.
func (v Value) AsBool() bool { return v.boolean }

// AsNumber returns v's number payload without checking v's kind (0 for a
// non-number Value).
func (v Value) AsNumber() float64 { return v.number }

// AsObj returns v's object payload without checking v's kind (nil for a
// non-object Value).
func (v Value) AsObj() Obj { return v.obj }

// IsObjKind reports whether v is a heap reference of the given kind.
func (v Value) IsObjKind(k ObjKind) bool {
	return v.kind == KindObj && v.obj != nil && v.obj.ObjKind() == k
}

// AsString panics if v is not a string Value.
func (v Value) AsString() *String { return v.obj.(*String) }

// Truthy implements the language's falsy-ness rule: nil and false are falsy,
// every other value (including 0 and the empty string) is truthy.
func Truthy(v Value) bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.boolean
	default:
		return true
	}
}

// Equal implements the language's == operator on two Values of possibly
// different kinds. Numbers compare by IEEE-754 (so NaN != NaN); heap objects
// compare by identity, which is correct for interned strings too.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindNumber:
		return a.number == b.number
	case KindObj:
		return a.obj == b.obj
	default:
		return false
	}
}

// String renders v the way the `print` statement and error messages do.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.number)
	case KindObj:
		if v.obj == nil {
			return "nil"
		}
		return v.obj.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// TypeName returns a short description of v's runtime type, for error
// messages ("operand must be a number", etc).
func (v Value) TypeName() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindObj:
		return v.obj.ObjKind().String()
	default:
		return fmt.Sprintf("invalid(%d)", v.kind)
	}
}
