// Package resp implements the RESP (Redis Serialization Protocol) wire
// format used by Altilium's client connections: framing, decoding, and
// encoding of the five RESP value shapes.
package resp

// Type is the one-byte RESP type tag that prefixes every frame.
type Type byte

const (
	SimpleString Type = '+'
	Error        Type = '-'
	Integer      Type = ':'
	Bulk         Type = '$'
	Array        Type = '*'
)

// Value is a decoded (or to-be-encoded) RESP value. Only the fields that
// matter for Type are populated; the zero Value is not meaningful on its
// own and should always carry an explicit Type.
type Value struct {
	Type Type

	// Str holds the payload for SimpleString and Error.
	Str string

	// Int holds the payload for Integer.
	Int int64

	// Bulk holds the payload for Bulk. Null is distinguished from
	// empty by BulkNull: a zero-length non-null bulk has Bulk == []byte{}.
	Bulk     []byte
	BulkNull bool

	// Array holds the elements for Array. A null array is distinguished
	// by ArrayNull; Array is nil in that case.
	Array     []Value
	ArrayNull bool
}

func NewSimpleString(s string) Value { return Value{Type: SimpleString, Str: s} }
func NewError(s string) Value        { return Value{Type: Error, Str: s} }
func NewInteger(n int64) Value       { return Value{Type: Integer, Int: n} }

func NewBulk(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{Type: Bulk, Bulk: b}
}

func NewBulkString(s string) Value { return NewBulk([]byte(s)) }

func NewNullBulk() Value { return Value{Type: Bulk, BulkNull: true} }

func NewArray(items []Value) Value { return Value{Type: Array, Array: items} }

func NewNullArray() Value { return Value{Type: Array, ArrayNull: true} }

// IsNull reports whether a Bulk or Array value represents RESP's null.
func (v Value) IsNull() bool {
	switch v.Type {
	case Bulk:
		return v.BulkNull
	case Array:
		return v.ArrayNull
	default:
		return false
	}
}
