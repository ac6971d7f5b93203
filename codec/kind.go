// Package codec implements the tagged wire encoding used by the DBE IPC
// protocol. Every value on the wire is preceded by a one-byte type tag and
// every fixed-width integer byte is transmitted as two hexadecimal digits.
package codec

import (
	"fmt"
	"io"
)

// Kind is the one-byte type tag that precedes every encoded value.
type Kind byte

const (
	KindProgress Kind = iota
	KindInteger
	KindBoolean
	KindLong
	KindString
	KindDouble
	KindArray
	KindObject
	KindChar
)

const (
	// NullLength is the length sentinel for an absent string or array.
	NullLength = int32(-1)

	// DoublePrecision is the number of fractional digits used to render doubles.
	DoublePrecision = 12
)

// Char is a single-byte character value. It is distinct from uint8 so that
// WriteValue can tell a char from a small integer.
type Char byte

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindInteger:
		return "int"
	case KindBoolean:
		return "bool"
	case KindLong:
		return "long"
	case KindString:
		return "string"
	case KindDouble:
		return "double"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindChar:
		return "char"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Valid reports whether k is a tag defined by the protocol.
func (k Kind) Valid() bool {
	return k <= KindChar
}

// ByteReader is the byte source the Decoder reads from. Request bodies and
// buffered streams both satisfy it.
type ByteReader interface {
	io.Reader
	io.ByteReader
}
