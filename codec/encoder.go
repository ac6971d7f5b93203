package codec

import (
	"math"
	"strconv"

	"github.com/go-pantheon/fabrica-util/errors"
)

// Encoder appends tagged values to a byte buffer. Writes of supported values
// never fail; only WriteValue can reject a Go type it does not know.
type Encoder struct {
	buf []byte
}

func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf[:0]}
}

func (e *Encoder) Bytes() []byte {
	return e.buf
}

func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) Cap() int {
	return cap(e.buf)
}

// Reset truncates the buffer and keeps its storage.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Grow ensures room for n more bytes.
func (e *Encoder) Grow(n int) {
	if cap(e.buf)-len(e.buf) >= n {
		return
	}

	nb := make([]byte, len(e.buf), 2*cap(e.buf)+n)
	copy(nb, e.buf)
	e.buf = nb
}

func (e *Encoder) writeKind(k Kind) {
	e.buf = AppendHexByte(e.buf, byte(k))
}

func (e *Encoder) writeRawString(s string) {
	e.buf = AppendInt32(e.buf, int32(len(s)))
	e.buf = append(e.buf, s...)
}

func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'f', DoublePrecision, 64)
}

func (e *Encoder) WriteInt(v int32) {
	e.writeKind(KindInteger)
	e.buf = AppendInt32(e.buf, v)
}

func (e *Encoder) WriteLong(v int64) {
	e.writeKind(KindLong)
	e.buf = AppendInt64(e.buf, v)
}

func (e *Encoder) WriteBool(v bool) {
	e.writeKind(KindBoolean)
	e.buf = AppendHexByte(e.buf, boolByte(v))
}

func (e *Encoder) WriteChar(v Char) {
	e.writeKind(KindChar)
	e.buf = AppendHexByte(e.buf, byte(v))
}

func (e *Encoder) WriteDouble(v float64) {
	e.writeKind(KindDouble)
	e.writeRawString(formatDouble(v))
}

func (e *Encoder) WriteString(s string) {
	e.writeKind(KindString)
	e.writeRawString(s)
}

// WriteNullString writes a string value carrying the null length sentinel.
func (e *Encoder) WriteNullString() {
	e.writeKind(KindString)
	e.buf = AppendInt32(e.buf, NullLength)
}

// WriteNullArray writes an array of elem whose length is the null sentinel.
func (e *Encoder) WriteNullArray(elem Kind) {
	e.writeKind(KindArray)
	e.writeKind(elem)
	e.buf = AppendInt32(e.buf, NullLength)
}

// WriteProgress writes the payload of a progress frame: a tagged percentage
// followed by a tagged status string.
func (e *Encoder) WriteProgress(percent int32, msg string) {
	e.WriteInt(percent)
	e.WriteString(msg)
}

// WriteValue encodes a Go value with the tag matching its type.
func (e *Encoder) WriteValue(v any) error {
	switch x := v.(type) {
	case nil:
		e.WriteNullString()
	case int32:
		e.WriteInt(x)
	case int:
		if x < math.MinInt32 || x > math.MaxInt32 {
			e.WriteLong(int64(x))
		} else {
			e.WriteInt(int32(x))
		}
	case int64:
		e.WriteLong(x)
	case bool:
		e.WriteBool(x)
	case Char:
		e.WriteChar(x)
	case float64:
		e.WriteDouble(x)
	case string:
		e.WriteString(x)
	case *string:
		if x == nil {
			e.WriteNullString()
		} else {
			e.WriteString(*x)
		}
	default:
		return e.writeArrayValue(v)
	}

	return nil
}

// WriteArray encodes a one or two dimensional slice.
func (e *Encoder) WriteArray(v any) error {
	return e.writeArrayValue(v)
}

func (e *Encoder) writeArrayValue(v any) error {
	switch x := v.(type) {
	case []int32:
		writeSlice(e, KindInteger, x, x == nil, func(v int32) { e.buf = AppendInt32(e.buf, v) })
	case []int64:
		writeSlice(e, KindLong, x, x == nil, func(v int64) { e.buf = AppendInt64(e.buf, v) })
	case []bool:
		writeSlice(e, KindBoolean, x, x == nil, func(v bool) { e.buf = AppendHexByte(e.buf, boolByte(v)) })
	case []Char:
		writeSlice(e, KindChar, x, x == nil, func(v Char) { e.buf = AppendHexByte(e.buf, byte(v)) })
	case []float64:
		writeSlice(e, KindDouble, x, x == nil, func(v float64) { e.writeRawString(formatDouble(v)) })
	case []string:
		writeSlice(e, KindString, x, x == nil, e.writeRawString)
	case []any:
		return e.writeObjects(x)
	case [][]int32:
		return writeMatrix(e, KindInteger, x)
	case [][]int64:
		return writeMatrix(e, KindLong, x)
	case [][]bool:
		return writeMatrix(e, KindBoolean, x)
	case [][]Char:
		return writeMatrix(e, KindChar, x)
	case [][]float64:
		return writeMatrix(e, KindDouble, x)
	case [][]string:
		return writeMatrix(e, KindString, x)
	case [][]any:
		return writeMatrix(e, KindObject, x)
	default:
		return errors.Wrapf(ErrUnsupportedValue, "type %T", v)
	}

	return nil
}

func (e *Encoder) writeObjects(x []any) error {
	if x == nil {
		e.WriteNullArray(KindObject)
		return nil
	}

	e.writeKind(KindArray)
	e.writeKind(KindObject)
	e.buf = AppendInt32(e.buf, int32(len(x)))

	for _, v := range x {
		if err := e.WriteValue(v); err != nil {
			return err
		}
	}

	return nil
}

func writeSlice[T any](e *Encoder, elem Kind, s []T, null bool, put func(T)) {
	if null {
		e.WriteNullArray(elem)
		return
	}

	e.writeKind(KindArray)
	e.writeKind(elem)
	e.buf = AppendInt32(e.buf, int32(len(s)))

	for _, v := range s {
		put(v)
	}
}

// writeMatrix encodes a 2-D array: Array, Array, inner tag, row count, then
// every row as a full array value.
func writeMatrix[T any](e *Encoder, inner Kind, m [][]T) error {
	e.writeKind(KindArray)
	e.writeKind(KindArray)
	e.writeKind(inner)

	if m == nil {
		e.buf = AppendInt32(e.buf, NullLength)
		return nil
	}

	e.buf = AppendInt32(e.buf, int32(len(m)))

	for _, row := range m {
		if err := e.writeArrayValue(row); err != nil {
			return err
		}
	}

	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}

	return 0
}
