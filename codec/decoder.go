package codec

import (
	"io"
	"strconv"

	"github.com/go-pantheon/fabrica-util/errors"
)

// lenner is implemented by bounded sources such as request bodies, letting the
// decoder reject lengths that cannot possibly be satisfied before allocating.
type lenner interface {
	Len() int
}

// Decoder reads tagged values from a ByteReader.
type Decoder struct {
	r ByteReader
}

func NewDecoder(r ByteReader) *Decoder {
	return &Decoder{r: r}
}

// ReadKind reads the next type tag.
func (d *Decoder) ReadKind() (Kind, error) {
	b, err := ReadHexByte(d.r)
	if err != nil {
		return 0, protocolErr("read tag", truncated(err))
	}

	k := Kind(b)
	if !k.Valid() {
		return 0, protocolErr("read tag", errors.Wrapf(ErrUnknownKind, "tag=%d", b))
	}

	return k, nil
}

func (d *Decoder) expect(op string, want Kind) error {
	got, err := d.ReadKind()
	if err != nil {
		return err
	}

	if got != want {
		return mismatch(op, want, got)
	}

	return nil
}

// ReadScalar reads a scalar of the expected kind. A different tag on the wire
// is reported as a ProtocolError wrapping ErrTypeMismatch.
func (d *Decoder) ReadScalar(kind Kind) (any, error) {
	switch kind {
	case KindInteger:
		return d.ReadInt()
	case KindLong:
		return d.ReadLong()
	case KindBoolean:
		return d.ReadBool()
	case KindChar:
		return d.ReadChar()
	case KindDouble:
		return d.ReadDouble()
	case KindString:
		return d.ReadNullableString()
	case KindArray:
		return d.ReadArray()
	case KindObject:
		return d.ReadValue()
	default:
		return nil, protocolErr("read scalar", errors.Wrapf(ErrUnknownKind, "kind=%s", kind))
	}
}

func (d *Decoder) ReadInt() (int32, error) {
	if err := d.expect("read int", KindInteger); err != nil {
		return 0, err
	}

	return d.scanInt("read int")
}

func (d *Decoder) ReadLong() (int64, error) {
	if err := d.expect("read long", KindLong); err != nil {
		return 0, err
	}

	return d.scanLong("read long")
}

func (d *Decoder) ReadBool() (bool, error) {
	if err := d.expect("read bool", KindBoolean); err != nil {
		return false, err
	}

	return d.scanBool("read bool")
}

func (d *Decoder) ReadChar() (Char, error) {
	if err := d.expect("read char", KindChar); err != nil {
		return 0, err
	}

	return d.scanChar("read char")
}

func (d *Decoder) ReadDouble() (float64, error) {
	if err := d.expect("read double", KindDouble); err != nil {
		return 0, err
	}

	return d.scanDouble("read double")
}

// ReadString reads a string, mapping the null sentinel to "".
func (d *Decoder) ReadString() (string, error) {
	s, err := d.ReadNullableString()
	if err != nil || s == nil {
		return "", err
	}

	return *s, nil
}

// ReadNullableString reads a string; nil means the peer sent the null sentinel.
func (d *Decoder) ReadNullableString() (*string, error) {
	if err := d.expect("read string", KindString); err != nil {
		return nil, err
	}

	return d.scanString("read string")
}

// ReadArray reads a tagged one or two dimensional array. The result is a typed
// slice ([]int32, [][]string, []any, ...); a null array is a typed nil slice.
func (d *Decoder) ReadArray() (any, error) {
	if err := d.expect("read array", KindArray); err != nil {
		return nil, err
	}

	return d.arrayBody()
}

// ReadValue reads whatever tagged value comes next.
func (d *Decoder) ReadValue() (any, error) {
	k, err := d.ReadKind()
	if err != nil {
		return nil, err
	}

	switch k {
	case KindInteger:
		return d.scanInt("read value")
	case KindLong:
		return d.scanLong("read value")
	case KindBoolean:
		return d.scanBool("read value")
	case KindChar:
		return d.scanChar("read value")
	case KindDouble:
		return d.scanDouble("read value")
	case KindString:
		s, err := d.scanString("read value")
		if err != nil {
			return nil, err
		}

		if s == nil {
			return (*string)(nil), nil
		}

		return *s, nil
	case KindArray:
		return d.arrayBody()
	default:
		return nil, protocolErr("read value", errors.Wrapf(ErrUnknownKind, "kind=%s", k))
	}
}

func (d *Decoder) arrayBody() (any, error) {
	elem, err := d.ReadKind()
	if err != nil {
		return nil, err
	}

	if elem == KindArray {
		inner, err := d.ReadKind()
		if err != nil {
			return nil, err
		}

		return d.matrix(inner)
	}

	n, err := d.length("read array")
	if err != nil {
		return nil, err
	}

	return d.vector(elem, n)
}

func (d *Decoder) vector(elem Kind, n int32) (any, error) {
	const op = "read array"

	switch elem {
	case KindInteger:
		return readSlice(d, n, func() (int32, error) { return d.scanInt(op) })
	case KindLong:
		return readSlice(d, n, func() (int64, error) { return d.scanLong(op) })
	case KindBoolean:
		return readSlice(d, n, func() (bool, error) { return d.scanBool(op) })
	case KindChar:
		return readSlice(d, n, func() (Char, error) { return d.scanChar(op) })
	case KindDouble:
		return readSlice(d, n, func() (float64, error) { return d.scanDouble(op) })
	case KindString:
		return readSlice(d, n, func() (string, error) {
			s, err := d.scanString(op)
			if err != nil || s == nil {
				return "", err
			}

			return *s, nil
		})
	case KindObject:
		return readSlice(d, n, d.ReadValue)
	default:
		return nil, protocolErr(op, errors.Wrapf(ErrUnknownKind, "element kind=%s", elem))
	}
}

func (d *Decoder) matrix(inner Kind) (any, error) {
	n, err := d.length("read matrix")
	if err != nil {
		return nil, err
	}

	switch inner {
	case KindInteger:
		return readRows[int32](d, n)
	case KindLong:
		return readRows[int64](d, n)
	case KindBoolean:
		return readRows[bool](d, n)
	case KindChar:
		return readRows[Char](d, n)
	case KindDouble:
		return readRows[float64](d, n)
	case KindString:
		return readRows[string](d, n)
	case KindObject:
		return readRows[any](d, n)
	default:
		return nil, protocolErr("read matrix", errors.Wrapf(ErrUnknownKind, "inner kind=%s", inner))
	}
}

func readSlice[T any](d *Decoder, n int32, next func() (T, error)) ([]T, error) {
	if n == NullLength {
		return nil, nil
	}

	s := make([]T, 0, min(int(n), 1024))

	for range n {
		v, err := next()
		if err != nil {
			return nil, err
		}

		s = append(s, v)
	}

	return s, nil
}

func readRows[T any](d *Decoder, n int32) ([][]T, error) {
	return readSlice(d, n, func() ([]T, error) {
		v, err := d.ReadArray()
		if err != nil {
			return nil, err
		}

		row, ok := v.([]T)
		if !ok {
			var zero []T
			return nil, protocolErr("read matrix", errors.Wrapf(ErrTypeMismatch, "row %T, want %T", v, zero))
		}

		return row, nil
	})
}

func (d *Decoder) scanInt(op string) (int32, error) {
	v, err := ReadInt32(d.r)
	if err != nil {
		return 0, protocolErr(op, truncated(err))
	}

	return v, nil
}

func (d *Decoder) scanLong(op string) (int64, error) {
	v, err := ReadInt64(d.r)
	if err != nil {
		return 0, protocolErr(op, truncated(err))
	}

	return v, nil
}

func (d *Decoder) scanBool(op string) (bool, error) {
	b, err := ReadHexByte(d.r)
	if err != nil {
		return false, protocolErr(op, truncated(err))
	}

	return b != 0, nil
}

func (d *Decoder) scanChar(op string) (Char, error) {
	b, err := ReadHexByte(d.r)
	if err != nil {
		return 0, protocolErr(op, truncated(err))
	}

	return Char(b), nil
}

func (d *Decoder) scanDouble(op string) (float64, error) {
	s, err := d.scanString(op)
	if err != nil {
		return 0, err
	}

	if s == nil {
		return 0, protocolErr(op, errors.Wrap(ErrInvalidDouble, "null"))
	}

	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return 0, protocolErr(op, errors.Wrapf(ErrInvalidDouble, "%q", *s))
	}

	return v, nil
}

func (d *Decoder) length(op string) (int32, error) {
	n, err := d.scanInt(op)
	if err != nil {
		return 0, err
	}

	if n < NullLength {
		return 0, protocolErr(op, errors.Wrapf(ErrInvalidLength, "len=%d", n))
	}

	return n, nil
}

func (d *Decoder) scanString(op string) (*string, error) {
	n, err := d.length(op)
	if err != nil {
		return nil, err
	}

	if n == NullLength {
		return nil, nil
	}

	if l, ok := d.r.(lenner); ok && int(n) > l.Len() {
		return nil, protocolErr(op, ErrTruncated)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, protocolErr(op, truncated(err))
	}

	s := string(buf)

	return &s, nil
}
