package codec

import (
	"io"

	"github.com/go-pantheon/fabrica-util/errors"
)

const hexDigits = "0123456789abcdef"

// AppendHexByte appends b as two lowercase hex digits.
func AppendHexByte(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0x0f])
}

// AppendInt32 appends v as 4 big-endian hex pairs.
func AppendInt32(dst []byte, v int32) []byte {
	u := uint32(v)
	for shift := 24; shift >= 0; shift -= 8 {
		dst = AppendHexByte(dst, byte(u>>shift))
	}

	return dst
}

// AppendInt64 appends v as 8 big-endian hex pairs.
func AppendInt64(dst []byte, v int64) []byte {
	u := uint64(v)
	for shift := 56; shift >= 0; shift -= 8 {
		dst = AppendHexByte(dst, byte(u>>shift))
	}

	return dst
}

// ReadHexByte reads one byte encoded as two hex digits. Both digit cases are
// accepted. An EOF before the first digit is returned as io.EOF so that
// callers reading a stream can tell a clean close from a truncated value.
func ReadHexByte(r io.ByteReader) (byte, error) {
	hi, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	lo, err := r.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}

	h, ok := unhex(hi)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidDigit, "got 0x%02x", hi)
	}

	l, ok := unhex(lo)
	if !ok {
		return 0, errors.Wrapf(ErrInvalidDigit, "got 0x%02x", lo)
	}

	return h<<4 | l, nil
}

// ReadInt32 reads 4 hex pairs.
func ReadInt32(r io.ByteReader) (int32, error) {
	var u uint32

	for i := range 4 {
		b, err := ReadHexByte(r)
		if err != nil {
			if i > 0 {
				err = truncated(err)
			}

			return 0, err
		}

		u = u<<8 | uint32(b)
	}

	return int32(u), nil
}

// ReadInt64 reads 8 hex pairs.
func ReadInt64(r io.ByteReader) (int64, error) {
	var u uint64

	for i := range 8 {
		b, err := ReadHexByte(r)
		if err != nil {
			if i > 0 {
				err = truncated(err)
			}

			return 0, err
		}

		u = u<<8 | uint64(b)
	}

	return int64(u), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}

	return err
}
