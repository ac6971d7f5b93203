package codec

import (
	"fmt"

	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrTypeMismatch     = errors.New("type tag mismatch")
	ErrTruncated        = errors.New("value truncated")
	ErrInvalidDigit     = errors.New("invalid hex digit")
	ErrInvalidLength    = errors.New("invalid length")
	ErrInvalidDouble    = errors.New("invalid double")
	ErrUnknownKind      = errors.New("unknown type tag")
	ErrUnsupportedValue = errors.New("unsupported value type")
)

// ProtocolError is returned by the Decoder when the bytes on the wire do not
// match what the caller expected. The peer is no longer trusted to be
// well-formed, so a mismatch is reported instead of aborting the process.
type ProtocolError struct {
	Op   string
	Want Kind
	Got  Kind
	Err  error
}

func (e *ProtocolError) Error() string {
	if errors.Is(e.Err, ErrTypeMismatch) {
		return fmt.Sprintf("codec: %s: want %s got %s", e.Op, e.Want, e.Got)
	}

	return fmt.Sprintf("codec: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func mismatch(op string, want, got Kind) error {
	return &ProtocolError{Op: op, Want: want, Got: got, Err: ErrTypeMismatch}
}

func protocolErr(op string, err error) error {
	if _, ok := err.(*ProtocolError); ok {
		return err
	}

	return &ProtocolError{Op: op, Err: err}
}
