package xnet

import (
	"fmt"
	"io"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	// ErrDesync is returned when a header does not start with Marker. The
	// stream can no longer be framed and the engine stops.
	ErrDesync = errors.New("protocol desynchronized")
	// ErrBodyTooLarge is returned for a body length outside [0, MaxBodySize].
	ErrBodyTooLarge = errors.New("invalid body length")
)

type RequestHeader struct {
	ID      int32
	Kind    RequestKind
	Channel int32
	Length  int32
}

func (h RequestHeader) String() string {
	return fmt.Sprintf("req=%d kind=%s ch=%d len=%d", h.ID, h.Kind, h.Channel, h.Length)
}

type ResponseHeader struct {
	ID     int32
	Kind   ResponseKind
	Status Status
	Length int32
}

func (h ResponseHeader) String() string {
	return fmt.Sprintf("req=%d kind=%s status=%s len=%d", h.ID, h.Kind, h.Status, h.Length)
}

// AppendRequestHeader appends the wire form of h.
func AppendRequestHeader(dst []byte, h RequestHeader) []byte {
	dst = append(dst, Marker)
	dst = codec.AppendInt32(dst, h.ID)
	dst = codec.AppendHexByte(dst, byte(h.Kind))
	dst = codec.AppendInt32(dst, h.Channel)

	return codec.AppendInt32(dst, h.Length)
}

// AppendResponseHeader appends the wire form of h.
func AppendResponseHeader(dst []byte, h ResponseHeader) []byte {
	dst = append(dst, Marker)
	dst = codec.AppendInt32(dst, h.ID)
	dst = codec.AppendHexByte(dst, byte(h.Kind))
	dst = codec.AppendHexByte(dst, byte(h.Status))

	return codec.AppendInt32(dst, h.Length)
}

// ReadRequestHeader reads one request header. io.EOF is returned unchanged
// when the stream ends cleanly before a marker.
func ReadRequestHeader(r io.ByteReader) (h RequestHeader, err error) {
	if err = readMarker(r); err != nil {
		return h, err
	}

	if h.ID, err = codec.ReadInt32(r); err != nil {
		return h, headerErr(err, "request id")
	}

	kind, err := codec.ReadHexByte(r)
	if err != nil {
		return h, headerErr(err, "request kind")
	}

	h.Kind = RequestKind(kind)

	if h.Channel, err = codec.ReadInt32(r); err != nil {
		return h, headerErr(err, "channel id")
	}

	if h.Length, err = codec.ReadInt32(r); err != nil {
		return h, headerErr(err, "body length")
	}

	if h.Length < 0 || h.Length > MaxBodySize {
		return h, errors.Wrapf(ErrBodyTooLarge, "len=%d", h.Length)
	}

	return h, nil
}

// ReadResponseHeader reads one response header.
func ReadResponseHeader(r io.ByteReader) (h ResponseHeader, err error) {
	if err = readMarker(r); err != nil {
		return h, err
	}

	if h.ID, err = codec.ReadInt32(r); err != nil {
		return h, headerErr(err, "request id")
	}

	kind, err := codec.ReadHexByte(r)
	if err != nil {
		return h, headerErr(err, "response kind")
	}

	status, err := codec.ReadHexByte(r)
	if err != nil {
		return h, headerErr(err, "status")
	}

	h.Kind = ResponseKind(kind)
	h.Status = Status(status)

	if h.Length, err = codec.ReadInt32(r); err != nil {
		return h, headerErr(err, "length")
	}

	return h, nil
}

func readMarker(r io.ByteReader) error {
	m, err := r.ReadByte()
	if err != nil {
		return err
	}

	if m != Marker {
		return errors.Wrapf(ErrDesync, "marker 0x%02x", m)
	}

	return nil
}

func headerErr(err error, field string) error {
	if errors.Is(err, io.EOF) {
		err = codec.ErrTruncated
	}

	return errors.Wrapf(err, "read header %s failed", field)
}
