package internal

import (
	"bufio"
	"io"
	"sync"

	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
)

// Transmitter owns the output stream. Every frame is written and flushed
// under one lock so frames from different workers never interleave. The lock
// is separate from the response pool lock and is held only for the write.
type Transmitter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	hdr []byte
}

func NewTransmitter(w io.Writer, size int) *Transmitter {
	return &Transmitter{
		w:   bufio.NewWriterSize(w, size),
		hdr: make([]byte, 0, xnet.ResponseHeaderSize),
	}
}

// Send writes the header and body of r.
func (t *Transmitter) Send(r *Response) error {
	return t.write(r.header(), r.Body())
}

// SendAck acknowledges receipt of request id.
func (t *Transmitter) SendAck(id int32) error {
	return t.write(xnet.ResponseHeader{ID: id, Kind: xnet.ResponseAck, Status: xnet.StatusSuccess}, nil)
}

// SendHandshake answers a handshake. The length field carries the protocol
// version and no body follows.
func (t *Transmitter) SendHandshake(id int32) error {
	return t.write(xnet.ResponseHeader{
		ID:     id,
		Kind:   xnet.ResponseHandshake,
		Status: xnet.StatusSuccess,
		Length: xnet.ProtocolVersion,
	}, nil)
}

// SendStatus writes a header-only frame.
func (t *Transmitter) SendStatus(id int32, kind xnet.ResponseKind, status xnet.Status) error {
	return t.write(xnet.ResponseHeader{ID: id, Kind: kind, Status: status}, nil)
}

func (t *Transmitter) write(h xnet.ResponseHeader, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hdr = xnet.AppendResponseHeader(t.hdr[:0], h)

	if _, err := t.w.Write(t.hdr); err != nil {
		return errors.Wrapf(err, "write header failed. %s", h)
	}

	if len(body) > 0 {
		if _, err := t.w.Write(body); err != nil {
			return errors.Wrapf(err, "write body failed. %s", h)
		}
	}

	if err := t.w.Flush(); err != nil {
		return errors.Wrapf(err, "flush failed. %s", h)
	}

	return nil
}
