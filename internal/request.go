package internal

import (
	"fmt"
	"io"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/internal/bufpool"
	"github.com/go-pantheon/fabrica-dbe/internal/cancel"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
)

type RequestStatus int32

const (
	StatusInitialized RequestStatus = iota
	StatusInProgress
	StatusCompleted
	// StatusCancelledDefault means a cancelled response was still sent.
	StatusCancelledDefault
	// StatusCancelledImmediate means nothing was sent after the ack.
	StatusCancelledImmediate
)

func (s RequestStatus) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelledDefault:
		return "cancelled_default"
	case StatusCancelledImmediate:
		return "cancelled_immediate"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

var _ codec.ByteReader = (*Request)(nil)

// Request is one ordinary call: its still encoded body and a forward-only
// cursor over it. It is owned by one goroutine at a time, the reader until it
// is submitted and the worker afterwards, so it has no locking.
type Request struct {
	ID      int32
	Channel int32
	Command string
	// Immediate marks the request for immediate cancellation semantics.
	Immediate bool
	// Cancel is the registration of a cancellable request, nil otherwise.
	Cancel *cancel.Token

	body   []byte
	pos    int
	status RequestStatus
	pool   *bufpool.Pool
}

// readRequest reads the body announced by h from r. It blocks until all
// h.Length bytes have arrived.
func readRequest(r io.Reader, h xnet.RequestHeader, pool *bufpool.Pool) (*Request, error) {
	req := &Request{
		ID:      h.ID,
		Channel: h.Channel,
		pool:    pool,
	}

	if h.Length == 0 {
		return req, nil
	}

	if pool != nil {
		req.body = pool.Alloc(int(h.Length))
	} else {
		req.body = make([]byte, h.Length)
	}

	if _, err := io.ReadFull(r, req.body); err != nil {
		req.release()

		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, errors.Wrapf(err, "read body failed. %s", h)
	}

	return req, nil
}

func (r *Request) ReadByte() (byte, error) {
	if r.pos >= len(r.body) {
		return 0, io.EOF
	}

	b := r.body[r.pos]
	r.pos++

	return b, nil
}

func (r *Request) Read(p []byte) (int, error) {
	if r.pos >= len(r.body) {
		if len(p) == 0 {
			return 0, nil
		}

		return 0, io.EOF
	}

	n := copy(p, r.body[r.pos:])
	r.pos += n

	return n, nil
}

// Len returns the number of unread body bytes.
func (r *Request) Len() int {
	return len(r.body) - r.pos
}

func (r *Request) Status() RequestStatus {
	return r.status
}

func (r *Request) SetStatus(s RequestStatus) {
	r.status = s
}

// release hands the body back to the pool. It is safe to call more than once.
func (r *Request) release() {
	if r.body == nil {
		return
	}

	if r.pool != nil {
		r.pool.Free(r.body)
	}

	r.body = nil
	r.pos = 0
}
