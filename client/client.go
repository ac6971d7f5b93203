// Package client is the peer side of the DBE protocol: it frames requests,
// matches responses to them by request id and exposes calls, handshakes and
// cancels as blocking methods.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("client closed")

// Result is the complete response of a call.
type Result struct {
	RequestID int32
	Status    xnet.Status
	// Value is the decoded payload. For a failure it is the error text sent by
	// the server.
	Value any
}

// Err returns nil for a successful result.
func (r *Result) Err() error {
	if r.Status == xnet.StatusSuccess {
		return nil
	}

	return errors.Errorf("request %d %s: %v", r.RequestID, r.Status, r.Value)
}

type frame struct {
	xnet.ResponseHeader
	body []byte
}

type pending struct {
	progress func(int32, string)
	done     chan frame
}

type Client struct {
	xsync.Stoppable
	*Options

	rw  io.ReadWriteCloser
	in  *bufio.Reader
	wmu sync.Mutex
	w   *bufio.Writer

	nextID atomic.Int32

	mu      sync.Mutex
	pending map[int32]*pending
	err     error
	closed  chan struct{}
}

func New(rw io.ReadWriteCloser, opts ...Option) *Client {
	o := NewOptions(opts...)

	c := &Client{
		Stoppable: xsync.NewStopper(o.stopTimeout),
		Options:   o,
		rw:        rw,
		in:        bufio.NewReaderSize(rw, o.conf.Engine.ReadBufSize),
		w:         bufio.NewWriterSize(rw, o.conf.Engine.WriteBufSize),
		pending:   make(map[int32]*pending),
		closed:    make(chan struct{}),
	}

	c.nextID.Store(o.firstID - 1)

	return c
}

// Start runs the receive loop until the stream ends or the client stops.
func (c *Client) Start(ctx context.Context) error {
	c.GoAndStop("client.receive", func() error {
		return c.run(ctx)
	}, func() error {
		return c.Stop(ctx)
	})

	return nil
}

func (c *Client) run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		select {
		case <-c.StopTriggered():
			return xsync.ErrStopByTrigger
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	eg.Go(func() error {
		return xsync.Run(func() error {
			return c.receiveLoop(ctx)
		})
	})

	err := eg.Wait()
	c.fail(err)

	return err
}

func (c *Client) receiveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.receive(); err != nil {
				return err
			}
		}
	}
}

func (c *Client) receive() error {
	h, err := xnet.ReadResponseHeader(c.in)
	if err != nil {
		return err
	}

	f := frame{ResponseHeader: h}

	if h.Kind != xnet.ResponseHandshake && h.Length > 0 {
		f.body = make([]byte, h.Length)
		if _, err := io.ReadFull(c.in, f.body); err != nil {
			return errors.Wrapf(err, "read body failed. %s", h)
		}
	}

	switch h.Kind {
	case xnet.ResponseAck:
		return nil
	case xnet.ResponseProgress:
		c.onProgress(f)
		return nil
	default:
		c.deliver(f)
		return nil
	}
}

func (c *Client) onProgress(f frame) {
	c.mu.Lock()
	p := c.pending[f.ID]
	c.mu.Unlock()

	if p == nil || p.progress == nil {
		return
	}

	dec := codec.NewDecoder(bytes.NewReader(f.body))

	pct, err := dec.ReadInt()
	if err != nil {
		log.Warnf("[client] bad progress frame %s. %+v", f.ResponseHeader, err)
		return
	}

	msg, err := dec.ReadString()
	if err != nil {
		log.Warnf("[client] bad progress frame %s. %+v", f.ResponseHeader, err)
		return
	}

	p.progress(pct, msg)
}

func (c *Client) deliver(f frame) {
	c.mu.Lock()
	p := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()

	if p == nil {
		log.Warnf("[client] unexpected response %s", f.ResponseHeader)
		return
	}

	p.done <- f
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return
	}

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, xsync.ErrStopByTrigger) {
		err = ErrClosed
	}

	c.err = err
	c.pending = nil
	close(c.closed)
}

func (c *Client) register(progress func(int32, string)) (int32, *pending, error) {
	p := &pending{progress: progress, done: make(chan frame, 1)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return 0, nil, c.err
	}

	id := c.nextID.Add(1)
	c.pending[id] = p

	return id, p, nil
}

func (c *Client) forget(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		delete(c.pending, id)
	}
}

func (c *Client) send(h xnet.RequestHeader, body []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	h.Length = int32(len(body))

	if _, err := c.w.Write(xnet.AppendRequestHeader(nil, h)); err != nil {
		return errors.Wrapf(err, "write header failed. %s", h)
	}

	if _, err := c.w.Write(body); err != nil {
		return errors.Wrapf(err, "write body failed. %s", h)
	}

	return c.w.Flush()
}

func (c *Client) roundTrip(ctx context.Context, kind xnet.RequestKind, channel int32, body []byte, progress func(int32, string)) (frame, error) {
	id, p, err := c.register(progress)
	if err != nil {
		return frame{}, err
	}

	if err := c.send(xnet.RequestHeader{ID: id, Kind: kind, Channel: channel}, body); err != nil {
		c.forget(id)
		return frame{}, err
	}

	select {
	case f := <-p.done:
		return f, nil
	case <-ctx.Done():
		c.forget(id)
		return frame{}, ctx.Err()
	case <-c.closed:
		return frame{}, c.err
	}
}

// Handshake returns the protocol version announced by the server.
func (c *Client) Handshake(ctx context.Context) (int32, error) {
	f, err := c.roundTrip(ctx, xnet.RequestHandshake, 0, nil, nil)
	if err != nil {
		return 0, err
	}

	if f.Kind != xnet.ResponseHandshake {
		return 0, errors.Errorf("handshake answered with %s", f.ResponseHeader)
	}

	return f.Length, nil
}

// Call runs command on channel with args encoded by codec.Encoder.WriteValue.
// A call whose channel is cancelled in immediate mode gets no response; it
// returns when ctx is done.
func (c *Client) Call(ctx context.Context, channel int32, command string, args []any, opts ...CallOption) (*Result, error) {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}

	enc := codec.NewEncoder(nil)
	enc.WriteString(command)

	for i, a := range args {
		if err := enc.WriteValue(a); err != nil {
			return nil, errors.Wrapf(err, "encode argument %d of %s", i, command)
		}
	}

	f, err := c.roundTrip(ctx, xnet.RequestDefault, channel, enc.Bytes(), co.progress)
	if err != nil {
		return nil, err
	}

	r := &Result{RequestID: f.ID, Status: f.Status}

	if len(f.body) > 0 {
		if r.Value, err = codec.NewDecoder(bytes.NewReader(f.body)).ReadValue(); err != nil {
			return r, errors.Wrapf(err, "decode result of %s", command)
		}
	}

	return r, nil
}

// Cancel asks the server to cancel the operation running on channel. It
// reports whether the server accepted the cancel.
func (c *Client) Cancel(ctx context.Context, channel int32) (bool, error) {
	f, err := c.roundTrip(ctx, xnet.RequestCancel, channel, nil, nil)
	if err != nil {
		return false, err
	}

	return f.Status == xnet.StatusSuccess, nil
}

func (c *Client) Stop(ctx context.Context) (err error) {
	return c.TurnOff(func() error {
		if closeErr := c.rw.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}

		log.Infof("[client] stopped.")

		return err
	})
}

func (c *Client) String() string {
	return fmt.Sprintf("client next=%d", c.nextID.Load()+1)
}
