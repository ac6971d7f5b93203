package internal

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/internal/cancel"
	"github.com/go-pantheon/fabrica-dbe/internal/metrics"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	"golang.org/x/sync/errgroup"
)

var _ xnet.Session = (*Engine)(nil)

// unknownCommand labels results of requests that never resolved a command.
const unknownCommand = "unknown"

// Engine serves the DBE protocol on one byte stream. A single reader
// goroutine parses frames, answers handshakes and cancels inline, and hands
// ordinary requests to the shared worker pool. Responses go back through the
// transmitter in completion order.
type Engine struct {
	xsync.Stoppable

	id       uint64
	endpoint string
	rw       io.ReadWriter
	in       *bufio.Reader
	tx       *Transmitter
	shared   *Shared
	cancels  *cancel.Registry

	inflight sync.WaitGroup
}

func NewEngine(id uint64, endpoint string, rw io.ReadWriter, shared *Shared, c conf.Engine) *Engine {
	return &Engine{
		Stoppable: xsync.NewStopper(c.StopTimeout),
		id:        id,
		endpoint:  endpoint,
		rw:        rw,
		in:        bufio.NewReaderSize(rw, c.ReadBufSize),
		tx:        NewTransmitter(rw, c.WriteBufSize),
		shared:    shared,
		cancels:   cancel.New(),
	}
}

// Run reads frames until the peer closes the stream, the context is done,
// the engine is stopped or the stop flag is raised. It returns after every
// accepted request has been answered. A clean end of input returns nil.
func (e *Engine) Run(ctx context.Context) error {
	hctx := context.WithoutCancel(ctx)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		select {
		case <-e.StopTriggered():
			return xsync.ErrStopByTrigger
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	eg.Go(func() error {
		return xsync.Run(func() error {
			return e.readLoop(ctx, hctx)
		})
	})

	err := eg.Wait()

	e.inflight.Wait()

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, xsync.ErrStopByTrigger), errors.Is(err, xsync.ErrSignalStop):
		log.Infof("[Engine] %d stopped. %v", e.id, err)
		return nil
	case errors.Is(err, xnet.ErrDesync):
		log.Errorf("[Engine] %d protocol desynchronized. %+v", e.id, err)
		return errors.Wrapf(err, "session %d", e.id)
	}

	return err
}

func (e *Engine) readLoop(ctx, hctx context.Context) error {
	for {
		if e.shared.stopping() {
			return xsync.ErrSignalStop
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := e.next(hctx); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) next(ctx context.Context) error {
	h, err := xnet.ReadRequestHeader(e.in)
	if err != nil {
		return err
	}

	metrics.Requests.WithLabelValues(h.Kind.String()).Inc()
	log.Debugf("[Engine] %d recv %s", e.id, h)

	switch h.Kind {
	case xnet.RequestHandshake:
		return e.handshake(h)
	case xnet.RequestCancel:
		return e.cancel(h)
	default:
		return e.dispatch(ctx, h)
	}
}

func (e *Engine) discard(h xnet.RequestHeader) error {
	if h.Length == 0 {
		return nil
	}

	if _, err := e.in.Discard(int(h.Length)); err != nil {
		return errors.Wrapf(err, "discard body failed. %s", h)
	}

	return nil
}

func (e *Engine) handshake(h xnet.RequestHeader) error {
	if err := e.discard(h); err != nil {
		return err
	}

	if err := e.tx.SendAck(h.ID); err != nil {
		return err
	}

	return e.tx.SendHandshake(h.ID)
}

func (e *Engine) cancel(h xnet.RequestHeader) error {
	if err := e.discard(h); err != nil {
		return err
	}

	if err := e.tx.SendAck(h.ID); err != nil {
		return err
	}

	status := xnet.StatusFailure
	if e.cancels.RequestCancel(h.Channel) {
		status = xnet.StatusSuccess
	}

	metrics.Cancels.WithLabelValues(status.String()).Inc()
	log.Debugf("[Engine] %d cancel channel %d: %s", e.id, h.Channel, status)

	return e.tx.SendStatus(h.ID, xnet.ResponseComplete, status)
}

// dispatch acks the request before its body is read, then resolves the
// command and submits it.
func (e *Engine) dispatch(ctx context.Context, h xnet.RequestHeader) error {
	if err := e.tx.SendAck(h.ID); err != nil {
		return err
	}

	req, err := readRequest(e.in, h, e.shared.Bodies)
	if err != nil {
		return err
	}

	dec := codec.NewDecoder(req)

	name, err := dec.ReadString()
	if err != nil {
		return e.reject(req, "decode command name failed: "+err.Error())
	}

	desc, ok := e.shared.Registry.Lookup(name)
	if !ok {
		log.Warnf("[Engine] %d unknown command %q req=%d ch=%d", e.id, name, req.ID, req.Channel)
		return e.reject(req, handler.ErrUnknownCommand.Error()+": "+name)
	}

	req.Command = name

	switch desc.Cancel {
	case handler.CancelDefault:
		req.Cancel = e.cancels.RegisterCancellable(req.Channel)
	case handler.CancelImmediate:
		req.Cancel = e.cancels.RegisterCancellable(req.Channel)
		req.Immediate = true
	}

	e.inflight.Add(1)

	err = e.shared.Workers.Submit(func() {
		defer e.inflight.Done()
		e.serve(ctx, req, desc, dec)
	})
	if err != nil {
		e.inflight.Done()

		e.cancels.Done(req.Cancel)

		if rejectErr := e.reject(req, err.Error()); rejectErr != nil {
			return errors.Join(err, rejectErr)
		}

		return err
	}

	return nil
}

// reject answers req with a failure carrying msg and releases it. Requests
// whose command was never resolved share one label.
func (e *Engine) reject(req *Request, msg string) error {
	defer req.release()

	command := req.Command
	if command == "" {
		command = unknownCommand
	}

	metrics.Results.WithLabelValues(command, xnet.StatusFailure.String()).Inc()

	return e.complete(req, xnet.StatusFailure, msg)
}

func (e *Engine) complete(req *Request, status xnet.Status, payload any) error {
	resp := e.shared.Responses.Checkout(sizeHint(payload))
	defer e.shared.Responses.Recycle(resp)

	resp.set(req.ID, req.Channel, xnet.ResponseComplete, status)

	if err := resp.Encoder().WriteValue(payload); err != nil {
		resp.Encoder().Reset()
		resp.Status = xnet.StatusFailure
		resp.Encoder().WriteString(err.Error())
	}

	return e.tx.Send(resp)
}

// serve runs on a worker. It owns req until it returns.
func (e *Engine) serve(ctx context.Context, req *Request, desc handler.Descriptor, dec *codec.Decoder) {
	defer req.release()

	if desc.Cancellable() {
		defer e.cancels.Done(req.Cancel)

		if req.Immediate && e.cancels.IsCancelled(req.Cancel) {
			req.SetStatus(StatusCancelledImmediate)
			metrics.Results.WithLabelValues(req.Command, xnet.StatusCancelled.String()).Inc()

			return
		}
	}

	req.SetStatus(StatusInProgress)

	status := xnet.StatusSuccess

	result, err := e.invoke(ctx, req, desc, dec)
	if err != nil {
		log.Debugf("[Engine] %d %s req=%d failed. %+v", e.id, req.Command, req.ID, err)

		status, result = xnet.StatusFailure, err.Error()
	}

	if desc.Cancellable() && e.cancels.IsCancelled(req.Cancel) {
		if req.Immediate {
			req.SetStatus(StatusCancelledImmediate)
			metrics.Results.WithLabelValues(req.Command, xnet.StatusCancelled.String()).Inc()

			return
		}

		status = xnet.StatusCancelled
	}

	if err := e.complete(req, status, result); err != nil {
		log.Errorf("[Engine] %d send %s req=%d failed. %+v", e.id, req.Command, req.ID, err)
	}

	metrics.Results.WithLabelValues(req.Command, status.String()).Inc()

	if status == xnet.StatusCancelled {
		req.SetStatus(StatusCancelledDefault)
	} else {
		req.SetStatus(StatusCompleted)
	}
}

func (e *Engine) invoke(ctx context.Context, req *Request, desc handler.Descriptor, dec *codec.Decoder) (any, error) {
	args, err := desc.DecodeArgs(dec)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s arguments failed", desc.Name)
	}

	call := handler.NewCall(req.Command, req.ID, req.Channel, dec, e.progress(req),
		func() bool { return e.cancels.IsCancelled(req.Cancel) })
	call.Args = args

	ctx = xnet.NewServerContext(ctx, xnet.NewTransport(e.endpoint, req.Command, req.ID, req.Channel))

	next := func(ctx context.Context, _ any) (any, error) {
		return desc.Handler(ctx, call)
	}

	if e.shared.Middleware != nil {
		next = e.shared.Middleware(next)
	}

	return next(ctx, call)
}

func (e *Engine) progress(req *Request) func(int32, string) error {
	return func(percent int32, msg string) error {
		if req.Immediate && e.cancels.IsCancelled(req.Cancel) {
			return nil
		}

		resp := e.shared.Responses.Checkout(len(msg) + 32)
		defer e.shared.Responses.Recycle(resp)

		resp.set(req.ID, req.Channel, xnet.ResponseProgress, xnet.StatusSuccess)
		resp.Encoder().WriteProgress(percent, msg)

		return e.tx.Send(resp)
	}
}

func sizeHint(v any) int {
	switch x := v.(type) {
	case string:
		return len(x) + 16
	case []string:
		n := 16
		for _, s := range x {
			n += len(s) + 8
		}

		return n
	default:
		return 0
	}
}

// Stop unblocks the reader by closing the stream when it can be closed.
func (e *Engine) Stop(ctx context.Context) error {
	return e.TurnOff(func() error {
		if c, ok := e.rw.(io.Closer); ok {
			if err := c.Close(); err != nil {
				return errors.Wrapf(err, "close session %d failed", e.id)
			}
		}

		return nil
	})
}

func (e *Engine) ID() uint64 {
	return e.id
}

func (e *Engine) Endpoint() string {
	return e.endpoint
}

func (e *Engine) Conn() io.ReadWriter {
	return e.rw
}

// Cancels exposes the per-session cancellation registry.
func (e *Engine) Cancels() *cancel.Registry {
	return e.cancels
}
