package internal

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/internal/metrics"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type frame struct {
	xnet.ResponseHeader
	body []byte
}

func (f frame) value(t *testing.T) any {
	t.Helper()

	v, err := codec.NewDecoder(bytes.NewReader(f.body)).ReadValue()
	require.NoError(t, err)

	return v
}

type harness struct {
	t    *testing.T
	in   *io.PipeWriter
	out  *bufio.Reader
	eng  *Engine
	done chan error
}

func newHarness(t *testing.T, reg *handler.Registry, maxWorkers int, opts ...func(*Shared)) *harness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	c := conf.Default().Engine
	c.MaxWorkers = maxWorkers

	shared, err := NewShared(c, reg, middleware.Chain(recovery.Recovery()))
	require.NoError(t, err)

	for _, o := range opts {
		o(shared)
	}

	rw := struct {
		io.Reader
		io.Writer
	}{inR, outW}

	h := &harness{
		t:    t,
		in:   inW,
		out:  bufio.NewReader(outR),
		eng:  NewEngine(1, "pipe", rw, shared, c),
		done: make(chan error, 1),
	}

	go func() {
		err := h.eng.Run(context.Background())
		shared.Close()
		outW.Close()
		h.done <- err
	}()

	t.Cleanup(func() {
		inW.Close()
		outR.Close()
	})

	return h
}

func body(command string, args ...any) []byte {
	e := codec.NewEncoder(nil)
	e.WriteString(command)

	for _, a := range args {
		if err := e.WriteValue(a); err != nil {
			panic(err)
		}
	}

	return e.Bytes()
}

// send writes the frame from another goroutine so the test can keep reading
// responses while the engine consumes it.
func (h *harness) send(kind xnet.RequestKind, id, ch int32, b []byte) {
	frameBytes := xnet.AppendRequestHeader(nil, xnet.RequestHeader{ID: id, Kind: kind, Channel: ch, Length: int32(len(b))})
	frameBytes = append(frameBytes, b...)

	h.write(frameBytes)
}

func (h *harness) write(b []byte) {
	go func() {
		_, _ = h.in.Write(b)
	}()
}

func (h *harness) read() frame {
	h.t.Helper()

	type result struct {
		f   frame
		err error
	}

	ch := make(chan result, 1)

	go func() {
		hdr, err := xnet.ReadResponseHeader(h.out)
		if err != nil {
			ch <- result{err: err}
			return
		}

		f := frame{ResponseHeader: hdr}

		if hdr.Kind != xnet.ResponseHandshake && hdr.Length > 0 {
			f.body = make([]byte, hdr.Length)
			_, err = io.ReadFull(h.out, f.body)
		}

		ch <- result{f: f, err: err}
	}()

	select {
	case r := <-ch:
		require.NoError(h.t, r.err)
		return r.f
	case <-time.After(waitTimeout):
		h.t.Fatal("timed out waiting for a response frame")
	}

	return frame{}
}

func (h *harness) expectAck(id int32) {
	h.t.Helper()

	f := h.read()
	assert.Equal(h.t, xnet.ResponseHeader{ID: id, Kind: xnet.ResponseAck, Status: xnet.StatusSuccess}, f.ResponseHeader)
}

// closeAndWait ends the input and returns what Run returned. Every frame the
// engine writes afterwards must already have been read.
func (h *harness) closeAndWait() error {
	h.t.Helper()

	h.in.Close()

	_, err := h.out.ReadByte()
	assert.ErrorIs(h.t, err, io.EOF, "no frames expected after close")

	select {
	case err := <-h.done:
		return err
	case <-time.After(waitTimeout):
		h.t.Fatal("engine did not stop")
	}

	return nil
}

func getClock(_ context.Context, c *handler.Call) (any, error) {
	x, err := c.Int(0)
	if err != nil {
		return nil, err
	}

	return x * 6, nil
}

func testRegistry(t *testing.T, extra ...handler.Descriptor) *handler.Registry {
	t.Helper()

	descs := append([]handler.Descriptor{
		{Name: "getClock", Args: []codec.Kind{codec.KindInteger}, Handler: getClock},
	}, extra...)

	reg, err := handler.NewRegistry(descs...)
	require.NoError(t, err)

	return reg
}

func TestExampleScenario(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{0, 4} {
		h := newHarness(t, testRegistry(t), workers)

		h.send(xnet.RequestHandshake, 1, 1, nil)
		h.expectAck(1)

		hs := h.read()
		assert.Equal(t, xnet.ResponseHeader{ID: 1, Kind: xnet.ResponseHandshake, Status: xnet.StatusSuccess, Length: 38}, hs.ResponseHeader)

		h.send(xnet.RequestDefault, 2, 1, body("getClock", int32(7)))
		h.expectAck(2)

		f := h.read()
		assert.Equal(t, int32(2), f.ID)
		assert.Equal(t, xnet.ResponseComplete, f.Kind)
		assert.Equal(t, xnet.StatusSuccess, f.Status)
		assert.Equal(t, int32(42), f.value(t))

		require.NoError(t, h.closeAndWait())
	}
}

func TestAckBeforeBody(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t), 2)

	b := body("getClock", int32(1))

	h.write(xnet.AppendRequestHeader(nil, xnet.RequestHeader{ID: 9, Channel: 3, Length: int32(len(b))}))
	h.expectAck(9)

	h.write(b)

	f := h.read()
	assert.Equal(t, int32(9), f.ID)
	assert.Equal(t, xnet.StatusSuccess, f.Status)
	assert.Equal(t, int32(6), f.value(t))

	require.NoError(t, h.closeAndWait())
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t), 2)

	h.send(xnet.RequestDefault, 3, 1, body("getNothing"))
	h.expectAck(3)

	f := h.read()
	assert.Equal(t, xnet.ResponseComplete, f.Kind)
	assert.Equal(t, xnet.StatusFailure, f.Status)
	assert.Equal(t, "unknown command: getNothing", f.value(t))

	assert.False(t, metrics.Results.DeleteLabelValues("getNothing", xnet.StatusFailure.String()),
		"peer supplied names must not become label values")
	var m dto.Metric
	require.NoError(t, metrics.Results.WithLabelValues(unknownCommand, xnet.StatusFailure.String()).Write(&m))
	assert.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(1))

	require.NoError(t, h.closeAndWait())
}

func TestBadArgumentsKeepEngineRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t), 2)

	h.send(xnet.RequestDefault, 4, 1, body("getClock", "seven"))
	h.expectAck(4)

	f := h.read()
	assert.Equal(t, xnet.StatusFailure, f.Status)
	assert.Contains(t, f.value(t), "want int got string")

	h.send(xnet.RequestDefault, 5, 1, []byte("zz"))
	h.expectAck(5)
	assert.Equal(t, xnet.StatusFailure, h.read().Status)

	h.send(xnet.RequestDefault, 6, 1, body("getClock", int32(2)))
	h.expectAck(6)

	f = h.read()
	assert.Equal(t, xnet.StatusSuccess, f.Status)
	assert.Equal(t, int32(12), f.value(t))

	require.NoError(t, h.closeAndWait())
}

type blocking struct {
	started  chan struct{}
	release  chan struct{}
	finished chan struct{}
}

func newBlocking() *blocking {
	return &blocking{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (b *blocking) handle(_ context.Context, c *handler.Call) (any, error) {
	defer close(b.finished)

	close(b.started)
	<-b.release

	if c.Cancelled() {
		return "stopped early", nil
	}

	return "done", nil
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("timed out")
	}
}

func TestCancelDefault(t *testing.T) {
	t.Parallel()

	b := newBlocking()
	h := newHarness(t, testRegistry(t, handler.Descriptor{Name: "getCallTree", Cancel: handler.CancelDefault, Handler: b.handle}), 2)

	h.send(xnet.RequestDefault, 3, 5, body("getCallTree"))
	h.expectAck(3)
	waitClosed(t, b.started)

	h.send(xnet.RequestCancel, 4, 5, nil)
	h.expectAck(4)
	assert.Equal(t, xnet.ResponseHeader{ID: 4, Kind: xnet.ResponseComplete, Status: xnet.StatusSuccess}, h.read().ResponseHeader)

	close(b.release)

	f := h.read()
	assert.Equal(t, int32(3), f.ID)
	assert.Equal(t, xnet.StatusCancelled, f.Status)
	assert.Equal(t, "stopped early", f.value(t))

	_, ok := h.eng.Cancels().Cancellable()
	assert.False(t, ok, "channel released after completion")

	require.NoError(t, h.closeAndWait())
}

func TestCancelSurvivesChannelReuse(t *testing.T) {
	t.Parallel()

	a, b := newBlocking(), newBlocking()
	h := newHarness(t, testRegistry(t,
		handler.Descriptor{Name: "getCallTree", Cancel: handler.CancelDefault, Handler: a.handle},
		handler.Descriptor{Name: "getOther", Cancel: handler.CancelDefault, Handler: b.handle},
	), 2)

	h.send(xnet.RequestDefault, 3, 5, body("getCallTree"))
	h.expectAck(3)
	waitClosed(t, a.started)

	h.send(xnet.RequestCancel, 4, 5, nil)
	h.expectAck(4)
	assert.Equal(t, xnet.StatusSuccess, h.read().Status)

	h.send(xnet.RequestDefault, 6, 5, body("getOther"))
	h.expectAck(6)
	waitClosed(t, b.started)

	close(a.release)

	f := h.read()
	assert.Equal(t, int32(3), f.ID)
	assert.Equal(t, xnet.StatusCancelled, f.Status, "accepted cancel must hold after the channel is reused")
	assert.Equal(t, "stopped early", f.value(t))

	h.send(xnet.RequestCancel, 7, 5, nil)
	h.expectAck(7)
	assert.Equal(t, xnet.StatusSuccess, h.read().Status, "the running request on channel 5 is still registered")

	close(b.release)

	f = h.read()
	assert.Equal(t, int32(6), f.ID)
	assert.Equal(t, xnet.StatusCancelled, f.Status)

	waitClosed(t, b.finished)
	require.NoError(t, h.closeAndWait())

	_, ok := h.eng.Cancels().Cancellable()
	assert.False(t, ok)
}

func TestCancelImmediateSendsNothing(t *testing.T) {
	t.Parallel()

	b := newBlocking()
	h := newHarness(t, testRegistry(t, handler.Descriptor{Name: "getFunctionList", Cancel: handler.CancelImmediate, Handler: b.handle}), 2)

	h.send(xnet.RequestDefault, 3, 5, body("getFunctionList"))
	h.expectAck(3)
	waitClosed(t, b.started)

	h.send(xnet.RequestCancel, 4, 5, nil)
	h.expectAck(4)
	assert.Equal(t, xnet.StatusSuccess, h.read().Status)

	close(b.release)
	waitClosed(t, b.finished)

	require.NoError(t, h.closeAndWait())
}

func TestCancelRefused(t *testing.T) {
	t.Parallel()

	b := newBlocking()
	h := newHarness(t, testRegistry(t, handler.Descriptor{Name: "getCallTree", Cancel: handler.CancelDefault, Handler: b.handle}), 2)

	h.send(xnet.RequestCancel, 1, 5, nil)
	h.expectAck(1)
	assert.Equal(t, xnet.StatusFailure, h.read().Status, "nothing cancellable yet")

	h.send(xnet.RequestDefault, 2, 5, body("getCallTree"))
	h.expectAck(2)
	waitClosed(t, b.started)

	h.send(xnet.RequestCancel, 3, 6, nil)
	h.expectAck(3)
	assert.Equal(t, xnet.StatusFailure, h.read().Status, "other channel")

	close(b.release)

	f := h.read()
	assert.Equal(t, xnet.StatusSuccess, f.Status)
	assert.Equal(t, "done", f.value(t))

	require.NoError(t, h.closeAndWait())
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t, handler.Descriptor{
		Name: "crash",
		Handler: func(context.Context, *handler.Call) (any, error) {
			panic("boom")
		},
	}), 2)

	h.send(xnet.RequestDefault, 7, 1, body("crash"))
	h.expectAck(7)
	assert.Equal(t, xnet.StatusFailure, h.read().Status)

	h.send(xnet.RequestDefault, 8, 1, body("getClock", int32(1)))
	h.expectAck(8)
	assert.Equal(t, xnet.StatusSuccess, h.read().Status)

	require.NoError(t, h.closeAndWait())
}

func TestProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t, handler.Descriptor{
		Name: "archive",
		Handler: func(_ context.Context, c *handler.Call) (any, error) {
			if err := c.Progress(50, "half way"); err != nil {
				return nil, err
			}

			return true, nil
		},
	}), 2)

	h.send(xnet.RequestDefault, 2, 1, body("archive"))
	h.expectAck(2)

	p := h.read()
	assert.Equal(t, xnet.ResponseProgress, p.Kind)
	assert.Equal(t, int32(2), p.ID)

	dec := codec.NewDecoder(bytes.NewReader(p.body))
	pct, err := dec.ReadInt()
	require.NoError(t, err)
	msg, err := dec.ReadString()
	require.NoError(t, err)
	assert.Equal(t, int32(50), pct)
	assert.Equal(t, "half way", msg)

	f := h.read()
	assert.Equal(t, xnet.ResponseComplete, f.Kind)
	assert.Equal(t, true, f.value(t))

	require.NoError(t, h.closeAndWait())
}

func TestTransportInContext(t *testing.T) {
	t.Parallel()

	var op string

	h := newHarness(t, testRegistry(t, handler.Descriptor{
		Name: "whoami",
		Handler: func(ctx context.Context, c *handler.Call) (any, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				op = tr.Operation() + "@" + tr.RequestHeader().Get(xnet.HeaderChannel)
			}

			return op, nil
		},
	}), 0)

	h.send(xnet.RequestDefault, 2, 11, body("whoami"))
	h.expectAck(2)
	assert.Equal(t, "whoami@11", h.read().value(t))

	require.NoError(t, h.closeAndWait())
}

func TestDesyncStopsEngine(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t), 2)

	h.write([]byte("not a frame"))

	select {
	case err := <-h.done:
		require.Error(t, err)
		assert.ErrorIs(t, err, xnet.ErrDesync)
	case <-time.After(waitTimeout):
		t.Fatal("engine kept running")
	}
}

func TestTruncatedBodyStopsEngine(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testRegistry(t), 2)

	h.write(xnet.AppendRequestHeader(nil, xnet.RequestHeader{ID: 1, Channel: 1, Length: 100}))
	h.expectAck(1)
	h.write([]byte("04"))
	h.in.Close()

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	case <-time.After(waitTimeout):
		t.Fatal("engine kept running")
	}
}

func TestStopFlag(t *testing.T) {
	t.Parallel()

	var stop atomic.Bool

	h := newHarness(t, testRegistry(t), 2, func(s *Shared) {
		s.Stopping = stop.Load
	})

	h.send(xnet.RequestDefault, 1, 1, body("getClock", int32(1)))
	h.expectAck(1)
	h.read()

	stop.Store(true)

	// the reader is already waiting for the next header and sees the flag
	// once that frame is served
	h.send(xnet.RequestHandshake, 2, 1, nil)
	h.expectAck(2)
	h.read()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("engine ignored the stop flag")
	}
}
