// Package stdio serves the DBE protocol on the process standard streams:
// requests arrive on stdin and responses leave on stdout. Logging must go to
// another stream.
package stdio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/internal/fault"
	"github.com/go-pantheon/fabrica-dbe/server"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
)

var _ xnet.Server = (*Server)(nil)

type stream struct {
	io.Reader
	io.Writer
}

// Close unblocks a pending read when the input can be closed.
func (s stream) Close() error {
	if c, ok := s.Reader.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// Server runs one engine over a pair of streams. With Fault.HandleSignals set
// it also installs the fault supervisor: SIGTERM stops the engine after the
// current frame and fatal signals dump diagnostics and exit.
type Server struct {
	xsync.Stoppable
	*server.Options

	shared *internal.Shared
	engine *internal.Engine
	sup    *fault.Supervisor
	done   chan error
}

// NewStdServer serves on os.Stdin and os.Stdout.
func NewStdServer(reg *handler.Registry, opts ...server.Option) (*Server, error) {
	return NewServer(os.Stdin, os.Stdout, reg, opts...)
}

func NewServer(in io.Reader, out io.Writer, reg *handler.Registry, opts ...server.Option) (*Server, error) {
	options := server.NewOptions(opts...)

	if options.Logger() != nil {
		log.SetLogger(options.Logger())
	}

	c := options.Conf()

	shared, err := internal.NewShared(c.Engine, reg, options.Middleware())
	if err != nil {
		return nil, err
	}

	s := &Server{
		Stoppable: xsync.NewStopper(c.Engine.StopTimeout),
		Options:   options,
		shared:    shared,
		done:      make(chan error, 1),
	}

	if c.Fault.HandleSignals {
		s.sup = fault.New(c.Fault)
	}

	shared.Stopping = s.stopping

	id := internal.NewSessionIDGenerator(internal.NetTypeStdio).Next()
	s.engine = internal.NewEngine(id, "stdio", stream{Reader: in, Writer: out}, shared, c.Engine)

	return s, nil
}

func (s *Server) stopping() bool {
	if s.sup != nil && s.sup.Stopping() {
		return true
	}

	if f := s.Options.Stopping(); f != nil {
		return f()
	}

	return false
}

// Start serves in the background. Wait returns the result.
func (s *Server) Start(ctx context.Context) error {
	if s.sup != nil {
		if err := s.sup.Start(ctx); err != nil {
			return err
		}
	}

	s.GoAndStop("stdio.Server.serve", func() error {
		err := s.serve(ctx)
		s.done <- err

		return err
	}, func() error {
		return s.Stop(ctx)
	})

	log.Infof("[stdio.Server] started. pid=%d", os.Getpid())

	return nil
}

// Serve blocks until the input ends, the stop flag is raised or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	return s.Wait()
}

// Wait returns once the engine has answered every accepted request.
func (s *Server) Wait() error {
	err := <-s.done
	s.done <- err

	return err
}

func (s *Server) serve(ctx context.Context) (err error) {
	if s.sup != nil {
		defer s.sup.Recover("stdio.Server.serve")
	}

	err = s.engine.Run(ctx)

	s.shared.Close()

	return err
}

func (s *Server) Stop(ctx context.Context) (err error) {
	return s.TurnOff(func() error {
		if stopErr := s.engine.Stop(ctx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}

		if s.sup != nil {
			if stopErr := s.sup.Stop(ctx); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}

		log.Infof("[stdio.Server] stopped.")

		return err
	})
}

func (s *Server) Endpoint() (*url.URL, error) {
	return url.Parse(fmt.Sprintf("stdio://localhost/%d", os.Getpid()))
}

// Shared exposes the registry and pools of the engine.
func (s *Server) Shared() *internal.Shared {
	return s.shared
}
