package server

import (
	"context"
	"net/url"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/server"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

var _ xnet.Server = (*Server)(nil)

// Server serves the DBE protocol over KCP.
type Server struct {
	*internal.BaseServer

	bind string
}

// NewServer falls back to the configured KCP.Bind when bind is empty.
func NewServer(bind string, reg *handler.Registry, opts ...server.Option) (*Server, error) {
	options := server.NewOptions(opts...)
	if bind == "" {
		bind = options.Conf().KCP.Bind
	}

	listener, err := newListener(bind, options.Conf().KCP)
	if err != nil {
		return nil, err
	}

	baseServer, err := internal.NewBaseServer(listener, reg, options)
	if err != nil {
		return nil, err
	}

	s := &Server{
		BaseServer: baseServer,
		bind:       bind,
	}

	return s, nil
}

// Start starts the KCP server
func (s *Server) Start(ctx context.Context) error {
	log.Infof("[kcp.Server] starting on %s smux=%t", s.bind, s.Conf().KCP.Smux)
	return s.BaseServer.Start(ctx)
}

// Stop stops the KCP server
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[kcp.Server] stopping")
	return s.BaseServer.Stop(ctx)
}

func (s *Server) Endpoint() (*url.URL, error) {
	return s.BaseServer.Endpoint()
}
