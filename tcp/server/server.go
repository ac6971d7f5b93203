package tcp

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

// Server serves the DBE protocol on TCP, one engine per connection.
type Server struct {
	*internal.BaseServer

	bind string
}

// NewServer binds to bind, or to the configured TCP.Bind when bind is empty.
func NewServer(bind string, reg *handler.Registry, opts ...server.Option) (*Server, error) {
	options := server.NewOptions(opts...)
	if bind == "" {
		bind = options.Conf().TCP.Bind
	}

	baseServer, err := internal.NewBaseServer(newListener(bind, options.Conf().TCP), reg, options)
	if err != nil {
		return nil, err
	}

	return &Server{
		BaseServer: baseServer,
		bind:       bind,
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	log.Infof("[tcp.Server] starting on %s", s.bind)
	return s.BaseServer.Start(ctx)
}

func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[tcp.Server] stopping")
	return s.BaseServer.Stop(ctx)
}

func (s *Server) Endpoint() (*url.URL, error) {
	return s.BaseServer.Endpoint()
}
