package websocket

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

// Server serves the DBE protocol over websocket binary messages.
type Server struct {
	*internal.BaseServer

	bind string
	path string
}

// NewServer falls back to the configured WebSocket bind and path when the
// arguments are empty.
func NewServer(bind string, path string, reg *handler.Registry, opts ...server.Option) (*Server, error) {
	options := server.NewOptions(opts...)
	c := options.Conf().WebSocket

	if bind == "" {
		bind = c.Bind
	}

	if path == "" {
		path = c.Path
	}

	baseServer, err := internal.NewBaseServer(newListener(bind, path, c), reg, options)
	if err != nil {
		return nil, err
	}

	s := &Server{
		BaseServer: baseServer,
		bind:       bind,
		path:       path,
	}

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	log.Infof("[websocket.Server] starting on %s%s", s.bind, s.path)
	return s.BaseServer.Start(ctx)
}

func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[websocket.Server] stopping")
	return s.BaseServer.Stop(ctx)
}

func (s *Server) Endpoint() (*url.URL, error) {
	return s.BaseServer.Endpoint()
}
