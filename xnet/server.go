package xnet

import (
	"context"
	"io"

	"github.com/go-kratos/kratos/v2/transport"
)

// Server is implemented by every transport that serves the DBE protocol.
type Server interface {
	transport.Server
	transport.Endpointer
}

// Session is one engine bound to one byte stream, as seen by connection
// inspectors.
type Session interface {
	ID() uint64
	Endpoint() string
	Conn() io.ReadWriter
	Stop(ctx context.Context) error
}

// Client is a dialed peer of a DBE server.
type Client interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Target() string
}
