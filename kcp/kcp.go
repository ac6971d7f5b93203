// Package kcp serves and dials the DBE protocol over KCP, optionally
// multiplexing several engine sessions over one KCP session with smux.
package kcp

import (
	"github.com/go-pantheon/fabrica-dbe/client"
	"github.com/go-pantheon/fabrica-dbe/handler"
	kcpclient "github.com/go-pantheon/fabrica-dbe/kcp/client"
	kcpserver "github.com/go-pantheon/fabrica-dbe/kcp/server"
	"github.com/go-pantheon/fabrica-dbe/server"
)

// NewServer creates a new KCP server
func NewServer(bind string, reg *handler.Registry, opts ...server.Option) (*kcpserver.Server, error) {
	return kcpserver.NewServer(bind, reg, opts...)
}

// NewClient creates a new KCP client
func NewClient(id int64, target string, opts ...client.Option) (*kcpclient.Client, error) {
	return kcpclient.NewClient(id, target, opts...)
}
