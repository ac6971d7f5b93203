package tcp

import (
	"github.com/go-pantheon/fabrica-dbe/client"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

var _ xnet.Client = (*Client)(nil)

// Client is a DBE client over TCP. Start dials and handshakes.
type Client struct {
	*internal.BaseClient
}

func NewClient(id int64, bind string, opts ...client.Option) *Client {
	return &Client{
		BaseClient: internal.NewBaseClient(id, newDialer(id, bind), opts...),
	}
}
