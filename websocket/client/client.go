package websocket

import (
	"github.com/go-pantheon/fabrica-dbe/client"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

var _ xnet.Client = (*Client)(nil)

// Client is a DBE client over websocket.
type Client struct {
	*internal.BaseClient

	url string
}

func NewClient(id int64, url string, opts ...client.Option) *Client {
	dialer := newDialer(id, url, "", client.NewOptions(opts...).Conf().WebSocket)

	return &Client{
		BaseClient: internal.NewBaseClient(id, dialer, opts...),
		url:        url,
	}
}

func (c *Client) URL() string {
	return c.url
}
