package client

import (
	"github.com/go-pantheon/fabrica-dbe/client"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

var _ xnet.Client = (*Client)(nil)

// Client is a DBE client over KCP.
type Client struct {
	*internal.BaseClient
}

func NewClient(id int64, target string, opts ...client.Option) (*Client, error) {
	dialer, err := NewDialer(id, target, client.NewOptions(opts...).Conf().KCP)
	if err != nil {
		return nil, err
	}

	return &Client{
		BaseClient: internal.NewBaseClient(id, dialer, opts...),
	}, nil
}
