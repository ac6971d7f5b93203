package internal

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/client"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
)

var _ xnet.Client = (*BaseClient)(nil)

var ErrNotStarted = errors.New("client not started")

// BaseClient dials a transport, verifies the protocol version with a
// handshake and then exposes the protocol client.
type BaseClient struct {
	*client.Client

	Id      int64
	opts    []client.Option
	dialer  Dialer
	version int32
}

func NewBaseClient(id int64, dialer Dialer, opts ...client.Option) *BaseClient {
	return &BaseClient{
		Id:     id,
		opts:   opts,
		dialer: dialer,
	}
}

func (c *BaseClient) Start(ctx context.Context) (err error) {
	conn, err := c.dialer.Dial(ctx, c.dialer.Target())
	if err != nil {
		return errors.Wrapf(err, "connect failed. target=%s", c.dialer.Target())
	}

	c.Client = client.New(conn, c.opts...)

	if err = c.Client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			if stopErr := c.Client.Stop(ctx); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}
	}()

	if c.version, err = c.Handshake(ctx); err != nil {
		return errors.Wrapf(err, "handshake failed. target=%s", c.dialer.Target())
	}

	if c.version != xnet.ProtocolVersion {
		return errors.Errorf("protocol version mismatch. want=%d got=%d", xnet.ProtocolVersion, c.version)
	}

	log.Infof("[client] %d started. target=%s version=%d", c.Id, c.dialer.Target(), c.version)

	return nil
}

func (c *BaseClient) Stop(ctx context.Context) error {
	if c.Client == nil {
		return ErrNotStarted
	}

	return c.Client.Stop(ctx)
}

// Version is the protocol version reported by the server.
func (c *BaseClient) Version() int32 {
	return c.version
}

func (c *BaseClient) Target() string {
	return c.dialer.Target()
}
