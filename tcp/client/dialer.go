package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/internal/util"
	"github.com/go-pantheon/fabrica-util/errors"
)

var _ internal.Dialer = (*dialer)(nil)

type dialer struct {
	bind string
	id   int64
}

func newDialer(id int64, bind string) *dialer {
	return &dialer{
		bind: bind,
		id:   id,
	}
}

func (d *dialer) Dial(ctx context.Context, target string) (net.Conn, error) {
	var nd net.Dialer

	conn, err := nd.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, errors.Wrapf(err, "connect failed. addr=%s", target)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			return nil, errors.Join(errors.Wrapf(err, "SetNoDelay failed"), conn.Close())
		}
	}

	util.SetDeadlineWithContext(ctx, conn, fmt.Sprintf("client=%d", d.id))

	return conn, nil
}

func (d *dialer) Target() string {
	return d.bind
}
