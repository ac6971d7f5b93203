package client

import (
	"context"
	"net"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/kcp/util"
	"github.com/go-pantheon/fabrica-util/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
)

var _ internal.Dialer = (*Dialer)(nil)

type Dialer struct {
	id     int64
	target string
	conf   conf.KCP
}

func NewDialer(id int64, target string, c conf.KCP) (*Dialer, error) {
	if err := util.Validate(c); err != nil {
		return nil, err
	}

	return &Dialer{
		id:     id,
		target: target,
		conf:   c,
	}, nil
}

// Dial returns the KCP session itself, or its first smux stream when smux
// is enabled.
func (d *Dialer) Dial(ctx context.Context, target string) (net.Conn, error) {
	conn, err := kcpgo.DialWithOptions(target, nil, d.conf.DataShards, d.conf.ParityShards)
	if err != nil {
		return nil, errors.Wrapf(err, "kcp dial failed. target=%s", target)
	}

	util.ConfigureSession(conn, d.conf)

	if err := util.ConfigureSocket(conn, d.conf); err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	if !d.conf.Smux {
		return conn, nil
	}

	session, err := smux.Client(conn, util.SmuxConfig(d.conf))
	if err != nil {
		return nil, errors.Join(errors.Wrapf(err, "create smux session failed"), conn.Close())
	}

	stream, err := session.OpenStream()
	if err != nil {
		return nil, errors.Join(errors.Wrapf(err, "open smux stream failed"), session.Close())
	}

	return &sessionStream{Stream: stream, session: session}, nil
}

func (d *Dialer) Target() string {
	return d.target
}

// sessionStream owns the smux session under a stream. Closing the session
// closes the KCP connection.
type sessionStream struct {
	*smux.Stream

	session *smux.Session
}

func (s *sessionStream) Close() error {
	return errors.Join(s.Stream.Close(), s.session.Close())
}
