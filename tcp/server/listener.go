package tcp

import (
	"context"
	"net"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/internal/util"
	"github.com/go-pantheon/fabrica-util/errors"
)

var _ internal.Listener = (*Listener)(nil)

type Listener struct {
	bind     string
	conf     conf.TCP
	listener *net.TCPListener
	idGener  *internal.SessionIDGenerator
}

func newListener(bind string, conf conf.TCP) *Listener {
	return &Listener{
		bind:    bind,
		conf:    conf,
		idGener: internal.NewSessionIDGenerator(internal.NetTypeTCP),
	}
}

func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveTCPAddr("tcp", l.bind)
	if err != nil {
		return errors.Wrapf(err, "resolve bind failed. bind=%s", l.bind)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen failed. addr=%s", addr.String())
	}

	util.SetDeadlineWithContext(ctx, listener, "TcpListener")
	l.listener = listener

	return nil
}

func (l *Listener) Stop(ctx context.Context) error {
	if l.listener != nil {
		return l.listener.Close()
	}

	return nil
}

func (l *Listener) Accept(ctx context.Context) (wrapper internal.ConnWrapper, err error) {
	conn, err := l.listener.AcceptTCP()
	if err != nil {
		return internal.ConnWrapper{}, errors.Wrapf(err, "accept failed")
	}

	defer func() {
		if err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				err = errors.Join(err, errors.Wrapf(closeErr, "close tcp connection failed"))
			}
		}
	}()

	if err := configure(conn, l.conf); err != nil {
		return internal.ConnWrapper{}, errors.Wrapf(err, "configure connection failed")
	}

	return internal.NewConnWrapper(l.idGener.Next(), conn), nil
}

func configure(conn *net.TCPConn, c conf.TCP) error {
	if err := conn.SetKeepAlive(c.KeepAlive); err != nil {
		return errors.Wrapf(err, "SetKeepAlive failed v=%v", c.KeepAlive)
	}

	// the protocol is chatty with small frames
	if err := conn.SetNoDelay(true); err != nil {
		return errors.Wrapf(err, "SetNoDelay failed")
	}

	if err := conn.SetReadBuffer(c.ReadBufSize); err != nil {
		return errors.Wrapf(err, "SetReadBuffer failed v=%d", c.ReadBufSize)
	}

	if err := conn.SetWriteBuffer(c.WriteBufSize); err != nil {
		return errors.Wrapf(err, "SetWriteBuffer failed v=%d", c.WriteBufSize)
	}

	return nil
}

func (l *Listener) Endpoint() (string, error) {
	if l.listener == nil {
		return "", errors.New("listener not started")
	}

	addr, err := util.Extract(l.bind, l.listener)
	if err != nil {
		return "", err
	}

	return "tcp://" + addr, nil
}
