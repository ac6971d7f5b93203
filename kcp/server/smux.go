package server

import (
	"context"
	"time"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/kcp/util"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	kcpgo "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
)

// Smux accepts the streams of one multiplexed KCP session.
type Smux struct {
	xsync.Stoppable

	id      int64
	conn    *kcpgo.UDPSession
	session *smux.Session
	idGener *internal.SessionIDGenerator
}

func newSmux(id int64, conn *kcpgo.UDPSession, c conf.KCP, idGener *internal.SessionIDGenerator) (*Smux, error) {
	session, err := smux.Server(conn, util.SmuxConfig(c))
	if err != nil {
		return nil, errors.Wrapf(err, "create smux session failed")
	}

	return &Smux{
		Stoppable: xsync.NewStopper(10 * time.Second),
		id:        id,
		conn:      conn,
		session:   session,
		idGener:   idGener,
	}, nil
}

func (s *Smux) start(ctx context.Context, streamChan chan<- internal.ConnWrapper) error {
	for {
		select {
		case <-s.StopTriggered():
			return xsync.ErrStopByTrigger
		case <-ctx.Done():
			return ctx.Err()
		default:
			stream, err := s.session.AcceptStream()
			if err != nil {
				return errors.Wrapf(err, "accept smux stream failed. smux=%d", s.id)
			}

			select {
			case streamChan <- internal.NewConnWrapper(s.idGener.Next(), stream):
			case <-s.StopTriggered():
				return errors.Join(xsync.ErrStopByTrigger, stream.Close())
			}
		}
	}
}

func (s *Smux) stop() error {
	return s.TurnOff(func() (err error) {
		if s.session != nil {
			if closeErr := s.session.Close(); closeErr != nil {
				err = errors.Join(err, errors.Wrapf(closeErr, "close smux session failed"))
			}
		}

		if s.conn != nil {
			if closeErr := s.conn.Close(); closeErr != nil {
				err = errors.Join(err, errors.Wrapf(closeErr, "smux close kcp connection failed"))
			}
		}

		return err
	})
}
