package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/kcp/util"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	kcpgo "github.com/xtaci/kcp-go/v5"
)

var _ internal.Listener = (*Listener)(nil)

// Listener implements internal.Listener for KCP. With smux enabled every
// stream of a KCP session becomes its own engine session.
type Listener struct {
	xsync.Stoppable

	bind       string
	conf       conf.KCP
	listener   *kcpgo.Listener
	idGener    *internal.SessionIDGenerator
	streamChan chan internal.ConnWrapper

	smuxIDGenerator *atomic.Int64
	smuxSessions    *sync.Map
}

func newListener(bind string, c conf.KCP) (*Listener, error) {
	if err := util.Validate(c); err != nil {
		return nil, err
	}

	return &Listener{
		Stoppable:       xsync.NewStopper(10 * time.Second),
		bind:            bind,
		conf:            c,
		idGener:         internal.NewSessionIDGenerator(internal.NetTypeKCP),
		streamChan:      make(chan internal.ConnWrapper, 64),
		smuxIDGenerator: &atomic.Int64{},
		smuxSessions:    &sync.Map{},
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	listener, err := kcpgo.ListenWithOptions(l.bind, nil, l.conf.DataShards, l.conf.ParityShards)
	if err != nil {
		return errors.Wrapf(err, "kcp listen failed. bind=%s", l.bind)
	}

	if err := util.ConfigureSocket(listener, l.conf); err != nil {
		return errors.Join(err, listener.Close())
	}

	l.listener = listener

	if l.conf.Smux {
		l.GoAndStop("kcp.Listener.acceptSessions", func() error {
			return l.acceptSessions(ctx)
		}, func() error {
			return l.Stop(ctx)
		})
	}

	return nil
}

func (l *Listener) Accept(ctx context.Context) (internal.ConnWrapper, error) {
	if !l.conf.Smux {
		return l.accept()
	}

	select {
	case <-l.StopTriggered():
		return internal.ConnWrapper{}, xsync.ErrStopByTrigger
	case <-ctx.Done():
		return internal.ConnWrapper{}, ctx.Err()
	case conn := <-l.streamChan:
		return conn, nil
	}
}

func (l *Listener) accept() (internal.ConnWrapper, error) {
	conn, err := l.listener.AcceptKCP()
	if err != nil {
		return internal.ConnWrapper{}, errors.Wrapf(err, "accept kcp failed")
	}

	util.ConfigureSession(conn, l.conf)

	return internal.NewConnWrapper(l.idGener.Next(), conn), nil
}

func (l *Listener) acceptSessions(ctx context.Context) error {
	for {
		select {
		case <-l.StopTriggered():
			return xsync.ErrStopByTrigger
		case <-ctx.Done():
			return ctx.Err()
		default:
			wrapper, err := l.accept()
			if err != nil {
				return err
			}

			if err := l.startSmux(ctx, wrapper); err != nil {
				log.Errorf("[kcp.Listener] %+v", err)
			}
		}
	}
}

func (l *Listener) startSmux(ctx context.Context, wrapper internal.ConnWrapper) error {
	id := l.smuxIDGenerator.Add(1)
	conn := wrapper.Conn.(*kcpgo.UDPSession)

	smux, err := newSmux(id, conn, l.conf, l.idGener)
	if err != nil {
		return errors.Join(errors.Wrapf(err, "new smux failed"), conn.Close())
	}

	l.smuxSessions.Store(id, smux)

	smux.GoAndStop(fmt.Sprintf("kcp.Listener.smux-%d", id), func() error {
		return smux.start(ctx, l.streamChan)
	}, func() error {
		l.smuxSessions.Delete(id)
		return smux.stop()
	})

	return nil
}

func (l *Listener) Stop(ctx context.Context) (err error) {
	return l.TurnOff(func() error {
		l.smuxSessions.Range(func(key, value any) bool {
			if stopErr := value.(*Smux).stop(); stopErr != nil {
				err = errors.JoinUnsimilar(err, stopErr)
			}

			return true
		})

		if l.listener != nil {
			if closeErr := l.listener.Close(); closeErr != nil {
				err = errors.Join(err, errors.Wrapf(closeErr, "close listener failed"))
			}
		}

		return err
	})
}

func (l *Listener) Endpoint() (string, error) {
	if l.listener == nil {
		return "", errors.New("listener not started")
	}

	return "kcp://" + l.listener.Addr().String(), nil
}
