package internal

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/internal/metrics"
	"github.com/go-pantheon/fabrica-dbe/internal/util"
	"github.com/go-pantheon/fabrica-dbe/server"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
)

const (
	stopTimeout = time.Second * 30
)

var _ xnet.Server = (*BaseServer)(nil)

var ErrSessionNotFound = errors.New("session not found")

// BaseServer accepts byte streams from a Listener and serves each one with
// its own Engine. All sessions share the worker pool and the buffer pools.
type BaseServer struct {
	xsync.Stoppable
	*server.Options

	shared   *Shared
	sessions *SessionManager
	listener Listener
}

func NewBaseServer(listener Listener, reg *handler.Registry, options *server.Options) (*BaseServer, error) {
	if options == nil {
		options = server.NewOptions()
	}

	if options.Logger() != nil {
		log.SetLogger(options.Logger())
	}

	shared, err := NewShared(options.Conf().Engine, reg, options.Middleware())
	if err != nil {
		return nil, err
	}

	shared.Stopping = options.Stopping()

	s := &BaseServer{
		Stoppable: xsync.NewStopper(stopTimeout),
		Options:   options,
		shared:    shared,
		sessions:  newSessionManager(options.Conf().Bucket),
		listener:  listener,
	}

	return s, nil
}

func (s *BaseServer) Start(ctx context.Context) error {
	if err := s.listener.Start(ctx); err != nil {
		return err
	}

	s.GoAndStop("BaseServer.acceptLoop", func() error {
		return s.acceptLoop(ctx)
	}, func() error {
		return s.Stop(ctx)
	})

	return nil
}

func (s *BaseServer) acceptLoop(ctx context.Context) error {
	for {
		select {
		case <-s.StopTriggered():
			return xsync.ErrStopByTrigger
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.accept(ctx); err != nil {
				if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, xsync.ErrStopByTrigger) {
					return err
				}

				log.Errorf("[BaseServer] %+v", err)
			}
		}
	}
}

func (s *BaseServer) accept(ctx context.Context) error {
	conn, err := s.listener.Accept(ctx)
	if err != nil {
		return errors.Wrapf(err, "accept failed")
	}

	xsync.Go(fmt.Sprintf("BaseServer.serve-%d", conn.ID), func() error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		return s.serve(ctx, conn.ID, conn.Conn)
	})

	return nil
}

func (s *BaseServer) serve(ctx context.Context, id uint64, conn net.Conn) (err error) {
	e := NewEngine(id, util.RemoteAddr(conn), conn, s.shared, s.Conf().Engine)

	defer func() {
		if stopErr := e.Stop(ctx); stopErr != nil {
			err = errors.Join(err, stopErr)
		}

		if aferr := s.AfterDisconnect()(server.EmptyInspectorFunc)(ctx, e); aferr != nil {
			err = errors.Join(err, aferr)
		}

		if err != nil {
			err = errors.WithMessagef(err, "session=%d endpoint=%s", id, e.Endpoint())
		}
	}()

	if old := s.sessions.Put(e); old != nil {
		return errors.Errorf("duplicate session id %d", id)
	}

	defer s.sessions.Del(id)

	metrics.SessionsLive.Inc()
	defer metrics.SessionsLive.Dec()

	if err := s.AfterConnect()(server.EmptyInspectorFunc)(ctx, e); err != nil {
		return err
	}

	log.Debugf("[BaseServer] session %d connected from %s", id, e.Endpoint())

	return e.Run(ctx)
}

func (s *BaseServer) Stop(ctx context.Context) (err error) {
	return s.TurnOff(func() error {
		if s.listener != nil {
			if stopErr := s.listener.Stop(ctx); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}

		wg := sync.WaitGroup{}

		s.sessions.Walk(func(ss xnet.Session) (continued bool) {
			wg.Add(1)

			xsync.Go(fmt.Sprintf("BaseServer.stopSession-%d", ss.ID()), func() error {
				defer wg.Done()
				return ss.Stop(ctx)
			})

			return true
		})

		wg.Wait()

		s.shared.Close()

		log.Infof("[BaseServer] stopped.")

		return err
	})
}

// Disconnect stops the session with the given id.
func (s *BaseServer) Disconnect(ctx context.Context, id uint64) error {
	if s.OnStopping() {
		return xsync.ErrIsStopped
	}

	ss := s.sessions.Session(id)
	if ss == nil {
		return ErrSessionNotFound
	}

	s.sessions.Del(id)

	return ss.Stop(ctx)
}

func (s *BaseServer) SessionIDs() []uint64 {
	if s.OnStopping() {
		return nil
	}

	ids := make([]uint64, 0, s.sessions.Size())

	s.sessions.Walk(func(ss xnet.Session) bool {
		ids = append(ids, ss.ID())
		return true
	})

	return ids
}

// Shared exposes the registry and pools shared by all sessions.
func (s *BaseServer) Shared() *Shared {
	return s.shared
}

func (s *BaseServer) Endpoint() (*url.URL, error) {
	endpointStr, err := s.listener.Endpoint()
	if err != nil {
		return nil, err
	}

	return url.Parse(endpointStr)
}
