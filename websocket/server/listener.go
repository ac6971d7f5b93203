package websocket

import (
	"context"
	"net"
	"net/http"
	"slices"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/internal"
	"github.com/go-pantheon/fabrica-dbe/internal/util"
	"github.com/go-pantheon/fabrica-dbe/websocket/wsconn"
	"github.com/go-pantheon/fabrica-util/errors"
	"github.com/go-pantheon/fabrica-util/xsync"
	"github.com/gorilla/websocket"
)

var _ internal.Listener = (*listener)(nil)

var ErrListenerClosed = errors.Wrap(net.ErrClosed, "websocket listener closed")

type listener struct {
	bind string
	path string
	conf conf.WebSocket

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	idGener  *internal.SessionIDGenerator
	connChan chan internal.ConnWrapper
	closed   chan struct{}
}

func newListener(bind string, path string, c conf.WebSocket) *listener {
	return &listener{
		bind:     bind,
		path:     path,
		conf:     c,
		idGener:  internal.NewSessionIDGenerator(internal.NetTypeWebSocket),
		connChan: make(chan internal.ConnWrapper, 64),
		closed:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  c.ReadBufSize,
			WriteBufferSize: c.WriteBufSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(c.AllowOrigins) == 0 {
					return true
				}

				return slices.Contains(c.AllowOrigins, "*") || slices.Contains(c.AllowOrigins, origin)
			},
		},
	}
}

func (l *listener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleWebSocket)

	l.server = &http.Server{
		Addr:         l.bind,
		Handler:      mux,
		ReadTimeout:  l.conf.ReadTimeout,
		WriteTimeout: l.conf.WriteTimeout,
	}

	listener, err := net.Listen("tcp", l.bind)
	if err != nil {
		return errors.Wrapf(err, "listen failed. bind=%s", l.bind)
	}

	l.listener = listener

	xsync.Go("websocket.Listener", func() error {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return nil
}

func (l *listener) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("[websocket.Listener] upgrade failed: %+v", err)
		return
	}

	// hijacked connections outlive the http server, so they are not bound to
	// the request context
	wrapper := internal.NewConnWrapper(l.idGener.Next(), wsconn.NewWebSocketConn(conn))

	select {
	case l.connChan <- wrapper:
	case <-l.closed:
		_ = wrapper.Conn.Close()
	default:
		log.Error("[websocket.Listener] connection channel full, dropping connection")
		_ = wrapper.Conn.Close()
	}
}

func (l *listener) Stop(ctx context.Context) error {
	close(l.closed)

	if l.server != nil {
		// Shutdown closes the net.Listener
		if err := l.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (l *listener) Accept(ctx context.Context) (internal.ConnWrapper, error) {
	select {
	case <-ctx.Done():
		return internal.ConnWrapper{}, ctx.Err()
	case <-l.closed:
		return internal.ConnWrapper{}, ErrListenerClosed
	case wrapper := <-l.connChan:
		return wrapper, nil
	}
}

func (l *listener) Endpoint() (string, error) {
	if l.listener == nil {
		return "", errors.New("listener not started")
	}

	addr, err := util.Extract(l.bind, l.listener)
	if err != nil {
		return "", err
	}

	return "ws://" + addr + l.path, nil
}
