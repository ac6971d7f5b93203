package server

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/websocket/wsconn"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

type Option func(o *Options)

func WithConf(conf conf.Config) Option {
	return func(o *Options) {
		o.conf = conf
	}
}

// WithLogger installs logger as the global kratos logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// WithMiddleware appends m to the chain wrapping every handler call.
func WithMiddleware(m middleware.Middleware) Option {
	return func(o *Options) {
		if o.middleware == nil {
			o.middleware = m
			return
		}

		o.middleware = middleware.Chain(o.middleware, m)
	}
}

// WithStopFlag sets the cooperative stop flag polled by every session
// before it reads the next frame.
func WithStopFlag(stopping func() bool) Option {
	return func(o *Options) {
		o.stopping = stopping
	}
}

func WithAfterConnect(f Inspector) Option {
	return func(o *Options) {
		o.afterConnect = Wrap(o.afterConnect, f)
	}
}

func WithAfterDisconnect(f Inspector) Option {
	return func(o *Options) {
		o.afterDisconnect = Wrap(o.afterDisconnect, f)
	}
}

func WithWsReadLimit(limit int64) Option {
	return func(o *Options) {
		o.afterConnect = Wrap(o.afterConnect, func(f InspectorFunc) InspectorFunc {
			return func(ctx context.Context, s xnet.Session) error {
				if conn, ok := s.Conn().(*wsconn.WebSocketConn); ok {
					conn.SetReadLimit(limit)
				}

				return f(ctx, s)
			}
		})
	}
}

func WithPongRenewal(timeout time.Duration) Option {
	return func(o *Options) {
		o.afterConnect = Wrap(o.afterConnect, func(f InspectorFunc) InspectorFunc {
			return func(ctx context.Context, s xnet.Session) error {
				if conn, ok := s.Conn().(*wsconn.WebSocketConn); ok {
					conn.SetPongHandler(func(string) error {
						return conn.SetReadDeadline(time.Now().Add(timeout))
					})
				}

				return f(ctx, s)
			}
		})
	}
}

type Options struct {
	conf            conf.Config
	logger          log.Logger
	middleware      middleware.Middleware
	stopping        func() bool
	afterConnect    Inspector
	afterDisconnect Inspector
}

func NewOptions(opts ...Option) *Options {
	ret := &Options{
		conf: conf.Default(),
		middleware: middleware.Chain(
			recovery.Recovery(),
		),
		afterConnect:    emptyInspector,
		afterDisconnect: emptyInspector,
	}

	for _, o := range opts {
		o(ret)
	}

	return ret
}

func (o *Options) Conf() conf.Config {
	return o.conf
}

// Logger is nil unless WithLogger was given.
func (o *Options) Logger() log.Logger {
	return o.logger
}

func (o *Options) Middleware() middleware.Middleware {
	return o.middleware
}

func (o *Options) Stopping() func() bool {
	return o.stopping
}

func (o *Options) AfterConnect() Inspector {
	return o.afterConnect
}

func (o *Options) AfterDisconnect() Inspector {
	return o.afterDisconnect
}
