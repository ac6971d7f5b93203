package client

import (
	"time"

	"github.com/go-pantheon/fabrica-dbe/conf"
)

type Option func(o *Options)

func WithConf(conf conf.Config) Option {
	return func(o *Options) {
		o.conf = conf
	}
}

// WithFirstRequestID sets the id of the first request. Ids increase by one.
func WithFirstRequestID(id int32) Option {
	return func(o *Options) {
		o.firstID = id
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.stopTimeout = d
	}
}

type Options struct {
	conf        conf.Config
	firstID     int32
	stopTimeout time.Duration
}

func NewOptions(opts ...Option) *Options {
	o := &Options{
		conf:        conf.Default(),
		firstID:     1,
		stopTimeout: time.Second * 10,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *Options) Conf() conf.Config {
	return o.conf
}

// CallOption configures a single Call.
type CallOption func(c *callOptions)

type callOptions struct {
	progress func(percent int32, msg string)
}

// WithProgress receives the progress frames of the call. f runs on the
// receive goroutine and must not block.
func WithProgress(f func(percent int32, msg string)) CallOption {
	return func(c *callOptions) {
		c.progress = f
	}
}
