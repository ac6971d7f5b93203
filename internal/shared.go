package internal

import (
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/internal/bufpool"
	"github.com/go-pantheon/fabrica-dbe/internal/workerpool"
	"github.com/go-pantheon/fabrica-util/errors"
)

// Shared holds what every engine of a process uses together: the handler
// table, the worker pool and the buffer pools. Each engine keeps its own
// cancellation registry and transmitter.
type Shared struct {
	Registry   *handler.Registry
	Workers    *workerpool.Pool
	Responses  *ResponsePool
	Bodies     *bufpool.Pool
	Middleware middleware.Middleware
	// Stopping is the cooperative stop flag checked before each frame.
	Stopping func() bool
}

// NewShared applies the cancellable overrides of c to reg and builds the
// pools.
func NewShared(c conf.Engine, reg *handler.Registry, mw middleware.Middleware) (*Shared, error) {
	if reg == nil {
		return nil, errors.New("handler registry is nil")
	}

	for _, name := range c.Cancellable {
		if err := reg.SetCancelMode(name, handler.CancelDefault); err != nil {
			return nil, err
		}
	}

	for _, name := range c.ImmediateCancel {
		if err := reg.SetCancelMode(name, handler.CancelImmediate); err != nil {
			return nil, err
		}
	}

	bodies, err := bufpool.New(bufpool.DefaultThresholds)
	if err != nil {
		return nil, err
	}

	return &Shared{
		Registry:   reg,
		Workers:    workerpool.New(c.MaxWorkers),
		Responses:  NewResponsePool(c.SmallResponseSize, c.SmallPoolCapacity, c.LargePoolCapacity),
		Bodies:     bodies,
		Middleware: mw,
	}, nil
}

func (s *Shared) stopping() bool {
	return s.Stopping != nil && s.Stopping()
}

// Close drains the worker pool. Every item submitted before returns has run.
func (s *Shared) Close() {
	s.Workers.Drain()
}

// Status is a point-in-time view of the shared pools.
type Status struct {
	Commands  []string         `json:"commands"`
	Workers   workerpool.Stats `json:"workers"`
	Responses PoolStats        `json:"responses"`
	Bodies    bufpool.Stats    `json:"bodies"`
}

func (s *Shared) Status() Status {
	return Status{
		Commands:  s.Registry.Names(),
		Workers:   s.Workers.Stats(),
		Responses: s.Responses.Stats(),
		Bodies:    s.Bodies.Stats(),
	}
}
