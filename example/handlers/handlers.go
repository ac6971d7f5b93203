// Package handlers is a small debugger-like command table used by the
// examples.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-util/errors"
)

var start = time.Now()

// New returns the demo commands:
//
//	getClock(int)          int     the argument times six
//	getUptime()            double  seconds since start
//	getSource(string)      string  a fake listing of a file
//	getCallTree(int)       string  slow, cancellable, reports progress
//	getFunctionList(int)   string  slow, cancelled immediately
func New() (*handler.Registry, error) {
	return handler.NewRegistry(
		handler.Descriptor{
			Name:    "getClock",
			Args:    []codec.Kind{codec.KindInteger},
			Handler: getClock,
		},
		handler.Descriptor{
			Name:    "getUptime",
			Handler: getUptime,
		},
		handler.Descriptor{
			Name:    "getSource",
			Args:    []codec.Kind{codec.KindString},
			Handler: getSource,
		},
		handler.Descriptor{
			Name:    "getCallTree",
			Args:    []codec.Kind{codec.KindInteger},
			Cancel:  handler.CancelDefault,
			Handler: slow("call tree"),
		},
		handler.Descriptor{
			Name:    "getFunctionList",
			Args:    []codec.Kind{codec.KindInteger},
			Cancel:  handler.CancelImmediate,
			Handler: slow("function list"),
		},
	)
}

func getClock(_ context.Context, c *handler.Call) (any, error) {
	x, err := c.Int(0)
	if err != nil {
		return nil, err
	}

	return x * 6, nil
}

func getUptime(context.Context, *handler.Call) (any, error) {
	return time.Since(start).Seconds(), nil
}

func getSource(_ context.Context, c *handler.Call) (any, error) {
	file, err := c.String(0)
	if err != nil {
		return nil, err
	}

	if file == "" {
		return nil, errors.New("file name is empty")
	}

	return fmt.Sprintf("// %s\nint main() { return 0; }\n", file), nil
}

// slow runs for steps*10ms and stops early once cancelled.
func slow(what string) handler.Func {
	return func(_ context.Context, c *handler.Call) (any, error) {
		steps, err := c.Int(0)
		if err != nil {
			return nil, err
		}

		for i := range steps {
			if c.Cancelled() {
				return fmt.Sprintf("%s cancelled after %d of %d entries", what, i, steps), nil
			}

			time.Sleep(10 * time.Millisecond)

			if err := c.Progress((i+1)*100/steps, what); err != nil {
				return nil, err
			}
		}

		return fmt.Sprintf("%s with %d entries", what, steps), nil
	}
}
