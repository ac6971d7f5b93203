package server

import (
	"context"

	"github.com/go-pantheon/fabrica-dbe/xnet"
)

// Inspector wraps the hook run when a session connects or disconnects.
type Inspector func(InspectorFunc) InspectorFunc

type InspectorFunc func(ctx context.Context, s xnet.Session) error

func emptyInspector(f InspectorFunc) InspectorFunc {
	return f
}

func EmptyInspectorFunc(_ context.Context, _ xnet.Session) error {
	return nil
}

func Wrap(w ...Inspector) Inspector {
	return func(f InspectorFunc) InspectorFunc {
		for i := len(w) - 1; i >= 0; i-- {
			f = w[i](f)
		}

		return f
	}
}
