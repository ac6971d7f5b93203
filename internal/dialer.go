package internal

import (
	"context"
	"net"
)

// Dialer defines the interface for protocol-specific connection dialing
type Dialer interface {
	// Dial establishes a byte stream to the target
	Dial(ctx context.Context, target string) (net.Conn, error)

	// Target returns the target address/URL for this dialer
	Target() string
}
