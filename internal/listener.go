package internal

import (
	"context"
	"net"
	"sync/atomic"
)

const (
	NetTypeStdio = iota
	NetTypeTCP
	NetTypeWebSocket
	NetTypeKCP
)

// Listener defines the interface for protocol-specific connection handling
type Listener interface {
	// Start starts the listener and begins accepting connections
	Start(ctx context.Context) error

	// Stop stops the listener gracefully
	Stop(ctx context.Context) error

	// Accept blocks until a new byte stream is available
	Accept(ctx context.Context) (ConnWrapper, error)

	// Endpoint returns the endpoint URL for this listener
	Endpoint() (string, error)
}

type ConnWrapper struct {
	ID   uint64
	Conn net.Conn
}

func NewConnWrapper(id uint64, conn net.Conn) ConnWrapper {
	return ConnWrapper{
		ID:   id,
		Conn: conn,
	}
}

// SessionIDGenerator hands out session ids whose low four bits carry the
// network type.
type SessionIDGenerator struct {
	counter *atomic.Uint64
	netType int
}

func NewSessionIDGenerator(netType int) *SessionIDGenerator {
	return &SessionIDGenerator{
		counter: &atomic.Uint64{},
		netType: netType,
	}
}

func (g *SessionIDGenerator) Next() uint64 {
	return g.counter.Add(1)<<4 | uint64(g.netType)
}

// NetType extracts the network type from a session id.
func NetType(id uint64) int {
	return int(id & 0xf)
}
