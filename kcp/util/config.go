// Package util holds the KCP tuning shared by the listener and the dialer.
package util

import (
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-util/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
)

// Validate rejects KCP settings kcp-go or smux would refuse or misbehave on.
func Validate(c conf.KCP) error {
	if c.MTU < 576 || c.MTU > 1500 {
		return errors.Errorf("invalid MTU: %d, must be between 576 and 1500", c.MTU)
	}

	if c.DataShards < 0 || c.DataShards > 255 {
		return errors.Errorf("invalid DataShards: %d, must be between 0 and 255", c.DataShards)
	}

	if c.ParityShards < 0 || c.ParityShards > 255 {
		return errors.Errorf("invalid ParityShards: %d, must be between 0 and 255", c.ParityShards)
	}

	if c.WindowSize[0] <= 0 || c.WindowSize[1] <= 0 {
		return errors.Errorf("invalid WindowSize: %v, both send and receive windows must be positive", c.WindowSize)
	}

	if !c.Smux {
		return nil
	}

	if err := smux.VerifyConfig(SmuxConfig(c)); err != nil {
		return errors.Wrapf(err, "invalid smux config")
	}

	return nil
}

// ConfigureSession applies the protocol parameters to one KCP session.
func ConfigureSession(conn *kcpgo.UDPSession, c conf.KCP) {
	conn.SetNoDelay(c.NoDelay[0], c.NoDelay[1], c.NoDelay[2], c.NoDelay[3])
	conn.SetWindowSize(c.WindowSize[0], c.WindowSize[1])
	conn.SetMtu(c.MTU)
	conn.SetACKNoDelay(c.ACKNoDelay)
	conn.SetWriteDelay(c.WriteDelay)
	// the engine reads a byte stream, message boundaries do not matter
	conn.SetStreamMode(true)
}

// Socket is the UDP socket side of a kcp-go listener or client session.
type Socket interface {
	SetReadBuffer(bytes int) error
	SetWriteBuffer(bytes int) error
	SetDSCP(dscp int) error
}

func ConfigureSocket(s Socket, c conf.KCP) error {
	if err := s.SetReadBuffer(c.ReadBufSize); err != nil {
		return errors.Wrapf(err, "set read buffer failed")
	}

	if err := s.SetWriteBuffer(c.WriteBufSize); err != nil {
		return errors.Wrapf(err, "set write buffer failed")
	}

	if err := s.SetDSCP(c.DSCP); err != nil {
		return errors.Wrapf(err, "set dscp failed")
	}

	return nil
}

func SmuxConfig(c conf.KCP) *smux.Config {
	smuxConfig := smux.DefaultConfig()
	smuxConfig.Version = 2
	smuxConfig.KeepAliveInterval = c.KeepAliveInterval
	smuxConfig.KeepAliveTimeout = c.KeepAliveTimeout
	smuxConfig.MaxFrameSize = c.MaxFrameSize
	smuxConfig.MaxReceiveBuffer = c.MaxReceiveBuffer

	return smuxConfig
}
