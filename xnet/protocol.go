// Package xnet holds the DBE IPC protocol constants and header framing shared
// by the engine and the client.
package xnet

import "fmt"

const (
	// Marker starts every request and response header. It is the only byte of
	// a header that is not hex encoded.
	Marker byte = 0xff

	// ProtocolVersion is announced in the length field of a handshake response.
	ProtocolVersion int32 = 38

	// RequestHeaderSize is marker + id(8) + kind(2) + channel(8) + length(8).
	RequestHeaderSize = 1 + 8 + 2 + 8 + 8
	// ResponseHeaderSize is marker + id(8) + kind(2) + status(2) + length(8).
	ResponseHeaderSize = 1 + 8 + 2 + 2 + 8

	// MaxBodySize bounds the body a peer may announce for a single request.
	MaxBodySize = int32(1 << 28)
)

type RequestKind byte

const (
	RequestDefault RequestKind = iota
	RequestCancel
	RequestHandshake
)

func (k RequestKind) String() string {
	switch k {
	case RequestDefault:
		return "default"
	case RequestCancel:
		return "cancel"
	case RequestHandshake:
		return "handshake"
	default:
		return fmt.Sprintf("request(%d)", byte(k))
	}
}

type ResponseKind byte

const (
	ResponseAck ResponseKind = iota
	ResponseProgress
	ResponseComplete
	ResponseHandshake
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseAck:
		return "ack"
	case ResponseProgress:
		return "progress"
	case ResponseComplete:
		return "complete"
	case ResponseHandshake:
		return "handshake"
	default:
		return fmt.Sprintf("response(%d)", byte(k))
	}
}

type Status byte

const (
	StatusDefault Status = iota
	StatusSuccess
	StatusFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusDefault:
		return "default"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", byte(s))
	}
}
