package xnet

import (
	"context"
	"strconv"

	"github.com/go-kratos/kratos/v2/transport"
	"google.golang.org/grpc/metadata"
)

// KindDBE identifies DBE IPC calls to kratos middleware.
const KindDBE transport.Kind = "dbe"

const (
	HeaderRequestID = "x-dbe-request-id"
	HeaderChannel   = "x-dbe-channel"
	HeaderStatus    = "x-dbe-status"
)

var _ transport.Transporter = (*Transport)(nil)

// Transport describes one handler invocation to kratos middleware. The
// operation is the command name.
type Transport struct {
	endpoint      string
	operation     string
	requestHeader HeaderCarrier
	replyHeader   HeaderCarrier
}

// NewTransport creates a transport for the command served for (reqID, channel).
func NewTransport(endpoint string, operation string, reqID, channel int32) *Transport {
	tr := &Transport{
		endpoint:      endpoint,
		operation:     operation,
		requestHeader: HeaderCarrier{},
		replyHeader:   HeaderCarrier{},
	}

	tr.requestHeader.Set(HeaderRequestID, strconv.FormatInt(int64(reqID), 10))
	tr.requestHeader.Set(HeaderChannel, strconv.FormatInt(int64(channel), 10))

	return tr
}

// NewServerContext attaches tr to ctx for server-side middleware.
func NewServerContext(ctx context.Context, tr *Transport) context.Context {
	return transport.NewServerContext(ctx, tr)
}

func (tr *Transport) Kind() transport.Kind {
	return KindDBE
}

func (tr *Transport) Endpoint() string {
	return tr.endpoint
}

func (tr *Transport) Operation() string {
	return tr.operation
}

func (tr *Transport) RequestHeader() transport.Header {
	return tr.requestHeader
}

func (tr *Transport) ReplyHeader() transport.Header {
	return tr.replyHeader
}

// HeaderCarrier is a wrapper around metadata.MD.
type HeaderCarrier metadata.MD

// Get returns the first value associated with the given key.
// If there are no values associated with the key, Get returns "".
func (mc HeaderCarrier) Get(key string) string {
	vals := metadata.MD(mc).Get(key)
	if len(vals) > 0 {
		return vals[0]
	}

	return ""
}

// Set sets the value associated with key to value.
func (mc HeaderCarrier) Set(key string, value string) {
	metadata.MD(mc).Set(key, value)
}

// Keys returns all keys present in this metadata.
func (mc HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range metadata.MD(mc) {
		keys = append(keys, k)
	}

	return keys
}

// Add appends the value to the existing values for the given key.
func (mc HeaderCarrier) Add(key string, value string) {
	metadata.MD(mc).Append(key, value)
}

// Values returns all values associated with the key.
func (mc HeaderCarrier) Values(key string) []string {
	return metadata.MD(mc).Get(key)
}
