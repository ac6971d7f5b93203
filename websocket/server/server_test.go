package websocket_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/handler"
	wsclient "github.com/go-pantheon/fabrica-dbe/websocket/client"
	websocket "github.com/go-pantheon/fabrica-dbe/websocket/server"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeOverWebSocket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	reg, err := handler.NewRegistry(
		handler.Descriptor{
			Name: "getClock",
			Args: []codec.Kind{codec.KindInteger},
			Handler: func(_ context.Context, c *handler.Call) (any, error) {
				x, err := c.Int(0)
				return x * 6, err
			},
		},
		handler.Descriptor{
			Name: "getSource",
			Args: []codec.Kind{codec.KindInteger},
			Handler: func(_ context.Context, c *handler.Call) (any, error) {
				n, err := c.Int(0)
				return strings.Repeat("x", int(n)), err
			},
		},
	)
	require.NoError(t, err)

	srv, err := websocket.NewServer("127.0.0.1:0", "/dbe", reg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))

	t.Cleanup(func() {
		_ = srv.Stop(ctx)
	})

	u, err := srv.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "ws", u.Scheme)

	cli := wsclient.NewClient(1, u.String())
	require.NoError(t, cli.Start(ctx))

	t.Cleanup(func() {
		_ = cli.Stop(ctx)
	})

	assert.Equal(t, xnet.ProtocolVersion, cli.Version())

	r, err := cli.Call(ctx, 1, "getClock", []any{int32(7)})
	require.NoError(t, err)
	assert.Equal(t, int32(42), r.Value)

	// larger than one websocket buffer, so the response spans several reads
	r, err = cli.Call(ctx, 2, "getSource", []any{int32(100_000)})
	require.NoError(t, err)
	require.NoError(t, r.Err())
	assert.Len(t, r.Value, 100_000)
}
