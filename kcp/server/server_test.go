package server_test

import (
	"context"
	"testing"

	"github.com/go-pantheon/fabrica-dbe/client"
	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/handler"
	"github.com/go-pantheon/fabrica-dbe/kcp"
	"github.com/go-pantheon/fabrica-dbe/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeOverKCP(t *testing.T) {
	t.Parallel()

	for _, smux := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "smux"}[smux], func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()

			c := conf.Default()
			c.KCP.Smux = smux

			reg, err := handler.NewRegistry(handler.Descriptor{
				Name: "getClock",
				Args: []codec.Kind{codec.KindInteger},
				Handler: func(_ context.Context, call *handler.Call) (any, error) {
					x, err := call.Int(0)
					return x * 6, err
				},
			})
			require.NoError(t, err)

			srv, err := kcp.NewServer("127.0.0.1:0", reg, server.WithConf(c))
			require.NoError(t, err)
			require.NoError(t, srv.Start(ctx))

			t.Cleanup(func() {
				_ = srv.Stop(ctx)
			})

			u, err := srv.Endpoint()
			require.NoError(t, err)
			assert.Equal(t, "kcp", u.Scheme)

			cli, err := kcp.NewClient(1, u.Host, client.WithConf(c))
			require.NoError(t, err)
			require.NoError(t, cli.Start(ctx))

			t.Cleanup(func() {
				_ = cli.Stop(ctx)
			})

			r, err := cli.Call(ctx, 3, "getClock", []any{int32(5)})
			require.NoError(t, err)
			assert.Equal(t, int32(30), r.Value)
		})
	}
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	t.Parallel()

	c := conf.Default()
	c.KCP.MTU = 10

	reg, err := handler.NewRegistry()
	require.NoError(t, err)

	_, err = kcp.NewServer("127.0.0.1:0", reg, server.WithConf(c))
	assert.Error(t, err)
}
