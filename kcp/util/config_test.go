package util

import (
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(c *conf.KCP)
		wantErr bool
	}{
		{name: "default", modify: func(c *conf.KCP) {}},
		{name: "mtu too small", modify: func(c *conf.KCP) { c.MTU = 100 }, wantErr: true},
		{name: "mtu too large", modify: func(c *conf.KCP) { c.MTU = 9000 }, wantErr: true},
		{name: "negative shards", modify: func(c *conf.KCP) { c.DataShards = -1 }, wantErr: true},
		{name: "zero window", modify: func(c *conf.KCP) { c.WindowSize = [2]int{0, 128} }, wantErr: true},
		{
			name: "smux keepalive inverted",
			modify: func(c *conf.KCP) {
				c.Smux = true
				c.KeepAliveInterval = time.Minute
				c.KeepAliveTimeout = time.Second
			},
			wantErr: true,
		},
		{
			name:   "smux ignored when disabled",
			modify: func(c *conf.KCP) { c.MaxFrameSize = 0 },
		},
		{name: "smux default", modify: func(c *conf.KCP) { c.Smux = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := conf.Default().KCP
			tt.modify(&c)

			if tt.wantErr {
				assert.Error(t, Validate(c))
			} else {
				assert.NoError(t, Validate(c))
			}
		})
	}
}

func TestSmuxConfig(t *testing.T) {
	t.Parallel()

	c := conf.Default().KCP
	sc := SmuxConfig(c)

	assert.Equal(t, 2, sc.Version)
	assert.Equal(t, c.KeepAliveInterval, sc.KeepAliveInterval)
	assert.Equal(t, c.MaxFrameSize, sc.MaxFrameSize)
}
