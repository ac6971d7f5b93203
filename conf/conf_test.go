package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()

	assert.Positive(t, c.Engine.MaxWorkers)
	assert.Less(t, c.Engine.SmallResponseSize, c.Engine.WriteBufSize)
	assert.True(t, c.Fault.HandleSignals)
	assert.Equal(t, "/dbe", c.WebSocket.Path)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbe.yaml")
	content := `
engine:
  max_workers: 0
  small_response_size: 8KiB
  read_buf_size: 1048576
  stop_timeout: 5s
  cancellable: [getCallTree]
  immediate_cancel: [getFunctionList]
fault:
  dump_dir: /tmp/dbe
  memory_reserve: 1 MiB
tcp:
  bind: 0.0.0.0:9000
kcp:
  smux: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, c.Engine.MaxWorkers)
	assert.Equal(t, 8192, c.Engine.SmallResponseSize)
	assert.Equal(t, 1<<20, c.Engine.ReadBufSize)
	assert.Equal(t, 5*time.Second, c.Engine.StopTimeout)
	assert.Equal(t, []string{"getCallTree"}, c.Engine.Cancellable)
	assert.Equal(t, []string{"getFunctionList"}, c.Engine.ImmediateCancel)
	assert.Equal(t, "/tmp/dbe", c.Fault.DumpDir)
	assert.Equal(t, 1<<20, c.Fault.MemoryReserve)
	assert.Equal(t, "0.0.0.0:9000", c.TCP.Bind)
	assert.True(t, c.KCP.Smux)
	assert.Equal(t, Default().Health.Addr, c.Health.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DBE_MAX_WORKERS", "3")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Engine.MaxWorkers)

	t.Setenv("DBE_MAX_WORKERS", "many")

	_, err = Load("")
	assert.Error(t, err)
}

func TestSizeUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Size
		err  bool
	}{
		{in: `4096`, want: 4096},
		{in: `"4KiB"`, want: 4096},
		{in: `"2 MB"`, want: 2000000},
		{in: `"lots"`, err: true},
		{in: `true`, err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			var s Size

			err := s.UnmarshalJSON([]byte(tt.in))
			if tt.err {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}
