package fault

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, dir string) (*Supervisor, chan os.Signal, *atomic.Int32, *atomic.Int32) {
	t.Helper()

	sigs := make(chan os.Signal, 4)

	var code, calls atomic.Int32

	s := New(conf.Fault{DumpDir: dir, MemoryReserve: 1 << 16},
		WithSignals(sigs),
		WithExit(func(c int) {
			code.Store(int32(c))
			calls.Add(1)
		}),
	)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})

	return s, sigs, &code, &calls
}

func TestTerminateRaisesStopFlag(t *testing.T) {
	t.Parallel()

	s, sigs, _, calls := newTestSupervisor(t, t.TempDir())

	sigs <- syscall.SIGINT
	sigs <- syscall.SIGTERM

	require.Eventually(t, s.Stopping, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInterruptIsLoggedOnly(t *testing.T) {
	t.Parallel()

	s, sigs, _, calls := newTestSupervisor(t, t.TempDir())

	sigs <- syscall.SIGINT
	sigs <- syscall.SIGINT

	// a later SIGTERM proves both interrupts were consumed
	sigs <- syscall.SIGTERM
	require.Eventually(t, s.Stopping, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestFatalSignalDumpsAndExits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, sigs, code, calls := newTestSupervisor(t, dir)

	sigs <- syscall.SIGSEGV

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(syscall.SIGSEGV), code.Load())
	assert.Nil(t, s.reserve.Load(), "reserve is released before the dump")

	stacks, err := filepath.Glob(filepath.Join(dir, "*.stack"))
	require.NoError(t, err)
	require.Len(t, stacks, 1)

	b, err := os.ReadFile(stacks[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "goroutine")

	diag, err := os.ReadFile(strings.TrimSuffix(stacks[0], ".stack") + ".diag")
	require.NoError(t, err)
	assert.Contains(t, string(diag), "signal: 11")

	s.Fatal(syscall.SIGBUS, "second fault")
	assert.Equal(t, int32(1), calls.Load(), "one-shot guard")
}

func TestRecover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, _, code, calls := newTestSupervisor(t, dir)

	func() {
		defer s.Recover("reader")
		panic("broken invariant")
	}()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(syscall.SIGABRT), code.Load())

	diags, err := filepath.Glob(filepath.Join(dir, "*.diag"))
	require.NoError(t, err)
	require.Len(t, diags, 1)

	b, err := os.ReadFile(diags[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "reader panic: broken invariant")
}
