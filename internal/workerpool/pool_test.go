package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineMode(t *testing.T) {
	t.Parallel()

	p := New(0)

	done := false
	require.NoError(t, p.Submit(func() {
		time.Sleep(10 * time.Millisecond)
		done = true
	}))

	assert.True(t, done, "zero cap runs the item before Submit returns")

	st := p.Stats()
	assert.Equal(t, 0, st.Live)
	assert.Equal(t, 0, st.Peak)
	assert.Equal(t, int64(1), st.Executed)

	p.Drain()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestCapNeverExceeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		max  int
		n    int
	}{
		{name: "one", max: 1, n: 20},
		{name: "three", max: 3, n: 60},
		{name: "wide", max: 16, n: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := New(tt.max)

			var running, highest atomic.Int32

			for range tt.n {
				require.NoError(t, p.Submit(func() {
					cur := running.Add(1)
					for {
						h := highest.Load()
						if cur <= h || highest.CompareAndSwap(h, cur) {
							break
						}
					}

					time.Sleep(time.Millisecond)
					running.Add(-1)
				}))
			}

			p.Drain()

			st := p.Stats()
			assert.LessOrEqual(t, int(highest.Load()), tt.max)
			assert.LessOrEqual(t, st.Peak, tt.max)
			assert.Equal(t, int64(tt.n), st.Executed)
			assert.Equal(t, 0, st.Live)
			assert.Equal(t, 0, st.Queued)
		})
	}
}

func TestDrainCompleteness(t *testing.T) {
	t.Parallel()

	const m = 40

	p := New(2)
	gate := make(chan struct{})

	var ran [m]atomic.Int32

	for i := range m {
		require.NoError(t, p.Submit(func() {
			<-gate
			ran[i].Add(1)
		}))
	}

	drained := make(chan struct{})

	go func() {
		p.Drain()
		close(drained)
	}()

	require.Eventually(t, p.Closed, time.Second, time.Millisecond)
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)

	close(gate)
	<-drained

	for i := range m {
		assert.Equal(t, int32(1), ran[i].Load(), "item %d", i)
	}
}

func TestFIFOStart(t *testing.T) {
	t.Parallel()

	p := New(1)

	var (
		mu    sync.Mutex
		order []int
	)

	for i := range 10 {
		require.NoError(t, p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	p.Drain()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

// Items sharing a channel are not serialized: a later item may complete
// before an earlier one.
func TestNoPerChannelOrdering(t *testing.T) {
	t.Parallel()

	p := New(2)

	var (
		mu        sync.Mutex
		completed []string
	)

	record := func(s string) {
		mu.Lock()
		completed = append(completed, s)
		mu.Unlock()
	}

	release := make(chan struct{})
	secondDone := make(chan struct{})

	require.NoError(t, p.Submit(func() {
		<-release
		record("first")
	}))
	require.NoError(t, p.Submit(func() {
		record("second")
		close(secondDone)
	}))

	select {
	case <-secondDone:
	case <-time.After(5 * time.Second):
		t.Fatal("second item was blocked behind the first")
	}

	close(release)
	p.Drain()

	assert.Equal(t, []string{"second", "first"}, completed)
}

func TestPanicRecovered(t *testing.T) {
	t.Parallel()

	p := New(1)

	var ok atomic.Bool

	require.NoError(t, p.Submit(func() { panic("boom") }))
	require.NoError(t, p.Submit(func() { ok.Store(true) }))

	p.Drain()

	st := p.Stats()
	assert.True(t, ok.Load())
	assert.Equal(t, int64(2), st.Executed)
	assert.Equal(t, int64(1), st.Panics)
}

func BenchmarkSubmit(b *testing.B) {
	p := New(4)

	var wg sync.WaitGroup

	b.ResetTimer()

	for range b.N {
		wg.Add(1)

		_ = p.Submit(wg.Done)
	}

	wg.Wait()
	p.Drain()
}
