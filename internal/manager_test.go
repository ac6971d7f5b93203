package internal

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/xnet"
	"github.com/stretchr/testify/assert"
)

type testSession struct {
	id uint64
}

func (s *testSession) ID() uint64 { return s.id }
func (s *testSession) Endpoint() string { return "test" }
func (s *testSession) Conn() io.ReadWriter { return nil }
func (s *testSession) Stop(ctx context.Context) error { return nil }

func newTestSession(id uint64) *testSession {
	return &testSession{id: id}
}

func TestNewSessionManager(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		bucketSize int
		wantSize   int
	}{
		{name: "normal size", bucketSize: 16, wantSize: 16},
		{name: "small size", bucketSize: 1, wantSize: 1},
		{name: "zero size", bucketSize: 0, wantSize: 1},
		{name: "rounded up", bucketSize: 100, wantSize: 128},
		{name: "large size", bucketSize: 1024, wantSize: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newSessionManager(conf.Bucket{BucketSize: tt.bucketSize})
			assert.Len(t, m.buckets, tt.wantSize)
		})
	}
}

func TestSessionManager_BasicOperations(t *testing.T) {
	t.Parallel()

	m := newSessionManager(conf.Bucket{BucketSize: 16})

	s1 := newTestSession(1)
	s2 := newTestSession(2)

	assert.Nil(t, m.Put(s1))
	assert.Nil(t, m.Put(s2))
	assert.Equal(t, int64(2), m.Size())

	assert.Equal(t, s1, m.Put(newTestSession(1)), "duplicate id returns the stored session")
	assert.Equal(t, int64(2), m.Size())

	assert.Equal(t, xnet.Session(s1), m.Session(1))
	assert.Equal(t, xnet.Session(s2), m.Session(2))

	m.Del(1)
	m.Del(1)
	assert.Nil(t, m.Session(1))
	assert.Equal(t, int64(1), m.Size())
}

func TestSessionManager_Walk(t *testing.T) {
	t.Parallel()

	m := newSessionManager(conf.Bucket{BucketSize: 16})

	for i := range 5 {
		m.Put(newTestSession(uint64(i)))
	}

	count := 0

	m.Walk(func(s xnet.Session) bool {
		count++
		return true
	})

	assert.Equal(t, 5, count)

	count = 0

	m.Walk(func(s xnet.Session) bool {
		count++
		return count < 3
	})

	assert.Equal(t, 3, count)
}

func TestSessionManager_Concurrent(t *testing.T) {
	t.Parallel()

	const (
		numSessions   = 1000
		numGoroutines = 50
	)

	m := newSessionManager(conf.Default().Bucket)

	var wg sync.WaitGroup

	wg.Add(numGoroutines)

	for g := range numGoroutines {
		go func(g int) {
			defer wg.Done()

			for i := g; i < numSessions; i += numGoroutines {
				m.Put(newTestSession(uint64(i)))
				assert.NotNil(t, m.Session(uint64(i)))
			}
		}(g)
	}

	wg.Wait()
	assert.Equal(t, int64(numSessions), m.Size())

	wg.Add(numGoroutines)

	for g := range numGoroutines {
		go func(g int) {
			defer wg.Done()

			for i := g; i < numSessions; i += numGoroutines {
				m.Del(uint64(i))
			}
		}(g)
	}

	wg.Wait()
	assert.Equal(t, int64(0), m.Size())
}

func TestSessionIDGenerator(t *testing.T) {
	t.Parallel()

	g := NewSessionIDGenerator(NetTypeKCP)

	a, b := g.Next(), g.Next()
	assert.NotEqual(t, a, b)
	assert.Equal(t, NetTypeKCP, NetType(a))
	assert.Equal(t, NetTypeKCP, NetType(b))
}

func BenchmarkSessionManager(b *testing.B) {
	m := newSessionManager(conf.Default().Bucket)

	for i := range 1000 {
		m.Put(newTestSession(uint64(i)))
	}

	b.Run("Get", func(b *testing.B) {
		for i := range b.N {
			m.Session(uint64(i % 1000))
		}
	})

	b.Run("ConcurrentGet", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			i := uint64(0)
			for pb.Next() {
				m.Session(i % 1000)
				i++
			}
		})
	})

	b.Run("Walk", func(b *testing.B) {
		for range b.N {
			m.Walk(func(s xnet.Session) bool { return true })
		}
	})
}
