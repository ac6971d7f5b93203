package internal

import (
	"sync"
	"sync/atomic"

	"github.com/go-pantheon/fabrica-dbe/conf"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

// SessionManager indexes live sessions by id across hashed buckets.
type SessionManager struct {
	buckets    []*sync.Map
	size       *atomic.Int64
	shardCount uint64
}

// newSessionManager rounds the bucket count up to a power of two.
func newSessionManager(c conf.Bucket) *SessionManager {
	n := uint64(1)
	for n < uint64(max(c.BucketSize, 1)) {
		n <<= 1
	}

	m := &SessionManager{
		buckets:    make([]*sync.Map, n),
		size:       &atomic.Int64{},
		shardCount: n,
	}

	for i := range m.shardCount {
		m.buckets[i] = &sync.Map{}
	}

	return m
}

func (m *SessionManager) Session(id uint64) xnet.Session {
	if s, ok := m.getBucket(id).Load(id); ok {
		return s.(xnet.Session)
	}

	return nil
}

// Put stores s unless a session with the same id exists, in which case the
// existing one is returned.
func (m *SessionManager) Put(s xnet.Session) (old xnet.Session) {
	prev, loaded := m.getBucket(s.ID()).LoadOrStore(s.ID(), s)
	if loaded {
		return prev.(xnet.Session)
	}

	m.size.Add(1)

	return nil
}

func (m *SessionManager) Del(id uint64) {
	if _, loaded := m.getBucket(id).LoadAndDelete(id); loaded {
		m.size.Add(-1)
	}
}

func (m *SessionManager) Size() int64 {
	return m.size.Load()
}

func (m *SessionManager) Walk(f func(s xnet.Session) bool) {
	continued := true

	for _, b := range m.buckets {
		b.Range(func(key, value any) bool {
			v, ok := value.(xnet.Session)
			if !ok {
				return true
			}

			continued = f(v)

			return continued
		})

		if !continued {
			break
		}
	}
}

func (m *SessionManager) getBucket(id uint64) *sync.Map {
	return m.buckets[getBucketKey(id, m.shardCount)]
}

func getBucketKey(id uint64, shardCount uint64) uint64 {
	return wyhash(id) & (shardCount - 1)
}

// wyhash generates a 64-bit hash for the given 64-bit key using wyhash algorithm.
func wyhash(key uint64) uint64 {
	x := key
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33

	return x
}
