package internal

import (
	"sync"

	"github.com/go-pantheon/fabrica-dbe/codec"
	"github.com/go-pantheon/fabrica-dbe/internal/metrics"
	"github.com/go-pantheon/fabrica-dbe/xnet"
)

// Response is one outbound frame. Its body is built with Encoder and its
// backing buffer is owned by the ResponsePool between uses.
type Response struct {
	ID      int32
	Channel int32
	Kind    xnet.ResponseKind
	Status  xnet.Status

	enc *codec.Encoder
}

func (r *Response) set(id, channel int32, kind xnet.ResponseKind, status xnet.Status) {
	r.ID = id
	r.Channel = channel
	r.Kind = kind
	r.Status = status
}

func (r *Response) Encoder() *codec.Encoder {
	return r.enc
}

func (r *Response) Body() []byte {
	return r.enc.Bytes()
}

func (r *Response) header() xnet.ResponseHeader {
	return xnet.ResponseHeader{
		ID:     r.ID,
		Kind:   r.Kind,
		Status: r.Status,
		Length: int32(r.enc.Len()),
	}
}

func (r *Response) reset() {
	r.set(0, 0, xnet.ResponseAck, xnet.StatusDefault)
	r.enc.Reset()
}

type sizeClass int

const (
	classSmall sizeClass = iota
	classLarge
	classCount
)

func (c sizeClass) String() string {
	if c == classSmall {
		return "small"
	}

	return "large"
}

type ClassStats struct {
	Allocs    int64
	Checkouts int64
	Recycles  int64
	// Dropped counts recycled responses discarded because the free list was full.
	Dropped int64
	Free    int
}

type PoolStats struct {
	Small ClassStats
	Large ClassStats
}

// ResponsePool keeps two fixed-capacity free lists of responses: small ones
// whose buffer fits the threshold and large ones. Both lists share one lock.
type ResponsePool struct {
	mu sync.Mutex

	threshold int
	free      [classCount][]*Response
	capacity  [classCount]int
	stats     [classCount]ClassStats
}

func NewResponsePool(threshold, smallCap, largeCap int) *ResponsePool {
	p := &ResponsePool{threshold: threshold}

	p.capacity[classSmall] = smallCap
	p.capacity[classLarge] = largeCap
	p.free[classSmall] = make([]*Response, 0, smallCap)
	p.free[classLarge] = make([]*Response, 0, largeCap)

	return p
}

func (p *ResponsePool) classOf(size int) sizeClass {
	if size <= p.threshold {
		return classSmall
	}

	return classLarge
}

// Checkout returns an empty response able to hold size body bytes without
// growing.
func (p *ResponsePool) Checkout(size int) *Response {
	c := p.classOf(size)

	p.mu.Lock()
	p.stats[c].Checkouts++

	if n := len(p.free[c]); n > 0 {
		r := p.free[c][n-1]
		p.free[c][n-1] = nil
		p.free[c] = p.free[c][:n-1]
		p.mu.Unlock()

		r.enc.Grow(size)

		return r
	}

	p.stats[c].Allocs++
	p.mu.Unlock()

	metrics.ResponseAllocs.WithLabelValues(c.String()).Inc()

	capacity := p.threshold
	if c == classLarge {
		capacity = max(size, 2*p.threshold)
	}

	return &Response{enc: codec.NewEncoder(make([]byte, 0, capacity))}
}

// Recycle resets r and returns it to the free list matching its current
// buffer size.
func (p *ResponsePool) Recycle(r *Response) {
	if r == nil {
		return
	}

	r.reset()
	c := p.classOf(r.enc.Cap())

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats[c].Recycles++

	if len(p.free[c]) >= p.capacity[c] {
		p.stats[c].Dropped++
		return
	}

	p.free[c] = append(p.free[c], r)
}

func (p *ResponsePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	small, large := p.stats[classSmall], p.stats[classLarge]
	small.Free = len(p.free[classSmall])
	large.Free = len(p.free[classLarge])

	return PoolStats{Small: small, Large: large}
}
