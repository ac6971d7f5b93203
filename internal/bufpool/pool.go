// Package bufpool is a size-class slab pool for request bodies.
package bufpool

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-pantheon/fabrica-util/errors"
)

var (
	ErrThresholdsRequired  = errors.New("thresholds must not be empty")
	ErrThresholdsNotSorted = errors.New("thresholds must be sorted in ascending order")
)

// DefaultThresholds covers command bodies from a bare name up to large
// filter strings and argument arrays.
var DefaultThresholds = []int{256, 1024, 4096, 16384, 65536}

type Stats struct {
	Gets   int64
	Puts   int64
	Allocs int64
	// Oversize counts requests larger than the biggest class. They are
	// allocated directly and never pooled.
	Oversize int64
}

// Pool hands out byte slices from the smallest class that fits. Buffers
// larger than the biggest threshold bypass the pool.
type Pool struct {
	pools      []sync.Pool
	thresholds []int

	gets     atomic.Int64
	puts     atomic.Int64
	allocs   atomic.Int64
	oversize atomic.Int64
}

// New creates a pool with one class per threshold. For example
// []int{256, 1024} gives a class for sizes <= 256 and one for sizes <= 1024.
func New(thresholds []int) (*Pool, error) {
	if len(thresholds) == 0 {
		return nil, ErrThresholdsRequired
	}

	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, ErrThresholdsNotSorted
		}
	}

	p := &Pool{
		pools:      make([]sync.Pool, len(thresholds)),
		thresholds: slices.Clone(thresholds),
	}

	for i := range p.pools {
		size := thresholds[i]
		p.pools[i].New = func() any {
			p.allocs.Add(1)

			buf := make([]byte, size)

			return &buf
		}
	}

	return p, nil
}

func (p *Pool) class(size int) int {
	return sort.SearchInts(p.thresholds, size)
}

// Alloc returns a slice of length size.
func (p *Pool) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}

	i := p.class(size)
	if i >= len(p.thresholds) {
		p.oversize.Add(1)
		return make([]byte, size)
	}

	p.gets.Add(1)

	mem := p.pools[i].Get().(*[]byte)

	return (*mem)[:size]
}

// Free returns mem to its class. Slices that did not come from Alloc are
// dropped unless their capacity matches a class exactly.
func (p *Pool) Free(mem []byte) {
	size := cap(mem)

	i := p.class(size)
	if i >= len(p.thresholds) || p.thresholds[i] != size {
		return
	}

	p.puts.Add(1)

	mem = mem[:size]
	p.pools[i].Put(&mem)
}

func (p *Pool) Thresholds() []int {
	return slices.Clone(p.thresholds)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Gets:     p.gets.Load(),
		Puts:     p.puts.Load(),
		Allocs:   p.allocs.Load(),
		Oversize: p.oversize.Load(),
	}
}
