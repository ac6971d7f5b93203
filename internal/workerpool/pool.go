// Package workerpool runs work items on a bounded set of goroutines fed by a
// single FIFO queue.
package workerpool

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-pantheon/fabrica-dbe/internal/metrics"
	"github.com/go-pantheon/fabrica-util/errors"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Item is one unit of work. It is run exactly once.
type Item func()

type node struct {
	item Item
	next *node
}

type Stats struct {
	Max      int
	Live     int
	Peak     int
	Queued   int
	Executed int64
	Panics   int64
}

// Pool is a FIFO work queue drained by at most max goroutines. Items are
// started in submission order across the whole pool; there is no ordering
// between items that share a channel, so their completions may interleave.
//
// A pool with max == 0 runs every item on the submitting goroutine.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	head, tail *node
	queued     int
	live       int
	idle       int
	peak       int
	max        int
	closed     bool

	wg       sync.WaitGroup
	executed atomic.Int64
	panics   atomic.Int64
}

func New(max int) *Pool {
	if max < 0 {
		max = 0
	}

	p := &Pool{max: max}
	p.cond = sync.NewCond(&p.mu)

	return p
}

// Submit queues item. A worker is spawned when more items are waiting than
// there are idle workers and the cap allows it. With a zero cap Submit runs
// item itself and returns when it has finished.
func (p *Pool) Submit(item Item) error {
	if item == nil {
		return errors.New("nil work item")
	}

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	if p.max == 0 {
		p.mu.Unlock()
		p.run(item)

		return nil
	}

	n := &node{item: item}
	if p.tail == nil {
		p.head = n
	} else {
		p.tail.next = n
	}

	p.tail = n
	p.queued++
	metrics.WorkQueued.Inc()

	if p.queued > p.idle && p.live < p.max {
		p.spawn()
	}

	p.mu.Unlock()
	p.cond.Signal()

	return nil
}

// spawn must be called with mu held.
func (p *Pool) spawn() {
	p.live++
	if p.live > p.peak {
		p.peak = p.live
	}

	metrics.WorkersLive.Inc()
	p.wg.Add(1)

	go p.work()
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		p.mu.Lock()

		for p.head == nil && !p.closed {
			p.idle++
			p.cond.Wait()
			p.idle--
		}

		item := p.pop()
		if item == nil {
			p.live--
			metrics.WorkersLive.Dec()
			p.mu.Unlock()

			return
		}

		p.mu.Unlock()
		p.run(item)
	}
}

// pop must be called with mu held.
func (p *Pool) pop() Item {
	n := p.head
	if n == nil {
		return nil
	}

	p.head = n.next
	if p.head == nil {
		p.tail = nil
	}

	p.queued--
	metrics.WorkQueued.Dec()

	return n.item
}

func (p *Pool) run(item Item) {
	defer func() {
		p.executed.Add(1)

		if r := recover(); r != nil {
			p.panics.Add(1)
			metrics.WorkPanics.Inc()
			log.Errorf("[workerpool] work item panic: %v\n%s", r, debug.Stack())
		}
	}()

	item()
}

// Drain stops accepting work and returns once every item submitted before the
// call has run. Workers keep draining the queue until it is empty; whatever is
// still queued after they exit is run by the caller.
func (p *Pool) Drain() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()

	for {
		p.mu.Lock()
		item := p.pop()
		p.mu.Unlock()

		if item == nil {
			return
		}

		p.run(item)
	}
}

func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Max:      p.max,
		Live:     p.live,
		Peak:     p.peak,
		Queued:   p.queued,
		Executed: p.executed.Load(),
		Panics:   p.panics.Load(),
	}
}
