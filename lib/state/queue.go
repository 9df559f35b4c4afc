package state

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// turnQueue is an unbounded multi-producer single-consumer queue of turns.
//
// Producers append to a linked list with CAS, a single forwarding goroutine
// hands the turns to the executor through Recv. Turns of one producer keep
// their order, turns of concurrent producers are ordered by whichever append
// wins. After Close no turn is accepted, turns already queued are still
// delivered and Recv is closed once the queue has drained.
type turnQueue struct {
	head   atomic.Pointer[queueNode]
	tail   atomic.Pointer[queueNode]
	out    chan *turn
	closed atomic.Bool

	// wakes the forwarder; signals are sent with mu held so none is lost
	// between its emptiness check and Wait
	mu   sync.Mutex
	cond *sync.Cond
}

type queueNode struct {
	t    *turn
	next atomic.Pointer[queueNode]
}

func newTurnQueue() *turnQueue {
	sentinel := &queueNode{}
	q := &turnQueue{out: make(chan *turn)}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.forward()
	return q
}

// Push appends t. It reports false if the queue is closed.
func (q *turnQueue) Push(t *turn) bool {
	if t == nil || q.closed.Load() {
		return false
	}

	n := &queueNode{t: t}
	var backoff uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may already have advanced the tail
				q.tail.CompareAndSwap(tail, n)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but has not moved the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin briefly under contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Recv returns the channel the executor consumes from.
func (q *turnQueue) Recv() <-chan *turn {
	return q.out
}

// Close stops accepting turns.
func (q *turnQueue) Close() {
	q.closed.Store(true)
	q.wake()
}

// Len counts the queued turns. It walks the list and is meant for diagnostics.
func (q *turnQueue) Len() int {
	count := 0
	for n := q.head.Load().next.Load(); n != nil; n = n.next.Load() {
		count++
	}
	return count
}

func (q *turnQueue) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// forward moves turns from the list to out until the queue is closed and empty.
func (q *turnQueue) forward() {
	defer close(q.out)

	for {
		delivered := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			t := next.t
			q.head.Store(next)
			q.out <- t
			next.t = nil
		}

		if delivered {
			continue
		}
		if q.closed.Load() {
			// a Push that passed its closed check before Close may still land
			if q.head.Load().next.Load() == nil {
				return
			}
			continue
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}
