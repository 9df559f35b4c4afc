package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTurn() *turn {
	return &turn{result: make(chan error, 1)}
}

func recvTurn(t *testing.T, q *turnQueue) *turn {
	t.Helper()
	select {
	case got := <-q.Recv():
		return got
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a turn")
		return nil
	}
}

func TestQueueOrder(t *testing.T) {
	q := newTurnQueue()
	defer q.Close()

	turns := make([]*turn, 10)
	for i := range turns {
		turns[i] = newTestTurn()
		require.True(t, q.Push(turns[i]))
	}

	for i := range turns {
		assert.Same(t, turns[i], recvTurn(t, q), "turn %d", i)
	}

	select {
	case got := <-q.Recv():
		t.Fatalf("queue should be empty, got %v", got)
	case <-time.After(10 * time.Millisecond):
	}
	assert.Zero(t, q.Len())
}

func TestQueueRejectsNil(t *testing.T) {
	q := newTurnQueue()
	defer q.Close()
	assert.False(t, q.Push(nil))
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newTurnQueue()
	defer q.Close()

	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.True(t, q.Push(newTestTurn()))
			}
		}()
	}

	seen := make(map[*turn]bool)
	for len(seen) < producers*perProducer {
		got := recvTurn(t, q)
		require.False(t, seen[got], "turn delivered twice")
		seen[got] = true
	}
	wg.Wait()
}

func TestQueueCloseDrains(t *testing.T) {
	q := newTurnQueue()

	queued := []*turn{newTestTurn(), newTestTurn(), newTestTurn()}
	for _, tt := range queued {
		require.True(t, q.Push(tt))
	}
	q.Close()
	assert.False(t, q.Push(newTestTurn()), "push after close")

	var drained []*turn
	for tt := range q.Recv() {
		drained = append(drained, tt)
	}
	assert.Equal(t, queued, drained)
}

func TestQueueCloseWakesIdleForwarder(t *testing.T) {
	for i := 0; i < 100; i++ {
		q := newTurnQueue()
		q.Close()
		select {
		case _, ok := <-q.Recv():
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("forwarder did not stop")
		}
	}
}

func BenchmarkQueuePush(b *testing.B) {
	q := newTurnQueue()
	defer q.Close()
	go func() {
		for range q.Recv() {
		}
	}()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			q.Push(newTestTurn())
		}
	})
}
