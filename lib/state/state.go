package state

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/memmgr"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/stable"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("state")

var (
	// ErrClosed is returned for turns submitted after Close.
	ErrClosed = errors.New("state: closed")

	// ErrTurnPanicked wraps panics recovered inside a turn.
	ErrTurnPanicked = errors.New("state: turn panicked")
)

var (
	updateTurns    = metrics.NewCounter(`skv_state_turns_total{kind="update"}`)
	queryTurns     = metrics.NewCounter(`skv_state_turns_total{kind="query"}`)
	failedTurns    = metrics.NewCounter(`skv_state_turns_failed_total`)
	cancelledTurns = metrics.NewCounter(`skv_state_turns_cancelled_total`)
	turnDurations  = metrics.NewHistogram(`skv_state_turn_duration_seconds`)
)

// State is the process-wide engine state. See the package documentation.
type State struct {
	mm     *memmgr.MemoryManager
	stores map[memmgr.BucketID]store.IStore // only touched by the executor

	turns     *turnQueue
	stopped   chan struct{}
	closeOnce sync.Once
}

// turn phases; a turn leaves turnPending exactly once
const (
	turnPending int32 = iota
	turnStarted
	turnCancelled
)

type turn struct {
	ctx    context.Context
	fn     func() error
	result chan error
	phase  atomic.Int32
}

// Info describes the memory manager and every store attached so far.
type Info struct {
	Memory memmgr.Info                         `json:"memory"`
	Stores map[memmgr.BucketID]db.DatabaseInfo `json:"stores"`
}

// New attaches a memory manager to region and starts the executor.
// It fails if the region holds a corrupt directory.
func New(region memory.IMemory) (*State, error) {
	mm, err := memmgr.Init(region)
	if err != nil {
		return nil, err
	}

	s := &State{
		mm:      mm,
		stores:  make(map[memmgr.BucketID]store.IStore),
		turns:   newTurnQueue(),
		stopped: make(chan struct{}),
	}
	go s.run()

	info := mm.Info()
	log.Infof("state ready (%d bytes, generation %d, %d buckets in use)", info.RegionBytes, info.Generation, len(info.Buckets))
	return s, nil
}

// Close stops accepting turns and waits until the executor has run every
// turn queued before. Later turns fail with ErrClosed. The region is left to
// the caller.
func (s *State) Close() {
	s.closeOnce.Do(s.turns.Close)
	<-s.stopped
}

// --------------------------------------------------------------------------
// Turns
// --------------------------------------------------------------------------

// Update runs fn as an update turn against the store in bucket.
// The store is created if the bucket does not hold one yet.
func (s *State) Update(ctx context.Context, bucket memmgr.BucketID, fn func(store.IStore) error) error {
	updateTurns.Inc()
	return s.submit(ctx, func() error {
		st, err := s.storeFor(bucket)
		if err != nil {
			return err
		}
		return fn(st)
	})
}

// Query runs fn as a query turn against the store in bucket.
func (s *State) Query(ctx context.Context, bucket memmgr.BucketID, fn func(store.IReader) error) error {
	queryTurns.Inc()
	return s.submit(ctx, func() error {
		r, err := s.readerFor(bucket)
		if err != nil {
			return err
		}
		return fn(r)
	})
}

// Info returns the current Info, computed in a query turn.
func (s *State) Info(ctx context.Context) (Info, error) {
	var info Info
	err := s.submit(ctx, func() error {
		info = Info{
			Memory: s.mm.Info(),
			Stores: make(map[memmgr.BucketID]db.DatabaseInfo, len(s.stores)),
		}
		for id, st := range s.stores {
			dbInfo, err := st.GetDBInfo()
			if err != nil {
				return err
			}
			info.Stores[id] = dbInfo
		}
		return nil
	})
	return info, err
}

// submit queues fn and waits for its result. A turn whose context ends
// before it starts is skipped. Once started it always runs to completion and
// submit reports its result, so fn never outlives the call.
func (s *State) submit(ctx context.Context, fn func() error) error {
	t := &turn{ctx: ctx, fn: fn, result: make(chan error, 1)}

	if !s.turns.Push(t) {
		return ErrClosed
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		if t.phase.CompareAndSwap(turnPending, turnCancelled) {
			return ctx.Err()
		}
		return <-t.result
	case <-s.stopped:
		select {
		case err := <-t.result:
			return err
		default:
			return ErrClosed
		}
	}
}

// run is the executor loop.
func (s *State) run() {
	defer close(s.stopped)
	for t := range s.turns.Recv() {
		if !t.phase.CompareAndSwap(turnPending, turnStarted) {
			cancelledTurns.Inc()
			continue
		}
		t.result <- s.execute(t)
	}
}

func (s *State) execute(t *turn) (err error) {
	if err := t.ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("turn panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrTurnPanicked, r)
		}
		if err != nil {
			failedTurns.Inc()
		}
		turnDurations.UpdateDuration(start)
	}()
	return t.fn()
}

// --------------------------------------------------------------------------
// Stores (executor only)
// --------------------------------------------------------------------------

func (s *State) storeFor(bucket memmgr.BucketID) (store.IStore, error) {
	if st, ok := s.stores[bucket]; ok {
		return st, nil
	}
	st, err := stable.New(s.mm, bucket)
	if err != nil {
		return nil, fmt.Errorf("bucket %d: %w", bucket, err)
	}
	log.Infof("created store in bucket %d", bucket)
	s.stores[bucket] = st
	return st, nil
}

func (s *State) readerFor(bucket memmgr.BucketID) (store.IReader, error) {
	if st, ok := s.stores[bucket]; ok {
		return readOnly{st}, nil
	}
	st, err := stable.Open(s.mm, bucket)
	switch {
	case errors.Is(err, stable.ErrNotInitialized):
		return store.EmptyReader(), nil
	case err != nil:
		return nil, fmt.Errorf("bucket %d: %w", bucket, err)
	}
	s.stores[bucket] = st
	return readOnly{st}, nil
}

// readOnly hides the mutating methods of a store from query turns.
type readOnly struct{ store.IReader }
