// Package memtest provides memory.IMemory wrappers for tests that need to
// observe or sabotage the writes a component issues: counting writes (to show
// that read paths never write), failing the n-th write, or tearing it so that
// only a prefix reaches the region. A failed or torn write followed by a
// reattach from the raw bytes is how an aborted turn is simulated.
package memtest

import (
	"errors"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/memory"
)

// ErrInjected is returned by writes that were sabotaged.
var ErrInjected = errors.New("memtest: injected write failure")

// Mode selects what happens to the sabotaged write.
type Mode int

const (
	// Fail drops the write entirely.
	Fail Mode = iota
	// Tear applies the first half of the write and then fails.
	Tear
)

// FaultyMemory wraps a region and counts writes and grows. Once armed it
// sabotages the write with the given ordinal and every write after it, the
// way an aborted turn stops all further progress.
type FaultyMemory struct {
	memory.IMemory

	writes atomic.Int64
	grows  atomic.Int64
	failAt int64 // 1-based write ordinal, 0 = disarmed
	mode   Mode
}

// Wrap returns a disarmed FaultyMemory around m.
func Wrap(m memory.IMemory) *FaultyMemory {
	return &FaultyMemory{IMemory: m}
}

// Arm sabotages the n-th write counted from now (n >= 1).
func (f *FaultyMemory) Arm(n int64, mode Mode) {
	f.failAt = f.writes.Load() + n
	f.mode = mode
}

// Disarm lets all further writes through.
func (f *FaultyMemory) Disarm() { f.failAt = 0 }

// Writes returns the number of write calls seen so far, sabotaged ones included.
func (f *FaultyMemory) Writes() int64 { return f.writes.Load() }

// Grows returns the number of grow calls seen so far.
func (f *FaultyMemory) Grows() int64 { return f.grows.Load() }

func (f *FaultyMemory) Write(offset uint64, src []byte) error {
	n := f.writes.Add(1)
	if f.failAt == 0 || n < f.failAt {
		return f.IMemory.Write(offset, src)
	}
	if n == f.failAt && f.mode == Tear && len(src) > 1 {
		if err := f.IMemory.Write(offset, src[:len(src)/2]); err != nil {
			return err
		}
	}
	return ErrInjected
}

func (f *FaultyMemory) Grow(pages uint64) (uint64, error) {
	f.grows.Add(1)
	return f.IMemory.Grow(pages)
}
