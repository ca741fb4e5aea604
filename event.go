package otp

import (
	"sync/atomic"

	"github.com/rymdolle/otp/internal/opt"
)

// event is the blocking primitive a wait slot parks on: a reusable
// set/reset/wait cell over the runtime semaphore.
//
// State:
//   - 0: clear
//   - 1: set (signalled)
//   - -1: the owner is parked on the semaphore
//
// Exactly one goroutine (the slot owner) calls reset/wait; any goroutine
// may call set. A stray set from a previous use of the slot at worst
// produces a spurious wakeup, which callers already tolerate by
// re-checking their waiting flag.
type event struct {
	state atomic.Int32
	sema  opt.Sema
}

const (
	evClear  = 0
	evSet    = 1
	evParked = -1
)

// set signals the event, waking the owner if parked. Idempotent.
func (e *event) set() {
	if e.state.Swap(evSet) == evParked {
		e.sema.Release()
	}
}

// reset clears a previous set. Owner only; must not be parked.
func (e *event) reset() {
	e.state.Store(evClear)
}

// wait blocks until the event is set. Returns immediately if it already
// is. Owner only.
func (e *event) wait() {
	if e.state.CompareAndSwap(evClear, evParked) {
		e.sema.Acquire()
	}
}
