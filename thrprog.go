package otp

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rymdolle/otp/internal/opt"
)

// Unmanaged delay sections.
//
// A table reader enters a delay section before dereferencing a slot
// pointer and leaves it once done. Reclaiming a process flips the epoch
// and waits until every section opened under the old epoch has closed,
// so no reader is left holding a pointer to a slot being recycled.
//
// Two striped counters, indexed by epoch parity, carry the section
// counts; readers that lose a race with a flip back out and re-enter
// under the new epoch.

type delayCounter struct {
	c atomic.Int64
	_ [(opt.CacheLineSize_ - unsafe.Sizeof(struct {
		c atomic.Int64
	}{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

var thrProg struct {
	epoch  atomic.Uint32
	active [2]delayCounter
	// waitMu serializes quiescent waits, so one flip is fully drained
	// before the next reuses its counter.
	waitMu sync.Mutex
}

// delayHandle identifies the epoch a delay section was opened under.
type delayHandle uint32

// thrDelay opens an unmanaged delay section.
func thrDelay() delayHandle {
	for {
		e := thrProg.epoch.Load()
		thrProg.active[e&1].c.Add(1)
		if thrProg.epoch.Load() == e {
			return delayHandle(e)
		}
		// Raced with an epoch flip; retry under the new one so the
		// reclaimer does not wait on us forever.
		thrProg.active[e&1].c.Add(-1)
	}
}

// thrContinue closes the section.
func (h delayHandle) thrContinue() {
	thrProg.active[h&1].c.Add(-1)
}

// thrWaitQuiescent blocks until every delay section opened before the
// call has closed.
func thrWaitQuiescent() {
	thrProg.waitMu.Lock()
	defer thrProg.waitMu.Unlock()
	e := thrProg.epoch.Add(1) - 1
	var spins int
	for thrProg.active[e&1].c.Load() != 0 {
		delay(&spins)
	}
}
