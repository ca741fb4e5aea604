package otp

import (
	"sync/atomic"
	"unsafe"

	"github.com/rymdolle/otp/internal/opt"
)

// Pix ("process index") locks shard the process table. Each slot index
// maps to one lock; the lock protects the wait queues and waiter flags of
// every process whose pid maps to it, plus the slot's serial counter.
//
// A pix lock is a fair ticket spinlock: waiters are served strictly in
// the order they arrived, and the critical sections it guards are a few
// pointer operations, so spinning with adaptive delay beats parking.

// pixLockCount must be a power of two.
const pixLockCount = 256

type pixLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
	_       [(opt.CacheLineSize_ - unsafe.Sizeof(struct {
		next    atomic.Uint32
		serving atomic.Uint32
	}{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

var pixLocks [pixLockCount]pixLock

// pixLockIx returns the pix lock for a slot index.
func pixLockIx(ix int) *pixLock {
	return &pixLocks[ix&(pixLockCount-1)]
}

// pid2pix returns the pix lock for a pid.
func pid2pix(pid Pid) *pixLock {
	return pixLockIx(pid.index())
}

func (l *pixLock) lock() {
	my := l.next.Add(1) - 1
	var spins int
	for l.serving.Load() != my {
		delay(&spins)
	}
}

func (l *pixLock) unlock() {
	l.serving.Add(1)
}

// heldByNobody is a best-effort sanity probe used by tests; a ticket lock
// is free when next == serving.
func (l *pixLock) heldByNobody() bool {
	return l.next.Load() == l.serving.Load()
}
