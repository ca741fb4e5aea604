package otp

import (
	"sync/atomic"
)

// procLock is the per-process lock state: the atomic flag word and one
// wait queue head per lock.
type procLock struct {
	flags atomic.Uint32
	queue [lockCount]*waiter
}

// Lock acquires locks on p. Blocks until every lock in the set is held.
//
// The fast path is a single atomic or-and-fetch: if none of the wanted
// lock or waiter flags were set, the locks are ours and we are done.
func (p *Process) Lock(locks LockSet) {
	lcLock(p, locks)
	old := LockSet(p.lock.flags.Or(uint32(locks)))
	if old&(locks|locks.waiters()) != 0 {
		p.lockFailed(locks, old)
	}
}

// TryLock attempts to acquire locks on p without blocking. Acquisition is
// all or nothing: the returned mask is locks on success and zero when any
// wanted lock was busy or had waiters queued.
func (p *Process) TryLock(locks LockSet) LockSet {
	if locks == 0 {
		return 0
	}
	if !p.rawTryLock(locks) {
		lcTrylock(p, locks, false)
		return 0
	}
	lcTrylock(p, locks, true)
	return locks
}

// rawTryLock grabs all of locks with a single compare and swap, retrying
// only on unrelated flag churn. No queue interaction, no checker.
func (p *Process) rawTryLock(locks LockSet) bool {
	var expct LockSet
	for {
		if p.lock.flags.CompareAndSwap(uint32(expct), uint32(expct|locks)) {
			return true
		}
		flgs := LockSet(p.lock.flags.Load())
		if flgs&(locks|locks.waiters()) != 0 {
			// Some lock we need is held or has waiters; give up.
			return false
		}
		expct = flgs
	}
}

// Unlock releases locks on p. Never blocks: locks with queued waiters are
// transferred to the queue head instead of being cleared, so a contended
// lock flag is never observed as free between two holders.
func (p *Process) Unlock(locks LockSet) {
	lcUnlock(p, locks)
	p.unlockInternal(locks)
}

func (p *Process) unlockInternal(locks LockSet) {
	old := LockSet(p.lock.flags.Load())
	for {
		// Locks with waiters must be handed over, not cleared.
		if waitLocks := waitersOf(old, locks); waitLocks != 0 {
			p.unlockFailed(waitLocks)
			locks &^= waitLocks
		}
		if locks == 0 {
			return
		}
		if p.lock.flags.CompareAndSwap(uint32(old), uint32(old&^locks)) {
			return
		}
		old = LockSet(p.lock.flags.Load())
	}
}

// MainLockIsExclusive reports whether the main lock is held with no
// waiter queued behind it, i.e. the holder is the only interested party.
func (p *Process) MainLockIsExclusive() bool {
	flgs := LockSet(p.lock.flags.Load())
	return flgs&LockMain != 0 && flgs&LockMain.waiters() == 0
}

// HeldLocks returns the currently set lock flags. Inherently racy; meant
// for assertions and introspection only.
func (p *Process) HeldLocks() LockSet {
	return LockSet(p.lock.flags.Load()) & LocksAll
}

// LockInit initializes p's lock state. A process enters the world with
// all locks held by its creator.
func (p *Process) LockInit() {
	p.lock.flags.Store(uint32(LocksAll))
	for i := range p.lock.queue {
		p.lock.queue[i] = nil
	}
	lcTrylock(p, LocksAll, true)
}

// LockFin tears down p's lock state. All locks must have been released
// and every wait queue drained.
func (p *Process) LockFin() {
	if LockSet(p.lock.flags.Load()) != 0 {
		lockBug(p, "lock flags set at fin")
	}
	for i := range p.lock.queue {
		if p.lock.queue[i] != nil {
			lockBug(p, "wait queue not empty at fin")
		}
	}
}
