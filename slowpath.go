package otp

import (
	"fmt"
	"runtime"
)

// Contended lock paths.
//
// On contention a thread first spins on the flag word, grabbing whatever
// in-order subset it can with compare and swap. Only when the spin budget
// is exhausted does it take the pix lock, queue a wait slot per lock and
// park on its event. Releasers transfer contended locks to the queue
// head, complete the head's remaining in-order grabs on its behalf and
// signal its event once the slot needs nothing more.

// lockFailed finishes a Lock whose fast-path or could not take every
// lock. old is the flag word before the or.
func (p *Process) lockFailed(locks, old LockSet) {
	// Locks whose flag was clear in old were grabbed by the or; the
	// rest were held by someone else and the or left them untouched.
	got := locks &^ old & LocksAll
	need := locks & old & LocksAll

	// Grabbed locks above the lowest contended one violate the
	// ascending order; retract them (waiters, if any, get them) and
	// re-take them in order below.
	if lowest := need & -need; lowest != 0 {
		if retract := got &^ (lowest - 1); retract != 0 {
			got &^= retract
			need |= retract
			p.unlockInternal(retract)
		}
	}

	untilYield := lockYieldStride
	spinCount := procLockSpinCount
	olflgs := LockSet(p.lock.flags.Load())

	for need != 0 {
		canGrab := inOrderLocks(olflgs, need)

		if canGrab == 0 {
			// Someone has the lowest-numbered lock we want.
			if spinCount <= 0 {
				p.waitForLocks(need)
				return
			}
			spinCount--
			spinBody()
			if untilYield--; untilYield == 0 {
				untilYield = lockYieldStride
				runtime.Gosched()
			}
			olflgs = LockSet(p.lock.flags.Load())
		} else {
			// Grab all grabbable locks at once.
			grabbed := olflgs | canGrab
			if p.lock.flags.CompareAndSwap(uint32(olflgs), uint32(grabbed)) {
				olflgs = grabbed
				need &^= canGrab
				// Progress; reset the spin budget.
				spinCount = procLockSpinCount
			} else {
				olflgs = LockSet(p.lock.flags.Load())
			}
		}
	}
}

// waitForLocks queues the caller for the locks in need and blocks until
// releasers have transferred all of them.
func (p *Process) waitForLocks(need LockSet) {
	pl := pid2pix(p.id)

	w := fetchWaiter()
	w.needed = need

	pl.lock()
	p.lock.tryAcquire(w)

	if w.needed == 0 {
		// Got the rest while queue-less; nothing to wait for.
		pl.unlock()
	} else {
		w.waiting.Store(1)
		pl.unlock()

		for {
			w.ev.reset()
			if w.waiting.Load() == 0 {
				break
			}
			// When we are woken every needed lock has been
			// transferred to us; anything else is spurious.
			w.ev.wait()
		}

		if w.needed != 0 {
			lockBug(p, "woken with locks still needed")
		}
	}

	returnWaiter(w)
}

// tryAcquire takes as many of w's needed locks as possible in lock order
// and enqueues w on the first one it cannot take. Pix lock held.
func (l *procLock) tryAcquire(w *waiter) {
	var got LockSet
	locks := w.needed

	for ix := 0; ix <= lockMaxBit; ix++ {
		lock := LockSet(1) << ix
		if locks&lock == 0 {
			continue
		}
		if l.queue[ix] != nil {
			// Others are already waiting; line up behind them.
			l.enqueueWaiter(ix, w)
			break
		}
		wflg := lock.waiters()
		old := LockSet(l.flags.Or(uint32(wflg | lock)))
		if old&lock != 0 {
			// Didn't get the lock; the wait flag we just set
			// stays, since we are now queued.
			l.enqueueWaiter(ix, w)
			break
		}
		// Got the lock. No one else can be waiting on it; remove
		// the wait flag again.
		l.flags.And(^uint32(wflg))
		got |= lock
		if got == locks {
			break
		}
	}

	w.needed &^= got
}

// transferLocks hands the locks in trnsfr over to the head waiter of each
// queue and wakes every waiter that ends up needing nothing more. Pix
// lock held on entry; released before the wakeups. When unlock is false
// the pix lock is re-taken before returning.
func (p *Process) transferLocks(trnsfr LockSet, pl *pixLock, unlock bool) int {
	var wake *waiter
	var unsetWaiter LockSet
	transferred := 0

	for ix := 0; trnsfr != 0 && ix <= lockMaxBit; ix++ {
		lock := LockSet(1) << ix
		if trnsfr&lock == 0 {
			continue
		}
		trnsfr &^= lock
		transferred++

		w := p.lock.dequeueWaiter(ix)
		if p.lock.queue[ix] == nil {
			unsetWaiter |= lock
		}
		// The lock flag stays set across the transfer; only the
		// holder changes, so no third party can slip in.
		w.needed &^= lock
		if w.needed != 0 {
			p.lock.tryAcquire(w)
		}
		if w.needed == 0 {
			// The waiter has every lock it asked for.
			w.next = wake
			wake = w
		}
	}

	if unsetWaiter != 0 {
		p.lock.flags.And(^uint32(unsetWaiter.waiters()))
	}

	// Wake after dropping the pix lock, so the woken threads do not
	// immediately pile up on it.
	if wake == nil {
		if unlock {
			pl.unlock()
		}
	} else {
		pl.unlock()
		for wake != nil {
			w := wake
			wake = w.next
			w.waiting.Store(0)
			w.ev.set()
		}
		if !unlock {
			pl.lock()
		}
	}
	return transferred
}

// unlockFailed is taken when Unlock finds waiters queued on locks it is
// releasing; those locks are transferred rather than cleared.
func (p *Process) unlockFailed(waitLocks LockSet) {
	pl := pid2pix(p.id)
	pl.lock()
	p.transferLocks(waitLocks, pl, true)
}

// lockBug reports a bug-class violation: these are programming errors,
// never runtime conditions, and always abort.
func lockBug(p *Process, msg string) {
	panic(fmt.Sprintf("otp: proc lock: %s (pid %v, flags %#x)",
		msg, p.id, p.lock.flags.Load()))
}
