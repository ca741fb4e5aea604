package otp

// P2PFlag adjusts Pid2ProcOpt behavior. Flags combine by union.
type P2PFlag uint32

const (
	// P2PFlgAllowOtherX also resolves processes that are exiting.
	P2PFlgAllowOtherX P2PFlag = 1 << iota
	// P2PFlgTryLock returns ProcLockBusy instead of waiting for
	// contended locks.
	P2PFlgTryLock
	// P2PFlgIncRefc additionally takes a reference on the result.
	P2PFlgIncRefc
)

// ProcLockBusy is the distinguished result of a P2PFlgTryLock lookup
// that found the process but not its locks.
var ProcLockBusy = &Process{id: InvalidPid}

// Pid2ProcOpt resolves pid to its live process and acquires need on it.
//
// The result is nil when the pid is non-local or stale, or when need is
// non-empty and the process is exiting (unless P2PFlgAllowOtherX),
// ProcLockBusy when P2PFlgTryLock lost the race for a lock, and the
// locked process otherwise. With an empty need no exiting check is made.
//
// c is the calling process, nil outside process context; cHave are the
// locks it holds. They matter twice: a self-lookup can skip the table,
// and a blocking lookup that cannot take need at once falls back to
// SafeLock with the caller's holdings so the global lock order is kept.
func (t *PTab) Pid2ProcOpt(c *Process, cHave LockSet, pid Pid, need LockSet, flags P2PFlag) *Process {
	decRefs := 0

	if c != nil {
		lcMightUnlock(c, cHave&need)
	}

	if !pid.IsLocal() {
		return nil
	}

	if c != nil && c.id == pid {
		if flags&P2PFlgAllowOtherX == 0 && c.IsExiting() {
			return nil
		}
		need &^= cHave
		if need == 0 {
			if flags&P2PFlgIncRefc != 0 {
				c.IncRefc()
			}
			return c
		}
	}

	dh := thrDelay()
	continued := false

	proc := t.proc(pid)
	if proc != nil && need != 0 {
		busy := lcTrylockForceBusy(proc, need)
		if !busy {
			// Quick trylock for everything we need.
			busy = !proc.rawTryLock(need)
			lcTrylock(proc, need, !busy)
		}

		if !busy {
			if flags&P2PFlgIncRefc != 0 {
				proc.IncRefc()
			}
		} else if flags&P2PFlgTryLock != 0 {
			proc = ProcLockBusy
		} else {
			if flags&P2PFlgIncRefc != 0 {
				proc.IncRefc()
			}
			// We are about to block with the delay section
			// open; pin the process and close the section
			// first. The pin is dropped on the way out.
			proc.IncRefc()
			decRefs++
			dh.thrContinue()
			continued = true

			SafeLock(c, cHave, cHave, proc, 0, need)
		}
	} else if proc != nil {
		if flags&P2PFlgIncRefc != 0 {
			proc.IncRefc()
		}
	}

	if !continued {
		dh.thrContinue()
	}

	if need != 0 && proc != nil && proc != ProcLockBusy {
		// Re-validate now that the locks are held: the process may
		// have started exiting, or been replaced in the slot, while
		// we waited.
		locked := proc
		stale := false
		if flags&P2PFlgAllowOtherX == 0 {
			stale = locked.IsExiting()
		} else {
			stale = t.slots[pid.index()].Load() != locked
		}
		if stale {
			locked.Unlock(need)
			if flags&P2PFlgIncRefc != 0 {
				// The caller gets nil back; return its
				// reference too.
				decRefs++
			}
			proc = nil
		}
		for ; decRefs > 0; decRefs-- {
			locked.DecRefc()
		}
	}
	return proc
}

// Pid2Proc resolves pid and acquires need, waiting if it must.
func (t *PTab) Pid2Proc(pid Pid, need LockSet) *Process {
	return t.Pid2ProcOpt(nil, 0, pid, need, 0)
}

// ProcLookup resolves pid to a referenced process, skipping exiting
// ones. No locks are taken; the caller releases the reference.
func (t *PTab) ProcLookup(pid Pid) *Process {
	return t.procLookupIncRefc(pid, false)
}

// ProcLookupRawIncRefc is ProcLookup without the exiting filter.
func (t *PTab) ProcLookupRawIncRefc(pid Pid) *Process {
	return t.procLookupIncRefc(pid, true)
}

func (t *PTab) procLookupIncRefc(pid Pid, allowExit bool) *Process {
	if !pid.IsLocal() {
		return nil
	}
	dh := thrDelay()
	proc := t.proc(pid)
	if proc != nil {
		if !allowExit && proc.IsExiting() {
			proc = nil
		} else {
			proc.IncRefc()
		}
	}
	dh.thrContinue()
	return proc
}
