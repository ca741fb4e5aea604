package otp

// SafeLock locks process locks on two processes at once without risking
// deadlock. Locks the caller already holds out of order are released
// first, then everything is (re)acquired in the global lock order:
// ascending lock number, and for the same lock number the lower pid
// before the higher.
//
// a may be nil (plain two-set acquisition on b) and may equal b, in
// which case the requests collapse onto the one process. aHave/bHave are
// the locks already held; aNeed/bNeed the sets that must be held on
// return, and must include the held ones: SafeLock never gives locks
// back.
//
// If reordering forces a process to be completely unlocked for a moment,
// an extra reference pins it so it cannot be reclaimed while unheld.
func SafeLock(a *Process, aHave, aNeed LockSet, b *Process, bHave, bNeed LockSet) {
	var p1, p2 *Process
	var need1, have1, need2, have2 LockSet

	// Inter-process lock order: same-numbered locks go to the lower
	// pid first.
	switch {
	case a == nil:
		p1, need1, have1 = b, bNeed, bHave
	case a.id < b.id:
		p1, need1, have1 = a, aNeed, aHave
		p2, need2, have2 = b, bNeed, bHave
	case a.id > b.id:
		p1, need1, have1 = b, bNeed, bHave
		p2, need2, have2 = a, aNeed, aHave
	default:
		p1, need1, have1 = a, aNeed|bNeed, aHave|bHave
	}

	if need1&have1 != have1 || need2&have2 != have2 {
		lockBug(p1, "safelock asked to release locks")
	}
	lcCheckHeld(p1, have1)
	if p2 != nil {
		lcCheckHeld(p2, have2)
	}

	need1 &^= have1
	need2 &^= have2

	// Figure out the range of locks that needs to be unlocked: the
	// lowest lock needed on either process and every lock above it.
	// When only p2 needs that lowest lock, p1 may keep its own copy,
	// since p1 takes same-numbered locks first anyway.
	unlockMask := LocksAll
	lockNo := 0
	for ; lockNo <= lockMaxBit; lockNo++ {
		lock := LockSet(1) << lockNo
		if need1&lock != 0 {
			break
		}
		unlockMask &^= lock
		if need2&lock != 0 {
			break
		}
	}

	// ... and unlock held locks in that range, pinning a process that
	// goes completely unheld.
	var ref1, ref2 bool
	if have1|have2 != 0 {
		if ul := unlockMask & have1; ul != 0 {
			have1 &^= ul
			need1 |= ul
			if have1 == 0 {
				ref1 = true
				p1.IncRefc()
			}
			p1.Unlock(ul)
		}
		if ul := unlockMask & have2; ul != 0 {
			have2 &^= ul
			need2 |= ul
			if have2 == 0 {
				ref2 = true
				p2.IncRefc()
			}
			p2.Unlock(ul)
		}
	}

	// lockNo is now the first lock to take on either process. Take
	// runs of locks in ascending order, p1 before p2 whenever both
	// need the same lock number.
	for lockNo <= lockMaxBit {
		lock := LockSet(1) << lockNo
		var mask LockSet
		switch {
		case need1&lock != 0:
			for {
				lock = LockSet(1) << lockNo
				lockNo++
				mask |= lock
				if lockNo > lockMaxBit || need2&lock != 0 {
					break
				}
			}
			if need2&lock != 0 {
				lockNo--
			}
			locks := need1 & mask
			p1.Lock(locks)
			have1 |= locks
			need1 &^= locks
		case need2&lock != 0:
			for lockNo <= lockMaxBit && need1&lock == 0 {
				mask |= lock
				lockNo++
				lock = LockSet(1) << lockNo
			}
			locks := need2 & mask
			p2.Lock(locks)
			have2 |= locks
			need2 &^= locks
		default:
			lockNo++
		}
	}

	if ref1 {
		p1.DecRefc()
	}
	if ref2 {
		p2.DecRefc()
	}
}
