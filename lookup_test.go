package otp

import (
	"sync/atomic"
	"testing"
)

func TestLookupNotFound(t *testing.T) {
	tab := NewPTab(64)

	if got := tab.Pid2Proc(makePid(3, 0), LockMain); got != nil {
		t.Fatalf("empty slot resolved to %v", got.ID())
	}
	if got := tab.Pid2Proc(InvalidPid, LockMain); got != nil {
		t.Fatalf("InvalidPid resolved")
	}
	remote := makePid(3, 0) | Pid(7)<<pidNodeShift
	if got := tab.Pid2Proc(remote, LockMain); got != nil {
		t.Fatalf("remote pid resolved")
	}
}

func TestLookupStalePid(t *testing.T) {
	tab := NewPTab(1)
	p := tab.Spawn(NoParent)
	pid := p.ID()
	p.IncRefc()
	p.MarkExiting()
	tab.Remove(p)
	p.Unlock(LocksAll)
	p.DecRefc()

	if got := tab.Pid2Proc(pid, LockMain); got != nil {
		t.Fatalf("removed pid resolved")
	}

	// The slot is reused with a fresh serial; the old pid still misses.
	q := tab.Spawn(NoParent)
	if q == nil {
		t.Fatalf("slot not reusable after remove")
	}
	q.Unlock(LocksAll)
	if q.ID() == pid {
		t.Fatalf("recycled slot reissued pid %v", pid)
	}
	if got := tab.Pid2Proc(pid, 0); got != nil {
		t.Fatalf("stale pid resolved to new process %v", got.ID())
	}
	if got := tab.Pid2Proc(q.ID(), 0); got != q {
		t.Fatalf("fresh pid did not resolve")
	}
}

func TestLookupNoLocks(t *testing.T) {
	tab := NewPTab(64)
	p := tab.Spawn(NoParent)
	p.Unlock(LocksAll)

	if got := tab.Pid2Proc(p.ID(), 0); got != p {
		t.Fatalf("lockless lookup failed")
	}
	if got := tab.Pid2ProcOpt(nil, 0, p.ID(), 0, P2PFlgIncRefc); got != p {
		t.Fatalf("lockless IncRefc lookup failed")
	}
	if refc := p.refc.Load(); refc != 2 {
		t.Fatalf("refc = %d, want 2", refc)
	}
	p.DecRefc()
}

func TestLookupTryLockBusy(t *testing.T) {
	tab := NewPTab(64)
	p := tab.Spawn(NoParent)
	p.Unlock(LocksAll &^ LockMain) // keep main held

	before := p.lock.flags.Load()
	got := tab.Pid2ProcOpt(nil, 0, p.ID(), LockMain, P2PFlgTryLock)
	if got != ProcLockBusy {
		t.Fatalf("trylock lookup = %v, want ProcLockBusy", got)
	}
	if after := p.lock.flags.Load(); after != before {
		t.Fatalf("flags changed by busy trylock: %#x -> %#x", before, after)
	}

	p.Unlock(LockMain)
	got = tab.Pid2ProcOpt(nil, 0, p.ID(), LockMain, P2PFlgTryLock)
	if got != p {
		t.Fatalf("trylock lookup = %v, want process", got)
	}
	p.Unlock(LockMain)
}

func TestLookupBlocks(t *testing.T) {
	tab := NewPTab(64)
	p := tab.Spawn(NoParent)
	p.Unlock(LocksAll &^ LockMain)

	var resumed atomic.Bool
	done := make(chan struct{})
	go func() {
		got := tab.Pid2Proc(p.ID(), LockMain)
		resumed.Store(true)
		if got == p {
			got.Unlock(LockMain)
		}
		close(done)
	}()

	waitUntil(t, "lookup waiting", func() bool {
		return waitersOf(LockSet(p.lock.flags.Load()), LockMain) != 0
	})
	if resumed.Load() {
		t.Fatalf("lookup returned while lock held")
	}
	p.Unlock(LockMain)
	<-done
}

func TestLookupExiting(t *testing.T) {
	tab := NewPTab(64)
	p := tab.Spawn(NoParent)
	p.MarkExiting()
	p.Unlock(LocksAll)

	if got := tab.Pid2Proc(p.ID(), LockMain); got != nil {
		t.Fatalf("exiting process resolved without AllowOtherX")
	}
	if p.lock.flags.Load() != 0 {
		t.Fatalf("flags = %#x, exiting reject must release", p.lock.flags.Load())
	}

	got := tab.Pid2ProcOpt(nil, 0, p.ID(), LockMain, P2PFlgAllowOtherX)
	if got != p {
		t.Fatalf("AllowOtherX lookup = %v", got)
	}
	got.Unlock(LockMain)
}

func TestLookupSelf(t *testing.T) {
	tab := NewPTab(64)
	c := tab.Spawn(NoParent)
	c.Unlock(LocksAll &^ LockMain)

	// Need covered by held locks: the table is skipped entirely.
	if got := tab.Pid2ProcOpt(c, LockMain, c.ID(), LockMain, 0); got != c {
		t.Fatalf("self lookup failed")
	}
	// Extra locks still go through acquisition.
	got := tab.Pid2ProcOpt(c, LockMain, c.ID(), LockMain|LockStatus, 0)
	if got != c {
		t.Fatalf("self lookup with extra locks failed")
	}
	if c.HeldLocks() != LockMain|LockStatus {
		t.Fatalf("flags = %v", c.HeldLocks())
	}
	c.Unlock(LockMain | LockStatus)

	c.MarkExiting()
	if got := tab.Pid2ProcOpt(c, 0, c.ID(), LockMain, 0); got != nil {
		t.Fatalf("exiting self lookup resolved")
	}
}

func TestLookupIncRefc(t *testing.T) {
	tab := NewPTab(64)
	p := tab.Spawn(NoParent)
	p.Unlock(LocksAll)

	got := tab.Pid2ProcOpt(nil, 0, p.ID(), LockMain, P2PFlgIncRefc)
	if got != p {
		t.Fatalf("lookup failed")
	}
	if refc := p.refc.Load(); refc != 2 {
		t.Fatalf("refc = %d, want 2", refc)
	}
	p.Unlock(LockMain)
	p.DecRefc()
	if refc := p.refc.Load(); refc != 1 {
		t.Fatalf("refc = %d, want 1", refc)
	}
}

func TestProcLookup(t *testing.T) {
	tab := NewPTab(64)
	p := tab.Spawn(NoParent)
	p.Unlock(LocksAll)

	got := tab.ProcLookup(p.ID())
	if got != p {
		t.Fatalf("ProcLookup failed")
	}
	got.DecRefc()

	p.MarkExiting()
	if got := tab.ProcLookup(p.ID()); got != nil {
		t.Fatalf("ProcLookup resolved exiting process")
	}
	got = tab.ProcLookupRawIncRefc(p.ID())
	if got != p {
		t.Fatalf("raw lookup skipped exiting process")
	}
	got.DecRefc()
}
