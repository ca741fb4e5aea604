//go:build otp_lockcheck

package otp

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/llxisdsh/pb"
)

// Opt-in lock-order checker.
//
// Every goroutine gets a stack of (lock number, pid) pairs, pushed on
// acquire and removed on release. The global order is total: a new
// blocking acquisition must be greater than everything held, comparing
// lock number first and pid second. Trylocks may be taken out of order
// (they cannot deadlock) and are inserted at their sorted position.
//
// Violations are bugs, so they abort with the held-lock set.

type lcEntry struct {
	pid Pid
	no  int
}

func (e lcEntry) less(o lcEntry) bool {
	return e.no < o.no || (e.no == o.no && e.pid < o.pid)
}

func (e lcEntry) String() string {
	return fmt.Sprintf("%s(%d)", lockNames[e.no], e.pid)
}

type lcLocks struct {
	held []lcEntry
}

var lcThreads pb.MapOf[uint64, *lcLocks]

func lcCurrent() *lcLocks {
	id := goid()
	if l, ok := lcThreads.Load(id); ok {
		return l
	}
	l, _ := lcThreads.LoadOrStore(id, &lcLocks{})
	return l
}

func (l *lcLocks) dump() string {
	if len(l.held) == 0 {
		return "no locks held"
	}
	names := make([]string, len(l.held))
	for i, e := range l.held {
		names[i] = e.String()
	}
	return "held: " + strings.Join(names, " < ")
}

func lcFail(p *Process, format string, args ...any) {
	panic(fmt.Sprintf("otp: lock order violation on pid %v: %s; %s",
		p.id, fmt.Sprintf(format, args...), lcCurrent().dump()))
}

// lcLock records a blocking acquisition of locks on p, lowest bit first.
func lcLock(p *Process, locks LockSet) {
	l := lcCurrent()
	for no := 0; no <= lockMaxBit; no++ {
		if locks&(LockSet(1)<<no) == 0 {
			continue
		}
		e := lcEntry{pid: p.id, no: no}
		if n := len(l.held); n > 0 {
			top := l.held[n-1]
			if top == e {
				lcFail(p, "recursive acquire of %s", e)
			}
			if !top.less(e) {
				lcFail(p, "acquiring %s after %s", e, top)
			}
		}
		l.held = append(l.held, e)
	}
}

// lcTrylock records a non-blocking acquisition attempt; out-of-order is
// fine, so successful entries are spliced in at their sorted position.
func lcTrylock(p *Process, locks LockSet, locked bool) {
	if !locked {
		return
	}
	l := lcCurrent()
	for no := 0; no <= lockMaxBit; no++ {
		if locks&(LockSet(1)<<no) == 0 {
			continue
		}
		e := lcEntry{pid: p.id, no: no}
		ix := len(l.held)
		for ix > 0 && e.less(l.held[ix-1]) {
			ix--
		}
		if ix > 0 && l.held[ix-1] == e {
			lcFail(p, "recursive acquire of %s", e)
		}
		l.held = append(l.held, lcEntry{})
		copy(l.held[ix+1:], l.held[ix:])
		l.held[ix] = e
	}
}

// lcUnlock removes released locks; releasing an unheld lock aborts.
func lcUnlock(p *Process, locks LockSet) {
	l := lcCurrent()
	for no := lockMaxBit; no >= 0; no-- {
		if locks&(LockSet(1)<<no) == 0 {
			continue
		}
		e := lcEntry{pid: p.id, no: no}
		found := false
		for ix := len(l.held) - 1; ix >= 0; ix-- {
			if l.held[ix] == e {
				l.held = append(l.held[:ix], l.held[ix+1:]...)
				found = true
				break
			}
		}
		if !found {
			lcFail(p, "releasing unheld %s", e)
		}
	}
}

// lcMightUnlock flags locks a call may transparently release and
// reacquire (the safelock fallback of a lookup); nothing to verify
// beyond the locks actually being held.
func lcMightUnlock(p *Process, locks LockSet) {
	if locks != 0 {
		lcCheckHeld(p, locks)
	}
}

// lcCheckHeld verifies every lock in locks is recorded as held on p.
func lcCheckHeld(p *Process, locks LockSet) {
	l := lcCurrent()
	var held LockSet
	for _, e := range l.held {
		if e.pid == p.id {
			held |= LockSet(1) << e.no
		}
	}
	if held&locks != locks {
		lcFail(p, "%s not held", locks&^held)
	}
}

// lcTrylockForceBusy makes a trylock fail when taking locks blockingly
// would have violated the order, so callers exercise their fallback
// (safelock) in check builds exactly where production could deadlock.
func lcTrylockForceBusy(p *Process, locks LockSet) bool {
	l := lcCurrent()
	if len(l.held) == 0 {
		return false
	}
	lowest := locks & -locks
	e := lcEntry{pid: p.id, no: bitIndex(lowest)}
	top := l.held[len(l.held)-1]
	return !top.less(e)
}

func bitIndex(lock LockSet) int {
	no := 0
	for lock > 1 {
		lock >>= 1
		no++
	}
	return no
}

// goid parses the current goroutine id from the stack header. Check
// builds only; never on a production path.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	s, _, _ = strings.Cut(s, " ")
	id, _ := strconv.ParseUint(s, 10, 64)
	return id
}
