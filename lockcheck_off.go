//go:build !otp_lockcheck

package otp

// Lock-order checking is opt-in via the otp_lockcheck build tag;
// production builds get these empty stubs and pay nothing.

func lcLock(p *Process, locks LockSet) {}

func lcTrylock(p *Process, locks LockSet, locked bool) {}

func lcUnlock(p *Process, locks LockSet) {}

func lcMightUnlock(p *Process, locks LockSet) {}

func lcCheckHeld(p *Process, locks LockSet) {}

func lcTrylockForceBusy(p *Process, locks LockSet) bool { return false }
