package otp

import "runtime"

// Spin tuning. An acquirer that misses the fast path retries the flag
// word a bounded number of times before parking; the budget scales with
// the number of schedulers, since more schedulers mean a holder is more
// likely to be running right now.
const (
	lockSpinCountBase     = 1000
	lockSpinCountSchedInc = 32
	lockSpinCountMax      = 2000
	lockAuxSpinCount      = 50
	lockYieldStride       = 25
)

var (
	procLockSpinCount   int
	auxThrLockSpinCount int
)

func init() {
	InitProcLocks(runtime.NumCPU(), runtime.GOMAXPROCS(0))
}

// InitProcLocks calibrates the spin budgets for the given cpu and
// scheduler counts. The package calibrates itself at startup from
// runtime.NumCPU and GOMAXPROCS; embedders with different topology can
// recalibrate. cpus <= 0 means unknown.
func InitProcLocks(cpus, schedulers int) {
	switch {
	case cpus > 1:
		procLockSpinCount = lockSpinCountBase +
			lockSpinCountSchedInc*schedulers
		auxThrLockSpinCount = lockAuxSpinCount
	case cpus == 1:
		procLockSpinCount = 0
		auxThrLockSpinCount = 0
	default:
		// Unknown; assume multi processor but be conservative.
		procLockSpinCount = lockSpinCountBase / 2
		auxThrLockSpinCount = lockAuxSpinCount / 2
	}
	if procLockSpinCount > lockSpinCountMax {
		procLockSpinCount = lockSpinCountMax
	}
}

// SpinCount returns the contended-acquire spin budget in use.
func SpinCount() int {
	return procLockSpinCount
}

// AuxSpinCount returns the spin budget calibrated for auxiliary (non
// scheduler) threads. Goroutines are symmetric, so the lock paths always
// spin for SpinCount; this figure is computed by InitProcLocks and
// reported here, but the engine does not use it.
func AuxSpinCount() int {
	return auxThrLockSpinCount
}
