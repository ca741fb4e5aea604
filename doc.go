// Package otp implements Erlang-style runtime kernel primitives: a
// fine-grained multi-bit process lock, the sharded process table it
// cooperates with, and a name registry.
//
// Each process carries five independent locks (main, msgq, btm, status,
// trace) packed with their waiter flags into one atomic word. Any subset
// is acquired in a single operation; uncontended acquire and release are
// one atomic read-modify-write each. Contended locks are handed over to
// per-lock FIFO wait queues, and the combination of ascending lock order
// within a process with pid order across processes makes multi-process
// acquisition (SafeLock, Pid2ProcOpt) deadlock free.
//
// Build with the otp_lockcheck tag to enable the lock-order checker;
// order violations, recursive acquires and releases of unheld locks then
// abort with a diagnostic.
package otp
