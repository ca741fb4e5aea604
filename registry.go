package otp

import (
	"github.com/llxisdsh/pb"
)

// Registry maps names to pids, the way registered processes work: a name
// points at a live process, registration of an exiting process fails,
// and a name is freed only by Unregister. Removing a process from the
// table leaves its names bound; they no longer resolve through the table.
//
// The zero Registry is ready to use.
type Registry struct {
	_ noCopy
	m pb.MapOf[string, Pid]
}

// Register binds name to p. It fails when the name is taken or the
// process is already exiting.
func (r *Registry) Register(name string, p *Process) bool {
	if p == nil || p.IsExiting() {
		return false
	}
	_, loaded := r.m.LoadOrStore(name, p.id)
	return !loaded
}

// Unregister frees a name. Reports whether it was bound.
func (r *Registry) Unregister(name string) bool {
	_, loaded := r.m.Load(name)
	if loaded {
		r.m.Delete(name)
	}
	return loaded
}

// Whereis resolves a name to a pid.
func (r *Registry) Whereis(name string) (Pid, bool) {
	return r.m.Load(name)
}

// WhereisProc resolves a name through the table, taking want on the
// process. The lookup semantics are those of Pid2ProcOpt; a dangling
// name yields nil.
func (r *Registry) WhereisProc(t *PTab, name string, want LockSet, flags P2PFlag) *Process {
	pid, ok := r.m.Load(name)
	if !ok {
		return nil
	}
	return t.Pid2ProcOpt(nil, 0, pid, want, flags)
}
