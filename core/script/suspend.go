package script

// vmSnapshot is one VM's serialized contribution to a FullSuspendedState:
// the (VmId, VmState, snapshot) triple.
type vmSnapshot struct {
	ID        VmId
	State     VmState
	Memory    []byte // nil for a terminated VM
	Inherited []Fd
}

// FullSuspendedState is everything Resume needs to reconstruct a
// Scheduler bit-for-bit, modulo the free-suspension cycle exception:
// suspending and resuming does not itself consume cycle budget.
type FullSuspendedState struct {
	TotalCycles uint64
	NextVmID    VmId
	NextFdSlot  Fd
	RootID      VmId

	VMs       []vmSnapshot
	FdOwner   map[Fd]VmId
	Waiters   map[VmId][]VmId
	Resident  []VmId // formerly-instantiated ids, to restore residency on resume
}

// Suspend serializes every instantiated VM and returns the state needed
// to reconstruct this scheduler later. Callers must ensure the message
// box is empty first: mid-dispatch suspension would lose the in-flight
// syscall.
func (s *Scheduler) Suspend() (*FullSuspendedState, error) {
	state := &FullSuspendedState{
		TotalCycles: s.totalCycles,
		NextVmID:    s.nextID,
		NextFdSlot:  s.nextFd,
		RootID:      s.rootID,
		FdOwner:     copyFdOwner(s.fdOwner),
		Waiters:     copyWaiters(s.waiters),
	}

	for id, e := range s.vms {
		snap := vmSnapshot{ID: id, State: e.state, Inherited: append([]Fd(nil), e.inherited...)}
		if e.instantiated {
			mem, err := e.machine.Snapshot()
			if err != nil {
				return nil, err
			}
			snap.Memory = mem
			state.Resident = append(state.Resident, id)
		} else {
			snap.Memory = e.snapshot
		}
		state.VMs = append(state.VMs, snap)
	}
	return state, nil
}

// Resume rebuilds a Scheduler from a FullSuspendedState produced by
// Suspend, re-instantiating the VMs that were resident when it was
// taken.
func Resume(factory MachineFactory, state *FullSuspendedState) (*Scheduler, error) {
	s := &Scheduler{
		factory:     factory,
		vms:         map[VmId]*vmEntry{},
		fdOwner:     copyFdOwner(state.FdOwner),
		waiters:     copyWaiters(state.Waiters),
		rootID:      state.RootID,
		nextID:      state.NextVmID,
		nextFd:      state.NextFdSlot,
		totalCycles: state.TotalCycles,
	}

	resident := map[VmId]bool{}
	for _, id := range state.Resident {
		resident[id] = true
	}

	for _, snap := range state.VMs {
		e := &vmEntry{state: snap.State, inherited: snap.Inherited}
		if resident[snap.ID] {
			m, err := factory(nil, nil)
			if err != nil {
				return nil, err
			}
			if err := m.Restore(snap.Memory); err != nil {
				return nil, err
			}
			e.machine = m
			e.instantiated = true
		} else {
			e.snapshot = snap.Memory
		}
		s.vms[snap.ID] = e
	}
	return s, nil
}

func copyFdOwner(m map[Fd]VmId) map[Fd]VmId {
	cp := make(map[Fd]VmId, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func copyWaiters(m map[VmId][]VmId) map[VmId][]VmId {
	cp := make(map[VmId][]VmId, len(m))
	for k, v := range m {
		cp[k] = append([]VmId(nil), v...)
	}
	return cp
}
