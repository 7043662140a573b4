package script

import (
	"bytes"
	"errors"
	"sort"

	"github.com/hashicorp/go-uuid"
	"github.com/riscvlabs/corechain/log"
	"github.com/riscvlabs/corechain/metrics"
)

// Sentinel errors the scheduler itself can produce. core/chain's
// verifier maps them into the errkind taxonomy: ErrCyclesExceeded
// becomes errkind.VerificationCycles and the others are wrapped as
// errkind.VerificationScript.
var (
	ErrCyclesExceeded = errors.New("script: cycles exceeded")
	ErrPaused         = errors.New("script: paused")
	ErrDeadlock       = errors.New("script: deadlock, no runnable vm and empty message box")
	ErrTooManyResident = errors.New("script: requested more than MaxInstantiatedVMs simultaneously")
)

type vmEntry struct {
	state        VmState
	instantiated bool
	machine      Machine   // nil when suspended
	snapshot     []byte    // valid when !instantiated
	inherited    []Fd

	// recvBuf is non-nil only for the synthetic native-channel entry
	// (see ipc.go): it accumulates bytes the root VM writes to the
	// native side of an inherited fd pair, since a machine-less entry
	// has nowhere else to deliver a completed read.
	recvBuf *bytes.Buffer
}

// nativeVmID is the fixed id of the synthetic scheduler participant
// that stands in for a caller outside the scheduler exchanging bytes
// with the root VM's inherited fd pair (see ipc.go). It is chosen far
// outside the range nextID ever reaches so it can never collide with a
// spawned VM's id.
const nativeVmID = VmId(1<<63 - 1)

// Scheduler runs a single script group: a root VM plus everything it
// transitively spawns.
type Scheduler struct {
	factory MachineFactory

	vms    map[VmId]*vmEntry
	rootID VmId
	nextID VmId

	fdOwner  map[Fd]VmId
	nextFd   Fd

	waiters map[VmId][]VmId // target -> vms blocked in Wait on target

	totalCycles     uint64
	iterationCycles uint64

	// traceID correlates this scheduler's debug log lines across its
	// whole life cycle (spanning many Run calls from a suspended state),
	// the way a request id threads through a multi-hop trace.
	traceID string
	log     log.Logger
}

// New boots a fresh scheduler with a root VM at location.
func New(factory MachineFactory, location CodeLocation, argv [][]byte) (*Scheduler, error) {
	m, err := factory(location, argv)
	if err != nil {
		return nil, err
	}
	traceID, err := uuid.GenerateUUID()
	if err != nil {
		traceID = "unavailable"
	}
	s := &Scheduler{
		factory: factory,
		vms:     map[VmId]*vmEntry{},
		fdOwner: map[Fd]VmId{},
		waiters: map[VmId][]VmId{},
		rootID:  0,
		nextID:  1,
		nextFd:  0,
		traceID: traceID,
		log:     log.NewModuleLogger(log.ScriptScheduler),
	}
	s.vms[s.rootID] = &vmEntry{state: VmState{Kind: Runnable}, instantiated: true, machine: m}
	return s, nil
}

// instantiatedIDs returns the ids currently resident in memory, sorted.
func (s *Scheduler) instantiatedIDs() []VmId {
	var ids []VmId
	for id, e := range s.vms {
		if e.instantiated {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ensureInstantiated resumes suspended VMs named in ids, displacing
// non-requested resident VMs in deterministic (ascending id) order when
// the resident population would otherwise exceed MaxInstantiatedVMs.
func (s *Scheduler) ensureInstantiated(ids []VmId) error {
	if len(ids) > MaxInstantiatedVMs {
		return ErrTooManyResident
	}
	want := map[VmId]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for _, id := range ids {
		e, ok := s.vms[id]
		if !ok || e.instantiated {
			continue
		}
		for len(s.instantiatedIDs()) >= MaxInstantiatedVMs {
			if err := s.displaceOneResident(want); err != nil {
				return err
			}
		}
		m, err := s.factory(nil, nil)
		if err != nil {
			return err
		}
		if err := m.Restore(e.snapshot); err != nil {
			return err
		}
		e.machine = m
		e.snapshot = nil
		e.instantiated = true
	}
	return nil
}

func (s *Scheduler) displaceOneResident(keep map[VmId]bool) error {
	for _, id := range s.instantiatedIDs() {
		if keep[id] {
			continue
		}
		e := s.vms[id]
		snap, err := e.machine.Snapshot()
		if err != nil {
			return err
		}
		e.snapshot = snap
		e.machine = nil
		e.instantiated = false
		return nil
	}
	return ErrTooManyResident
}

// pickRunnable returns the runnable VM with the highest id, a
// deterministic rule that matches spawn order and avoids starving
// spawnees.
func (s *Scheduler) pickRunnable() (VmId, bool) {
	best := VmId(0)
	found := false
	for id, e := range s.vms {
		if e.state.Kind == Runnable && (!found || id > best) {
			best = id
			found = true
		}
	}
	return best, found
}

// RunMode selects how Run paces itself.
type RunMode struct {
	limitCycles bool
	limit       uint64
	pause       *bool
}

// LimitCycles runs until n total cycles are consumed or the root VM
// terminates.
func LimitCycles(n uint64) RunMode { return RunMode{limitCycles: true, limit: n} }

// Pause runs until *signal becomes true, checked once per iteration.
func Pause(signal *bool) RunMode { return RunMode{pause: signal} }

// Run drives the scheduler to completion or to a pause/budget boundary,
// according to mode.
func (s *Scheduler) Run(mode RunMode) (exitCode int8, totalCycles uint64, err error) {
	for {
		if mode.pause != nil && *mode.pause {
			return 0, s.totalCycles, ErrPaused
		}

		s.transferIO()

		id, ok := s.pickRunnable()
		if !ok {
			s.log.Debug("scheduler deadlock", "trace", s.traceID, "vms", len(s.vms))
			return 0, s.totalCycles, ErrDeadlock
		}

		if err := s.ensureInstantiated([]VmId{id}); err != nil {
			s.log.Debug("scheduler instantiation failed", "trace", s.traceID, "vm", id, "error", err)
			return 0, s.totalCycles, err
		}

		budget := uint64(1 << 20)
		if mode.limitCycles {
			remaining := mode.limit - s.totalCycles
			if remaining == 0 {
				return 0, s.totalCycles, ErrCyclesExceeded
			}
			if remaining < budget {
				budget = remaining
			}
		}

		e := s.vms[id]
		outcome, msg, runErr := e.machine.Run(budget)
		if runErr != nil {
			return 0, s.totalCycles, runErr
		}

		consumed := e.machine.Cycles()
		s.iterationCycles += consumed
		s.totalCycles += s.iterationCycles
		s.iterationCycles = 0
		metrics.SchedulerCycles.Inc(int64(consumed))
		if mode.limitCycles && s.totalCycles > mode.limit {
			return 0, s.totalCycles, ErrCyclesExceeded
		}

		switch outcome {
		case Exited:
			if code, done := s.terminate(id, e.machine.ExitCode()); done && id == s.rootID {
				return code, s.totalCycles, nil
			}
		case BudgetExceeded:
			// stays Runnable; loop continues.
		case Yielded:
			if msg != nil {
				s.dispatch(*msg)
			}
		}
	}
}

// terminate handles a non-root VM exit (wake waiters, release fds, drop
// state) or signals the root's completion.
func (s *Scheduler) terminate(id VmId, code int8) (int8, bool) {
	s.vms[id].state = VmState{Kind: Terminated, ExitCode: code}

	if id == s.rootID {
		return code, true
	}

	for fd, owner := range s.fdOwner {
		if owner == id {
			delete(s.fdOwner, fd)
		}
	}

	for _, waiter := range s.waiters[id] {
		we := s.vms[waiter]
		if we.state.Kind == Wait && we.state.WaitTarget == id {
			we.state = VmState{Kind: Runnable}
		}
	}
	delete(s.waiters, id)
	delete(s.vms, id)
	return 0, false
}

func (s *Scheduler) charge(cycles uint64) { s.iterationCycles += cycles }

// TraceID returns the correlation id generated for this scheduler at
// New, for callers that want to tie their own logs to its debug trace.
func (s *Scheduler) TraceID() string { return s.traceID }
