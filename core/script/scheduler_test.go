package script

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStep is one scripted Run() call for a fakeMachine: build constructs
// the yielded message (if any) from the result the previous step was
// completed with, letting a script react to fds/ids the scheduler only
// assigns at runtime.
type fakeStep struct {
	outcome  RunOutcome
	build    func(last SyscallResult) *Message
	cycles   uint64
	exitCode int8
}

type fakeMachine struct {
	steps  []fakeStep
	idx    int
	last   SyscallResult
	cycles uint64
	mem    []byte
}

func (m *fakeMachine) Run(budget uint64) (RunOutcome, *Message, error) {
	step := m.steps[m.idx]
	cost := step.cycles
	if cost > budget {
		cost = budget
	}
	m.cycles = cost
	m.idx++
	var msg *Message
	if step.build != nil {
		msg = step.build(m.last)
	}
	return step.outcome, msg, nil
}

func (m *fakeMachine) Complete(result SyscallResult) { m.last = result }
func (m *fakeMachine) Cycles() uint64                { return m.cycles }
func (m *fakeMachine) ExitCode() int8                { return m.steps[m.idx-1].exitCode }
func (m *fakeMachine) Snapshot() ([]byte, error)      { return append([]byte(nil), m.mem...), nil }
func (m *fakeMachine) Restore(data []byte) error {
	m.mem = append([]byte(nil), data...)
	return nil
}

var rootLoc = CodeLocation("root")
var childLoc = CodeLocation("child")

// spawnPipeFactory builds the E5 scenario: root opens a pipe, spawns a
// child inheriting the read end, writes 1000 bytes, then waits on the
// child; the child reads 1000 bytes and exits 0.
func spawnPipeFactory() MachineFactory {
	var pipeReadFd, pipeWriteFd Fd
	var childID VmId
	payload := bytes.Repeat([]byte{0xAB}, 1000)

	root := &fakeMachine{steps: []fakeStep{
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			return &Message{Kind: MsgPipe, From: 0, Pipe: &PipeArgs{}}
		}},
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			pipeReadFd, pipeWriteFd = last.ReadFd, last.WriteFd
			return &Message{Kind: MsgSpawn, From: 0, Spawn: &SpawnArgs{
				Location: childLoc,
				Fds:      []Fd{pipeReadFd},
			}}
		}},
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			childID = last.ChildID
			return &Message{Kind: MsgFdWrite, From: 0, FdWrite: &FdWriteArgs{
				Fd:   pipeWriteFd,
				Data: payload,
			}}
		}},
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			return &Message{Kind: MsgWait, From: 0, Wait: &WaitArgs{Target: childID}}
		}},
		{outcome: Exited, cycles: 1, exitCode: 0},
	}}

	child := &fakeMachine{steps: []fakeStep{
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			return &Message{Kind: MsgFdRead, From: 1, FdRead: &FdReadArgs{Fd: 0, Len: 1000}}
		}},
		{outcome: Exited, cycles: 1, exitCode: 0},
	}}

	return func(loc CodeLocation, argv [][]byte) (Machine, error) {
		if string(loc) == string(childLoc) {
			return child, nil
		}
		return root, nil
	}
}

func TestSchedulerSpawnPipeRoundTrip(t *testing.T) {
	sched, err := New(spawnPipeFactory(), rootLoc, nil)
	require.NoError(t, err)

	exitCode, total, err := sched.Run(LimitCycles(100000))
	require.NoError(t, err)
	require.Equal(t, int8(0), exitCode)
	require.Greater(t, total, uint64(0))
}

// deadlockFactory builds E6: root and child each hold the read end of a
// pipe whose write end the other owns, and neither ever writes, so both
// end up blocked in WaitForRead forever.
func deadlockFactory() MachineFactory {
	var pipeA, pipeB struct{ read, write Fd }

	root := &fakeMachine{steps: []fakeStep{
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			return &Message{Kind: MsgPipe, From: 0, Pipe: &PipeArgs{}}
		}},
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			pipeA.read, pipeA.write = last.ReadFd, last.WriteFd
			return &Message{Kind: MsgPipe, From: 0, Pipe: &PipeArgs{}}
		}},
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			pipeB.read, pipeB.write = last.ReadFd, last.WriteFd
			return &Message{Kind: MsgSpawn, From: 0, Spawn: &SpawnArgs{
				Location: childLoc,
				Fds:      []Fd{pipeA.write, pipeB.read},
			}}
		}},
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			return &Message{Kind: MsgFdRead, From: 0, FdRead: &FdReadArgs{Fd: pipeA.read, Len: 10}}
		}},
	}}

	child := &fakeMachine{steps: []fakeStep{
		{outcome: Yielded, cycles: 1, build: func(last SyscallResult) *Message {
			return &Message{Kind: MsgFdRead, From: 1, FdRead: &FdReadArgs{Fd: pipeB.read, Len: 10}}
		}},
	}}

	return func(loc CodeLocation, argv [][]byte) (Machine, error) {
		if string(loc) == string(childLoc) {
			return child, nil
		}
		return root, nil
	}
}

func TestSchedulerDeadlock(t *testing.T) {
	sched, err := New(deadlockFactory(), rootLoc, nil)
	require.NoError(t, err)

	_, _, err = sched.Run(LimitCycles(100000))
	require.ErrorIs(t, err, ErrDeadlock)
}

// busyMachine never yields or exits; every Run call burns its whole
// budget, used to exercise cycle-limit accounting in isolation.
type busyMachine struct{ cycles uint64 }

func (m *busyMachine) Run(budget uint64) (RunOutcome, *Message, error) {
	m.cycles = budget
	return BudgetExceeded, nil, nil
}
func (m *busyMachine) Complete(SyscallResult)   {}
func (m *busyMachine) Cycles() uint64           { return m.cycles }
func (m *busyMachine) ExitCode() int8           { return 0 }
func (m *busyMachine) Snapshot() ([]byte, error) { return nil, nil }
func (m *busyMachine) Restore(data []byte) error { return nil }

func TestSchedulerCycleConservation(t *testing.T) {
	factory := func(loc CodeLocation, argv [][]byte) (Machine, error) {
		return &busyMachine{}, nil
	}
	sched, err := New(factory, rootLoc, nil)
	require.NoError(t, err)

	_, total, err := sched.Run(LimitCycles(500))
	require.ErrorIs(t, err, ErrCyclesExceeded)
	require.LessOrEqual(t, total, uint64(500))
}

// counterMachine exits once it has been run target times, serializing
// its progress so suspend/resume can be exercised end to end.
type counterMachine struct {
	n, target uint64
	lastCost  uint64
}

func (m *counterMachine) Run(budget uint64) (RunOutcome, *Message, error) {
	cost := uint64(1)
	if budget < cost {
		cost = budget
	}
	m.lastCost = cost
	if cost == 0 {
		return BudgetExceeded, nil, nil
	}
	m.n++
	if m.n >= m.target {
		return Exited, nil, nil
	}
	return BudgetExceeded, nil, nil
}
func (m *counterMachine) Complete(SyscallResult) {}
func (m *counterMachine) Cycles() uint64         { return m.lastCost }
func (m *counterMachine) ExitCode() int8         { return 0 }
func (m *counterMachine) Snapshot() ([]byte, error) {
	return []byte{byte(m.n), byte(m.target)}, nil
}
func (m *counterMachine) Restore(data []byte) error {
	m.n = uint64(data[0])
	m.target = uint64(data[1])
	return nil
}

func TestSchedulerSuspendResume(t *testing.T) {
	factory := func(loc CodeLocation, argv [][]byte) (Machine, error) {
		return &counterMachine{target: 10}, nil
	}
	sched, err := New(factory, rootLoc, nil)
	require.NoError(t, err)

	_, total, err := sched.Run(LimitCycles(5))
	require.ErrorIs(t, err, ErrCyclesExceeded)
	require.Equal(t, uint64(5), total)

	state, err := sched.Suspend()
	require.NoError(t, err)
	require.Equal(t, uint64(5), state.TotalCycles)

	resumed, err := Resume(factory, state)
	require.NoError(t, err)

	exitCode, total, err := resumed.Run(LimitCycles(1000))
	require.NoError(t, err)
	require.Equal(t, int8(0), exitCode)
	require.GreaterOrEqual(t, total, uint64(10))
}
