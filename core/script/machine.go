package script

// RunOutcome classifies why a Machine.Run call returned control to the
// scheduler: it yielded, exited, or exceeded its per-iteration cycle
// budget.
type RunOutcome int

const (
	Yielded RunOutcome = iota
	Exited
	BudgetExceeded
)

// Machine is the life-cycle surface the RISC-V ISA emulator must expose;
// the emulator itself is an external collaborator. A concrete Machine is
// produced by a MachineFactory at Spawn/root-boot time and is otherwise
// opaque to this package: it decides internally when to yield a syscall,
// how many cycles an instruction costs, and how to serialize its own
// memory.
type Machine interface {
	// Run executes until the VM pushes a syscall message (Yielded, with
	// msg non-nil), exits (Exited), or consumes budget cycles without
	// doing either (BudgetExceeded).
	Run(budget uint64) (outcome RunOutcome, msg *Message, err error)

	// Complete delivers the result of the syscall most recently yielded
	// via Run, to be observed by the VM's next Run call.
	Complete(result SyscallResult)

	// Cycles returns the cycles consumed by the most recent Run call,
	// drained into the scheduler's iterationCycles after every iteration.
	Cycles() uint64

	// ExitCode is valid once Run has returned Exited.
	ExitCode() int8

	// Snapshot serializes the machine's full memory state for suspend().
	Snapshot() ([]byte, error)

	// Restore loads a snapshot produced by Snapshot, replacing this
	// machine's memory state in place.
	Restore(data []byte) error
}

// MachineFactory boots a fresh Machine at location with the given argv,
// used both for the scheduler's root VM and for Spawn.
type MachineFactory func(location CodeLocation, argv [][]byte) (Machine, error)
