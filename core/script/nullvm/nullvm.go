// Package nullvm is a placeholder MachineFactory: every machine it
// produces exits immediately with code 0, consuming a single cycle,
// without ever yielding a syscall. It lets a node boot its scheduler,
// RPC surface, and pool end to end without a real RISC-V interpreter
// linked in. A production deployment replaces script.MachineFactory
// with a genuine ISA emulator; nullvm only exists so the rest of the
// tree has something to exercise in its absence.
package nullvm

import "github.com/riscvlabs/corechain/core/script"

type machine struct {
	exited bool
}

// New is a script.MachineFactory producing machines that exit instantly.
func New(location script.CodeLocation, argv [][]byte) (script.Machine, error) {
	return &machine{}, nil
}

func (m *machine) Run(budget uint64) (script.RunOutcome, *script.Message, error) {
	m.exited = true
	return script.Exited, nil, nil
}

func (m *machine) Complete(script.SyscallResult) {}

func (m *machine) Cycles() uint64 { return 1 }

func (m *machine) ExitCode() int8 { return 0 }

func (m *machine) Snapshot() ([]byte, error) { return []byte{}, nil }

func (m *machine) Restore([]byte) error { m.exited = false; return nil }
