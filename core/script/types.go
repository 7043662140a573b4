// Package script implements a cooperative multi-VM scheduler: it boots,
// suspends, resumes and joins RISC-V machine instances, routes bytes
// across inter-VM pipes, and charges cycles. The RISC-V ISA emulator
// itself is an external collaborator; this package only drives the
// Machine life-cycle surface defined in machine.go.
//
// The scheduling loop echoes the single-goroutine, struct-owns-its-state
// run loop idiom used throughout the corpus, but is message-box driven
// rather than channel-driven: the scheduler is single-threaded and
// cooperative, so there is exactly one goroutine and no send/receive
// across it.
package script

import "github.com/riscvlabs/corechain/params"

// VmId identifies a VM instance, monotonically increasing per scheduler.
type VmId uint64

// Fd is a pair-allocated file descriptor: the even member of a pair is
// the read end, the odd member is the write end.
type Fd uint64

// IsReadEnd reports whether fd is the read side of its pair.
func (fd Fd) IsReadEnd() bool { return fd%2 == 0 }

// PeerFd returns the other member of fd's pair.
func (fd Fd) PeerFd() Fd {
	if fd.IsReadEnd() {
		return fd + 1
	}
	return fd - 1
}

// VmStateKind discriminates VmState's variants.
type VmStateKind int

const (
	Runnable VmStateKind = iota
	Terminated
	Wait
	WaitForRead
	WaitForWrite
)

// VmState is the scheduling state of one VM. Only the fields relevant to
// Kind are meaningful.
type VmState struct {
	Kind VmStateKind

	// Wait
	WaitTarget  VmId
	ExitCodeAddr uint64

	// WaitForRead / WaitForWrite
	Fd      Fd
	Buf     []byte
	Len     int
	LenAddr uint64
	Consumed int // WaitForWrite only

	// Terminated
	ExitCode int8
}

// ReturnCode is the value a syscall writes back to the VM's return
// register.
type ReturnCode int64

const (
	Success        ReturnCode = 0
	InvalidFd      ReturnCode = -1
	MaxVmsSpawned  ReturnCode = -2
	MaxFdsCreated  ReturnCode = -3
	WaitFailure    ReturnCode = -4
	OtherEndClosed ReturnCode = -5
)

// Limits mirrors params.MaxVMsCount/MaxInstantiatedVMs/MaxFDs so callers
// don't need to import params directly when reasoning about this
// package's limits.
var (
	MaxVMsCount        = params.MaxVMsCount
	MaxInstantiatedVMs = params.MaxInstantiatedVMs
	MaxFDs             = params.MaxFDs
)
