package script

import "github.com/riscvlabs/corechain/params"

// dispatch processes the single syscall message a VM yielded with,
// updating scheduler state and delivering a SyscallResult back to the
// originating VM.
func (s *Scheduler) dispatch(msg Message) {
	from := msg.From
	switch msg.Kind {
	case MsgSpawn:
		s.doSpawn(from, msg.Spawn)
	case MsgWait:
		s.doWait(from, msg.Wait)
	case MsgPipe:
		s.doPipe(from, msg.Pipe)
	case MsgFdRead:
		s.doFdRead(from, msg.FdRead)
	case MsgFdWrite:
		s.doFdWrite(from, msg.FdWrite)
	case MsgClose:
		s.doClose(from, msg.Close)
	case MsgInheritedFileDescriptor:
		s.doInherit(from, msg.Inherit)
	case MsgExecV2:
		s.doExecV2(from, msg.ExecV2)
	}
}

func (s *Scheduler) deliver(to VmId, result SyscallResult) {
	if e, ok := s.vms[to]; ok && e.machine != nil {
		e.machine.Complete(result)
	}
}

func (s *Scheduler) doSpawn(from VmId, args *SpawnArgs) {
	for _, fd := range args.Fds {
		if s.fdOwner[fd] != from {
			s.deliver(from, SyscallResult{Code: InvalidFd})
			return
		}
	}
	resident := 0
	for range s.vms {
		resident++
	}
	if resident >= MaxVMsCount {
		s.deliver(from, SyscallResult{Code: MaxVmsSpawned})
		return
	}

	m, err := s.factory(args.Location, args.Argv)
	if err != nil {
		s.deliver(from, SyscallResult{Code: InvalidFd})
		return
	}

	childID := s.nextID
	s.nextID++

	for _, fd := range args.Fds {
		s.fdOwner[fd] = childID
	}

	s.vms[childID] = &vmEntry{
		state:        VmState{Kind: Runnable},
		instantiated: true,
		machine:      m,
		inherited:    append([]Fd(nil), args.Fds...),
	}

	s.charge(params.SpawnExtraCyclesBase)
	s.deliver(from, SyscallResult{Code: Success, ChildID: childID})
}

func (s *Scheduler) doWait(from VmId, args *WaitArgs) {
	target := s.vms[args.Target]
	if target == nil {
		s.deliver(from, SyscallResult{Code: WaitFailure})
		return
	}
	if target.state.Kind == Terminated {
		s.deliver(from, SyscallResult{Code: Success, ExitCode: target.state.ExitCode})
		return
	}
	s.vms[from].state = VmState{Kind: Wait, WaitTarget: args.Target}
	s.waiters[args.Target] = append(s.waiters[args.Target], from)
}

func (s *Scheduler) doPipe(from VmId, _ *PipeArgs) {
	if int(s.nextFd)+2 > MaxFDs {
		s.deliver(from, SyscallResult{Code: MaxFdsCreated})
		return
	}
	read := s.nextFd
	write := s.nextFd + 1
	s.nextFd += 2
	s.fdOwner[read] = from
	s.fdOwner[write] = from
	s.deliver(from, SyscallResult{Code: Success, ReadFd: read, WriteFd: write})
}

func (s *Scheduler) doFdRead(from VmId, args *FdReadArgs) {
	if s.fdOwner[args.Fd] != from {
		s.deliver(from, SyscallResult{Code: InvalidFd})
		return
	}
	if _, peerOpen := s.fdOwner[args.Fd.PeerFd()]; !peerOpen {
		s.deliver(from, SyscallResult{Code: OtherEndClosed})
		return
	}
	s.vms[from].state = VmState{Kind: WaitForRead, Fd: args.Fd, Len: args.Len, LenAddr: args.LenAddr}
}

func (s *Scheduler) doFdWrite(from VmId, args *FdWriteArgs) {
	if s.fdOwner[args.Fd] != from {
		s.deliver(from, SyscallResult{Code: InvalidFd})
		return
	}
	if _, peerOpen := s.fdOwner[args.Fd.PeerFd()]; !peerOpen {
		s.deliver(from, SyscallResult{Code: OtherEndClosed})
		return
	}
	s.vms[from].state = VmState{Kind: WaitForWrite, Fd: args.Fd, Buf: args.Data, Len: len(args.Data)}
}

func (s *Scheduler) doClose(from VmId, args *CloseArgs) {
	if s.fdOwner[args.Fd] != from {
		s.deliver(from, SyscallResult{Code: InvalidFd})
		return
	}
	delete(s.fdOwner, args.Fd)
	s.deliver(from, SyscallResult{Code: Success})
}

func (s *Scheduler) doInherit(from VmId, args *InheritArgs) {
	e := s.vms[from]
	n := len(e.inherited)
	if args.Requested < n {
		n = args.Requested
	}
	s.deliver(from, SyscallResult{Code: Success, N: len(e.inherited), Data: fdsToBytes(e.inherited[:n])})
}

func (s *Scheduler) doExecV2(from VmId, args *ExecV2Args) {
	m, err := s.factory(args.Location, args.Argv)
	if err != nil {
		s.deliver(from, SyscallResult{Code: InvalidFd})
		return
	}
	s.vms[from].machine = m
	s.vms[from].state = VmState{Kind: Runnable}
}

func fdsToBytes(fds []Fd) []byte {
	b := make([]byte, len(fds)*8)
	for i, fd := range fds {
		v := uint64(fd)
		for j := 0; j < 8; j++ {
			b[i*8+j] = byte(v >> (8 * j))
		}
	}
	return b
}
