package script

// transferIO runs a two-step pass once per scheduler iteration before a
// VM is picked to run: first wake anyone blocked against a now-closed
// peer fd, then match up and transfer data across any ready pipe pairs.
func (s *Scheduler) transferIO() {
	for id, e := range s.vms {
		switch e.state.Kind {
		case WaitForRead:
			if _, peerOpen := s.fdOwner[e.state.Fd.PeerFd()]; !peerOpen {
				s.completeRead(id, e, nil)
			}
		case WaitForWrite:
			if _, peerOpen := s.fdOwner[e.state.Fd.PeerFd()]; !peerOpen {
				s.completeWrite(id, e)
			}
		}
	}

	for {
		r, w, rOK, wOK := s.findPipePair()
		if !rOK || !wOK {
			return
		}
		s.transferOnce(r, w)
	}
}

// findPipePair locates one WaitForRead VM and the WaitForWrite VM
// blocked on the paired fd, if both exist.
func (s *Scheduler) findPipePair() (reader, writer VmId, rOK, wOK bool) {
	for id, e := range s.vms {
		if e.state.Kind != WaitForRead {
			continue
		}
		peer := e.state.Fd.PeerFd()
		for wid, we := range s.vms {
			if we.state.Kind == WaitForWrite && we.state.Fd == peer {
				return id, wid, true, true
			}
		}
	}
	return 0, 0, false, false
}

func (s *Scheduler) transferOnce(reader, writer VmId) {
	re := s.vms[reader]
	we := s.vms[writer]

	remaining := we.state.Len - we.state.Consumed
	n := re.state.Len
	if remaining < n {
		n = remaining
	}
	data := we.state.Buf[we.state.Consumed : we.state.Consumed+n]

	s.charge(uint64(n))

	we.state.Consumed += n
	s.completeRead(reader, re, data)

	if we.state.Consumed >= we.state.Len {
		s.completeWrite(writer, we)
	}
}

func (s *Scheduler) completeRead(id VmId, e *vmEntry, data []byte) {
	e.state = VmState{Kind: Runnable}
	if e.recvBuf != nil {
		e.recvBuf.Write(data)
		return
	}
	if e.machine != nil {
		e.machine.Complete(SyscallResult{Code: Success, Data: data, N: len(data)})
	}
}

func (s *Scheduler) completeWrite(id VmId, e *vmEntry) {
	consumed := e.state.Consumed
	e.state = VmState{Kind: Runnable}
	if e.machine != nil {
		e.machine.Complete(SyscallResult{Code: Success, N: consumed})
	}
}
