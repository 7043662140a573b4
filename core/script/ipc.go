package script

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
)

// ErrIpcTimeout is returned when a CallScript exchange's context is
// cancelled before the VM produces a complete response packet.
var ErrIpcTimeout = errors.New("script: ipc call timed out waiting for a response")

// ErrIpcNoResponse is returned when the VM's script group runs to
// completion (exits, or deadlocks) without ever writing a full response
// packet to its native write fd.
var ErrIpcNoResponse = errors.New("script: ipc script produced no response")

// RequestPacket is the frame handed to a script's root VM over its
// inherited native fd pair: a protocol version, a method id the script
// dispatches on, and an opaque payload. Mirrors the original
// implementation's version/method_id/payload request shape.
type RequestPacket struct {
	Version  uint8
	MethodID uint64
	Payload  []byte
}

// Serialize renders the frame as [version:1][method_id:8 LE][len:4 LE][payload].
func (r RequestPacket) Serialize() []byte {
	buf := make([]byte, 1+8+4, 1+8+4+len(r.Payload))
	buf[0] = r.Version
	binary.LittleEndian.PutUint64(buf[1:9], r.MethodID)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(r.Payload)))
	return append(buf, r.Payload...)
}

// ResponsePacket is the frame the script's root VM writes back: a
// protocol version, an error code (0 means success), and an opaque
// payload.
type ResponsePacket struct {
	Version   uint8
	ErrorCode uint64
	Payload   []byte
}

const responsePacketHeaderLen = 1 + 8 + 4

// parseResponsePacket attempts to decode a complete ResponsePacket from
// the front of buf. ok is false if buf does not yet hold a full frame.
func parseResponsePacket(buf []byte) (pkt ResponsePacket, ok bool) {
	if len(buf) < responsePacketHeaderLen {
		return pkt, false
	}
	n := binary.LittleEndian.Uint32(buf[9:13])
	if uint32(len(buf)-responsePacketHeaderLen) < n {
		return pkt, false
	}
	pkt.Version = buf[0]
	pkt.ErrorCode = binary.LittleEndian.Uint64(buf[1:9])
	pkt.Payload = append([]byte(nil), buf[responsePacketHeaderLen:responsePacketHeaderLen+int(n)]...)
	return pkt, true
}

// nativeChannel is the native side of a pair of unidirectional fd pipes
// wired to the root VM's inherited fds: one feeds request bytes the VM
// reads, the other collects response bytes the VM writes. It stands in
// for the plain OS pipes the original implementation hands to its RPC
// handler thread; here, since a Scheduler is single-goroutine and
// cooperative, the native side is instead a second scheduler
// participant whose state the owning goroutine drives directly between
// Run calls.
type nativeChannel struct {
	sched      *Scheduler
	entry      *vmEntry
	reqWriteFd Fd
	respReadFd Fd
}

// openNativeChannel allocates a request/response fd pair, assigns the
// VM-facing ends to the root VM as its two inherited fds, request read
// end first and response write end second (fds 0 and 3 on a fresh
// scheduler, so the script's INHERITED_FD syscall reports [0, 3]), and
// registers the native-facing ends under nativeVmID.
func (s *Scheduler) openNativeChannel() *nativeChannel {
	reqRead := s.nextFd
	reqWrite := reqRead + 1
	s.nextFd += 2
	respRead := s.nextFd
	respWrite := respRead + 1
	s.nextFd += 2

	s.fdOwner[reqRead] = s.rootID
	s.fdOwner[reqWrite] = nativeVmID
	s.fdOwner[respRead] = nativeVmID
	s.fdOwner[respWrite] = s.rootID

	root := s.vms[s.rootID]
	root.inherited = []Fd{reqRead, respWrite}

	e := &vmEntry{state: VmState{Kind: Terminated}}
	s.vms[nativeVmID] = e

	return &nativeChannel{sched: s, entry: e, reqWriteFd: reqWrite, respReadFd: respRead}
}

// write arms the channel to hand data to the VM's request read fd.
func (c *nativeChannel) write(data []byte) {
	c.entry.state = VmState{Kind: WaitForWrite, Fd: c.reqWriteFd, Buf: data, Len: len(data)}
}

// writeDone reports whether an armed write has been fully delivered.
func (c *nativeChannel) writeDone() bool {
	return c.entry.state.Kind != WaitForWrite
}

// armRead (re)arms the channel to accumulate bytes the VM writes to its
// response fd.
func (c *nativeChannel) armRead() {
	c.entry.recvBuf = &bytes.Buffer{}
	c.entry.state = VmState{Kind: WaitForRead, Fd: c.respReadFd, Len: 1 << 20}
}

// buffered returns the bytes accumulated so far by an armed read.
func (c *nativeChannel) buffered() []byte {
	if c.entry.recvBuf == nil {
		return nil
	}
	return c.entry.recvBuf.Bytes()
}

// close drops native-side fd ownership, signalling EOF to the VM the
// way the original implementation tears its pipes down once a response
// has been read or the call is abandoned.
func (c *nativeChannel) close() {
	delete(c.sched.fdOwner, c.reqWriteFd)
	delete(c.sched.fdOwner, c.respReadFd)
}

// CallScript boots a fresh scheduler at location, writes req to the
// root VM's inherited request fd, and waits for a complete response
// packet written back on its inherited response fd, stepping the
// scheduler in cycle-bounded chunks (the same step-loop idiom
// core/txpool/chunk's Verifier uses) until one arrives, ctx is done, or
// maxCycles is exhausted. Grounded on rpc/src/module/ipc.rs's native
// reader/writer pipe exchange.
func CallScript(ctx context.Context, factory MachineFactory, location CodeLocation, argv [][]byte, req RequestPacket, step, maxCycles uint64) (ResponsePacket, string, error) {
	sched, err := New(factory, location, argv)
	if err != nil {
		return ResponsePacket{}, "", err
	}
	traceID := sched.TraceID()

	nc := sched.openNativeChannel()
	defer nc.close()

	nc.write(req.Serialize())
	armed := false

	var total uint64
	for {
		select {
		case <-ctx.Done():
			return ResponsePacket{}, traceID, ErrIpcTimeout
		default:
		}

		target := total + step
		if target > maxCycles {
			target = maxCycles
		}

		_, cycles, runErr := sched.Run(LimitCycles(target))
		total = cycles

		if !armed && nc.writeDone() {
			nc.armRead()
			armed = true
		}
		if armed {
			if pkt, ok := parseResponsePacket(nc.buffered()); ok {
				return pkt, traceID, nil
			}
		}

		switch {
		case runErr == nil:
			return ResponsePacket{}, traceID, ErrIpcNoResponse
		case runErr == ErrCyclesExceeded:
			if total >= maxCycles {
				return ResponsePacket{}, traceID, ErrIpcNoResponse
			}
		case runErr == ErrDeadlock:
			return ResponsePacket{}, traceID, ErrIpcNoResponse
		default:
			return ResponsePacket{}, traceID, runErr
		}
	}
}
