// Package chunk defers a remote transaction's script verification into
// fixed-size cycle steps, so one large verification never holds the
// pool's writer lock for its whole run. Grounded on original_source's
// tx-pool/src/process.rs deferred-verification path and the design
// note describing a watch-channel-driven stepper; rendered here as a
// buffered Go channel plus one goroutine per in-flight verification
// rather than a Rust watch channel.
package chunk

import (
	"errors"

	"github.com/riscvlabs/corechain/core/script"
)

// Cmd is sent to a running Verifier to steer it between steps.
type Cmd int

const (
	// Resume is the default: keep stepping.
	Resume Cmd = iota
	// Suspend pauses stepping until Resume or Stop arrives.
	Suspend
	// Stop abandons the verification; Done() reports ErrStopped.
	Stop
)

// ErrStopped is reported on Done() when a Verifier was stopped before
// completion.
var ErrStopped = errors.New("chunk: verification stopped")

// ErrMaxCyclesExceeded is reported when the transaction's cycle budget
// is exhausted before its scheduler completes.
var ErrMaxCyclesExceeded = errors.New("chunk: max cycles exceeded")

// Result is delivered exactly once on a Verifier's Done channel.
type Result struct {
	ExitCode int8
	Cycles   uint64
	Err      error
}

// Verifier drives one script.Scheduler to completion in steps of at
// most Step cycles, so the pool can interleave other work between
// steps instead of blocking on the full verification.
type Verifier struct {
	sched     *script.Scheduler
	step      uint64
	maxCycles uint64

	cmdCh  chan Cmd
	doneCh chan Result
}

// New builds a Verifier around an already-booted scheduler. step bounds
// a single call to Scheduler.Run; maxCycles is the transaction's total
// verification cycle budget.
func New(sched *script.Scheduler, step, maxCycles uint64) *Verifier {
	return &Verifier{
		sched:     sched,
		step:      step,
		maxCycles: maxCycles,
		cmdCh:     make(chan Cmd, 1),
		doneCh:    make(chan Result, 1),
	}
}

// Start launches the stepper goroutine. Call exactly once per Verifier.
func (v *Verifier) Start() { go v.run() }

// Send delivers a command, taking effect at the next step boundary.
// Buffered depth 1: a second Send before the first is observed replaces
// it, which is fine since only the most recent intent matters.
func (v *Verifier) Send(cmd Cmd) {
	select {
	case <-v.cmdCh:
	default:
	}
	v.cmdCh <- cmd
}

// Done reports the verifier's terminal result exactly once.
func (v *Verifier) Done() <-chan Result { return v.doneCh }

func (v *Verifier) run() {
	var total uint64
	cmd := Resume

	for {
		select {
		case c := <-v.cmdCh:
			cmd = c
		default:
		}

		if cmd == Stop {
			v.doneCh <- Result{Cycles: total, Err: ErrStopped}
			return
		}
		if cmd == Suspend {
			cmd = <-v.cmdCh
			continue
		}

		target := total + v.step
		if target > v.maxCycles {
			target = v.maxCycles
		}

		exitCode, cycles, err := v.sched.Run(script.LimitCycles(target))
		total = cycles

		switch {
		case err == nil:
			v.doneCh <- Result{ExitCode: exitCode, Cycles: total}
			return
		case err == script.ErrCyclesExceeded:
			if total >= v.maxCycles {
				v.doneCh <- Result{Cycles: total, Err: ErrMaxCyclesExceeded}
				return
			}
			// only the step boundary was hit; take another step.
		default:
			v.doneCh <- Result{Cycles: total, Err: err}
			return
		}
	}
}
