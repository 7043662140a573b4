// Package errkind classifies the failures produced by the chain
// reconciler, the tx pool, and the script scheduler into the taxonomy of
// kinds they are allowed to surface, independent of the underlying Go
// error value. Collaborators (peer punishment, RPC responses) switch on
// Kind rather than on error strings.
package errkind

import "github.com/pkg/errors"

// Kind enumerates the error taxonomy.
type Kind int

const (
	Unknown Kind = iota
	Duplicated
	DoubleSpent
	Orphan
	UnknownParent
	InvalidParent
	InvalidHeader
	InvalidBlock
	Resolve
	VerificationScript
	VerificationCapacity
	VerificationSince
	VerificationDao
	VerificationSize
	VerificationCycles
	DeclaredWrongCycles
	Full
	CyclesExceeded
	Paused
	InternalDB
	InternalMMR
	InternalOther
)

func (k Kind) String() string {
	switch k {
	case Duplicated:
		return "Duplicated"
	case DoubleSpent:
		return "DoubleSpent"
	case Orphan:
		return "Orphan"
	case UnknownParent:
		return "UnknownParent"
	case InvalidParent:
		return "InvalidParent"
	case InvalidHeader:
		return "InvalidHeader"
	case InvalidBlock:
		return "InvalidBlock"
	case Resolve:
		return "Resolve"
	case VerificationScript:
		return "Verification(script)"
	case VerificationCapacity:
		return "Verification(capacity)"
	case VerificationSince:
		return "Verification(since)"
	case VerificationDao:
		return "Verification(dao)"
	case VerificationSize:
		return "Verification(size)"
	case VerificationCycles:
		return "Verification(cycles)"
	case DeclaredWrongCycles:
		return "DeclaredWrongCycles"
	case Full:
		return "Full"
	case CyclesExceeded:
		return "CyclesExceeded"
	case Paused:
		return "Paused"
	case InternalDB:
		return "Internal(db)"
	case InternalMMR:
		return "Internal(mmr)"
	case InternalOther:
		return "Internal(other)"
	default:
		return "Unknown"
	}
}

// Error pairs a Kind with a human-readable cause, and a subject (e.g. a
// block hash, a peer id) that gave rise to it.
type Error struct {
	Kind    Kind
	Subject string
	cause   error
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return e.Kind.String() + ": " + e.Subject + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind wrapping msg.
func New(kind Kind, subject, msg string) *Error {
	return &Error{Kind: kind, Subject: subject, cause: errors.New(msg)}
}

// Wrap builds an Error of the given kind wrapping an existing error,
// preserving its stack via pkg/errors.
func Wrap(kind Kind, subject string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Subject: subject, cause: errors.WithStack(err)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, else Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsMalformed reports whether the kind indicates the sender violated
// wire-level structural rules (as opposed to a merely-unsuccessful,
// well-formed submission) — used to decide peer ban vs soft reject.
func (k Kind) IsMalformed() bool {
	switch k {
	case InvalidHeader, InvalidBlock, Resolve, VerificationScript,
		VerificationCapacity, VerificationSince, VerificationDao,
		VerificationSize, DeclaredWrongCycles:
		return true
	default:
		return false
	}
}
