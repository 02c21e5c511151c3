// Package errs defines the error taxonomy the core uses internally and
// the single mapping from that taxonomy to the errno values the VFS
// bridge expects. Every layer (remote, catalog, handle manager) returns
// one of these kinds; only the VFS adapter calls ToErrno.
package errs

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind is the taxonomy of §7: NOT_FOUND, ACCESS_DENIED, TRANSIENT,
// CORRUPT_IO, INVALID_ARG.
type Kind int

const (
	// KindNotFound means the catalog or remote has no such entity.
	KindNotFound Kind = iota
	// KindAccessDenied means an exclusion violation, remote ACL refusal,
	// or upload rejection.
	KindAccessDenied
	// KindTransient means a retriable transport or remote failure. The
	// core does not retry it internally (see §9 open question); it
	// surfaces as EAGAIN unconditionally.
	KindTransient
	// KindCorruptIO means an internal invariant was violated.
	KindCorruptIO
	// KindInvalidArg means a malformed path or key of the wrong length.
	KindInvalidArg
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindAccessDenied:
		return "ACCESS_DENIED"
	case KindTransient:
		return "TRANSIENT"
	case KindCorruptIO:
		return "CORRUPT_IO"
	case KindInvalidArg:
		return "INVALID_ARG"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an underlying cause with a Kind and the operation/path it
// occurred on, mirroring the teacher's fs.Error but shared across every
// package instead of living inside the VFS layer alone.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error. err may be nil, in which case the Kind's
// description is used as the message.
func New(kind Kind, op, path string, err error) *Error {
	if err == nil {
		err = errors.New(kind.String())
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// NotFound, AccessDenied, Transient, CorruptIO and InvalidArg are
// convenience constructors for the common case of wrapping no particular
// underlying error.
func NotFound(op, path string) *Error    { return New(KindNotFound, op, path, nil) }
func AccessDenied(op, path string) *Error { return New(KindAccessDenied, op, path, nil) }
func Transient(op, path string, err error) *Error {
	return New(KindTransient, op, path, err)
}
func CorruptIO(op, path string, err error) *Error {
	return New(KindCorruptIO, op, path, err)
}
func InvalidArg(op, path string) *Error { return New(KindInvalidArg, op, path, nil) }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ToErrno maps an error to the errno the VFS bridge should return, per
// §7's propagation table. Non-taxonomy errors (e.g. a raw os.ErrNotExist
// bubbling up from the staging filesystem) are mapped on a best-effort
// basis; anything unrecognized becomes EIO.
func ToErrno(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNotFound:
			return syscall.ENOENT
		case KindAccessDenied:
			return syscall.EACCES
		case KindTransient:
			return syscall.EAGAIN
		case KindCorruptIO:
			return syscall.EIO
		case KindInvalidArg:
			return syscall.EINVAL
		default:
			return syscall.EIO
		}
	}

	switch {
	case errors.Is(err, syscall.ENOENT):
		return syscall.ENOENT
	case errors.Is(err, syscall.EACCES):
		return syscall.EACCES
	case errors.Is(err, syscall.EINVAL):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
