package itemcache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is the closed set of failure classes the cache can return. NeedsRead
// is internal only: it never escapes a Cache method, it only drives the
// miss loop.
type Kind int

const (
	_ Kind = iota
	InvalidArg
	NoMem
	NotFound
	AlreadyExists
	NeedsRead
	IOError
	Corruption
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "invalid_arg"
	case NoMem:
		return "no_mem"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case NeedsRead:
		return "needs_read"
	case IOError:
		return "io_error"
	case Corruption:
		return "corruption"
	default:
		return "unknown"
	}
}

// sentinels, one per Kind, so callers can errors.Is(err, itemcache.ErrNotFound).
var (
	ErrInvalidArg    = errors.New("itemcache: invalid argument")
	ErrNoMem         = errors.New("itemcache: allocation failed")
	ErrNotFound      = errors.New("itemcache: not found")
	ErrAlreadyExists = errors.New("itemcache: already exists")
	errNeedsRead     = errors.New("itemcache: needs read")
	ErrIOError       = errors.New("itemcache: io error")
	ErrCorruption    = errors.New("itemcache: corruption")
)

func sentinelFor(k Kind) error {
	switch k {
	case InvalidArg:
		return ErrInvalidArg
	case NoMem:
		return ErrNoMem
	case NotFound:
		return ErrNotFound
	case AlreadyExists:
		return ErrAlreadyExists
	case NeedsRead:
		return errNeedsRead
	case IOError:
		return ErrIOError
	case Corruption:
		return ErrCorruption
	default:
		return errors.New("itemcache: unknown error")
	}
}

// CacheError is the concrete error type every Cache method returns on
// failure. It wraps one of the Kind sentinels with cockroachdb/errors so
// errors.Is keeps working through any additional wrapping callers add, and
// a stack trace is captured at the point of construction.
type CacheError struct {
	Kind Kind
	msg  string
	err  error
}

func (e *CacheError) Error() string {
	if e.msg == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.err.Error(), e.msg)
}

func (e *CacheError) Unwrap() error { return e.err }

// newErr constructs a *CacheError of the given Kind, wrapping the Kind's
// sentinel with errors.WithStack so the call site is recorded.
func newErr(k Kind, format string, args ...interface{}) *CacheError {
	return &CacheError{
		Kind: k,
		msg:  fmt.Sprintf(format, args...),
		err:  errors.WithStack(sentinelFor(k)),
	}
}

// Is lets errors.Is(err, ErrNotFound) match a *CacheError of kind NotFound
// without needing to unwrap through errors.WithStack first.
func (e *CacheError) Is(target error) bool {
	return errors.Is(e.err, target)
}

// corrupt logs via the package logger and panics, matching the closed
// error table's "Fatal; log and abort" propagation for Corruption.
func corrupt(l *logger, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.Errorf("corruption detected: %s", msg)
	panic(newErr(Corruption, "%s", msg))
}
