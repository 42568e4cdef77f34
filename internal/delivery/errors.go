package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrConfigurationMissing means required credentials, keys or
	// connection settings are absent.
	ErrConfigurationMissing = errors.New("delivery: configuration missing")
	// ErrTransport matches any *TransportError.
	ErrTransport = errors.New("delivery: transport error")
	// ErrAuthentication means the remote side rejected our credentials.
	ErrAuthentication = errors.New("delivery: authentication failed")
	// ErrStoreUnavailable means a record store could not be reached or
	// refused the write.
	ErrStoreUnavailable = errors.New("delivery: store unavailable")
)

// TransportError reports a failure talking to a remote mail transport.
// Transient is set for timeouts, refused connections and remote
// "try again later" replies.
type TransportError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("delivery: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsTransient reports whether err is a transport failure worth retrying later.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Transient
	}
	return false
}

// transientNetErr classifies low-level network failures.
func transientNetErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
