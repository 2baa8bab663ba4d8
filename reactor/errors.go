package reactor

import (
	"github.com/pkg/errors"
)

var (
	ErrResourceExhausted     = errors.New("reactor: cannot allocate readiness set")
	ErrDuplicateRegistration = errors.New("reactor: descriptor already registered")
	ErrInvalidDescriptor     = errors.New("reactor: invalid descriptor")
	ErrNotRegistered         = errors.New("reactor: descriptor not registered")
	ErrClosed                = errors.New("reactor: readiness set closed")
	ErrListenerFailed        = errors.New("reactor: listener reported an error")
	ErrUnsupported           = errors.New("reactor: readiness facility not supported on this platform")
)

// ErrStopped is returned by RunOnce once Stop has been observed or the dispatcher was closed.
var ErrStopped = errors.New("reactor: dispatcher stopped")
