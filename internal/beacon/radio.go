package beacon

import (
	"context"
	"fmt"
	"time"
)

// Radio is the host advertising capability. The controller is its only user;
// nothing else may start or stop advertisements on it.
//
// BeginAdvertising reports a permission problem with an error matching
// ErrPermissionDenied (errors.Is). Success means the request was accepted by
// the radio subsystem, not that a packet went over the air.
type Radio interface {
	Available(ctx context.Context) bool
	BeginAdvertising(ctx context.Context, payload []byte, companyID uint16) error
	EndAdvertising(ctx context.Context) error
	// Events delivers asynchronous outcomes. It may return nil.
	Events() <-chan RadioEvent
}

type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventFailed
	// EventReleased means the host stack dropped the advertisement on its own.
	EventReleased
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventFailed:
		return "failed"
	case EventReleased:
		return "released"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// FailureCode is the reason attached to an EventFailed.
type FailureCode int

const (
	FailureUnknown FailureCode = iota
	FailureDataTooLarge
	FailureTooManyAdvertisers
	FailureAlreadyStarted
	FailureInternalError
	FailureFeatureUnsupported
)

func (c FailureCode) String() string {
	switch c {
	case FailureDataTooLarge:
		return "Data too large."
	case FailureTooManyAdvertisers:
		return "Too many advertisers."
	case FailureAlreadyStarted:
		return "Already started."
	case FailureInternalError:
		return "Internal error."
	case FailureFeatureUnsupported:
		return "Feature unsupported."
	default:
		return fmt.Sprintf("Unknown error (code %d).", int(c))
	}
}

type RadioEvent struct {
	Kind EventKind
	Code FailureCode
	Err  error
	At   time.Time
}

func (e RadioEvent) String() string {
	switch {
	case e.Kind == EventFailed && e.Err != nil:
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Code, e.Err)
	case e.Kind == EventFailed:
		return fmt.Sprintf("%s: %s", e.Kind, e.Code)
	default:
		return e.Kind.String()
	}
}
