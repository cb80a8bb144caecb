package quotes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pgclosets/quote-service/internal/platform/httpx"
)

var (
	// ErrInvalidTransition is returned when the lifecycle forbids a change.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", httpx.ErrConflict)
	// ErrStatusMismatch is returned when the caller's expected status is stale.
	ErrStatusMismatch = fmt.Errorf("%w: quote status has changed", httpx.ErrConflict)
	// ErrOverrideReason is returned for an override without a reason.
	ErrOverrideReason = httpx.NewValidationError("reason is required for an override")
)

// forward holds the edges allowed without override. Cancellation from any
// non-terminal state is handled separately.
var forward = map[Status][]Status{
	StatusPending:               {StatusContacted},
	StatusContacted:             {StatusQuoted},
	StatusQuoted:                {StatusConverted, StatusMeasurementScheduled},
	StatusMeasurementScheduled:  {StatusInstallationScheduled},
	StatusInstallationScheduled: {StatusInstalled},
	StatusInstalled:             {StatusConverted},
}

// NextStatuses lists the states reachable from s without override.
func NextStatuses(s Status) []Status {
	if s.Terminal() || !s.Valid() {
		return nil
	}
	next := append([]Status(nil), forward[s]...)
	return append(next, StatusCancelled)
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to Status) bool {
	for _, next := range NextStatuses(from) {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is a requested status change.
type Transition struct {
	From     Status
	To       Status
	Reason   string
	Override bool
}

// Check validates t against the lifecycle. Terminal states reject every
// change, override included. A same-state request is not checked here; the
// caller treats it as a no-op.
func (t Transition) Check() error {
	if !t.To.Valid() {
		return httpx.NewValidationError(fmt.Sprintf("unknown status %q", t.To))
	}
	if t.From.Terminal() {
		return fmt.Errorf("%w: %s is final", ErrInvalidTransition, t.From)
	}
	if t.Override {
		if strings.TrimSpace(t.Reason) == "" {
			return ErrOverrideReason
		}
		return nil
	}
	if !CanTransition(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	return nil
}

// IsInvalidTransition reports whether err came from a lifecycle rejection.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
