package mission

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors the orchestrator's callers can compare against, per
// SPEC_FULL.md §7's error taxonomy (validation / transient / logical
// conflict / integrity violation / external dependency failure).
var (
	ErrInFlight        = errors.New("mission: collision pair already has a mission in flight")
	ErrUnderCooldown   = errors.New("mission: collision pair is under cooldown")
	ErrNoVisitorCircle = errors.New("mission: visitor has no effective circle")
	ErrMissionTimeout  = errors.New("mission: interview deadline exceeded")
	ErrRetryScheduled  = errors.New("mission: attempt failed, rescheduled for redelivery")
)

// classifyError maps low-level storage/transport errors raised while
// creating or resolving a mission onto the sentinel errors above, the way
// BookingService.classifyError translates repository failures in the
// ride-pooling teacher.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrMissionTimeout
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "in flight"):
		return ErrInFlight
	case strings.Contains(msg, "cooldown"):
		return ErrUnderCooldown
	case strings.Contains(msg, "no effective circle"):
		return ErrNoVisitorCircle
	default:
		return err
	}
}
