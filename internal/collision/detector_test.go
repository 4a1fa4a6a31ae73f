package collision

import (
	"testing"
	"time"
)

func TestShouldSkip_TooSoonAndTooClose(t *testing.T) {
	now := time.Unix(1000, 0)
	lastAt := time.Unix(999, 0) // 1s ago
	if !shouldSkip(now, lastAt, 1.5, 3*time.Second, 20) {
		t.Errorf("shouldSkip = false, want true for 1s/1.5m update")
	}
}

func TestShouldSkip_EnoughMovement(t *testing.T) {
	now := time.Unix(1000, 0)
	lastAt := time.Unix(999, 0)
	if shouldSkip(now, lastAt, 25, 3*time.Second, 20) {
		t.Errorf("shouldSkip = true, want false when movement exceeds threshold")
	}
}

func TestShouldSkip_EnoughTimeElapsed(t *testing.T) {
	now := time.Unix(1004, 0)
	lastAt := time.Unix(1000, 0) // 4s ago, beyond the 3s interval
	if shouldSkip(now, lastAt, 1, 3*time.Second, 20) {
		t.Errorf("shouldSkip = true, want false once MIN_UPDATE_INTERVAL has elapsed")
	}
}

func TestDriftMaxOr_RejectsBeyond30s(t *testing.T) {
	now := time.Unix(1000, 0)
	deviceInstant := now.Add(-31 * time.Second)
	if abs(now.Sub(deviceInstant)) <= driftMaxOr(0) {
		t.Errorf("expected a 31s-old device instant to exceed the default clock drift ceiling")
	}
}
