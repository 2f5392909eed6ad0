// Package verify compares a committed quantity against a reported
// received quantity for one handoff. Pure; the caller obtains and
// validates the reported value.
package verify

import "reconagent/internal/domain"

// Result classifies one handoff comparison. Mismatch is the absolute
// difference, zero when verified.
type Result struct {
	Outcome  domain.Outcome
	Mismatch int
}

// Verify returns Verified iff reported equals committed. The committed
// quantity must be derived from the assigned-asset list length at call
// time, never from a cached counter.
func Verify(committed, reported int) Result {
	if reported == committed {
		return Result{Outcome: domain.OutcomeVerified}
	}
	diff := committed - reported
	if diff < 0 {
		diff = -diff
	}
	return Result{Outcome: domain.OutcomeMismatch, Mismatch: diff}
}
