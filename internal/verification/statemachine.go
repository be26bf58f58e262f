// Package verification holds the business verification state machine.
package verification

import "github.com/Iridium40/roam-platform-sub004/internal/models"

// rejected has no outgoing edges; resetting it is an administrative action
// handled elsewhere.
var transitions = map[models.VerificationStatus][]models.VerificationStatus{
	models.StatusPending:   {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:  {models.StatusSuspended},
	models.StatusSuspended: {models.StatusApproved},
}

// CanTransition reports whether a business in current may move to requested.
func CanTransition(current, requested models.VerificationStatus) bool {
	for _, s := range transitions[current] {
		if s == requested {
			return true
		}
	}
	return false
}

// CanApprove is CanTransition(current, approved).
func CanApprove(current models.VerificationStatus) bool {
	return CanTransition(current, models.StatusApproved)
}

// Targets returns the states reachable from current. The slice is a copy.
func Targets(current models.VerificationStatus) []models.VerificationStatus {
	next := transitions[current]
	out := make([]models.VerificationStatus, len(next))
	copy(out, next)
	return out
}
