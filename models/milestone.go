// ABOUTME: Milestone status transitions
// ABOUTME: Validates status changes and tracks completion dates
package models

import (
	"fmt"
	"time"
)

// ValidMilestoneStatus reports whether s names a known milestone status.
func ValidMilestoneStatus(s string) bool {
	switch MilestoneStatus(s) {
	case MilestoneStatusPending, MilestoneStatusCompleted, MilestoneStatusCancelled:
		return true
	}
	return false
}

// TransitionStatus validates and applies a status change, stamping or
// clearing CompletedDate. It returns true when the milestone became completed.
func (m *Milestone) TransitionStatus(newStatus MilestoneStatus, today time.Time) (bool, error) {
	if !ValidMilestoneStatus(string(newStatus)) {
		return false, fmt.Errorf("invalid milestone status: %s", newStatus)
	}

	oldStatus := m.Status
	if oldStatus == newStatus {
		return false, nil
	}

	// completed and cancelled are mutually exclusive; reopen through pending
	if oldStatus != MilestoneStatusPending && newStatus != MilestoneStatusPending {
		return false, fmt.Errorf("cannot move milestone from %s to %s", oldStatus, newStatus)
	}

	m.Status = newStatus
	if newStatus == MilestoneStatusCompleted {
		d := DateOnly(today)
		m.CompletedDate = &d
		return true, nil
	}
	m.CompletedDate = nil
	return false, nil
}
