package scheduler

import (
	"fmt"
	"time"

	"github.com/ttinbox/inboxd/internal/store"
)

// DefaultOffsets is the default escalation ladder: how long before an
// assignment's due date each reminder rung fires.
var DefaultOffsets = []time.Duration{
	72 * time.Hour,
	24 * time.Hour,
	6 * time.Hour,
	1 * time.Hour,
}

// Score computes a reminder's delivery priority.
//
// Higher scores deliver first within a scheduler pass. The score combines
// the assignment's weight (points possible) with urgency: a reminder one
// hour from its deadline outranks a heavier assignment due next week.
// untilDue at or below zero saturates urgency.
func Score(pointsPossible float64, untilDue time.Duration) float64 {
	hours := untilDue.Hours()
	if hours < 0 {
		hours = 0
	}
	urgency := 100 / (hours + 1)
	return pointsPossible + urgency
}

// composeMessage builds the SMS body for an assignment reminder rung.
func composeMessage(a store.Assignment, untilDue time.Duration) string {
	msg := fmt.Sprintf("Reminder: %q is due %s", a.Name, humanizeUntil(untilDue))
	if a.PointsPossible > 0 {
		msg += fmt.Sprintf(" (%.0f pts)", a.PointsPossible)
	}
	if a.HTMLURL != "" {
		msg += " " + a.HTMLURL
	}
	return msg
}

// humanizeUntil renders a lead time the way a reminder reads naturally:
// "in 3 days", "in 6 hours", "in 45 minutes", "now".
func humanizeUntil(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("in %d days", int(d.Hours()/24))
	case d >= 2*time.Hour:
		return fmt.Sprintf("in %d hours", int(d.Hours()))
	case d >= 2*time.Minute:
		return fmt.Sprintf("in %d minutes", int(d.Minutes()))
	default:
		return "now"
	}
}
