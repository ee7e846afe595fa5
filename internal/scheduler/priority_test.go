package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/ttinbox/inboxd/internal/store"
)

func TestScore_UrgencyDominatesNearDeadline(t *testing.T) {
	// a light assignment due in an hour outranks a heavy one due in a week
	urgent := Score(10, time.Hour)
	heavy := Score(100, 7*24*time.Hour)

	if urgent <= heavy {
		t.Errorf("Score(10, 1h) = %v, want > Score(100, 168h) = %v", urgent, heavy)
	}
}

func TestScore_WeightBreaksTies(t *testing.T) {
	light := Score(10, 24*time.Hour)
	heavy := Score(100, 24*time.Hour)

	if heavy <= light {
		t.Errorf("Score(100, 24h) = %v, want > Score(10, 24h) = %v", heavy, light)
	}
}

func TestScore_NegativeLeadSaturates(t *testing.T) {
	overdue := Score(0, -time.Hour)
	atDeadline := Score(0, 0)

	if overdue != atDeadline {
		t.Errorf("Score(0, -1h) = %v, want %v (saturated)", overdue, atDeadline)
	}
	if atDeadline != 100 {
		t.Errorf("Score(0, 0) = %v, want 100", atDeadline)
	}
}

func TestHumanizeUntil(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"days", 72 * time.Hour, "in 3 days"},
		{"hours", 6 * time.Hour, "in 6 hours"},
		{"minutes", 45 * time.Minute, "in 45 minutes"},
		{"now", 30 * time.Second, "now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := humanizeUntil(tt.d); got != tt.want {
				t.Errorf("humanizeUntil(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestComposeMessage(t *testing.T) {
	a := store.Assignment{
		Name:           "Final Essay",
		PointsPossible: 100,
		HTMLURL:        "https://canvas.test/courses/1/assignments/10",
	}

	msg := composeMessage(a, 24*time.Hour)

	for _, want := range []string{"Final Essay", "in 24 hours", "100 pts", a.HTMLURL} {
		if !strings.Contains(msg, want) {
			t.Errorf("composeMessage() = %q, missing %q", msg, want)
		}
	}
}

func TestComposeMessage_NoPointsNoURL(t *testing.T) {
	msg := composeMessage(store.Assignment{Name: "Quiz"}, time.Hour)

	if strings.Contains(msg, "pts") {
		t.Errorf("composeMessage() = %q, should omit points", msg)
	}
	if !strings.Contains(msg, `"Quiz"`) {
		t.Errorf("composeMessage() = %q, missing name", msg)
	}
}
