package inboxd

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ttinbox/inboxd/internal/store"
)

func validOpts(extra ...Option) []Option {
	opts := []Option{
		WithSMSProvider("https://sms.example.com", "token", "+15550001111"),
	}
	return append(opts, extra...)
}

func TestNew_Defaults(t *testing.T) {
	ib, err := New(validOpts()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := ib.Port(); got != 8080 {
		t.Errorf("Port() = %d, want 8080", got)
	}
	if got := ib.PollInterval(); got != 15*time.Minute {
		t.Errorf("PollInterval() = %v, want 15m", got)
	}
	if got := ib.CourseIDs(); len(got) != 0 {
		t.Errorf("CourseIDs() = %v, want empty", got)
	}
}

func TestNew_RequiresSMSProvider(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("New() without SMS provider should fail")
	}
}

func TestNew_CanvasRequiresDefaultPhone(t *testing.T) {
	_, err := New(validOpts(
		WithCanvas("https://canvas.example.edu", "token"),
	)...)
	if err == nil {
		t.Fatal("New() with Canvas but no default phone should fail")
	}

	_, err = New(validOpts(
		WithCanvas("https://canvas.example.edu", "token"),
		WithDefaultPhone("+15557654321"),
	)...)
	if err != nil {
		t.Fatalf("New() with Canvas and default phone error = %v", err)
	}
}

func TestNew_OptionValidation(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr bool
	}{
		{"valid port", WithPort(9090), false},
		{"port zero", WithPort(0), true},
		{"port too high", WithPort(70000), true},
		{"valid poll interval", WithPollInterval(time.Minute), false},
		{"zero poll interval", WithPollInterval(0), true},
		{"negative poll interval", WithPollInterval(-time.Second), true},
		{"valid tick interval", WithTickInterval(30 * time.Second), false},
		{"zero tick interval", WithTickInterval(0), true},
		{"valid concurrency", WithMaxConcurrency(3), false},
		{"zero concurrency", WithMaxConcurrency(0), true},
		{"valid attempts", WithMaxDeliveryAttempts(5), false},
		{"zero attempts", WithMaxDeliveryAttempts(0), true},
		{"valid course IDs", WithCourseIDs(101, 202), false},
		{"non-positive course ID", WithCourseIDs(101, 0), true},
		{"canvas URL without token", WithCanvas("https://canvas.example.edu", ""), true},
		{"canvas token without URL", WithCanvas("", "token"), true},
		{"canvas both empty", WithCanvas("", ""), false},
		{"sms empty URL", WithSMSProvider("", "token", "+15550001111"), true},
		{"sms empty from", WithSMSProvider("https://sms.example.com", "token", ""), true},
		{"nil logger", WithLogger(nil), true},
		{"nil store", WithStore(nil), true},
		{
			"valid offsets",
			WithEscalationOffsets(48*time.Hour, 12*time.Hour, time.Hour),
			false,
		},
		{"no offsets", WithEscalationOffsets(), true},
		{"zero offset", WithEscalationOffsets(24*time.Hour, 0), true},
		{
			"offsets not decreasing",
			WithEscalationOffsets(time.Hour, 24*time.Hour),
			true,
		},
		{
			"duplicate offsets",
			WithEscalationOffsets(time.Hour, time.Hour),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(validOpts(tt.opt)...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithReminderCallback_NilIsIgnored(t *testing.T) {
	ib, err := New(validOpts(WithReminderCallback(nil))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(ib.callbacks) != 0 {
		t.Errorf("nil callback was registered, got %d callbacks", len(ib.callbacks))
	}
}

func TestWithReminderCallback_Multiple(t *testing.T) {
	cb := func(ReminderUpdate) {}
	ib, err := New(validOpts(
		WithReminderCallback(cb),
		WithReminderCallback(cb),
	)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(ib.callbacks) != 2 {
		t.Errorf("got %d callbacks, want 2", len(ib.callbacks))
	}
}

func TestWithStore_Accepted(t *testing.T) {
	st := store.NewMemoryStore()
	defer st.Close()

	ib, err := New(validOpts(WithStore(st))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ib.store != st {
		t.Error("configured store was not kept")
	}
}

func TestWithLogger_Accepted(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ib, err := New(validOpts(WithLogger(logger))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ib.logger != logger {
		t.Error("configured logger was not kept")
	}
}

func TestCourseIDs_ReturnsCopy(t *testing.T) {
	ib, err := New(validOpts(WithCourseIDs(101, 202))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ids := ib.CourseIDs()
	ids[0] = 999

	if ib.CourseIDs()[0] != 101 {
		t.Error("mutating the returned slice changed the inbox configuration")
	}
}
