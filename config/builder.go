package config

import (
	"time"

	"github.com/ttinbox/inboxd"
)

// BuildOptions converts parsed configuration into SDK options for
// [inboxd.New].
//
// Store selection is handled separately by the caller, since opening a
// database connection needs a context (see the serve command).
func BuildOptions(cfg *Config) []inboxd.Option {
	opts := []inboxd.Option{
		inboxd.WithPort(cfg.Port),
		inboxd.WithPollInterval(cfg.PollInterval.Duration()),
		inboxd.WithTickInterval(cfg.TickInterval.Duration()),
		inboxd.WithMaxConcurrency(cfg.MaxConcurrency),
		inboxd.WithSMSProvider(cfg.SMS.URL, cfg.SMS.Token, cfg.SMS.From),
		inboxd.WithMaxDeliveryAttempts(cfg.SMS.MaxAttempts),
	}

	if cfg.Canvas.Enabled() {
		opts = append(opts, inboxd.WithCanvas(cfg.Canvas.BaseURL, cfg.Canvas.Token))
		if len(cfg.Canvas.CourseIDs) > 0 {
			opts = append(opts, inboxd.WithCourseIDs(cfg.Canvas.CourseIDs...))
		}
	}

	if cfg.DefaultPhone != "" {
		opts = append(opts, inboxd.WithDefaultPhone(cfg.DefaultPhone))
	}

	if cfg.IngestSecret != "" {
		opts = append(opts, inboxd.WithIngestSecret(cfg.IngestSecret))
	}

	if len(cfg.Escalation.Offsets) > 0 {
		offsets := make([]time.Duration, len(cfg.Escalation.Offsets))
		for i, off := range cfg.Escalation.Offsets {
			offsets[i] = off.Duration()
		}
		opts = append(opts, inboxd.WithEscalationOffsets(offsets...))
	}

	return opts
}
