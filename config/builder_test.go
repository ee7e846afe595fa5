package config

import (
	"testing"

	"github.com/ttinbox/inboxd"
)

func TestBuildOptions_Minimal(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts := BuildOptions(cfg)
	ib, err := inboxd.New(opts...)
	if err != nil {
		t.Fatalf("New() with built options error = %v", err)
	}

	if got := ib.Port(); got != 8080 {
		t.Errorf("Port() = %d, want 8080", got)
	}
	if got := ib.CourseIDs(); len(got) != 0 {
		t.Errorf("CourseIDs() = %v, want empty", got)
	}
}

func TestBuildOptions_Full(t *testing.T) {
	yamlData := `
port: 9090
poll_interval: 10m
default_phone: "+15557654321"
ingest_secret: hunter2

canvas:
  base_url: https://canvas.example.edu
  token: canvas-token
  course_ids: [101, 202]

sms:
  url: https://sms.example.com
  token: sms-token
  from: "+15550001111"
  max_attempts: 5

escalation:
  offsets: [48h, 12h, 1h]
`
	cfg, err := Parse([]byte(yamlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ib, err := inboxd.New(BuildOptions(cfg)...)
	if err != nil {
		t.Fatalf("New() with built options error = %v", err)
	}

	if got := ib.Port(); got != 9090 {
		t.Errorf("Port() = %d, want 9090", got)
	}
	if got := ib.CourseIDs(); len(got) != 2 || got[0] != 101 || got[1] != 202 {
		t.Errorf("CourseIDs() = %v, want [101 202]", got)
	}
}

// A config that passes Parse validation must always produce options that
// inboxd.New accepts; the two layers validate the same bounds.
func TestBuildOptions_ValidConfigAlwaysConstructs(t *testing.T) {
	configs := []string{
		minimalYAML,
		minimalYAML + "port: 1\n",
		minimalYAML + "port: 65535\n",
		minimalYAML + "poll_interval: 30s\ntick_interval: 1s\n",
		minimalYAML + "escalation:\n  offsets: [1h]\n",
	}

	for _, yamlData := range configs {
		cfg, err := Parse([]byte(yamlData))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", yamlData, err)
		}
		if _, err := inboxd.New(BuildOptions(cfg)...); err != nil {
			t.Errorf("New() rejected options from valid config %q: %v", yamlData, err)
		}
	}
}
