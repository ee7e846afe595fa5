package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
sms:
  url: https://sms.example.com
  from: "+15550001111"
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.PollInterval.Duration() != 15*time.Minute {
		t.Errorf("PollInterval = %v, want 15m", cfg.PollInterval.Duration())
	}
	if cfg.TickInterval.Duration() != time.Minute {
		t.Errorf("TickInterval = %v, want 1m", cfg.TickInterval.Duration())
	}
	if cfg.MaxConcurrency != 5 {
		t.Errorf("MaxConcurrency = %d, want 5", cfg.MaxConcurrency)
	}
	if cfg.SMS.MaxAttempts != 3 {
		t.Errorf("SMS.MaxAttempts = %d, want 3", cfg.SMS.MaxAttempts)
	}
	if cfg.Canvas.Enabled() {
		t.Error("Canvas.Enabled() = true for empty canvas config")
	}
	if cfg.Database != nil {
		t.Error("Database should be nil when omitted")
	}
}

func TestParse_FullConfig(t *testing.T) {
	yamlData := `
port: 9090
poll_interval: 10m
tick_interval: 30s
max_concurrency: 8
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
  offsets: [72h, 24h, 6h, 1h]

database:
  host: db.example.com
  user: inboxd
  password: secret
  dbname: inboxd
`
	cfg, err := Parse([]byte(yamlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.PollInterval.Duration() != 10*time.Minute {
		t.Errorf("PollInterval = %v, want 10m", cfg.PollInterval.Duration())
	}
	if !cfg.Canvas.Enabled() {
		t.Error("Canvas.Enabled() = false, want true")
	}
	if len(cfg.Canvas.CourseIDs) != 2 || cfg.Canvas.CourseIDs[0] != 101 {
		t.Errorf("Canvas.CourseIDs = %v, want [101 202]", cfg.Canvas.CourseIDs)
	}
	if cfg.SMS.MaxAttempts != 5 {
		t.Errorf("SMS.MaxAttempts = %d, want 5", cfg.SMS.MaxAttempts)
	}
	if len(cfg.Escalation.Offsets) != 4 || cfg.Escalation.Offsets[0].Duration() != 72*time.Hour {
		t.Errorf("Escalation.Offsets = %v", cfg.Escalation.Offsets)
	}
	if cfg.Database == nil {
		t.Fatal("Database is nil")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want default 5432", cfg.Database.Port)
	}
	if cfg.Database.SSLMode != "disable" {
		t.Errorf("Database.SSLMode = %q, want default disable", cfg.Database.SSLMode)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("port: [not a number"))
	if err == nil {
		t.Fatal("Parse() with invalid YAML should fail")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + "poll_interval: often\n"))
	if err == nil {
		t.Fatal("Parse() with invalid duration should fail")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %v, want mention of invalid duration", err)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing sms url",
			yaml:    "sms:\n  from: \"+15550001111\"\n",
			wantErr: "sms: url is required",
		},
		{
			name:    "missing sms from",
			yaml:    "sms:\n  url: https://sms.example.com\n",
			wantErr: "sms: from is required",
		},
		{
			name:    "sms url without scheme",
			yaml:    "sms:\n  url: sms.example.com\n  from: \"+1\"\n",
			wantErr: "scheme",
		},
		{
			name:    "sms url bad scheme",
			yaml:    "sms:\n  url: ftp://sms.example.com\n  from: \"+1\"\n",
			wantErr: "scheme must be http or https",
		},
		{
			name:    "port out of range",
			yaml:    minimalYAML + "port: 70000\n",
			wantErr: "port must be between",
		},
		{
			name:    "poll interval too small",
			yaml:    minimalYAML + "poll_interval: 5s\n",
			wantErr: "poll_interval must be at least",
		},
		{
			name:    "tick interval too small",
			yaml:    minimalYAML + "tick_interval: 100ms\n",
			wantErr: "tick_interval must be at least",
		},
		{
			name:    "zero concurrency",
			yaml:    minimalYAML + "max_concurrency: -1\n",
			wantErr: "max_concurrency must be positive",
		},
		{
			name:    "zero sms attempts",
			yaml:    "sms:\n  url: https://sms.example.com\n  from: \"+1\"\n  max_attempts: -2\n",
			wantErr: "max_attempts must be positive",
		},
		{
			name: "canvas without token",
			yaml: minimalYAML + `
default_phone: "+15557654321"
canvas:
  base_url: https://canvas.example.edu
`,
			wantErr: "canvas: token is required",
		},
		{
			name: "canvas token without base url",
			yaml: minimalYAML + `
canvas:
  token: canvas-token
`,
			wantErr: "base_url is missing",
		},
		{
			name: "canvas without default phone",
			yaml: minimalYAML + `
canvas:
  base_url: https://canvas.example.edu
  token: canvas-token
`,
			wantErr: "default_phone is required",
		},
		{
			name: "non-positive course id",
			yaml: minimalYAML + `
default_phone: "+15557654321"
canvas:
  base_url: https://canvas.example.edu
  token: canvas-token
  course_ids: [101, 0]
`,
			wantErr: "course_ids[1] must be positive",
		},
		{
			name:    "offsets not decreasing",
			yaml:    minimalYAML + "escalation:\n  offsets: [1h, 24h]\n",
			wantErr: "strictly decreasing",
		},
		{
			name:    "duplicate offsets",
			yaml:    minimalYAML + "escalation:\n  offsets: [6h, 6h]\n",
			wantErr: "strictly decreasing",
		},
		{
			name:    "database missing host",
			yaml:    minimalYAML + "database:\n  user: inboxd\n  dbname: inboxd\n",
			wantErr: "database: host is required",
		},
		{
			name:    "database missing user",
			yaml:    minimalYAML + "database:\n  host: db\n  dbname: inboxd\n",
			wantErr: "database: user is required",
		},
		{
			name:    "database missing dbname",
			yaml:    minimalYAML + "database:\n  host: db\n  user: inboxd\n",
			wantErr: "database: dbname is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_EnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SMS_TOKEN", "token-from-env")
	t.Setenv("TEST_DB_PASSWORD", "pw-from-env")

	yamlData := `
default_phone: ${TEST_PHONE:-+15557654321}
ingest_secret: ${TEST_SECRET:-}
sms:
  url: https://sms.example.com
  token: ${TEST_SMS_TOKEN}
  from: "+15550001111"
database:
  host: db
  user: inboxd
  password: ${TEST_DB_PASSWORD}
  dbname: inboxd
`
	cfg, err := Parse([]byte(yamlData))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.SMS.Token != "token-from-env" {
		t.Errorf("SMS.Token = %q, want token-from-env", cfg.SMS.Token)
	}
	if cfg.Database.Password != "pw-from-env" {
		t.Errorf("Database.Password = %q, want pw-from-env", cfg.Database.Password)
	}
	if cfg.DefaultPhone != "+15557654321" {
		t.Errorf("DefaultPhone = %q, want the fallback default", cfg.DefaultPhone)
	}
	if cfg.IngestSecret != "" {
		t.Errorf("IngestSecret = %q, want empty from ${VAR:-}", cfg.IngestSecret)
	}
}

func TestParse_MissingEnvVarFails(t *testing.T) {
	yamlData := `
sms:
  url: https://sms.example.com
  token: ${DEFINITELY_NOT_SET_ANYWHERE_42}
  from: "+15550001111"
`
	_, err := Parse([]byte(yamlData))
	if err == nil {
		t.Fatal("Parse() with unset env var should fail")
	}
	if !strings.Contains(err.Error(), "DEFINITELY_NOT_SET_ANYWHERE_42") {
		t.Errorf("error = %v, want mention of the variable name", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_VAR", "value")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no variables", "plain string", "plain string", false},
		{"set variable", "${TEST_EXPAND_VAR}", "value", false},
		{"embedded", "pre-${TEST_EXPAND_VAR}-post", "pre-value-post", false},
		{"default used", "${TEST_UNSET_VAR:-fallback}", "fallback", false},
		{"default ignored", "${TEST_EXPAND_VAR:-fallback}", "value", false},
		{"empty default", "${TEST_UNSET_VAR:-}", "", false},
		{"unset without default", "${TEST_UNSET_VAR}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expandEnvVars() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inboxd.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SMS.URL != "https://sms.example.com" {
		t.Errorf("SMS.URL = %q", cfg.SMS.URL)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/inboxd.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should fail")
	}
}
