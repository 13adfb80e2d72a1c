package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/vrchat"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load = %+v, want defaults %+v", cfg, Default())
	}
	if cfg.APIURL != vrchat.DefaultBaseURL {
		t.Fatalf("APIURL = %q, want %q", cfg.APIURL, vrchat.DefaultBaseURL)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("PollInterval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.ThrottleCooldown != 10*time.Minute {
		t.Fatalf("ThrottleCooldown = %s, want 10m", cfg.ThrottleCooldown)
	}
	if cfg.ActivityCapacity != 1000 {
		t.Fatalf("ActivityCapacity = %d, want 1000", cfg.ActivityCapacity)
	}
	if !cfg.UnauthorizedMeansSecondFactor {
		t.Fatalf("UnauthorizedMeansSecondFactor = false, want true")
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	path := writeConfig(t, `
api_url = "  http://127.0.0.1:8080/api/1  "
user_agent = "tester/1.0"
request_timeout = "5s"
poll_interval = " 45s "
throttle_cooldown = "15m"
activity_capacity = 250
unauthorized_means_second_factor = false
export_format = "YAML"
theme = " Slate "
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := Config{
		APIURL:                        "http://127.0.0.1:8080/api/1",
		UserAgent:                     "tester/1.0",
		RequestTimeout:                5 * time.Second,
		PollInterval:                  45 * time.Second,
		ThrottleCooldown:              15 * time.Minute,
		ActivityCapacity:              250,
		UnauthorizedMeansSecondFactor: false,
		ExportFormat:                  activity.FormatYAML,
		Theme:                         "Slate",
	}
	if cfg != want {
		t.Fatalf("Load = %+v, want %+v", cfg, want)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	path := writeConfig(t, `
api_url = "   "
poll_interval = ""
export_format = ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load = %+v, want defaults", cfg)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := writeConfig(t, `api_url = [`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad duration", `poll_interval = "soon"`, "poll_interval"},
		{"zero interval", `poll_interval = "0s"`, "poll_interval must be positive"},
		{"negative cooldown", `throttle_cooldown = "-1m"`, "throttle_cooldown must be positive"},
		{"zero capacity", `activity_capacity = 0`, "activity_capacity must be positive"},
		{"unknown format", `export_format = "csv"`, "export_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("Load returned nil error, want %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestEncode_RoundTripsThroughLoad(t *testing.T) {
	cfg := Default()
	cfg.PollInterval = time.Minute
	cfg.ExportFormat = activity.FormatYAML

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "poll_interval") || !strings.Contains(buf.String(), "1m0s") {
		t.Fatalf("Encode output missing poll_interval:\n%s", buf.String())
	}

	got, err := Load(writeConfig(t, buf.String()))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got != cfg {
		t.Fatalf("Load(Encode(cfg)) = %+v, want %+v", got, cfg)
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}

func TestDefaultPath_UnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := DefaultPath()
	if !strings.HasPrefix(got, home) {
		t.Fatalf("DefaultPath = %q, want it under HOME %q", got, home)
	}
	if !strings.HasSuffix(got, filepath.FromSlash("/vrcpulse/config.toml")) {
		t.Fatalf("DefaultPath = %q, want it to end with /vrcpulse/config.toml", got)
	}
}
