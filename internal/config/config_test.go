package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("PROGRESS_PUBLIC_BASE_URL", "")
	t.Setenv("PROGRESS_CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.PublicBaseURL != "http://localhost:8787" {
		t.Fatalf("expected derived public base url, got %q", cfg.PublicBaseURL)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m access ttl, got %s", cfg.AccessTTL)
	}
	if cfg.CORSOrigin != "*" {
		t.Fatalf("expected wildcard cors origin, got %q", cfg.CORSOrigin)
	}
}

func TestLoadOverlayFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.yaml")
	contents := []byte("publicBaseUrl: https://progress.example.com/\nallowedEmails:\n  - owner@example.com\n  - ' pm@example.com '\n")
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PROGRESS_CONFIG_PATH", path)
	t.Setenv("PROGRESS_PUBLIC_BASE_URL", "")
	t.Setenv("PROGRESS_ALLOWED_EMAILS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PublicBaseURL != "https://progress.example.com" {
		t.Fatalf("expected overlay base url without trailing slash, got %q", cfg.PublicBaseURL)
	}
	want := []string{"owner@example.com", "pm@example.com"}
	if !reflect.DeepEqual(cfg.AllowedEmails, want) {
		t.Fatalf("allowed emails = %v, want %v", cfg.AllowedEmails, want)
	}
}

func TestEnvironmentWinsOverOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.yaml")
	if err := os.WriteFile(path, []byte("publicBaseUrl: https://file.example.com\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PROGRESS_CONFIG_PATH", path)
	t.Setenv("PROGRESS_PUBLIC_BASE_URL", "https://env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PublicBaseURL != "https://env.example.com" {
		t.Fatalf("expected env base url, got %q", cfg.PublicBaseURL)
	}
}

func TestAllowedEmailsFromEnvironment(t *testing.T) {
	t.Setenv("PROGRESS_CONFIG_PATH", "")
	t.Setenv("PROGRESS_ALLOWED_EMAILS", "a@example.com, ,b@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"a@example.com", "b@example.com"}
	if !reflect.DeepEqual(cfg.AllowedEmails, want) {
		t.Fatalf("allowed emails = %v, want %v", cfg.AllowedEmails, want)
	}
}

func TestLoadRejectsBrokenOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("allowedEmails: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PROGRESS_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetenvBoolFallback(t *testing.T) {
	t.Setenv("BLOB_USE_SSL", "not-a-bool")
	if getenvBool("BLOB_USE_SSL", true) != true {
		t.Fatal("expected fallback for unparsable bool")
	}
	t.Setenv("BLOB_USE_SSL", "true")
	if getenvBool("BLOB_USE_SSL", false) != true {
		t.Fatal("expected parsed bool")
	}
}
