package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/netty/analyst/internal/api"
)

func TestDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceURL != api.DefaultBaseURL {
		t.Errorf("Expected the client's default url, got %q", cfg.ServiceURL)
	}
	if cfg.Timeout != api.DefaultTimeout || cfg.MaxUploadBytes != api.DefaultMaxUpload {
		t.Errorf("Expected the client's default limits, got %v and %d", cfg.Timeout, cfg.MaxUploadBytes)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("Expected 5m timeout, got %v", cfg.Timeout)
	}
	if cfg.MaxUploadBytes != 500<<20 {
		t.Errorf("Unexpected max upload %d", cfg.MaxUploadBytes)
	}
	if cfg.LogLevel != "info" || cfg.ExportDir != "." {
		t.Errorf("Unexpected settings %+v", cfg)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "netty-analyst.yaml")
	content := "service:\n  url: http://file:5000/api\n  timeout: 30s\nexport:\n  dir: /reports\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NETTY_ANALYST_SERVICE_TIMEOUT", "90s")

	cfg, err := Load(path, map[string]interface{}{KeyExportDir: "/flag"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceURL != "http://file:5000/api" {
		t.Errorf("Expected url from file, got %q", cfg.ServiceURL)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("Expected env to win over file, got %v", cfg.Timeout)
	}
	if cfg.ExportDir != "/flag" {
		t.Errorf("Expected override to win, got %q", cfg.ExportDir)
	}
	if cfg.LogLevel != "debug" || cfg.File != path {
		t.Errorf("Unexpected settings %+v", cfg)
	}
}

func TestNonPositiveTimeoutFallsBack(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", map[string]interface{}{KeyServiceTimeout: "0s", KeyUploadMaxBytes: -1})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.MaxUploadBytes != DefaultMaxUpload {
		t.Errorf("Expected defaults, got %v %d", cfg.Timeout, cfg.MaxUploadBytes)
	}
}

func TestExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("Expected error for a missing explicit config file")
	}
}
