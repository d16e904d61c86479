package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "site: \"https://example.com\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionGapMinutes != 30 {
		t.Fatalf("gap = %d", cfg.SessionGapMinutes)
	}
	if cfg.FingerprintSaltEnv != "QLEDGER_SALT" {
		t.Fatalf("salt env = %q", cfg.FingerprintSaltEnv)
	}
	if cfg.ExportWindow != "manual" {
		t.Fatalf("export window = %q", cfg.ExportWindow)
	}
	if len(cfg.AllowMethods) != 1 || cfg.AllowMethods[0] != "GET" {
		t.Fatalf("allow methods = %v", cfg.AllowMethods)
	}
	if len(cfg.AllowStatus) != 2 || cfg.AllowStatus[0] != 200 || cfg.AllowStatus[1] != 304 {
		t.Fatalf("allow status = %v", cfg.AllowStatus)
	}
	if cfg.Output.LedgerJSON != "out/q-ledger.json" {
		t.Fatalf("ledger json = %q", cfg.Output.LedgerJSON)
	}
	if cfg.Archive.Path != "state/archive.db" {
		t.Fatalf("archive path = %q", cfg.Archive.Path)
	}
	if cfg.Publication.TimeoutSeconds != 10 {
		t.Fatalf("timeout = %d", cfg.Publication.TimeoutSeconds)
	}
}

func TestLoadYAMLValues(t *testing.T) {
	path := writeConfig(t, `site: "https://example.com"
site_host: "example.com"
session_gap_minutes: 45
governance_paths:
  - /ai.txt
input:
  path: logs.csv
  format: csv
output:
  ledger_json: custom/ledger.json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SiteHost != "example.com" || cfg.SessionGapMinutes != 45 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Output.LedgerJSON != "custom/ledger.json" {
		t.Fatalf("ledger json = %q", cfg.Output.LedgerJSON)
	}
	if len(cfg.GovernancePaths) != 1 || cfg.GovernancePaths[0] != "/ai.txt" {
		t.Fatalf("governance paths = %v", cfg.GovernancePaths)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "site: \"https://example.com\"\n")
	t.Setenv("QLEDGER_SITE_HOST", "override.example.com")
	t.Setenv("QLEDGER_SESSION_GAP_MINUTES", "15")
	t.Setenv("QLEDGER_OUTPUT__LEDGER_JSON", "env/ledger.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SiteHost != "override.example.com" {
		t.Fatalf("site host = %q", cfg.SiteHost)
	}
	if cfg.SessionGapMinutes != 15 {
		t.Fatalf("gap = %d", cfg.SessionGapMinutes)
	}
	if cfg.Output.LedgerJSON != "env/ledger.json" {
		t.Fatalf("ledger json = %q", cfg.Output.LedgerJSON)
	}
}

func TestLoadRequiresSite(t *testing.T) {
	path := writeConfig(t, "session_gap_minutes: 30\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing site")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// A missing file is fine as long as env provides the required fields.
	t.Setenv("QLEDGER_SITE", "https://env.example.com")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site != "https://env.example.com" {
		t.Fatalf("site = %q", cfg.Site)
	}
}

func TestValidateBuildRequiresSalt(t *testing.T) {
	path := writeConfig(t, "site: \"https://example.com\"\nfingerprint_salt_env: TEST_QLEDGER_SALT\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	os.Unsetenv("TEST_QLEDGER_SALT")
	if err := cfg.ValidateBuild(); err == nil {
		t.Fatalf("expected error without salt")
	}

	t.Setenv("TEST_QLEDGER_SALT", "secret")
	if err := cfg.ValidateBuild(); err != nil {
		t.Fatalf("ValidateBuild: %v", err)
	}
	if cfg.Salt() != "secret" {
		t.Fatalf("Salt() = %q", cfg.Salt())
	}
}
