package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".qledger/config.yaml"

// envPrefix is the prefix for environment overrides, e.g.
// QLEDGER_SITE or QLEDGER_OUTPUT__LEDGER_JSON (double underscore nests).
const envPrefix = "QLEDGER_"

type InputConfig struct {
	Path    string            `yaml:"path" koanf:"path"`
	Format  string            `yaml:"format" koanf:"format"`
	Columns map[string]string `yaml:"columns" koanf:"columns"`
}

type OutputConfig struct {
	LedgerJSON      string `yaml:"ledger_json" koanf:"ledger_json"`
	LedgerYAML      string `yaml:"ledger_yaml" koanf:"ledger_yaml"`
	LatestJSON      string `yaml:"latest_json" koanf:"latest_json"`
	MetricsMarkdown string `yaml:"metrics_markdown" koanf:"metrics_markdown"`
	MetricsJSON     string `yaml:"metrics_json" koanf:"metrics_json"`
	QMetricsJSON    string `yaml:"qmetrics_json" koanf:"qmetrics_json"`
	QMetricsYAML    string `yaml:"qmetrics_yaml" koanf:"qmetrics_yaml"`
}

type PublicationConfig struct {
	BaseURL        string            `yaml:"base_url" koanf:"base_url"`
	Endpoints      map[string]string `yaml:"endpoints" koanf:"endpoints"`
	TimeoutSeconds int               `yaml:"timeout_seconds" koanf:"timeout_seconds"`
	UserAgent      string            `yaml:"user_agent" koanf:"user_agent"`
}

type ArchiveConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
}

type Config struct {
	Site               string            `yaml:"site" koanf:"site" validate:"required"`
	SiteHost           string            `yaml:"site_host" koanf:"site_host"`
	FingerprintSaltEnv string            `yaml:"fingerprint_salt_env" koanf:"fingerprint_salt_env"`
	SessionGapMinutes  int               `yaml:"session_gap_minutes" koanf:"session_gap_minutes" validate:"gte=0"`
	ExportWindow       string            `yaml:"export_window" koanf:"export_window"`
	AllowMethods       []string          `yaml:"allow_methods" koanf:"allow_methods"`
	AllowStatus        []int             `yaml:"allow_status" koanf:"allow_status"`
	GovernancePaths    []string          `yaml:"governance_paths" koanf:"governance_paths"`
	ScopePath          string            `yaml:"scope_path" koanf:"scope_path"`
	StatePath          string            `yaml:"state_path" koanf:"state_path"`
	Input              InputConfig       `yaml:"input" koanf:"input"`
	Output             OutputConfig      `yaml:"output" koanf:"output"`
	Publication        PublicationConfig `yaml:"publication" koanf:"publication"`
	Archive            ArchiveConfig     `yaml:"archive" koanf:"archive"`
	Log                LogConfig         `yaml:"log" koanf:"log"`
}

// Load loads YAML config, applies QLEDGER_* env overrides, and validates.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("apply env overrides: %w", err)
	}
	return nil
}

func (c *Config) SetDefaults() {
	if c.FingerprintSaltEnv == "" {
		c.FingerprintSaltEnv = "QLEDGER_SALT"
	}
	if c.SessionGapMinutes == 0 {
		c.SessionGapMinutes = 30
	}
	if c.ExportWindow == "" {
		c.ExportWindow = "manual"
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET"}
	}
	if len(c.AllowStatus) == 0 {
		c.AllowStatus = []int{200, 304}
	}
	if c.StatePath == "" {
		c.StatePath = "state/ledger-state.json"
	}
	if c.Input.Format == "" {
		c.Input.Format = "csv"
	}
	if c.Output.LedgerJSON == "" {
		c.Output.LedgerJSON = "out/q-ledger.json"
	}
	if c.Output.LedgerYAML == "" {
		c.Output.LedgerYAML = "out/q-ledger.yml"
	}
	if c.Output.MetricsMarkdown == "" {
		c.Output.MetricsMarkdown = "out/metrics.md"
	}
	if c.Output.MetricsJSON == "" {
		c.Output.MetricsJSON = "out/metrics.json"
	}
	if c.Output.QMetricsJSON == "" {
		c.Output.QMetricsJSON = "out/q-metrics.json"
	}
	if c.Output.QMetricsYAML == "" {
		c.Output.QMetricsYAML = "out/q-metrics.yml"
	}
	if c.Publication.TimeoutSeconds == 0 {
		c.Publication.TimeoutSeconds = 10
	}
	if c.Publication.UserAgent == "" {
		c.Publication.UserAgent = "qledger-verifier"
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "state/archive.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Site) == "" {
		return errors.New("site cannot be empty")
	}
	return nil
}

// ValidateBuild enforces build-specific requirements: the fingerprint salt
// must be present in the environment before any output is produced.
func (c *Config) ValidateBuild() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(os.Getenv(c.FingerprintSaltEnv)) == "" {
		return fmt.Errorf("fingerprint salt env %s is not set", c.FingerprintSaltEnv)
	}
	return nil
}

// Salt reads the fingerprint salt from the configured environment variable.
func (c *Config) Salt() string {
	return os.Getenv(c.FingerprintSaltEnv)
}
