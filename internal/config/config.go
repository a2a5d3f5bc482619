package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Notion contains configuration for the source project database.
type Notion struct {
	APIKey         string `toml:"api_key"`
	DatabaseID     string `toml:"database_id"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MarkInvoiced   bool   `toml:"mark_invoiced"`
}

// MoneyForward contains configuration for the billing service.
type MoneyForward struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	BaseURL      string `toml:"base_url"`
	AuthBaseURL  string `toml:"auth_base_url"`
}

// Billing contains invoice construction policy.
type Billing struct {
	DueTermDays    int    `toml:"due_term_days"`
	TaxRatePercent int64  `toml:"tax_rate_percent"`
	Currency       string `toml:"currency"`
	MismatchPolicy string `toml:"mismatch_policy"`
}

// Submission contains retry and concurrency settings for billing API calls.
type Submission struct {
	RetryMaxAttempts      int `toml:"retry_max_attempts"`
	RetryBaseDelayMS      int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS       int `toml:"retry_max_delay_ms"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	Concurrency           int `toml:"concurrency"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for billsync.
//
// Configuration sections by subsystem:
//   - Notion: source database connection and invoiced-flag writeback
//   - MoneyForward: billing API connection and OAuth client
//   - Billing: due term, tax rate, currency, amount-mismatch policy
//   - Submission: retry bound, backoff delays, per-call timeout, worker count
//   - Paths: data and log directories
//   - Logging: log format and level
type Config struct {
	Notion       Notion       `toml:"notion"`
	MoneyForward MoneyForward `toml:"moneyforward"`
	Billing      Billing      `toml:"billing"`
	Submission   Submission   `toml:"submission"`
	Paths        Paths        `toml:"paths"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/billsync/config.toml")
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and credential environment overrides
// applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("billsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunDBPath returns the sqlite database location for run history.
func (c *Config) RunDBPath() string {
	return filepath.Join(c.Paths.DataDir, "runs.db")
}

// TokenPath returns the OAuth token state location.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Paths.DataDir, "mf_token.json")
}

// LockPath returns the run lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "billsync.lock")
}

// ExpandPath expands a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
