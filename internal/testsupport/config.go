package testsupport

import (
	"path/filepath"
	"testing"

	"billsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Notion.APIKey = "test-api-key"
	cfg.Notion.DatabaseID = "test-database"
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Submission.RetryBaseDelayMS = 1
	cfg.Submission.RetryMaxDelayMS = 2

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// WithMoneyForwardCredentials fills in billing service OAuth client fields.
func WithMoneyForwardCredentials() ConfigOption {
	return func(cfg *config.Config) {
		cfg.MoneyForward.ClientID = "test-client-id"
		cfg.MoneyForward.ClientSecret = "test-client-secret"
		cfg.MoneyForward.RedirectURI = "http://127.0.0.1:8585/callback"
	}
}

// WithMismatchPolicy overrides the amount mismatch policy.
func WithMismatchPolicy(policy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Billing.MismatchPolicy = policy
	}
}
