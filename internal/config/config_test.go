package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"billsync/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv(config.EnvNotionAPIKey, "")
	t.Setenv(config.EnvNotionDatabase, "")

	path := writeConfig(t, `
[notion]
api_key = "secret"
database_id = "db-123"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s, got %s (exists=%v)", path, resolved, exists)
	}
	if cfg.Billing.DueTermDays != 30 {
		t.Fatalf("expected default due term 30, got %d", cfg.Billing.DueTermDays)
	}
	if cfg.Billing.MismatchPolicy != config.MismatchPreferContract {
		t.Fatalf("expected default mismatch policy, got %q", cfg.Billing.MismatchPolicy)
	}
	if cfg.Submission.Concurrency != 2 {
		t.Fatalf("expected default concurrency 2, got %d", cfg.Submission.Concurrency)
	}
	if cfg.Notion.BaseURL != "https://api.notion.com/v1" {
		t.Fatalf("unexpected notion base url %q", cfg.Notion.BaseURL)
	}
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	t.Setenv(config.EnvNotionAPIKey, "env-key")
	t.Setenv(config.EnvNotionDatabase, "env-db")

	path := writeConfig(t, `
[notion]
api_key = "file-key"
database_id = "file-db"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notion.APIKey != "env-key" || cfg.Notion.DatabaseID != "env-db" {
		t.Fatalf("env overrides not applied: %+v", cfg.Notion)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	t.Setenv(config.EnvNotionAPIKey, "")
	t.Setenv(config.EnvNotionDatabase, "")

	path := writeConfig(t, `
[notion]
database_id = "db-123"
`)
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "notion.api_key") {
		t.Fatalf("error should name the field: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "bad mismatch policy",
			mutate: func(c *config.Config) { c.Billing.MismatchPolicy = "merge" },
			want:   "mismatch_policy",
		},
		{
			name:   "zero retry bound",
			mutate: func(c *config.Config) { c.Submission.RetryMaxAttempts = 0 },
			want:   "retry_max_attempts",
		},
		{
			name:   "concurrency too high",
			mutate: func(c *config.Config) { c.Submission.Concurrency = 9 },
			want:   "concurrency",
		},
		{
			name:   "negative tax rate",
			mutate: func(c *config.Config) { c.Billing.TaxRatePercent = -1 },
			want:   "tax_rate_percent",
		},
		{
			name:   "max delay below base",
			mutate: func(c *config.Config) { c.Submission.RetryMaxDelayMS = 100 },
			want:   "retry_max_delay_ms",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Notion.APIKey = "k"
			cfg.Notion.DatabaseID = "d"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateMoneyForward(t *testing.T) {
	cfg := config.Default()
	if err := cfg.ValidateMoneyForward(); err == nil {
		t.Fatal("expected error without oauth client settings")
	}
	cfg.MoneyForward.ClientID = "id"
	cfg.MoneyForward.ClientSecret = "secret"
	if err := cfg.ValidateMoneyForward(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
