package config

import (
	"errors"
	"fmt"
)

// MismatchPolicy values accepted by billing.mismatch_policy.
const (
	MismatchPreferContract = "prefer_contract"
	MismatchAbort          = "abort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNotion(); err != nil {
		return err
	}
	if err := c.validateBilling(); err != nil {
		return err
	}
	if err := c.validateSubmission(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateMoneyForward checks the OAuth client settings. Kept separate from
// Validate so read-only commands (fetch) work without billing credentials.
func (c *Config) ValidateMoneyForward() error {
	if c.MoneyForward.ClientID == "" {
		return fmt.Errorf("moneyforward.client_id is required. Set %s or edit the config file", EnvMFClientID)
	}
	if c.MoneyForward.ClientSecret == "" {
		return fmt.Errorf("moneyforward.client_secret is required. Set %s or edit the config file", EnvMFClientSecret)
	}
	if c.MoneyForward.RedirectURI == "" {
		return errors.New("moneyforward.redirect_uri must be set")
	}
	return nil
}

func (c *Config) validateNotion() error {
	if c.Notion.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/billsync/config.toml"
		}
		return fmt.Errorf("notion.api_key is required. Set %s env var or edit %s (create with 'billsync config init')", EnvNotionAPIKey, defaultPath)
	}
	if c.Notion.DatabaseID == "" {
		return fmt.Errorf("notion.database_id is required. Set %s env var or edit the config file", EnvNotionDatabase)
	}
	if c.Notion.TimeoutSeconds <= 0 {
		return errors.New("notion.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBilling() error {
	if c.Billing.DueTermDays <= 0 {
		return errors.New("billing.due_term_days must be positive")
	}
	if c.Billing.TaxRatePercent < 0 {
		return errors.New("billing.tax_rate_percent must not be negative")
	}
	if c.Billing.Currency == "" {
		return errors.New("billing.currency must be set")
	}
	switch c.Billing.MismatchPolicy {
	case MismatchPreferContract, MismatchAbort:
	default:
		return fmt.Errorf("billing.mismatch_policy must be %q or %q", MismatchPreferContract, MismatchAbort)
	}
	return nil
}

func (c *Config) validateSubmission() error {
	if err := ensurePositiveMap(map[string]int{
		"submission.retry_max_attempts":      c.Submission.RetryMaxAttempts,
		"submission.retry_base_delay_ms":     c.Submission.RetryBaseDelayMS,
		"submission.retry_max_delay_ms":      c.Submission.RetryMaxDelayMS,
		"submission.request_timeout_seconds": c.Submission.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Submission.RetryMaxDelayMS < c.Submission.RetryBaseDelayMS {
		return errors.New("submission.retry_max_delay_ms must not be less than submission.retry_base_delay_ms")
	}
	if c.Submission.Concurrency < 1 || c.Submission.Concurrency > 4 {
		return errors.New("submission.concurrency must be between 1 and 4")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(fields map[string]int) error {
	for name, value := range fields {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
