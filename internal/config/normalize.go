package config

import (
	"os"
	"strings"
)

// Environment variables that override file-based credentials. Secrets are
// commonly injected through the environment rather than written to disk.
const (
	EnvNotionAPIKey    = "NOTION_API_KEY"
	EnvNotionDatabase  = "NOTION_DATABASE_ID"
	EnvMFClientID      = "MONEYFORWARD_CLIENT_ID"
	EnvMFClientSecret  = "MONEYFORWARD_CLIENT_SECRET"
	EnvMFRedirectURI   = "MONEYFORWARD_REDIRECT_URI"
)

func (c *Config) normalize() error {
	c.applyEnvOverrides()

	for _, field := range []*string{
		&c.Notion.APIKey,
		&c.Notion.DatabaseID,
		&c.MoneyForward.ClientID,
		&c.MoneyForward.ClientSecret,
		&c.MoneyForward.RedirectURI,
		&c.Billing.Currency,
		&c.Billing.MismatchPolicy,
		&c.Logging.Format,
		&c.Logging.Level,
	} {
		*field = strings.TrimSpace(*field)
	}
	c.Notion.BaseURL = strings.TrimRight(strings.TrimSpace(c.Notion.BaseURL), "/")
	c.MoneyForward.BaseURL = strings.TrimRight(strings.TrimSpace(c.MoneyForward.BaseURL), "/")
	c.MoneyForward.AuthBaseURL = strings.TrimRight(strings.TrimSpace(c.MoneyForward.AuthBaseURL), "/")
	c.Billing.MismatchPolicy = strings.ToLower(c.Billing.MismatchPolicy)

	dataDir, err := expandPath(c.Paths.DataDir)
	if err != nil {
		return err
	}
	c.Paths.DataDir = dataDir

	logDir, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = logDir

	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(EnvNotionAPIKey)); v != "" {
		c.Notion.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvNotionDatabase)); v != "" {
		c.Notion.DatabaseID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMFClientID)); v != "" {
		c.MoneyForward.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMFClientSecret)); v != "" {
		c.MoneyForward.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMFRedirectURI)); v != "" {
		c.MoneyForward.RedirectURI = v
	}
}
