package config

const (
	defaultDataDir = "~/.local/share/billsync"
	defaultLogDir  = "~/.local/share/billsync/logs"

	defaultNotionBaseURL        = "https://api.notion.com/v1"
	defaultNotionTimeoutSeconds = 30

	defaultMFBaseURL     = "https://invoice.moneyforward.com/api/v3"
	defaultMFAuthBaseURL = "https://invoice.moneyforward.com"
	defaultMFRedirectURI = "http://localhost:8080/callback"

	defaultDueTermDays    = 30
	defaultTaxRatePercent = 10
	defaultCurrency       = "JPY"
	defaultMismatchPolicy = "prefer_contract"

	defaultRetryMaxAttempts      = 5
	defaultRetryBaseDelayMS      = 500
	defaultRetryMaxDelayMS       = 10000
	defaultRequestTimeoutSeconds = 30
	defaultConcurrency           = 2

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Notion: Notion{
			BaseURL:        defaultNotionBaseURL,
			TimeoutSeconds: defaultNotionTimeoutSeconds,
			MarkInvoiced:   true,
		},
		MoneyForward: MoneyForward{
			RedirectURI: defaultMFRedirectURI,
			BaseURL:     defaultMFBaseURL,
			AuthBaseURL: defaultMFAuthBaseURL,
		},
		Billing: Billing{
			DueTermDays:    defaultDueTermDays,
			TaxRatePercent: defaultTaxRatePercent,
			Currency:       defaultCurrency,
			MismatchPolicy: defaultMismatchPolicy,
		},
		Submission: Submission{
			RetryMaxAttempts:      defaultRetryMaxAttempts,
			RetryBaseDelayMS:      defaultRetryBaseDelayMS,
			RetryMaxDelayMS:       defaultRetryMaxDelayMS,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			Concurrency:           defaultConcurrency,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
