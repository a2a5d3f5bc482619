package submission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"billsync/internal/config"
	"billsync/internal/invoice"
	"billsync/internal/services"
	"billsync/internal/services/moneyforward"
)

// BillingClient is the remote billing surface the controller drives.
type BillingClient interface {
	FindByCorrelationKey(ctx context.Context, key string) (string, error)
	Create(ctx context.Context, inv invoice.Invoice) (moneyforward.RemoteInvoice, error)
	Update(ctx context.Context, id string, inv invoice.Invoice) (moneyforward.RemoteInvoice, error)
}

// Ledger records which correlation keys already map to remote billing
// IDs, so resubmitted invoices update instead of duplicating.
type Ledger interface {
	RemoteID(correlationKey string) (string, bool, error)
	RecordSubmission(correlationKey, remoteID string) error
}

// State tracks an invoice through the submission lifecycle.
type State string

const (
	StateDraft      State = "draft"
	StateSubmitting State = "submitting"
	StateRetrying   State = "retrying"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// Result summarizes one invoice's submission.
type Result struct {
	CorrelationKey string
	State          State
	RemoteID       string
	Updated        bool
	Attempts       int
	Err            error
}

// Controller submits invoices with bounded retry on transient failures
// and correlation-key idempotency.
type Controller struct {
	client         BillingClient
	ledger         Ledger
	logger         *slog.Logger
	backoff        Backoff
	maxAttempts    int
	requestTimeout time.Duration

	// sleep is overridable so retry tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController wires a controller from configuration.
func NewController(cfg *config.Config, client BillingClient, ledger Ledger, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.Submission.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := time.Duration(cfg.Submission.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Controller{
		client: client,
		ledger: ledger,
		logger: logger,
		backoff: NewBackoff(
			time.Duration(cfg.Submission.RetryBaseDelayMS)*time.Millisecond,
			time.Duration(cfg.Submission.RetryMaxDelayMS)*time.Millisecond,
		),
		maxAttempts:    maxAttempts,
		requestTimeout: timeout,
		sleep:          sleepContext,
	}
}

// Submit pushes one invoice to the billing service. Transient failures
// are retried up to the configured bound; auth and permanent failures
// stop immediately. The returned result always reflects the final
// state, even on error.
func (c *Controller) Submit(ctx context.Context, inv invoice.Invoice) Result {
	result := Result{CorrelationKey: inv.CorrelationKey, State: StateDraft}

	knownID, found, err := c.ledger.RemoteID(inv.CorrelationKey)
	if err != nil {
		c.logger.Warn("submission ledger lookup failed",
			slog.String("correlation_key", inv.CorrelationKey),
			slog.String("error", err.Error()))
	}
	if found {
		result.RemoteID = knownID
	}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result.Attempts = attempt
		result.State = StateSubmitting

		remote, updated, err := c.attempt(ctx, inv, result.RemoteID)
		if err == nil {
			result.State = StateConfirmed
			result.RemoteID = remote.ID
			result.Updated = updated
			result.Err = nil
			if ledgerErr := c.ledger.RecordSubmission(inv.CorrelationKey, remote.ID); ledgerErr != nil {
				c.logger.Warn("failed to record submission in ledger",
					slog.String("correlation_key", inv.CorrelationKey),
					slog.String("error", ledgerErr.Error()))
			}
			return result
		}

		result.Err = err
		if !errors.Is(err, services.ErrTransient) || attempt == c.maxAttempts {
			result.State = StateFailed
			return result
		}

		result.State = StateRetrying
		delay := c.backoff.Delay(attempt)
		c.logger.Warn("transient submission failure, retrying",
			slog.String("correlation_key", inv.CorrelationKey),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			result.State = StateFailed
			result.Err = services.Wrap(services.ErrTransient, "submission", "retry", "cancelled while waiting to retry", sleepErr)
			return result
		}
	}

	result.State = StateFailed
	return result
}

// attempt performs one submission round trip. When no remote ID is
// known yet it first checks the billing service by correlation key, so
// billings created by an interrupted earlier run are updated rather
// than duplicated.
func (c *Controller) attempt(ctx context.Context, inv invoice.Invoice, knownID string) (moneyforward.RemoteInvoice, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	remoteID := knownID
	if remoteID == "" {
		found, err := c.client.FindByCorrelationKey(callCtx, inv.CorrelationKey)
		if err != nil {
			return moneyforward.RemoteInvoice{}, false, err
		}
		remoteID = found
	}

	if remoteID != "" {
		updated, err := c.client.Update(callCtx, remoteID, inv)
		if err != nil {
			return moneyforward.RemoteInvoice{}, false, err
		}
		return updated, true, nil
	}

	created, err := c.client.Create(callCtx, inv)
	if err != nil {
		return moneyforward.RemoteInvoice{}, false, err
	}
	return created, false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
