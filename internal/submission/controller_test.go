package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"billsync/internal/config"
	"billsync/internal/invoice"
	"billsync/internal/logging"
	"billsync/internal/services"
	"billsync/internal/services/moneyforward"
)

type fakeBilling struct {
	remote map[string]string // correlation key -> remote id

	findErrs   []error
	createErrs []error
	updateErrs []error

	findCalls   int
	createCalls int
	updateCalls int
}

func (f *fakeBilling) FindByCorrelationKey(_ context.Context, key string) (string, error) {
	f.findCalls++
	if len(f.findErrs) > 0 {
		err := f.findErrs[0]
		f.findErrs = f.findErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.remote[key], nil
}

func (f *fakeBilling) Create(_ context.Context, inv invoice.Invoice) (moneyforward.RemoteInvoice, error) {
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return moneyforward.RemoteInvoice{}, err
		}
	}
	if f.remote == nil {
		f.remote = make(map[string]string)
	}
	id := "remote-" + inv.CorrelationKey
	f.remote[inv.CorrelationKey] = id
	return moneyforward.RemoteInvoice{ID: id, BillingNumber: inv.CorrelationKey}, nil
}

func (f *fakeBilling) Update(_ context.Context, id string, inv invoice.Invoice) (moneyforward.RemoteInvoice, error) {
	f.updateCalls++
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return moneyforward.RemoteInvoice{}, err
		}
	}
	return moneyforward.RemoteInvoice{ID: id, BillingNumber: inv.CorrelationKey}, nil
}

type memoryLedger struct {
	entries map[string]string
}

func (m *memoryLedger) RemoteID(key string) (string, bool, error) {
	id, ok := m.entries[key]
	return id, ok, nil
}

func (m *memoryLedger) RecordSubmission(key, remoteID string) error {
	if m.entries == nil {
		m.entries = make(map[string]string)
	}
	m.entries[key] = remoteID
	return nil
}

func newTestController(t *testing.T, client BillingClient, ledger Ledger, maxAttempts int) *Controller {
	t.Helper()
	cfg := config.Default()
	cfg.Submission.RetryMaxAttempts = maxAttempts
	cfg.Submission.RetryBaseDelayMS = 1
	cfg.Submission.RetryMaxDelayMS = 2
	logger := logging.NewDiscard()
	controller := NewController(&cfg, client, ledger, logger)
	controller.sleep = func(context.Context, time.Duration) error { return nil }
	return controller
}

func testInvoice(key string) invoice.Invoice {
	return invoice.Invoice{CorrelationKey: key}
}

func transientErr() error {
	return services.Wrap(services.ErrTransient, "moneyforward", "request", "http 503", nil)
}

func TestSubmitCreatesNewBilling(t *testing.T) {
	billing := &fakeBilling{}
	ledger := &memoryLedger{}
	controller := newTestController(t, billing, ledger, 3)

	result := controller.Submit(context.Background(), testInvoice("key-1"))
	if result.State != StateConfirmed {
		t.Fatalf("state = %s, err = %v", result.State, result.Err)
	}
	if result.Updated {
		t.Error("first submission should create, not update")
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d", result.Attempts)
	}
	if billing.createCalls != 1 || billing.updateCalls != 0 {
		t.Errorf("calls: create %d, update %d", billing.createCalls, billing.updateCalls)
	}
	if id, ok := ledger.entries["key-1"]; !ok || id != result.RemoteID {
		t.Errorf("ledger entry = %q, %v", id, ok)
	}
}

func TestSubmitSecondRunUpdates(t *testing.T) {
	billing := &fakeBilling{}
	ledger := &memoryLedger{}
	controller := newTestController(t, billing, ledger, 3)

	first := controller.Submit(context.Background(), testInvoice("key-2"))
	if first.State != StateConfirmed {
		t.Fatalf("first state = %s", first.State)
	}
	second := controller.Submit(context.Background(), testInvoice("key-2"))
	if second.State != StateConfirmed {
		t.Fatalf("second state = %s", second.State)
	}
	if !second.Updated {
		t.Error("second submission should update")
	}
	if second.RemoteID != first.RemoteID {
		t.Errorf("remote IDs diverged: %q vs %q", first.RemoteID, second.RemoteID)
	}
	if billing.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", billing.createCalls)
	}
	if billing.updateCalls != 1 {
		t.Errorf("update calls = %d, want 1", billing.updateCalls)
	}
}

func TestSubmitRecoversRemoteIDFromBillingService(t *testing.T) {
	// The billing exists remotely but the local ledger lost it.
	billing := &fakeBilling{remote: map[string]string{"key-3": "remote-existing"}}
	ledger := &memoryLedger{}
	controller := newTestController(t, billing, ledger, 3)

	result := controller.Submit(context.Background(), testInvoice("key-3"))
	if result.State != StateConfirmed {
		t.Fatalf("state = %s, err = %v", result.State, result.Err)
	}
	if !result.Updated || result.RemoteID != "remote-existing" {
		t.Errorf("result = %+v", result)
	}
	if billing.createCalls != 0 {
		t.Errorf("create calls = %d, want 0", billing.createCalls)
	}
}

func TestSubmitRetriesTransientThenSucceeds(t *testing.T) {
	billing := &fakeBilling{createErrs: []error{transientErr(), transientErr()}}
	controller := newTestController(t, billing, &memoryLedger{}, 5)

	result := controller.Submit(context.Background(), testInvoice("key-4"))
	if result.State != StateConfirmed {
		t.Fatalf("state = %s, err = %v", result.State, result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestSubmitStopsAtRetryBound(t *testing.T) {
	billing := &fakeBilling{createErrs: []error{
		transientErr(), transientErr(), transientErr(), transientErr(), transientErr(),
	}}
	controller := newTestController(t, billing, &memoryLedger{}, 3)

	result := controller.Submit(context.Background(), testInvoice("key-5"))
	if result.State != StateFailed {
		t.Fatalf("state = %s", result.State)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if !errors.Is(result.Err, services.ErrTransient) {
		t.Errorf("err = %v", result.Err)
	}
	if billing.createCalls != 3 {
		t.Errorf("create calls = %d, want 3", billing.createCalls)
	}
}

func TestSubmitPermanentFailureDoesNotRetry(t *testing.T) {
	permanent := services.Wrap(services.ErrPermanent, "moneyforward", "request", "http 422", nil)
	billing := &fakeBilling{createErrs: []error{permanent}}
	controller := newTestController(t, billing, &memoryLedger{}, 5)

	result := controller.Submit(context.Background(), testInvoice("key-6"))
	if result.State != StateFailed {
		t.Fatalf("state = %s", result.State)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
	if !errors.Is(result.Err, services.ErrPermanent) {
		t.Errorf("err = %v", result.Err)
	}
}

func TestSubmitAuthFailureStopsImmediately(t *testing.T) {
	authErr := services.Wrap(services.ErrAuth, "moneyforward", "request", "http 401", nil)
	billing := &fakeBilling{findErrs: []error{authErr}}
	controller := newTestController(t, billing, &memoryLedger{}, 5)

	result := controller.Submit(context.Background(), testInvoice("key-7"))
	if result.State != StateFailed {
		t.Fatalf("state = %s", result.State)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
	if !errors.Is(result.Err, services.ErrAuth) {
		t.Errorf("err = %v", result.Err)
	}
}

func TestSubmitCancelledDuringBackoff(t *testing.T) {
	billing := &fakeBilling{createErrs: []error{transientErr(), transientErr()}}
	controller := newTestController(t, billing, &memoryLedger{}, 5)
	controller.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	result := controller.Submit(context.Background(), testInvoice("key-8"))
	if result.State != StateFailed {
		t.Fatalf("state = %s", result.State)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	backoff := NewBackoff(100*time.Millisecond, 400*time.Millisecond)
	backoff.jitter = func() float64 { return 0 }

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{10, 400 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := backoff.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
