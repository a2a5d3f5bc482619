package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"billsync/internal/money"
	"billsync/internal/project"
)

// Status is the local lifecycle of an invoice. The terminal state is whatever
// the billing API reports; nothing is persisted past the run.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// LineItem is one invoice line derived from a single project. Subtotal is
// always recomputed from unit price and quantity; it is never stored.
type LineItem struct {
	ProjectID   string
	Description string
	UnitPrice   int64
	Quantity    int64
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() int64 {
	return li.UnitPrice * li.Quantity
}

// Invoice groups one customer's line items for one orchestration run.
type Invoice struct {
	Customer  project.Customer
	IssueDate time.Time
	DueDate   time.Time
	Currency  string
	Status    Status

	Items []LineItem

	// CorrelationKey is the idempotency token shared with the billing API,
	// derived from the set of contributing project IDs.
	CorrelationKey string

	TaxRatePercent int64
	Note           string

	// Warnings collects non-fatal notes raised while computing amounts,
	// e.g. a contract amount kept despite disagreeing with the derivation.
	Warnings []string
}

// ProjectIDs returns the IDs of the contributing projects in item order.
func (inv Invoice) ProjectIDs() []string {
	ids := make([]string, 0, len(inv.Items))
	for _, item := range inv.Items {
		ids = append(ids, item.ProjectID)
	}
	return ids
}

// TotalAmount is the tax-exclusive sum of line-item subtotals, recomputed on
// every call.
func (inv Invoice) TotalAmount() int64 {
	var total int64
	for _, item := range inv.Items {
		total += item.Subtotal()
	}
	return total
}

// TaxAmount is the consumption tax on the total.
func (inv Invoice) TaxAmount() int64 {
	return money.Tax(inv.TotalAmount(), inv.TaxRatePercent)
}

// GrossAmount is the tax-inclusive total.
func (inv Invoice) GrossAmount() int64 {
	return inv.TotalAmount() + inv.TaxAmount()
}

const correlationKeyLength = 24

// CorrelationKey derives the deterministic idempotency token for a set of
// project IDs. The IDs are sorted first so any ordering of the same set
// produces the same key.
func CorrelationKey(projectIDs []string) string {
	ids := make([]string, len(projectIDs))
	copy(ids, projectIDs)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])[:correlationKeyLength]
}
