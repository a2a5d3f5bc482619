package invoice

import (
	"fmt"

	"billsync/internal/config"
	"billsync/internal/money"
	"billsync/internal/project"
	"billsync/internal/services"
)

// MismatchPolicy decides what happens when an explicit contract amount
// disagrees with unit_price x day_count.
type MismatchPolicy string

const (
	// PreferContract keeps the explicit contract amount as the source of
	// truth and records a warning note.
	PreferContract MismatchPolicy = MismatchPolicy(config.MismatchPreferContract)
	// AbortOnMismatch rejects the record with a ConsistencyError.
	AbortOnMismatch MismatchPolicy = MismatchPolicy(config.MismatchAbort)
)

// ComputedAmounts holds the derived billing figures for one project.
type ComputedAmounts struct {
	// Amount is the tax-exclusive total to bill for the project.
	Amount int64
	// UnitPrice and Quantity are the line-item figures; their product always
	// equals Amount.
	UnitPrice int64
	Quantity  int64
	// Warning carries a non-fatal note, empty when the figures were clean.
	Warning string
}

// ConsistencyError reports a contract amount that disagrees with the derived
// unit_price x day_count figure. Both values are carried so the caller can
// surface them.
type ConsistencyError struct {
	ContractAmount int64
	DerivedAmount  int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("contract amount %s disagrees with unit_price x day_count %s",
		money.FormatYen(e.ContractAmount), money.FormatYen(e.DerivedAmount))
}

func (e *ConsistencyError) Unwrap() error {
	return services.ErrConsistency
}

// Calculator derives invoice money fields from a project.
type Calculator struct {
	Policy MismatchPolicy
}

// NewCalculator constructs a Calculator for the given mismatch policy.
func NewCalculator(policy MismatchPolicy) Calculator {
	if policy == "" {
		policy = PreferContract
	}
	return Calculator{Policy: policy}
}

// Compute derives the billable amount and line-item figures for a project.
//
// When both the explicit contract amount and the unit_price x day_count
// derivation are available they must agree; on disagreement the configured
// policy either rejects the record (AbortOnMismatch) or keeps the contract
// amount with a warning (PreferContract). A record with neither figure
// available cannot be invoiced.
func (c Calculator) Compute(p project.Project) (ComputedAmounts, error) {
	derived, derivable := deriveAmount(p)

	var amount int64
	var warning string
	switch {
	case p.ContractAmount != nil && derivable && *p.ContractAmount != derived:
		if c.Policy == AbortOnMismatch {
			return ComputedAmounts{}, &ConsistencyError{
				ContractAmount: *p.ContractAmount,
				DerivedAmount:  derived,
			}
		}
		amount = *p.ContractAmount
		warning = fmt.Sprintf("contract amount %s kept over derived %s",
			money.FormatYen(*p.ContractAmount), money.FormatYen(derived))
	case p.ContractAmount != nil:
		amount = *p.ContractAmount
	case derivable:
		amount = derived
	default:
		return ComputedAmounts{}, services.Wrap(services.ErrIncompleteData, "calculator", "compute",
			fmt.Sprintf("project %s has neither contract amount nor unit price and day count", p.ID), nil)
	}

	unitPrice, quantity := splitAmount(amount, p)
	return ComputedAmounts{
		Amount:    amount,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		Warning:   warning,
	}, nil
}

func deriveAmount(p project.Project) (int64, bool) {
	if p.UnitPrice == nil || p.DayCount == nil {
		return 0, false
	}
	return *p.UnitPrice * int64(*p.DayCount), true
}

// splitAmount distributes the billable amount over a unit price and quantity.
// Quantity is the day count when positive, else 1 (an engagement billed as a
// single unit). When the amount does not divide evenly over the days the
// whole engagement falls back to a single unit so subtotal always recomputes
// to exactly the billed amount.
func splitAmount(amount int64, p project.Project) (int64, int64) {
	quantity := int64(1)
	if p.DayCount != nil && *p.DayCount > 0 {
		quantity = int64(*p.DayCount)
	}
	if quantity > 1 && amount%quantity != 0 {
		quantity = 1
	}
	return amount / quantity, quantity
}
