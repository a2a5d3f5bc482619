package invoice

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"billsync/internal/project"
	"billsync/internal/services"
)

// Priced pairs a project with its computed billing figures.
type Priced struct {
	Project project.Project
	Amounts ComputedAmounts
}

// MappingError reports a customer group that could not be assembled into an
// invoice. The contributing project IDs are carried so the pipeline can
// annotate each record.
type MappingError struct {
	CustomerID string
	ProjectIDs []string
	Reason     string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("customer %q: %s", e.CustomerID, e.Reason)
}

func (e *MappingError) Unwrap() error {
	return services.ErrMapping
}

// BuildFailure couples a MappingError with the group it rejected.
type BuildFailure struct {
	Err *MappingError
}

// Mapper assembles validated invoices from priced projects.
type Mapper struct {
	DueTermDays    int
	TaxRatePercent int64
	Currency       string
}

// NewMapper constructs a Mapper.
func NewMapper(dueTermDays int, taxRatePercent int64, currency string) Mapper {
	return Mapper{
		DueTermDays:    dueTermDays,
		TaxRatePercent: taxRatePercent,
		Currency:       currency,
	}
}

// BuildInvoices groups the priced projects by customer and assembles one
// invoice per customer. Line items are ordered by period start (ties broken
// by project ID) so re-running on the same input set yields identical
// invoices and correlation keys regardless of input ordering. Groups whose
// customer lacks a display name are returned as failures, not errors; sibling
// groups are unaffected.
func (m Mapper) BuildInvoices(issueDate time.Time, priced []Priced) ([]Invoice, []BuildFailure) {
	groups := make(map[string][]Priced)
	var customerOrder []string
	for _, pr := range priced {
		id := pr.Project.Customer.ID
		if _, seen := groups[id]; !seen {
			customerOrder = append(customerOrder, id)
		}
		groups[id] = append(groups[id], pr)
	}

	var invoices []Invoice
	var failures []BuildFailure
	for _, customerID := range customerOrder {
		group := groups[customerID]
		inv, err := m.buildInvoice(issueDate, group)
		if err != nil {
			failures = append(failures, BuildFailure{Err: err})
			continue
		}
		invoices = append(invoices, inv)
	}
	return invoices, failures
}

func (m Mapper) buildInvoice(issueDate time.Time, group []Priced) (Invoice, *MappingError) {
	customer := group[0].Project.Customer
	ids := make([]string, 0, len(group))
	for _, pr := range group {
		ids = append(ids, pr.Project.ID)
	}

	if strings.TrimSpace(customer.Name) == "" {
		return Invoice{}, &MappingError{
			CustomerID: customer.ID,
			ProjectIDs: ids,
			Reason:     "customer did not resolve to a display name",
		}
	}

	ordered := make([]Priced, len(group))
	copy(ordered, group)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Project, ordered[j].Project
		if !a.PeriodStart.Equal(b.PeriodStart) {
			return a.PeriodStart.Before(b.PeriodStart)
		}
		return a.ID < b.ID
	})

	inv := Invoice{
		Customer:       customer,
		IssueDate:      issueDate,
		DueDate:        issueDate.AddDate(0, 0, m.DueTermDays),
		Currency:       m.Currency,
		Status:         StatusDraft,
		TaxRatePercent: m.TaxRatePercent,
	}
	for _, pr := range ordered {
		inv.Items = append(inv.Items, LineItem{
			ProjectID:   pr.Project.ID,
			Description: itemDescription(pr.Project),
			UnitPrice:   pr.Amounts.UnitPrice,
			Quantity:    pr.Amounts.Quantity,
		})
		if pr.Amounts.Warning != "" {
			inv.Warnings = append(inv.Warnings, fmt.Sprintf("%s: %s", pr.Project.ID, pr.Amounts.Warning))
		}
	}
	inv.CorrelationKey = CorrelationKey(inv.ProjectIDs())
	inv.Note = buildNote(ordered)
	return inv, nil
}

// itemDescription composes the line description from the project title and
// period plus the descriptive fields the source carries.
func itemDescription(p project.Project) string {
	parts := []string{p.Title}
	if period := p.FormatPeriod(); period != "" {
		parts = append(parts, fmt.Sprintf("実施期間: %s", period))
	}
	if p.AttendeeCount != nil {
		parts = append(parts, fmt.Sprintf("参加人数: %d名", *p.AttendeeCount))
	}
	if p.DayCount != nil && *p.DayCount > 0 {
		parts = append(parts, fmt.Sprintf("日数: %d日", *p.DayCount))
	}
	if p.Location != "" {
		parts = append(parts, fmt.Sprintf("場所: %s", p.Location))
	}
	if p.Format != "" {
		parts = append(parts, fmt.Sprintf("形式: %s", p.Format.Label()))
	}
	return strings.Join(parts, " / ")
}

func buildNote(group []Priced) string {
	ids := make([]string, 0, len(group))
	for _, pr := range group {
		ids = append(ids, pr.Project.ID)
	}
	return "案件ID: " + strings.Join(ids, ", ")
}
