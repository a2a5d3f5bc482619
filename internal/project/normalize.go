package project

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"billsync/internal/services"
	"billsync/internal/services/notion"
)

// Source-database property names. The schema is fixed by the Notion database
// this tool was built for; unknown properties on a page are simply ignored.
const (
	PropTitle     = "案件名"
	PropStatus    = "ステータス"
	PropStart     = "開始"
	PropEnd       = "終了"
	PropCustomer  = "顧客名"
	PropAmount    = "金額"
	PropUnitPrice = "単価"
	PropAttendees = "参加人数"
	PropDays      = "日数"
	PropLocation  = "研修場所"
	PropFormat    = "研修形式"
	PropNotes     = "備考"
	PropInvoiced  = "請求済み"
)

// FieldError reports a problem with a single source field. It wraps
// services.ErrMissingField or services.ErrValidation.
type FieldError struct {
	Field      string
	Constraint string
	marker     error
}

func (e *FieldError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("field %q is missing", e.Field)
	}
	return fmt.Sprintf("field %q violates constraint %s", e.Field, e.Constraint)
}

func (e *FieldError) Unwrap() error {
	return e.marker
}

func missingField(field string) *FieldError {
	return &FieldError{Field: field, marker: services.ErrMissingField}
}

func invalidField(field, constraint string) *FieldError {
	return &FieldError{Field: field, Constraint: constraint, marker: services.ErrValidation}
}

// Normalizer converts raw source documents into typed Project entities.
// Pure transform: no I/O, no shared state beyond the validator instance.
type Normalizer struct {
	validate *validator.Validate
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

// Normalize extracts typed fields from an opaque document. Missing required
// fields yield a FieldError wrapping ErrMissingField naming the field;
// type or range violations yield a FieldError wrapping ErrValidation naming
// the field and constraint. Values are never silently clamped.
func (n *Normalizer) Normalize(doc notion.Document) (Project, error) {
	var p Project
	p.ID = doc.ID
	p.CreatedAt = doc.CreatedTime
	p.UpdatedAt = doc.LastEditedTime

	title, ok := doc.Title(PropTitle)
	if !ok {
		return Project{}, missingField(PropTitle)
	}
	p.Title = title

	statusLabel, ok := doc.Status(PropStatus)
	if !ok {
		return Project{}, missingField(PropStatus)
	}
	status, ok := ParseStatusLabel(statusLabel)
	if !ok {
		return Project{}, invalidField(PropStatus, fmt.Sprintf("unknown status %q", statusLabel))
	}
	p.Status = status

	customerID, ok := doc.Relation(PropCustomer)
	if !ok {
		return Project{}, missingField(PropCustomer)
	}
	p.Customer = Customer{ID: customerID}

	if start, ok := doc.Date(PropStart); ok {
		p.PeriodStart = start
	}
	if end, ok := doc.Date(PropEnd); ok {
		p.PeriodEnd = end
	}

	var err error
	if p.UnitPrice, err = wholeAmount(doc, PropUnitPrice); err != nil {
		return Project{}, err
	}
	if p.ContractAmount, err = wholeAmount(doc, PropAmount); err != nil {
		return Project{}, err
	}
	if p.AttendeeCount, err = wholeCount(doc, PropAttendees); err != nil {
		return Project{}, err
	}
	if p.DayCount, err = wholeCount(doc, PropDays); err != nil {
		return Project{}, err
	}

	if label, ok := doc.Select(PropFormat); ok {
		format, known := ParseFormatLabel(label)
		if !known {
			return Project{}, invalidField(PropFormat, fmt.Sprintf("unknown format %q", label))
		}
		p.Format = format
	}
	if location, ok := doc.Text(PropLocation); ok {
		p.Location = location
	}
	if notes, ok := doc.Text(PropNotes); ok {
		p.Notes = notes
	}
	if invoiced, ok := doc.Checkbox(PropInvoiced); ok {
		p.Invoiced = invoiced
	}

	if err := n.checkRanges(p); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (n *Normalizer) checkRanges(p Project) error {
	err := n.validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalidField("project", err.Error())
	}
	first := verrs[0]
	field := propertyForField(first.StructField())
	constraint := first.Tag()
	if first.Param() != "" {
		constraint = fmt.Sprintf("%s=%s", first.Tag(), first.Param())
	}
	return invalidField(field, constraint)
}

func propertyForField(structField string) string {
	switch structField {
	case "UnitPrice":
		return PropUnitPrice
	case "AttendeeCount":
		return PropAttendees
	case "DayCount":
		return PropDays
	case "ContractAmount":
		return PropAmount
	default:
		return structField
	}
}

func wholeAmount(doc notion.Document, prop string) (*int64, error) {
	raw, ok := doc.Number(prop)
	if !ok {
		return nil, nil
	}
	if raw != math.Trunc(raw) {
		return nil, invalidField(prop, "must be a whole amount")
	}
	value := int64(raw)
	return &value, nil
}

func wholeCount(doc notion.Document, prop string) (*int, error) {
	raw, ok := doc.Number(prop)
	if !ok {
		return nil, nil
	}
	if raw != math.Trunc(raw) {
		return nil, invalidField(prop, "must be a whole number")
	}
	value := int(raw)
	return &value, nil
}

// StatusFilterLabel converts a CLI status argument (either the canonical
// value or the source label) into the source label used in queries.
func StatusFilterLabel(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if status := Status(trimmed); status.Valid() {
		return status.Label(), nil
	}
	if _, ok := ParseStatusLabel(trimmed); ok {
		return trimmed, nil
	}
	return "", fmt.Errorf("unknown status %q", value)
}
