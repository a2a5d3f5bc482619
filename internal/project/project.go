package project

import "time"

// Status is the lifecycle state of a training engagement in the source
// database.
type Status string

const (
	StatusReceived   Status = "received"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var statusLabels = map[Status]string{
	StatusReceived:   "受注",
	StatusInProgress: "実施中",
	StatusCompleted:  "完了",
}

// Label returns the source-database display label for the status.
func (s Status) Label() string {
	return statusLabels[s]
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatusLabel maps a source-database label back to a Status.
func ParseStatusLabel(label string) (Status, bool) {
	for status, l := range statusLabels {
		if l == label {
			return status, true
		}
	}
	return "", false
}

// DeliveryFormat describes how the training is delivered.
type DeliveryFormat string

const (
	FormatOnline  DeliveryFormat = "online"
	FormatOffline DeliveryFormat = "offline"
	FormatHybrid  DeliveryFormat = "hybrid"
)

var formatLabels = map[DeliveryFormat]string{
	FormatOnline:  "オンライン",
	FormatOffline: "オフライン",
	FormatHybrid:  "ハイブリッド",
}

// Label returns the source-database display label for the format.
func (f DeliveryFormat) Label() string {
	return formatLabels[f]
}

// ParseFormatLabel maps a source-database label back to a DeliveryFormat.
func ParseFormatLabel(label string) (DeliveryFormat, bool) {
	for format, l := range formatLabels {
		if l == label {
			return format, true
		}
	}
	return "", false
}

// Customer is a pure lookup entity resolved from the source database. Never
// mutated by this system.
type Customer struct {
	ID   string
	Name string
}

// Project is the canonical record of one training engagement. Optional
// numeric fields are pointers so "absent" stays distinguishable from zero.
// Range constraints are enforced by the normalizer via the validate tags.
type Project struct {
	ID     string
	Title  string
	Status Status

	PeriodStart time.Time
	PeriodEnd   time.Time // zero while in progress

	Customer Customer

	UnitPrice      *int64 `validate:"omitempty,gte=0"`
	AttendeeCount  *int   `validate:"omitempty,gte=0,lte=100"`
	DayCount       *int   `validate:"omitempty,gte=0"`
	ContractAmount *int64 `validate:"omitempty,gte=0"`

	Format   DeliveryFormat
	Location string
	Notes    string

	Invoiced bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPeriodEnd reports whether the engagement end is known.
func (p Project) HasPeriodEnd() bool {
	return !p.PeriodEnd.IsZero()
}

// FormatPeriod renders the engagement period for line-item descriptions.
func (p Project) FormatPeriod() string {
	if p.PeriodStart.IsZero() {
		return ""
	}
	start := p.PeriodStart.Format("2006-01-02")
	if p.HasPeriodEnd() && !p.PeriodEnd.Equal(p.PeriodStart) {
		return start + "〜 " + p.PeriodEnd.Format("2006-01-02")
	}
	return start
}
