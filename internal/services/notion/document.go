package notion

import (
	"strings"
	"time"
)

// Document is one raw page from the source database: an identifier plus an
// opaque bag of typed properties. Only the normalizer interprets the bag;
// downstream components work on typed entities.
type Document struct {
	ID             string              `json:"id"`
	CreatedTime    time.Time           `json:"created_time"`
	LastEditedTime time.Time           `json:"last_edited_time"`
	Properties     map[string]Property `json:"properties"`
}

// Property mirrors the Notion property value union. Unknown types decode
// with only Type set and are ignored by the extractors.
type Property struct {
	Type     string       `json:"type"`
	Title    []RichText   `json:"title,omitempty"`
	RichText []RichText   `json:"rich_text,omitempty"`
	Number   *float64     `json:"number,omitempty"`
	Select   *SelectValue `json:"select,omitempty"`
	Status   *SelectValue `json:"status,omitempty"`
	Date     *DateValue   `json:"date,omitempty"`
	Relation []Relation   `json:"relation,omitempty"`
	Checkbox *bool        `json:"checkbox,omitempty"`
}

// RichText is a single rich-text fragment; only the plain text is used.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// SelectValue is a select or status option.
type SelectValue struct {
	Name string `json:"name"`
}

// DateValue carries the start (and optional end) of a date property.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// Relation references a page in another database.
type Relation struct {
	ID string `json:"id"`
}

// Title returns the concatenated plain text of a title property.
func (d Document) Title(name string) (string, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "title" {
		return "", false
	}
	text := joinPlainText(prop.Title)
	return text, text != ""
}

// Text returns the concatenated plain text of a rich_text property.
func (d Document) Text(name string) (string, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "rich_text" {
		return "", false
	}
	text := joinPlainText(prop.RichText)
	return text, text != ""
}

// Number returns the value of a number property.
func (d Document) Number(name string) (float64, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "number" || prop.Number == nil {
		return 0, false
	}
	return *prop.Number, true
}

// Select returns the selected option name of a select property.
func (d Document) Select(name string) (string, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "select" || prop.Select == nil {
		return "", false
	}
	return prop.Select.Name, prop.Select.Name != ""
}

// Status returns the option name of a status property.
func (d Document) Status(name string) (string, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "status" || prop.Status == nil {
		return "", false
	}
	return prop.Status.Name, prop.Status.Name != ""
}

// Date returns the parsed start of a date property.
func (d Document) Date(name string) (time.Time, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "date" || prop.Date == nil {
		return time.Time{}, false
	}
	parsed, err := parseISOTime(prop.Date.Start)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// Relation returns the ID of the first related page.
func (d Document) Relation(name string) (string, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "relation" || len(prop.Relation) == 0 {
		return "", false
	}
	return prop.Relation[0].ID, prop.Relation[0].ID != ""
}

// Checkbox returns the value of a checkbox property.
func (d Document) Checkbox(name string) (bool, bool) {
	prop, ok := d.Properties[name]
	if !ok || prop.Type != "checkbox" || prop.Checkbox == nil {
		return false, false
	}
	return *prop.Checkbox, true
}

// FirstTitle returns the first title-typed property regardless of name.
// Customer pages keep their display name in the title property, whose label
// varies between databases.
func (d Document) FirstTitle() (string, bool) {
	for _, prop := range d.Properties {
		if prop.Type != "title" {
			continue
		}
		if text := joinPlainText(prop.Title); text != "" {
			return text, true
		}
	}
	return "", false
}

func joinPlainText(fragments []RichText) string {
	if len(fragments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, fragment := range fragments {
		b.WriteString(fragment.PlainText)
	}
	return strings.TrimSpace(b.String())
}

func parseISOTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
