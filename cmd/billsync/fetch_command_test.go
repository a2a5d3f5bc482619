package main

import (
	"bytes"
	"strings"
	"testing"

	"billsync/internal/project"
)

func TestBuildFetchQueryStatusFilter(t *testing.T) {
	query, err := buildFetchQuery(fetchOptions{status: "completed", amountMin: -1, amountMax: -1})
	if err != nil {
		t.Fatalf("buildFetchQuery: %v", err)
	}
	if len(query.Filters) != 1 {
		t.Fatalf("filters = %d", len(query.Filters))
	}
	filter := query.Filters[0]
	if filter.Property != project.PropStatus || filter.StatusEquals != "完了" {
		t.Errorf("filter = %+v", filter)
	}
}

func TestBuildFetchQueryYearMonth(t *testing.T) {
	query, err := buildFetchQuery(fetchOptions{year: 2026, month: 2, amountMin: -1, amountMax: -1})
	if err != nil {
		t.Fatalf("buildFetchQuery: %v", err)
	}
	if len(query.Filters) != 1 {
		t.Fatalf("filters = %d", len(query.Filters))
	}
	filter := query.Filters[0]
	if filter.DateOnOrAfter != "2026-02-01" || filter.DateOnOrBefore != "2026-02-28" {
		t.Errorf("date range = %s .. %s", filter.DateOnOrAfter, filter.DateOnOrBefore)
	}
}

func TestBuildFetchQueryYearOnly(t *testing.T) {
	query, err := buildFetchQuery(fetchOptions{year: 2026, amountMin: -1, amountMax: -1})
	if err != nil {
		t.Fatalf("buildFetchQuery: %v", err)
	}
	filter := query.Filters[0]
	if filter.DateOnOrAfter != "2026-01-01" || filter.DateOnOrBefore != "2026-12-31" {
		t.Errorf("date range = %s .. %s", filter.DateOnOrAfter, filter.DateOnOrBefore)
	}
}

func TestBuildFetchQueryRejectsConflictingDates(t *testing.T) {
	_, err := buildFetchQuery(fetchOptions{year: 2026, dateFrom: "2026-01-01", amountMin: -1, amountMax: -1})
	if err == nil {
		t.Fatal("expected error for --year with --date-from")
	}
	_, err = buildFetchQuery(fetchOptions{month: 3, amountMin: -1, amountMax: -1})
	if err == nil {
		t.Fatal("expected error for --month without --year")
	}
}

func TestBuildFetchQueryAmountRange(t *testing.T) {
	query, err := buildFetchQuery(fetchOptions{amountMin: 10000, amountMax: 500000})
	if err != nil {
		t.Fatalf("buildFetchQuery: %v", err)
	}
	if len(query.Filters) != 1 {
		t.Fatalf("filters = %d", len(query.Filters))
	}
	filter := query.Filters[0]
	if filter.Property != project.PropAmount {
		t.Errorf("property = %s", filter.Property)
	}
	if filter.NumberMin == nil || *filter.NumberMin != 10000 {
		t.Errorf("NumberMin = %v", filter.NumberMin)
	}
	if filter.NumberMax == nil || *filter.NumberMax != 500000 {
		t.Errorf("NumberMax = %v", filter.NumberMax)
	}
}

func TestWriteProjectsCSV(t *testing.T) {
	amount := int64(100000)
	records := []project.Project{{
		ID:             "p1",
		Title:          "新人研修",
		Status:         project.StatusCompleted,
		Customer:       project.Customer{ID: "cust-1"},
		ContractAmount: &amount,
	}}

	var buf bytes.Buffer
	if err := writeProjectsCSV(&buf, records); err != nil {
		t.Fatalf("writeProjectsCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,title,status") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "新人研修") || !strings.Contains(lines[1], "100000") {
		t.Errorf("row = %q", lines[1])
	}
}
