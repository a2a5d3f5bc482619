package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"billsync/internal/money"
	"billsync/internal/project"
	"billsync/internal/services/notion"
)

type fetchOptions struct {
	status     string
	limit      int
	year       int
	month      int
	dateFrom   string
	dateTo     string
	amountMin  int64
	amountMax  int64
	format     string
	outputPath string
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	opts := fetchOptions{amountMin: -1, amountMax: -1}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and display project records from the source database",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := ctx.notionClient()
			if err != nil {
				return err
			}

			query, err := buildFetchQuery(opts)
			if err != nil {
				return err
			}

			docs, err := client.QueryDocuments(cmd.Context(), query)
			if err != nil {
				return err
			}

			normalizer := project.NewNormalizer()
			records := make([]project.Project, 0, len(docs))
			for _, doc := range docs {
				record, err := normalizer.Normalize(doc)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipping record %s: %v\n", doc.ID, err)
					continue
				}
				records = append(records, record)
			}

			out := cmd.OutOrStdout()
			if opts.outputPath != "" {
				file, err := os.Create(opts.outputPath)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer file.Close()
				out = file
			}

			switch strings.ToLower(opts.format) {
			case "table", "":
				fmt.Fprintln(out, renderProjectTable(records))
				fmt.Fprintf(out, "%d record(s)\n", len(records))
			case "detailed":
				renderProjectsDetailed(out, records)
			case "json":
				return writeProjectsJSON(out, records)
			case "csv":
				return writeProjectsCSV(out, records)
			default:
				return fmt.Errorf("unsupported format %q (expected table, detailed, json, or csv)", opts.format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.status, "status", "", "Filter by status (received, in_progress, completed)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of records to fetch (0 = no limit)")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Filter by engagement start year")
	cmd.Flags().IntVar(&opts.month, "month", 0, "Filter by engagement start month (requires --year)")
	cmd.Flags().StringVar(&opts.dateFrom, "date-from", "", "Filter by engagement start on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.dateTo, "date-to", "", "Filter by engagement start on or before (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&opts.amountMin, "amount-min", -1, "Filter by minimum contract amount")
	cmd.Flags().Int64Var(&opts.amountMax, "amount-max", -1, "Filter by maximum contract amount")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table, detailed, json, or csv")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write output to a file instead of stdout")

	return cmd
}

func buildFetchQuery(opts fetchOptions) (notion.Query, error) {
	var filters []notion.Filter

	if opts.status != "" {
		label, err := project.StatusFilterLabel(opts.status)
		if err != nil {
			return notion.Query{}, err
		}
		filters = append(filters, notion.Filter{Property: project.PropStatus, StatusEquals: label})
	}

	dateFrom, dateTo := opts.dateFrom, opts.dateTo
	if opts.year != 0 {
		if dateFrom != "" || dateTo != "" {
			return notion.Query{}, fmt.Errorf("--year/--month cannot be combined with --date-from/--date-to")
		}
		dateFrom, dateTo = yearMonthRange(opts.year, opts.month)
	} else if opts.month != 0 {
		return notion.Query{}, fmt.Errorf("--month requires --year")
	}
	if dateFrom != "" || dateTo != "" {
		filters = append(filters, notion.Filter{
			Property:       project.PropStart,
			DateOnOrAfter:  dateFrom,
			DateOnOrBefore: dateTo,
		})
	}

	if opts.amountMin >= 0 || opts.amountMax >= 0 {
		filter := notion.Filter{Property: project.PropAmount}
		if opts.amountMin >= 0 {
			min := float64(opts.amountMin)
			filter.NumberMin = &min
		}
		if opts.amountMax >= 0 {
			max := float64(opts.amountMax)
			filter.NumberMax = &max
		}
		filters = append(filters, filter)
	}

	return notion.Query{Filters: filters, Limit: opts.limit}, nil
}

// yearMonthRange converts a year (and optional month) into an inclusive
// date range over engagement starts.
func yearMonthRange(year, month int) (string, string) {
	if month < 1 || month > 12 {
		first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
		return first.Format("2006-01-02"), last.Format("2006-01-02")
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}

func renderProjectTable(records []project.Project) string {
	headers := []string{"Title", "Status", "Period", "Amount", "Days", "Format", "Invoiced"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.Title,
			record.Status.Label(),
			record.FormatPeriod(),
			formatOptionalAmount(record.ContractAmount),
			formatOptionalCount(record.DayCount),
			record.Format.Label(),
			yesNo(record.Invoiced),
		})
	}
	return renderTable(headers, rows, aligns)
}

func renderProjectsDetailed(out io.Writer, records []project.Project) {
	for i, record := range records {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\n", record.Title)
		fmt.Fprintf(out, "  ID:        %s\n", record.ID)
		fmt.Fprintf(out, "  Status:    %s\n", record.Status.Label())
		fmt.Fprintf(out, "  Period:    %s\n", record.FormatPeriod())
		fmt.Fprintf(out, "  Amount:    %s\n", formatOptionalAmount(record.ContractAmount))
		fmt.Fprintf(out, "  UnitPrice: %s\n", formatOptionalAmount(record.UnitPrice))
		fmt.Fprintf(out, "  Attendees: %s\n", formatOptionalCount(record.AttendeeCount))
		fmt.Fprintf(out, "  Days:      %s\n", formatOptionalCount(record.DayCount))
		fmt.Fprintf(out, "  Format:    %s\n", record.Format.Label())
		fmt.Fprintf(out, "  Location:  %s\n", record.Location)
		fmt.Fprintf(out, "  Invoiced:  %s\n", yesNo(record.Invoiced))
		if record.Notes != "" {
			fmt.Fprintf(out, "  Notes:     %s\n", record.Notes)
		}
	}
	fmt.Fprintf(out, "\n%d record(s)\n", len(records))
}

type projectJSON struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	PeriodStart    string `json:"period_start,omitempty"`
	PeriodEnd      string `json:"period_end,omitempty"`
	CustomerID     string `json:"customer_id"`
	ContractAmount *int64 `json:"contract_amount,omitempty"`
	UnitPrice      *int64 `json:"unit_price,omitempty"`
	AttendeeCount  *int   `json:"attendee_count,omitempty"`
	DayCount       *int   `json:"day_count,omitempty"`
	Format         string `json:"format,omitempty"`
	Location       string `json:"location,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Invoiced       bool   `json:"invoiced"`
}

func writeProjectsJSON(out io.Writer, records []project.Project) error {
	payload := make([]projectJSON, 0, len(records))
	for _, record := range records {
		item := projectJSON{
			ID:             record.ID,
			Title:          record.Title,
			Status:         string(record.Status),
			CustomerID:     record.Customer.ID,
			ContractAmount: record.ContractAmount,
			UnitPrice:      record.UnitPrice,
			AttendeeCount:  record.AttendeeCount,
			DayCount:       record.DayCount,
			Format:         string(record.Format),
			Location:       record.Location,
			Notes:          record.Notes,
			Invoiced:       record.Invoiced,
		}
		if !record.PeriodStart.IsZero() {
			item.PeriodStart = record.PeriodStart.Format("2006-01-02")
		}
		if record.HasPeriodEnd() {
			item.PeriodEnd = record.PeriodEnd.Format("2006-01-02")
		}
		payload = append(payload, item)
	}
	return writeIndentedJSON(out, payload)
}

func writeProjectsCSV(out io.Writer, records []project.Project) error {
	writer := csv.NewWriter(out)
	header := []string{"id", "title", "status", "period_start", "period_end", "customer_id",
		"contract_amount", "unit_price", "attendee_count", "day_count", "format", "location", "invoiced"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, record := range records {
		row := []string{
			record.ID,
			record.Title,
			string(record.Status),
			formatDateCSV(record.PeriodStart),
			formatDateCSV(record.PeriodEnd),
			record.Customer.ID,
			csvOptionalInt64(record.ContractAmount),
			csvOptionalInt64(record.UnitPrice),
			csvOptionalInt(record.AttendeeCount),
			csvOptionalInt(record.DayCount),
			string(record.Format),
			record.Location,
			yesNo(record.Invoiced),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatOptionalAmount(value *int64) string {
	if value == nil {
		return "-"
	}
	return money.FormatYen(*value)
}

func formatOptionalCount(value *int) string {
	if value == nil {
		return "-"
	}
	return strconv.Itoa(*value)
}

func formatDateCSV(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format("2006-01-02")
}

func csvOptionalInt64(value *int64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatInt(*value, 10)
}

func csvOptionalInt(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
