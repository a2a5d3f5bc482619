package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"billsync/internal/invoice"
	"billsync/internal/logging"
	"billsync/internal/pipeline"
	"billsync/internal/project"
	"billsync/internal/runlock"
	"billsync/internal/runstore"
	"billsync/internal/submission"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun    bool
		assumeYes bool
		status    string
		limit     int
		issueDate string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Build invoices from completed projects and submit them",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, cfg, err := ctx.notionClient()
			if err != nil {
				return err
			}

			opts := pipeline.RunOptions{DryRun: dryRun, Limit: limit}
			if status != "" {
				if _, err := project.StatusFilterLabel(status); err != nil {
					return err
				}
				opts.Status = project.Status(status)
			}
			if issueDate != "" {
				parsed, err := time.Parse("2006-01-02", issueDate)
				if err != nil {
					return fmt.Errorf("parse --issue-date: %w", err)
				}
				opts.IssueDate = parsed
			}

			if !dryRun && !assumeYes {
				confirmed, err := confirm(cmd, "Submit invoices to the billing service?")
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			logger, cleanup, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			slog.SetDefault(logger)

			var (
				submitter pipeline.Submitter
				ledger    pipeline.RunLedger
			)
			store, err := runstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			ledger = store

			if dryRun {
				submitter = noopSubmitter{}
			} else {
				billing, _, err := ctx.billingClient()
				if err != nil {
					return err
				}
				lock := runlock.New(cfg.LockPath())
				if err := lock.Acquire(); err != nil {
					return err
				}
				defer lock.Release()
				submitter = submission.NewController(cfg, billing, store, logger)
			}

			report, runErr := pipeline.New(cfg, source, submitter, ledger, logger).Run(cmd.Context(), opts)
			renderRunReport(cmd, report)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build and display invoices without submitting")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the submission confirmation prompt")
	cmd.Flags().StringVar(&status, "status", "", "Project status to sync (default completed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of records to process (0 = no limit)")
	cmd.Flags().StringVar(&issueDate, "issue-date", "", "Invoice issue date (YYYY-MM-DD, default today)")

	return cmd
}

// noopSubmitter backs dry runs; the orchestrator never calls it because
// dry runs stop before submission, but the pipeline type still wants one.
type noopSubmitter struct{}

func (noopSubmitter) Submit(_ context.Context, inv invoice.Invoice) submission.Result {
	return submission.Result{CorrelationKey: inv.CorrelationKey, State: submission.StateDraft}
}

func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func renderRunReport(cmd *cobra.Command, report *pipeline.RunReport) {
	out := cmd.OutOrStdout()
	outcomes := report.Outcomes()

	if len(outcomes) > 0 {
		headers := []string{"Project", "Result", "Detail", "Invoice", "Attempts"}
		aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
		rows := make([][]string, 0, len(outcomes))
		for _, outcome := range outcomes {
			title := outcome.ProjectTitle
			if title == "" {
				title = outcome.ProjectID
			}
			attempts := ""
			if outcome.Attempts > 0 {
				attempts = fmt.Sprintf("%d", outcome.Attempts)
			}
			rows = append(rows, []string{title, string(outcome.Kind), outcome.Detail, outcome.InvoiceID, attempts})
		}
		fmt.Fprintln(out, renderTable(headers, rows, aligns))
	}

	success, skipped, failed := report.Counts()
	mode := ""
	if report.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "Fetched %d, succeeded %d, skipped %d, failed %d%s\n",
		report.FetchedCount, success, skipped, failed, mode)
}
