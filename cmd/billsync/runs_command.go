package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"billsync/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sync run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, runs)
			}

			headers := []string{"Started", "Mode", "Fetched", "Succeeded", "Skipped", "Failed", "Error"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				mode := "sync"
				if run.DryRun {
					mode = "dry-run"
				}
				rows = append(rows, []string{
					run.StartedAt.Local().Format(time.DateTime),
					mode,
					fmt.Sprintf("%d", run.FetchedCount),
					fmt.Sprintf("%d", run.SuccessCount),
					fmt.Sprintf("%d", run.SkippedCount),
					fmt.Sprintf("%d", run.FailedCount),
					run.Error,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			fmt.Fprintf(cmd.OutOrStdout(), "%d run(s)\n", len(runs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to display")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit run history as JSON")

	return cmd
}
