package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callscope/internal/api"
	"callscope/internal/ingest"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var full bool
	var jsonOutput bool

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull conversations from the provider into the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			syncer, err := ctx.newSyncer(st)
			if err != nil {
				return err
			}
			outcome, runErr := syncer.Run(cmd.Context(), ingest.Options{Full: full})
			if runErr != nil && outcome.RunID == "" {
				return runErr
			}
			if jsonOutput {
				if err := writeJSON(cmd, outcome); err != nil {
					return err
				}
				return runErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderOutcome(outcome))
			return runErr
		},
	}
	syncCmd.Flags().BoolVar(&full, "full", false, "Refresh every listed conversation, not only those missing a summary")
	syncCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the run outcome as JSON")

	syncCmd.AddCommand(newSyncHistoryCommand(ctx))
	return syncCmd
}

func newSyncHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			runs, err := st.ListSyncRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			views := api.FromSyncRuns(runs)
			if jsonOutput {
				return writeJSON(cmd, api.SyncHistoryResponse{Runs: views})
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No sync runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for i, run := range runs {
				mode := "incremental"
				if run.FullSync {
					mode = "full"
				}
				rows = append(rows, []string{
					humanize.Time(run.StartedAt),
					mode,
					run.Status,
					strconv.Itoa(run.Added),
					strconv.Itoa(run.Updated),
					strconv.Itoa(run.Skipped),
					strconv.Itoa(run.Failed),
					formatDurationMS(views[i].DurationMS),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Mode", "Status", "Added", "Updated", "Skipped", "Failed", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderOutcome(outcome ingest.Outcome) string {
	mode := "incremental"
	if outcome.FullSync {
		mode = "full"
	}
	return renderSummary("Sync "+outcome.Status, [][2]string{
		{"Run", outcome.RunID},
		{"Mode", mode},
		{"Checked at provider", humanize.Comma(int64(outcome.CheckedAPI))},
		{"Added", humanize.Comma(int64(outcome.Added))},
		{"Updated", humanize.Comma(int64(outcome.Updated))},
		{"Skipped", humanize.Comma(int64(outcome.Skipped))},
		{"Failed", humanize.Comma(int64(outcome.Failed))},
		{"Stored before / after", fmt.Sprintf("%s / %s", humanize.Comma(int64(outcome.InitialDBCount)), humanize.Comma(int64(outcome.FinalDBCount)))},
		{"Took", outcome.FinishedAt.Sub(outcome.StartedAt).Round(time.Millisecond).String()},
		{"Message", outcome.Message},
	})
}

func formatDurationMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}
