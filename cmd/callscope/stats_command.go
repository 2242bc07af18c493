package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callscope/internal/report"
	"callscope/internal/stats"
)

var weekdayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var timeframe, startDate, endDate, agentID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show activity, duration, and cost rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			reports, _, err := ctx.newReports(st)
			if err != nil {
				return err
			}
			q, err := report.DashboardQuery(timeframe, startDate, endDate, agentID, reports.DefaultTimeframe(), reports.Now())
			if err != nil {
				return err
			}
			dashboard, err := reports.Dashboard(cmd.Context(), q)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, dashboard)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDashboard(dashboard))
			return nil
		},
	}
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "today, 7d, 30d, 90d, or mtd (default from config)")
	cmd.Flags().StringVar(&startDate, "start", "", "First day to include (YYYY-MM-DD); overrides --timeframe")
	cmd.Flags().StringVar(&endDate, "end", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Restrict to one agent")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderDashboard(d stats.Dashboard) string {
	var b strings.Builder

	peak := "-"
	if d.PeakTimeHour != nil {
		peak = fmt.Sprintf("%02d:00", *d.PeakTimeHour)
	}
	budget := "not set"
	if d.MonthlyBudget > 0 {
		budget = fmt.Sprintf("%s of %s (%.1f%%)",
			humanize.CommafWithDigits(d.MonthToDateCost, 2),
			humanize.CommafWithDigits(d.MonthlyBudget, 2),
			d.BudgetUsedPercent)
	}
	pairs := [][2]string{
		{"Range", d.StartDate + " .. " + d.EndDate},
		{"Conversations", humanize.Comma(int64(d.TotalConversationsPeriod))},
		{"Average duration", formatSeconds(d.AvgDurationSeconds)},
		{"Average cost", humanize.CommafWithDigits(d.AvgCostCredits, 2)},
		{"Total cost", humanize.CommafWithDigits(d.TotalCostCredits, 2)},
		{"Completion rate", fmt.Sprintf("%.1f%%", d.CompletionRate)},
		{"Peak hour (UTC)", peak},
		{"Month to date", humanize.CommafWithDigits(d.MonthToDateCost, 2)},
		{"Budget", budget},
	}
	if d.AgentID != "" {
		pairs = append(pairs, [2]string{"Agent", d.AgentID})
	}
	b.WriteString(renderSummary("Dashboard", pairs))
	b.WriteString("\n")

	dayRows := make([][]string, 0, len(weekdayNames))
	for i, name := range weekdayNames {
		dayRows = append(dayRows, []string{name, strconv.Itoa(d.ActivityByDay[strconv.Itoa(i)])})
	}
	b.WriteString(renderTable([]string{"Weekday", "Calls"}, dayRows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	days := make([]string, 0, len(d.DailyVolume))
	for day := range d.DailyVolume {
		days = append(days, day)
	}
	slices.Sort(days)
	dailyRows := make([][]string, 0, len(days))
	for _, day := range days {
		if d.DailyVolume[day] == 0 {
			continue
		}
		dailyRows = append(dailyRows, []string{
			day,
			humanize.Comma(int64(d.DailyVolume[day])),
			formatSeconds(d.DailyAvgDuration[day]),
		})
	}
	if len(dailyRows) == 0 {
		b.WriteString("No conversations in range")
		return b.String()
	}
	b.WriteString(renderTable([]string{"Day", "Calls", "Avg duration"}, dailyRows,
		[]columnAlignment{alignLeft, alignRight, alignRight}))
	return b.String()
}

func formatSeconds(seconds float64) string {
	total := int(seconds + 0.5)
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	return fmt.Sprintf("%dm%02ds", total/60, total%60)
}
