package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"callscope/internal/analysis"
	"callscope/internal/report"
)

func newAnalysisCommand(ctx *commandContext) *cobra.Command {
	var startDate, endDate, agentID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Summarize sentiment and themes for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := report.AnalysisQuery(startDate, endDate, agentID)
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			reports, _, err := ctx.newReports(st)
			if err != nil {
				return err
			}
			result, err := reports.Analysis(cmd.Context(), q)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeRawJSON(cmd, result.Data)
			}
			var payload analysis.Payload
			if err := json.Unmarshal(result.Data, &payload); err != nil {
				return fmt.Errorf("decode analysis: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnalysis(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&startDate, "start", "", "First day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "Last day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Restrict to one agent")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the analysis document as JSON")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func renderAnalysis(p analysis.Payload) string {
	var b strings.Builder

	mode := string(p.AnalysisStatus.Mode)
	if p.AnalysisStatus.ModelName != "" && p.AnalysisStatus.Mode == analysis.ModeFull {
		mode += " (" + p.AnalysisStatus.ModelName + ")"
	}
	pairs := [][2]string{
		{"Range", p.Metadata.StartDate + " .. " + p.Metadata.EndDate},
		{"Mode", mode},
		{"Conversations", fmt.Sprintf("%d analyzed of %d", p.Metadata.AnalyzedConversations, p.Metadata.TotalConversationsInRange)},
		{"Overall sentiment", formatSentiment(p.SentimentOverview.Overall)},
		{"Caller sentiment", formatSentiment(p.SentimentOverview.Caller)},
		{"Agent sentiment", formatSentiment(p.SentimentOverview.Agent)},
	}
	if p.Metadata.AgentID != "" {
		pairs = append(pairs, [2]string{"Agent", p.Metadata.AgentID})
	}
	if p.Error != "" {
		pairs = append(pairs, [2]string{"Note", p.Error})
	}
	b.WriteString(renderSummary("Analysis", pairs))
	b.WriteString("\n")

	if len(p.TopThemes) > 0 {
		rows := make([][]string, 0, len(p.TopThemes))
		correlation := make(map[string]analysis.ThemeSentiment, len(p.ThemeSentimentCorrelation))
		for _, ts := range p.ThemeSentimentCorrelation {
			correlation[ts.Theme] = ts
		}
		for _, theme := range p.TopThemes {
			sentiment := ""
			if ts, ok := correlation[theme.Theme]; ok {
				sentiment = strconv.FormatFloat(ts.AverageSentiment, 'f', 2, 64)
			}
			rows = append(rows, []string{
				theme.Theme,
				strconv.Itoa(theme.ConversationCount),
				strconv.Itoa(theme.Mentions),
				sentiment,
			})
		}
		b.WriteString(renderTable(
			[]string{"Theme", "Conversations", "Mentions", "Sentiment"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
		))
		b.WriteString("\n")
	} else {
		b.WriteString("No recurring themes found\n")
	}

	writeQuotes(&b, "Questions", p.CategorizedQuotes.Questions)
	writeQuotes(&b, "Concerns", p.CategorizedQuotes.Concerns)
	writeQuotes(&b, "Positive", p.CategorizedQuotes.Positive)
	return strings.TrimRight(b.String(), "\n")
}

func formatSentiment(s analysis.SentimentSummary) string {
	d := s.Distribution
	return fmt.Sprintf("%s %.2f (+%d =%d -%d)", s.Label, s.Average, d.Positive, d.Neutral, d.Negative)
}

func writeQuotes(b *strings.Builder, title string, quotes []analysis.Quote) {
	if len(quotes) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, q := range quotes {
		fmt.Fprintf(b, "  %q  [%s]\n", q.Text, q.ConversationID)
	}
}
