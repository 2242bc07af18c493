package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"callscope/internal/api"
	"callscope/internal/store"
)

const summaryPreviewRunes = 60

func newConversationsCommand(ctx *commandContext) *cobra.Command {
	conversationsCmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect locally stored conversations",
	}
	conversationsCmd.AddCommand(newConversationsListCommand(ctx))
	return conversationsCmd
}

func newConversationsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var agentID string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			convs, err := st.ListConversations(cmd.Context(), store.ListFilter{AgentID: agentID, Limit: limit})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.ConversationListResponse{Conversations: api.FromConversations(convs)})
			}
			out := cmd.OutOrStdout()
			if len(convs) == 0 {
				fmt.Fprintln(out, "No conversations stored; run `callscope sync` first")
				return nil
			}
			rows := make([][]string, 0, len(convs))
			for _, conv := range convs {
				summary := conv.Summary
				if summary == "" {
					summary = "(pending)"
				}
				rows = append(rows, []string{
					conv.ExternalID,
					conv.AgentID,
					humanize.Time(conv.StartTime),
					formatSeconds(float64(conv.DurationSeconds)),
					strconv.Itoa(conv.MessageCount),
					humanize.CommafWithDigits(conv.CostCredits, 2),
					preview(summary, summaryPreviewRunes),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Agent", "Started", "Duration", "Messages", "Cost", "Summary"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Number of conversations to show")
	cmd.Flags().StringVar(&agentID, "agent", "", "Restrict to one agent")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
