package api

import (
	"time"

	"callscope/internal/store"
)

// FromSyncRun converts a persisted sync run to its API representation.
func FromSyncRun(run store.SyncRun) SyncRun {
	dto := SyncRun{
		RunID:          run.RunID,
		FullSync:       run.FullSync,
		Status:         run.Status,
		Message:        run.Message,
		StartedAt:      formatTime(run.StartedAt),
		FinishedAt:     formatTime(run.FinishedAt),
		InitialDBCount: run.InitialDBCount,
		FinalDBCount:   run.FinalDBCount,
		Added:          run.Added,
		Updated:        run.Updated,
		Skipped:        run.Skipped,
		Failed:         run.Failed,
		CheckedAPI:     run.CheckedAPI,
	}
	if !run.StartedAt.IsZero() && run.FinishedAt.After(run.StartedAt) {
		dto.DurationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}
	return dto
}

// FromSyncRuns converts a slice, never returning nil.
func FromSyncRuns(runs []store.SyncRun) []SyncRun {
	out := make([]SyncRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromSyncRun(run))
	}
	return out
}

// FromConversation converts a stored conversation, dropping its transcript.
func FromConversation(conv store.Conversation) Conversation {
	return Conversation{
		ConversationID:  conv.ExternalID,
		AgentID:         conv.AgentID,
		StartTime:       formatTime(conv.StartTime),
		DurationSeconds: conv.DurationSeconds,
		CostCredits:     conv.CostCredits,
		Status:          conv.Status,
		CallSuccessful:  conv.CallSuccessful,
		Summary:         conv.Summary,
		MessageCount:    conv.MessageCount,
	}
}

// FromConversations converts a slice, never returning nil.
func FromConversations(convs []store.Conversation) []Conversation {
	out := make([]Conversation, 0, len(convs))
	for _, conv := range convs {
		out = append(out, FromConversation(conv))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
