package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"callscope/internal/config"
	"callscope/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Conversation builds a conversation with alternating caller/agent messages
// spaced ten seconds apart.
func Conversation(externalID, agentID string, start time.Time, texts ...string) store.Conversation {
	conv := store.Conversation{
		ExternalID:      externalID,
		AgentID:         agentID,
		CreatedAt:       start,
		StartTime:       start,
		DurationSeconds: 10 * len(texts),
		Status:          "done",
		Summary:         fmt.Sprintf("summary of %s", externalID),
	}
	for i, text := range texts {
		role := store.RoleCaller
		if i%2 == 1 {
			role = store.RoleAgent
		}
		offset := float64(i * 10)
		conv.Messages = append(conv.Messages, store.Message{
			Role:          role,
			Text:          text,
			OffsetSeconds: offset,
			Timestamp:     start.Add(time.Duration(offset) * time.Second),
		})
	}
	return conv
}

// MustInsert stores the conversation or fails the test.
func MustInsert(t testing.TB, st *store.Store, conv store.Conversation) store.Conversation {
	t.Helper()

	if err := st.InsertConversation(context.Background(), &conv); err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}
	return conv
}
