package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"callscope/internal/store"
	"callscope/internal/testsupport"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestInsertAndGetConversation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	conv := testsupport.MustInsert(t, st, testsupport.Conversation("c-1", "agent-a", base, "hello", "hi there", ""))
	if conv.ID == 0 {
		t.Fatal("expected conversation ID to be assigned")
	}
	if conv.MessageCount != 3 {
		t.Fatalf("expected message count 3, got %d", conv.MessageCount)
	}

	fetched, err := st.GetConversation(ctx, "c-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected conversation")
	}
	if !fetched.StartTime.Equal(base) {
		t.Fatalf("unexpected start time %v", fetched.StartTime)
	}
	if len(fetched.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(fetched.Messages))
	}
	if fetched.Messages[2].Text != "" || fetched.Messages[1].Role != store.RoleAgent {
		t.Fatalf("unexpected messages: %+v", fetched.Messages)
	}
	if !fetched.Messages[1].Timestamp.Equal(base.Add(10 * time.Second)) {
		t.Fatalf("unexpected message timestamp %v", fetched.Messages[1].Timestamp)
	}

	missing, err := st.GetConversation(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown id, got %v, %v", missing, err)
	}
}

func TestInsertRejectsDuplicateExternalID(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.MustInsert(t, st, testsupport.Conversation("dup", "a", base, "x"))

	conv := testsupport.Conversation("dup", "a", base, "y")
	err := st.InsertConversation(context.Background(), &conv)
	if !errors.Is(err, store.ErrConversationExists) {
		t.Fatalf("expected ErrConversationExists, got %v", err)
	}
	count, err := st.CountConversations(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected one row, got %d (%v)", count, err)
	}
}

func TestUpdateReplacesMessagesAndSummary(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	conv := testsupport.Conversation("c-2", "a", base, "one", "two", "three")
	conv.Summary = ""
	testsupport.MustInsert(t, st, conv)

	index, err := st.SummaryIndex(ctx)
	if err != nil {
		t.Fatalf("SummaryIndex failed: %v", err)
	}
	if has, ok := index["c-2"]; !ok || has {
		t.Fatalf("expected c-2 present without summary, got %v %v", has, ok)
	}

	updated := testsupport.Conversation("c-2", "a", base, "only")
	updated.Summary = "now summarized"
	if err := st.UpdateConversation(ctx, &updated); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}

	fetched, err := st.GetConversation(ctx, "c-2")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if fetched.Summary != "now summarized" || !fetched.HasSummary() {
		t.Fatalf("summary not updated: %+v", fetched)
	}
	if len(fetched.Messages) != 1 || fetched.MessageCount != 1 {
		t.Fatalf("expected messages replaced, got %d (count %d)", len(fetched.Messages), fetched.MessageCount)
	}

	index, _ = st.SummaryIndex(ctx)
	if !index["c-2"] {
		t.Fatal("expected summary index to flip to true")
	}

	ghost := testsupport.Conversation("ghost", "a", base, "x")
	if err := st.UpdateConversation(ctx, &ghost); !errors.Is(err, store.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestConversationsInRangeFiltersByStartAndAgent(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustInsert(t, st, testsupport.Conversation("early", "a", base.Add(-24*time.Hour), "x"))
	testsupport.MustInsert(t, st, testsupport.Conversation("in-a", "a", base.Add(time.Hour), "x", "y"))
	testsupport.MustInsert(t, st, testsupport.Conversation("in-b", "b", base.Add(2*time.Hour), "x"))
	testsupport.MustInsert(t, st, testsupport.Conversation("edge", "a", base.Add(24*time.Hour), "x"))

	r := store.Range{Start: base, End: base.Add(24 * time.Hour)}
	all, err := st.ConversationsInRange(ctx, r, true)
	if err != nil {
		t.Fatalf("ConversationsInRange failed: %v", err)
	}
	if len(all) != 2 || all[0].ExternalID != "in-a" || all[1].ExternalID != "in-b" {
		t.Fatalf("unexpected range result: %+v", all)
	}
	if len(all[0].Messages) != 2 {
		t.Fatalf("expected messages attached, got %d", len(all[0].Messages))
	}

	r.AgentID = "b"
	onlyB, err := st.ConversationsInRange(ctx, r, false)
	if err != nil {
		t.Fatalf("ConversationsInRange failed: %v", err)
	}
	if len(onlyB) != 1 || onlyB[0].ExternalID != "in-b" || onlyB[0].Messages != nil {
		t.Fatalf("unexpected agent-filtered result: %+v", onlyB)
	}
}

func TestCostSinceAndList(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for i, cost := range []float64{1.5, 2.5, 4} {
		conv := testsupport.Conversation(string(rune('a'+i)), "agent", base.Add(time.Duration(i)*time.Hour), "x")
		conv.CostCredits = cost
		testsupport.MustInsert(t, st, conv)
	}

	total, err := st.CostSince(ctx, base.Add(time.Hour), "")
	if err != nil {
		t.Fatalf("CostSince failed: %v", err)
	}
	if total != 6.5 {
		t.Fatalf("expected 6.5, got %v", total)
	}
	if none, _ := st.CostSince(ctx, base, "other"); none != 0 {
		t.Fatalf("expected zero for unknown agent, got %v", none)
	}

	recent, err := st.ListConversations(ctx, store.ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ExternalID != "c" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
}

func TestSyncRunHistory(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := store.SyncRun{
			RunID:      string(rune('x' + i)),
			Status:     "success",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Added:      i,
			CheckedAPI: i * 2,
			FullSync:   i == 2,
		}
		if err := st.RecordSyncRun(ctx, &run); err != nil {
			t.Fatalf("RecordSyncRun failed: %v", err)
		}
	}

	runs, err := st.ListSyncRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListSyncRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "z" || !runs[0].FullSync || runs[0].CheckedAPI != 4 {
		t.Fatalf("unexpected newest run: %+v", runs[0])
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.MustInsert(t, st, testsupport.Conversation("persist", "a", base, "x"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	count, err := reopened.CountConversations(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected 1 conversation after reopen, got %d (%v)", count, err)
	}
}
