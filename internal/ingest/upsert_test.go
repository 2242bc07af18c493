package ingest_test

import (
	"context"
	"testing"
	"time"

	"callscope/internal/ingest"
	"callscope/internal/retry"
	"callscope/internal/services"
	"callscope/internal/testsupport"
)

func TestUpsertFollowsStoreWhenPlanIsStale(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustInsert(t, st, testsupport.Conversation("dup", "agent_a", callStart, "old text"))

	src := testsupport.NewFakeSource()
	src.SetDetail("dup", testsupport.DetailPayload("dup", "agent_a", callStart, "refreshed", "new text"))
	src.SetDetail("ghost", testsupport.DetailPayload("ghost", "", callStart, "s", "hello"))
	src.SetDetail("broken", testsupport.DetailPayload("broken", "agent_a", callStart, "s", "hi"))
	src.FailDetail("broken", 5, services.ErrExternal)

	pending := []ingest.Decision{
		{ExternalID: "dup", Action: ingest.ActionNew},
		{ExternalID: "ghost", Action: ingest.ActionUpdate},
		{ExternalID: "broken", Action: ingest.ActionNew},
	}
	counts := ingest.Upsert(context.Background(), src, st, pending, ingest.UpsertOptions{
		Workers: 2,
		Retry:   retry.New(1, time.Millisecond, time.Millisecond),
		Agents:  map[string]string{"ghost": "agent_b"},
		Now:     func() time.Time { return callStart },
	})

	if counts.Added != 1 || counts.Updated != 1 || counts.Failed != 1 {
		t.Fatalf("counts = %+v, want 1 added, 1 updated, 1 failed", counts)
	}

	dup, err := st.GetConversation(context.Background(), "dup")
	if err != nil || dup == nil {
		t.Fatalf("get dup: %v", err)
	}
	if dup.Summary != "refreshed" {
		t.Fatalf("dup summary = %q, want refreshed", dup.Summary)
	}
	ghost, err := st.GetConversation(context.Background(), "ghost")
	if err != nil || ghost == nil {
		t.Fatalf("get ghost: %v", err)
	}
	if ghost.AgentID != "agent_b" {
		t.Fatalf("ghost agent = %q, want listing agent agent_b", ghost.AgentID)
	}
}

func TestUpsertStopsDispatchingWhenCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	src := testsupport.NewFakeSource()
	src.SetDetail("a", testsupport.DetailPayload("a", "agent_a", callStart, "s", "hi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	counts := ingest.Upsert(ctx, src, st, []ingest.Decision{{ExternalID: "a", Action: ingest.ActionNew}}, ingest.UpsertOptions{})
	if counts != (ingest.UpsertCounts{}) {
		t.Fatalf("counts = %+v, want none", counts)
	}
	if calls := src.DetailCalls("a"); calls != 0 {
		t.Fatalf("detail fetched %d times after cancellation", calls)
	}
}
