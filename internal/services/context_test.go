package services_test

import (
	"context"
	"testing"

	"callscope/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSyncRunID(ctx, "run-1")
	ctx = services.WithAgentID(ctx, "agent-a")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SyncRunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected sync run id: %v %v", id, ok)
	}
	if agent, ok := services.AgentIDFromContext(ctx); !ok || agent != "agent-a" {
		t.Fatalf("unexpected agent: %v %v", agent, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	if services.WithAgentID(ctx, "") != ctx {
		t.Fatal("expected blank agent to return the same context")
	}
	if _, ok := services.SyncRunIDFromContext(services.WithSyncRunID(ctx, "")); ok {
		t.Fatal("expected blank sync run id to be ignored")
	}
}
