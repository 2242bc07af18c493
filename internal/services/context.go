package services

import "context"

type contextKey string

const (
	syncRunIDKey contextKey = "sync_run_id"
	agentIDKey   contextKey = "agent_id"
	requestIDKey contextKey = "request_id"
)

// WithSyncRunID annotates context with the sync run identifier.
func WithSyncRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, syncRunIDKey, id)
}

// SyncRunIDFromContext returns the sync run identifier if present.
func SyncRunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(syncRunIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithAgentID annotates context with the agent filter in effect.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	if agentID == "" {
		return ctx
	}
	return context.WithValue(ctx, agentIDKey, agentID)
}

// AgentIDFromContext returns the agent filter if present.
func AgentIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(agentIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
