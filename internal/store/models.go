package store

import (
	"strings"
	"time"
)

// Role identifies who spoke a transcript message.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleCaller Role = "caller"
)

// Message is one transcript entry within a conversation.
type Message struct {
	ID             int64
	ConversationID int64
	Position       int
	Role           Role
	Text           string
	OffsetSeconds  float64
	Timestamp      time.Time
}

// Conversation is a locally persisted call record. ExternalID is the
// provider's identifier and is unique.
type Conversation struct {
	ID              int64
	ExternalID      string
	AgentID         string
	CreatedAt       time.Time
	StartTime       time.Time
	DurationSeconds int
	CostCredits     float64
	Status          string
	// Summary is empty when the provider has not produced one yet; such
	// records are re-fetched on every sync until it appears.
	Summary        string
	CallSuccessful string
	MessageCount   int
	UpdatedAt      time.Time
	Messages       []Message
}

// HasSummary reports whether the derived summary has been populated.
func (c Conversation) HasSummary() bool {
	return strings.TrimSpace(c.Summary) != ""
}

// Range selects conversations whose start time falls in [Start, End).
// An empty AgentID matches every agent.
type Range struct {
	Start   time.Time
	End     time.Time
	AgentID string
}

// ListFilter narrows ListConversations.
type ListFilter struct {
	AgentID string
	Limit   int
}

// SyncRun is the persisted outcome of one synchronization run.
type SyncRun struct {
	ID             int64
	RunID          string
	FullSync       bool
	Status         string
	Message        string
	StartedAt      time.Time
	FinishedAt     time.Time
	InitialDBCount int
	FinalDBCount   int
	Added          int
	Updated        int
	Skipped        int
	Failed         int
	CheckedAPI     int
}
